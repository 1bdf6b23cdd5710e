// ls9 - the command-line entry point for the LISP9 runtime
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/urfave/cli"

	"github.com/dspearson/lisp9/vm"
)

// options collects the global flags.
type options struct {
	configPath string
	imagePath  string
	sourcePath string
	noImage    bool
	quiet      bool
	verbose    int
	storePath  string
	imageName  string
	load       cli.StringSlice
	noColor    bool
}

var opts options

func main() {
	os.Exit(run(os.Args))
}

// run executes the application and converts the outcome into an exit
// status. Fatal machine conditions arrive as panics.
func run(args []string) (status int) {
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*vm.FatalError)
			if !ok {
				panic(r)
			}
			fmt.Fprintln(os.Stderr, errorText(fe.Error()))
			status = 1
		}
	}()

	err := newApp().Run(args)
	var exit *vm.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.Code
	case errors.Is(err, errReported):
		return 1
	default:
		fmt.Fprintln(os.Stderr, errorText("ls9: "+err.Error()))
		return 1
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "ls9"
	app.Usage = "a small Lisp with a bytecode machine and heap images"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Usage:       "read configuration from `FILE` instead of searching for ls9.toml",
			Destination: &opts.configPath,
		},
		cli.StringFlag{
			Name:        "image, i",
			Usage:       "start from image `FILE`",
			Destination: &opts.imagePath,
		},
		cli.StringFlag{
			Name:        "source, s",
			Usage:       "bootstrap from source `FILE` when no image is loaded",
			Destination: &opts.sourcePath,
		},
		cli.BoolFlag{
			Name:        "no-image, n",
			Usage:       "do not load an image",
			Destination: &opts.noImage,
		},
		cli.BoolFlag{
			Name:        "quiet, q",
			Usage:       "do not print the banner or results",
			Destination: &opts.quiet,
		},
		cli.IntFlag{
			Name:        "verbose, v",
			Usage:       "log verbosity (0 to 5)",
			Destination: &opts.verbose,
		},
		cli.StringFlag{
			Name:        "store",
			Usage:       "image catalogue database `FILE`",
			Destination: &opts.storePath,
		},
		cli.StringFlag{
			Name:        "name",
			Usage:       "image `NAME` in the catalogue",
			Destination: &opts.imageName,
		},
		cli.StringSliceFlag{
			Name:  "load, l",
			Usage: "load `FILE` after startup (repeatable)",
			Value: &opts.load,
		},
		cli.BoolFlag{
			Name:        "no-color",
			Usage:       "hide colors in diagnostics",
			Destination: &opts.noColor,
		},
	}

	app.Before = func(c *cli.Context) error {
		color.NoColor = color.NoColor || opts.noColor
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:   "repl",
			Usage:  "Start the interactive read-eval-print loop",
			Action: cmdRepl,
		},
		{
			Name:      "run",
			Aliases:   []string{"r"},
			Usage:     "Load and evaluate source files",
			ArgsUsage: "FILE...",
			Action:    cmdRun,
		},
		{
			Name:      "dump",
			Usage:     "Write the heap to an image file, or to the catalogue with --name",
			ArgsUsage: "[IMAGE]",
			Action:    cmdDump,
		},
		{
			Name:      "inspect",
			Usage:     "Describe an image file",
			ArgsUsage: "IMAGE",
			Action:    cmdInspect,
		},
		{
			Name:  "images",
			Usage: "List the image catalogue",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "delete, d",
					Usage: "remove image `NAME` from the catalogue",
				},
			},
			Action: cmdImages,
		},
	}

	app.Action = cmdRepl
	return app
}

// configureLogging sets the commonlog verbosity.
func configureLogging(verbosity int) {
	if opts.verbose > verbosity {
		verbosity = opts.verbose
	}
	commonlog.Configure(verbosity, nil)
}
