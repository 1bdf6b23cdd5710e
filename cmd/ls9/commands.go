package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/urfave/cli"

	"github.com/dspearson/lisp9/compiler"
	"github.com/dspearson/lisp9/vm"
)

const (
	banner      = "LISP9 (ls9). Type (quit) or Ctrl-D to exit."
	historyFile = ".ls9_history"
	promptMain  = "* "
	promptCont  = "  "
)

// ---------------------------------------------------------------------------
// repl
// ---------------------------------------------------------------------------

func cmdRepl(c *cli.Context) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()
	m := s.m

	if !opts.quiet {
		fmt.Println(infoText(banner))
	}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		code, ok := readForm(ln)
		if !ok {
			fmt.Println()
			return nil
		}
		if strings.TrimSpace(code) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))

		v, err := compiler.EvalString(m, code)
		var exit *vm.ExitError
		switch {
		case errors.As(err, &exit):
			return exit
		case err != nil:
			// already printed to the error port
			continue
		}
		if !opts.quiet {
			fmt.Println(valueText(m.Sprint(v, true)))
		}
	}
}

// readForm reads lines until the parentheses balance.
func readForm(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return "", true
			}
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if depth(b.String()) <= 0 {
			return b.String(), true
		}
	}
}

// depth returns the number of open parentheses at the end of src,
// ignoring strings, comments and character literals.
func depth(src string) int {
	n := 0
	rs := []rune(src)
	for i := 0; i < len(rs); i++ {
		switch rs[i] {
		case '(':
			n++
		case ')':
			n--
		case ';':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case '"':
			for i++; i < len(rs) && rs[i] != '"'; i++ {
				if rs[i] == '\\' {
					i++
				}
			}
			if i >= len(rs) {
				// unterminated string
				return n + 1
			}
		case '#':
			if i+2 < len(rs) && rs[i+1] == '\\' {
				i += 2
			}
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func cmdRun(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("run: no files given")
	}
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()
	for _, path := range c.Args() {
		if err := s.m.Load(path); err != nil {
			return reported(err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// dump / inspect / images
// ---------------------------------------------------------------------------

func cmdDump(c *cli.Context) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	if opts.imageName != "" {
		st, err := s.openStore()
		if err != nil {
			return err
		}
		if st == nil {
			return errors.New("--name needs --store or image.store")
		}
		id, err := st.Put(opts.imageName, s.m)
		if err != nil {
			return err
		}
		if !opts.quiet {
			fmt.Printf("%s %s\n", infoText(opts.imageName), id)
		}
		return nil
	}

	path := c.Args().First()
	if path == "" {
		path = s.cfg.Path(s.cfg.Image.File)
	}
	if err := s.m.SaveImageFile(path); err != nil {
		return err
	}
	if !opts.quiet {
		fmt.Printf("%s %s\n", infoText(path), s.m.ImageID())
	}
	return nil
}

func cmdInspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("inspect: expected one image file")
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := vm.InspectImage(f)
	if err != nil {
		return err
	}
	fmt.Printf("id:       %s\n", info.ID)
	fmt.Printf("version:  %d\n", info.Version)
	fmt.Printf("created:  %s\n", info.Created.Format("2006-01-02 15:04:05"))
	fmt.Printf("nodes:    %d (%d free)\n", info.Nodes, info.FreeNodes)
	fmt.Printf("vcells:   %d (%d used)\n", info.VCells, info.UsedVec)
	fmt.Printf("symbols:  %d\n", info.Symbols)
	fmt.Printf("globals:  %d\n", info.Globals)
	return nil
}

func cmdImages(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	configureLogging(cfg.Log.Verbosity)
	s := &session{cfg: cfg}
	st, err := s.openStore()
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("images: needs --store or image.store")
	}
	defer st.Close()

	if name := c.String("delete"); name != "" {
		return st.Delete(name)
	}
	entries, err := st.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%-20s %s %8d %s\n", infoText(e.Name), e.ID, e.Size, e.Created.Format("2006-01-02 15:04"))
	}
	return nil
}
