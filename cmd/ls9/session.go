package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/dspearson/lisp9/compiler"
	"github.com/dspearson/lisp9/config"
	"github.com/dspearson/lisp9/imagestore"
	"github.com/dspearson/lisp9/vm"
)

// errReported marks failures the machine has already printed.
var errReported = errors.New("reported")

var (
	errorText = color.New(color.FgRed, color.Bold).SprintFunc()
	infoText  = color.New(color.FgBlue).SprintFunc()
	valueText = color.New(color.FgGreen).SprintFunc()
)

// colorWriter colours everything written through it.
type colorWriter struct {
	w io.Writer
	c *color.Color
}

func (cw colorWriter) Write(p []byte) (int, error) {
	if _, err := cw.c.Fprint(cw.w, string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// session is a configured machine plus the optional image catalogue.
type session struct {
	cfg   *config.Config
	m     *vm.Machine
	store *imagestore.Store
}

func loadConfig() (*config.Config, error) {
	if opts.configPath != "" {
		return config.Load(opts.configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.FindAndLoad(wd)
}

// openStore opens the catalogue named by --store or the configuration.
// It returns nil when none is configured.
func (s *session) openStore() (*imagestore.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	path := opts.storePath
	if path == "" {
		path = s.cfg.Path(s.cfg.Image.Store)
	}
	if path == "" {
		return nil, nil
	}
	st, err := imagestore.Open(path)
	if err != nil {
		return nil, err
	}
	s.store = st
	return st, nil
}

// newSession creates the machine and brings it up from the catalogue, an
// image file, or the prelude plus an optional bootstrap source, in that
// order of preference. Files given with --load are evaluated afterwards.
func newSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	configureLogging(cfg.Log.Verbosity)

	vc := cfg.VM()
	vc.Stderr = colorWriter{w: os.Stderr, c: color.New(color.FgRed)}
	s := &session{cfg: cfg, m: vm.New(vc)}

	if err := s.boot(); err != nil {
		s.close()
		return nil, err
	}
	for _, path := range opts.load {
		if err := s.m.Load(path); err != nil {
			s.close()
			return nil, reported(err)
		}
	}
	return s, nil
}

func (s *session) boot() error {
	m := s.m
	if opts.imageName != "" && !opts.noImage {
		st, err := s.openStore()
		if err != nil {
			return err
		}
		if st == nil {
			return errors.New("--name needs --store or image.store")
		}
		compiler.Attach(m)
		return st.Get(opts.imageName, m)
	}

	imagePath := opts.imagePath
	if imagePath == "" {
		imagePath = s.cfg.Path(s.cfg.Image.File)
	}
	if !opts.noImage && imagePath != "" {
		if _, err := os.Stat(imagePath); err == nil {
			compiler.Attach(m)
			return m.LoadImageFile(imagePath)
		} else if opts.imagePath != "" {
			return fmt.Errorf("image %s: %w", imagePath, err)
		}
	}

	if err := compiler.Install(m); err != nil {
		return err
	}
	source := opts.sourcePath
	if source == "" {
		source = s.cfg.Path(s.cfg.Image.Source)
	}
	if source == "" {
		return nil
	}
	if _, err := os.Stat(source); err != nil {
		if opts.sourcePath != "" {
			return fmt.Errorf("source %s: %w", source, err)
		}
		return nil
	}
	if err := m.Load(source); err != nil {
		return reported(err)
	}
	return nil
}

func (s *session) close() {
	s.m.CloseAllPorts()
	if s.store != nil {
		s.store.Close()
	}
}

// reported maps errors the machine has printed to errReported, keeping
// exit requests intact.
func reported(err error) error {
	var e *vm.Error
	if errors.As(err, &e) {
		return errReported
	}
	return err
}
