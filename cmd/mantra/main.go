package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/mantra/internal/app"
	"github.com/danmuck/mantra/internal/config"
	"github.com/danmuck/mantra/internal/logging"
	"github.com/danmuck/mantra/internal/observability"
)

func main() {
	path := flag.String("config", config.DefaultPath, "path to mantra.toml")
	workers := flag.Int("workers", 0, "override worker count")
	adminAddr := flag.String("admin", "", "override admin listen address")
	prelude := flag.String("prelude", "", "override prelude path")
	headless := flag.Bool("headless", false, "serve the admin surface without a REPL")
	flag.Parse()

	observability.InitLogger("mantra")

	cfg, err := loadConfig(*path)
	if err != nil {
		fail(err)
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *adminAddr != "" {
		cfg.Admin.Addr = *adminAddr
	}
	if *prelude != "" {
		cfg.Prelude = *prelude
	}
	logging.SetLevel(cfg.Log.Level)

	svc, err := app.NewService(cfg, os.Stdout)
	if err != nil {
		fail(err)
	}
	if *headless {
		err = svc.RunHeadless()
	} else {
		err = svc.Run()
	}
	if err != nil {
		fail(err)
	}
}

// loadConfig falls back to defaults when the default path is absent.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == config.DefaultPath && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Config{}, err
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "mantra: %v\n", err)
	os.Exit(1)
}
