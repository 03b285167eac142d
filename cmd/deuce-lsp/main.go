// Package main runs deuce as a language server on stdin and stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dshills/deuce/internal/app"
	"github.com/dshills/deuce/internal/lsp"
)

// Version information (set via ldflags during build).
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var opts app.Options
	var showVersion bool
	flag.StringVar(&opts.ConfigPath, "config", "deuce.toml", "Path to configuration file")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("deuce-lsp %s\n", version)
		return 0
	}
	if _, err := os.Stat(opts.ConfigPath); err == nil {
		opts.Watch = true
	}

	application, err := app.New(context.Background(), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	if err := lsp.New(application, version).RunStdio(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
