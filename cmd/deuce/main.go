// Package main is the interactive shell for the deuce analysis workspace.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/peterh/liner"

	"github.com/dshills/deuce/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const historyFile = ".deuce_history"

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	repl := NewREPL(application, os.Stdout)
	for _, path := range flag.Args() {
		if err := repl.Execute(ctx, "open "+path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(repl.Complete)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
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

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)
	go func() {
		<-signals
		cancel()
		ln.Close()
	}()

	for {
		line, err := ln.Prompt("deuce> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return 0
			}
			if ctx.Err() != nil {
				return 0
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		ln.AppendHistory(line)

		if err := repl.Execute(ctx, line); err != nil {
			if errors.Is(err, app.ErrQuit) {
				return 0
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

func parseFlags() app.Options {
	var opts app.Options
	var showVersion bool

	flag.StringVar(&opts.ConfigPath, "config", "deuce.toml", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "deuce.toml", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.Watch, "watch", true, "Reload the configuration file when it changes")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "deuce - TypeScript analysis workspace shell\n\n")
		fmt.Fprintf(os.Stderr, "Usage: deuce [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		for _, name := range Names() {
			fmt.Fprintf(os.Stderr, "  %s\n", commands[name])
		}
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("deuce %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if _, err := os.Stat(opts.ConfigPath); err != nil {
		// Without a file there is nothing to watch.
		opts.Watch = false
	}
	return opts
}
