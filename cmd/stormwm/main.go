// Package main is the entry point for the stormwm compositing window manager.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tidwall/pretty"

	"github.com/dshills/stormwm/internal/app"
	"github.com/dshills/stormwm/internal/backend"
	"github.com/dshills/stormwm/internal/plugin"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type cmdFlags struct {
	opts      app.Options
	dumpState bool
	list      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	f := parseFlags()
	if f.list {
		fmt.Printf("backends: %s\n", strings.Join(backend.Names(), ", "))
		fmt.Printf("builtin plugins: %s\n", strings.Join(plugin.Builtins(), ", "))
		return 0
	}

	application, err := app.New(f.opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer func() {
		if err := application.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}()

	if f.dumpState {
		return dumpOnce(application)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// dumpOnce runs a single loop iteration and prints the resulting state.
func dumpOnce(application *app.Application) int {
	if err := application.RunOnce(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	data, err := application.DumpState()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := os.Stdout.Write(pretty.Pretty(data)); err != nil {
		return 1
	}
	return 0
}

func parseFlags() cmdFlags {
	var (
		f           cmdFlags
		backendName string
		display     string
		logLevel    string
		showVersion bool
	)
	f.opts.HandleSignals = true
	f.opts.Overrides = make(map[string]any)

	envConfig := os.Getenv("STORMWM_CONFIG")
	flag.StringVar(&f.opts.ConfigPath, "config", envConfig, "Path to configuration file (default $STORMWM_CONFIG)")
	flag.StringVar(&f.opts.ConfigPath, "c", envConfig, "Path to configuration file (shorthand)")
	flag.StringVar(&backendName, "backend", "", "Display backend ("+strings.Join(backend.Names(), ", ")+")")
	flag.StringVar(&display, "display", "", "Display to manage (X display, or screen sizes for headless)")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&f.dumpState, "dump-state", false, "Print the state after one loop iteration and exit")
	flag.BoolVar(&f.list, "list", false, "List backends and builtin plugins")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "stormwm - compositing window manager\n\n")
		fmt.Fprintf(os.Stderr, "Usage: stormwm [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  stormwm -display :1                      Manage X display :1\n")
		fmt.Fprintf(os.Stderr, "  stormwm -backend term                    Run inside this terminal\n")
		fmt.Fprintf(os.Stderr, "  stormwm -backend headless -dump-state    Print the initial state\n")
		fmt.Fprintf(os.Stderr, "\nSend SIGUSR1 to write a state dump to debug.dump_path or the log.\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("stormwm %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if backendName != "" {
		f.opts.Overrides["display.backend"] = backendName
	}
	if display != "" {
		f.opts.Overrides["display.name"] = display
	}
	if logLevel != "" {
		switch logLevel {
		case "debug", "info", "warn", "error":
		default:
			fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", logLevel)
			os.Exit(2)
		}
		f.opts.Overrides["log.level"] = logLevel
	}
	return f
}
