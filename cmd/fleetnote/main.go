// cmd/fleetnote/main.go
//
// This is the entry point for the fleetnote CLI.
//
// Flow:
// 1. Load .env (if present) so credentials and endpoints can be prefilled
// 2. Create .fleetnote/ and read the config
// 3. Open the logbook (and the HTTP trace when --trace is set)
// 4. Launch the TUI

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/kingrea/fleetnote/internal/config"
	"github.com/kingrea/fleetnote/internal/logbook"
	"github.com/kingrea/fleetnote/internal/logging"
	"github.com/kingrea/fleetnote/internal/tui"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting working directory: %v\n", err)
		os.Exit(1)
	}

	dir := flag.String("dir", cwd, "directory holding .fleetnote/")
	configPath := flag.String("config", "", "config file (default <dir>/.fleetnote/config.yaml)")
	envFile := flag.String("env-file", ".env", "dotenv file with credentials and endpoint overrides")
	assetID := flag.String("asset", "", "M5 asset id to work on (default from config)")
	trace := flag.Bool("trace", false, "write HTTP request metadata to .fleetnote/logs/http.log")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	if err := config.InitDir(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing .fleetnote directory: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.NewConfig(*dir, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	lb, err := logbook.New(cfg.JourneyLogPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening logbook: %v\n", err)
		os.Exit(1)
	}
	var tracer *logging.Logger
	if *trace {
		tracer, err = logging.New(cfg.TraceLogPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening trace log: %v\n", err)
			os.Exit(1)
		}
		defer tracer.Close()
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "fleetnote needs an interactive terminal")
		os.Exit(1)
	}

	app, err := tui.NewApp(cfg, *assetID, lb, tracer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting session: %v\n", err)
		os.Exit(1)
	}

	// Run blocks until the operator quits
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
