package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/wavegrid/internal/app"
	"github.com/vk/wavegrid/internal/cli"
	"github.com/vk/wavegrid/internal/workflow"
)

// main is the entrypoint for the wavegrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on critical config errors, so we recover here to provide
	// a clean exit message to the user.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(outW, "A critical startup error occurred: %v\n", r)
			os.Exit(1)
		}
	}()

	ctx := context.Background()

	switch cfg.Command {
	case "task":
		workerApp, err := app.NewWorkerApp(outW, cfg)
		if err != nil {
			return &cli.ExitError{Code: cli.ExitFailure, Message: err.Error()}
		}
		if err := workerApp.RunTask(ctx, cfg.Component, cfg.Method); err != nil {
			return &cli.ExitError{Code: cli.ExitCodeFor(err), Message: err.Error()}
		}
		return nil
	default:
		return app.NewApp(outW, cfg).Submit(ctx, workflow.NewForward())
	}
}
