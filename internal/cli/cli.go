package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/wavegrid/internal/app"
	"github.com/vk/wavegrid/internal/checkpoint"
)

// Process exit codes. Workers use distinguishable codes so the backend can
// attribute a failure to its cause, not just to "nonzero".
const (
	ExitFailure           = 1
	ExitUsage             = 2
	ExitCheckpointMissing = 4
	ExitCheckpointCorrupt = 5
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// ExitCodeFor maps a worker failure to its exit code.
func ExitCodeFor(err error) int {
	var corrupt *checkpoint.CorruptError
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return ExitCheckpointMissing
	case errors.As(err, &corrupt):
		return ExitCheckpointCorrupt
	default:
		return ExitFailure
	}
}

const usageText = `
WaveGrid - checkpointed parallel task dispatch for per-source simulations.

Usage:
  wavegrid submit -par parameters.hcl [options]
  wavegrid task -workdir DIR -component NAME -method NAME [options]

Commands:
  submit
    Set up the working tree (or resume an existing one) and hand control to
    the workflow driver.
  task
    Internal: executed by the process backend inside each worker. Resumes
    the configuration snapshot and replays one checkpointed call.

Options:
`

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	if len(args) == 0 {
		fmt.Fprint(output, usageText)
		return nil, true, nil
	}

	command := args[0]
	if command == "-h" || command == "--help" || command == "help" {
		fmt.Fprint(output, usageText)
		return nil, true, nil
	}
	if command != "submit" && command != "task" {
		return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("unknown command %q (want 'submit' or 'task')", command)}
	}

	flagSet := flag.NewFlagSet("wavegrid "+command, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, usageText)
		flagSet.PrintDefaults()
	}

	parFlag := flagSet.String("par", "", "Path to the HCL parameters file.")
	workdirFlag := flagSet.String("workdir", "", "Root of the working tree. Defaults to the current directory.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	var componentFlag, methodFlag *string
	if command == "task" {
		componentFlag = flagSet.String("component", "", "Component of the checkpointed call to replay.")
		methodFlag = flagSet.String("method", "", "Method of the checkpointed call to replay.")
	}

	if err := flagSet.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cfg := app.Config{
		Command:   command,
		ParFile:   *parFlag,
		Workdir:   *workdirFlag,
		LogFormat: logFormat,
		LogLevel:  logLevel,
	}
	if command == "task" {
		cfg.Component = *componentFlag
		cfg.Method = *methodFlag
	}

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return config, false, nil
}
