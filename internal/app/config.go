package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// Command is "submit" for the driver process or "task" for a worker.
	Command string
	// ParFile is the HCL parameters file (submit mode only; workers resume
	// from the snapshot instead).
	ParFile string
	// Workdir roots the working tree. Empty means the current directory.
	Workdir string

	// Component and Method name the checkpointed call a worker replays.
	Component string
	Method    string

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config for the requested command.
func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Command {
	case "submit":
		if cfg.ParFile == "" {
			return nil, errors.New("a parameters file is required: pass -par")
		}
	case "task":
		if cfg.Workdir == "" {
			return nil, errors.New("task mode requires -workdir")
		}
		if cfg.Component == "" || cfg.Method == "" {
			return nil, errors.New("task mode requires -component and -method")
		}
	default:
		return nil, errors.New("command must be 'submit' or 'task'")
	}
	return &cfg, nil
}
