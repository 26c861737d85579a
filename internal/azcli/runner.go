package azcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Runner executes an external command line and returns its standard output.
// argv[0] is the program; the child inherits the caller's environment.
type Runner interface {
	Output(ctx context.Context, argv ...string) ([]byte, error)
}

// CommandError is returned when a command exits with a non-zero status.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// DecodeError is returned when JSON output was requested but the command
// printed something else.
type DecodeError struct {
	Args []string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode output of %q: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	lg zerolog.Logger
}

func NewExecRunner(lg zerolog.Logger) *ExecRunner {
	return &ExecRunner{lg: lg.With().Str("adapter", "exec").Logger()}
}

func (r *ExecRunner) Output(ctx context.Context, argv ...string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	r.lg.Debug().Strs("argv", argv).Msg("running command")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), &CommandError{
				Args:     argv,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
				Err:      err,
			}
		}
		return nil, fmt.Errorf("run %s: %w", argv[0], err)
	}
	return stdout.Bytes(), nil
}

// Text runs argv and returns stdout as a string.
func Text(ctx context.Context, r Runner, argv ...string) (string, error) {
	out, err := r.Output(ctx, argv...)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// JSONList runs argv and decodes stdout as a JSON array.
func JSONList(ctx context.Context, r Runner, argv ...string) ([]any, error) {
	out, err := r.Output(ctx, argv...)
	if err != nil {
		return nil, err
	}
	var list []any
	if err := json.Unmarshal(out, &list); err != nil {
		return nil, &DecodeError{Args: argv, Err: err}
	}
	return list, nil
}

// Discard runs argv and drops whatever it prints.
func Discard(ctx context.Context, r Runner, argv ...string) error {
	_, err := r.Output(ctx, argv...)
	return err
}
