// Package cmdutil runs external commands and parses shell-quoted command lines.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// Redacted replaces secret values in command output.
const Redacted = "***REDACTED***"

var ErrEmptyCommand = errors.New("empty command")

// ExecOptions configures Run.
type ExecOptions struct {
	Dir string

	// Timeout bounds the command. Zero leaves only ctx.
	Timeout time.Duration

	// Env holds "KEY=value" pairs. Nil inherits the parent environment.
	Env []string

	// Redact lists values masked in the captured output.
	Redact []string
}

// Result is a finished (or killed) command.
type Result struct {
	// Output is stdout and stderr interleaved, trimmed and redacted.
	Output string

	// ExitCode is -1 when the process never started or was killed by a signal.
	ExitCode int

	Duration time.Duration
}

// Run executes cmdParts without a shell.
// The Result is non-nil whenever the command was started, even when it failed.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, ErrEmptyCommand
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	start := time.Now()
	out, err := cmd.CombinedOutput()

	result := &Result{
		Output:   RedactOutput(strings.TrimSpace(string(out)), opts.Redact),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("command interrupted after %s: %w", result.Duration.Round(time.Millisecond), ctx.Err())
		}
		return result, fmt.Errorf("command failed: %w", err)
	}
	return result, nil
}

// ParseCommandString splits a shell-quoted command line, e.g.
// `docker build -t "my app" .` becomes [docker build -t "my app" .].
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, ErrEmptyCommand
	}
	return parts, nil
}

// ParseCommandList accepts a command decoded from YAML or JSON: either a
// shell-quoted string or a list of string arguments.
func ParseCommandList(cmd any) ([]string, error) {
	var parts []string

	switch v := cmd.(type) {
	case string:
		return ParseCommandString(v)
	case []string:
		parts = v
	case []any:
		parts = make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("command list item %d is not a string: %T", i, item)
			}
			parts = append(parts, s)
		}
	default:
		return nil, fmt.Errorf("invalid command type: %T (must be string or list)", cmd)
	}

	if len(parts) == 0 {
		return nil, ErrEmptyCommand
	}
	return parts, nil
}

// FormatCommand quotes cmdParts back into a single loggable line.
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}
	return shellquote.Join(cmdParts...)
}

// RedactOutput replaces every non-empty secret in output.
func RedactOutput(output string, secrets []string) string {
	for _, secret := range secrets {
		if secret != "" {
			output = strings.ReplaceAll(output, secret, Redacted)
		}
	}
	return output
}
