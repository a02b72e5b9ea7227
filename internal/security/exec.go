package security

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"launchpad/pkg/cmdutil"
)

// DefaultAllowedCommands is the set of tools local preparation commands may invoke.
var DefaultAllowedCommands = map[string]bool{
	"docker":         true,
	"docker-compose": true,
	"kubectl":        true,
	"helm":           true,
	"git":            true,
	"gh":             true,
	"make":           true,
	"npm":            true,
	"yarn":           true,
	"pnpm":           true,
	"python3":        true,
	"pip":            true,
	"go":             true,
	"cargo":          true,
	"terraform":      true,
}

// shellMetachars are rejected in arguments unless AllowShellMetachars is set
var shellMetachars = []string{
	";", "|", "&", "$", "`", "\n", ">", "<", "(", ")",
	"{", "}", "*", "?", "[", "]", "\\", "'", "\"",
}

// SandboxedExecutor runs allowlisted commands without a shell.
type SandboxedExecutor struct {
	// AllowedCommands is the map of commands that are permitted to run.
	AllowedCommands map[string]bool

	// WorkDir is the working directory for command execution.
	WorkDir string

	// Env contains environment variables for the command.
	Env []string

	// Timeout bounds each command. Zero means no limit beyond ctx.
	Timeout time.Duration

	// AllowShellMetachars allows shell metacharacters in arguments.
	AllowShellMetachars bool

	// Redact lists secret values masked in command output.
	Redact []string
}

// NewSandboxedExecutor creates a sandboxed executor with a private copy of the default allowlist.
func NewSandboxedExecutor(workDir string) *SandboxedExecutor {
	allowed := make(map[string]bool, len(DefaultAllowedCommands))
	for cmd := range DefaultAllowedCommands {
		allowed[cmd] = true
	}

	return &SandboxedExecutor{
		AllowedCommands: allowed,
		WorkDir:         workDir,
	}
}

// Execute validates and runs a command, returning its combined output.
func (e *SandboxedExecutor) Execute(ctx context.Context, cmdParts []string) (*cmdutil.Result, error) {
	if err := e.ValidateCommandParts(cmdParts); err != nil {
		return nil, err
	}

	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
		Dir:     e.WorkDir,
		Env:     e.Env,
		Timeout: e.Timeout,
		Redact:  e.Redact,
	}, cmdParts)
	if err != nil {
		return result, fmt.Errorf("%s: %w", cmdutil.FormatCommand(cmdParts), err)
	}

	return result, nil
}

// ValidateCommandParts validates a command without executing it.
func (e *SandboxedExecutor) ValidateCommandParts(cmdParts []string) error {
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}

	if !e.AllowedCommands[cmdParts[0]] {
		return fmt.Errorf("command not allowed: %s (must be one of: %s)",
			cmdParts[0], strings.Join(e.allowedCommandsList(), ", "))
	}

	if !e.AllowShellMetachars {
		for i, arg := range cmdParts[1:] {
			if containsShellMetachars(arg) {
				return fmt.Errorf("argument %d contains shell metacharacters: %s", i+1, arg)
			}
		}
	}

	return nil
}

// AddAllowedCommand adds a command to the allowed list.
func (e *SandboxedExecutor) AddAllowedCommand(cmd string) {
	if e.AllowedCommands == nil {
		e.AllowedCommands = make(map[string]bool)
	}
	e.AllowedCommands[cmd] = true
}

// IsCommandAllowed checks if a command is in the allowed list.
func (e *SandboxedExecutor) IsCommandAllowed(cmd string) bool {
	return e.AllowedCommands[cmd]
}

func (e *SandboxedExecutor) allowedCommandsList() []string {
	commands := make([]string, 0, len(e.AllowedCommands))
	for cmd := range e.AllowedCommands {
		commands = append(commands, cmd)
	}
	sort.Strings(commands)
	return commands
}

func containsShellMetachars(s string) bool {
	for _, char := range shellMetachars {
		if strings.Contains(s, char) {
			return true
		}
	}
	return false
}
