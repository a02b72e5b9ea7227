package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"

	"launchpad/internal/security"
	"launchpad/pkg/cmdutil"
	"launchpad/pkg/fileutil"
)

// prepareLocal writes the generated files under folder, runs the configured
// commands there and checks that every expected file exists.
func (o *Orchestrator) prepareLocal(ctx context.Context, folder string, files map[string]string, opts Options) (*LocalResult, error) {
	result := &LocalResult{
		Status:        StatusSuccess,
		ProjectFolder: folder,
		FilesWritten:  []string{},
	}

	if err := security.CreateSecureDir(folder, security.PermDirectory); err != nil {
		return result, fmt.Errorf("failed to create project folder: %w", err)
	}

	for _, name := range fileutil.SortedNames(files) {
		path, err := security.SafeJoin(folder, name)
		if err != nil {
			return result, fmt.Errorf("invalid file name %q: %w", name, err)
		}
		if err := security.WriteGeneratedFile(path, []byte(files[name])); err != nil {
			return result, err
		}
		result.FilesWritten = append(result.FilesWritten, name)
		o.logger.Debug("file_written", "file", name)
	}

	if len(opts.Commands) > 0 {
		executor := security.NewSandboxedExecutor(folder)
		executor.Timeout = opts.CommandTimeout
		for _, value := range o.collectSecrets(opts.SecretEnv) {
			executor.Redact = append(executor.Redact, value)
		}
		for _, cmd := range opts.AllowedCommands {
			executor.AddAllowedCommand(cmd)
		}

		for i, cmd := range opts.Commands {
			res, err := executor.Execute(ctx, cmd)
			if res != nil {
				result.Commands = append(result.Commands, CommandResult{
					Command:  cmdutil.FormatCommand(cmd),
					ExitCode: res.ExitCode,
					Output:   res.Output,
					Duration: res.Duration.Seconds(),
				})
			}
			if err != nil {
				return result, fmt.Errorf("local command %d failed: %w", i, err)
			}
		}
	}

	for _, name := range opts.ExpectedFiles {
		if !fileutil.FileExists(filepath.Join(folder, filepath.FromSlash(name))) {
			result.MissingFiles = append(result.MissingFiles, name)
		}
	}
	if len(result.MissingFiles) > 0 {
		result.Status = StatusPartial
	}

	return result, nil
}
