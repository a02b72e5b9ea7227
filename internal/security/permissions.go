package security

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// PermConfigFile is for configuration files that may hold tokens.
	// rw-r----- (0640)
	PermConfigFile os.FileMode = 0640

	// PermLogFile is for log files that may contain deployment information.
	// rw-r----- (0640)
	PermLogFile os.FileMode = 0640

	// PermDBFile is for the history database.
	// rw-r----- (0640)
	PermDBFile os.FileMode = 0640

	// PermDirectory is for directories launchpad creates.
	// rwxr-x--- (0750)
	PermDirectory os.FileMode = 0750

	// PermGeneratedFile is for generated deployment files, which are committed to a repository anyway.
	// rw-r--r-- (0644)
	PermGeneratedFile os.FileMode = 0644
)

// OpenAppendFile opens a file for appending, creating it with perm if needed.
func OpenAppendFile(path string, perm os.FileMode) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), PermDirectory); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// CreateSecureDir creates a directory with perm, fixing permissions if it already exists.
// Parent directories are created as needed.
func CreateSecureDir(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create secure directory: %w", err)
	}

	// MkdirAll is subject to umask
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set directory permissions: %w", err)
	}

	return nil
}

// WriteGeneratedFile writes content to path, creating parent directories.
func WriteGeneratedFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), PermDirectory); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	if err := os.WriteFile(path, content, PermGeneratedFile); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	return nil
}

// IsWorldReadable checks if a file mode is readable by others.
func IsWorldReadable(perm os.FileMode) bool {
	return perm&0004 != 0
}

// IsWorldWritable checks if a file mode is writable by others.
func IsWorldWritable(perm os.FileMode) bool {
	return perm&0002 != 0
}

// ValidateSecurePermissions rejects world-readable or world-writable files.
// Used for config files that carry tokens.
func ValidateSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	perm := info.Mode().Perm()

	if IsWorldReadable(perm) {
		return fmt.Errorf("file %s is world-readable (%04o), which is insecure for sensitive data", path, perm)
	}

	if IsWorldWritable(perm) {
		return fmt.Errorf("file %s is world-writable (%04o), which is a serious security risk", path, perm)
	}

	return nil
}
