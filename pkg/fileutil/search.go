// Package fileutil locates config files and extracts files from fenced model output.
package fileutil

import (
	"os"
	"path/filepath"
)

// SystemConfigDir is the system-wide configuration directory.
const SystemConfigDir = "/etc/launchpad"

// ConfigDirEnv names a directory searched before the defaults.
const ConfigDirEnv = "LAUNCHPAD_CONFIG_DIR"

// ConfigPaths lists the candidate locations of filename in search order:
// $LAUNCHPAD_CONFIG_DIR, the working directory, ./config, then SystemConfigDir.
func ConfigPaths(filename string) []string {
	var paths []string
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		paths = append(paths, filepath.Join(dir, filename))
	}
	return append(paths,
		filepath.Join(".", filename),
		filepath.Join(".", "config", filename),
		filepath.Join(SystemConfigDir, filename),
	)
}

// FindConfig returns the first of ConfigPaths that is a regular file, or "".
func FindConfig(filename string) string {
	for _, path := range ConfigPaths(filename) {
		if FileExists(path) {
			return path
		}
	}
	return ""
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
