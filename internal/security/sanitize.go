package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Safe patterns for validation
	branchPattern  = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	projectPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	ownerPattern   = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	repoPattern    = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	secretPattern  = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

	// Model replies often contain prose lines that look like file headers
	invalidFileNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^project_root/?$`),
		regexp.MustCompile(`^[#\s]*$`),
		regexp.MustCompile(`^[0-9]+\.`),
		regexp.MustCompile(`[:*?"<>|]`),
		regexp.MustCompile(`(?i)^(bash|sh|shell|plaintext|text)$`),
	}
)

// ValidateBranchName ensures branch name is safe for git and API operations.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch name cannot contain '..'")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	return nil
}

// ValidateProjectName ensures project name is safe for use in paths, URLs and metric labels.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("project name cannot start with '-' or '.'")
	}
	if !projectPattern.MatchString(name) {
		return fmt.Errorf("project name contains invalid characters (only a-z, A-Z, 0-9, _, - allowed)")
	}
	return nil
}

// ValidateRepository checks a GitHub owner and repository name pair.
func ValidateRepository(owner, repo string) error {
	if owner == "" || repo == "" {
		return fmt.Errorf("owner and repository are both required")
	}
	if !ownerPattern.MatchString(owner) || strings.HasPrefix(owner, "-") {
		return fmt.Errorf("invalid repository owner: %q", owner)
	}
	if !repoPattern.MatchString(repo) || repo == "." || repo == ".." {
		return fmt.Errorf("invalid repository name: %q", repo)
	}
	return nil
}

// ValidateSecretName checks a GitHub Actions secret name.
func ValidateSecretName(name string) error {
	if !secretPattern.MatchString(name) {
		return fmt.Errorf("invalid secret name %q (uppercase letters, digits and '_' only)", name)
	}
	if strings.HasPrefix(name, "GITHUB_") {
		return fmt.Errorf("secret name %q uses the reserved GITHUB_ prefix", name)
	}
	return nil
}

// IsValidFileName reports whether a generated file name looks like a real relative path.
func IsValidFileName(name string) bool {
	trimmed := strings.TrimSpace(name)
	for _, p := range invalidFileNamePatterns {
		if p.MatchString(trimmed) {
			return false
		}
	}
	return true
}

// SafeJoin joins a relative file name onto a base directory.
// It rejects absolute names and any name that would resolve outside base.
func SafeJoin(base, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file name cannot be empty")
	}

	cleanName := filepath.FromSlash(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if filepath.IsAbs(cleanName) {
		return "", fmt.Errorf("file name must be relative: %s", name)
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	target := filepath.Join(absBase, cleanName)

	relPath, err := filepath.Rel(absBase, target)
	if err != nil || relPath == "." || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: '%s' is outside '%s'", name, absBase)
	}

	return target, nil
}
