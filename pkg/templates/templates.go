// Package templates renders the text templates launchpad sends to GitHub and to language models.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Template names
const (
	ReleaseNotes    = "release-notes"
	DeploymentIssue = "deployment-issue"
	DesignReview    = "design-review"
	CodeReview      = "code-review"
	SecurityReview  = "security-review"
)

const extension = ".tmpl"

//go:embed files/*.tmpl
var builtin embed.FS

var known = map[string]bool{
	ReleaseNotes:    true,
	DeploymentIssue: true,
	DesignReview:    true,
	CodeReview:      true,
	SecurityReview:  true,
}

// GetTemplatePaths returns the on-disk override locations for a template.
func GetTemplatePaths(templateName string) []string {
	filename := templateName + extension
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join(".", "config", "templates", filename),
		filepath.Join("/etc", "launchpad", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name.
// Templates are loaded in the following order:
// 1. ./templates/<name>.tmpl
// 2. ./config/templates/<name>.tmpl
// 3. /etc/launchpad/templates/<name>.tmpl
// 4. the copy compiled into the binary
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, path := range GetTemplatePaths(name) {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	content, err := builtin.ReadFile("files/" + name + extension)
	if err != nil {
		return "", fmt.Errorf("template file not found: %s: %w", name, err)
	}
	return string(content), nil
}

// Render executes the named template with text/template.
//
// Example:
//
//	notes, err := Render(ReleaseNotes, struct {
//	    ProjectName string
//	    Summary     string
//	    Files       []string
//	}{"shop", "A small shop", []string{"Dockerfile"}})
func Render(templateName string, data any) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(templateName).Option("missingkey=error").Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", templateName, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	return known[name]
}
