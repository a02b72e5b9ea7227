package fileutil

import (
	"sort"
	"strings"
)

const fence = "```"

// ParseFileBlocks splits a model reply on ``` fences into a file name to content map.
// The first line of each block is the file name and the rest is the content.
// Blocks with fewer than two lines are ignored. When valid is non-nil, blocks whose
// name it rejects are skipped. A later block with the same name replaces an earlier one.
func ParseFileBlocks(text string, valid func(string) bool) map[string]string {
	files := make(map[string]string)

	for _, block := range strings.Split(text, fence) {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}

		name := strings.TrimSpace(lines[0])
		if valid != nil && !valid(name) {
			continue
		}
		files[name] = strings.Join(lines[1:], "\n")
	}

	return files
}

// SortedNames returns the keys of a file map in sorted order.
func SortedNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
