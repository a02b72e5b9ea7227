package security

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// MinSecretLength is the shortest API signing secret accepted.
	MinSecretLength = 32

	// MinEntropy is the lowest Shannon entropy, in bits per character, accepted for a secret.
	MinEntropy = 3.5

	// maxStepRatio is the share of neighbouring characters that may differ by exactly one.
	maxStepRatio = 0.7
)

// Substrings that mark a secret copied from an example config.
var placeholderMarkers = []string{
	"replace",
	"changeme",
	"topsecret",
	"password",
	"your-api-secret",
	"launchpad-api-secret",
}

var (
	ErrSecretPlaceholder = errors.New("secret appears to be a placeholder value")
	ErrSecretSequential  = errors.New("secret is a run of sequential characters")
)

// ValidateSecret checks the API signing secret used for request signatures.
// It must be long enough, not a placeholder, not a sequential run and random enough.
func ValidateSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("secret too short (minimum %d characters, got %d)", MinSecretLength, len(secret))
	}

	lower := strings.ToLower(secret)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return ErrSecretPlaceholder
		}
	}

	if isSequential(secret) {
		return ErrSecretSequential
	}

	if h := shannonEntropy(secret); h < MinEntropy {
		return fmt.Errorf("secret has insufficient entropy (%.2f < %.2f), use a random value", h, MinEntropy)
	}

	return nil
}

// shannonEntropy returns the entropy of s in bits per character.
func shannonEntropy(s string) float64 {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0
	}

	counts := make(map[rune]int, len(runes))
	for _, r := range runes {
		counts[r]++
	}

	n := float64(len(runes))
	var h float64
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// isSequential reports whether most neighbouring bytes of s step up or down by one,
// as in "12345678" or "zyxwvu".
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	steps := 0
	for i := 1; i < len(s); i++ {
		if d := int(s[i]) - int(s[i-1]); d == 1 || d == -1 {
			steps++
		}
	}
	return float64(steps) > float64(len(s))*maxStepRatio
}
