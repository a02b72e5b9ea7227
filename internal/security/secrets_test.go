package security

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"strong random secret", "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS", false},
		{"base64-like secret", "dGhpcyBpcyBhIHZlcnkgbG9uZyBzZWNyZXQgd2l0aA==", false},
		{"symbols", "Xk9#mP2$vL7@qR4!wN8%zT3^bY6&cF1*", false},

		{"empty string", "", true},
		{"31 chars", "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8q", true},
		{"contains replace", "please-replace-this-with-a-real-api-signing-key", true},
		{"contains password", "my-very-long-password-for-the-launchpad-api", true},
		{"example value", "your-api-secret-min-32-chars-xyz", true},
		{"all same character", strings.Repeat("a", 40), true},
		{"repeated pattern", strings.Repeat("abc", 16), true},
		{"digits only", "12345678901234567890123456789012", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecret(tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSecret_Sentinels(t *testing.T) {
	if err := ValidateSecret("changeme-changeme-changeme-changeme"); !errors.Is(err, ErrSecretPlaceholder) {
		t.Errorf("Expected ErrSecretPlaceholder, got %v", err)
	}

	sequential := "abcdefghijklmnopqrstuvwxyz0123456789"
	if err := ValidateSecret(sequential); !errors.Is(err, ErrSecretSequential) {
		t.Errorf("Expected ErrSecretSequential, got %v", err)
	}
}

func TestShannonEntropy(t *testing.T) {
	tests := []struct {
		input    string
		min, max float64
	}{
		{"", 0, 0},
		{"aaaaaaa", 0, 0},
		{"ababababab", 1, 1},
		{"abcdefghij", 3, 4},
		{"kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS", 4, 6},
	}

	for _, tt := range tests {
		h := shannonEntropy(tt.input)
		if h < tt.min || h > tt.max {
			t.Errorf("shannonEntropy(%q) = %.2f, want between %.2f and %.2f", tt.input, h, tt.min, tt.max)
		}
	}
}

func TestIsSequential(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"123456789", true},
		{"987654321", true},
		{"1a2b3c4d5e", false},
		{"kJ8mN2pQ5t", false},
		{"123", false},
	}

	for _, tt := range tests {
		if got := isSequential(tt.input); got != tt.want {
			t.Errorf("isSequential(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
