package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "X-Launchpad-Signature"
	SignaturePrefix = "sha256="
)

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" HMAC-SHA256 signature in constant time.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" || !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
