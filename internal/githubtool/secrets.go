package githubtool

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// SealSecret encrypts value for the repository public key (base64) using a NaCl sealed box,
// the format the Actions secrets API expects. The result is base64 encoded.
func SealSecret(publicKey, value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return "", fmt.Errorf("decoding repository public key: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("repository public key has %d bytes, want 32", len(raw))
	}

	var key [32]byte
	copy(key[:], raw)

	sealed, err := box.SealAnonymous(nil, []byte(value), &key, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("sealing secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}
