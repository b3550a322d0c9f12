package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// codeAlphabet excludes ambiguous characters (0/O, 1/I/L) so codes survive
// being read over the phone.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// randomCode returns n characters from the code alphabet.
func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	var b strings.Builder
	b.Grow(n)
	for _, c := range buf {
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}

// groupedCode returns groups of size chars joined by dashes, e.g. "AB2D-EF3H".
func groupedCode(groups, size int) (string, error) {
	parts := make([]string, groups)
	for i := range parts {
		p, err := randomCode(size)
		if err != nil {
			return "", err
		}
		parts[i] = p
	}
	return strings.Join(parts, "-"), nil
}

// randomToken returns a URL-safe random string, used for invite codes.
func randomToken(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashMachineID hashes an opaque device identifier before persistence.
// Machine IDs are never stored in clear.
func HashMachineID(machineID string) string {
	h := sha256.Sum256([]byte(machineID))
	return fmt.Sprintf("%x", h)
}
