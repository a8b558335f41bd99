// verify.go - SHA256 verification for downloaded packages.
package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// VerifyChecksum computes the SHA256 checksum of a file and compares it
// to the expected value, ignoring case and surrounding whitespace.
func VerifyChecksum(filePath string, expectedSum string) error {
	computed, err := ComputeChecksum(filePath)
	if err != nil {
		return err
	}

	expected := normalize(expectedSum)
	if computed != expected {
		return &ChecksumMismatchError{
			Expected: expected,
			Computed: computed,
		}
	}
	return nil
}

// ChecksumMismatchError is returned when the computed checksum doesn't match expected.
type ChecksumMismatchError struct {
	Expected string
	Computed string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Computed)
}

// ComputeChecksum returns the lowercase hex SHA256 of a file.
func ComputeChecksum(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("compute checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func normalize(sum string) string {
	return strings.ToLower(strings.TrimSpace(sum))
}
