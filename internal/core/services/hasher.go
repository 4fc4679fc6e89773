package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader digests everything r yields. A read error is reported as
// domain.ErrHashFailed.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrHashFailed, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile digests the file at path. Failing to open the file is a fetch
// failure; failing while reading it is a hash failure.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", domain.ErrFetchFailed, path, err)
	}
	defer f.Close()

	return HashReader(f)
}
