package storage

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"lukechampine.com/blake3"
)

func newHasher() hash.Hash {
	return blake3.New(32, nil)
}

// Digest returns the hex blake3-256 of everything read from r.
func Digest(r io.Reader) (string, error) {
	h := newHasher()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("calculating blake3 hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	digest, err := Digest(f)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return digest, nil
}
