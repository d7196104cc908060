// Package hashing computes and validates the canonical content identity
// used across the asset registry: "blake3:" followed by the lowercase
// 64-character hex digest of the bytes.
package hashing

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	"assetbank/internal/constants"
)

// Canonical builds the canonical hash form from a raw hex digest.
func Canonical(hexDigest string) string {
	return constants.HashPrefix + strings.ToLower(hexDigest)
}

// Digest extracts the hex digest from a canonical hash string.
// Returns an error if the string is not in canonical form.
func Digest(canonical string) (string, error) {
	if err := Validate(canonical); err != nil {
		return "", err
	}
	return canonical[len(constants.HashPrefix):], nil
}

// Validate checks that s is a canonical hash: "blake3:" + 64 lowercase hex.
func Validate(s string) error {
	if !strings.HasPrefix(s, constants.HashPrefix) {
		return fmt.Errorf("hash must start with %q", constants.HashPrefix)
	}
	digest := s[len(constants.HashPrefix):]
	if len(digest) != constants.HashHexLength {
		return fmt.Errorf("hash digest must be %d hex characters, got %d", constants.HashHexLength, len(digest))
	}
	for _, c := range digest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("hash digest must be lowercase hex")
		}
	}
	return nil
}

// Normalize lowercases and trims a client-supplied hash and validates it.
func Normalize(s string) (string, error) {
	canonical := strings.ToLower(strings.TrimSpace(s))
	if err := Validate(canonical); err != nil {
		return "", err
	}
	return canonical, nil
}

// HashReader streams r through BLAKE3 in fixed-size chunks and returns the
// canonical hash. If r is an io.Seeker its position is rewound to the start
// before hashing and restored afterwards.
func HashReader(r io.Reader) (string, error) {
	var origPos int64
	seeker, seekable := r.(io.Seeker)
	if seekable {
		pos, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return "", err
		}
		origPos = pos
		if pos != 0 {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return "", err
			}
		}
	}

	hasher := blake3.New()
	buf := make([]byte, constants.HashChunkSize)
	if _, err := io.CopyBuffer(hasher, r, buf); err != nil {
		return "", err
	}

	if seekable && origPos != 0 {
		if _, err := seeker.Seek(origPos, io.SeekStart); err != nil {
			return "", err
		}
	}
	return Canonical(hex.EncodeToString(hasher.Sum(nil))), nil
}

// HashFile opens path read-only and returns the canonical hash of its contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return HashReader(f)
}

// HashBytes returns the canonical hash of an in-memory buffer.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return Canonical(hex.EncodeToString(sum[:]))
}
