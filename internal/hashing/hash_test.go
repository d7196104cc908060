package hashing

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Digest of the empty input, from the BLAKE3 reference test vectors.
const emptyDigest = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "blake3:" + strings.Repeat("ab", 32), false},
		{"empty", "", true},
		{"no_prefix", strings.Repeat("ab", 32), true},
		{"wrong_prefix", "sha256:" + strings.Repeat("ab", 32), true},
		{"too_short", "blake3:abcd", true},
		{"too_long", "blake3:" + strings.Repeat("ab", 33), true},
		{"uppercase_digest", "blake3:" + strings.Repeat("AB", 32), true},
		{"non_hex", "blake3:" + strings.Repeat("zz", 32), true},
		{"prefix_only", "blake3:", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.input)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	canonical := "blake3:" + strings.Repeat("ab", 32)

	got, err := Normalize("  BLAKE3:" + strings.Repeat("AB", 32) + "  ")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got != canonical {
		t.Errorf("Normalize = %q, want %q", got, canonical)
	}

	if _, err := Normalize("not-a-hash"); err == nil {
		t.Error("Normalize accepted garbage")
	}
}

func TestDigestRoundTrip(t *testing.T) {
	digest := strings.Repeat("0f", 32)
	got, err := Digest(Canonical(digest))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if got != digest {
		t.Errorf("Digest = %q, want %q", got, digest)
	}

	if _, err := Digest("blake3:short"); err == nil {
		t.Error("Digest accepted malformed input")
	}
}

func TestHashBytesEmpty(t *testing.T) {
	if got := HashBytes(nil); got != "blake3:"+emptyDigest {
		t.Errorf("HashBytes(nil) = %q, want %q", got, "blake3:"+emptyDigest)
	}
}

func TestHashReaderMatchesHashBytes(t *testing.T) {
	data := bytes.Repeat([]byte("asset registry test payload "), 4096)
	want := HashBytes(data)

	got, err := HashReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	if got != want {
		t.Errorf("HashReader = %q, want %q", got, want)
	}
}

func TestHashReaderRestoresPosition(t *testing.T) {
	data := []byte("position should survive hashing")
	r := bytes.NewReader(data)
	if _, err := r.Seek(5, io.SeekStart); err != nil {
		t.Fatal(err)
	}

	got, err := HashReader(r)
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	if got != HashBytes(data) {
		t.Error("HashReader did not hash from the start of the stream")
	}

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 5 {
		t.Errorf("position after hashing = %d, want 5", pos)
	}
}

func TestHashFile(t *testing.T) {
	data := []byte("file contents for hashing")
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if got != HashBytes(data) {
		t.Errorf("HashFile = %q, want %q", got, HashBytes(data))
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("HashFile succeeded on a missing file")
	}
}

func TestHashFileAsync(t *testing.T) {
	data := []byte("async hashing payload")
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	res := <-HashFileAsync(path)
	if res.Err != nil {
		t.Fatalf("HashFileAsync: %v", res.Err)
	}
	if res.Hash != HashBytes(data) {
		t.Errorf("HashFileAsync = %q, want %q", res.Hash, HashBytes(data))
	}
}
