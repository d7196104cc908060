// Package sanitize cleans client-supplied names before they touch the
// filesystem or response headers.
package sanitize

import (
	"path/filepath"
	"strings"
	"unicode"

	"assetbank/internal/constants"
)

// illegalFilenameChars are forbidden across common filesystems.
const illegalFilenameChars = `<>:"|?*`

// Filename strips path components, control characters and filesystem-illegal
// characters from a raw name. Returns "" when nothing usable remains.
func Filename(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ReplaceAll(raw, "\x00", "")
	if s == "" {
		return ""
	}

	// Normalize backslashes so filepath.Base handles Windows-style paths
	// on every platform.
	s = strings.ReplaceAll(s, "\\", "/")
	s = filepath.Base(s)
	if s == "." || s == ".." {
		return ""
	}
	s = strings.TrimLeft(s, ".")
	s = replaceRunes(s, func(r rune) bool { return unicode.IsControl(r) })
	s = replaceRunes(s, func(r rune) bool { return strings.ContainsRune(illegalFilenameChars, r) })

	if len(s) > constants.MaxFilenameLength {
		s = s[:constants.MaxFilenameLength]
	}
	return s
}

// Name sanitizes a display name: full filename rules plus trimmed whitespace
// and replacement characters.
func Name(raw string) string {
	s := Filename(raw)
	return strings.Trim(s, " "+constants.FilenameReplacementChar)
}

// Extension lowercases an extension and keeps only alphanumerics, capped at
// the configured length. The leading dot is not included.
func Extension(raw string) string {
	if raw == "" {
		return ""
	}
	raw = strings.TrimLeft(strings.ToLower(raw), ".")

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > constants.MaxExtensionLength {
		s = s[:constants.MaxExtensionLength]
	}
	return s
}

// ContentDispositionFilename additionally strips characters that could break
// the header or enable injection.
func ContentDispositionFilename(raw string) string {
	s := Filename(raw)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '"', '\\', '\r', '\n':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsPathTraversal reports whether a string carries traversal indicators,
// including common percent-encoded variants.
func IsPathTraversal(s string) bool {
	if s == "" {
		return false
	}
	if strings.Contains(s, "\x00") {
		return true
	}
	if strings.ContainsAny(s, "/\\") {
		return true
	}
	if strings.Contains(s, "..") {
		return true
	}
	lower := strings.ToLower(s)
	for _, pattern := range []string{"%2f", "%5c", "%2e", "%00", "%c0%af"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func replaceRunes(s string, bad func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if bad(r) {
			b.WriteString(constants.FilenameReplacementChar)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
