package sanitize

import (
	"strings"
	"testing"

	"assetbank/internal/constants"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Normal filenames
		{"normal_file", "model.safetensors", "model.safetensors"},
		{"normal_with_spaces", "my model.ckpt", "my model.ckpt"},
		{"normal_with_hyphens", "sd-v1-5.safetensors", "sd-v1-5.safetensors"},
		{"no_extension", "README", "README"},
		{"multiple_dots", "archive.tar.gz", "archive.tar.gz"},

		// Path traversal
		{"unix_path_traversal", "../../../etc/passwd", "passwd"},
		{"windows_path_traversal", "..\\..\\..\\windows\\system32", "system32"},
		{"mixed_separators", "..\\../..\\../etc/passwd", "passwd"},
		{"absolute_unix_path", "/etc/passwd", "passwd"},
		{"absolute_windows_path", "C:\\Windows\\system32\\config", "config"},

		// Null bytes
		{"null_byte_in_name", "file\x00evil.txt", "fileevil.txt"},
		{"only_null_bytes", "\x00\x00\x00", ""},

		// Control characters
		{"control_chars", "file\x01\x02\x03.txt", "file___.txt"},
		{"tab_in_name", "file\tname.txt", "file_name.txt"},
		{"newline_in_name", "file\nname.txt", "file_name.txt"},

		// Filesystem-illegal characters
		{"angle_brackets", "file<name>.txt", "file_name_.txt"},
		{"colon", "file:name.txt", "file_name.txt"},
		{"pipe", "file|name.txt", "file_name.txt"},
		{"all_illegal_chars", "<>:\"|?*.txt", "_______.txt"},

		// Leading dots
		{"hidden_file", ".hidden", "hidden"},
		{"double_dot_prefix", "..hidden", "hidden"},
		{"dots_only", "...", ""},
		{"single_dot", ".", ""},

		// Empty and edge cases
		{"empty_string", "", ""},
		{"only_spaces", "   ", "   "},

		// Length truncation
		{"max_length", strings.Repeat("a", constants.MaxFilenameLength), strings.Repeat("a", constants.MaxFilenameLength)},
		{"over_max_length", strings.Repeat("a", constants.MaxFilenameLength+100), strings.Repeat("a", constants.MaxFilenameLength)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := Filename(tc.input)
			if result != tc.expected {
				t.Errorf("Filename(%q) = %q, want %q", tc.input, result, tc.expected)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "my model", "my model"},
		{"trims_spaces", "  my model  ", "my model"},
		{"trims_replacements", "\x01model\x02", "model"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Name(tc.input); got != tc.expected {
				t.Errorf("Name(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "safetensors", "safetensors"},
		{"leading_dot", ".ckpt", "ckpt"},
		{"uppercase", ".SAFETENSORS", "safetensors"},
		{"strips_specials", ".t-a_r.gz", "targz"},
		{"numeric", ".mp4", "mp4"},
		{"empty", "", ""},
		{"too_long", strings.Repeat("x", constants.MaxExtensionLength+5), strings.Repeat("x", constants.MaxExtensionLength)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Extension(tc.input); got != tc.expected {
				t.Errorf("Extension(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestContentDispositionFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "model.safetensors", "model.safetensors"},
		{"strips_quotes", `mo"del.txt`, "mo_del.txt"},
		{"strips_crlf", "evil\r\nheader.txt", "evil__header.txt"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContentDispositionFilename(tc.input); got != tc.expected {
				t.Errorf("ContentDispositionFilename(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestIsPathTraversal(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"model.safetensors", false},
		{"", false},
		{"../evil", true},
		{"a/b", true},
		{"a\\b", true},
		{"a\x00b", true},
		{"%2fetc", true},
		{"%2E%2E", true},
	}
	for _, tc := range tests {
		if got := IsPathTraversal(tc.input); got != tc.expected {
			t.Errorf("IsPathTraversal(%q) = %v, want %v", tc.input, got, tc.expected)
		}
	}
}
