package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testRoots(t *testing.T) (*Roots, string) {
	t.Helper()
	dir := t.TempDir()
	r := &Roots{
		Models: map[string][]string{
			"checkpoints": {filepath.Join(dir, "models", "checkpoints")},
			"loras":       {filepath.Join(dir, "models", "loras")},
		},
		Input:  []string{filepath.Join(dir, "input")},
		Output: []string{filepath.Join(dir, "output")},
	}
	if err := r.EnsureRootDirs(); err != nil {
		t.Fatalf("EnsureRootDirs: %v", err)
	}
	return r, dir
}

func TestParseRoot(t *testing.T) {
	tests := []struct {
		input string
		want  RootType
		ok    bool
	}{
		{"models", RootModels, true},
		{"input", RootInput, true},
		{"output", RootOutput, true},
		{"Models", "", false},
		{"", "", false},
		{"temp", "", false},
	}
	for _, tc := range tests {
		got, ok := ParseRoot(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseRoot(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAllPrefixes(t *testing.T) {
	r, dir := testRoots(t)
	prefixes := r.AllPrefixes()
	if len(prefixes) != 4 {
		t.Fatalf("got %d prefixes, want 4", len(prefixes))
	}
	want := filepath.Join(dir, "models", "checkpoints")
	if prefixes[0] != want {
		t.Errorf("first prefix = %q, want %q (buckets sort alphabetically)", prefixes[0], want)
	}
}

func TestResolveDestination(t *testing.T) {
	r, dir := testRoots(t)

	base, subdirs, err := r.ResolveDestination([]string{"models", "checkpoints", "sd15"})
	if err != nil {
		t.Fatalf("ResolveDestination: %v", err)
	}
	if base != filepath.Join(dir, "models", "checkpoints") {
		t.Errorf("base = %q", base)
	}
	if !reflect.DeepEqual(subdirs, []string{"sd15"}) {
		t.Errorf("subdirs = %v", subdirs)
	}

	base, subdirs, err = r.ResolveDestination([]string{"input"})
	if err != nil {
		t.Fatalf("ResolveDestination(input): %v", err)
	}
	if base != filepath.Join(dir, "input") || len(subdirs) != 0 {
		t.Errorf("input destination = %q %v", base, subdirs)
	}

	for _, tags := range [][]string{
		nil,
		{"models"},
		{"models", "nonexistent"},
		{"garbage"},
	} {
		if _, _, err := r.ResolveDestination(tags); err == nil {
			t.Errorf("ResolveDestination(%v) succeeded, want error", tags)
		}
	}
}

func TestNameAndTags(t *testing.T) {
	r, dir := testRoots(t)

	name, tags := r.NameAndTags(filepath.Join(dir, "models", "checkpoints", "SD15", "model.safetensors"))
	if name != "model" {
		t.Errorf("name = %q, want %q", name, "model")
	}
	if !reflect.DeepEqual(tags, []string{"models", "checkpoints", "sd15"}) {
		t.Errorf("tags = %v", tags)
	}

	name, tags = r.NameAndTags(filepath.Join(dir, "input", "photo.png"))
	if name != "photo" || !reflect.DeepEqual(tags, []string{"input"}) {
		t.Errorf("input file: name=%q tags=%v", name, tags)
	}

	// Dotfiles keep their full basename rather than collapsing to "".
	name, _ = r.NameAndTags(filepath.Join(dir, "input", ".hidden"))
	if name != ".hidden" {
		t.Errorf("dotfile name = %q", name)
	}

	_, tags = r.NameAndTags(filepath.Join(dir, "elsewhere", "file.bin"))
	if tags != nil {
		t.Errorf("outside path produced tags %v", tags)
	}
}

func TestRelativeFilename(t *testing.T) {
	r, dir := testRoots(t)

	got := r.RelativeFilename(filepath.Join(dir, "models", "loras", "style", "a.safetensors"))
	if got != "style/a.safetensors" {
		t.Errorf("RelativeFilename = %q", got)
	}

	got = r.RelativeFilename(filepath.Join(dir, "output", "render.png"))
	if got != "render.png" {
		t.Errorf("RelativeFilename(output) = %q", got)
	}

	got = r.RelativeFilename("/nowhere/else/thing.bin")
	if got != "thing.bin" {
		t.Errorf("RelativeFilename(outside) = %q", got)
	}
}

func TestValidatePathWithinBase(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base")
	if err := os.MkdirAll(filepath.Join(base, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := ValidatePathWithinBase(filepath.Join(base, "sub", "new.bin"), base); err != nil {
		t.Errorf("inside path rejected: %v", err)
	}
	if err := ValidatePathWithinBase(filepath.Join(dir, "outside.bin"), base); err == nil {
		t.Error("outside path accepted")
	}
	if err := ValidatePathWithinBase(filepath.Join(base, "..", "escape.bin"), base); err == nil {
		t.Error("dot-dot escape accepted")
	}
}

func TestValidatePathWithinBaseSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base")
	outside := filepath.Join(dir, "outside")
	for _, d := range []string{base, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if err := ValidatePathWithinBase(filepath.Join(link, "file.bin"), base); err == nil {
		t.Error("symlinked escape accepted")
	}
}
