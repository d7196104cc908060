package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RootType identifies a top-level bucket of scanned directories.
type RootType string

const (
	RootModels RootType = "models"
	RootInput  RootType = "input"
	RootOutput RootType = "output"
)

// AllRoots lists every root type in scan order.
var AllRoots = []RootType{RootModels, RootInput, RootOutput}

// ParseRoot validates a root name from a request.
func ParseRoot(s string) (RootType, bool) {
	switch RootType(s) {
	case RootModels, RootInput, RootOutput:
		return RootType(s), true
	}
	return "", false
}

// PrefixesFor returns the absolute base directories belonging to a root.
func (r *Roots) PrefixesFor(root RootType) []string {
	var out []string
	switch root {
	case RootModels:
		buckets := make([]string, 0, len(r.Models))
		for b := range r.Models {
			buckets = append(buckets, b)
		}
		sort.Strings(buckets)
		for _, b := range buckets {
			for _, p := range r.Models[b] {
				out = append(out, absClean(p))
			}
		}
	case RootInput:
		for _, p := range r.Input {
			out = append(out, absClean(p))
		}
	case RootOutput:
		for _, p := range r.Output {
			out = append(out, absClean(p))
		}
	}
	return out
}

// AllPrefixes returns the base directories of every configured root.
func (r *Roots) AllPrefixes() []string {
	var out []string
	for _, root := range AllRoots {
		out = append(out, r.PrefixesFor(root)...)
	}
	return out
}

// ResolveDestination maps upload tags to a base directory plus subdirectories
// under it. The first tag names the root; for models the second tag names the
// bucket and any further tags become subdirectories.
func (r *Roots) ResolveDestination(tags []string) (base string, subdirs []string, err error) {
	if len(tags) == 0 {
		return "", nil, fmt.Errorf("at least one root tag is required")
	}
	switch RootType(tags[0]) {
	case RootModels:
		if len(tags) < 2 {
			return "", nil, fmt.Errorf("models uploads require a category tag")
		}
		bases, ok := r.Models[tags[1]]
		if !ok || len(bases) == 0 {
			return "", nil, fmt.Errorf("unknown models category %q", tags[1])
		}
		return absClean(bases[0]), tags[2:], nil
	case RootInput:
		if len(r.Input) == 0 {
			return "", nil, fmt.Errorf("no input directory configured")
		}
		return absClean(r.Input[0]), tags[1:], nil
	case RootOutput:
		if len(r.Output) == 0 {
			return "", nil, fmt.Errorf("no output directory configured")
		}
		return absClean(r.Output[0]), tags[1:], nil
	}
	return "", nil, fmt.Errorf("unknown root tag %q", tags[0])
}

// NameAndTags derives a reference name and automatic tags from an absolute
// file path. Models paths yield ["models", <bucket>] plus one tag per
// intermediate directory; input and output paths yield their root tag.
func (r *Roots) NameAndTags(absPath string) (string, []string) {
	name := strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	if name == "" {
		name = filepath.Base(absPath)
	}

	if bucket, base, ok := r.modelsBucketFor(absPath); ok {
		tags := []string{string(RootModels), bucket}
		rel, err := filepath.Rel(base, absPath)
		if err == nil {
			parts := strings.Split(filepath.Dir(rel), string(filepath.Separator))
			for _, part := range parts {
				if part != "" && part != "." {
					tags = append(tags, strings.ToLower(part))
				}
			}
		}
		return name, tags
	}
	for _, root := range []RootType{RootInput, RootOutput} {
		for _, p := range r.PrefixesFor(root) {
			if pathUnder(absPath, p) {
				return name, []string{string(root)}
			}
		}
	}
	return name, nil
}

// RelativeFilename returns absPath relative to its owning base directory, or
// the bare filename when the path is outside every configured root.
func (r *Roots) RelativeFilename(absPath string) string {
	if _, base, ok := r.modelsBucketFor(absPath); ok {
		if rel, err := filepath.Rel(base, absPath); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	for _, root := range []RootType{RootInput, RootOutput} {
		for _, p := range r.PrefixesFor(root) {
			if pathUnder(absPath, p) {
				if rel, err := filepath.Rel(p, absPath); err == nil {
					return filepath.ToSlash(rel)
				}
			}
		}
	}
	return filepath.Base(absPath)
}

func (r *Roots) modelsBucketFor(absPath string) (bucket, base string, ok bool) {
	buckets := make([]string, 0, len(r.Models))
	for b := range r.Models {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	for _, b := range buckets {
		for _, p := range r.Models[b] {
			abs := absClean(p)
			if pathUnder(absPath, abs) {
				return b, abs, true
			}
		}
	}
	return "", "", false
}

// ValidatePathWithinBase rejects paths that escape base after symlink
// resolution. Byte-wise prefix plus separator match, per the filesystem
// contract.
func ValidatePathWithinBase(absPath, base string) error {
	resolvedBase, err := filepath.EvalSymlinks(absClean(base))
	if err != nil {
		resolvedBase = absClean(base)
	}
	// The leaf may not exist yet; resolve its parent instead.
	dir := filepath.Dir(absPath)
	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		resolvedDir = dir
	}
	candidate := filepath.Join(resolvedDir, filepath.Base(absPath))
	if candidate != resolvedBase && !pathUnder(candidate, resolvedBase) {
		return fmt.Errorf("path %q escapes base directory %q", absPath, base)
	}
	return nil
}

func pathUnder(path, base string) bool {
	base = strings.TrimSuffix(base, string(filepath.Separator))
	return strings.HasPrefix(path, base+string(filepath.Separator))
}

func absClean(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// EnsureRootDirs creates every configured base directory that is absent.
func (r *Roots) EnsureRootDirs() error {
	for _, p := range r.AllPrefixes() {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}
