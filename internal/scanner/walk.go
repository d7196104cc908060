// Package scanner keeps the database in agreement with the filesystem: a
// per-root reconciler, a stub discovery walk, an enrichment pass and the
// supervisor that sequences them in a background goroutine.
package scanner

import (
	"io/fs"
	"path/filepath"

	"assetbank/internal/config"
)

// ListFilesRecursively returns every regular file under baseDir as an
// absolute path. Unreadable directories are skipped, not fatal.
func ListFilesRecursively(baseDir string) []string {
	var out []string
	filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			if abs, err := filepath.Abs(path); err == nil {
				out = append(out, abs)
			}
		}
		return nil
	})
	return out
}

// CollectPaths lists every file under the prefixes of the given roots.
func CollectPaths(roots *config.Roots, rootTypes []config.RootType) []string {
	var out []string
	for _, rt := range rootTypes {
		for _, prefix := range roots.PrefixesFor(rt) {
			out = append(out, ListFilesRecursively(prefix)...)
		}
	}
	return out
}
