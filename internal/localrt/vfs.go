// Package localrt provides a concrete, local-filesystem-backed wiring for
// the narrow VFS/Store/CommandRunner/HTTPGetter interfaces internal/leaf
// consumes (spec §6's "consumed interfaces" list). Nothing in internal/leaf
// or internal/engine depends on this package; cmd/engine wires it in so the
// module is runnable end to end rather than leaving those interfaces
// unimplemented.
package localrt

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS implements leaf.VFS against the local filesystem rooted at BuildRoot,
// with a simple prefix ignore list standing in for the teacher
// ecosystem's .gitignore-style filtering.
type FS struct {
	Root    string
	Ignores []string
}

func NewFS(root string, ignores []string) *FS {
	return &FS{Root: root, Ignores: ignores}
}

func (f *FS) BuildRoot() string { return f.Root }

func (f *FS) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(f.Root, path)
}

func (f *FS) ReadLink(ctx context.Context, path string) (string, error) {
	return os.Readlink(f.abs(path))
}

func (f *FS) Scandir(ctx context.Context, dir string) ([]fs.DirEntry, error) {
	return os.ReadDir(f.abs(dir))
}

func (f *FS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(f.abs(path))
}

// IsIgnored reports whether path matches one of the configured ignore
// patterns, tested as a literal prefix under the build root.
func (f *FS) IsIgnored(path string, isDir bool) bool {
	rel := strings.TrimPrefix(path, f.Root+string(filepath.Separator))
	for _, pat := range f.Ignores {
		if pat == "" {
			continue
		}
		if strings.HasPrefix(rel, pat) {
			return true
		}
	}
	return false
}
