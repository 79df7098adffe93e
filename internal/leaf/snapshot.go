package leaf

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dagrule/engine/internal/failure"
	"github.com/dagrule/engine/internal/result"
	"github.com/dagrule/engine/internal/value"
)

// MatchErrorBehavior selects what Snapshot.Run does when the globs of a
// PathGlobs, taken together, match nothing: MatchError makes it throw;
// MatchIgnore and MatchWarn both return the empty snapshot, and no warning
// is emitted. Globs are not checked one by one.
type MatchErrorBehavior string

const (
	MatchIgnore MatchErrorBehavior = "ignore"
	MatchWarn   MatchErrorBehavior = "warn"
	MatchError  MatchErrorBehavior = "error"
)

// Conjunction records whether all globs, or any glob, are to match. It is
// carried in PathGlobs but Snapshot.Run does not read it.
type Conjunction string

const (
	ConjunctionAllMatch Conjunction = "all_match"
	ConjunctionAnyMatch Conjunction = "any_match"
)

// PathGlobs is the parsed form of a Snapshot's host-value key.
type PathGlobs struct {
	Globs               []string
	DescriptionOfOrigin string
	ErrorBehavior       MatchErrorBehavior
	Conjunction         Conjunction
}

// LiftPathGlobs parses a Snapshot key's host value into a typed PathGlobs,
// failing Throw on an invalid shape.
func LiftPathGlobs(b *value.Bridge, key value.Value) (PathGlobs, error) {
	globsField := b.ProjectRepeated(key, "globs", value.NewTypeId("str"))
	if len(globsField) == 0 {
		return PathGlobs{}, failure.NewThrow("PathGlobs key carried no globs field")
	}
	globs := make([]string, len(globsField))
	for i, g := range globsField {
		globs[i] = g.String()
	}

	desc, _ := b.ProjectScalar(key, "description_of_origin").(string)

	behavior := MatchIgnore
	if raw := b.ProjectScalar(key, "glob_match_error_behavior"); raw != nil {
		if m, ok := raw.(map[string]interface{}); ok {
			if v, ok := m["value"].(string); ok {
				behavior = MatchErrorBehavior(v)
			}
		}
	}
	conj := ConjunctionAnyMatch
	if raw := b.ProjectScalar(key, "conjunction"); raw != nil {
		if m, ok := raw.(map[string]interface{}); ok {
			if v, ok := m["value"].(string); ok {
				conj = Conjunction(v)
			}
		}
	}

	return PathGlobs{Globs: globs, DescriptionOfOrigin: desc, ErrorBehavior: behavior, Conjunction: conj}, nil
}

// GlobResolver is how Snapshot expansion tracks its dependencies: rather
// than walking the filesystem directly, every scandir/digest read goes
// through these callbacks, which the NodeKey dispatcher wires to request
// sub-Scandir/sub-DigestFile nodes from the memoization substrate. This is
// what makes dependency tracking on glob-matched paths observable (the
// "snapshot dependency closure" property).
type GlobResolver interface {
	Scandir(ctx context.Context, dir string) (result.DirectoryListing, error)
	ReadLink(ctx context.Context, path string) (result.LinkDest, error)
	DigestFile(ctx context.Context, path string) (result.Digest, error)
}

// Snapshot expands a PathGlobs against the VFS (through r) and materializes
// every matched file, returning a shared, content-addressed Snapshot.
type Snapshot struct {
	Globs PathGlobs
}

func (s Snapshot) Run(ctx context.Context, r GlobResolver, store Store) (result.Snapshot, error) {
	matchedFiles := map[string]bool{}
	matchedDirs := map[string]bool{}

	for _, g := range s.Globs.Globs {
		if err := expandGlob(ctx, r, g, matchedFiles, matchedDirs); err != nil {
			return result.Snapshot{}, err
		}
	}

	if len(matchedFiles) == 0 && len(matchedDirs) == 0 {
		switch s.Globs.ErrorBehavior {
		case MatchError:
			return result.Snapshot{}, failure.NewThrow(fmt.Sprintf("globs %v did not match any files", s.Globs.Globs))
		}
	}

	files := make([]string, 0, len(matchedFiles))
	for f := range matchedFiles {
		files = append(files, f)
	}
	sort.Strings(files)
	dirs := make([]string, 0, len(matchedDirs))
	for d := range matchedDirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	fileDigests := make(map[string]result.Digest, len(files))
	for _, f := range files {
		d, err := r.DigestFile(ctx, f)
		if err != nil {
			return result.Snapshot{}, err
		}
		fileDigests[f] = d
	}
	dirDigests := make(map[string]result.Digest, len(dirs))

	digest, err := store.StoreDirectory(ctx, fileDigests, dirDigests)
	if err != nil {
		return result.Snapshot{}, failure.NewThrow(fmt.Sprintf("storing snapshot directory: %s", err))
	}

	return result.Snapshot{Digest: digest, Files: files, Dirs: dirs}, nil
}

// expandGlob walks dir-by-dir from "." following glob segments, spawning a
// Scandir sub-node at every directory it descends into and a ReadLink
// sub-node at every symlink it must resolve. "**" matches zero or more
// path segments.
func expandGlob(ctx context.Context, r GlobResolver, glob string, files, dirs map[string]bool) error {
	segments := strings.Split(path.Clean(glob), "/")
	return expandSegments(ctx, r, ".", segments, files, dirs)
}

func expandSegments(ctx context.Context, r GlobResolver, dir string, segments []string, files, dirs map[string]bool) error {
	if len(segments) == 0 {
		return nil
	}
	head, rest := segments[0], segments[1:]

	if head == "**" {
		dirs[dir] = true
		if err := expandSegments(ctx, r, dir, rest, files, dirs); err != nil {
			return err
		}
		listing, err := r.Scandir(ctx, dir)
		if err != nil {
			return err
		}
		for _, e := range listing.Entries {
			if e.IsDir {
				child := path.Join(dir, e.Name)
				if err := expandSegments(ctx, r, child, segments, files, dirs); err != nil {
					return err
				}
			}
		}
		return nil
	}

	listing, err := r.Scandir(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range listing.Entries {
		matched, err := filepath.Match(head, e.Name)
		if err != nil {
			return failure.NewThrow(fmt.Sprintf("invalid glob segment %q: %s", head, err))
		}
		if !matched {
			continue
		}
		child := path.Join(dir, e.Name)
		if len(rest) == 0 {
			if e.IsDir {
				dirs[child] = true
			} else if e.IsLink {
				dest, err := r.ReadLink(ctx, child)
				if err != nil {
					return err
				}
				files[dest.Path] = true
			} else {
				files[child] = true
			}
			continue
		}
		if e.IsDir {
			if err := expandSegments(ctx, r, child, rest, files, dirs); err != nil {
				return err
			}
		}
	}
	return nil
}
