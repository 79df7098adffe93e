package localrt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dagrule/engine/internal/result"
)

// Store implements leaf.Store as a content-addressed blob store on the
// local filesystem, one file per fingerprint, the same sharding-free layout
// the teacher's example repos use for their on-disk caches.
type Store struct {
	Dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) blobPath(fingerprint string) string {
	return filepath.Join(s.Dir, fingerprint)
}

func digestOf(b []byte) result.Digest {
	sum := sha256.Sum256(b)
	return result.Digest{Fingerprint: hex.EncodeToString(sum[:]), Size: int64(len(b))}
}

func (s *Store) LoadFileBytes(ctx context.Context, d result.Digest) ([]byte, bool, error) {
	b, err := os.ReadFile(s.blobPath(d.Fingerprint))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) StoreFileBytes(ctx context.Context, bytes []byte) (result.Digest, error) {
	d := digestOf(bytes)
	path := s.blobPath(d.Fingerprint)
	if _, err := os.Stat(path); err == nil {
		return d, nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bytes, 0o644); err != nil {
		return result.Digest{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return result.Digest{}, err
	}
	return d, nil
}

// SnapshotOfOneFile builds a single-file Snapshot whose digest is the
// content digest passed in — no directory-tree hashing, since one file has
// no tree structure to encode.
func (s *Store) SnapshotOfOneFile(ctx context.Context, path string, d result.Digest, executable bool) (result.Snapshot, error) {
	return result.Snapshot{Digest: d, Files: []string{path}}, nil
}

// StoreDirectory builds a Snapshot digest for a directory by hashing the
// sorted "name:fingerprint" listing of its immediate file and subdirectory
// digests — a flat stand-in for the original's recursive Directory proto
// encoding, sufficient for content-addressing identity.
func (s *Store) StoreDirectory(ctx context.Context, files, dirs map[string]result.Digest) (result.Digest, error) {
	names := make([]string, 0, len(files)+len(dirs))
	for n := range files {
		names = append(names, "f:"+n)
	}
	for n := range dirs {
		names = append(names, "d:"+n)
	}
	sort.Strings(names)

	var buf []byte
	for _, n := range names {
		var d result.Digest
		if n[0] == 'f' {
			d = files[n[2:]]
		} else {
			d = dirs[n[2:]]
		}
		buf = append(buf, []byte(fmt.Sprintf("%s:%s:%d\n", n, d.Fingerprint, d.Size))...)
	}
	return digestOf(buf), nil
}
