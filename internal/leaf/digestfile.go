package leaf

import (
	"context"
	"fmt"

	"github.com/dagrule/engine/internal/failure"
	"github.com/dagrule/engine/internal/result"
)

// DigestFile reads a file's bytes through the VFS and stores them in the
// content-addressable store, returning its Digest. The store may stream
// large files rather than buffering them whole.
type DigestFile struct {
	Path string
}

func (d DigestFile) FsSubject() (string, bool) { return d.Path, true }

func (d DigestFile) Run(ctx context.Context, vfs VFS, store Store) (result.Digest, error) {
	bytes, err := vfs.ReadFile(ctx, d.Path)
	if err != nil {
		return result.Digest{}, failure.NewThrow(fmt.Sprintf("reading file %s: %s", d.Path, err))
	}
	digest, err := store.StoreFileBytes(ctx, bytes)
	if err != nil {
		return result.Digest{}, failure.NewThrow(fmt.Sprintf("storing file %s: %s", d.Path, err))
	}
	return digest, nil
}
