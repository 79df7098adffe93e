package leaf

import (
	"context"
	"fmt"

	"github.com/dagrule/engine/internal/failure"
	"github.com/dagrule/engine/internal/result"
)

// ReadLink performs a non-recursive symlink read.
type ReadLink struct {
	Path string
}

func (r ReadLink) FsSubject() (string, bool) { return r.Path, true }

func (r ReadLink) Run(ctx context.Context, vfs VFS) (result.LinkDest, error) {
	dest, err := vfs.ReadLink(ctx, r.Path)
	if err != nil {
		return result.LinkDest{}, failure.NewThrow(fmt.Sprintf("reading link %s: %s", r.Path, err))
	}
	return result.LinkDest{Path: dest}, nil
}
