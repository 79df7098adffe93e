package leaf

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/dagrule/engine/internal/failure"
	"github.com/dagrule/engine/internal/result"
)

// Scandir performs a single-syscall directory enumeration. No symlinks are
// expanded here; that is ReadLink's job, requested separately by the VFS
// when it walks a glob.
type Scandir struct {
	Dir string
}

func (s Scandir) FsSubject() (string, bool) { return s.Dir, true }

func (s Scandir) Run(ctx context.Context, vfs VFS) (result.DirectoryListing, error) {
	entries, err := vfs.Scandir(ctx, s.Dir)
	if err != nil {
		return result.DirectoryListing{}, failure.NewThrow(fmt.Sprintf("scanning directory %s: %s", s.Dir, err))
	}
	listing := result.DirectoryListing{Dir: s.Dir}
	for _, e := range entries {
		listing.Entries = append(listing.Entries, result.DirEntry{
			Name:   e.Name(),
			IsDir:  e.IsDir(),
			IsLink: e.Type()&fs.ModeSymlink != 0,
		})
	}
	return listing, nil
}
