// Package leaf implements the cacheable primitive operations: DigestFile,
// ReadLink, Scandir, Snapshot, DownloadedFile, and MultiPlatformExecuteProcess.
// Each is grounded on the original engine's nodes.rs WrappedNode impls,
// with the external services it needs (VFS, store, HTTP client, command
// runner) expressed as narrow consumed interfaces per spec §6.
package leaf

import (
	"context"
	"io/fs"

	"github.com/dagrule/engine/internal/result"
)

// VFS is the filesystem abstraction the engine consumes. Its engine-side
// implementation routes scandir/read_link through Scandir/ReadLink node
// requests so directory-content dependencies are tracked by the substrate.
type VFS interface {
	ReadLink(ctx context.Context, path string) (string, error)
	Scandir(ctx context.Context, dir string) ([]fs.DirEntry, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	IsIgnored(path string, isDir bool) bool
	BuildRoot() string
}

// Store is the content-addressable store the engine consumes.
type Store interface {
	LoadFileBytes(ctx context.Context, d result.Digest) ([]byte, bool, error)
	StoreFileBytes(ctx context.Context, bytes []byte) (result.Digest, error)
	SnapshotOfOneFile(ctx context.Context, path string, d result.Digest, executable bool) (result.Snapshot, error)
	StoreDirectory(ctx context.Context, files, dirs map[string]result.Digest) (result.Digest, error)
}

// CommandRunner is the process execution backend the engine consumes.
type CommandRunner interface {
	ExtractCompatibleRequest(req *MultiPlatformExecuteProcess) (*SingleProcess, bool)
	Run(ctx context.Context, req *SingleProcess) (result.ProcessResult, error)
}

// HTTPGetter is the narrow HTTP surface DownloadedFile consumes.
type HTTPGetter interface {
	Get(ctx context.Context, url string) (status int, body ReadCloserLen, err error)
}

// ReadCloserLen is a plain Read/Close pair for a response body. It reports
// no content length, so an oversized response is only detected while it is
// streamed.
type ReadCloserLen interface {
	Read(p []byte) (int, error)
	Close() error
}
