package leaf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"

	"github.com/dagrule/engine/internal/failure"
	"github.com/dagrule/engine/internal/result"
	"github.com/dagrule/engine/internal/value"
)

// DownloadedFile fetches a content-addressed file over HTTP, verifying the
// downloaded bytes hash to the caller-declared Digest before admitting them
// to the store.
type DownloadedFile struct {
	URL    string
	Digest result.Digest
}

// LiftDownloadedFile projects url and digest out of a Snapshot-shaped host
// key value.
func LiftDownloadedFile(b *value.Bridge, key value.Value) (DownloadedFile, error) {
	url, ok := b.ProjectScalar(key, "url").(string)
	if !ok || url == "" {
		return DownloadedFile{}, failure.NewThrow("DownloadedFile key carried no url field")
	}
	fingerprint, _ := b.ProjectScalar(key, "digest_fingerprint").(string)
	size, _ := b.ProjectScalar(key, "digest_size").(int64)
	return DownloadedFile{URL: url, Digest: result.Digest{Fingerprint: fingerprint, Size: size}}, nil
}

// sizeLimitedHasher wraps a body reader so that it hashes bytes as they are
// read and aborts the instant more than limit bytes have been seen, rather
// than buffering the whole (possibly oversized) body first.
type sizeLimitedHasher struct {
	src   io.Reader
	hash  interface{ Write([]byte) (int, error) }
	limit int64
	seen  int64
}

func (s *sizeLimitedHasher) Read(p []byte) (int, error) {
	n, err := s.src.Read(p)
	if n > 0 {
		s.seen += int64(n)
		if s.seen > s.limit {
			return n, fmt.Errorf("Downloaded file was larger than expected digest")
		}
		_, _ = s.hash.Write(p[:n])
	}
	return n, err
}

// Run executes the download, per §4.D:
//  1. check the store for an already-present copy of Digest;
//  2. otherwise GET the URL, treating 4xx/5xx as a Throw;
//  3. stream the body through a size-limited hasher capped at Digest.Size;
//  4. compare the computed digest to the declared one;
//  5. store the bytes and return a single-file Snapshot.
func (d DownloadedFile) Run(ctx context.Context, http HTTPGetter, store Store) (result.Snapshot, error) {
	if _, ok, err := store.LoadFileBytes(ctx, d.Digest); err == nil && ok {
		return store.SnapshotOfOneFile(ctx, path.Base(d.URL), d.Digest, false)
	}

	status, body, err := http.Get(ctx, d.URL)
	if err != nil {
		return result.Snapshot{}, failure.NewThrow(fmt.Sprintf("fetching %s: %s", d.URL, err))
	}
	defer body.Close()

	if status >= 400 {
		kind := "Server"
		if status < 500 {
			kind = "Client"
		}
		return result.Snapshot{}, failure.NewThrow(fmt.Sprintf("%s error (%d) downloading file %s from %s", kind, status, path.Base(d.URL), d.URL))
	}

	h := sha256.New()
	limited := &sizeLimitedHasher{src: body, hash: h, limit: d.Digest.Size}
	bytes, err := io.ReadAll(limited)
	if err != nil {
		return result.Snapshot{}, failure.NewThrow(fmt.Sprintf("Downloaded file was larger than expected digest: %s", err))
	}

	got := hex.EncodeToString(h.Sum(nil))
	if got != d.Digest.Fingerprint || int64(len(bytes)) != d.Digest.Size {
		return result.Snapshot{}, failure.NewThrow(fmt.Sprintf("Wrong digest for downloaded file: want %s got %s", d.Digest.Fingerprint, got))
	}

	if _, err := store.StoreFileBytes(ctx, bytes); err != nil {
		return result.Snapshot{}, failure.NewThrow(fmt.Sprintf("storing downloaded file %s: %s", d.URL, err))
	}

	// executable bit clear per the download leaf's contract.
	return store.SnapshotOfOneFile(ctx, path.Base(d.URL), d.Digest, false)
}
