package engine

import (
	"context"
	"strings"

	"github.com/dagrule/engine/internal/leaf"
	"github.com/dagrule/engine/internal/result"
)

// NodeKey is the closed sum type over every schedulable work item: Select,
// Task, and the leaf catalog (DigestFile, ReadLink, Scandir, Snapshot,
// DownloadedFile, MultiPlatformExecuteProcess). Each variant's CacheKey is
// also its memoization identity (§3, §4.G).
//
// Every variant is uniformly pointer-boxed (see DESIGN.md's "always box vs.
// sometimes box" note) rather than splitting small leaf nodes out as values:
// every leaf access already goes through substrateGlobResolver's interface
// calls, so there is no allocation-free path to preserve.
type NodeKey interface {
	isNodeKey()
	CacheKey() string
	Cacheable() bool
	// FsSubject reports the path a filesystem watch is registered against
	// before running this node, per §4.G's preflight. The path is either
	// absolute or relative to the build root; the substrate's preflight
	// resolves a relative one against VFS.BuildRoot().
	FsSubject() (string, bool)
	// UserFacingName is what workunit instrumentation reports as this
	// node's display name (§4.I); empty means "no display name".
	UserFacingName() string
	// Kind names this variant ("Select", "Task", "DigestFile", ...) for
	// workunit/metrics labeling (§4.I) without a type switch over the
	// variants; each variant's own Run method does its dispatch.
	Kind() string
	Run(ctx context.Context, rt *Runtime) (result.NodeResult, error)
}

// --- DigestFile ---

type DigestFileNode struct{ leaf.DigestFile }

func NewDigestFileNode(path string) *DigestFileNode { return &DigestFileNode{leaf.DigestFile{Path: path}} }

func (n *DigestFileNode) isNodeKey()                {}
func (n *DigestFileNode) Cacheable() bool           { return true }
func (n *DigestFileNode) FsSubject() (string, bool) { return n.DigestFile.FsSubject() }
func (n *DigestFileNode) UserFacingName() string    { return "" }
func (n *DigestFileNode) Kind() string              { return "DigestFile" }
func (n *DigestFileNode) CacheKey() string          { return "DigestFile(" + n.Path + ")" }
func (n *DigestFileNode) Run(ctx context.Context, rt *Runtime) (result.NodeResult, error) {
	d, err := n.DigestFile.Run(ctx, rt.VFS, rt.Store)
	if err != nil {
		return result.NodeResult{}, err
	}
	return result.OfDigest(d), nil
}

// --- ReadLink ---

type ReadLinkNode struct{ leaf.ReadLink }

func NewReadLinkNode(path string) *ReadLinkNode { return &ReadLinkNode{leaf.ReadLink{Path: path}} }

func (n *ReadLinkNode) isNodeKey()                {}
func (n *ReadLinkNode) Cacheable() bool           { return true }
func (n *ReadLinkNode) FsSubject() (string, bool) { return n.ReadLink.FsSubject() }
func (n *ReadLinkNode) UserFacingName() string    { return "" }
func (n *ReadLinkNode) Kind() string              { return "ReadLink" }
func (n *ReadLinkNode) CacheKey() string          { return "ReadLink(" + n.Path + ")" }
func (n *ReadLinkNode) Run(ctx context.Context, rt *Runtime) (result.NodeResult, error) {
	l, err := n.ReadLink.Run(ctx, rt.VFS)
	if err != nil {
		return result.NodeResult{}, err
	}
	return result.OfLinkDest(l), nil
}

// --- Scandir ---

type ScandirNode struct{ leaf.Scandir }

func NewScandirNode(dir string) *ScandirNode { return &ScandirNode{leaf.Scandir{Dir: dir}} }

func (n *ScandirNode) isNodeKey()                {}
func (n *ScandirNode) Cacheable() bool           { return true }
func (n *ScandirNode) FsSubject() (string, bool) { return n.Scandir.FsSubject() }
func (n *ScandirNode) UserFacingName() string    { return "" }
func (n *ScandirNode) Kind() string              { return "Scandir" }
func (n *ScandirNode) CacheKey() string          { return "Scandir(" + n.Dir + ")" }
func (n *ScandirNode) Run(ctx context.Context, rt *Runtime) (result.NodeResult, error) {
	d, err := n.Scandir.Run(ctx, rt.VFS)
	if err != nil {
		return result.NodeResult{}, err
	}
	return result.OfDirectoryListing(d), nil
}

// --- Snapshot ---

type SnapshotNode struct{ leaf.Snapshot }

func NewSnapshotNode(globs leaf.PathGlobs) *SnapshotNode { return &SnapshotNode{leaf.Snapshot{Globs: globs}} }

func (n *SnapshotNode) isNodeKey()                {}
func (n *SnapshotNode) Cacheable() bool           { return true }
func (n *SnapshotNode) FsSubject() (string, bool) { return "", false }
func (n *SnapshotNode) UserFacingName() string    { return "Snapshot(" + strings.Join(n.Globs.Globs, ",") + ")" }
func (n *SnapshotNode) Kind() string              { return "Snapshot" }
func (n *SnapshotNode) CacheKey() string          { return "Snapshot(" + strings.Join(n.Globs.Globs, ",") + ")" }
func (n *SnapshotNode) Run(ctx context.Context, rt *Runtime) (result.NodeResult, error) {
	resolver := &substrateGlobResolver{rt: rt}
	s, err := n.Snapshot.Run(ctx, resolver, rt.Store)
	if err != nil {
		return result.NodeResult{}, err
	}
	return result.OfSnapshot(s), nil
}

// substrateGlobResolver implements leaf.GlobResolver by routing every
// scandir/readlink/digest access through the memoization substrate as a
// sub-node request, which is what makes a Snapshot's dependencies on
// directory contents observable (testable property 4).
type substrateGlobResolver struct{ rt *Runtime }

func (g *substrateGlobResolver) Scandir(ctx context.Context, dir string) (result.DirectoryListing, error) {
	res, err := g.rt.Substrate.Get(ctx, NewScandirNode(dir))
	if err != nil {
		return result.DirectoryListing{}, err
	}
	return res.DirectoryListing, nil
}

func (g *substrateGlobResolver) ReadLink(ctx context.Context, path string) (result.LinkDest, error) {
	res, err := g.rt.Substrate.Get(ctx, NewReadLinkNode(path))
	if err != nil {
		return result.LinkDest{}, err
	}
	return res.LinkDest, nil
}

func (g *substrateGlobResolver) DigestFile(ctx context.Context, path string) (result.Digest, error) {
	res, err := g.rt.Substrate.Get(ctx, NewDigestFileNode(path))
	if err != nil {
		return result.Digest{}, err
	}
	return res.Digest, nil
}

// --- DownloadedFile ---

type DownloadedFileNode struct{ leaf.DownloadedFile }

func NewDownloadedFileNode(d leaf.DownloadedFile) *DownloadedFileNode { return &DownloadedFileNode{d} }

func (n *DownloadedFileNode) isNodeKey()                {}
func (n *DownloadedFileNode) Cacheable() bool           { return true }
func (n *DownloadedFileNode) FsSubject() (string, bool) { return "", false }
func (n *DownloadedFileNode) UserFacingName() string    { return "" }
func (n *DownloadedFileNode) Kind() string              { return "DownloadedFile" }
func (n *DownloadedFileNode) CacheKey() string {
	return "DownloadedFile(" + n.URL + ";" + n.Digest.Fingerprint + ")"
}
func (n *DownloadedFileNode) Run(ctx context.Context, rt *Runtime) (result.NodeResult, error) {
	s, err := n.DownloadedFile.Run(ctx, rt.HTTP, rt.Store)
	if err != nil {
		return result.NodeResult{}, err
	}
	return result.OfSnapshot(s), nil
}

// --- MultiPlatformExecuteProcess ---

type ProcessNode struct{ *leaf.MultiPlatformExecuteProcess }

func NewProcessNode(p *leaf.MultiPlatformExecuteProcess) *ProcessNode { return &ProcessNode{p} }

func (n *ProcessNode) isNodeKey()                {}
func (n *ProcessNode) Cacheable() bool           { return true }
func (n *ProcessNode) FsSubject() (string, bool) { return "", false }
func (n *ProcessNode) UserFacingName() string {
	procs := n.Table.Processes()
	if len(procs) == 0 {
		return ""
	}
	return procs[0].Description
}
func (n *ProcessNode) Kind() string { return "MultiPlatformExecuteProcess" }
func (n *ProcessNode) CacheKey() string {
	return "Process(" + strings.Join(n.Table.Pairs(), ",") + ")"
}
func (n *ProcessNode) Run(ctx context.Context, rt *Runtime) (result.NodeResult, error) {
	p, err := n.MultiPlatformExecuteProcess.Run(ctx, rt.Runner)
	if err != nil {
		return result.NodeResult{}, err
	}
	return result.OfProcess(p), nil
}
