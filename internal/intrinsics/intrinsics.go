// Package intrinsics registers the engine's built-in leaf-node product
// types (DigestFile, ReadLink, Scandir, Snapshot, DownloadedFile,
// MultiPlatformExecuteProcess) as engine.IntrinsicFunc handlers, so that a
// rule graph's Inner(Intrinsic) entries for these products resolve to a
// concrete node request rather than needing a user-authored Task. This is
// the wiring step spec §4.E leaves to "engine construction" — performed
// here once, by cmd/engine, rather than duplicated at every call site.
package intrinsics

import (
	"context"

	"github.com/dagrule/engine/internal/engine"
	"github.com/dagrule/engine/internal/leaf"
	"github.com/dagrule/engine/internal/result"
	"github.com/dagrule/engine/internal/value"
)

// RegisterAll installs every built-in intrinsic onto rt. The process
// intrinsic lifts its Process value itself, using rt's host Bridge like the
// rest of the intrinsics.
func RegisterAll(rt *engine.Runtime) {
	rt.RegisterIntrinsic(value.NewTypeId("Digest"), digestFileIntrinsic)
	rt.RegisterIntrinsic(value.NewTypeId("LinkDest"), readLinkIntrinsic)
	rt.RegisterIntrinsic(value.NewTypeId("DirectoryListing"), scandirIntrinsic)
	rt.RegisterIntrinsic(value.NewTypeId("Snapshot"), snapshotIntrinsic)
	rt.RegisterIntrinsic(value.NewTypeId("DownloadedFile"), downloadedFileIntrinsic)
	rt.RegisterIntrinsic(value.NewTypeId("ProcessResult"), processIntrinsic)
}

func digestFileIntrinsic(ctx context.Context, inputs []value.Value, rt *engine.Runtime) (result.NodeResult, error) {
	path, err := requireString(rt, inputs, "path")
	if err != nil {
		return result.NodeResult{}, err
	}
	return rt.Substrate.Get(ctx, engine.NewDigestFileNode(path))
}

func readLinkIntrinsic(ctx context.Context, inputs []value.Value, rt *engine.Runtime) (result.NodeResult, error) {
	path, err := requireString(rt, inputs, "path")
	if err != nil {
		return result.NodeResult{}, err
	}
	return rt.Substrate.Get(ctx, engine.NewReadLinkNode(path))
}

func scandirIntrinsic(ctx context.Context, inputs []value.Value, rt *engine.Runtime) (result.NodeResult, error) {
	dir, err := requireString(rt, inputs, "dir")
	if err != nil {
		return result.NodeResult{}, err
	}
	return rt.Substrate.Get(ctx, engine.NewScandirNode(dir))
}

func snapshotIntrinsic(ctx context.Context, inputs []value.Value, rt *engine.Runtime) (result.NodeResult, error) {
	if len(inputs) == 0 {
		return result.NodeResult{}, missingInput("Snapshot")
	}
	globs, err := leaf.LiftPathGlobs(rt.Bridge, inputs[0])
	if err != nil {
		return result.NodeResult{}, err
	}
	return rt.Substrate.Get(ctx, engine.NewSnapshotNode(globs))
}

func downloadedFileIntrinsic(ctx context.Context, inputs []value.Value, rt *engine.Runtime) (result.NodeResult, error) {
	if len(inputs) == 0 {
		return result.NodeResult{}, missingInput("DownloadedFile")
	}
	d, err := leaf.LiftDownloadedFile(rt.Bridge, inputs[0])
	if err != nil {
		return result.NodeResult{}, err
	}
	return rt.Substrate.Get(ctx, engine.NewDownloadedFileNode(d))
}

func processIntrinsic(ctx context.Context, inputs []value.Value, rt *engine.Runtime) (result.NodeResult, error) {
	if len(inputs) == 0 {
		return result.NodeResult{}, missingInput("MultiPlatformExecuteProcess")
	}
	req, err := leaf.LiftMultiPlatformExecuteProcess(rt.Bridge, inputs[0], func(v value.Value) (leaf.Process, error) {
		return leaf.LiftProcess(rt.Bridge, v)
	})
	if err != nil {
		return result.NodeResult{}, err
	}
	return rt.Substrate.Get(ctx, engine.NewProcessNode(req))
}

func requireString(rt *engine.Runtime, inputs []value.Value, field string) (string, error) {
	if len(inputs) == 0 {
		return "", missingInput(field)
	}
	s, ok := rt.Bridge.ProjectScalar(inputs[0], field).(string)
	if !ok {
		return "", missingInput(field)
	}
	return s, nil
}

func missingInput(what string) error {
	return &missingInputError{what}
}

type missingInputError struct{ what string }

func (e *missingInputError) Error() string { return "intrinsic " + e.what + " was called with no inputs" }
