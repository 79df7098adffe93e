package leaf

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dagrule/engine/internal/failure"
	"github.com/dagrule/engine/internal/result"
	"github.com/dagrule/engine/internal/value"
)

// Process is a single platform-specific process specification, lifted from
// one entry of MultiPlatformExecuteProcess's parallel "processes" list.
type Process struct {
	Argv                        []string
	Env                         map[string]string
	WorkingDirectory            string
	InputFiles                  result.Digest
	OutputFiles                 []string
	OutputDirectories           []string
	Timeout                     time.Duration // zero means none
	Description                 string
	JDKHome                     string
	IsNailgunnable              bool
	UnsafeLocalOnlyFilesDigest  result.Digest
	TargetPlatform              string
}

// SingleProcess is the concrete request the command runner accepts, chosen
// by ExtractCompatibleRequest out of a MultiPlatformExecuteProcess's table.
type SingleProcess struct {
	Process  Process
	Platform string
}

// constraintPair is one (host, target) platform-constraint pair in the
// order-independent identity table described by SPEC_FULL's
// "platform-constraint BTreeMap identity" supplement.
type constraintPair struct {
	Host   string
	Target string
}

// ConstraintTable is a sorted-slice-backed table mapping platform constraint
// pairs to process specs, built so that two constructions from the same
// pairs (regardless of input order) compare equal — load-bearing for
// memoization-key uniqueness.
type ConstraintTable struct {
	pairs     []constraintPair
	processes []Process
}

// Processes returns the table's process specs in canonical (sorted) order,
// used by the engine's NodeKey dispatcher to report a user-facing name for
// the first process in the table.
func (t *ConstraintTable) Processes() []Process { return t.processes }

// Pairs returns the table's constraint pairs in canonical (sorted) order.
func (t *ConstraintTable) Pairs() []string {
	out := make([]string, len(t.pairs))
	for i, p := range t.pairs {
		out[i] = p.Host + "=" + p.Target
	}
	return out
}

func (t *ConstraintTable) add(host, target string, p Process) {
	t.pairs = append(t.pairs, constraintPair{Host: host, Target: target})
	t.processes = append(t.processes, p)
}

// sortInPlace canonicalizes iteration order so equal construction inputs in
// different orders produce an identical table.
func (t *ConstraintTable) sortInPlace() {
	idx := make([]int, len(t.pairs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		pa, pb := t.pairs[idx[a]], t.pairs[idx[b]]
		if pa.Host != pb.Host {
			return pa.Host < pb.Host
		}
		return pa.Target < pb.Target
	})
	pairs := make([]constraintPair, len(t.pairs))
	procs := make([]Process, len(t.processes))
	for i, j := range idx {
		pairs[i] = t.pairs[j]
		procs[i] = t.processes[j]
	}
	t.pairs, t.processes = pairs, procs
}

// MultiPlatformExecuteProcess is lifted from a host value carrying parallel
// "platform_constraints" (flattened host/target pairs) and "processes"
// lists, per §4.D.
type MultiPlatformExecuteProcess struct {
	Table *ConstraintTable
}

// LiftMultiPlatformExecuteProcess parses the host value's flattened
// constraint list and parallel process specs. An odd-length constraint list
// or a count mismatch between constraints and processes is a Throw — a
// deliberate departure from the original's unwrap-and-panic behavior (see
// DESIGN.md's Open Question on this).
func LiftMultiPlatformExecuteProcess(b *value.Bridge, key value.Value, liftProcess func(value.Value) (Process, error)) (*MultiPlatformExecuteProcess, error) {
	constraintsField := b.ProjectRepeated(key, "platform_constraints", value.NewTypeId("str"))
	if len(constraintsField)%2 != 0 {
		return nil, failure.NewThrow("error parsing platform_constraints: odd number of parts")
	}
	processesField := b.ProjectRepeated(key, "processes", value.NewTypeId("__process__"))

	numPairs := len(constraintsField) / 2
	if numPairs != len(processesField) {
		return nil, failure.NewThrow(fmt.Sprintf("mismatch between platform_constraints (%d pairs) and processes (%d) counts", numPairs, len(processesField)))
	}

	table := &ConstraintTable{}
	for i := 0; i < numPairs; i++ {
		host := constraintsField[2*i].String()
		target := constraintsField[2*i+1].String()
		proc, err := liftProcess(processesField[i])
		if err != nil {
			return nil, err
		}
		table.add(host, target, proc)
	}
	table.sortInPlace()

	return &MultiPlatformExecuteProcess{Table: table}, nil
}

// Run asks the command runner for a compatible subrequest and executes it.
func (m *MultiPlatformExecuteProcess) Run(ctx context.Context, runner CommandRunner) (result.ProcessResult, error) {
	req, ok := runner.ExtractCompatibleRequest(m)
	if !ok {
		return result.ProcessResult{}, failure.NewThrow("No compatible platform found for request")
	}
	res, err := runner.Run(ctx, req)
	if err != nil {
		return result.ProcessResult{}, failure.NewThrow(fmt.Sprintf("Failed to execute process: %s", err))
	}
	return res, nil
}

// LiftProcess builds one Process from a host value, applying the
// timeout-encoding rule in §4.D: a negative timeout means none, otherwise
// the value is whole seconds converted to milliseconds.
func LiftProcess(b *value.Bridge, v value.Value) (Process, error) {
	argvField := b.ProjectRepeated(v, "argv", value.NewTypeId("str"))
	argv := make([]string, len(argvField))
	for i, a := range argvField {
		argv[i] = a.String()
	}

	env := map[string]string{}
	if raw := b.ProjectScalar(v, "env"); raw != nil {
		if tuples, ok := raw.([][2]string); ok {
			for _, kv := range tuples {
				env[kv[0]] = kv[1]
			}
		}
	}

	workdir, _ := b.ProjectScalar(v, "working_directory").(string)

	outFilesField := b.ProjectRepeated(v, "output_files", value.NewTypeId("str"))
	outFiles := make([]string, len(outFilesField))
	for i, f := range outFilesField {
		outFiles[i] = f.String()
	}
	outDirsField := b.ProjectRepeated(v, "output_directories", value.NewTypeId("str"))
	outDirs := make([]string, len(outDirsField))
	for i, f := range outDirsField {
		outDirs[i] = f.String()
	}

	var timeout time.Duration
	if secs, ok := b.ProjectScalar(v, "timeout_seconds").(int64); ok && secs >= 0 {
		timeout = time.Duration(secs) * time.Second
	}

	description, _ := b.ProjectScalar(v, "description").(string)
	jdkHome, _ := b.ProjectScalar(v, "jdk_home").(string)
	nailgunnable, _ := b.ProjectScalar(v, "is_nailgunnable").(bool)
	targetPlatform, _ := b.ProjectScalar(v, "target_platform").(string)

	inputFingerprint, _ := b.ProjectScalar(v, "input_files_fingerprint").(string)
	inputSize, _ := b.ProjectScalar(v, "input_files_size").(int64)

	unsafeFingerprint, _ := b.ProjectScalar(v, "unsafe_local_only_files_digest_fingerprint").(string)
	unsafeSize, _ := b.ProjectScalar(v, "unsafe_local_only_files_digest_size").(int64)

	return Process{
		Argv:                       argv,
		Env:                        env,
		WorkingDirectory:           strings.TrimSpace(workdir),
		InputFiles:                 result.Digest{Fingerprint: inputFingerprint, Size: inputSize},
		OutputFiles:                outFiles,
		OutputDirectories:          outDirs,
		Timeout:                    timeout,
		Description:                description,
		JDKHome:                    jdkHome,
		IsNailgunnable:             nailgunnable,
		UnsafeLocalOnlyFilesDigest: result.Digest{Fingerprint: unsafeFingerprint, Size: unsafeSize},
		TargetPlatform:             targetPlatform,
	}, nil
}
