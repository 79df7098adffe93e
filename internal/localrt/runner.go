package localrt

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/dagrule/engine/internal/leaf"
	"github.com/dagrule/engine/internal/result"
)

// Runner implements leaf.CommandRunner by forking a real child process,
// placed in its own process group (Setpgid via syscall.SysProcAttr) so that,
// on a timeout, golang.org/x/sys/unix can signal the whole group rather than
// leaking orphans.
type Runner struct {
	// HostPlatform is this runner's own platform string, matched against a
	// process table's declared platform constraints.
	HostPlatform string
}

func NewRunner() *Runner {
	return &Runner{HostPlatform: runtime.GOOS + "_" + runtime.GOARCH}
}

// ExtractCompatibleRequest picks the first process in req's table whose
// constraint pair's host side matches this runner's platform (or is empty).
// When none matches it falls back to the table's first process; it reports
// false only for an empty table.
func (r *Runner) ExtractCompatibleRequest(req *leaf.MultiPlatformExecuteProcess) (*leaf.SingleProcess, bool) {
	pairs := req.Table.Pairs()
	procs := req.Table.Processes()
	for i, pair := range pairs {
		var host string
		for j := 0; j < len(pair); j++ {
			if pair[j] == '=' {
				host = pair[:j]
				break
			}
		}
		if host == r.HostPlatform || host == "" {
			return &leaf.SingleProcess{Process: procs[i], Platform: r.HostPlatform}, true
		}
	}
	if len(procs) > 0 {
		return &leaf.SingleProcess{Process: procs[0], Platform: r.HostPlatform}, true
	}
	return nil, false
}

// Run executes req.Process as a real child, honoring its declared timeout
// by canceling a derived context and killing the process group.
func (r *Runner) Run(ctx context.Context, req *leaf.SingleProcess) (result.ProcessResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if req.Process.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Process.Timeout)
		defer cancel()
	}

	if len(req.Process.Argv) == 0 {
		return result.ProcessResult{}, nil
	}

	cmd := exec.CommandContext(runCtx, req.Process.Argv[0], req.Process.Argv[1:]...)
	if req.Process.WorkingDirectory != "" {
		cmd.Dir = req.Process.WorkingDirectory
	}
	for k, v := range req.Process.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded && cmd.Process != nil {
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil {
		return result.ProcessResult{}, runErr
	}

	return result.ProcessResult{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Platform: req.Platform,
	}, nil
}
