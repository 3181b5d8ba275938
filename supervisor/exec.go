package supervisor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// ExecLauncher starts workers as child processes of the given binary.
type ExecLauncher struct {
	Path string   // "" => os.Executable()
	Args []string // passed through to every worker
	Env  []string // appended to os.Environ()

	Stdout, Stderr io.Writer // nil => inherit
	// StopTimeout is how long a worker gets after SIGTERM before it is
	// killed; 0 => 10s.
	StopTimeout time.Duration
}

func (l ExecLauncher) Launch(ctx context.Context, id int) (Worker, error) {
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}
		path = exe
	}
	cmd := exec.CommandContext(ctx, path, l.Args...)
	cmd.Env = append(append(os.Environ(), l.Env...), EnvWorkerID+"="+strconv.Itoa(id))
	cmd.Stdout = orStd(l.Stdout, os.Stdout)
	cmd.Stderr = orStd(l.Stderr, os.Stderr)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = l.StopTimeout
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 10 * time.Second
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return execWorker{cmd: cmd}, nil
}

type execWorker struct{ cmd *exec.Cmd }

func (w execWorker) PID() int    { return w.cmd.Process.Pid }
func (w execWorker) Wait() error { return w.cmd.Wait() }

func orStd(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
