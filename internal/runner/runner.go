// Package runner executes one external stage program at a time with its
// stdout and stderr attached to pseudo-terminals, so that the program keeps
// the colour and line buffering it would use on a real terminal, while
// staying killable on demand.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/phuslu/log"
	"golang.org/x/sys/unix"

	"github.com/lucasnoah/autobuilder/internal/logger"
)

// DefaultTick is how long one poll waits before cancellation is re-checked.
const DefaultTick = 40 * time.Millisecond

const readSize = 512

// Outcome is the result of one invocation. A cancelled outcome carries no
// output: partial bytes are discarded and must not be parsed.
type Outcome struct {
	Stdout    []byte
	Stderr    []byte
	ExitCode  int
	Duration  time.Duration
	Cancelled bool
}

// RunOpts configures a single invocation.
type RunOpts struct {
	// Dir is the working directory of the child; empty means the current one.
	Dir string
	// Echo copies output to the runner's writer as it arrives.
	Echo bool
	// Interrupt is polled on every tick; returning true kills the child.
	Interrupt func() bool
}

// Runner supervises stage programs. Invocations must not overlap.
type Runner struct {
	output io.Writer
	tick   time.Duration
	log    *log.Logger
}

// New creates a Runner that echoes output to w.
func New(w io.Writer) *Runner {
	return &Runner{
		output: w,
		tick:   DefaultTick,
		log:    logger.WithComponent("runner"),
	}
}

// SetTick overrides the poll tick (for testing).
func (r *Runner) SetTick(d time.Duration) {
	if d > 0 {
		r.tick = d
	}
}

// Run starts path with args and collects its output until both terminals
// reach end of stream. Cancellation through ctx or opts.Interrupt kills the
// child's process group and returns an Outcome with Cancelled set and a nil
// error. A non-zero exit status is reported in ExitCode, not as an error.
func (r *Runner) Run(ctx context.Context, path string, args []string, opts RunOpts) (*Outcome, error) {
	start := time.Now()

	p, err := startProcess(path, args, opts.Dir)
	if err != nil {
		r.log.Error().Err(err).Str("path", path).Msg("spawn failed")
		return nil, err
	}
	defer p.release()

	r.log.Info().Str("path", path).Strs("args", args).Int("pid", p.cmd.Process.Pid).Msg("started")

	cancelled := func() bool {
		if ctx.Err() != nil {
			return true
		}
		return opts.Interrupt != nil && opts.Interrupt()
	}

	var bufs [2]bytes.Buffer
	open := [2]bool{true, true}
	fds := [2]int{int(p.stdout.Fd()), int(p.stderr.Fd())}
	names := [2]string{"stdout", "stderr"}
	chunk := make([]byte, readSize)
	pollfds := make([]unix.PollFd, 0, 2)
	index := make([]int, 0, 2)
	timeout := int(r.tick / time.Millisecond)
	exited := false

	for open[0] || open[1] {
		if cancelled() {
			return r.cancel(p, path, start), nil
		}

		pollfds, index = pollfds[:0], index[:0]
		for i := range fds {
			if open[i] {
				pollfds = append(pollfds, unix.PollFd{Fd: int32(fds[i]), Events: unix.POLLIN})
				index = append(index, i)
			}
		}

		n, err := unix.Poll(pollfds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, r.transportFailure(p, &TransportError{Op: "poll", Err: err})
		}
		if n == 0 {
			// A descendant can hold the terminals open after the child
			// exits; a quiet tick after exit ends the capture.
			if exited {
				break
			}
			select {
			case <-p.done:
				exited = true
			default:
			}
			continue
		}

		for j, pfd := range pollfds {
			if pfd.Revents == 0 {
				continue
			}
			i := index[j]
			if pfd.Revents&unix.POLLNVAL != 0 {
				return nil, r.transportFailure(p, &TransportError{Op: "poll " + names[i], Err: unix.EBADF})
			}
			m, err := unix.Read(fds[i], chunk)
			if err != nil {
				switch {
				case errors.Is(err, unix.EIO):
					// The slave side closed; this is end of stream on Linux.
					open[i] = false
				case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
				default:
					return nil, r.transportFailure(p, &TransportError{Op: "read " + names[i], Err: err})
				}
				continue
			}
			if m == 0 {
				open[i] = false
				continue
			}
			bufs[i].Write(chunk[:m])
			if opts.Echo && r.output != nil {
				_, _ = r.output.Write(chunk[:m])
			}
		}
	}

	// Output is exhausted; keep honouring cancellation until the child exits.
	wait := time.NewTicker(r.tick)
	defer wait.Stop()
	for {
		select {
		case <-p.done:
			out := &Outcome{
				Stdout:   bufs[0].Bytes(),
				Stderr:   bufs[1].Bytes(),
				ExitCode: p.exitCode(),
				Duration: time.Since(start),
			}
			r.log.Info().
				Str("path", path).
				Int("exit_code", out.ExitCode).
				Int("stdout_bytes", len(out.Stdout)).
				Int("stderr_bytes", len(out.Stderr)).
				Dur("duration", out.Duration).
				Msg("finished")
			return out, nil
		case <-wait.C:
			if cancelled() {
				return r.cancel(p, path, start), nil
			}
		}
	}
}

func (r *Runner) cancel(p *process, path string, start time.Time) *Outcome {
	p.kill()
	<-p.done
	r.log.Warn().Str("path", path).Dur("duration", time.Since(start)).Msg("cancelled")
	return &Outcome{Cancelled: true, ExitCode: -1, Duration: time.Since(start)}
}

func (r *Runner) transportFailure(p *process, err *TransportError) error {
	p.kill()
	<-p.done
	r.log.Error().Err(err).Msg("output capture failed")
	return err
}

// process owns the child and both terminal masters for one invocation.
type process struct {
	cmd     *exec.Cmd
	stdout  *os.File
	stderr  *os.File
	done    chan struct{}
	waitErr error
}

func startProcess(path string, args []string, dir string) (*process, error) {
	outMaster, outSlave, err := pty.Open()
	if err != nil {
		return nil, &SpawnError{Path: path, Err: fmt.Errorf("open stdout pty: %w", err)}
	}
	errMaster, errSlave, err := pty.Open()
	if err != nil {
		outMaster.Close()
		outSlave.Close()
		return nil, &SpawnError{Path: path, Err: fmt.Errorf("open stderr pty: %w", err)}
	}
	// Best effort: there is no size to inherit when stdout is not a terminal.
	_ = pty.InheritSize(os.Stdout, outMaster)
	_ = pty.InheritSize(os.Stdout, errMaster)

	cmd := exec.Command(path, args...)
	cmd.Dir = dir
	cmd.Stdout = outSlave
	cmd.Stderr = errSlave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    1,
	}

	startErr := cmd.Start()
	// The child holds its own copies; the parent only reads the masters.
	outSlave.Close()
	errSlave.Close()
	if startErr != nil {
		outMaster.Close()
		errMaster.Close()
		return nil, &SpawnError{Path: path, Err: startErr}
	}

	p := &process{
		cmd:    cmd,
		stdout: outMaster,
		stderr: errMaster,
		done:   make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// kill terminates the child's whole process group. The child leads its own
// session, so its group id equals its pid.
func (p *process) kill() {
	select {
	case <-p.done:
		return
	default:
	}
	if err := unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL); err != nil {
		_ = p.cmd.Process.Kill()
	}
}

// release guarantees the child is reaped, nothing it started in its group
// outlives it, and both masters are closed. The group id stays reserved
// while any member is alive, so signalling it after the reap is safe.
func (p *process) release() {
	p.kill()
	<-p.done
	_ = unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL)
	p.stdout.Close()
	p.stderr.Close()
}

func (p *process) exitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}
