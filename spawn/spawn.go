// CLAUDE:SUMMARY Spawns embedded application processes in their own process group with output-pattern or TCP-port readiness polling.
// Package spawn starts embedded application processes for driving: each
// child runs in its own process group so teardown can kill the whole tree,
// its stdout/stderr feed a process output collector, and readiness is
// detected by an output pattern or an open TCP port.
package spawn

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/hazyhaar/pilote/collect"
)

// Options configures one spawned process.
type Options struct {
	// Command is the argv to run. Required, at least one element.
	Command []string

	// Dir is the working directory. Empty = inherit.
	Dir string

	// Env is appended to the parent environment.
	Env []string

	// ReadyPattern is a regexp matched against output lines. The process
	// is ready as soon as a line matches.
	ReadyPattern string

	// ReadyPort is a TCP port on localhost. The process is ready as soon
	// as the port accepts a connection.
	ReadyPort int

	// ReadyTimeout bounds the readiness wait. Default: 30s.
	ReadyTimeout time.Duration

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Process is a running spawned child.
type Process struct {
	opts   Options
	cmd    *exec.Cmd
	ready  *regexp.Regexp
	sink   *collect.ProcessCollector
	waitCh chan error
}

// Spawn starts the command in its own process group and wires its
// stdout/stderr into the collector. Call WaitReady to block until the
// process signals readiness.
func Spawn(opts Options, sink *collect.ProcessCollector) (*Process, error) {
	opts.defaults()

	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("spawn: empty command")
	}

	var ready *regexp.Regexp
	if opts.ReadyPattern != "" {
		re, err := regexp.Compile(opts.ReadyPattern)
		if err != nil {
			return nil, fmt.Errorf("spawn: ready pattern: %w", err)
		}
		ready = re
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)
	setSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn: start %q: %w", opts.Command[0], err)
	}

	sink.AttachPipes(stdout, stderr)

	p := &Process{
		opts:   opts,
		cmd:    cmd,
		ready:  ready,
		sink:   sink,
		waitCh: make(chan error, 1),
	}
	go func() { p.waitCh <- cmd.Wait() }()

	opts.Logger.Info("spawn: started process",
		"command", opts.Command[0], "pid", cmd.Process.Pid)
	return p, nil
}

// PID reports the child's process ID.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Exited reports whether the child has terminated.
func (p *Process) Exited() bool {
	select {
	case err := <-p.waitCh:
		p.waitCh <- err
		return true
	default:
		return false
	}
}

// WaitReady blocks until the process is ready: a line matching the ready
// pattern, the ready port accepting a connection, whichever comes first.
// With neither configured it returns immediately. An early exit or the
// ready timeout is an error.
func (p *Process) WaitReady(ctx context.Context) error {
	if p.ready == nil && p.opts.ReadyPort == 0 {
		return nil
	}

	deadline := time.NewTimer(p.opts.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("spawn: readiness wait: %w", ctx.Err())
		case err := <-p.waitCh:
			p.waitCh <- err
			return fmt.Errorf("spawn: process exited before readiness: %w",
				exitReason(err))
		case <-deadline.C:
			return fmt.Errorf("spawn: not ready after %s", p.opts.ReadyTimeout)
		case <-tick.C:
			if p.checkReady() {
				p.opts.Logger.Info("spawn: process ready", "pid", p.PID())
				return nil
			}
		}
	}
}

func (p *Process) checkReady() bool {
	if p.ready != nil {
		for _, e := range p.sink.Entries() {
			if p.ready.MatchString(e.Line) {
				return true
			}
		}
	}
	if p.opts.ReadyPort > 0 {
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(p.opts.ReadyPort))
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}

// Kill terminates the whole process tree: SIGTERM to the group, a grace
// period, then SIGKILL. It never fails; a child that is already gone is
// success.
func (p *Process) Kill() {
	killTree(p.cmd)
	// Reap, bounded: the wait goroutine delivers exactly one result.
	select {
	case err := <-p.waitCh:
		p.waitCh <- err
	case <-time.After(2 * time.Second):
		p.opts.Logger.Warn("spawn: process did not reap in time", "pid", p.PID())
	}
}

func exitReason(err error) error {
	if err == nil {
		return fmt.Errorf("exit status 0")
	}
	return err
}
