package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/puntaiq/aigate/internal/metrics"
)

// Supervisor owns the worker's operating-system process: it starts it,
// captures its output, detects exit, and restarts it on demand. At most one
// handle is live at a time and the worker never outlives the supervisor.
// Restart is operator-driven only; an unexpected exit is logged, reported via
// OnExit, and left down until someone asks for a restart.
type Supervisor struct {
	spec Spec
	log  *slog.Logger

	onStart   func(Handle)
	onRestart func(Handle)
	onExit    func(Handle, int, error)

	mu            sync.Mutex
	cmd           *exec.Cmd
	handle        *Handle
	gen           uint64
	lastRestartAt time.Time
	waitDone      chan struct{} // closed when the current run has been reaped
	inflight      *restartOp
}

type restartOp struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// New constructs a Supervisor for spec.
func New(spec Spec, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{spec: spec, log: log}
}

// OnStart registers a callback fired after every successful start with a copy
// of the new handle. Set before Start; not safe to change afterwards.
func (s *Supervisor) OnStart(fn func(Handle)) { s.onStart = fn }

// OnRestart registers a callback fired after every completed restart with the
// new handle. Set before Start; not safe to change afterwards.
func (s *Supervisor) OnRestart(fn func(Handle)) { s.onRestart = fn }

// OnExit registers a callback fired exactly once per handle when the process
// exits, with the handle, the exit code (-1 when unknown), and the wait error.
func (s *Supervisor) OnExit(fn func(Handle, int, error)) { s.onExit = fn }

// Spec returns a copy of the launch configuration.
func (s *Supervisor) Spec() Spec { return s.spec }

// Handle returns a copy of the live handle, or nil when the worker is down.
func (s *Supervisor) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil
	}
	h := *s.handle
	return &h
}

// Generation returns the start counter. It advances on every successful
// start, letting probes discard results computed against a prior run.
func (s *Supervisor) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// LastRestartAt reports when the last operator restart completed.
func (s *Supervisor) LastRestartAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRestartAt
}

// SeedLastRestartAt initializes the restart timestamp from persisted history
// on cold start. Ignored once a restart has happened in this run.
func (s *Supervisor) SeedLastRestartAt(t time.Time) {
	s.mu.Lock()
	if s.lastRestartAt.IsZero() {
		s.lastRestartAt = t
	}
	s.mu.Unlock()
}

// Alive reports whether a live handle exists.
func (s *Supervisor) Alive() bool { return s.Handle() != nil }

// Start spawns the worker and begins streaming its output. It fails with
// *SpawnError when the executable or script cannot be started and with
// ErrAlreadyRunning when a live handle exists.
func (s *Supervisor) Start() (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Supervisor) startLocked() (*Handle, error) {
	if s.handle != nil {
		h := *s.handle
		return &h, ErrAlreadyRunning
	}

	cmd, err := s.spec.BuildCommand()
	if err != nil {
		return nil, &SpawnError{Command: s.spec.Command, Err: err}
	}
	if s.spec.WorkDir != "" {
		cmd.Dir = s.spec.WorkDir
	}
	cmd.Env = append(os.Environ(), s.spec.env()...)
	configureSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Command: s.spec.Command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Command: s.spec.Command, Err: err}
	}
	sinkOut, sinkErr, err := s.spec.Log.Writers(s.spec.name())
	if err != nil {
		return nil, &SpawnError{Command: s.spec.Command, Err: err}
	}
	pump := newOutputPump(s.spec.name(), sinkOut, sinkErr, s.log)

	if err := cmd.Start(); err != nil {
		pump.close()
		return nil, &SpawnError{Command: s.spec.Command, Err: err}
	}

	s.gen++
	h := &Handle{
		PID:        cmd.Process.Pid,
		StartedAt:  time.Now(),
		Command:    s.spec.Command,
		WorkDir:    s.spec.WorkDir,
		Generation: s.gen,
	}
	wd := make(chan struct{})
	s.cmd = cmd
	s.handle = h
	s.waitDone = wd

	pump.attach(stdout, stderr)
	go s.watch(cmd, *h, wd, pump)

	s.log.Info("worker started", "name", s.spec.name(), "pid", h.PID, "command", s.spec.Command)
	metrics.IncWorkerStart()
	if s.onStart != nil {
		s.onStart(*h)
	}
	hc := *h
	return &hc, nil
}

// watch reaps the process and finalizes the run. It runs once per handle, so
// OnExit fires exactly once.
func (s *Supervisor) watch(cmd *exec.Cmd, h Handle, wd chan struct{}, pump *outputPump) {
	// Drain both pipes before reaping: Wait closes the parent pipe ends, so
	// calling it while the scanners are mid-read drops buffered output.
	pump.waitEOF()
	err := cmd.Wait()
	pump.close()

	code := 0
	if err != nil {
		code = -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
	}

	s.mu.Lock()
	if s.waitDone == wd {
		s.cmd = nil
		s.handle = nil
		s.waitDone = nil
	}
	s.mu.Unlock()
	close(wd)

	if code != 0 {
		s.log.Warn("worker exited abnormally", "name", s.spec.name(), "pid", h.PID, "exit_code", code)
	} else {
		s.log.Info("worker exited", "name", s.spec.name(), "pid", h.PID)
	}
	metrics.IncWorkerStop()
	if s.onExit != nil {
		s.onExit(h, code, err)
	}
}

// Stop requests graceful termination, waits up to wait, then force-kills.
// It is a no-op when the worker is already down.
func (s *Supervisor) Stop(wait time.Duration) error {
	s.mu.Lock()
	cmd, wd := s.cmd, s.waitDone
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil || wd == nil {
		return nil
	}
	pid := cmd.Process.Pid
	_ = terminateGroup(pid)
	select {
	case <-wd:
		return nil
	case <-time.After(wait):
	}
	_ = killGroup(pid)
	// Give the reaper the full grace period again after SIGKILL. Returning
	// before the handle is cleared would make an immediate Start fail with
	// ErrAlreadyRunning even though the process is already dead.
	select {
	case <-wd:
	case <-time.After(wait):
	}
	return nil
}

// Restart replaces the current worker run: graceful stop within the grace
// period, then a fresh start. Concurrent calls collapse into one in-flight
// operation; joiners wait for it and receive the SAME new handle together
// with ErrRestartInProgress as a no-op acknowledgment.
func (s *Supervisor) Restart(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	if op := s.inflight; op != nil {
		s.mu.Unlock()
		select {
		case <-op.done:
			if op.err != nil {
				return op.handle, op.err
			}
			return op.handle, ErrRestartInProgress
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	op := &restartOp{done: make(chan struct{})}
	s.inflight = op
	s.mu.Unlock()

	op.handle, op.err = s.doRestart()

	s.mu.Lock()
	s.inflight = nil
	if op.err == nil {
		s.lastRestartAt = time.Now()
	}
	s.mu.Unlock()
	close(op.done)
	return op.handle, op.err
}

func (s *Supervisor) doRestart() (*Handle, error) {
	s.log.Info("worker restart requested", "name", s.spec.name())
	if err := s.Stop(s.spec.gracePeriod()); err != nil {
		return nil, err
	}
	h, err := s.Start()
	if err != nil {
		return nil, err
	}
	metrics.IncWorkerRestart()
	if s.onRestart != nil {
		s.onRestart(*h)
	}
	return h, nil
}

// Shutdown terminates the worker as part of supervisor teardown. No child
// process survives it.
func (s *Supervisor) Shutdown() {
	_ = s.Stop(s.spec.gracePeriod())
}
