// Package task implements supervised worker processes. A Task owns one
// OS-level worker: it spawns it, confirms startup through a ready flag the
// worker raises, requests shutdown through a stop flag the worker polls, and
// runs a background watcher that notices workers dying on their own.
//
// Worker contract: the command receives two file paths in its environment,
// EnvReadyFile and EnvStopFile. It must create the ready file exactly once
// after its own initialization succeeds, and it must poll for the stop file
// and exit promptly once it appears. Workers violating the contract make
// Start report failure or make Stop escalate to forced termination.
package task

import (
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/supervisr/internal/logger"
)

// Status is a task's lifecycle state. Ready is entered once via Set and
// never again; the watcher or Stop move Running to Stopped.
type Status string

const (
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

const (
	// DefaultStartTimeout bounds the wait for the worker's ready flag.
	DefaultStartTimeout = 10 * time.Second
	// startAbortWait bounds reaping a worker whose handshake timed out.
	startAbortWait = 2 * time.Second
	// stopGraceWait is the cooperative shutdown window after the stop flag.
	stopGraceWait = 5 * time.Second
	// stopForceWait bounds reaping after forced termination.
	stopForceWait = 1 * time.Second
	// watchInterval is the watcher's liveness poll period.
	watchInterval = 1 * time.Second

	readyFlagName = "ready.flag"
	stopFlagName  = "stop.flag"
)

// Task supervises a single worker process. Create with New, bind a worker
// once with Set, then Start/Stop/Restart any number of times. Close releases
// the watcher and terminates a live worker.
type Task struct {
	mu        sync.Mutex
	spec      Spec
	bound     bool
	closed    bool
	status    Status
	cmd       *exec.Cmd
	runDone   chan struct{} // closed by reap when cmd.Wait returns
	pid       int
	startedAt time.Time
	stoppedAt time.Time
	exitErr   error

	runtimeDir string
	ownsRunDir bool
	ready      *Flag
	stop       *Flag

	watchQuit chan struct{}
	closeOnce sync.Once
	onCrash   func(Info) // watcher-detected death; may be nil
	log       *slog.Logger
}

// New creates an unbound task and starts its watcher.
func New() *Task {
	t := &Task{
		watchQuit: make(chan struct{}),
		log:       logger.Get("task"),
	}
	go t.watch()
	return t
}

// Set binds the task's identity and worker payload. It is a one-shot bind:
// a second call returns false without mutating anything. Rebinding requires
// a new Task.
func (t *Task) Set(spec Spec) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bound || t.closed {
		return false
	}
	dir := spec.RuntimeDir
	owns := false
	var err error
	if dir == "" {
		dir, err = os.MkdirTemp("", "supervisr-"+spec.Name+"-")
		owns = true
	} else {
		err = os.MkdirAll(dir, 0o750)
	}
	if err != nil {
		t.log.Error("runtime dir unavailable", "name", spec.Name, "error", err)
		return false
	}
	t.spec = spec
	t.runtimeDir = dir
	t.ownsRunDir = owns
	t.ready = newFlag(filepath.Join(dir, readyFlagName))
	t.stop = newFlag(filepath.Join(dir, stopFlagName))
	t.bound = true
	t.status = StatusReady
	return true
}

// Start spawns the worker and waits up to timeout (DefaultStartTimeout when
// non-positive) for its ready flag. The spawn and bookkeeping run under the
// task mutex; the handshake wait does not, so status reads and the watcher
// stay responsive. On timeout the half-started worker is terminated and the
// task lands in Stopped.
func (t *Task) Start(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}

	t.mu.Lock()
	if !t.bound || t.closed || t.aliveLocked() {
		t.mu.Unlock()
		return false
	}
	t.stop.Clear()
	t.ready.Clear()

	cmd, outW, errW := t.configureCmd()
	if err := cmd.Start(); err != nil {
		closeWriter(outW)
		closeWriter(errW)
		t.status = StatusStopped
		name := t.spec.Name
		t.mu.Unlock()
		t.log.Error("spawn failed", "name", name, "error", err)
		return false
	}
	done := make(chan struct{})
	t.cmd = cmd
	t.runDone = done
	t.pid = cmd.Process.Pid
	t.startedAt = time.Now()
	t.exitErr = nil
	ready := t.ready
	name := t.spec.Name
	pid := t.pid
	t.mu.Unlock()

	go t.reap(cmd, done, outW, errW)

	if ready.Wait(timeout) {
		t.mu.Lock()
		t.status = StatusRunning
		t.mu.Unlock()
		t.log.Info("worker started", "name", name, "pid", pid)
		return true
	}

	t.log.Error("start handshake timed out", "name", name, "pid", pid, "timeout", timeout)
	t.mu.Lock()
	t.terminateLocked(pid, done, startAbortWait)
	t.cmd = nil
	t.runDone = nil
	t.status = StatusStopped
	t.stoppedAt = time.Now()
	t.mu.Unlock()
	return false
}

// Stop requests graceful shutdown through the stop flag, escalating to
// forced termination when the worker ignores it. It returns false only when
// no process is tracked; whenever one is, the task always ends up Stopped
// and Stop returns true.
func (t *Task) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil {
		return false
	}
	name := t.spec.Name
	pid := t.pid
	if !t.aliveLocked() {
		t.cmd = nil
		t.runDone = nil
		t.status = StatusStopped
		return true
	}

	_ = t.stop.Set()
	if !waitClosed(t.runDone, stopGraceWait) {
		t.log.Info("graceful window expired, terminating", "name", name, "pid", pid)
		t.terminateLocked(pid, t.runDone, stopForceWait)
	}
	t.cmd = nil
	t.runDone = nil
	t.status = StatusStopped
	t.stoppedAt = time.Now()
	t.log.Info("worker stopped", "name", name, "pid", pid)
	return true
}

// Restart stops the worker if one is tracked, then starts anew. The result
// is Start's contract; false when no worker was ever bound.
func (t *Task) Restart(timeout time.Duration) bool {
	t.mu.Lock()
	bound := t.bound
	hasProc := t.cmd != nil
	t.mu.Unlock()
	if !bound {
		return false
	}
	if hasProc {
		t.Stop()
	}
	return t.Start(timeout)
}

// IsAlive reports whether the tracked worker process is currently live.
func (t *Task) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aliveLocked()
}

// Status returns the task's lifecycle state. It is the source of truth;
// callers must prefer it over a stale process handle.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Name returns the bound name, empty before Set.
func (t *Task) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spec.Name
}

// PID returns the live worker's pid, 0 when none is running.
func (t *Task) PID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.aliveLocked() {
		return 0
	}
	return t.pid
}

// Info returns a consistent snapshot of the task's observable state.
func (t *Task) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.infoLocked()
}

func (t *Task) infoLocked() Info {
	alive := t.aliveLocked()
	pid := 0
	if alive {
		pid = t.pid
	}
	info := Info{
		Name:      t.spec.Name,
		Status:    t.status,
		PID:       pid,
		Alive:     alive,
		Command:   t.spec.Command,
		StartedAt: t.startedAt,
		StoppedAt: t.stoppedAt,
	}
	if t.exitErr != nil {
		info.ExitError = t.exitErr.Error()
	}
	return info
}

// Close stops the watcher and, best-effort, the worker. Errors are swallowed;
// leaking a worker is preferred over failing teardown. Safe to call twice.
func (t *Task) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		hasProc := t.cmd != nil
		t.closed = true
		t.mu.Unlock()
		if hasProc {
			t.Stop()
		}
		close(t.watchQuit)
		t.mu.Lock()
		if t.ownsRunDir && t.runtimeDir != "" {
			_ = os.RemoveAll(t.runtimeDir)
		}
		t.mu.Unlock()
	})
}

// watch is the background liveness loop. It runs from New until Close and
// flips Running to Stopped when the worker has exited without a Stop call.
// A bad iteration never kills the loop.
func (t *Task) watch() {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.watchQuit:
			return
		case <-ticker.C:
			t.pollOnce()
		}
	}
}

func (t *Task) pollOnce() {
	defer func() { _ = recover() }()

	t.mu.Lock()
	if t.cmd == nil || t.aliveLocked() || t.status != StatusRunning {
		t.mu.Unlock()
		return
	}
	t.status = StatusStopped
	t.cmd = nil
	t.runDone = nil
	t.stoppedAt = time.Now()
	info := t.infoLocked()
	info.PID = t.pid
	notify := t.onCrash
	t.mu.Unlock()

	t.log.Error("worker died unexpectedly", "name", info.Name, "pid", info.PID, "error", info.ExitError)
	if notify != nil {
		notify(info)
	}
}

// aliveLocked reports liveness of the current run. Callers hold t.mu.
func (t *Task) aliveLocked() bool {
	if t.cmd == nil || t.runDone == nil {
		return false
	}
	select {
	case <-t.runDone:
		return false
	default:
		return true
	}
}

// configureCmd builds the exec.Cmd with flag paths injected and stdio
// attached to the spec's log writers. Callers hold t.mu.
func (t *Task) configureCmd() (*exec.Cmd, io.WriteCloser, io.WriteCloser) {
	cmd := t.spec.BuildCommand()
	if t.spec.WorkDir != "" {
		cmd.Dir = t.spec.WorkDir
	}
	env := append(os.Environ(), t.spec.Env...)
	env = append(env,
		EnvReadyFile+"="+t.ready.Path(),
		EnvStopFile+"="+t.stop.Path(),
	)
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	outW, errW, _ := t.spec.Log.Writers(t.spec.Name)
	if outW != nil {
		cmd.Stdout = outW
	} else {
		cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if errW != nil {
		cmd.Stderr = errW
	} else {
		cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	return cmd, outW, errW
}

// reap waits for the worker to exit, records the outcome for the matching
// run, and closes done so liveness checks and stop waits observe the exit.
func (t *Task) reap(cmd *exec.Cmd, done chan struct{}, outW, errW io.WriteCloser) {
	err := cmd.Wait()
	// Close done before touching the mutex: Stop and the start-timeout path
	// wait on done while holding it.
	close(done)
	closeWriter(outW)
	closeWriter(errW)
	t.mu.Lock()
	if t.runDone == done {
		t.exitErr = err
		t.stoppedAt = time.Now()
	}
	t.mu.Unlock()
}

// terminateLocked force-terminates the worker's process group: SIGTERM,
// bounded wait, then SIGKILL with a short final wait. Callers hold t.mu;
// done is closed by reap, never here.
func (t *Task) terminateLocked(pid int, done chan struct{}, wait time.Duration) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	if waitClosed(done, wait) {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	waitClosed(done, 200*time.Millisecond)
}

func waitClosed(ch chan struct{}, d time.Duration) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

func closeWriter(w io.WriteCloser) {
	if w != nil {
		_ = w.Close()
	}
}
