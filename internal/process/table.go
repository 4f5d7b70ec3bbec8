package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"relayctl/pkg/logging"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
)

// execCommand is a package-level variable to allow mocking in tests
var execCommand = exec.Command

const subsystem = "ProcessTable"

// Command describes how to launch a child process.
type Command struct {
	Path string
	Args []string
	Env  []string // appended to the inherited environment
	Dir  string

	// Stdout and Stderr default to discarding output. Only components that
	// read their own log file redirect here.
	Stdout io.Writer
	Stderr io.Writer
}

// ManagedProcess is a live entry in the table.
type ManagedProcess struct {
	Name      string
	Binary    string
	PID       int
	StartedAt time.Time

	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Done is closed once the process has exited.
func (p *ManagedProcess) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the wait error once Done is closed.
func (p *ManagedProcess) ExitErr() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *ManagedProcess) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Table tracks named child processes. At most one live entry exists per
// name. It is safe for concurrent use.
type Table struct {
	ops sync.Mutex // serializes start/stop so replacement is atomic per name

	mu    sync.RWMutex
	procs map[string]*ManagedProcess

	stopTimeout time.Duration
	clock       clock.Clock
}

// NewTable returns an empty table. stopTimeout bounds the graceful phase of
// Stop before the process group is killed. A nil clk uses the wall clock.
func NewTable(stopTimeout time.Duration, clk clock.Clock) *Table {
	if clk == nil {
		clk = clock.New()
	}
	return &Table{
		procs:       make(map[string]*ManagedProcess),
		stopTimeout: stopTimeout,
		clock:       clk,
	}
}

// Start launches c under name, stopping any prior entry with the same name
// first. A SpawnError leaves name absent from the table.
func (t *Table) Start(name string, c Command) (*ManagedProcess, error) {
	t.ops.Lock()
	defer t.ops.Unlock()

	if prior := t.detach(name); prior != nil {
		logging.Debug(subsystem, "Replacing %s (PID %d)", name, prior.PID)
		if err := t.stopProcess(prior); err != nil {
			logging.Warn(subsystem, "Failed to stop previous %s: %v", name, err)
		}
	}

	cmd := execCommand(c.Path, c.Args...)
	setProcAttr(cmd)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Dir = c.Dir
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Name: name, Binary: c.Path, Err: err}
	}

	p := &ManagedProcess{
		Name:      name,
		Binary:    c.Path,
		PID:       cmd.Process.Pid,
		StartedAt: t.clock.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	t.procs[name] = p
	t.mu.Unlock()

	go t.wait(p)

	logging.Info(subsystem, "%s is running (PID %d)", name, p.PID)
	return p, nil
}

func (t *Table) wait(p *ManagedProcess) {
	p.err = p.cmd.Wait()
	close(p.done)

	t.mu.Lock()
	if t.procs[p.Name] == p {
		delete(t.procs, p.Name)
	}
	t.mu.Unlock()

	if p.err != nil {
		logging.Debug(subsystem, "%s (PID %d) exited: %v", p.Name, p.PID, p.err)
	} else {
		logging.Debug(subsystem, "%s (PID %d) exited", p.Name, p.PID)
	}
}

// Stop terminates name gracefully, killing it after the stop timeout. It is
// a no-op when name is absent.
func (t *Table) Stop(name string) error {
	t.ops.Lock()
	defer t.ops.Unlock()

	p := t.detach(name)
	if p == nil {
		return nil
	}
	return t.stopProcess(p)
}

// StopAll stops every entry, collecting failures.
func (t *Table) StopAll() error {
	t.ops.Lock()
	defer t.ops.Unlock()

	t.mu.Lock()
	procs := t.procs
	t.procs = make(map[string]*ManagedProcess)
	t.mu.Unlock()

	if len(procs) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs error
	)
	for _, p := range procs {
		wg.Add(1)
		go func(p *ManagedProcess) {
			defer wg.Done()
			if err := t.stopProcess(p); err != nil {
				emu.Lock()
				errs = multierr.Append(errs, err)
				emu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	logging.Info(subsystem, "Stopped %d processes", len(procs))
	return errs
}

// IsRunning reports whether a live entry exists for name.
func (t *Table) IsRunning(name string) bool {
	t.mu.RLock()
	p, ok := t.procs[name]
	t.mu.RUnlock()
	return ok && p.alive()
}

// Get returns the entry for name.
func (t *Table) Get(name string) (*ManagedProcess, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.procs[name]
	return p, ok
}

// Names returns the names of all entries, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.procs))
	for name := range t.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KillByName terminates processes whose command line matches binary,
// whether or not they are tracked. Failures are swallowed.
func KillByName(binary string) {
	if binary == "" {
		return
	}
	cmd := killByNameCommand(binary)
	if err := cmd.Run(); err != nil {
		logging.Debug(subsystem, "kill-by-name %s: %v", binary, err)
	}
}

func (t *Table) detach(name string) *ManagedProcess {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[name]
	if !ok {
		return nil
	}
	delete(t.procs, name)
	return p
}

func (t *Table) stopProcess(p *ManagedProcess) error {
	if !p.alive() {
		return nil
	}

	if err := terminate(p.cmd); err != nil {
		logging.Debug(subsystem, "Graceful stop of %s failed: %v", p.Name, err)
	}

	timer := t.clock.Timer(t.stopTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	logging.Warn(subsystem, "%s (PID %d) did not stop within %v, killing", p.Name, p.PID, t.stopTimeout)
	if err := forceKill(p.cmd); err != nil {
		return fmt.Errorf("failed to kill %s (PID %d): %w", p.Name, p.PID, err)
	}
	<-p.done
	return nil
}
