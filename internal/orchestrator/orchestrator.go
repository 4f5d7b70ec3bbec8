package orchestrator

import (
	"context"
	"sync"

	"relayctl/internal/artifact"
	"relayctl/internal/config"
	"relayctl/internal/fetch"
	"relayctl/internal/process"
	"relayctl/pkg/logging"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"
)

const subsystem = "Orchestrator"

// Logical names of the managed processes.
const (
	ProcMonitor = "monitor"
	ProcRelay   = "relay"
	ProcTunnel  = "tunnel"
)

// For mocking in tests
var killByName = process.KillByName

// Spawner is the process table the orchestrator drives.
type Spawner interface {
	Start(name string, c process.Command) (*process.ManagedProcess, error)
	StopAll() error
	IsRunning(name string) bool
	Get(name string) (*process.ManagedProcess, bool)
	Names() []string
}

// Downloader acquires the executables for a run.
type Downloader interface {
	FetchAll(ctx context.Context, items []fetch.Item) error
}

// LabelLookup returns the ISP label used in link names. It never fails.
type LabelLookup interface {
	Label(ctx context.Context) string
}

// Publisher announces and withdraws nodes. Every call is best-effort.
type Publisher interface {
	DeleteNodes(ctx context.Context, uploadURL string, nodes []string) error
	Publish(ctx context.Context, s config.Settings, nodes []string) error
	KeepAlive(ctx context.Context, endpoint, projectURL string) error
}

// Config wires the orchestrator to its collaborators.
type Config struct {
	Runtime      config.Runtime
	LoadSettings func() (config.Settings, error)

	Table      Spawner
	Downloader Downloader
	Labels     LabelLookup
	Publisher  Publisher

	// Arch selects the binary family, "arm" or "amd".
	Arch string
	// Names yields n distinct file names for the downloaded binaries.
	Names func(n int) []string
	// Clock drives settle delays and the deferred cleanup. Nil uses the
	// wall clock.
	Clock clock.Clock
}

// Orchestrator sequences a relay bring-up: it renders configuration,
// launches the monitoring agent, relay and tunnel client, resolves the
// public hostname and publishes links.
//
// Runs are serialized. A Restart request joins the restart in flight only
// while that restart has not read its settings yet. Later requests queue
// one follow-up restart so the newest settings are always applied.
type Orchestrator struct {
	cfg   Config
	table Spawner
	clock clock.Clock

	runMu    sync.Mutex
	restarts singleflight.Group

	mu         sync.Mutex
	generation int
	cleanup    *clock.Timer
	last       *RunReport
}

// New creates an orchestrator. Nothing is started until Start is called.
func New(cfg Config) *Orchestrator {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Names == nil {
		cfg.Names = fetch.RandomNames
	}
	if cfg.Arch == "" {
		cfg.Arch = "amd"
	}
	return &Orchestrator{
		cfg:   cfg,
		table: cfg.Table,
		clock: clk,
	}
}

// Start performs one orchestration run with a fresh settings snapshot.
// Failures are recorded in the report and logged; processes started before
// a failure keep running.
func (o *Orchestrator) Start(ctx context.Context) *RunReport {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.run(ctx, nil)
}

const restartKey = "restart"

// Restart stops every managed process, waits for the restart settle delay
// and starts a new run. Calls made before the pending restart reads its
// settings share it; calls made after that wait for the next one.
func (o *Orchestrator) Restart(ctx context.Context) *RunReport {
	v, _, shared := o.restarts.Do(restartKey, func() (interface{}, error) {
		o.runMu.Lock()
		defer o.runMu.Unlock()

		logging.Info(subsystem, "Restarting")
		o.cancelCleanup()
		if err := o.table.StopAll(); err != nil {
			logging.Warn(subsystem, "Some processes did not stop cleanly: %v", err)
		}
		if err := sleep(ctx, o.clock, o.cfg.Runtime.Timing.RestartSettle); err != nil {
			report := &RunReport{StartedAt: o.clock.Now(), FinishedAt: o.clock.Now()}
			report.record(StepSettings, err)
			return report, nil
		}
		// Once the snapshot is taken, newer requests must start their own run.
		return o.run(ctx, func() { o.restarts.Forget(restartKey) }), nil
	})
	if shared {
		logging.Info(subsystem, "Restart request coalesced with one already in progress")
	}
	return v.(*RunReport)
}

// Shutdown cancels the deferred cleanup and stops every managed process.
func (o *Orchestrator) Shutdown() error {
	o.cancelCleanup()
	err := o.table.StopAll()
	if err != nil {
		logging.Error(subsystem, err, "Failed to stop all processes")
	}
	return err
}

// Last returns the report of the most recent run.
func (o *Orchestrator) Last() *RunReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *Orchestrator) nextGeneration() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	return o.generation
}

// scheduleCleanup removes transient artifacts after the grace period,
// replacing any cleanup still pending from an earlier run.
func (o *Orchestrator) scheduleCleanup(targets []artifact.Artifact) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cleanup != nil {
		o.cleanup.Stop()
	}
	grace := o.cfg.Runtime.Timing.CleanupGrace
	o.cleanup = o.clock.AfterFunc(grace, func() {
		if err := artifact.RemoveAll(targets...); err != nil {
			logging.Warn(subsystem, "Deferred cleanup incomplete: %v", err)
		}
		logging.Info(subsystem, "App is running")
	})
	logging.Debug(subsystem, "Transient artifacts will be removed in %v", grace)
}

func (o *Orchestrator) cancelCleanup() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cleanup != nil {
		o.cleanup.Stop()
		o.cleanup = nil
	}
}
