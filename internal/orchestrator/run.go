package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"relayctl/internal/artifact"
	"relayctl/internal/config"
	"relayctl/internal/fetch"
	"relayctl/internal/links"
	"relayctl/internal/monitor"
	"relayctl/internal/process"
	"relayctl/internal/resolver"
	"relayctl/internal/retry"
	"relayctl/internal/tunnel"
	"relayctl/internal/xray"
	"relayctl/pkg/logging"

	"github.com/benbjohnson/clock"
)

// bestEffortTimeout bounds each publish and keep-alive call.
const bestEffortTimeout = 15 * time.Second

// binaries holds the downloaded executables of one run.
type binaries struct {
	monitor artifact.Artifact
	relay   artifact.Artifact
	tunnel  artifact.Artifact
	version monitor.Version
	withMon bool
}

func (b binaries) all() []artifact.Artifact {
	out := []artifact.Artifact{b.relay, b.tunnel}
	if b.withMon {
		out = append(out, b.monitor)
	}
	return out
}

// run performs one orchestration run. loaded, when set, is called right
// after the settings snapshot is taken.
func (o *Orchestrator) run(ctx context.Context, loaded func()) *RunReport {
	report := &RunReport{Generation: o.nextGeneration(), StartedAt: o.clock.Now()}
	defer func() {
		report.FinishedAt = o.clock.Now()
		report.Running = o.table.Names()
		report.PIDs = make(map[string]int, len(report.Running))
		for _, name := range report.Running {
			if p, ok := o.table.Get(name); ok {
				report.PIDs[name] = p.PID
			}
		}
		o.mu.Lock()
		o.last = report
		o.mu.Unlock()
		if report.Failed() {
			logging.Error(subsystem, report.Err(), "Run %d finished with failures (%s)", report.Generation, report.FailureKind())
		} else {
			logging.Info(subsystem, "Run %d finished", report.Generation)
		}
	}()

	s, err := o.cfg.LoadSettings()
	if loaded != nil {
		loaded()
	}
	if report.record(StepSettings, err) != nil {
		return report
	}
	for _, note := range config.Warnings(s) {
		logging.Warn(subsystem, "%s", note)
	}

	dir, err := filepath.Abs(s.FilePath)
	if err != nil {
		report.record(StepCleanup, err)
		return report
	}
	layout := artifact.NewLayout(dir)
	run := artifact.NewRun()

	o.withdrawStaleNodes(ctx, s, layout, report)

	if report.record(StepCleanup, o.cleanWorkDir(layout)) != nil {
		return report
	}

	if report.record(StepRender, xray.Write(run, layout.RelayConfig, s)) != nil {
		return report
	}

	plan := tunnel.Decide(s)
	report.Mode = plan.Mode
	if plan.Note != "" {
		logging.Info(subsystem, "%s", plan.Note)
	}
	if report.record(StepTunnel, tunnel.Provision(run, layout, s, plan)) != nil {
		return report
	}

	bins, items := o.planBinaries(layout, s)
	if report.record(StepDownload, o.cfg.Downloader.FetchAll(ctx, items)) != nil {
		return report
	}

	// From here on the binaries exist and must be cleaned up eventually.
	o.scheduleCleanup(append([]artifact.Artifact{layout.BootLog, layout.RelayConfig}, bins.all()...))

	if bins.withMon {
		cmd, err := monitor.Prepare(run, layout, s, bins.version, bins.monitor.Path)
		if err == nil {
			_, err = o.table.Start(ProcMonitor, cmd)
		}
		report.record(StepMonitor, err)
		if err := sleep(ctx, o.clock, o.cfg.Runtime.Timing.ProcessSettle); err != nil {
			return report
		}
	} else {
		report.skip(StepMonitor, "monitoring not configured")
	}

	_, err = o.table.Start(ProcRelay, process.Command{Path: bins.relay.Path, Args: []string{"-c", layout.RelayConfig.Path}})
	report.record(StepRelay, err)
	if err := sleep(ctx, o.clock, o.cfg.Runtime.Timing.ProcessSettle); err != nil {
		return report
	}

	_, err = o.table.Start(ProcTunnel, tunnel.Command(bins.tunnel.Path, plan, layout, s))
	report.record(StepTunnelClient, err)
	if err := sleep(ctx, o.clock, o.cfg.Runtime.Timing.TunnelSettle+o.cfg.Runtime.Timing.PostLaunch); err != nil {
		return report
	}

	control := &tunnelControl{table: o.table, binary: bins.tunnel, layout: layout, port: s.ArgoPort}
	res := resolver.New(layout.BootLog, control, o.cfg.Runtime.Resolver, o.clock)
	endpoint, err := res.Resolve(ctx, plan)
	if report.record(StepResolve, err) != nil {
		return report
	}
	report.Hostname = endpoint.Hostname

	label := o.cfg.Labels.Label(ctx)
	set, err := links.Build(s, endpoint.Hostname, label)
	if err == nil {
		err = set.Persist(run, layout.Subscription)
	}
	if report.record(StepLinks, err) != nil {
		return report
	}
	report.Links = set
	logging.Info(subsystem, "%s saved successfully", layout.Subscription.Path)
	logging.Debug(subsystem, "Subscription: %s", set.Encoded())

	o.publish(ctx, s, set, report)
	o.keepAlive(ctx, s, report)
	return report
}

func (o *Orchestrator) cleanWorkDir(layout artifact.Layout) error {
	if err := layout.Ensure(); err != nil {
		return err
	}
	return layout.Clean()
}

// withdrawStaleNodes asks the aggregator to forget the nodes of the
// previous run before its subscription file is cleaned away.
func (o *Orchestrator) withdrawStaleNodes(ctx context.Context, s config.Settings, layout artifact.Layout, report *RunReport) {
	if s.UploadURL == "" {
		report.skip(StepWithdraw, "no upload URL")
		return
	}
	blob, err := layout.Subscription.Read()
	if err != nil {
		report.skip(StepWithdraw, "no previous subscription")
		return
	}
	nodes, err := links.Decode(blob)
	if err != nil || len(nodes) == 0 {
		report.skip(StepWithdraw, "previous subscription carries no nodes")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, bestEffortTimeout)
	defer cancel()
	if err := o.cfg.Publisher.DeleteNodes(ctx, s.UploadURL, nodes); err != nil {
		logging.Debug(subsystem, "Withdrawing stale nodes failed: %v", err)
	}
	report.record(StepWithdraw, nil)
}

func (o *Orchestrator) planBinaries(layout artifact.Layout, s config.Settings) (binaries, []fetch.Item) {
	set := o.cfg.Runtime.Binaries.For(o.cfg.Arch)
	names := o.cfg.Names(3)

	b := binaries{
		relay:  layout.Binary(names[0]),
		tunnel: layout.Binary(names[1]),
	}
	items := []fetch.Item{
		{Name: ProcRelay, URL: set.Relay, Path: b.relay.Path},
		{Name: ProcTunnel, URL: set.Tunnel, Path: b.tunnel.Path},
	}

	if v, ok := monitor.VersionFor(s); ok {
		b.withMon = true
		b.version = v
		b.monitor = layout.Binary(names[2])
		items = append([]fetch.Item{{Name: ProcMonitor, URL: monitor.DownloadURL(v, set), Path: b.monitor.Path}}, items...)
	} else {
		logging.Info(subsystem, "Monitoring not configured, skipping agent")
	}
	return b, items
}

func (o *Orchestrator) publish(ctx context.Context, s config.Settings, set links.LinkSet, report *RunReport) {
	if s.UploadURL == "" {
		report.skip(StepPublish, "no upload URL")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, bestEffortTimeout)
	defer cancel()
	if err := o.cfg.Publisher.Publish(ctx, s, set.URIs()); err != nil {
		logging.Warn(subsystem, "Publishing failed: %v", err)
	}
	report.record(StepPublish, nil)
}

func (o *Orchestrator) keepAlive(ctx context.Context, s config.Settings, report *RunReport) {
	if !s.AutoAccess || s.ProjectURL == "" {
		logging.Info(subsystem, "Skipping adding automatic access task")
		report.skip(StepKeepAlive, "automatic access disabled")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, bestEffortTimeout)
	defer cancel()
	if err := o.cfg.Publisher.KeepAlive(ctx, o.cfg.Runtime.KeepAliveURL, s.ProjectURL); err != nil {
		logging.Warn(subsystem, "Add automatic access task failed: %v", err)
	} else {
		logging.Info(subsystem, "Automatic access task added successfully")
	}
	report.record(StepKeepAlive, nil)
}

// tunnelControl lets the resolver restart a quick tunnel client.
type tunnelControl struct {
	table  Spawner
	binary artifact.Artifact
	layout artifact.Layout
	port   int
}

func (c *tunnelControl) Kill() {
	killByName(c.binary.Name)
}

func (c *tunnelControl) Respawn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.table.Start(ProcTunnel, process.Command{Path: c.binary.Path, Args: tunnel.QuickArgs(c.layout, c.port)})
	if err != nil {
		return fmt.Errorf("respawn %s: %w", ProcTunnel, err)
	}
	return nil
}

func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	return retry.Sleep(ctx, clk, d)
}
