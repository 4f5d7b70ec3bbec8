package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"relayctl/internal/config"
	"relayctl/internal/orchestrator"
	"relayctl/pkg/logging"
)

// For mocking in tests
var (
	signalNotify = signal.Notify
	signalStop   = signal.Stop
)

// runner is the part of the orchestrator the serve loop drives.
type runner interface {
	Start(ctx context.Context) *orchestrator.RunReport
	Restart(ctx context.Context) *orchestrator.RunReport
	Shutdown() error
}

type serveOptions struct {
	runner    runner
	storePath string
	interval  time.Duration
	out       io.Writer
}

// runServe performs the initial run, then restarts on SIGHUP or a settings
// store change and shuts down on SIGINT, SIGTERM or ctx cancellation.
func runServe(ctx context.Context, opts serveOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signalStop(sigChan)

	printSummary(opts.out, opts.runner.Start(ctx))

	changes := make(chan struct{}, 1)
	if opts.storePath != "" && opts.interval > 0 {
		watcher := config.NewWatcher(opts.storePath, opts.interval, nil)
		go watcher.Run(ctx, func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		})
		logging.Debug("Serve", "Watching %s for settings changes", opts.storePath)
	}

	var restarts sync.WaitGroup
	restart := func(reason string) {
		logging.Info("Serve", "%s, restarting", reason)
		restarts.Add(1)
		go func() {
			defer restarts.Done()
			report := opts.runner.Restart(ctx)
			if ctx.Err() == nil {
				printSummary(opts.out, report)
			}
		}()
	}

	logging.Info("Serve", "Running. Send SIGHUP or edit the settings store to restart, Ctrl+C to stop.")

	for {
		select {
		case <-ctx.Done():
			return shutdown(cancel, &restarts, opts.runner)
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				restart("Received SIGHUP")
				continue
			}
			logging.Info("Serve", "Received %s", sig)
			return shutdown(cancel, &restarts, opts.runner)
		case <-changes:
			restart("Settings changed")
		}
	}
}

func shutdown(cancel context.CancelFunc, restarts *sync.WaitGroup, r runner) error {
	logging.Info("Serve", "--- Shutting down ---")
	cancel()
	restarts.Wait()
	if err := r.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func printSummary(out io.Writer, report *orchestrator.RunReport) {
	if out == nil || report == nil {
		return
	}
	fmt.Fprintln(out, Summary(report))
}
