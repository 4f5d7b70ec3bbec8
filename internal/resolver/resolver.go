// Package resolver discovers the public hostname the tunnel is reachable on.
package resolver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"relayctl/internal/artifact"
	"relayctl/internal/config"
	"relayctl/internal/retry"
	"relayctl/internal/tunnel"
	"relayctl/pkg/logging"

	"github.com/benbjohnson/clock"
)

const subsystem = "Resolver"

// hostnamePattern matches the quick tunnel announcement in the client log.
var hostnamePattern = regexp.MustCompile(`https?://([^ ]*trycloudflare\.com)/?`)

var errNotFound = errors.New("hostname not found in tunnel log")

// State is the resolver's progress within one run.
type State string

const (
	StateInit       State = "INIT"
	StateAwaitLog   State = "AWAIT_LOG"
	StateRetrySpawn State = "RETRY_SPAWN"
	StateResolved   State = "RESOLVED"
	StateFailed     State = "FAILED"
)

// Source tells where a hostname came from.
type Source string

const (
	SourceConfigured Source = "configured"
	SourceLog        Source = "log"
)

// Endpoint is a resolved public hostname.
type Endpoint struct {
	Hostname string
	Source   Source
	Attempts int
}

// TunnelControl lets the resolver restart a quick tunnel client that has
// not announced a hostname.
type TunnelControl interface {
	// Kill terminates the running tunnel client.
	Kill()
	// Respawn launches a fresh tunnel client in quick mode.
	Respawn(ctx context.Context) error
}

// ResolutionFailure is returned when the attempt budget is exhausted.
type ResolutionFailure struct {
	Attempts int
	LogPath  string
	Err      error
}

func (e *ResolutionFailure) Error() string {
	return fmt.Sprintf("tunnel hostname not resolved after %d attempts (log %s): %v", e.Attempts, e.LogPath, e.Err)
}

func (e *ResolutionFailure) Unwrap() error { return e.Err }

// Resolver resolves the endpoint once per run. Create a new Resolver for
// every orchestration run.
type Resolver struct {
	log     artifact.Artifact
	control TunnelControl
	tuning  config.ResolverTuning
	clock   clock.Clock

	mu       sync.Mutex
	state    State
	done     bool
	endpoint Endpoint
	err      error
}

// New returns a Resolver reading the quick tunnel log at log. A nil clk
// uses the wall clock.
func New(log artifact.Artifact, control TunnelControl, tuning config.ResolverTuning, clk clock.Clock) *Resolver {
	if clk == nil {
		clk = clock.New()
	}
	if tuning.MaxAttempts < 1 {
		tuning.MaxAttempts = 1
	}
	return &Resolver{
		log:     log,
		control: control,
		tuning:  tuning,
		clock:   clk,
		state:   StateInit,
	}
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Resolver) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Resolve returns the public hostname for plan. The outcome is terminal:
// later calls return the first result without touching the tunnel again.
func (r *Resolver) Resolve(ctx context.Context, plan tunnel.Plan) (Endpoint, error) {
	r.mu.Lock()
	if r.done {
		defer r.mu.Unlock()
		return r.endpoint, r.err
	}
	r.mu.Unlock()

	var (
		endpoint Endpoint
		err      error
	)
	if plan.Mode != tunnel.ModeQuick {
		endpoint = Endpoint{Hostname: plan.Hostname, Source: SourceConfigured}
		logging.Info(subsystem, "Using configured tunnel hostname %s", plan.Hostname)
	} else {
		endpoint, err = r.resolveFromLog(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.endpoint, r.err = endpoint, err
	if err != nil {
		r.state = StateFailed
	} else {
		r.state = StateResolved
	}
	return endpoint, err
}

// resolveFromLog scans the tunnel log, restarting the client between
// attempts. The first attempt scans right away since the caller already
// waited for the client to come up.
func (r *Resolver) resolveFromLog(ctx context.Context) (Endpoint, error) {
	var hostname string
	attempts := 0

	logging.Debug(subsystem, "Scanning %s for the tunnel hostname, giving up after %v", r.log.Path, Budget(r.tuning))

	p := retry.Constant(r.tuning.Cooldown, r.tuning.MaxAttempts)
	p.Clock = r.clock
	p.OnRetry = func(attempt int, err error) {
		logging.Info(subsystem, "Tunnel hostname not found (attempt %d/%d), restarting tunnel client", attempt, r.tuning.MaxAttempts)
		logging.Debug(subsystem, "Attempt %d: %v", attempt, err)
		r.control.Kill()
		if rmErr := r.log.Remove(); rmErr != nil {
			logging.Warn(subsystem, "Failed to remove stale tunnel log: %v", rmErr)
		}
	}

	err := p.Do(ctx, func(attempt int) error {
		attempts = attempt
		if attempt > 1 {
			r.setState(StateRetrySpawn)
			if err := r.control.Respawn(ctx); err != nil {
				return fmt.Errorf("respawn tunnel client: %w", err)
			}
			r.setState(StateAwaitLog)
			if err := retry.Sleep(ctx, r.clock, r.tuning.Warmup); err != nil {
				return retry.Permanent(err)
			}
		} else {
			r.setState(StateAwaitLog)
		}

		found, err := r.scan()
		if err != nil {
			return err
		}
		hostname = found
		return nil
	})
	if err != nil {
		return Endpoint{}, &ResolutionFailure{Attempts: attempts, LogPath: r.log.Path, Err: err}
	}

	logging.Info(subsystem, "Tunnel hostname %s resolved after %d attempt(s)", hostname, attempts)
	return Endpoint{Hostname: hostname, Source: SourceLog, Attempts: attempts}, nil
}

func (r *Resolver) scan() (string, error) {
	data, err := r.log.Read()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errNotFound, err)
	}
	if hostname, ok := ExtractHostname(data); ok {
		return hostname, nil
	}
	return "", errNotFound
}

// ExtractHostname returns the hostname from the first log line announcing
// a quick tunnel URL, without scheme or path.
func ExtractHostname(log []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(log))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := hostnamePattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		host := m[1]
		if i := strings.IndexByte(host, '/'); i >= 0 {
			host = host[:i]
		}
		return host, true
	}
	return "", false
}

// Budget returns the worst-case time spent resolving in quick mode.
func Budget(t config.ResolverTuning) time.Duration {
	if t.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(t.MaxAttempts-1) * (t.Cooldown + t.Warmup)
}
