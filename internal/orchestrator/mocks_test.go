package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"relayctl/internal/config"
	"relayctl/internal/fetch"
	"relayctl/internal/process"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

// mockSpawner records starts instead of launching anything.
type mockSpawner struct {
	mu       sync.Mutex
	live     map[string]process.Command
	started  []string
	commands map[string][]process.Command
	stops    int
	fail     map[string]error
	pids     map[string]int

	// quickHostname is written to the --logfile of quick tunnel starts.
	quickHostname string
}

func newMockSpawner() *mockSpawner {
	return &mockSpawner{
		live:     make(map[string]process.Command),
		commands: make(map[string][]process.Command),
		fail:     make(map[string]error),
		pids:     make(map[string]int),
	}
}

func (m *mockSpawner) Start(name string, c process.Command) (*process.ManagedProcess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commands[name] = append(m.commands[name], c)
	if err, ok := m.fail[name]; ok {
		delete(m.live, name)
		return nil, &process.SpawnError{Name: name, Binary: c.Path, Err: err}
	}
	m.started = append(m.started, name)
	m.live[name] = c
	m.pids[name] = 1000 + len(m.started)

	if m.quickHostname != "" {
		for i, arg := range c.Args {
			if arg == "--logfile" && i+1 < len(c.Args) {
				line := fmt.Sprintf("INF |  https://%s  |\n", m.quickHostname)
				_ = os.WriteFile(c.Args[i+1], []byte(line), 0o644)
			}
		}
	}
	return &process.ManagedProcess{Name: name, Binary: c.Path, PID: m.pids[name]}, nil
}

func (m *mockSpawner) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.live = make(map[string]process.Command)
	return nil
}

func (m *mockSpawner) IsRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[name]
	return ok
}

func (m *mockSpawner) Get(name string) (*process.ManagedProcess, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.live[name]
	if !ok {
		return nil, false
	}
	return &process.ManagedProcess{Name: name, Binary: c.Path, PID: m.pids[name]}, true
}

func (m *mockSpawner) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.live))
	for name := range m.live {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *mockSpawner) startOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.started...)
}

func (m *mockSpawner) lastCommand(name string) process.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmds := m.commands[name]
	if len(cmds) == 0 {
		return process.Command{}
	}
	return cmds[len(cmds)-1]
}

// mockDownloader writes a placeholder for every item, or fails.
type mockDownloader struct {
	mu      sync.Mutex
	calls   [][]fetch.Item
	content func(item fetch.Item) []byte
	err     error
}

func (m *mockDownloader) FetchAll(_ context.Context, items []fetch.Item) error {
	m.mu.Lock()
	m.calls = append(m.calls, items)
	m.mu.Unlock()

	if m.err != nil {
		return &fetch.DownloadFailure{Name: items[0].Name, URL: items[0].URL, Err: m.err}
	}
	for _, item := range items {
		data := []byte("binary")
		if m.content != nil {
			data = m.content(item)
		}
		if err := os.WriteFile(item.Path, data, 0o775); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockDownloader) lastItems() []fetch.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

type mockLabels struct{ label string }

func (m mockLabels) Label(context.Context) string { return m.label }

type mockPublisher struct {
	mu        sync.Mutex
	deleted   [][]string
	published [][]string
	keepAlive []string
	err       error
}

func (m *mockPublisher) DeleteNodes(_ context.Context, _ string, nodes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, nodes)
	return m.err
}

func (m *mockPublisher) Publish(_ context.Context, _ config.Settings, nodes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, nodes)
	return m.err
}

func (m *mockPublisher) KeepAlive(_ context.Context, _ string, projectURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keepAlive = append(m.keepAlive, projectURL)
	return m.err
}

// harness bundles an orchestrator with its mocks and working directory.
type harness struct {
	dir        string
	values     map[string]string
	spawner    *mockSpawner
	downloader *mockDownloader
	publisher  *mockPublisher
	clock      *clock.Mock
	killed     []string
	cfg        Config
	orch       *Orchestrator
}

func testRuntime() config.Runtime {
	rt := config.GetDefaultRuntime()
	rt.Timing = config.Timing{
		CleanupGrace:  90 * time.Second,
		StopTimeout:   time.Second,
		WatchInterval: time.Second,
	}
	rt.Resolver = config.ResolverTuning{MaxAttempts: 3}
	return rt
}

func newHarness(t *testing.T, overrides map[string]string) *harness {
	t.Helper()

	h := &harness{
		dir:        filepath.Join(t.TempDir(), "work"),
		values:     config.DefaultValues(),
		spawner:    newMockSpawner(),
		downloader: &mockDownloader{},
		publisher:  &mockPublisher{},
		clock:      clock.NewMock(),
	}
	h.values[config.KeyUUID] = "abc-123"
	h.values[config.KeyCFIP] = "1.2.3.4"
	h.values[config.KeyFilePath] = h.dir
	for k, v := range overrides {
		h.values[k] = v
	}

	originalKill := killByName
	var killMu sync.Mutex
	killByName = func(binary string) {
		killMu.Lock()
		defer killMu.Unlock()
		h.killed = append(h.killed, binary)
	}
	t.Cleanup(func() { killByName = originalKill })

	counter := 0
	h.cfg = Config{
		Runtime: testRuntime(),
		LoadSettings: func() (config.Settings, error) {
			return config.Parse(h.values)
		},
		Table:      h.spawner,
		Downloader: h.downloader,
		Labels:     mockLabels{label: "US-Test_ISP"},
		Publisher:  h.publisher,
		Arch:       "amd",
		Names: func(n int) []string {
			names := make([]string, n)
			for i := range names {
				counter++
				names[i] = fmt.Sprintf("bin%d", counter)
			}
			return names
		},
		Clock: h.clock,
	}
	h.orch = New(h.cfg)
	return h
}

func requireStepOK(t *testing.T, r *RunReport, step Step) {
	t.Helper()
	res, ok := r.Step(step)
	require.True(t, ok, "step %s did not run", step)
	require.NoError(t, res.Err, "step %s", step)
	require.Empty(t, res.Skipped, "step %s", step)
}
