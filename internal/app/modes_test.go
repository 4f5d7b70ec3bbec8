package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"relayctl/internal/orchestrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu        sync.Mutex
	starts    int
	restarts  int
	shutdowns int
	shutErr   error
}

func (f *fakeRunner) Start(context.Context) *orchestrator.RunReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return &orchestrator.RunReport{Generation: f.starts + f.restarts}
}

func (f *fakeRunner) Restart(context.Context) *orchestrator.RunReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return &orchestrator.RunReport{Generation: f.starts + f.restarts}
}

func (f *fakeRunner) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return f.shutErr
}

func (f *fakeRunner) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.restarts, f.shutdowns
}

// mockSignals captures the channel runServe registers.
func mockSignals(t *testing.T) <-chan chan<- os.Signal {
	t.Helper()
	registered := make(chan chan<- os.Signal, 1)

	originalNotify, originalStop := signalNotify, signalStop
	signalNotify = func(c chan<- os.Signal, _ ...os.Signal) { registered <- c }
	signalStop = func(chan<- os.Signal) {}
	t.Cleanup(func() {
		signalNotify, signalStop = originalNotify, originalStop
	})
	return registered
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunServe_SignalsAndStoreChanges(t *testing.T) {
	registered := mockSignals(t)
	store := filepath.Join(t.TempDir(), ".env")
	runner := &fakeRunner{}
	out := &syncBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- runServe(context.Background(), serveOptions{
			runner:    runner,
			storePath: store,
			interval:  10 * time.Millisecond,
			out:       out,
		})
	}()

	var sigChan chan<- os.Signal
	select {
	case sigChan = <-registered:
	case <-time.After(time.Second):
		t.Fatal("signal handler was not registered")
	}

	assert.Eventually(t, func() bool {
		starts, _, _ := runner.counts()
		return starts == 1
	}, time.Second, 5*time.Millisecond)

	sigChan <- syscall.SIGHUP
	assert.Eventually(t, func() bool {
		_, restarts, _ := runner.counts()
		return restarts == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(store, []byte("NAME=edge\n"), 0o600))
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Run 3")
	}, 2*time.Second, 5*time.Millisecond)

	sigChan <- syscall.SIGTERM
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve loop did not stop")
	}

	_, _, shutdowns := runner.counts()
	assert.Equal(t, 1, shutdowns)
	_, restarts, _ := runner.counts()
	assert.Equal(t, 2, restarts)
	assert.Contains(t, out.String(), "Run 1")
}

func TestRunServe_ContextCancel(t *testing.T) {
	mockSignals(t)
	runner := &fakeRunner{shutErr: errors.New("relay did not stop")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, serveOptions{runner: runner})
	}()

	assert.Eventually(t, func() bool {
		starts, _, _ := runner.counts()
		return starts == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "relay did not stop")
	case <-time.After(2 * time.Second):
		t.Fatal("serve loop did not stop")
	}
}
