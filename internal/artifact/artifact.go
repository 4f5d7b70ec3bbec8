// Package artifact models the files relayctl exchanges with its child
// processes through the working directory.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
)

// Kind classifies an artifact by the role it plays in a run.
type Kind string

const (
	KindConfig       Kind = "config"       // rendered configuration read by a child
	KindLog          Kind = "log"          // log a child writes and relayctl reads
	KindCredential   Kind = "credential"   // tunnel credential file
	KindDescriptor   Kind = "descriptor"   // tunnel descriptor
	KindSubscription Kind = "subscription" // persisted link blob
	KindBinary       Kind = "binary"       // downloaded executable
	KindStore        Kind = "store"        // persisted settings; never cleaned
)

// Artifact is a named file in the working directory.
type Artifact struct {
	Name string
	Kind Kind
	Path string
}

// ErrAlreadyWritten is returned when an artifact is written twice in one run.
var ErrAlreadyWritten = errors.New("artifact already written in this run")

func (a Artifact) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.Kind)
}

// Read returns the artifact contents.
func (a Artifact) Read() ([]byte, error) {
	return os.ReadFile(a.Path)
}

// Exists reports whether the artifact is present on disk.
func (a Artifact) Exists() bool {
	_, err := os.Stat(a.Path)
	return err == nil
}

// Remove deletes the artifact. A missing file is not an error.
func (a Artifact) Remove() error {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", a.Name, err)
	}
	return nil
}

// Layout is the fixed set of artifacts living in one working directory.
type Layout struct {
	Dir string

	RelayConfig      Artifact
	BootLog          Artifact
	TunnelCredential Artifact
	TunnelDescriptor Artifact
	MonitorConfig    Artifact
	Subscription     Artifact
	Store            Artifact
}

// NewLayout returns the artifact layout rooted at dir.
func NewLayout(dir string) Layout {
	at := func(name string, kind Kind) Artifact {
		return Artifact{Name: name, Kind: kind, Path: filepath.Join(dir, name)}
	}
	return Layout{
		Dir:              dir,
		RelayConfig:      at("config.json", KindConfig),
		BootLog:          at("boot.log", KindLog),
		TunnelCredential: at("tunnel.json", KindCredential),
		TunnelDescriptor: at("tunnel.yml", KindDescriptor),
		MonitorConfig:    at("config.yaml", KindConfig),
		Subscription:     at("sub.txt", KindSubscription),
		Store:            at(".env", KindStore),
	}
}

// Binary returns the artifact for a downloaded executable named name.
func (l Layout) Binary(name string) Artifact {
	return Artifact{Name: name, Kind: KindBinary, Path: filepath.Join(l.Dir, name)}
}

// Ensure creates the working directory.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create working directory %s: %w", l.Dir, err)
	}
	return nil
}

// Clean removes every regular file in the working directory except the
// settings store. Subdirectories are left alone.
func (l Layout) Clean() error {
	entries, err := os.ReadDir(l.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", l.Dir, err)
	}

	var errs error
	for _, entry := range entries {
		if !entry.Type().IsRegular() || entry.Name() == l.Store.Name {
			continue
		}
		if err := os.Remove(filepath.Join(l.Dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// RemoveAll removes every artifact given, collecting failures.
func RemoveAll(artifacts ...Artifact) error {
	var errs error
	for _, a := range artifacts {
		errs = multierr.Append(errs, a.Remove())
	}
	return errs
}

// Run guards the write-once-per-run rule. Each orchestration run creates a
// fresh Run; writing the same artifact twice in one run is an error.
type Run struct {
	mu      sync.Mutex
	written map[string]Artifact
}

// NewRun starts a new write-once scope.
func NewRun() *Run {
	return &Run{written: make(map[string]Artifact)}
}

// Write replaces the artifact contents on disk with data.
func (r *Run) Write(a Artifact, data []byte, perm os.FileMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.written[a.Path]; ok {
		return fmt.Errorf("%s: %w", a.Name, ErrAlreadyWritten)
	}
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", a.Name, err)
	}
	if err := os.WriteFile(a.Path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", a.Name, err)
	}
	r.written[a.Path] = a
	return nil
}

// Claim marks an artifact a child process is expected to produce, such as
// a log, so that relayctl itself cannot also write it in this run.
func (r *Run) Claim(a Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.written[a.Path]; ok {
		return fmt.Errorf("%s: %w", a.Name, ErrAlreadyWritten)
	}
	r.written[a.Path] = a
	return nil
}

// Written returns the artifacts produced so far in this run.
func (r *Run) Written() []Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Artifact, 0, len(r.written))
	for _, a := range r.written {
		out = append(out, a)
	}
	return out
}
