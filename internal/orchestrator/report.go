package orchestrator

import (
	"errors"
	"io/fs"
	"time"

	"relayctl/internal/artifact"
	"relayctl/internal/fetch"
	"relayctl/internal/links"
	"relayctl/internal/process"
	"relayctl/internal/resolver"
	"relayctl/internal/tunnel"
	"relayctl/internal/xray"

	"go.uber.org/multierr"
)

// Step names a stage of an orchestration run.
type Step string

const (
	StepSettings     Step = "settings"
	StepWithdraw     Step = "withdraw"
	StepCleanup      Step = "cleanup"
	StepRender       Step = "render"
	StepTunnel       Step = "tunnel"
	StepDownload     Step = "download"
	StepMonitor      Step = "monitor"
	StepRelay        Step = "relay"
	StepTunnelClient Step = "tunnel-client"
	StepResolve      Step = "resolve"
	StepLinks        Step = "links"
	StepPublish      Step = "publish"
	StepKeepAlive    Step = "keep-alive"
)

// Kind classifies a step failure.
type Kind string

const (
	KindNone       Kind = ""
	KindSpawn      Kind = "spawn"
	KindRender     Kind = "render"
	KindResolution Kind = "resolution"
	KindDownload   Kind = "download"
	KindArtifact   Kind = "artifact"
	KindOther      Kind = "other"
)

// StepResult records the outcome of one step. Skipped steps carry a reason
// and no error.
type StepResult struct {
	Step    Step
	Err     error
	Skipped string
}

// Kind returns the failure kind of the step.
func (r StepResult) Kind() Kind {
	return Classify(r.Err)
}

// Classify maps an error onto its failure kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		spawnErr    *process.SpawnError
		renderErr   *xray.RenderError
		resolveErr  *resolver.ResolutionFailure
		downloadErr *fetch.DownloadFailure
		pathErr     *fs.PathError
	)
	switch {
	case errors.As(err, &spawnErr):
		return KindSpawn
	case errors.As(err, &renderErr):
		return KindRender
	case errors.As(err, &resolveErr):
		return KindResolution
	case errors.As(err, &downloadErr):
		return KindDownload
	case errors.Is(err, artifact.ErrAlreadyWritten), errors.As(err, &pathErr):
		return KindArtifact
	default:
		return KindOther
	}
}

// RunReport is the structured outcome of one orchestration run.
type RunReport struct {
	Generation int
	StartedAt  time.Time
	FinishedAt time.Time

	Mode     tunnel.Mode
	Hostname string
	Links    links.LinkSet
	Running  []string
	// PIDs maps each running process name to its process ID.
	PIDs map[string]int

	Steps []StepResult
}

func (r *RunReport) record(step Step, err error) error {
	r.Steps = append(r.Steps, StepResult{Step: step, Err: err})
	return err
}

func (r *RunReport) skip(step Step, reason string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Skipped: reason})
}

// Failed reports whether any step failed.
func (r *RunReport) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// FailureKind returns the kind of the first failed step.
func (r *RunReport) FailureKind() Kind {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Kind()
		}
	}
	return KindNone
}

// Step returns the result for step, if it ran.
func (r *RunReport) Step(step Step) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}

// Err combines every step error.
func (r *RunReport) Err() error {
	var errs error
	for _, s := range r.Steps {
		errs = multierr.Append(errs, s.Err)
	}
	return errs
}
