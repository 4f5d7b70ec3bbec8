package app

import (
	"runtime"
	"time"

	"relayctl/internal/config"
	"relayctl/internal/fetch"
	"relayctl/internal/meta"
	"relayctl/internal/orchestrator"
	"relayctl/internal/process"
	"relayctl/internal/upload"
)

const (
	labelTimeout  = 5 * time.Second
	uploadTimeout = 10 * time.Second
)

// Services holds the orchestrator and the collaborators it was built from.
type Services struct {
	Runtime      config.Runtime
	Table        *process.Table
	Orchestrator *orchestrator.Orchestrator
}

// InitializeServices wires the production collaborators into an
// orchestrator.
func InitializeServices(rt config.Runtime) *Services {
	table := process.NewTable(rt.Timing.StopTimeout, nil)

	orch := orchestrator.New(orchestrator.Config{
		Runtime:      rt,
		LoadSettings: config.LoadSettings,
		Table:        table,
		Downloader:   fetch.New(),
		Labels:       meta.New(rt.MetaURL, labelTimeout),
		Publisher:    upload.New(uploadTimeout),
		Arch:         fetch.Arch(runtime.GOARCH),
	})

	return &Services{
		Runtime:      rt,
		Table:        table,
		Orchestrator: orch,
	}
}
