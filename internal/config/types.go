package config

import (
	"time"
)

// Recognized settings keys. These are the names used in the environment and in
// the persisted settings store.
const (
	KeyUUID        = "UUID"
	KeyUploadURL   = "UPLOAD_URL"
	KeyProjectURL  = "PROJECT_URL"
	KeyAutoAccess  = "AUTO_ACCESS"
	KeyFilePath    = "FILE_PATH"
	KeySubPath     = "SUB_PATH"
	KeyNezhaServer = "NEZHA_SERVER"
	KeyNezhaPort   = "NEZHA_PORT"
	KeyNezhaKey    = "NEZHA_KEY"
	KeyArgoDomain  = "ARGO_DOMAIN"
	KeyArgoAuth    = "ARGO_AUTH"
	KeyArgoPort    = "ARGO_PORT"
	KeyCFIP        = "CFIP"
	KeyCFPort      = "CFPORT"
	KeyName        = "NAME"
)

// Keys lists every recognized settings key in display order.
var Keys = []string{
	KeyUploadURL,
	KeyProjectURL,
	KeyAutoAccess,
	KeyUUID,
	KeyNezhaServer,
	KeyNezhaPort,
	KeyNezhaKey,
	KeyArgoDomain,
	KeyArgoAuth,
	KeyArgoPort,
	KeyCFIP,
	KeyCFPort,
	KeyName,
	KeySubPath,
}

// IsKnownKey reports whether key is a recognized settings key.
func IsKnownKey(key string) bool {
	if key == KeyFilePath {
		return true
	}
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Settings is an immutable snapshot of operator configuration. A fresh
// snapshot is taken at the start of every orchestration run.
type Settings struct {
	UUID string // identity token shared by every relay protocol

	UploadURL  string
	ProjectURL string
	AutoAccess bool

	FilePath string // working directory for artifacts and the settings store
	SubPath  string

	NezhaServer string // monitoring server, "host" (v0) or "host:port" (v1)
	NezhaPort   string // set only for v0 agents
	NezhaKey    string

	ArgoDomain string // fixed tunnel hostname
	ArgoAuth   string // fixed tunnel credential: JSON or token
	ArgoPort   int    // local relay listen port the tunnel points at

	CFIP   string // preferred edge address
	CFPort string // preferred edge port
	Name   string // display name prefix for links
}

// MonitoringEnabled reports whether the monitoring agent should be launched.
func (s Settings) MonitoringEnabled() bool {
	return s.NezhaServer != "" && s.NezhaKey != ""
}

// FixedTunnel reports whether both a tunnel hostname and credential are set.
func (s Settings) FixedTunnel() bool {
	return s.ArgoDomain != "" && s.ArgoAuth != ""
}

// Runtime holds tuning that is not part of the operator settings surface:
// delays, retry budgets and download locations.
type Runtime struct {
	Timing       Timing         `yaml:"timing"`
	Resolver     ResolverTuning `yaml:"resolver"`
	Binaries     Binaries       `yaml:"binaries"`
	MetaURL      string         `yaml:"metaURL,omitempty"`      // ISP label source
	KeepAliveURL string         `yaml:"keepAliveURL,omitempty"` // keep-alive registration endpoint
}

// Timing holds the fixed settle and grace delays of an orchestration run.
type Timing struct {
	ProcessSettle time.Duration `yaml:"processSettle,omitempty"` // after monitor and relay spawn
	TunnelSettle  time.Duration `yaml:"tunnelSettle,omitempty"`  // after tunnel spawn
	PostLaunch    time.Duration `yaml:"postLaunch,omitempty"`    // before endpoint resolution
	RestartSettle time.Duration `yaml:"restartSettle,omitempty"` // between stopAll and start on restart
	CleanupGrace  time.Duration `yaml:"cleanupGrace,omitempty"`  // deferred artifact cleanup
	StopTimeout   time.Duration `yaml:"stopTimeout,omitempty"`   // graceful stop before SIGKILL
	WatchInterval time.Duration `yaml:"watchInterval,omitempty"` // settings store polling
}

// ResolverTuning bounds the endpoint resolution loop.
type ResolverTuning struct {
	Warmup      time.Duration `yaml:"warmup,omitempty"`
	Cooldown    time.Duration `yaml:"cooldown,omitempty"`
	MaxAttempts int           `yaml:"maxAttempts,omitempty"`
}

// Binaries holds download locations per CPU family.
type Binaries struct {
	AMD BinarySet `yaml:"amd"`
	ARM BinarySet `yaml:"arm"`
}

// BinarySet lists the executables the relay needs for one CPU family.
type BinarySet struct {
	Relay     string `yaml:"relay,omitempty"`
	Tunnel    string `yaml:"tunnel,omitempty"`
	MonitorV0 string `yaml:"monitorV0,omitempty"`
	MonitorV1 string `yaml:"monitorV1,omitempty"`
}

// For returns the binary set matching arch ("arm" or "amd").
func (b Binaries) For(arch string) BinarySet {
	if arch == "arm" {
		return b.ARM
	}
	return b.AMD
}
