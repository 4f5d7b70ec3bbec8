package config

import (
	"strconv"
	"time"
)

const (
	DefaultUUID     = "9afd1229-b893-40c1-84dd-51e7ce204913"
	DefaultFilePath = "./tmp"
	DefaultSubPath  = "sub"
	DefaultArgoPort = 8001
	DefaultCFIP     = "cdns.doon.eu.org"
	DefaultCFPort   = "443"

	// StoreFileName is the persisted settings store inside FilePath.
	StoreFileName = ".env"
)

// DefaultValues returns the built-in defaults as a key/value mapping, the
// lowest layer of the settings precedence chain.
func DefaultValues() map[string]string {
	return map[string]string{
		KeyUUID:     DefaultUUID,
		KeyFilePath: DefaultFilePath,
		KeySubPath:  DefaultSubPath,
		KeyArgoPort: strconv.Itoa(DefaultArgoPort),
		KeyCFIP:     DefaultCFIP,
		KeyCFPort:   DefaultCFPort,
	}
}

// GetDefaultRuntime returns the runtime tuning used when no tuning file
// overrides it.
func GetDefaultRuntime() Runtime {
	return Runtime{
		Timing: Timing{
			ProcessSettle: 1 * time.Second,
			TunnelSettle:  2 * time.Second,
			PostLaunch:    5 * time.Second,
			RestartSettle: 2 * time.Second,
			CleanupGrace:  90 * time.Second,
			StopTimeout:   5 * time.Second,
			WatchInterval: 5 * time.Second,
		},
		Resolver: ResolverTuning{
			Warmup:      3 * time.Second,
			Cooldown:    3 * time.Second,
			MaxAttempts: 5,
		},
		Binaries: Binaries{
			AMD: BinarySet{
				Relay:     "https://amd64.ssss.nyc.mn/web",
				Tunnel:    "https://amd64.ssss.nyc.mn/bot",
				MonitorV0: "https://amd64.ssss.nyc.mn/agent",
				MonitorV1: "https://amd64.ssss.nyc.mn/v1",
			},
			ARM: BinarySet{
				Relay:     "https://arm64.ssss.nyc.mn/web",
				Tunnel:    "https://arm64.ssss.nyc.mn/bot",
				MonitorV0: "https://arm64.ssss.nyc.mn/agent",
				MonitorV1: "https://arm64.ssss.nyc.mn/v1",
			},
		},
		MetaURL:      "https://speed.cloudflare.com/meta",
		KeepAliveURL: "https://oooo.serv00.net/add-url",
	}
}
