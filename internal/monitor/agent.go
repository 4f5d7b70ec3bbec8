// Package monitor plans the launch of the optional monitoring agent.
//
// Two agent generations exist. The older one (v0) takes everything on the
// command line and needs a separate port; the newer one (v1) reads a YAML
// file and takes the port as part of the server address.
package monitor

import (
	"fmt"
	"strings"

	"relayctl/internal/artifact"
	"relayctl/internal/config"
	"relayctl/internal/process"

	"gopkg.in/yaml.v3"
)

// Version identifies the agent generation.
type Version string

const (
	V0 Version = "v0"
	V1 Version = "v1"
)

var tlsPorts = map[string]bool{
	"443": true, "8443": true, "2096": true, "2087": true, "2083": true, "2053": true,
}

// IsTLSPort reports whether port is one the monitoring server serves TLS on.
func IsTLSPort(port string) bool {
	return tlsPorts[port]
}

// VersionFor returns the agent generation for s, and false when monitoring
// is disabled.
func VersionFor(s config.Settings) (Version, bool) {
	if !s.MonitoringEnabled() {
		return "", false
	}
	if s.NezhaPort != "" {
		return V0, true
	}
	return V1, true
}

// DownloadURL returns the agent binary location for v.
func DownloadURL(v Version, set config.BinarySet) string {
	if v == V0 {
		return set.MonitorV0
	}
	return set.MonitorV1
}

// AgentConfig is the v1 agent configuration file.
type AgentConfig struct {
	ClientSecret          string `yaml:"client_secret"`
	Debug                 bool   `yaml:"debug"`
	DisableAutoUpdate     bool   `yaml:"disable_auto_update"`
	DisableCommandExecute bool   `yaml:"disable_command_execute"`
	DisableForceUpdate    bool   `yaml:"disable_force_update"`
	DisableNAT            bool   `yaml:"disable_nat"`
	DisableSendQuery      bool   `yaml:"disable_send_query"`
	GPU                   bool   `yaml:"gpu"`
	InsecureTLS           bool   `yaml:"insecure_tls"`
	IPReportPeriod        int    `yaml:"ip_report_period"`
	ReportDelay           int    `yaml:"report_delay"`
	Server                string `yaml:"server"`
	SkipConnectionCount   bool   `yaml:"skip_connection_count"`
	SkipProcsCount        bool   `yaml:"skip_procs_count"`
	Temperature           bool   `yaml:"temperature"`
	TLS                   bool   `yaml:"tls"`
	UseGiteeToUpgrade     bool   `yaml:"use_gitee_to_upgrade"`
	UseIPv6CountryCode    bool   `yaml:"use_ipv6_country_code"`
	UUID                  string `yaml:"uuid"`
}

// NewAgentConfig builds the v1 configuration for s.
func NewAgentConfig(s config.Settings) AgentConfig {
	port := ""
	if i := strings.LastIndex(s.NezhaServer, ":"); i >= 0 {
		port = s.NezhaServer[i+1:]
	}
	return AgentConfig{
		ClientSecret:        s.NezhaKey,
		DisableAutoUpdate:   true,
		DisableForceUpdate:  true,
		InsecureTLS:         true,
		IPReportPeriod:      1800,
		ReportDelay:         4,
		Server:              s.NezhaServer,
		SkipConnectionCount: true,
		SkipProcsCount:      true,
		TLS:                 IsTLSPort(port),
		UUID:                s.UUID,
	}
}

// Prepare writes whatever the agent needs before launch and returns its
// command. Only v1 writes a file.
func Prepare(run *artifact.Run, layout artifact.Layout, s config.Settings, v Version, binary string) (process.Command, error) {
	if v == V0 {
		args := []string{"-s", s.NezhaServer + ":" + s.NezhaPort, "-p", s.NezhaKey}
		if IsTLSPort(s.NezhaPort) {
			args = append(args, "--tls")
		}
		args = append(args, "--disable-auto-update", "--report-delay", "4", "--skip-conn", "--skip-procs")
		return process.Command{Path: binary, Args: args}, nil
	}

	data, err := yaml.Marshal(NewAgentConfig(s))
	if err != nil {
		return process.Command{}, fmt.Errorf("failed to encode monitor config: %w", err)
	}
	if err := run.Write(layout.MonitorConfig, data, 0o600); err != nil {
		return process.Command{}, err
	}
	return process.Command{Path: binary, Args: []string{"-c", layout.MonitorConfig.Path}}, nil
}
