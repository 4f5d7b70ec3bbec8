// Package tunnel decides how the tunnel client connects and prepares the
// files and arguments it needs.
package tunnel

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"relayctl/internal/artifact"
	"relayctl/internal/config"
	"relayctl/internal/process"

	"gopkg.in/yaml.v3"
)

// Mode is the way the tunnel client connects.
type Mode string

const (
	// ModeQuick asks the edge for an ephemeral hostname, announced in the
	// client's log.
	ModeQuick Mode = "quick"
	// ModeFixed runs a named tunnel from a service-account credential and a
	// descriptor routing the hostname to the relay.
	ModeFixed Mode = "fixed"
	// ModeToken runs a named tunnel from a single connector token.
	ModeToken Mode = "token"
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9=]{120,250}$`)

// Plan is the outcome of Decide.
type Plan struct {
	Mode     Mode
	Hostname string // known up front in fixed and token modes
	TunnelID string // fixed mode only
	Note     string // informational remark for the operator
}

// Decide picks the tunnel mode for s.
func Decide(s config.Settings) Plan {
	if !s.FixedTunnel() {
		return Plan{Mode: ModeQuick, Note: fmt.Sprintf("%s or %s is empty, using a quick tunnel", config.KeyArgoDomain, config.KeyArgoAuth)}
	}

	credential := strings.TrimSpace(s.ArgoAuth)
	switch {
	case strings.Contains(credential, "TunnelSecret"):
		id, err := tunnelID(credential)
		if err != nil {
			return Plan{Mode: ModeQuick, Note: fmt.Sprintf("%s looks like a tunnel credential but cannot be read (%v), using a quick tunnel", config.KeyArgoAuth, err)}
		}
		return Plan{Mode: ModeFixed, Hostname: s.ArgoDomain, TunnelID: id}
	case tokenPattern.MatchString(credential):
		return Plan{Mode: ModeToken, Hostname: s.ArgoDomain}
	default:
		return Plan{Mode: ModeQuick, Note: fmt.Sprintf("%s is neither a tunnel credential nor a token, using a quick tunnel", config.KeyArgoAuth)}
	}
}

func tunnelID(credential string) (string, error) {
	var cred struct {
		TunnelID string `json:"TunnelID"`
	}
	if err := json.Unmarshal([]byte(credential), &cred); err != nil {
		return "", err
	}
	if cred.TunnelID == "" {
		return "", fmt.Errorf("TunnelID is missing")
	}
	return cred.TunnelID, nil
}

// Descriptor is the tunnel client configuration used in fixed mode.
type Descriptor struct {
	Tunnel          string        `yaml:"tunnel"`
	CredentialsFile string        `yaml:"credentials-file"`
	Protocol        string        `yaml:"protocol"`
	Ingress         []IngressRule `yaml:"ingress"`
}

type IngressRule struct {
	Hostname      string         `yaml:"hostname,omitempty"`
	Service       string         `yaml:"service"`
	OriginRequest *OriginRequest `yaml:"originRequest,omitempty"`
}

type OriginRequest struct {
	NoTLSVerify bool `yaml:"noTLSVerify"`
}

// NewDescriptor routes hostname to the local relay port, with a catch-all 404.
func NewDescriptor(plan Plan, credentialsFile string, port int) Descriptor {
	return Descriptor{
		Tunnel:          plan.TunnelID,
		CredentialsFile: credentialsFile,
		Protocol:        "http2",
		Ingress: []IngressRule{
			{
				Hostname:      plan.Hostname,
				Service:       localService(port),
				OriginRequest: &OriginRequest{NoTLSVerify: true},
			},
			{Service: "http_status:404"},
		},
	}
}

// Provision writes the artifacts plan needs. Only fixed mode produces
// files; quick mode claims the boot log the client will write.
func Provision(run *artifact.Run, layout artifact.Layout, s config.Settings, plan Plan) error {
	switch plan.Mode {
	case ModeFixed:
		if err := run.Write(layout.TunnelCredential, []byte(s.ArgoAuth), 0o600); err != nil {
			return err
		}
		data, err := yaml.Marshal(NewDescriptor(plan, layout.TunnelCredential.Path, s.ArgoPort))
		if err != nil {
			return fmt.Errorf("failed to encode tunnel descriptor: %w", err)
		}
		return run.Write(layout.TunnelDescriptor, data, 0o644)
	case ModeQuick:
		return run.Claim(layout.BootLog)
	default:
		return nil
	}
}

// Args returns the tunnel client arguments for plan.
func Args(plan Plan, layout artifact.Layout, s config.Settings) []string {
	switch plan.Mode {
	case ModeToken:
		return []string{"tunnel", "--edge-ip-version", "auto", "--no-autoupdate", "--protocol", "http2", "run", "--token", strings.TrimSpace(s.ArgoAuth)}
	case ModeFixed:
		return []string{"tunnel", "--edge-ip-version", "auto", "--config", layout.TunnelDescriptor.Path, "run"}
	default:
		return QuickArgs(layout, s.ArgoPort)
	}
}

// QuickArgs returns the quick-mode arguments. The client logs to the boot
// log, where the resolver finds the assigned hostname.
func QuickArgs(layout artifact.Layout, port int) []string {
	return []string{
		"tunnel", "--edge-ip-version", "auto", "--no-autoupdate", "--protocol", "http2",
		"--logfile", layout.BootLog.Path, "--loglevel", "info",
		"--url", localService(port),
	}
}

// Command builds the process command for the tunnel client at binary.
func Command(binary string, plan Plan, layout artifact.Layout, s config.Settings) process.Command {
	return process.Command{Path: binary, Args: Args(plan, layout, s)}
}

func localService(port int) string {
	return "http://localhost:" + strconv.Itoa(port)
}
