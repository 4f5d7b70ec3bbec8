// Package xray renders the relay server configuration.
package xray

import (
	"encoding/json"
	"fmt"

	"relayctl/internal/artifact"
	"relayctl/internal/config"
)

// Transport paths routed by the primary inbound. Link descriptors use the
// same paths.
const (
	PathVLESS  = "/vless-argo"
	PathVMess  = "/vmess-argo"
	PathTrojan = "/trojan-argo"
)

// Loopback ports of the protocol inbounds behind the primary inbound.
const (
	PortFallback = 3001
	PortVLESS    = 3002
	PortVMess    = 3003
	PortTrojan   = 3004
)

const loopback = "127.0.0.1"

// Config is the relay server configuration document. Field names and
// ordering are what the relay binary expects.
type Config struct {
	Log       Log        `json:"log"`
	Inbounds  []Inbound  `json:"inbounds"`
	DNS       DNS        `json:"dns"`
	Outbounds []Outbound `json:"outbounds"`
}

type Log struct {
	Access   string `json:"access"`
	Error    string `json:"error"`
	Loglevel string `json:"loglevel"`
}

type Inbound struct {
	Port           int             `json:"port"`
	Listen         string          `json:"listen,omitempty"`
	Protocol       string          `json:"protocol"`
	Settings       InboundSettings `json:"settings"`
	StreamSettings StreamSettings  `json:"streamSettings"`
	Sniffing       *Sniffing       `json:"sniffing,omitempty"`
}

type InboundSettings struct {
	Clients    []Client   `json:"clients"`
	Decryption string     `json:"decryption,omitempty"`
	Fallbacks  []Fallback `json:"fallbacks,omitempty"`
}

type Client struct {
	ID       string `json:"id,omitempty"`
	Password string `json:"password,omitempty"`
	Flow     string `json:"flow,omitempty"`
	Level    *int   `json:"level,omitempty"`
	AlterID  *int   `json:"alterId,omitempty"`
}

type Fallback struct {
	Path string `json:"path,omitempty"`
	Dest int    `json:"dest"`
}

type StreamSettings struct {
	Network    string      `json:"network"`
	Security   string      `json:"security,omitempty"`
	WSSettings *WSSettings `json:"wsSettings,omitempty"`
}

type WSSettings struct {
	Path string `json:"path"`
}

type Sniffing struct {
	Enabled      bool     `json:"enabled"`
	DestOverride []string `json:"destOverride"`
	MetadataOnly bool     `json:"metadataOnly"`
}

type DNS struct {
	Servers []string `json:"servers"`
}

type Outbound struct {
	Protocol string `json:"protocol"`
	Tag      string `json:"tag"`
}

// Build assembles the configuration for s. It is pure: identical settings
// always yield an identical document.
func Build(s config.Settings) Config {
	zero := 0
	sniff := func() *Sniffing {
		return &Sniffing{Enabled: true, DestOverride: []string{"http", "tls", "quic"}}
	}

	return Config{
		Log: Log{Access: "/dev/null", Error: "/dev/null", Loglevel: "none"},
		Inbounds: []Inbound{
			{
				Port:     s.ArgoPort,
				Protocol: "vless",
				Settings: InboundSettings{
					Clients:    []Client{{ID: s.UUID, Flow: "xtls-rprx-vision"}},
					Decryption: "none",
					Fallbacks: []Fallback{
						{Dest: PortFallback},
						{Path: PathVLESS, Dest: PortVLESS},
						{Path: PathVMess, Dest: PortVMess},
						{Path: PathTrojan, Dest: PortTrojan},
					},
				},
				StreamSettings: StreamSettings{Network: "tcp"},
			},
			{
				Port:           PortFallback,
				Listen:         loopback,
				Protocol:       "vless",
				Settings:       InboundSettings{Clients: []Client{{ID: s.UUID}}, Decryption: "none"},
				StreamSettings: StreamSettings{Network: "tcp", Security: "none"},
			},
			{
				Port:     PortVLESS,
				Listen:   loopback,
				Protocol: "vless",
				Settings: InboundSettings{Clients: []Client{{ID: s.UUID, Level: &zero}}, Decryption: "none"},
				StreamSettings: StreamSettings{
					Network: "ws", Security: "none", WSSettings: &WSSettings{Path: PathVLESS},
				},
				Sniffing: sniff(),
			},
			{
				Port:     PortVMess,
				Listen:   loopback,
				Protocol: "vmess",
				Settings: InboundSettings{Clients: []Client{{ID: s.UUID, AlterID: &zero}}},
				StreamSettings: StreamSettings{
					Network: "ws", WSSettings: &WSSettings{Path: PathVMess},
				},
				Sniffing: sniff(),
			},
			{
				Port:     PortTrojan,
				Listen:   loopback,
				Protocol: "trojan",
				Settings: InboundSettings{Clients: []Client{{Password: s.UUID}}},
				StreamSettings: StreamSettings{
					Network: "ws", Security: "none", WSSettings: &WSSettings{Path: PathTrojan},
				},
				Sniffing: sniff(),
			},
		},
		DNS: DNS{Servers: []string{"https+local://8.8.8.8/dns-query"}},
		Outbounds: []Outbound{
			{Protocol: "freedom", Tag: "direct"},
			{Protocol: "blackhole", Tag: "block"},
		},
	}
}

// Render encodes the configuration for s. It fails only when s cannot be
// expressed as a valid document.
func Render(s config.Settings) ([]byte, error) {
	if s.UUID == "" {
		return nil, &RenderError{Field: config.KeyUUID, Err: fmt.Errorf("identity token is empty")}
	}
	if s.ArgoPort < 1 || s.ArgoPort > 65535 {
		return nil, &RenderError{Field: config.KeyArgoPort, Err: fmt.Errorf("listen port %d out of range", s.ArgoPort)}
	}
	for _, p := range []int{PortFallback, PortVLESS, PortVMess, PortTrojan} {
		if s.ArgoPort == p {
			return nil, &RenderError{Field: config.KeyArgoPort, Err: fmt.Errorf("listen port %d collides with a loopback inbound", p)}
		}
	}

	data, err := json.MarshalIndent(Build(s), "", "  ")
	if err != nil {
		return nil, &RenderError{Err: err}
	}
	return data, nil
}

// Write renders the configuration and writes it to a, replacing any
// previous document.
func Write(run *artifact.Run, a artifact.Artifact, s config.Settings) error {
	data, err := Render(s)
	if err != nil {
		return err
	}
	return run.Write(a, data, 0o644)
}

// RenderError reports that the configuration could not be produced.
type RenderError struct {
	Field string
	Err   error
}

func (e *RenderError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("render relay config: %v", e.Err)
	}
	return fmt.Sprintf("render relay config: %s: %v", e.Field, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
