// Package links builds the shareable connection descriptors for a resolved
// tunnel hostname and persists them as a subscription blob.
package links

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"relayctl/internal/artifact"
	"relayctl/internal/config"
	"relayctl/internal/xray"
)

// Protocol is a relay protocol a descriptor is built for.
type Protocol string

const (
	VLESS  Protocol = "vless"
	VMess  Protocol = "vmess"
	Trojan Protocol = "trojan"
)

// earlyData is appended to every transport path.
const earlyData = "?ed=2560"

const fingerprint = "firefox"

var nodePattern = regexp.MustCompile(`(vless|vmess|trojan|hysteria2|tuic)://`)

// Link is one protocol's descriptor.
type Link struct {
	Protocol Protocol
	URI      string
}

// LinkSet is the full set of descriptors for one run. It is regenerated
// from scratch every run.
type LinkSet struct {
	Hostname string
	NodeName string
	Links    []Link
}

// VMessDescriptor is the JSON payload wrapped by vmess:// links. Field order
// and the string-typed port are what clients expect.
type VMessDescriptor struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Scy  string `json:"scy"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni"`
	ALPN string `json:"alpn"`
	FP   string `json:"fp"`
}

// NodeName is the display name carried by every link.
func NodeName(name, isp string) string {
	if name == "" {
		return isp
	}
	return name + "-" + isp
}

// Build composes one descriptor per protocol for hostname.
func Build(s config.Settings, hostname, isp string) (LinkSet, error) {
	node := NodeName(s.Name, isp)

	vmess, err := encodeVMess(VMessDescriptor{
		V:    "2",
		PS:   node,
		Add:  s.CFIP,
		Port: s.CFPort,
		ID:   s.UUID,
		Aid:  "0",
		Scy:  "none",
		Net:  "ws",
		Type: "none",
		Host: hostname,
		Path: xray.PathVMess + earlyData,
		TLS:  "tls",
		SNI:  hostname,
		FP:   fingerprint,
	})
	if err != nil {
		return LinkSet{}, err
	}

	return LinkSet{
		Hostname: hostname,
		NodeName: node,
		Links: []Link{
			{Protocol: VLESS, URI: wsURI(VLESS, s, hostname, xray.PathVLESS, "encryption=none&", node)},
			{Protocol: VMess, URI: "vmess://" + vmess},
			{Protocol: Trojan, URI: wsURI(Trojan, s, hostname, xray.PathTrojan, "", node)},
		},
	}, nil
}

func wsURI(p Protocol, s config.Settings, hostname, path, prefix, node string) string {
	return fmt.Sprintf("%s://%s@%s:%s?%ssecurity=tls&sni=%s&fp=%s&type=ws&host=%s&path=%s#%s",
		p, s.UUID, s.CFIP, s.CFPort, prefix, hostname, fingerprint, hostname,
		url.QueryEscape(path+earlyData), node)
}

func encodeVMess(d VMessDescriptor) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return "", fmt.Errorf("failed to encode vmess descriptor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Text returns the subscription text. The blank-line layout is part of the
// format some clients parse.
func (ls LinkSet) Text() string {
	var b strings.Builder
	b.WriteString("\n")
	for i, l := range ls.Links {
		if i > 0 {
			b.WriteString("\n  \n")
		}
		b.WriteString(l.URI)
	}
	b.WriteString("\n    ")
	return b.String()
}

// Encoded returns the base64 subscription blob.
func (ls LinkSet) Encoded() string {
	return base64.StdEncoding.EncodeToString([]byte(ls.Text()))
}

// URIs returns the descriptors in protocol order.
func (ls LinkSet) URIs() []string {
	out := make([]string, len(ls.Links))
	for i, l := range ls.Links {
		out[i] = l.URI
	}
	return out
}

// Persist writes the subscription blob to a.
func (ls LinkSet) Persist(run *artifact.Run, a artifact.Artifact) error {
	return run.Write(a, []byte(ls.Encoded()), 0o644)
}

// Decode returns the node lines of a subscription blob.
func Decode(blob []byte) ([]string, error) {
	text, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(blob)))
	if err != nil {
		return nil, fmt.Errorf("subscription is not valid base64: %w", err)
	}
	return NodeLines(string(text)), nil
}

// NodeLines returns the lines of text that carry a node descriptor.
func NodeLines(text string) []string {
	var nodes []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if nodePattern.MatchString(line) {
			nodes = append(nodes, line)
		}
	}
	return nodes
}

// DecodeVMess unwraps a vmess:// link.
func DecodeVMess(uri string) (VMessDescriptor, error) {
	var d VMessDescriptor
	payload, ok := strings.CutPrefix(uri, "vmess://")
	if !ok {
		return d, fmt.Errorf("not a vmess link")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return d, fmt.Errorf("vmess payload is not valid base64: %w", err)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("vmess payload is not valid JSON: %w", err)
	}
	return d, nil
}
