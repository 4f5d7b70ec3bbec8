package monitor

import (
	"testing"

	"relayctl/internal/artifact"
	"relayctl/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func monitorSettings(t *testing.T, server, port, key string) config.Settings {
	t.Helper()
	values := config.DefaultValues()
	values[config.KeyNezhaServer] = server
	values[config.KeyNezhaPort] = port
	values[config.KeyNezhaKey] = key
	s, err := config.Parse(values)
	require.NoError(t, err)
	return s
}

func TestVersionFor(t *testing.T) {
	_, ok := VersionFor(monitorSettings(t, "", "", ""))
	assert.False(t, ok)

	_, ok = VersionFor(monitorSettings(t, "mon.example.com", "", ""))
	assert.False(t, ok, "key is required")

	v, ok := VersionFor(monitorSettings(t, "mon.example.com", "5555", "k"))
	require.True(t, ok)
	assert.Equal(t, V0, v)

	v, ok = VersionFor(monitorSettings(t, "mon.example.com:8008", "", "k"))
	require.True(t, ok)
	assert.Equal(t, V1, v)
}

func TestPrepare_V0Flags(t *testing.T) {
	tests := []struct {
		port    string
		wantTLS bool
	}{
		{"443", true},
		{"2053", true},
		{"5555", false},
	}
	for _, tt := range tests {
		t.Run(tt.port, func(t *testing.T) {
			s := monitorSettings(t, "mon.example.com", tt.port, "secret")
			cmd, err := Prepare(artifact.NewRun(), artifact.NewLayout(t.TempDir()), s, V0, "/work/abcdef")
			require.NoError(t, err)

			assert.Equal(t, "/work/abcdef", cmd.Path)
			assert.Equal(t, []string{"-s", "mon.example.com:" + tt.port, "-p", "secret"}, cmd.Args[:4])
			assert.Equal(t, tt.wantTLS, contains(cmd.Args, "--tls"))
			assert.Equal(t, []string{"--disable-auto-update", "--report-delay", "4", "--skip-conn", "--skip-procs"}, cmd.Args[len(cmd.Args)-5:])
		})
	}
}

func TestPrepare_V1WritesConfig(t *testing.T) {
	layout := artifact.NewLayout(t.TempDir())
	s := monitorSettings(t, "mon.example.com:8443", "", "secret")

	cmd, err := Prepare(artifact.NewRun(), layout, s, V1, "/work/ghijkl")
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", layout.MonitorConfig.Path}, cmd.Args)

	data, err := layout.MonitorConfig.Read()
	require.NoError(t, err)

	var cfg AgentConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "secret", cfg.ClientSecret)
	assert.Equal(t, "mon.example.com:8443", cfg.Server)
	assert.True(t, cfg.TLS)
	assert.Equal(t, 1800, cfg.IPReportPeriod)
	assert.Equal(t, s.UUID, cfg.UUID)

	var raw map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Len(t, raw, 19)
}

func TestNewAgentConfig_PlainPort(t *testing.T) {
	cfg := NewAgentConfig(monitorSettings(t, "mon.example.com:8008", "", "k"))
	assert.False(t, cfg.TLS)

	cfg = NewAgentConfig(monitorSettings(t, "mon.example.com", "", "k"))
	assert.False(t, cfg.TLS)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
