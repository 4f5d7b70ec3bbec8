package links

import (
	"encoding/base64"
	"strings"
	"testing"

	"relayctl/internal/artifact"
	"relayctl/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioSettings(t *testing.T, name string) config.Settings {
	t.Helper()
	values := config.DefaultValues()
	values[config.KeyUUID] = "abc-123"
	values[config.KeyCFIP] = "1.2.3.4"
	values[config.KeyCFPort] = "443"
	values[config.KeyName] = name
	s, err := config.Parse(values)
	require.NoError(t, err)
	return s
}

func TestNodeName(t *testing.T) {
	assert.Equal(t, "edge-US-Cloudflare", NodeName("edge", "US-Cloudflare"))
	assert.Equal(t, "US-Cloudflare", NodeName("", "US-Cloudflare"))
}

func TestBuild_QuickTunnelScenario(t *testing.T) {
	s := scenarioSettings(t, "")
	set, err := Build(s, "foo.trycloudflare.com", "Unknown")
	require.NoError(t, err)
	require.Len(t, set.Links, 3)

	for _, l := range set.Links {
		if l.Protocol == VMess {
			d, err := DecodeVMess(l.URI)
			require.NoError(t, err)
			assert.Equal(t, "foo.trycloudflare.com", d.SNI)
			assert.Equal(t, "foo.trycloudflare.com", d.Host)
			assert.Equal(t, "abc-123", d.ID)
			assert.Equal(t, "1.2.3.4", d.Add)
			assert.Equal(t, "443", d.Port)
			assert.Equal(t, "Unknown", d.PS)
			continue
		}
		assert.Contains(t, l.URI, "sni=foo.trycloudflare.com")
		assert.Contains(t, l.URI, "abc-123@1.2.3.4:443")
		assert.True(t, strings.HasSuffix(l.URI, "#Unknown"))
	}
}

func TestBuild_ExactURIs(t *testing.T) {
	set, err := Build(scenarioSettings(t, "edge"), "foo.trycloudflare.com", "US-Cloudflare")
	require.NoError(t, err)

	assert.Equal(t,
		"vless://abc-123@1.2.3.4:443?encryption=none&security=tls&sni=foo.trycloudflare.com&fp=firefox&type=ws&host=foo.trycloudflare.com&path=%2Fvless-argo%3Fed%3D2560#edge-US-Cloudflare",
		set.Links[0].URI)
	assert.Equal(t,
		"trojan://abc-123@1.2.3.4:443?security=tls&sni=foo.trycloudflare.com&fp=firefox&type=ws&host=foo.trycloudflare.com&path=%2Ftrojan-argo%3Fed%3D2560#edge-US-Cloudflare",
		set.Links[2].URI)

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(set.Links[1].URI, "vmess://"))
	require.NoError(t, err)
	assert.Equal(t,
		`{"v":"2","ps":"edge-US-Cloudflare","add":"1.2.3.4","port":"443","id":"abc-123","aid":"0","scy":"none","net":"ws","type":"none","host":"foo.trycloudflare.com","path":"/vmess-argo?ed=2560","tls":"tls","sni":"foo.trycloudflare.com","alpn":"","fp":"firefox"}`,
		string(payload))
}

func TestText_Layout(t *testing.T) {
	set := LinkSet{Links: []Link{{URI: "a://1"}, {URI: "b://2"}, {URI: "c://3"}}}
	assert.Equal(t, "\na://1\n  \nb://2\n  \nc://3\n    ", set.Text())
}

func TestRoundTrip(t *testing.T) {
	layout := artifact.NewLayout(t.TempDir())
	s := scenarioSettings(t, "edge")
	set, err := Build(s, "relay.example.com", "DE-Hetzner")
	require.NoError(t, err)

	require.NoError(t, set.Persist(artifact.NewRun(), layout.Subscription))

	blob, err := layout.Subscription.Read()
	require.NoError(t, err)
	nodes, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, set.URIs(), nodes)

	for _, n := range nodes {
		if strings.HasPrefix(n, "vmess://") {
			d, err := DecodeVMess(n)
			require.NoError(t, err)
			assert.Equal(t, s.UUID, d.ID)
			assert.Equal(t, "relay.example.com", d.SNI)
			continue
		}
		assert.Contains(t, n, s.UUID)
		assert.Contains(t, n, "relay.example.com")
		assert.Contains(t, n, s.CFIP)
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("%%% not base64"))
	assert.Error(t, err)
}

func TestNodeLines(t *testing.T) {
	text := "header\nvless://x\n  \nhysteria2://y\nhttp://not-a-node\ntuic://z\n"
	assert.Equal(t, []string{"vless://x", "hysteria2://y", "tuic://z"}, NodeLines(text))
}

func TestDecodeVMess_Errors(t *testing.T) {
	_, err := DecodeVMess("vless://x")
	assert.Error(t, err)
	_, err = DecodeVMess("vmess://!!!")
	assert.Error(t, err)
	_, err = DecodeVMess("vmess://" + base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.Error(t, err)
}
