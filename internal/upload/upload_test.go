package upload

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"relayctl/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	path        string
	contentType string
	body        map[string]interface{}
}

type recorder struct {
	mu     sync.Mutex
	calls  []recorded
	status int
}

func (r *recorder) handler(w http.ResponseWriter, req *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(req.Body).Decode(&body)

	r.mu.Lock()
	r.calls = append(r.calls, recorded{path: req.URL.Path, contentType: req.Header.Get("Content-Type"), body: body})
	status := r.status
	r.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (r *recorder) snapshot() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

func newServer(t *testing.T, status int) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{status: status}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(srv.Close)
	return srv, rec
}

func settings(t *testing.T, uploadURL, projectURL string) config.Settings {
	t.Helper()
	values := config.DefaultValues()
	values[config.KeyUploadURL] = uploadURL
	values[config.KeyProjectURL] = projectURL
	s, err := config.Parse(values)
	require.NoError(t, err)
	return s
}

func TestPublish_Subscription(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK)
	s := settings(t, srv.URL, "https://app.example")

	require.NoError(t, New(time.Second).Publish(context.Background(), s, []string{"vless://x"}))

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/add-subscriptions", calls[0].path)
	assert.Equal(t, "application/json", calls[0].contentType)
	assert.Equal(t, []interface{}{"https://app.example/sub"}, calls[0].body["subscription"])
}

func TestPublish_Nodes(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK)
	s := settings(t, srv.URL, "")

	require.NoError(t, New(time.Second).Publish(context.Background(), s, []string{"vless://x", "trojan://y"}))

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/add-nodes", calls[0].path)
	assert.Equal(t, []interface{}{"vless://x", "trojan://y"}, calls[0].body["nodes"])
}

func TestPublish_NoUploadURL(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK)
	_ = srv
	require.NoError(t, New(time.Second).Publish(context.Background(), settings(t, "", "https://app.example"), []string{"vless://x"}))
	assert.Empty(t, rec.snapshot())
}

func TestDeleteNodes(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK)

	require.NoError(t, New(time.Second).DeleteNodes(context.Background(), srv.URL, []string{"vmess://abc"}))

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/delete-nodes", calls[0].path)
	assert.Equal(t, []interface{}{"vmess://abc"}, calls[0].body["nodes"])
}

func TestKeepAlive(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK)

	require.NoError(t, New(time.Second).KeepAlive(context.Background(), srv.URL+"/add-url", "https://app.example"))

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "/add-url", calls[0].path)
	assert.Equal(t, "https://app.example", calls[0].body["url"])
}

func TestStatusError(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadRequest)

	err := New(time.Second).AddNodes(context.Background(), srv.URL, []string{"vless://x"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)
}
