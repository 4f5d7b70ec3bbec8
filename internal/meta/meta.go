// Package meta looks up a short ISP label for the host, used in link names.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"relayctl/pkg/logging"

	"github.com/hashicorp/go-retryablehttp"
)

// Unknown is the label returned when the lookup fails.
const Unknown = "Unknown"

// Lookup queries a metadata endpoint answering with the caller's country
// and network operator.
type Lookup struct {
	url    string
	client *retryablehttp.Client
}

// New returns a Lookup against url. The whole lookup is bounded by timeout.
func New(url string, timeout time.Duration) *Lookup {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = logging.Logger()
	return &Lookup{url: url, client: client}
}

type response struct {
	Country        string `json:"country"`
	ASOrganization string `json:"asOrganization"`
}

// Label returns "<country>-<operator>" with spaces replaced by underscores.
// It never fails; any error yields Unknown.
func (l *Lookup) Label(ctx context.Context) string {
	label, err := l.fetch(ctx)
	if err != nil {
		logging.Debug("Meta", "ISP lookup failed: %v", err)
		return Unknown
	}
	return label
}

func (l *Lookup) fetch(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("decode metadata: %w", err)
	}
	return FormatLabel(r.Country, r.ASOrganization)
}

// FormatLabel joins country and operator into a label.
func FormatLabel(country, org string) (string, error) {
	if country == "" && org == "" {
		return "", fmt.Errorf("metadata carries neither country nor operator")
	}
	return strings.ReplaceAll(country+"-"+org, " ", "_"), nil
}
