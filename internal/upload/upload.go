// Package upload publishes nodes and subscriptions to an aggregation
// service and registers the project URL with a keep-alive service. Every
// call is best-effort: callers log failures and carry on.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"relayctl/internal/config"
	"relayctl/pkg/logging"

	"github.com/hashicorp/go-retryablehttp"
)

const subsystem = "Upload"

// Client talks to the aggregation and keep-alive endpoints.
type Client struct {
	http *retryablehttp.Client
}

// New returns a Client with a per-request timeout.
func New(timeout time.Duration) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = logging.Logger()
	return &Client{http: c}
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("POST %s: unexpected status %d", e.URL, e.Status)
}

// DeleteNodes withdraws previously published nodes.
func (c *Client) DeleteNodes(ctx context.Context, uploadURL string, nodes []string) error {
	return c.postJSON(ctx, uploadURL+"/api/delete-nodes", map[string][]string{"nodes": nodes})
}

// AddNodes publishes node descriptors directly.
func (c *Client) AddNodes(ctx context.Context, uploadURL string, nodes []string) error {
	return c.postJSON(ctx, uploadURL+"/api/add-nodes", map[string][]string{"nodes": nodes})
}

// AddSubscription publishes the subscription URL served by the project.
func (c *Client) AddSubscription(ctx context.Context, uploadURL, subscriptionURL string) error {
	return c.postJSON(ctx, uploadURL+"/api/add-subscriptions", map[string][]string{"subscription": {subscriptionURL}})
}

// KeepAlive registers projectURL with the keep-alive endpoint.
func (c *Client) KeepAlive(ctx context.Context, endpoint, projectURL string) error {
	return c.postJSON(ctx, endpoint, map[string]string{"url": projectURL})
}

// Publish announces a fresh link set. With a project URL the subscription
// URL is published; otherwise the node lines are. Without an upload URL it
// does nothing.
func (c *Client) Publish(ctx context.Context, s config.Settings, nodes []string) error {
	switch {
	case s.UploadURL == "":
		return nil
	case s.ProjectURL != "":
		sub := s.ProjectURL + "/" + strings.TrimPrefix(s.SubPath, "/")
		if err := c.AddSubscription(ctx, s.UploadURL, sub); err != nil {
			return err
		}
		logging.Info(subsystem, "Subscription uploaded successfully")
	default:
		if len(nodes) == 0 {
			return nil
		}
		if err := c.AddNodes(ctx, s.UploadURL, nodes); err != nil {
			return err
		}
		logging.Info(subsystem, "Nodes uploaded successfully")
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, Status: resp.StatusCode}
	}
	return nil
}
