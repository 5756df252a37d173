// Package notify sends best-effort notifications to the home-automation hub.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dvloznov/finance-bridge/internal/config"
)

// DefaultTimeout bounds one notification POST.
const DefaultTimeout = 5 * time.Second

// Notification is one message for the hub.
type Notification struct {
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

// Sink delivers notifications. Implementations return the delivery error so
// callers can record it; callers never propagate it.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// HubClient posts notifications as JSON to the hub's notify endpoint.
type HubClient struct {
	url   string
	token string
	http  *http.Client
}

// NewHubClient creates a hub client. A nil httpClient gets DefaultTimeout.
func NewHubClient(url, token string, httpClient *http.Client) *HubClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &HubClient{url: url, token: token, http: httpClient}
}

// New returns a HubClient for the configured endpoint, or Noop when no
// endpoint is configured.
func New(cfg config.Notify) Sink {
	if cfg.URL == "" {
		return Noop{}
	}
	return NewHubClient(cfg.URL, cfg.Token, nil)
}

// Notify posts n to the hub.
func (c *HubClient) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("Notify: encoding: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("Notify: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("Notify: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("Notify: hub returned %d", resp.StatusCode)
	}
	return nil
}

// Noop drops every notification.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(ctx context.Context, n Notification) error { return nil }

var (
	_ Sink = (*HubClient)(nil)
	_ Sink = Noop{}
)
