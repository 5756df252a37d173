package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/finance-bridge/internal/config"
)

func TestHubClient_Notify(t *testing.T) {
	var got Notification
	var auth, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHubClient(srv.URL, "long-lived-token", nil)
	n := Notification{
		Title:   "New transaction",
		Message: "2026-10-16 Tesco £12.50",
		Data:    map[string]string{"feed_item_uid": "fi-1"},
	}
	if err := c.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if auth != "Bearer long-lived-token" {
		t.Errorf("Authorization = %q", auth)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if got.Title != n.Title || got.Message != n.Message || got.Data["feed_item_uid"] != "fi-1" {
		t.Errorf("hub received %+v", got)
	}
}

func TestHubClient_NotifyErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewHubClient(srv.URL, "", nil).Notify(context.Background(), Notification{Title: "x"}); err == nil {
		t.Error("Notify() error = nil for 502")
	}

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	c := NewHubClient(slow.URL, "", &http.Client{Timeout: 20 * time.Millisecond})
	if err := c.Notify(context.Background(), Notification{Title: "x"}); err == nil {
		t.Error("Notify() error = nil on timeout")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(config.Notify{}).(Noop); !ok {
		t.Error("New() without URL should return Noop")
	}
	if _, ok := New(config.Notify{URL: "http://hub.local/api/services/notify/mobile"}).(*HubClient); !ok {
		t.Error("New() with URL should return *HubClient")
	}
	if err := (Noop{}).Notify(context.Background(), Notification{}); err != nil {
		t.Errorf("Noop.Notify() error = %v", err)
	}
}
