package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/targetwatch/internal/models"
)

type captured struct {
	mu     sync.Mutex
	bodies []map[string]interface{}
}

func (c *captured) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func TestDispatcher_SendsToAllChannels(t *testing.T) {
	hook, slack := &captured{}, &captured{}
	hookSrv := httptest.NewServer(hook.handler(http.StatusOK))
	defer hookSrv.Close()
	slackSrv := httptest.NewServer(slack.handler(http.StatusOK))
	defer slackSrv.Close()

	d, err := NewDispatcher(ChannelsFromURLs(hookSrv.URL, slackSrv.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	target := &models.Target{ID: "t1", URL: "https://example.com"}
	outcome := &models.ProbeOutcome{TargetID: "t1", StatusCode: 503, Message: "HTTP 503", CheckedAt: time.Now()}
	if err := d.NotifyTransition(context.Background(), target, outcome, false); err != nil {
		t.Fatalf("NotifyTransition: %v", err)
	}

	if len(hook.bodies) != 1 || hook.bodies[0]["status"] != "down" || hook.bodies[0]["target_id"] != "t1" {
		t.Fatalf("unexpected webhook payload: %+v", hook.bodies)
	}
	if len(slack.bodies) != 1 || slack.bodies[0]["attachments"] == nil {
		t.Fatalf("unexpected slack payload: %+v", slack.bodies)
	}
}

func TestDispatcher_CombinesErrors(t *testing.T) {
	bad := &captured{}
	srv := httptest.NewServer(bad.handler(http.StatusInternalServerError))
	defer srv.Close()

	d, err := NewDispatcher(ChannelsFromURLs(srv.URL, srv.URL), nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	err = d.NotifyTransition(context.Background(), &models.Target{ID: "t1"}, nil, true)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "webhook") || !strings.Contains(err.Error(), "slack") {
		t.Fatalf("error should name both channels: %v", err)
	}
}

func TestNewDispatcher_RejectsBadChannels(t *testing.T) {
	_, err := NewDispatcher([]*Channel{
		{Name: "a", Type: "carrier-pigeon"},
		{Name: "b", Type: "webhook", Config: map[string]string{}},
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "carrier-pigeon") || !strings.Contains(err.Error(), "webhook_url") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatcher_NoChannelsIsNoop(t *testing.T) {
	d, _ := NewDispatcher(nil, nil)
	if d.Enabled() {
		t.Fatal("expected disabled dispatcher")
	}
	if err := d.Test(context.Background()); err != nil {
		t.Fatalf("Test: %v", err)
	}
}

func TestFormatMessage(t *testing.T) {
	out := FormatMessage(&Message{Title: "Target is DOWN", Status: "down", TargetURL: "https://x", StatusCode: 500, Time: "now"})
	if !strings.Contains(out, "[DOWN]") || !strings.Contains(out, "Status code: 500") {
		t.Fatalf("unexpected format: %q", out)
	}
}
