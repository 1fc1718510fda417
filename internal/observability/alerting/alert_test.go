package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "AIButler-Chain/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDeliversToEveryChannel(t *testing.T) {
	first := &recordingNotifier{channel: ChannelLog}
	second := &recordingNotifier{channel: ChannelSlack, err: errors.New("slack down")}
	dispatcher := NewFanout(first, nil, second)

	err := dispatcher.Notify(context.Background(), Event{Code: "SCHEDULE_REFUND_FAILED", Subject: "schedule:3"})
	if err == nil || !strings.Contains(err.Error(), "slack down") {
		t.Fatalf("expected joined channel error, got %v", err)
	}
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("every notifier should receive the event")
	}
}

func TestWebhookNotifierFormats(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	event := Event{
		Code:       "KEEPER_EXECUTION_FAILED",
		Message:    "执行定时交易失败",
		Severity:   xerrors.SeverityWarning,
		Subject:    "schedule:9",
		Metadata:   map[string]string{"reason": "escrow refund failed"},
		OccurredAt: time.Unix(1_700_000_000, 0),
	}

	notifier := &WebhookNotifier{URL: srv.URL, Kind: ChannelDingTalk}
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	text, _ := got["text"].(map[string]any)
	if got["msgtype"] != "text" || !strings.Contains(text["content"].(string), "schedule:9") {
		t.Fatalf("unexpected dingtalk payload: %v", got)
	}

	notifier = &WebhookNotifier{URL: srv.URL}
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["subject"] != "schedule:9" || got["code"] != "KEEPER_EXECUTION_FAILED" {
		t.Fatalf("unexpected generic payload: %v", got)
	}
}

func TestWebhookNotifierReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := &WebhookNotifier{URL: srv.URL, Kind: ChannelSlack}
	if err := notifier.Notify(context.Background(), Event{Code: "X"}); err == nil {
		t.Fatalf("expected an error for a 502 response")
	}
	if err := (&WebhookNotifier{}).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("unconfigured notifier should be a no-op: %v", err)
	}
}
