package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/PuffoTrillionarioGonePublic/erldb/adapter"
)

func testEvent() *adapter.QueryCompletedEvent {
	e := adapter.NewQueryCompletedEvent("sess-1", "q-001",
		time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC), 1500*time.Millisecond)
	e.Bucket = "default"
	e.File = "users.db"
	e.Query = "SELECT ?"
	e.Outcome = adapter.OutcomeSuccess
	e.Columns = []string{"?"}
	e.RowCount = 1
	return e
}

// asyncReceive reads one message from the subscriber in the background.
// Must be called before Publish: miniredis delivers pub/sub synchronously.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{}
	}
}

func TestPublish_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Retries: 0})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != DefaultChannel {
		t.Errorf("expected channel %q, got %q", DefaultChannel, msg.Channel)
	}

	var received adapter.QueryCompletedEvent
	if err := json.Unmarshal([]byte(msg.Message), &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if received.EventType != adapter.EventQueryCompleted {
		t.Errorf("expected query_completed, got %s", received.EventType)
	}
	if received.QueryID != "q-001" || received.File != "users.db" {
		t.Errorf("unexpected event %+v", received)
	}
	if received.DurationMs != 1500 {
		t.Errorf("expected 1500ms, got %d", received.DurationMs)
	}
	if received.Timestamp != "2026-10-18T12:00:00Z" {
		t.Errorf("unexpected timestamp %s", received.Timestamp)
	}
}

func TestPublish_CustomChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	customChannel := "custom:queries"
	a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: customChannel})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.Channel() != customChannel {
		t.Errorf("expected channel %q, got %q", customChannel, a.Channel())
	}

	sub := mr.NewSubscriber()
	sub.Subscribe(customChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if msg := waitMessage(t, ch); msg.Channel != customChannel {
		t.Errorf("expected channel %q, got %q", customChannel, msg.Channel)
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 2, Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	var waits []int
	a.backoff = func(i int) time.Duration {
		waits = append(waits, i)
		return 0
	}

	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(waits) != 2 || waits[0] != 1 || waits[1] != 2 {
		t.Errorf("expected backoff before retries 1 and 2, got %v", waits)
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 5, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestPublish_ChannelPerBucketAndOutcome(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: "erldb:{bucket}:{file}:{outcome}"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe("erldb:default:users.db:remote_error")
	ch := asyncReceive(sub)

	e := testEvent()
	e.Outcome = adapter.OutcomeRemoteError
	e.Error = "no such table: users"
	if err := a.Publish(t.Context(), e); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != "erldb:default:users.db:remote_error" {
		t.Errorf("unexpected channel %q", msg.Channel)
	}
	var got adapter.QueryCompletedEvent
	if err := json.Unmarshal([]byte(msg.Message), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Error != "no such table: users" {
		t.Errorf("unexpected error field %q", got.Error)
	}
}

func TestPublish_SkipsFilteredOutcome(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{
		URL:      "redis://" + mr.Addr(),
		Outcomes: adapter.Outcomes{adapter.OutcomeRemoteError, adapter.OutcomeTransportError},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish success: %v", err)
	}
	failed := testEvent()
	failed.QueryID = "q-002"
	failed.Outcome = adapter.OutcomeTransportError
	if err := a.Publish(t.Context(), failed); err != nil {
		t.Fatalf("publish failure: %v", err)
	}

	var got adapter.QueryCompletedEvent
	if err := json.Unmarshal([]byte(waitMessage(t, ch).Message), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.QueryID != "q-002" {
		t.Errorf("expected only the failed query, first message was %s", got.QueryID)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty url", Config{}},
		{"invalid url", Config{URL: "not-a-redis-url"}},
		{"negative retries", Config{URL: "redis://localhost:6379", Retries: -1}},
		{"unknown outcome", Config{URL: "redis://localhost:6379", Outcomes: adapter.Outcomes{"slow"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.config.Channel != DefaultChannel {
		t.Errorf("expected default channel %q, got %q", DefaultChannel, a.config.Channel)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, a.config.Timeout)
	}
}

func TestClose_ClosesConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after close")
	}
}
