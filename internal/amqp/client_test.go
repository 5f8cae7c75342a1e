package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, maxBackoff, maxBackoff}
	for attempt, w := range want {
		if got := exponentialBackoff(attempt); got != w {
			t.Errorf("exponentialBackoff(%d) = %v, want %v", attempt, got, w)
		}
	}
	if got := exponentialBackoff(40); got != maxBackoff {
		t.Errorf("large attempt = %v, want cap %v", got, maxBackoff)
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{amqp091.ErrClosed, true},
		{fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("exchange not found"), false},
	}
	for _, tt := range tests {
		if got := isConnectionError(tt.err); got != tt.want {
			t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	c := &Client{exchangeName: "fatura", queueName: "sync_ledger"}
	if c.isCircuitOpen() {
		t.Fatal("new client should start closed")
	}

	for i := 0; i < maxFailures-1; i++ {
		c.recordFailure()
	}
	if c.isCircuitOpen() {
		t.Fatalf("circuit opened after %d failures, threshold is %d", maxFailures-1, maxFailures)
	}
	c.recordFailure()
	if !c.isCircuitOpen() {
		t.Fatal("circuit should open at the failure threshold")
	}

	c.failureMu.Lock()
	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	c.failureMu.Unlock()
	if c.isCircuitOpen() {
		t.Fatal("circuit should half-open once the timeout passed")
	}
	if atomic.LoadInt32(&c.state) != StateHalfOpen {
		t.Fatalf("state = %d, want half-open", c.state)
	}

	// One failure while half-open reopens immediately.
	c.recordFailure()
	if !c.isCircuitOpen() {
		t.Fatal("failure in half-open state should reopen the circuit")
	}

	c.recordSuccess()
	if c.isCircuitOpen() || atomic.LoadInt64(&c.failureCount) != 0 {
		t.Fatal("success should close the circuit and clear the count")
	}
}

func TestPublishLedgerSync_FailsFast(t *testing.T) {
	t.Run("open circuit", func(t *testing.T) {
		c := &Client{state: StateOpen, lastFailure: time.Now()}
		err := c.PublishLedgerSync(context.Background(), "p-1", 3)
		if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
			t.Fatalf("err = %v, want circuit breaker error", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := (&Client{}).PublishLedgerSync(ctx, "p-1", 3); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("no connection", func(t *testing.T) {
		c := &Client{}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if err := c.PublishLedgerSync(ctx, "p-1", 3); err == nil {
			t.Fatal("expected an error without a broker")
		}
		if atomic.LoadInt64(&c.failureCount) == 0 {
			t.Error("the failed attempt should count against the breaker")
		}
	})
}

type recordingAck struct {
	acked, nacked, requeued bool
}

func (a *recordingAck) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *recordingAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func (a *recordingAck) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func TestHandleDelivery(t *testing.T) {
	body, err := NewLedgerSyncMessage("p-7", 2).ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	failing := func(context.Context, *LedgerSyncMessage) error { return errors.New("sheet unavailable") }

	tests := []struct {
		name        string
		body        []byte
		redelivered bool
		handler     func(context.Context, *LedgerSyncMessage) error
		wantAck     bool
		wantRequeue bool
	}{
		{"handled", body, false, func(_ context.Context, m *LedgerSyncMessage) error {
			if m.PurchaseID != "p-7" || m.Entries != 2 {
				return fmt.Errorf("unexpected message %+v", m)
			}
			return nil
		}, true, false},
		{"first failure is requeued", body, false, failing, false, true},
		{"second failure is dropped", body, true, failing, false, false},
		{"garbage is dropped", []byte("not json"), false, failing, false, false},
	}

	c := &Client{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &recordingAck{}
			c.handleDelivery(context.Background(), amqp091.Delivery{
				Acknowledger: ack,
				Body:         tt.body,
				Redelivered:  tt.redelivered,
			}, tt.handler)

			if ack.acked != tt.wantAck {
				t.Errorf("acked = %v, want %v", ack.acked, tt.wantAck)
			}
			if !tt.wantAck && !ack.nacked {
				t.Error("failed delivery should be nacked")
			}
			if ack.requeued != tt.wantRequeue {
				t.Errorf("requeued = %v, want %v", ack.requeued, tt.wantRequeue)
			}
		})
	}
}

func TestLedgerSyncMessage_Wire(t *testing.T) {
	msg := &LedgerSyncMessage{PurchaseID: "p-42", Entries: 2, Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	b, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	if want := `{"purchase_id":"p-42","entries":2,"timestamp":"2024-01-01T12:00:00Z"}`; string(b) != want {
		t.Errorf("ToJSON() = %s, want %s", b, want)
	}

	if _, err := LedgerSyncMessageFromJSON([]byte(`{"purchase_id": 12}`)); err == nil {
		t.Error("a numeric purchase id should not decode")
	}
}
