package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

func TestEncodeEvent(t *testing.T) {
	at := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	payload, err := encodeEvent(LawIngestedEvent{LawID: "L6437", OccurredAt: at})
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["law_id"] != "L6437" || got["occurred_at"] != "2025-11-04T12:00:00Z" {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "canceled", err: context.Canceled},
		{name: "no servers", err: fmt.Errorf("publish: %w", nats.ErrNoServers), retryable: true, record: true},
		{name: "timeout", err: nats.ErrTimeout, retryable: true, record: true},
		{name: "bad subject", err: nats.ErrBadSubject, record: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyNATSError(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
				t.Fatalf("classifyNATSError(%v) = %+v", tc.err, got)
			}
		})
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrConnectionClosed); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	plain := errors.New("bad payload")
	if err := wrapTemporaryIfNeeded(plain); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("unexpected temporary: %v", err)
	}
}
