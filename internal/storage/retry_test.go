package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"pairdex/internal/model"
)

type flakySink struct {
	failures int
	calls    int
}

func (s *flakySink) Transfer(context.Context, model.Transfer) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("unavailable")
	}
	return nil
}

func TestRetryingSinkRecovers(t *testing.T) {
	inner := &flakySink{failures: 2}
	sink := NewRetryingSink(inner, 3, time.Millisecond, nil)
	if err := sink.Transfer(context.Background(), model.Transfer{Asset: "TOK", Amount: "1"}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryingSinkGivesUp(t *testing.T) {
	inner := &flakySink{failures: 10}
	sink := NewRetryingSink(inner, 2, time.Millisecond, nil)
	if err := sink.Transfer(context.Background(), model.Transfer{}); err == nil {
		t.Fatalf("expected error after retries")
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryingSinkStopsOnCancel(t *testing.T) {
	inner := &flakySink{failures: 10}
	sink := NewRetryingSink(inner, 5, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sink.Transfer(ctx, model.Transfer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 call, got %d", inner.calls)
	}
}
