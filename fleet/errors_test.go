package fleet_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/frotaops/fleet-engine/fleet"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		err       error
		client    bool
		retryable bool
	}{
		{&fleet.ValidationError{Field: "period", Message: "bad"}, true, false},
		{&fleet.ConflictError{}, true, false},
		{&fleet.PermissionError{Role: fleet.RoleOperator, Action: "authorize"}, true, false},
		{&fleet.ImmutableFieldError{EntryID: "e-1", Field: "amount"}, true, false},
		{&fleet.TransitionError{From: fleet.StatusPago, To: fleet.StatusPendente}, true, false},
		{&fleet.NotFoundError{Kind: "vehicle", ID: "v-1"}, false, false},
		{fmt.Errorf("save: %w", fleet.ErrTransientStore), false, true},
		{errors.New("disk on fire"), false, false},
	}
	for _, c := range cases {
		if got := fleet.IsClientError(c.err); got != c.client {
			t.Errorf("IsClientError(%v) = %v, want %v", c.err, got, c.client)
		}
		if got := fleet.IsRetryable(c.err); got != c.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.retryable)
		}
	}

	if !fleet.IsNotFound(&fleet.NotFoundError{Kind: "entry", ID: "e-1"}) {
		t.Error("NotFoundError must satisfy IsNotFound")
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := &fleet.ValidationError{Field: "x", Message: "bad"}
	calls := 0
	err := fleet.Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", calls)
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	err := fleet.Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("busy: %w", fleet.ErrTransientStore)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}
