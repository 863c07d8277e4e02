package services

import (
	"errors"
	"testing"

	domain "github.com/inkwell-books/api/internal/domain"
)

func TestCanTransitionFullTable(t *testing.T) {
	allowed := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
		domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
		domain.OrderStatusProcessing: {domain.OrderStatusShipped},
		domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
		domain.OrderStatusDelivered:  nil,
		domain.OrderStatusCancelled:  nil,
	}

	// Every ordered pair of known statuses, including self-transitions, must
	// have a defined answer.
	for _, from := range knownOrderStatuses {
		for _, to := range knownOrderStatuses {
			want := false
			for _, target := range allowed[from] {
				if target == to {
					want = true
				}
			}
			if got := canTransition(from, to); got != want {
				t.Fatalf("canTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransitionRejectsSelfTransitions(t *testing.T) {
	for _, status := range knownOrderStatuses {
		if canTransition(status, status) {
			t.Fatalf("self transition allowed for %s", status)
		}
	}
}

func TestIsTerminalStatus(t *testing.T) {
	terminal := []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusCancelled}
	for _, status := range knownOrderStatuses {
		want := false
		for _, term := range terminal {
			if status == term {
				want = true
			}
		}
		if got := isTerminalStatus(status); got != want {
			t.Fatalf("isTerminalStatus(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestIsCancellable(t *testing.T) {
	cases := map[domain.OrderStatus]bool{
		domain.OrderStatusPending:    true,
		domain.OrderStatusConfirmed:  true,
		domain.OrderStatusProcessing: false,
		domain.OrderStatusShipped:    false,
		domain.OrderStatusDelivered:  false,
		domain.OrderStatusCancelled:  false,
	}
	for status, want := range cases {
		if got := isCancellable(status); got != want {
			t.Fatalf("isCancellable(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := &InvalidTransitionError{
		From:    domain.OrderStatusPending,
		To:      domain.OrderStatusShipped,
		Allowed: allowedTransitions(domain.OrderStatusPending),
	}
	want := "transition pending -> shipped not allowed, valid targets: confirmed, cancelled"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}

	terminal := &InvalidTransitionError{From: domain.OrderStatusDelivered, To: domain.OrderStatusPending}
	if terminal.Error() != "transition delivered -> pending not allowed: delivered is terminal" {
		t.Fatalf("unexpected terminal message %q", terminal.Error())
	}

	var target *InvalidTransitionError
	wrapped := error(err)
	if !errors.As(wrapped, &target) {
		t.Fatalf("expected errors.As to find InvalidTransitionError")
	}
}
