package services

import (
	"fmt"
	"slices"
	"strings"

	domain "github.com/inkwell-books/api/internal/domain"
)

// orderStateTransitions is the single source of truth for order lifecycle moves.
// A status missing from the map is terminal. Self-transitions are invalid.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
}

// cancellableStatuses lists the states a customer-initiated cancellation may
// start from. Later states require admin intervention through the transition table.
var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
}

var knownOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
	domain.OrderStatusCancelled,
}

// InvalidTransitionError reports a rejected status move together with the
// moves the table would have allowed from the same state.
type InvalidTransitionError struct {
	From    domain.OrderStatus
	To      domain.OrderStatus
	Allowed []domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("transition %s -> %s not allowed: %s is terminal", e.From, e.To, e.From)
	}
	allowed := make([]string, 0, len(e.Allowed))
	for _, status := range e.Allowed {
		allowed = append(allowed, string(status))
	}
	return fmt.Sprintf("transition %s -> %s not allowed, valid targets: %s", e.From, e.To, strings.Join(allowed, ", "))
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return false
	}
	return slices.Contains(orderStateTransitions[current], target)
}

func allowedTransitions(current domain.OrderStatus) []domain.OrderStatus {
	return slices.Clone(orderStateTransitions[current])
}

func isTerminalStatus(status domain.OrderStatus) bool {
	return len(orderStateTransitions[status]) == 0
}

func isKnownOrderStatus(status domain.OrderStatus) bool {
	return slices.Contains(knownOrderStatuses, status)
}

func isCancellable(status domain.OrderStatus) bool {
	return slices.Contains(cancellableStatuses, status)
}
