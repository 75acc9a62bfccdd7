package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateTransaction  OutboxAggregateType = "transaction"
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregateLedgerEvent  OutboxAggregateType = "ledger_event"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateTransaction,
	AggregateSubscription,
	AggregateLedgerEvent,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPaymentSucceeded      OutboxEventType = "payment_succeeded"
	EventSubscriptionActivated OutboxEventType = "subscription_activated"
	EventSubscriptionRenewed   OutboxEventType = "subscription_renewed"
	EventSubscriptionCanceled  OutboxEventType = "subscription_canceled"
	EventOrderRefunded         OutboxEventType = "order_refunded"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPaymentSucceeded,
	EventSubscriptionActivated,
	EventSubscriptionRenewed,
	EventSubscriptionCanceled,
	EventOrderRefunded,
	EventOrderStatusChanged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
