package enums

import "fmt"

// LedgerEventType classifies audit-log rows written by the payment core.
type LedgerEventType string

const (
	LedgerEventChargeConfirmed       LedgerEventType = "charge_confirmed"
	LedgerEventRefundIssued          LedgerEventType = "refund_issued"
	LedgerEventRefundRecorded        LedgerEventType = "refund_recorded"
	LedgerEventSubscriptionActivated LedgerEventType = "subscription_activated"
	LedgerEventSubscriptionRenewed   LedgerEventType = "subscription_renewed"
	LedgerEventSubscriptionCanceled  LedgerEventType = "subscription_canceled"
	LedgerEventSubscriptionResynced  LedgerEventType = "subscription_resynced"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventChargeConfirmed,
	LedgerEventRefundIssued,
	LedgerEventRefundRecorded,
	LedgerEventSubscriptionActivated,
	LedgerEventSubscriptionRenewed,
	LedgerEventSubscriptionCanceled,
	LedgerEventSubscriptionResynced,
}

// String implements fmt.Stringer.
func (l LedgerEventType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LedgerEventType.
func (l LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into a LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}
