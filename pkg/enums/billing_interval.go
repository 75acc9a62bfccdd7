package enums

import "fmt"

// BillingInterval defines the cadence for a recurring plan.
type BillingInterval string

const (
	BillingIntervalDaily      BillingInterval = "daily"
	BillingIntervalWeekly     BillingInterval = "weekly"
	BillingIntervalMonthly    BillingInterval = "monthly"
	BillingIntervalQuarterly  BillingInterval = "quarterly"
	BillingIntervalHalfYearly BillingInterval = "half_yearly"
	BillingIntervalYearly     BillingInterval = "yearly"
)

var validBillingIntervals = []BillingInterval{
	BillingIntervalDaily,
	BillingIntervalWeekly,
	BillingIntervalMonthly,
	BillingIntervalQuarterly,
	BillingIntervalHalfYearly,
	BillingIntervalYearly,
}

// String implements fmt.Stringer.
func (b BillingInterval) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingInterval.
func (b BillingInterval) IsValid() bool {
	for _, candidate := range validBillingIntervals {
		if candidate == b {
			return true
		}
	}
	return false
}

// ProviderInterval returns the Flutterwave plan interval keyword.
func (b BillingInterval) ProviderInterval() string {
	switch b {
	case BillingIntervalDaily:
		return "daily"
	case BillingIntervalWeekly:
		return "weekly"
	case BillingIntervalMonthly:
		return "monthly"
	case BillingIntervalQuarterly:
		return "quarterly"
	case BillingIntervalHalfYearly:
		return "every 6 months"
	case BillingIntervalYearly:
		return "yearly"
	}
	return string(b)
}

// ParseBillingInterval converts raw input into a BillingInterval.
func ParseBillingInterval(value string) (BillingInterval, error) {
	for _, candidate := range validBillingIntervals {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing interval %q", value)
}
