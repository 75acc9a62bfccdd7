package subscriptions

import (
	"time"

	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
)

// MapProviderStatus translates a provider subscription status into the local
// enum. Unknown statuses report false and change nothing.
func MapProviderStatus(status string) (enums.SubscriptionStatus, bool) {
	switch status {
	case "active":
		return enums.SubscriptionStatusActive, true
	case "cancelled":
		return enums.SubscriptionStatusCanceled, true
	case "expired":
		return enums.SubscriptionStatusExpired, true
	}
	return "", false
}

// NextBillingDate computes when the subscription bills next. A future date on
// record advances by one interval; otherwise the trial window sets the first
// billing, falling back to one interval from now.
func NextBillingDate(sub *models.Subscription, now time.Time) time.Time {
	if sub.NextBillingDate != nil && sub.NextBillingDate.After(now) {
		return addInterval(*sub.NextBillingDate, sub.BillingInterval)
	}
	if sub.TrialDays > 0 {
		return now.AddDate(0, 0, sub.TrialDays)
	}
	return addInterval(now, sub.BillingInterval)
}

func addInterval(t time.Time, interval enums.BillingInterval) time.Time {
	switch interval {
	case enums.BillingIntervalDaily:
		return t.AddDate(0, 0, 1)
	case enums.BillingIntervalWeekly:
		return t.AddDate(0, 0, 7)
	case enums.BillingIntervalMonthly:
		return t.AddDate(0, 1, 0)
	case enums.BillingIntervalQuarterly:
		return t.AddDate(0, 3, 0)
	case enums.BillingIntervalHalfYearly:
		return t.AddDate(0, 6, 0)
	case enums.BillingIntervalYearly:
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}
