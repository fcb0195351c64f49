package subscription

import (
	"math"
	"time"
)

// TrialWarningDays is how close to the end of a period the warning banner shows.
const TrialWarningDays = 3

// TrialStatus is the evaluated view of a subscription period.
type TrialStatus struct {
	IsExpired     bool `json:"isExpired"`
	ShowWarning   bool `json:"showWarning"`
	DaysRemaining int  `json:"daysRemaining"`
}

// EvaluateTrial computes remaining days and expiry for a subscription period.
// A nil subscription yields the zero status.
func EvaluateTrial(sub *Subscription, now time.Time) TrialStatus {
	if sub == nil {
		return TrialStatus{}
	}

	remaining := sub.PeriodEnd.Sub(now)
	expired := now.After(sub.PeriodEnd)

	days := 0
	if remaining > 0 {
		days = int(math.Ceil(remaining.Hours() / 24))
	}

	return TrialStatus{
		IsExpired:     expired,
		ShowWarning:   !expired && days <= TrialWarningDays,
		DaysRemaining: days,
	}
}
