package domain

import (
	"time"

	"github.com/smallbiznis/nclexprep/internal/config"
)

// ComputeActivation derives the entitlement window starting at now, the
// moment the payment is reconciled. Recurring plans renew, one-time plans do not.
func ComputeActivation(plan PlanType, catalog config.PlanCatalog, now time.Time) (Activation, error) {
	entry, ok := catalog.Lookup(string(plan))
	if !ok || entry.DurationDays <= 0 {
		return Activation{}, ErrUnknownPlan
	}

	startedAt := now.UTC()
	return Activation{
		Plan:      plan,
		StartedAt: startedAt,
		ExpiresAt: startedAt.AddDate(0, 0, entry.DurationDays),
		AutoRenew: plan.IsRecurring() && entry.Recurring,
	}, nil
}
