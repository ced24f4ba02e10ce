// Package domain holds the premium subscription projection kept on users.
package domain

import (
	"strings"
	"time"
)

type PlanType string

const (
	PlanMonthlyPremium PlanType = "monthly_premium"
	PlanAnnualPremium  PlanType = "annual_premium"
)

// ParsePlanType accepts only the purchasable plans.
func ParsePlanType(raw string) (PlanType, bool) {
	switch plan := PlanType(strings.TrimSpace(raw)); plan {
	case PlanMonthlyPremium, PlanAnnualPremium:
		return plan, true
	default:
		return "", false
	}
}

// IsRecurring reports whether the plan auto-renews.
func (p PlanType) IsRecurring() bool {
	return p == PlanMonthlyPremium
}

type Status string

const (
	StatusFree    Status = "free"
	StatusPremium Status = "premium"
	StatusExpired Status = "expired"
)

type UserSubscription struct {
	UserID    string     `json:"userId"`
	Email     string     `json:"email"`
	Status    Status     `json:"status"`
	Plan      *PlanType  `json:"plan"`
	StartedAt *time.Time `json:"startedAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
	AutoRenew bool       `json:"autoRenew"`
}

// IsLive reports whether premium access is in effect at now.
func (s UserSubscription) IsLive(now time.Time) bool {
	if s.Status != StatusPremium {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// Effective returns the subscription as seen at now. A lapsed premium row
// reads as expired until the expiry sweep rewrites it.
func (s UserSubscription) Effective(now time.Time) UserSubscription {
	if s.Status == StatusPremium && !s.IsLive(now) {
		s.Status = StatusExpired
		s.AutoRenew = false
	}
	return s
}

// Activation is the subscription state granted by a confirmed payment.
type Activation struct {
	Plan      PlanType
	StartedAt time.Time
	ExpiresAt time.Time
	AutoRenew bool
}
