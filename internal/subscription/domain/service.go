package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Service interface {
	Get(ctx context.Context, userID string) (UserSubscription, error)
	HasActive(ctx context.Context, userID string, now time.Time) (bool, error)
	CancelAutoRenew(ctx context.Context, userID string) (UserSubscription, error)
	// Activate runs on the caller's transaction handle.
	Activate(ctx context.Context, db *gorm.DB, userID string, activation Activation) error
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrUserNotFound         = errors.New("user_not_found")
	ErrUnknownPlan          = errors.New("unknown_plan")
	ErrNoActiveSubscription = errors.New("no_active_subscription")
	ErrNotRecurring         = errors.New("subscription_not_recurring")
)
