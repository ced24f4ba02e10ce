package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*UserSubscription, error)
	Activate(ctx context.Context, db *gorm.DB, userID string, activation Activation, now time.Time) error
	SetAutoRenew(ctx context.Context, db *gorm.DB, userID string, autoRenew bool, now time.Time) (bool, error)
}
