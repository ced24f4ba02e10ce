package repository

import (
	"context"
	"time"

	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

type subscriptionRow struct {
	ID        string
	Email     string
	Status    string
	Plan      *string
	StartedAt *time.Time
	ExpiresAt *time.Time
	AutoRenew bool
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*subscriptiondomain.UserSubscription, error) {
	var rows []subscriptionRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, subscription_status AS status, subscription_plan AS plan,
		 subscription_started_at AS started_at, subscription_expires_at AS expires_at,
		 subscription_auto_renew AS auto_renew
		 FROM users WHERE id = ? LIMIT 1`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	sub := &subscriptiondomain.UserSubscription{
		UserID:    row.ID,
		Email:     row.Email,
		Status:    subscriptiondomain.Status(row.Status),
		StartedAt: row.StartedAt,
		ExpiresAt: row.ExpiresAt,
		AutoRenew: row.AutoRenew,
	}
	if sub.Status == "" {
		sub.Status = subscriptiondomain.StatusFree
	}
	if row.Plan != nil && *row.Plan != "" {
		plan := subscriptiondomain.PlanType(*row.Plan)
		sub.Plan = &plan
	}
	return sub, nil
}

func (r *repo) Activate(ctx context.Context, db *gorm.DB, userID string, activation subscriptiondomain.Activation, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE users SET subscription_status = ?, subscription_plan = ?,
		 subscription_started_at = ?, subscription_expires_at = ?,
		 subscription_auto_renew = ?, updated_at = ?
		 WHERE id = ?`,
		string(subscriptiondomain.StatusPremium),
		string(activation.Plan),
		activation.StartedAt,
		activation.ExpiresAt,
		activation.AutoRenew,
		now,
		userID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return subscriptiondomain.ErrUserNotFound
	}
	return nil
}

func (r *repo) SetAutoRenew(ctx context.Context, db *gorm.DB, userID string, autoRenew bool, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE users SET subscription_auto_renew = ?, updated_at = ?
		 WHERE id = ? AND subscription_auto_renew <> ?`,
		autoRenew,
		now,
		userID,
		autoRenew,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
