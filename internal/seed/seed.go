package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/nclexprep/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg config.Config, db *gorm.DB, log *zap.Logger) {
	if cfg.IsProduction() || strings.TrimSpace(cfg.SeedUserID) == "" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			created, err := EnsureUser(ctx, db, cfg.SeedUserID, cfg.SeedUserEmail, time.Now().UTC())
			if err != nil {
				return err
			}
			if created {
				log.Named("seed").Info("seeded development user", zap.String("user_id", cfg.SeedUserID))
			}
			return nil
		},
	})
}

// EnsureUser inserts a free-tier user row when none exists for userID.
func EnsureUser(ctx context.Context, db *gorm.DB, userID, email string, now time.Time) (bool, error) {
	if db == nil {
		return false, errors.New("seed database handle is required")
	}
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(email)
	if userID == "" || email == "" {
		return false, errors.New("seed user id and email are required")
	}

	created := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Raw(`SELECT COUNT(1) FROM users WHERE id = ?`, userID).Scan(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Exec(
			`INSERT INTO users (id, email, subscription_status, subscription_auto_renew, created_at, updated_at)
			 VALUES (?, ?, 'free', FALSE, ?, ?)`,
			userID, email, now, now,
		).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
