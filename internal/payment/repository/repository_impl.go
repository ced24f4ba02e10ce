package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nclexprep/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindLog(ctx context.Context, db *gorm.DB, provider, webhookID string) (*domain.WebhookLog, error) {
	var item domain.WebhookLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, webhook_id, event_type, payload, processed, processed_at, received_at
		 FROM webhook_logs
		 WHERE provider = ? AND webhook_id = ?
		 LIMIT 1`,
		provider,
		webhookID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// InsertLog reports false when the delivery was already recorded.
func (r *repo) InsertLog(ctx context.Context, db *gorm.DB, log *domain.WebhookLog) (bool, error) {
	query := `INSERT INTO webhook_logs (
			id, provider, webhook_id, event_type, payload, processed, processed_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, webhook_id) DO NOTHING`
	if db.Dialector.Name() == "mysql" {
		query = `INSERT IGNORE INTO webhook_logs (
			id, provider, webhook_id, event_type, payload, processed, processed_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	}

	res := db.WithContext(ctx).Exec(query,
		log.ID,
		log.Provider,
		log.WebhookID,
		log.EventType,
		log.Payload,
		log.Processed,
		log.ProcessedAt,
		log.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_logs
		 SET processed = TRUE, processed_at = ?
		 WHERE id = ? AND processed = FALSE`,
		processedAt,
		id,
	).Error
}
