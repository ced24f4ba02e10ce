package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	paymentdomain "github.com/smallbiznis/nclexprep/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/nclexprep/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestInsertLogIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := paymentrepo.Provide()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	receivedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := &paymentdomain.WebhookLog{
		ID:         node.Generate(),
		Provider:   "xendit",
		WebhookID:  "wh_1",
		EventType:  "invoice.paid",
		Payload:    datatypes.JSON(`{"id":"xendit_inv_123"}`),
		ReceivedAt: receivedAt,
	}
	created, err := repo.InsertLog(ctx, db, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := *first
	second.ID = node.Generate()
	created, err = repo.InsertLog(ctx, db, &second)
	require.NoError(t, err)
	assert.False(t, created)

	other := *first
	other.ID = node.Generate()
	other.Provider = "other"
	created, err = repo.InsertLog(ctx, db, &other)
	require.NoError(t, err)
	assert.True(t, created)

	assertCount(t, db, "webhook_logs", 2)

	found, err := repo.FindLog(ctx, db, "xendit", "wh_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
	assert.False(t, found.Processed)
	assert.JSONEq(t, `{"id":"xendit_inv_123"}`, string(found.Payload))

	missing, err := repo.FindLog(ctx, db, "xendit", "wh_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkProcessedIsOneWay(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := paymentrepo.Provide()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	log := &paymentdomain.WebhookLog{
		ID:         node.Generate(),
		Provider:   "xendit",
		WebhookID:  "wh_1",
		EventType:  "invoice.paid",
		Payload:    datatypes.JSON(`{}`),
		ReceivedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	_, err = repo.InsertLog(ctx, db, log)
	require.NoError(t, err)

	firstAt := time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC)
	require.NoError(t, repo.MarkProcessed(ctx, db, log.ID, firstAt))
	require.NoError(t, repo.MarkProcessed(ctx, db, log.ID, firstAt.Add(time.Hour)))

	found, err := repo.FindLog(ctx, db, "xendit", "wh_1")
	require.NoError(t, err)
	assert.True(t, found.Processed)
	require.NotNil(t, found.ProcessedAt)
	assert.True(t, found.ProcessedAt.Equal(firstAt))
}

func assertCount(t *testing.T, db *gorm.DB, table string, expected int64) {
	t.Helper()
	var count int64
	if err := db.Table(table).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	if count != expected {
		t.Fatalf("expected %d rows in %s, got %d", expected, table, count)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE webhook_logs (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			webhook_id TEXT NOT NULL,
			event_type TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at DATETIME,
			received_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_webhook_logs_provider_webhook_id ON webhook_logs(provider, webhook_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
