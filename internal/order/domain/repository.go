package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Order, error)
	FindByOrderIDForUpdate(ctx context.Context, db *gorm.DB, orderID string) (*Order, error)
	FindActivePaidByUser(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*Order, error)
	AttachInvoice(ctx context.Context, db *gorm.DB, orderID, providerInvoiceID, checkoutURL string, expiresAt *time.Time, now time.Time) error
	MarkPaid(ctx context.Context, db *gorm.DB, orderID string, update PaidUpdate, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, db *gorm.DB, orderID string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, orderID, failureCode string, now time.Time) (bool, error)
	SupersedeLapsed(ctx context.Context, db *gorm.DB, userID string, now time.Time) (int64, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]Order, error)
}

var (
	ErrInvoiceAlreadyAttached = errors.New("invoice_already_attached")
	ErrOrderNotFound          = errors.New("order_not_found")
)
