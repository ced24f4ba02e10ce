package repository

import (
	"context"
	"time"

	orderdomain "github.com/smallbiznis/nclexprep/internal/order/domain"
	dbpkg "github.com/smallbiznis/nclexprep/pkg/db"
	"gorm.io/gorm"
)

const orderColumns = `id, order_id, user_id, user_email, plan_type, is_recurring, amount, currency,
	 status, provider_invoice_id, checkout_url, invoice_expires_at, paid_amount, paid_at,
	 payment_method, failure_code, entitlement_expires_at, superseded_at, created_at, updated_at`

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OrderID,
		order.UserID,
		order.UserEmail,
		string(order.PlanType),
		order.IsRecurring,
		order.Amount,
		order.Currency,
		string(order.Status),
		order.ProviderInvoiceID,
		order.CheckoutURL,
		order.InvoiceExpiresAt,
		order.PaidAmount,
		order.PaidAt,
		order.PaymentMethod,
		order.FailureCode,
		order.EntitlementExpiresAt,
		order.SupersededAt,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*orderdomain.Order, error) {
	return r.findOne(ctx, db, `SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)
}

func (r *repo) FindByOrderIDForUpdate(ctx context.Context, db *gorm.DB, orderID string) (*orderdomain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = ?`
	if dbpkg.SupportsRowLocks(db) {
		query += ` FOR UPDATE`
	}
	return r.findOne(ctx, db, query, orderID)
}

func (r *repo) FindActivePaidByUser(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*orderdomain.Order, error) {
	return r.findOne(ctx, db,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = ? AND status = ? AND superseded_at IS NULL
		 AND (entitlement_expires_at IS NULL OR entitlement_expires_at > ?)
		 ORDER BY paid_at DESC LIMIT 1`,
		userID,
		string(orderdomain.StatusPaid),
		now,
	)
}

func (r *repo) AttachInvoice(ctx context.Context, db *gorm.DB, orderID, providerInvoiceID, checkoutURL string, expiresAt *time.Time, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders SET provider_invoice_id = ?, checkout_url = ?, invoice_expires_at = ?, updated_at = ?
		 WHERE order_id = ? AND provider_invoice_id IS NULL`,
		providerInvoiceID,
		checkoutURL,
		expiresAt,
		now,
		orderID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	existing, err := r.FindByOrderID(ctx, db, orderID)
	if err != nil {
		return err
	}
	if existing == nil {
		return orderdomain.ErrOrderNotFound
	}
	return orderdomain.ErrInvoiceAlreadyAttached
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, orderID string, update orderdomain.PaidUpdate, now time.Time) (bool, error) {
	var supersededAt *time.Time
	if update.Superseded {
		supersededAt = &now
	}
	var paymentMethod *string
	if update.PaymentMethod != "" {
		paymentMethod = &update.PaymentMethod
	}
	return r.transition(ctx, db,
		`UPDATE orders SET status = ?, paid_amount = ?, paid_at = ?, payment_method = ?,
		 entitlement_expires_at = ?, superseded_at = ?, updated_at = ?
		 WHERE order_id = ? AND status = ?`,
		string(orderdomain.StatusPaid),
		update.PaidAmount,
		update.PaidAt,
		paymentMethod,
		update.EntitlementExpiresAt,
		supersededAt,
		now,
		orderID,
		string(orderdomain.StatusPending),
	)
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, orderID string, now time.Time) (bool, error) {
	return r.transition(ctx, db,
		`UPDATE orders SET status = ?, updated_at = ? WHERE order_id = ? AND status = ?`,
		string(orderdomain.StatusExpired),
		now,
		orderID,
		string(orderdomain.StatusPending),
	)
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, orderID, failureCode string, now time.Time) (bool, error) {
	return r.transition(ctx, db,
		`UPDATE orders SET status = ?, failure_code = ?, updated_at = ? WHERE order_id = ? AND status = ?`,
		string(orderdomain.StatusFailed),
		failureCode,
		now,
		orderID,
		string(orderdomain.StatusPending),
	)
}

func (r *repo) SupersedeLapsed(ctx context.Context, db *gorm.DB, userID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders SET superseded_at = ?, updated_at = ?
		 WHERE user_id = ? AND status = ? AND superseded_at IS NULL
		 AND entitlement_expires_at IS NOT NULL AND entitlement_expires_at <= ?`,
		now,
		now,
		userID,
		string(orderdomain.StatusPaid),
		now,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]orderdomain.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID,
		limit,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...interface{}) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(query, args...).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) transition(ctx context.Context, db *gorm.DB, query string, args ...interface{}) (bool, error) {
	result := db.WithContext(ctx).Exec(query, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
