package repository_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	orderdomain "github.com/smallbiznis/nclexprep/internal/order/domain"
	orderrepo "github.com/smallbiznis/nclexprep/internal/order/repository"
	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
	"github.com/smallbiznis/nclexprep/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestInsertAndFindByOrderID(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	repo := orderrepo.Provide()
	node := newNode(t)

	order := newPendingOrder(node, "order_1234567890_abc123", "user_456", subscriptiondomain.PlanMonthlyPremium, 20000)
	require.NoError(t, repo.Insert(ctx, conn, order))

	found, err := repo.FindByOrderID(ctx, conn, "order_1234567890_abc123")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, order.ID, found.ID)
	assert.Equal(t, "user_456", found.UserID)
	assert.Equal(t, subscriptiondomain.PlanMonthlyPremium, found.PlanType)
	assert.True(t, found.IsRecurring)
	assert.Equal(t, int64(20000), found.Amount)
	assert.Equal(t, orderdomain.StatusPending, found.Status)
	assert.Nil(t, found.ProviderInvoiceID)

	missing, err := repo.FindByOrderID(ctx, conn, "order_0_zzzzzz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	locked, err := repo.FindByOrderIDForUpdate(ctx, conn, "order_1234567890_abc123")
	require.NoError(t, err)
	require.NotNil(t, locked)
	assert.Equal(t, order.OrderID, locked.OrderID)
}

func TestInsertRejectsDuplicateOrderID(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	repo := orderrepo.Provide()
	node := newNode(t)

	require.NoError(t, repo.Insert(ctx, conn, newPendingOrder(node, "order_1_aaaaaa", "user_1", subscriptiondomain.PlanAnnualPremium, 192000)))
	err := repo.Insert(ctx, conn, newPendingOrder(node, "order_1_aaaaaa", "user_2", subscriptiondomain.PlanAnnualPremium, 192000))
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))
}

func TestAttachInvoiceOnlyOnce(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	repo := orderrepo.Provide()
	node := newNode(t)

	require.NoError(t, repo.Insert(ctx, conn, newPendingOrder(node, "order_1_aaaaaa", "user_1", subscriptiondomain.PlanMonthlyPremium, 20000)))

	expiresAt := baseTime.Add(24 * time.Hour)
	require.NoError(t, repo.AttachInvoice(ctx, conn, "order_1_aaaaaa", "inv_1", "https://checkout.xendit.co/inv_1", &expiresAt, baseTime))

	err := repo.AttachInvoice(ctx, conn, "order_1_aaaaaa", "inv_2", "https://checkout.xendit.co/inv_2", nil, baseTime)
	assert.ErrorIs(t, err, orderdomain.ErrInvoiceAlreadyAttached)

	err = repo.AttachInvoice(ctx, conn, "order_missing", "inv_3", "https://checkout.xendit.co/inv_3", nil, baseTime)
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)

	found, err := repo.FindByOrderID(ctx, conn, "order_1_aaaaaa")
	require.NoError(t, err)
	require.NotNil(t, found.ProviderInvoiceID)
	assert.Equal(t, "inv_1", *found.ProviderInvoiceID)
	require.NotNil(t, found.CheckoutURL)
	assert.Equal(t, "https://checkout.xendit.co/inv_1", *found.CheckoutURL)
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	repo := orderrepo.Provide()
	node := newNode(t)

	require.NoError(t, repo.Insert(ctx, conn, newPendingOrder(node, "order_1_aaaaaa", "user_1", subscriptiondomain.PlanMonthlyPremium, 20000)))

	expires := baseTime.AddDate(0, 0, 30)
	changed, err := repo.MarkPaid(ctx, conn, "order_1_aaaaaa", orderdomain.PaidUpdate{
		PaidAmount:           20000,
		PaidAt:               baseTime,
		PaymentMethod:        "GCASH",
		EntitlementExpiresAt: &expires,
	}, baseTime)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkExpired(ctx, conn, "order_1_aaaaaa", baseTime)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.MarkFailed(ctx, conn, "order_1_aaaaaa", "PAYMENT_FAILED", baseTime)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.MarkPaid(ctx, conn, "order_1_aaaaaa", orderdomain.PaidUpdate{PaidAmount: 1, PaidAt: baseTime}, baseTime)
	require.NoError(t, err)
	assert.False(t, changed)

	found, err := repo.FindByOrderID(ctx, conn, "order_1_aaaaaa")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, found.Status)
	require.NotNil(t, found.PaidAmount)
	assert.Equal(t, int64(20000), *found.PaidAmount)
	require.NotNil(t, found.PaymentMethod)
	assert.Equal(t, "GCASH", *found.PaymentMethod)
	assert.Nil(t, found.FailureCode)
	assert.Nil(t, found.SupersededAt)
}

func TestMarkFailedRecordsCode(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	repo := orderrepo.Provide()
	node := newNode(t)

	require.NoError(t, repo.Insert(ctx, conn, newPendingOrder(node, "order_1_aaaaaa", "user_1", subscriptiondomain.PlanMonthlyPremium, 20000)))

	changed, err := repo.MarkFailed(ctx, conn, "order_1_aaaaaa", "NETWORK_ERROR", baseTime)
	require.NoError(t, err)
	assert.True(t, changed)

	found, err := repo.FindByOrderID(ctx, conn, "order_1_aaaaaa")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusFailed, found.Status)
	require.NotNil(t, found.FailureCode)
	assert.Equal(t, "NETWORK_ERROR", *found.FailureCode)
}

func TestOneActivePaidOrderPerUser(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	repo := orderrepo.Provide()
	node := newNode(t)

	require.NoError(t, repo.Insert(ctx, conn, newPendingOrder(node, "order_1_aaaaaa", "user_1", subscriptiondomain.PlanMonthlyPremium, 20000)))
	require.NoError(t, repo.Insert(ctx, conn, newPendingOrder(node, "order_2_bbbbbb", "user_1", subscriptiondomain.PlanAnnualPremium, 192000)))

	expires := baseTime.AddDate(0, 0, 30)
	_, err := repo.MarkPaid(ctx, conn, "order_1_aaaaaa", orderdomain.PaidUpdate{PaidAmount: 20000, PaidAt: baseTime, EntitlementExpiresAt: &expires}, baseTime)
	require.NoError(t, err)

	_, err = repo.MarkPaid(ctx, conn, "order_2_bbbbbb", orderdomain.PaidUpdate{PaidAmount: 192000, PaidAt: baseTime}, baseTime)
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))

	changed, err := repo.MarkPaid(ctx, conn, "order_2_bbbbbb", orderdomain.PaidUpdate{PaidAmount: 192000, PaidAt: baseTime, Superseded: true}, baseTime)
	require.NoError(t, err)
	assert.True(t, changed)

	active, err := repo.FindActivePaidByUser(ctx, conn, "user_1", baseTime)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "order_1_aaaaaa", active.OrderID)
}

func TestSupersedeLapsed(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	repo := orderrepo.Provide()
	node := newNode(t)

	require.NoError(t, repo.Insert(ctx, conn, newPendingOrder(node, "order_1_aaaaaa", "user_1", subscriptiondomain.PlanMonthlyPremium, 20000)))
	expires := baseTime.AddDate(0, 0, 30)
	_, err := repo.MarkPaid(ctx, conn, "order_1_aaaaaa", orderdomain.PaidUpdate{PaidAmount: 20000, PaidAt: baseTime, EntitlementExpiresAt: &expires}, baseTime)
	require.NoError(t, err)

	n, err := repo.SupersedeLapsed(ctx, conn, "user_1", baseTime.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	later := baseTime.AddDate(0, 0, 31)
	active, err := repo.FindActivePaidByUser(ctx, conn, "user_1", later)
	require.NoError(t, err)
	assert.Nil(t, active)

	n, err = repo.SupersedeLapsed(ctx, conn, "user_1", later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err := repo.FindByOrderID(ctx, conn, "order_1_aaaaaa")
	require.NoError(t, err)
	assert.NotNil(t, found.SupersededAt)
	assert.Equal(t, orderdomain.StatusPaid, found.Status)
}

func TestListByUser(t *testing.T) {
	ctx := context.Background()
	conn := setupTestDB(t)
	repo := orderrepo.Provide()
	node := newNode(t)

	for i := 0; i < 3; i++ {
		order := newPendingOrder(node, fmt.Sprintf("order_%d_aaaaaa", i), "user_1", subscriptiondomain.PlanMonthlyPremium, 20000)
		order.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Insert(ctx, conn, order))
	}
	require.NoError(t, repo.Insert(ctx, conn, newPendingOrder(node, "order_9_zzzzzz", "user_2", subscriptiondomain.PlanMonthlyPremium, 20000)))

	orders, err := repo.ListByUser(ctx, conn, "user_1", 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "order_2_aaaaaa", orders[0].OrderID)
	assert.Equal(t, "order_1_aaaaaa", orders[1].OrderID)
}

func TestNewOrderIDFormat(t *testing.T) {
	id := orderdomain.NewOrderID(time.Unix(1234567890, 0))
	assert.Regexp(t, regexp.MustCompile(`^order_1234567890_[0-9a-z]{6}$`), id)
	assert.NotEqual(t, id, orderdomain.NewOrderID(time.Unix(1234567890, 0)))
}

func newPendingOrder(node *snowflake.Node, orderID, userID string, plan subscriptiondomain.PlanType, amount int64) *orderdomain.Order {
	return &orderdomain.Order{
		ID:          node.Generate(),
		OrderID:     orderID,
		UserID:      userID,
		UserEmail:   userID + "@example.com",
		PlanType:    plan,
		IsRecurring: plan.IsRecurring(),
		Amount:      amount,
		Currency:    "PHP",
		Status:      orderdomain.StatusPending,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
}

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			order_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_email TEXT NOT NULL,
			plan_type TEXT NOT NULL,
			is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			provider_invoice_id TEXT,
			checkout_url TEXT,
			invoice_expires_at DATETIME,
			paid_amount BIGINT,
			paid_at DATETIME,
			payment_method TEXT,
			failure_code TEXT,
			entitlement_expires_at DATETIME,
			superseded_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_orders_order_id ON orders(order_id)`,
		`CREATE UNIQUE INDEX ux_orders_provider_invoice_id ON orders(provider_invoice_id) WHERE provider_invoice_id IS NOT NULL`,
		`CREATE UNIQUE INDEX ux_orders_user_active_paid ON orders(user_id) WHERE status = 'paid' AND superseded_at IS NULL`,
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
