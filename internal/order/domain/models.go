// Package domain contains the premium purchase order model.
package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
)

// Status is the lifecycle state of an order. Only pending may change.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusExpired Status = "expired"
	StatusFailed  Status = "failed"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusExpired, StatusFailed:
		return true
	default:
		return false
	}
}

type Order struct {
	ID                   snowflake.ID                `gorm:"primaryKey" json:"-"`
	OrderID              string                      `gorm:"type:text;not null;uniqueIndex" json:"orderId"`
	UserID               string                      `gorm:"type:text;not null;index" json:"userId"`
	UserEmail            string                      `gorm:"type:text;not null" json:"userEmail"`
	PlanType             subscriptiondomain.PlanType `gorm:"type:text;not null" json:"planType"`
	IsRecurring          bool                        `gorm:"not null;default:false" json:"isRecurring"`
	Amount               int64                       `gorm:"not null" json:"amount"`
	Currency             string                      `gorm:"type:text;not null" json:"currency"`
	Status               Status                      `gorm:"type:text;not null" json:"status"`
	ProviderInvoiceID    *string                     `gorm:"type:text" json:"providerInvoiceId,omitempty"`
	CheckoutURL          *string                     `gorm:"type:text" json:"checkoutUrl,omitempty"`
	InvoiceExpiresAt     *time.Time                  `json:"invoiceExpiresAt,omitempty"`
	PaidAmount           *int64                      `json:"paidAmount,omitempty"`
	PaidAt               *time.Time                  `json:"paidAt,omitempty"`
	PaymentMethod        *string                     `gorm:"type:text" json:"paymentMethod,omitempty"`
	FailureCode          *string                     `gorm:"type:text" json:"failureCode,omitempty"`
	EntitlementExpiresAt *time.Time                  `json:"entitlementExpiresAt,omitempty"`
	SupersededAt         *time.Time                  `json:"supersededAt,omitempty"`
	CreatedAt            time.Time                   `gorm:"not null" json:"createdAt"`
	UpdatedAt            time.Time                   `gorm:"not null" json:"updatedAt"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// PaidUpdate carries the settlement facts recorded on a paid order.
type PaidUpdate struct {
	PaidAmount           int64
	PaidAt               time.Time
	PaymentMethod        string
	EntitlementExpiresAt *time.Time
	// Superseded records a paid order that does not back the subscription.
	Superseded bool
}

// NewOrderID builds an external order reference such as order_1234567890_abc123.
func NewOrderID(now time.Time) string {
	id := ulid.Make().String()
	return "order_" + strconv.FormatInt(now.Unix(), 10) + "_" + strings.ToLower(id[len(id)-6:])
}
