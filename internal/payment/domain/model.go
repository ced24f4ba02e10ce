package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
	"gorm.io/datatypes"
)

// WebhookLog is the idempotency ledger entry for one provider delivery.
type WebhookLog struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider    string         `json:"provider" gorm:"type:text;not null"`
	WebhookID   string         `json:"webhook_id" gorm:"type:text;not null"`
	EventType   string         `json:"event_type" gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Processed   bool           `json:"processed" gorm:"not null;default:false"`
	ProcessedAt *time.Time     `json:"processed_at"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null"`
}

func (WebhookLog) TableName() string { return "webhook_logs" }

// EventStatus is the provider invoice status normalized for reconciliation.
type EventStatus string

const (
	EventStatusPaid    EventStatus = "paid"
	EventStatusExpired EventStatus = "expired"
	EventStatusFailed  EventStatus = "failed"
	EventStatusUnknown EventStatus = "unknown"
)

// WebhookEvent is the canonical invoice callback parsed by adapters.
type WebhookEvent struct {
	Provider      string
	WebhookID     string
	EventType     string
	InvoiceID     string
	ExternalID    string
	Status        EventStatus
	RawStatus     string
	PaidAmount    *int64
	PaidAt        *time.Time
	PaymentMethod string
	FailureCode   string
	RawPayload    []byte
}

type CreateInvoiceRequest struct {
	OrderID   string                      `validate:"required"`
	PlanType  subscriptiondomain.PlanType `validate:"required,oneof=monthly_premium annual_premium"`
	UserEmail string                      `validate:"required,email"`
}

// Invoice is a hosted checkout page issued by the gateway. Amount is in
// minor units.
type Invoice struct {
	ID          string
	ExternalID  string
	CheckoutURL string
	Status      string
	Amount      int64
	Currency    string
	ExpiresAt   *time.Time
}

// InvoiceStatus is the provider-side view of an invoice.
type InvoiceStatus struct {
	ID            string     `json:"id"`
	ExternalID    string     `json:"externalId"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	PaidAmount    *int64     `json:"paidAmount,omitempty"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}
