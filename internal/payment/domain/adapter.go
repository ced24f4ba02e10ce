package domain

import (
	"context"
	"net/http"
)

// Gateway issues and inspects hosted invoices.
type Gateway interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	CheckInvoiceStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error)
}

// PaymentAdapter authenticates and decodes provider callbacks.
type PaymentAdapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte, headers http.Header) (*WebhookEvent, error)
}
