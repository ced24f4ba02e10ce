package xendit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/nclexprep/internal/config"
	"github.com/smallbiznis/nclexprep/internal/payment/domain"
)

const (
	Provider = "xendit"

	headerCallbackToken     = "x-callback-token"
	headerCallbackSignature = "x-callback-signature"
	headerWebhookID         = "webhook-id"

	eventTypeInvoice = "invoice"
)

type invoiceCallback struct {
	ID             string      `json:"id"`
	ExternalID     string      `json:"external_id"`
	Status         string      `json:"status"`
	Amount         json.Number `json:"amount,omitempty"`
	PaidAmount     json.Number `json:"paid_amount,omitempty"`
	PaidAt         *time.Time  `json:"paid_at,omitempty"`
	PaymentMethod  string      `json:"payment_method,omitempty"`
	PaymentChannel string      `json:"payment_channel,omitempty"`
	FailureCode    string      `json:"failure_code,omitempty"`
	Event          string      `json:"event,omitempty"`
}

// Adapter verifies and decodes Xendit invoice callbacks.
type Adapter struct {
	token         []byte
	signingSecret []byte
}

func NewAdapter(cfg config.Config) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Xendit.WebhookToken)
	if token == "" {
		return nil, errors.New("xendit webhook token is required")
	}
	adapter := &Adapter{token: []byte(token)}
	if secret := strings.TrimSpace(cfg.Xendit.WebhookSigningSecret); secret != "" {
		adapter.signingSecret = []byte(secret)
	}
	return adapter, nil
}

func (a *Adapter) Provider() string {
	return Provider
}

// Verify checks the callback token and, when a signing secret is configured,
// the HMAC-SHA256 signature of the raw body.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	token := strings.TrimSpace(headers.Get(headerCallbackToken))
	if token == "" || subtle.ConstantTimeCompare([]byte(token), a.token) != 1 {
		return domain.ErrInvalidSignature
	}
	if len(a.signingSecret) == 0 {
		return nil
	}

	signature := strings.TrimSpace(headers.Get(headerCallbackSignature))
	if signature == "" {
		return domain.ErrInvalidSignature
	}
	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return domain.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, a.signingSecret)
	mac.Write(payload)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*domain.WebhookEvent, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var callback invoiceCallback
	if err := decoder.Decode(&callback); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	callback.ID = strings.TrimSpace(callback.ID)
	callback.ExternalID = strings.TrimSpace(callback.ExternalID)
	if callback.ID == "" || callback.ExternalID == "" {
		return nil, domain.ErrInvalidPayload
	}

	webhookID := strings.TrimSpace(headers.Get(headerWebhookID))
	if webhookID == "" {
		webhookID = callback.ID
	}
	eventType := strings.TrimSpace(callback.Event)
	if eventType == "" {
		eventType = eventTypeInvoice
	}

	event := &domain.WebhookEvent{
		Provider:      Provider,
		WebhookID:     webhookID,
		EventType:     eventType,
		InvoiceID:     callback.ID,
		ExternalID:    callback.ExternalID,
		Status:        mapStatus(callback.Status),
		RawStatus:     strings.TrimSpace(callback.Status),
		PaidAt:        callback.PaidAt,
		PaymentMethod: firstNonEmpty(callback.PaymentChannel, callback.PaymentMethod),
		FailureCode:   strings.TrimSpace(callback.FailureCode),
		RawPayload:    payload,
	}
	if callback.PaidAmount != "" {
		paid, err := toMinor(callback.PaidAmount)
		if err != nil {
			return nil, domain.ErrInvalidPayload
		}
		event.PaidAmount = &paid
	}
	return event, nil
}

func mapStatus(status string) domain.EventStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID", "SETTLED":
		return domain.EventStatusPaid
	case "EXPIRED":
		return domain.EventStatusExpired
	case "FAILED":
		return domain.EventStatusFailed
	default:
		return domain.EventStatusUnknown
	}
}
