package xendit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"testing"

	"github.com/smallbiznis/nclexprep/internal/config"
	"github.com/smallbiznis/nclexprep/internal/payment/domain"
)

const paidCallback = `{
	"id": "xendit_inv_123",
	"external_id": "order_1234567890_abc123",
	"status": "PAID",
	"amount": 200,
	"paid_amount": 200,
	"paid_at": "2026-03-01T10:00:00.000Z",
	"payment_method": "EWALLET",
	"payment_channel": "GCASH"
}`

func TestVerifyCallbackToken(t *testing.T) {
	adapter := newTestAdapter(t, "")
	payload := []byte(paidCallback)

	headers := http.Header{}
	headers.Set("X-Callback-Token", "tok_test")
	if err := adapter.Verify(context.Background(), payload, headers); err != nil {
		t.Fatalf("expected valid token, got error: %v", err)
	}

	headers.Set("X-Callback-Token", "tok_wrong")
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	if err := adapter.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for missing token, got %v", err)
	}
}

func TestVerifySignatureWhenSecretConfigured(t *testing.T) {
	adapter := newTestAdapter(t, "whsec_test")
	payload := []byte(paidCallback)

	headers := http.Header{}
	headers.Set("X-Callback-Token", "tok_test")
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected missing signature to fail, got %v", err)
	}

	headers.Set("X-Callback-Signature", sign("whsec_test", payload))
	if err := adapter.Verify(context.Background(), payload, headers); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	headers.Set("X-Callback-Signature", sign("wrong", payload))
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	headers.Set("X-Callback-Signature", sign("whsec_test", payload))
	if err := adapter.Verify(context.Background(), []byte(`{"tampered":true}`), headers); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected tampered body to fail, got %v", err)
	}
}

func TestParseInvoiceCallback(t *testing.T) {
	adapter := newTestAdapter(t, "")

	tests := []struct {
		name       string
		payload    string
		headers    map[string]string
		wantID     string
		wantStatus domain.EventStatus
		wantPaid   int64
		wantMethod string
	}{{
		name:       "paid uses payment channel",
		payload:    paidCallback,
		wantID:     "xendit_inv_123",
		wantStatus: domain.EventStatusPaid,
		wantPaid:   20000,
		wantMethod: "GCASH",
	}, {
		name:       "webhook id header wins",
		payload:    paidCallback,
		headers:    map[string]string{"webhook-id": "wh_777"},
		wantID:     "wh_777",
		wantStatus: domain.EventStatusPaid,
		wantPaid:   20000,
		wantMethod: "GCASH",
	}, {
		name:       "settled counts as paid",
		payload:    `{"id":"inv_2","external_id":"order_2_bbbbbb","status":"SETTLED","paid_amount":"1920.50","payment_method":"CARD"}`,
		wantID:     "inv_2",
		wantStatus: domain.EventStatusPaid,
		wantPaid:   192050,
		wantMethod: "CARD",
	}, {
		name:       "expired",
		payload:    `{"id":"inv_3","external_id":"order_3_cccccc","status":"EXPIRED"}`,
		wantID:     "inv_3",
		wantStatus: domain.EventStatusExpired,
	}, {
		name:       "failed",
		payload:    `{"id":"inv_4","external_id":"order_4_dddddd","status":"FAILED","failure_code":"INSUFFICIENT_BALANCE"}`,
		wantID:     "inv_4",
		wantStatus: domain.EventStatusFailed,
	}, {
		name:       "unknown status is kept",
		payload:    `{"id":"inv_5","external_id":"order_5_eeeeee","status":"PENDING"}`,
		wantID:     "inv_5",
		wantStatus: domain.EventStatusUnknown,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			for k, v := range tt.headers {
				headers.Set(k, v)
			}
			event, err := adapter.Parse(context.Background(), []byte(tt.payload), headers)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if event.WebhookID != tt.wantID {
				t.Fatalf("expected webhook id %s, got %s", tt.wantID, event.WebhookID)
			}
			if event.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s", tt.wantStatus, event.Status)
			}
			if event.Provider != Provider {
				t.Fatalf("expected provider %s, got %s", Provider, event.Provider)
			}
			if tt.wantPaid > 0 {
				if event.PaidAmount == nil || *event.PaidAmount != tt.wantPaid {
					t.Fatalf("expected paid amount %d, got %v", tt.wantPaid, event.PaidAmount)
				}
			}
			if event.PaymentMethod != tt.wantMethod {
				t.Fatalf("expected method %q, got %q", tt.wantMethod, event.PaymentMethod)
			}
		})
	}
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	adapter := newTestAdapter(t, "")
	for _, payload := range []string{
		`not json`,
		`{"id":"inv_1"}`,
		`{"external_id":"order_1_aaaaaa"}`,
		`{"id":"inv_1","external_id":"order_1_aaaaaa","status":"PAID","paid_amount":"200.001"}`,
	} {
		if _, err := adapter.Parse(context.Background(), []byte(payload), http.Header{}); !errors.Is(err, domain.ErrInvalidPayload) {
			t.Fatalf("expected invalid payload for %s, got %v", payload, err)
		}
	}
}

func TestMinorMajorConversion(t *testing.T) {
	major, err := toMajor(192000)
	if err != nil || major != 1920 {
		t.Fatalf("expected 1920, got %d (%v)", major, err)
	}

	_, err = toMajor(20050)
	var gwErr *domain.GatewayError
	if !errors.As(err, &gwErr) || gwErr.Code != domain.GatewayCodeInvalidAmount {
		t.Fatalf("expected INVALID_AMOUNT, got %v", err)
	}

	for raw, want := range map[string]int64{"200": 20000, "200.5": 20050, "0.01": 1, "1.9200e3": 192000} {
		got, err := toMinor(json.Number(raw))
		if err != nil || got != want {
			t.Fatalf("toMinor(%s): expected %d, got %d (%v)", raw, want, got, err)
		}
	}

	largest, err := toMinor(json.Number("92233720368547758.07"))
	if err != nil || largest != math.MaxInt64 {
		t.Fatalf("expected max int64, got %d (%v)", largest, err)
	}
	for _, raw := range []string{"92233720368547758.08", "92233720368547759", "--5"} {
		if got, err := toMinor(json.Number(raw)); err == nil {
			t.Fatalf("toMinor(%s): expected error, got %d", raw, got)
		}
	}
}

func newTestAdapter(t *testing.T, signingSecret string) *Adapter {
	t.Helper()
	cfg := config.Config{Xendit: config.XenditConfig{
		WebhookToken:         "tok_test",
		WebhookSigningSecret: signingSecret,
	}}
	adapter, err := NewAdapter(cfg)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
