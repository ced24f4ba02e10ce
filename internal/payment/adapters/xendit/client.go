package xendit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/nclexprep/internal/config"
	"github.com/smallbiznis/nclexprep/internal/observability/metrics"
	"github.com/smallbiznis/nclexprep/internal/observability/tracing"
	"github.com/smallbiznis/nclexprep/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	invoicesPath = "/v2/invoices"
	// provider bodies are kept on errors for diagnostics only
	maxErrorBody = 4 << 10
)

type invoiceItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
	Category string `json:"category,omitempty"`
}

type createInvoicePayload struct {
	ExternalID         string        `json:"external_id"`
	Amount             int64         `json:"amount"`
	PayerEmail         string        `json:"payer_email"`
	Description        string        `json:"description"`
	InvoiceDuration    int           `json:"invoice_duration"`
	SuccessRedirectURL string        `json:"success_redirect_url,omitempty"`
	FailureRedirectURL string        `json:"failure_redirect_url,omitempty"`
	Currency           string        `json:"currency"`
	Items              []invoiceItem `json:"items"`
}

type invoiceResponse struct {
	ID             string      `json:"id"`
	ExternalID     string      `json:"external_id"`
	Status         string      `json:"status"`
	Amount         json.Number `json:"amount"`
	PaidAmount     json.Number `json:"paid_amount,omitempty"`
	Currency       string      `json:"currency"`
	InvoiceURL     string      `json:"invoice_url"`
	ExpiryDate     *time.Time  `json:"expiry_date,omitempty"`
	PaidAt         *time.Time  `json:"paid_at,omitempty"`
	PaymentMethod  string      `json:"payment_method,omitempty"`
	PaymentChannel string      `json:"payment_channel,omitempty"`
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// Client talks to the Xendit invoice API.
type Client struct {
	baseURL    string
	secretKey  string
	appBaseURL string
	catalog    *config.PlanCatalogHolder
	httpClient *http.Client
	validate   *validator.Validate
	metrics    *metrics.PaymentMetrics
	tracer     trace.Tracer
}

func NewClient(cfg config.Config, catalog *config.PlanCatalogHolder, m *metrics.PaymentMetrics) (*Client, error) {
	secretKey := strings.TrimSpace(cfg.Xendit.SecretKey)
	if secretKey == "" {
		return nil, errors.New("xendit secret key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Xendit.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("xendit base url is required")
	}
	if catalog == nil {
		return nil, errors.New("plan catalog is required")
	}
	timeout := cfg.Xendit.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		secretKey:  secretKey,
		appBaseURL: strings.TrimRight(strings.TrimSpace(cfg.AppBaseURL), "/"),
		catalog:    catalog,
		httpClient: &http.Client{Timeout: timeout},
		validate:   validator.New(),
		metrics:    m,
		tracer:     otel.Tracer("nclexprep/xendit"),
	}, nil
}

// CreateInvoice issues a hosted invoice for the order. The returned amount is
// in minor units.
func (c *Client) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.UserEmail = strings.TrimSpace(req.UserEmail)
	if err := c.validate.Struct(req); err != nil {
		return nil, &domain.GatewayError{
			Code:    domain.GatewayCodeInvalidRequest,
			Message: "invalid invoice request",
			Err:     err,
		}
	}

	catalog := c.catalog.Get()
	plan, ok := catalog.Lookup(string(req.PlanType))
	if !ok {
		return nil, &domain.GatewayError{
			Code:    domain.GatewayCodeInvalidRequest,
			Message: fmt.Sprintf("plan %q is not in the catalog", req.PlanType),
		}
	}
	major, err := toMajor(plan.Amount)
	if err != nil {
		return nil, err
	}

	payload := createInvoicePayload{
		ExternalID:      req.OrderID,
		Amount:          major,
		PayerEmail:      req.UserEmail,
		Description:     plan.Description,
		InvoiceDuration: catalog.InvoiceDurationHours * 3600,
		Currency:        catalog.Currency,
		Items: []invoiceItem{{
			Name:     plan.Name,
			Quantity: 1,
			Price:    major,
			Category: "subscription",
		}},
	}
	if c.appBaseURL != "" {
		payload.SuccessRedirectURL = c.appBaseURL + "/payment/success?orderId=" + url.QueryEscape(req.OrderID)
		payload.FailureRedirectURL = c.appBaseURL + "/payment/failed?orderId=" + url.QueryEscape(req.OrderID)
	}

	var resp invoiceResponse
	if err := c.do(ctx, metrics.GatewayOperationCreateInvoice, http.MethodPost, invoicesPath, payload, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.InvoiceURL == "" {
		return nil, &domain.GatewayError{
			Code:    domain.GatewayCodeInvalidResponse,
			Message: "invoice response missing id or invoice_url",
		}
	}

	amount := plan.Amount
	if resp.Amount != "" {
		parsed, err := toMinor(resp.Amount)
		if err != nil {
			return nil, &domain.GatewayError{Code: domain.GatewayCodeInvalidResponse, Message: "invalid amount", Err: err}
		}
		amount = parsed
	}
	currency := resp.Currency
	if currency == "" {
		currency = catalog.Currency
	}
	externalID := resp.ExternalID
	if externalID == "" {
		externalID = req.OrderID
	}

	return &domain.Invoice{
		ID:          resp.ID,
		ExternalID:  externalID,
		CheckoutURL: resp.InvoiceURL,
		Status:      resp.Status,
		Amount:      amount,
		Currency:    currency,
		ExpiresAt:   resp.ExpiryDate,
	}, nil
}

func (c *Client) CheckInvoiceStatus(ctx context.Context, invoiceID string) (*domain.InvoiceStatus, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, &domain.GatewayError{Code: domain.GatewayCodeInvalidRequest, Message: "invoice id is required"}
	}

	var resp invoiceResponse
	path := invoicesPath + "/" + url.PathEscape(invoiceID)
	if err := c.do(ctx, metrics.GatewayOperationGetInvoice, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &domain.GatewayError{Code: domain.GatewayCodeInvalidResponse, Message: "invoice response missing id"}
	}

	status := &domain.InvoiceStatus{
		ID:            resp.ID,
		ExternalID:    resp.ExternalID,
		Status:        resp.Status,
		PaymentMethod: firstNonEmpty(resp.PaymentChannel, resp.PaymentMethod),
		PaidAt:        resp.PaidAt,
		ExpiresAt:     resp.ExpiryDate,
	}
	if resp.Amount != "" {
		amount, err := toMinor(resp.Amount)
		if err != nil {
			return nil, &domain.GatewayError{Code: domain.GatewayCodeInvalidResponse, Message: "invalid amount", Err: err}
		}
		status.Amount = amount
	}
	if resp.PaidAmount != "" {
		paid, err := toMinor(resp.PaidAmount)
		if err != nil {
			return nil, &domain.GatewayError{Code: domain.GatewayCodeInvalidResponse, Message: "invalid paid_amount", Err: err}
		}
		status.PaidAmount = &paid
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body any, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "xendit."+operation, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(tracing.SafeAttributes(attribute.String("gateway.operation", operation))...)
	start := time.Now()
	defer func() {
		code := ""
		var gwErr *domain.GatewayError
		if errors.As(err, &gwErr) {
			code = gwErr.Code
			span.SetAttributes(tracing.SafeAttributes(attribute.String("gateway.error_code", code))...)
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, code)
		}
		c.metrics.ObserveGatewayCall(operation, code, time.Since(start))
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &domain.GatewayError{Code: domain.GatewayCodeInvalidRequest, Message: "encode request", Err: err}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.GatewayError{Code: domain.GatewayCodeInvalidRequest, Message: "build request", Err: err}
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.GatewayError{Code: domain.GatewayCodeNetwork, Message: "xendit request failed", Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(tracing.SafeAttributes(attribute.Int("gateway.status_code", resp.StatusCode))...)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.GatewayError{
			Code:       domain.GatewayCodeNetwork,
			StatusCode: resp.StatusCode,
			Message:    "read response",
			Err:        err,
		}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		gwErr := &domain.GatewayError{
			Code:       domain.GatewayCodeAPI,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), maxErrorBody),
			Message:    http.StatusText(resp.StatusCode),
		}
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil {
			if code := strings.TrimSpace(apiErr.ErrorCode); code != "" {
				gwErr.Code = code
			}
			if msg := strings.TrimSpace(apiErr.Message); msg != "" {
				gwErr.Message = msg
			}
		}
		return gwErr
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return &domain.GatewayError{
			Code:       domain.GatewayCodeInvalidResponse,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), maxErrorBody),
			Message:    "malformed response",
			Err:        err,
		}
	}
	return nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}
