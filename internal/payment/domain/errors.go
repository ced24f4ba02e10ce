package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInvalidPlan        = errors.New("invalid_plan")
	ErrSubscriptionExists = errors.New("subscription_exists")
	ErrPaymentGateway     = errors.New("payment_gateway_error")
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrProcessingFailed   = errors.New("processing_failed")

	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrProviderNotFound   = errors.New("provider_not_found")
	ErrCheckoutInProgress = errors.New("checkout_in_progress")
	ErrRateLimited        = errors.New("rate_limited")
)

const (
	GatewayCodeNetwork         = "NETWORK_ERROR"
	GatewayCodeAPI             = "API_ERROR"
	GatewayCodeInvalidResponse = "INVALID_RESPONSE"
	GatewayCodeInvalidAmount   = "INVALID_AMOUNT"
	GatewayCodeInvalidRequest  = "INVALID_REQUEST"
)

// GatewayError describes a failed gateway call. StatusCode is zero when the
// request never produced an HTTP response.
type GatewayError struct {
	Code       string
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s (status %d): %s", e.Code, e.StatusCode, msg)
	}
	return fmt.Sprintf("gateway %s: %s", e.Code, msg)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
