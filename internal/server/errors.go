package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/nclexprep/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError is the only place that turns domain errors into HTTP statuses.
func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{
			Error:   "Internal Server Error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorResponse{
			Error:   "Invalid Request",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, paymentdomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{
			Error:   "Unauthorized",
			Message: "missing or invalid credentials",
		}
	case errors.Is(err, paymentdomain.ErrInvalidPayload):
		return http.StatusBadRequest, errorResponse{
			Error:   "Invalid payload",
			Message: detail(err, paymentdomain.ErrInvalidRequest, "payload could not be parsed"),
		}
	case errors.Is(err, paymentdomain.ErrInvalidPlan):
		return http.StatusBadRequest, errorResponse{
			Error:   "Invalid Plan",
			Message: detail(err, paymentdomain.ErrInvalidPlan, "unknown plan"),
		}
	case errors.Is(err, paymentdomain.ErrInvalidRequest):
		return http.StatusBadRequest, errorResponse{
			Error:   "Invalid Request",
			Message: detail(err, paymentdomain.ErrInvalidRequest, "invalid request"),
		}
	case errors.Is(err, paymentdomain.ErrSubscriptionExists):
		return http.StatusConflict, errorResponse{
			Error:   "Subscription Exists",
			Message: "an active premium subscription already exists",
		}
	case errors.Is(err, paymentdomain.ErrCheckoutInProgress):
		return http.StatusConflict, errorResponse{
			Error:   "Checkout In Progress",
			Message: "another checkout is in progress",
		}
	case errors.Is(err, paymentdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{
			Error:   "Too Many Requests",
			Message: "too many checkout attempts, retry later",
		}
	case errors.Is(err, paymentdomain.ErrPaymentGateway):
		return http.StatusInternalServerError, errorResponse{
			Error:   "Payment Gateway Error",
			Message: "failed to create invoice",
		}
	case errors.Is(err, paymentdomain.ErrOrderNotFound):
		return http.StatusNotFound, errorResponse{
			Error:   "Order not found",
			Message: "order not found",
		}
	case errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, subscriptiondomain.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{
			Error:   "Not Found",
			Message: "not found",
		}
	case errors.Is(err, subscriptiondomain.ErrNoActiveSubscription):
		return http.StatusConflict, errorResponse{
			Error:   "No Active Subscription",
			Message: "no active premium subscription",
		}
	case errors.Is(err, subscriptiondomain.ErrNotRecurring):
		return http.StatusConflict, errorResponse{
			Error:   "Not Recurring",
			Message: "subscription does not auto-renew",
		}
	case errors.Is(err, paymentdomain.ErrProcessingFailed):
		return http.StatusInternalServerError, errorResponse{
			Error:   "Processing failed",
			Message: "webhook processing failed",
		}
	default:
		return http.StatusInternalServerError, errorResponse{
			Error:   "Internal Server Error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports (type, code) for the request log.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if asValidationErrors(err) != nil {
		return "validation_error", "invalid_request"
	}
	var gwErr *paymentdomain.GatewayError
	if errors.As(err, &gwErr) {
		return "gateway_error", gwErr.Code
	}
	status, _ := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal_error", rootCode(err)
	default:
		return "client_error", rootCode(err)
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// detail strips the sentinel prefix from a wrapped error message.
func detail(err, sentinel error, fallback string) string {
	msg := strings.TrimSpace(strings.TrimPrefix(err.Error(), sentinel.Error()+":"))
	if msg == "" || msg == sentinel.Error() {
		return fallback
	}
	return msg
}

func rootCode(err error) string {
	code, _, _ := strings.Cut(err.Error(), ":")
	return strings.TrimSpace(code)
}
