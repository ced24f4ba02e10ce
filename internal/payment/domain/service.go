package domain

import (
	"context"
	"net/http"
)

// Result is the acknowledgement kind of a handled webhook.
type Result string

const (
	ResultProcessed        Result = "processed"
	ResultAlreadyProcessed Result = "already_processed"
)

type Service interface {
	HandleWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (Result, error)
}
