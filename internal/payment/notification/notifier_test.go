package notification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/nclexprep/internal/payment/notification"
	"github.com/smallbiznis/nclexprep/internal/providers/email"
	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return m.Called(ctx, to, subject, htmlBody).Error(0)
}

func (m *mockEmail) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	return m.Called(ctx, to, templateName, data).Error(0)
}

func TestNotifyPaymentConfirmedSendsTemplate(t *testing.T) {
	provider := &mockEmail{}
	provider.On("SendTemplate", mock.Anything, []string{"nurse@example.com"}, email.TemplatePaymentConfirmation,
		mock.MatchedBy(func(data interface{}) bool {
			m, ok := data.(map[string]interface{})
			return ok && m["amount_display"] == "200.00" && m["order_id"] == "order_1234567890_abc123" && m["auto_renew"] == true
		}),
	).Return(nil).Once()

	notifier := notification.NewEmailNotifier(notification.Params{Log: zap.NewNop(), Email: provider})
	expiresAt := time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC)
	err := notifier.NotifyPaymentConfirmed(context.Background(), notification.PaymentConfirmation{
		UserID:        "user_456",
		Email:         "nurse@example.com",
		OrderID:       "order_1234567890_abc123",
		PlanType:      subscriptiondomain.PlanMonthlyPremium,
		PlanName:      "Monthly Premium",
		Amount:        20000,
		Currency:      "PHP",
		PaymentMethod: "GCASH",
		ExpiresAt:     &expiresAt,
		AutoRenew:     true,
	})
	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestNotifyPaymentConfirmedReturnsProviderError(t *testing.T) {
	provider := &mockEmail{}
	provider.On("SendTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	notifier := notification.NewEmailNotifier(notification.Params{Log: zap.NewNop(), Email: provider})
	err := notifier.NotifyPaymentConfirmed(context.Background(), notification.PaymentConfirmation{
		Email:   "nurse@example.com",
		OrderID: "order_1_aaaaaa",
		Amount:  192000,
	})
	assert.ErrorContains(t, err, "smtp down")
}

func TestNotifyPaymentConfirmedWithoutRecipient(t *testing.T) {
	provider := &mockEmail{}
	notifier := notification.NewEmailNotifier(notification.Params{Log: zap.NewNop(), Email: provider})

	err := notifier.NotifyPaymentConfirmed(context.Background(), notification.PaymentConfirmation{OrderID: "order_1_aaaaaa"})
	assert.Error(t, err)
	provider.AssertNotCalled(t, "SendTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
