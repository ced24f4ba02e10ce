package service

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/nclexprep/internal/clock"
	subscriptiondomain "github.com/smallbiznis/nclexprep/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, userID string) (subscriptiondomain.UserSubscription, error) {
	sub, err := s.find(ctx, userID)
	if err != nil {
		return subscriptiondomain.UserSubscription{}, err
	}
	return sub.Effective(s.clock.Now()), nil
}

// HasActive implements domain.Service. Users without a row have no subscription.
func (s *Service) HasActive(ctx context.Context, userID string, now time.Time) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, subscriptiondomain.ErrInvalidUser
	}
	sub, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}
	return sub.IsLive(now), nil
}

// CancelAutoRenew implements domain.Service. Access is kept until expires_at.
func (s *Service) CancelAutoRenew(ctx context.Context, userID string) (subscriptiondomain.UserSubscription, error) {
	sub, err := s.find(ctx, userID)
	if err != nil {
		return subscriptiondomain.UserSubscription{}, err
	}

	now := s.clock.Now()
	if !sub.IsLive(now) {
		return subscriptiondomain.UserSubscription{}, subscriptiondomain.ErrNoActiveSubscription
	}
	if sub.Plan == nil || !sub.Plan.IsRecurring() {
		return subscriptiondomain.UserSubscription{}, subscriptiondomain.ErrNotRecurring
	}
	if !sub.AutoRenew {
		return *sub, nil
	}

	changed, err := s.repo.SetAutoRenew(ctx, s.db, sub.UserID, false, now)
	if err != nil {
		return subscriptiondomain.UserSubscription{}, err
	}
	if changed {
		s.log.Info("subscription.auto_renew_cancelled",
			zap.String("user_id", sub.UserID),
			zap.Timep("expires_at", sub.ExpiresAt),
		)
	}

	sub.AutoRenew = false
	return *sub, nil
}

// Activate implements domain.Service.
func (s *Service) Activate(ctx context.Context, db *gorm.DB, userID string, activation subscriptiondomain.Activation) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return subscriptiondomain.ErrInvalidUser
	}
	if _, ok := subscriptiondomain.ParsePlanType(string(activation.Plan)); !ok {
		return subscriptiondomain.ErrUnknownPlan
	}
	if db == nil {
		db = s.db
	}
	return s.repo.Activate(ctx, db, userID, activation, s.clock.Now())
}

func (s *Service) find(ctx context.Context, userID string) (*subscriptiondomain.UserSubscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, subscriptiondomain.ErrInvalidUser
	}
	sub, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrUserNotFound
	}
	return sub, nil
}
