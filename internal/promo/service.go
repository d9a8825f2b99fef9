package promo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/example/ridedispatch/internal/booking/domain"
)

var redemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "promo_redemptions_total",
	Help: "Promo redemption attempts grouped by outcome.",
}, []string{"outcome"})

// Service validates and redeems promo codes.
type Service struct {
	store  Store
	rides  RideHistory
	clock  domain.Clock
	logger *zap.Logger
}

// NewService constructs the promo service.
func NewService(store Store, rides RideHistory, clock domain.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, rides: rides, clock: clock, logger: logger}
}

func failure(outcome, message string) Result {
	redemptionsTotal.WithLabelValues(outcome).Inc()
	return Result{Success: false, Discount: 0, Message: message}
}

// Redeem runs the full validation chain and, on success, atomically claims a
// usage slot and records the per-user redemption. The fare must be the amount
// the discount applies to.
func (s *Service) Redeem(ctx context.Context, uid uuid.UUID, code string, fare float64) (Result, error) {
	if code == "" || fare < 0 {
		return Result{}, fmt.Errorf("%w: code and fare are required", domain.ErrInvalidArgument)
	}
	upper := strings.ToUpper(code)

	promo, err := s.store.GetCode(ctx, upper)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return failure("not_found", "Promo code not found."), nil
		}
		return Result{}, fmt.Errorf("load promo: %w", err)
	}

	if !promo.IsActive {
		return failure("inactive", "This promo is no longer active."), nil
	}

	now := s.clock.Now()
	if promo.ValidUntil != nil && promo.ValidUntil.Before(now) {
		return failure("expired", "This promo has expired."), nil
	}
	if promo.ValidFrom != nil && promo.ValidFrom.After(now) {
		return failure("not_started", "This promo is not yet active."), nil
	}

	used, err := s.store.UsedCount(ctx, upper)
	if err != nil {
		return Result{}, fmt.Errorf("promo usage count: %w", err)
	}
	if used >= promo.UsageLimit {
		return failure("limit_reached", "This promo has reached its limit."), nil
	}

	perUserLimit := promo.PerUserLimit
	if perUserLimit <= 0 {
		perUserLimit = 1
	}
	userUses, err := s.store.CountUserUsage(ctx, upper, uid)
	if err != nil {
		return Result{}, fmt.Errorf("promo user usage: %w", err)
	}
	if userUses >= perUserLimit {
		return failure("user_limit", "You have already used this promo."), nil
	}

	if promo.MinFare > 0 && fare < promo.MinFare {
		return failure("min_fare", fmt.Sprintf("Minimum fare of ₱%v required.", promo.MinFare)), nil
	}

	if promo.FirstRideOnly {
		completed, err := s.rides.CountCompletedByRider(ctx, uid)
		if err != nil {
			return Result{}, fmt.Errorf("ride history: %w", err)
		}
		if completed > 0 {
			return failure("not_first_ride", "This promo is for first ride only."), nil
		}
	}

	discount := s.discount(promo, fare)

	// The usage-limit precheck above only shapes the error message; this
	// reservation is what actually keeps concurrent redemptions within limit.
	reserved, err := s.store.ReserveUsage(ctx, upper, promo.UsageLimit)
	if err != nil {
		return Result{}, fmt.Errorf("reserve promo usage: %w", err)
	}
	if !reserved {
		return failure("limit_reached", "This promo has reached its limit."), nil
	}

	if err := s.store.RecordUsage(ctx, Usage{UID: uid, Code: upper, Discount: discount, UsedAt: now}); err != nil {
		// The global slot is already claimed; losing the per-user record is
		// logged rather than unwound.
		s.logger.Error("record promo usage failed", zap.String("code", upper), zap.Error(err))
	}

	redemptionsTotal.WithLabelValues("redeemed").Inc()
	return Result{
		Success:  true,
		Discount: discount,
		Message:  fmt.Sprintf("Promo applied! You save ₱%v.", discount),
	}, nil
}

func (s *Service) discount(promo Code, fare float64) float64 {
	var discount float64
	if promo.Type == TypePercentage {
		discount = fare * (promo.Value / 100)
		if promo.MaxDiscount > 0 && discount > promo.MaxDiscount {
			discount = promo.MaxDiscount
		}
	} else {
		discount = promo.Value
	}
	discount = math.Min(discount, fare)
	return math.Round(discount*100) / 100
}
