package promo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

// ErrCodeNotFound indicates an unknown promo code.
var ErrCodeNotFound = errors.New("promo code not found")

// Code is a redeemable promo definition. Codes are stored uppercased.
type Code struct {
	Code          string     `json:"code"`
	Type          Type       `json:"type"`
	Value         float64    `json:"value"`
	MaxDiscount   float64    `json:"maxDiscount,omitempty"`
	MinFare       float64    `json:"minFare,omitempty"`
	UsageLimit    int64      `json:"usageLimit"`
	PerUserLimit  int64      `json:"perUserLimit,omitempty"`
	FirstRideOnly bool       `json:"firstRideOnly,omitempty"`
	IsActive      bool       `json:"isActive"`
	ValidFrom     *time.Time `json:"validFrom,omitempty"`
	ValidUntil    *time.Time `json:"validUntil,omitempty"`
}

// Usage is one per-user redemption record.
type Usage struct {
	UID      uuid.UUID `json:"uid"`
	Code     string    `json:"code"`
	Discount float64   `json:"discount"`
	UsedAt   time.Time `json:"usedAt"`
}

// Result is the redemption outcome returned to the caller. Validation
// failures are results, not errors: the caller always gets a message.
type Result struct {
	Success  bool    `json:"success"`
	Discount float64 `json:"discount"`
	Message  string  `json:"message"`
}

// Store persists promo codes and their usage. ReserveUsage is the atomicity
// point: it increments the global usage counter only while the count stays
// within limit, so concurrent redemptions can never together exceed it.
type Store interface {
	GetCode(ctx context.Context, code string) (Code, error)
	UsedCount(ctx context.Context, code string) (int64, error)
	CountUserUsage(ctx context.Context, code string, uid uuid.UUID) (int64, error)
	ReserveUsage(ctx context.Context, code string, limit int64) (bool, error)
	RecordUsage(ctx context.Context, usage Usage) error
}

// RideHistory is the slice of the booking store the first-ride-only check needs.
type RideHistory interface {
	CountCompletedByRider(ctx context.Context, riderID uuid.UUID) (int, error)
}
