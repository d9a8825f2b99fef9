package promo_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/example/ridedispatch/internal/booking/domain"
	"github.com/example/ridedispatch/internal/booking/repository"
	"github.com/example/ridedispatch/internal/promo"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, store promo.Store) (*promo.Service, *repository.MemoryStore) {
	t.Helper()
	rides := repository.NewMemoryStore()
	return promo.NewService(store, rides, fixedClock{t: testNow}, nil), rides
}

func seed(t *testing.T, store *promo.MemoryStore, code promo.Code) {
	t.Helper()
	require.NoError(t, store.PutCode(context.Background(), code))
}

func activeCode(code string) promo.Code {
	return promo.Code{
		Code:       code,
		Type:       promo.TypeFixed,
		Value:      25,
		UsageLimit: 100,
		IsActive:   true,
	}
}

func TestRedeemValidatesInput(t *testing.T) {
	store := promo.NewMemoryStore()
	svc, _ := newService(t, store)

	_, err := svc.Redeem(context.Background(), uuid.New(), "", 100)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Redeem(context.Background(), uuid.New(), "SAVE25", -1)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRedeemUnknownCode(t *testing.T) {
	store := promo.NewMemoryStore()
	svc, _ := newService(t, store)

	res, err := svc.Redeem(context.Background(), uuid.New(), "NOPE", 100)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "Promo code not found.", res.Message)
}

func TestRedeemUppercasesCode(t *testing.T) {
	store := promo.NewMemoryStore()
	seed(t, store, activeCode("SAVE25"))
	svc, _ := newService(t, store)

	res, err := svc.Redeem(context.Background(), uuid.New(), "save25", 100)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 25.0, res.Discount)
}

func TestRedeemValidationChain(t *testing.T) {
	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)

	cases := []struct {
		name    string
		code    promo.Code
		fare    float64
		message string
	}{
		{
			name:    "inactive",
			code:    promo.Code{Code: "A", Type: promo.TypeFixed, Value: 5, UsageLimit: 10, IsActive: false},
			fare:    100,
			message: "This promo is no longer active.",
		},
		{
			name:    "expired",
			code:    promo.Code{Code: "B", Type: promo.TypeFixed, Value: 5, UsageLimit: 10, IsActive: true, ValidUntil: &past},
			fare:    100,
			message: "This promo has expired.",
		},
		{
			name:    "not yet active",
			code:    promo.Code{Code: "C", Type: promo.TypeFixed, Value: 5, UsageLimit: 10, IsActive: true, ValidFrom: &future},
			fare:    100,
			message: "This promo is not yet active.",
		},
		{
			name:    "below minimum fare",
			code:    promo.Code{Code: "D", Type: promo.TypeFixed, Value: 5, UsageLimit: 10, MinFare: 200, IsActive: true},
			fare:    100,
			message: "Minimum fare of ₱200 required.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := promo.NewMemoryStore()
			seed(t, store, tc.code)
			svc, _ := newService(t, store)

			res, err := svc.Redeem(context.Background(), uuid.New(), tc.code.Code, tc.fare)
			require.NoError(t, err)
			require.False(t, res.Success)
			require.Equal(t, tc.message, res.Message)
		})
	}
}

func TestRedeemPerUserLimitDefaultsToOne(t *testing.T) {
	store := promo.NewMemoryStore()
	seed(t, store, activeCode("ONCE"))
	svc, _ := newService(t, store)
	uid := uuid.New()

	first, err := svc.Redeem(context.Background(), uid, "ONCE", 100)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := svc.Redeem(context.Background(), uid, "ONCE", 100)
	require.NoError(t, err)
	require.False(t, second.Success)
	require.Equal(t, "You have already used this promo.", second.Message)

	// A different user still redeems fine.
	other, err := svc.Redeem(context.Background(), uuid.New(), "ONCE", 100)
	require.NoError(t, err)
	require.True(t, other.Success)
}

func TestRedeemFirstRideOnly(t *testing.T) {
	store := promo.NewMemoryStore()
	code := activeCode("NEWUSER")
	code.FirstRideOnly = true
	seed(t, store, code)
	svc, rides := newService(t, store)
	uid := uuid.New()

	_, err := rides.CreateBooking(context.Background(), domain.Booking{
		ID:      uuid.New(),
		RiderID: uid,
		Status:  domain.StatusCompleted,
	})
	require.NoError(t, err)

	res, err := svc.Redeem(context.Background(), uid, "NEWUSER", 100)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "This promo is for first ride only.", res.Message)

	fresh, err := svc.Redeem(context.Background(), uuid.New(), "NEWUSER", 100)
	require.NoError(t, err)
	require.True(t, fresh.Success)
}

func TestRedeemPercentageWithCap(t *testing.T) {
	store := promo.NewMemoryStore()
	seed(t, store, promo.Code{
		Code:        "HALF",
		Type:        promo.TypePercentage,
		Value:       50,
		MaxDiscount: 40,
		UsageLimit:  10,
		IsActive:    true,
	})
	svc, _ := newService(t, store)

	res, err := svc.Redeem(context.Background(), uuid.New(), "HALF", 100)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 40.0, res.Discount)

	res, err = svc.Redeem(context.Background(), uuid.New(), "HALF", 50)
	require.NoError(t, err)
	require.Equal(t, 25.0, res.Discount)
}

func TestRedeemDiscountNeverExceedsFare(t *testing.T) {
	store := promo.NewMemoryStore()
	seed(t, store, promo.Code{
		Code:       "BIG",
		Type:       promo.TypeFixed,
		Value:      500,
		UsageLimit: 10,
		IsActive:   true,
	})
	svc, _ := newService(t, store)

	res, err := svc.Redeem(context.Background(), uuid.New(), "BIG", 120)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 120.0, res.Discount)
}

func TestConcurrentRedemptionsRespectUsageLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := promo.NewRedisStore(client)
	code := activeCode("LIMITED")
	code.UsageLimit = 5
	code.PerUserLimit = 1
	require.NoError(t, store.PutCode(context.Background(), code))

	rides := repository.NewMemoryStore()
	svc := promo.NewService(store, rides, fixedClock{t: testNow}, nil)

	var successes int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Redeem(context.Background(), uuid.New(), "LIMITED", 100)
			if err == nil && res.Success {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, successes, int32(5))
	used, err := store.UsedCount(context.Background(), "LIMITED")
	require.NoError(t, err)
	require.LessOrEqual(t, used, int64(5))
}

func TestRedisStoreRoundtrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := promo.NewRedisStore(client)
	ctx := context.Background()

	_, err = store.GetCode(ctx, "MISSING")
	require.ErrorIs(t, err, promo.ErrCodeNotFound)

	require.NoError(t, store.PutCode(ctx, activeCode("save25")))
	got, err := store.GetCode(ctx, "SAVE25")
	require.NoError(t, err)
	require.Equal(t, "SAVE25", got.Code)
	require.True(t, got.IsActive)

	uid := uuid.New()
	require.NoError(t, store.RecordUsage(ctx, promo.Usage{UID: uid, Code: "SAVE25", Discount: 25, UsedAt: testNow}))
	count, err := store.CountUserUsage(ctx, "SAVE25", uid)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	ok, err := store.ReserveUsage(ctx, "SAVE25", 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.ReserveUsage(ctx, "SAVE25", 1)
	require.NoError(t, err)
	require.False(t, ok)
}
