package paymentguard_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/store"
	"github.com/NeuralTrust/TrustShield/pkg/paymentguard"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T, now *time.Time) *paymentguard.Guard {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	provider := func() time.Time { return *now }
	s := store.NewMemoryStore(&store.MemoryStoreOpts{TimeProvider: provider})
	return paymentguard.NewGuard(s, paymentguard.Config{}, nil, logger, &paymentguard.GuardOpts{
		TimeProvider: provider,
	})
}

func validBooking(now time.Time) *types.Booking {
	return &types.Booking{
		ID:          "B1",
		Email:       "traveller@example.com",
		Status:      types.BookingConfirmed,
		TotalAmount: 10000,
		PaidAmount:  4000,
		TravelDate:  now.Add(30 * 24 * time.Hour),
	}
}

func TestGuard_CheckRate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &now)
	ctx := context.Background()

	t.Run("allows up to the limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			res, err := g.CheckRate(ctx, "B1")
			require.NoError(t, err)
			assert.True(t, res.Allowed, "attempt %d should pass", i+1)
		}
	})

	t.Run("fourth attempt is rejected with a retry hint", func(t *testing.T) {
		res, err := g.CheckRate(ctx, "B1")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Greater(t, res.RetryAfter, time.Duration(0))
		assert.LessOrEqual(t, res.RetryAfter, time.Minute)
	})

	t.Run("window elapse resets the counter", func(t *testing.T) {
		now = now.Add(61 * time.Second)
		res, err := g.CheckRate(ctx, "B1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("bookings are counted independently", func(t *testing.T) {
		res, err := g.CheckRate(ctx, "B2")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("empty booking id is an error", func(t *testing.T) {
		_, err := g.CheckRate(ctx, "")
		assert.Error(t, err)
	})
}

func TestGuard_CheckEligibility(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &now)

	t.Run("valid booking is eligible", func(t *testing.T) {
		res := g.CheckEligibility(validBooking(now), "traveller@example.com")
		assert.True(t, res.Eligible)
	})

	t.Run("email match is case insensitive", func(t *testing.T) {
		res := g.CheckEligibility(validBooking(now), "Traveller@Example.COM")
		assert.True(t, res.Eligible)
	})

	t.Run("missing booking", func(t *testing.T) {
		res := g.CheckEligibility(nil, "traveller@example.com")
		assert.False(t, res.Eligible)
		assert.Equal(t, "booking not found", res.Reason)
	})

	t.Run("cancelled booking", func(t *testing.T) {
		b := validBooking(now)
		b.Status = types.BookingCancelled
		res := g.CheckEligibility(b, "traveller@example.com")
		assert.False(t, res.Eligible)
		assert.Equal(t, "booking is cancelled", res.Reason)
	})

	t.Run("fully paid booking", func(t *testing.T) {
		b := validBooking(now)
		b.PaidAmount = b.TotalAmount
		res := g.CheckEligibility(b, "traveller@example.com")
		assert.False(t, res.Eligible)
		assert.Equal(t, "booking is already fully paid", res.Reason)
	})

	t.Run("wrong requester email", func(t *testing.T) {
		res := g.CheckEligibility(validBooking(now), "someone-else@example.com")
		assert.False(t, res.Eligible)
		assert.Equal(t, "booking does not belong to requester", res.Reason)
	})

	t.Run("past travel date", func(t *testing.T) {
		b := validBooking(now)
		b.TravelDate = now.Add(-24 * time.Hour)
		res := g.CheckEligibility(b, "traveller@example.com")
		assert.False(t, res.Eligible)
		assert.Equal(t, "travel date has already passed", res.Reason)
	})
}

func TestGuard_CheckAmount(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &now)
	booking := validBooking(now)

	t.Run("remaining balance is accepted", func(t *testing.T) {
		res := g.CheckAmount(booking, 6000, nil)
		assert.True(t, res.Valid)
	})

	t.Run("partial payment under the balance is accepted", func(t *testing.T) {
		res := g.CheckAmount(booking, 1500.50, nil)
		assert.True(t, res.Valid)
	})

	t.Run("one cent over tolerance is rejected", func(t *testing.T) {
		res := g.CheckAmount(booking, 6000.02, nil)
		assert.False(t, res.Valid)
		assert.Equal(t, "amount exceeds remaining balance", res.Reason)
	})

	t.Run("rounding inside tolerance is accepted", func(t *testing.T) {
		res := g.CheckAmount(booking, 6000.01, nil)
		assert.True(t, res.Valid)
	})

	t.Run("negative amount", func(t *testing.T) {
		res := g.CheckAmount(booking, -5, nil)
		assert.False(t, res.Valid)
		assert.Equal(t, "amount must be greater than zero", res.Reason)
	})

	t.Run("zero amount", func(t *testing.T) {
		res := g.CheckAmount(booking, 0, nil)
		assert.False(t, res.Valid)
		assert.Equal(t, "amount must be greater than zero", res.Reason)
	})

	t.Run("absurdly large amount", func(t *testing.T) {
		res := g.CheckAmount(booking, 6e15, nil)
		assert.False(t, res.Valid)
		assert.Equal(t, "amount is out of range", res.Reason)
	})

	t.Run("sub-cent precision is rejected", func(t *testing.T) {
		res := g.CheckAmount(booking, 100.001, nil)
		assert.False(t, res.Valid)
		assert.Equal(t, "amount has too many decimal places", res.Reason)
	})

	t.Run("installment amount must match", func(t *testing.T) {
		inst := &types.InstallmentPayment{ID: "I1", Amount: 2000, Status: types.InstallmentPending}

		res := g.CheckAmount(booking, 2000, inst)
		assert.True(t, res.Valid)

		res = g.CheckAmount(booking, 1999, inst)
		assert.False(t, res.Valid)
		assert.Equal(t, "amount does not match installment due amount", res.Reason)
	})

	t.Run("paid installment is rejected", func(t *testing.T) {
		inst := &types.InstallmentPayment{ID: "I1", Amount: 2000, Status: types.InstallmentPaid}
		res := g.CheckAmount(booking, 2000, inst)
		assert.False(t, res.Valid)
		assert.Equal(t, "installment is already paid", res.Reason)
	})
}

func TestGuard_CheckDuplicate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newGuard(t, &now)
	ctx := context.Background()

	t.Run("first submission passes, immediate repeat is absorbed", func(t *testing.T) {
		res, err := g.CheckDuplicate(ctx, "B1", "pi_123")
		require.NoError(t, err)
		assert.True(t, res.Allowed)

		res, err = g.CheckDuplicate(ctx, "B1", "pi_123")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	})

	t.Run("suppression expires after the window", func(t *testing.T) {
		now = now.Add(6 * time.Second)
		res, err := g.CheckDuplicate(ctx, "B1", "pi_123")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("different intent is independent", func(t *testing.T) {
		res, err := g.CheckDuplicate(ctx, "B1", "pi_456")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("missing ids are an error", func(t *testing.T) {
		_, err := g.CheckDuplicate(ctx, "", "pi_123")
		assert.Error(t, err)
	})

	t.Run("concurrent identical submissions admit exactly one", func(t *testing.T) {
		g := newGuard(t, &now)

		var wg sync.WaitGroup
		var allowed int32
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := g.CheckDuplicate(ctx, "B9", "pi_race")
				if err == nil && res.Allowed {
					atomic.AddInt32(&allowed, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), allowed)
	})
}

func TestGuard_Fingerprint(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	provider := func() time.Time { return now }
	s := store.NewMemoryStore(&store.MemoryStoreOpts{TimeProvider: provider})

	t.Run("without a secret verification always allows", func(t *testing.T) {
		g := paymentguard.NewGuard(s, paymentguard.Config{}, nil, logger, nil)

		_, ok := g.IssueFingerprint("B1", 6000, now.Unix())
		assert.False(t, ok)
		assert.True(t, g.VerifyFingerprint("B1", "anything", 6000, now.Unix()).Allowed)
	})

	t.Run("round trip and tamper detection", func(t *testing.T) {
		g := paymentguard.NewGuard(s, paymentguard.Config{FingerprintSecret: "s3cret"}, nil, logger, nil)

		digest, ok := g.IssueFingerprint("B1", 6000, now.Unix())
		require.True(t, ok)

		assert.True(t, g.VerifyFingerprint("B1", digest, 6000, now.Unix()).Allowed)

		tampered := g.VerifyFingerprint("B1", digest, 9999, now.Unix())
		assert.False(t, tampered.Allowed)
		assert.Equal(t, "fingerprint", tampered.Stage)
	})
}

func TestGuard_Authorize(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("valid attempt is allowed", func(t *testing.T) {
		g := newGuard(t, &now)
		v := g.Authorize(ctx, validBooking(now), "traveller@example.com", 6000, nil, "pi_123")
		assert.True(t, v.Allowed)
	})

	t.Run("checks short-circuit in order", func(t *testing.T) {
		g := newGuard(t, &now)
		b := validBooking(now)
		b.Status = types.BookingCancelled

		// Cancelled booking AND bad amount: eligibility runs first.
		v := g.Authorize(ctx, b, "traveller@example.com", -5, nil, "pi_123")
		assert.False(t, v.Allowed)
		assert.Equal(t, "eligibility", v.Stage)
	})

	t.Run("tampered amount is rejected at the amount stage", func(t *testing.T) {
		g := newGuard(t, &now)
		v := g.Authorize(ctx, validBooking(now), "traveller@example.com", 6000.02, nil, "pi_123")
		assert.False(t, v.Allowed)
		assert.Equal(t, "amount", v.Stage)
	})

	t.Run("double submit is rejected at the duplicate stage", func(t *testing.T) {
		g := newGuard(t, &now)
		first := g.Authorize(ctx, validBooking(now), "traveller@example.com", 6000, nil, "pi_dup")
		require.True(t, first.Allowed)

		second := g.Authorize(ctx, validBooking(now), "traveller@example.com", 6000, nil, "pi_dup")
		assert.False(t, second.Allowed)
		assert.Equal(t, "duplicate", second.Stage)
	})

	t.Run("rate limit trips after repeated attempts", func(t *testing.T) {
		g := newGuard(t, &now)
		b := validBooking(now)
		for i := 0; i < 3; i++ {
			g.Authorize(ctx, b, "traveller@example.com", 6000.02, nil, "pi_123")
		}
		v := g.Authorize(ctx, b, "traveller@example.com", 6000, nil, "pi_123")
		assert.False(t, v.Allowed)
		assert.Equal(t, "rate", v.Stage)
		assert.Greater(t, v.RetryAfter, time.Duration(0))
	})
}
