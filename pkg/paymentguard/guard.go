package paymentguard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/alert"
	"github.com/NeuralTrust/TrustShield/pkg/infra/prometheus"
	"github.com/NeuralTrust/TrustShield/pkg/infra/store"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/sirupsen/logrus"
)

const (
	rateKeyPrefix      = "payrate:"
	duplicateKeyPrefix = "paydup:"
)

const (
	DefaultRateWindow      = time.Minute
	DefaultMaxAttempts     = 3
	DefaultDuplicateWindow = 5 * time.Second
	DefaultAmountTolerance = 0.01

	// maxReasonableAmount rejects scientific-notation artifacts like 6e15
	// sneaking through a float field.
	maxReasonableAmount = 10_000_000
)

type Config struct {
	RateWindow        time.Duration `mapstructure:"rate_window"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	DuplicateWindow   time.Duration `mapstructure:"duplicate_window"`
	AmountTolerance   float64       `mapstructure:"amount_tolerance"`
	FingerprintSecret string        `mapstructure:"fingerprint_secret"`
}

func (c *Config) applyDefaults() {
	if c.RateWindow <= 0 {
		c.RateWindow = DefaultRateWindow
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = DefaultDuplicateWindow
	}
	if c.AmountTolerance <= 0 {
		c.AmountTolerance = DefaultAmountTolerance
	}
}

// RateResult is the outcome of the per-booking rate limit check.
type RateResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// EligibilityResult is the outcome of the booking eligibility check.
type EligibilityResult struct {
	Eligible bool
	Reason   string
}

// AmountResult is the outcome of the amount validation check.
type AmountResult struct {
	Valid  bool
	Reason string
}

// DuplicateResult is the outcome of the double-submit suppression check.
type DuplicateResult struct {
	Allowed bool
}

// Verdict is the combined outcome of Authorize.
type Verdict struct {
	Allowed    bool
	Stage      string
	Reason     string
	RetryAfter time.Duration
}

type attemptRecord struct {
	BookingID   string    `json:"booking_id"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Guard runs the transaction-side checks: submission rate limiting,
// booking eligibility, amount validation, and duplicate suppression.
// Checks short-circuit in that order; the guard never mutates booking
// state, it only returns verdicts for the caller to apply.
type Guard struct {
	store  store.Store
	cfg    Config
	alerts *alert.Dispatcher
	logger *logrus.Logger
	fp     *Fingerprinter
	now    func() time.Time
}

type GuardOpts struct {
	TimeProvider func() time.Time
}

func NewGuard(s store.Store, cfg Config, alerts *alert.Dispatcher, logger *logrus.Logger, opts *GuardOpts) *Guard {
	cfg.applyDefaults()
	now := time.Now
	if opts != nil && opts.TimeProvider != nil {
		now = opts.TimeProvider
	}
	g := &Guard{
		store:  s,
		cfg:    cfg,
		alerts: alerts,
		logger: logger,
		now:    now,
	}
	if cfg.FingerprintSecret != "" {
		g.fp, _ = NewFingerprinter(cfg.FingerprintSecret)
	}
	return g
}

// IssueFingerprint returns the digest the client must echo back with its
// submission. The second return is false when no secret is configured.
func (g *Guard) IssueFingerprint(bookingID string, amount float64, issuedAt int64) (string, bool) {
	if g.fp == nil {
		return "", false
	}
	return g.fp.Generate(bookingID, amount, issuedAt), true
}

// VerifyFingerprint checks the echoed digest against the submitted
// booking and amount. Without a configured secret it always allows.
func (g *Guard) VerifyFingerprint(bookingID, fingerprint string, amount float64, issuedAt int64) Verdict {
	if g.fp == nil {
		return Verdict{Allowed: true}
	}
	if err := g.fp.Verify(fingerprint, bookingID, amount, issuedAt); err != nil {
		return g.reject(bookingID, "fingerprint", "payment fingerprint mismatch", 0)
	}
	return Verdict{Allowed: true}
}

// CheckRate enforces the per-booking submission limit within a rolling
// window. Exceeding it yields the wait until the window reopens.
func (g *Guard) CheckRate(ctx context.Context, bookingID string) (RateResult, error) {
	if bookingID == "" {
		return RateResult{}, fmt.Errorf("booking id is required")
	}

	var result RateResult
	_, err := g.store.Update(ctx, rateKeyPrefix+bookingID, g.cfg.RateWindow, func(current string, exists bool) (string, error) {
		now := g.now()
		record := attemptRecord{BookingID: bookingID, WindowStart: now}
		if exists {
			if err := json.Unmarshal([]byte(current), &record); err != nil {
				record = attemptRecord{BookingID: bookingID, WindowStart: now}
			}
		}

		if now.Sub(record.WindowStart) >= g.cfg.RateWindow {
			record.Count = 0
			record.WindowStart = now
		}

		record.Count++
		if record.Count > g.cfg.MaxAttempts {
			result = RateResult{
				Allowed:    false,
				RetryAfter: g.cfg.RateWindow - now.Sub(record.WindowStart),
			}
		} else {
			result = RateResult{Allowed: true}
		}

		encoded, err := json.Marshal(record)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	})
	if err != nil {
		// Rate limiting is a local policy check: on store failure we fail
		// closed rather than admit a possible retry storm.
		g.logger.WithError(err).WithField("booking_id", bookingID).Error("payment rate check failed")
		return RateResult{Allowed: false, RetryAfter: g.cfg.RateWindow}, nil
	}
	return result, nil
}

// CheckEligibility verifies that the booking can accept a payment at all.
func (g *Guard) CheckEligibility(booking *types.Booking, requesterEmail string) EligibilityResult {
	if booking == nil || booking.ID == "" {
		return EligibilityResult{Eligible: false, Reason: "booking not found"}
	}
	if booking.Status == types.BookingCancelled {
		return EligibilityResult{Eligible: false, Reason: "booking is cancelled"}
	}
	if booking.FullyPaid() {
		return EligibilityResult{Eligible: false, Reason: "booking is already fully paid"}
	}
	if requesterEmail != "" && !strings.EqualFold(strings.TrimSpace(requesterEmail), strings.TrimSpace(booking.Email)) {
		return EligibilityResult{Eligible: false, Reason: "booking does not belong to requester"}
	}
	if !booking.TravelDate.IsZero() && booking.TravelDate.Before(g.now()) {
		return EligibilityResult{Eligible: false, Reason: "travel date has already passed"}
	}
	return EligibilityResult{Eligible: true}
}

// CheckAmount validates the requested amount against the booking and, when
// present, a specific installment. Tolerance absorbs currency rounding,
// never overpayment: paidAmount can never exceed totalAmount by more than
// the tolerance.
func (g *Guard) CheckAmount(booking *types.Booking, requestedAmount float64, installment *types.InstallmentPayment) AmountResult {
	if booking == nil {
		return AmountResult{Valid: false, Reason: "booking not found"}
	}
	if math.IsNaN(requestedAmount) || math.IsInf(requestedAmount, 0) {
		return AmountResult{Valid: false, Reason: "amount must be a finite number"}
	}
	if requestedAmount <= 0 {
		return AmountResult{Valid: false, Reason: "amount must be greater than zero"}
	}
	if requestedAmount > maxReasonableAmount {
		return AmountResult{Valid: false, Reason: "amount is out of range"}
	}
	// More than two decimals in a currency amount is a smell of float
	// abuse (e.g. 1e-3 style inputs), not a rounding artifact.
	if math.Abs(requestedAmount*100-math.Round(requestedAmount*100)) > 1e-6 {
		return AmountResult{Valid: false, Reason: "amount has too many decimal places"}
	}

	if installment != nil {
		if installment.Status == types.InstallmentPaid {
			return AmountResult{Valid: false, Reason: "installment is already paid"}
		}
		if math.Abs(requestedAmount-installment.Amount) > g.cfg.AmountTolerance {
			return AmountResult{Valid: false, Reason: "amount does not match installment due amount"}
		}
		return AmountResult{Valid: true}
	}

	remaining := booking.RemainingBalance()
	if requestedAmount > remaining+g.cfg.AmountTolerance {
		return AmountResult{Valid: false, Reason: "amount exceeds remaining balance"}
	}
	return AmountResult{Valid: true}
}

// CheckDuplicate absorbs double-submits: the first (booking, intent) pair
// claims a suppression record atomically, repeats inside the window are
// rejected, and the record expires on its own afterwards. Near-simultaneous
// identical submissions admit at most one.
func (g *Guard) CheckDuplicate(ctx context.Context, bookingID, paymentIntentID string) (DuplicateResult, error) {
	if bookingID == "" || paymentIntentID == "" {
		return DuplicateResult{}, fmt.Errorf("booking id and payment intent id are required")
	}

	key := duplicateKeyPrefix + bookingID + ":" + paymentIntentID
	claimed := false
	_, err := g.store.Update(ctx, key, g.cfg.DuplicateWindow, func(current string, exists bool) (string, error) {
		if exists {
			claimed = false
			return current, nil
		}
		claimed = true
		return g.now().Format(time.RFC3339Nano), nil
	})
	if err != nil {
		// Duplicate suppression fails closed: admitting a possible double
		// charge is worse than asking the client to retry.
		g.logger.WithError(err).Error("duplicate check failed")
		return DuplicateResult{Allowed: false}, nil
	}
	return DuplicateResult{Allowed: claimed}, nil
}

// Authorize composes the four checks in order, short-circuiting on the
// first failure. Critical rejections raise a PAYMENT_REJECTED alert.
func (g *Guard) Authorize(
	ctx context.Context,
	booking *types.Booking,
	requesterEmail string,
	requestedAmount float64,
	installment *types.InstallmentPayment,
	paymentIntentID string,
) Verdict {
	bookingID := ""
	if booking != nil {
		bookingID = booking.ID
	}

	rate, err := g.CheckRate(ctx, bookingID)
	if err != nil {
		return g.reject(bookingID, "rate", err.Error(), 0)
	}
	if !rate.Allowed {
		return g.reject(bookingID, "rate", "too many payment attempts", rate.RetryAfter)
	}

	if eligibility := g.CheckEligibility(booking, requesterEmail); !eligibility.Eligible {
		return g.reject(bookingID, "eligibility", eligibility.Reason, 0)
	}

	if amount := g.CheckAmount(booking, requestedAmount, installment); !amount.Valid {
		return g.reject(bookingID, "amount", amount.Reason, 0)
	}

	duplicate, err := g.CheckDuplicate(ctx, bookingID, paymentIntentID)
	if err != nil {
		return g.reject(bookingID, "duplicate", err.Error(), 0)
	}
	if !duplicate.Allowed {
		return g.reject(bookingID, "duplicate", "duplicate payment submission", 0)
	}

	return Verdict{Allowed: true}
}

func (g *Guard) reject(bookingID, stage, reason string, retryAfter time.Duration) Verdict {
	prometheus.PaymentRejections.WithLabelValues(stage).Inc()
	g.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"stage":      stage,
		"reason":     reason,
	}).Info("payment attempt rejected")

	// Amount manipulation and fingerprint mismatches suggest tampering
	// rather than user error; surface those to the dispatcher.
	if g.alerts != nil && (stage == "amount" || stage == "fingerprint") {
		g.alerts.Send(types.SecurityAlert{
			Severity:   types.SeverityHigh,
			EventType:  types.EventPaymentRejected,
			Identifier: bookingID,
			Details: map[string]interface{}{
				"stage":  stage,
				"reason": reason,
			},
		})
	}

	return Verdict{
		Allowed:    false,
		Stage:      stage,
		Reason:     reason,
		RetryAfter: retryAfter,
	}
}
