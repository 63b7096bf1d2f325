package penaltybox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/store"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "penalty:"

const (
	DefaultWindow        = 15 * time.Minute
	DefaultMaxViolations = 5
)

// DefaultBanTiers escalates repeat offenders: first ban one hour, then six,
// then a day. The progression is policy, not contract; deployments override
// it in configuration, subject to the monotonicity check below.
var DefaultBanTiers = []time.Duration{time.Hour, 6 * time.Hour, 24 * time.Hour}

type Config struct {
	Window        time.Duration   `mapstructure:"window"`
	MaxViolations int             `mapstructure:"max_violations"`
	BanTiers      []time.Duration `mapstructure:"ban_tiers"`
}

func (c *Config) applyDefaults() {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxViolations <= 0 {
		c.MaxViolations = DefaultMaxViolations
	}
	if len(c.BanTiers) == 0 {
		c.BanTiers = DefaultBanTiers
	}
}

// Validate rejects ban tier progressions that shrink for repeat offenders.
func (c Config) Validate() error {
	for i := 1; i < len(c.BanTiers); i++ {
		if c.BanTiers[i] < c.BanTiers[i-1] {
			return fmt.Errorf("ban tiers must be monotonic non-decreasing, tier %d (%s) < tier %d (%s)",
				i, c.BanTiers[i], i-1, c.BanTiers[i-1])
		}
	}
	return nil
}

// ViolationRecord is the per-identifier state. Count never exceeds the
// configured threshold: reaching it converts the record into a ban and
// resets the counter.
type ViolationRecord struct {
	Identifier  string     `json:"identifier"`
	Count       int        `json:"count"`
	WindowStart time.Time  `json:"window_start"`
	BannedUntil *time.Time `json:"banned_until,omitempty"`
	BanCount    int        `json:"ban_count"`
}

// Ban is the outcome of recording a violation.
type Ban struct {
	Banned      bool
	BannedUntil time.Time
	BanCount    int
}

// Box tracks violation counts per client identifier over a rolling window
// and escalates threshold breaches into timed bans. All state lives behind
// the injected store so a distributed deployment can share it.
type Box struct {
	store  store.Store
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time
}

type BoxOpts struct {
	TimeProvider func() time.Time
}

func NewBox(s store.Store, cfg Config, logger *logrus.Logger, opts *BoxOpts) *Box {
	cfg.applyDefaults()
	now := time.Now
	if opts != nil && opts.TimeProvider != nil {
		now = opts.TimeProvider
	}
	return &Box{
		store:  s,
		cfg:    cfg,
		logger: logger,
		now:    now,
	}
}

// RecordViolation increments the identifier's violation count and reports
// whether it crossed into a ban. The increment-and-compare is atomic with
// respect to other violations for the same identifier.
func (b *Box) RecordViolation(ctx context.Context, identifier string) (Ban, error) {
	var ban Ban

	_, err := b.store.Update(ctx, keyPrefix+identifier, 0, func(current string, exists bool) (string, error) {
		now := b.now()
		record := ViolationRecord{Identifier: identifier, WindowStart: now}
		if exists {
			if err := json.Unmarshal([]byte(current), &record); err != nil {
				record = ViolationRecord{Identifier: identifier, WindowStart: now}
			}
		}

		// Violations while already banned extend nothing; the ban itself
		// is the response.
		if record.BannedUntil != nil && now.Before(*record.BannedUntil) {
			ban = Ban{Banned: true, BannedUntil: *record.BannedUntil, BanCount: record.BanCount}
			return current, nil
		}

		if now.Sub(record.WindowStart) > b.cfg.Window {
			record.Count = 0
			record.WindowStart = now
		}

		record.Count++
		if record.Count >= b.cfg.MaxViolations {
			record.BanCount++
			duration := b.banDuration(record.BanCount)
			until := now.Add(duration)
			record.BannedUntil = &until
			record.Count = 0
			record.WindowStart = now
			ban = Ban{Banned: true, BannedUntil: until, BanCount: record.BanCount}

			b.logger.WithFields(logrus.Fields{
				"identifier":   identifier,
				"ban_count":    record.BanCount,
				"banned_until": until,
			}).Warn("identifier placed in penalty box")
		}

		encoded, err := json.Marshal(record)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	})
	if err != nil {
		return Ban{}, fmt.Errorf("record violation for %s: %w", identifier, err)
	}
	return ban, nil
}

// IsBanned is the cheap pre-scoring check; banned identifiers are rejected
// before any further processing.
func (b *Box) IsBanned(ctx context.Context, identifier string) bool {
	record, exists := b.get(ctx, identifier)
	if !exists || record.BannedUntil == nil {
		return false
	}
	return b.now().Before(*record.BannedUntil)
}

// BannedUntil returns the ban expiry for an identifier, if any.
func (b *Box) BannedUntil(ctx context.Context, identifier string) (time.Time, bool) {
	record, exists := b.get(ctx, identifier)
	if !exists || record.BannedUntil == nil {
		return time.Time{}, false
	}
	if !b.now().Before(*record.BannedUntil) {
		return time.Time{}, false
	}
	return *record.BannedUntil, true
}

// Unban clears all penalty state for an identifier.
func (b *Box) Unban(ctx context.Context, identifier string) error {
	return b.store.Delete(ctx, keyPrefix+identifier)
}

// ActiveBans lists identifiers currently serving a ban.
func (b *Box) ActiveBans(ctx context.Context) ([]ViolationRecord, error) {
	keys, err := b.store.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list penalty records: %w", err)
	}

	now := b.now()
	active := make([]ViolationRecord, 0, len(keys))
	for _, key := range keys {
		value, exists, err := b.store.Get(ctx, key)
		if err != nil || !exists {
			continue
		}
		var record ViolationRecord
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			continue
		}
		if record.BannedUntil != nil && now.Before(*record.BannedUntil) {
			active = append(active, record)
		}
	}
	return active, nil
}

// Sweep removes records whose ban has expired and whose violation window
// has gone quiet, returning how many were dropped.
func (b *Box) Sweep(ctx context.Context) int {
	keys, err := b.store.Keys(ctx, keyPrefix)
	if err != nil {
		b.logger.WithError(err).Error("penalty box sweep failed to list keys")
		return 0
	}

	now := b.now()
	removed := 0
	for _, key := range keys {
		value, exists, err := b.store.Get(ctx, key)
		if err != nil || !exists {
			continue
		}
		var record ViolationRecord
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			continue
		}
		banActive := record.BannedUntil != nil && now.Before(*record.BannedUntil)
		windowActive := now.Sub(record.WindowStart) <= b.cfg.Window
		if !banActive && !windowActive {
			if err := b.store.Delete(ctx, key); err == nil {
				removed++
			}
		}
	}
	return removed
}

func (b *Box) banDuration(banCount int) time.Duration {
	tier := banCount - 1
	if tier >= len(b.cfg.BanTiers) {
		tier = len(b.cfg.BanTiers) - 1
	}
	if tier < 0 {
		tier = 0
	}
	return b.cfg.BanTiers[tier]
}

func (b *Box) get(ctx context.Context, identifier string) (ViolationRecord, bool) {
	value, exists, err := b.store.Get(ctx, keyPrefix+identifier)
	if err != nil || !exists {
		return ViolationRecord{}, false
	}
	var record ViolationRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return ViolationRecord{}, false
	}
	return record, true
}
