package cooldown

import (
	"context"
	"encoding/json"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/store"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "cooldown:"

// Entry tracks the last emission for a deduplication key. Entries are never
// evicted automatically; Sweep is the explicit housekeeping hook.
type Entry struct {
	Key             string    `json:"key"`
	LastSentAt      time.Time `json:"last_sent_at"`
	SuppressedCount int       `json:"suppressed_count"`
}

// Registry is a time-windowed deduplication primitive keyed by an arbitrary
// string. The alert dispatcher leans on it to absorb repeat emissions of
// the same event for the same identifier.
type Registry struct {
	store  store.Store
	logger *logrus.Logger
	now    func() time.Time
}

type RegistryOpts struct {
	TimeProvider func() time.Time
}

func NewRegistry(s store.Store, logger *logrus.Logger, opts *RegistryOpts) *Registry {
	now := time.Now
	if opts != nil && opts.TimeProvider != nil {
		now = opts.TimeProvider
	}
	return &Registry{
		store:  s,
		logger: logger,
		now:    now,
	}
}

// ShouldEmit reports whether an event for key may fire now. The first call
// for a key, or any call after the cooldown has elapsed, records a fresh
// entry and returns true; calls inside the window increment the suppressed
// counter and return false. The read-modify-write is atomic per key.
func (r *Registry) ShouldEmit(ctx context.Context, key string, cooldown time.Duration) bool {
	emit := false
	_, err := r.store.Update(ctx, keyPrefix+key, 0, func(current string, exists bool) (string, error) {
		now := r.now()
		entry := Entry{Key: key}
		if exists {
			if err := json.Unmarshal([]byte(current), &entry); err != nil {
				// Corrupt entry, treat as absent.
				entry = Entry{Key: key}
				exists = false
			}
		}

		if !exists || now.Sub(entry.LastSentAt) > cooldown {
			emit = true
			entry.LastSentAt = now
			entry.SuppressedCount = 1
		} else {
			emit = false
			entry.SuppressedCount++
		}

		encoded, err := json.Marshal(entry)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	})
	if err != nil {
		// Fail open for notifications: a broken store must not silence
		// every alert.
		r.logger.WithError(err).WithField("key", key).Error("cooldown registry update failed")
		return true
	}
	return emit
}

// Suppressed returns the suppressed counter for a key, zero when unknown.
func (r *Registry) Suppressed(ctx context.Context, key string) int {
	value, exists, err := r.store.Get(ctx, keyPrefix+key)
	if err != nil || !exists {
		return 0
	}
	var entry Entry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return 0
	}
	return entry.SuppressedCount
}

// Sweep drops entries whose last emission is older than maxAge and returns
// how many were removed. Intended for a periodic operational job; the hot
// path never evicts.
func (r *Registry) Sweep(ctx context.Context, maxAge time.Duration) int {
	keys, err := r.store.Keys(ctx, keyPrefix)
	if err != nil {
		r.logger.WithError(err).Error("cooldown sweep failed to list keys")
		return 0
	}

	removed := 0
	cutoff := r.now().Add(-maxAge)
	for _, key := range keys {
		value, exists, err := r.store.Get(ctx, key)
		if err != nil || !exists {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			continue
		}
		if entry.LastSentAt.Before(cutoff) {
			if err := r.store.Delete(ctx, key); err == nil {
				removed++
			}
		}
	}
	return removed
}
