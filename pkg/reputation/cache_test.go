package reputation_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/store"
	"github.com/NeuralTrust/TrustShield/pkg/reputation"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeClient struct {
	score *reputation.Score
	err   error
	delay time.Duration
	calls int32
}

func (f *fakeClient) Lookup(ctx context.Context, identifier string) (*reputation.Score, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.score, nil
}

func newCache(client reputation.Client, opts *reputation.CacheOpts) *reputation.Cache {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return reputation.NewCache(client, store.NewMemoryStore(nil), logger, opts)
}

func TestCache_Contribution(t *testing.T) {
	ctx := context.Background()

	t.Run("no client configured yields zero", func(t *testing.T) {
		cache := newCache(nil, nil)
		assert.Zero(t, cache.Contribution(ctx, "1.2.3.4"))
	})

	t.Run("score is normalized by divisor", func(t *testing.T) {
		client := &fakeClient{score: &reputation.Score{AbuseScore: 100}}
		cache := newCache(client, &reputation.CacheOpts{ScoreDivisor: 25})

		assert.InDelta(t, 4.0, cache.Contribution(ctx, "1.2.3.4"), 0.001)
	})

	t.Run("second lookup is served from cache", func(t *testing.T) {
		client := &fakeClient{score: &reputation.Score{AbuseScore: 50}}
		cache := newCache(client, &reputation.CacheOpts{ScoreDivisor: 25})

		cache.Contribution(ctx, "5.6.7.8")
		cache.Contribution(ctx, "5.6.7.8")

		assert.Equal(t, int32(1), atomic.LoadInt32(&client.calls))
	})

	t.Run("provider failure contributes zero", func(t *testing.T) {
		client := &fakeClient{err: errors.New("provider down")}
		cache := newCache(client, nil)

		assert.Zero(t, cache.Contribution(ctx, "9.9.9.9"))
	})

	t.Run("slow provider is bounded by timeout", func(t *testing.T) {
		client := &fakeClient{
			score: &reputation.Score{AbuseScore: 80},
			delay: 500 * time.Millisecond,
		}
		cache := newCache(client, &reputation.CacheOpts{Timeout: 20 * time.Millisecond})

		start := time.Now()
		contribution := cache.Contribution(ctx, "8.8.8.8")
		elapsed := time.Since(start)

		assert.Zero(t, contribution)
		assert.Less(t, elapsed, 300*time.Millisecond)
	})
}
