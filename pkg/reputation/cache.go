package reputation

import (
	"context"
	"strconv"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/prometheus"
	"github.com/NeuralTrust/TrustShield/pkg/infra/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKeyPrefix = "reputation:"

	DefaultTTL           = 10 * time.Minute
	DefaultLookupTimeout = 2 * time.Second
	// DefaultScoreDivisor maps the provider's 0-100 abuse score onto the
	// scorer's weight scale (100/25 = at most 4 points).
	DefaultScoreDivisor = 25.0
)

// Cache memoizes reputation lookups so a burst of requests from the same
// identifier costs at most one provider call per TTL. Lookups are bounded
// by a timeout and collapsed with singleflight; any failure degrades to a
// zero contribution rather than stalling or blocking the caller.
type Cache struct {
	client  Client
	store   store.Store
	logger  *logrus.Logger
	group   singleflight.Group
	ttl     time.Duration
	timeout time.Duration
	divisor float64
	now     func() time.Time
}

type CacheOpts struct {
	TTL          time.Duration
	Timeout      time.Duration
	ScoreDivisor float64
	TimeProvider func() time.Time
}

func NewCache(client Client, s store.Store, logger *logrus.Logger, opts *CacheOpts) *Cache {
	c := &Cache{
		client:  client,
		store:   s,
		logger:  logger,
		ttl:     DefaultTTL,
		timeout: DefaultLookupTimeout,
		divisor: DefaultScoreDivisor,
		now:     time.Now,
	}
	if opts != nil {
		if opts.TTL > 0 {
			c.ttl = opts.TTL
		}
		if opts.Timeout > 0 {
			c.timeout = opts.Timeout
		}
		if opts.ScoreDivisor > 0 {
			c.divisor = opts.ScoreDivisor
		}
		if opts.TimeProvider != nil {
			c.now = opts.TimeProvider
		}
	}
	return c
}

// Contribution returns the reputation component of a request's risk score.
// Without a configured client it is always zero; on lookup timeout or
// provider failure it logs a degraded-mode note and returns zero.
func (c *Cache) Contribution(ctx context.Context, identifier string) float64 {
	if c.client == nil || identifier == "" {
		return 0
	}

	if cached, exists := c.cached(ctx, identifier); exists {
		return cached / c.divisor
	}

	value, err, _ := c.group.Do(identifier, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		score, err := c.client.Lookup(lookupCtx, identifier)
		if err != nil {
			return nil, err
		}
		return score.AbuseScore, nil
	})
	if err != nil {
		prometheus.ReputationDegraded.Inc()
		c.logger.WithError(err).
			WithField("identifier", identifier).
			Warn("reputation lookup degraded, contributing zero")
		return 0
	}

	abuseScore, ok := value.(float64)
	if !ok {
		return 0
	}

	c.remember(ctx, identifier, abuseScore)
	return abuseScore / c.divisor
}

func (c *Cache) cached(ctx context.Context, identifier string) (float64, bool) {
	value, exists, err := c.store.Get(ctx, cacheKeyPrefix+identifier)
	if err != nil || !exists {
		return 0, false
	}
	score, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

func (c *Cache) remember(ctx context.Context, identifier string, score float64) {
	encoded := strconv.FormatFloat(score, 'f', -1, 64)
	if err := c.store.Set(ctx, cacheKeyPrefix+identifier, encoded, c.ttl); err != nil {
		c.logger.WithError(err).Debug("failed to cache reputation score")
	}
}
