package behavior

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/infra/store"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "behavior:"

const (
	DefaultWindow             = time.Minute
	DefaultMaxSamples         = 200
	DefaultAutoBlockThreshold = 0.8

	DefaultRateWeight      = 0.4
	DefaultErrorWeight     = 0.3
	DefaultDiversityWeight = 0.3

	// rateCeiling is the requests-per-second rate treated as maximum
	// suspiciousness when normalizing the rate factor.
	rateCeiling = 10.0
)

type Config struct {
	Window             time.Duration `mapstructure:"window"`
	MaxSamples         int           `mapstructure:"max_samples"`
	RateWeight         float64       `mapstructure:"rate_weight"`
	ErrorWeight        float64       `mapstructure:"error_weight"`
	DiversityWeight    float64       `mapstructure:"diversity_weight"`
	AutoBlockThreshold float64       `mapstructure:"auto_block_threshold"`
}

func (c *Config) applyDefaults() {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = DefaultMaxSamples
	}
	if c.RateWeight <= 0 {
		c.RateWeight = DefaultRateWeight
	}
	if c.ErrorWeight <= 0 {
		c.ErrorWeight = DefaultErrorWeight
	}
	if c.DiversityWeight <= 0 {
		c.DiversityWeight = DefaultDiversityWeight
	}
	if c.AutoBlockThreshold <= 0 {
		c.AutoBlockThreshold = DefaultAutoBlockThreshold
	}
}

// Validate enforces that the factor weights form a convex combination, the
// same contract the scorer's configuration follows.
func (c Config) Validate() error {
	total := c.RateWeight + c.ErrorWeight + c.DiversityWeight
	if total != 0 && (total < 0.999 || total > 1.001) {
		return fmt.Errorf("behavior weights must sum to 1.0, got %f", total)
	}
	if c.AutoBlockThreshold < 0 || c.AutoBlockThreshold > 1 {
		return fmt.Errorf("auto_block_threshold must be between 0 and 1")
	}
	return nil
}

// Profile is the sliding-window activity record for one identifier.
// Timestamps older than the window are evicted lazily on the next Observe;
// there is no background sweeper per identifier.
type Profile struct {
	Identifier        string          `json:"identifier"`
	RequestTimestamps []time.Time     `json:"request_timestamps"`
	ErrorCount        int             `json:"error_count"`
	DistinctPaths     map[string]bool `json:"distinct_paths"`
	WindowStart       time.Time       `json:"window_start"`
}

// Outcome is what the caller observed for a single request.
type Outcome struct {
	IsError bool
	Path    string
}

// Score is the weighted behavior score with its factors broken out.
type Score struct {
	Score        float64
	RequestRate  float64
	ErrorRatio   float64
	LowDiversity float64
	AutoBlock    bool
	SampleCount  int
}

// Analyzer maintains per-identifier sliding-window profiles and raises an
// auto-block signal when the combined behavior score crosses the threshold.
// The caller forwards auto-blocks into the penalty box and the dispatcher.
type Analyzer struct {
	store  store.Store
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time
}

type AnalyzerOpts struct {
	TimeProvider func() time.Time
}

func NewAnalyzer(s store.Store, cfg Config, logger *logrus.Logger, opts *AnalyzerOpts) *Analyzer {
	cfg.applyDefaults()
	now := time.Now
	if opts != nil && opts.TimeProvider != nil {
		now = opts.TimeProvider
	}
	return &Analyzer{
		store:  s,
		cfg:    cfg,
		logger: logger,
		now:    now,
	}
}

// Observe folds one request outcome into the identifier's profile and
// returns the updated behavior score. Eviction happens here, before the
// update, so the profile only ever reflects activity inside the window.
func (a *Analyzer) Observe(ctx context.Context, identifier string, outcome Outcome) (Score, error) {
	var score Score

	_, err := a.store.Update(ctx, keyPrefix+identifier, 0, func(current string, exists bool) (string, error) {
		now := a.now()
		profile := Profile{
			Identifier:    identifier,
			DistinctPaths: make(map[string]bool),
			WindowStart:   now,
		}
		if exists {
			if err := json.Unmarshal([]byte(current), &profile); err != nil {
				profile = Profile{
					Identifier:    identifier,
					DistinctPaths: make(map[string]bool),
					WindowStart:   now,
				}
			}
		}

		a.evict(&profile, now)

		profile.RequestTimestamps = append(profile.RequestTimestamps, now)
		if len(profile.RequestTimestamps) > a.cfg.MaxSamples {
			profile.RequestTimestamps = profile.RequestTimestamps[len(profile.RequestTimestamps)-a.cfg.MaxSamples:]
		}
		if outcome.IsError {
			profile.ErrorCount++
		}
		if outcome.Path != "" {
			profile.DistinctPaths[outcome.Path] = true
		}

		score = a.score(&profile)

		encoded, err := json.Marshal(profile)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	})
	if err != nil {
		return Score{}, fmt.Errorf("observe %s: %w", identifier, err)
	}

	if score.AutoBlock {
		a.logger.WithFields(logrus.Fields{
			"identifier": identifier,
			"score":      score.Score,
			"rate":       score.RequestRate,
			"error_rate": score.ErrorRatio,
		}).Warn("behavior score crossed auto-block threshold")
	}

	return score, nil
}

// evict drops timestamps outside the window; when the whole window has gone
// stale it resets the error and path accumulators as well.
func (a *Analyzer) evict(profile *Profile, now time.Time) {
	cutoff := now.Add(-a.cfg.Window)

	kept := profile.RequestTimestamps[:0]
	for _, ts := range profile.RequestTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	profile.RequestTimestamps = kept

	if now.Sub(profile.WindowStart) > a.cfg.Window {
		profile.ErrorCount = 0
		profile.DistinctPaths = make(map[string]bool)
		profile.WindowStart = now
	}
}

func (a *Analyzer) score(profile *Profile) Score {
	total := len(profile.RequestTimestamps)
	if total == 0 {
		return Score{}
	}

	windowSeconds := a.cfg.Window.Seconds()
	rate := float64(total) / windowSeconds
	rateFactor := rate / rateCeiling
	if rateFactor > 1 {
		rateFactor = 1
	}

	errorRatio := float64(profile.ErrorCount) / float64(total)
	if errorRatio > 1 {
		errorRatio = 1
	}

	// Low path diversity combined with a high rate suggests scripted
	// abuse; a lone request hitting one path is not suspicious, so the
	// diversity factor is scaled by the rate factor.
	diversity := float64(len(profile.DistinctPaths)) / float64(total)
	lowDiversity := (1 - diversity) * rateFactor

	combined := rateFactor*a.cfg.RateWeight +
		errorRatio*a.cfg.ErrorWeight +
		lowDiversity*a.cfg.DiversityWeight

	return Score{
		Score:        combined,
		RequestRate:  rate,
		ErrorRatio:   errorRatio,
		LowDiversity: lowDiversity,
		AutoBlock:    combined >= a.cfg.AutoBlockThreshold,
		SampleCount:  total,
	}
}

// Forget drops the profile for an identifier, e.g. after an auto-block has
// been converted into a ban.
func (a *Analyzer) Forget(ctx context.Context, identifier string) error {
	return a.store.Delete(ctx, keyPrefix+identifier)
}
