package alert

import (
	"context"
	"sync"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/cooldown"
	"github.com/NeuralTrust/TrustShield/pkg/infra/prometheus"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCooldown       = 5 * time.Minute
	DefaultChannelTimeout = 5 * time.Second
	DefaultWorkers        = 4
	DefaultQueueSize      = 256
)

// AuditSink persists dispatched alerts. Optional; a nil sink is a no-op.
type AuditSink interface {
	SaveAlert(ctx context.Context, alert types.SecurityAlert) error
}

type DispatcherConfig struct {
	Cooldown       time.Duration `mapstructure:"cooldown"`
	ChannelTimeout time.Duration `mapstructure:"channel_timeout"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.ChannelTimeout <= 0 {
		c.ChannelTimeout = DefaultChannelTimeout
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// Dispatcher fans security alerts out to notification channels without ever
// blocking or failing the caller. Every alert is logged synchronously to
// the operational log; channel deliveries happen on a background worker
// pool with one timeout per channel, so one broken channel can neither
// delay nor starve the others.
type Dispatcher struct {
	logger   *logrus.Logger
	registry *cooldown.Registry
	channels []Channel
	audit    AuditSink
	cfg      DispatcherConfig

	queue chan types.SecurityAlert
	wg    sync.WaitGroup
	once  sync.Once
	now   func() time.Time
}

type DispatcherOpts struct {
	TimeProvider func() time.Time
}

func NewDispatcher(
	logger *logrus.Logger,
	registry *cooldown.Registry,
	channels []Channel,
	audit AuditSink,
	cfg DispatcherConfig,
	opts *DispatcherOpts,
) *Dispatcher {
	cfg.applyDefaults()
	now := time.Now
	if opts != nil && opts.TimeProvider != nil {
		now = opts.TimeProvider
	}

	d := &Dispatcher{
		logger:   logger,
		registry: registry,
		channels: channels,
		audit:    audit,
		cfg:      cfg,
		queue:    make(chan types.SecurityAlert, cfg.QueueSize),
		now:      now,
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Send records and dispatches an alert. It never blocks and never returns
// an error: dispatch failures are an observability problem, not a request
// path problem.
func (d *Dispatcher) Send(alert types.SecurityAlert) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = d.now()
	}

	entry := d.logger.WithFields(logrus.Fields{
		"alert_id":   alert.ID,
		"event_type": alert.EventType,
		"severity":   alert.Severity,
		"identifier": alert.Identifier,
	})
	if alert.Path != "" {
		entry = entry.WithField("path", alert.Method+" "+alert.Path)
	}
	entry.Warn("security event")

	if d.registry != nil {
		key := alert.EventType + ":" + alert.Identifier
		if !d.registry.ShouldEmit(context.Background(), key, d.cfg.Cooldown) {
			prometheus.AlertsSuppressed.Inc()
			return
		}
	}

	select {
	case d.queue <- alert:
	default:
		// A full queue means the channels are drowning; dropping is the
		// only option that keeps Send non-blocking.
		d.logger.WithField("alert_id", alert.ID).Warn("alert queue full, dropping delivery")
	}
}

// Close drains the queue and stops the workers. Further Sends will panic;
// callers stop producing before shutting down.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for alert := range d.queue {
		d.deliver(alert)
	}
}

// deliver fires every channel concurrently and waits for all of them, so
// one worker slot processes one alert at a time but channels never wait on
// each other.
func (d *Dispatcher) deliver(alert types.SecurityAlert) {
	if d.audit != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ChannelTimeout)
		if err := d.audit.SaveAlert(ctx, alert); err != nil {
			d.logger.WithError(err).Debug("failed to persist alert audit row")
		}
		cancel()
	}

	var wg sync.WaitGroup
	for _, channel := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.WithField("channel", ch.Name()).
						Errorf("alert channel panicked: %v", r)
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ChannelTimeout)
			defer cancel()

			if err := ch.Send(ctx, alert); err != nil {
				prometheus.AlertChannelFailures.WithLabelValues(ch.Name()).Inc()
				d.logger.WithError(err).
					WithField("channel", ch.Name()).
					WithField("alert_id", alert.ID).
					Error("alert channel delivery failed")
				return
			}
			prometheus.AlertsDelivered.WithLabelValues(ch.Name()).Inc()
		}(channel)
	}
	wg.Wait()
}
