package engine

import (
	"context"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/alert"
	"github.com/NeuralTrust/TrustShield/pkg/behavior"
	"github.com/NeuralTrust/TrustShield/pkg/infra/prometheus"
	"github.com/NeuralTrust/TrustShield/pkg/penaltybox"
	"github.com/NeuralTrust/TrustShield/pkg/scorer"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/sirupsen/logrus"
)

// BanSink persists issued bans for offline review. Optional.
type BanSink interface {
	SaveBan(ctx context.Context, identifier string, banCount int, bannedUntil time.Time, reason string) error
}

// Decision is what the transport layer enforces for one request.
type Decision struct {
	Allowed     bool
	Verdict     types.ScoreVerdict
	Banned      bool
	BannedUntil time.Time
	Reason      string
}

// Engine composes the mitigation stages into the per-request pipeline:
// penalty box gate, traffic scoring, violation escalation, alerting. The
// behavioral pass runs separately after the response, via ObserveOutcome.
type Engine struct {
	scorer   *scorer.Scorer
	box      *penaltybox.Box
	analyzer *behavior.Analyzer
	alerts   *alert.Dispatcher
	bans     BanSink
	logger   *logrus.Logger
}

func New(
	sc *scorer.Scorer,
	box *penaltybox.Box,
	analyzer *behavior.Analyzer,
	alerts *alert.Dispatcher,
	bans BanSink,
	logger *logrus.Logger,
) *Engine {
	return &Engine{
		scorer:   sc,
		box:      box,
		analyzer: analyzer,
		alerts:   alerts,
		bans:     bans,
		logger:   logger,
	}
}

// Evaluate runs the inbound pipeline. Banned identifiers are rejected
// before any scoring work; a block verdict registers a violation, which
// may escalate into a ban on this same request.
func (e *Engine) Evaluate(req *types.RequestContext) Decision {
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if until, banned := e.box.BannedUntil(ctx, req.Identifier); banned {
		prometheus.BannedRejections.Inc()
		return Decision{
			Allowed:     false,
			Banned:      true,
			BannedUntil: until,
			Reason:      "identifier is banned",
		}
	}

	verdict := e.scorer.Evaluate(req)
	prometheus.VerdictTotal.WithLabelValues(string(verdict.Classification)).Inc()

	if verdict.Classification != types.ClassificationBlock {
		return Decision{Allowed: true, Verdict: verdict}
	}

	decision := Decision{
		Allowed: false,
		Verdict: verdict,
		Reason:  "request blocked by traffic scoring",
	}

	ban, err := e.box.RecordViolation(ctx, req.Identifier)
	if err != nil {
		e.logger.WithError(err).WithField("identifier", req.Identifier).
			Error("failed to record violation")
	} else if ban.Banned {
		decision.Banned = true
		decision.BannedUntil = ban.BannedUntil
		e.banIssued(ctx, req.Identifier, ban, "violation threshold reached")
	}

	eventType := types.EventRuleBlock
	if verdict.Honeypot {
		eventType = types.EventHoneypotTriggered
	}
	e.alerts.Send(types.SecurityAlert{
		Severity:   types.SeverityCritical,
		EventType:  eventType,
		Identifier: req.Identifier,
		Path:       req.Path,
		Method:     req.Method,
		Details: map[string]interface{}{
			"score":      verdict.Score,
			"signatures": verdict.MatchedSignatures,
		},
	})

	return decision
}

// ObserveOutcome feeds the response outcome into the behavioral analyzer
// and escalates an auto-block into the penalty box. Runs off the hot path;
// failures are logged, never surfaced to the client.
func (e *Engine) ObserveOutcome(ctx context.Context, identifier string, outcome behavior.Outcome) {
	score, err := e.analyzer.Observe(ctx, identifier, outcome)
	if err != nil {
		e.logger.WithError(err).WithField("identifier", identifier).
			Debug("behavior observation failed")
		return
	}
	if !score.AutoBlock {
		return
	}
	if e.box.IsBanned(ctx, identifier) {
		return
	}

	ban, err := e.box.RecordViolation(ctx, identifier)
	if err != nil {
		e.logger.WithError(err).WithField("identifier", identifier).
			Error("failed to record auto-block violation")
		return
	}
	if ban.Banned {
		e.banIssued(ctx, identifier, ban, "behavioral auto-block")
	}

	e.alerts.Send(types.SecurityAlert{
		Severity:   types.SeverityHigh,
		EventType:  types.EventBehaviourAutoBlock,
		Identifier: identifier,
		Details: map[string]interface{}{
			"score":        score.Score,
			"request_rate": score.RequestRate,
			"error_ratio":  score.ErrorRatio,
		},
	})
}

func (e *Engine) banIssued(ctx context.Context, identifier string, ban penaltybox.Ban, reason string) {
	prometheus.BansIssued.Inc()
	e.logger.WithFields(logrus.Fields{
		"identifier":   identifier,
		"ban_count":    ban.BanCount,
		"banned_until": ban.BannedUntil,
	}).Warn("identifier banned")

	if e.bans != nil {
		if err := e.bans.SaveBan(ctx, identifier, ban.BanCount, ban.BannedUntil, reason); err != nil {
			e.logger.WithError(err).Debug("failed to persist ban audit row")
		}
	}

	e.alerts.Send(types.SecurityAlert{
		Severity:   types.SeverityHigh,
		EventType:  types.EventPenaltyBan,
		Identifier: identifier,
		Details: map[string]interface{}{
			"ban_count":    ban.BanCount,
			"banned_until": ban.BannedUntil.Format(time.RFC3339),
			"reason":       reason,
		},
	})
}
