package types

import (
	"context"
	"time"
)

// Classification is the scorer's verdict on a request.
type Classification string

const (
	ClassificationAllow     Classification = "allow"
	ClassificationChallenge Classification = "challenge"
	ClassificationBlock     Classification = "block"
)

// Severity levels for security alerts.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Event types emitted by the mitigation core.
const (
	EventRuleBlock          = "RULE_BLOCK"
	EventHoneypotTriggered  = "HONEYPOT_TRIGGERED"
	EventBehaviourAutoBlock = "BEHAVIOUR_AUTO_BLOCK"
	EventPenaltyBan         = "PENALTY_BAN"
	EventPaymentRejected    = "PAYMENT_REJECTED"
)

// RequestContext carries everything the engine needs to evaluate a request.
// The upstream pipeline is responsible for filling it; Identifier is
// typically the client IP.
type RequestContext struct {
	Context            context.Context
	Identifier         string
	Path               string
	Method             string
	UserAgent          string
	Headers            map[string][]string
	Body               []byte
	ObservedSignatures []string
}

// ScoreVerdict is produced per evaluated request and not persisted.
type ScoreVerdict struct {
	Score             float64        `json:"score"`
	Classification    Classification `json:"classification"`
	MatchedSignatures []string       `json:"matched_signatures"`
	Honeypot          bool           `json:"honeypot"`
}

// SecurityAlert is an ephemeral structured event handed to the dispatcher.
type SecurityAlert struct {
	ID         string                 `json:"id"`
	Severity   Severity               `json:"severity"`
	EventType  string                 `json:"event_type"`
	Identifier string                 `json:"identifier"`
	Path       string                 `json:"path,omitempty"`
	Method     string                 `json:"method,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}
