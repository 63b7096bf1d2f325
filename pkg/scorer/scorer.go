package scorer

import (
	"net/url"
	"sort"
	"strings"

	"github.com/NeuralTrust/TrustShield/pkg/reputation"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/avct/uasurfer"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"
)

const (
	DefaultBlockThreshold     = 10.0
	DefaultChallengeThreshold = 5.0
	DefaultAutomatedUAWeight  = 2.0

	honeypotSignature  = "honeypot"
	automatedSignature = "automated_client"
)

type Config struct {
	BlockThreshold     float64            `mapstructure:"block_threshold"`
	ChallengeThreshold float64            `mapstructure:"challenge_threshold"`
	SignatureWeights   map[string]float64 `mapstructure:"signature_weights"`
	HoneypotFields     []string           `mapstructure:"honeypot_fields"`
	HoneypotPaths      []string           `mapstructure:"honeypot_paths"`
	AutomatedUAWeight  float64            `mapstructure:"automated_ua_weight"`
}

func (c *Config) applyDefaults() {
	if c.BlockThreshold <= 0 {
		c.BlockThreshold = DefaultBlockThreshold
	}
	if c.ChallengeThreshold <= 0 {
		c.ChallengeThreshold = DefaultChallengeThreshold
	}
	if c.AutomatedUAWeight <= 0 {
		c.AutomatedUAWeight = DefaultAutomatedUAWeight
	}
}

// Scorer computes a request's threat score from signature matches, an
// automated-client heuristic, and a cached reputation contribution, then
// classifies it into allow, challenge, or block.
type Scorer struct {
	cfg        Config
	signatures []Signature
	reputation *reputation.Cache
	logger     *logrus.Logger
	parsers    fastjson.ParserPool
}

func NewScorer(cfg Config, reputationCache *reputation.Cache, logger *logrus.Logger) *Scorer {
	cfg.applyDefaults()
	return &Scorer{
		cfg:        cfg,
		signatures: buildSignatures(cfg.SignatureWeights),
		reputation: reputationCache,
		logger:     logger,
	}
}

// Evaluate scores a single request. Honeypot hits bypass scoring entirely:
// a legitimate client can never touch a trap field or route, so they go
// straight to block.
func (s *Scorer) Evaluate(req *types.RequestContext) types.ScoreVerdict {
	if s.isHoneypotHit(req) {
		return types.ScoreVerdict{
			Score:             s.cfg.BlockThreshold,
			Classification:    types.ClassificationBlock,
			MatchedSignatures: []string{honeypotSignature},
			Honeypot:          true,
		}
	}

	score := 0.0
	matched := make([]string, 0, 4)
	seen := make(map[string]bool)

	observed := make(map[string]bool, len(req.ObservedSignatures))
	for _, name := range req.ObservedSignatures {
		observed[name] = true
	}

	haystack := req.Path
	if len(req.Body) > 0 {
		haystack += "\n" + string(req.Body)
	}

	for _, sig := range s.signatures {
		if !observed[sig.Name] && !sig.Matches(haystack) {
			continue
		}
		if seen[sig.Name] {
			continue
		}
		seen[sig.Name] = true
		score += sig.Weight
		matched = append(matched, sig.Name)
	}
	sort.Strings(matched)

	if s.isAutomatedClient(req.UserAgent) {
		score += s.cfg.AutomatedUAWeight
		matched = append(matched, automatedSignature)
	}

	if s.reputation != nil {
		score += s.reputation.Contribution(req.Context, req.Identifier)
	}

	verdict := types.ScoreVerdict{
		Score:             score,
		MatchedSignatures: matched,
	}
	switch {
	case score >= s.cfg.BlockThreshold:
		verdict.Classification = types.ClassificationBlock
	case score >= s.cfg.ChallengeThreshold:
		verdict.Classification = types.ClassificationChallenge
	default:
		verdict.Classification = types.ClassificationAllow
	}

	if verdict.Classification != types.ClassificationAllow {
		s.logger.WithFields(logrus.Fields{
			"identifier":     req.Identifier,
			"path":           req.Path,
			"score":          score,
			"classification": verdict.Classification,
			"signatures":     matched,
		}).Debug("request scored above threshold")
	}

	return verdict
}

// isHoneypotHit checks trap-only routes and form fields. JSON bodies are
// probed with fastjson; anything that fails the parse is treated as a form
// submission. A trap field counts as filled for any non-null value except
// the empty string, which browsers submit for untouched hidden inputs.
func (s *Scorer) isHoneypotHit(req *types.RequestContext) bool {
	for _, path := range s.cfg.HoneypotPaths {
		if strings.EqualFold(req.Path, path) {
			return true
		}
	}

	if len(s.cfg.HoneypotFields) == 0 || len(req.Body) == 0 {
		return false
	}

	parser := s.parsers.Get()
	defer s.parsers.Put(parser)

	value, err := parser.ParseBytes(req.Body)
	if err != nil {
		return s.isFormHoneypotHit(req.Body)
	}
	for _, field := range s.cfg.HoneypotFields {
		trap := value.Get(field)
		if trap == nil || trap.Type() == fastjson.TypeNull {
			continue
		}
		if trap.Type() == fastjson.TypeString && len(trap.GetStringBytes()) == 0 {
			continue
		}
		return true
	}
	return false
}

func (s *Scorer) isFormHoneypotHit(body []byte) bool {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return false
	}
	for _, field := range s.cfg.HoneypotFields {
		for _, v := range values[field] {
			if v != "" {
				return true
			}
		}
	}
	return false
}

func (s *Scorer) isAutomatedClient(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}
	ua := uasurfer.Parse(userAgent)
	return ua.IsBot()
}
