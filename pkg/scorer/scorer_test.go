package scorer_test

import (
	"context"
	"testing"

	"github.com/NeuralTrust/TrustShield/pkg/scorer"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newScorer(cfg scorer.Config) *scorer.Scorer {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return scorer.NewScorer(cfg, nil, logger)
}

func newRequest(path string) *types.RequestContext {
	return &types.RequestContext{
		Context:    context.Background(),
		Identifier: "1.2.3.4",
		Path:       path,
		Method:     "GET",
		UserAgent:  browserUA,
	}
}

func TestScorer_Evaluate(t *testing.T) {
	t.Run("clean request is allowed", func(t *testing.T) {
		s := newScorer(scorer.Config{})
		verdict := s.Evaluate(newRequest("/api/bookings"))

		assert.Equal(t, types.ClassificationAllow, verdict.Classification)
		assert.Zero(t, verdict.Score)
		assert.Empty(t, verdict.MatchedSignatures)
	})

	t.Run("observed signatures sum their weights", func(t *testing.T) {
		s := newScorer(scorer.Config{})
		req := newRequest("/api/bookings")
		req.ObservedSignatures = []string{"sql_injection", "command_injection"}

		verdict := s.Evaluate(req)

		assert.Equal(t, types.ClassificationBlock, verdict.Classification)
		assert.InDelta(t, 12.0, verdict.Score, 0.001)
		assert.Equal(t, []string{"command_injection", "sql_injection"}, verdict.MatchedSignatures)
	})

	t.Run("self-matched pattern in path", func(t *testing.T) {
		s := newScorer(scorer.Config{})
		verdict := s.Evaluate(newRequest("/files?name=../../etc/passwd"))

		assert.Contains(t, verdict.MatchedSignatures, "path_traversal")
		assert.Equal(t, types.ClassificationChallenge, verdict.Classification)
	})

	t.Run("mid score yields challenge", func(t *testing.T) {
		s := newScorer(scorer.Config{})
		req := newRequest("/api/bookings")
		req.ObservedSignatures = []string{"sql_injection"}

		verdict := s.Evaluate(req)

		assert.Equal(t, types.ClassificationChallenge, verdict.Classification)
	})

	t.Run("weight overrides apply", func(t *testing.T) {
		s := newScorer(scorer.Config{
			SignatureWeights: map[string]float64{"sql_injection": 12},
		})
		req := newRequest("/api/bookings")
		req.ObservedSignatures = []string{"sql_injection"}

		verdict := s.Evaluate(req)

		assert.Equal(t, types.ClassificationBlock, verdict.Classification)
	})

	t.Run("custom name-only signature", func(t *testing.T) {
		s := newScorer(scorer.Config{
			SignatureWeights: map[string]float64{"credential_stuffing": 10},
		})
		req := newRequest("/api/login")
		req.ObservedSignatures = []string{"credential_stuffing"}

		verdict := s.Evaluate(req)

		assert.Equal(t, types.ClassificationBlock, verdict.Classification)
	})

	t.Run("missing user agent adds automated weight", func(t *testing.T) {
		s := newScorer(scorer.Config{})
		req := newRequest("/api/bookings")
		req.UserAgent = ""

		verdict := s.Evaluate(req)

		assert.Contains(t, verdict.MatchedSignatures, "automated_client")
		assert.InDelta(t, scorer.DefaultAutomatedUAWeight, verdict.Score, 0.001)
	})

	t.Run("bot user agent adds automated weight", func(t *testing.T) {
		s := newScorer(scorer.Config{})
		req := newRequest("/api/bookings")
		req.UserAgent = "Googlebot/2.1 (+http://www.google.com/bot.html)"

		verdict := s.Evaluate(req)

		assert.Contains(t, verdict.MatchedSignatures, "automated_client")
	})
}

func TestScorer_Honeypot(t *testing.T) {
	cfg := scorer.Config{
		HoneypotFields: []string{"website_url"},
		HoneypotPaths:  []string{"/admin-backup"},
	}

	t.Run("trap route blocks regardless of score", func(t *testing.T) {
		s := newScorer(cfg)
		verdict := s.Evaluate(newRequest("/admin-backup"))

		assert.True(t, verdict.Honeypot)
		assert.Equal(t, types.ClassificationBlock, verdict.Classification)
		assert.Equal(t, []string{"honeypot"}, verdict.MatchedSignatures)
	})

	t.Run("populated trap field blocks", func(t *testing.T) {
		s := newScorer(cfg)
		req := newRequest("/api/contact")
		req.Body = []byte(`{"name":"alice","website_url":"http://spam.example"}`)

		verdict := s.Evaluate(req)

		assert.True(t, verdict.Honeypot)
		assert.Equal(t, types.ClassificationBlock, verdict.Classification)
	})

	t.Run("non-string trap value blocks", func(t *testing.T) {
		s := newScorer(cfg)
		req := newRequest("/api/contact")
		req.Body = []byte(`{"name":"alice","website_url":42}`)

		verdict := s.Evaluate(req)

		assert.True(t, verdict.Honeypot)

		req.Body = []byte(`{"name":"alice","website_url":true}`)
		assert.True(t, s.Evaluate(req).Honeypot)
	})

	t.Run("null trap value is ignored", func(t *testing.T) {
		s := newScorer(cfg)
		req := newRequest("/api/contact")
		req.Body = []byte(`{"name":"alice","website_url":null}`)

		verdict := s.Evaluate(req)

		assert.False(t, verdict.Honeypot)
	})

	t.Run("populated trap field in a form body blocks", func(t *testing.T) {
		s := newScorer(cfg)
		req := newRequest("/api/contact")
		req.Body = []byte(`name=alice&website_url=http%3A%2F%2Fspam.example`)

		verdict := s.Evaluate(req)

		assert.True(t, verdict.Honeypot)
		assert.Equal(t, types.ClassificationBlock, verdict.Classification)
	})

	t.Run("empty trap field in a form body is ignored", func(t *testing.T) {
		s := newScorer(cfg)
		req := newRequest("/api/contact")
		req.Body = []byte(`name=alice&website_url=`)

		verdict := s.Evaluate(req)

		assert.False(t, verdict.Honeypot)
	})

	t.Run("empty trap field is ignored", func(t *testing.T) {
		s := newScorer(cfg)
		req := newRequest("/api/contact")
		req.Body = []byte(`{"name":"alice","website_url":""}`)

		verdict := s.Evaluate(req)

		assert.False(t, verdict.Honeypot)
		assert.Equal(t, types.ClassificationAllow, verdict.Classification)
	})

	t.Run("malformed body is not a trap hit", func(t *testing.T) {
		s := newScorer(cfg)
		req := newRequest("/api/contact")
		req.Body = []byte(`not-json`)

		verdict := s.Evaluate(req)

		assert.False(t, verdict.Honeypot)
	})
}
