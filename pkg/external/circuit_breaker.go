package external

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/biomind-nexus-server/internal/domain"
)

// Service names used for per-service circuit breakers.
const (
	ServicePubMed      = "pubmed"
	ServiceNER         = "ner"
	ServiceSynthesizer = "synthesizer"
	ServiceScorer      = "scorer"
)

// BreakerSet holds one circuit breaker per external service. A tripped
// breaker fails calls fast instead of piling timeouts onto a struggling
// upstream.
type BreakerSet struct {
	breakers map[string]*gobreaker.CircuitBreaker
	log      *logrus.Logger
}

// NewBreakerSet creates breakers for every known external service.
func NewBreakerSet(log *logrus.Logger) *BreakerSet {
	bs := &BreakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		log:      log,
	}
	for _, name := range []string{ServicePubMed, ServiceNER, ServiceSynthesizer, ServiceScorer} {
		bs.breakers[name] = gobreaker.NewCircuitBreaker(bs.settings(name))
	}
	return bs
}

func (bs *BreakerSet) settings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			bs.log.WithFields(logrus.Fields{
				"service": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
}

// Execute runs fn under the named service's breaker.
func (bs *BreakerSet) Execute(service string, fn func() (interface{}, error)) (interface{}, error) {
	cb, ok := bs.breakers[service]
	if !ok {
		return nil, fmt.Errorf("unknown external service: %s", service)
	}
	result, err := cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, domain.WrapError(domain.ErrRepoUnavailable,
			fmt.Sprintf("%s circuit breaker open", service), err)
	}
	return result, err
}

// State returns the breaker state for a service, for health reporting.
func (bs *BreakerSet) State(service string) string {
	if cb, ok := bs.breakers[service]; ok {
		return cb.State().String()
	}
	return "unknown"
}

// ResilientLiterature wraps a LiteratureClient with the pubmed breaker.
type ResilientLiterature struct {
	inner    domain.LiteratureClient
	breakers *BreakerSet
}

// NewResilientLiterature wraps a literature client.
func NewResilientLiterature(inner domain.LiteratureClient, breakers *BreakerSet) *ResilientLiterature {
	return &ResilientLiterature{inner: inner, breakers: breakers}
}

// Search runs esearch under the breaker.
func (r *ResilientLiterature) Search(ctx context.Context, term string, max int) ([]string, error) {
	result, err := r.breakers.Execute(ServicePubMed, func() (interface{}, error) {
		return r.inner.Search(ctx, term, max)
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// Fetch runs efetch under the breaker.
func (r *ResilientLiterature) Fetch(ctx context.Context, pmids []string) ([]domain.Citation, error) {
	result, err := r.breakers.Execute(ServicePubMed, func() (interface{}, error) {
		return r.inner.Fetch(ctx, pmids)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Citation), nil
}

// ResilientSynthesizer wraps a HypothesisSynthesizer with its breaker.
type ResilientSynthesizer struct {
	inner    domain.HypothesisSynthesizer
	breakers *BreakerSet
}

// NewResilientSynthesizer wraps a synthesizer.
func NewResilientSynthesizer(inner domain.HypothesisSynthesizer, breakers *BreakerSet) *ResilientSynthesizer {
	return &ResilientSynthesizer{inner: inner, breakers: breakers}
}

// Synthesize runs the synthesizer under the breaker.
func (r *ResilientSynthesizer) Synthesize(ctx context.Context, input domain.SynthesisInput) (*domain.Hypothesis, error) {
	result, err := r.breakers.Execute(ServiceSynthesizer, func() (interface{}, error) {
		return r.inner.Synthesize(ctx, input)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Hypothesis), nil
}

// ResilientExtractor wraps an EntityExtractor with the ner breaker.
type ResilientExtractor struct {
	inner    domain.EntityExtractor
	breakers *BreakerSet
}

// NewResilientExtractor wraps an entity extractor.
func NewResilientExtractor(inner domain.EntityExtractor, breakers *BreakerSet) *ResilientExtractor {
	return &ResilientExtractor{inner: inner, breakers: breakers}
}

// Extract runs extraction under the breaker.
func (r *ResilientExtractor) Extract(ctx context.Context, text string) ([]domain.Entity, error) {
	result, err := r.breakers.Execute(ServiceNER, func() (interface{}, error) {
		return r.inner.Extract(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Entity), nil
}

// ResilientScorer wraps a RelevanceScorer with the scorer breaker.
type ResilientScorer struct {
	inner    domain.RelevanceScorer
	breakers *BreakerSet
}

// NewResilientScorer wraps a relevance scorer.
func NewResilientScorer(inner domain.RelevanceScorer, breakers *BreakerSet) *ResilientScorer {
	return &ResilientScorer{inner: inner, breakers: breakers}
}

// ScoreEvidence scores under the breaker.
func (r *ResilientScorer) ScoreEvidence(ctx context.Context, statement, hypothesis string) (float64, error) {
	result, err := r.breakers.Execute(ServiceScorer, func() (interface{}, error) {
		return r.inner.ScoreEvidence(ctx, statement, hypothesis)
	})
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

// ScoreRelation scores the mechanistic triple under the breaker.
func (r *ResilientScorer) ScoreRelation(ctx context.Context, drug, target, disease string) (domain.RelationScores, error) {
	result, err := r.breakers.Execute(ServiceScorer, func() (interface{}, error) {
		return r.inner.ScoreRelation(ctx, drug, target, disease)
	})
	if err != nil {
		return domain.RelationScores{}, err
	}
	return result.(domain.RelationScores), nil
}
