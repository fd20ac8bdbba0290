package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
)

// Saturation points for the count-based ranking terms.
const (
	rankEvidenceSaturation = 20.0
	rankPathSaturation     = 5.0
)

// RankWeights are the composite score weights. They must sum to 1.
type RankWeights struct {
	Overall    float64
	Confidence float64
	Evidence   float64
	Paths      float64
	Novelty    float64
}

// DefaultRankWeights returns the standard weighting.
func DefaultRankWeights() RankWeights {
	return RankWeights{
		Overall:    0.35,
		Confidence: 0.25,
		Evidence:   0.20,
		Paths:      0.15,
		Novelty:    0.05,
	}
}

// Validate rejects weight sets that do not sum to 1.
func (w RankWeights) Validate() error {
	sum := w.Overall + w.Confidence + w.Evidence + w.Paths + w.Novelty
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("ranking weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// RankingStage scores, filters and orders candidates. It is a pure function
// of the workflow state: no I/O, no clock, no randomness.
type RankingStage struct {
	weights RankWeights
	log     *logrus.Logger
}

// NewRankingStage creates the ranking stage, rejecting invalid weights.
func NewRankingStage(weights RankWeights, log *logrus.Logger) (*RankingStage, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &RankingStage{weights: weights, log: log}, nil
}

func (s *RankingStage) Name() string { return "ranking" }

// Skip marks the stage skipped when there is nothing to rank.
func (s *RankingStage) Skip(state *domain.WorkflowState) (bool, string) {
	if len(state.Candidates) == 0 {
		return true, "no candidates"
	}
	return false, ""
}

func (s *RankingStage) Run(ctx context.Context, state *domain.WorkflowState) error {
	// MinConfidence gates on the candidate's confidence; the composite only
	// orders. The count-based composite terms rarely saturate, so a composite
	// gate would reject sound candidates at the default threshold.
	ranked := make([]domain.Candidate, 0, len(state.Candidates))
	for _, c := range state.Candidates {
		c.CompositeScore = s.composite(c)
		if c.ConfidenceScore < state.Request.MinConfidence {
			continue
		}
		ranked = append(ranked, c)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		return a.EvidenceCount > b.EvidenceCount
	})

	if len(ranked) > state.Request.MaxCandidates {
		ranked = ranked[:state.Request.MaxCandidates]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	state.Candidates = ranked

	s.log.WithFields(logrus.Fields{
		"query_id": state.QueryID,
		"kept":     len(ranked),
	}).Info("Candidates ranked")
	return nil
}

func (s *RankingStage) composite(c domain.Candidate) float64 {
	evidenceTerm := math.Min(float64(c.EvidenceCount)/rankEvidenceSaturation, 1.0)
	pathTerm := math.Min(float64(c.PathCount)/rankPathSaturation, 1.0)
	return s.weights.Overall*c.OverallScore +
		s.weights.Confidence*c.ConfidenceScore +
		s.weights.Evidence*evidenceTerm +
		s.weights.Paths*pathTerm +
		s.weights.Novelty*c.NoveltyScore
}
