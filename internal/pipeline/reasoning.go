package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
)

// Reasoning score shape.
const (
	plausibilityWeight  = 0.6
	evidenceWeightCap   = 0.4
	evidenceSaturation  = 20.0
	fallbackOverallCap  = 0.3
	relationBlendWeight = 0.3
	synthesizerDeadline = 60 * time.Second
)

// ReasoningStage turns the simulation output into a mechanistic candidate
// hypothesis. A failing or contract-violating synthesizer falls back to the
// template synthesizer, whose candidates never score above the fallback cap.
// A query without a resolved drug/disease pair yields zero candidates
// instead of an error.
type ReasoningStage struct {
	synthesizer domain.HypothesisSynthesizer
	fallback    domain.HypothesisSynthesizer
	scorer      domain.RelevanceScorer
	log         *logrus.Logger
}

// NewReasoningStage creates the reasoning stage. synthesizer and scorer may
// be nil; the fallback is mandatory.
func NewReasoningStage(synthesizer, fallback domain.HypothesisSynthesizer, scorer domain.RelevanceScorer, log *logrus.Logger) *ReasoningStage {
	return &ReasoningStage{synthesizer: synthesizer, fallback: fallback, scorer: scorer, log: log}
}

func (s *ReasoningStage) Name() string { return "reasoning" }

// CheckInput requires a simulation result.
func (s *ReasoningStage) CheckInput(state *domain.WorkflowState) error {
	if state.Simulation == nil {
		return domain.NewError(domain.ErrStageInputMissing, "reasoning requires a simulation result")
	}
	return nil
}

// CheckOutput requires the candidate list to be set, possibly empty.
func (s *ReasoningStage) CheckOutput(state *domain.WorkflowState) error {
	if state.Candidates == nil {
		return domain.NewError(domain.ErrStageOutputMissing, "reasoning produced no candidate list")
	}
	return nil
}

func (s *ReasoningStage) Run(ctx context.Context, state *domain.WorkflowState) error {
	if state.Query.Drug == "" || state.Query.Disease == "" {
		state.Candidates = []domain.Candidate{}
		s.log.WithField("query_id", state.QueryID).
			Info("No drug/disease pair resolved, no hypothesis to synthesize")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, synthesizerDeadline)
	defer cancel()

	input := domain.SynthesisInput{
		Drug:         state.Query.Drug,
		Disease:      state.Query.Disease,
		Paths:        state.Simulation.ValidPaths,
		Evidence:     state.Evidence,
		Plausibility: state.Simulation.Plausibility,
	}

	hypothesis, usedFallback, err := s.synthesize(ctx, input)
	if err != nil {
		return err
	}

	overall := plausibilityWeight*state.Simulation.Plausibility +
		math.Min(evidenceWeightCap, float64(len(state.Evidence))/evidenceSaturation)
	if usedFallback || len(state.Simulation.ValidPaths) == 0 {
		overall = math.Min(overall, fallbackOverallCap)
	}

	confidence := s.blendConfidence(ctx, state, hypothesis.Confidence)
	// A candidate never claims more confidence than its overall score.
	confidence = math.Min(confidence, overall)

	evidenceIDs := make([]string, 0, len(state.Evidence))
	citationIDs := make([]string, 0, len(state.Evidence))
	seenCitation := make(map[string]bool, len(state.Evidence))
	for _, ev := range state.Evidence {
		evidenceIDs = append(evidenceIDs, ev.ID)
		if ev.SourceID != "" && !seenCitation[ev.SourceID] {
			seenCitation[ev.SourceID] = true
			citationIDs = append(citationIDs, ev.SourceID)
		}
	}

	state.Candidates = []domain.Candidate{{
		DrugName:          state.Query.Drug,
		DiseaseName:       state.Query.Disease,
		Hypothesis:        hypothesis.Hypothesis,
		MechanismSummary:  hypothesis.MechanismSummary,
		PlausibilityScore: state.Simulation.Plausibility,
		EvidenceCount:     len(state.Evidence),
		PathCount:         len(state.Simulation.ValidPaths),
		NoveltyScore:      noveltyScore(len(state.Evidence)),
		ConfidenceScore:   confidence,
		OverallScore:      overall,
		Paths:             state.Simulation.ValidPaths,
		EvidenceIDs:       evidenceIDs,
		CitationIDs:       citationIDs,
		KeyPathways:       hypothesis.KeyPathways,
	}}

	s.log.WithFields(logrus.Fields{
		"query_id":     state.QueryID,
		"overall":      overall,
		"confidence":   confidence,
		"fallback":     usedFallback,
		"key_pathways": len(hypothesis.KeyPathways),
	}).Info("Hypothesis synthesized")
	return nil
}

func (s *ReasoningStage) synthesize(ctx context.Context, input domain.SynthesisInput) (*domain.Hypothesis, bool, error) {
	if s.synthesizer != nil {
		hypothesis, err := s.synthesizer.Synthesize(ctx, input)
		if err == nil {
			return hypothesis, false, nil
		}
		s.log.WithError(err).WithField("kind", domain.KindOf(err)).
			Warn("Synthesizer failed, using template fallback")
	}
	hypothesis, err := s.fallback.Synthesize(ctx, input)
	return hypothesis, true, err
}

// blendConfidence folds the relation scorer's judgment of the mechanistic
// triple into the synthesizer's confidence. Scorer outages leave the
// synthesizer confidence untouched.
func (s *ReasoningStage) blendConfidence(ctx context.Context, state *domain.WorkflowState, confidence float64) float64 {
	if s.scorer == nil {
		return confidence
	}
	target := primaryTarget(state.Entities)
	if target == "" {
		return confidence
	}

	scores, err := s.scorer.ScoreRelation(ctx, state.Query.Drug, target, state.Query.Disease)
	if err != nil {
		s.log.WithError(err).WithField("query_id", state.QueryID).
			Debug("Relation scoring failed, keeping synthesizer confidence")
		return confidence
	}
	return (1-relationBlendWeight)*confidence + relationBlendWeight*scores.Aggregate
}

// primaryTarget picks the first gene or protein entity as the mechanistic
// target of the triple.
func primaryTarget(entities []domain.Entity) string {
	for _, e := range entities {
		if e.Type == domain.EntityGene || e.Type == domain.EntityProtein {
			return e.Name
		}
	}
	return ""
}

// noveltyScore rates how unexplored the pairing is: sparse literature means
// a more novel hypothesis.
func noveltyScore(evidenceCount int) float64 {
	return 1.0 - math.Min(1.0, float64(evidenceCount)/evidenceSaturation)
}
