package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomind-nexus-server/internal/domain"
	"github.com/biomind-nexus-server/pkg/external"
)

func simulatedState(plausibility float64, evidenceCount int) *domain.WorkflowState {
	state := baseState()
	state.Simulation = &domain.SimulationResult{
		ValidPaths: []domain.PathwayPath{{
			Nodes: []domain.PathNode{
				{Name: "Metformin", Type: domain.EntityDrug},
				{Name: "AMPK", Type: domain.EntityGene},
				{Name: "Breast Cancer", Type: domain.EntityDisease},
			},
			Relations:  []domain.RelationType{domain.RelationActivates, domain.RelationInhibits},
			Confidence: plausibility,
			Rationale:  "Metformin activates AMPK, which inhibits Breast Cancer.",
		}},
		Plausibility: plausibility,
	}
	for i := 0; i < evidenceCount; i++ {
		state.Evidence = append(state.Evidence, domain.Evidence{
			ID: "lit_" + string(rune('a'+i)), SourceID: string(rune('1' + i%9)), Confidence: 0.8,
		})
	}
	return state
}

func goodHypothesis() *domain.Hypothesis {
	return &domain.Hypothesis{
		Hypothesis:       "Metformin may treat breast cancer via AMPK activation.",
		MechanismSummary: "AMPK activation downstream of metformin inhibits tumor growth.",
		Confidence:       0.8,
		KeyPathways:      []string{"AMPK signaling"},
	}
}

func TestReasoningComputesOverallScore(t *testing.T) {
	synth := &fakeSynthesizer{hypothesis: goodHypothesis()}
	stage := NewReasoningStage(synth, external.FallbackSynthesizer{}, nil, testLogger())

	state := simulatedState(0.5, 10)
	require.NoError(t, stage.Run(context.Background(), state))

	require.Len(t, state.Candidates, 1)
	c := state.Candidates[0]
	// 0.6*0.5 + min(0.4, 10/20)
	assert.InDelta(t, 0.7, c.OverallScore, 1e-9)
	assert.InDelta(t, 0.7, c.ConfidenceScore, 1e-9, "confidence never exceeds the overall score")
	assert.Equal(t, 10, c.EvidenceCount)
	assert.Equal(t, 1, c.PathCount)
	assert.Equal(t, []string{"AMPK signaling"}, c.KeyPathways)
	assert.Len(t, c.EvidenceIDs, 10)
	assert.NotEmpty(t, c.CitationIDs)
}

func TestReasoningFallbackCapsOverallScore(t *testing.T) {
	synth := &fakeSynthesizer{err: domain.NewError(domain.ErrContractViolation, "malformed response")}
	stage := NewReasoningStage(synth, external.FallbackSynthesizer{}, nil, testLogger())

	state := simulatedState(0.9, 20)
	require.NoError(t, stage.Run(context.Background(), state))

	require.Len(t, state.Candidates, 1)
	c := state.Candidates[0]
	assert.LessOrEqual(t, c.OverallScore, fallbackOverallCap)
	assert.LessOrEqual(t, c.ConfidenceScore, fallbackOverallCap)
	assert.NotEmpty(t, c.Hypothesis, "the fallback still produces a hypothesis")
	assert.Equal(t, 1, synth.calls)
}

func TestReasoningCapsOverallWithoutPaths(t *testing.T) {
	synth := &fakeSynthesizer{hypothesis: goodHypothesis()}
	stage := NewReasoningStage(synth, external.FallbackSynthesizer{}, nil, testLogger())

	state := simulatedState(0.9, 20)
	state.Simulation.ValidPaths = nil
	require.NoError(t, stage.Run(context.Background(), state))

	require.Len(t, state.Candidates, 1)
	assert.LessOrEqual(t, state.Candidates[0].OverallScore, fallbackOverallCap,
		"a hypothesis with no simulated path stays speculative")
}

func TestReasoningBlendsRelationScore(t *testing.T) {
	synth := &fakeSynthesizer{hypothesis: goodHypothesis()}
	scorer := &fakeScorer{relation: domain.RelationScores{
		DrugTarget: 0.6, TargetDisease: 0.5, DrugDisease: 0.4, Aggregate: 0.5,
	}}
	stage := NewReasoningStage(synth, external.FallbackSynthesizer{}, scorer, testLogger())

	state := simulatedState(0.9, 20)
	require.NoError(t, stage.Run(context.Background(), state))

	require.Len(t, state.Candidates, 1)
	assert.Equal(t, 1, scorer.relationCalls)
	// 0.7*0.8 + 0.3*0.5, under an overall of 0.94
	assert.InDelta(t, 0.71, state.Candidates[0].ConfidenceScore, 1e-9)
}

func TestReasoningKeepsConfidenceOnScorerOutage(t *testing.T) {
	synth := &fakeSynthesizer{hypothesis: goodHypothesis()}
	scorer := &fakeScorer{relationErr: errUpstream}
	stage := NewReasoningStage(synth, external.FallbackSynthesizer{}, scorer, testLogger())

	state := simulatedState(0.9, 20)
	require.NoError(t, stage.Run(context.Background(), state))

	require.Len(t, state.Candidates, 1)
	assert.InDelta(t, 0.8, state.Candidates[0].ConfidenceScore, 1e-9)
}

func TestReasoningWithoutPairYieldsEmptyCandidates(t *testing.T) {
	synth := &fakeSynthesizer{hypothesis: goodHypothesis()}
	stage := NewReasoningStage(synth, external.FallbackSynthesizer{}, nil, testLogger())

	state := simulatedState(0.5, 5)
	state.Query.Disease = ""
	require.NoError(t, stage.Run(context.Background(), state))

	require.NotNil(t, state.Candidates)
	assert.Empty(t, state.Candidates)
	assert.Zero(t, synth.calls)
	assert.NoError(t, stage.CheckOutput(state), "an empty candidate list satisfies the contract")
}

func TestReasoningInputContract(t *testing.T) {
	stage := NewReasoningStage(nil, external.FallbackSynthesizer{}, nil, testLogger())
	state := baseState()
	err := stage.CheckInput(state)
	require.Error(t, err)
	assert.Equal(t, domain.ErrStageInputMissing, domain.KindOf(err))
}

func TestNoveltyScoreDecreasesWithEvidence(t *testing.T) {
	assert.InDelta(t, 1.0, noveltyScore(0), 1e-9)
	assert.InDelta(t, 0.5, noveltyScore(10), 1e-9)
	assert.InDelta(t, 0.0, noveltyScore(20), 1e-9)
	assert.InDelta(t, 0.0, noveltyScore(40), 1e-9)
}
