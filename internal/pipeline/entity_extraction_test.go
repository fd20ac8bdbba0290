package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomind-nexus-server/internal/domain"
)

func TestEntityExtractionParsesDrugAndDisease(t *testing.T) {
	remote := &fakeExtractor{entities: queryEntities()}
	fallback := &fakeExtractor{}
	stage := NewEntityExtractionStage(remote, fallback, testLogger())

	state := baseState()
	state.Query = domain.ParsedQuery{}
	require.NoError(t, stage.Run(context.Background(), state))

	assert.Equal(t, "Metformin", state.Query.Drug)
	assert.Equal(t, "Breast Cancer", state.Query.Disease)
	assert.Len(t, state.Entities, 3)
	assert.Equal(t, 1, fallback.calls, "patterns always run to supplement missed kinds")
}

func TestEntityExtractionFallsBackOnRemoteFailure(t *testing.T) {
	remote := &fakeExtractor{err: errUpstream}
	fallback := &fakeExtractor{entities: queryEntities()}
	stage := NewEntityExtractionStage(remote, fallback, testLogger())

	state := baseState()
	state.Query = domain.ParsedQuery{}
	require.NoError(t, stage.Run(context.Background(), state))

	assert.Equal(t, 1, remote.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, "Metformin", state.Query.Drug)
}

func TestEntityExtractionSupplementsMissedKinds(t *testing.T) {
	remote := &fakeExtractor{entities: []domain.Entity{
		{ID: "drug:metformin", Name: "Metformin", Type: domain.EntityDrug, Confidence: 0.9},
	}}
	fallback := &fakeExtractor{entities: []domain.Entity{
		{ID: "drug:aspirin", Name: "Aspirin", Type: domain.EntityDrug, Confidence: 0.7},
		{ID: "disease:breast_cancer", Name: "Breast Cancer", Type: domain.EntityDisease, Confidence: 0.7},
	}}
	stage := NewEntityExtractionStage(remote, fallback, testLogger())

	state := baseState()
	state.Query = domain.ParsedQuery{}
	require.NoError(t, stage.Run(context.Background(), state))

	assert.Equal(t, "Metformin", state.Query.Drug, "the remote drug wins over the pattern drug")
	assert.Equal(t, "Breast Cancer", state.Query.Disease, "patterns fill the kind the remote missed")
	assert.Len(t, state.Entities, 2)
}

func TestEntityExtractionDegradesWithoutFullPair(t *testing.T) {
	onlyDrug := []domain.Entity{
		{ID: "drug:metformin", Name: "Metformin", Type: domain.EntityDrug, Confidence: 0.9},
	}
	stage := NewEntityExtractionStage(nil, &fakeExtractor{entities: onlyDrug}, testLogger())

	state := baseState()
	state.Query = domain.ParsedQuery{}
	require.NoError(t, stage.Run(context.Background(), state),
		"a query without both halves of the pair is degraded, not rejected")

	assert.Equal(t, "Metformin", state.Query.Drug)
	assert.Empty(t, state.Query.Disease)
	assert.NotNil(t, state.Entities)
}

func TestEntityExtractionInputContract(t *testing.T) {
	stage := NewEntityExtractionStage(nil, &fakeExtractor{}, testLogger())
	state := baseState()
	state.Request.Query = ""
	err := stage.CheckInput(state)
	require.Error(t, err)
	assert.Equal(t, domain.ErrStageInputMissing, domain.KindOf(err))
}
