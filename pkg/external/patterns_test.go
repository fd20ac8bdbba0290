package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomind-nexus-server/internal/domain"
)

func findEntity(entities []domain.Entity, name string, t domain.EntityType) *domain.Entity {
	for i := range entities {
		if entities[i].Name == name && entities[i].Type == t {
			return &entities[i]
		}
	}
	return nil
}

func TestPatternExtractorKnownDrugAndDisease(t *testing.T) {
	p := NewPatternExtractor()
	entities, err := p.Extract(context.Background(), "Can metformin treat breast cancer?")
	require.NoError(t, err)

	drug := findEntity(entities, "Metformin", domain.EntityDrug)
	require.NotNil(t, drug, "expected metformin to be extracted")
	assert.InDelta(t, 0.7, drug.Confidence, 1e-9)

	disease := findEntity(entities, "Breast Cancer", domain.EntityDisease)
	require.NotNil(t, disease, "expected breast cancer to be extracted")
}

func TestPatternExtractorDrugSuffix(t *testing.T) {
	p := NewPatternExtractor()
	entities, err := p.Extract(context.Background(), "Does Trastuzumab help in nephritis?")
	require.NoError(t, err)

	assert.NotNil(t, findEntity(entities, "Trastuzumab", domain.EntityDrug))
	assert.NotNil(t, findEntity(entities, "Nephritis", domain.EntityDisease))
}

func TestPatternExtractorGenes(t *testing.T) {
	p := NewPatternExtractor()
	entities, err := p.Extract(context.Background(), "metformin activates AMPK and inhibits mTOR signaling")
	require.NoError(t, err)

	ampk := findEntity(entities, "AMPK", domain.EntityGene)
	require.NotNil(t, ampk)
	assert.InDelta(t, 0.6, ampk.Confidence, 1e-9)
	assert.NotNil(t, findEntity(entities, "MTOR", domain.EntityGene))
}

func TestPatternExtractorSkipsStopwords(t *testing.T) {
	p := NewPatternExtractor()
	entities, err := p.Extract(context.Background(), "CAN THE FOR AND")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestPatternExtractorDeduplicates(t *testing.T) {
	p := NewPatternExtractor()
	entities, err := p.Extract(context.Background(), "metformin and metformin again with Metformin")
	require.NoError(t, err)

	count := 0
	for _, e := range entities {
		if e.Type == domain.EntityDrug {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
