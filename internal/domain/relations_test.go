package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectRelationPrefersSpecificVerbs(t *testing.T) {
	rel, ok := DetectRelation("AMPK phosphorylates and thereby activates ACC")
	require.True(t, ok)
	assert.Equal(t, RelationPhosphorylates, rel, "specific verbs win over generic ones")

	rel, ok = DetectRelation("Metformin suppresses hepatic gluconeogenesis")
	require.True(t, ok)
	assert.Equal(t, RelationInhibits, rel)

	_, ok = DetectRelation("Metformin was administered to all patients")
	assert.False(t, ok)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Metformin activates AMPK. AMPK inhibits mTOR! Does it treat cancer? Maybe.")
	assert.Equal(t, []string{
		"Metformin activates AMPK",
		"AMPK inhibits mTOR",
		"Does it treat cancer",
		"Maybe.",
	}, got)
}

func TestRelationStrengthOrdering(t *testing.T) {
	assert.Equal(t, 1.0, RelationStrength(RelationInhibits))
	assert.Greater(t, RelationStrength(RelationBinds), RelationStrength(RelationTreats))
	assert.Greater(t, RelationStrength(RelationTreats), RelationStrength(RelationAssociatesWith))
	assert.Equal(t, 0.5, RelationStrength(RelationType("frobnicates")))
}
