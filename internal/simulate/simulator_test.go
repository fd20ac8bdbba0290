package simulate

import (
	"io"
	"math"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomind-nexus-server/internal/domain"
)

func testSimulator() *Simulator {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewSimulator(log)
}

func edge(srcName string, srcType domain.EntityType, dstName string, dstType domain.EntityType, rel domain.RelationType, conf float64) domain.Edge {
	return domain.Edge{
		Source: domain.EntityID(srcType, srcName), SourceName: srcName, SourceType: srcType,
		Target: domain.EntityID(dstType, dstName), TargetName: dstName, TargetType: dstType,
		Relation: rel, Confidence: conf,
	}
}

func metforminGraph() []domain.Edge {
	return []domain.Edge{
		edge("Metformin", domain.EntityDrug, "AMPK", domain.EntityGene, domain.RelationActivates, 0.9),
		edge("AMPK", domain.EntityGene, "mTOR", domain.EntityGene, domain.RelationInhibits, 0.85),
		edge("mTOR", domain.EntityGene, "Breast Cancer", domain.EntityDisease, domain.RelationAssociatesWith, 0.7),
	}
}

func pathByLength(paths []domain.PathwayPath, nodes int) *domain.PathwayPath {
	for i := range paths {
		if len(paths[i].Nodes) == nodes {
			return &paths[i]
		}
	}
	return nil
}

func TestRunFindsKnownPath(t *testing.T) {
	s := testSimulator()
	result := s.Run(Input{
		Drug:    "Metformin",
		Disease: "Breast Cancer",
		Edges:   metforminGraph(),
	})

	require.NotEmpty(t, result.ValidPaths)
	assert.False(t, result.UsedFallback)

	mech := pathByLength(result.ValidPaths, 4)
	require.NotNil(t, mech, "the three-hop mechanistic route must be found")
	assert.Equal(t, "Metformin activates AMPK, which inhibits mTOR, which is associated with Breast Cancer.", mech.Rationale)

	wantBase := 0.9 * 0.85 * 0.7
	assert.InDelta(t, wantBase, mech.BaseConfidence, 1e-9)
	assert.InDelta(t, math.Pow(0.85, 2), mech.LengthPenalty, 1e-9)
	assert.InDelta(t, wantBase*math.Pow(0.85, 2), mech.Confidence, 1e-9)
	assert.Greater(t, result.Plausibility, 0.0)
}

func TestRunAlwaysOffersDirectAssumptionRoute(t *testing.T) {
	s := testSimulator()
	result := s.Run(Input{
		Drug:    "Metformin",
		Disease: "Breast Cancer",
		Edges:   metforminGraph(),
	})

	direct := pathByLength(result.ValidPaths, 2)
	require.NotNil(t, direct, "the direct assumption edge is always in the graph")
	assert.InDelta(t, 0.4, direct.Confidence, 1e-9)
	assert.Equal(t, "Metformin treats Breast Cancer.", direct.Rationale)
	assert.False(t, result.UsedFallback, "assumption edges alone do not mean fallback")
}

func TestRunIsDeterministic(t *testing.T) {
	s := testSimulator()
	edges := append(metforminGraph(),
		edge("Metformin", domain.EntityDrug, "PRKA", domain.EntityGene, domain.RelationBinds, 0.8),
		edge("PRKA", domain.EntityGene, "Breast Cancer", domain.EntityDisease, domain.RelationAssociatesWith, 0.75),
	)

	input := Input{Drug: "Metformin", Disease: "Breast Cancer", Edges: edges}
	first := s.Run(input)
	for i := 0; i < 5; i++ {
		// Shuffle-resistant: feed the edges in a different order.
		reversed := make([]domain.Edge, len(edges))
		for j, e := range edges {
			reversed[len(edges)-1-j] = e
		}
		again := s.Run(Input{Drug: "Metformin", Disease: "Breast Cancer", Edges: reversed})
		require.True(t, reflect.DeepEqual(first.ValidPaths, again.ValidPaths),
			"path output must not depend on edge input order")
		assert.Equal(t, first.Plausibility, again.Plausibility)
	}
}

func TestRunUnknownDrugUsesFallback(t *testing.T) {
	s := testSimulator()
	result := s.Run(Input{
		Drug:    "Obscuramab",
		Disease: "Nephritis",
		Edges:   metforminGraph(),
		Entities: []domain.Entity{
			{ID: "gene:tnf", Name: "TNF", Type: domain.EntityGene},
		},
	})

	assert.True(t, result.UsedFallback)
	require.NotEmpty(t, result.ValidPaths)

	direct := pathByLength(result.ValidPaths, 2)
	require.NotNil(t, direct)
	assert.InDelta(t, 0.4, direct.Confidence, 1e-9)

	// Obscuramab modulates TNF (0.6), TNF is associated with Nephritis (0.5).
	mediated := pathByLength(result.ValidPaths, 3)
	require.NotNil(t, mediated)
	assert.InDelta(t, 0.6*0.5*0.85, mediated.Confidence, 1e-9)
	assert.Contains(t, result.Explanation, "canonical pharmacological assumptions")
}

func TestRunRejectsPathBelowThreshold(t *testing.T) {
	s := testSimulator()
	result := s.Run(Input{
		Drug:    "Metformin",
		Disease: "Breast Cancer",
		Edges: []domain.Edge{
			edge("Metformin", domain.EntityDrug, "X1", domain.EntityGene, domain.RelationUnknown, 0.3),
			edge("X1", domain.EntityGene, "Breast Cancer", domain.EntityDisease, domain.RelationUnknown, 0.3),
		},
	})

	// 0.3 * 0.3 * 0.85 falls below the 0.15 acceptance threshold; only the
	// direct assumption route survives.
	require.Len(t, result.ValidPaths, 1)
	assert.Len(t, result.ValidPaths[0].Nodes, 2)

	require.NotEmpty(t, result.RejectedPaths)
	rejected := result.RejectedPaths[0]
	assert.Contains(t, rejected.Reason, "below the 0.15 acceptance threshold")
	assert.Contains(t, rejected.Description, "X1")
	assert.InDelta(t, 0.3*0.3*0.85, rejected.Confidence, 1e-9)
}

func TestRunWithoutDrugRecordsRejection(t *testing.T) {
	s := testSimulator()
	result := s.Run(Input{Disease: "Nephritis"})

	assert.Empty(t, result.ValidPaths)
	assert.Zero(t, result.Plausibility)
	require.Len(t, result.RejectedPaths, 1)
	assert.Contains(t, result.RejectedPaths[0].Reason, "drug entity")
}

func TestRunWithoutDiseaseRecordsRejection(t *testing.T) {
	s := testSimulator()
	result := s.Run(Input{Drug: "Metformin"})

	assert.Empty(t, result.ValidPaths)
	require.Len(t, result.RejectedPaths, 1)
	assert.Contains(t, result.RejectedPaths[0].Reason, "disease entity")
}

func TestRunRespectsDepthLimit(t *testing.T) {
	s := testSimulator()
	// A 7-hop chain: too deep to reach the disease through the graph.
	names := []string{"Metformin", "A1", "B2", "C3", "D4", "E5", "F6", "Deepitis"}
	var edges []domain.Edge
	for i := 0; i+1 < len(names); i++ {
		srcType, dstType := domain.EntityGene, domain.EntityGene
		if i == 0 {
			srcType = domain.EntityDrug
		}
		if i+2 == len(names) {
			dstType = domain.EntityDisease
		}
		edges = append(edges, edge(names[i], srcType, names[i+1], dstType, domain.RelationActivates, 0.99))
	}

	result := s.Run(Input{Drug: "Metformin", Disease: "Deepitis", Edges: edges})
	for _, p := range result.ValidPaths {
		assert.LessOrEqual(t, len(p.Nodes), maxPathDepth+1)
	}
	assert.Nil(t, pathByLength(result.ValidPaths, len(names)), "the deep chain must not be walked to the end")
}

func TestEvidenceEdgesExtendTheGraph(t *testing.T) {
	s := testSimulator()
	result := s.Run(Input{
		Drug:    "Metformin",
		Disease: "Breast Cancer",
		Entities: []domain.Entity{
			{ID: "gene:stat3", Name: "STAT3", Type: domain.EntityGene},
		},
		Evidence: []domain.Evidence{{
			ID: "lit_1", SourceID: "1", Confidence: 0.9,
			Statement: "Metformin inhibits STAT3 signaling in tumor cells.",
			Entities:  []string{"Metformin", "STAT3"},
		}},
	})

	assert.False(t, result.UsedFallback, "evidence edges count as graph presence")
	mediated := pathByLength(result.ValidPaths, 3)
	require.NotNil(t, mediated)
	assert.Equal(t, domain.RelationInhibits, mediated.Relations[0])
}

func TestEvidenceSupportBoostsConfidence(t *testing.T) {
	s := testSimulator()
	withoutEvidence := s.Run(Input{
		Drug: "Metformin", Disease: "Breast Cancer", Edges: metforminGraph(),
	})
	withEvidence := s.Run(Input{
		Drug: "Metformin", Disease: "Breast Cancer", Edges: metforminGraph(),
		Evidence: []domain.Evidence{{
			ID: "lit_1", Statement: "Metformin activates AMPK", Confidence: 0.9,
			Entities: []string{"Metformin", "AMPK"},
		}},
	})

	require.NotEmpty(t, withoutEvidence.ValidPaths)
	require.NotEmpty(t, withEvidence.ValidPaths)
	assert.Greater(t, withEvidence.ValidPaths[0].Confidence, withoutEvidence.ValidPaths[0].Confidence)

	boosted := pathByLength(withEvidence.ValidPaths, 4)
	require.NotNil(t, boosted)
	assert.Greater(t, boosted.EvidenceSupport, 0.0)
}

func TestPlausibilityIsMeanOfTopThree(t *testing.T) {
	paths := []domain.PathwayPath{
		{Confidence: 0.9}, {Confidence: 0.6}, {Confidence: 0.3}, {Confidence: 0.1},
	}
	assert.InDelta(t, (0.9+0.6+0.3)/3, plausibility(paths), 1e-9)
	assert.InDelta(t, 0.9, plausibility(paths[:1]), 1e-9)
	assert.Zero(t, plausibility(nil))
}

func TestConfidenceNeverExceedsOne(t *testing.T) {
	s := testSimulator()
	result := s.Run(Input{
		Drug: "Metformin", Disease: "Cancer",
		Edges: []domain.Edge{
			edge("Metformin", domain.EntityDrug, "Cancer", domain.EntityDisease, domain.RelationInhibits, 1.0),
		},
		Evidence: []domain.Evidence{
			{Confidence: 1.0, Entities: []string{"Metformin", "Cancer"}},
			{Confidence: 1.0, Entities: []string{"Metformin", "Cancer"}},
		},
	})
	require.NotEmpty(t, result.ValidPaths)
	assert.LessOrEqual(t, result.ValidPaths[0].Confidence, 1.0)
}
