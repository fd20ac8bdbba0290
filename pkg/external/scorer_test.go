package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomind-nexus-server/internal/domain"
)

func newTestScorer(t *testing.T, handler http.HandlerFunc) *ScorerClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewScorerClient(server.URL, "test-key", 0)
}

func TestScoreEvidence(t *testing.T) {
	var got scoreRequest
	client := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/score", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"score": 0.82}`))
	})

	score, err := client.ScoreEvidence(context.Background(),
		"Metformin activates AMPK.", "Metformin may slow tumor growth")
	require.NoError(t, err)
	assert.InDelta(t, 0.82, score, 1e-9)
	assert.Equal(t, "Metformin activates AMPK.", got.Statement)
}

func TestScoreEvidenceOutOfRange(t *testing.T) {
	client := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"score": 1.7}`))
	})

	_, err := client.ScoreEvidence(context.Background(), "s", "h")
	require.Error(t, err)
	assert.Equal(t, domain.ErrContractViolation, domain.KindOf(err))
}

func TestScoreRelation(t *testing.T) {
	var got relationScoreRequest
	client := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/score/relation", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"drug_target": 0.9, "target_disease": 0.7, "drug_disease": 0.4, "aggregate": 0.65}`))
	})

	scores, err := client.ScoreRelation(context.Background(), "Metformin", "AMPK", "Breast Cancer")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, scores.DrugTarget, 1e-9)
	assert.InDelta(t, 0.65, scores.Aggregate, 1e-9)
	assert.Equal(t, "AMPK", got.Target)
}

func TestScoreRelationOutOfRange(t *testing.T) {
	client := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"drug_target": 0.9, "target_disease": 0.7, "drug_disease": -0.1, "aggregate": 0.65}`))
	})

	_, err := client.ScoreRelation(context.Background(), "Metformin", "AMPK", "Breast Cancer")
	require.Error(t, err)
	assert.Equal(t, domain.ErrContractViolation, domain.KindOf(err))
}

func TestScoreRelationServerError(t *testing.T) {
	client := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ScoreRelation(context.Background(), "Metformin", "AMPK", "Breast Cancer")
	assert.Error(t, err)
}
