package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/biomind-nexus-server/internal/domain"
)

// ScorerClient calls the evidence relevance-scoring service.
type ScorerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewScorerClient creates a relevance scorer client.
func NewScorerClient(baseURL, apiKey string, timeout time.Duration) *ScorerClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ScorerClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type scoreRequest struct {
	Statement  string `json:"statement"`
	Hypothesis string `json:"hypothesis"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

// ScoreEvidence scores a statement against a hypothesis, in [0, 1].
func (s *ScorerClient) ScoreEvidence(ctx context.Context, statement, hypothesis string) (float64, error) {
	payload, err := json.Marshal(scoreRequest{Statement: statement, Hypothesis: hypothesis})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/score", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scorer returned status %d", resp.StatusCode)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, domain.WrapError(domain.ErrContractViolation, "failed to decode scorer response", err)
	}
	if decoded.Score < 0 || decoded.Score > 1 {
		return 0, domain.NewError(domain.ErrContractViolation,
			fmt.Sprintf("scorer returned %f out of range", decoded.Score))
	}
	return decoded.Score, nil
}

type relationScoreRequest struct {
	Drug    string `json:"drug"`
	Target  string `json:"target"`
	Disease string `json:"disease"`
}

// ScoreRelation scores the mechanistic triple drug -> target -> disease.
// Every component must be in [0, 1].
func (s *ScorerClient) ScoreRelation(ctx context.Context, drug, target, disease string) (domain.RelationScores, error) {
	payload, err := json.Marshal(relationScoreRequest{Drug: drug, Target: target, Disease: disease})
	if err != nil {
		return domain.RelationScores{}, fmt.Errorf("failed to marshal relation score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/score/relation", bytes.NewReader(payload))
	if err != nil {
		return domain.RelationScores{}, fmt.Errorf("failed to create relation score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.RelationScores{}, fmt.Errorf("failed to call scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.RelationScores{}, fmt.Errorf("scorer returned status %d", resp.StatusCode)
	}

	var decoded domain.RelationScores
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.RelationScores{}, domain.WrapError(domain.ErrContractViolation, "failed to decode relation score response", err)
	}
	for _, score := range []float64{decoded.DrugTarget, decoded.TargetDisease, decoded.DrugDisease, decoded.Aggregate} {
		if score < 0 || score > 1 {
			return domain.RelationScores{}, domain.NewError(domain.ErrContractViolation,
				fmt.Sprintf("scorer returned %f out of range", score))
		}
	}
	return decoded, nil
}
