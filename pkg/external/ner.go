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

// NERClient calls a remote biomedical named-entity recognition service.
type NERClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewNERClient creates a remote NER client.
func NewNERClient(baseURL, apiKey string, timeout time.Duration) *NERClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &NERClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type nerRequest struct {
	Text string `json:"text"`
}

type nerResponse struct {
	Entities []struct {
		Name       string  `json:"name"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
}

// Extract sends text to the NER service and maps the response to domain
// entities. Responses with unrecognizable entity types are contract
// violations.
func (n *NERClient) Extract(ctx context.Context, text string) ([]domain.Entity, error) {
	payload, err := json.Marshal(nerRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal NER request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create NER request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call NER service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NER service returned status %d", resp.StatusCode)
	}

	var decoded nerResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, domain.WrapError(domain.ErrContractViolation, "failed to decode NER response", err)
	}

	entities := make([]domain.Entity, 0, len(decoded.Entities))
	for _, e := range decoded.Entities {
		t := domain.EntityType(e.Type)
		if !t.GraphStorable() {
			return nil, domain.NewError(domain.ErrContractViolation,
				fmt.Sprintf("NER service returned unknown entity type %q", e.Type))
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			return nil, domain.NewError(domain.ErrContractViolation,
				fmt.Sprintf("NER service returned confidence %f out of range", e.Confidence))
		}
		entities = append(entities, domain.Entity{
			ID:         domain.EntityID(t, e.Name),
			Name:       domain.DisplayName(t, e.Name),
			Type:       t,
			Confidence: e.Confidence,
			Source:     "ner",
		})
	}
	return entities, nil
}
