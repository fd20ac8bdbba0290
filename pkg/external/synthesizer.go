package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/biomind-nexus-server/internal/domain"
)

// SynthesizerClient calls the hypothesis-generation service. The service
// returns a JSON object {hypothesis, mechanism_summary, confidence,
// key_pathways}; anything else is an external contract violation.
type SynthesizerClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	cache      *CacheClient
}

// SynthesizerOptions configures the client.
type SynthesizerOptions struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Cache   *CacheClient
}

// NewSynthesizerClient creates a hypothesis synthesizer client.
func NewSynthesizerClient(opts SynthesizerOptions) *SynthesizerClient {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &SynthesizerClient{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		model:   opts.Model,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		cache: opts.Cache,
	}
}

type synthesisRequest struct {
	Model        string   `json:"model,omitempty"`
	Drug         string   `json:"drug"`
	Disease      string   `json:"disease"`
	Plausibility float64  `json:"plausibility"`
	Paths        []string `json:"paths"`
	Evidence     []string `json:"evidence"`
}

// Synthesize calls the service and validates the response contract.
func (s *SynthesizerClient) Synthesize(ctx context.Context, input domain.SynthesisInput) (*domain.Hypothesis, error) {
	if s.cache != nil {
		if h, found, _ := s.cache.GetHypothesis(ctx, input); found {
			return h, nil
		}
	}

	reqBody := synthesisRequest{
		Model:        s.model,
		Drug:         input.Drug,
		Disease:      input.Disease,
		Plausibility: input.Plausibility,
	}
	for _, p := range input.Paths {
		reqBody.Paths = append(reqBody.Paths, p.Rationale)
	}
	for _, e := range input.Evidence {
		reqBody.Evidence = append(reqBody.Evidence, e.Statement)
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call synthesizer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesizer returned status %d", resp.StatusCode)
	}

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read synthesizer response: %w", err)
	}

	hypothesis, err := ParseHypothesis(raw.String())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetHypothesis(ctx, input, hypothesis, 0)
	}
	return hypothesis, nil
}

// ParseHypothesis decodes and validates a synthesizer response body. Some
// backends wrap the JSON in markdown code fences; those are stripped first.
func ParseHypothesis(body string) (*domain.Hypothesis, error) {
	cleaned := StripCodeFences(body)

	var h domain.Hypothesis
	if err := json.Unmarshal([]byte(cleaned), &h); err != nil {
		return nil, domain.WrapError(domain.ErrContractViolation, "synthesizer returned malformed JSON", err)
	}
	if strings.TrimSpace(h.Hypothesis) == "" {
		return nil, domain.NewError(domain.ErrContractViolation, "synthesizer returned empty hypothesis")
	}
	if h.Confidence < 0 || h.Confidence > 1 {
		return nil, domain.NewError(domain.ErrContractViolation,
			fmt.Sprintf("synthesizer confidence %f out of range", h.Confidence))
	}
	return &h, nil
}

// StripCodeFences removes a surrounding ```json ... ``` block when present.
func StripCodeFences(body string) string {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}

// FallbackSynthesizer produces a canned low-confidence hypothesis when the
// remote synthesizer cannot be used. Its confidence never exceeds 0.3.
type FallbackSynthesizer struct{}

// Synthesize builds the canned hypothesis.
func (FallbackSynthesizer) Synthesize(ctx context.Context, input domain.SynthesisInput) (*domain.Hypothesis, error) {
	mechanism := "Mechanism could not be synthesized from available pathway data."
	if len(input.Paths) > 0 {
		mechanism = input.Paths[0].Rationale
	}
	return &domain.Hypothesis{
		Hypothesis: fmt.Sprintf(
			"%s may have repurposing potential for %s based on pathway analysis; supporting evidence is limited.",
			input.Drug, input.Disease),
		MechanismSummary: mechanism,
		Confidence:       0.3,
		KeyPathways:      nil,
	}, nil
}
