package domain

import (
	"strings"
	"time"
)

// Request bounds and defaults.
const (
	QueryMinLength       = 3
	QueryMaxLength       = 1000
	MaxCandidatesLimit   = 50
	DefaultMaxCandidates = 10
	DefaultMinConfidence = 0.5
)

// QueryRequest is the body of POST /api/v1/query. Drug and Disease are
// optional structured hints; when absent the pair is guessed from the query
// text for graph pre-loading, and the extraction stage remains authoritative.
type QueryRequest struct {
	Query               string  `json:"query"`
	Drug                string  `json:"drug,omitempty"`
	Disease             string  `json:"disease,omitempty"`
	MaxCandidates       int     `json:"max_candidates"`
	MinConfidence       float64 `json:"min_confidence"`
	IncludeExperimental bool    `json:"include_experimental"`
	UserID              string  `json:"user_id,omitempty"`
}

// ApplyDefaults fills unset fields with their documented defaults.
func (r *QueryRequest) ApplyDefaults() {
	if r.MaxCandidates == 0 {
		r.MaxCandidates = DefaultMaxCandidates
	}
	if r.MinConfidence == 0 {
		r.MinConfidence = DefaultMinConfidence
	}
	if r.UserID == "" {
		r.UserID = "anonymous"
	}
}

// Validate checks request bounds. Callers should ApplyDefaults first.
func (r *QueryRequest) Validate() error {
	q := strings.TrimSpace(r.Query)
	if len(q) < QueryMinLength {
		return NewError(ErrInputInvalid, "query must be at least 3 characters")
	}
	if len(q) > QueryMaxLength {
		return NewError(ErrInputInvalid, "query must be at most 1000 characters")
	}
	if r.MaxCandidates < 1 || r.MaxCandidates > MaxCandidatesLimit {
		return NewError(ErrInputInvalid, "max_candidates must be between 1 and 50")
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return NewError(ErrInputInvalid, "min_confidence must be between 0 and 1")
	}
	return nil
}

// CandidateView is the truncated candidate projection returned to clients.
type CandidateView struct {
	Rank             int          `json:"rank"`
	DrugName         string       `json:"drug_name"`
	DiseaseName      string       `json:"disease_name"`
	Hypothesis       string       `json:"hypothesis"`
	MechanismSummary string       `json:"mechanism_summary"`
	CompositeScore   float64      `json:"composite_score"`
	ConfidenceScore  float64      `json:"confidence_score"`
	EvidenceCount    int          `json:"evidence_count"`
	PathCount        int          `json:"path_count"`
	CitationIDs      []string     `json:"citation_ids,omitempty"`
	KeyPathways      []string     `json:"key_pathways,omitempty"`
	SafetyFlags      []SafetyFlag `json:"safety_flags,omitempty"`
}

// Query completion statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// SafetySummary condenses the verdict for clients.
type SafetySummary struct {
	Passed        bool     `json:"passed"`
	FlagCount     int      `json:"flag_count"`
	CriticalCount int      `json:"critical_count"`
	Warnings      []string `json:"warnings,omitempty"`
}

// QueryResponse is the body returned by POST /api/v1/query. Failed and
// cancelled workflows return the same shape with whatever the completed
// stages produced.
type QueryResponse struct {
	QueryID        string          `json:"query_id"`
	Status         string          `json:"status"`
	Approved       bool            `json:"approved"`
	Entities       []Entity        `json:"entities,omitempty"`
	Candidates     []CandidateView `json:"candidates"`
	SafetyFlags    []SafetyFlag    `json:"safety_flags,omitempty"`
	Safety         *SafetySummary  `json:"safety,omitempty"`
	Citations      []Citation      `json:"citations,omitempty"`
	EvidenceItems  int             `json:"evidence_items"`
	Errors         []string        `json:"errors,omitempty"`
	StageHistory   []StageRecord   `json:"stage_history"`
	StepsCompleted int             `json:"steps_completed"`
	ProcessingTime string          `json:"processing_time"`
	Timestamp      time.Time       `json:"timestamp"`
}

// GraphProjection is the body of GET /reports/:id/graph.
type GraphProjection struct {
	Nodes []GraphNode      `json:"nodes"`
	Edges []ProjectionEdge `json:"edges"`
	Stats map[string]int   `json:"stats"`
}

// ProjectionEdge is one edge of a report graph projection.
type ProjectionEdge struct {
	Source   string       `json:"source"`
	Target   string       `json:"target"`
	Relation RelationType `json:"relation"`
}
