package domain

import "context"

// GraphRepository is the knowledge-graph access contract. Implementations
// build parameterized queries; node labels and relation types are validated
// against the domain whitelists before any query text is assembled.
type GraphRepository interface {
	// LoadQueryContext loads the graph slice relevant to a drug/disease pair.
	LoadQueryContext(ctx context.Context, drug, disease string) (*GraphContext, error)

	// UpsertEntity merges an entity node into the graph.
	UpsertEntity(ctx context.Context, entity Entity) error

	// UpsertRelation merges an edge. Confidence takes the max of old and
	// new; citation provenance is unioned.
	UpsertRelation(ctx context.Context, edge Edge) error

	// EdgeCount reports the number of pathway edges available for the pair.
	EdgeCount(ctx context.Context, drug, disease string) (int, error)
}

// AuditStore persists audit events. Append is at-least-once; Chain returns
// a partition's events in append order.
type AuditStore interface {
	Append(ctx context.Context, event *AuditEvent) error
	Chain(ctx context.Context, partitionDate string) ([]AuditEvent, error)
}

// LiteratureClient talks to the literature service (PubMed E-utilities).
type LiteratureClient interface {
	Search(ctx context.Context, term string, max int) ([]string, error)
	Fetch(ctx context.Context, pmids []string) ([]Citation, error)
}

// EntityExtractor resolves biomedical entities from free text.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

// SynthesisInput is the prompt material for hypothesis generation.
type SynthesisInput struct {
	Drug         string
	Disease      string
	Paths        []PathwayPath
	Evidence     []Evidence
	Plausibility float64
}

// Hypothesis is the synthesizer's structured answer.
type Hypothesis struct {
	Hypothesis       string   `json:"hypothesis"`
	MechanismSummary string   `json:"mechanism_summary"`
	Confidence       float64  `json:"confidence"`
	KeyPathways      []string `json:"key_pathways"`
}

// HypothesisSynthesizer turns simulation output into a mechanistic
// hypothesis. Responses that do not honor the JSON contract surface as
// external_contract_violation errors.
type HypothesisSynthesizer interface {
	Synthesize(ctx context.Context, input SynthesisInput) (*Hypothesis, error)
}

// RelationScores are the per-link relevance judgments for a mechanistic
// triple. Aggregate is the scorer's overall confidence in the mechanism.
type RelationScores struct {
	DrugTarget    float64 `json:"drug_target"`
	TargetDisease float64 `json:"target_disease"`
	DrugDisease   float64 `json:"drug_disease"`
	Aggregate     float64 `json:"aggregate"`
}

// RelevanceScorer scores evidence statements and mechanistic relations
// against a hypothesis.
type RelevanceScorer interface {
	ScoreEvidence(ctx context.Context, statement, hypothesis string) (float64, error)
	ScoreRelation(ctx context.Context, drug, target, disease string) (RelationScores, error)
}

// AuditLogger is the write-side audit contract used by the pipeline.
// Implementations never fail the caller: on primary-store trouble events
// spill to the fallback sink.
type AuditLogger interface {
	Log(ctx context.Context, eventType, userID, requestID, action, resource string, details map[string]string)
}
