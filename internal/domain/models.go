package domain

import (
	"strings"
	"time"
)

// EntityType identifies the biomedical category of an extracted entity.
type EntityType string

const (
	EntityDrug      EntityType = "drug"
	EntityDisease   EntityType = "disease"
	EntityGene      EntityType = "gene"
	EntityProtein   EntityType = "protein"
	EntityPathway   EntityType = "pathway"
	EntityPhenotype EntityType = "phenotype"
)

// GraphStorable reports whether entities of this type may be written to the
// knowledge graph. Free-text mention kinds are rejected at the graph boundary.
func (t EntityType) GraphStorable() bool {
	switch t {
	case EntityDrug, EntityDisease, EntityGene, EntityProtein, EntityPathway, EntityPhenotype:
		return true
	}
	return false
}

// GraphLabel returns the node label used in the knowledge graph.
func (t EntityType) GraphLabel() string {
	if len(t) == 0 {
		return ""
	}
	return strings.ToUpper(string(t[0])) + string(t[1:])
}

// RelationType identifies the kind of biological relationship on an edge.
type RelationType string

const (
	RelationInhibits       RelationType = "inhibits"
	RelationActivates      RelationType = "activates"
	RelationBinds          RelationType = "binds"
	RelationModulates      RelationType = "modulates"
	RelationUpregulates    RelationType = "upregulates"
	RelationDownregulates  RelationType = "downregulates"
	RelationPhosphorylates RelationType = "phosphorylates"
	RelationCatalyzes      RelationType = "catalyzes"
	RelationTransports     RelationType = "transports"
	RelationRegulates      RelationType = "regulates"
	RelationAssociatesWith RelationType = "associates_with"
	RelationTreats         RelationType = "treats"
	RelationCauses         RelationType = "causes"
	RelationPrevents       RelationType = "prevents"
	RelationUnknown        RelationType = "unknown"
)

// KnownRelations lists every relation the system understands, in a fixed order.
var KnownRelations = []RelationType{
	RelationInhibits, RelationActivates, RelationBinds, RelationModulates,
	RelationUpregulates, RelationDownregulates, RelationPhosphorylates,
	RelationCatalyzes, RelationTransports, RelationRegulates,
	RelationAssociatesWith, RelationTreats, RelationCauses, RelationPrevents,
	RelationUnknown,
}

// Valid reports whether the relation is one of the known relation types.
func (r RelationType) Valid() bool {
	for _, k := range KnownRelations {
		if r == k {
			return true
		}
	}
	return false
}

// ExtractionMethod records which extraction path produced an entity or edge.
// Methods form an authority order; merges keep the higher-authority method.
type ExtractionMethod string

const (
	MethodPattern  ExtractionMethod = "pattern"
	MethodNERRegex ExtractionMethod = "ner+regex"
	MethodNER      ExtractionMethod = "ner_model"
	MethodScorer   ExtractionMethod = "scorer_model"
	MethodCurated  ExtractionMethod = "curated"
)

// Rank orders extraction methods by authority. Unknown methods rank lowest.
func (m ExtractionMethod) Rank() int {
	switch m {
	case MethodPattern:
		return 1
	case MethodNERRegex, MethodNER:
		return 2
	case MethodScorer:
		return 3
	case MethodCurated:
		return 4
	}
	return 0
}

// Entity is a biomedical entity extracted from a query or from literature.
type Entity struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       EntityType        `json:"type"`
	Confidence float64           `json:"confidence"`
	Source     string            `json:"source,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Edge is a directed, typed relationship between two entities.
type Edge struct {
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	SourceName string            `json:"source_name"`
	TargetName string            `json:"target_name"`
	SourceType EntityType        `json:"source_type"`
	TargetType EntityType        `json:"target_type"`
	Relation   RelationType      `json:"relation"`
	Confidence float64           `json:"confidence"`
	Provenance []string          `json:"provenance,omitempty"`
	Method     ExtractionMethod  `json:"method,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Citation is a literature record returned by the literature client.
type Citation struct {
	PMID     string `json:"pmid"`
	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty"`
	Journal  string `json:"journal,omitempty"`
	Year     int    `json:"year,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Evidence is a scored statement tying a citation to the query entities.
type Evidence struct {
	ID         string   `json:"id"`
	Statement  string   `json:"statement"`
	SourceID   string   `json:"source_id"`
	Confidence float64  `json:"confidence"`
	Entities   []string `json:"entities,omitempty"`
}

// PathNode is a single node on a mechanistic path.
type PathNode struct {
	Name string     `json:"name"`
	Type EntityType `json:"type"`
}

// PathwayPath is a scored mechanistic route from drug to disease.
type PathwayPath struct {
	Nodes           []PathNode     `json:"nodes"`
	Relations       []RelationType `json:"relations"`
	BaseConfidence  float64        `json:"base_confidence"`
	LengthPenalty   float64        `json:"length_penalty"`
	EvidenceSupport float64        `json:"evidence_support"`
	Confidence      float64        `json:"confidence"`
	Rationale       string         `json:"rationale"`
}

// Len returns the number of edges on the path.
func (p *PathwayPath) Len() int {
	if len(p.Nodes) == 0 {
		return 0
	}
	return len(p.Nodes) - 1
}

// RejectedPath records a route the simulator found but scored below the
// acceptance threshold, or could not attempt at all.
type RejectedPath struct {
	Description string  `json:"description"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
}

// SimulationResult is the output of the pathway simulation stage.
type SimulationResult struct {
	ValidPaths    []PathwayPath  `json:"valid_paths"`
	RejectedPaths []RejectedPath `json:"rejected_paths,omitempty"`
	Plausibility  float64        `json:"plausibility"`
	Explanation   string         `json:"explanation"`
	UsedFallback  bool           `json:"used_fallback"`
}

// Candidate is a ranked repurposing hypothesis.
type Candidate struct {
	Rank              int           `json:"rank"`
	DrugName          string        `json:"drug_name"`
	DiseaseName       string        `json:"disease_name"`
	Hypothesis        string        `json:"hypothesis"`
	MechanismSummary  string        `json:"mechanism_summary"`
	PlausibilityScore float64       `json:"plausibility_score"`
	EvidenceCount     int           `json:"evidence_count"`
	PathCount         int           `json:"path_count"`
	NoveltyScore      float64       `json:"novelty_score"`
	ConfidenceScore   float64       `json:"confidence_score"`
	OverallScore      float64       `json:"overall_score"`
	CompositeScore    float64       `json:"composite_score"`
	Paths             []PathwayPath `json:"paths,omitempty"`
	EvidenceIDs       []string      `json:"evidence_ids,omitempty"`
	CitationIDs       []string      `json:"citation_ids,omitempty"`
	KeyPathways       []string      `json:"key_pathways,omitempty"`
}

// FlagSeverity grades a safety flag.
type FlagSeverity string

const (
	SeverityInfo     FlagSeverity = "info"
	SeverityWarning  FlagSeverity = "warning"
	SeverityCritical FlagSeverity = "critical"
)

// SafetyFlag is a single finding from the safety stage. CandidateRank 0
// marks a global flag not tied to any candidate.
type SafetyFlag struct {
	Severity      FlagSeverity `json:"severity"`
	Code          string       `json:"code"`
	Message       string       `json:"message"`
	CandidateRank int          `json:"candidate_rank,omitempty"`
}

// SafetyVerdict is the final gate on a workflow. Approved is true only when
// no critical flag was raised and at least one candidate passed its checks.
type SafetyVerdict struct {
	Approved            bool         `json:"approved"`
	RequiresHumanReview bool         `json:"requires_human_review"`
	Flags               []SafetyFlag `json:"flags"`
	MinConfidenceSeen   float64      `json:"min_confidence_seen"`
	TotalCitations      int          `json:"total_citations"`
	SchemaValid         bool         `json:"schema_valid"`
	ContentSafe         bool         `json:"content_safe"`
	CitationsVerified   bool         `json:"citations_verified"`
	Summary             string       `json:"summary"`
}

// GraphNode is a node in a loaded or projected graph context.
type GraphNode struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Type  EntityType `json:"type"`
}

// GraphContext is the slice of the knowledge graph relevant to one query.
// Drug and Disease record the pair the slice was loaded for.
type GraphContext struct {
	Drug         string `json:"drug,omitempty"`
	Disease      string `json:"disease,omitempty"`
	DrugTargets  []Edge `json:"drug_targets"`
	DiseaseGenes []Edge `json:"disease_genes"`
	PathwayEdges []Edge `json:"pathway_edges"`
	Neighbors    []Edge `json:"neighbors"`
}

// CoversPair reports whether the context was loaded for the given pair.
func (g *GraphContext) CoversPair(drug, disease string) bool {
	return NormalizeName(g.Drug) == NormalizeName(drug) &&
		NormalizeName(g.Disease) == NormalizeName(disease)
}

// AllEdges returns every edge in the context, in load order.
func (g *GraphContext) AllEdges() []Edge {
	out := make([]Edge, 0, len(g.DrugTargets)+len(g.DiseaseGenes)+len(g.PathwayEdges)+len(g.Neighbors))
	out = append(out, g.DrugTargets...)
	out = append(out, g.DiseaseGenes...)
	out = append(out, g.PathwayEdges...)
	out = append(out, g.Neighbors...)
	return out
}

// StageStatus records how a pipeline stage ended.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// StageRecord is one entry in the workflow's stage history.
type StageRecord struct {
	Name      string        `json:"name"`
	Status    StageStatus   `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// ParsedQuery holds the drug and disease resolved from the raw query text.
type ParsedQuery struct {
	Raw     string `json:"raw"`
	Drug    string `json:"drug"`
	Disease string `json:"disease"`
}

// WorkflowState is the blackboard passed from stage to stage. It is confined
// to a single goroutine per request; stages mutate it without locking.
type WorkflowState struct {
	QueryID   string    `json:"query_id"`
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	Query   ParsedQuery  `json:"query"`
	Request QueryRequest `json:"request"`

	Entities        []Entity          `json:"entities,omitempty"`
	Citations       []Citation        `json:"citations,omitempty"`
	Evidence        []Evidence        `json:"evidence,omitempty"`
	Graph           *GraphContext     `json:"graph,omitempty"`
	Simulation      *SimulationResult `json:"simulation,omitempty"`
	Candidates      []Candidate       `json:"candidates,omitempty"`
	Verdict         *SafetyVerdict    `json:"verdict,omitempty"`
	FinalCandidates []Candidate       `json:"final_candidates,omitempty"`

	StageHistory []StageRecord `json:"stage_history"`
	Errors       []string      `json:"errors,omitempty"`
}

// RecordStage appends a stage outcome to the history.
func (s *WorkflowState) RecordStage(rec StageRecord) {
	s.StageHistory = append(s.StageHistory, rec)
}

// AuditEvent is one link in the per-day audit hash chain. EventID is a
// per-partition sequence assigned under the partition lock; verification
// replays events in ascending EventID order.
type AuditEvent struct {
	EventID       int64             `json:"event_id"`
	PartitionDate string            `json:"partition_date"`
	EventType     string            `json:"event_type"`
	UserID        string            `json:"user_id"`
	RequestID     string            `json:"request_id"`
	Action        string            `json:"action"`
	Resource      string            `json:"resource,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	Hash          string            `json:"hash"`
	PrevHash      string            `json:"prev_hash"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Audit event types emitted by the orchestrator and stage runner.
const (
	AuditQueryReceived      = "QUERY_RECEIVED"
	AuditStageStarted       = "STAGE_STARTED"
	AuditStageCompleted     = "STAGE_COMPLETED"
	AuditStageFailed        = "STAGE_FAILED"
	AuditIngestionTriggered = "INGESTION_TRIGGERED"
	AuditWorkflowComplete   = "WORKFLOW_COMPLETE"
)
