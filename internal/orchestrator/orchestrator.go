package orchestrator

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
	"github.com/biomind-nexus-server/internal/ingest"
	"github.com/biomind-nexus-server/internal/metrics"
	"github.com/biomind-nexus-server/internal/pipeline"
)

// Defaults for the orchestrator when the config leaves them unset.
const (
	defaultRequestTimeout = 300 * time.Second
	defaultCacheSize      = 512
	defaultCacheTTL       = 30 * time.Minute
)

// Options tune the orchestrator.
type Options struct {
	RequestTimeout time.Duration
	CacheSize      int
	CacheTTL       time.Duration
}

// Orchestrator owns the end-to-end query workflow: request validation,
// graph pre-loading and lazy ingestion, stage execution, audit bracketing,
// and the result cache the report endpoints read from. Finished states are
// cached whether the workflow succeeded or failed, so a failed query's
// audit trail stays reachable; cancelled runs are never cached.
type Orchestrator struct {
	runner    *pipeline.Runner
	graph     domain.GraphRepository
	ingestion *ingest.Pipeline
	audit     domain.AuditLogger
	metrics   *metrics.Metrics
	log       *logrus.Logger

	results        *expirable.LRU[string, *domain.WorkflowState]
	requestTimeout time.Duration
}

// New creates an orchestrator around a configured stage runner. graph and
// ingestion may be nil; pre-loading is then left to the simulation stage.
func New(runner *pipeline.Runner, graph domain.GraphRepository, ingestion *ingest.Pipeline, audit domain.AuditLogger, m *metrics.Metrics, log *logrus.Logger, opts Options) *Orchestrator {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &Orchestrator{
		runner:         runner,
		graph:          graph,
		ingestion:      ingestion,
		audit:          audit,
		metrics:        m,
		log:            log,
		results:        expirable.NewLRU[string, *domain.WorkflowState](opts.CacheSize, nil, opts.CacheTTL),
		requestTimeout: opts.RequestTimeout,
	}
}

// Run executes the full workflow for one query request. The returned state
// is populated even when err is non-nil: the stage history, errors and
// safety verdict describe how far the workflow got.
func (o *Orchestrator) Run(ctx context.Context, requestID string, req domain.QueryRequest) (*domain.WorkflowState, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	state := &domain.WorkflowState{
		QueryID:   uuid.NewString(),
		RequestID: requestID,
		UserID:    req.UserID,
		CreatedAt: time.Now().UTC(),
		Request:   req,
		Query:     domain.ParsedQuery{Raw: req.Query},
	}

	ctx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	o.audit.Log(ctx, domain.AuditQueryReceived, state.UserID, state.RequestID, "query", state.QueryID,
		map[string]string{"query": req.Query})

	o.prepareGraph(ctx, state)

	started := time.Now()
	err := o.runner.Execute(ctx, state)
	elapsed := time.Since(started)

	status := domain.StatusCompleted
	switch {
	case domain.KindOf(err) == domain.ErrCancelled:
		status = domain.StatusCancelled
	case err != nil:
		status = domain.StatusFailed
	}

	o.audit.Log(ctx, domain.AuditWorkflowComplete, state.UserID, state.RequestID, "query", state.QueryID,
		workflowDetails(state, status))
	if o.metrics != nil {
		o.metrics.ObserveQuery(status, elapsed)
	}

	// A cancelled run is incomplete by definition; caching it would replay
	// a truncated answer inside the TTL window.
	if status != domain.StatusCancelled {
		o.results.Add(state.QueryID, state)
	}

	o.log.WithFields(logrus.Fields{
		"query_id":   state.QueryID,
		"request_id": state.RequestID,
		"status":     status,
		"candidates": len(state.Candidates),
		"duration":   elapsed,
	}).Info("Workflow finished")

	return state, err
}

// prepareGraph guesses the query pair, triggers lazy ingestion when the
// graph has no coverage for it, and pre-loads the graph slice onto the
// state. The simulation stage reloads if the extraction stage parses a
// different pair, so a wrong guess costs one extra read, never correctness.
func (o *Orchestrator) prepareGraph(ctx context.Context, state *domain.WorkflowState) {
	if o.graph == nil {
		return
	}

	drug, disease := state.Request.Drug, state.Request.Disease
	if drug == "" || disease == "" {
		hintDrug, hintDisease := ParsePairHint(state.Request.Query)
		if drug == "" {
			drug = hintDrug
		}
		if disease == "" {
			disease = hintDisease
		}
	}
	if drug == "" || disease == "" {
		return
	}

	if o.ingestion != nil {
		res, err := o.ingestion.IngestIfMissing(ctx, drug, disease, state.UserID, state.RequestID)
		if err != nil {
			o.log.WithError(err).WithField("query_id", state.QueryID).
				Warn("Literature ingestion failed, continuing with current graph")
		} else if res.Triggered && o.metrics != nil {
			o.metrics.IncIngestion()
		}
	}

	gctx, err := o.graph.LoadQueryContext(ctx, drug, disease)
	if err != nil {
		o.log.WithError(err).WithField("query_id", state.QueryID).
			Warn("Graph pre-load failed, the simulation stage will retry")
		return
	}
	state.Graph = gctx
}

// Result fetches a finished workflow state for report read-back.
func (o *Orchestrator) Result(queryID string) (*domain.WorkflowState, bool) {
	state, ok := o.results.Get(queryID)
	if o.metrics != nil {
		if ok {
			o.metrics.ObserveCache("hit")
		} else {
			o.metrics.ObserveCache("miss")
		}
	}
	return state, ok
}

func workflowDetails(state *domain.WorkflowState, status string) map[string]string {
	approved := false
	if state.Verdict != nil {
		approved = state.Verdict.Approved
	}
	stages := ""
	for i, rec := range state.StageHistory {
		if i > 0 {
			stages += ","
		}
		stages += rec.Name + ":" + string(rec.Status)
	}
	return map[string]string{
		"status":           status,
		"approved":         strconv.FormatBool(approved),
		"total_candidates": strconv.Itoa(len(state.Candidates)),
		"step_history":     stages,
	}
}
