package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type nopAuditLogger struct{}

func (nopAuditLogger) Log(ctx context.Context, eventType, userID, requestID, action, resource string, details map[string]string) {
}

// recordingAudit captures event types in order.
type recordingAudit struct {
	events []string
}

func (r *recordingAudit) Log(ctx context.Context, eventType, userID, requestID, action, resource string, details map[string]string) {
	r.events = append(r.events, eventType)
}

type fakeExtractor struct {
	entities []domain.Entity
	err      error
	calls    int
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) ([]domain.Entity, error) {
	f.calls++
	return f.entities, f.err
}

type fakeLiterature struct {
	pmidsByTerm map[string][]string
	citations   []domain.Citation
	searchErr   error
	fetchErr    error
	searched    []string
}

func (f *fakeLiterature) Search(ctx context.Context, term string, max int) ([]string, error) {
	f.searched = append(f.searched, term)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	ids := f.pmidsByTerm[term]
	if len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

func (f *fakeLiterature) Fetch(ctx context.Context, pmids []string) ([]domain.Citation, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []domain.Citation
	for _, pmid := range pmids {
		for _, c := range f.citations {
			if c.PMID == pmid {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

type fakeSynthesizer struct {
	hypothesis *domain.Hypothesis
	err        error
	calls      int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, input domain.SynthesisInput) (*domain.Hypothesis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.hypothesis, nil
}

type fakeGraph struct {
	context    *domain.GraphContext
	loadErr    error
	edgeCount  int
	loadCalls  int
	upserted   []domain.Edge
	countCalls int
}

func (f *fakeGraph) LoadQueryContext(ctx context.Context, drug, disease string) (*domain.GraphContext, error) {
	f.loadCalls++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.context == nil {
		return &domain.GraphContext{}, nil
	}
	return f.context, nil
}

func (f *fakeGraph) UpsertEntity(ctx context.Context, entity domain.Entity) error { return nil }

func (f *fakeGraph) UpsertRelation(ctx context.Context, edge domain.Edge) error {
	f.upserted = append(f.upserted, edge)
	return nil
}

func (f *fakeGraph) EdgeCount(ctx context.Context, drug, disease string) (int, error) {
	f.countCalls++
	return f.edgeCount, nil
}

type fakeScorer struct {
	evidenceScore float64
	relation      domain.RelationScores
	evidenceErr   error
	relationErr   error
	evidenceCalls int
	relationCalls int
}

func (f *fakeScorer) ScoreEvidence(ctx context.Context, statement, hypothesis string) (float64, error) {
	f.evidenceCalls++
	return f.evidenceScore, f.evidenceErr
}

func (f *fakeScorer) ScoreRelation(ctx context.Context, drug, target, disease string) (domain.RelationScores, error) {
	f.relationCalls++
	if f.relationErr != nil {
		return domain.RelationScores{}, f.relationErr
	}
	return f.relation, nil
}

var errUpstream = errors.New("upstream unavailable")

func queryEntities() []domain.Entity {
	return []domain.Entity{
		{ID: "drug:metformin", Name: "Metformin", Type: domain.EntityDrug, Confidence: 0.9},
		{ID: "disease:breast_cancer", Name: "Breast Cancer", Type: domain.EntityDisease, Confidence: 0.85},
		{ID: "gene:ampk", Name: "AMPK", Type: domain.EntityGene, Confidence: 0.8},
	}
}

func baseState() *domain.WorkflowState {
	req := domain.QueryRequest{Query: "Could metformin treat breast cancer?", UserID: "u1"}
	req.ApplyDefaults()
	return &domain.WorkflowState{
		QueryID:   "q-1",
		RequestID: "req-1",
		UserID:    "u1",
		Request:   req,
		Query:     domain.ParsedQuery{Raw: req.Query, Drug: "Metformin", Disease: "Breast Cancer"},
		Entities:  queryEntities(),
	}
}
