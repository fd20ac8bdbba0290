package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomind-nexus-server/internal/audit"
	"github.com/biomind-nexus-server/internal/domain"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeWorkflows struct {
	runState *domain.WorkflowState
	runErr   error
	results  map[string]*domain.WorkflowState
}

func (f *fakeWorkflows) Run(ctx context.Context, requestID string, req domain.QueryRequest) (*domain.WorkflowState, error) {
	return f.runState, f.runErr
}

func (f *fakeWorkflows) Result(queryID string) (*domain.WorkflowState, bool) {
	state, ok := f.results[queryID]
	return state, ok
}

type fakeAuditor struct {
	verify    audit.VerifyResult
	verifyErr error
	events    []domain.AuditEvent
	chainErr  error
}

func (f *fakeAuditor) Chain(ctx context.Context, partitionDate string) ([]domain.AuditEvent, error) {
	return f.events, f.chainErr
}

func (f *fakeAuditor) Verify(ctx context.Context, partitionDate string) (audit.VerifyResult, error) {
	return f.verify, f.verifyErr
}

func finishedState() *domain.WorkflowState {
	return &domain.WorkflowState{
		QueryID:   "q-1",
		RequestID: "req-1",
		UserID:    "u1",
		CreatedAt: time.Now().UTC().Add(-time.Second),
		Query:     domain.ParsedQuery{Drug: "Metformin", Disease: "Breast Cancer"},
		Citations: []domain.Citation{
			{PMID: "1", Title: "Metformin in Breast Cancer"},
		},
		Simulation: &domain.SimulationResult{
			ValidPaths: []domain.PathwayPath{{
				Nodes: []domain.PathNode{
					{Name: "Metformin", Type: domain.EntityDrug},
					{Name: "AMPK", Type: domain.EntityGene},
					{Name: "Breast Cancer", Type: domain.EntityDisease},
				},
				Relations:  []domain.RelationType{domain.RelationActivates, domain.RelationInhibits},
				Confidence: 0.6,
			}},
			Plausibility: 0.6,
		},
		Candidates: []domain.Candidate{{
			Rank: 1, DrugName: "Metformin", DiseaseName: "Breast Cancer",
			Hypothesis:       strings.Repeat("h", 400),
			MechanismSummary: "AMPK activation.",
			CompositeScore:   0.61, ConfidenceScore: 0.8,
			EvidenceCount: 1, PathCount: 1,
		}},
		Verdict: &domain.SafetyVerdict{
			Approved: true,
			Flags: []domain.SafetyFlag{
				{Severity: domain.SeverityInfo, Code: "NO_LITERATURE_EVIDENCE", Message: "m"},
				{Severity: domain.SeverityWarning, Code: "LOW_CONFIDENCE", Message: "m", CandidateRank: 1},
			},
		},
		StageHistory: []domain.StageRecord{{Name: "safety", Status: domain.StageCompleted}},
	}
}

func newTestServer(workflows WorkflowRunner, auditor AuditReader) *Server {
	return NewServer(domain.ServerConfig{}, workflows, auditor, nil, nil, testLogger())
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHandleQueryProjectsResponse(t *testing.T) {
	s := newTestServer(&fakeWorkflows{runState: finishedState()}, &fakeAuditor{})

	w := doRequest(s, http.MethodPost, "/api/v1/query", `{"query":"Could metformin treat breast cancer?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "q-1", resp.QueryID)
	assert.True(t, resp.Approved)
	require.Len(t, resp.Candidates, 1)
	assert.Len(t, resp.Candidates[0].Hypothesis, hypothesisTruncate, "hypothesis is truncated for transport")
	require.Len(t, resp.Candidates[0].SafetyFlags, 1)
	assert.Equal(t, "LOW_CONFIDENCE", resp.Candidates[0].SafetyFlags[0].Code)
	require.Len(t, resp.SafetyFlags, 1)
	assert.Equal(t, "NO_LITERATURE_EVIDENCE", resp.SafetyFlags[0].Code)
	assert.NotEmpty(t, resp.StageHistory)
	assert.Equal(t, domain.StatusCompleted, resp.Status)
	assert.Equal(t, 1, resp.StepsCompleted)

	require.NotNil(t, resp.Safety)
	assert.True(t, resp.Safety.Passed)
	assert.Equal(t, 2, resp.Safety.FlagCount)
	assert.Zero(t, resp.Safety.CriticalCount)
	require.Len(t, resp.Safety.Warnings, 1)
	assert.Contains(t, resp.Safety.Warnings[0], "LOW_CONFIDENCE")
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	// A cut landing inside a multi-byte rune backs up to the rune start.
	assert.Equal(t, "na", truncate("naïve", 3))
	assert.Equal(t, "naï", truncate("naïve", 4))
	assert.Equal(t, "plain", truncate("plain", hypothesisTruncate))

	cut := truncate(strings.Repeat("µ", hypothesisTruncate), hypothesisTruncate)
	assert.True(t, utf8.ValidString(cut))
	assert.LessOrEqual(t, len(cut), hypothesisTruncate)
}

func TestHandleQueryMalformedBody(t *testing.T) {
	s := newTestServer(&fakeWorkflows{}, &fakeAuditor{})
	w := doRequest(s, http.MethodPost, "/api/v1/query", `{"query":`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleQueryErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.NewError(domain.ErrInputInvalid, "bad query"), http.StatusUnprocessableEntity},
		{"policy denied", domain.NewError(domain.ErrPolicyDenied, "label rejected"), http.StatusForbidden},
		{"repository down", domain.NewError(domain.ErrRepoUnavailable, "store offline"), http.StatusServiceUnavailable},
		{"cancelled", domain.NewError(domain.ErrCancelled, "deadline hit"), http.StatusGatewayTimeout},
		{"tampered chain", domain.NewError(domain.ErrTamperDetected, "hash mismatch"), http.StatusConflict},
		{"contract violation", domain.NewError(domain.ErrContractViolation, "malformed upstream"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeWorkflows{runErr: tt.err}, &fakeAuditor{})
			w := doRequest(s, http.MethodPost, "/api/v1/query", `{"query":"some valid query"}`)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHandleQueryFailureStillReturnsQueryID(t *testing.T) {
	state := finishedState()
	s := newTestServer(&fakeWorkflows{
		runState: state,
		runErr:   domain.NewError(domain.ErrRepoUnavailable, "graph offline"),
	}, &fakeAuditor{})

	w := doRequest(s, http.MethodPost, "/api/v1/query", `{"query":"some valid query"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp domain.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "q-1", resp.QueryID, "the audit trail stays addressable after a failure")
	assert.Equal(t, domain.StatusFailed, resp.Status)
	assert.NotEmpty(t, resp.Candidates, "the partial result is still shown")
}

func TestHandleQueryCancelledReturnsPartialState(t *testing.T) {
	state := finishedState()
	s := newTestServer(&fakeWorkflows{
		runState: state,
		runErr:   domain.NewError(domain.ErrCancelled, "request timeout hit"),
	}, &fakeAuditor{})

	w := doRequest(s, http.MethodPost, "/api/v1/query", `{"query":"some valid query"}`)
	require.Equal(t, http.StatusGatewayTimeout, w.Code)

	var resp domain.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusCancelled, resp.Status)
}

func TestHandleReportAuditUnknownID(t *testing.T) {
	s := newTestServer(&fakeWorkflows{results: map[string]*domain.WorkflowState{}}, &fakeAuditor{})
	w := doRequest(s, http.MethodGet, "/api/v1/reports/nope/audit", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleReportAuditTamperedChain(t *testing.T) {
	state := finishedState()
	s := newTestServer(
		&fakeWorkflows{results: map[string]*domain.WorkflowState{"q-1": state}},
		&fakeAuditor{verify: audit.VerifyResult{Valid: false, BrokenAt: 2, FailReason: "stored hash does not match recomputed hash"}},
	)

	w := doRequest(s, http.MethodGet, "/api/v1/reports/q-1/audit", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "verification failed")
}

func TestHandleReportAuditFiltersByRequest(t *testing.T) {
	state := finishedState()
	s := newTestServer(
		&fakeWorkflows{results: map[string]*domain.WorkflowState{"q-1": state}},
		&fakeAuditor{
			verify: audit.VerifyResult{Valid: true, Length: 3},
			events: []domain.AuditEvent{
				{EventID: 1, RequestID: "req-1", EventType: domain.AuditQueryReceived},
				{EventID: 2, RequestID: "other", EventType: domain.AuditQueryReceived},
				{EventID: 3, RequestID: "req-1", EventType: domain.AuditWorkflowComplete},
			},
		},
	)

	w := doRequest(s, http.MethodGet, "/api/v1/reports/q-1/audit", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Events []domain.AuditEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Events, 2)
	assert.Equal(t, int64(1), body.Events[0].EventID)
	assert.Equal(t, int64(3), body.Events[1].EventID)
}

func TestHandleReportCitationsDedupes(t *testing.T) {
	state := finishedState()
	state.Citations = append(state.Citations, domain.Citation{PMID: "1", Title: "Duplicate"})
	s := newTestServer(&fakeWorkflows{results: map[string]*domain.WorkflowState{"q-1": state}}, &fakeAuditor{})

	w := doRequest(s, http.MethodGet, "/api/v1/reports/q-1/citations", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Citations []domain.Citation `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Citations, 1)
}

func TestHandleReportPDFNotImplemented(t *testing.T) {
	state := finishedState()
	s := newTestServer(&fakeWorkflows{results: map[string]*domain.WorkflowState{"q-1": state}}, &fakeAuditor{})
	w := doRequest(s, http.MethodGet, "/api/v1/reports/q-1/pdf", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&fakeWorkflows{}, &fakeAuditor{})
	w := doRequest(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	s := newTestServer(&fakeWorkflows{runState: finishedState()}, &fakeAuditor{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "my-id")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "my-id", w.Header().Get("X-Request-ID"))
}
