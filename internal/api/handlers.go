package api

import (
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/biomind-nexus-server/internal/audit"
	"github.com/biomind-nexus-server/internal/domain"
)

// Response projection limits.
const (
	hypothesisTruncate = 300
	mechanismTruncate  = 200
	maxCitationsShown  = 5
	maxFlagsShown      = 5
)

func (s *Server) handleQuery(c *gin.Context) {
	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.WrapError(domain.ErrInputInvalid, "malformed request body", err))
		return
	}

	requestID := c.GetString("request_id")
	state, err := s.workflows.Run(c.Request.Context(), requestID, req)
	if err != nil {
		// A state means the workflow ran: the client gets the full response
		// body showing how far it got, at the mapped status code.
		if state != nil {
			status := domain.StatusFailed
			if domain.KindOf(err) == domain.ErrCancelled {
				status = domain.StatusCancelled
			}
			c.JSON(statusForKind(domain.KindOf(err)), buildQueryResponse(state, status))
			return
		}
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, buildQueryResponse(state, domain.StatusCompleted))
}

func (s *Server) handleReportAudit(c *gin.Context) {
	state, ok := s.workflows.Result(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown report id"})
		return
	}

	partition := audit.PartitionFor(state.CreatedAt)
	verification, err := s.auditor.Verify(c.Request.Context(), partition)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !verification.Valid {
		c.JSON(http.StatusConflict, gin.H{
			"error":        "audit chain verification failed",
			"verification": verification,
		})
		return
	}

	events, err := s.auditor.Chain(c.Request.Context(), partition)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var own []domain.AuditEvent
	for _, e := range events {
		if e.RequestID == state.RequestID {
			own = append(own, e)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"query_id":     state.QueryID,
		"partition":    partition,
		"verification": verification,
		"events":       own,
	})
}

func (s *Server) handleReportGraph(c *gin.Context) {
	state, ok := s.workflows.Result(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown report id"})
		return
	}

	projection, err := buildGraphProjection(state)
	if err != nil {
		s.log.WithError(err).WithField("query_id", state.QueryID).
			Error("Graph projection violated node purity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "graph projection failed"})
		return
	}
	c.JSON(http.StatusOK, projection)
}

func (s *Server) handleReportCitations(c *gin.Context) {
	state, ok := s.workflows.Result(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown report id"})
		return
	}

	seen := make(map[string]bool, len(state.Citations))
	citations := make([]domain.Citation, 0, len(state.Citations))
	for _, cit := range state.Citations {
		if seen[cit.PMID] {
			continue
		}
		seen[cit.PMID] = true
		citations = append(citations, cit)
	}

	c.JSON(http.StatusOK, gin.H{
		"query_id":  state.QueryID,
		"citations": citations,
	})
}

func (s *Server) handleReportPDF(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"error": "PDF export is not implemented"})
}

func (s *Server) respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	c.JSON(statusForKind(kind), gin.H{
		"error": gin.H{
			"kind":       kind,
			"message":    err.Error(),
			"request_id": c.GetString("request_id"),
		},
	})
}

// statusForKind maps domain error kinds to HTTP status codes.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrInputInvalid:
		return http.StatusUnprocessableEntity
	case domain.ErrPolicyDenied:
		return http.StatusForbidden
	case domain.ErrRepoUnavailable:
		return http.StatusServiceUnavailable
	case domain.ErrCancelled:
		return http.StatusGatewayTimeout
	case domain.ErrTamperDetected:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// buildQueryResponse projects a workflow state into the client-facing shape.
func buildQueryResponse(state *domain.WorkflowState, status string) domain.QueryResponse {
	resp := domain.QueryResponse{
		QueryID:       state.QueryID,
		Status:        status,
		Entities:      state.Entities,
		EvidenceItems: len(state.Evidence),
		Errors:        state.Errors,
		StageHistory:  state.StageHistory,
		Timestamp:     time.Now().UTC(),
	}
	if !state.CreatedAt.IsZero() {
		resp.ProcessingTime = time.Since(state.CreatedAt).String()
	}
	for _, rec := range state.StageHistory {
		if rec.Status == domain.StageCompleted {
			resp.StepsCompleted++
		}
	}

	var globalFlags, candidateFlags []domain.SafetyFlag
	if state.Verdict != nil {
		resp.Approved = state.Verdict.Approved
		summary := domain.SafetySummary{Passed: state.Verdict.Approved}
		for _, f := range state.Verdict.Flags {
			summary.FlagCount++
			switch f.Severity {
			case domain.SeverityCritical:
				summary.CriticalCount++
			case domain.SeverityWarning:
				if len(summary.Warnings) < maxFlagsShown {
					summary.Warnings = append(summary.Warnings, f.Code+": "+f.Message)
				}
			}
			if f.CandidateRank == 0 {
				globalFlags = append(globalFlags, f)
			} else {
				candidateFlags = append(candidateFlags, f)
			}
		}
		resp.Safety = &summary
	}
	resp.SafetyFlags = capFlags(globalFlags)

	// Approved workflows expose only the candidates that passed the safety
	// checks; everything else shows the full ranked set with its flags.
	candidates := state.Candidates
	if state.Verdict != nil && state.Verdict.Approved && state.FinalCandidates != nil {
		candidates = state.FinalCandidates
	}
	for _, cand := range candidates {
		var own []domain.SafetyFlag
		for _, f := range candidateFlags {
			if f.CandidateRank == cand.Rank {
				own = append(own, f)
			}
		}
		resp.Candidates = append(resp.Candidates, domain.CandidateView{
			Rank:             cand.Rank,
			DrugName:         cand.DrugName,
			DiseaseName:      cand.DiseaseName,
			Hypothesis:       truncate(cand.Hypothesis, hypothesisTruncate),
			MechanismSummary: truncate(cand.MechanismSummary, mechanismTruncate),
			CompositeScore:   cand.CompositeScore,
			ConfidenceScore:  cand.ConfidenceScore,
			EvidenceCount:    cand.EvidenceCount,
			PathCount:        cand.PathCount,
			CitationIDs:      cand.CitationIDs,
			KeyPathways:      cand.KeyPathways,
			SafetyFlags:      capFlags(own),
		})
	}
	if resp.Candidates == nil {
		resp.Candidates = []domain.CandidateView{}
	}

	for i, cit := range state.Citations {
		if i == maxCitationsShown {
			break
		}
		resp.Citations = append(resp.Citations, cit)
	}
	return resp
}

func capFlags(flags []domain.SafetyFlag) []domain.SafetyFlag {
	if len(flags) > maxFlagsShown {
		return flags[:maxFlagsShown]
	}
	return flags
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
