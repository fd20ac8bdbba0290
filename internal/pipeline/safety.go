package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
)

// Confidence bands for per-candidate safety flags.
const (
	criticalConfidence = 0.3
	warningConfidence  = 0.5
)

// SafetyStage is the final gate on every workflow. It runs even after an
// earlier stage failed, so every response carries a verdict. A workflow is
// approved only when no critical flag was raised and at least one candidate
// survived its per-candidate checks; the surviving candidates become the
// final set.
type SafetyStage struct {
	log *logrus.Logger
}

// NewSafetyStage creates the safety stage.
func NewSafetyStage(log *logrus.Logger) *SafetyStage {
	return &SafetyStage{log: log}
}

func (s *SafetyStage) Name() string { return "safety" }

func (s *SafetyStage) Run(ctx context.Context, state *domain.WorkflowState) error {
	var flags []domain.SafetyFlag
	var passing []domain.Candidate
	minConfidence := math.Inf(1)

	for _, c := range state.Candidates {
		cf := candidateFlags(c)
		flags = append(flags, cf...)
		if !hasCritical(cf) {
			passing = append(passing, c)
		}
		if c.ConfidenceScore < minConfidence {
			minConfidence = c.ConfidenceScore
		}
	}
	flags = append(flags, globalFlags(state)...)
	if len(state.Candidates) == 0 {
		minConfidence = 0
	}

	critical := 0
	warnings := 0
	for _, f := range flags {
		switch f.Severity {
		case domain.SeverityCritical:
			critical++
		case domain.SeverityWarning:
			warnings++
		}
	}

	approved := critical == 0 && len(passing) > 0
	state.FinalCandidates = []domain.Candidate{}
	if approved {
		state.FinalCandidates = passing
	}

	state.Verdict = &domain.SafetyVerdict{
		Approved:            approved,
		RequiresHumanReview: critical > 0 || warnings > 0,
		Flags:               flags,
		MinConfidenceSeen:   minConfidence,
		TotalCitations:      len(state.Citations),
		SchemaValid:         candidatesWellFormed(state.Candidates),
		ContentSafe:         critical == 0,
		CitationsVerified:   citationsVerified(state),
		Summary:             verdictSummary(approved, len(flags), critical, len(passing)),
	}

	s.log.WithFields(logrus.Fields{
		"query_id": state.QueryID,
		"approved": approved,
		"flags":    len(flags),
		"critical": critical,
		"passing":  len(passing),
	}).Info("Safety verdict issued")
	return nil
}

func candidateFlags(c domain.Candidate) []domain.SafetyFlag {
	var flags []domain.SafetyFlag
	add := func(severity domain.FlagSeverity, code, message string) {
		flags = append(flags, domain.SafetyFlag{
			Severity:      severity,
			Code:          code,
			Message:       message,
			CandidateRank: c.Rank,
		})
	}

	switch {
	case c.ConfidenceScore < criticalConfidence:
		add(domain.SeverityCritical, "CONFIDENCE_TOO_LOW",
			fmt.Sprintf("hypothesis confidence %.2f is below the %.2f floor", c.ConfidenceScore, criticalConfidence))
	case c.ConfidenceScore < warningConfidence:
		add(domain.SeverityWarning, "LOW_CONFIDENCE",
			fmt.Sprintf("hypothesis confidence %.2f is below %.2f", c.ConfidenceScore, warningConfidence))
	}
	if c.EvidenceCount == 0 {
		add(domain.SeverityWarning, "NO_EVIDENCE", "no literature evidence supports this candidate")
	}
	if c.EvidenceCount > 0 && len(c.CitationIDs) == 0 {
		add(domain.SeverityWarning, "INSUFFICIENT_CITATIONS", "candidate evidence carries no citation identifiers")
	}
	if c.PathCount == 0 {
		add(domain.SeverityWarning, "NO_PATHWAY", "no mechanistic path connects drug and disease")
	}
	if c.Hypothesis == "" {
		add(domain.SeverityCritical, "EMPTY_HYPOTHESIS", "candidate carries no hypothesis text")
	}
	if c.MechanismSummary == "" {
		add(domain.SeverityWarning, "EMPTY_MECHANISM", "candidate carries no mechanism summary")
	}
	return flags
}

func globalFlags(state *domain.WorkflowState) []domain.SafetyFlag {
	var flags []domain.SafetyFlag
	if len(state.Candidates) == 0 {
		flags = append(flags, domain.SafetyFlag{
			Severity: domain.SeverityWarning,
			Code:     "NO_CANDIDATES",
			Message:  "workflow produced no ranked candidates",
		})
	}
	if len(state.Entities) == 0 {
		flags = append(flags, domain.SafetyFlag{
			Severity: domain.SeverityInfo,
			Code:     "NO_ENTITIES",
			Message:  "no biomedical entities were extracted from the query",
		})
	}
	if len(state.Citations) == 0 {
		flags = append(flags, domain.SafetyFlag{
			Severity: domain.SeverityInfo,
			Code:     "NO_LITERATURE_EVIDENCE",
			Message:  "no literature citations were retrieved",
		})
	}
	return flags
}

func hasCritical(flags []domain.SafetyFlag) bool {
	for _, f := range flags {
		if f.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}

// candidatesWellFormed checks the structural contract every candidate must
// honor regardless of its scores.
func candidatesWellFormed(candidates []domain.Candidate) bool {
	for _, c := range candidates {
		if c.DrugName == "" || c.DiseaseName == "" {
			return false
		}
		if c.ConfidenceScore < 0 || c.ConfidenceScore > 1 ||
			c.CompositeScore < 0 || c.CompositeScore > 1 {
			return false
		}
	}
	return true
}

// citationsVerified reports whether every candidate citation id resolves to
// a retrieved citation.
func citationsVerified(state *domain.WorkflowState) bool {
	known := make(map[string]bool, len(state.Citations))
	for _, c := range state.Citations {
		known[c.PMID] = true
	}
	for _, c := range state.Candidates {
		for _, id := range c.CitationIDs {
			if !known[id] {
				return false
			}
		}
	}
	return true
}

func verdictSummary(approved bool, total, critical, passing int) string {
	if approved {
		if total == 0 {
			return fmt.Sprintf("Approved: %d candidate(s), no safety flags.", passing)
		}
		return fmt.Sprintf("Approved: %d candidate(s) with %d non-critical flag(s).", passing, total)
	}
	if critical > 0 {
		return fmt.Sprintf("Not approved: %d critical flag(s) out of %d.", critical, total)
	}
	return "Not approved: no candidate passed the safety checks."
}
