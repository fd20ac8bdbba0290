package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
	"github.com/biomind-nexus-server/pkg/external"
)

// Literature retrieval limits.
const (
	litSearchMax         = 5
	litFallbackMax       = 3
	litFallbackEntities  = 3
	litAbstractTruncate  = 500
	litStatementTruncate = 300
	litClientTimeout     = 30 * time.Second
)

// LiteratureStage gathers citations for the drug/disease pair and turns them
// into scored evidence. The stage degrades instead of failing: a literature
// outage leaves the workflow with zero citations and lets the safety stage
// flag the gap.
type LiteratureStage struct {
	client domain.LiteratureClient
	scorer domain.RelevanceScorer
	log    *logrus.Logger
}

// NewLiteratureStage creates the literature stage. scorer may be nil; the
// heuristic score is used instead.
func NewLiteratureStage(client domain.LiteratureClient, scorer domain.RelevanceScorer, log *logrus.Logger) *LiteratureStage {
	return &LiteratureStage{client: client, scorer: scorer, log: log}
}

func (s *LiteratureStage) Name() string { return "literature" }

func (s *LiteratureStage) Run(ctx context.Context, state *domain.WorkflowState) error {
	ctx, cancel := context.WithTimeout(ctx, litClientTimeout)
	defer cancel()

	pmids := s.search(ctx, state)
	if len(pmids) == 0 {
		s.log.WithField("query_id", state.QueryID).Info("No literature found, continuing without citations")
		return nil
	}

	citations, err := s.client.Fetch(ctx, pmids)
	if err != nil {
		s.log.WithError(err).WithField("query_id", state.QueryID).
			Warn("Citation fetch failed, continuing without citations")
		return nil
	}

	state.Citations = dedupeCitations(citations)
	state.Evidence = s.buildEvidence(ctx, state)

	s.log.WithFields(logrus.Fields{
		"query_id":  state.QueryID,
		"citations": len(state.Citations),
		"evidence":  len(state.Evidence),
	}).Info("Literature gathered")
	return nil
}

// search tries the combined drug+disease term first, then falls back to
// per-entity searches. A query with only one of the pair skips straight to
// the per-entity searches.
func (s *LiteratureStage) search(ctx context.Context, state *domain.WorkflowState) []string {
	if state.Query.Drug != "" && state.Query.Disease != "" {
		term := external.SearchTerm(state.Query.Drug, state.Query.Disease)
		pmids, err := s.client.Search(ctx, term, litSearchMax)
		if err != nil {
			s.log.WithError(err).WithField("query_id", state.QueryID).
				Warn("Literature search failed, continuing without citations")
			return nil
		}
		if len(pmids) > 0 {
			return pmids
		}
	}

	seen := make(map[string]bool)
	var out []string
	limit := litFallbackEntities
	if len(state.Entities) < limit {
		limit = len(state.Entities)
	}
	for _, entity := range state.Entities[:limit] {
		ids, err := s.client.Search(ctx, entity.Name, litFallbackMax)
		if err != nil {
			s.log.WithError(err).WithField("entity", entity.Name).Debug("Fallback search failed")
			continue
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func dedupeCitations(citations []domain.Citation) []domain.Citation {
	seen := make(map[string]bool, len(citations))
	var out []domain.Citation
	for _, c := range citations {
		if seen[c.PMID] {
			continue
		}
		seen[c.PMID] = true
		c.Abstract = truncate(c.Abstract, litAbstractTruncate)
		out = append(out, c)
	}
	return out
}

// buildEvidence turns each citation into one scored evidence statement,
// sorted by confidence descending.
func (s *LiteratureStage) buildEvidence(ctx context.Context, state *domain.WorkflowState) []domain.Evidence {
	evidence := make([]domain.Evidence, 0, len(state.Citations))
	for _, c := range state.Citations {
		statement := c.Abstract
		if statement == "" {
			statement = c.Title
		}
		statement = truncate(statement, litStatementTruncate)

		ev := domain.Evidence{
			ID:         "lit_" + c.PMID,
			Statement:  statement,
			SourceID:   c.PMID,
			Confidence: s.score(ctx, state, c, statement),
			Entities:   mentionedEntities(c.Title+" "+c.Abstract, state.Entities),
		}
		evidence = append(evidence, ev)
	}

	sort.SliceStable(evidence, func(i, j int) bool {
		return evidence[i].Confidence > evidence[j].Confidence
	})
	return evidence
}

// Relevance blend: the model score carries most of the weight, the mention
// heuristic keeps a floor of lexical grounding.
const (
	scorerWeight    = 0.6
	heuristicWeight = 0.4
)

// score blends the relevance scorer with a mention heuristic over the drug
// and disease names; without a scorer the heuristic stands alone.
func (s *LiteratureStage) score(ctx context.Context, state *domain.WorkflowState, c domain.Citation, statement string) float64 {
	heuristic := s.heuristicScore(state, c)
	if s.scorer == nil {
		return heuristic
	}

	question := state.Query.Drug + " as a treatment for " + state.Query.Disease
	model, err := s.scorer.ScoreEvidence(ctx, statement, question)
	if err != nil {
		s.log.WithError(err).WithField("pmid", c.PMID).Debug("Relevance scoring failed, using heuristic")
		return heuristic
	}
	return scorerWeight*model + heuristicWeight*heuristic
}

func (s *LiteratureStage) heuristicScore(state *domain.WorkflowState, c domain.Citation) float64 {
	text := strings.ToLower(c.Title + " " + c.Abstract)
	score := 0.4
	if state.Query.Drug != "" && strings.Contains(text, strings.ToLower(state.Query.Drug)) {
		score += 0.25
	}
	if state.Query.Disease != "" && strings.Contains(text, strings.ToLower(state.Query.Disease)) {
		score += 0.25
	}
	return score
}

func mentionedEntities(text string, entities []domain.Entity) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, e := range entities {
		if strings.Contains(lower, strings.ToLower(e.Name)) {
			out = append(out, e.Name)
		}
	}
	return out
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
