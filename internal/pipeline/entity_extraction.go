package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
)

// EntityExtractionStage resolves biomedical entities from the raw query and
// parses the drug/disease pair later stages work on. The remote NER service
// is preferred; the pattern extractor covers outages and fills in entity
// kinds the remote service missed. A query that names no drug or no disease
// is not an error here: downstream stages degrade and the safety stage
// reports the gap.
type EntityExtractionStage struct {
	extractor domain.EntityExtractor
	fallback  domain.EntityExtractor
	log       *logrus.Logger
}

// NewEntityExtractionStage creates the extraction stage. extractor may be
// nil; the fallback is mandatory.
func NewEntityExtractionStage(extractor, fallback domain.EntityExtractor, log *logrus.Logger) *EntityExtractionStage {
	return &EntityExtractionStage{extractor: extractor, fallback: fallback, log: log}
}

func (s *EntityExtractionStage) Name() string { return "entity_extraction" }

// CheckInput requires a non-empty query text.
func (s *EntityExtractionStage) CheckInput(state *domain.WorkflowState) error {
	if state.Request.Query == "" {
		return domain.NewError(domain.ErrStageInputMissing, "entity extraction requires query text")
	}
	return nil
}

func (s *EntityExtractionStage) Run(ctx context.Context, state *domain.WorkflowState) error {
	entities := s.extract(ctx, state.Request.Query)
	if entities == nil {
		entities = []domain.Entity{}
	}
	state.Entities = entities

	parsed := domain.ParsedQuery{Raw: state.Request.Query}
	for _, e := range entities {
		switch e.Type {
		case domain.EntityDrug:
			if parsed.Drug == "" {
				parsed.Drug = e.Name
			}
		case domain.EntityDisease:
			if parsed.Disease == "" {
				parsed.Disease = e.Name
			}
		}
	}
	state.Query = parsed

	if parsed.Drug == "" || parsed.Disease == "" {
		s.log.WithFields(logrus.Fields{
			"query_id": state.QueryID,
			"drug":     parsed.Drug,
			"disease":  parsed.Disease,
		}).Warn("Query does not name both a drug and a disease, downstream stages will degrade")
	}

	s.log.WithFields(logrus.Fields{
		"query_id": state.QueryID,
		"drug":     parsed.Drug,
		"disease":  parsed.Disease,
		"entities": len(entities),
	}).Info("Entities extracted")
	return nil
}

// extract runs the remote extractor when wired and supplements its output
// with pattern matches for entity kinds the remote answer lacks entirely.
func (s *EntityExtractionStage) extract(ctx context.Context, text string) []domain.Entity {
	var primary []domain.Entity
	if s.extractor != nil {
		remote, err := s.extractor.Extract(ctx, text)
		if err != nil {
			s.log.WithError(err).Warn("Remote entity extraction failed, using pattern fallback")
		} else {
			primary = remote
		}
	}

	supplement, err := s.fallback.Extract(ctx, text)
	if err != nil {
		s.log.WithError(err).Warn("Pattern extraction failed")
	}
	return mergeEntities(primary, supplement)
}

// mergeEntities dedupes by normalized name and adds supplement entities only
// for kinds absent from the primary set.
func mergeEntities(primary, supplement []domain.Entity) []domain.Entity {
	seen := make(map[string]bool, len(primary))
	kinds := make(map[domain.EntityType]bool)
	out := make([]domain.Entity, 0, len(primary))

	for _, e := range primary {
		key := domain.NormalizeName(e.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		kinds[e.Type] = true
		out = append(out, e)
	}
	for _, e := range supplement {
		if kinds[e.Type] {
			continue
		}
		key := domain.NormalizeName(e.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
