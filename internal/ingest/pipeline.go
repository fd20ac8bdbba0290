package ingest

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
	"github.com/biomind-nexus-server/pkg/external"
)

// Ingestion limits.
const (
	maxPMIDsPerRun     = 10
	minEdgeConfidence  = 0.5
	edgeConfidenceDamp = 0.8
	minEntityNameLen   = 3
)

// Pipeline populates the knowledge graph from literature when a query's
// drug/disease pair has no pathway coverage. The seen-PMID set is process
// wide: two concurrent queries for the same pair trigger at most one
// ingestion of any given article.
type Pipeline struct {
	literature domain.LiteratureClient
	extractor  domain.EntityExtractor
	graph      domain.GraphRepository
	audit      domain.AuditLogger
	log        *logrus.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(literature domain.LiteratureClient, extractor domain.EntityExtractor, graph domain.GraphRepository, audit domain.AuditLogger, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		literature: literature,
		extractor:  extractor,
		graph:      graph,
		audit:      audit,
		log:        log,
		seen:       make(map[string]bool),
	}
}

// Result summarizes one ingestion run.
type Result struct {
	Triggered     bool `json:"triggered"`
	PMIDsFetched  int  `json:"pmids_fetched"`
	PMIDsSkipped  int  `json:"pmids_skipped"`
	EdgesUpserted int  `json:"edges_upserted"`
}

// IngestIfMissing checks pathway coverage for the pair and ingests when
// fewer than one pathway edge exists. Returns the run summary.
func (p *Pipeline) IngestIfMissing(ctx context.Context, drug, disease, userID, requestID string) (*Result, error) {
	count, err := p.graph.EdgeCount(ctx, drug, disease)
	if err != nil {
		return nil, err
	}
	if count >= 1 {
		return &Result{}, nil
	}

	p.audit.Log(ctx, domain.AuditIngestionTriggered, userID, requestID, "ingestion",
		drug+"/"+disease, map[string]string{"reason": "no pathway edges"})

	return p.Ingest(ctx, drug, disease)
}

// Ingest searches literature for the pair and extracts graph edges from the
// retrieved abstracts.
func (p *Pipeline) Ingest(ctx context.Context, drug, disease string) (*Result, error) {
	result := &Result{Triggered: true}

	term := external.SearchTerm(drug, disease)
	pmids, err := p.literature.Search(ctx, term, maxPMIDsPerRun)
	if err != nil {
		return nil, err
	}

	fresh := p.claimPMIDs(pmids)
	result.PMIDsSkipped = len(pmids) - len(fresh)
	if len(fresh) == 0 {
		p.log.WithFields(logrus.Fields{
			"drug":    drug,
			"disease": disease,
			"skipped": result.PMIDsSkipped,
		}).Info("All candidate articles already ingested")
		return result, nil
	}

	citations, err := p.literature.Fetch(ctx, fresh)
	if err != nil {
		p.releasePMIDs(fresh)
		return nil, err
	}
	result.PMIDsFetched = len(citations)

	for _, citation := range citations {
		if err := ctx.Err(); err != nil {
			return result, domain.WrapError(domain.ErrCancelled, "ingestion cancelled", err)
		}
		upserted, err := p.ingestCitation(ctx, citation)
		if err != nil {
			return result, err
		}
		result.EdgesUpserted += upserted
	}

	p.log.WithFields(logrus.Fields{
		"drug":     drug,
		"disease":  disease,
		"fetched":  result.PMIDsFetched,
		"skipped":  result.PMIDsSkipped,
		"upserted": result.EdgesUpserted,
	}).Info("Ingestion run complete")

	return result, nil
}

// claimPMIDs marks unseen ids as seen and returns them. Marking happens
// before fetching so a concurrent run cannot claim the same article.
func (p *Pipeline) claimPMIDs(pmids []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fresh []string
	for _, pmid := range pmids {
		if p.seen[pmid] {
			continue
		}
		p.seen[pmid] = true
		fresh = append(fresh, pmid)
	}
	return fresh
}

// releasePMIDs un-claims ids after a failed fetch so a later run can retry.
func (p *Pipeline) releasePMIDs(pmids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pmid := range pmids {
		delete(p.seen, pmid)
	}
}

// ingestCitation extracts entities from one article and upserts every
// detected relation.
func (p *Pipeline) ingestCitation(ctx context.Context, citation domain.Citation) (int, error) {
	text := citation.Title + ". " + citation.Abstract
	entities, err := p.extractor.Extract(ctx, text)
	if err != nil {
		p.log.WithError(err).WithField("pmid", citation.PMID).
			Warn("Entity extraction failed for article, skipping")
		return 0, nil
	}

	var usable []domain.Entity
	for _, e := range entities {
		if len(e.Name) >= minEntityNameLen {
			usable = append(usable, e)
		}
	}
	if len(usable) < 2 {
		return 0, nil
	}

	upserted := 0
	for _, sentence := range domain.SplitSentences(text) {
		relation, ok := domain.DetectRelation(sentence)
		if !ok {
			continue
		}

		mentioned := entitiesInSentence(sentence, usable)
		for i := 0; i < len(mentioned); i++ {
			for j := i + 1; j < len(mentioned); j++ {
				edge, ok := buildEdge(mentioned[i], mentioned[j], relation, citation.PMID)
				if !ok {
					continue
				}
				if err := p.graph.UpsertRelation(ctx, edge); err != nil {
					if domain.KindOf(err) == domain.ErrPolicyDenied {
						p.log.WithError(err).Debug("Edge rejected by graph policy")
						continue
					}
					return upserted, err
				}
				upserted++
			}
		}
	}
	return upserted, nil
}

func entitiesInSentence(sentence string, entities []domain.Entity) []domain.Entity {
	lower := strings.ToLower(sentence)
	var out []domain.Entity
	for _, e := range entities {
		if strings.Contains(lower, strings.ToLower(e.Name)) {
			out = append(out, e)
		}
	}
	return out
}

// buildEdge orients and scores an edge between two co-mentioned entities.
// Drugs always point outward and diseases are always targets; confidence is
// the damped minimum of the entity confidences.
func buildEdge(a, b domain.Entity, relation domain.RelationType, pmid string) (domain.Edge, bool) {
	source, target := a, b
	if b.Type == domain.EntityDrug && a.Type != domain.EntityDrug {
		source, target = b, a
	}
	if source.Type == domain.EntityDisease && target.Type != domain.EntityDisease {
		source, target = target, source
	}
	if source.Type == target.Type && source.Type == domain.EntityDisease {
		return domain.Edge{}, false
	}

	confidence := source.Confidence
	if target.Confidence < confidence {
		confidence = target.Confidence
	}
	confidence *= edgeConfidenceDamp
	if confidence < minEdgeConfidence {
		return domain.Edge{}, false
	}

	return domain.Edge{
		Source:     source.ID,
		SourceName: source.Name,
		SourceType: source.Type,
		Target:     target.ID,
		TargetName: target.Name,
		TargetType: target.Type,
		Relation:   relation,
		Confidence: confidence,
		Provenance: []string{pmid},
		Method:     domain.MethodNERRegex,
	}, true
}
