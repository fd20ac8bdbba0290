package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
)

// Runner executes parameterized graph queries. Driver bindings live behind
// this interface; the repository never sees a driver type.
type Runner interface {
	ExecuteRead(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error)
	ExecuteWrite(ctx context.Context, query string, params map[string]interface{}) error
}

// Read limits per query-context section.
const (
	drugTargetLimit  = 20
	diseaseGeneLimit = 30
	pathwayEdgeLimit = 50
	neighborLimit    = 50
)

// Repository is the knowledge-graph access layer. Node labels and relation
// types are validated against the domain whitelists before query text is
// assembled; user-supplied values only ever travel as parameters.
type Repository struct {
	runner       Runner
	log          *logrus.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewRepository creates a graph repository.
func NewRepository(runner Runner, log *logrus.Logger, readTimeout, writeTimeout time.Duration) *Repository {
	if readTimeout == 0 {
		readTimeout = 5 * time.Second
	}
	if writeTimeout == 0 {
		writeTimeout = 10 * time.Second
	}
	return &Repository{
		runner:       runner,
		log:          log,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// UpsertEntity merges an entity node. Entity types outside the storable set
// are policy violations, not queries.
func (r *Repository) UpsertEntity(ctx context.Context, entity domain.Entity) error {
	if !entity.Type.GraphStorable() {
		return domain.NewError(domain.ErrPolicyDenied,
			fmt.Sprintf("entity type %q may not be written to the graph", entity.Type))
	}
	if !domain.ValidNodeLabel(entity.Name) {
		return domain.NewError(domain.ErrPolicyDenied,
			fmt.Sprintf("invalid node label %q", entity.Name))
	}

	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		ON CREATE SET n.name = $name, n.confidence = $confidence
		ON MATCH SET n.confidence = CASE WHEN $confidence > n.confidence THEN $confidence ELSE n.confidence END
	`, entity.Type.GraphLabel())

	err := r.runner.ExecuteWrite(ctx, query, map[string]interface{}{
		"id":         entity.ID,
		"name":       entity.Name,
		"confidence": entity.Confidence,
	})
	if err != nil {
		r.log.WithError(err).WithField("entity", entity.ID).Error("Failed to upsert entity")
		return domain.WrapError(domain.ErrRepoUnavailable, "failed to upsert entity", err)
	}
	return nil
}

// UpsertRelation merges an edge. Confidence takes the max of old and new,
// citation provenance is unioned, and the extraction method only upgrades
// toward higher authority.
func (r *Repository) UpsertRelation(ctx context.Context, edge domain.Edge) error {
	if !edge.SourceType.GraphStorable() || !edge.TargetType.GraphStorable() {
		return domain.NewError(domain.ErrPolicyDenied,
			fmt.Sprintf("edge endpoint types %q -> %q may not be written to the graph",
				edge.SourceType, edge.TargetType))
	}
	if !edge.Relation.Valid() || edge.Relation == domain.RelationUnknown {
		return domain.NewError(domain.ErrPolicyDenied,
			fmt.Sprintf("relation %q may not be written to the graph", edge.Relation))
	}
	if !domain.ValidNodeLabel(edge.SourceName) || !domain.ValidNodeLabel(edge.TargetName) {
		return domain.NewError(domain.ErrPolicyDenied, "invalid node label on edge endpoint")
	}

	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		MERGE (a:%s {id: $source_id}) ON CREATE SET a.name = $source_name
		MERGE (b:%s {id: $target_id}) ON CREATE SET b.name = $target_name
		MERGE (a)-[rel:%s]->(b)
		ON CREATE SET rel.confidence = $confidence, rel.pmids = $pmids,
			rel.method = $method, rel.method_rank = $method_rank
		ON MATCH SET
			rel.confidence = CASE WHEN $confidence > rel.confidence THEN $confidence ELSE rel.confidence END,
			rel.pmids = apoc.coll.toSet(rel.pmids + $pmids),
			rel.method = CASE WHEN $method_rank > coalesce(rel.method_rank, 0) THEN $method ELSE rel.method END,
			rel.method_rank = CASE WHEN $method_rank > coalesce(rel.method_rank, 0) THEN $method_rank ELSE rel.method_rank END
	`, edge.SourceType.GraphLabel(), edge.TargetType.GraphLabel(), relationToken(edge.Relation))

	err := r.runner.ExecuteWrite(ctx, query, map[string]interface{}{
		"source_id":   edge.Source,
		"source_name": edge.SourceName,
		"target_id":   edge.Target,
		"target_name": edge.TargetName,
		"confidence":  edge.Confidence,
		"pmids":       edge.Provenance,
		"method":      string(edge.Method),
		"method_rank": edge.Method.Rank(),
	})
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"source":   edge.Source,
			"target":   edge.Target,
			"relation": edge.Relation,
		}).Error("Failed to upsert relation")
		return domain.WrapError(domain.ErrRepoUnavailable, "failed to upsert relation", err)
	}

	r.log.WithFields(logrus.Fields{
		"source":   edge.Source,
		"target":   edge.Target,
		"relation": edge.Relation,
	}).Debug("Relation upserted")
	return nil
}

// LoadQueryContext loads the graph slice relevant to a drug/disease pair.
func (r *Repository) LoadQueryContext(ctx context.Context, drug, disease string) (*domain.GraphContext, error) {
	ctx, cancel := context.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	gc := &domain.GraphContext{Drug: drug, Disease: disease}

	drugID := domain.EntityID(domain.EntityDrug, drug)
	diseaseID := domain.EntityID(domain.EntityDisease, disease)

	targets, err := r.readEdges(ctx, `
		MATCH (d:Drug {id: $drug_id})-[rel]->(t)
		RETURN d.id AS source, d.name AS source_name, 'drug' AS source_type,
			t.id AS target, t.name AS target_name, labels(t)[0] AS target_type,
			type(rel) AS relation, rel.confidence AS confidence, rel.pmids AS pmids, rel.method AS method
		LIMIT `+fmt.Sprint(drugTargetLimit),
		map[string]interface{}{"drug_id": drugID})
	if err != nil {
		return nil, err
	}
	gc.DrugTargets = targets

	genes, err := r.readEdges(ctx, `
		MATCH (g)-[rel]->(d:Disease {id: $disease_id})
		RETURN g.id AS source, g.name AS source_name, labels(g)[0] AS source_type,
			d.id AS target, d.name AS target_name, 'disease' AS target_type,
			type(rel) AS relation, rel.confidence AS confidence, rel.pmids AS pmids, rel.method AS method
		LIMIT `+fmt.Sprint(diseaseGeneLimit),
		map[string]interface{}{"disease_id": diseaseID})
	if err != nil {
		return nil, err
	}
	gc.DiseaseGenes = genes

	pathway, err := r.readEdges(ctx, `
		MATCH (d:Drug {id: $drug_id})-[*1..3]->(mid)-[rel]->(x)
		WHERE (x)-[]->(:Disease {id: $disease_id}) OR x.id = $disease_id
		RETURN mid.id AS source, mid.name AS source_name, labels(mid)[0] AS source_type,
			x.id AS target, x.name AS target_name, labels(x)[0] AS target_type,
			type(rel) AS relation, rel.confidence AS confidence, rel.pmids AS pmids, rel.method AS method
		LIMIT `+fmt.Sprint(pathwayEdgeLimit),
		map[string]interface{}{"drug_id": drugID, "disease_id": diseaseID})
	if err != nil {
		return nil, err
	}
	gc.PathwayEdges = pathway

	neighbors, err := r.readEdges(ctx, `
		MATCH (n)-[rel]->(m)
		WHERE n.id IN [$drug_id, $disease_id] OR m.id IN [$drug_id, $disease_id]
		RETURN n.id AS source, n.name AS source_name, labels(n)[0] AS source_type,
			m.id AS target, m.name AS target_name, labels(m)[0] AS target_type,
			type(rel) AS relation, rel.confidence AS confidence, rel.pmids AS pmids, rel.method AS method
		LIMIT `+fmt.Sprint(neighborLimit),
		map[string]interface{}{"drug_id": drugID, "disease_id": diseaseID})
	if err != nil {
		return nil, err
	}
	gc.Neighbors = neighbors

	r.log.WithFields(logrus.Fields{
		"drug":          drug,
		"disease":       disease,
		"drug_targets":  len(gc.DrugTargets),
		"disease_genes": len(gc.DiseaseGenes),
		"pathway_edges": len(gc.PathwayEdges),
		"neighbors":     len(gc.Neighbors),
	}).Debug("Graph context loaded")

	return gc, nil
}

// EdgeCount reports how many pathway edges exist between a drug and disease.
func (r *Repository) EdgeCount(ctx context.Context, drug, disease string) (int, error) {
	gc, err := r.LoadQueryContext(ctx, drug, disease)
	if err != nil {
		return 0, err
	}
	return len(gc.PathwayEdges), nil
}

func (r *Repository) readEdges(ctx context.Context, query string, params map[string]interface{}) ([]domain.Edge, error) {
	rows, err := r.runner.ExecuteRead(ctx, query, params)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRepoUnavailable, "graph read failed", err)
	}

	edges := make([]domain.Edge, 0, len(rows))
	for _, row := range rows {
		edge := domain.Edge{
			Source:     stringVal(row["source"]),
			SourceName: stringVal(row["source_name"]),
			SourceType: domain.EntityType(stringVal(row["source_type"])),
			Target:     stringVal(row["target"]),
			TargetName: stringVal(row["target_name"]),
			TargetType: domain.EntityType(stringVal(row["target_type"])),
			Relation:   normalizeRelation(stringVal(row["relation"])),
			Confidence: floatVal(row["confidence"]),
			Method:     domain.ExtractionMethod(stringVal(row["method"])),
		}
		switch pmids := row["pmids"].(type) {
		case []string:
			edge.Provenance = pmids
		case []interface{}:
			for _, p := range pmids {
				edge.Provenance = append(edge.Provenance, stringVal(p))
			}
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// relationToken maps a relation to its graph edge type (upper case).
func relationToken(r domain.RelationType) string {
	token := make([]byte, len(r))
	for i := 0; i < len(r); i++ {
		c := r[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		token[i] = c
	}
	return string(token)
}

// normalizeRelation lowers a stored edge type back to a RelationType,
// mapping anything unrecognized to unknown.
func normalizeRelation(raw string) domain.RelationType {
	lowered := make([]byte, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lowered[i] = c
	}
	rel := domain.RelationType(lowered)
	if !rel.Valid() {
		return domain.RelationUnknown
	}
	return rel
}

func stringVal(v interface{}) string {
	s, _ := v.(string)
	return s
}

func floatVal(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
