package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
)

// MemoryRepository is an in-process knowledge graph used in development and
// tests, when no graph database is configured. It applies the same label and
// relation policies as the query-backed repository.
type MemoryRepository struct {
	log *logrus.Logger

	mu       sync.RWMutex
	entities map[string]domain.Entity
	edges    map[string]domain.Edge
}

// NewMemoryRepository creates an empty in-memory graph.
func NewMemoryRepository(log *logrus.Logger) *MemoryRepository {
	return &MemoryRepository{
		log:      log,
		entities: make(map[string]domain.Entity),
		edges:    make(map[string]domain.Edge),
	}
}

// UpsertEntity merges an entity, keeping the higher confidence.
func (m *MemoryRepository) UpsertEntity(ctx context.Context, entity domain.Entity) error {
	if !entity.Type.GraphStorable() {
		return domain.NewError(domain.ErrPolicyDenied,
			fmt.Sprintf("entity type %q may not be written to the graph", entity.Type))
	}
	if !domain.ValidNodeLabel(entity.Name) {
		return domain.NewError(domain.ErrPolicyDenied,
			fmt.Sprintf("invalid node label %q", entity.Name))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entities[entity.ID]; ok && existing.Confidence > entity.Confidence {
		return nil
	}
	m.entities[entity.ID] = entity
	return nil
}

// UpsertRelation merges an edge: confidence takes the max, provenance is
// unioned, and the extraction method only upgrades toward higher authority.
func (m *MemoryRepository) UpsertRelation(ctx context.Context, edge domain.Edge) error {
	if !edge.Relation.Valid() || edge.Relation == domain.RelationUnknown {
		return domain.NewError(domain.ErrPolicyDenied,
			fmt.Sprintf("relation %q may not be written to the graph", edge.Relation))
	}
	if !domain.ValidNodeLabel(edge.SourceName) || !domain.ValidNodeLabel(edge.TargetName) {
		return domain.NewError(domain.ErrPolicyDenied, "invalid node label on edge")
	}

	key := edge.Source + "|" + edge.Target + "|" + string(edge.Relation)

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.edges[key]
	if !ok {
		m.edges[key] = edge
		return nil
	}
	if edge.Confidence > existing.Confidence {
		existing.Confidence = edge.Confidence
	}
	if edge.Method.Rank() > existing.Method.Rank() {
		existing.Method = edge.Method
	}
	existing.Provenance = unionStrings(existing.Provenance, edge.Provenance)
	m.edges[key] = existing
	return nil
}

// LoadQueryContext returns the stored slice relevant to a pair. The memory
// graph is small, so every edge rides along as a pathway edge.
func (m *MemoryRepository) LoadQueryContext(ctx context.Context, drug, disease string) (*domain.GraphContext, error) {
	drugKey := domain.NormalizeName(drug)
	diseaseKey := domain.NormalizeName(disease)

	m.mu.RLock()
	defer m.mu.RUnlock()

	gctx := &domain.GraphContext{Drug: drug, Disease: disease}
	for _, edge := range m.sortedEdges() {
		src := domain.NormalizeName(edge.SourceName)
		dst := domain.NormalizeName(edge.TargetName)
		switch {
		case src == drugKey:
			gctx.DrugTargets = append(gctx.DrugTargets, edge)
		case dst == diseaseKey || strings.Contains(dst, diseaseKey):
			gctx.DiseaseGenes = append(gctx.DiseaseGenes, edge)
		}
		gctx.PathwayEdges = append(gctx.PathwayEdges, edge)
	}
	return gctx, nil
}

// EdgeCount reports how many stored edges touch the pair.
func (m *MemoryRepository) EdgeCount(ctx context.Context, drug, disease string) (int, error) {
	drugKey := domain.NormalizeName(drug)
	diseaseKey := domain.NormalizeName(disease)

	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, edge := range m.edges {
		src := domain.NormalizeName(edge.SourceName)
		dst := domain.NormalizeName(edge.TargetName)
		if src == drugKey || dst == drugKey ||
			src == diseaseKey || strings.Contains(dst, diseaseKey) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryRepository) sortedEdges() []domain.Edge {
	edges := make([]domain.Edge, 0, len(m.edges))
	for _, e := range m.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		if edges[i].Target != edges[j].Target {
			return edges[i].Target < edges[j].Target
		}
		return edges[i].Relation < edges[j].Relation
	})
	return edges
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
