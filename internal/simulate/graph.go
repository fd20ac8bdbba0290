package simulate

import (
	"sort"
	"strings"

	"github.com/biomind-nexus-server/internal/domain"
)

// outEdge is one directed adjacency entry, keyed by normalized node name.
type outEdge struct {
	Target     string
	TargetName string
	TargetType domain.EntityType
	Relation   domain.RelationType
	Confidence float64
}

// BiologicalGraph is the in-memory graph the simulator walks. Node keys are
// normalized names (lower case, trimmed). Adjacency lists are sorted by
// (target, relation) so traversal order is deterministic.
type BiologicalGraph struct {
	adj   map[string][]outEdge
	types map[string]domain.EntityType
	names map[string]string
}

// NewBiologicalGraph builds a graph from context edges. Duplicate edges
// keep the higher confidence.
func NewBiologicalGraph(edges []domain.Edge) *BiologicalGraph {
	g := &BiologicalGraph{
		adj:   make(map[string][]outEdge),
		types: make(map[string]domain.EntityType),
		names: make(map[string]string),
	}
	for _, e := range edges {
		g.AddEdge(e)
	}
	g.finalize()
	return g
}

// AddEdge inserts one edge, deduplicating on (source, target, relation).
func (g *BiologicalGraph) AddEdge(e domain.Edge) {
	src := domain.NormalizeName(e.SourceName)
	dst := domain.NormalizeName(e.TargetName)
	if src == "" || dst == "" || src == dst {
		return
	}

	g.rememberNode(src, e.SourceName, e.SourceType)
	g.rememberNode(dst, e.TargetName, e.TargetType)

	for i, existing := range g.adj[src] {
		if existing.Target == dst && existing.Relation == e.Relation {
			if e.Confidence > existing.Confidence {
				g.adj[src][i].Confidence = e.Confidence
			}
			return
		}
	}
	g.adj[src] = append(g.adj[src], outEdge{
		Target:     dst,
		TargetName: e.TargetName,
		TargetType: e.TargetType,
		Relation:   e.Relation,
		Confidence: e.Confidence,
	})
}

func (g *BiologicalGraph) rememberNode(key, name string, t domain.EntityType) {
	if _, ok := g.names[key]; !ok {
		g.names[key] = name
	}
	if t != "" {
		g.types[key] = t
	}
}

func (g *BiologicalGraph) finalize() {
	for key := range g.adj {
		edges := g.adj[key]
		sort.SliceStable(edges, func(i, j int) bool {
			if edges[i].Target != edges[j].Target {
				return edges[i].Target < edges[j].Target
			}
			return edges[i].Relation < edges[j].Relation
		})
	}
}

// HasNode reports whether a normalized name exists in the graph.
func (g *BiologicalGraph) HasNode(name string) bool {
	key := domain.NormalizeName(name)
	if _, ok := g.adj[key]; ok {
		return true
	}
	_, ok := g.names[key]
	return ok
}

// NodeType returns the recorded entity type for a node, defaulting to gene
// for interior pathway members with no recorded type.
func (g *BiologicalGraph) NodeType(key string) domain.EntityType {
	if t, ok := g.types[key]; ok {
		return t
	}
	return domain.EntityGene
}

// NodeName returns the display name recorded for a node key.
func (g *BiologicalGraph) NodeName(key string) string {
	if n, ok := g.names[key]; ok {
		return n
	}
	return key
}

// Neighbors returns the sorted out-edges of a node.
func (g *BiologicalGraph) Neighbors(key string) []outEdge {
	return g.adj[key]
}

// EdgeConfidence returns the stored confidence of one edge, 0 when absent.
func (g *BiologicalGraph) EdgeConfidence(from, to string, rel domain.RelationType) float64 {
	for _, e := range g.adj[from] {
		if e.Target == to && e.Relation == rel {
			return e.Confidence
		}
	}
	return 0
}

// matchesDisease reports whether a node key equals or contains the disease.
func matchesDisease(key, disease string) bool {
	d := domain.NormalizeName(disease)
	return key == d || strings.Contains(key, d)
}
