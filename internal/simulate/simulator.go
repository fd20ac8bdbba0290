package simulate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
)

// Scoring constants for path evaluation.
const (
	maxPathDepth      = 5
	minPathConfidence = 0.15
	lengthPenaltyBase = 0.85
	supportWeight     = 0.3
	topPathsForScore  = 3
	maxExpansions     = 10000
	maxRejectedPaths  = 10
)

// Canonical assumption-edge confidences. These edges are always present so
// a drug unknown to the graph still yields a scored (low-confidence) route.
const (
	canonicalDrugGeneConf    = 0.6
	canonicalGeneDiseaseConf = 0.5
	canonicalDirectConf      = 0.4
)

// Simulator walks the biological graph breadth-first from the drug and
// scores every route that reaches the disease. Traversal is deterministic:
// identical inputs produce identical paths in identical order.
type Simulator struct {
	log *logrus.Logger
}

// NewSimulator creates a pathway simulator.
func NewSimulator(log *logrus.Logger) *Simulator {
	return &Simulator{log: log}
}

// Input bundles everything one simulation run needs.
type Input struct {
	Drug     string
	Disease  string
	Edges    []domain.Edge
	Entities []domain.Entity
	Evidence []domain.Evidence
}

// Run simulates drug-to-disease pathways and scores them. The graph is the
// union of stored context edges, edges derived from evidence statements,
// and canonical assumption edges; where the same edge appears twice the
// higher confidence wins.
func (s *Simulator) Run(input Input) *domain.SimulationResult {
	result := &domain.SimulationResult{}

	if strings.TrimSpace(input.Drug) == "" {
		result.Explanation = "No pathway search performed: the query names no drug."
		result.RejectedPaths = []domain.RejectedPath{{
			Description: "pathway search not attempted",
			Reason:      "need at least one drug entity to anchor the walk",
		}}
		return result
	}
	if strings.TrimSpace(input.Disease) == "" {
		result.Explanation = "No pathway search performed: the query names no disease."
		result.RejectedPaths = []domain.RejectedPath{{
			Description: "pathway search not attempted",
			Reason:      "need at least one disease entity to target the walk",
		}}
		return result
	}

	edges := append([]domain.Edge{}, input.Edges...)
	edges = append(edges, evidenceEdges(input.Drug, input.Disease, input.Entities, input.Evidence)...)

	result.UsedFallback = !NewBiologicalGraph(edges).HasNode(input.Drug)
	if result.UsedFallback {
		s.log.WithFields(logrus.Fields{
			"drug":    input.Drug,
			"disease": input.Disease,
		}).Info("Drug absent from graph, paths will rest on canonical assumption edges")
	}

	edges = append(edges, canonicalEdges(input.Drug, input.Disease, input.Entities)...)
	graph := NewBiologicalGraph(edges)

	for _, hops := range s.findPaths(graph, input.Drug, input.Disease) {
		path := s.scorePath(hops, input.Evidence)
		if path.Confidence >= minPathConfidence {
			result.ValidPaths = append(result.ValidPaths, path)
			continue
		}
		result.RejectedPaths = append(result.RejectedPaths, domain.RejectedPath{
			Description: path.Rationale,
			Confidence:  path.Confidence,
			Reason: fmt.Sprintf("confidence %.3f below the %.2f acceptance threshold",
				path.Confidence, minPathConfidence),
		})
	}

	sort.SliceStable(result.ValidPaths, func(i, j int) bool {
		a, b := result.ValidPaths[i], result.ValidPaths[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if len(a.Relations) != len(b.Relations) {
			return len(a.Relations) < len(b.Relations)
		}
		return a.Rationale < b.Rationale
	})
	sort.SliceStable(result.RejectedPaths, func(i, j int) bool {
		a, b := result.RejectedPaths[i], result.RejectedPaths[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Description < b.Description
	})
	if len(result.RejectedPaths) > maxRejectedPaths {
		result.RejectedPaths = result.RejectedPaths[:maxRejectedPaths]
	}

	result.Plausibility = plausibility(result.ValidPaths)
	result.Explanation = explain(input.Drug, input.Disease, result)

	s.log.WithFields(logrus.Fields{
		"drug":           input.Drug,
		"disease":        input.Disease,
		"valid_paths":    len(result.ValidPaths),
		"rejected_paths": len(result.RejectedPaths),
		"plausibility":   result.Plausibility,
		"fallback":       result.UsedFallback,
	}).Debug("Pathway simulation complete")

	return result
}

// pathState is one partial BFS route.
type pathState struct {
	nodes     []string
	relations []domain.RelationType
}

// findPaths runs a bounded breadth-first search from the drug node. Cycles
// are pruned per path; expansion stops at maxPathDepth edges.
func (s *Simulator) findPaths(graph *BiologicalGraph, drug, disease string) [][]pathHop {
	start := domain.NormalizeName(drug)
	queue := []pathState{{nodes: []string{start}}}
	var found [][]pathHop
	expansions := 0

	for len(queue) > 0 && expansions < maxExpansions {
		state := queue[0]
		queue = queue[1:]

		current := state.nodes[len(state.nodes)-1]
		if matchesDisease(current, disease) && len(state.nodes) > 1 {
			found = append(found, toHops(graph, state))
			continue
		}
		if len(state.nodes) > maxPathDepth {
			continue
		}

		for _, edge := range graph.Neighbors(current) {
			if containsNode(state.nodes, edge.Target) {
				continue
			}
			expansions++
			next := pathState{
				nodes:     append(append([]string{}, state.nodes...), edge.Target),
				relations: append(append([]domain.RelationType{}, state.relations...), edge.Relation),
			}
			queue = append(queue, next)
		}
	}
	return found
}

// pathHop pairs a resolved node with the relation that led into it.
type pathHop struct {
	Key      string
	Name     string
	Type     domain.EntityType
	Relation domain.RelationType // relation from the previous hop; unset on the first
	EdgeConf float64
}

func toHops(graph *BiologicalGraph, state pathState) []pathHop {
	hops := make([]pathHop, len(state.nodes))
	for i, key := range state.nodes {
		hops[i] = pathHop{
			Key:  key,
			Name: graph.NodeName(key),
			Type: graph.NodeType(key),
		}
		if i > 0 {
			hops[i].Relation = state.relations[i-1]
			hops[i].EdgeConf = graph.EdgeConfidence(state.nodes[i-1], key, state.relations[i-1])
		}
	}
	return hops
}

func containsNode(nodes []string, key string) bool {
	for _, n := range nodes {
		if n == key {
			return true
		}
	}
	return false
}

// scorePath computes the full confidence breakdown for one path. Relation
// strength is already folded into edge confidences when the graph is built,
// so the base here is the plain product.
func (s *Simulator) scorePath(hops []pathHop, evidence []domain.Evidence) domain.PathwayPath {
	path := domain.PathwayPath{}
	base := 1.0
	for i, hop := range hops {
		path.Nodes = append(path.Nodes, domain.PathNode{Name: hop.Name, Type: hop.Type})
		if i == 0 {
			continue
		}
		path.Relations = append(path.Relations, hop.Relation)
		base *= hop.EdgeConf
	}

	edgeCount := len(hops) - 1
	path.BaseConfidence = base
	path.LengthPenalty = math.Pow(lengthPenaltyBase, float64(edgeCount-1))
	path.EvidenceSupport = evidenceSupport(hops, evidence)
	path.Confidence = math.Min(1.0,
		path.BaseConfidence*path.LengthPenalty*(1.0+supportWeight*path.EvidenceSupport))
	path.Rationale = rationale(hops)
	return path
}

// evidenceSupport averages, over all evidence, the evidence confidence
// scaled by the fraction of path entities it mentions.
func evidenceSupport(hops []pathHop, evidence []domain.Evidence) float64 {
	if len(evidence) == 0 || len(hops) == 0 {
		return 0
	}

	total := 0.0
	for _, ev := range evidence {
		mentioned := make(map[string]bool, len(ev.Entities))
		for _, name := range ev.Entities {
			mentioned[domain.NormalizeName(name)] = true
		}
		overlap := 0
		for _, hop := range hops {
			if mentioned[hop.Key] {
				overlap++
			}
		}
		total += ev.Confidence * float64(overlap) / float64(len(hops))
	}
	return total / float64(len(evidence))
}

// plausibility is the mean confidence of the top scored paths.
func plausibility(paths []domain.PathwayPath) float64 {
	if len(paths) == 0 {
		return 0
	}
	n := topPathsForScore
	if len(paths) < n {
		n = len(paths)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += paths[i].Confidence
	}
	return sum / float64(n)
}

// relationVerbs render relations in rationale sentences.
var relationVerbs = map[domain.RelationType]string{
	domain.RelationInhibits:       "inhibits",
	domain.RelationActivates:      "activates",
	domain.RelationBinds:          "binds",
	domain.RelationModulates:      "modulates",
	domain.RelationUpregulates:    "upregulates",
	domain.RelationDownregulates:  "downregulates",
	domain.RelationPhosphorylates: "phosphorylates",
	domain.RelationCatalyzes:      "catalyzes",
	domain.RelationTransports:     "transports",
	domain.RelationRegulates:      "regulates",
	domain.RelationAssociatesWith: "is associated with",
	domain.RelationTreats:         "treats",
	domain.RelationCauses:         "causes",
	domain.RelationPrevents:       "prevents",
	domain.RelationUnknown:        "relates to",
}

// rationale renders a path as "A inhibits B, which activates C."
func rationale(hops []pathHop) string {
	if len(hops) < 2 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", hops[0].Name, relationVerbs[hops[1].Relation], hops[1].Name)
	for i := 2; i < len(hops); i++ {
		fmt.Fprintf(&b, ", which %s %s", relationVerbs[hops[i].Relation], hops[i].Name)
	}
	b.WriteString(".")
	return b.String()
}

func explain(drug, disease string, result *domain.SimulationResult) string {
	if len(result.ValidPaths) == 0 {
		return fmt.Sprintf("No plausible mechanistic path from %s to %s was found.", drug, disease)
	}
	suffix := ""
	if result.UsedFallback {
		suffix = " Paths are derived from canonical pharmacological assumptions, not curated graph data."
	}
	return fmt.Sprintf("Found %d plausible path(s) from %s to %s; strongest: %s%s",
		len(result.ValidPaths), drug, disease, result.ValidPaths[0].Rationale, suffix)
}

// evidenceEdges derives graph edges from evidence statements. The relation
// verb is detected from the statement text, edges are oriented along the
// drug -> intermediate -> disease axis, and the edge confidence is the
// evidence confidence weighted by the relation's mechanistic strength.
func evidenceEdges(drug, disease string, entities []domain.Entity, evidence []domain.Evidence) []domain.Edge {
	drugKey := domain.NormalizeName(drug)
	diseaseKey := domain.NormalizeName(disease)
	typeOf := entityTypes(entities)

	var edges []domain.Edge
	for _, ev := range evidence {
		rel, ok := domain.DetectRelation(ev.Statement)
		if !ok {
			rel = domain.RelationAssociatesWith
		}
		conf := ev.Confidence * domain.RelationStrength(rel)

		mentioned := make(map[string]string, len(ev.Entities))
		for _, name := range ev.Entities {
			mentioned[domain.NormalizeName(name)] = name
		}
		_, hasDrug := mentioned[drugKey]
		_, hasDisease := mentioned[diseaseKey]

		if hasDrug && hasDisease {
			edges = append(edges, buildEvidenceEdge(drug, domain.EntityDrug, disease, domain.EntityDisease, rel, conf, ev))
		}
		for key, name := range mentioned {
			if key == drugKey || key == diseaseKey {
				continue
			}
			t := typeOf[key]
			if t == "" {
				t = domain.EntityGene
			}
			if hasDrug {
				edges = append(edges, buildEvidenceEdge(drug, domain.EntityDrug, name, t, rel, conf, ev))
			}
			if hasDisease {
				edges = append(edges, buildEvidenceEdge(name, t, disease, domain.EntityDisease, domain.RelationAssociatesWith,
					ev.Confidence*domain.RelationStrength(domain.RelationAssociatesWith), ev))
			}
		}
	}

	sort.SliceStable(edges, func(i, j int) bool {
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

func buildEvidenceEdge(srcName string, srcType domain.EntityType, dstName string, dstType domain.EntityType,
	rel domain.RelationType, conf float64, ev domain.Evidence) domain.Edge {
	var provenance []string
	if ev.SourceID != "" {
		provenance = []string{ev.SourceID}
	}
	return domain.Edge{
		Source: domain.EntityID(srcType, srcName), SourceName: srcName, SourceType: srcType,
		Target: domain.EntityID(dstType, dstName), TargetName: dstName, TargetType: dstType,
		Relation: rel, Confidence: math.Min(1.0, conf), Provenance: provenance,
	}
}

// canonicalEdges builds the standing pharmacological assumption edges: the
// drug modulates each extracted gene or protein, each of those is associated
// with the disease, and the drug is weakly linked to the disease directly.
// Stronger stored or evidence-derived duplicates win on merge.
func canonicalEdges(drug, disease string, entities []domain.Entity) []domain.Edge {
	drugKey := domain.NormalizeName(drug)
	diseaseKey := domain.NormalizeName(disease)

	var edges []domain.Edge
	for _, ent := range entities {
		if ent.Type != domain.EntityGene && ent.Type != domain.EntityProtein {
			continue
		}
		key := domain.NormalizeName(ent.Name)
		if key == drugKey || key == diseaseKey {
			continue
		}
		edges = append(edges,
			domain.Edge{
				Source: domain.EntityID(domain.EntityDrug, drug), SourceName: drug, SourceType: domain.EntityDrug,
				Target: domain.EntityID(ent.Type, ent.Name), TargetName: ent.Name, TargetType: ent.Type,
				Relation: domain.RelationModulates, Confidence: canonicalDrugGeneConf,
			},
			domain.Edge{
				Source: domain.EntityID(ent.Type, ent.Name), SourceName: ent.Name, SourceType: ent.Type,
				Target: domain.EntityID(domain.EntityDisease, disease), TargetName: disease, TargetType: domain.EntityDisease,
				Relation: domain.RelationAssociatesWith, Confidence: canonicalGeneDiseaseConf,
			},
		)
	}
	edges = append(edges, domain.Edge{
		Source: domain.EntityID(domain.EntityDrug, drug), SourceName: drug, SourceType: domain.EntityDrug,
		Target: domain.EntityID(domain.EntityDisease, disease), TargetName: disease, TargetType: domain.EntityDisease,
		Relation: domain.RelationTreats, Confidence: canonicalDirectConf,
	})
	return edges
}

func entityTypes(entities []domain.Entity) map[string]domain.EntityType {
	types := make(map[string]domain.EntityType, len(entities))
	for _, ent := range entities {
		key := domain.NormalizeName(ent.Name)
		if _, ok := types[key]; !ok {
			types[key] = ent.Type
		}
	}
	return types
}
