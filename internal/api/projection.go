package api

import (
	"fmt"

	"github.com/biomind-nexus-server/internal/domain"
)

// buildGraphProjection renders the mechanistic subgraph of a report. Only
// nodes and edges on accepted simulation paths are included; a node name
// that fails the label whitelist means upstream validation leaked and the
// projection is refused.
func buildGraphProjection(state *domain.WorkflowState) (*domain.GraphProjection, error) {
	projection := &domain.GraphProjection{
		Nodes: []domain.GraphNode{},
		Edges: []domain.ProjectionEdge{},
	}
	if state.Simulation == nil {
		projection.Stats = map[string]int{"nodes": 0, "edges": 0, "paths": 0}
		return projection, nil
	}

	nodeSeen := make(map[string]bool)
	edgeSeen := make(map[string]bool)

	for _, path := range state.Simulation.ValidPaths {
		ids := make([]string, len(path.Nodes))
		for i, node := range path.Nodes {
			if !domain.ValidNodeLabel(node.Name) {
				return nil, fmt.Errorf("projection contains non-entity node label %q", node.Name)
			}
			id := domain.NormalizeID(node.Name)
			ids[i] = id
			if nodeSeen[id] {
				continue
			}
			nodeSeen[id] = true
			projection.Nodes = append(projection.Nodes, domain.GraphNode{
				ID:    id,
				Label: node.Name,
				Type:  inferNodeType(node),
			})
		}

		for i, relation := range path.Relations {
			key := ids[i] + "|" + ids[i+1] + "|" + string(relation)
			if edgeSeen[key] {
				continue
			}
			edgeSeen[key] = true
			projection.Edges = append(projection.Edges, domain.ProjectionEdge{
				Source:   ids[i],
				Target:   ids[i+1],
				Relation: relation,
			})
		}
	}

	projection.Stats = map[string]int{
		"nodes": len(projection.Nodes),
		"edges": len(projection.Edges),
		"paths": len(state.Simulation.ValidPaths),
	}
	return projection, nil
}

// inferNodeType fills in a type for nodes the simulator could not classify.
func inferNodeType(node domain.PathNode) domain.EntityType {
	if node.Type != "" {
		return node.Type
	}
	return domain.EntityGene
}
