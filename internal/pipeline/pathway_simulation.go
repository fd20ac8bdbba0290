package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
	"github.com/biomind-nexus-server/internal/simulate"
)

// PathwaySimulationStage loads the graph slice for the pair and runs the
// mechanistic path simulation. Ingestion happens upstream, before the
// pipeline starts; a context pre-loaded there is reused when it covers the
// pair the extraction stage actually parsed.
type PathwaySimulationStage struct {
	graph     domain.GraphRepository
	simulator *simulate.Simulator
	log       *logrus.Logger
}

// NewPathwaySimulationStage creates the simulation stage.
func NewPathwaySimulationStage(graph domain.GraphRepository, simulator *simulate.Simulator, log *logrus.Logger) *PathwaySimulationStage {
	return &PathwaySimulationStage{
		graph:     graph,
		simulator: simulator,
		log:       log,
	}
}

func (s *PathwaySimulationStage) Name() string { return "pathway_simulation" }

// CheckOutput requires a simulation result on the state.
func (s *PathwaySimulationStage) CheckOutput(state *domain.WorkflowState) error {
	if state.Simulation == nil {
		return domain.NewError(domain.ErrStageOutputMissing, "pathway simulation produced no result")
	}
	return nil
}

func (s *PathwaySimulationStage) Run(ctx context.Context, state *domain.WorkflowState) error {
	gctx := state.Graph
	if gctx == nil || !gctx.CoversPair(state.Query.Drug, state.Query.Disease) {
		gctx = s.loadContext(ctx, state)
	}
	state.Graph = gctx

	state.Simulation = s.simulator.Run(simulate.Input{
		Drug:     state.Query.Drug,
		Disease:  state.Query.Disease,
		Edges:    gctx.AllEdges(),
		Entities: state.Entities,
		Evidence: state.Evidence,
	})
	return nil
}

// loadContext fetches the graph slice; an unavailable graph degrades to an
// empty context so the simulator falls back to canonical edges.
func (s *PathwaySimulationStage) loadContext(ctx context.Context, state *domain.WorkflowState) *domain.GraphContext {
	gctx, err := s.graph.LoadQueryContext(ctx, state.Query.Drug, state.Query.Disease)
	if err != nil {
		s.log.WithError(err).WithField("query_id", state.QueryID).
			Warn("Graph context load failed, simulating from canonical assumptions")
		return &domain.GraphContext{Drug: state.Query.Drug, Disease: state.Query.Disease}
	}
	return gctx
}
