package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
	"github.com/biomind-nexus-server/internal/metrics"
)

// Stage is one step of the query workflow. Run mutates the shared state.
type Stage interface {
	Name() string
	Run(ctx context.Context, state *domain.WorkflowState) error
}

// InputChecker lets a stage declare required inputs; the runner refuses to
// start a stage whose inputs are missing.
type InputChecker interface {
	CheckInput(state *domain.WorkflowState) error
}

// OutputChecker lets a stage declare required outputs; the runner fails a
// stage that completed without producing them.
type OutputChecker interface {
	CheckOutput(state *domain.WorkflowState) error
}

// Skipper lets a stage opt out based on state. Skipped stages leave no
// record in the stage history.
type Skipper interface {
	Skip(state *domain.WorkflowState) (bool, string)
}

// Runner executes stages in order, enforcing contracts, timeouts, audit
// events and cancellation. The final stage always runs, even when an
// earlier stage failed.
type Runner struct {
	stages       []Stage
	final        Stage
	audit        domain.AuditLogger
	log          *logrus.Logger
	metrics      *metrics.Metrics
	stageTimeout time.Duration
}

// NewRunner creates a stage runner. final is the mandatory closing stage.
func NewRunner(stages []Stage, final Stage, audit domain.AuditLogger, m *metrics.Metrics, log *logrus.Logger, stageTimeout time.Duration) *Runner {
	if stageTimeout == 0 {
		stageTimeout = 120 * time.Second
	}
	return &Runner{
		stages:       stages,
		final:        final,
		audit:        audit,
		log:          log,
		metrics:      m,
		stageTimeout: stageTimeout,
	}
}

// Execute runs the workflow. The first stage failure stops the ordinary
// sequence; the final stage still runs so every workflow ends with a
// verdict.
func (r *Runner) Execute(ctx context.Context, state *domain.WorkflowState) error {
	var firstErr error

	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			firstErr = domain.WrapError(domain.ErrCancelled, "workflow cancelled", err)
			break
		}
		if err := r.runStage(ctx, stage, state); err != nil {
			firstErr = err
			break
		}
	}

	if err := r.runStage(ctx, r.final, state); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (r *Runner) runStage(ctx context.Context, stage Stage, state *domain.WorkflowState) error {
	name := stage.Name()
	logger := r.log.WithFields(logrus.Fields{
		"stage":    name,
		"query_id": state.QueryID,
	})

	if skipper, ok := stage.(Skipper); ok {
		if skip, reason := skipper.Skip(state); skip {
			logger.WithField("reason", reason).Info("Stage skipped")
			return nil
		}
	}

	if checker, ok := stage.(InputChecker); ok {
		if err := checker.CheckInput(state); err != nil {
			return r.fail(ctx, state, name, time.Now().UTC(), 0, err)
		}
	}

	r.audit.Log(ctx, domain.AuditStageStarted, state.UserID, state.RequestID, name, "", nil)
	started := time.Now().UTC()

	stageCtx, cancel := context.WithTimeout(ctx, r.stageTimeout)
	err := stage.Run(stageCtx, state)
	cancel()
	duration := time.Since(started)

	if err == nil {
		if checker, ok := stage.(OutputChecker); ok {
			if cerr := checker.CheckOutput(state); cerr != nil {
				err = cerr
			}
		}
	}

	if err != nil {
		return r.fail(ctx, state, name, started, duration, err)
	}

	state.RecordStage(domain.StageRecord{
		Name:      name,
		Status:    domain.StageCompleted,
		StartedAt: started,
		Duration:  duration,
	})
	r.audit.Log(ctx, domain.AuditStageCompleted, state.UserID, state.RequestID, name, "",
		map[string]string{"duration": duration.String()})
	if r.metrics != nil {
		r.metrics.ObserveStage(name, "completed", duration)
	}
	logger.WithField("duration", duration).Info("Stage completed")
	return nil
}

func (r *Runner) fail(ctx context.Context, state *domain.WorkflowState, name string, started time.Time, duration time.Duration, err error) error {
	state.RecordStage(domain.StageRecord{
		Name:      name,
		Status:    domain.StageFailed,
		StartedAt: started,
		Duration:  duration,
		Error:     err.Error(),
	})
	state.Errors = append(state.Errors, name+": "+err.Error())
	r.audit.Log(ctx, domain.AuditStageFailed, state.UserID, state.RequestID, name, "",
		map[string]string{"error": err.Error()})
	if r.metrics != nil {
		r.metrics.ObserveStage(name, "failed", duration)
	}
	r.log.WithError(err).WithFields(logrus.Fields{
		"stage":    name,
		"query_id": state.QueryID,
	}).Error("Stage failed")
	return err
}
