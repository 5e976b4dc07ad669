package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mna-automation/dealcore/dealengine/checkpoint"
	"github.com/mna-automation/dealcore/dealengine/deal"
	"github.com/mna-automation/dealcore/dealengine/observability"
	"github.com/mna-automation/dealcore/eventbus"
)

var tracer = otel.Tracer("dealcore/runtime")

type msgKind int

const (
	// msgSuspended: a stage goroutine is blocked on its checkpoint.
	msgSuspended msgKind = iota
	// msgResumed: the checkpoint resolved, the goroutine is active again.
	msgResumed
	// msgOutcome: the stage goroutine finished this execution cycle.
	msgOutcome
)

type stageMsg struct {
	kind    msgKind
	stage   deal.StageID
	outcome *stageOutcome
}

// stageOutcome is one execution cycle's result. Exactly one of artifact,
// revise, or err is meaningful.
type stageOutcome struct {
	stage    deal.StageID
	artifact *deal.Artifact
	revise   bool
	notes    string
	decision checkpoint.Decision
	err      error
	duration time.Duration
}

// run is the state of one Engine.Run call. The coordinator goroutine owns
// every field; stage goroutines communicate only through the results
// channel.
type run struct {
	engine *Engine
	id     string
	dc     *deal.DealContext
	report *RunReport

	results   chan *stageMsg
	inFlight  map[deal.StageID]bool
	suspended int
	revisions map[deal.StageID]int
	state     deal.RunState
}

func newRun(e *Engine, dc *deal.DealContext) *run {
	id := "run_" + uuid.NewString()[:16]
	stages := make(map[deal.StageID]*StageResult, len(e.graph.StageOrder()))
	for _, stage := range e.graph.StageOrder() {
		stages[stage] = &StageResult{Stage: stage, Status: "not_run"}
	}
	return &run{
		engine: e,
		id:     id,
		dc:     dc,
		report: &RunReport{
			RunID:     id,
			DealID:    dc.DealID,
			GraphName: e.graph.Name,
			Stages:    stages,
		},
		results:   make(chan *stageMsg, 4*maxParallel(e)),
		inFlight:  make(map[deal.StageID]bool),
		revisions: make(map[deal.StageID]int),
		state:     deal.RunStateInitializing,
	}
}

func maxParallel(e *Engine) int {
	if e.cfg.MaxParallel > 0 {
		return e.cfg.MaxParallel
	}
	return 1
}

// execute is the coordinator loop: launch every ready stage up to the
// parallelism bound, wait for one message, update state, repeat until
// nothing is running and nothing can start.
func (r *run) execute(ctx context.Context) (*RunReport, error) {
	e := r.engine
	r.report.StartedAt = time.Now().UTC()
	r.setState(deal.RunStateRunning)

	ctx, span := tracer.Start(ctx, "run.execute", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("run.graph", e.graph.Name),
	))
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stageNames := make([]string, 0, len(e.graph.StageOrder()))
	for _, s := range e.graph.StageOrder() {
		stageNames = append(stageNames, string(s))
	}
	r.publish(ctx, &eventbus.RunStarted{
		RunID: r.id, DealID: r.dc.DealID, GraphName: e.graph.Name, Stages: stageNames,
	})
	e.log.Info("run started",
		"run_id", r.id, "deal_id", r.dc.DealID, "graph", e.graph.Name)

	var failure error
	for {
		if failure == nil {
			if err := runCtx.Err(); err != nil {
				failure = err
			} else {
				r.launchReady(runCtx)
			}
		}
		if len(r.inFlight) == 0 {
			break
		}
		r.refreshSuspension()

		msg := <-r.results
		switch msg.kind {
		case msgSuspended:
			r.suspended++
		case msgResumed:
			r.suspended--
		case msgOutcome:
			delete(r.inFlight, msg.stage)
			if err := r.handleOutcome(ctx, msg.outcome); err != nil && failure == nil {
				failure = err
				r.report.FailedStage = msg.stage
				cancel()
			}
		}
	}

	r.report.FinishedAt = time.Now().UTC()
	if failure == nil {
		r.setState(deal.RunStateCompleted)
	} else {
		r.setState(deal.RunStateFailed)
		r.report.Err = failure
		r.report.ErrorKind = errorKind(failure)
		span.RecordError(failure)
	}
	r.report.State = r.state

	durationMS := int(r.report.Duration().Milliseconds())
	var errMsg *string
	if failure != nil {
		s := failure.Error()
		errMsg = &s
	}
	r.publish(ctx, &eventbus.RunCompleted{
		RunID: r.id, DealID: r.dc.DealID,
		State: string(r.state), DurationMS: durationMS, Error: errMsg,
	})
	observability.RecordRun(e.graph.Name, string(r.state), durationMS)
	if failure == nil {
		e.log.Info("run completed", "run_id", r.id, "duration_ms", durationMS)
	} else {
		e.log.Error("run failed",
			"run_id", r.id, "stage", string(r.report.FailedStage),
			"error_kind", r.report.ErrorKind, "error", failure.Error())
	}
	r.persist(ctx)

	return r.report, failure
}

// launchReady starts every ready stage within the parallelism bound.
// ReadyStages orders by dependency depth then declaration order, so
// scheduling is deterministic for a given commit history.
func (r *run) launchReady(runCtx context.Context) {
	limit := maxParallel(r.engine)
	if len(r.inFlight) >= limit {
		return
	}
	committed := r.dc.CommittedStages()
	for _, stage := range r.engine.graph.ReadyStages(committed, r.inFlight) {
		if len(r.inFlight) >= limit {
			break
		}
		r.inFlight[stage] = true
		revision := r.revisions[stage]
		r.publish(runCtx, &eventbus.StageStarted{
			RunID: r.id, DealID: r.dc.DealID, Stage: string(stage), Revision: revision,
		})
		r.engine.log.Debug("stage started",
			"run_id", r.id, "stage", string(stage), "revision", revision)
		go r.executeStage(runCtx, stage, revision)
	}
}

// handleOutcome applies one execution cycle's result: commit on approval,
// fold notes back in on revise, or surface the failure. Returns non-nil
// only when the run must fail.
func (r *run) handleOutcome(ctx context.Context, out *stageOutcome) error {
	e := r.engine
	result := r.report.Stages[out.stage]
	result.DurationMS += int(out.duration.Milliseconds())
	if out.decision != "" {
		result.Decisions = append(result.Decisions, out.decision)
	}
	durationMS := int(out.duration.Milliseconds())

	switch {
	case out.err != nil:
		result.Status = "failed"
		kind := errorKind(out.err)
		r.publish(ctx, &eventbus.StageFailed{
			RunID: r.id, DealID: r.dc.DealID, Stage: string(out.stage),
			Error: out.err.Error(), ErrorKind: kind, DurationMS: durationMS,
		})
		observability.RecordStageExecution(string(out.stage), "failed", durationMS)
		return out.err

	case out.revise:
		r.revisions[out.stage]++
		result.Revisions = r.revisions[out.stage]
		if r.revisions[out.stage] > e.cfg.MaxRevisions {
			err := &RevisionBudgetExhaustedError{Stage: out.stage, Budget: e.cfg.MaxRevisions}
			result.Status = "failed"
			r.publish(ctx, &eventbus.StageFailed{
				RunID: r.id, DealID: r.dc.DealID, Stage: string(out.stage),
				Error: err.Error(), ErrorKind: errorKind(err), DurationMS: durationMS,
			})
			observability.RecordStageExecution(string(out.stage), "failed", durationMS)
			return err
		}
		r.dc.AddRevisionNotes(out.stage, out.notes)
		observability.RecordStageExecution(string(out.stage), "revised", durationMS)
		e.log.Info("stage sent back for revision",
			"run_id", r.id, "stage", string(out.stage),
			"revision", r.revisions[out.stage], "notes", out.notes)
		return nil

	default:
		committed, err := r.dc.Commit(out.artifact)
		if err != nil {
			result.Status = "failed"
			return fmt.Errorf("committing artifact for stage '%s': %w", out.stage, err)
		}
		result.Status = "committed"
		result.ArtifactSeq = committed.Seq
		r.publish(ctx, &eventbus.StageCompleted{
			RunID: r.id, DealID: r.dc.DealID, Stage: string(out.stage),
			ArtifactKind: committed.Kind, ArtifactSeq: committed.Seq,
			Revision: committed.Revision, DurationMS: durationMS,
		})
		observability.RecordStageExecution(string(out.stage), "committed", durationMS)
		e.log.Info("stage committed",
			"run_id", r.id, "stage", string(out.stage),
			"artifact_kind", committed.Kind, "seq", committed.Seq)
		r.persist(ctx)
		return nil
	}
}

// executeStage runs one execution cycle of a stage in its own goroutine:
// worker execute, then the checkpoint wait when the stage is gated. No
// context lock is held at any point here; the worker sees an immutable
// view and the artifact travels back to the coordinator for commit.
func (r *run) executeStage(ctx context.Context, stage deal.StageID, revision int) {
	e := r.engine
	started := time.Now()
	out := &stageOutcome{stage: stage}
	defer func() {
		out.duration = time.Since(started)
		r.results <- &stageMsg{kind: msgOutcome, stage: stage, outcome: out}
	}()

	ctx, span := tracer.Start(ctx, "stage.execute", trace.WithAttributes(
		attribute.String("stage.id", string(stage)),
		attribute.Int("stage.revision", revision),
		attribute.String("run.id", r.id),
	))
	defer span.End()

	spec := e.graph.Spec(stage)
	timeout := time.Duration(e.cfg.StageTimeoutSeconds) * time.Second
	if spec.TimeoutSeconds > 0 {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}
	workCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		workCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	worker := e.registry.Get(stage)
	artifact, err := worker.Execute(workCtx, r.dc.View(), r.dc.RevisionNotes(stage))
	if err != nil {
		out.err = &WorkerExecutionError{Stage: stage, Cause: err}
		span.RecordError(out.err)
		return
	}
	if artifact == nil {
		out.err = &WorkerExecutionError{Stage: stage, Cause: fmt.Errorf("worker returned no artifact")}
		span.RecordError(out.err)
		return
	}
	artifact.Revision = revision

	if !spec.RequiresCheckpoint {
		out.artifact = artifact
		return
	}

	summary := spec.CheckpointSummary
	if artifact.Summary != "" {
		summary = summary + ": " + artifact.Summary
	}
	req := checkpoint.NewRequest(r.id, r.dc.DealID, stage,
		checkpoint.WithSummary(summary),
		checkpoint.WithArtifact(artifact))

	// The checkpoint wait runs on the run context, not the stage timeout:
	// human review has its own clock (the gate's timeout).
	r.results <- &stageMsg{kind: msgSuspended, stage: stage}
	resolution, err := e.gate.Submit(ctx, req)
	r.results <- &stageMsg{kind: msgResumed, stage: stage}
	if err != nil {
		out.err = err
		span.RecordError(err)
		return
	}

	out.decision = resolution.Decision
	switch resolution.Decision {
	case checkpoint.DecisionApprove:
		out.artifact = artifact
	case checkpoint.DecisionRevise:
		out.revise = true
		out.notes = resolution.Notes
	case checkpoint.DecisionReject:
		out.err = &checkpoint.RejectedError{
			CheckpointID: req.ID,
			Stage:        stage,
			Notes:        resolution.Notes,
		}
		span.RecordError(out.err)
	default:
		out.err = fmt.Errorf("checkpoint '%s' resolved with unknown decision '%s'", req.ID, resolution.Decision)
	}
}

// refreshSuspension marks the run suspended when every in-flight stage is
// blocked on a checkpoint, and running again once anything else is active.
// Evaluated before each coordinator wait so a sibling's outcome arriving
// after a stage suspended still flips the state.
func (r *run) refreshSuspension() {
	if r.suspended > 0 && r.suspended == len(r.inFlight) {
		r.setState(deal.RunStateSuspendedAtCheckpoint)
	} else if r.state == deal.RunStateSuspendedAtCheckpoint {
		r.setState(deal.RunStateRunning)
	}
}

func (r *run) setState(state deal.RunState) {
	if r.state == state {
		return
	}
	r.engine.log.Debug("run state changed",
		"run_id", r.id, "from", string(r.state), "to", string(state))
	r.state = state
}

func (r *run) publish(ctx context.Context, event eventbus.Event) {
	// Subscriber errors are logged by the bus middleware; a run never
	// fails because a listener did.
	_ = r.engine.bus.Publish(ctx, event)
}

// persist snapshots the deal context. Snapshots survive run cancellation.
func (r *run) persist(ctx context.Context) {
	if r.engine.persistence == nil {
		return
	}
	state := r.dc.ToStateDict()
	state["run_id"] = r.id
	state["run_state"] = string(r.state)
	if err := r.engine.persistence.SaveState(context.WithoutCancel(ctx), r.id, state); err != nil {
		r.engine.log.Warn("state snapshot failed", "run_id", r.id, "error", err.Error())
	}
}
