package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/errgroup"

	"github.com/draftwell/draftwell/internal/core/domain"
	"github.com/draftwell/draftwell/internal/core/ports"
)

// Controller drives one content run through the workflow state machine:
// planning, optional tool execution, then the bounded generate/evaluate loop.
// One Run call owns its WorkflowState exclusively; concurrency only ever
// happens inside tool execution.
type Controller struct {
	logger    *slog.Logger
	brands    ports.BrandStore
	repo      ports.Repository
	router    *ToolRouter
	retrieval *RetrievalService
	websearch *WebSearchService
	generator *Generator
	evaluator *Evaluator
	bus       *EventBus
	traces    *TraceCollector
}

// NewController wires the workflow services together.
func NewController(
	logger *slog.Logger,
	brands ports.BrandStore,
	repo ports.Repository,
	router *ToolRouter,
	retrieval *RetrievalService,
	websearch *WebSearchService,
	generator *Generator,
	evaluator *Evaluator,
	bus *EventBus,
	traces *TraceCollector,
) *Controller {
	return &Controller{
		logger:    logger,
		brands:    brands,
		repo:      repo,
		router:    router,
		retrieval: retrieval,
		websearch: websearch,
		generator: generator,
		evaluator: evaluator,
		bus:       bus,
		traces:    traces,
	}
}

// Run executes a content request to a terminal state. The returned state is
// always persisted, including on failure and cancellation, so the audit
// trail survives whatever happened.
func (c *Controller) Run(ctx context.Context, req domain.ContentRequest) (*domain.WorkflowState, error) {
	return c.RunWithHandle(ctx, req, nil)
}

// RunWithHandle is Run with an onStart callback invoked once the run has an
// ID and its initial snapshot is persisted. Async callers use it to learn
// the run ID before the workflow finishes.
func (c *Controller) RunWithHandle(ctx context.Context, req domain.ContentRequest, onStart func(domain.RunID)) (*domain.WorkflowState, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	brand, err := c.brands.Get(req.Brand)
	if err != nil {
		return nil, err
	}

	maxIter := brand.Workflow.MaxIterations
	if req.MaxIterations > 0 {
		maxIter = req.MaxIterations
	}
	threshold := brand.Workflow.QualityThreshold
	if req.QualityThreshold > 0 {
		threshold = req.QualityThreshold
	}

	state := domain.NewWorkflowState(req, maxIter, threshold)
	if err := c.repo.SaveRun(ctx, state); err != nil {
		return nil, fmt.Errorf("persist initial state: %w", err)
	}
	if onStart != nil {
		onStart(state.ID)
	}

	var traceID domain.TraceID
	if c.traces != nil {
		ctx, traceID, _ = c.traces.StartTrace(ctx, "run: "+req.Topic, string(state.ID), req.Brand)
	}

	c.logger.Info("run started",
		"run_id", string(state.ID),
		"brand", req.Brand,
		"template", req.Template,
		"max_iterations", maxIter,
		"quality_threshold", threshold,
	)

	err = c.execute(ctx, brand, state)

	if c.traces != nil {
		switch {
		case err != nil:
			c.traces.EndTrace(traceID, domain.SpanStatusError, err.Error())
		case state.Status == domain.RunStatusCancelled:
			c.traces.EndTrace(traceID, domain.SpanStatusCancelled, "")
		default:
			c.traces.EndTrace(traceID, domain.SpanStatusOK, "")
		}
	}

	c.persistTerminal(state)
	c.publishDone(state)
	return state, err
}

// execute runs the state machine body. It mutates state and returns the
// run-level error, if any; terminal status fields are set before returning.
func (c *Controller) execute(ctx context.Context, brand *domain.BrandConfig, state *domain.WorkflowState) error {
	phases := c.trackPhases(ctx, state)
	defer phases.closeSpan()

	// Planning: ask the supervisor which tools this request needs.
	phases.set(domain.PhasePlanning)
	selection := c.router.Decide(ctx, brand, state.Topic, state.Template)
	state.Append(domain.HistoryEntry{Kind: domain.EntryToolDecision, Decision: &selection})
	c.logger.Info("tools selected",
		"run_id", string(state.ID), "tools", selection.Tools, "reasoning", selection.Reasoning)

	if cancelled := c.checkCancelled(ctx, state); cancelled {
		return nil
	}

	// Tool execution: concurrent dispatch, deterministic merge order.
	if !selection.Empty() {
		phases.set(domain.PhaseToolExecution)
		c.executeTools(ctx, brand, state, selection.Tools)

		if brand.Workflow.ConfirmationPass {
			extra := c.router.Confirm(ctx, brand, state.Topic, selection.Tools, state.Evidence())
			if !extra.Empty() {
				state.Append(domain.HistoryEntry{Kind: domain.EntryToolDecision, Decision: &extra})
				c.executeTools(ctx, brand, state, extra.Tools)
			}
		}
	}

	// Generate/evaluate loop, bounded by MaxIterations total drafts.
	for {
		if cancelled := c.checkCancelled(ctx, state); cancelled {
			return nil
		}

		phases.set(domain.PhaseGenerating)
		draft, err := c.generator.Generate(ctx, brand, state)
		if err != nil {
			return c.fail(ctx, state, "generation", err)
		}
		if prev := state.DraftContent; prev != "" {
			draft.Diff = diffDrafts(prev, draft.Content)
		}
		state.Append(domain.HistoryEntry{Kind: domain.EntryDraft, Draft: draft})
		state.DraftContent = draft.Content
		state.TotalUsage.Add(draft.Usage)
		c.publish(state, EventTypeDraft, map[string]any{
			"iteration": draft.Iteration,
			"length":    len(draft.Content),
		})

		if cancelled := c.checkCancelled(ctx, state); cancelled {
			return nil
		}

		phases.set(domain.PhaseEvaluating)
		critique, usage, err := c.evaluator.Evaluate(ctx, brand, state)
		if err != nil {
			return c.fail(ctx, state, "evaluation", err)
		}
		state.Append(domain.HistoryEntry{Kind: domain.EntryCritique, Critique: critique})
		state.Critique = critique
		state.TotalUsage.Add(usage)
		state.IterationCount++

		score := critique.AverageScore()
		c.publish(state, EventTypeCritique, map[string]any{
			"iteration":  draft.Iteration,
			"score":      score,
			"violations": len(critique.Violations),
		})
		c.logger.Info("draft evaluated",
			"run_id", string(state.ID),
			"iteration", draft.Iteration,
			"score", score,
			"threshold", state.QualityThreshold,
		)

		if score >= state.QualityThreshold {
			state.MeetsQualityThreshold = true
			c.finish(state, domain.RunStatusAccepted, domain.PhaseAccepted)
			return nil
		}
		if state.IterationCount >= state.MaxIterations {
			c.finish(state, domain.RunStatusExhausted, domain.PhaseExhausted)
			return nil
		}

		phases.set(domain.PhaseRegenerating)
	}
}

// executeTools dispatches the selected tools concurrently and appends their
// results to history in selection order, retrieval before web search, so
// evidence merge is reproducible regardless of completion order.
func (c *Controller) executeTools(ctx context.Context, brand *domain.BrandConfig, state *domain.WorkflowState, tools []domain.ToolName) {
	results := make([]domain.ToolResult, len(tools))

	g, gctx := errgroup.WithContext(ctx)
	for i, tool := range tools {
		g.Go(func() error {
			tctx := gctx
			var spanID domain.SpanID
			if c.traces != nil {
				tctx, spanID = c.traces.StartSpan(gctx, "tool."+string(tool), domain.SpanKindTool, nil)
			}

			switch tool {
			case domain.ToolRetrieval:
				results[i] = c.retrieval.Execute(tctx, brand, state.Topic)
			case domain.ToolWebSearch:
				results[i] = c.websearch.Execute(tctx, brand, state.Topic)
			default:
				results[i] = domain.ToolResult{Tool: tool, Error: "unknown tool"}
			}

			if c.traces != nil {
				if results[i].Error != "" {
					c.traces.EndSpan(spanID, domain.SpanStatusError, "", results[i].Error)
				} else {
					c.traces.EndSpan(spanID, domain.SpanStatusOK, results[i].Content, "")
				}
			}
			return nil
		})
	}
	_ = g.Wait() // tool failures live inside results, never as errors

	for i := range results {
		r := results[i]
		state.Append(domain.HistoryEntry{Kind: domain.EntryToolResult, Result: &r})
		c.publish(state, EventTypeTool, map[string]any{
			"tool":  r.Tool,
			"ok":    r.Error == "",
			"error": r.Error,
		})
	}
}

func (c *Controller) setPhase(state *domain.WorkflowState, phase domain.Phase) {
	state.Phase = phase
	c.publish(state, EventTypePhase, map[string]any{"phase": phase, "iteration": state.IterationCount})
}

// phaseTracker pairs each phase transition with a trace span, closing the
// previous phase's span when the next one begins.
type phaseTracker struct {
	c     *Controller
	ctx   context.Context
	state *domain.WorkflowState
	span  domain.SpanID
}

func (c *Controller) trackPhases(ctx context.Context, state *domain.WorkflowState) *phaseTracker {
	return &phaseTracker{c: c, ctx: ctx, state: state}
}

func (p *phaseTracker) set(phase domain.Phase) {
	p.closeSpan()
	if p.c.traces != nil {
		_, p.span = p.c.traces.StartSpan(p.ctx, "phase."+string(phase), domain.SpanKindPhase, nil)
	}
	p.c.setPhase(p.state, phase)
}

func (p *phaseTracker) closeSpan() {
	if p.c.traces != nil && p.span != "" {
		p.c.traces.EndSpan(p.span, domain.SpanStatusOK, "", "")
		p.span = ""
	}
}

func (c *Controller) finish(state *domain.WorkflowState, status domain.RunStatus, phase domain.Phase) {
	now := time.Now().UTC()
	state.Status = status
	state.Phase = phase
	state.CompletedAt = &now
	c.logger.Info("run finished",
		"run_id", string(state.ID),
		"status", string(status),
		"iterations", state.IterationCount,
		"reason", state.StoppingReason(),
	)
}

func (c *Controller) fail(ctx context.Context, state *domain.WorkflowState, stage string, err error) error {
	// A cancelled context surfacing as a provider error is a cancellation,
	// not a failure.
	if ctx.Err() != nil {
		c.markCancelled(state)
		return nil
	}

	now := time.Now().UTC()
	state.Status = domain.RunStatusFailed
	state.FailureStage = stage
	state.FailureError = err.Error()
	state.CompletedAt = &now
	c.logger.Error("run failed", "run_id", string(state.ID), "stage", stage, "error", err)
	return domain.NewRunError(stage, err)
}

func (c *Controller) checkCancelled(ctx context.Context, state *domain.WorkflowState) bool {
	if ctx.Err() == nil {
		return false
	}
	c.markCancelled(state)
	return true
}

func (c *Controller) markCancelled(state *domain.WorkflowState) {
	now := time.Now().UTC()
	state.Status = domain.RunStatusCancelled
	state.CompletedAt = &now
	c.logger.Warn("run cancelled", "run_id", string(state.ID), "phase", string(state.Phase))
}

// persistTerminal saves the final snapshot with a fresh context; the run's
// own context may already be dead.
func (c *Controller) persistTerminal(state *domain.WorkflowState) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.repo.SaveRun(ctx, state); err != nil {
		c.logger.Error("failed to persist terminal state", "run_id", string(state.ID), "error", err)
	}
}

func (c *Controller) publish(state *domain.WorkflowState, typ EventType, data map[string]any) {
	if c.bus == nil {
		return
	}
	payload, _ := json.Marshal(data)
	c.bus.Publish(Event{
		RunID:     string(state.ID),
		Type:      typ,
		Data:      string(payload),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *Controller) publishDone(state *domain.WorkflowState) {
	c.publish(state, EventTypeDone, map[string]any{
		"status":     state.Status,
		"iterations": state.IterationCount,
		"reason":     state.StoppingReason(),
	})
}

// diffDrafts produces a compact patch between consecutive drafts for the
// audit trail.
func diffDrafts(prev, next string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(prev, next))
}
