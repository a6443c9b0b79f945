package domain

import (
	"fmt"
	"sort"
	"time"
)

// Phase is the controller's position in the run state machine.
type Phase string

const (
	PhasePlanning      Phase = "planning"
	PhaseToolExecution Phase = "tool_execution"
	PhaseGenerating    Phase = "generating"
	PhaseEvaluating    Phase = "evaluating"
	PhaseRegenerating  Phase = "regenerating"
	PhaseAccepted      Phase = "accepted"
	PhaseExhausted     Phase = "exhausted"
)

// RunStatus is the externally visible status of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusAccepted  RunStatus = "accepted"
	RunStatusExhausted RunStatus = "exhausted"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further transition can occur.
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// ToolName identifies an evidence tool the router may select.
type ToolName string

const (
	ToolRetrieval ToolName = "retrieval"
	ToolWebSearch ToolName = "web_search"
)

// KnownTool reports whether the name is a tool this system can execute.
// Anything else in a router decision is a schema violation.
func KnownTool(name ToolName) bool {
	return name == ToolRetrieval || name == ToolWebSearch
}

// ToolSelection is the router's decision: an ordered set of tools, possibly
// empty. It is consumed once by the controller and then discarded; its effects
// live on in the message history.
type ToolSelection struct {
	Tools     []ToolName `json:"tools"`
	Reasoning string     `json:"reasoning,omitempty"`
}

// Empty reports whether the router chose to proceed straight to generation.
func (s ToolSelection) Empty() bool {
	return len(s.Tools) == 0
}

// Has reports whether a tool is part of the selection.
func (s ToolSelection) Has(name ToolName) bool {
	for _, t := range s.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// Normalize dedupes and orders the selection (retrieval before web search) so
// evidence merge order is stable across runs.
func (s ToolSelection) Normalize() ToolSelection {
	seen := make(map[ToolName]struct{}, len(s.Tools))
	out := ToolSelection{Reasoning: s.Reasoning}
	for _, t := range s.Tools {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out.Tools = append(out.Tools, t)
	}
	sort.Slice(out.Tools, func(i, j int) bool {
		return toolRank(out.Tools[i]) < toolRank(out.Tools[j])
	})
	return out
}

func toolRank(t ToolName) int {
	switch t {
	case ToolRetrieval:
		return 0
	case ToolWebSearch:
		return 1
	default:
		return 2
	}
}

// EntryKind tags a history entry. Exactly one payload field of HistoryEntry is
// set for each kind.
type EntryKind string

const (
	EntryHumanInput   EntryKind = "human_input"
	EntryToolDecision EntryKind = "tool_decision"
	EntryToolResult   EntryKind = "tool_result"
	EntryDraft        EntryKind = "draft"
	EntryCritique     EntryKind = "critique"
)

// HistoryEntry is one element of the append-only run history. The tagged-union
// shape lets consumers switch exhaustively on Kind instead of sniffing maps.
type HistoryEntry struct {
	Kind EntryKind `json:"kind"`
	Time time.Time `json:"time"`

	Input    *HumanInput    `json:"input,omitempty"`
	Decision *ToolSelection `json:"decision,omitempty"`
	Result   *ToolResult    `json:"result,omitempty"`
	Draft    *DraftEntry    `json:"draft,omitempty"`
	Critique *Critique      `json:"critique,omitempty"`
}

// HumanInput is the originating content request as it entered the run.
type HumanInput struct {
	Topic    string `json:"topic"`
	Brand    string `json:"brand"`
	Template string `json:"template"`
}

// ToolResult records one tool invocation. A provider failure is captured in
// Error so the generation layer can reason about absent evidence rather than
// the run crashing.
type ToolResult struct {
	Tool    ToolName `json:"tool"`
	Query   string   `json:"query"`
	Content string   `json:"content"`
	Sources []Source `json:"sources,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Source attributes a snippet of evidence to its origin.
type Source struct {
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
}

// DraftEntry records one generation attempt, including the full prompt that
// produced it so regeneration inputs stay auditable.
type DraftEntry struct {
	Iteration int    `json:"iteration"`
	Content   string `json:"content"`
	System    string `json:"system"`
	Prompt    string `json:"prompt"`
	Diff      string `json:"diff,omitempty"` // unified diff vs previous draft
	Usage     Usage  `json:"usage"`
}

// EvidenceBundle maps tool name to formatted result text. It is rebuilt from
// history before each generation and never persisted past the call that
// consumes it, which is what prevents duplicate tool invocation.
type EvidenceBundle map[ToolName]string

// WorkflowState is the single mutable object threaded through one run. One
// request owns one state instance; it is never shared across runs.
type WorkflowState struct {
	ID    RunID  `json:"id"`
	Topic string `json:"topic"`
	Brand string `json:"brand"`

	Template string `json:"template"`
	UseCoT   bool   `json:"use_cot"`

	// History is append-only; entries are never mutated in place.
	History []HistoryEntry `json:"history"`

	DraftContent string    `json:"draft_content,omitempty"`
	Critique     *Critique `json:"critique,omitempty"`

	IterationCount        int     `json:"iteration_count"`
	MaxIterations         int     `json:"max_iterations"`
	QualityThreshold      float64 `json:"quality_threshold"`
	MeetsQualityThreshold bool    `json:"meets_quality_threshold"`

	Phase  Phase     `json:"phase"`
	Status RunStatus `json:"status"`

	// TotalUsage accumulates provider usage across the run (pass-through).
	TotalUsage Usage `json:"total_usage"`

	// FailureStage is set when Status == failed (planning, generation, ...).
	FailureStage string `json:"failure_stage,omitempty"`
	FailureError string `json:"failure_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewWorkflowState builds the initial state for a request with resolved loop
// bounds. The human-input entry is the first history element.
func NewWorkflowState(req ContentRequest, maxIterations int, threshold float64) *WorkflowState {
	st := &WorkflowState{
		ID:               NewRunID(),
		Topic:            req.Topic,
		Brand:            req.Brand,
		Template:         req.Template,
		UseCoT:           req.UseCoT,
		MaxIterations:    maxIterations,
		QualityThreshold: threshold,
		Phase:            PhasePlanning,
		Status:           RunStatusRunning,
		CreatedAt:        time.Now().UTC(),
	}
	st.Append(HistoryEntry{
		Kind:  EntryHumanInput,
		Input: &HumanInput{Topic: req.Topic, Brand: req.Brand, Template: req.Template},
	})
	return st
}

// Append adds an entry to the history, stamping its time if unset.
func (s *WorkflowState) Append(e HistoryEntry) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	s.History = append(s.History, e)
}

// Evidence rebuilds the evidence bundle from tool-result history entries.
// Later results for the same tool win; failed invocations contribute nothing.
func (s *WorkflowState) Evidence() EvidenceBundle {
	bundle := make(EvidenceBundle)
	for _, e := range s.History {
		if e.Kind != EntryToolResult || e.Result == nil {
			continue
		}
		if e.Result.Error != "" || e.Result.Content == "" {
			continue
		}
		bundle[e.Result.Tool] = e.Result.Content
	}
	return bundle
}

// ToolResults returns all tool invocations recorded in the history, in order.
func (s *WorkflowState) ToolResults() []ToolResult {
	var out []ToolResult
	for _, e := range s.History {
		if e.Kind == EntryToolResult && e.Result != nil {
			out = append(out, *e.Result)
		}
	}
	return out
}

// LastDraftEntry returns the most recent draft entry, or nil.
func (s *WorkflowState) LastDraftEntry() *DraftEntry {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Kind == EntryDraft && s.History[i].Draft != nil {
			return s.History[i].Draft
		}
	}
	return nil
}

// StoppingReason explains a terminal state. It is always recoverable from the
// state alone.
func (s *WorkflowState) StoppingReason() string {
	switch s.Status {
	case RunStatusAccepted:
		return fmt.Sprintf("quality threshold met (score %.2f >= %.2f)", s.Critique.AverageScore(), s.QualityThreshold)
	case RunStatusExhausted:
		return fmt.Sprintf("iteration limit reached (%d of %d) without meeting threshold", s.IterationCount, s.MaxIterations)
	case RunStatusFailed:
		return fmt.Sprintf("failed at %s: %s", s.FailureStage, s.FailureError)
	case RunStatusCancelled:
		return "cancelled"
	default:
		return "running"
	}
}
