package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mscrnt/sentientos/internal/condition"
	"github.com/mscrnt/sentientos/internal/intent"
	"github.com/mscrnt/sentientos/internal/logging"
	"github.com/mscrnt/sentientos/internal/router/health"
	"github.com/mscrnt/sentientos/internal/router/providers"
	"github.com/mscrnt/sentientos/internal/tool"
	"github.com/mscrnt/sentientos/internal/trace"
)

var log = logging.For("router")

// AllModelsFailedError is returned when every health-filtered candidate and
// every offline fallback model fails a dispatch attempt.
type AllModelsFailedError struct {
	Intent     intent.Intent
	LastErrors []string
}

func (e *AllModelsFailedError) Error() string {
	return fmt.Sprintf("all models failed to process request (intent=%s, last errors: %v)", e.Intent, e.LastErrors)
}

// MaxRecentErrors is the default per-model recent-error threshold above
// which a candidate is excluded from selection, mirroring the original
// router's `error_count < 3` availability gate.
const MaxRecentErrors = 3

// Result is the outcome of one dispatched request, suitable for returning to
// a caller and for building the request's trace entry.
type Result struct {
	TraceID           string
	Intent            intent.Intent
	HybridIntent      HybridIntent
	ModelUsed         string
	Answer            string
	ToolResult        *tool.Result
	ConditionsMatched []string
	Success           bool
	Duration          time.Duration
}

// Dispatcher wires intent detection, health-gated model selection, the
// condition matcher, and the tool executor into the hybrid dispatch
// pipelines described by HybridIntent.
type Dispatcher struct {
	Providers       map[string]providers.Provider // model id -> configured client
	Health          *health.Registry
	Conditions      *condition.Matcher // nil disables condition-gated tool dispatch
	Tools           *tool.Registry
	Executor        *tool.Executor
	Trace           *trace.Log
	OfflineFallback []string
	MaxRecentErrors int
}

// NewDispatcher builds a Dispatcher. A zero maxRecentErrors falls back to
// MaxRecentErrors.
func NewDispatcher(
	providerSet map[string]providers.Provider,
	healthRegistry *health.Registry,
	conditions *condition.Matcher,
	tools *tool.Registry,
	executor *tool.Executor,
	traceLog *trace.Log,
	offlineFallback []string,
	maxRecentErrors int,
) *Dispatcher {
	if maxRecentErrors <= 0 {
		maxRecentErrors = MaxRecentErrors
	}
	return &Dispatcher{
		Providers:       providerSet,
		Health:          healthRegistry,
		Conditions:      conditions,
		Tools:           tools,
		Executor:        executor,
		Trace:           traceLog,
		OfflineFallback: offlineFallback,
		MaxRecentErrors: maxRecentErrors,
	}
}

// Dispatch classifies prompt, routes it through the hybrid pipeline its
// HybridIntent demands, and appends exactly one trace entry before
// returning — on success or failure alike.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string) (Result, error) {
	start := time.Now()
	traceID := trace.NewTraceID()
	detected := intent.Detect(prompt)
	hybrid := DetectHybridIntent(prompt)

	var (
		answer            string
		modelUsed         string
		toolResult        *tool.Result
		conditionsMatched []string
		ragUsed           bool
		toolExecuted      *string
		dispatchErr       error
	)

	switch hybrid {
	case PureQuery:
		answer, modelUsed, dispatchErr = d.query(ctx, prompt, detected)
		ragUsed = dispatchErr == nil

	case PureAction:
		toolResult, dispatchErr = d.actionFromPrompt(ctx, prompt)

	case QueryThenAction, ConditionalAction:
		answer, modelUsed, dispatchErr = d.query(ctx, prompt, detected)
		if dispatchErr == nil {
			ragUsed = true
			matched := d.matchConditions(answer)
			conditionsMatched = conditionNames(matched)
			if len(matched) > 0 {
				toolResult, dispatchErr = d.runCondition(ctx, matched[0])
			}
			// ConditionalAction with no match yields retrieval-only, not an error.
		}

	case ActionThenQuery:
		toolResult, dispatchErr = d.actionFromPrompt(ctx, prompt)
		if dispatchErr == nil {
			explainPrompt := fmt.Sprintf("Explain the result of running this command: %s", toolResult.Stdout)
			answer, modelUsed, dispatchErr = d.query(ctx, explainPrompt, detected)
			ragUsed = dispatchErr == nil
		}
	}

	if toolResult != nil {
		toolExecuted = &toolResult.ToolID
	}

	success := dispatchErr == nil
	if toolResult != nil && toolResult.ExitCode != 0 {
		success = false
	}

	entry := trace.Entry{
		TraceID:           traceID,
		Timestamp:         time.Now(),
		Prompt:            prompt,
		Intent:            string(detected),
		ModelUsed:         modelUsed,
		ToolExecuted:      toolExecuted,
		RAGUsed:           ragUsed,
		ConditionsMatched: conditionsMatched,
		Success:           success,
		DurationMS:        time.Since(start).Milliseconds(),
	}
	if err := d.Trace.Append(entry); err != nil {
		log.Error().Err(err).Str("trace_id", traceID).Msg("failed to append trace entry")
	}

	result := Result{
		TraceID:           traceID,
		Intent:            detected,
		HybridIntent:      hybrid,
		ModelUsed:         modelUsed,
		Answer:            answer,
		ToolResult:        toolResult,
		ConditionsMatched: conditionsMatched,
		Success:           success,
		Duration:          time.Since(start),
	}
	return result, dispatchErr
}

// query walks the intent's health-filtered candidate chain, falling back to
// OfflineFallback if every candidate fails, recording health on every
// attempt. It returns the first successful response's content and model id.
func (d *Dispatcher) query(ctx context.Context, prompt string, detected intent.Intent) (string, string, error) {
	candidates := intent.DefaultCandidates(detected)
	filtered := d.Health.Filter(candidates, d.MaxRecentErrors)

	var lastErrors []string

	tryChain := func(modelIDs []string) (string, string, bool) {
		for _, modelID := range modelIDs {
			provider, ok := d.Providers[modelID]
			if !ok {
				continue
			}
			reqStart := time.Now()
			resp, err := provider.Chat(ctx, providers.ChatRequest{
				Messages:    []providers.Message{{Role: "user", Content: prompt}},
				Model:       modelID,
				MaxTokens:   intent.ContextBudget(prompt, detected),
				Temperature: 0.4,
			})
			latency := time.Since(reqStart)
			d.Health.RecordResult(modelID, latency, err)
			if err != nil {
				log.Warn().Err(err).Str("model", modelID).Msg("candidate model failed")
				lastErrors = append(lastErrors, fmt.Sprintf("%s: %v", modelID, err))
				continue
			}
			return resp.Content, modelID, true
		}
		return "", "", false
	}

	if answer, modelUsed, ok := tryChain(filtered); ok {
		return answer, modelUsed, nil
	}

	if answer, modelUsed, ok := tryChain(d.OfflineFallback); ok {
		return answer, modelUsed, nil
	}

	return "", "", &AllModelsFailedError{Intent: detected, LastErrors: lastErrors}
}

// actionFromPrompt infers a tool from the prompt's keywords and executes it
// in Validated mode — the default envelope for router-inferred actions,
// since the prompt itself carries no explicit mode prefix.
func (d *Dispatcher) actionFromPrompt(ctx context.Context, prompt string) (*tool.Result, error) {
	toolID, ok := inferToolFromPrompt(prompt)
	if !ok {
		return nil, fmt.Errorf("could not infer a tool from prompt")
	}
	result, err := d.Executor.Execute(ctx, toolID, tool.ModeValidated, json.RawMessage(`{}`))
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// matchConditions evaluates the condition matcher over a retrieval answer,
// returning nil when no matcher is configured.
func (d *Dispatcher) matchConditions(answer string) []condition.Condition {
	if d.Conditions == nil {
		return nil
	}
	return d.Conditions.Evaluate(answer)
}

// runCondition executes the tool named by a matched condition in Validated
// mode. The condition's confirm flag is not read: confirmation is requested
// only when the tool itself requires it.
func (d *Dispatcher) runCondition(ctx context.Context, cond condition.Condition) (*tool.Result, error) {
	args := cond.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, err := d.Executor.Execute(ctx, cond.ToolID, tool.ModeValidated, args)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func conditionNames(conditions []condition.Condition) []string {
	if len(conditions) == 0 {
		return nil
	}
	names := make([]string, len(conditions))
	for i, c := range conditions {
		names[i] = c.Name
	}
	return names
}
