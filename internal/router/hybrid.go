// Package router dispatches a prompt through intent classification,
// candidate-model selection with health-gated failover, and an optional
// retrieval/tool hybrid pipeline, recording exactly one trace entry per
// dispatched request.
package router

import "strings"

// HybridIntent is the shape of work a prompt requires beyond plain model
// selection: whether it needs a model answer, a tool execution, or both,
// and in what order.
type HybridIntent string

const (
	PureQuery         HybridIntent = "pure_query"         // only needs a model answer
	PureAction        HybridIntent = "pure_action"         // only needs a tool execution
	QueryThenAction   HybridIntent = "query_then_action"   // answer first, then tool based on conditions
	ActionThenQuery   HybridIntent = "action_then_query"   // tool first, then model explains the output
	ConditionalAction HybridIntent = "conditional_action"  // tool execution gated strictly on condition match
)

var (
	actionKeywords      = []string{"run", "execute", "check", "monitor", "clean", "fix", "show"}
	queryKeywords       = []string{"what", "how", "why", "explain", "describe", "when"}
	conditionalKeywords = []string{"if", "when", "should", "could"}
)

// DetectHybridIntent classifies which pipeline a prompt needs by checking
// which of the action/query/conditional keyword groups it contains, then
// (when it contains both a query and an action keyword) using whichever
// keyword appears earliest in the prompt to decide ordering.
func DetectHybridIntent(prompt string) HybridIntent {
	lower := strings.ToLower(prompt)
	hasQuery := containsAny(lower, queryKeywords)
	hasAction := containsAny(lower, actionKeywords)
	hasConditional := containsAny(lower, conditionalKeywords)

	switch {
	case hasQuery && !hasAction:
		return PureQuery
	case !hasQuery && hasAction && !hasConditional:
		return PureAction
	case hasQuery && hasAction && !hasConditional:
		if firstIndexOfAny(lower, queryKeywords) < firstIndexOfAny(lower, actionKeywords) {
			return QueryThenAction
		}
		return ActionThenQuery
	case hasConditional:
		return ConditionalAction
	default:
		return PureQuery
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// firstIndexOfAny returns the earliest byte offset at which any keyword
// occurs, or a value larger than any real index if none do.
func firstIndexOfAny(s string, keywords []string) int {
	best := len(s) + 1
	for _, kw := range keywords {
		if idx := strings.Index(s, kw); idx >= 0 && idx < best {
			best = idx
		}
	}
	return best
}

// toolCommandMap is the deterministic keyword-to-tool table used to infer a
// tool invocation directly from a prompt for PureAction/ActionThenQuery,
// checked in order so the first matching keyword wins.
var toolCommandMap = []struct {
	Keyword string
	ToolID  string
}{
	{"disk", "disk_info"},
	{"memory", "memory_usage"},
	{"process", "process_list"},
	{"network", "network_status"},
	{"service", "service_manager"},
}

// inferToolFromPrompt maps a prompt to a tool id via the keyword table.
func inferToolFromPrompt(prompt string) (string, bool) {
	lower := strings.ToLower(prompt)
	for _, entry := range toolCommandMap {
		if strings.Contains(lower, entry.Keyword) {
			return entry.ToolID, true
		}
	}
	return "", false
}
