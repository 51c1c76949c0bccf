// Package intent classifies a free-text prompt into one of a fixed set of
// intents using an ordered cascade of keyword and prefix rules, and maps
// each intent to the model candidates, context budget, and latency class
// a dispatcher needs to route the request.
package intent

import "strings"

// Intent is the fixed classification a prompt resolves to. Exactly one
// of these is ever returned by Detect.
type Intent string

const (
	ToolCall         Intent = "tool_call"
	CommandExecution Intent = "command_execution"
	CodeGeneration   Intent = "code_generation"
	SystemAnalysis   Intent = "system_analysis"
	VisualAnalysis   Intent = "visual_analysis"
	Documentation    Intent = "documentation"
	ComplexReasoning Intent = "complex_reasoning"
	QuickResponse    Intent = "quick_response"
	Conversation     Intent = "conversation"
	GeneralQuery     Intent = "general_query"
)

// longPromptWords is the word count above which a prompt that matched no
// earlier rule is classified ComplexReasoning rather than falling through
// to GeneralQuery.
const longPromptWords = 50

// shortPromptWords is the word count below which a prompt that matched no
// earlier rule, and contains no interrogative marker, is classified
// QuickResponse.
const shortPromptWords = 10

// Detect classifies prompt by running it through an ordered cascade of
// rules, most specific first, and returning the first match. A prompt
// matching nothing falls through to the length-based defaults and
// finally GeneralQuery.
func Detect(prompt string) Intent {
	lower := strings.ToLower(prompt)
	words := len(strings.Fields(lower))

	switch {
	case isToolCall(lower):
		return ToolCall
	case isCommandExecution(lower):
		return CommandExecution
	case isCodeGeneration(lower):
		return CodeGeneration
	case isSystemAnalysis(lower):
		return SystemAnalysis
	case isVisualAnalysis(lower):
		return VisualAnalysis
	case isDocumentation(lower):
		return Documentation
	case isComplexReasoning(lower, words):
		return ComplexReasoning
	case isQuickResponse(lower, words):
		return QuickResponse
	case isConversation(lower):
		return Conversation
	default:
		return GeneralQuery
	}
}

func isToolCall(p string) bool {
	for _, prefix := range []string{"!@", "!#", "!$", "!&", "!~"} {
		if strings.Contains(p, prefix) {
			return true
		}
	}
	if strings.Contains(p, "call") && strings.Contains(p, "tool") {
		return true
	}
	if strings.Contains(p, "execute") && (strings.Contains(p, "command") || strings.Contains(p, "tool")) {
		return true
	}
	if strings.Contains(p, "run") && (strings.Contains(p, "command") || strings.Contains(p, "tool")) {
		return true
	}
	return false
}

func isCommandExecution(p string) bool {
	for _, prefix := range []string{"sudo", "ls", "cd", "pwd", "mkdir"} {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return strings.Contains(p, "shell command") || strings.Contains(p, "terminal command")
}

func isCodeGeneration(p string) bool {
	wantsCode := strings.Contains(p, "code") || strings.Contains(p, "function") ||
		strings.Contains(p, "class") || strings.Contains(p, "program") ||
		strings.Contains(p, "script") || strings.Contains(p, "module")
	if (strings.Contains(p, "write") || strings.Contains(p, "create") || strings.Contains(p, "implement")) && wantsCode {
		return true
	}
	if strings.Contains(p, "generate") && strings.Contains(p, "code") {
		return true
	}
	return false
}

func isSystemAnalysis(p string) bool {
	if strings.Contains(p, "analyze") && (strings.Contains(p, "system") || strings.Contains(p, "log")) {
		return true
	}
	if strings.Contains(p, "diagnose") || strings.Contains(p, "debug") || strings.Contains(p, "troubleshoot") {
		return true
	}
	if (strings.Contains(p, "system") || strings.Contains(p, "service")) &&
		(strings.Contains(p, "health") || strings.Contains(p, "status") || strings.Contains(p, "performance") || strings.Contains(p, "problem")) {
		return true
	}
	if strings.Contains(p, "check") && (strings.Contains(p, "memory") || strings.Contains(p, "disk") || strings.Contains(p, "cpu")) {
		return true
	}
	return false
}

func isVisualAnalysis(p string) bool {
	if strings.Contains(p, "screenshot") || strings.Contains(p, "image") ||
		strings.Contains(p, "picture") || strings.Contains(p, "visual") {
		return true
	}
	if strings.Contains(p, "see") && strings.Contains(p, "screen") {
		return true
	}
	if strings.Contains(p, "look at") && strings.Contains(p, "display") {
		return true
	}
	if strings.Contains(p, "ui") && (strings.Contains(p, "debug") || strings.Contains(p, "analyze")) {
		return true
	}
	return false
}

func isDocumentation(p string) bool {
	for _, kw := range []string{"document", "explain how", "tutorial", "guide", "readme", "write docs"} {
		if strings.Contains(p, kw) {
			return true
		}
	}
	return false
}

func isComplexReasoning(p string, words int) bool {
	if strings.Contains(p, "explain") && (strings.Contains(p, "why") || strings.Contains(p, "how")) {
		return true
	}
	if strings.Contains(p, "compare") && strings.Contains(p, "between") {
		return true
	}
	if strings.Contains(p, "analyze") && strings.Contains(p, "implications") {
		return true
	}
	if strings.Contains(p, "pros and cons") || strings.Contains(p, "trade-off") || strings.Contains(p, "deep dive") {
		return true
	}
	return words > longPromptWords
}

func isQuickResponse(p string, words int) bool {
	if words >= shortPromptWords {
		return false
	}
	for _, marker := range []string{"?", "explain", "how", "why"} {
		if strings.Contains(p, marker) {
			return false
		}
	}
	return true
}

func isConversation(p string) bool {
	for _, kw := range []string{"chat", "talk", "hello", "hi ", "thanks", "thank you"} {
		if strings.Contains(p, kw) {
			return true
		}
	}
	return strings.HasPrefix(p, "hi")
}

// Latency is the dispatch latency class an intent demands, used to bias
// candidate selection toward smaller/local models under time pressure.
type Latency string

const (
	Realtime Latency = "realtime" // < 100ms
	Fast     Latency = "fast"     // < 500ms
	Balanced Latency = "balanced" // < 2s
	Powerful Latency = "powerful" // unconstrained
)

// LatencyClass returns the latency class an intent demands.
func LatencyClass(i Intent) Latency {
	switch i {
	case ToolCall, CommandExecution, QuickResponse:
		return Realtime
	case SystemAnalysis, GeneralQuery, Conversation:
		return Fast
	case CodeGeneration, Documentation:
		return Balanced
	case ComplexReasoning, VisualAnalysis:
		return Powerful
	default:
		return Balanced
	}
}

// ContextBudget estimates the token budget a request needs: a rough
// character/4 estimate of the prompt's own length plus a per-intent
// allowance for the response.
func ContextBudget(prompt string, i Intent) int {
	base := len(prompt) / 4
	switch i {
	case ToolCall, CommandExecution, QuickResponse:
		return base + 500
	case CodeGeneration:
		return base + 2000
	case SystemAnalysis:
		return base + 1500
	case ComplexReasoning:
		return base + 3000
	case Documentation:
		return base + 2500
	default:
		return base + 1000
	}
}

// DefaultCandidates returns the ordered list of model ids this intent
// should be dispatched to, most preferred first. Callers filter this
// list against live model health before picking one.
func DefaultCandidates(i Intent) []string {
	switch i {
	case ToolCall:
		return []string{"phi2-local", "mistral-7b-instruct", "llama3-8b"}
	case CommandExecution:
		return []string{"phi2-local", "mistral-7b-instruct"}
	case CodeGeneration:
		return []string{"deepseek-coder-v2", "llama3-8b", "codellama-13b"}
	case SystemAnalysis:
		return []string{"llama3-8b", "mistral-7b-instruct", "phi2-local"}
	case QuickResponse:
		return []string{"phi2-local", "mistral-7b-instruct"}
	case VisualAnalysis:
		return []string{"llama3.2-vision"}
	case ComplexReasoning:
		return []string{"deepseek-coder-v2", "llama3-70b", "mixtral-8x7b"}
	case Documentation:
		return []string{"llama3-8b", "deepseek-coder-v2"}
	case Conversation:
		return []string{"llama3-8b", "mistral-7b-instruct"}
	default:
		return []string{"llama3-8b", "mistral-7b-instruct", "phi2-local"}
	}
}
