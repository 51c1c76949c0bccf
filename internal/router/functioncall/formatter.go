package functioncall

import (
	"fmt"
	"strings"

	"github.com/mscrnt/sentientos/internal/tool"
)

// Formatter renders tool catalogues into model-facing text: a system
// prompt describing every tool and how to call one, or a single tool
// description tailored to a specific model family.
type Formatter struct{}

// GenerateSystemPrompt describes every tool in registry and the four
// call formats Parser accepts, so a model can be told what it has access
// to and how to invoke it without any of this package's code leaking
// into the prompt itself.
func (Formatter) GenerateSystemPrompt(registry *tool.Registry) string {
	var b strings.Builder
	b.WriteString("You have access to the following system tools:\n\n")

	for _, id := range registry.List("") {
		t, ok := registry.Get(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", t.DisplayName)
		fmt.Fprintf(&b, "ID: %s\n", t.ID)
		fmt.Fprintf(&b, "Description: %s\n", t.Description)
		if t.RequiresPrivilege {
			b.WriteString("Requires elevated privileges\n")
		}
		if len(t.Tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(t.Tags, ", "))
		}
		if t.ArgSchema != nil {
			b.WriteString("Arguments:\n")
			for _, f := range t.ArgSchema.Fields {
				req := ""
				if f.Required {
					req = ", required"
				}
				fmt.Fprintf(&b, "  - %s (%s%s)\n", f.Name, f.Type, req)
			}
		}
		if len(t.Examples) > 0 {
			b.WriteString("Examples:\n")
			for _, ex := range t.Examples {
				fmt.Fprintf(&b, "  %s\n", ex)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("To call a tool, use one of these formats:\n")
	b.WriteString("- Command: !@ tool_id {\"arg\": \"value\"}\n")
	b.WriteString("- JSON: {\"tool\": \"tool_id\", \"args\": {\"arg\": \"value\"}}\n")
	b.WriteString("- Structured: <function>tool_id(arg=value)</function>\n")
	b.WriteString("- Natural: call tool_id with arg value\n")
	b.WriteString("\nPrefixes:\n")
	b.WriteString("- !@ validated execution (default)\n")
	b.WriteString("- !# dangerous, requires confirmation\n")
	b.WriteString("- !$ privileged\n")
	b.WriteString("- !& background\n")
	b.WriteString("- !~ sandboxed\n")

	return b.String()
}

// FormatForModel renders a single tool's description in the calling
// convention a given model family expects: OpenAI-style function JSON
// for "gpt" models, an Anthropic-style tool tag for "claude" models, and
// a plain one-liner otherwise.
func (Formatter) FormatForModel(t tool.Tool, model string) string {
	switch {
	case strings.Contains(model, "gpt"):
		return fmt.Sprintf(`{"name":%q,"description":%q}`, t.ID, t.Description)
	case strings.Contains(model, "claude"):
		return fmt.Sprintf("<tool>%s</tool>\n%s\n", t.ID, t.Description)
	default:
		return fmt.Sprintf("Tool: %s - %s", t.ID, t.Description)
	}
}
