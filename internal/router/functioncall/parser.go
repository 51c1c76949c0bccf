// Package functioncall parses model replies for embedded tool invocations
// in any of four formats (a mode-prefixed command, a JSON object, an
// XML-ish structured tag, or best-effort natural language), so a model
// that doesn't speak the router's native prefix syntax can still trigger
// a tool.
package functioncall

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mscrnt/sentientos/internal/tool"
)

// Format is one of the call syntaxes Parser recognises.
type Format string

const (
	FormatCommand    Format = "command"
	FormatJSON       Format = "json"
	FormatStructured Format = "structured"
	FormatNatural    Format = "natural"
)

// DefaultFormats is the order Parser tries formats in when none is
// specified: the unambiguous, machine-generated formats first, natural
// language last since it is the most permissive and the likeliest to
// false-positive.
var DefaultFormats = []Format{FormatCommand, FormatJSON, FormatStructured, FormatNatural}

var (
	commandRe    = regexp.MustCompile(`^(![@#$&~])\s+(?:call\s+)?(\w+)(?:\s+(.+))?$`)
	structuredRe = regexp.MustCompile(`<function>(\w+)\((.*?)\)</function>`)
	naturalRe    = regexp.MustCompile(`(?i)^(?:please\s+)?(?:call|execute|run)\s+(\w+)(?:\s+with\s+(.+))?$`)
)

var commandPrefixModes = map[string]tool.Mode{
	"!@": tool.ModeValidated,
	"!#": tool.ModeDangerous,
	"!$": tool.ModePrivileged,
	"!&": tool.ModeBackground,
	"!~": tool.ModeSandboxed,
}

// Call is one parsed function call.
type Call struct {
	ToolID    string
	Arguments json.RawMessage
	Mode      tool.Mode
	RawText   string
	Format    Format
}

// Parser extracts Calls from free text, line by line.
type Parser struct {
	formats  []Format
	registry *tool.Registry // nil disables tool-id validation
}

// New returns a Parser trying every format in DefaultFormats order,
// validating tool ids against registry. A nil registry disables
// validation.
func New(registry *tool.Registry) *Parser {
	return &Parser{formats: DefaultFormats, registry: registry}
}

// WithFormats restricts parsing to exactly the given formats, in order.
func (p *Parser) WithFormats(formats ...Format) *Parser {
	p.formats = formats
	return p
}

// Parse scans text line by line, returning every call found in the first
// matching format per line. Formats are tried in Parser's configured
// order and the first match wins, so a line is never double-counted.
func (p *Parser) Parse(text string) ([]Call, error) {
	var calls []Call
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		for _, format := range p.formats {
			call, ok, err := p.parseLine(line, format)
			if err != nil {
				return nil, err
			}
			if ok {
				calls = append(calls, call)
				break
			}
		}
	}

	if p.registry != nil {
		for _, c := range calls {
			if _, ok := p.registry.Get(c.ToolID); !ok {
				return nil, fmt.Errorf("functioncall: unknown tool %q", c.ToolID)
			}
		}
	}
	return calls, nil
}

func (p *Parser) parseLine(line string, format Format) (Call, bool, error) {
	switch format {
	case FormatCommand:
		return parseCommand(line)
	case FormatJSON:
		return parseJSON(line)
	case FormatStructured:
		return parseStructured(line)
	case FormatNatural:
		return parseNatural(line)
	default:
		return Call{}, false, nil
	}
}

func parseCommand(line string) (Call, bool, error) {
	m := commandRe.FindStringSubmatch(line)
	if m == nil {
		return Call{}, false, nil
	}
	mode, ok := commandPrefixModes[m[1]]
	if !ok {
		return Call{}, false, nil
	}
	args, err := argsFromRemainder(m[3])
	if err != nil {
		return Call{}, false, err
	}
	return Call{ToolID: m[2], Arguments: args, Mode: mode, RawText: line, Format: FormatCommand}, true, nil
}

func parseJSON(line string) (Call, bool, error) {
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
		return Call{}, false, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return Call{}, false, nil
	}

	toolID, ok := stringField(obj, "tool", "function")
	if !ok {
		return Call{}, false, nil
	}

	var args json.RawMessage
	if raw, ok := obj["args"]; ok {
		args = raw
	} else if raw, ok := obj["arguments"]; ok {
		args = raw
	}

	mode := tool.ModeValidated
	switch {
	case boolField(obj, "privileged"):
		mode = tool.ModePrivileged
	case boolField(obj, "dangerous"):
		mode = tool.ModeDangerous
	case boolField(obj, "background"):
		mode = tool.ModeBackground
	case boolField(obj, "sandboxed"):
		mode = tool.ModeSandboxed
	}

	return Call{ToolID: toolID, Arguments: args, Mode: mode, RawText: line, Format: FormatJSON}, true, nil
}

func parseStructured(line string) (Call, bool, error) {
	m := structuredRe.FindStringSubmatch(line)
	if m == nil {
		return Call{}, false, nil
	}
	args, err := argsFromRemainder(strings.TrimSpace(m[2]))
	if err != nil {
		return Call{}, false, err
	}
	return Call{ToolID: m[1], Arguments: args, Mode: tool.ModeValidated, RawText: line, Format: FormatStructured}, true, nil
}

func parseNatural(line string) (Call, bool, error) {
	m := naturalRe.FindStringSubmatch(line)
	if m == nil {
		return Call{}, false, nil
	}
	var args json.RawMessage
	if m[2] != "" {
		args = naturalArgs(m[2])
	}
	return Call{ToolID: m[1], Arguments: args, Mode: tool.ModeValidated, RawText: line, Format: FormatNatural}, true, nil
}

// argsFromRemainder interprets a command/structured call's trailing text
// as JSON if it looks like an object, otherwise as space-separated
// key=value pairs, otherwise as a single bare value.
func argsFromRemainder(remainder string) (json.RawMessage, error) {
	remainder = strings.TrimSpace(remainder)
	if remainder == "" {
		return nil, nil
	}
	if strings.HasPrefix(remainder, "{") && strings.HasSuffix(remainder, "}") {
		if !json.Valid([]byte(remainder)) {
			return nil, fmt.Errorf("functioncall: invalid JSON arguments %q", remainder)
		}
		return json.RawMessage(remainder), nil
	}
	if strings.Contains(remainder, "=") {
		obj := map[string]any{}
		for _, pair := range strings.Fields(remainder) {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			obj[key] = parseScalar(value)
		}
		return json.Marshal(obj)
	}
	return json.Marshal(parseScalar(remainder))
}

// naturalArgs parses loose "pid 1234 and force" style trailing text: a
// bare word followed by a non-alphabetic token is taken as a key/value
// pair, a recognised flag word sets a boolean, and connectors are
// skipped.
func naturalArgs(text string) json.RawMessage {
	words := strings.Fields(text)
	obj := map[string]any{}
	for i := 0; i < len(words); i++ {
		word := words[i]
		switch word {
		case "force", "confirm", "yes":
			obj[word] = true
			continue
		case "and", "with":
			continue
		}
		if i+1 < len(words) && !isAlpha(words[i+1]) {
			obj[word] = parseScalar(words[i+1])
			i++
		}
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	return raw
}

func parseScalar(value string) any {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	switch value {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	return value
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return s != ""
}

func stringField(obj map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, true
		}
	}
	return "", false
}

func boolField(obj map[string]json.RawMessage, key string) bool {
	raw, ok := obj[key]
	if !ok {
		return false
	}
	var b bool
	_ = json.Unmarshal(raw, &b)
	return b
}
