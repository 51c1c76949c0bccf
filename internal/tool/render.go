package tool

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// shellSafe matches strings that need no quoting at all.
var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// shellEscape quotes value for safe inclusion in a shell command line,
// unless it is composed entirely of characters that never need quoting.
func shellEscape(value string) string {
	if value != "" && shellSafe.MatchString(value) {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// canonicalString renders one decoded argument value as the string form
// substituted into a command template: strings pass through escaped as-is,
// numbers and bools use their canonical textual form, and objects
// serialise as JSON before escaping.
func canonicalString(raw json.RawMessage) (string, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return strconv.FormatBool(asBool), nil
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		if asNumber == float64(int64(asNumber)) {
			return strconv.FormatInt(int64(asNumber), 10), nil
		}
		return strconv.FormatFloat(asNumber, 'g', -1, 64), nil
	}

	// Object or array: re-marshal canonically.
	var asObj any
	if err := json.Unmarshal(raw, &asObj); err != nil {
		return "", fmt.Errorf("render: unrepresentable argument value")
	}
	encoded, err := json.Marshal(asObj)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// renderCommand substitutes every {name} placeholder in template with the
// shell-escaped canonical string form of args[name]. Unsubstituted
// template text is emitted verbatim. A placeholder with no matching
// argument is an error.
func renderCommand(template string, args Args) (string, error) {
	var outerErr error
	rendered := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		raw, ok := args[name]
		if !ok {
			outerErr = fmt.Errorf("render: no value supplied for placeholder %q", name)
			return match
		}
		value, err := canonicalString(raw)
		if err != nil {
			outerErr = err
			return match
		}
		return shellEscape(value)
	})
	if outerErr != nil {
		return "", outerErr
	}
	return rendered, nil
}
