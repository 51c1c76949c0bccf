// Package condition implements the declarative rule matcher:
// keyword/regex/numeric/composite patterns loaded once from a YAML or
// JSON document, with regexes compiled at load time and side-effect-free
// evaluation.
package condition

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"gopkg.in/yaml.v3"
)

// Op is a numeric comparison operator.
type Op string

const (
	OpLess    Op = "<"
	OpLessEq  Op = "<="
	OpEq      Op = "=="
	OpNotEq   Op = "!="
	OpGreaterEq Op = ">="
	OpGreater Op = ">"
)

// CompositeOp combines child pattern results.
type CompositeOp string

const (
	CompositeAnd CompositeOp = "and"
	CompositeOr  CompositeOp = "or"
)

// Pattern is one of Contains, Regex, Numeric, or Composite. Exactly one of
// the typed fields is populated, selected by Type.
type Pattern struct {
	Type PatternType `yaml:"type" json:"type"`

	// Contains
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`

	// Regex
	RegexSrc string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	compiled *regexp.Regexp

	// Numeric
	Field    string  `yaml:"field,omitempty" json:"field,omitempty"`
	Operator Op      `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value    float64 `yaml:"value,omitempty" json:"value,omitempty"`

	// Composite
	Children    []Pattern   `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	CompositeOp CompositeOp `yaml:"operator_logic,omitempty" json:"operator_logic,omitempty"`
}

// PatternType selects which variant of Pattern is populated.
type PatternType string

const (
	PatternContains  PatternType = "contains"
	PatternRegex     PatternType = "regex"
	PatternNumeric   PatternType = "numeric"
	PatternComposite PatternType = "composite"
)

// Condition is one declarative rule.
type Condition struct {
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Pattern     Pattern         `yaml:"pattern" json:"pattern"`
	ToolID      string          `yaml:"tool" json:"tool"`
	Args        json.RawMessage `yaml:"args" json:"args"`
	Confirm     *bool           `yaml:"confirm,omitempty" json:"confirm,omitempty"`
	Priority    int             `yaml:"priority" json:"priority"`

	order int // declaration order, used as a tie-breaker
}

type document struct {
	Conditions []Condition `yaml:"conditions" json:"conditions"`
}

// Matcher evaluates text against a loaded, precompiled ruleset.
type Matcher struct {
	conditions []Condition
}

// numericExtractor is one (field name, regex) pair used to pull a number out
// of free text for Numeric patterns. The regex table is fixed, matching
// the reference implementation's extractor table exactly.
var numericExtractors = map[string]*regexp.Regexp{
	"memory_percent": regexp.MustCompile(`(?i)memory.*?(\d+(?:\.\d+)?)\s*%`),
	"disk_percent":    regexp.MustCompile(`(?i)disk.*?(\d+(?:\.\d+)?)\s*%`),
	"cpu_percent":     regexp.MustCompile(`(?i)cpu.*?(\d+(?:\.\d+)?)\s*%`),
	"temperature":     regexp.MustCompile(`(?i)temperature.*?(\d+(?:\.\d+)?)`),
	"free_gb":         regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*GB\s*free`),
	"free_mb":         regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*MB\s*free`),
}

// Load reads a condition document from path, compiling every regex pattern
// (including those nested in Composite rules) once, and rejecting unknown
// pattern variants.
func Load(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc document
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("condition: parsing %s: %w", path, err)
	}

	for i := range doc.Conditions {
		doc.Conditions[i].order = i
		if err := compilePattern(&doc.Conditions[i].Pattern); err != nil {
			return nil, fmt.Errorf("condition: %s: %w", doc.Conditions[i].Name, err)
		}
	}

	return &Matcher{conditions: doc.Conditions}, nil
}

func compilePattern(p *Pattern) error {
	switch p.Type {
	case PatternContains, PatternNumeric:
		return nil
	case PatternRegex:
		re, err := regexp.Compile(p.RegexSrc)
		if err != nil {
			return fmt.Errorf("compiling regex %q: %w", p.RegexSrc, err)
		}
		p.compiled = re
		return nil
	case PatternComposite:
		for i := range p.Children {
			if err := compilePattern(&p.Children[i]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown pattern type %q", p.Type)
	}
}

// Evaluate returns every condition matching text, sorted by descending
// priority with declaration order as the tie-breaker.
// Evaluation never mutates the matcher. It allocates the result slice and,
// for Contains patterns, lower-cased copies of the text and keywords.
func (m *Matcher) Evaluate(text string) []Condition {
	var matched []Condition
	for _, c := range m.conditions {
		if evalPattern(c.Pattern, text) {
			matched = append(matched, c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].order < matched[j].order
	})
	return matched
}

func evalPattern(p Pattern, text string) bool {
	switch p.Type {
	case PatternContains:
		lower := strings.ToLower(text)
		for _, kw := range p.Keywords {
			kwLower := strings.ToLower(kw)
			if strings.ContainsAny(kwLower, "*?[") {
				if wildcard.Match(kwLower, lower) {
					return true
				}
				continue
			}
			if strings.Contains(lower, kwLower) {
				return true
			}
		}
		return false

	case PatternRegex:
		return p.compiled != nil && p.compiled.MatchString(text)

	case PatternNumeric:
		value, ok := extractNumeric(text, p.Field)
		if !ok {
			return false
		}
		return compareNumeric(value, p.Operator, p.Value)

	case PatternComposite:
		switch p.CompositeOp {
		case CompositeAnd:
			for _, child := range p.Children {
				if !evalPattern(child, text) {
					return false
				}
			}
			return true
		case CompositeOr:
			for _, child := range p.Children {
				if evalPattern(child, text) {
					return true
				}
			}
			return false
		default:
			return false
		}

	default:
		return false
	}
}

func extractNumeric(text, field string) (float64, bool) {
	re, ok := numericExtractors[field]
	if !ok {
		return 0, false
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func compareNumeric(extracted float64, op Op, value float64) bool {
	switch op {
	case OpLess:
		return extracted < value
	case OpLessEq:
		return extracted <= value
	case OpEq:
		return extracted == value
	case OpNotEq:
		return extracted != value
	case OpGreaterEq:
		return extracted >= value
	case OpGreater:
		return extracted > value
	default:
		return false
	}
}
