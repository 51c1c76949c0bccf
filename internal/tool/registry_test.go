package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsEmptyIDOrCommand(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Tool{ID: "", CommandTemplate: "echo hi"}))
	assert.Error(t, r.Register(Tool{ID: "x", CommandTemplate: ""}))
}

func TestRegisterRejectsDangerousTokenWithoutPrivilege(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Tool{ID: "rm_tool", CommandTemplate: "rm -rf {path}"})
	assert.Error(t, err)
}

func TestRegisterAllowsDangerousTokenWithPrivilege(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Tool{ID: "rm_tool", CommandTemplate: "rm -rf {path}", RequiresPrivilege: true})
	assert.NoError(t, err)
}

func TestRegisterDefaultsTimeout(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{ID: "t", CommandTemplate: "echo hi"}))
	tool, ok := r.Get("t")
	require.True(t, ok)
	assert.Equal(t, 30, tool.TimeoutSeconds)
}

func TestRegisterRejectsMalformedSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Tool{
		ID:              "t",
		CommandTemplate: "echo hi",
		ArgSchema: &Schema{
			Fields: []Field{{Name: "x", Type: "weird"}},
		},
	})
	assert.Error(t, err)
}

func TestListFiltersByCategory(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{ID: "a", CommandTemplate: "echo a", Category: "inspection"}))
	require.NoError(t, r.Register(Tool{ID: "b", CommandTemplate: "echo b", Category: "control"}))

	assert.Equal(t, []string{"a"}, r.List("inspection"))
	assert.ElementsMatch(t, []string{"a", "b"}, r.List(""))
}

func TestValidateArgsRequiresDeclaredFields(t *testing.T) {
	schema := &Schema{Fields: []Field{{Name: "pid", Type: FieldNumber, Required: true}}}
	_, err := ValidateArgs(schema, nil)
	assert.Error(t, err)

	raw, _ := json.Marshal(map[string]any{"pid": 123})
	args, err := ValidateArgs(schema, raw)
	require.NoError(t, err)
	v, ok := args.NumberVal("pid")
	require.True(t, ok)
	assert.Equal(t, float64(123), v)
}

func TestValidateArgsStrictRejectsUnknownFields(t *testing.T) {
	schema := &Schema{Strict: true, Fields: []Field{{Name: "pid", Type: FieldNumber}}}
	raw, _ := json.Marshal(map[string]any{"pid": 1, "extra": "nope"})
	_, err := ValidateArgs(schema, raw)
	assert.Error(t, err)
}

func TestDefaultToolsAllRegisterCleanly(t *testing.T) {
	r := NewRegistry()
	for _, tl := range DefaultTools() {
		assert.NoError(t, r.Register(tl), "tool %s", tl.ID)
	}
	assert.Len(t, r.List(""), len(DefaultTools()))
}
