package modelspec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/registry"
)

const todoModel = `
model: todo_v1: {
	document_type: "test/todo"
	version:       1
	scopes: ["global", "local"]
	initial_state: {
		global: items: []
		local: filter: "all"
	}
	action: {
		ADD: {
			scope: "global"
			input: close({id: string & != "", text: string})
		}
		SET_FILTER: {
			scope: "local"
			input: close({filter: "all" | "open" | "done"})
		}
		CLEAR: {}
	}
}
`

func compileTodo(t *testing.T) *Set {
	t.Helper()
	s, err := Compile("todo.cue", []byte(todoModel))
	require.NoError(t, err)
	return s
}

func TestCompile_Model(t *testing.T) {
	s := compileTodo(t)

	models := s.Models()
	require.Len(t, models, 1)
	m := models[0]
	assert.Equal(t, "todo_v1", m.Name)
	assert.Equal(t, "test/todo", m.DocumentType)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, []string{"global", "local"}, m.Scopes)
	assert.Equal(t, []string{"ADD", "CLEAR", "SET_FILTER"}, m.ActionNames())
	assert.Equal(t, ir.Object{"items": ir.Array{}}, m.InitialState["global"])
	assert.Equal(t, ir.Object{"filter": ir.String("all")}, m.InitialState["local"])
	assert.Equal(t, ir.ScopeGlobal, m.Actions["CLEAR"].Scope)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "no models",
			src:   `other: 1`,
			field: "model",
		},
		{
			name:  "missing document type",
			src:   `model: m: {version: 1, action: A: {}}`,
			field: "document_type",
		},
		{
			name:  "bad version",
			src:   `model: m: {document_type: "x", version: 0, action: A: {}}`,
			field: "version",
		},
		{
			name:  "no actions",
			src:   `model: m: {document_type: "x", version: 1}`,
			field: "action",
		},
		{
			name:  "undeclared scope",
			src:   `model: m: {document_type: "x", version: 1, action: A: scope: "local"}`,
			field: "action.A",
		},
		{
			name:  "system action",
			src:   `model: m: {document_type: "x", version: 1, action: CREATE_DOCUMENT: {}}`,
			field: "action.CREATE_DOCUMENT",
		},
		{
			name:  "reserved scope",
			src:   `model: m: {document_type: "x", version: 1, scopes: ["document"], action: A: {}}`,
			field: "scopes",
		},
		{
			name: "duplicate version",
			src: `model: a: {document_type: "x", version: 1, action: A: {}}
model: b: {document_type: "x", version: 1, action: A: {}}`,
			field: "version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("bad.cue", []byte(tt.src))
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "expected CompileError, got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestValidate(t *testing.T) {
	s := compileTodo(t)
	m, ok := s.Find("test/todo", 1)
	require.True(t, ok)

	add := ir.Action{ID: "a1", Type: "ADD", Scope: "global", Input: ir.Object{"id": ir.String("1"), "text": ir.String("milk")}}
	assert.NoError(t, s.Validate(m, add))

	tests := []struct {
		name   string
		action ir.Action
		field  string
	}{
		{"unknown type", ir.Action{ID: "x", Type: "NOPE", Scope: "global", Input: ir.Object{}}, "type"},
		{"wrong scope", ir.Action{ID: "x", Type: "ADD", Scope: "local", Input: add.Input}, "scope"},
		{"empty id", ir.Action{ID: "x", Type: "ADD", Scope: "global", Input: ir.Object{"id": ir.String(""), "text": ir.String("a")}}, "input"},
		{"missing field", ir.Action{ID: "x", Type: "ADD", Scope: "global", Input: ir.Object{"id": ir.String("1")}}, "input"},
		{"extra field", ir.Action{ID: "x", Type: "ADD", Scope: "global", Input: ir.Object{"id": ir.String("1"), "text": ir.String("a"), "x": ir.Int(1)}}, "input"},
		{"bad enum", ir.Action{ID: "x", Type: "SET_FILTER", Scope: "local", Input: ir.Object{"filter": ir.String("later")}}, "input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(m, tt.action)
			var ve *ir.ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestAttach(t *testing.T) {
	s := compileTodo(t)

	mods := s.Attach([]registry.Module{
		{DocumentType: "test/todo", Version: 1},
		{DocumentType: "other", Version: 1},
	})
	require.Len(t, mods, 2)
	assert.NotNil(t, mods[0].Validator)
	assert.Equal(t, []string{"global", "local"}, mods[0].Scopes)
	assert.Equal(t, ir.Object{"filter": ir.String("all")}, mods[0].InitialState["local"])
	assert.Nil(t, mods[1].Validator)

	assert.Nil(t, s.Validator("other", 1))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "todo.cue"), []byte("package models\n"+todoModel), 0o644))

	s, err := LoadDir(dir)
	require.NoError(t, err)
	_, ok := s.Find("test/todo", 1)
	assert.True(t, ok)

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
