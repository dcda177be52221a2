package modelspec

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/reactor/internal/ir"
)

// ActionSpec is one declared action of a model.
type ActionSpec struct {
	Name  string
	Scope string

	input cue.Value // schema; zero value accepts any object
}

// ModelSpec is one compiled (document type, version).
type ModelSpec struct {
	Name         string
	DocumentType string
	Version      int
	Scopes       []string
	InitialState map[string]ir.Object
	Actions      map[string]ActionSpec
}

// ActionNames returns the declared action names, sorted.
func (m ModelSpec) ActionNames() []string {
	names := make([]string, 0, len(m.Actions))
	for n := range m.Actions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Set is a compiled group of models sharing one CUE context. A cue.Context
// is not safe for concurrent use, so validation is serialized by mu.
type Set struct {
	mu     sync.Mutex
	ctx    *cue.Context
	models []ModelSpec
}

// Models returns the compiled models ordered by type, then version.
func (s *Set) Models() []ModelSpec {
	out := append([]ModelSpec(nil), s.models...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentType != out[j].DocumentType {
			return out[i].DocumentType < out[j].DocumentType
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// Find returns the model for documentType at version.
func (s *Set) Find(documentType string, version int) (ModelSpec, bool) {
	for _, m := range s.models {
		if m.DocumentType == documentType && m.Version == version {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// Compile compiles CUE source. filename is used in error positions.
func Compile(filename string, src []byte) (*Set, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return build(ctx, v)
}

// LoadDir loads every .cue file of the package in dir.
func LoadDir(dir string) (*Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("models directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return build(ctx, v)
}

func build(ctx *cue.Context, root cue.Value) (*Set, error) {
	s := &Set{ctx: ctx}

	models := root.LookupPath(cue.ParsePath("model"))
	if !models.Exists() {
		return nil, &CompileError{Field: "model", Message: "no models defined", Pos: root.Pos()}
	}

	iter, err := models.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	seen := map[string]string{}
	for iter.Next() {
		m, err := compileModel(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%s@%d", m.DocumentType, m.Version)
		if prev, ok := seen[key]; ok {
			return nil, &CompileError{Model: m.Name, Field: "version",
				Message: fmt.Sprintf("%s is already defined by model %s", key, prev), Pos: iter.Value().Pos()}
		}
		seen[key] = m.Name
		s.models = append(s.models, m)
	}
	return s, nil
}

func compileModel(name string, v cue.Value) (ModelSpec, error) {
	m := ModelSpec{Name: name, Actions: map[string]ActionSpec{}, InitialState: map[string]ir.Object{}}

	docType, err := requiredString(name, v, "document_type")
	if err != nil {
		return ModelSpec{}, err
	}
	m.DocumentType = docType

	versionVal := v.LookupPath(cue.ParsePath("version"))
	if !versionVal.Exists() {
		return ModelSpec{}, &CompileError{Model: name, Field: "version", Message: "version is required", Pos: v.Pos()}
	}
	version, err := versionVal.Int64()
	if err != nil || version < 1 {
		return ModelSpec{}, &CompileError{Model: name, Field: "version", Message: "version must be an integer >= 1", Pos: versionVal.Pos()}
	}
	m.Version = int(version)

	scopesVal := v.LookupPath(cue.ParsePath("scopes"))
	if scopesVal.Exists() {
		list, err := scopesVal.List()
		if err != nil {
			return ModelSpec{}, formatCUEError(err)
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return ModelSpec{}, formatCUEError(err)
			}
			if s == ir.ScopeDocument {
				return ModelSpec{}, &CompileError{Model: name, Field: "scopes",
					Message: "the document scope is reserved", Pos: list.Value().Pos()}
			}
			m.Scopes = append(m.Scopes, s)
		}
	}
	if len(m.Scopes) == 0 {
		m.Scopes = []string{ir.ScopeGlobal}
	}

	for _, scope := range m.Scopes {
		m.InitialState[scope] = ir.Object{}
	}
	initVal := v.LookupPath(cue.ParsePath("initial_state"))
	if initVal.Exists() {
		data, err := initVal.MarshalJSON()
		if err != nil {
			return ModelSpec{}, formatCUEError(err)
		}
		obj, err := ir.ParseObject(data)
		if err != nil {
			return ModelSpec{}, &CompileError{Model: name, Field: "initial_state", Message: err.Error(), Pos: initVal.Pos()}
		}
		for scope, state := range obj {
			st, ok := state.(ir.Object)
			if !ok || !contains(m.Scopes, scope) {
				return ModelSpec{}, &CompileError{Model: name, Field: "initial_state",
					Message: fmt.Sprintf("scope %q is not a declared object scope", scope), Pos: initVal.Pos()}
			}
			m.InitialState[scope] = st
		}
	}

	actionsVal := v.LookupPath(cue.ParsePath("action"))
	if !actionsVal.Exists() {
		return ModelSpec{}, &CompileError{Model: name, Field: "action", Message: "at least one action is required", Pos: v.Pos()}
	}
	iter, err := actionsVal.Fields()
	if err != nil {
		return ModelSpec{}, formatCUEError(err)
	}
	for iter.Next() {
		a := ActionSpec{Name: iter.Label(), Scope: ir.ScopeGlobal}
		av := iter.Value()
		if sv := av.LookupPath(cue.ParsePath("scope")); sv.Exists() {
			scope, err := sv.String()
			if err != nil {
				return ModelSpec{}, formatCUEError(err)
			}
			a.Scope = scope
		}
		if !contains(m.Scopes, a.Scope) {
			return ModelSpec{}, &CompileError{Model: name, Field: "action." + a.Name,
				Message: fmt.Sprintf("scope %q is not declared", a.Scope), Pos: av.Pos()}
		}
		if ir.IsSystemAction(a.Name) {
			return ModelSpec{}, &CompileError{Model: name, Field: "action." + a.Name,
				Message: "system actions cannot be redefined", Pos: av.Pos()}
		}
		if in := av.LookupPath(cue.ParsePath("input")); in.Exists() {
			a.input = in
		}
		m.Actions[a.Name] = a
	}
	if len(m.Actions) == 0 {
		return ModelSpec{}, &CompileError{Model: name, Field: "action", Message: "at least one action is required", Pos: v.Pos()}
	}

	return m, nil
}

func requiredString(model string, v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Model: model, Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{Model: model, Field: field, Message: field + " must not be empty", Pos: fv.Pos()}
	}
	return s, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
