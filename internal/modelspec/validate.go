package modelspec

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/registry"
)

// Validate checks an action against model m: the action must be declared,
// target its declared scope and carry input accepted by its schema.
func (s *Set) Validate(m ModelSpec, action ir.Action) error {
	spec, ok := m.Actions[action.Type]
	if !ok {
		return &ir.ValidationError{ActionID: action.ID, Field: "type",
			Message: fmt.Sprintf("action %s is not defined by %s@%d", action.Type, m.DocumentType, m.Version)}
	}
	if spec.Scope != action.Scope {
		return &ir.ValidationError{ActionID: action.ID, Field: "scope",
			Message: fmt.Sprintf("action %s belongs to scope %s, not %s", action.Type, spec.Scope, action.Scope)}
	}
	if !spec.input.Exists() {
		return nil
	}

	data, err := ir.MarshalValue(action.Input)
	if err != nil {
		return &ir.ValidationError{ActionID: action.ID, Field: "input", Message: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.ctx.CompileBytes(data)
	if err := in.Err(); err != nil {
		return &ir.ValidationError{ActionID: action.ID, Field: "input", Message: err.Error()}
	}
	if err := spec.input.Unify(in).Validate(cue.Concrete(true)); err != nil {
		return &ir.ValidationError{ActionID: action.ID, Field: "input", Message: formatCUEError(err).Error()}
	}
	return nil
}

// Validator returns a registry validator for documentType at version, or
// nil if the set does not define that model.
func (s *Set) Validator(documentType string, version int) registry.Validator {
	m, ok := s.Find(documentType, version)
	if !ok {
		return nil
	}
	return func(action ir.Action) error {
		return s.Validate(m, action)
	}
}

// Attach fills in validators, scopes and initial state of mods from the
// matching models. Modules without a model are returned unchanged.
func (s *Set) Attach(mods []registry.Module) []registry.Module {
	out := make([]registry.Module, len(mods))
	for i, mod := range mods {
		m, ok := s.Find(mod.DocumentType, mod.Version)
		if ok {
			mod.Validator = s.Validator(mod.DocumentType, mod.Version)
			if len(mod.Scopes) == 0 {
				mod.Scopes = append([]string(nil), m.Scopes...)
			}
			if mod.InitialState == nil {
				mod.InitialState = make(map[string]ir.Object, len(m.InitialState))
				for scope, st := range m.InitialState {
					mod.InitialState[scope] = st.Clone()
				}
			}
		}
		out[i] = mod
	}
	return out
}
