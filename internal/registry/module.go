package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/reactor/internal/ir"
)

// Reducer applies one action to the state of one scope. It must be pure and
// deterministic. Returning an error rejects the action.
type Reducer func(state ir.Object, action ir.Action) (ir.Object, error)

// Validator checks an action's input before it reaches the reducer.
type Validator func(action ir.Action) error

// UpgradeReducer moves a document from one version to the next.
type UpgradeReducer func(doc ir.Document, action ir.Action) (ir.Document, error)

// UpgradeTransition is one single-step version change.
type UpgradeTransition struct {
	From    int
	To      int
	Upgrade UpgradeReducer
}

// UpgradeManifest lists the transitions of one document type, keyed by the
// target version ("v2", "v3", ...).
type UpgradeManifest struct {
	DocumentType string
	Transitions  map[string]UpgradeTransition
}

// TransitionKey returns the manifest key of the transition into version.
func TransitionKey(version int) string {
	return "v" + strconv.Itoa(version)
}

// Module is one registered (document type, version).
type Module struct {
	DocumentType string
	Version      int

	// Scopes lists the scopes the model keeps state for. The document scope
	// is always present and handled by the executor.
	Scopes []string

	Reducer      Reducer
	InitialState map[string]ir.Object

	// Optional.
	Validator       Validator
	UpgradeManifest *UpgradeManifest
}

// Key renders "type@version".
func (m Module) Key() string {
	return fmt.Sprintf("%s@%d", m.DocumentType, m.Version)
}

// HasScope reports whether the model declares scope.
func (m Module) HasScope(scope string) bool {
	if scope == ir.ScopeDocument {
		return true
	}
	for _, s := range m.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// NewInitialState returns a deep copy of the initial state of every scope.
func (m Module) NewInitialState() map[string]ir.Object {
	out := make(map[string]ir.Object, len(m.Scopes)+1)
	for _, s := range m.Scopes {
		out[s] = m.InitialState[s].Clone()
	}
	out[ir.ScopeDocument] = ir.Object{}
	return out
}

func (m Module) validate() error {
	switch {
	case strings.TrimSpace(m.DocumentType) == "":
		return fmt.Errorf("module: document type is required")
	case m.Version < 1:
		return fmt.Errorf("module %s: version must be >= 1", m.DocumentType)
	case m.Reducer == nil:
		return fmt.Errorf("module %s: reducer is required", m.Key())
	}
	if man := m.UpgradeManifest; man != nil {
		if man.DocumentType != "" && man.DocumentType != m.DocumentType {
			return fmt.Errorf("module %s: manifest is for %s", m.Key(), man.DocumentType)
		}
		for key, tr := range man.Transitions {
			if key != TransitionKey(tr.To) {
				return fmt.Errorf("module %s: manifest key %q does not match target version %d", m.Key(), key, tr.To)
			}
			if tr.Upgrade == nil {
				return fmt.Errorf("module %s: transition %s has no upgrade reducer", m.Key(), key)
			}
		}
	}
	return nil
}
