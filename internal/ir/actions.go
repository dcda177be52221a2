package ir

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// System action types. They all live in the document scope and are handled
// by the executor itself rather than by a model reducer.
const (
	ActionCreateDocument     = "CREATE_DOCUMENT"
	ActionUpgradeDocument    = "UPGRADE_DOCUMENT"
	ActionDeleteDocument     = "DELETE_DOCUMENT"
	ActionAddRelationship    = "ADD_RELATIONSHIP"
	ActionRemoveRelationship = "REMOVE_RELATIONSHIP"
)

// IDGenerator produces action and job identifiers.
// Implemented by UUIDv7Generator (production) and testutil.SequenceGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7. Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

var (
	idMu  sync.RWMutex
	idGen IDGenerator = UUIDv7Generator{}
	nowFn             = func() int64 { return time.Now().UnixMilli() }
)

// SetIDGenerator replaces the generator used by NewAction. Tests only.
func SetIDGenerator(g IDGenerator) func() {
	idMu.Lock()
	prev := idGen
	idGen = g
	idMu.Unlock()
	return func() {
		idMu.Lock()
		idGen = prev
		idMu.Unlock()
	}
}

// NewID returns an identifier from the configured generator.
func NewID() string {
	idMu.RLock()
	defer idMu.RUnlock()
	return idGen.Generate()
}

// NewAction builds an action with a fresh id and the current timestamp.
func NewAction(actionType, scope string, input Object) Action {
	if input == nil {
		input = Object{}
	}
	return Action{
		ID:        NewID(),
		Type:      actionType,
		Scope:     scope,
		Input:     input,
		Timestamp: nowFn(),
	}
}

// CreateDocumentAction returns a CREATE_DOCUMENT action. version 0 means
// "latest registered".
func CreateDocumentAction(documentType, slug string, version int) Action {
	input := Object{"document_type": String(documentType)}
	if slug != "" {
		input["slug"] = String(slug)
	}
	if version > 0 {
		input["version"] = Int(version)
	}
	return NewAction(ActionCreateDocument, ScopeDocument, input)
}

// UpgradeDocumentAction returns an UPGRADE_DOCUMENT action.
func UpgradeDocumentAction(toVersion int) Action {
	return NewAction(ActionUpgradeDocument, ScopeDocument, Object{"to_version": Int(toVersion)})
}

// DeleteDocumentAction returns a DELETE_DOCUMENT action.
func DeleteDocumentAction(documentID string) Action {
	return NewAction(ActionDeleteDocument, ScopeDocument, Object{"document_id": String(documentID)})
}

// AddRelationshipAction returns an ADD_RELATIONSHIP action attaching targetID.
func AddRelationshipAction(targetID, relationshipType string) Action {
	return NewAction(ActionAddRelationship, ScopeDocument, Object{
		"target_id":         String(targetID),
		"relationship_type": String(relationshipType),
	})
}

// RemoveRelationshipAction returns a REMOVE_RELATIONSHIP action.
func RemoveRelationshipAction(targetID string) Action {
	return NewAction(ActionRemoveRelationship, ScopeDocument, Object{"target_id": String(targetID)})
}

// IsSystemAction reports whether actionType is handled by the executor.
func IsSystemAction(actionType string) bool {
	switch actionType {
	case ActionCreateDocument, ActionUpgradeDocument, ActionDeleteDocument,
		ActionAddRelationship, ActionRemoveRelationship:
		return true
	}
	return false
}

// ReferencedDocuments returns the ids of other documents an action points at.
func ReferencedDocuments(a Action) []string {
	switch a.Type {
	case ActionAddRelationship, ActionRemoveRelationship:
		if id, ok := a.Input.GetString("target_id"); ok && id != "" {
			return []string{id}
		}
	}
	return nil
}
