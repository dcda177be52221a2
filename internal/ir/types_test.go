package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareActions(t *testing.T) {
	a := Action{ID: "b", Timestamp: 1}
	b := Action{ID: "a", Timestamp: 2}
	c := Action{ID: "a", Timestamp: 1}

	assert.Equal(t, -1, CompareActions(a, b), "earlier timestamp sorts first")
	assert.Equal(t, 1, CompareActions(a, c), "ties break on id")
	assert.Equal(t, 0, CompareActions(a, a))
}

func TestDocumentCloneIsIndependent(t *testing.T) {
	doc := Document{
		Header: Header{ID: "d1", Revision: map[string]int64{ScopeGlobal: 2}},
		State:  map[string]Object{ScopeGlobal: {"n": Int(1)}},
	}
	cp := doc.Clone()
	cp.Header.Revision[ScopeGlobal] = 3
	cp.State[ScopeGlobal]["n"] = Int(2)

	assert.Equal(t, int64(2), doc.Header.Revision[ScopeGlobal])
	assert.Equal(t, Int(1), doc.State[ScopeGlobal]["n"])
}

func TestReferencedDocuments(t *testing.T) {
	assert.Equal(t, []string{"child"}, ReferencedDocuments(AddRelationshipAction("child", "contains")))
	assert.Nil(t, ReferencedDocuments(NewAction("ADD_ITEM", ScopeGlobal, nil)))
}

type fixedIDs struct{ n int }

func (f *fixedIDs) Generate() string {
	f.n++
	return "id-" + string(rune('0'+f.n))
}

func TestNewActionUsesGenerator(t *testing.T) {
	restore := SetIDGenerator(&fixedIDs{})
	defer restore()

	a := NewAction("ADD_ITEM", ScopeGlobal, nil)
	assert.Equal(t, "id-1", a.ID)
	assert.NotNil(t, a.Input)
	require.NoError(t, ValidateAction(a))
}

func TestValidateAction(t *testing.T) {
	err := ValidateAction(Action{ID: "x", Scope: ScopeGlobal})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}
