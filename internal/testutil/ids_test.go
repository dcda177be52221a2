package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/reactor/internal/ir"
)

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("job")
	assert.Equal(t, "job-0001", g.Generate())
	assert.Equal(t, "job-0002", g.Generate())

	assert.Equal(t, "id-0001", NewSequenceGenerator("").Generate())
}

func TestUseSequenceIDs(t *testing.T) {
	t.Run("installed", func(t *testing.T) {
		UseSequenceIDs(t, "act")
		assert.Equal(t, "act-0001", ir.NewID())
		a := ir.NewAction("ADD_ITEM", ir.ScopeGlobal, nil)
		assert.Equal(t, "act-0002", a.ID)
	})

	assert.NotContains(t, ir.NewID(), "act-", "generator is restored after the test")
}
