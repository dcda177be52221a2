package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRun_ThreeReplicasConverge(t *testing.T) {
	s := mustParse(t, `
name: three_replicas
description: "a chain of syncs reaches every replica"
document: {id: list-1, type: reactor/list}
replicas: [a, b, c]
steps:
  - replica: c
    actions: [{id: C0, type: ADD_ITEM, scope: global, timestamp: 5, input: {id: c, text: c}}]
  - replica: a
    actions: [{id: A0, type: ADD_ITEM, scope: global, timestamp: 9, input: {id: a, text: a}}]
  - sync: {from: c, to: b}
  - sync: {from: a, to: b}
  - sync: {from: b, to: a}
  - sync: {from: b, to: c}
assertions:
  - {type: converged, scopes: [global]}
  - {type: projection, replica: c, scope: global, actions: [C0, A0]}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Trace, 6)
	assert.Len(t, result.Replicas, 3)
}

func TestRun_ReportsFailedAssertions(t *testing.T) {
	s := mustParse(t, `
name: diverged
description: "replicas that never sync do not converge"
document: {id: list-1, type: reactor/list}
replicas: [a, b]
steps:
  - replica: a
    actions: [{id: A0, type: ADD_ITEM, scope: global, timestamp: 1, input: {id: a, text: a}}]
assertions:
  - {type: converged, scopes: [global]}
  - {type: log_length, replica: a, scope: global, count: 2}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: converged")
	assert.Contains(t, result.Errors[1], "Assertion failed: log_length")
}

func TestRun_ExpectError(t *testing.T) {
	s := mustParse(t, `
name: expect_error
description: "errors are checked against expect_error"
document: {id: list-1, type: reactor/list}
replicas: [a]
steps:
  - replica: a
    actions: [{id: R0, type: REMOVE_ITEM, scope: global, timestamp: 1, input: {id: nope}}]
    expect_error: "unknown item"
  - replica: a
    actions: [{id: R1, type: REMOVE_ITEM, scope: global, timestamp: 2, input: {id: nope}}]
  - replica: a
    actions: [{id: A0, type: ADD_ITEM, scope: global, timestamp: 3, input: {id: a, text: a}}]
    expect_error: "unknown item"
assertions:
  - {type: log_length, replica: a, scope: global, count: 1}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "step 1: unexpected error")
	assert.Contains(t, result.Errors[1], `step 2: expected an error containing "unknown item"`)

	assert.NotEmpty(t, result.Trace[0].Error)
	assert.Empty(t, result.Trace[2].Error)
}

func TestRun_UnknownDocumentType(t *testing.T) {
	s := mustParse(t, `
name: unknown_type
description: "the document type must be registered"
document: {id: d, type: reactor/unknown}
replicas: [a]
steps:
  - replica: a
    actions: [{id: A0, type: ADD_ITEM, scope: global, timestamp: 1}]
assertions:
  - {type: log_length, replica: a, scope: global, count: 0}
`)

	_, err := Run(s)
	require.Error(t, err)
}
