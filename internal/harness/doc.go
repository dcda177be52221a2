// Package harness replays convergence scenarios against in-process
// replicas.
//
// A scenario names a document, a set of replicas and a sequence of steps.
// Each step either executes actions on one replica or copies the logs of
// one replica into another as load jobs, the way a remote would. The
// resulting logs and states are checked by assertions and can be compared
// against golden files.
//
// # Scenario Format
//
//	name: interleaved_timestamps
//	description: "Replicas writing interleaved timestamps converge"
//	document:
//	  id: list-1
//	  type: reactor/list
//	replicas: [a, b]
//	steps:
//	  - replica: a
//	    actions:
//	      - {id: A0, type: ADD_ITEM, scope: global, timestamp: 1, input: {id: a0, text: A0}}
//	  - sync: {from: a, to: b}
//	assertions:
//	  - type: converged
//	    scopes: [global]
//	  - type: projection
//	    replica: b
//	    scope: global
//	    actions: [A0]
//
// The document is created on the first replica and its document log is
// loaded into the others before the first step.
//
// # Assertion Types
//
//   - converged: every replica projects the same actions and ends on the
//     same state hash for each listed scope
//   - projection: the canonical action ids of one log, in order
//   - log_length: the number of physical entries of one log
//   - rejected: the action ids recorded with an error in one log
//   - state: a subset match on the top-level keys of one scope's state
//
// # Determinism
//
// Replicas run on in-memory SQLite databases with a manual clock, and ids
// the harness generates come from a sequence, so a scenario produces the
// same trace on every run. Regenerate golden files with:
//
//	go test ./internal/harness -update
package harness
