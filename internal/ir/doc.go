// Package ir holds the data model shared by every reactor component:
// actions, operations, documents and the value types they carry.
//
// ir imports nothing internal. All other packages import it, which keeps it
// the foundation layer with no import cycles.
//
// Design constraints:
//   - No float types anywhere; numbers are int64 so hashes agree across peers
//   - JSON tags use snake_case
//   - Content hashes use RFC 8785 canonical JSON and domain-separated SHA-256
//   - Committed operations are immutable values; nothing here mutates them
package ir
