// Package registry maps a document type and version to the reducer that
// applies actions to it, and to the upgrade transitions between versions.
//
// The registry is built once at startup and then read from many workers.
// Registration swaps an immutable snapshot, so lookups take no lock.
package registry
