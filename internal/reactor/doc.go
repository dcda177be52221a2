// Package reactor wires the operation index, the job queue, the executor,
// the event bus and the sync manager into one process.
//
// Writes are submitted as jobs and return a job id at once. Wait blocks
// until the job finished and hands back a consistency token; reads that
// carry the token observe everything the job wrote.
//
// Thread-safety model:
//   - Create, Execute, Load, Delete, Wait and the reads: safe from any goroutine
//   - Start and Close: called once each
package reactor
