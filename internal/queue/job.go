package queue

import (
	"time"

	"github.com/roach88/reactor/internal/ir"
)

// Kind distinguishes locally submitted work from foreign batches.
type Kind string

const (
	// KindApply applies new actions on top of the current state.
	KindApply Kind = "apply"
	// KindLoad merges a foreign operation batch into the log.
	KindLoad Kind = "load"
)

// Job is one unit of scheduled work on a (document, scope, branch) log.
type Job struct {
	ID         string
	DocumentID string
	Scope      string
	Branch     string
	Kind       Kind

	Actions    []ir.Action    // KindApply
	Operations []ir.Operation // KindLoad

	// Dependencies are the ids of creator jobs this job waited on. Set by Add.
	Dependencies []string

	Retries    int
	MaxRetries int
	CreatedAt  time.Time

	// Source names the remote a load job came from, if any.
	Source string
}

// Key returns the log the job writes to.
func (j *Job) Key() ir.LogKey {
	return ir.LogKey{DocumentID: j.DocumentID, Scope: j.Scope, Branch: j.Branch}
}

// AllActions returns the job's actions, including those carried by the
// operations of a load job.
func (j *Job) AllActions() []ir.Action {
	if j.Kind != KindLoad {
		return j.Actions
	}
	out := make([]ir.Action, len(j.Operations))
	for i, op := range j.Operations {
		out[i] = op.Action
	}
	return out
}

// CreatesDocument reports whether the job creates its document.
func (j *Job) CreatesDocument() bool {
	for _, a := range j.AllActions() {
		if a.Type == ir.ActionCreateDocument {
			return true
		}
	}
	return false
}

// DeletedDocument returns the document a job deletes, if it deletes one.
func (j *Job) DeletedDocument() (string, bool) {
	for _, a := range j.AllActions() {
		if a.Type != ir.ActionDeleteDocument {
			continue
		}
		if id, ok := a.Input.GetString("document_id"); ok && id != "" {
			return id, true
		}
		return j.DocumentID, true
	}
	return "", false
}

// References returns the documents that must exist before the job runs:
// its own document (unless the job creates it) and every document its
// actions point at.
func (j *Job) References() []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if !j.CreatesDocument() {
		add(j.DocumentID)
	}
	for _, a := range j.AllActions() {
		for _, ref := range ir.ReferencedDocuments(a) {
			add(ref)
		}
	}
	return out
}
