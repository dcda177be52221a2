package reactor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/events"
	"github.com/roach88/reactor/internal/executor"
	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/models"
	"github.com/roach88/reactor/internal/queue"
	"github.com/roach88/reactor/internal/registry"
	"github.com/roach88/reactor/internal/store"
)

func newTestReactor(t *testing.T, start bool, opts ...Option) *Reactor {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	reg := registry.New()
	require.NoError(t, models.Register(reg))

	r, err := New(st, reg, opts...)
	require.NoError(t, err)
	if start {
		r.Start(context.Background())
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, r.Close(ctx))
		st.Close()
	})
	return r
}

func wait(t *testing.T, r *Reactor, jobID string) JobResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := r.Wait(ctx, jobID)
	require.NoError(t, err)
	return res
}

func mustComplete(t *testing.T, r *Reactor, jobIDs ...string) store.ConsistencyToken {
	t.Helper()
	var token store.ConsistencyToken
	for _, id := range jobIDs {
		res := wait(t, r, id)
		require.Equal(t, StatusCompleted, res.Status, "job %s failed: %v", id, res.Err)
		if res.Token.Ordinal > token.Ordinal {
			token = res.Token
		}
	}
	return token
}

func addItem(id string, ts int64, item string) ir.Action {
	return ir.Action{
		ID:        id,
		Type:      "ADD_ITEM",
		Scope:     ir.ScopeGlobal,
		Input:     ir.Object{"id": ir.String(item), "text": ir.String(item)},
		Timestamp: ts,
	}
}

func createList(t *testing.T, r *Reactor, docID string, version int) {
	t.Helper()
	id, jobID, err := r.Create(context.Background(), models.ListType, CreateOptions{ID: docID, Version: version})
	require.NoError(t, err)
	require.Equal(t, docID, id)
	mustComplete(t, r, jobID)
}

func items(t *testing.T, doc ir.Document) []string {
	t.Helper()
	arr, _ := doc.ScopeState(ir.ScopeGlobal).GetArray("items")
	var out []string
	for _, v := range arr {
		id, _ := v.(ir.Object).GetString("id")
		out = append(out, id)
	}
	return out
}

func TestReactor_CreateExecuteWait(t *testing.T) {
	r := newTestReactor(t, true)
	ctx := context.Background()

	docID, jobID, err := r.Create(ctx, models.ListType, CreateOptions{Slug: "groceries"})
	require.NoError(t, err)
	assert.NotEmpty(t, docID)
	res := wait(t, r, jobID)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, jobID, res.JobID)
	assert.False(t, res.Token.IsZero())

	ids, err := r.Execute(ctx, docID, "", []ir.Action{addItem("a1", 10, "milk"), addItem("a2", 11, "eggs")})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	token := mustComplete(t, r, ids...)

	doc, err := r.Get(ctx, docID, token)
	require.NoError(t, err)
	assert.Equal(t, []string{"milk", "eggs"}, items(t, doc))
	assert.Equal(t, 2, doc.Header.Version, "latest version by default")
	assert.Equal(t, "groceries", doc.Header.Slug)

	page, err := r.Operations(ctx, store.OperationQuery{DocumentID: docID}, store.Paging{}, token)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 3)

	ops, err := r.Log(ctx, ir.LogKey{DocumentID: docID, Scope: ir.ScopeGlobal, Branch: ir.BranchMain}, token)
	require.NoError(t, err)
	assert.Len(t, ops, 2)

	status, ok := r.Status(ids[0])
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, status.Status)
}

func TestReactor_ExecuteQueuesDocumentScopeFirst(t *testing.T) {
	r := newTestReactor(t, true)
	ctx := context.Background()
	createList(t, r, "doc-1", 1)

	sub := r.Bus().Subscribe(events.JobAdded)
	defer sub.Close()

	ids, err := r.Execute(ctx, "doc-1", ir.BranchMain, []ir.Action{
		addItem("a1", 10, "milk"),
		ir.NewAction("SET_FILTER", ir.ScopeLocal, ir.Object{"filter": ir.String("open")}),
		ir.UpgradeDocumentAction(2),
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	var scopes []string
	for len(scopes) < 3 {
		select {
		case ev := <-sub.C():
			scopes = append(scopes, ev.Queue.Scope)
		case <-time.After(5 * time.Second):
			t.Fatal("missing jobAdded events")
		}
	}
	assert.Equal(t, []string{ir.ScopeDocument, ir.ScopeGlobal, ir.ScopeLocal}, scopes)

	token := mustComplete(t, r, ids...)
	doc, err := r.Get(ctx, "doc-1", token)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Header.Version)
	filter, _ := doc.ScopeState(ir.ScopeLocal).GetString("filter")
	assert.Equal(t, "open", filter)
}

func TestReactor_FailedJobResult(t *testing.T) {
	r := newTestReactor(t, true)
	createList(t, r, "doc-1", 1)

	ids, err := r.Execute(context.Background(), "doc-1", "", []ir.Action{
		{ID: "c1", Type: "CHECK_ITEM", Scope: ir.ScopeGlobal, Input: ir.Object{"id": ir.String("ghost"), "done": ir.Bool(true)}, Timestamp: 1},
	})
	require.NoError(t, err)

	res := wait(t, r, ids[0])
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, executor.IsRejected(res.Err), "got %v", res.Err)
	assert.ErrorIs(t, res.Err, models.ErrUnknownItem)
	assert.True(t, res.Token.IsZero())
}

func TestReactor_SubmissionErrors(t *testing.T) {
	r := newTestReactor(t, true)
	ctx := context.Background()

	_, _, err := r.Create(ctx, "reactor/unknown", CreateOptions{})
	assert.True(t, registry.IsNotFound(err), "got %v", err)

	_, err = r.Execute(ctx, "doc-1", "", nil)
	assert.True(t, ir.IsValidationError(err))

	_, err = r.Execute(ctx, "doc-1", "", []ir.Action{{ID: "x", Type: "ADD_ITEM"}})
	assert.True(t, ir.IsValidationError(err))

	_, err = r.Load(ctx, ir.LogKey{DocumentID: "doc-1", Scope: ir.ScopeGlobal}, nil, "peer")
	assert.True(t, ir.IsValidationError(err))

	_, err = r.Wait(ctx, "never-submitted")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestReactor_DeleteRejectsLaterWrites(t *testing.T) {
	r := newTestReactor(t, true)
	ctx := context.Background()
	createList(t, r, "doc-1", 1)

	jobID, err := r.Delete(ctx, "doc-1", "")
	require.NoError(t, err)
	token := mustComplete(t, r, jobID)

	_, err = r.Get(ctx, "doc-1", token)
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)

	_, err = r.Execute(ctx, "doc-1", "", []ir.Action{addItem("a1", 10, "milk")})
	assert.True(t, queue.IsQueueDeletedError(err), "got %v", err)
}

func TestReactor_WaitHonorsContext(t *testing.T) {
	r := newTestReactor(t, false)

	_, jobID, err := r.Create(context.Background(), models.ListType, CreateOptions{ID: "doc-1"})
	require.NoError(t, err)

	status, ok := r.Status(jobID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, status.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Wait(ctx, jobID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Starting late runs what was queued.
	r.Start(context.Background())
	mustComplete(t, r, jobID)
}

func TestReactor_CloseIsIdempotent(t *testing.T) {
	r := newTestReactor(t, true)
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	_, _, err := r.Create(context.Background(), models.ListType, CreateOptions{})
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
}
