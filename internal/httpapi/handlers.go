package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/reactor/internal/ir"
	"github.com/roach88/reactor/internal/reactor"
	"github.com/roach88/reactor/internal/store"
)

type createRequest struct {
	DocumentType string `json:"document_type"`
	ID           string `json:"id,omitempty"`
	Slug         string `json:"slug,omitempty"`
	Version      int    `json:"version,omitempty"`
	Branch       string `json:"branch,omitempty"`
}

type executeRequest struct {
	Branch  string      `json:"branch,omitempty"`
	Actions []ir.Action `json:"actions"`
}

type submitResponse struct {
	DocumentID string        `json:"document_id,omitempty"`
	JobIDs     []string      `json:"job_ids"`
	Results    []jobResponse `json:"results,omitempty"`
}

type jobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Token  string `json:"token,omitempty"`
}

func toJobResponse(res reactor.JobResult) jobResponse {
	out := jobResponse{JobID: res.JobID, Status: string(res.Status)}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if !res.Token.IsZero() {
		out.Token = res.Token.String()
	}
	return out
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.reactor.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.DocumentType == "" {
		writeError(w, http.StatusBadRequest, "document_type is required")
		return
	}
	docID, jobID, err := s.reactor.Create(r.Context(), req.DocumentType, reactor.CreateOptions{
		ID:      req.ID,
		Slug:    req.Slug,
		Version: req.Version,
		Branch:  req.Branch,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	s.respondSubmitted(w, r, submitResponse{DocumentID: docID, JobIDs: []string{jobID}})
}

func (s *server) executeActions(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	for i := range req.Actions {
		a := &req.Actions[i]
		if a.ID == "" {
			a.ID = ir.NewID()
		}
		if a.Timestamp == 0 {
			a.Timestamp = time.Now().UnixMilli()
		}
		if a.Input == nil {
			a.Input = ir.Object{}
		}
	}
	docID := chi.URLParam(r, "id")
	ids, err := s.reactor.Execute(r.Context(), docID, req.Branch, req.Actions)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.respondSubmitted(w, r, submitResponse{DocumentID: docID, JobIDs: ids})
}

func (s *server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	jobID, err := s.reactor.Delete(r.Context(), docID, r.URL.Query().Get("branch"))
	if err != nil {
		fail(w, r, err)
		return
	}
	s.respondSubmitted(w, r, submitResponse{DocumentID: docID, JobIDs: []string{jobID}})
}

// respondSubmitted answers 202 with the job ids, or waits for the jobs and
// answers 200 with their results when ?wait=true.
func (s *server) respondSubmitted(w http.ResponseWriter, r *http.Request, resp submitResponse) {
	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.WaitTimeout)
	defer cancel()
	for _, id := range resp.JobIDs {
		res, err := s.reactor.Wait(ctx, id)
		if err != nil {
			fail(w, r, err)
			return
		}
		resp.Results = append(resp.Results, toJobResponse(res))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.WaitTimeout)
		defer cancel()
		res, err := s.reactor.Wait(ctx, jobID)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toJobResponse(res))
		return
	}
	res, ok := s.reactor.Status(jobID)
	if !ok {
		fail(w, r, fmt.Errorf("job %s: %w", jobID, reactor.ErrUnknownJob))
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(res))
}

func (s *server) getDocument(w http.ResponseWriter, r *http.Request) {
	token, err := store.ParseConsistencyToken(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := s.reactor.Get(r.Context(), chi.URLParam(r, "id"), token)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *server) listOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token, err := store.ParseConsistencyToken(q.Get("token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	paging, err := parsePaging(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.reactor.Operations(r.Context(), store.OperationQuery{
		DocumentID: chi.URLParam(r, "id"),
		Scopes:     q["scope"],
		Branch:     q.Get("branch"),
	}, paging, token)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) listRemotes(w http.ResponseWriter, r *http.Request) {
	remotes, err := s.reactor.Sync().Remotes(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remotes)
}

func parsePaging(q url.Values) (store.Paging, error) {
	var p store.Paging
	var err error
	if p.Cursor, err = parseInt(q, "after"); err != nil {
		return p, err
	}
	limit, err := parseInt(q, "limit")
	if err != nil {
		return p, err
	}
	p.Limit = int(limit)
	return p, nil
}

func parseInt(q url.Values, name string) (int64, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}
