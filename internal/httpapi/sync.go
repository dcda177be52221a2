package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/reactor/internal/syncmgr"
)

func filterFrom(q url.Values) syncmgr.Filter {
	return syncmgr.Filter{
		DocumentIDs: q["document_id"],
		Scopes:      q["scope"],
		Branch:      q.Get("branch"),
	}
}

// exportOperations serves pull channels: the envelope of collection
// operations after the caller's cursor.
func (s *server) exportOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paging, err := parsePaging(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	since, err := parseInt(q, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	env, _, err := s.reactor.Sync().Export(r.Context(), chi.URLParam(r, "collection"), filterFrom(q), since, paging.Cursor, paging.Limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// ingestEnvelope serves push channels: the envelope is loaded and the
// response is sent once every load job finished.
func (s *server) ingestEnvelope(w http.ResponseWriter, r *http.Request) {
	var env syncmgr.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode envelope: %v", err))
		return
	}
	collection := chi.URLParam(r, "collection")
	if env.CollectionID == "" {
		env.CollectionID = collection
	}
	if env.CollectionID != collection {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("envelope is for collection %s", env.CollectionID))
		return
	}
	source := r.URL.Query().Get("remote")
	if err := s.reactor.Sync().Ingest(r.Context(), source, filterFrom(r.URL.Query()), env); err != nil {
		slog.Warn("ingest envelope failed", "remote", source, "collection", collection, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cursor": env.Cursor})
}

// acceptSync upgrades to a websocket and runs the connection as the
// remote named in the path.
func (s *server) acceptSync(w http.ResponseWriter, r *http.Request) {
	remoteID := chi.URLParam(r, "remote")
	collection := r.URL.Query().Get("collection")
	if collection == "" {
		writeError(w, http.StatusBadRequest, "collection is required")
		return
	}
	remotes, err := s.reactor.Sync().Remotes(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	for _, info := range remotes {
		if info.ID == remoteID && info.Connected {
			writeError(w, http.StatusConflict, fmt.Sprintf("remote %s is already connected", remoteID))
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		slog.Warn("websocket upgrade failed", "remote", remoteID, "error", err)
		return
	}
	ch := syncmgr.NewWebsocketChannel(conn)
	_, err = s.reactor.Sync().AddChannel(r.Context(), syncmgr.Spec{
		RemoteID:     remoteID,
		CollectionID: collection,
		Filter:       filterFrom(r.URL.Query()),
	}, ch)
	if err != nil {
		slog.Error("accept sync connection", "remote", remoteID, "error", err)
		ch.Close()
		return
	}
	slog.Info("sync connection accepted", "remote", remoteID, "collection", collection, "addr", r.RemoteAddr)
}
