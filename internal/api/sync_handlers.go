package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/roadsync/internal/store"
)

// SyncRoads handles POST /roads/sync. The body is an ordered array of
// road submissions; items flagged createdOnFrontend (or without an id)
// become creations, items with a known id owned by the caller are
// merged field-by-field, and everything else is silently dropped. The
// response is the caller's first page of roads, newest-first.
func (h *Handler) SyncRoads(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteIssueError(w, http.StatusBadRequest, "Unreadable request body")
		return
	}
	items, err := store.ParseSyncItems(body)
	if err != nil {
		WriteIssueError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	roads, err := h.store.SyncRoads(r.Context(), userID, items)
	if err != nil {
		slog.Error("sync failed", "error", err, "user", userID, "items", len(items))
		MapStoreError(w, err)
		return
	}

	slog.Info("sync applied",
		"component", "api",
		"user", userID,
		"submitted", len(items),
	)
	WriteJSON(w, http.StatusOK, roads)
}
