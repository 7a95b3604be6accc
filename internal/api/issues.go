package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/roadsync/internal/store"
	"github.com/hyperengineering/roadsync/internal/types"
)

// WriteIssueError writes the uniform error envelope with an error entry:
// {"issue":[{"error":"..."}]}.
func WriteIssueError(w http.ResponseWriter, status int, message string) {
	writeIssue(w, status, types.Issue{Error: message})
}

// WriteIssueWarning writes the uniform error envelope with a warning entry.
func WriteIssueWarning(w http.ResponseWriter, status int, message string) {
	writeIssue(w, status, types.Issue{Warning: message})
}

func writeIssue(w http.ResponseWriter, status int, issue types.Issue) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(types.IssueResponse{Issue: []types.Issue{issue}}); err != nil {
		slog.Error("failed to encode issue response", "error", err)
	}
}

// WriteJSON writes a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// MapStoreError converts store errors to the issue envelope.
func MapStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNameMissing):
		WriteIssueError(w, http.StatusBadRequest, "Name is missing")
	case errors.Is(err, store.ErrVersionConflict):
		WriteIssueError(w, http.StatusConflict, "Version conflict")
	case errors.Is(err, store.ErrNotFound):
		WriteIssueError(w, http.StatusNotFound, "road not found")
	default:
		// Never expose internal error details to the client.
		WriteIssueError(w, http.StatusInternalServerError, "Unexpected error")
	}
}
