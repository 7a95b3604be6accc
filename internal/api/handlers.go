package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/roadsync/internal/auth"
	"github.com/hyperengineering/roadsync/internal/store"
	"github.com/hyperengineering/roadsync/internal/types"
	"github.com/hyperengineering/roadsync/internal/validation"
)

// Handler implements the API handlers
type Handler struct {
	store  store.Store
	tokens *auth.Service
}

// NewHandler creates a new Handler with the store.Store interface.
func NewHandler(s store.Store, tokens *auth.Service) *Handler {
	return &Handler{store: s, tokens: tokens}
}

// Login handles POST /login. On a credential match it returns the
// signed bearer token as the raw response body; on mismatch, a bare 401.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteIssueError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrUserNotFound) || (err == nil && !auth.CheckPassword(user.PasswordHash, req.Password)) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err != nil {
		MapStoreError(w, err)
		return
	}

	token, err := h.tokens.GenerateToken(*user)
	if err != nil {
		slog.Error("token generation failed", "error", err, "user", user.ID)
		WriteIssueError(w, http.StatusInternalServerError, "Unexpected error")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(token))
}

// ListRoads handles GET /roads. An If-Modified-Since header at or past
// the store's last mutation time (whole-second resolution) short-circuits
// with 304 and no body; otherwise the full query runs and Last-Modified
// carries the current mutation time for the client's next poll.
func (h *Handler) ListRoads(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	lastUpdated := h.store.LastUpdated()

	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && !t.Before(lastUpdated.Truncate(time.Second)) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	q := types.RoadQuery{
		Search:          r.URL.Query().Get("sName"),
		OnlyOperational: r.URL.Query().Get("onlyOperational") == "true",
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		q.Page = page
	}

	result, err := h.store.ListRoads(r.Context(), userID, q)
	if err != nil {
		slog.Error("list roads failed", "error", err, "user", userID)
		MapStoreError(w, err)
		return
	}

	w.Header().Set("Last-Modified", lastUpdated.UTC().Format(http.TimeFormat))
	WriteJSON(w, http.StatusOK, result)
}

// GetRoad handles GET /road/{id}.
func (h *Handler) GetRoad(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	road, err := h.store.GetRoad(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		WriteIssueWarning(w, http.StatusNotFound, fmt.Sprintf("road with id %s not found", id))
		return
	}
	if err != nil {
		slog.Error("get road failed", "error", err, "id", id)
		MapStoreError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, road)
}

// CreateRoad handles POST /road.
func (h *Handler) CreateRoad(w http.ResponseWriter, r *http.Request) {
	var road types.Road
	if err := json.NewDecoder(r.Body).Decode(&road); err != nil {
		WriteIssueError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	h.createRoad(w, r, road)
}

// createRoad is shared by POST /road and the create-on-PUT path.
func (h *Handler) createRoad(w http.ResponseWriter, r *http.Request, road types.Road) {
	if verr := validation.ValidateRoad(road); verr != nil {
		WriteIssueError(w, http.StatusBadRequest, verr.Message)
		return
	}

	userID := UserIDFromContext(r.Context())
	created, err := h.store.CreateRoad(r.Context(), userID, road)
	if err != nil {
		slog.Error("create road failed", "error", err, "user", userID)
		MapStoreError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, created)
}

// UpdateRoad handles PUT /road/{id}. A body without an id delegates to
// create. The comparison version comes from the ETag request header
// when it parses as an integer, otherwise from the body's version field;
// a stale version gets 409 and the stored road stays untouched.
func (h *Handler) UpdateRoad(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var road types.Road
	if err := json.NewDecoder(r.Body).Decode(&road); err != nil {
		WriteIssueError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if road.ID != "" && road.ID != id {
		WriteIssueError(w, http.StatusBadRequest, "Param id and body id should be the same")
		return
	}
	if road.ID == "" {
		h.createRoad(w, r, road)
		return
	}

	var versionHint int64
	if v, err := strconv.ParseInt(r.Header.Get("ETag"), 10, 64); err == nil {
		versionHint = v
	}

	updated, err := h.store.UpdateRoad(r.Context(), id, road, versionHint)
	if errors.Is(err, store.ErrNotFound) {
		WriteIssueError(w, http.StatusBadRequest, fmt.Sprintf("road with id %s not found", id))
		return
	}
	if errors.Is(err, store.ErrVersionConflict) {
		WriteIssueError(w, http.StatusConflict, "Version conflict")
		return
	}
	if err != nil {
		slog.Error("update road failed", "error", err, "id", id)
		MapStoreError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// DeleteRoad handles DELETE /road/{id}. Always 204, whether or not the
// road existed, so deletes are idempotent from the client's perspective.
func (h *Handler) DeleteRoad(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteRoad(r.Context(), id); err != nil {
		slog.Error("delete road failed", "error", err, "id", id)
		MapStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
