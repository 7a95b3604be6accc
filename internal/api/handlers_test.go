package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/roadsync/internal/auth"
	"github.com/hyperengineering/roadsync/internal/store"
	"github.com/hyperengineering/roadsync/internal/types"
)

// --- Mock implementations for testing ---

// mockStore implements store.Store for handler tests.
type mockStore struct {
	roads       map[string]types.Road
	users       map[string]types.User
	lastUpdated time.Time

	createErr   error
	updateErr   error
	listResult  *types.RoadPage
	syncResult  []types.Road
	syncItems   []store.SyncItem
	lastQuery   types.RoadQuery
	deleteCalls int
}

func newMockStore() *mockStore {
	return &mockStore{
		roads:       map[string]types.Road{},
		users:       map[string]types.User{},
		lastUpdated: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *mockStore) CreateRoad(ctx context.Context, authorID int64, road types.Road) (*types.Road, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if road.Name == "" {
		return nil, store.ErrNameMissing
	}
	road.ID = "1"
	road.AuthorID = authorID
	road.Version = 1
	road.LastMaintained = time.Now().UTC()
	m.roads[road.ID] = road
	return &road, nil
}

func (m *mockStore) GetRoad(ctx context.Context, id string) (*types.Road, error) {
	road, ok := m.roads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &road, nil
}

func (m *mockStore) UpdateRoad(ctx context.Context, id string, road types.Road, versionHint int64) (*types.Road, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	stored, ok := m.roads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cmp := versionHint
	if cmp == 0 {
		cmp = road.Version
	}
	if cmp < stored.Version {
		return nil, store.ErrVersionConflict
	}
	road.ID = id
	road.Version = stored.Version + 1
	m.roads[id] = road
	return &road, nil
}

func (m *mockStore) DeleteRoad(ctx context.Context, id string) error {
	m.deleteCalls++
	delete(m.roads, id)
	return nil
}

func (m *mockStore) ListRoads(ctx context.Context, authorID int64, q types.RoadQuery) (*types.RoadPage, error) {
	m.lastQuery = q
	if m.listResult != nil {
		return m.listResult, nil
	}
	return &types.RoadPage{Page: 1, Roads: []types.Road{}}, nil
}

func (m *mockStore) SyncRoads(ctx context.Context, authorID int64, items []store.SyncItem) ([]types.Road, error) {
	m.syncItems = items
	if m.syncResult != nil {
		return m.syncResult, nil
	}
	return []types.Road{}, nil
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	user, ok := m.users[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &user, nil
}

func (m *mockStore) ListUserIDs(ctx context.Context) ([]int64, error) { return nil, nil }

func (m *mockStore) LastUpdated() time.Time { return m.lastUpdated }

func (m *mockStore) Close() error { return nil }

var _ store.Store = (*mockStore)(nil)

// --- Helpers ---

func testTokens() *auth.Service {
	return auth.NewService("test-secret", time.Hour)
}

func testRouter(m *mockStore) http.Handler {
	tokens := testTokens()
	h := NewHandler(m, tokens)
	return NewRouter(h, tokens, func(w http.ResponseWriter, r *http.Request) {})
}

func authHeader(t *testing.T, userID int64) string {
	t.Helper()
	token, err := testTokens().GenerateToken(types.User{ID: userID, Email: "u@example.com", Name: "U"})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, router http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeIssue(t *testing.T, rec *httptest.ResponseRecorder) types.IssueResponse {
	t.Helper()
	var resp types.IssueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode issue envelope: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	m := newMockStore()
	hash, err := auth.HashPassword("123")
	if err != nil {
		t.Fatal(err)
	}
	m.users["andrei@g.com"] = types.User{ID: 1, Email: "andrei@g.com", Name: "Andrei", PasswordHash: hash}
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodPost, "/login", `{"email":"andrei@g.com","password":"123"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	token := rec.Body.String()
	claims, err := testTokens().ValidateToken(token)
	if err != nil {
		t.Fatalf("returned token invalid: %v", err)
	}
	if claims.UserID != 1 {
		t.Errorf("claims.UserID = %d, want 1", claims.UserID)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	m := newMockStore()
	hash, _ := auth.HashPassword("123")
	m.users["andrei@g.com"] = types.User{ID: 1, Email: "andrei@g.com", PasswordHash: hash}
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodPost, "/login", `{"email":"andrei@g.com","password":"wrong"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	router := testRouter(newMockStore())

	rec := doRequest(t, router, http.MethodPost, "/login", `{"email":"nobody@g.com","password":"123"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// --- Listing and conditional reads ---

func TestListRoads_RequiresAuth(t *testing.T) {
	router := testRouter(newMockStore())

	rec := doRequest(t, router, http.MethodGet, "/roads", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	resp := decodeIssue(t, rec)
	if len(resp.Issue) != 1 || resp.Issue[0].Error == "" {
		t.Errorf("issue envelope = %+v", resp)
	}
}

func TestListRoads_SetsLastModified(t *testing.T) {
	m := newMockStore()
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodGet, "/roads", "", map[string]string{
		"Authorization": authHeader(t, 1),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	lm := rec.Header().Get("Last-Modified")
	if lm != m.lastUpdated.UTC().Format(http.TimeFormat) {
		t.Errorf("Last-Modified = %q", lm)
	}
}

func TestListRoads_NotModified(t *testing.T) {
	m := newMockStore()
	router := testRouter(m)

	// Echoing the store's mutation time back yields 304 with no body.
	rec := doRequest(t, router, http.MethodGet, "/roads", "", map[string]string{
		"Authorization":     authHeader(t, 1),
		"If-Modified-Since": m.lastUpdated.UTC().Format(http.TimeFormat),
	})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("304 response has body %q", rec.Body.String())
	}
}

func TestListRoads_ModifiedSinceStaleTimestamp(t *testing.T) {
	m := newMockStore()
	router := testRouter(m)

	stale := m.lastUpdated.Add(-time.Hour)
	rec := doRequest(t, router, http.MethodGet, "/roads", "", map[string]string{
		"Authorization":     authHeader(t, 1),
		"If-Modified-Since": stale.UTC().Format(http.TimeFormat),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestListRoads_SubSecondTruncation(t *testing.T) {
	m := newMockStore()
	// Store mutated 900ms after the whole second the client echoes.
	m.lastUpdated = time.Date(2024, 3, 1, 12, 0, 0, 900_000_000, time.UTC)
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodGet, "/roads", "", map[string]string{
		"Authorization":     authHeader(t, 1),
		"If-Modified-Since": time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Format(http.TimeFormat),
	})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304 (sub-second component discarded)", rec.Code)
	}
}

func TestListRoads_QueryParameters(t *testing.T) {
	m := newMockStore()
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodGet, "/roads?sName=Elm&onlyOperational=true&page=3", "", map[string]string{
		"Authorization": authHeader(t, 1),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if m.lastQuery.Search != "Elm" || !m.lastQuery.OnlyOperational || m.lastQuery.Page != 3 {
		t.Errorf("query = %+v", m.lastQuery)
	}
}

func TestListRoads_NonNumericPage(t *testing.T) {
	m := newMockStore()
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodGet, "/roads?page=abc", "", map[string]string{
		"Authorization": authHeader(t, 1),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if m.lastQuery.Page != 0 {
		t.Errorf("page = %d, want 0 (store defaults to 1)", m.lastQuery.Page)
	}
}

// --- Single road ---

func TestGetRoad_Found(t *testing.T) {
	m := newMockStore()
	m.roads["5"] = types.Road{ID: "5", AuthorID: 1, Name: "Elm St", Version: 1}
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodGet, "/road/5", "", map[string]string{
		"Authorization": authHeader(t, 1),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var road types.Road
	if err := json.Unmarshal(rec.Body.Bytes(), &road); err != nil {
		t.Fatal(err)
	}
	if road.ID != "5" || road.Name != "Elm St" {
		t.Errorf("road = %+v", road)
	}
}

func TestGetRoad_NotFoundWarning(t *testing.T) {
	router := testRouter(newMockStore())

	rec := doRequest(t, router, http.MethodGet, "/road/42", "", map[string]string{
		"Authorization": authHeader(t, 1),
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeIssue(t, rec)
	if len(resp.Issue) != 1 || resp.Issue[0].Warning != "road with id 42 not found" {
		t.Errorf("issue = %+v", resp)
	}
}

// --- Create ---

func TestCreateRoad_Success(t *testing.T) {
	m := newMockStore()
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodPost, "/road", `{"name":"Elm St","lanes":2}`, map[string]string{
		"Authorization": authHeader(t, 7),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var road types.Road
	if err := json.Unmarshal(rec.Body.Bytes(), &road); err != nil {
		t.Fatal(err)
	}
	if road.Version != 1 || road.AuthorID != 7 || road.LastMaintained.IsZero() {
		t.Errorf("created road = %+v", road)
	}
}

func TestCreateRoad_NameMissing(t *testing.T) {
	router := testRouter(newMockStore())

	rec := doRequest(t, router, http.MethodPost, "/road", `{"lanes":2}`, map[string]string{
		"Authorization": authHeader(t, 7),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeIssue(t, rec)
	if len(resp.Issue) != 1 || resp.Issue[0].Error != "Name is missing" {
		t.Errorf("issue = %+v", resp)
	}
}

// --- Update ---

func TestUpdateRoad_Success(t *testing.T) {
	m := newMockStore()
	m.roads["5"] = types.Road{ID: "5", AuthorID: 7, Name: "Elm St", Version: 1}
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodPut, "/road/5",
		`{"id":"5","authorId":7,"name":"Elm St","lanes":3,"version":1}`,
		map[string]string{"Authorization": authHeader(t, 7)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var road types.Road
	if err := json.Unmarshal(rec.Body.Bytes(), &road); err != nil {
		t.Fatal(err)
	}
	if road.Version != 2 || road.Lanes != 3 {
		t.Errorf("updated road = %+v", road)
	}
}

func TestUpdateRoad_VersionConflict(t *testing.T) {
	m := newMockStore()
	m.roads["5"] = types.Road{ID: "5", AuthorID: 7, Name: "Elm St", Version: 2}
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodPut, "/road/5",
		`{"id":"5","name":"Elm St","version":1}`,
		map[string]string{"Authorization": authHeader(t, 7)})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	resp := decodeIssue(t, rec)
	if resp.Issue[0].Error != "Version conflict" {
		t.Errorf("issue = %+v", resp)
	}
}

func TestUpdateRoad_ETagHeaderWins(t *testing.T) {
	m := newMockStore()
	m.roads["5"] = types.Road{ID: "5", AuthorID: 7, Name: "Elm St", Version: 2}
	router := testRouter(m)

	// Body version is stale but the header hint matches the stored version.
	rec := doRequest(t, router, http.MethodPut, "/road/5",
		`{"id":"5","name":"Elm St","version":1}`,
		map[string]string{"Authorization": authHeader(t, 7), "ETag": "2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestUpdateRoad_IDMismatch(t *testing.T) {
	router := testRouter(newMockStore())

	rec := doRequest(t, router, http.MethodPut, "/road/5",
		`{"id":"6","name":"Elm St","version":1}`,
		map[string]string{"Authorization": authHeader(t, 7)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeIssue(t, rec)
	if resp.Issue[0].Error != "Param id and body id should be the same" {
		t.Errorf("issue = %+v", resp)
	}
}

func TestUpdateRoad_UnknownID(t *testing.T) {
	router := testRouter(newMockStore())

	rec := doRequest(t, router, http.MethodPut, "/road/42",
		`{"id":"42","name":"Elm St","version":1}`,
		map[string]string{"Authorization": authHeader(t, 7)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeIssue(t, rec)
	if resp.Issue[0].Error != "road with id 42 not found" {
		t.Errorf("issue = %+v", resp)
	}
}

func TestUpdateRoad_NoBodyIDDelegatesToCreate(t *testing.T) {
	m := newMockStore()
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodPut, "/road/42",
		`{"name":"Brand New","lanes":1}`,
		map[string]string{"Authorization": authHeader(t, 7)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var road types.Road
	if err := json.Unmarshal(rec.Body.Bytes(), &road); err != nil {
		t.Fatal(err)
	}
	if road.Version != 1 || road.AuthorID != 7 {
		t.Errorf("created road = %+v", road)
	}
}

// --- Delete ---

func TestDeleteRoad_AlwaysNoContent(t *testing.T) {
	m := newMockStore()
	m.roads["5"] = types.Road{ID: "5", AuthorID: 7, Name: "Elm St", Version: 1}
	router := testRouter(m)

	for i := 0; i < 2; i++ {
		rec := doRequest(t, router, http.MethodDelete, "/road/5", "", map[string]string{
			"Authorization": authHeader(t, 7),
		})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete %d: status = %d, want 204", i, rec.Code)
		}
	}
	if m.deleteCalls != 2 {
		t.Errorf("deleteCalls = %d, want 2", m.deleteCalls)
	}
}
