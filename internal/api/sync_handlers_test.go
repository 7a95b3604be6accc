package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/hyperengineering/roadsync/internal/types"
)

func TestSyncRoads_PassesItemsInOrder(t *testing.T) {
	m := newMockStore()
	m.syncResult = []types.Road{
		{ID: "2", AuthorID: 7, Name: "offline road", Version: 1, LastMaintained: time.Now().UTC()},
	}
	router := testRouter(m)

	body := `[{"name":"offline road","createdOnFrontend":true},{"id":"1","lanes":4}]`
	rec := doRequest(t, router, http.MethodPost, "/roads/sync", body, map[string]string{
		"Authorization": authHeader(t, 7),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	if len(m.syncItems) != 2 {
		t.Fatalf("items = %d, want 2", len(m.syncItems))
	}
	if !m.syncItems[0].CreatedOnFrontend || m.syncItems[0].ID != "" {
		t.Errorf("first item = %+v", m.syncItems[0])
	}
	if m.syncItems[1].ID != "1" || m.syncItems[1].CreatedOnFrontend {
		t.Errorf("second item = %+v", m.syncItems[1])
	}

	var roads []types.Road
	if err := json.Unmarshal(rec.Body.Bytes(), &roads); err != nil {
		t.Fatalf("response not a road array: %v", err)
	}
	if len(roads) != 1 || roads[0].Name != "offline road" {
		t.Errorf("roads = %+v", roads)
	}
}

func TestSyncRoads_InvalidJSON(t *testing.T) {
	router := testRouter(newMockStore())

	rec := doRequest(t, router, http.MethodPost, "/roads/sync", `{"not":"an array"}`, map[string]string{
		"Authorization": authHeader(t, 7),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSyncRoads_RequiresAuth(t *testing.T) {
	router := testRouter(newMockStore())

	rec := doRequest(t, router, http.MethodPost, "/roads/sync", `[]`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSyncRoads_EmptyBatch(t *testing.T) {
	m := newMockStore()
	router := testRouter(m)

	rec := doRequest(t, router, http.MethodPost, "/roads/sync", `[]`, map[string]string{
		"Authorization": authHeader(t, 7),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var roads []types.Road
	if err := json.Unmarshal(rec.Body.Bytes(), &roads); err != nil {
		t.Fatal(err)
	}
	if len(roads) != 0 {
		t.Errorf("roads = %+v, want empty", roads)
	}
}
