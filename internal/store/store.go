package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hyperengineering/roadsync/internal/types"
)

// Store defines the interface contract for road and user storage.
type Store interface {
	// CreateRoad assigns the next id, stamps version 1 and a fresh
	// lastMaintained, and appends the road for the given author.
	CreateRoad(ctx context.Context, authorID int64, road types.Road) (*types.Road, error)
	// GetRoad returns the road with the given id or ErrNotFound.
	GetRoad(ctx context.Context, id string) (*types.Road, error)
	// UpdateRoad overwrites all fields except id after the optimistic
	// version check. versionHint, when non-zero, takes precedence over
	// the version carried in the submitted road.
	UpdateRoad(ctx context.Context, id string, road types.Road, versionHint int64) (*types.Road, error)
	// DeleteRoad removes the road if it exists. Deleting an unknown id
	// is a successful no-op.
	DeleteRoad(ctx context.Context, id string) error
	// ListRoads returns one page of the author's roads, filtered and
	// sorted newest-first by lastMaintained.
	ListRoads(ctx context.Context, authorID int64, q types.RoadQuery) (*types.RoadPage, error)
	// SyncRoads reconciles a batch of client-submitted roads and returns
	// the author's first page of roads, newest-first.
	SyncRoads(ctx context.Context, authorID int64, items []SyncItem) ([]types.Road, error)

	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	ListUserIDs(ctx context.Context) ([]int64, error)

	// LastUpdated returns the time of the most recent successful mutation.
	LastUpdated() time.Time

	Close() error
}

// SyncItem is one entry of a sync batch. Raw keeps the client's exact
// submission so that only the fields it actually sent are merged over
// the stored road.
type SyncItem struct {
	ID                string
	CreatedOnFrontend bool
	Raw               json.RawMessage
}

// ParseSyncItems splits a JSON array of road submissions into SyncItems,
// preserving submission order.
func ParseSyncItems(body []byte) ([]SyncItem, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, err
	}

	items := make([]SyncItem, 0, len(raws))
	for _, raw := range raws {
		var probe struct {
			ID                string `json:"id"`
			CreatedOnFrontend bool   `json:"createdOnFrontend"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, err
		}
		items = append(items, SyncItem{
			ID:                probe.ID,
			CreatedOnFrontend: probe.CreatedOnFrontend,
			Raw:               raw,
		})
	}
	return items, nil
}

// Notifier receives a change event after every successful mutation.
// Implementations must not block; delivery is best-effort.
type Notifier interface {
	RoadChanged(event string, road types.Road)
}

// NopNotifier discards all change events.
type NopNotifier struct{}

// RoadChanged implements Notifier.
func (NopNotifier) RoadChanged(string, types.Road) {}
