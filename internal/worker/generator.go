// Package worker holds the background loops started alongside the HTTP
// server.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hyperengineering/roadsync/internal/types"
)

// GeneratorStore defines the store operations the generator needs. It
// deliberately goes through the same create path as a real client, so
// id allocation, the mutation timestamp, and push events all apply.
type GeneratorStore interface {
	CreateRoad(ctx context.Context, authorID int64, road types.Road) (*types.Road, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// RoadGenerator periodically creates a synthetic road for a random
// existing user.
type RoadGenerator struct {
	store    GeneratorStore
	interval time.Duration
}

// NewRoadGenerator creates a generator with the given store and interval.
func NewRoadGenerator(store GeneratorStore, interval time.Duration) *RoadGenerator {
	return &RoadGenerator{store: store, interval: interval}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
func (g *RoadGenerator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "road-generator",
		"interval", g.interval.String(),
	)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "road-generator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			g.generate(ctx)
		}
	}
}

// generate executes a single creation cycle.
func (g *RoadGenerator) generate(ctx context.Context) {
	ids, err := g.store.ListUserIDs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("generator failed",
			"component", "worker",
			"action", "list_users_failed",
			"error", err,
		)
		return
	}
	if len(ids) == 0 {
		return
	}

	authorID := ids[rand.Intn(len(ids))]
	road := types.Road{
		Name:          fmt.Sprintf("road %d", time.Now().Unix()),
		Lanes:         rand.Intn(10),
		IsOperational: false,
	}

	created, err := g.store.CreateRoad(ctx, authorID, road)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("generator failed",
			"component", "worker",
			"action", "create_failed",
			"error", err,
		)
		return
	}

	slog.Info("synthetic road created",
		"component", "worker",
		"id", created.ID,
		"author", authorID,
	)
}
