package store

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/hyperengineering/roadsync/internal/types"
)

// SeedDemoData populates an empty database with a demo user and a batch
// of demo roads owned by that user. Existing users and roads are left
// alone, so seeding is safe to run on every start. No change events are
// emitted; seeding happens before any client can connect.
func (s *SQLiteStore) SeedDemoData(ctx context.Context, email, name, passwordHash string, roadCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var userCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		return fmt.Errorf("count users: %w", err)
	}

	var ownerID int64
	if userCount == 0 {
		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO users (email, name, password_hash, created_at) VALUES (?, ?, ?, ?)
		`, email, name, passwordHash, now.Format(timeFormat))
		if err != nil {
			return fmt.Errorf("insert demo user: %w", err)
		}
		ownerID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("demo user id: %w", err)
		}
	} else {
		if err := s.db.QueryRowContext(ctx, "SELECT MIN(id) FROM users").Scan(&ownerID); err != nil {
			return fmt.Errorf("demo user id: %w", err)
		}
	}

	var roadTotal int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM roads").Scan(&roadTotal); err != nil {
		return fmt.Errorf("count roads: %w", err)
	}
	if roadTotal > 0 || roadCount <= 0 {
		return nil
	}

	// Stagger lastMaintained by a millisecond per road so the
	// newest-first sort has a deterministic order.
	base := time.Now().UTC()
	for i := 0; i < roadCount; i++ {
		road := types.Road{
			ID:             strconv.FormatInt(s.lastID+1, 10),
			AuthorID:       ownerID,
			Name:           fmt.Sprintf("road %d", i),
			Lanes:          i,
			LastMaintained: base.Add(time.Duration(i) * time.Millisecond),
			IsOperational:  rand.Intn(2) == 1,
			Version:        1,
		}
		if err := s.insertRoad(ctx, road); err != nil {
			return err
		}
		s.lastID++
	}

	s.lastUpdated = base.Add(time.Duration(roadCount-1) * time.Millisecond)
	return nil
}
