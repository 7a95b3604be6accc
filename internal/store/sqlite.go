package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/hyperengineering/roadsync/internal/types"
	_ "modernc.org/sqlite"
)

// DefaultPageSize is the fixed page size for road listings.
const DefaultPageSize = 20

// timeFormat is how timestamps are stored: RFC3339 with a fixed-width
// nanosecond fraction, so that lexicographic ORDER BY matches
// chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the SQLite-backed road database. All writes are
// serialized through a single mutex so that id allocation and version
// increments never interleave; the lastID and lastUpdated counters are
// owned by that same mutex.
type SQLiteStore struct {
	db       *sql.DB
	notifier Notifier
	pageSize int

	mu          sync.Mutex
	lastID      int64
	lastUpdated time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath, applies
// pragmas and migrations, and loads the id allocator high-water mark.
// A nil notifier disables change events.
func NewSQLiteStore(dbPath string, pageSize int, notifier Notifier) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	var lastID int64
	if err := db.QueryRow("SELECT COALESCE(MAX(CAST(id AS INTEGER)), -1) FROM roads").Scan(&lastID); err != nil {
		db.Close()
		return nil, fmt.Errorf("load id allocator: %w", err)
	}

	if notifier == nil {
		notifier = NopNotifier{}
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &SQLiteStore{
		db:          db,
		notifier:    notifier,
		pageSize:    pageSize,
		lastID:      lastID,
		lastUpdated: time.Now().UTC(),
	}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LastUpdated returns the time of the most recent successful mutation.
func (s *SQLiteStore) LastUpdated() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdated
}

// CreateRoad validates, allocates the next id, stamps version 1 and a
// fresh lastMaintained, and inserts the road for the given author.
func (s *SQLiteStore) CreateRoad(ctx context.Context, authorID int64, road types.Road) (*types.Road, error) {
	if road.Name == "" {
		return nil, ErrNameMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	road.ID = strconv.FormatInt(s.lastID+1, 10)
	road.AuthorID = authorID
	road.Version = 1
	road.LastMaintained = now

	if err := s.insertRoad(ctx, road); err != nil {
		return nil, err
	}

	s.lastID++
	s.lastUpdated = now
	s.notifier.RoadChanged(types.EventCreated, road)
	return &road, nil
}

// GetRoad retrieves a road by id.
func (s *SQLiteStore) GetRoad(ctx context.Context, id string) (*types.Road, error) {
	return s.getRoad(ctx, id)
}

// UpdateRoad overwrites all fields except id after the optimistic
// version check. The comparison version is versionHint when non-zero,
// otherwise the version carried in the submitted road. A stale
// comparison version leaves the stored road untouched.
func (s *SQLiteStore) UpdateRoad(ctx context.Context, id string, road types.Road, versionHint int64) (*types.Road, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.getRoad(ctx, id)
	if err != nil {
		return nil, err
	}

	cmp := versionHint
	if cmp == 0 {
		cmp = road.Version
	}
	if cmp < stored.Version {
		return nil, ErrVersionConflict
	}

	now := time.Now().UTC()
	road.ID = stored.ID
	road.Version = stored.Version + 1
	road.LastMaintained = now

	if err := s.writeRoad(ctx, road); err != nil {
		return nil, err
	}

	s.lastUpdated = now
	s.notifier.RoadChanged(types.EventUpdated, road)
	return &road, nil
}

// DeleteRoad removes the road if present. Unknown ids succeed as a
// no-op so that delete is idempotent from the client's perspective.
func (s *SQLiteStore) DeleteRoad(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.getRoad(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM roads WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete road: %w", err)
	}

	s.lastUpdated = time.Now().UTC()
	s.notifier.RoadChanged(types.EventDeleted, *stored)
	return nil
}

// ListRoads returns one page of the author's roads. Pipeline: owner
// filter, name substring search, optional operational filter, sort by
// lastMaintained descending (insertion order breaks ties), paginate.
func (s *SQLiteStore) ListRoads(ctx context.Context, authorID int64, q types.RoadQuery) (*types.RoadPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}

	where := "author_id = ?"
	args := []any{authorID}
	if q.Search != "" {
		where += " AND instr(name, ?) > 0"
		args = append(args, q.Search)
	}
	if q.OnlyOperational {
		where += " AND is_operational = 1"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM roads WHERE "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count roads: %w", err)
	}

	offset := (page - 1) * s.pageSize
	query := fmt.Sprintf(`
		SELECT %s FROM roads WHERE %s
		ORDER BY last_maintained DESC, rowid ASC
		LIMIT ? OFFSET ?
	`, roadColumns, where)
	rows, err := s.db.QueryContext(ctx, query, append(args, s.pageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("query roads: %w", err)
	}
	defer rows.Close()

	roads := []types.Road{}
	for rows.Next() {
		road, err := scanRoad(rows)
		if err != nil {
			return nil, fmt.Errorf("scan road: %w", err)
		}
		roads = append(roads, *road)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roads: %w", err)
	}

	return &types.RoadPage{
		Page:  page,
		Roads: roads,
		More:  offset+s.pageSize < total,
	}, nil
}

// SyncRoads applies a batch of client submissions in order. Items
// without an id, or flagged as authored offline, become creations owned
// by the caller. Items with an id update the matching road only when
// the caller owns it; submitted fields win field-by-field over stored
// ones. Unmatched items are dropped without error. The batch is not
// atomic: earlier items stay applied if a later one fails.
func (s *SQLiteStore) SyncRoads(ctx context.Context, authorID int64, items []SyncItem) ([]types.Road, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if item.ID != "" && !item.CreatedOnFrontend {
			if err := s.syncUpdate(ctx, authorID, item); err != nil {
				return nil, err
			}
			continue
		}
		if err := s.syncCreate(ctx, authorID, item); err != nil {
			return nil, err
		}
	}

	return s.firstPage(ctx, authorID)
}

func (s *SQLiteStore) syncUpdate(ctx context.Context, authorID int64, item SyncItem) error {
	stored, err := s.getRoadOwned(ctx, item.ID, authorID)
	if errors.Is(err, ErrNotFound) {
		// Unknown id or wrong owner: silently dropped, batch continues.
		return nil
	}
	if err != nil {
		return err
	}

	merged := *stored
	if err := json.Unmarshal(item.Raw, &merged); err != nil {
		return nil
	}
	merged.ID = stored.ID
	merged.AuthorID = stored.AuthorID
	merged.LastMaintained = time.Now().UTC()

	if err := s.writeRoad(ctx, merged); err != nil {
		return err
	}

	s.lastUpdated = merged.LastMaintained
	s.notifier.RoadChanged(types.EventUpdated, merged)
	return nil
}

func (s *SQLiteStore) syncCreate(ctx context.Context, authorID int64, item SyncItem) error {
	var road types.Road
	if err := json.Unmarshal(item.Raw, &road); err != nil {
		return nil
	}

	now := time.Now().UTC()
	road.ID = strconv.FormatInt(s.lastID+1, 10)
	road.AuthorID = authorID
	road.Version = 1
	road.LastMaintained = now

	if err := s.insertRoad(ctx, road); err != nil {
		return err
	}

	s.lastID++
	s.lastUpdated = now
	s.notifier.RoadChanged(types.EventCreated, road)
	return nil
}

// firstPage returns the author's roads newest-first, truncated to one page.
func (s *SQLiteStore) firstPage(ctx context.Context, authorID int64) ([]types.Road, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM roads WHERE author_id = ?
		ORDER BY last_maintained DESC, rowid ASC
		LIMIT ?
	`, roadColumns)
	rows, err := s.db.QueryContext(ctx, query, authorID, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("query roads: %w", err)
	}
	defer rows.Close()

	roads := []types.Road{}
	for rows.Next() {
		road, err := scanRoad(rows)
		if err != nil {
			return nil, fmt.Errorf("scan road: %w", err)
		}
		roads = append(roads, *road)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roads: %w", err)
	}
	return roads, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?
	`, email)

	var user types.User
	var createdAt string
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if t, err := time.Parse(timeFormat, createdAt); err == nil {
		user.CreatedAt = t
	}
	return &user, nil
}

// ListUserIDs returns the ids of all known users.
func (s *SQLiteStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// roadColumns is the column list scanRoad expects, in order.
const roadColumns = "id, author_id, name, lanes, last_maintained, is_operational, version, base64_photo, lat, long"

func (s *SQLiteStore) insertRoad(ctx context.Context, road types.Road) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roads (id, author_id, name, lanes, last_maintained, is_operational, version, base64_photo, lat, long)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, road.ID, road.AuthorID, road.Name, road.Lanes,
		road.LastMaintained.Format(timeFormat), road.IsOperational,
		road.Version, road.Base64Photo, road.Lat, road.Long)
	if err != nil {
		return fmt.Errorf("insert road: %w", err)
	}
	return nil
}

// writeRoad overwrites every mutable column of an existing road.
func (s *SQLiteStore) writeRoad(ctx context.Context, road types.Road) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE roads
		SET author_id = ?, name = ?, lanes = ?, last_maintained = ?,
		    is_operational = ?, version = ?, base64_photo = ?, lat = ?, long = ?
		WHERE id = ?
	`, road.AuthorID, road.Name, road.Lanes,
		road.LastMaintained.Format(timeFormat), road.IsOperational,
		road.Version, road.Base64Photo, road.Lat, road.Long, road.ID)
	if err != nil {
		return fmt.Errorf("update road: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getRoad(ctx context.Context, id string) (*types.Road, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM roads WHERE id = ?", roadColumns), id)
	return scanRoadRow(row)
}

func (s *SQLiteStore) getRoadOwned(ctx context.Context, id string, authorID int64) (*types.Road, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM roads WHERE id = ? AND author_id = ?", roadColumns), id, authorID)
	return scanRoadRow(row)
}

func scanRoadRow(row *sql.Row) (*types.Road, error) {
	road, err := scanRoad(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan road: %w", err)
	}
	return road, nil
}

// scanRoad scans a row into a Road, parsing timestamps and nullable columns.
func scanRoad(scanner interface{ Scan(...any) error }) (*types.Road, error) {
	var road types.Road
	var lastMaintained string
	var lat, long sql.NullFloat64

	err := scanner.Scan(
		&road.ID,
		&road.AuthorID,
		&road.Name,
		&road.Lanes,
		&lastMaintained,
		&road.IsOperational,
		&road.Version,
		&road.Base64Photo,
		&lat,
		&long,
	)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(timeFormat, lastMaintained); err == nil {
		road.LastMaintained = t
	}
	if lat.Valid {
		road.Lat = &lat.Float64
	}
	if long.Valid {
		road.Long = &long.Float64
	}

	return &road, nil
}
