package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dayplan/internal/model"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("not found")

const (
	nsSettings    = "settings"
	nsEvents      = "events"
	nsAdjustments = "adjustments"
	nsBlockState  = "block_state"

	keySettings    = "current"
	keyAdjustments = "all"
)

// DB is the key-value store backing settings, imported events and
// per-day UI state. Values are JSON documents.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the sqlite database at path and runs migrations.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY and keeps
	// :memory: databases shared.
	db.SetMaxOpenConns(1)
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, key)
	)`)
	if err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

// querier is the part of *sql.DB and *sql.Tx the JSON helpers use.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getJSON(ctx context.Context, q querier, ns, key string, v any) error {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace = ? AND key = ?`, ns, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s/%s: %w", ns, key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", ns, key, err)
	}
	return nil
}

func putJSON(ctx context.Context, q querier, ns, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", ns, key, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		ns, key, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", ns, key, err)
	}
	return nil
}

func (db *DB) get(ctx context.Context, ns, key string, v any) error {
	return getJSON(ctx, db.DB, ns, key, v)
}

func (db *DB) put(ctx context.Context, ns, key string, v any) error {
	return putJSON(ctx, db.DB, ns, key, v)
}

// update reads ns/key into v, lets modify change it and writes it back
// in one transaction. A missing document leaves v as given.
func (db *DB) update(ctx context.Context, ns, key string, v any, modify func() error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := getJSON(ctx, tx, ns, key, v); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := modify(); err != nil {
		return err
	}
	if err := putJSON(ctx, tx, ns, key, v); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s/%s: %w", ns, key, err)
	}
	return nil
}

// Settings returns the saved settings, or ErrNotFound before the first save.
func (db *DB) Settings(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	err := db.get(ctx, nsSettings, keySettings, &s)
	return s, err
}

// PutSettings replaces the saved settings.
func (db *DB) PutSettings(ctx context.Context, s model.Settings) error {
	return db.put(ctx, nsSettings, keySettings, s)
}

// ReplaceEvents replaces every stored event of source.
func (db *DB) ReplaceEvents(ctx context.Context, source string, events []model.CalendarEvent) error {
	if source == "" {
		return errors.New("event source is empty")
	}
	out := make([]model.CalendarEvent, len(events))
	for i, ev := range events {
		ev.SourceID = source
		out[i] = ev
	}
	return db.put(ctx, nsEvents, source, out)
}

// Events returns the events of all sources ordered by date and start.
func (db *DB) Events(ctx context.Context) ([]model.CalendarEvent, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM kv WHERE namespace = ? ORDER BY key`, nsEvents)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	all := make([]model.CalendarEvent, 0)
	for rows.Next() {
		var source, raw string
		if err := rows.Scan(&source, &raw); err != nil {
			return nil, err
		}
		var evs []model.CalendarEvent
		if err := json.Unmarshal([]byte(raw), &evs); err != nil {
			return nil, fmt.Errorf("decode events of %s: %w", source, err)
		}
		all = append(all, evs...)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date < all[j].Date
		}
		return all[i].Start < all[j].Start
	})
	return all, nil
}

// EventSources lists the sources with stored events.
func (db *DB) EventSources(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key FROM kv WHERE namespace = ? ORDER BY key`, nsEvents)
	if err != nil {
		return nil, fmt.Errorf("list event sources: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, err
		}
		out = append(out, source)
	}
	return out, rows.Err()
}

// DeleteEvents drops a source's events.
func (db *DB) DeleteEvents(ctx context.Context, source string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ? AND key = ?`, nsEvents, source)
	return err
}

// Adjustments returns the per-date goal adjustments in minutes.
func (db *DB) Adjustments(ctx context.Context) (map[string]int, error) {
	adj := map[string]int{}
	err := db.get(ctx, nsAdjustments, keyAdjustments, &adj)
	if errors.Is(err, ErrNotFound) {
		return map[string]int{}, nil
	}
	return adj, err
}

// UpdateAdjustments replaces the adjustments with fn's result, reading
// and writing in one transaction.
func (db *DB) UpdateAdjustments(ctx context.Context, fn func(map[string]int) (map[string]int, error)) error {
	adj := map[string]int{}
	return db.update(ctx, nsAdjustments, keyAdjustments, &adj, func() error {
		next, err := fn(adj)
		if err != nil {
			return err
		}
		if next == nil {
			next = map[string]int{}
		}
		adj = next
		return nil
	})
}

// BlockStates returns the block id -> state map for date.
func (db *DB) BlockStates(ctx context.Context, date string) (map[string]model.BlockState, error) {
	states := map[string]model.BlockState{}
	err := db.get(ctx, nsBlockState, date, &states)
	if errors.Is(err, ErrNotFound) {
		return map[string]model.BlockState{}, nil
	}
	return states, err
}

// SetBlockState records state for block id on date. Marking a block
// active clears any other active block of that date; BlockPending
// removes the entry.
func (db *DB) SetBlockState(ctx context.Context, date, id string, state model.BlockState) error {
	switch state {
	case model.BlockCompleted, model.BlockActive, model.BlockPending:
	default:
		return fmt.Errorf("unknown block state %q", state)
	}

	states := map[string]model.BlockState{}
	return db.update(ctx, nsBlockState, date, &states, func() error {
		if state == model.BlockActive {
			for k, v := range states {
				if v == model.BlockActive {
					delete(states, k)
				}
			}
		}
		if state == model.BlockPending {
			delete(states, id)
		} else {
			states[id] = state
		}
		return nil
	})
}
