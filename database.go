package main

import (
	"database/sql"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"colony-server/spatial"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// WorldEntityRow is one persisted world seed entity
type WorldEntityRow struct {
	ID     string
	Kind   string
	X, Y   float64
	Amount int
}

// MetricsSampleRow is one persisted index statistics sample
type MetricsSampleRow struct {
	ID            int64  `json:"id"`
	TotalEntities int    `json:"totalEntities"`
	CellCount     int    `json:"cellCount"`
	Adds          uint64 `json:"adds"`
	Removes       uint64 `json:"removes"`
	Updates       uint64 `json:"updates"`
	Queries       uint64 `json:"queries"`
	CreatedAt     string `json:"createdAt"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_entities (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		amount INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS metrics_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		total_entities INTEGER NOT NULL,
		cell_count INTEGER NOT NULL,
		adds INTEGER NOT NULL,
		removes INTEGER NOT NULL,
		updates INTEGER NOT NULL,
		queries INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_created ON metrics_samples(created_at);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// GetSetting returns a settings value, or "" when absent
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

// SetSetting upserts a settings value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// LoadWorldEntities returns the persisted world seed
func (db *DB) LoadWorldEntities() ([]WorldEntityRow, error) {
	rows, err := db.conn.Query("SELECT id, kind, x, y, amount FROM world_entities")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WorldEntityRow
	for rows.Next() {
		var r WorldEntityRow
		if err := rows.Scan(&r.ID, &r.Kind, &r.X, &r.Y, &r.Amount); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// SaveWorldEntities replaces the persisted world seed
func (db *DB) SaveWorldEntities(entities []WorldEntityRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM world_entities"); err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO world_entities (id, kind, x, y, amount) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entities {
		if _, err := stmt.Exec(e.ID, e.Kind, e.X, e.Y, e.Amount); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertMetricsSample persists one index statistics snapshot
func (db *DB) InsertMetricsSample(s spatial.IndexStats, at time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO metrics_samples (total_entities, cell_count, adds, removes, updates, queries, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.TotalEntities, s.CellCount,
		s.Operations.Adds, s.Operations.Removes, s.Operations.Updates, s.Operations.Queries,
		at.UTC().Format(time.RFC3339),
	)
	return err
}

// RecentMetricsSamples returns the latest samples, newest first
func (db *DB) RecentMetricsSamples(limit int) ([]MetricsSampleRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, total_entities, cell_count, adds, removes, updates, queries, created_at
		FROM metrics_samples ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MetricsSampleRow
	for rows.Next() {
		var r MetricsSampleRow
		if err := rows.Scan(&r.ID, &r.TotalEntities, &r.CellCount, &r.Adds, &r.Removes, &r.Updates, &r.Queries, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
