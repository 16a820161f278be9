package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"photoframe/internal/logging"
	"photoframe/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database manages all persistence for the ingestion core: the pipeline
// queue, photo records and storage provider configurations.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New creates a new Database instance.
// dbPath must be the full path to the database FILE (e.g. "/data/photoframe.db"),
// and the parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	// WAL mode plus busy_timeout keeps concurrent workers from tripping
	// over "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	-- Pipeline task queue. created_at doubles as the earliest eligible run
	-- time: delayed retries push it into the future.
	CREATE TABLE IF NOT EXISTS pipeline_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		status_stage TEXT,
		priority INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_queue_claim ON pipeline_queue(status, priority DESC, created_at ASC);

	-- Photo records. id is a deterministic hash of the storage key so
	-- re-ingesting the same key upserts instead of duplicating.
	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		title TEXT,
		description TEXT,
		date_taken INTEGER,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		aspect_ratio REAL NOT NULL DEFAULT 0,
		storage_key TEXT NOT NULL,
		thumbnail_key TEXT,
		file_size INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER,
		original_url TEXT,
		thumbnail_url TEXT,
		thumbnail_hash TEXT,
		exif TEXT,
		latitude REAL,
		longitude REAL,
		country TEXT,
		city TEXT,
		location_name TEXT,
		is_live_photo INTEGER NOT NULL DEFAULT 0,
		live_photo_video_url TEXT,
		live_photo_video_key TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_photos_storage_key ON photos(storage_key);

	-- Storage provider configurations. At most one row is active.
	CREATE TABLE IF NOT EXISTS storage_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		config TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_storage_configs_active ON storage_configs(is_active);
	`

	_, err := d.db.ExecContext(ctx, schema)
	if err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: add status_stage column for installs created before
	// per-stage observability existed.
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('pipeline_queue')
		WHERE name='status_stage'
	`).Scan(&columnExists)

	if err != nil {
		return fmt.Errorf("failed to check for status_stage column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating database: adding status_stage column to pipeline_queue table")

		_, err = d.db.ExecContext(ctx, `
			ALTER TABLE pipeline_queue ADD COLUMN status_stage TEXT
		`)
		if err != nil {
			return fmt.Errorf("failed to add status_stage column: %w", err)
		}

		logging.Info("Migration complete: status_stage column added")
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// DB exposes the underlying connection pool for collaborating stores
// (settings) that share this database file.
func (d *Database) DB() *sql.DB {
	return d.db
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}
