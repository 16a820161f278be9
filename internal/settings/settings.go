package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"photoframe/internal/database"
	"photoframe/internal/logging"
	"photoframe/internal/metrics"
	"photoframe/internal/storage"
)

const defaultTimeout = 10 * time.Second

// ErrConfigNotFound is returned when a storage config id does not exist.
var ErrConfigNotFound = errors.New("storage config not found")

// Store persists storage provider configurations in the shared database.
// It implements storage.ConfigStore.
type Store struct {
	db *sql.DB
}

// New creates a settings store backed by the shared database.
func New(db *database.Database) *Store {
	return &Store{db: db.DB()}
}

// Create validates and inserts a configuration. When activate is true the
// new row becomes the single active one.
func (s *Store) Create(ctx context.Context, name string, cfg storage.Config, activate bool) (*storage.StoredConfig, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_storage_config", start, err) }()

	if name == "" {
		err = errors.New("storage config name is required")
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if activate {
		if _, err = tx.ExecContext(ctx, `UPDATE storage_configs SET is_active = 0 WHERE is_active = 1`); err != nil {
			return nil, err
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO storage_configs (name, config, is_active)
		VALUES (?, ?, ?)`,
		name, string(raw), boolToInt(activate))
	if err != nil {
		return nil, fmt.Errorf("failed to insert storage config: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	logging.Info("Storage config created: %s (id=%d, active=%v)", name, id, activate)
	return &storage.StoredConfig{ID: id, Name: name, Active: activate, Config: cfg}, nil
}

// Update replaces the name and configuration of an existing row.
func (s *Store) Update(ctx context.Context, id int64, name string, cfg storage.Config) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_storage_config", start, err) }()

	if err = cfg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode storage config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE storage_configs
		SET name = ?, config = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?`,
		name, string(raw), id)
	if err != nil {
		return fmt.Errorf("failed to update storage config %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = ErrConfigNotFound
		return err
	}
	return nil
}

// SetActive makes the given row the single active configuration.
func (s *Store) SetActive(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("activate_storage_config", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `UPDATE storage_configs SET is_active = 0 WHERE is_active = 1`); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE storage_configs
		SET is_active = 1, updated_at = strftime('%s', 'now')
		WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = ErrConfigNotFound
		return err
	}
	return tx.Commit()
}

// Delete removes a configuration. The active row cannot be deleted.
func (s *Store) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_storage_config", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM storage_configs WHERE id = ? AND is_active = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to delete storage config %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var active bool
		if scanErr := s.db.QueryRowContext(ctx,
			`SELECT is_active FROM storage_configs WHERE id = ?`, id).Scan(&active); scanErr == nil && active {
			err = errors.New("cannot delete the active storage config")
			return err
		}
		err = ErrConfigNotFound
		return err
	}
	return nil
}

// Get returns one configuration by id.
func (s *Store) Get(ctx context.Context, id int64) (*storage.StoredConfig, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_storage_config", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, config, is_active FROM storage_configs WHERE id = ?`, id)
	cfg, err := scanStoredConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrConfigNotFound
		return nil, err
	}
	return cfg, err
}

// List returns all configurations, active first, then newest first.
func (s *Store) List(ctx context.Context) ([]storage.StoredConfig, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_storage_configs", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, config, is_active
		FROM storage_configs
		ORDER BY is_active DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage configs: %w", err)
	}
	defer rows.Close()

	var configs []storage.StoredConfig
	for rows.Next() {
		cfg, scanErr := scanStoredConfig(rows)
		if scanErr != nil {
			err = scanErr
			return nil, scanErr
		}
		configs = append(configs, *cfg)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return configs, nil
}

// ActiveConfig returns the active configuration, or (nil, nil) when none is
// configured yet.
func (s *Store) ActiveConfig(ctx context.Context) (*storage.StoredConfig, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_active_storage_config", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, config, is_active
		FROM storage_configs
		WHERE is_active = 1
		LIMIT 1`)
	cfg, err := scanStoredConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	return cfg, err
}

// CompareAndSwapRefreshToken persists a rotated Baidu refresh token into the
// row identified by id, only when the stored token still equals oldToken.
// The guard keeps a stale provider instance from clobbering a token that a
// newer refresh already wrote.
func (s *Store) CompareAndSwapRefreshToken(ctx context.Context, id int64, oldToken, newToken string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("swap_refresh_token", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT config FROM storage_configs WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var cfg storage.Config
	if err = json.Unmarshal([]byte(raw), &cfg); err != nil {
		return false, fmt.Errorf("failed to decode storage config %d: %w", id, err)
	}
	if cfg.Provider != storage.KindBaidu || cfg.Baidu == nil || cfg.Baidu.RefreshToken != oldToken {
		return false, nil
	}

	cfg.Baidu.RefreshToken = newToken
	updated, err := json.Marshal(cfg)
	if err != nil {
		return false, err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE storage_configs
		SET config = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?`, string(updated), id); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStoredConfig(row scanner) (*storage.StoredConfig, error) {
	var (
		stored storage.StoredConfig
		raw    string
		active int
	)
	if err := row.Scan(&stored.ID, &stored.Name, &raw, &active); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &stored.Config); err != nil {
		return nil, fmt.Errorf("failed to decode storage config %d: %w", stored.ID, err)
	}
	stored.Active = active != 0
	return &stored, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
