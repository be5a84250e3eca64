package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"airsync/internal/clock"
	"airsync/internal/models"
	logx "airsync/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const schemaVersion = 1

// activeStatusesSQL must match models.ActiveStatuses and the partial index
// in migrations.sql.
const activeStatusesSQL = `('pending', 'running', 'incomplete')`

type sqliteStore struct {
	db    *sql.DB
	log   logx.Logger
	clock clock.Clock
}

func openSQLite(cfg Config, c clock.Clock, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// SQLite serialises writers; one connection also keeps pragmas applied.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, clock: c}

	ctx := context.Background()
	busy := cfg.BusyTimeout.Milliseconds()
	if busy <= 0 {
		busy = 5000
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path), logx.Int64("busy_timeout_ms", busy))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}
	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) EnqueueJob(ctx context.Context, scope string, cfg models.JobConfig) (int64, bool, error) {
	if err := cfg.Validate(); err != nil {
		return 0, false, err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return 0, false, fmt.Errorf("encode job config: %w", err)
	}
	now := s.clock.Now().Unix()

	// Single statement: the existence check and the insert cannot interleave
	// with another writer. The partial unique index backs it up.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(scope, config_type, config, status, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM jobs WHERE scope = ? AND status IN `+activeStatusesSQL+`)`,
		scope, string(cfg.ConfigType), string(raw), string(models.JobStatusPending), now, now, scope,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("enqueue job for scope %q: %w", scope, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *sqliteStore) GetCurrentState(ctx context.Context, connectionID uuid.UUID) (*models.SyncState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM sync_state WHERE connection_id = ?`, connectionID.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state for connection %s: %w", connectionID, err)
	}
	return &models.SyncState{State: json.RawMessage(raw)}, nil
}

func (s *sqliteStore) WriteSyncState(ctx context.Context, connectionID uuid.UUID, state models.SyncState) error {
	if emptyState(state.State) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_state WHERE connection_id = ?`, connectionID.String()); err != nil {
			return fmt.Errorf("clear state for connection %s: %w", connectionID, err)
		}
		return nil
	}
	raw := strings.TrimSpace(string(state.State))
	if !json.Valid([]byte(raw)) {
		return fmt.Errorf("state for connection %s is not valid JSON", connectionID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state(connection_id, state, updated_at) VALUES(?,?,?)
		 ON CONFLICT(connection_id) DO UPDATE SET state=excluded.state, updated_at=excluded.updated_at`,
		connectionID.String(), raw, s.clock.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("write state for connection %s: %w", connectionID, err)
	}
	return nil
}

const jobColumns = `id, scope, config_type, config, status, created_at, started_at, updated_at`

func (s *sqliteStore) GetPreviousJob(ctx context.Context, scope string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE scope = ? ORDER BY id DESC LIMIT 1`, scope)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("previous job for scope %q: %w", scope, err)
	}
	return &j, nil
}

func (s *sqliteStore) GetJob(ctx context.Context, id int64) (models.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	return j, err
}

func (s *sqliteStore) ListJobs(ctx context.Context, scope string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE scope = ? ORDER BY id DESC LIMIT ?`, scope, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqliteStore) StartJob(ctx context.Context, id int64) error {
	now := s.clock.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = COALESCE(started_at, ?), updated_at = ?
		 WHERE id = ? AND status IN `+activeStatusesSQL,
		string(models.JobStatusRunning), now, now, id,
	)
	return s.checkTransition(ctx, id, res, err)
}

func (s *sqliteStore) SetStatus(ctx context.Context, id int64, status models.JobStatus) error {
	if err := checkTarget(status); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status IN `+activeStatusesSQL,
		string(status), s.clock.Now().Unix(), id,
	)
	return s.checkTransition(ctx, id, res, err)
}

// checkTransition turns a zero-row update into ErrJobNotFound or ErrJobTerminal.
func (s *sqliteStore) checkTransition(ctx context.Context, id int64, res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	j, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %d is %s", ErrJobTerminal, id, j.Status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (models.Job, error) {
	var (
		j          models.Job
		configType string
		rawConfig  string
		status     string
		startedAt  sql.NullInt64
	)
	if err := r.Scan(&j.ID, &j.Scope, &configType, &rawConfig, &status, &j.CreatedAtSeconds, &startedAt, &j.UpdatedAtSeconds); err != nil {
		return models.Job{}, err
	}
	j.ConfigType = models.ConfigType(configType)
	j.Status = models.JobStatus(status)
	if startedAt.Valid {
		v := startedAt.Int64
		j.StartedAtSeconds = &v
	}
	if err := json.Unmarshal([]byte(rawConfig), &j.Config); err != nil {
		return models.Job{}, fmt.Errorf("decode config of job %d: %w", j.ID, err)
	}
	return j, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
