package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"idx_portal/models"
)

// SQLiteStore is the local operational store: the operator command queue, batch run
// history and run logs. Domain data lives in Postgres.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batch_runs (
		id INTEGER PRIMARY KEY,
		trigger_source TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		executed INTEGER DEFAULT 0,
		matches INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		message TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		batch_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		search_id TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS scheduler_state (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_batch ON run_logs(batch_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_logs_search ON run_logs(search_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON batch_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateBatchRun(run *models.BatchRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO batch_runs (trigger_source, started_at, status, executed, matches, errors)
		VALUES (?, ?, ?, 0, 0, 0)`,
		run.Trigger, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

func (s *SQLiteStore) UpdateBatchRun(run *models.BatchRun) error {
	_, err := s.db.Exec(`
		UPDATE batch_runs SET finished_at = ?, status = ?, executed = ?, matches = ?, errors = ?, message = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.Executed, run.Matches, run.Errors, run.Message, run.ID)
	return err
}

func (s *SQLiteStore) RecentBatchRuns(limit int) ([]models.BatchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, trigger_source, started_at, finished_at, status, executed, matches, errors, COALESCE(message, '')
		FROM batch_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.BatchRun
	for rows.Next() {
		var run models.BatchRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Trigger, &run.StartedAt, &finished, &run.Status,
			&run.Executed, &run.Matches, &run.Errors, &run.Message); err != nil {
			return nil, err
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Log(batchID *int64, level models.LogLevel, message, searchID string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (batch_id, timestamp, level, message, search_id)
		VALUES (?, ?, ?, ?, ?)`,
		batchID, time.Now(), level, message, searchID)
	return err
}

func (s *SQLiteStore) LogsForSearch(searchID string, limit int) ([]models.RunLog, error) {
	rows, err := s.db.Query(`
		SELECT id, batch_id, timestamp, level, message, search_id
		FROM run_logs WHERE search_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, searchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var l models.RunLog
		var batchID sql.NullInt64
		if err := rows.Scan(&l.ID, &batchID, &l.Timestamp, &l.Level, &l.Message, &l.SearchID); err != nil {
			return nil, err
		}
		if batchID.Valid {
			l.BatchID = &batchID.Int64
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) (int64, error) {
	var raw interface{}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return 0, err
		}
		raw = string(data)
	}
	result, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, raw, time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

const statePaused = "paused"

// IsPaused reports whether an operator paused scheduled batches
func (s *SQLiteStore) IsPaused() (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM scheduler_state WHERE key = ?`, statePaused).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

func (s *SQLiteStore) SetPaused(paused bool) error {
	value := "0"
	if paused {
		value = "1"
	}
	_, err := s.db.Exec(`
		INSERT INTO scheduler_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		statePaused, value, time.Now())
	return err
}

// ResetAllData clears all SQLite operational tables
func (s *SQLiteStore) ResetAllData() error {
	tables := []string{
		"run_logs",
		"batch_runs",
		"commands",
		"scheduler_state",
	}

	for _, table := range tables {
		_, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	return nil
}
