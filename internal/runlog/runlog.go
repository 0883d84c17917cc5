// Package runlog persists training-run metadata and per-epoch metrics to a
// SQLite file, so runs can be compared after the console output is gone.
package runlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	data_dir    TEXT,
	config_json TEXT,
	started_at  TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS epochs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	epoch        INTEGER NOT NULL,
	train_loss   REAL NOT NULL,
	action_loss  REAL NOT NULL,
	emotion_loss REAL NOT NULL,
	train_acc    REAL NOT NULL,
	val_loss     REAL,
	val_acc      REAL,
	lr           REAL NOT NULL,
	improved     INTEGER NOT NULL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// Log records one training run. A nil *Log is valid and records nothing, so
// callers can leave run logging off without branching.
type Log struct {
	db    *sql.DB
	runID string
}

// Open opens (creating if needed) the run log database and begins a run of
// the given kind. config is serialized as JSON alongside the run row.
func Open(path, kind, dataDir string, config any) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("run log pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("run log migrate: %w", err)
	}

	cfgJSON, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal run config: %w", err)
	}
	runID := uuid.NewString()
	_, err = db.Exec(
		`INSERT INTO runs (run_id, kind, data_dir, config_json, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, kind, dataDir, string(cfgJSON), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Log{db: db, runID: runID}, nil
}

// RunID returns the current run's identifier, or "" for a nil log.
func (l *Log) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// EpochMetrics is one epoch row. Validation fields are pointers because the
// fine-tuning path trains without a validation partition.
type EpochMetrics struct {
	Epoch       int
	TrainLoss   float32
	ActionLoss  float32
	EmotionLoss float32
	TrainAcc    float32
	ValLoss     *float32
	ValAcc      *float32
	LR          float32
	Improved    bool
}

// RecordEpoch appends one epoch row for the current run.
func (l *Log) RecordEpoch(m EpochMetrics) error {
	if l == nil {
		return nil
	}
	improved := 0
	if m.Improved {
		improved = 1
	}
	_, err := l.db.Exec(
		`INSERT INTO epochs (run_id, epoch, train_loss, action_loss, emotion_loss, train_acc, val_loss, val_acc, lr, improved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.runID, m.Epoch, m.TrainLoss, m.ActionLoss, m.EmotionLoss, m.TrainAcc,
		nullable(m.ValLoss), nullable(m.ValAcc), m.LR, improved,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert epoch: %w", err)
	}
	return nil
}

// Close marks the run finished and closes the database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	_, err := l.db.Exec(
		`UPDATE runs SET finished_at = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), l.runID,
	)
	if cerr := l.db.Close(); err == nil {
		err = cerr
	}
	return err
}

func nullable(v *float32) any {
	if v == nil {
		return nil
	}
	return *v
}
