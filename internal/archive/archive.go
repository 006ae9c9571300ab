// Package archive provides SQLite-based storage of design runs: grid
// geometry, per-iteration losses, and final coil states, so runs can be
// compared after the fact without re-solving.
package archive

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection for design-run archiving.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		nfp INTEGER NOT NULL,
		stellsym INTEGER NOT NULL,
		num_coils INTEGER NOT NULL,
		coil_radius REAL NOT NULL,
		final_loss REAL
	);

	CREATE TABLE IF NOT EXISTS iterations (
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		loss REAL NOT NULL,
		PRIMARY KEY (run_id, iteration)
	);

	CREATE TABLE IF NOT EXISTS coils (
		run_id TEXT NOT NULL,
		coil INTEGER NOT NULL,
		cx REAL NOT NULL,
		cy REAL NOT NULL,
		cz REAL NOT NULL,
		alpha REAL NOT NULL,
		delta REAL NOT NULL,
		current REAL NOT NULL,
		PRIMARY KEY (run_id, coil)
	);

	CREATE INDEX IF NOT EXISTS idx_iterations_run ON iterations(run_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is the archived header row of one design run.
type Run struct {
	ID         string   `db:"id"`
	StartedAt  string   `db:"started_at"`
	FinishedAt *string  `db:"finished_at"`
	NFP        int      `db:"nfp"`
	StellSym   bool     `db:"stellsym"`
	NumCoils   int      `db:"num_coils"`
	CoilRadius float64  `db:"coil_radius"`
	FinalLoss  *float64 `db:"final_loss"`
}

// Coil is one archived fundamental-domain coil state.
type Coil struct {
	RunID   string  `db:"run_id"`
	Coil    int     `db:"coil"`
	CX      float64 `db:"cx"`
	CY      float64 `db:"cy"`
	CZ      float64 `db:"cz"`
	Alpha   float64 `db:"alpha"`
	Delta   float64 `db:"delta"`
	Current float64 `db:"current"`
}

// BeginRun records a new run header.
func (db *DB) BeginRun(id string, nfp int, stellsym bool, numCoils int, coilRadius float64) error {
	_, err := db.conn.Exec(
		`INSERT INTO runs (id, started_at, nfp, stellsym, num_coils, coil_radius)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), nfp, boolToInt(stellsym), numCoils, coilRadius,
	)
	return err
}

// FinishRun stamps a run's completion time and final loss.
func (db *DB) FinishRun(id string, finalLoss float64) error {
	_, err := db.conn.Exec(
		"UPDATE runs SET finished_at = ?, final_loss = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), finalLoss, id,
	)
	return err
}

// SaveLossHistory writes the per-iteration loss trace for a run (full
// replace).
func (db *DB) SaveLossHistory(runID string, losses []float64) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM iterations WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.Preparex("INSERT INTO iterations (run_id, iteration, loss) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, loss := range losses {
		if _, err := stmt.Exec(runID, i, loss); err != nil {
			return fmt.Errorf("insert iteration %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// SaveCoils writes the final coil states for a run (full replace).
func (db *DB) SaveCoils(runID string, coils []Coil) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM coils WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO coils
		(run_id, coil, cx, cy, cz, alpha, delta, current)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range coils {
		if _, err := stmt.Exec(runID, c.Coil, c.CX, c.CY, c.CZ, c.Alpha, c.Delta, c.Current); err != nil {
			return fmt.Errorf("insert coil %d: %w", c.Coil, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run header by ID.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT * FROM runs WHERE id = ?", id)
	return r, err
}

// LossHistory returns the loss trace of a run in iteration order.
func (db *DB) LossHistory(runID string) ([]float64, error) {
	var losses []float64
	err := db.conn.Select(&losses,
		"SELECT loss FROM iterations WHERE run_id = ? ORDER BY iteration", runID)
	return losses, err
}

// Coils returns the archived coil states of a run.
func (db *DB) Coils(runID string) ([]Coil, error) {
	var coils []Coil
	err := db.conn.Select(&coils,
		"SELECT * FROM coils WHERE run_id = ? ORDER BY coil", runID)
	return coils, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
