package results

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const createRunsTable = `CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	n           INTEGER NOT NULL,
	f           INTEGER NOT NULL,
	m           INTEGER NOT NULL,
	elapsed_ms  INTEGER NOT NULL,
	finished_at TEXT    NOT NULL
)`

// SQLiteSink appends records to the runs table of an SQLite database.
type SQLiteSink struct {
	db     *sql.DB
	insert *sql.Stmt
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "create results directory for %s", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open results database %s", path)
	}
	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create runs table")
	}
	insert, err := db.Prepare(`INSERT INTO runs(run_id, n, f, m, elapsed_ms, finished_at) VALUES(?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "prepare insert")
	}
	return &SQLiteSink{db: db, insert: insert}, nil
}

// Append inserts rec as a new row.
func (s *SQLiteSink) Append(rec Record) error {
	_, err := s.insert.Exec(rec.RunID, rec.Replicas, rec.Faults, rec.Operations,
		rec.ElapsedMillis, rec.FinishedAt.UTC().Format(time.RFC3339Nano))
	return errors.Wrapf(err, "insert run %s", rec.RunID)
}

// Records returns every stored record in insertion order.
func (s *SQLiteSink) Records() ([]Record, error) {
	rows, err := s.db.Query(`SELECT run_id, n, f, m, elapsed_ms, finished_at FROM runs ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec      Record
			finished string
		)
		if err := rows.Scan(&rec.RunID, &rec.Replicas, &rec.Faults, &rec.Operations, &rec.ElapsedMillis, &finished); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, errors.Wrapf(err, "run %s finished_at", rec.RunID)
		}
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "iterate runs")
}

// Close releases the prepared statement and closes the database.
func (s *SQLiteSink) Close() error {
	s.insert.Close()
	return errors.Wrap(s.db.Close(), "close results database")
}
