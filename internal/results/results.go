package results

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Record is the outcome of one benchmark run.
type Record struct {
	RunID         string
	Replicas      int
	Faults        int
	Operations    int
	ElapsedMillis int64
	FinishedAt    time.Time
}

// Sink appends records to a result log.
type Sink interface {
	Append(rec Record) error
	Close() error
}

const (
	// FormatCSV appends one row per run to a CSV file with a header line.
	FormatCSV = "csv"
	// FormatSQLite inserts one row per run into the runs table of a SQLite
	// database. "sqlite3" is accepted as an alias.
	FormatSQLite = "sqlite"
)

// Open opens the result log at path in the given format.
func Open(format, path string) (Sink, error) {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return OpenCSV(path)
	case FormatSQLite, "sqlite3":
		return OpenSQLite(path)
	default:
		return nil, errors.Errorf("unknown results format %q", format)
	}
}

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

func (s *MemorySink) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Records returns a copy of the appended records.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}
