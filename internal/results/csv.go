package results

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var csvHeader = []string{"run_id", "n", "f", "m", "elapsed_ms", "finished_at"}

// CSVSink appends records to a CSV file, writing the header only when the
// file is empty.
type CSVSink struct {
	file *os.File
	w    *csv.Writer
}

// OpenCSV opens path for appending, creating it if needed.
func OpenCSV(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "create results directory for %s", path)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open results file %s", path)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat results file %s", path)
	}

	s := &CSVSink{file: file, w: csv.NewWriter(file)}
	if info.Size() == 0 {
		if err := s.write(csvHeader); err != nil {
			file.Close()
			return nil, err
		}
	}
	return s, nil
}

// Append writes rec as one row and flushes it to the file.
func (s *CSVSink) Append(rec Record) error {
	return s.write([]string{
		rec.RunID,
		strconv.Itoa(rec.Replicas),
		strconv.Itoa(rec.Faults),
		strconv.Itoa(rec.Operations),
		strconv.FormatInt(rec.ElapsedMillis, 10),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *CSVSink) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return errors.Wrap(err, "write csv row")
	}
	s.w.Flush()
	return errors.Wrap(s.w.Error(), "flush csv row")
}

// Close flushes pending output and closes the file.
func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return errors.Wrap(err, "flush csv")
	}
	return errors.Wrap(s.file.Close(), "close results file")
}

// ReadCSV reads every record from a CSV result log.
func ReadCSV(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open results file %s", path)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(csvHeader)

	var records []Record
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		if line == 1 && row[0] == csvHeader[0] {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, errors.Wrapf(err, "%s line %d", path, line)
		}
		records = append(records, rec)
	}
}

func parseRow(row []string) (Record, error) {
	var (
		rec Record
		err error
	)
	rec.RunID = row[0]
	if rec.Replicas, err = strconv.Atoi(row[1]); err != nil {
		return rec, errors.Wrap(err, "n")
	}
	if rec.Faults, err = strconv.Atoi(row[2]); err != nil {
		return rec, errors.Wrap(err, "f")
	}
	if rec.Operations, err = strconv.Atoi(row[3]); err != nil {
		return rec, errors.Wrap(err, "m")
	}
	if rec.ElapsedMillis, err = strconv.ParseInt(row[4], 10, 64); err != nil {
		return rec, errors.Wrap(err, "elapsed_ms")
	}
	if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, row[5]); err != nil {
		return rec, errors.Wrap(err, "finished_at")
	}
	return rec, nil
}
