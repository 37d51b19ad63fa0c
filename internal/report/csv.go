package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/obiente/translate/batchscribe/internal/domain"
)

// Header is the first row of every report file.
var Header = []string{"file_path", "status", "transcript", "error_msg"}

// CSVWriter appends rows to a report file and syncs after each batch.
type CSVWriter struct {
	f *os.File
}

// OpenCSV opens path for appending. The header is written only when the file is empty.
func OpenCSV(path string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat report: %w", err)
	}
	w := &CSVWriter{f: f}
	if info.Size() == 0 {
		if err := w.writeRecords([][]string{Header}); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return w, nil
}

func (w *CSVWriter) Write(rows []domain.Outcome) error {
	records := make([][]string, len(rows))
	for i, o := range rows {
		records[i] = []string{o.Path, string(o.Status), o.Transcript, o.Error}
	}
	return w.writeRecords(records)
}

func (w *CSVWriter) writeRecords(records [][]string) error {
	cw := csv.NewWriter(w.f)
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *CSVWriter) Close() error {
	return w.f.Close()
}

// CompletedPaths returns the paths whose latest row in an existing report is a success.
// Reports accumulate rows across runs, so a later row for a path supersedes earlier ones.
// A missing report yields an empty set.
func CompletedPaths(path string) (map[string]struct{}, error) {
	done := make(map[string]struct{})
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return done, nil
		}
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for first := true; ; first = false {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		if first && len(rec) > 0 && rec[0] == Header[0] {
			continue
		}
		if len(rec) < 2 {
			continue
		}
		if rec[1] == string(domain.StatusSuccess) {
			done[rec[0]] = struct{}{}
		} else {
			delete(done, rec[0])
		}
	}
	return done, nil
}
