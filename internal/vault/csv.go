package vault

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/veilproject/veil/internal/entity"
	"github.com/veilproject/veil/internal/logger"
	"github.com/veilproject/veil/internal/session"
	"go.uber.org/zap"
)

var csvHeader = []string{"fake_value", "original_value", "entity_kind"}

// FileStore persists the mapping as a CSV artifact inside the session
// directory, named by the stable scheme the restorer parses. This is the
// default backend.
type FileStore struct {
	logger *logger.Logger
}

// NewFileStore creates a CSV-backed mapping store.
func NewFileStore(log *logger.Logger) *FileStore {
	return &FileStore{logger: log}
}

// Persist writes all records to the session's mapping file. The write goes
// through a temp file and a rename so a crash cannot leave a half-written
// mapping that parses as valid.
func (s *FileStore) Persist(ctx context.Context, sess session.Session, dir string, records []Record) error {
	path := filepath.Join(dir, session.MappingFileName(sess.BaseName, sess.ID))

	tmp, err := os.CreateTemp(dir, ".mapping-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create mapping file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write mapping header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write([]string{rec.Fake, rec.Original, string(rec.Kind)}); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write mapping row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush mapping rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close mapping file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to finalize mapping file %s: %w", path, err)
	}

	s.logger.Info("Mapping persisted",
		zap.String("path", path),
		zap.String("session_id", sess.ID),
		zap.Int("records", len(records)),
	)
	return nil
}

// Load reads the mapping rows for the session. A missing file is a
// NotFoundError; unreadable or malformed rows are a CorruptError.
func (s *FileStore) Load(ctx context.Context, baseName, id, dir string) ([]Record, error) {
	path := filepath.Join(dir, session.MappingFileName(baseName, id))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Error("Mapping artifact missing",
				zap.String("path", path),
				zap.String("session_id", id),
			)
			return nil, &NotFoundError{BaseName: baseName, ID: id, Path: path}
		}
		return nil, &CorruptError{Path: path, Detail: "unreadable mapping file", Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, &CorruptError{Path: path, Detail: "malformed CSV", Err: err}
	}
	if len(rows) == 0 {
		return nil, &CorruptError{Path: path, Detail: "missing header row"}
	}
	if len(rows[0]) < 2 || rows[0][0] != csvHeader[0] || rows[0][1] != csvHeader[1] {
		return nil, &CorruptError{Path: path, Detail: fmt.Sprintf("unexpected header %v", rows[0])}
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 2 {
			return nil, &CorruptError{Path: path, Detail: fmt.Sprintf("row %d has %d columns", i+2, len(row))}
		}
		rec := Record{Fake: row[0], Original: row[1]}
		if len(row) > 2 {
			rec.Kind = entity.Kind(row[2])
		}
		records = append(records, rec)
	}

	s.logger.Info("Mapping loaded",
		zap.String("path", path),
		zap.String("session_id", id),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// Destroy deletes the session's mapping artifact.
func (s *FileStore) Destroy(ctx context.Context, baseName, id, dir string) error {
	path := filepath.Join(dir, session.MappingFileName(baseName, id))

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{BaseName: baseName, ID: id, Path: path}
		}
		return fmt.Errorf("failed to delete mapping file %s: %w", path, err)
	}

	s.logger.Info("Mapping destroyed",
		zap.String("path", path),
		zap.String("session_id", id),
	)
	return nil
}
