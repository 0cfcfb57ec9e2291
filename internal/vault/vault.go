// Package vault persists the per-session mapping of fake values to their
// originals. The mapping is the one security-sensitive artifact of a run:
// it is written once at anonymization time, read exactly once at
// de-anonymization time, and destroyed after a successful restore. On any
// failed restore it stays put for forensic retry.
package vault

import (
	"context"
	"fmt"

	"github.com/veilproject/veil/internal/entity"
	"github.com/veilproject/veil/internal/session"
)

// Record is one row of the mapping: a fake value, the original it stands
// for, and the entity kind that produced it.
type Record struct {
	Fake     string      `db:"fake_value"`
	Original string      `db:"original_value"`
	Kind     entity.Kind `db:"entity_kind"`
}

// Store is the mapping persistence contract. Load and Destroy identify the
// session by (baseName, id) as parsed from the anonymized artifact's name;
// dir is the session directory holding file-based artifacts.
type Store interface {
	Persist(ctx context.Context, sess session.Session, dir string, records []Record) error
	Load(ctx context.Context, baseName, id, dir string) ([]Record, error)
	Destroy(ctx context.Context, baseName, id, dir string) error
}

// NotFoundError reports that the mapping artifact for a session does not
// exist. It is the single biggest reason de-anonymization fails.
type NotFoundError struct {
	BaseName string
	ID       string
	Path     string
}

func (e *NotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("mapping for session %s not found at %s", e.ID, e.Path)
	}
	return fmt.Sprintf("mapping for session %s (base %s) not found", e.ID, e.BaseName)
}

// CorruptError reports a mapping artifact that exists but cannot be read
// as valid mapping rows.
type CorruptError struct {
	Path   string
	Detail string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("mapping at %s is corrupt: %s", e.Path, e.Detail)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// ToMapping converts records into the fake-to-original lookup used by the
// restoration engine.
func ToMapping(records []Record) map[string]string {
	m := make(map[string]string, len(records))
	for _, r := range records {
		m[r.Fake] = r.Original
	}
	return m
}
