package vault

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/logger"
	"github.com/veilproject/veil/internal/session"
	"go.uber.org/zap"
)

// SQLStore keeps mapping records in PostgreSQL instead of a CSV file next
// to the anonymized output. The session directory argument of the Store
// interface is ignored; (base name, session id) is the key.
type SQLStore struct {
	db     *sqlx.DB
	logger *logger.Logger
}

const mappingSchema = `
	CREATE TABLE IF NOT EXISTS mapping_records (
		id             BIGSERIAL PRIMARY KEY,
		base_name      TEXT        NOT NULL,
		session_id     TEXT        NOT NULL,
		fake_value     TEXT        NOT NULL,
		original_value TEXT        NOT NULL,
		entity_kind    TEXT        NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (session_id, fake_value)
	)`

// NewSQLStore connects to the database and ensures the mapping table exists.
func NewSQLStore(cfg config.PostgresConfig, log *logger.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	store := &SQLStore{db: db, logger: log}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	log.Info("Mapping store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return store, nil
}

// initialize checks the connection and creates the mapping table.
func (s *SQLStore) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, mappingSchema); err != nil {
		return fmt.Errorf("failed to ensure mapping table: %w", err)
	}

	return nil
}

// Persist inserts all records for the session in one transaction so a
// partial mapping can never be observed.
func (s *SQLStore) Persist(ctx context.Context, sess session.Session, dir string, records []Record) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mapping transaction: %w", err)
	}
	defer tx.Rollback()

	const insert = `
		INSERT INTO mapping_records (base_name, session_id, fake_value, original_value, entity_kind)
		VALUES ($1, $2, $3, $4, $5)`

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, insert, sess.BaseName, sess.ID, rec.Fake, rec.Original, string(rec.Kind)); err != nil {
			s.logger.Error("Failed to insert mapping record",
				zap.Error(err),
				zap.String("session_id", sess.ID),
			)
			return fmt.Errorf("failed to insert mapping record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mapping: %w", err)
	}

	s.logger.Info("Mapping persisted",
		zap.String("session_id", sess.ID),
		zap.Int("records", len(records)),
	)
	return nil
}

// Load selects the mapping rows for the session. Zero rows means the
// mapping does not exist (or was already destroyed).
func (s *SQLStore) Load(ctx context.Context, baseName, id, dir string) ([]Record, error) {
	const query = `
		SELECT fake_value, original_value, entity_kind
		FROM mapping_records
		WHERE base_name = $1 AND session_id = $2
		ORDER BY id`

	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, baseName, id); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load mapping for session %s: %w", id, err)
	}

	if len(records) == 0 {
		s.logger.Error("Mapping rows missing",
			zap.String("session_id", id),
			zap.String("base_name", baseName),
		)
		return nil, &NotFoundError{BaseName: baseName, ID: id}
	}

	s.logger.Info("Mapping loaded",
		zap.String("session_id", id),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// Destroy deletes the session's mapping rows.
func (s *SQLStore) Destroy(ctx context.Context, baseName, id, dir string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mapping_records WHERE base_name = $1 AND session_id = $2`, baseName, id)
	if err != nil {
		return fmt.Errorf("failed to delete mapping for session %s: %w", id, err)
	}

	deleted, err := res.RowsAffected()
	if err == nil && deleted == 0 {
		return &NotFoundError{BaseName: baseName, ID: id}
	}

	s.logger.Info("Mapping destroyed",
		zap.String("session_id", id),
		zap.Int64("records", deleted),
	)
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	// Simple masking - replace password with ***
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
