// Package engine drives the two operations of the system: anonymize and
// deanonymize. Each is a linear, synchronous pipeline; any step's failure
// aborts the run and leaves no partially valid artifact pair behind.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/veilproject/veil/internal/cache"
	"github.com/veilproject/veil/internal/detect"
	"github.com/veilproject/veil/internal/entity"
	"github.com/veilproject/veil/internal/fake"
	"github.com/veilproject/veil/internal/logger"
	"github.com/veilproject/veil/internal/rewrite"
	"github.com/veilproject/veil/internal/session"
	"github.com/veilproject/veil/internal/vault"
	"go.uber.org/zap"
)

// Engine wires the detector, generator, and mapping store together. It
// holds no per-session state; parallel sessions with distinct base
// name/id pairs are safe by construction.
type Engine struct {
	detector  *detect.Detector
	generator *fake.Generator
	store     vault.Store
	cache     *cache.ResultCache
	logger    *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache installs an optional detection result cache.
func WithCache(c *cache.ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

// New creates an engine.
func New(detector *detect.Detector, generator *fake.Generator, store vault.Store, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		detector:  detector,
		generator: generator,
		store:     store,
		logger:    log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CacheStats reports the detection cache's hit/miss counters. The second
// return is false when no cache is installed.
func (e *Engine) CacheStats() (cache.Stats, bool) {
	if e.cache == nil {
		return cache.Stats{}, false
	}
	return e.cache.GetStats(), true
}

// AnonymizeResult carries the artifacts of a completed anonymization run.
type AnonymizeResult struct {
	Session        session.Session
	AnonymizedPath string
	MappingPath    string
	AnonymizedText string
	Resolutions    []entity.Resolution
}

// Anonymize runs the full pipeline: read the input (a file path or literal
// text), detect entities, resolve fakes, substitute, and persist the
// anonymized text together with its mapping inside a fresh session
// directory under outputDir. The two artifacts are committed together or
// not at all.
func (e *Engine) Anonymize(ctx context.Context, input, outputDir, baseName string) (*AnonymizeResult, error) {
	id, err := session.NewID()
	if err != nil {
		return nil, err
	}

	text, base, err := e.resolveInput(input, baseName, id)
	if err != nil {
		return nil, err
	}

	sess := session.Session{
		ID:        id,
		BaseName:  session.SanitizeBaseName(base),
		CreatedAt: time.Now(),
	}
	log := e.logger.WithSession(sess.ID)
	log.Info("Starting anonymization", zap.String("base_name", sess.BaseName))

	dir := filepath.Join(outputDir, sess.DirName())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error("Failed to create session directory", zap.String("path", dir), zap.Error(err))
		return nil, &DirectoryCreationError{Path: dir, Err: err}
	}

	entities, err := e.detectEntities(ctx, text)
	if err != nil {
		log.Error("Detection failed", zap.Error(err))
		return nil, err
	}
	log.Info("Detection complete", zap.Int("entities", len(entities)))

	resolutions, err := e.resolve(entities, log)
	if err != nil {
		return nil, err
	}

	anonymized := rewrite.Substitute(text, resolutions)

	originals := make([]string, len(resolutions))
	records := make([]vault.Record, len(resolutions))
	for i, res := range resolutions {
		originals[i] = res.Entity.Value
		records[i] = vault.Record{Fake: res.Fake, Original: res.Entity.Value, Kind: res.Entity.Kind}
	}
	if leaked := rewrite.Leaks(anonymized, originals); len(leaked) > 0 {
		log.Error("Original values still present after substitution, aborting", zap.Int("count", len(leaked)))
		os.Remove(dir)
		return nil, &LeakError{Count: len(leaked)}
	}

	anonPath := filepath.Join(dir, session.AnonymizedFileName(sess.BaseName, sess.ID))
	mapPath := filepath.Join(dir, session.MappingFileName(sess.BaseName, sess.ID))

	// Stage the anonymized text first, persist the mapping, then commit the
	// text with a rename. A failure at any point removes whatever half of
	// the pair already exists.
	tmp, err := stageFile(dir, anonymized)
	if err != nil {
		log.Error("Failed to stage anonymized text", zap.Error(err))
		return nil, &FilesystemError{Op: "write", Path: anonPath, Err: err}
	}
	defer os.Remove(tmp)

	if err := e.store.Persist(ctx, sess, dir, records); err != nil {
		log.Error("Failed to persist mapping", zap.Error(err))
		return nil, err
	}

	if err := os.Rename(tmp, anonPath); err != nil {
		log.Error("Failed to commit anonymized text", zap.String("path", anonPath), zap.Error(err))
		if derr := e.store.Destroy(ctx, sess.BaseName, sess.ID, dir); derr != nil {
			log.Error("Failed to roll back mapping", zap.Error(derr))
		}
		return nil, &FilesystemError{Op: "write", Path: anonPath, Err: err}
	}

	log.Info("Anonymization complete",
		zap.String("anonymized_file", anonPath),
		zap.Int("resolutions", len(resolutions)),
	)

	return &AnonymizeResult{
		Session:        sess,
		AnonymizedPath: anonPath,
		MappingPath:    mapPath,
		AnonymizedText: anonymized,
		Resolutions:    resolutions,
	}, nil
}

// Deanonymize restores the original text from an anonymized artifact. The
// mapping is located from the artifact's name alone, consumed once, and
// destroyed after the restored file is committed. On any failure the
// mapping stays on disk for a retry.
func (e *Engine) Deanonymize(ctx context.Context, anonymizedPath, outputDir string) (string, error) {
	base, id, err := session.ParseAnonymizedName(anonymizedPath)
	if err != nil {
		e.logger.Error("Cannot locate mapping", zap.String("path", anonymizedPath), zap.Error(err))
		return "", fmt.Errorf("cannot locate mapping for %s: %w", anonymizedPath, err)
	}

	log := e.logger.WithSession(id)
	log.Info("Starting de-anonymization", zap.String("anonymized_file", anonymizedPath))

	sessionDir := filepath.Dir(anonymizedPath)

	records, err := e.store.Load(ctx, base, id, sessionDir)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(anonymizedPath)
	if err != nil {
		log.Error("Failed to read anonymized file", zap.String("path", anonymizedPath), zap.Error(err))
		return "", &FilesystemError{Op: "read", Path: anonymizedPath, Err: err}
	}

	restored := rewrite.Restore(string(data), vault.ToMapping(records))

	destDir := outputDir
	if destDir == "" {
		destDir = sessionDir
	}
	restoredPath := filepath.Join(destDir, session.RestoredFileName(base, id))

	tmp, err := stageFile(destDir, restored)
	if err != nil {
		log.Error("Failed to stage restored text", zap.Error(err))
		return "", &FilesystemError{Op: "write", Path: restoredPath, Err: err}
	}
	defer os.Remove(tmp)

	if err := os.Rename(tmp, restoredPath); err != nil {
		log.Error("Failed to commit restored text", zap.String("path", restoredPath), zap.Error(err))
		return "", &FilesystemError{Op: "write", Path: restoredPath, Err: err}
	}

	if err := e.store.Destroy(ctx, base, id, sessionDir); err != nil {
		log.Error("Failed to destroy mapping after restore", zap.Error(err))
		return "", err
	}

	log.Info("De-anonymization complete", zap.String("restored_file", restoredPath))
	return restoredPath, nil
}

// resolveInput reads the input file when the argument names one, otherwise
// treats the argument as literal text, and picks the base name.
func (e *Engine) resolveInput(input, baseName, id string) (text, base string, err error) {
	if info, statErr := os.Stat(input); statErr == nil && info.Mode().IsRegular() {
		data, readErr := os.ReadFile(input)
		if readErr != nil {
			e.logger.Error("Failed to read input file", zap.String("path", input), zap.Error(readErr))
			return "", "", &FilesystemError{Op: "read", Path: input, Err: readErr}
		}
		base = baseName
		if base == "" {
			name := filepath.Base(input)
			base = name[:len(name)-len(filepath.Ext(name))]
		}
		return string(data), base, nil
	}

	base = baseName
	if base == "" {
		base = "no_filename_provided_" + id
	}
	return input, base, nil
}

// detectEntities consults the cache before running the detector.
func (e *Engine) detectEntities(ctx context.Context, text string) ([]entity.Entity, error) {
	if e.cache != nil {
		if entities, ok := e.cache.Get(ctx, text); ok {
			return entities, nil
		}
	}

	entities, err := e.detector.Detect(ctx, text)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, text, entities); err != nil {
			e.logger.Warn("Failed to cache detection result", zap.Error(err))
		}
	}
	return entities, nil
}

// resolve issues one fake per distinct original value, in detection order.
// The issued set is seeded with every original value so no fake can equal,
// contain, or appear within any sensitive value from the same text.
func (e *Engine) resolve(entities []entity.Entity, log *logger.Logger) ([]entity.Resolution, error) {
	issued := make(map[string]struct{}, len(entities)*2)
	for _, ent := range entities {
		issued[ent.Value] = struct{}{}
	}

	resolved := make(map[string]struct{}, len(entities))
	var resolutions []entity.Resolution
	for _, ent := range entities {
		if _, done := resolved[ent.Value]; done {
			continue
		}

		fakeValue, err := e.generator.Generate(ent.Kind, ent.Value, issued)
		if err != nil {
			log.Error("Fake value generation failed",
				zap.String("kind", string(ent.Kind)),
				zap.Error(err),
			)
			return nil, err
		}

		issued[fakeValue] = struct{}{}
		resolved[ent.Value] = struct{}{}
		resolutions = append(resolutions, entity.Resolution{Entity: ent, Fake: fakeValue})
	}
	return resolutions, nil
}

// stageFile writes content to a temp file in dir and returns its path.
func stageFile(dir, content string) (string, error) {
	tmp, err := os.CreateTemp(dir, ".stage-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
