package detect

import (
	"context"
	"sort"

	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/entity"
	"github.com/veilproject/veil/internal/logger"
	"go.uber.org/zap"
)

// Detector composes pattern recognizers with an optional statistical model
// backend and resolves span conflicts between them. It holds no per-session
// state and is safe to share across sessions.
type Detector struct {
	recognizers []Recognizer
	enabled     map[string]bool
	backend     ModelBackend
	logger      *logger.Logger
}

// New creates a detector with the built-in pattern recognizers. The model
// backend, when enabled in the configuration, supplies statistical entities
// (person names and similar kinds no fixed pattern can match).
func New(cfg config.DetectionConfig, log *logger.Logger) (*Detector, error) {
	d := &Detector{
		recognizers: defaultRecognizers(),
		enabled:     make(map[string]bool),
		logger:      log,
	}

	if cfg.Model.Enabled {
		backend := NewModelBackend(log.Logger, cfg.Model)
		if backend == nil || !backend.IsReady() {
			return nil, &ConfigurationError{Detail: "model backend is enabled but could not be initialized (build with the onnx tag and set a model path)"}
		}
		d.backend = backend
	}

	if err := d.configureRecognizers(cfg.Recognizers); err != nil {
		return nil, err
	}

	log.Info("Detector initialized",
		zap.Int("total_recognizers", len(d.recognizers)),
		zap.Int("enabled_recognizers", d.countEnabled()),
		zap.Bool("model_backend", d.backend != nil),
	)

	return d, nil
}

// configureRecognizers enables/disables recognizers based on configuration
func (d *Detector) configureRecognizers(names []string) error {
	for _, r := range d.recognizers {
		d.enabled[r.Name()] = false
	}

	for _, name := range names {
		if name == "all" {
			for _, r := range d.recognizers {
				d.enabled[r.Name()] = true
			}
			continue
		}

		found := false
		for _, r := range d.recognizers {
			if r.Name() == name {
				d.enabled[r.Name()] = true
				found = true
				break
			}
		}

		if !found {
			return &ConfigurationError{Detail: "unknown recognizer: " + name}
		}
	}

	return nil
}

// Register adds a custom recognizer and enables it.
func (d *Detector) Register(r Recognizer) {
	d.recognizers = append(d.recognizers, r)
	d.enabled[r.Name()] = true
	d.logger.Info("Recognizer registered", zap.String("recognizer", r.Name()))
}

// Detect runs every enabled recognizer plus the model backend over the text
// and returns the surviving entities sorted by ascending start offset with
// no overlapping spans. The substitution engine requires that invariant.
func (d *Detector) Detect(ctx context.Context, text string) ([]entity.Entity, error) {
	var candidates []entity.Entity

	for _, r := range d.recognizers {
		if !d.enabled[r.Name()] {
			continue
		}
		found := r.Recognize(text)
		if len(found) > 0 {
			d.logger.Debug("Recognizer matched",
				zap.String("recognizer", r.Name()),
				zap.Int("count", len(found)),
			)
			candidates = append(candidates, found...)
		}
	}

	if d.backend != nil && d.backend.IsReady() {
		modelEntities, err := d.backend.Entities(ctx, text)
		if err != nil {
			return nil, &DetectionError{Err: err}
		}
		candidates = append(candidates, modelEntities...)
	}

	resolved := resolveOverlaps(candidates)

	d.logger.Debug("Detection complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("resolved", len(resolved)),
	)

	return resolved, nil
}

// resolveOverlaps drops the losing entity of every span conflict. The
// winner is picked by higher confidence, then longer span, then earlier
// start offset. Output is sorted by start offset.
func resolveOverlaps(candidates []entity.Entity) []entity.Entity {
	if len(candidates) == 0 {
		return nil
	}

	ranked := make([]entity.Entity, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Length() != b.Length() {
			return a.Length() > b.Length()
		}
		return a.Start < b.Start
	})

	var kept []entity.Entity
	for _, cand := range ranked {
		conflict := false
		for _, k := range kept {
			if cand.Overlaps(k) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, cand)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// countEnabled returns the number of enabled recognizers
func (d *Detector) countEnabled() int {
	count := 0
	for _, on := range d.enabled {
		if on {
			count++
		}
	}
	return count
}

// EnabledRecognizers returns the names of all enabled recognizers.
func (d *Detector) EnabledRecognizers() []string {
	var names []string
	for name, on := range d.enabled {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Close releases the model backend, if any.
func (d *Detector) Close() error {
	if d.backend != nil {
		return d.backend.Close()
	}
	return nil
}
