package fake

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/entity"
	"github.com/veilproject/veil/internal/logger"
	"go.uber.org/zap"
)

// GenerationError reports that no acceptable fake value could be produced
// within the attempt budget. This is the only way generation can fail.
type GenerationError struct {
	Kind     entity.Kind
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to generate fake %s value after %d attempts: %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("failed to generate fake %s value after %d attempts", e.Kind, e.Attempts)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// GeneratorFunc synthesizes a candidate fake value for one original value.
type GeneratorFunc func(original string) (string, error)

// Generator synthesizes format-preserving fake values per entity kind. A
// candidate is rejected when it equals the original or collides with a
// value already issued in the session; generation retries up to the
// configured attempt budget.
type Generator struct {
	generators  map[entity.Kind]GeneratorFunc
	maxAttempts int
	logger      *logger.Logger
}

// New creates a generator with the built-in per-kind strategies.
func New(cfg config.GenerationConfig, log *logger.Logger) *Generator {
	g := &Generator{
		generators:  make(map[entity.Kind]GeneratorFunc),
		maxAttempts: cfg.MaxAttempts,
		logger:      log,
	}

	g.generators[entity.KindPerson] = generatePersonName
	g.generators[entity.KindEmail] = generateEmail
	g.generators[entity.KindSSN] = generateSSN
	g.generators[entity.KindCreditCard] = generateCreditCard
	g.generators[entity.KindPhone] = generatePhone
	g.generators[entity.KindOther] = generateMasked

	return g
}

// Register installs a custom strategy for a kind, replacing any existing one.
func (g *Generator) Register(kind entity.Kind, fn GeneratorFunc) {
	g.generators[kind] = fn
}

// Generate returns a fake value for the original that is structurally valid
// for the kind, differs from the original, and neither equals, contains,
// nor appears within any value in issued. Kinds without a registered
// strategy fall back to the character-class-preserving mask.
func (g *Generator) Generate(kind entity.Kind, original string, issued map[string]struct{}) (string, error) {
	fn, ok := g.generators[kind]
	if !ok {
		fn = g.generators[entity.KindOther]
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		candidate, err := fn(original)
		if err != nil {
			lastErr = err
			continue
		}

		if candidate == original {
			lastErr = fmt.Errorf("candidate equals original value")
			continue
		}
		if conflicts(candidate, issued) {
			lastErr = fmt.Errorf("candidate conflicts with a value in the session")
			continue
		}

		g.logger.Debug("Fake value generated",
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
		)
		return candidate, nil
	}

	g.logger.Error("Fake value generation exhausted its attempt budget",
		zap.String("kind", string(kind)),
		zap.Int("attempts", g.maxAttempts),
		zap.Error(lastErr),
	)
	return "", &GenerationError{Kind: kind, Attempts: g.maxAttempts, Err: lastErr}
}

// conflicts reports whether the candidate equals, contains, or is contained
// in any issued value. Substring conflicts matter as much as equality: a
// fake containing another session value gets its inside rewritten by the
// longest-first substitution, and a fake contained in one cannot be
// restored unambiguously. Either way the round trip breaks.
func conflicts(candidate string, issued map[string]struct{}) bool {
	for v := range issued {
		if strings.Contains(candidate, v) || strings.Contains(v, candidate) {
			return true
		}
	}
	return false
}

// secureIndex returns a uniform random int in [0, n).
func secureIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to draw random index: %w", err)
	}
	return int(v.Int64()), nil
}

// secureRange returns a uniform random int in [lo, hi).
func secureRange(lo, hi int) (int, error) {
	n, err := secureIndex(hi - lo)
	if err != nil {
		return 0, err
	}
	return lo + n, nil
}
