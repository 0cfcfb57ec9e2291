package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"
)

const (
	idLength   = 10
	idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	dirTimestampLayout = "20060102_150405"
)

// Session identifies a single anonymization run. All artifacts of the run
// are namespaced by (BaseName, ID). A session is created once at the start
// of anonymization and never mutated; de-anonymization references it by
// parsing the id and base name back out of the anonymized artifact's name.
type Session struct {
	ID        string
	BaseName  string
	CreatedAt time.Time
}

// NewID generates a random 10-character alphanumeric session token.
func NewID() (string, error) {
	max := big.NewInt(int64(len(idAlphabet)))

	b := make([]byte, idLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate session id: %w", err)
		}
		b[i] = idAlphabet[n.Int64()]
	}

	return string(b), nil
}

// SanitizeBaseName replaces every rune that is not a letter or digit with
// an underscore so the base name can be embedded in artifact file names.
func SanitizeBaseName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// DirName returns the name of the session subdirectory that holds all
// artifacts for the run.
func (s Session) DirName() string {
	return fmt.Sprintf("anonymization_%s_%s", s.CreatedAt.Format(dirTimestampLayout), s.ID)
}
