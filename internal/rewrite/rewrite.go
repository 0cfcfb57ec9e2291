// Package rewrite performs the text substitutions behind anonymization and
// restoration. Replacements apply to every occurrence of a value, longest
// value first, so a short value that is a substring of a longer one can
// never corrupt the longer match.
package rewrite

import (
	"sort"
	"strings"

	"github.com/veilproject/veil/internal/entity"
)

type pair struct {
	from string
	to   string
}

// Substitute replaces every occurrence of every resolved original value
// with its fake value and returns the anonymized text.
func Substitute(text string, resolutions []entity.Resolution) string {
	seen := make(map[string]struct{}, len(resolutions))
	pairs := make([]pair, 0, len(resolutions))
	for _, res := range resolutions {
		if _, dup := seen[res.Entity.Value]; dup {
			continue
		}
		seen[res.Entity.Value] = struct{}{}
		pairs = append(pairs, pair{from: res.Entity.Value, to: res.Fake})
	}

	return replaceAll(text, pairs)
}

// Restore replaces every occurrence of every fake value with its original
// value. With an empty mapping the input is returned unchanged.
func Restore(text string, mapping map[string]string) string {
	pairs := make([]pair, 0, len(mapping))
	for fake, original := range mapping {
		pairs = append(pairs, pair{from: fake, to: original})
	}

	return replaceAll(text, pairs)
}

// replaceAll applies the pairs longest-from first. Equal lengths are
// ordered lexicographically so the result is deterministic.
func replaceAll(text string, pairs []pair) string {
	sort.Slice(pairs, func(i, j int) bool {
		if len(pairs[i].from) != len(pairs[j].from) {
			return len(pairs[i].from) > len(pairs[j].from)
		}
		return pairs[i].from < pairs[j].from
	})

	for _, p := range pairs {
		if p.from == "" {
			continue
		}
		text = strings.ReplaceAll(text, p.from, p.to)
	}
	return text
}

// Leaks returns the values that still occur verbatim in the text. Used to
// verify that anonymized output carries none of the original values.
func Leaks(text string, values []string) []string {
	var leaked []string
	for _, v := range values {
		if v != "" && strings.Contains(text, v) {
			leaked = append(leaked, v)
		}
	}
	return leaked
}
