package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/detect"
	"github.com/veilproject/veil/internal/engine"
	"github.com/veilproject/veil/internal/entity"
	"github.com/veilproject/veil/internal/fake"
	"github.com/veilproject/veil/internal/logger"
	"github.com/veilproject/veil/internal/session"
	"github.com/veilproject/veil/internal/vault"
)

// newTestEngine builds an engine on the CSV store with the built-in
// recognizers plus a literal name recognizer standing in for the model
// backend.
func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	log := logger.NewNop()

	detector, err := detect.New(config.DetectionConfig{Recognizers: []string{"all"}}, log)
	if err != nil {
		t.Fatalf("detector init failed: %v", err)
	}
	detector.Register(detect.NewPatternRecognizer(
		"person_literal", entity.KindPerson, regexp.MustCompile(`John Doe`), 0.85))

	generator := fake.New(config.GenerationConfig{MaxAttempts: 5}, log)
	store := vault.NewFileStore(log)

	return engine.New(detector, generator, store, log)
}

const sampleText = "John Doe (SSN 123-45-6789) wrote to john.doe@corp.com.\nJohn Doe signed.\n"

func TestAnonymize(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	outputDir := t.TempDir()

	result, err := eng.Anonymize(ctx, sampleText, outputDir, "report")
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}

	t.Run("artifacts exist", func(t *testing.T) {
		for _, path := range []string{result.AnonymizedPath, result.MappingPath} {
			if _, err := os.Stat(path); err != nil {
				t.Errorf("artifact %s missing: %v", path, err)
			}
		}
		if filepath.Dir(result.AnonymizedPath) != filepath.Dir(result.MappingPath) {
			t.Error("artifacts landed in different directories")
		}
		if got := filepath.Base(filepath.Dir(result.AnonymizedPath)); got != result.Session.DirName() {
			t.Errorf("session directory %q, want %q", got, result.Session.DirName())
		}
	})

	t.Run("no original value survives", func(t *testing.T) {
		data, err := os.ReadFile(result.AnonymizedPath)
		if err != nil {
			t.Fatalf("failed to read anonymized file: %v", err)
		}
		if string(data) != result.AnonymizedText {
			t.Error("anonymized file content differs from returned text")
		}
		for _, original := range []string{"John Doe", "123-45-6789", "john.doe@corp.com"} {
			if strings.Contains(string(data), original) {
				t.Errorf("original %q survives in the anonymized text", original)
			}
		}
	})

	t.Run("repeated value gets one resolution", func(t *testing.T) {
		count := 0
		for _, res := range result.Resolutions {
			if res.Entity.Value == "John Doe" {
				count++
			}
		}
		if count != 1 {
			t.Errorf("John Doe resolved %d times, want 1", count)
		}
	})

	t.Run("fakes are mutually distinct", func(t *testing.T) {
		seen := make(map[string]bool)
		for _, res := range result.Resolutions {
			if seen[res.Fake] {
				t.Errorf("fake %q issued twice", res.Fake)
			}
			seen[res.Fake] = true
		}
	})
}

func TestAnonymizeFileInput(t *testing.T) {
	eng := newTestEngine(t)
	outputDir := t.TempDir()

	inputPath := filepath.Join(t.TempDir(), "quarterly report.txt")
	if err := os.WriteFile(inputPath, []byte(sampleText), 0o644); err != nil {
		t.Fatalf("failed to write input file: %v", err)
	}

	result, err := eng.Anonymize(context.Background(), inputPath, outputDir, "")
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}

	if result.Session.BaseName != "quarterly_report" {
		t.Errorf("base name %q, want quarterly_report", result.Session.BaseName)
	}
	if !strings.Contains(filepath.Base(result.AnonymizedPath), "quarterly_report") {
		t.Errorf("artifact name %q does not carry the base name", result.AnonymizedPath)
	}
}

func TestAnonymizeLiteralTextDefaultBaseName(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Anonymize(context.Background(), "mail 123-45-6789", t.TempDir(), "")
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}

	want := "no_filename_provided_" + result.Session.ID
	if result.Session.BaseName != want {
		t.Errorf("base name %q, want %q", result.Session.BaseName, want)
	}
}

func TestRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	outputDir := t.TempDir()

	result, err := eng.Anonymize(ctx, sampleText, outputDir, "report")
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}

	restoredPath, err := eng.Deanonymize(ctx, result.AnonymizedPath, "")
	if err != nil {
		t.Fatalf("Deanonymize failed: %v", err)
	}

	data, err := os.ReadFile(restoredPath)
	if err != nil {
		t.Fatalf("failed to read restored file: %v", err)
	}
	if string(data) != sampleText {
		t.Errorf("restored text is not byte exact:\ngot  %q\nwant %q", data, sampleText)
	}

	t.Run("restored name follows the scheme", func(t *testing.T) {
		want := session.RestoredFileName(result.Session.BaseName, result.Session.ID)
		if got := filepath.Base(restoredPath); got != want {
			t.Errorf("restored file name %q, want %q", got, want)
		}
	})

	t.Run("mapping destroyed after restore", func(t *testing.T) {
		if _, err := os.Stat(result.MappingPath); !os.IsNotExist(err) {
			t.Error("mapping artifact still exists after a successful restore")
		}
	})

	t.Run("second restore fails", func(t *testing.T) {
		_, err := eng.Deanonymize(ctx, result.AnonymizedPath, "")
		var notFound *vault.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("repeat Deanonymize returned %v, want *NotFoundError", err)
		}
	})
}

// TestRoundTripCandidateContainsAnotherName covers the case where a fake
// drawn for one person contains a second detected name. Such a candidate
// must be rejected and redrawn; accepting it would let the longest-first
// substitution rewrite the inside of the fake and lose the original for
// good.
func TestRoundTripCandidateContainsAnotherName(t *testing.T) {
	log := logger.NewNop()
	ctx := context.Background()

	detector, err := detect.New(config.DetectionConfig{Recognizers: []string{"all"}}, log)
	if err != nil {
		t.Fatalf("detector init failed: %v", err)
	}
	detector.Register(detect.NewPatternRecognizer(
		"person_literal", entity.KindPerson, regexp.MustCompile(`Bill Gates|John`), 0.85))

	// The first candidate contains the second detected name "John" and must
	// be redrawn.
	candidates := []string{"John Smith", "Mary Ray", "Alice Stone"}
	draws := 0
	generator := fake.New(config.GenerationConfig{MaxAttempts: 5}, log)
	generator.Register(entity.KindPerson, func(original string) (string, error) {
		c := candidates[draws%len(candidates)]
		draws++
		return c, nil
	})

	eng := engine.New(detector, generator, vault.NewFileStore(log), log)

	const text = "Bill Gates met John.\n"
	result, err := eng.Anonymize(ctx, text, t.TempDir(), "meeting")
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}
	if strings.Contains(result.AnonymizedText, "John") {
		t.Fatalf("anonymized text %q still carries a name", result.AnonymizedText)
	}

	restoredPath, err := eng.Deanonymize(ctx, result.AnonymizedPath, "")
	if err != nil {
		t.Fatalf("Deanonymize failed: %v", err)
	}
	data, err := os.ReadFile(restoredPath)
	if err != nil {
		t.Fatalf("failed to read restored file: %v", err)
	}
	if string(data) != text {
		t.Errorf("round trip broken:\ngot  %q\nwant %q", data, text)
	}
}

// TestAnonymizeAbortsOnResidualOriginal forces a substitution whose result
// re-forms an original value by concatenation. The run must fail with a
// typed error and commit no artifacts.
func TestAnonymizeAbortsOnResidualOriginal(t *testing.T) {
	log := logger.NewNop()

	detector, err := detect.New(config.DetectionConfig{Recognizers: []string{}}, log)
	if err != nil {
		t.Fatalf("detector init failed: %v", err)
	}
	detector.Register(detect.NewPatternRecognizer("pair", entity.Kind("PAIR"), regexp.MustCompile(`AB`), 1.0))
	detector.Register(detect.NewPatternRecognizer("mark", entity.Kind("MARK"), regexp.MustCompile(`Q`), 1.0))

	generator := fake.New(config.GenerationConfig{MaxAttempts: 5}, log)
	generator.Register(entity.Kind("PAIR"), func(original string) (string, error) {
		return "XY", nil
	})
	generator.Register(entity.Kind("MARK"), func(original string) (string, error) {
		return "ZA", nil
	})

	eng := engine.New(detector, generator, vault.NewFileStore(log), log)
	outputDir := t.TempDir()

	// "Q" becomes "ZA", and the trailing "B" of "QB" re-forms "AB".
	_, err = eng.Anonymize(context.Background(), "AB and QB", outputDir, "note")
	var leak *engine.LeakError
	if !errors.As(err, &leak) {
		t.Fatalf("Anonymize returned %v, want *LeakError", err)
	}
	if leak.Count != 1 {
		t.Errorf("LeakError.Count = %d, want 1", leak.Count)
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("failed to list output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("aborted run left artifacts behind: %v", entries)
	}
}

func TestCacheStatsWithoutCache(t *testing.T) {
	eng := newTestEngine(t)

	if _, ok := eng.CacheStats(); ok {
		t.Error("CacheStats reports a cache on an engine built without one")
	}
}

func TestDeanonymizeMissingMapping(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	outputDir := t.TempDir()

	result, err := eng.Anonymize(ctx, sampleText, outputDir, "report")
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}
	if err := os.Remove(result.MappingPath); err != nil {
		t.Fatalf("failed to remove mapping: %v", err)
	}

	_, err = eng.Deanonymize(ctx, result.AnonymizedPath, "")
	var notFound *vault.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Deanonymize returned %v, want *NotFoundError", err)
	}

	// No restored artifact may exist after a failed restore.
	restored := filepath.Join(filepath.Dir(result.AnonymizedPath),
		session.RestoredFileName(result.Session.BaseName, result.Session.ID))
	if _, err := os.Stat(restored); !os.IsNotExist(err) {
		t.Error("restored artifact exists despite the failure")
	}
}

func TestDeanonymizeForeignFileName(t *testing.T) {
	eng := newTestEngine(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, err := eng.Deanonymize(context.Background(), path, ""); err == nil {
		t.Fatal("Deanonymize accepted a file outside the naming scheme")
	}
}

func TestDeanonymizeSeparateOutputDir(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	result, err := eng.Anonymize(ctx, sampleText, t.TempDir(), "report")
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}

	dest := t.TempDir()
	restoredPath, err := eng.Deanonymize(ctx, result.AnonymizedPath, dest)
	if err != nil {
		t.Fatalf("Deanonymize failed: %v", err)
	}
	if filepath.Dir(restoredPath) != dest {
		t.Errorf("restored file landed in %q, want %q", filepath.Dir(restoredPath), dest)
	}
}
