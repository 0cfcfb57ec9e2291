package session

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID failed: %v", err)
		}
		if len(id) != idLength {
			t.Errorf("id %q has length %d, want %d", id, len(id), idLength)
		}
		for _, r := range id {
			if !strings.ContainsRune(idAlphabet, r) {
				t.Errorf("id %q contains %q outside the alphabet", id, r)
			}
		}
		if seen[id] {
			t.Errorf("id %q generated twice", id)
		}
		seen[id] = true
	}
}

func TestSanitizeBaseName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "report", "report"},
		{"spaces and dots", "my report.v2", "my_report_v2"},
		{"path characters", "a/b\\c:d", "a_b_c_d"},
		{"already clean", "Notes2024", "Notes2024"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeBaseName(tt.input); got != tt.want {
				t.Errorf("SanitizeBaseName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDirName(t *testing.T) {
	s := Session{
		ID:        "aB3dE5fG7h",
		BaseName:  "report",
		CreatedAt: time.Date(2024, 3, 15, 9, 30, 45, 0, time.UTC),
	}

	want := "anonymization_20240315_093045_aB3dE5fG7h"
	if got := s.DirName(); got != want {
		t.Errorf("DirName() = %q, want %q", got, want)
	}
}

func TestFileNaming(t *testing.T) {
	const base, id = "my_report", "aB3dE5fG7h"

	if got := AnonymizedFileName(base, id); got != "anonymized_my_report_aB3dE5fG7h.txt" {
		t.Errorf("AnonymizedFileName = %q", got)
	}
	if got := MappingFileName(base, id); got != "sensitive_data_my_report_aB3dE5fG7h.csv" {
		t.Errorf("MappingFileName = %q", got)
	}
	if got := RestoredFileName(base, id); got != "deanonymized_my_report_aB3dE5fG7h.txt" {
		t.Errorf("RestoredFileName = %q", got)
	}
}

func TestParseAnonymizedName(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		tests := []struct{ base, id string }{
			{"report", "aB3dE5fG7h"},
			{"my_long_base_name", "0123456789"},
			{"no_filename_provided_aB3dE5fG7h", "aB3dE5fG7h"},
		}
		for _, tt := range tests {
			name := AnonymizedFileName(tt.base, tt.id)
			base, id, err := ParseAnonymizedName("/some/dir/" + name)
			if err != nil {
				t.Fatalf("ParseAnonymizedName(%q) failed: %v", name, err)
			}
			if base != tt.base || id != tt.id {
				t.Errorf("ParseAnonymizedName(%q) = (%q, %q), want (%q, %q)", name, base, id, tt.base, tt.id)
			}
		}
	})

	t.Run("rejects foreign names", func(t *testing.T) {
		bad := []string{
			"report.txt",
			"deanonymized_report_aB3dE5fG7h.txt",
			"anonymized_report.txt",
			"anonymized_report_short.txt",
			"anonymized_report_waytoolongid123.txt",
		}
		for _, name := range bad {
			if _, _, err := ParseAnonymizedName(name); err == nil {
				t.Errorf("ParseAnonymizedName(%q) succeeded, want error", name)
			}
		}
	})
}
