package fake

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"unicode"

	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/entity"
	"github.com/veilproject/veil/internal/logger"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	return New(config.GenerationConfig{MaxAttempts: 5}, logger.NewNop())
}

func TestGenerate(t *testing.T) {
	g := newTestGenerator(t)

	t.Run("differs from original", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			fake, err := g.Generate(entity.KindSSN, "123-45-6789", nil)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if fake == "123-45-6789" {
				t.Fatal("fake equals the original value")
			}
		}
	})

	t.Run("avoids issued values", func(t *testing.T) {
		issued := make(map[string]struct{})
		for i := 0; i < 30; i++ {
			fake, err := g.Generate(entity.KindPerson, "John Doe", issued)
			if err != nil {
				t.Fatalf("Generate failed on draw %d: %v", i, err)
			}
			if _, taken := issued[fake]; taken {
				t.Fatalf("fake %q was already issued", fake)
			}
			issued[fake] = struct{}{}
		}
	})

	t.Run("unregistered kind falls back to mask", func(t *testing.T) {
		fake, err := g.Generate(entity.Kind("IBAN"), "DE44 1234", nil)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(fake) != len("DE44 1234") || fake[4] != ' ' {
			t.Errorf("mask fallback broke the shape: %q", fake)
		}
	})

	t.Run("rejects candidate containing an issued value", func(t *testing.T) {
		g := newTestGenerator(t)
		g.Register(entity.KindPerson, func(original string) (string, error) {
			return "John Smith", nil
		})

		issued := map[string]struct{}{"John": {}}
		_, err := g.Generate(entity.KindPerson, "Bill Gates", issued)
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			t.Fatalf("Generate returned %v, want *GenerationError", err)
		}
	})

	t.Run("rejects candidate contained in an issued value", func(t *testing.T) {
		g := newTestGenerator(t)
		g.Register(entity.KindPerson, func(original string) (string, error) {
			return "Ann", nil
		})

		issued := map[string]struct{}{"Ann Lee": {}}
		_, err := g.Generate(entity.KindPerson, "Bill Gates", issued)
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			t.Fatalf("Generate returned %v, want *GenerationError", err)
		}
	})

	t.Run("attempt budget exhaustion", func(t *testing.T) {
		g := newTestGenerator(t)
		g.Register(entity.KindOther, func(original string) (string, error) {
			return original, nil // always rejected
		})

		_, err := g.Generate(entity.KindOther, "stuck", nil)
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			t.Fatalf("Generate returned %v, want *GenerationError", err)
		}
		if genErr.Attempts != 5 {
			t.Errorf("GenerationError.Attempts = %d, want 5", genErr.Attempts)
		}
	})
}

func TestGeneratePersonName(t *testing.T) {
	tests := []struct {
		name     string
		original string
		tokens   int
	}{
		{"single token", "Madonna", 1},
		{"first and last", "John Doe", 2},
		{"full name", "John Michael Doe", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := generatePersonName(tt.original)
			if err != nil {
				t.Fatalf("generatePersonName failed: %v", err)
			}
			if n := len(strings.Fields(got)); n != tt.tokens {
				t.Errorf("fake %q has %d tokens, want %d", got, n, tt.tokens)
			}
		})
	}

	t.Run("uppercase original stays uppercase", func(t *testing.T) {
		got, err := generatePersonName("JOHN DOE")
		if err != nil {
			t.Fatalf("generatePersonName failed: %v", err)
		}
		if got != strings.ToUpper(got) {
			t.Errorf("fake %q is not uppercase", got)
		}
	})
}

func TestGenerateEmail(t *testing.T) {
	emailRe := regexp.MustCompile(`^[a-z]+(\.[a-z]+)?@[a-z]+\.[a-z]+$`)

	t.Run("valid shape", func(t *testing.T) {
		got, err := generateEmail("jdoe@corp.com")
		if err != nil {
			t.Fatalf("generateEmail failed: %v", err)
		}
		if !emailRe.MatchString(got) {
			t.Errorf("fake %q is not a plausible email", got)
		}
	})

	t.Run("dotted local part preserved", func(t *testing.T) {
		got, err := generateEmail("john.doe@corp.com")
		if err != nil {
			t.Fatalf("generateEmail failed: %v", err)
		}
		local := got[:strings.Index(got, "@")]
		if !strings.Contains(local, ".") {
			t.Errorf("fake %q lost the dotted local part", got)
		}
	})
}

func TestGenerateSSN(t *testing.T) {
	ssnRe := regexp.MustCompile(`^(\d{3})-(\d{2})-(\d{4})$`)

	for i := 0; i < 50; i++ {
		got, err := generateSSN("123-45-6789")
		if err != nil {
			t.Fatalf("generateSSN failed: %v", err)
		}
		m := ssnRe.FindStringSubmatch(got)
		if m == nil {
			t.Fatalf("fake %q does not match ###-##-####", got)
		}
		if m[1] == "000" || m[1] == "666" || m[1][0] == '9' {
			t.Errorf("fake %q uses reserved area %s", got, m[1])
		}
		if m[2] == "00" || m[3] == "0000" {
			t.Errorf("fake %q uses reserved group or serial", got)
		}
	}

	t.Run("dashless original", func(t *testing.T) {
		got, err := generateSSN("123456789")
		if err != nil {
			t.Fatalf("generateSSN failed: %v", err)
		}
		if len(got) != 9 || strings.Contains(got, "-") {
			t.Errorf("fake %q should be nine bare digits", got)
		}
	})
}

func TestGenerateCreditCard(t *testing.T) {
	t.Run("luhn valid original yields luhn valid fake", func(t *testing.T) {
		const original = "4532-0151-1283-0366" // passes Luhn
		if !passesLuhn(digitsOnly(original)) {
			t.Fatal("test fixture does not pass Luhn")
		}

		for i := 0; i < 20; i++ {
			got, err := generateCreditCard(original)
			if err != nil {
				t.Fatalf("generateCreditCard failed: %v", err)
			}
			if !passesLuhn(digitsOnly(got)) {
				t.Errorf("fake %q fails the Luhn check", got)
			}
			if len(got) != len(original) {
				t.Errorf("fake %q length %d, want %d", got, len(got), len(original))
			}
			for j, r := range original {
				if (r == '-') != (got[j] == '-') {
					t.Errorf("fake %q lost the grouping of %q", got, original)
					break
				}
			}
		}
	})

	t.Run("digit count preserved", func(t *testing.T) {
		got, err := generateCreditCard("4111 1111 1111 1111")
		if err != nil {
			t.Fatalf("generateCreditCard failed: %v", err)
		}
		if len(digitsOnly(got)) != 16 {
			t.Errorf("fake %q has %d digits, want 16", got, len(digitsOnly(got)))
		}
	})
}

func TestGeneratePhone(t *testing.T) {
	tests := []struct {
		name     string
		original string
	}{
		{"dashed", "555-123-4567"},
		{"parenthesized", "(555) 123-4567"},
		{"dotted", "555.123.4567"},
		{"country code", "1-555-123-4567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := generatePhone(tt.original)
			if err != nil {
				t.Fatalf("generatePhone failed: %v", err)
			}
			if len(got) != len(tt.original) {
				t.Fatalf("fake %q length differs from %q", got, tt.original)
			}
			for i, r := range tt.original {
				fr := rune(got[i])
				if unicode.IsDigit(r) != unicode.IsDigit(fr) {
					t.Errorf("fake %q punctuation differs from %q at %d", got, tt.original, i)
					break
				}
				if !unicode.IsDigit(r) && fr != r {
					t.Errorf("fake %q changed punctuation of %q at %d", got, tt.original, i)
					break
				}
			}
		})
	}
}

func TestGenerateMasked(t *testing.T) {
	got, err := generateMasked("Ab1-Cd2!")
	if err != nil {
		t.Fatalf("generateMasked failed: %v", err)
	}
	if len(got) != len("Ab1-Cd2!") {
		t.Fatalf("mask %q changed length", got)
	}
	for i, r := range "Ab1-Cd2!" {
		m := rune(got[i])
		switch {
		case unicode.IsDigit(r) && !unicode.IsDigit(m):
			t.Errorf("position %d: digit became %q", i, m)
		case unicode.IsUpper(r) && !unicode.IsUpper(m):
			t.Errorf("position %d: upper became %q", i, m)
		case unicode.IsLower(r) && !unicode.IsLower(m):
			t.Errorf("position %d: lower became %q", i, m)
		case !unicode.IsLetter(r) && !unicode.IsDigit(r) && m != r:
			t.Errorf("position %d: separator %q became %q", i, r, m)
		}
	}
}

func TestLuhn(t *testing.T) {
	valid := []string{"4532015112830366", "79927398713"}
	for _, n := range valid {
		if !passesLuhn(n) {
			t.Errorf("passesLuhn(%q) = false, want true", n)
		}
	}

	invalid := []string{"4532015112830367", "1234567890123456", ""}
	for _, n := range invalid {
		if passesLuhn(n) {
			t.Errorf("passesLuhn(%q) = true, want false", n)
		}
	}

	t.Run("check digit closes the payload", func(t *testing.T) {
		payload := "453201511283036"
		d := luhnCheckDigit(payload)
		if !passesLuhn(payload + string(byte('0'+d))) {
			t.Errorf("luhnCheckDigit(%q) = %d does not close the number", payload, d)
		}
	})
}
