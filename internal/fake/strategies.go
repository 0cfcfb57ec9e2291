package fake

import (
	"fmt"
	"strings"
	"unicode"
)

var firstNames = []string{
	"John", "Jane", "Michael", "Sarah", "David", "Lisa", "Robert", "Mary",
	"James", "Patricia", "William", "Jennifer", "Richard", "Linda", "Joseph", "Elizabeth",
	"Thomas", "Barbara", "Christopher", "Susan", "Charles", "Jessica", "Daniel", "Karen",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson", "Thomas",
	"Taylor", "Moore", "Jackson", "Martin", "Lee", "Perez", "Thompson", "White",
}

var emailDomains = []string{
	"example.com", "mailbox.org", "fastpost.net", "acmemail.com", "bluewire.io",
	"northmail.net", "sampledesk.com", "plainbox.org",
}

// generatePersonName synthesizes a name with the same token shape as the
// original: one token in, one token out; two tokens in, first and last out;
// more tokens get a middle initial. Capitalization follows the original.
func generatePersonName(original string) (string, error) {
	parts := strings.Fields(original)

	firstIdx, err := secureIndex(len(firstNames))
	if err != nil {
		return "", err
	}
	lastIdx, err := secureIndex(len(lastNames))
	if err != nil {
		return "", err
	}

	var name string
	switch len(parts) {
	case 0, 1:
		name = firstNames[firstIdx]
	case 2:
		name = firstNames[firstIdx] + " " + lastNames[lastIdx]
	default:
		initialIdx, err := secureIndex(26)
		if err != nil {
			return "", err
		}
		name = fmt.Sprintf("%s %c. %s", firstNames[firstIdx], 'A'+rune(initialIdx), lastNames[lastIdx])
	}

	if original == strings.ToUpper(original) && original != strings.ToLower(original) {
		name = strings.ToUpper(name)
	} else if original == strings.ToLower(original) && original != "" {
		name = strings.ToLower(name)
	}

	return name, nil
}

// generateEmail synthesizes local@domain. The local part keeps a dot
// separator when the original local part has one.
func generateEmail(original string) (string, error) {
	hasDot := false
	if at := strings.Index(original, "@"); at > 0 {
		hasDot = strings.Contains(original[:at], ".")
	}

	first, err := randomLowercase(3, 8)
	if err != nil {
		return "", err
	}

	local := first
	if hasDot {
		second, err := randomLowercase(3, 8)
		if err != nil {
			return "", err
		}
		local = first + "." + second
	}

	domainIdx, err := secureIndex(len(emailDomains))
	if err != nil {
		return "", err
	}

	return local + "@" + emailDomains[domainIdx], nil
}

// generateSSN synthesizes ###-##-#### avoiding the reserved ranges:
// area 000/666/900+, group 00, serial 0000. Dashes are dropped when the
// original has none.
func generateSSN(original string) (string, error) {
	var area int
	for {
		a, err := secureRange(1, 900)
		if err != nil {
			return "", err
		}
		if a != 666 {
			area = a
			break
		}
	}

	group, err := secureRange(1, 100)
	if err != nil {
		return "", err
	}
	serial, err := secureRange(1, 10000)
	if err != nil {
		return "", err
	}

	ssn := fmt.Sprintf("%03d-%02d-%04d", area, group, serial)
	if !strings.Contains(original, "-") {
		ssn = strings.ReplaceAll(ssn, "-", "")
	}
	return ssn, nil
}

// generateCreditCard synthesizes a digit string of the same length as the
// original, preserving its grouping characters. When the original number
// passes a Luhn check the fake is generated with a valid check digit.
func generateCreditCard(original string) (string, error) {
	digitCount := 0
	for _, r := range original {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	if digitCount == 0 {
		return generateMasked(original)
	}

	digits := make([]byte, digitCount)
	first, err := secureRange(3, 7) // plausible issuer range
	if err != nil {
		return "", err
	}
	digits[0] = byte('0' + first)
	for i := 1; i < digitCount; i++ {
		d, err := secureIndex(10)
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d)
	}

	if passesLuhn(digitsOnly(original)) {
		digits[digitCount-1] = byte('0' + luhnCheckDigit(string(digits[:digitCount-1])))
	}

	// Re-apply the original grouping: non-digit runes pass through.
	var b strings.Builder
	b.Grow(len(original))
	next := 0
	for _, r := range original {
		if r >= '0' && r <= '9' {
			b.WriteByte(digits[next])
			next++
		} else {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// generatePhone synthesizes a phone number with the original's exact
// punctuation, constraining area and exchange codes to plausible ranges.
func generatePhone(original string) (string, error) {
	digitCount := 0
	for _, r := range original {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	if digitCount < 10 {
		return generateMasked(original)
	}

	var area int
	for {
		a, err := secureRange(200, 1000)
		if err != nil {
			return "", err
		}
		// Skip directory-assistance and toll-free blocks.
		if a != 555 && a != 800 && a != 888 && a != 877 && a != 866 {
			area = a
			break
		}
	}
	exchange, err := secureRange(200, 1000)
	if err != nil {
		return "", err
	}
	subscriber, err := secureIndex(10000)
	if err != nil {
		return "", err
	}

	digits := fmt.Sprintf("%03d%03d%04d", area, exchange, subscriber)
	for len(digits) < digitCount {
		d, err := secureIndex(10)
		if err != nil {
			return "", err
		}
		digits = string(byte('0'+d)) + digits // leading country-code digits
	}

	var b strings.Builder
	b.Grow(len(original))
	next := 0
	for _, r := range original {
		if r >= '0' && r <= '9' {
			b.WriteByte(digits[next])
			next++
		} else {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// generateMasked replaces each rune with a random rune of the same
// character class: letter for letter (case kept), digit for digit,
// everything else passes through unchanged.
func generateMasked(original string) (string, error) {
	var b strings.Builder
	b.Grow(len(original))

	for _, r := range original {
		switch {
		case unicode.IsDigit(r):
			d, err := secureIndex(10)
			if err != nil {
				return "", err
			}
			b.WriteByte(byte('0' + d))
		case unicode.IsLetter(r):
			i, err := secureIndex(26)
			if err != nil {
				return "", err
			}
			if unicode.IsUpper(r) {
				b.WriteByte(byte('A' + i))
			} else {
				b.WriteByte(byte('a' + i))
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// randomLowercase returns a random lowercase string with length in [lo, hi].
func randomLowercase(lo, hi int) (string, error) {
	length, err := secureRange(lo, hi+1)
	if err != nil {
		return "", err
	}
	b := make([]byte, length)
	for i := range b {
		c, err := secureIndex(26)
		if err != nil {
			return "", err
		}
		b[i] = byte('a' + c)
	}
	return string(b), nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// passesLuhn validates a digit string with the Luhn algorithm.
func passesLuhn(number string) bool {
	if number == "" {
		return false
	}
	sum := 0
	alternate := false
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if alternate {
			digit *= 2
			if digit > 9 {
				digit = digit/10 + digit%10
			}
		}
		sum += digit
		alternate = !alternate
	}
	return sum%10 == 0
}

// luhnCheckDigit computes the Luhn check digit for the given payload.
func luhnCheckDigit(number string) int {
	sum := 0
	alternate := true
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if alternate {
			digit *= 2
			if digit > 9 {
				digit = digit/10 + digit%10
			}
		}
		sum += digit
		alternate = !alternate
	}
	return (10 - (sum % 10)) % 10
}
