// Package isbn converts raw book identifiers into the canonical 13-digit form.
package isbn

import "strings"

const (
	isbn10Length = 10
	isbn13Length = 13
	eanPrefix    = "978"
)

// Normalize converts raw into the canonical 13-digit ISBN when it carries a
// 9- or 10-character ISBN-10, returns 13-digit input unchanged and otherwise
// returns the stripped residue. It never fails; callers must check the length
// of the result before trusting it.
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	s := strip(raw)

	if len(s) == isbn10Length-1 && allDigits(s) {
		s += string(isbn10CheckChar(s))
	}

	if len(s) == isbn10Length {
		body := eanPrefix + s[:isbn10Length-1]
		return body + string(ean13CheckDigit(body))
	}

	// 13 digits pass through without check digit verification; any other
	// residue is reported digits only.
	return strings.TrimSuffix(s, "X")
}

// DigitCount reports how many ASCII digits s contains.
func DigitCount(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			n++
		}
	}
	return n
}

// HasValidLength reports whether s carries exactly 10 or 13 digits.
func HasValidLength(s string) bool {
	n := DigitCount(s)
	return n == isbn10Length || n == isbn13Length
}

// IsCanonical reports whether s is a 13-digit identifier.
func IsCanonical(s string) bool {
	return len(s) == isbn13Length && allDigits(s)
}

// strip keeps digits plus an X that directly follows the digits, so labels
// such as "ISBN:" or "EAN" and separators are discarded.
func strip(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case isDigit(c):
			b.WriteByte(c)
		case (c == 'X' || c == 'x') && b.Len() > 0 && nothingButSeparatorsAfter(raw[i+1:]):
			b.WriteByte('X')
		}
	}

	return b.String()
}

func nothingButSeparatorsAfter(rest string) bool {
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if isDigit(c) || c == 'X' || c == 'x' {
			return false
		}
	}
	return true
}

// isbn10CheckChar computes the ISBN-10 check character for nine digits.
func isbn10CheckChar(digits string) byte {
	sum := 0
	for i := 0; i < isbn10Length-1; i++ {
		sum += int(digits[i]-'0') * (isbn10Length - i)
	}

	check := (11 - sum%11) % 11
	if check == 10 {
		return 'X'
	}
	return byte('0' + check)
}

// ean13CheckDigit computes the EAN-13 check digit for twelve digits,
// weighting positions alternately by 1 and 3.
func ean13CheckDigit(digits string) byte {
	sum := 0
	for i := 0; i < isbn13Length-1; i++ {
		weight := 1
		if i%2 == 1 {
			weight = 3
		}
		sum += int(digits[i]-'0') * weight
	}

	return byte('0' + (10-sum%10)%10)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return len(s) > 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
