package guarddetect

import "regexp"

// EntityType names a kind of personally identifiable information.
type EntityType string

const (
	EntityEmail      EntityType = "email"
	EntityPhone      EntityType = "phone_number"
	EntitySSN        EntityType = "ssn"
	EntityCreditCard EntityType = "credit_card"
	EntityCASIN      EntityType = "ca_sin"
	EntityURL        EntityType = "url"
)

// AllEntityTypes lists every recognised PII entity type, in a stable order.
var AllEntityTypes = []EntityType{
	EntityEmail, EntityPhone, EntitySSN, EntityCreditCard, EntityCASIN, EntityURL,
}

// IsKnownEntityType reports whether t is one of AllEntityTypes.
func IsKnownEntityType(t EntityType) bool {
	for _, known := range AllEntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

var piiPatterns = map[EntityType]*regexp.Regexp{
	EntityEmail:      regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`),
	EntityPhone:      regexp.MustCompile(`\+?\d{1,3}[\s.\-]?\(?\d{2,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}`),
	EntitySSN:        regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	EntityCreditCard: regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
	EntityCASIN:      regexp.MustCompile(`\b\d{3}[\s-]?\d{3}[\s-]?\d{3}\b`),
	EntityURL:        regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.\-]*://[^\s"'<>]+`),
}

// PIIHit is one detected entity within scanned text.
type PIIHit struct {
	Type  EntityType
	Start int
	End   int
	Text  string
	Score float64
}

// ScanEntity runs the pattern for entityType against text, returning a hit
// per match. credit_card and ca_sin matches must also pass the Luhn check
// and are dropped otherwise, since a digit-run matching the regex but
// failing Luhn is common noise (phone numbers, invoice numbers) rather than
// a real number. ssn matches are not Luhn-checked.
func ScanEntity(entityType EntityType, text string) []PIIHit {
	re, ok := piiPatterns[entityType]
	if !ok {
		return nil
	}
	locs := re.FindAllStringIndex(text, -1)
	hits := make([]PIIHit, 0, len(locs))
	for _, loc := range locs {
		match := text[loc[0]:loc[1]]
		score := 0.9
		switch entityType {
		case EntityCreditCard:
			if !luhnValid(match) {
				continue
			}
			score = 0.97
		case EntityCASIN:
			if !luhnValid(match) {
				continue
			}
			score = 0.9
		case EntitySSN:
			// Luhn does not apply to SSNs; the regex shape carries the
			// confidence here.
			score = 0.92
		}
		hits = append(hits, PIIHit{Type: entityType, Start: loc[0], End: loc[1], Text: match, Score: score})
	}
	return hits
}

// luhnValid reports whether the digits in s (ignoring separators) pass the
// Luhn checksum.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		digits = append(digits, int(r-'0'))
	}
	if len(digits) < 8 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
