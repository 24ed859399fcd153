package reconciliation

import (
	"regexp"
	"strings"
)

// taxIDPatterns are tried in order; the first capture wins.
var taxIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:PIX|TED|DOC)_(?:CRED|DEB)\s+(\d{14}|\d{11})\b`),
	regexp.MustCompile(`\b(\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2})\b`),
	regexp.MustCompile(`\b(\d{3}\.\d{3}\.\d{3}-\d{2})\b`),
	regexp.MustCompile(`\b(\d{14}|\d{11})\b`),
}

// ExtractTaxID finds a CPF or CNPJ in a statement description and returns it
// as bare digits.
func ExtractTaxID(description string) (string, bool) {
	for _, re := range taxIDPatterns {
		if m := re.FindStringSubmatch(description); len(m) > 1 {
			return NormalizeTaxID(m[1]), true
		}
	}
	return "", false
}

// NormalizeTaxID keeps digits only.
func NormalizeTaxID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
