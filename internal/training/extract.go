package training

import (
	"regexp"
	"strings"
)

var possibleNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)PIX_(?:CRED|DEB)\s+\d{11,14}\s+(.+)`),
	regexp.MustCompile(`(?i)PIX\s+(?:TRANSF|RECEBIDO|ENVIADO|PAGAMENTO)\s*-?\s*(.+)`),
	regexp.MustCompile(`(?i)TED\s+(?:RECEBIDA|ENVIADA)\s*-?\s*(.+)`),
	regexp.MustCompile(`(?i)PAGAMENTO\s+(?:PIX|TED)\s*-?\s*(.+)`),
	regexp.MustCompile(`(?i)TRANSFERENCIA\s*-?\s*(.+)`),
}

// ExtractPossibleName pulls the counterparty name out of a statement
// description. When no known layout matches, the trimmed description is
// returned whole.
func ExtractPossibleName(description string) string {
	trimmed := strings.TrimSpace(description)
	for _, re := range possibleNamePatterns {
		if m := re.FindStringSubmatch(trimmed); len(m) > 1 {
			if name := strings.TrimSpace(m[1]); name != "" {
				return name
			}
		}
	}
	return trimmed
}
