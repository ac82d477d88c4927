package profiles

import (
	"fmt"
	"strings"
)

// FormatNumber builds a PWD number BB-DD-YY-SSSS from a barangay code, a
// disability type code, a year and a per-year sequence. Missing codes become
// "00"; codes shorter than two characters are zero-padded.
func FormatNumber(barangayCode, disabilityCode string, year, seq int) string {
	return fmt.Sprintf("%s-%s-%02d-%04d", padCode(barangayCode), padCode(disabilityCode), year%100, seq)
}

func padCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "00"
	}
	if len(code) < 2 {
		return strings.Repeat("0", 2-len(code)) + code
	}
	return code
}
