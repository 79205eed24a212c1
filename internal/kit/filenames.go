package kit

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Filenames derives the export filenames for a kit from the candidate name,
// company, and generation date. The same inputs always produce the same
// names, and the date keeps kits for different days apart.
func Filenames(displayName, company string, generatedAt time.Time) (resume, coverLetter string) {
	name := sanitizeFilePart(displayName)
	comp := sanitizeFilePart(company)
	date := generatedAt.Format("2006-01-02")
	resume = fmt.Sprintf("%s_%s_Resume_%s.pdf", name, comp, date)
	coverLetter = fmt.Sprintf("%s_%s_Cover_Letter_%s.pdf", name, comp, date)
	return resume, coverLetter
}

// sanitizeFilePart maps arbitrary text to a filesystem-safe token: runs of
// anything but letters and digits collapse to single underscores.
func sanitizeFilePart(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "Unknown"
	}
	return out
}
