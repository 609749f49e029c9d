package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoteFileSuffix is appended to every remote dataset file name.
const RemoteFileSuffix = ".padsync.json"

const maxNameRunes = 100

// RemoteFileName derives the remote file name from a profile title. The
// result only contains ASCII letters, digits, spaces, '_' and '-', so the same
// title always maps to the same name on every device.
func RemoteFileName(title string) string {
	return SanitizeTitle(title) + RemoteFileSuffix
}

// SanitizeTitle maps a title onto the safe remote-name character set.
func SanitizeTitle(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	lastUnderscore := false
	count := 0
	for _, r := range strings.TrimSpace(folded) {
		if count >= maxNameRunes {
			break
		}
		safe := r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_')
		if !safe || r == '_' {
			if lastUnderscore {
				continue
			}
			b.WriteRune('_')
			lastUnderscore = true
			count++
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
		count++
	}

	name := strings.Trim(b.String(), " _")
	if name == "" {
		return "profile"
	}
	return name
}
