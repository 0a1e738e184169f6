package registry

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

var chunkSuffix = regexp.MustCompile(`_chunk\d+$`)

// FilenameForURL derives the document filename for a URL: host and path only, every
// character outside letters, digits, '-' and '.' replaced by '_', runs of '_' collapsed,
// leading and trailing '_' trimmed, and ".html" appended.
func FilenameForURL(rawURL string) string {
	base := strings.TrimSpace(rawURL)
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		base = u.Host + u.Path
	} else if i := strings.Index(base, "://"); i >= 0 {
		base = base[i+3:]
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range base {
		keep := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.'
		if !keep {
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
	}

	name := strings.Trim(b.String(), "_.")
	if name == "" {
		name = "index"
	}
	return name + ".html"
}

// DocumentName maps a chunk file name such as "site_cases_x_chunk3.txt" to the document
// it was cut from ("site_cases_x.html"). A name without a chunk suffix maps to its own stem.
func DocumentName(chunkFile string) string {
	base := filepath.Base(chunkFile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = chunkSuffix.ReplaceAllString(stem, "")
	return stem + ".html"
}
