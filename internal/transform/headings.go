package transform

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var escapeArtifacts = strings.NewReplacer("&lt;", "", "&gt;", "")

// Slugify turns heading text into an anchor id: lower-case letters and
// digits, whitespace and dashes collapsed to single `-`, other punctuation
// dropped, accents stripped.
func Slugify(text string) string {
	text = escapeArtifacts.Replace(text)
	var b strings.Builder
	sep := false
	for _, r := range norm.NFKD.String(text) {
		switch {
		case unicode.Is(unicode.Mn, r):
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r) || r == '-' || r == '_':
			sep = true
		}
	}
	return b.String()
}

// headingID returns a page-unique id for a heading. The first heading with
// a slug gets the bare slug; later ones get slug-2, slug-3 and so on.
func (t *Transformer) headingID(text string) string {
	slug := Slugify(text)
	if slug == "" {
		return ""
	}
	n, seen := t.headingIDs[slug]
	if !seen {
		t.headingIDs[slug] = 2
		return slug
	}
	t.headingIDs[slug] = n + 1
	return slug + "-" + strconv.Itoa(n)
}
