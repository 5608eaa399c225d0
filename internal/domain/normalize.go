package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText prepares text for storage and comparison:
//   - trims leading/trailing whitespace
//   - converts to lowercase
//   - compresses runs of whitespace into one space
//
// Diacritics, hyphens, and apostrophes are preserved.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// NormalizeEmail trims and lowercases an address. Uniqueness of users is
// enforced on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaxSlugLength bounds the slug part derived from a name.
const MaxSlugLength = 60

// Slugify derives a URL-safe slug: diacritics are stripped, letters and
// digits kept in lowercase, everything else collapsed into single hyphens.
// A name without any letters or digits yields "room".
func Slugify(name string) string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(stripped) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
		if b.Len() >= MaxSlugLength {
			break
		}
	}
	if b.Len() == 0 {
		return "room"
	}
	return b.String()
}
