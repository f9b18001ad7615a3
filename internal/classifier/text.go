package classifier

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics strips combining marks so "sérum" matches a "serum" keyword.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// StripHTML extracts the text content of an HTML fragment. Invalid markup
// degrades to the raw input rather than erroring; product descriptions are
// frequently malformed.
func StripHTML(html string) string {
	if !strings.ContainsAny(html, "<>") {
		return html
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return doc.Text()
}

// NormalizeText lowercases, folds diacritics, and collapses whitespace.
func NormalizeText(text string) string {
	folded, _, err := transform.String(foldDiacritics, text)
	if err == nil {
		text = folded
	}
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// buildHaystack produces the normalized searchable text for a product:
// title, vendor, and HTML-stripped description.
func buildHaystack(title, vendor, bodyHTML string) string {
	return NormalizeText(title + " " + vendor + " " + StripHTML(bodyHTML))
}

// tokenize splits normalized text into alphanumeric tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(NormalizeText(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
