package domain

import "regexp"

var (
	citeKeyPattern = regexp.MustCompile(`^([A-Za-z\-]+)(\d{4})(.+)$`)
	camelBoundary  = regexp.MustCompile(`([a-z])([A-Z])`)
)

// CiteKeyParts is display metadata recovered from a key shaped like
// "BrownMann2020LanguageModels".
type CiteKeyParts struct {
	Authors string
	Year    string
	Title   string
}

// ParseCiteKey splits a conventional Author-Year-Title cite key. It reports
// false for keys that do not follow the convention.
func ParseCiteKey(key string) (CiteKeyParts, bool) {
	m := citeKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return CiteKeyParts{}, false
	}
	return CiteKeyParts{
		Authors: camelBoundary.ReplaceAllString(m[1], "$1, $2"),
		Year:    m[2],
		Title:   camelBoundary.ReplaceAllString(m[3], "$1 $2"),
	}, true
}

// FillFromCiteKey completes missing listing fields from the document's cite key.
func (d *RemoteDocument) FillFromCiteKey() {
	parts, ok := ParseCiteKey(d.CiteKey)
	if !ok {
		return
	}
	if d.Title == "" {
		d.Title = parts.Title
	}
	if d.Authors == "" {
		d.Authors = parts.Authors
	}
	if d.Year == "" {
		d.Year = parts.Year
	}
}
