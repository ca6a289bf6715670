package ingest

import "net/url"

// CleanText decodes URL encodings and normalises underscores to spaces.
// Corpus exports often carry percent-encoded titles and snake_cased fields.
func CleanText(value string) string {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		decoded = value
	}
	out := make([]rune, 0, len(decoded))
	for _, r := range decoded {
		if r == '_' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}

func cleanDocument(d Document) Document {
	d.Title = CleanText(d.Title)
	d.Context = CleanText(d.Context)
	d.Question = CleanText(d.Question)
	d.Answer = CleanText(d.Answer)
	return d
}
