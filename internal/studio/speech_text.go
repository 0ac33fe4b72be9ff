package studio

import (
	"regexp"
	"strings"
	"unicode"
)

// markupStrips are applied in order; code goes first so link syntax inside
// it is dropped with it.
var markupStrips = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("(?s)```.*?```"), " "},
	{regexp.MustCompile("`[^`]*`"), " "},
	{regexp.MustCompile(`\[(.*?)\]\((.*?)\)`), "$1"},
	{regexp.MustCompile(`https?://\S+`), " "},
}

var markupSymbols = strings.NewReplacer(
	"*", " ", "_", " ", "\\", " ", "/", " ", "|", " ",
	"#", " ", "~", " ", "<", " ", ">", " ",
)

// speakable turns chat-style text into something a voice can read: markdown,
// code, links and emoji are removed and whitespace collapsed.
func speakable(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, s := range markupStrips {
		raw = s.re.ReplaceAllString(raw, s.repl)
	}
	raw = markupSymbols.Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	space := true
	gap := func() {
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
		case unicode.IsSpace(r):
			gap()
		case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
		case strings.ContainsRune(".,!?:;'\"-()", r):
			b.WriteRune(r)
			space = false
		case unicode.IsPunct(r):
			gap()
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return strings.TrimSpace(b.String())
}
