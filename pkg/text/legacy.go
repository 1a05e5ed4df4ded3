package text

import (
	"strings"
)

// Legacy messages use a section sign (or ampersand) followed by a single
// code character: 0-9 and a-f select a color, k-o toggle formatting, and r
// resets everything.
const (
	sectionSign = '§'
	altSign     = '&'
)

var legacyColors = map[rune]string{
	'0': "#000000", // black
	'1': "#0000AA", // dark blue
	'2': "#00AA00", // dark green
	'3': "#00AAAA", // dark aqua
	'4': "#AA0000", // dark red
	'5': "#AA00AA", // dark purple
	'6': "#FFAA00", // gold
	'7': "#AAAAAA", // gray
	'8': "#555555", // dark gray
	'9': "#5555FF", // blue
	'a': "#55FF55", // green
	'b': "#55FFFF", // aqua
	'c': "#FF5555", // red
	'd': "#FF55FF", // light purple
	'e': "#FFFF55", // yellow
	'f': "#FFFFFF", // white
}

// span is a run of text sharing one style.
type span struct {
	text      string
	color     string // hex, empty for default
	bold      bool
	italic    bool
	underline bool
	strike    bool
}

// parseLegacy splits a legacy message into styled spans. A color code resets
// active formatting, matching the legacy chat semantics.
func parseLegacy(msg string) []span {
	var (
		spans   []span
		current span
		buf     strings.Builder
	)

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		current.text = buf.String()
		spans = append(spans, current)
		buf.Reset()
	}

	runes := []rune(msg)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == sectionSign || r == altSign) && i+1 < len(runes) {
			code := runes[i+1]
			if code >= 'A' && code <= 'Z' {
				code += 'a' - 'A'
			}

			if color, ok := legacyColors[code]; ok {
				flush()
				current = span{color: color}
				i++
				continue
			}

			switch code {
			case 'l':
				flush()
				current.bold = true
				i++
				continue
			case 'o':
				flush()
				current.italic = true
				i++
				continue
			case 'n':
				flush()
				current.underline = true
				i++
				continue
			case 'm':
				flush()
				current.strike = true
				i++
				continue
			case 'k':
				// Obfuscated text has no terminal equivalent; drop the code.
				i++
				continue
			case 'r':
				flush()
				current = span{}
				i++
				continue
			}
		}
		buf.WriteRune(r)
	}
	flush()
	return spans
}
