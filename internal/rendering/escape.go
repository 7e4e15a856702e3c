package rendering

import (
	"strings"
	"unicode"
)

// EscapeLaTeX escapes special LaTeX characters in text
// Special characters: \ { } $ & % # ^ _ ~ < > |
// Newlines collapse to spaces and other control characters are dropped so user
// text can never end a paragraph or smuggle in a command.
func EscapeLaTeX(text string) string {
	if text == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(text) * 2) // Pre-allocate space for potential escaping

	for _, r := range text {
		switch r {
		case '\\':
			result.WriteString(`\textbackslash{}`)
		case '{':
			result.WriteString(`\{`)
		case '}':
			result.WriteString(`\}`)
		case '$':
			result.WriteString(`\$`)
		case '&':
			result.WriteString(`\&`)
		case '%':
			result.WriteString(`\%`)
		case '#':
			result.WriteString(`\#`)
		case '^':
			result.WriteString(`\textasciicircum{}`)
		case '_':
			result.WriteString(`\_`)
		case '~':
			result.WriteString(`\textasciitilde{}`)
		case '<':
			result.WriteString(`\textless{}`)
		case '>':
			result.WriteString(`\textgreater{}`)
		case '|':
			result.WriteString(`\textbar{}`)
		case '\n', '\r', '\t':
			result.WriteByte(' ')
		default:
			if unicode.IsControl(r) {
				continue
			}
			result.WriteRune(r)
		}
	}

	return result.String()
}

// EscapeMarkdown backslash-escapes every ASCII punctuation character so pandoc
// reads user text literally. Pandoc's all_symbols_escapable extension makes any
// escaped punctuation render as itself.
func EscapeMarkdown(text string) string {
	if text == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(text) * 2)

	for _, r := range text {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			result.WriteByte(' ')
		case unicode.IsControl(r):
			continue
		case r < unicode.MaxASCII && (unicode.IsPunct(r) || unicode.IsSymbol(r)):
			result.WriteByte('\\')
			result.WriteRune(r)
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// plainText normalizes whitespace and drops control characters. It is used for
// formats whose template engine escapes on its own (html/template).
func plainText(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, text)
}
