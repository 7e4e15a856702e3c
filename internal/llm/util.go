package llm

import "strings"

// CleanJSONBlock removes markdown code block wrappers and conversational
// preambles from JSON responses. LLMs often wrap JSON in ```json ... ```
// blocks even when instructed not to.
func CleanJSONBlock(text string) string {
	text, _ = CleanCodeBlock(text, "json")

	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		if extracted := extractJSON(text); extracted != "" {
			return extracted
		}
		return text
	}

	// Skip any preamble before the first object or array.
	if idx := strings.IndexAny(text, "{["); idx >= 0 {
		if extracted := extractJSON(text[idx:]); extracted != "" {
			return extracted
		}
	}
	return text
}

// CleanCodeBlock strips a ```lang ... ``` (or bare ```) wrapper. The boolean
// reports whether the text was fenced.
func CleanCodeBlock(text, lang string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text, false
	}

	body := strings.TrimPrefix(text, "```")
	if lang != "" && strings.HasPrefix(body, lang) {
		body = strings.TrimPrefix(body, lang)
	} else if idx := strings.Index(body, "\n"); idx >= 0 {
		// Skip potential language identifier on first line
		firstLine := body[:idx]
		if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.ContainsAny(firstLine, "{[<") {
			body = body[idx+1:]
		}
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body), true
}

func extractJSON(text string) string {
	if strings.HasPrefix(text, "[") {
		return extractJSONArray(text)
	}
	return extractJSONObject(text)
}

// extractJSONObject returns the balanced object at the start of text.
func extractJSONObject(text string) string {
	return extractBalanced(text, '{', '}')
}

// extractJSONArray returns the balanced array at the start of text.
func extractJSONArray(text string) string {
	return extractBalanced(text, '[', ']')
}

// extractBalanced scans from an opening delimiter to its matching close,
// ignoring delimiters inside JSON strings. It returns "" when text does not
// start with open or is unbalanced.
func extractBalanced(text string, open, close byte) string {
	if len(text) == 0 || text[0] != open {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}
