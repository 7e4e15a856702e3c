// Package ingestion turns user-supplied resume input (pasted text, files or
// base64-encoded PDFs) into clean plain text for the assistant.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	spaceRun      = regexp.MustCompile(`[ \t\f\v]+`)
	blankLineRuns = regexp.MustCompile(`\n\n\n+`)
)

// CleanText cleans and normalizes text content while preserving structure
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	// 1. Normalize line endings (CRLF → LF)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	// 2. Split into lines for processing
	lines := strings.Split(content, "\n")

	// 3. Process each line
	cleanedLines := make([]string, 0, len(lines))
	for _, line := range lines {
		cleanedLines = append(cleanedLines, cleanLine(line))
	}

	// 4. Join lines and drop excessive blank lines (max 2 consecutive)
	result := removeExcessiveBlankLines(strings.Join(cleanedLines, "\n"))

	return strings.TrimSpace(result)
}

// cleanLine cleans a single line while preserving structure
func cleanLine(line string) string {
	line = strings.Map(func(r rune) rune {
		if r == '\t' || r >= 0x20 && r != 0x7f {
			return r
		}
		return -1
	}, line)
	line = strings.TrimRight(line, " \t")

	if strings.TrimSpace(line) == "" {
		return ""
	}

	trimmed := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(trimmed, "#") {
		// Keep markdown headings as-is, normalize leading spaces to 0
		return trimmed
	}

	// Preserve bullet lists with their indentation
	if isBulletLine(line) {
		indent := len(line) - len(trimmed)
		if indent > 0 {
			return strings.Repeat(" ", indent) + trimmed
		}
		return trimmed
	}

	// For regular lines, normalize multiple spaces to single space
	// but preserve intentional indentation at start of line
	leadingSpace := len(line) - len(trimmed)
	content := spaceRun.ReplaceAllString(strings.TrimSpace(line), " ")
	if leadingSpace > 0 {
		return strings.Repeat(" ", leadingSpace) + content
	}
	return content
}

// isBulletLine checks if a line is a bullet list item
func isBulletLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") ||
		strings.HasPrefix(trimmed, "• ") || strings.HasPrefix(trimmed, "· ")
}

// removeExcessiveBlankLines reduces consecutive blank lines to max 2
func removeExcessiveBlankLines(content string) string {
	return blankLineRuns.ReplaceAllString(content, "\n\n")
}

// IngestFromFile reads a resume file (.pdf or plain text), cleans it, and
// returns the cleaned text with metadata.
func IngestFromFile(ctx context.Context, path string) (string, *Metadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("file not found: %w", err)
		}
		return "", nil, fmt.Errorf("failed to read file: %w", err)
	}

	text := string(content)
	source := SourceText
	if strings.EqualFold(filepath.Ext(path), ".pdf") || IsPDF(content) {
		text, err = ExtractPDFText(ctx, content)
		if err != nil {
			return "", nil, err
		}
		source = SourcePDF
	}

	cleanedText := CleanText(text)
	if cleanedText == "" {
		return "", nil, &InputError{Message: "resume file contains no text"}
	}
	return cleanedText, NewMetadata(cleanedText, source), nil
}
