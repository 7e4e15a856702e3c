package typeset

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// pageCountTimeout bounds each external page-count helper.
const pageCountTimeout = 5 * time.Second

// CountPDFPages counts the pages of a PDF. It parses data in-process first and
// falls back to pdfinfo, then ghostscript, on the file at path.
func CountPDFPages(ctx context.Context, data []byte, path string) (int, error) {
	if count, err := countPagesInProcess(data); err == nil {
		return count, nil
	}

	if path != "" {
		if count, err := countPagesWithPdfinfo(ctx, path); err == nil {
			return count, nil
		}
		if count, err := countPagesWithGhostscript(ctx, path); err == nil {
			return count, nil
		}
	}

	return 0, &Error{
		Message: "failed to count PDF pages: document unreadable and neither pdfinfo nor ghostscript available",
	}
}

// countPagesInProcess reads the page tree with ledongthuc/pdf.
func countPagesInProcess(data []byte) (count int, err error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty document")
	}
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	count = reader.NumPage()
	if count <= 0 {
		return 0, fmt.Errorf("no pages found")
	}
	return count, nil
}

// countPagesWithPdfinfo uses pdfinfo to count PDF pages
func countPagesWithPdfinfo(ctx context.Context, pdfPath string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, pageCountTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, "pdfinfo", pdfPath).Output()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo command failed: %w", err)
	}

	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "Pages:") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				if count, err := strconv.Atoi(parts[1]); err == nil {
					return count, nil
				}
			}
		}
	}

	return 0, fmt.Errorf("could not parse page count from pdfinfo output")
}

// countPagesWithGhostscript uses ghostscript to count PDF pages
func countPagesWithGhostscript(ctx context.Context, pdfPath string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, pageCountTimeout)
	defer cancel()

	// The path is passed as a PostScript string; parentheses and backslashes must be escaped.
	escaped := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(pdfPath)
	script := fmt.Sprintf("(%s) (r) file runpdfbegin pdfpagecount = quit", escaped)

	output, err := exec.CommandContext(ctx, "gs", "-q", "-dNODISPLAY", "-dSAFER", "--permit-file-read="+pdfPath, "-c", script).Output()
	if err != nil {
		return 0, fmt.Errorf("ghostscript command failed: %w", err)
	}

	outputStr := strings.TrimSpace(string(output))
	count, err := strconv.Atoi(outputStr)
	if err != nil {
		return 0, fmt.Errorf("could not parse page count from ghostscript output: %s", outputStr)
	}

	return count, nil
}
