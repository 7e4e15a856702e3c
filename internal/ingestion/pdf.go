package ingestion

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxPDFBytes bounds uploaded resume PDFs.
const MaxPDFBytes = 5 << 20

var pdfMagic = []byte("%PDF-")

// InputError reports unusable resume input. Its message is safe to return to clients.
type InputError struct {
	Message string
	Cause   error
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// DecodeBase64PDF decodes a base64 PDF upload. A data URL prefix is accepted.
func DecodeBase64PDF(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if i := strings.Index(encoded, ","); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxPDFBytes+3 {
		return nil, &InputError{Message: fmt.Sprintf("resume PDF exceeds %d bytes", MaxPDFBytes)}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &InputError{Message: "resume PDF is not valid base64", Cause: err}
	}
	if len(data) > MaxPDFBytes {
		return nil, &InputError{Message: fmt.Sprintf("resume PDF exceeds %d bytes", MaxPDFBytes)}
	}
	if !IsPDF(data) {
		return nil, &InputError{Message: "resume file is not a PDF"}
	}
	return data, nil
}

// ExtractPDFText returns the plain text of a PDF. The parser panics on some
// malformed files; those are reported as InputError.
func ExtractPDFText(ctx context.Context, data []byte) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !IsPDF(data) {
		return "", &InputError{Message: "resume file is not a PDF"}
	}

	defer func() {
		if r := recover(); r != nil {
			text, err = "", &InputError{Message: "resume PDF could not be read", Cause: fmt.Errorf("%v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &InputError{Message: "resume PDF could not be read", Cause: err}
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", &InputError{Message: "resume PDF could not be read", Cause: err}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", &InputError{Message: "resume PDF could not be read", Cause: err}
	}
	return buf.String(), nil
}

// ResumeText resolves the resume text from either pasted content or a
// base64-encoded PDF. Pasted content wins when both are present.
func ResumeText(ctx context.Context, content, pdfBase64 string) (string, *Metadata, error) {
	if cleaned := CleanText(content); cleaned != "" {
		return cleaned, NewMetadata(cleaned, SourceText), nil
	}
	if strings.TrimSpace(pdfBase64) == "" {
		return "", nil, &InputError{Message: "Missing 'resume_content'"}
	}

	data, err := DecodeBase64PDF(pdfBase64)
	if err != nil {
		return "", nil, err
	}
	text, err := ExtractPDFText(ctx, data)
	if err != nil {
		return "", nil, err
	}
	cleaned := CleanText(text)
	if cleaned == "" {
		return "", nil, &InputError{Message: "resume PDF contains no extractable text"}
	}
	return cleaned, NewMetadata(cleaned, SourcePDF), nil
}
