package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Source values for Metadata.
const (
	SourceText = "text"
	SourcePDF  = "pdf"
)

// Metadata describes ingested resume text without revealing it, so it can be
// logged when private data logging is off.
type Metadata struct {
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"` // RFC3339 format
	Hash      string `json:"hash"`      // SHA256 hex digest
	Chars     int    `json:"chars"`
	Lines     int    `json:"lines"`
}

// NewMetadata creates a new Metadata instance with current timestamp
func NewMetadata(content string, source string) *Metadata {
	lines := 0
	if content != "" {
		lines = 1
		for _, r := range content {
			if r == '\n' {
				lines++
			}
		}
	}
	return &Metadata{
		Source:    source,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Hash:      computeHash(content),
		Chars:     len([]rune(content)),
		Lines:     lines,
	}
}

// computeHash computes SHA256 hash of content and returns hex string
func computeHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// LogAttrs returns the metadata as slog key/value pairs.
func (m *Metadata) LogAttrs() []any {
	return []any{"source", m.Source, "hash", m.Hash[:12], "chars", m.Chars, "lines", m.Lines}
}

// ToJSON marshals Metadata to pretty-printed JSON
func (m *Metadata) ToJSON() ([]byte, error) {
	jsonBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata to JSON: %w", err)
	}
	return jsonBytes, nil
}
