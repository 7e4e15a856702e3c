// Package types provides type definitions for structured data used throughout the resume render API.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/resume-render-api/internal/schemas"
)

// PersonalSection is the JSON key holding contact details.
const PersonalSection = "personal"

// KnownSections lists the content sections a resume may carry, in their canonical order.
// Keys outside this list (and outside PersonalSection) are ignored.
var KnownSections = []string{
	"summary",
	"experience",
	"education",
	"projects",
	"skills",
	"certifications",
	"publications",
	"awards",
	"languages",
	"volunteer",
	"references",
}

// Field is one key/value pair of a resume entry, in input order.
type Field struct {
	Key   string   `json:"key"`
	Value string   `json:"value,omitempty"`
	Items []string `json:"items,omitempty"`
}

// Entry is one element of a section. Bare string elements populate Text only.
type Entry struct {
	Text   string  `json:"text,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// IsEmpty reports whether the entry carries no text at all.
func (e Entry) IsEmpty() bool {
	if strings.TrimSpace(e.Text) != "" {
		return false
	}
	for _, f := range e.Fields {
		if strings.TrimSpace(f.Value) != "" || len(f.Items) > 0 {
			return false
		}
	}
	return true
}

// Section is a named, ordered list of entries.
type Section struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

// ResumeRecord is the caller-supplied resume. Sections keep the order in which
// they appeared in the input document.
type ResumeRecord struct {
	Personal []Field   `json:"personal,omitempty"`
	Sections []Section `json:"sections,omitempty"`
}

// HasContent reports whether at least one known section (personal included) is non-empty.
func (r *ResumeRecord) HasContent() bool {
	if r == nil {
		return false
	}
	if !(Entry{Fields: r.Personal}).IsEmpty() {
		return true
	}
	for _, s := range r.Sections {
		for _, e := range s.Entries {
			if !e.IsEmpty() {
				return true
			}
		}
	}
	return false
}

// ParseResumeRecord validates data against the resume schema and decodes it.
// Schema violations are returned as *schemas.ValidationError.
func ParseResumeRecord(data []byte) (*ResumeRecord, error) {
	if err := schemas.ValidateResume(data); err != nil {
		return nil, err
	}

	var record ResumeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &schemas.ValidationError{
			Errors: []schemas.FieldError{{Field: "(root)", Message: err.Error()}},
		}
	}
	return &record, nil
}

// UnmarshalJSON decodes a resume object while preserving key order.
func (r *ResumeRecord) UnmarshalJSON(data []byte) error {
	keys, values, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	known := make(map[string]bool, len(KnownSections))
	for _, name := range KnownSections {
		known[name] = true
	}

	r.Personal = nil
	r.Sections = nil
	for _, key := range keys {
		raw := values[key]
		switch {
		case key == PersonalSection:
			fields, err := decodeFields(raw)
			if err != nil {
				return fmt.Errorf("resume.%s: %w", key, err)
			}
			r.Personal = fields
		case known[key]:
			entries, err := decodeEntries(raw)
			if err != nil {
				return fmt.Errorf("resume.%s: %w", key, err)
			}
			r.Sections = append(r.Sections, Section{Name: key, Entries: entries})
		}
	}
	return nil
}

// decodeObject returns the keys of a JSON object in document order together with their raw values.
// Duplicate keys keep their first position and last value, matching encoding/json.
func decodeObject(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

func decodeEntries(raw json.RawMessage) ([]Entry, error) {
	if isNull(raw) {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("expected array: %w", err)
	}

	entries := make([]Entry, 0, len(elems))
	for _, elem := range elems {
		switch firstByte(elem) {
		case '{':
			fields, err := decodeFields(elem)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Fields: fields})
		case '[':
			items, err := decodeItems(elem)
			if err != nil {
				return nil, err
			}
			if len(items) > 0 {
				entries = append(entries, Entry{Text: strings.Join(items, ", ")})
			}
		default:
			if text, ok := scalarText(elem); ok && text != "" {
				entries = append(entries, Entry{Text: text})
			}
		}
	}
	return entries, nil
}

// decodeFields flattens an object into ordered fields. Nested objects become
// "a: b" text; arrays become Items. Empty values are dropped.
func decodeFields(raw json.RawMessage) ([]Field, error) {
	if isNull(raw) {
		return nil, nil
	}
	keys, values, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	fields := make([]Field, 0, len(keys))
	for _, key := range keys {
		val := values[key]
		switch firstByte(val) {
		case '[':
			items, err := decodeItems(val)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			if len(items) > 0 {
				fields = append(fields, Field{Key: key, Items: items})
			}
		case '{':
			text, err := flattenObject(val)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			if text != "" {
				fields = append(fields, Field{Key: key, Value: text})
			}
		default:
			if text, ok := scalarText(val); ok && text != "" {
				fields = append(fields, Field{Key: key, Value: text})
			}
		}
	}
	return fields, nil
}

// decodeItems converts an array to item texts. Nested arrays join into a
// single comma-separated item.
func decodeItems(raw json.RawMessage) ([]string, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	items := make([]string, 0, len(elems))
	for _, elem := range elems {
		var text string
		switch firstByte(elem) {
		case '{':
			flat, err := flattenObject(elem)
			if err != nil {
				return nil, err
			}
			text = flat
		case '[':
			nested, err := decodeItems(elem)
			if err != nil {
				return nil, err
			}
			text = strings.Join(nested, ", ")
		default:
			text, _ = scalarText(elem)
		}
		if text != "" {
			items = append(items, text)
		}
	}
	return items, nil
}

// flattenObject joins the scalar values of an object in key order, e.g.
// {"network": "GitHub", "username": "jdoe"} -> "GitHub: jdoe".
func flattenObject(raw json.RawMessage) (string, error) {
	keys, values, err := decodeObject(raw)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if text, ok := scalarText(values[key]); ok && text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, ": "), nil
}

// scalarText converts a JSON string, number or boolean to text.
func scalarText(raw json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "yes", true
		}
		return "no", true
	default:
		return "", false
	}
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
