package rendering

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonathan/resume-render-api/internal/types"
)

// documentView is the data passed to every template. All text in it has already
// been escaped for the target format.
type documentView struct {
	Name     string
	Contact  []string
	Sections []sectionView
	FontSize string
	Paper    string // geometry name, e.g. letterpaper
	PageSize string // pandoc/CSS name, e.g. letter
}

type sectionView struct {
	Title   string
	Entries []entryView
}

type entryView struct {
	Heading    string
	Subheading string
	Dates      string
	Location   string
	Text       string
	Details    []string
	Bullets    []string
}

const presentLabel = "Present"

var sectionTitles = map[string]string{
	"summary":        "Summary",
	"experience":     "Experience",
	"education":      "Education",
	"projects":       "Projects",
	"skills":         "Skills",
	"certifications": "Certifications",
	"publications":   "Publications",
	"awards":         "Awards",
	"languages":      "Languages",
	"volunteer":      "Volunteer Experience",
	"references":     "References",
}

var (
	headingKeys    = []string{"position", "title", "degree", "name", "award", "language", "certification", "label"}
	subheadingKeys = []string{"company", "institution", "organization", "school", "issuer", "publisher", "area", "network"}
	textKeys       = []string{"summary", "description", "details"}
	bulletKeys     = []string{"highlights", "bullets", "achievements", "courses"}
	nameKeys       = []string{"full_name", "name"}
	dateKeys       = []string{"start_date", "end_date", "date"}
)

// viewBuilder converts a record into a documentView for one output syntax.
type viewBuilder struct {
	escape  func(string) string
	dateSep string
}

func (b viewBuilder) build(record *types.ResumeRecord, style StyleOptions) documentView {
	view := documentView{
		FontSize: style.FontSize,
		Paper:    paperName(style.Paper),
		PageSize: style.Paper,
	}

	for _, f := range record.Personal {
		if view.Name == "" && contains(nameKeys, f.Key) && strings.TrimSpace(f.Value) != "" {
			view.Name = b.escape(f.Value)
			continue
		}
		if v := strings.TrimSpace(f.Value); v != "" {
			view.Contact = append(view.Contact, b.escape(v))
		}
		for _, item := range f.Items {
			view.Contact = append(view.Contact, b.escape(item))
		}
	}

	for _, s := range record.Sections {
		section := sectionView{Title: b.escape(sectionTitle(s.Name))}
		for _, e := range s.Entries {
			if e.IsEmpty() {
				continue
			}
			section.Entries = append(section.Entries, b.entry(e))
		}
		if len(section.Entries) > 0 {
			view.Sections = append(view.Sections, section)
		}
	}

	return view
}

func (b viewBuilder) entry(e types.Entry) entryView {
	var ev entryView
	var text []string
	if t := strings.TrimSpace(e.Text); t != "" {
		text = append(text, b.escape(t))
	}

	var start, end, date string
	for _, f := range e.Fields {
		value := strings.TrimSpace(f.Value)
		switch {
		case ev.Heading == "" && value != "" && contains(headingKeys, f.Key):
			ev.Heading = b.escape(value)
		case ev.Subheading == "" && value != "" && contains(subheadingKeys, f.Key):
			ev.Subheading = b.escape(value)
		case ev.Location == "" && value != "" && f.Key == "location":
			ev.Location = b.escape(value)
		case contains(dateKeys, f.Key) && len(f.Items) == 0:
			switch f.Key {
			case "start_date":
				start = value
			case "end_date":
				end = value
			default:
				date = value
			}
		case contains(bulletKeys, f.Key) && len(f.Items) > 0:
			for _, item := range f.Items {
				ev.Bullets = append(ev.Bullets, b.escape(item))
			}
		case contains(textKeys, f.Key) && value != "":
			text = append(text, b.escape(value))
		case value != "":
			ev.Details = append(ev.Details, b.escape(fieldLabel(f.Key)+": "+value))
		case len(f.Items) > 0:
			ev.Details = append(ev.Details, b.escape(fieldLabel(f.Key)+": "+strings.Join(f.Items, ", ")))
		}
	}

	if ev.Heading == "" {
		ev.Heading, ev.Subheading = ev.Subheading, ""
	}
	ev.Dates = b.dates(start, end, date)
	ev.Text = strings.Join(text, " ")
	return ev
}

// dates formats a date range; an open-ended range ends at Present.
func (b viewBuilder) dates(start, end, date string) string {
	switch {
	case start != "":
		if end == "" {
			end = presentLabel
		}
		return b.escape(start) + b.dateSep + b.escape(end)
	case date != "":
		return b.escape(date)
	default:
		return b.escape(end)
	}
}

func sectionTitle(name string) string {
	if title, ok := sectionTitles[name]; ok {
		return title
	}
	return fieldLabel(name)
}

// fieldLabel turns a JSON key such as "gpa_score" into "Gpa score".
func fieldLabel(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "_", " "))
	if key == "" {
		return key
	}
	r, size := utf8.DecodeRuneInString(key)
	return string(unicode.ToUpper(r)) + key[size:]
}
