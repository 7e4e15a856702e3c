package assistant

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// droppedElements are removed together with their content.
const droppedElements = "script, style, iframe, frame, frameset, object, embed, applet, link, meta, base, form, textarea, select, noscript, template, svg, math, img, video, audio, canvas, title, head"

// allowedTags covers the markup of the analysis format. Other elements are
// replaced by their children.
var allowedTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true,
	"p": true, "br": true, "hr": true, "div": true, "span": true, "section": true,
	"ul": true, "ol": true, "li": true,
	"strong": true, "em": true, "b": true, "i": true, "code": true, "blockquote": true,
	"table": true, "thead": true, "tbody": true, "tr": true, "th": true, "td": true,
}

// allowedAttributes are kept on allowed elements; style carries score colors.
var allowedAttributes = map[string]bool{"class": true, "style": true}

// SanitizeHTML reduces model-generated HTML to the analysis format's tags and
// the class and style attributes so the extension can display it.
func SanitizeHTML(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + fragment + "</body>"))
	if err != nil {
		return "", fmt.Errorf("failed to parse analysis html: %w", err)
	}

	body := doc.Find("body")
	body.Find(droppedElements).Remove()

	body.Find("*").Each(func(_ int, s *goquery.Selection) {
		if !allowedTags[goquery.NodeName(s)] {
			s.ReplaceWithSelection(s.Contents())
			return
		}
		var drop []string
		for _, node := range s.Nodes {
			for _, attr := range node.Attr {
				key := strings.ToLower(attr.Key)
				if !allowedAttributes[key] || (key == "style" && unsafeStyle(attr.Val)) {
					drop = append(drop, attr.Key)
				}
			}
		}
		for _, key := range drop {
			s.RemoveAttr(key)
		}
	})

	out, err := body.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render analysis html: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func unsafeStyle(value string) bool {
	v := strings.ToLower(strings.Join(strings.Fields(value), ""))
	return strings.Contains(v, "url(") || strings.Contains(v, "expression(") || strings.Contains(v, "javascript:")
}

// htmlText returns the text content of an HTML fragment, or the fragment
// itself when it cannot be parsed.
func htmlText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
