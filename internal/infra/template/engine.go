package template

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"regexp"
	"strings"
)

//go:embed layouts/*.html
var layouts embed.FS

const layoutName = "notification.html"

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
	urlRe   = regexp.MustCompile(`https?://\S+$`)
)

// Engine wraps composed notification bodies in the HTML email layout.
type Engine struct {
	templates *template.Template
}

// NewEngine parses the embedded layouts.
func NewEngine() (*Engine, error) {
	tmpl, err := template.ParseFS(layouts, "layouts/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing email layouts: %w", err)
	}
	return &Engine{templates: tmpl}, nil
}

// Render produces an HTML body and a plain-text fallback for a composed
// message. Blank lines in body separate paragraphs; a trailing URL becomes a
// link.
func (e *Engine) Render(subject, body string) (html, text string, err error) {
	data := map[string]any{
		"Subject":    subject,
		"Paragraphs": paragraphs(body),
		"Link":       trailingLink(body),
	}

	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, layoutName, data); err != nil {
		return "", "", fmt.Errorf("executing layout %s: %w", layoutName, err)
	}
	html = buf.String()
	return html, stripHTML(body), nil
}

func paragraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// trailingLink returns the absolute URL ending body, if any.
func trailingLink(body string) string {
	raw := urlRe.FindString(strings.TrimSpace(body))
	if raw == "" {
		return ""
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return ""
	}
	return raw
}

// stripHTML removes HTML tags and collapses whitespace to produce a plain-text version.
func stripHTML(s string) string {
	text := tagRe.ReplaceAllString(s, "")

	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&nbsp;", " ")

	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
