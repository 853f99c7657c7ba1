// Package render turns model-generated HTML into documents safe to serve and
// reduces uploaded artifacts to plain text.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	documentPolicy = newDocumentPolicy()
	textPolicy     = bluemonday.StrictPolicy()
)

func newDocumentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("section", "header", "footer", "main", "nav", "article", "aside", "figure", "figcaption", "button")
	p.AllowAttrs("class", "id").Globally()
	p.AllowStyling()
	p.AllowAttrs("style").Globally()
	return p
}

var (
	bodyRe  = regexp.MustCompile(`(?is)<body[^>]*>(.*)</body>`)
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	styleRe = regexp.MustCompile(`(?is)<style[^>]*>(.*?)</style>`)
	spaceRe = regexp.MustCompile(`[ \t]*\n[ \t\n]*`)
)

// Document sanitizes generated HTML and wraps it into a standalone page.
// Scripts and event handlers are dropped; inline styles and <style> blocks
// from the head are kept.
func Document(generated, fallbackTitle string) string {
	src := strings.TrimSpace(generated)

	title := fallbackTitle
	if m := titleRe.FindStringSubmatch(src); m != nil {
		if t := strings.TrimSpace(textPolicy.Sanitize(m[1])); t != "" {
			title = html.UnescapeString(t)
		}
	}
	var styles []string
	for _, m := range styleRe.FindAllStringSubmatch(src, -1) {
		css := strings.TrimSpace(m[1])
		if css != "" && !strings.Contains(strings.ToLower(css), "</style") {
			styles = append(styles, css)
		}
	}

	body := src
	if m := bodyRe.FindStringSubmatch(src); m != nil {
		body = m[1]
	}
	body = styleRe.ReplaceAllString(body, "")
	body = documentPolicy.Sanitize(body)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	for _, css := range styles {
		fmt.Fprintf(&b, "<style>\n%s\n</style>\n", css)
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}

// PlainText strips every tag from s and collapses blank runs.
func PlainText(s string) string {
	text := html.UnescapeString(textPolicy.Sanitize(s))
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, "\n"))
}
