package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_DropsScriptsKeepsLayout(t *testing.T) {
	in := `<html><head><title>Bakery Report</title><style>h1 { color: red; }</style></head>
<body><section class="hero"><h1 onclick="steal()">Flour waste</h1><script>alert(1)</script><p style="color: blue">Evidence</p></section></body></html>`

	out := Document(in, "fallback")
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<title>Bakery Report</title>")
	assert.Contains(t, out, "h1 { color: red; }")
	assert.Contains(t, out, `<section class="hero">`)
	assert.Contains(t, out, "Flour waste")
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "onclick")
}

func TestDocument_FragmentGetsFallbackTitle(t *testing.T) {
	out := Document("<h2>Landing</h2>", "Pain landing")
	assert.Contains(t, out, "<title>Pain landing</title>")
	assert.Contains(t, out, "<h2>Landing</h2>")
}

func TestPlainText(t *testing.T) {
	got := PlainText("<div><p>Interview &amp; notes</p>\n\n\n<b>bakers</b> hate waste</div>")
	assert.Equal(t, "Interview & notes\nbakers hate waste", got)
}
