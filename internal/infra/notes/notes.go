// Package notes renders episode show notes. Notes are markdown that may embed
// raw HTML, which is how podcast hosts publish them.
package notes

import (
	"bytes"
	"html/template"

	"github.com/cockroachdb/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts show notes to page HTML.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a renderer that keeps embedded HTML.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithUnsafe(), html.WithHardWraps()),
		),
	}
}

// Render returns the HTML of source.
func (r *Renderer) Render(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", errors.Wrap(err, "failed to render show notes")
	}
	// Show notes come from the configured feed, which the site owner controls.
	return template.HTML(buf.String()), nil
}
