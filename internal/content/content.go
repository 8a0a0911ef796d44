// Package content converts comment bodies between canonical Markdown and
// the HTML carried on the wire.
package content

import (
	"bytes"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

var ugcPolicy = bluemonday.UGCPolicy()

// RenderMarkdown renders canonical Markdown to HTML for the wire body.
// The transform is deterministic: the same input always yields the same
// output.
func RenderMarkdown(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("content: render markdown: %w", err)
	}
	return buf.String(), nil
}

// MarkdownFromHTML derives Markdown from remote HTML. Used only when the
// sender attached no exact source block, so the result is lossy by
// contract. The input is sanitized first: executable and otherwise
// disallowed elements are removed outright, never escaped, so
// "<script></script><b>hello</b>" comes out as "**hello**".
func MarkdownFromHTML(html string) (string, error) {
	safe := ugcPolicy.Sanitize(html)
	out, err := htmltomarkdown.ConvertString(safe)
	if err != nil {
		return "", fmt.Errorf("content: html to markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}
