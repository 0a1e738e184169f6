// Package format renders answers for chat clients.
package format

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghhtml "github.com/yuin/goldmark/renderer/html"
)

// Raw HTML in answers is omitted by the renderer. Citation anchors are turned back
// into markdown links first so they survive.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		ghhtml.WithHardWraps(),
	),
)

var citationAnchor = regexp.MustCompile(`<a href="([^"<>]*)">\[(\d+)\]</a>`)

var linkDestination = strings.NewReplacer(" ", "%20", "<", "%3C", ">", "%3E")

// RenderHTML converts a markdown answer to an HTML fragment.
func RenderHTML(answer string) (string, error) {
	if strings.TrimSpace(answer) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(linkCitations(answer)), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// linkCitations rewrites <a href="URL">[n]</a> as the markdown link [\[n\]](<URL>).
func linkCitations(answer string) string {
	return citationAnchor.ReplaceAllStringFunc(answer, func(m string) string {
		sub := citationAnchor.FindStringSubmatch(m)
		dest := linkDestination.Replace(html.UnescapeString(sub[1]))
		return `[\[` + sub[2] + `\]](<` + dest + `>)`
	})
}
