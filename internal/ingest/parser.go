package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"ragbot/internal/contextutil"
)

// skippedElements never contribute text.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Nav:      true,
	atom.Footer:   true,
}

// blockElements end the current line of text.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true, atom.Br: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Figcaption: true, atom.Figure: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Ol: true, atom.P: true,
	atom.Pre: true, atom.Section: true, atom.Table: true, atom.Td: true, atom.Th: true, atom.Tr: true,
	atom.Ul: true,
}

// ExtractText returns the readable text of an HTML page. Content is taken from <main>,
// else <article>, else <body>; scripts, styles and navigation are dropped. Block
// elements start new lines, and blank lines are removed.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	root := findElement(doc, atom.Main)
	if root == nil {
		root = findElement(doc, atom.Article)
	}
	if root == nil {
		root = findElement(doc, atom.Body)
	}
	if root == nil {
		return "", nil
	}

	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			// Line breaks inside text are layout, not structure.
			sb.WriteString(strings.Map(func(r rune) rune {
				if unicode.IsSpace(r) {
					return ' '
				}
				return r
			}, n.Data))
			return
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				return
			}
		}

		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
		if block {
			sb.WriteByte('\n')
		}
	}
	traverse(root)

	lines := strings.Split(sb.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// ParseStats summarises a ParseDir run.
type ParseStats struct {
	Parsed int `json:"parsed"`
	Empty  int `json:"empty"`
	Failed int `json:"failed"`
}

// ParseDir extracts the text of every .html file in dir into a .txt file next to it.
// Pages without text are counted as empty and produce no .txt file.
func ParseDir(ctx context.Context, dir string) (ParseStats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	var stats ParseStats

	pages, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return stats, fmt.Errorf("failed to list html files: %w", err)
	}

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		text, err := extractFile(page)
		if err != nil {
			stats.Failed++
			logger.WarnContext(ctx, "failed to parse page", "path", page, "error", err)
			continue
		}

		txtPath := strings.TrimSuffix(page, filepath.Ext(page)) + ".txt"
		if text == "" {
			stats.Empty++
			logger.WarnContext(ctx, "page has no text", "path", page)
			_ = os.Remove(txtPath)
			continue
		}
		if err := os.WriteFile(txtPath, []byte(text), 0644); err != nil {
			return stats, fmt.Errorf("failed to write %s: %w", txtPath, err)
		}
		stats.Parsed++
		logger.DebugContext(ctx, "parsed page", "page", filepath.Base(page), "chars", len(text))
	}

	logger.InfoContext(ctx, "parsing completed", "parsed", stats.Parsed, "empty", stats.Empty, "failed", stats.Failed)
	return stats, nil
}

func extractFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()
	return ExtractText(f)
}
