package assets

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"

	"git.home.luguber.info/inful/siteforge/internal/errors"
	"git.home.luguber.info/inful/siteforge/internal/pipeline"
)

var markupExtensions = map[string]bool{".html": true, ".md": true}

// Elements whose text content is significant and must not be collapsed.
var preserveText = map[string]bool{
	"pre":      true,
	"textarea": true,
	"script":   true,
	"style":    true,
}

// markup minifies HTML pages into the output tree and renders Markdown pages
// to minified HTML. A rendered page keeps its relative path with the
// extension swapped to .html.
func (t *Transforms) markup(ctx context.Context, bs *pipeline.BuildState) error {
	count := 0
	err := walkSource(ctx, bs.SourceDir, markupExtensions, func(rel string) error {
		src, err := os.ReadFile(filepath.Join(bs.SourceDir, rel))
		if err != nil {
			return errors.WorkspaceError("read page", err)
		}

		if filepath.Ext(rel) == ".md" {
			src, err = renderMarkdown(rel, src)
			if err != nil {
				return fmt.Errorf("render %s: %w", rel, err)
			}
			rel = strings.TrimSuffix(rel, ".md") + ".html"
		}

		minified, err := minifyHTML(src)
		if err != nil {
			return fmt.Errorf("minify %s: %w", rel, err)
		}
		if err := writeOutput(filepath.Join(bs.OutputDir, rel), minified); err != nil {
			return errors.WorkspaceError("write page", err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	t.logger.Debug("Markup processed", "count", count)
	return nil
}

// renderMarkdown converts a Markdown page into a complete HTML document,
// titled after the file's base name.
func renderMarkdown(rel string, src []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.New().Convert(src, &body); err != nil {
		return nil, err
	}

	title := strings.TrimSuffix(filepath.Base(rel), ".md")
	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	page.WriteString(html.EscapeString(title))
	page.WriteString("</title></head><body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body></html>\n")
	return page.Bytes(), nil
}

// minifyHTML drops comments and collapses inter-element whitespace, keeping
// the text of pre, textarea, script and style elements intact.
func minifyHTML(src []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}

	var compact func(n *html.Node, preserve bool)
	compact = func(n *html.Node, preserve bool) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			switch c.Type {
			case html.CommentNode:
				n.RemoveChild(c)
			case html.TextNode:
				if !preserve {
					c.Data = collapseSpace(c.Data)
					if c.Data == "" {
						n.RemoveChild(c)
					}
				}
			case html.ElementNode:
				compact(c, preserve || preserveText[c.Data])
			}
			c = next
		}
	}
	compact(doc, false)

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// collapseSpace reduces whitespace runs to a single space and returns the
// empty string for whitespace-only input.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ")
}
