package assets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/siteforge/internal/errors"
	"git.home.luguber.info/inful/siteforge/internal/pipeline"
)

var scriptsExtensions = map[string]bool{".js": true, ".mjs": true}

// scripts strips comments and blank lines from scripts into the output tree.
func (t *Transforms) scripts(ctx context.Context, bs *pipeline.BuildState) error {
	count := 0
	err := walkSource(ctx, bs.SourceDir, scriptsExtensions, func(rel string) error {
		src, err := os.ReadFile(filepath.Join(bs.SourceDir, rel))
		if err != nil {
			return errors.WorkspaceError("read script", err)
		}
		if err := writeOutput(filepath.Join(bs.OutputDir, rel), stripScriptComments(src)); err != nil {
			return errors.WorkspaceError("write script", err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	t.logger.Debug("Scripts processed", "count", count)
	return nil
}

// stripScriptComments removes line and block comments while leaving string
// and template literals intact, then drops lines that became blank.
func stripScriptComments(src []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(src))

	var inString byte // ', " or ` while inside a literal
	inLine, inBlock := false, false

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inLine:
			if c == '\n' {
				inLine = false
				out.WriteByte(c)
			}
		case inBlock:
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				inBlock = false
				i++
			}
		case inString != 0:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				out.WriteByte(src[i])
			} else if c == inString {
				inString = 0
			}
		case c == '\'' || c == '"' || c == '`':
			inString = c
			out.WriteByte(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			inLine = true
			i++
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			inBlock = true
			i++
		default:
			out.WriteByte(c)
		}
	}

	return dropBlankLines(out.Bytes())
}

func dropBlankLines(src []byte) []byte {
	lines := bytes.Split(src, []byte("\n"))
	kept := lines[:0]
	for _, line := range lines {
		if len(bytes.TrimSpace(line)) > 0 {
			kept = append(kept, line)
		}
	}
	return bytes.Join(kept, []byte("\n"))
}
