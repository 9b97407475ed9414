// CLAUDE:SUMMARY Archives the exact page region each record was extracted from as a markdown file with YAML frontmatter.
// Package snapshot keeps, next to each stored record, the page region it
// was parsed from. Files are markdown with YAML frontmatter, written
// atomically (write .tmp then rename) so readers never see partial files.
//
// The region HTML is sanitised with bluemonday before conversion; when the
// conversion yields nothing the extracted plain text is kept instead.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"
)

// Meta describes where a snapshot came from.
type Meta struct {
	ID         string    `yaml:"id"`
	URL        string    `yaml:"url"`
	Selector   string    `yaml:"selector"`
	Fallback   bool      `yaml:"fallback"`
	CapturedAt time.Time `yaml:"captured_at"`
}

// Writer writes snapshots into one directory.
type Writer struct {
	dir    string
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewWriter creates a Writer targeting dir. The directory is created on
// first write.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:    dir,
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Write stores <dir>/<meta.ID>.md and returns its path.
func (w *Writer) Write(ctx context.Context, meta Meta, html, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if meta.ID == "" || strings.ContainsAny(meta.ID, `/\`) {
		return "", fmt.Errorf("snapshot: invalid id %q", meta.ID)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: mkdir %s: %w", w.dir, err)
	}
	if meta.CapturedAt.IsZero() {
		meta.CapturedAt = time.Now()
	}
	meta.CapturedAt = meta.CapturedAt.UTC()

	front, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("snapshot: frontmatter: %w", err)
	}

	content := "---\n" + string(front) + "---\n\n" + w.Markdown(html, meta.URL, text) + "\n"

	target := filepath.Join(w.dir, meta.ID+".md")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("snapshot: rename: %w", err)
	}
	return target, nil
}

// Markdown converts sanitised region HTML to markdown, falling back to the
// plain text when the HTML is empty or converts to nothing.
func (w *Writer) Markdown(html, pageURL, fallback string) string {
	if strings.TrimSpace(html) == "" {
		return fallback
	}
	clean := w.policy.Sanitize(html)
	md, err := w.conv.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil || strings.TrimSpace(md) == "" {
		return fallback
	}
	return strings.TrimSpace(md)
}
