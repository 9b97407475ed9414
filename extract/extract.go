// CLAUDE:SUMMARY Turns rendered page HTML into newline-separated text and parses token risk metrics out of it.
// Package extract turns a rendered detail page into an ExtractedRecord.
//
// The pipeline: page HTML → select region (simple CSS selector, body fallback)
// → visible text, one trimmed string per line → Metrics.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/pairwatch/fault"
)

// RegionResult is the selected part of a page.
type RegionResult struct {
	Text     string
	HTML     string
	Fallback bool
}

// Region parses rawHTML, selects the first node matching selector and returns
// its text. When nothing matches and fallbackWhole is set, the <body> is used
// instead; otherwise fault.ErrNotFound is returned.
func Region(rawHTML, selector string, fallbackWhole bool) (RegionResult, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return RegionResult{}, fmt.Errorf("extract: parse HTML: %w", err)
	}

	var res RegionResult
	n := querySelector(doc, selector)
	if n == nil {
		if !fallbackWhole {
			return RegionResult{}, fmt.Errorf("extract: region %q: %w", selector, fault.ErrNotFound)
		}
		n = findBody(doc)
		res.Fallback = true
	}

	res.Text = collectLines(n)
	res.HTML = renderNode(n)
	return res, nil
}

// collectLines walks a subtree and joins its trimmed text nodes with "\n".
// Script, style, noscript and template content is skipped.
func collectLines(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(text)
			}
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// renderNode serialises an HTML node subtree back to a string.
func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}
