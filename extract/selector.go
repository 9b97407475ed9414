package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// A selector is a descendant chain of compound selectors, e.g.
// "div.g-table a.css-5uoabp" is [div.g-table, a.css-5uoabp]. Each compound
// accepts a tag (or "*"), any number of .class, one #id and one [attr] or
// [attr=value]. Other combinators and pseudo-classes are not supported.
type selector []compound

type compound struct {
	tag     string
	id      string
	classes []string
	attr    string
	val     string
	hasVal  bool
}

func compileSelector(s string) selector {
	var sel selector
	for _, part := range strings.Fields(s) {
		sel = append(sel, compileCompound(part))
	}
	return sel
}

func compileCompound(s string) compound {
	var c compound
	if open := strings.IndexByte(s, '['); open >= 0 {
		inner := strings.TrimSuffix(s[open+1:], "]")
		s = s[:open]
		key, val, ok := strings.Cut(inner, "=")
		c.attr = strings.ToLower(strings.TrimSpace(key))
		if ok {
			c.val = strings.Trim(strings.TrimSpace(val), `"'`)
			c.hasVal = true
		}
	}

	// Split "tag#id.c1.c2" on '.' and '#' while remembering the marker.
	start, marker := 0, byte(0)
	flush := func(end int) {
		tok := s[start:end]
		switch marker {
		case 0:
			c.tag = strings.ToLower(tok)
		case '.':
			if tok != "" {
				c.classes = append(c.classes, tok)
			}
		case '#':
			c.id = tok
		}
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '.' || s[i] == '#' {
			flush(i)
			start, marker = i+1, s[i]
		}
	}
	flush(len(s))
	if c.tag == "*" {
		c.tag = ""
	}
	return c
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" {
		if v, ok := attr(n, "id"); !ok || v != c.id {
			return false
		}
	}
	if len(c.classes) > 0 {
		v, _ := attr(n, "class")
		have := strings.Fields(v)
	next:
		for _, want := range c.classes {
			for _, h := range have {
				if h == want {
					continue next
				}
			}
			return false
		}
	}
	if c.attr != "" {
		v, ok := attr(n, c.attr)
		if !ok || (c.hasVal && v != c.val) {
			return false
		}
	}
	return true
}

// matches reports whether n satisfies the last compound and its ancestors
// satisfy the preceding ones, in order.
func (s selector) matches(n *html.Node) bool {
	if len(s) == 0 || !s[len(s)-1].matches(n) {
		return false
	}
	i := len(s) - 2
	for p := n.Parent; p != nil && i >= 0; p = p.Parent {
		if s[i].matches(p) {
			i--
		}
	}
	return i < 0
}

// querySelector returns the first element matching sel in document order.
func querySelector(doc *html.Node, sel string) *html.Node {
	all := find(doc, compileSelector(sel), true)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

func find(root *html.Node, sel selector, first bool) []*html.Node {
	if len(sel) == 0 {
		return nil
	}
	var out []*html.Node
	stack := []*html.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if sel.matches(n) {
			out = append(out, n)
			if first {
				return out
			}
		}
		// Push children in reverse so they pop in document order.
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return out
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// findBody returns the <body> element, or doc itself when there is none.
func findBody(doc *html.Node) *html.Node {
	for n := range doc.Descendants() {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			return n
		}
	}
	return doc
}
