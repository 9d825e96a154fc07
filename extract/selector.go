package extract

import (
	"strings"

	xhtml "golang.org/x/net/html"
)

// Selectors understood by Options.Selector are a small CSS subset: tag,
// .class, #id, [attr] and [attr=val], combined on one element
// ("div.story#main") and chained with spaces for descendants
// ("main div.story").

type simpleSelector struct {
	tag, id, class   string
	attrKey, attrVal string
}

func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector
	if i := strings.IndexByte(sel, '['); i >= 0 {
		attr := strings.TrimSuffix(sel[i+1:], "]")
		sel = sel[:i]
		if k, v, ok := strings.Cut(attr, "="); ok {
			s.attrKey, s.attrVal = k, strings.Trim(v, `"'`)
		} else {
			s.attrKey = attr
		}
	}
	if i := strings.IndexByte(sel, '#'); i >= 0 {
		s.id = sel[i+1:]
		sel = sel[:i]
	}
	if i := strings.IndexByte(sel, '.'); i >= 0 {
		s.class = sel[i+1:]
		sel = sel[:i]
	}
	s.tag = strings.ToLower(sel)
	return s
}

func (s simpleSelector) matches(n *xhtml.Node) bool {
	if n.Type != xhtml.ElementNode {
		return false
	}
	if s.tag != "" && s.tag != "*" && n.Data != s.tag {
		return false
	}
	if s.id != "" && attr(n, "id") != s.id {
		return false
	}
	if s.class != "" {
		found := false
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.attrKey != "" {
		v, ok := lookupAttr(n, s.attrKey)
		if !ok || (s.attrVal != "" && v != s.attrVal) {
			return false
		}
	}
	return true
}

// querySelector returns the first node under root matching selector, in
// document order.
func querySelector(root *xhtml.Node, selector string) *xhtml.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 {
		return nil
	}
	chain := make([]simpleSelector, len(parts))
	for i, p := range parts {
		chain[i] = parseSimpleSelector(p)
	}

	var found *xhtml.Node
	var walk func(n *xhtml.Node, depth int)
	walk = func(n *xhtml.Node, depth int) {
		if found != nil {
			return
		}
		next := depth
		if n.Type == xhtml.ElementNode && chain[depth].matches(n) {
			if depth == len(chain)-1 {
				found = n
				return
			}
			next = depth + 1
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, next)
		}
	}
	walk(root, 0)
	return found
}

func attr(n *xhtml.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *xhtml.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
