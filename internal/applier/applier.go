// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package applier applies learned extraction patterns to fetched page
// content. It supports the two recipe kinds the engine learns in practice:
// a pragmatic CSS selector subset (tag, #id, .class, descendant chains) and
// content regexes with named capture groups. Anything fancier belongs to the
// analyzer, not here.
package applier

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/pdiddy/regmon-engine/pkg/types"
)

// maxItemsPerApply bounds how many items one application returns, to keep a
// greedy selector from flooding a check.
const maxItemsPerApply = 20

// HTMLApplier applies patterns to raw HTML.
type HTMLApplier struct {
	// MaxItems overrides the per-application item cap when > 0.
	MaxItems int
}

// Apply runs one pattern against page content and returns the publication
// items it finds. A malformed recipe returns an error; the selector scores
// that as a failure of this pattern only and moves on.
func (a *HTMLApplier) Apply(ctx context.Context, pattern types.ExtractionPattern, pageURL, content string) ([]types.PublicationItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := a.MaxItems
	if limit <= 0 {
		limit = maxItemsPerApply
	}

	switch pattern.PatternType {
	case types.PatternCSSSelector:
		return applySelector(pattern.PatternValue, pageURL, content, limit)
	case types.PatternContentRegex:
		return applyRegex(pattern.PatternValue, pageURL, content, limit)
	default:
		return nil, fmt.Errorf("pattern type %s is not applicable to page content", pattern.PatternType)
	}
}

// step is one compound selector in a descendant chain: tag, #id and .classes
// all optional but at least one present.
type step struct {
	tag     string
	id      string
	classes []string
}

func parseSelector(sel string) ([]step, error) {
	fields := strings.Fields(sel)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty selector")
	}

	var steps []step
	for _, f := range fields {
		var st step
		rest := f
		for rest != "" {
			switch rest[0] {
			case '.':
				name, tail := takeIdent(rest[1:])
				if name == "" {
					return nil, fmt.Errorf("selector %q: empty class name", sel)
				}
				st.classes = append(st.classes, name)
				rest = tail
			case '#':
				name, tail := takeIdent(rest[1:])
				if name == "" {
					return nil, fmt.Errorf("selector %q: empty id", sel)
				}
				st.id = name
				rest = tail
			default:
				name, tail := takeIdent(rest)
				if name == "" {
					return nil, fmt.Errorf("selector %q: unsupported syntax at %q", sel, rest)
				}
				st.tag = strings.ToLower(name)
				rest = tail
			}
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func takeIdent(s string) (ident, rest string) {
	for i := 0; i < len(s); i++ {
		if !identChar(s[i]) {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

func identChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}

func (st step) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if st.tag != "" && n.Data != st.tag {
		return false
	}
	if st.id != "" && attr(n, "id") != st.id {
		return false
	}
	if len(st.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range st.classes {
			found := false
			for _, c := range have {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func applySelector(sel, pageURL, content string, limit int) ([]types.PublicationItem, error) {
	steps, err := parseSelector(sel)
	if err != nil {
		return nil, err
	}

	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	base, _ := url.Parse(pageURL)

	var items []types.PublicationItem
	seen := make(map[string]bool)
	for _, n := range selectNodes(root, steps) {
		if len(items) >= limit {
			break
		}
		link := findAnchor(n)
		if link == nil {
			continue
		}
		href := attr(link, "href")
		title := collapseSpace(textContent(n))
		if href == "" || title == "" {
			continue
		}
		abs := resolveURL(base, href)
		if seen[abs] {
			continue
		}
		seen[abs] = true
		items = append(items, types.PublicationItem{
			Title:    title,
			URL:      abs,
			ItemType: "publication",
		})
	}
	return items, nil
}

// selectNodes returns every node matched by the full descendant chain, in
// document order.
func selectNodes(root *html.Node, steps []step) []*html.Node {
	current := []*html.Node{root}
	for _, st := range steps {
		var next []*html.Node
		for _, scope := range current {
			collectDescendants(scope, st, &next)
		}
		current = next
	}
	return current
}

func collectDescendants(scope *html.Node, st step, out *[]*html.Node) {
	for c := scope.FirstChild; c != nil; c = c.NextSibling {
		if st.matches(c) {
			*out = append(*out, c)
		}
		collectDescendants(c, st, out)
	}
}

// findAnchor returns the node itself when it is a link, otherwise its first
// descendant anchor with an href.
func findAnchor(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "a" && attr(n, "href") != "" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findAnchor(c); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// applyRegex matches a content regex with named groups. The recipe must
// name a "url" group; a "title" group is optional and falls back to the
// whole match.
func applyRegex(expr, pageURL, content string, limit int) ([]types.PublicationItem, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling content regex: %w", err)
	}

	urlIdx, titleIdx := -1, -1
	for i, name := range re.SubexpNames() {
		switch name {
		case "url":
			urlIdx = i
		case "title":
			titleIdx = i
		}
	}
	if urlIdx < 0 {
		return nil, fmt.Errorf("content regex must name a (?P<url>...) group")
	}

	base, _ := url.Parse(pageURL)

	var items []types.PublicationItem
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(content, limit*2) {
		if len(items) >= limit {
			break
		}
		href := m[urlIdx]
		title := m[0]
		if titleIdx >= 0 {
			title = m[titleIdx]
		}
		title = collapseSpace(title)
		if href == "" || title == "" {
			continue
		}
		abs := resolveURL(base, href)
		if seen[abs] {
			continue
		}
		seen[abs] = true
		items = append(items, types.PublicationItem{
			Title:    title,
			URL:      abs,
			ItemType: "publication",
		})
	}
	return items, nil
}
