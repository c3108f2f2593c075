// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package drill follows category links below a source's landing page to
// find publication items that are not listed on the page itself. Every
// traversal is bounded: depth, page, and item caps guarantee termination
// even on pathological link graphs.
package drill

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/pdiddy/regmon-engine/internal/monitor"
	"github.com/pdiddy/regmon-engine/pkg/types"
)

// Links shorter than this are treated as navigation, not publications.
const minTitleLen = 10

// Driller walks category pages breadth-first from a starting page.
type Driller struct {
	Fetcher monitor.Fetcher
	Cfg     types.DrillConfig
	Logger  *zap.Logger
}

// Result summarizes one drill-down.
type Result struct {
	Items              []types.PublicationItem
	PagesFetched       int
	CategoriesFollowed int
}

type page struct {
	url   string
	depth int
}

// New builds a Driller. A zero cfg gets the default bounds.
func New(fetcher monitor.Fetcher, cfg types.DrillConfig, logger *zap.Logger) *Driller {
	if cfg.MaxDepth == 0 && cfg.MaxPages == 0 {
		cfg = types.DefaultDrillConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driller{Fetcher: fetcher, Cfg: cfg, Logger: logger}
}

// Drill traverses category links starting from content, which must be the
// already-fetched page at src.URL. The starting page itself does not count
// against the page cap. Items carry the drill-down extraction method.
func (d *Driller) Drill(ctx context.Context, src types.SourceConfig, content string) (Result, error) {
	var res Result
	visited := map[string]bool{src.URL: true}

	queue := []page{{url: src.URL, depth: 0}}
	pages := map[string]string{src.URL: content}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cur := queue[0]
		queue = queue[1:]

		body, ok := pages[cur.url]
		if !ok {
			if res.PagesFetched >= d.Cfg.MaxPages {
				continue
			}
			var err error
			body, err = d.Fetcher.Fetch(ctx, cur.url)
			if err != nil {
				d.Logger.Debug("category page fetch failed",
					zap.String("url", cur.url), zap.Error(err))
				continue
			}
			res.PagesFetched++
		}

		links, err := extractLinks(cur.url, body)
		if err != nil {
			d.Logger.Debug("category page parse failed",
				zap.String("url", cur.url), zap.Error(err))
			continue
		}

		for _, l := range links {
			if visited[l.url] {
				continue
			}
			visited[l.url] = true

			if d.isCategory(l.url) {
				if cur.depth < d.Cfg.MaxDepth {
					queue = append(queue, page{url: l.url, depth: cur.depth + 1})
					res.CategoriesFollowed++
				}
				continue
			}

			if len(l.title) < minTitleLen {
				continue
			}
			if len(res.Items) >= d.Cfg.MaxItems {
				return res, nil
			}
			res.Items = append(res.Items, types.PublicationItem{
				Title:            l.title,
				URL:              l.url,
				ItemType:         "publication",
				ConfidenceScore:  0.6,
				ExtractionMethod: types.MethodCategoryDrillDown,
				SourceID:         src.SourceID,
			})
		}
	}

	return res, nil
}

func (d *Driller) isCategory(u string) bool {
	for _, marker := range d.Cfg.CategoryMarkers {
		if strings.Contains(u, marker) {
			return true
		}
	}
	return false
}

type link struct {
	url   string
	title string
}

// extractLinks returns the anchors of an HTML page with absolute URLs.
// Fragment-only and non-http(s) links are dropped.
func extractLinks(pageURL, content string) ([]link, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url %s: %w", pageURL, err)
	}
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing page %s: %w", pageURL, err)
	}

	var links []link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" || a.Val == "" || strings.HasPrefix(a.Val, "#") {
					continue
				}
				ref, err := url.Parse(a.Val)
				if err != nil {
					continue
				}
				abs := base.ResolveReference(ref)
				if abs.Scheme != "http" && abs.Scheme != "https" {
					continue
				}
				abs.Fragment = ""
				links = append(links, link{url: abs.String(), title: nodeText(n)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
