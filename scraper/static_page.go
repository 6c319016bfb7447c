package scraper

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoRaster is returned by pages that cannot produce a screenshot
var ErrNoRaster = errors.New("page has no raster output")

const (
	defaultFontSize   = 14
	ancestorTextDepth = 4
	maxScanTextRunes  = 64
)

// StaticPage implements Page over saved HTML. Styles are read from inline style attributes only.
type StaticPage struct {
	url string
	doc *goquery.Document
}

// NewStaticPage parses html as the document served at url
func NewStaticPage(url, html string) (*StaticPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &StaticPage{url: url, doc: doc}, nil
}

// Navigate only records the URL; the document is fixed.
func (p *StaticPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.url == "" {
		p.url = url
	}
	return nil
}

func (p *StaticPage) URL() string { return p.url }

func (p *StaticPage) Title(ctx context.Context) (string, error) {
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

func (p *StaticPage) HTML(ctx context.Context) (string, error) {
	return p.doc.Html()
}

func (p *StaticPage) BodyText(ctx context.Context) (string, error) {
	return lineText(p.doc.Find("body")), nil
}

func (p *StaticPage) Count(ctx context.Context, selector string) (int, error) {
	return p.doc.Find(selector).Length(), nil
}

func (p *StaticPage) Query(ctx context.Context, q ElementQuery) ([]ElementSnapshot, error) {
	var out []ElementSnapshot
	p.doc.Find(q.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		snap := snapshotOf(s, q.Attr)
		if q.Contains != "" && !strings.Contains(snap.Text, q.Contains) {
			return true
		}
		out = append(out, snap)
		return q.Limit <= 0 || len(out) < q.Limit
	})
	return out, nil
}

func (p *StaticPage) ScanVisible(ctx context.Context) ([]ElementSnapshot, error) {
	var out []ElementSnapshot
	p.doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "script", "style", "noscript", "template":
			return
		}
		if !hasOwnDigitText(s) {
			return
		}
		snap := snapshotOf(s, "")
		if !snap.Visible || snap.Text == "" || utf8.RuneCountInString(snap.Text) > maxScanTextRunes {
			return
		}
		out = append(out, snap)
	})
	return out, nil
}

func (p *StaticPage) Cards(ctx context.Context, q CardQuery) ([]CardSnapshot, error) {
	var out []CardSnapshot
	p.doc.Find(q.Selector).EachWithBreak(func(i int, card *goquery.Selection) bool {
		snap := CardSnapshot{Index: i, Text: lineText(card), Fields: make(map[string][]string)}
		for _, f := range q.Fields {
			card.Find(f.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				v := collapseSpaces(s.Text())
				if f.Attr != "" {
					v, _ = s.Attr(f.Attr)
					v = strings.TrimSpace(v)
				}
				if v != "" {
					snap.Fields[f.Name] = append(snap.Fields[f.Name], v)
				}
				return f.Multi || len(snap.Fields[f.Name]) == 0
			})
		}
		out = append(out, snap)
		return q.Limit <= 0 || len(out) < q.Limit
	})
	return out, nil
}

func (p *StaticPage) Scroll(ctx context.Context, dy int) error { return nil }

func (p *StaticPage) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, ErrNoRaster
}

func (p *StaticPage) Close() error { return nil }

func snapshotOf(s *goquery.Selection, attr string) ElementSnapshot {
	snap := ElementSnapshot{
		Text:     collapseSpaces(s.Text()),
		Visible:  true,
		FontSize: defaultFontSize,
	}
	snap.Class, _ = s.Attr("class")
	if attr != "" {
		v, _ := s.Attr(attr)
		snap.Attr = strings.TrimSpace(v)
	}
	if v, ok := s.Attr("aria-hidden"); ok {
		snap.AriaHidden = v == "true" || v == "1"
	}

	fontFound := false
	inspect := func(n *goquery.Selection) {
		style := styleOf(n)
		if strings.Contains(style["text-decoration"], "line-through") || strings.Contains(style["text-decoration-line"], "line-through") {
			snap.LineThrough = true
		}
		switch goquery.NodeName(n) {
		case "s", "del", "strike":
			snap.LineThrough = true
		}
		if _, hidden := n.Attr("hidden"); hidden || style["display"] == "none" || style["visibility"] == "hidden" {
			snap.Visible = false
		}
		if op, err := strconv.ParseFloat(style["opacity"], 64); err == nil && op < 0.2 {
			snap.Visible = false
		}
		if !fontFound {
			if px, ok := parsePixels(style["font-size"]); ok {
				snap.FontSize = px
				fontFound = true
			}
		}
	}

	inspect(s)
	s.Parents().Each(func(i int, a *goquery.Selection) {
		inspect(a)
		if c, ok := a.Attr("class"); ok && c != "" {
			snap.AncestorClass = append(snap.AncestorClass, c)
		}
		if i < ancestorTextDepth {
			snap.AncestorText = append(snap.AncestorText, collapseSpaces(a.Text()))
		}
	})
	return snap
}

// styleOf parses an inline style attribute into lowercase property/value pairs
func styleOf(s *goquery.Selection) map[string]string {
	out := make(map[string]string)
	raw, ok := s.Attr("style")
	if !ok {
		return out
	}
	for _, decl := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func parsePixels(v string) (float64, bool) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

func hasOwnDigitText(s *goquery.Selection) bool {
	found := false
	s.Contents().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if goquery.NodeName(c) == "#text" && strings.ContainsAny(c.Text(), "0123456789") {
			found = true
		}
		return !found
	})
	return found
}

// lineText joins the trimmed text nodes under s with newlines, skipping scripts and styles
func lineText(s *goquery.Selection) string {
	var lines []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := collapseSpaces(c.Text()); t != "" {
					lines = append(lines, t)
				}
			case "script", "style", "noscript", "template", "#comment":
			default:
				walk(c)
			}
		})
	}
	walk(s)
	return strings.Join(lines, "\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(normalizeSpaces(s)), " ")
}
