package scraper

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/pfrederiksen/notice-watch/internal/notice"
)

const (
	itemSelector   = "div.hyu-list-body-item"
	anchorSelector = `a[onclick*="BbsPortlet_viewMessage("]`
	columnSelector = "div.hyu-list-body-item-col"
)

var (
	// viewMessagePattern captures the message id from the anchor's onclick
	// handler, e.g. "_..._BbsPortlet_viewMessage(2101234, 'view_message')".
	viewMessagePattern = regexp.MustCompile(`viewMessage\((\d+),`)

	// datePattern matches display dates such as "2026. 3. 2" or "2026.03.02".
	datePattern = regexp.MustCompile(`\d{4}\.\s*\d{1,2}\.\s*\d{1,2}`)
)

// ParseNotices extracts notices from a list page.
//
// Items that lack a view-message link, a numeric id or a title are skipped.
// The result is deduplicated by id in first-occurrence order. An error is
// returned only when the markup cannot be read at all.
func ParseNotices(r io.Reader, board notice.Board) ([]notice.Notice, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	notices := make([]notice.Notice, 0)
	doc.Find(itemSelector).Each(func(_ int, item *goquery.Selection) {
		if n, ok := parseItem(item, board); ok {
			notices = append(notices, n)
		}
	})

	return notice.Dedup(notices), nil
}

// parseItem extracts a single notice from a list item container.
func parseItem(item *goquery.Selection, board notice.Board) (notice.Notice, bool) {
	anchor := item.Find(anchorSelector).First()
	if anchor.Length() == 0 {
		return notice.Notice{}, false
	}

	onclick, _ := anchor.Attr("onclick")
	match := viewMessagePattern.FindStringSubmatch(onclick)
	if match == nil {
		return notice.Notice{}, false
	}
	id := match[1]

	title := collapseSpace(textOf(anchor))
	if title == "" {
		return notice.Notice{}, false
	}

	category, date := parseMeta(anchor)
	return notice.New(board, id, title, category, date), true
}

// parseMeta reads the category badge and display date from the metadata
// paragraph of the anchor's column. Only the first date-looking span is used,
// so a posted date wins over a later updated date.
func parseMeta(anchor *goquery.Selection) (category, date string) {
	meta := anchor.Closest(columnSelector).Find("p").First()
	if meta.Length() == 0 {
		return "", ""
	}

	if badge := meta.Find("span.hyu-badge").First(); badge.Length() > 0 {
		category = collapseSpace(textOf(badge))
	}

	meta.Find("span.date").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := collapseSpace(textOf(span))
		if datePattern.MatchString(text) {
			date = text
			return false
		}
		return true
	})

	return category, date
}

// textOf joins the trimmed text nodes below sel with single spaces, so markup
// like "<b>New</b>Title" reads as "New Title" instead of "NewTitle".
func textOf(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
