// Package extract finds publication dates for evidence pages.
package extract

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
	"go.uber.org/zap"
)

// metatagKeys are checked in order in search-result metadata and page <meta> tags
var metatagKeys = []string{
	"article:published_time",
	"og:published_time",
	"date",
	"pubdate",
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"20060102",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006",
	"2 January 2006",
}

// PageFetcher retrieves a page for date extraction
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*FetchResult, error)
}

// DateExtractor finds the publication date of a search result
type DateExtractor struct {
	fetcher PageFetcher
	log     *zap.Logger
}

// NewDateExtractor creates an extractor; a nil fetcher disables the page fallback
func NewDateExtractor(fetcher PageFetcher, log *zap.Logger) *DateExtractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &DateExtractor{fetcher: fetcher, log: log}
}

// FromMetatags returns the first known date key of the first metatag set
func (e *DateExtractor) FromMetatags(metatags []map[string]string) string {
	if len(metatags) == 0 {
		return ""
	}
	tags := metatags[0]
	for _, key := range metatagKeys {
		if v := strings.TrimSpace(tags[key]); v != "" {
			return NormalizeDate(v)
		}
	}
	return ""
}

// Published returns the date from metatags when present, otherwise from the page
// itself. It never fails; an empty string means no date was found.
func (e *DateExtractor) Published(ctx context.Context, rawURL string, metatags []map[string]string) string {
	if len(metatags) > 0 {
		return e.FromMetatags(metatags)
	}
	return e.Extract(ctx, rawURL)
}

// Extract fetches the page and looks for a date in meta tags, then readability
// metadata, then trafilatura metadata.
func (e *DateExtractor) Extract(ctx context.Context, rawURL string) string {
	if e.fetcher == nil {
		return ""
	}

	page, err := e.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		e.log.Debug("page fetch for publish date failed", zap.String("url", rawURL), zap.Error(err))
		return ""
	}

	if d := FromHTML(page.HTML); d != "" {
		return d
	}

	pageURL, _ := url.Parse(page.FinalURL)

	if article, err := readability.FromReader(strings.NewReader(page.HTML), pageURL); err == nil {
		if article.PublishedTime != nil && !article.PublishedTime.IsZero() {
			return article.PublishedTime.UTC().Format("2006-01-02")
		}
	}

	result, err := trafilatura.Extract(strings.NewReader(page.HTML), trafilatura.Options{
		OriginalURL: pageURL,
	})
	if err == nil && result != nil && !result.Metadata.Date.IsZero() {
		return result.Metadata.Date.UTC().Format("2006-01-02")
	}

	e.log.Debug("no publish date found", zap.String("url", rawURL))
	return ""
}

// FromHTML scans <meta> and <time> elements for a publication date
func FromHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	found := map[string]string{}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return
		}
		for _, attr := range []string{"property", "name", "itemprop"} {
			key := strings.ToLower(strings.TrimSpace(s.AttrOr(attr, "")))
			if key == "datepublished" {
				key = "date"
			}
			if key != "" && found[key] == "" {
				found[key] = content
			}
		}
	})
	for _, key := range metatagKeys {
		if v := found[key]; v != "" {
			return NormalizeDate(v)
		}
	}

	if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return NormalizeDate(dt)
	}
	return ""
}

// NormalizeDate renders parseable dates as YYYY-MM-DD and returns anything else trimmed
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return raw
}
