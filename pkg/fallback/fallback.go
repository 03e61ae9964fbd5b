// Package fallback builds a minimal reference line from the cited page
// itself when the generation service cannot produce one. The result is
// deliberately conservative: title, author when the page exposes one,
// site name, retrieval date, and the URL.
package fallback

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/dtnitsch/citation-cleaner/pkg/fetcher"
)

type Builder struct {
	fetcher *fetcher.Fetcher
	logger  *slog.Logger
}

func New(f *fetcher.Fetcher, logger *slog.Logger) *Builder {
	return &Builder{fetcher: f, logger: logger}
}

// Citation fetches the page at rawURL and derives a degraded reference
// line from its metadata.
func (b *Builder) Citation(ctx context.Context, rawURL string) (string, error) {
	doc, body, err := b.fetcher.GetDocument(ctx, rawURL)
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	var title, byline, site string
	var published *time.Time

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		b.logger.Warn("readability extraction failed, using raw metadata", "url", rawURL, "error", err)
	} else {
		title = article.Title
		byline = article.Byline
		site = article.SiteName
		published = article.PublishedTime
	}

	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if site == "" {
		site = doc.Find(`meta[property="og:site_name"]`).AttrOr("content", "")
	}
	if site == "" {
		site = parsed.Host
	}

	return Format(title, byline, site, rawURL, published, time.Now()), nil
}

// Format assembles the reference line from whatever metadata survived.
func Format(title, byline, site, rawURL string, published *time.Time, retrieved time.Time) string {
	var sb strings.Builder

	if byline != "" {
		sb.WriteString(strings.TrimSuffix(strings.TrimSpace(byline), "."))
		sb.WriteString(". ")
	}

	if published != nil {
		fmt.Fprintf(&sb, "(%s). ", published.Format("2006, January 2"))
	} else {
		sb.WriteString("(n.d.). ")
	}

	if title != "" {
		sb.WriteString(strings.TrimSuffix(strings.TrimSpace(title), "."))
		sb.WriteString(". ")
	}

	if site != "" {
		sb.WriteString(site)
		sb.WriteString(". ")
	}

	fmt.Fprintf(&sb, "Retrieved %s, from %s", retrieved.Format("January 2, 2006"), rawURL)
	return sb.String()
}
