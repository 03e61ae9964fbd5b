package fallback

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dtnitsch/citation-cleaner/pkg/fetcher"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormat(t *testing.T) {
	published := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	retrieved := time.Date(2026, time.August, 27, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		title     string
		byline    string
		site      string
		published *time.Time
		want      string
	}{
		{
			name:      "full metadata",
			title:     "An Example Article",
			byline:    "Jane Doe",
			site:      "Example News",
			published: &published,
			want:      "Jane Doe. (2024, March 5). An Example Article. Example News. Retrieved August 27, 2026, from https://example.com/a",
		},
		{
			name:  "no byline or date",
			title: "An Example Article",
			site:  "Example News",
			want:  "(n.d.). An Example Article. Example News. Retrieved August 27, 2026, from https://example.com/a",
		},
		{
			name: "bare URL",
			want: "(n.d.). Retrieved August 27, 2026, from https://example.com/a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.title, tt.byline, tt.site, "https://example.com/a", tt.published, retrieved)
			if got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCitationFromPage(t *testing.T) {
	const page = `<!DOCTYPE html>
<html>
<head>
<title>Widget Design Notes</title>
<meta property="og:site_name" content="Widget Weekly">
</head>
<body>
<article>
<h1>Widget Design Notes</h1>
<p>Widgets are best designed with care. This paragraph exists so the
readability extractor has body content to work with when it scores the
document structure.</p>
</article>
</body>
</html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	builder := New(fetcher.New(time.Second), testLogger())
	got, err := builder.Citation(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Citation() error = %v", err)
	}

	if !strings.Contains(got, "Widget Design Notes") {
		t.Errorf("citation %q missing page title", got)
	}
	if !strings.Contains(got, server.URL) {
		t.Errorf("citation %q missing URL", got)
	}
	if !strings.Contains(got, "Retrieved ") {
		t.Errorf("citation %q missing retrieval date", got)
	}
}

func TestCitationFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	builder := New(fetcher.New(time.Second), testLogger())
	if _, err := builder.Citation(context.Background(), server.URL); err == nil {
		t.Error("Citation() error = nil, want fetch failure")
	}
}
