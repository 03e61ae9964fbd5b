package citations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtnitsch/citation-cleaner/pkg/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChatter counts calls and replies from a canned response or error.
type fakeChatter struct {
	calls    int64
	response string
	err      error
	delay    time.Duration
}

func (f *fakeChatter) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// memStore is an in-memory Store with optional injected failures.
type memStore struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]string)}
}

func (m *memStore) key(endpoint, url, promptHash string) string {
	return endpoint + "|" + url + "|" + promptHash
}

func (m *memStore) Get(endpoint, url, promptHash string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	raw, ok := m.entries[m.key(endpoint, url, promptHash)]
	return raw, ok, nil
}

func (m *memStore) Put(endpoint, url, promptHash, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[m.key(endpoint, url, promptHash)] = response
	return nil
}

func newTestClient(chatter Chatter, store Store, opts Options) *Client {
	if opts.RequestDelay == 0 {
		opts.RequestDelay = time.Millisecond
	}
	return New(chatter, store, testLogger(), opts)
}

func TestFetchExtractsDelimitedCitation(t *testing.T) {
	tests := []struct {
		name            string
		response        string
		wantText        string
		wantNeedsReview bool
	}{
		{
			name:     "clean delimited response",
			response: "[[[Doe, J. (2024). Example article. Example Press.]]]",
			wantText: "Doe, J. (2024). Example article. Example Press.",
		},
		{
			name:     "commentary around delimiters",
			response: "Sure, here is the reference:\n[[[Doe, J. (2024). Example.]]]\nLet me know if you need more.",
			wantText: "Doe, J. (2024). Example.",
		},
		{
			name:     "dash list marker stripped",
			response: "[[[- Doe, J. (2024). Example.]]]",
			wantText: "Doe, J. (2024). Example.",
		},
		{
			name:     "star list marker stripped",
			response: "[[[* Doe, J. (2024). Example.]]]",
			wantText: "Doe, J. (2024). Example.",
		},
		{
			name:     "numeric prefix stripped",
			response: "[[[1. Doe, J. (2024). Example.]]]",
			wantText: "Doe, J. (2024). Example.",
		},
		{
			name:     "multi-digit numeric prefix stripped",
			response: "[[[12. Doe, J. (2024). Example.]]]",
			wantText: "Doe, J. (2024). Example.",
		},
		{
			name:     "only one prefix layer stripped",
			response: "[[[- 2. Doe, J. (2024). Example.]]]",
			wantText: "Doe, J. (2024). Example.",
		},
		{
			name:            "missing delimiters returns full body for review",
			response:        "Doe, J. (2024). Example without markers.",
			wantText:        "Doe, J. (2024). Example without markers.",
			wantNeedsReview: true,
		},
		{
			name:            "unterminated delimiter returns full body for review",
			response:        "[[[Doe, J. (2024). Never closed.",
			wantText:        "[[[Doe, J. (2024). Never closed.",
			wantNeedsReview: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chatter := &fakeChatter{response: tt.response}
			client := newTestClient(chatter, newMemStore(), Options{Endpoint: "ep"})

			outcome, err := client.Fetch(context.Background(), "https://a.com")
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if outcome.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", outcome.Text, tt.wantText)
			}
			if outcome.NeedsReview != tt.wantNeedsReview {
				t.Errorf("NeedsReview = %v, want %v", outcome.NeedsReview, tt.wantNeedsReview)
			}
		})
	}
}

func TestFetchUsesCacheOnSecondCall(t *testing.T) {
	chatter := &fakeChatter{response: "[[[Doe, J. (2024). Example.]]]"}
	client := newTestClient(chatter, newMemStore(), Options{Endpoint: "ep"})

	first, err := client.Fetch(context.Background(), "https://a.com")
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	if first.CacheHit {
		t.Error("first call reported a cache hit")
	}

	second, err := client.Fetch(context.Background(), "https://a.com")
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if !second.CacheHit {
		t.Error("second call missed the cache")
	}
	if second.Text != first.Text {
		t.Errorf("cached text %q differs from first %q", second.Text, first.Text)
	}
	if calls := atomic.LoadInt64(&chatter.calls); calls != 1 {
		t.Errorf("network calls = %d, want 1", calls)
	}
}

func TestFetchCacheSharedAcrossClients(t *testing.T) {
	// Same store, fresh client: simulates a second process run.
	store := newMemStore()
	chatter := &fakeChatter{response: "[[[Doe, J. (2024). Example.]]]"}

	first := newTestClient(chatter, store, Options{Endpoint: "ep"})
	if _, err := first.Fetch(context.Background(), "https://a.com"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	second := newTestClient(chatter, store, Options{Endpoint: "ep"})
	outcome, err := second.Fetch(context.Background(), "https://a.com")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !outcome.CacheHit {
		t.Error("second run missed the durable cache")
	}
	if calls := atomic.LoadInt64(&chatter.calls); calls != 1 {
		t.Errorf("network calls = %d, want 1", calls)
	}
}

func TestFetchConcurrentSameKeySingleNetworkCall(t *testing.T) {
	chatter := &fakeChatter{response: "[[[Doe, J. (2024). Example.]]]", delay: 20 * time.Millisecond}
	client := newTestClient(chatter, newMemStore(), Options{Endpoint: "ep"})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Fetch(context.Background(), "https://a.com"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Fetch() error = %v", err)
	}

	if calls := atomic.LoadInt64(&chatter.calls); calls != 1 {
		t.Errorf("network calls = %d, want 1", calls)
	}
}

func TestFetchStatusErrorBecomesFetchError(t *testing.T) {
	chatter := &fakeChatter{err: &llm.StatusError{StatusCode: 429, Message: "rate limited"}}
	client := newTestClient(chatter, newMemStore(), Options{Endpoint: "ep"})

	_, err := client.Fetch(context.Background(), "https://a.com")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if fetchErr.URL != "https://a.com" {
		t.Errorf("FetchError.URL = %q", fetchErr.URL)
	}
	if fetchErr.Reason != "status 429 (rate limited)" {
		t.Errorf("FetchError.Reason = %q", fetchErr.Reason)
	}
}

func TestFetchCacheReadFailureIsFatal(t *testing.T) {
	store := newMemStore()
	store.getErr = fmt.Errorf("disk I/O error")
	chatter := &fakeChatter{response: "[[[unused]]]"}
	client := newTestClient(chatter, store, Options{Endpoint: "ep"})

	_, err := client.Fetch(context.Background(), "https://a.com")
	if !errors.Is(err, ErrCache) {
		t.Fatalf("error = %v, want ErrCache", err)
	}
	if calls := atomic.LoadInt64(&chatter.calls); calls != 0 {
		t.Errorf("network calls = %d, want 0 after cache failure", calls)
	}
}

func TestFetchCacheWriteFailureIsFatal(t *testing.T) {
	store := newMemStore()
	store.putErr = fmt.Errorf("disk full")
	chatter := &fakeChatter{response: "[[[Doe, J. (2024). Example.]]]"}
	client := newTestClient(chatter, store, Options{Endpoint: "ep"})

	_, err := client.Fetch(context.Background(), "https://a.com")
	if !errors.Is(err, ErrCache) {
		t.Fatalf("error = %v, want ErrCache", err)
	}
}

func TestFetchSkipCacheReadStillRecords(t *testing.T) {
	store := newMemStore()
	store.entries[store.key("ep", "https://a.com", "ignored")] = "stale"
	chatter := &fakeChatter{response: "[[[Fresh citation.]]]"}
	client := newTestClient(chatter, store, Options{Endpoint: "ep", SkipCacheRead: true})

	outcome, err := client.Fetch(context.Background(), "https://a.com")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if outcome.CacheHit {
		t.Error("SkipCacheRead still reported a cache hit")
	}
	if calls := atomic.LoadInt64(&chatter.calls); calls != 1 {
		t.Errorf("network calls = %d, want 1", calls)
	}

	store.mu.Lock()
	stored := len(store.entries)
	store.mu.Unlock()
	if stored != 2 {
		t.Errorf("stored entries = %d, want fresh response recorded alongside stale one", stored)
	}
}

func TestFetchDelaySpacesNetworkCalls(t *testing.T) {
	const delay = 40 * time.Millisecond
	chatter := &fakeChatter{response: "[[[Doe, J. (2024). Example.]]]"}
	client := newTestClient(chatter, newMemStore(), Options{Endpoint: "ep", RequestDelay: delay})

	start := time.Now()
	if _, err := client.Fetch(context.Background(), "https://a.com"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, err := client.Fetch(context.Background(), "https://b.com"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("two network calls completed in %v, want at least %v apart", elapsed, delay)
	}

	// Cached hit bypasses the delay entirely.
	start = time.Now()
	outcome, err := client.Fetch(context.Background(), "https://a.com")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !outcome.CacheHit {
		t.Fatal("expected cache hit")
	}
	if elapsed := time.Since(start); elapsed >= delay {
		t.Errorf("cache hit took %v, should bypass the %v delay", elapsed, delay)
	}
}
