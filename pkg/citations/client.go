// Package citations turns a URL into a formatted bibliographic reference
// through an external text-generation service, with durable memoization
// keyed on the exact (endpoint, url, prompt) submission and a minimum
// delay between network-issuing calls.
package citations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dtnitsch/citation-cleaner/internal/common"
	"github.com/dtnitsch/citation-cleaner/pkg/llm"
)

// DefaultPromptTemplate asks for a single APA reference wrapped in
// triple-bracket markers so extraction survives the service prepending
// commentary. The single %s receives the URL.
const DefaultPromptTemplate = "Visit this web link and generate an appropriate APA style reference line for it in markdown format: %s. Return exactly one reference wrapped between [[[ and ]]] markers."

const systemInstruction = "You generate bibliographic references. Answer with the reference only."

const (
	openDelim  = "[[["
	closeDelim = "]]]"
)

const DefaultRequestDelay = time.Second

// ErrCache marks cache-layer I/O failures. These indicate a persistent
// environment problem and must abort the batch instead of degrading to a
// per-URL placeholder.
var ErrCache = errors.New("citation cache failure")

// FetchError is a per-URL failure: network error, non-success status, or
// malformed response shape. It never aborts a batch; callers convert it
// into a placeholder citation.
type FetchError struct {
	URL    string
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("citation fetch failed for %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Outcome is a resolved citation for one URL.
type Outcome struct {
	Text        string
	NeedsReview bool // response arrived without the expected delimiters
	CacheHit    bool
}

// Chatter is the slice of the LLM client the citation client needs.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Store is the durable cache contract keyed by (endpoint, url, prompt).
type Store interface {
	Get(endpoint, url, promptHash string) (string, bool, error)
	Put(endpoint, url, promptHash, response string) error
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Endpoint       string // cache key component identifying the service
	PromptTemplate string
	RequestDelay   time.Duration
	SkipCacheRead  bool // bypass cache lookups but still record responses
}

type inflightCall struct {
	done chan struct{}
	raw  string
	hit  bool
	err  error
}

type Client struct {
	llm    Chatter
	store  Store
	logger *slog.Logger
	opts   Options

	turnMu   sync.Mutex
	nextCall time.Time

	flightMu sync.Mutex
	inflight map[string]*inflightCall
}

// New creates a citation client. store may be nil to disable memoization
// entirely (every call hits the network).
func New(chatter Chatter, store Store, logger *slog.Logger, opts Options) *Client {
	if opts.PromptTemplate == "" {
		opts.PromptTemplate = DefaultPromptTemplate
	}
	if opts.RequestDelay <= 0 {
		opts.RequestDelay = DefaultRequestDelay
	}
	return &Client{
		llm:      chatter,
		store:    store,
		logger:   logger,
		opts:     opts,
		inflight: make(map[string]*inflightCall),
	}
}

// Fetch obtains the citation for one URL. Per-URL failures come back as
// *FetchError; cache-layer failures wrap ErrCache and are fatal to the
// batch. Cached hits bypass both the network and the inter-call delay.
func (c *Client) Fetch(ctx context.Context, url string) (Outcome, error) {
	prompt := fmt.Sprintf(c.opts.PromptTemplate, url)
	promptHash := common.ContentHash([]byte(prompt))

	raw, hit, err := c.rawResponse(ctx, url, prompt, promptHash)
	if err != nil {
		return Outcome{}, err
	}

	text, needsReview := extractCitation(raw)
	if needsReview && c.logger != nil {
		c.logger.Warn("citation missing delimiters, needs manual review", "url", url)
	}

	return Outcome{Text: text, NeedsReview: needsReview, CacheHit: hit}, nil
}

// rawResponse returns the raw service output for (url, prompt), going to
// the network at most once per key even under concurrent callers.
func (c *Client) rawResponse(ctx context.Context, url, prompt, promptHash string) (string, bool, error) {
	key := url + "\x00" + promptHash

	c.flightMu.Lock()
	if call, ok := c.inflight[key]; ok {
		c.flightMu.Unlock()
		select {
		case <-call.done:
			return call.raw, call.hit, call.err
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.flightMu.Unlock()

	call.raw, call.hit, call.err = c.lookupOrGenerate(ctx, url, prompt, promptHash)
	close(call.done)

	c.flightMu.Lock()
	delete(c.inflight, key)
	c.flightMu.Unlock()

	return call.raw, call.hit, call.err
}

func (c *Client) lookupOrGenerate(ctx context.Context, url, prompt, promptHash string) (string, bool, error) {
	if c.store != nil && !c.opts.SkipCacheRead {
		raw, hit, err := c.store.Get(c.opts.Endpoint, url, promptHash)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrCache, err)
		}
		if hit {
			return raw, true, nil
		}
	}

	if err := c.waitTurn(ctx); err != nil {
		return "", false, &FetchError{URL: url, Reason: "cancelled", Err: err}
	}

	raw, err := c.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: systemInstruction},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", false, &FetchError{URL: url, Reason: fetchReason(err), Err: err}
	}

	if c.store != nil {
		if err := c.store.Put(c.opts.Endpoint, url, promptHash, raw); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrCache, err)
		}
	}

	return raw, false, nil
}

// waitTurn reserves the next network slot, spacing network-issuing calls
// at least RequestDelay apart. Cached hits never come through here.
func (c *Client) waitTurn(ctx context.Context) error {
	c.turnMu.Lock()
	now := time.Now()
	wait := time.Duration(0)
	if c.nextCall.After(now) {
		wait = c.nextCall.Sub(now)
		c.nextCall = c.nextCall.Add(c.opts.RequestDelay)
	} else {
		c.nextCall = now.Add(c.opts.RequestDelay)
	}
	c.turnMu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchReason maps a transport error onto a short human-readable reason
// for the placeholder text.
func fetchReason(err error) string {
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Message != "" {
			return fmt.Sprintf("status %d (%s)", statusErr.StatusCode, statusErr.Message)
		}
		return fmt.Sprintf("status %d", statusErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return err.Error()
}

// extractCitation pulls the delimited reference out of the raw response
// and normalizes list styling. When the delimiters are missing the full
// body is returned flagged for manual review.
func extractCitation(raw string) (string, bool) {
	text := raw
	needsReview := true

	if start := strings.Index(raw, openDelim); start != -1 {
		rest := raw[start+len(openDelim):]
		if end := strings.Index(rest, closeDelim); end != -1 {
			text = rest[:end]
			needsReview = false
		}
	}

	return cleanCitation(text), needsReview
}

// cleanCitation strips a single leading list marker ("- " or "* ") and a
// single leading numeric prefix ("N. ") so the numbering applied later
// does not double up with the service's styling choices.
func cleanCitation(text string) string {
	citation := strings.TrimSpace(text)

	if strings.HasPrefix(citation, "- ") || strings.HasPrefix(citation, "* ") {
		citation = citation[2:]
	}

	i := 0
	for i < len(citation) && citation[i] >= '0' && citation[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(citation) && citation[i] == '.' && citation[i+1] == ' ' {
		citation = citation[i+2:]
	}

	return strings.TrimSpace(citation)
}
