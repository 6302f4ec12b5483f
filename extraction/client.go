package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/llm"
)

// DefaultBatchSize is the chunk size for BatchExtract.
const DefaultBatchSize = 16

// DefaultResultTTL bounds how long cached Tier-C results survive, so stale
// LLM output does not outlive model or extractor-version churn.
const DefaultResultTTL = 30 * 24 * time.Hour

// Client is the Tier-C LLM client: it fingerprints windows, serves repeats
// from the cache, and batches misses to the LLM provider. Tier C is
// best-effort: malformed LLM output degrades to zero triples, never to an
// error. Errors from the cache or the provider itself do propagate.
type Client struct {
	provider  llm.Provider
	cache     *cache.Store
	batchSize int
	resultTTL time.Duration
	log       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBatchSize overrides the BatchExtract chunk size.
func WithBatchSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithResultTTL overrides the cache expiry for extraction results. Zero
// disables expiry.
func WithResultTTL(ttl time.Duration) ClientOption {
	return func(c *Client) { c.resultTTL = ttl }
}

// WithLogger sets the client's logger.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a Tier-C client over an LLM provider and a cache store.
func NewClient(provider llm.Provider, store *cache.Store, opts ...ClientOption) *Client {
	c := &Client{
		provider:  provider,
		cache:     store,
		batchSize: DefaultBatchSize,
		resultTTL: DefaultResultTTL,
		log:       slog.Default().With("component", "extraction"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExtractFromWindow extracts triples from one text window. The window's
// fingerprint is looked up first; on a hit the cached result is returned
// without touching the LLM. On a miss the LLM is called once and the result
// written back under the fingerprint.
func (c *Client) ExtractFromWindow(ctx context.Context, window string) (Result, error) {
	key := cache.ResultKey(Fingerprint(window))

	if data, err := c.cache.Get(key); err == nil {
		var cached Result
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		// Undecodable cache entry: fall through and overwrite it.
		c.log.Warn("discarding undecodable cached result", "key", key)
	} else if !errors.Is(err, cache.ErrKeyNotFound) {
		return Result{}, fmt.Errorf("extraction: cache lookup: %w", err)
	}

	resp, err := c.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "user", Content: buildPrompt(window)},
		},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return Result{}, fmt.Errorf("extraction: tier-c chat: %w", err)
	}

	result := parseResult(resp.Content, c.log)

	data, err := json.Marshal(result)
	if err != nil {
		return Result{}, fmt.Errorf("extraction: encoding result: %w", err)
	}
	if err := c.cache.SetWithTTL(key, data, c.resultTTL); err != nil {
		return Result{}, fmt.Errorf("extraction: cache write-back: %w", err)
	}
	return result, nil
}

// BatchExtract extracts triples from a list of windows. Windows are processed
// in chunks of the configured batch size with intra-chunk concurrency; the
// output slice matches the input order. An empty input returns an empty slice
// with no LLM or cache calls.
func (c *Client) BatchExtract(ctx context.Context, windows []string) ([]Result, error) {
	if len(windows) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, len(windows))
	for start := 0; start < len(windows); start += c.batchSize {
		end := min(start+c.batchSize, len(windows))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.batchSize)
		for i := start; i < end; i++ {
			g.Go(func() error {
				res, err := c.ExtractFromWindow(gctx, windows[i])
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return results, nil
}
