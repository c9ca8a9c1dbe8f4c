// Package sync fetches external calendar documents and turns them into external events.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jdholdren/garage/internal/garage"
)

const (
	// Calendars bigger than this are rejected rather than read into memory.
	maxDocumentSize = 10 << 20

	cacheSize = 256
)

// A previously fetched document, kept to answer conditional requests.
type cachedDoc struct {
	etag         string
	lastModified string
	body         []byte
}

// Fetcher retrieves calendar documents with a hard timeout. When a host supports conditional
// requests, the last body is kept per URL and reused on a 304.
type Fetcher struct {
	client *http.Client
	cache  *lru.Cache[string, cachedDoc]
}

func NewFetcher(timeout time.Duration) *Fetcher {
	// Only errors for a non-positive size.
	cache, _ := lru.New[string, cachedDoc](cacheSize)

	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  cache,
	}
}

// Fetch returns the document at feedURL. Any failure is a [*garage.FetchError].
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	body, err := f.fetch(ctx, feedURL)
	if err != nil {
		return nil, &garage.FetchError{URL: RedactURL(feedURL), Err: err}
	}

	return body, nil
}

func (f *Fetcher) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	cached, hasCached := f.cache.Get(feedURL)
	if hasCached {
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}
		if cached.lastModified != "" {
			req.Header.Set("If-Modified-Since", cached.lastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, redactErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && hasCached {
		return cached.body, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("error reading body: %w", redactErr(err))
	}
	if len(body) > maxDocumentSize {
		return nil, fmt.Errorf("document is larger than %d bytes", maxDocumentSize)
	}

	doc := cachedDoc{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		body:         body,
	}
	if doc.etag != "" || doc.lastModified != "" {
		f.cache.Add(feedURL, doc)
	} else {
		f.cache.Remove(feedURL)
	}

	return body, nil
}

// RedactURL drops the query string and any credentials: calendar export URLs usually carry
// their secret there.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable url>"
	}

	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	u.Fragment = ""
	return u.String()
}

// net/http puts the full URL in its errors.
func redactErr(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s %s: %w", urlErr.Op, RedactURL(urlErr.URL), urlErr.Err)
	}

	return err
}
