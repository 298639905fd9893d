package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/retry"

	appLog "dayplan/internal/log"
	"dayplan/internal/metrics"
)

// Source represents a single ICS subscription source.
type Source struct {
	// ID is an internal identifier (e.g., config ICS ID).
	ID string
	// URL is the ICS endpoint.
	URL string
}

// FetchResult contains the outcome of fetching a single ICS source.
type FetchResult struct {
	Source    Source
	Body      []byte // ICS payload (either freshly fetched or from cache)
	FromCache bool   // true if we reused cached body due to 304
}

// cacheEntry holds HTTP cache metadata for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher fetches ICS feeds with conditional requests and a disk cache.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	attempts uint
	delay    time.Duration
}

// NewFetcher creates a new ICS Fetcher.
//
// cacheDir is the base directory where per-URL cache subdirectories and
// metadata will be stored. Example: "/var/lib/dayplan/ics-cache".
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		// Caller should set this explicitly; we fallback to a relative dir
		// so that development runs without root permissions.
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
		attempts: 5,
		delay:    time.Second,
	}
}

// WithRetry overrides the attempt count and initial backoff delay.
func (f *Fetcher) WithRetry(attempts uint, delay time.Duration) *Fetcher {
	if attempts == 0 {
		attempts = 1
	}
	f.attempts = attempts
	f.delay = delay
	return f
}

// FetchAll fetches all given sources and returns individual results.
// Errors for individual sources are logged and returned in the error slice.
//
// The returned slice of results will only contain entries for sources that
// successfully produced a body (either from network or cache).
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	errs := make([]error, 0)

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs = append(errs, err)
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		results = append(results, res)
	}

	return results, errs
}

// FetchOne fetches src with a conditional GET. The last good body is
// kept on disk and served on 304, and also when the source is down.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	dir := f.cacheDirFor(src.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return FetchResult{}, err
	}
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, bodyFile))

	stale := func(cause error) (FetchResult, error) {
		metrics.IncFetch("error")
		if len(cached) == 0 {
			return FetchResult{}, cause
		}
		appLog.Error("ics fetch failed, serving cached body", cause, "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))
	resp, err := f.do(ctx, req, src)
	if err != nil {
		return stale(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return stale(err)
		}
		entry := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(dir, entry, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		metrics.IncFetch("ok")
		appLog.Info("ics fetched", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("304 Not Modified without a cached body")
		}
		metrics.IncFetch("not_modified")
		appLog.Info("ics not modified", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil

	default:
		return stale(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

// do sends req, retrying transport errors and 5xx responses with jittered
// backoff. Other statuses are returned to the caller as-is.
func (f *Fetcher) do(ctx context.Context, req *http.Request, src Source) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(
		func() error {
			r, err := f.client.Do(req.Clone(ctx))
			if err != nil {
				return err
			}
			if r.StatusCode >= 500 {
				_, _ = io.Copy(io.Discard, r.Body)
				_ = r.Body.Close()
				return fmt.Errorf("server error: %s", r.Status)
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.MaxDelay(2*time.Minute),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			appLog.Warn("ics fetch retry", "id", src.ID, "url", redactURL(src.URL), "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

const (
	metaFile = "meta.json"
	bodyFile = "body.ics"
)

// cacheDirFor keys the cache by the first 8 bytes of the URL's SHA-256.
func (f *Fetcher) cacheDirFor(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// saveCache writes the body before the metadata so a validator never
// refers to a missing body.
func saveCache(dir string, meta cacheEntry, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, bodyFile), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metaFile), data, 0o600)
}

// redactURL keeps only scheme and host; subscription URLs often embed
// private tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
