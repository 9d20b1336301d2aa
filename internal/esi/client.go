package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/moonsync/internal/cache"
	"github.com/varoOP/moonsync/internal/domain"
)

const (
	headerIfNoneMatch = "If-None-Match"
	headerETag        = "ETag"
	headerExpires     = "Expires"
	headerPages       = "X-Pages"
)

// sleepModifiers scales the retry delay per status. Gateway-side failures
// get a longer pause before the next attempt.
var sleepModifiers = map[int]int{
	http.StatusInternalServerError: 2,
	http.StatusGatewayTimeout:      2,
}

// Client talks to the upstream API with conditional caching and
// status-aware retries.
type Client struct {
	http         *http.Client
	store        cache.Store
	log          zerolog.Logger
	baseURL      string
	userAgent    string
	datasource   string
	language     string
	retryCount   int
	baseDelay    time.Duration
	limitPerHost int
	defaultTTL   time.Duration

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg *domain.Config, store cache.Store, log zerolog.Logger) *Client {
	return &Client{
		http:         &http.Client{Timeout: 60 * time.Second},
		store:        store,
		log:          log.With().Str("module", "esi").Logger(),
		baseURL:      cfg.APIBaseURL,
		userAgent:    cfg.UserAgent,
		datasource:   cfg.Datasource,
		language:     cfg.Language,
		retryCount:   cfg.RetryCount,
		baseDelay:    cfg.RetryBaseDelay,
		limitPerHost: cfg.LimitPerHost,
		defaultTTL:   cfg.CacheTTL,
		sleep:        sleepCtx,
	}
}

// SetHTTPClient overrides the default HTTP client, e.g. for a custom
// transport.
func (c *Client) SetHTTPClient(h *http.Client) {
	if h != nil {
		c.http = h
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resolveURL merges the default query params into the URL. Encode sorts the
// keys, so the result doubles as a stable cache key.
func (c *Client) resolveURL(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid url %q", rawURL)
	}

	q := u.Query()
	q.Set("datasource", c.datasource)
	q.Set("language", c.language)
	for key, vals := range params {
		for _, v := range vals {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ttlFrom derives the cache lifetime from the Expires header, falling back
// to the configured default when the header is absent or unparsable.
func (c *Client) ttlFrom(expires string, now time.Time) time.Duration {
	if expires == "" {
		return c.defaultTTL
	}
	t, err := http.ParseTime(expires)
	if err != nil {
		return c.defaultTTL
	}
	ttl := t.Sub(now)
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get issues a conditional GET. A 200 refreshes the cached ETag and body; a
// 304 serves the cached body. Retryable statuses sleep
// baseDelay*modifier[status] between attempts; 400 and 403 abort
// immediately.
func (c *Client) Get(ctx context.Context, rawURL, token string, params url.Values) (int, json.RawMessage, error) {
	resolved, err := c.resolveURL(rawURL, params)
	if err != nil {
		return 0, nil, err
	}

	cachedBody, haveBody := c.store.GetBody(ctx, resolved)
	cachedETag, haveETag := c.store.GetETag(ctx, resolved)

	lastStatus := 0
	for attempt := 1; attempt <= c.retryCount; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
		if err != nil {
			return 0, nil, errors.Wrap(err, "error building request")
		}
		c.setHeaders(req, token)
		if haveETag && haveBody {
			req.Header.Set(headerIfNoneMatch, cachedETag)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			c.log.Error().Err(err).Str("url", resolved).Int("attempt", attempt).Msg("connection error")
			if attempt == c.retryCount {
				return 0, nil, &domain.RetriesExhaustedError{URL: resolved, Attempts: c.retryCount}
			}
			if err := c.sleep(ctx, c.baseDelay); err != nil {
				return 0, nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			if readErr != nil {
				return 0, nil, errors.Wrap(readErr, "error reading response body")
			}
			c.storeResponse(ctx, resolved, body, resp.Header, 0)
			return resp.StatusCode, body, nil

		case http.StatusNotModified:
			return resp.StatusCode, cachedBody, nil

		case http.StatusBadRequest, http.StatusForbidden:
			c.log.Error().Str("url", resolved).Int("status", resp.StatusCode).Msg("terminal response")
			return resp.StatusCode, nil, &domain.TerminalHTTPError{Status: resp.StatusCode, URL: resolved}
		}

		lastStatus = resp.StatusCode
		c.log.Warn().Str("url", resolved).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("retryable response")
		if attempt == c.retryCount {
			break
		}
		if err := c.sleep(ctx, c.retryDelay(resp.StatusCode)); err != nil {
			return 0, nil, err
		}
	}

	return lastStatus, nil, &domain.RetriesExhaustedError{Status: lastStatus, URL: resolved, Attempts: c.retryCount}
}

// Post issues a POST with the same retry policy as Get but no caching.
// 400, 401 and 403 are terminal.
func (c *Client) Post(ctx context.Context, rawURL, token string, payload []byte, params url.Values) (int, json.RawMessage, error) {
	resolved, err := c.resolveURL(rawURL, params)
	if err != nil {
		return 0, nil, err
	}

	lastStatus := 0
	for attempt := 1; attempt <= c.retryCount; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, resolved, bytes.NewReader(payload))
		if err != nil {
			return 0, nil, errors.Wrap(err, "error building request")
		}
		c.setHeaders(req, token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			c.log.Error().Err(err).Str("url", resolved).Int("attempt", attempt).Msg("connection error")
			if attempt == c.retryCount {
				return 0, nil, &domain.RetriesExhaustedError{URL: resolved, Attempts: c.retryCount}
			}
			if err := c.sleep(ctx, c.baseDelay); err != nil {
				return 0, nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			if readErr != nil {
				return 0, nil, errors.Wrap(readErr, "error reading response body")
			}
			return resp.StatusCode, body, nil

		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			c.log.Error().Str("url", resolved).Int("status", resp.StatusCode).Msg("terminal response")
			return resp.StatusCode, nil, &domain.TerminalHTTPError{Status: resp.StatusCode, URL: resolved}
		}

		lastStatus = resp.StatusCode
		c.log.Warn().Str("url", resolved).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("retryable response")
		if attempt == c.retryCount {
			break
		}
		if err := c.sleep(ctx, c.retryDelay(resp.StatusCode)); err != nil {
			return 0, nil, err
		}
	}

	return lastStatus, nil, &domain.RetriesExhaustedError{Status: lastStatus, URL: resolved, Attempts: c.retryCount}
}

// Pages fetches a paginated collection. Page 1 goes through the
// conditional cache; on success the page count comes from the X-Pages
// header and pages 2..N are fetched concurrently under the per-host limit.
// Any failing page discards the whole result.
func (c *Client) Pages(ctx context.Context, rawURL, token string, params url.Values) ([]json.RawMessage, error) {
	resolved, err := c.resolveURL(rawURL, params)
	if err != nil {
		return nil, err
	}

	cachedBody, haveBody := c.store.GetBody(ctx, resolved)
	cachedETag, haveETag := c.store.GetETag(ctx, resolved)
	cachedPages, havePages := c.store.GetPages(ctx, resolved)

	var (
		firstPage  json.RawMessage
		pageCount  int
		lastStatus int
	)

	for attempt := 1; attempt <= c.retryCount; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
		if err != nil {
			return nil, errors.Wrap(err, "error building request")
		}
		c.setHeaders(req, token)
		if haveETag && haveBody && havePages {
			req.Header.Set(headerIfNoneMatch, cachedETag)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Error().Err(err).Str("url", resolved).Int("attempt", attempt).Msg("connection error")
			if attempt == c.retryCount {
				return nil, &domain.RetriesExhaustedError{URL: resolved, Attempts: c.retryCount}
			}
			if err := c.sleep(ctx, c.baseDelay); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				return nil, errors.Wrap(readErr, "error reading response body")
			}
			pageCount = 1
			if v := resp.Header.Get(headerPages); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					pageCount = n
				}
			}
			c.storeResponse(ctx, resolved, body, resp.Header, pageCount)
			firstPage = body
			break
		}

		if resp.StatusCode == http.StatusNotModified {
			pageCount = cachedPages
			firstPage = cachedBody
			break
		}

		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden {
			c.log.Error().Str("url", resolved).Int("status", resp.StatusCode).Msg("terminal response")
			return nil, &domain.TerminalHTTPError{Status: resp.StatusCode, URL: resolved}
		}

		lastStatus = resp.StatusCode
		c.log.Warn().Str("url", resolved).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("retryable response")
		if attempt == c.retryCount {
			return nil, &domain.RetriesExhaustedError{Status: lastStatus, URL: resolved, Attempts: c.retryCount}
		}
		if err := c.sleep(ctx, c.retryDelay(resp.StatusCode)); err != nil {
			return nil, err
		}
	}

	var records []json.RawMessage
	if err := json.Unmarshal(firstPage, &records); err != nil {
		return nil, errors.Wrap(err, "error decoding page 1")
	}

	if pageCount < 2 {
		return records, nil
	}

	// Fan out pages 2..N; each page resolves through its own cache entry.
	type pageResult struct {
		records []json.RawMessage
		err     error
	}

	results := make([]pageResult, pageCount-1)
	sem := make(chan struct{}, c.limitPerHost)
	var wg sync.WaitGroup

	for page := 2; page <= pageCount; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pageParams := url.Values{}
			for key, vals := range params {
				pageParams[key] = vals
			}
			pageParams.Set("page", strconv.Itoa(page))

			status, data, err := c.Get(ctx, rawURL, token, pageParams)
			idx := page - 2
			if err != nil {
				results[idx].err = err
				return
			}
			if status != http.StatusOK && status != http.StatusNotModified {
				results[idx].err = &domain.PartialPageError{Status: status, URL: rawURL, Page: page}
				return
			}
			var pageRecords []json.RawMessage
			if err := json.Unmarshal(data, &pageRecords); err != nil {
				results[idx].err = errors.Wrapf(err, "error decoding page %d", page)
				return
			}
			results[idx].records = pageRecords
		}(page)
	}
	wg.Wait()

	for i, res := range results {
		if res.err != nil {
			c.log.Warn().Err(res.err).Str("url", resolved).Int("page", i+2).Msg("discarding paginated result")
			return nil, res.err
		}
		records = append(records, res.records...)
	}

	return records, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) retryDelay(status int) time.Duration {
	modifier := 1
	if m, ok := sleepModifiers[status]; ok {
		modifier = m
	}
	return c.baseDelay * time.Duration(modifier)
}

// storeResponse caches the body and ETag (and page count for paginated
// responses) keyed by the resolved URL.
func (c *Client) storeResponse(ctx context.Context, resolved string, body []byte, header http.Header, pages int) {
	etag := header.Get(headerETag)
	if etag == "" {
		return
	}

	ttl := c.ttlFrom(header.Get(headerExpires), time.Now())

	if err := c.store.SetBody(ctx, resolved, body, ttl); err != nil {
		c.log.Warn().Err(err).Str("url", resolved).Msg("cache write failed")
		return
	}
	if err := c.store.SetETag(ctx, resolved, etag, ttl); err != nil {
		c.log.Warn().Err(err).Str("url", resolved).Msg("cache write failed")
	}
	if pages > 0 {
		if err := c.store.SetPages(ctx, resolved, pages, ttl); err != nil {
			c.log.Warn().Err(err).Str("url", resolved).Msg("cache write failed")
		}
	}
}
