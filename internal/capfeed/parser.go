// Package capfeed implements the CAP Parser (C2): it fetches a source's RSS
// index, extracts publisher identifiers with a fallback cascade, fetches
// and decodes each alert's CAP XML detail document (with retry, caching,
// and an HTML-fallback path), and transforms the result into the canonical
// model.Alert shape.
package capfeed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"

	"capalert/internal/model"
)

// MaxItemsPerFetch caps the number of RSS items processed by one
// fetchAlerts call (spec.md §4.2 "Concurrency within a fetch").
const MaxItemsPerFetch = 20

// DetailFetchPaceDelay is the minimum inter-start delay between detail
// fetches within one cycle.
const DetailFetchPaceDelay = 100 * time.Millisecond

// DetailCacheTTL is the per-identifier response cache lifetime.
const DetailCacheTTL = 5 * time.Minute

const (
	httpTimeout   = 120 * time.Second
	maxRetries    = 3
	initialBackoff = 1 * time.Second
	maxBodyBytes  = 10 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests, satisfied by
// *http.Client and swappable with a fake in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Parser fetches and normalizes CAP alerts for one or more sources.
type Parser struct {
	client HTTPClient
	log    *slog.Logger
	cache  *detailCache

	statsMu sync.Mutex
	stats   model.ParserStats
}

// New builds a Parser. client defaults to an *http.Client with the
// spec-mandated 120s timeout and keep-alive connection pooling; log
// defaults to a discard logger.
func New(client HTTPClient, log *slog.Logger) *Parser {
	if client == nil {
		client = &http.Client{
			Timeout: httpTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Parser{
		client: client,
		log:    log,
		cache:  newDetailCache(DetailCacheTTL),
	}
}

// Stats returns a snapshot of the parser's running counters.
func (p *Parser) Stats() model.ParserStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// FetchAlerts fetches source.FeedURL's RSS index, extracts up to
// MaxItemsPerFetch identifiers, fetches each alert's detail document
// (paced, concurrently, individual failures non-fatal), and returns the
// successfully transformed alerts.
func (p *Parser) FetchAlerts(ctx context.Context, sourceID, feedURL string) ([]model.Alert, error) {
	items, err := p.fetchIndex(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", feedURL, err)
	}
	if len(items) > MaxItemsPerFetch {
		items = items[:MaxItemsPerFetch]
	}

	type outcome struct {
		alert model.Alert
		ok    bool
	}
	results := make([]outcome, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		identifier := extractIdentifier(item.Link, item.GUID, item.Title, item.Description)
		if identifier == "" {
			p.incStat(func(s *model.ParserStats) { s.IdentifierMisses++ })
			continue
		}
		wg.Add(1)
		go func(i int, identifier string) {
			defer wg.Done()
			alert, err := p.fetchOneAlert(ctx, sourceID, feedURL, identifier)
			if err != nil {
				p.log.Warn("capfeed: detail fetch failed", "identifier", identifier, "error", err)
				p.incStat(func(s *model.ParserStats) { s.FailedFetch++ })
				return
			}
			p.incStat(func(s *model.ParserStats) { s.SuccessfulFetch++ })
			results[i] = outcome{alert: alert, ok: true}
		}(i, identifier)
		time.Sleep(DetailFetchPaceDelay)
	}
	wg.Wait()

	var alerts []model.Alert
	for _, r := range results {
		if r.ok {
			alerts = append(alerts, r.alert)
		}
	}
	return alerts, nil
}

type feedItem struct {
	Title       string
	Description string
	Link        string
	GUID        string
}

// fetchIndex GETs the source's RSS/Atom index and returns its items.
func (p *Parser) fetchIndex(ctx context.Context, feedURL string) ([]feedItem, error) {
	body, _, err := p.getWithRetry(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	items := make([]feedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		items = append(items, feedItem{
			Title:       it.Title,
			Description: it.Description,
			Link:        it.Link,
			GUID:        it.GUID,
		})
	}
	return items, nil
}

// fetchOneAlert fetches, decodes, and transforms one alert's detail
// document, consulting and populating the response cache and falling back
// to HTML scraping on a 404 (spec.md §4.2).
func (p *Parser) fetchOneAlert(ctx context.Context, sourceID, baseURL, identifier string) (model.Alert, error) {
	if cached, ok := p.cache.get(identifier); ok {
		p.incStat(func(s *model.ParserStats) { s.CacheHits++ })
		return toModelAlert(sourceID, &cached), nil
	}

	detailURL := strings.TrimRight(baseURL, "/") + identifier
	body, status, err := p.getWithRetry(ctx, detailURL)
	if err != nil && status != http.StatusNotFound {
		return model.Alert{}, err
	}

	if status == http.StatusNotFound {
		body, err = p.fetchViaHTMLFallback(ctx, baseURL, identifier)
		if err != nil {
			return model.Alert{}, err
		}
		p.incStat(func(s *model.ParserStats) { s.HTMLFallbacks++ })
	}

	ca, err := decodeCAPXML(strings.NewReader(string(body)))
	if err != nil {
		return model.Alert{}, fmt.Errorf("decode CAP xml for %s: %w", identifier, err)
	}
	if ca.Identifier == "" {
		ca.Identifier = identifier
	}

	p.cache.put(identifier, *ca)
	return toModelAlert(sourceID, ca), nil
}

// fetchViaHTMLFallback scrapes the human-facing page for either a
// FetchXMLFile link to re-fetch, or an inline <alert> block to use as-is.
func (p *Parser) fetchViaHTMLFallback(ctx context.Context, baseURL, identifier string) ([]byte, error) {
	humanURL := strings.TrimRight(baseURL, "/") + identifier
	body, _, err := p.getWithRetry(ctx, humanURL)
	if err != nil {
		return nil, fmt.Errorf("fetch html fallback page: %w", err)
	}

	xmlLink, inline := extractHTMLFallback(string(body))
	if inline != "" {
		return []byte(inline), nil
	}
	if xmlLink == "" {
		return nil, fmt.Errorf("no XML link or inline alert found in HTML fallback for %s", identifier)
	}
	xmlBody, _, err := p.getWithRetry(ctx, xmlLink)
	if err != nil {
		return nil, fmt.Errorf("fetch fallback XML link: %w", err)
	}
	return xmlBody, nil
}

// getWithRetry performs a GET with up to maxRetries attempts and
// exponential backoff between attempts (1s, then 2s) on network errors or
// 5xx responses.
// 4xx responses (aside from returning their status for 404 handling) are
// not retried.
func (p *Parser) getWithRetry(ctx context.Context, url string) ([]byte, int, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		p.incStat(func(s *model.ParserStats) { s.RequestsTotal++ })

		body, status, err := p.doGet(ctx, url)
		if err == nil && status < 400 {
			return body, status, nil
		}
		if err == nil && status >= 400 && status < 500 {
			return body, status, fmt.Errorf("http status %d", status)
		}
		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("http status %d", status)
		}
		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, 0, fmt.Errorf("giving up after %d attempts: %w", maxRetries, lastErr)
}

func (p *Parser) doGet(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "CapAlertPipeline/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (p *Parser) incStat(f func(*model.ParserStats)) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	f(&p.stats)
}
