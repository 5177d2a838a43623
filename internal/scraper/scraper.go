// Package scraper fetches page titles for the new-bookmark form.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/tagmarkapp/tagmark-server/internal/ratelimit"
)

// maxBodyBytes bounds how much of a page is read; titles live in <head>.
const maxBodyBytes = 512 << 10

const userAgent = "Mozilla/5.0 (compatible; Tagmark/1.0; +https://github.com/tagmarkapp/tagmark-server)"

// ErrNoTitle is returned when a page has neither <title> nor og:title.
var ErrNoTitle = errors.New("page has no title")

// Config tunes the scraper.
type Config struct {
	Timeout  time.Duration
	HostRPS  float64
	CacheTTL time.Duration
	// Client overrides the HTTP client; mostly for tests.
	Client *http.Client
}

// Scraper fetches and caches page titles, rate limited per host.
type Scraper struct {
	client  *http.Client
	limiter *ratelimit.KeyedRateLimiter
	cache   *cache.Cache
	logger  *slog.Logger
}

// New creates a scraper.
func New(cfg Config, logger *slog.Logger) *Scraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HostRPS <= 0 {
		cfg.HostRPS = 1
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Scraper{
		client:  client,
		limiter: ratelimit.New(cfg.HostRPS, 2),
		cache:   cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:  logger.With("component", "scraper"),
	}
}

// Close stops the per-host limiter.
func (s *Scraper) Close() {
	s.limiter.Stop()
}

// FetchTitle returns the page title for rawURL, or rawURL itself when the
// page cannot be fetched or has no title. Results are cached either way.
func (s *Scraper) FetchTitle(ctx context.Context, rawURL string) string {
	if v, ok := s.cache.Get(rawURL); ok {
		return v.(string)
	}

	title, err := s.Title(ctx, rawURL)
	if err != nil {
		s.logger.Debug("title lookup failed", "url", rawURL, "error", err)
		title = rawURL
	}
	if ctx.Err() == nil {
		s.cache.SetDefault(rawURL, title)
	}
	return title
}

// Title fetches rawURL and extracts its title, honouring the charset declared
// by the response or the document itself.
func (s *Scraper) Title(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if err := s.limiter.Wait(ctx, strings.ToLower(u.Hostname())); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	title, err := extractTitle(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}
	if title == "" {
		return "", ErrNoTitle
	}
	return title, nil
}

// extractTitle decodes body to UTF-8 and returns its collapsed <title> text,
// falling back to og:title.
func extractTitle(body []byte, contentType string) (string, error) {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decoded))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	title := collapse(doc.Find("title").First().Text())
	if title == "" {
		title = collapse(doc.Find("meta[property='og:title']").AttrOr("content", ""))
	}
	return title, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
