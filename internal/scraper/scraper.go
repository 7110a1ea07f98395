package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/pfrederiksen/notice-watch/internal/logger"
	"github.com/pfrederiksen/notice-watch/internal/notice"
)

const (
	UserAgent      = "Mozilla/5.0 (compatible; notice-watch/1.0)"
	AcceptLanguage = "ko,en;q=0.8"
	Timeout        = 30 * time.Second

	// maxPageBytes bounds how much of a list page is read.
	maxPageBytes = 8 << 20
)

// StatusError reports a non-2xx response from the board.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scraper) { s.client = client }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Scraper) {
		if timeout > 0 {
			s.client.Timeout = timeout
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithPageObserver registers a callback invoked after each page is fetched.
func WithPageObserver(fn func(page, notices int)) Option {
	return func(s *Scraper) { s.onPage = fn }
}

// Scraper handles fetching and parsing board list pages
type Scraper struct {
	client    *http.Client
	board     notice.Board
	userAgent string
	onPage    func(page, notices int)
}

// New creates a new Scraper for the given board
func New(board notice.Board, opts ...Option) *Scraper {
	s := &Scraper{
		client: &http.Client{
			Timeout: Timeout,
		},
		board:     board,
		userAgent: UserAgent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchPage fetches one list page and returns its markup decoded to UTF-8.
func (s *Scraper) FetchPage(ctx context.Context, page int) (string, error) {
	pageURL := s.board.ListURL(page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", AcceptLanguage)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decoding page %d: %w", page, err)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading page %d: %w", page, err)
	}

	return strings.ToValidUTF8(string(raw), "�"), nil
}

// FetchNotices fetches pages 1..pages in order and returns the notices found,
// deduplicated by id across pages. Any page failure fails the whole fetch.
func (s *Scraper) FetchNotices(ctx context.Context, pages int) ([]notice.Notice, error) {
	if pages < 1 {
		pages = 1
	}

	all := make([]notice.Notice, 0)
	for page := 1; page <= pages; page++ {
		markup, err := s.FetchPage(ctx, page)
		if err != nil {
			return nil, err
		}

		notices, err := ParseNotices(strings.NewReader(markup), s.board)
		if err != nil {
			return nil, fmt.Errorf("parsing page %d: %w", page, err)
		}

		logger.Debug("Fetched list page", logger.Fields{
			"page":    page,
			"notices": len(notices),
		})
		if s.onPage != nil {
			s.onPage(page, len(notices))
		}

		all = append(all, notices...)
	}

	return notice.Dedup(all), nil
}
