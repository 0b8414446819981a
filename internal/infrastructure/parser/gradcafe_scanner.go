package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/avast/retry-go"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"GradScrape/internal/config"
	"GradScrape/internal/domain"
	"GradScrape/internal/scanner"
)

const (
	gradCafeSurveyURL = "https://www.thegradcafe.com/survey/"
	defaultUserAgent  = "GradScrape/1.0"
)

var errPageNotFound = errors.New("page not found")

type statusError struct {
	status    string
	transient bool
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gradcafe returned %s", e.status)
}

// GradCafeScanner walks survey result pages and returns one raw entry per
// submission.
type GradCafeScanner struct {
	client     *http.Client
	limiter    *rate.Limiter
	userAgent  string
	attempts   uint
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewGradCafeScanner wires an HTTP client with the configured pacing and retry attempts.
func NewGradCafeScanner(client *http.Client, cfg config.ScraperConfig, logger *slog.Logger) *GradCafeScanner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &GradCafeScanner{
		client:     client,
		limiter:    rate.NewLimiter(limit, 1),
		userAgent:  cfg.UserAgent,
		attempts:   cfg.Attempts,
		retryDelay: 500 * time.Millisecond,
		logger:     logger,
	}
}

// Name identifies the strategy inside the registry.
func (g *GradCafeScanner) Name() string {
	return "gradcafe"
}

// Scan fetches pages StartPage..EndPage. A missing page or a page without
// entries ends the walk early.
func (g *GradCafeScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawEntry, error) {
	base := req.URL
	if base == "" {
		base = gradCafeSurveyURL
	}
	start, end := req.StartPage, req.EndPage
	if start <= 0 {
		start = 1
	}
	if end <= 0 {
		end = start
	}
	if end < start {
		return nil, fmt.Errorf("source %s: end page %d before start page %d", req.SourceName, end, start)
	}

	results := make([]domain.RawEntry, 0)
	for page := start; page <= end; page++ {
		pageURL, err := buildPageURL(base, page)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", req.SourceName, err)
		}

		doc, err := g.fetchDocument(ctx, pageURL)
		if errors.Is(err, errPageNotFound) {
			g.debug("page missing, stopping", "page", page)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		entries := extractEntries(doc, pageURL, page)
		g.debug("page scanned", "page", page, "entries", len(entries))
		if len(entries) == 0 {
			break
		}
		results = append(results, entries...)
	}

	return results, nil
}

func (g *GradCafeScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var doc *goquery.Document

	err := retry.Do(
		func() error {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
			fetched, err := g.fetchOnce(ctx, pageURL)
			if err != nil {
				return err
			}
			doc = fetched
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(g.attempts),
		retry.Delay(g.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			g.debug("retrying page", "url", pageURL, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (g *GradCafeScanner) fetchOnce(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errPageNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, &statusError{status: resp.Status, transient: true}
	case resp.StatusCode != http.StatusOK:
		return nil, &statusError{status: resp.Status}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.transient
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// extractEntries groups table rows into submissions: a row with at least four
// cells and a non-empty first cell opens an entry; following rows that do not
// are appended to its text (badges, notes).
func extractEntries(doc *goquery.Document, pageURL string, page int) []domain.RawEntry {
	var (
		entries []domain.RawEntry
		current *domain.RawEntry
		texts   []string
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.Join(texts, " ")
		entries = append(entries, *current)
		current, texts = nil, nil
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() >= 4 && nodeText(cells.Eq(0)) != "" {
			flush()
			current = &domain.RawEntry{
				University: nodeText(cells.Eq(0)),
				Program:    nodeText(cells.Eq(1)),
				DateAdded:  nodeText(cells.Eq(2)),
				Decision:   nodeText(cells.Eq(3)),
				PageURL:    pageURL,
				Page:       page,
			}
		} else if current == nil {
			return
		}

		if text := nodeText(row); text != "" {
			texts = append(texts, text)
		}
		if current.EntryURL == "" {
			current.EntryURL = resultLink(row, pageURL)
		}
	})
	flush()

	return entries
}

func resultLink(row *goquery.Selection, pageURL string) string {
	href, ok := row.Find(`a[href*="/result/"]`).First().Attr("href")
	if !ok || href == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// nodeText joins every text node under sel with single spaces, so adjacent
// inline elements do not run together.
func nodeText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func buildPageURL(base string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid survey url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("page", strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (g *GradCafeScanner) debug(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, args...)
	}
}
