// Package search queries DuckDuckGo's HTML results page and extracts
// title/url/snippet triples by structural pattern matching. Failures of any
// kind degrade to an empty result list: the caller (an LLM tool) must never
// see an error from here.
package search

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/NadavAzoulay124/portfolio.AI/internal/config"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	endpoint = "https://duckduckgo.com/html/"
	// DuckDuckGo serves a captcha page to obvious bots.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	// DefaultResults is used when the caller does not ask for a count.
	DefaultResults = 5
	maxResults     = 10
)

// Result is one extracted search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher is the capability the agent's web_search tool consumes.
type Searcher interface {
	Search(ctx context.Context, query string, numResults int) []Result
}

// Client queries the search engine over HTTP.
// It implements the Searcher interface.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ Searcher = (*Client)(nil)

// NewClient creates a new web search client.
func NewClient(cfg *config.Search, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)

	return &Client{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}
}

// Search returns up to numResults hits for the query. An empty or blank
// query returns an empty list without touching the network. numResults is
// clamped to [1, 10], with 5 used when no count is given.
func (c *Client) Search(ctx context.Context, query string, numResults int) []Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}
	}
	if numResults <= 0 {
		numResults = DefaultResults
	}
	if numResults > maxResults {
		numResults = maxResults
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Warn("search rate limiter wait failed", zap.Error(err))
		return []Result{}
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetFormData(map[string]string{"q": query}).
		Post("")
	if err != nil {
		c.logger.Warn("web search request failed", zap.String("query", query), zap.Error(err))
		return []Result{}
	}
	if resp.IsError() {
		c.logger.Warn("web search returned error status",
			zap.String("query", query), zap.Int("status", resp.StatusCode()))
		return []Result{}
	}

	results, err := parseResults(resp.Body(), numResults)
	if err != nil {
		c.logger.Warn("failed to parse search results", zap.Error(err))
		return []Result{}
	}
	return results
}

// parseResults extracts hits from the results page markup.
func parseResults(body []byte, limit int) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	results := []Result{}
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		anchor := sel.Find("a.result__a").First()
		if anchor.Length() == 0 {
			return true
		}
		href, _ := anchor.Attr("href")

		snippetSel := sel.Find("a.result__snippet").First()
		if snippetSel.Length() == 0 {
			snippetSel = sel.Find("div.result__snippet").First()
		}

		results = append(results, Result{
			Title:   strings.TrimSpace(anchor.Text()),
			URL:     resolveRedirect(href),
			Snippet: strings.TrimSpace(snippetSel.Text()),
		})
		return len(results) < limit
	})
	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<target> redirect links to
// their real target URL. Anything else passes through unchanged.
func resolveRedirect(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(parsed.Host, "duckduckgo.com") && parsed.Path == "/l/" {
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}
