// Package search implements the web-search backend on DuckDuckGo's HTML
// endpoint. Results carry only host, date and snippet; full page content
// never enters the pipeline.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/circuitbreaker"
	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

const (
	duckDuckGoSearchURL = "https://html.duckduckgo.com/html/"
	searchTimeout       = 15 * time.Second
	maxSearchResults    = 10
)

type DuckDuckGoBackend struct {
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker

	endpoint     string
	newsEndpoint string // used for day/week recency when set
	apiKey       string // only sent to self-hosted proxy endpoints
}

// NewDuckDuckGoBackend builds the backend. All arguments are optional:
// an empty endpoint falls back to the public HTML endpoint, and the news
// endpoint and API key only matter for self-hosted search proxies.
func NewDuckDuckGoBackend(endpoint, newsEndpoint, apiKey string) *DuckDuckGoBackend {
	if endpoint == "" {
		endpoint = duckDuckGoSearchURL
	}
	return &DuckDuckGoBackend{
		endpoint:     endpoint,
		newsEndpoint: newsEndpoint,
		apiKey:       apiKey,
		client: &http.Client{
			Timeout: searchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, recency models.RecencyHint, limit int) ([]ports.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if len(query) > 500 {
		query = query[:500]
	}
	if limit < 1 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	var results []ports.SearchResult
	err := b.breaker.Execute(func() error {
		var err error
		results, err = b.performSearch(ctx, query, recency, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSearchUnavailable, err)
	}
	return results, nil
}

func (b *DuckDuckGoBackend) performSearch(ctx context.Context, query string, recency models.RecencyHint, limit int) ([]ports.SearchResult, error) {
	formData := url.Values{}
	formData.Set("q", query)
	formData.Set("b", "")
	formData.Set("kl", "us-en")
	if df := recencyFilter(recency); df != "" {
		formData.Set("df", df)
	}

	endpoint := b.endpoint
	if b.newsEndpoint != "" && (recency == models.RecencyDay || recency == models.RecencyWeek) {
		endpoint = b.newsEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Mnemo/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return parseSearchResults(string(body), limit), nil
}

// recencyFilter maps recency hints to DuckDuckGo's date filter.
func recencyFilter(recency models.RecencyHint) string {
	switch recency {
	case models.RecencyDay:
		return "d"
	case models.RecencyWeek:
		return "w"
	case models.RecencyMonth:
		return "m"
	}
	return ""
}

var (
	linkPattern    = regexp.MustCompile(`<a[^>]+class="[^"]*result__a[^"]*"[^>]+href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	snippetPattern = regexp.MustCompile(`<a[^>]+class="[^"]*result__snippet[^"]*"[^>]*>([\s\S]*?)</a>`)
	resultPattern  = regexp.MustCompile(`<div class="result[^"]*"[^>]*>([\s\S]*?)</div>\s*(?:<div class="result|<div class="footer|$)`)
	// Leading "Aug 12, 2024 —" style date, as DuckDuckGo prefixes snippets
	snippetDate = regexp.MustCompile(`^([A-Z][a-z]{2} \d{1,2}, \d{4})`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
	numEntity   = regexp.MustCompile(`&#(\d+);`)
)

func parseSearchResults(html string, limit int) []ports.SearchResult {
	var results []ports.SearchResult

	for _, block := range resultPattern.FindAllStringSubmatch(html, -1) {
		if len(results) >= limit {
			break
		}

		blockHTML := block[1]

		linkMatch := linkPattern.FindStringSubmatch(blockHTML)
		if len(linkMatch) < 3 {
			continue
		}

		resultURL := decodeHTMLEntities(linkMatch[1])
		if strings.Contains(resultURL, "duckduckgo.com") || strings.HasPrefix(resultURL, "/") {
			continue
		}

		result := ports.SearchResult{
			Title: decodeHTMLEntities(stripHTMLTags(linkMatch[2])),
			Host:  hostOf(resultURL),
		}

		if snippetMatch := snippetPattern.FindStringSubmatch(blockHTML); len(snippetMatch) > 1 {
			snippet := decodeHTMLEntities(stripHTMLTags(snippetMatch[1]))
			if m := snippetDate.FindStringSubmatch(snippet); m != nil {
				result.Date = m[1]
			}
			result.Snippet = snippet
		}

		results = append(results, result)
	}

	return results
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}

func stripHTMLTags(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}

func decodeHTMLEntities(s string) string {
	replacements := map[string]string{
		"&amp;":  "&",
		"&lt;":   "<",
		"&gt;":   ">",
		"&quot;": "\"",
		"&#39;":  "'",
		"&apos;": "'",
		"&nbsp;": " ",
	}
	for entity, char := range replacements {
		s = strings.ReplaceAll(s, entity, char)
	}

	s = numEntity.ReplaceAllStringFunc(s, func(match string) string {
		numStr := strings.TrimPrefix(strings.TrimSuffix(match, ";"), "&#")
		if num, err := strconv.Atoi(numStr); err == nil && num < 1114112 {
			return string(rune(num))
		}
		return match
	})

	return strings.TrimSpace(s)
}
