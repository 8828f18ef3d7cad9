package export

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/yonasatinafu/portfolio-bot/internal/textutil"
)

const crawlMaxDepth = 3

// crawl walks the live site from the configured base URL and extracts
// readable text from every same-host HTML page.
func (e *Exporter) crawl() ([]Row, error) {
	base, err := url.Parse(e.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", e.cfg.BaseURL)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(base.Host),
		colly.MaxDepth(crawlMaxDepth),
		colly.Async(true),
	)
	c.SetRequestTimeout(time.Duration(e.cfg.TimeoutMS) * time.Millisecond)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: e.cfg.Parallelism,
		Delay:       time.Duration(e.cfg.DelayMS) * time.Millisecond,
	}); err != nil {
		return nil, fmt.Errorf("configuring crawl limits: %w", err)
	}

	// Async collectors run callbacks concurrently.
	var mu sync.Mutex
	byRoute := make(map[string]Row)

	c.OnHTML("a[href]", func(el *colly.HTMLElement) {
		link := el.Attr("href")
		if strings.HasPrefix(link, "#") || strings.HasPrefix(link, "mailto:") {
			return
		}
		// Errors here are expected: off-domain, revisit, depth limit.
		_ = el.Request.Visit(link)
	})

	c.OnResponse(func(r *colly.Response) {
		if !strings.Contains(r.Headers.Get("Content-Type"), "text/html") {
			return
		}

		article, err := readability.FromReader(bytes.NewReader(r.Body), r.Request.URL)
		if err != nil {
			e.logger.Warn("skipping unreadable page", "url", r.Request.URL.String(), "error", err)
			return
		}

		route := textutil.NormalizePagePath(r.Request.URL.Path)
		if route == "" || route == "/404" {
			return
		}

		title := textutil.Normalize(article.Title, maxTitleChars)
		if title == "" {
			title = "Untitled"
		}
		text := textutil.Normalize(article.TextContent, maxExportTextChars)
		if text == "" {
			return
		}

		mu.Lock()
		byRoute[route] = Row{URL: route, Title: title, Text: text}
		mu.Unlock()
	})

	if err := c.Visit(base.String()); err != nil {
		return nil, fmt.Errorf("visiting %s: %w", base, err)
	}
	c.Wait()

	routes := make([]string, 0, len(byRoute))
	for route := range byRoute {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	rows := make([]Row, 0, len(routes))
	for _, route := range routes {
		rows = append(rows, byRoute[route])
	}
	return rows, nil
}
