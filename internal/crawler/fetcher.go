package crawler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// Page is the raw result of fetching one URL.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// CollyFetcher implements Fetcher on a Colly collector.
type CollyFetcher struct {
	base *colly.Collector
}

// NewCollyFetcher constructs a configured Colly-based Fetcher.
func NewCollyFetcher(userAgent string, timeout time.Duration) *CollyFetcher {
	base := colly.NewCollector(colly.UserAgent(userAgent))
	base.AllowURLRevisit = true
	base.SetRequestTimeout(timeout)
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	})
	return &CollyFetcher{base: base}
}

type fetchResult struct {
	page Page
	err  error
}

// Fetch retrieves rawURL via a clone of the base collector.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	collector := f.base.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{page: Page{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte{}, r.Body...),
		}})
	})

	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		page := Page{URL: rawURL}
		if r != nil {
			page.StatusCode = r.StatusCode
		}
		send(fetchResult{page: page, err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return Page{}, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}
		return res.page, res.err
	case <-ctx.Done():
		return Page{}, ctx.Err()
	}
}
