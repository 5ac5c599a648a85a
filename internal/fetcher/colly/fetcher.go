// Package collyfetcher implements single-page HTTP GETs using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Request describes one GET.
type Request struct {
	URL     string
	Headers http.Header
	// Timeout overrides Config.Timeout for this request when positive.
	Timeout time.Duration
}

// Response is the result of a successful (2xx) GET.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Fetcher performs GETs through one shared, pooled transport. It is safe for
// concurrent use.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	// The backend is shared by every clone, so it is configured exactly once.
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Non-2xx responses return *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, request Request) (Response, error) {
	timeout := f.cfg.Timeout
	if request.Timeout > 0 {
		timeout = request.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		result   Response
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.Context = reqCtx
	f.configureCollectorHooks(collector, request, start, &result, &fetchErr)

	if err := collector.Visit(request.URL); err != nil {
		if ctxErr := reqCtx.Err(); ctxErr != nil {
			return Response{}, fmt.Errorf("colly fetch canceled: %w", ctxErr)
		}
		if fetchErr != nil {
			return Response{}, fetchErr
		}
		return Response{}, fmt.Errorf("colly visit failed: %w", err)
	}
	if fetchErr != nil {
		return Response{}, fetchErr
	}
	if result.StatusCode == 0 {
		return Response{}, errors.New("colly returned no response")
	}
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request Request,
	start time.Time,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
			*fetchErr = &StatusError{URL: request.URL, StatusCode: r.StatusCode}
			return
		}
		*fetchErr = fmt.Errorf("colly response failed: %w", err)
	})
}

func (f *Fetcher) copyHeaders(request Request, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}
