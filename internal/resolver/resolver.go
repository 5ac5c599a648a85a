// Package resolver turns a tweet ID into its text using unauthenticated
// mirrors: fxtwitter and vxtwitter first, then oEmbed, then Nitter.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/tweet-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/tweet-harvester/internal/metrics"
)

// Default mirror endpoints.
const (
	DefaultFxTwitterURL = "https://api.fxtwitter.com"
	DefaultVxTwitterURL = "https://api.vxtwitter.com"
	DefaultOEmbedURL    = "https://publish.twitter.com/oembed"
)

// Resolution tiers reported to metrics.
const (
	TierFast   = "fast"
	TierOEmbed = "oembed"
	TierNitter = "nitter"
	TierNone   = "none"
)

// Fetcher performs one HTTP GET.
type Fetcher interface {
	Fetch(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the mirror chain.
type Config struct {
	// Timeout bounds each individual mirror request.
	Timeout     time.Duration
	FastOnly    bool
	Race        bool
	AllowNitter bool
	// NitterHosts are tried in order. Entries without a scheme get https.
	NitterHosts []string

	FxTwitterURL string
	VxTwitterURL string
	OEmbedURL    string
}

// Resolver resolves tweet IDs. It is safe for concurrent use.
type Resolver struct {
	cfg     Config
	fetcher Fetcher
	limiter Limiter
	logger  *zap.Logger
}

type mirror struct {
	name  string
	url   string
	parse func([]byte) (string, error)
}

// New builds a Resolver. limiter may be nil.
func New(cfg Config, fetcher Fetcher, limiter Limiter, logger *zap.Logger) *Resolver {
	if cfg.FxTwitterURL == "" {
		cfg.FxTwitterURL = DefaultFxTwitterURL
	}
	if cfg.VxTwitterURL == "" {
		cfg.VxTwitterURL = DefaultVxTwitterURL
	}
	if cfg.OEmbedURL == "" {
		cfg.OEmbedURL = DefaultOEmbedURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: limiter,
		logger:  logger.Named("resolver"),
	}
}

// Resolve returns the trimmed text for an ID or status URL. Failures wrap
// ErrInvalidIdentifier or ErrNotFound; neither is fatal to the caller.
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	id, err := NormalizeID(raw)
	if err != nil {
		return "", err
	}

	var text string
	if r.cfg.Race {
		text = r.raceFast(ctx, id)
	} else {
		text = r.sequentialFast(ctx, id)
	}
	if text = strings.TrimSpace(text); text != "" {
		metrics.ObserveResolve(TierFast)
		return text, nil
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("resolve %s: %w", id, err)
	}
	if r.cfg.FastOnly {
		metrics.ObserveResolve(TierNone)
		return "", fmt.Errorf("resolve %s: fast tier exhausted: %w", id, ErrNotFound)
	}

	if text, err := r.query(ctx, r.oembedMirror(id)); err == nil && text != "" {
		metrics.ObserveResolve(TierOEmbed)
		return text, nil
	}

	if r.cfg.AllowNitter {
		for _, m := range r.nitterMirrors(id) {
			if ctx.Err() != nil {
				break
			}
			if text, err := r.query(ctx, m); err == nil && text != "" {
				metrics.ObserveResolve(TierNitter)
				return text, nil
			}
		}
	}

	metrics.ObserveResolve(TierNone)
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("resolve %s: %w", id, err)
	}
	return "", fmt.Errorf("resolve %s: %w", id, ErrNotFound)
}

func (r *Resolver) fastMirrors(id string) []mirror {
	return []mirror{
		{name: "fxtwitter", url: joinStatus(r.cfg.FxTwitterURL, id), parse: parseFxTwitter},
		{name: "vxtwitter", url: joinStatus(r.cfg.VxTwitterURL, id), parse: parseVxTwitter},
	}
}

func (r *Resolver) oembedMirror(id string) mirror {
	q := url.Values{}
	q.Set("url", "https://x.com/i/web/status/"+id)
	q.Set("omit_script", "true")
	q.Set("hide_thread", "true")
	return mirror{name: "oembed", url: r.cfg.OEmbedURL + "?" + q.Encode(), parse: parseOEmbed}
}

func (r *Resolver) nitterMirrors(id string) []mirror {
	mirrors := make([]mirror, 0, len(r.cfg.NitterHosts))
	for _, host := range r.cfg.NitterHosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		base := host
		if !strings.Contains(base, "://") {
			base = "https://" + base
		}
		mirrors = append(mirrors, mirror{
			name:  "nitter",
			url:   strings.TrimRight(base, "/") + "/i/status/" + id,
			parse: parseNitter,
		})
	}
	return mirrors
}

// raceFast queries both fast mirrors at once and returns the first non-empty
// text. The loser is cancelled and waited for before returning.
func (r *Resolver) raceFast(ctx context.Context, id string) string {
	ctx, cancel := context.WithCancel(ctx)
	mirrors := r.fastMirrors(id)
	results := make(chan string, len(mirrors))

	var wg sync.WaitGroup
	for _, m := range mirrors {
		wg.Add(1)
		go func(m mirror) {
			defer wg.Done()
			text, err := r.query(ctx, m)
			if err != nil {
				text = ""
			}
			results <- strings.TrimSpace(text)
		}(m)
	}

	var winner string
	for range mirrors {
		if text := <-results; text != "" {
			winner = text
			break
		}
	}
	cancel()
	wg.Wait()
	return winner
}

func (r *Resolver) sequentialFast(ctx context.Context, id string) string {
	for _, m := range r.fastMirrors(id) {
		if text, err := r.query(ctx, m); err == nil {
			if text = strings.TrimSpace(text); text != "" {
				return text
			}
		}
		if ctx.Err() != nil {
			return ""
		}
	}
	return ""
}

// query fetches and parses one mirror. Every failure wraps ErrMirrorUnavailable.
func (r *Resolver) query(ctx context.Context, m mirror) (string, error) {
	start := time.Now()
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, m.url); err != nil {
			metrics.ObserveMirror(m.name, "canceled", time.Since(start))
			return "", fmt.Errorf("%s: %w: %w", m.name, ErrMirrorUnavailable, err)
		}
	}

	resp, err := r.fetcher.Fetch(ctx, collyfetcher.Request{URL: m.url, Timeout: r.cfg.Timeout})
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			outcome = "canceled"
		}
		metrics.ObserveMirror(m.name, outcome, time.Since(start))
		r.logger.Debug("mirror request failed",
			zap.String("mirror", m.name),
			zap.String("url", m.url),
			zap.Error(err),
		)
		return "", fmt.Errorf("%s: %w: %w", m.name, ErrMirrorUnavailable, err)
	}

	text, err := m.parse(resp.Body)
	if err != nil {
		metrics.ObserveMirror(m.name, "undecodable", time.Since(start))
		return "", fmt.Errorf("%s: %w: %w", m.name, ErrMirrorUnavailable, err)
	}
	text = strings.TrimSpace(text)
	outcome := "ok"
	if text == "" {
		outcome = "empty"
	}
	metrics.ObserveMirror(m.name, outcome, time.Since(start))
	return text, nil
}

func joinStatus(base, id string) string {
	return strings.TrimRight(base, "/") + "/status/" + id
}
