// Package fetcher implements bounded-time page retrieval using gocolly.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/metrics"
	"github.com/histocoin/artifact-miner/internal/miner"
)

// Config controls collector behavior.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	PerHostQPS float64
}

// Fetcher implements miner.Fetcher using a cloned Colly collector per
// request. A per-host token bucket keeps repeated detail-page fetches
// polite.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       *hostLimiter
	logger        *zap.Logger
}

var _ miner.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	})
	base.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: base,
		limiter:       newHostLimiter(cfg.PerHostQPS),
		logger:        logger,
	}
}

type fetchResult struct {
	body       string
	statusCode int
	err        error
}

// Fetch retrieves a page as text. The deadline applies to the whole call;
// the timer is always released regardless of outcome. Non-2xx status,
// network failure, and timeout all return an error with no content.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	start := time.Now()
	outcome := "error"
	defer func() { metrics.ObservePage(rawURL, outcome, time.Since(start)) }()

	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	if err := f.limiter.Wait(fetchCtx, rawURL); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{
			body:       string(r.Body),
			statusCode: r.StatusCode,
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		send(fetchResult{statusCode: status, err: err})
	})

	done := make(chan error, 1)
	go func() {
		if err := collector.Visit(rawURL); err != nil {
			send(fetchResult{err: err})
		}
		collector.Wait()
		done <- nil
	}()

	select {
	case <-fetchCtx.Done():
		return "", fmt.Errorf("fetch %s: %w", rawURL, fetchCtx.Err())
	case <-done:
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("fetch %s: %w", rawURL, res.err)
		}
		if res.statusCode < 200 || res.statusCode > 299 {
			outcome = "status"
			return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, res.statusCode)
		}
		outcome = "ok"
		f.logger.Debug("page fetched",
			zap.String("url", rawURL),
			zap.Int("status", res.statusCode),
			zap.Int("bytes", len(res.body)),
		)
		return res.body, nil
	default:
		return "", fmt.Errorf("fetch %s: no response produced", rawURL)
	}
}
