// Package traverse implements collection traversal: listing-page discovery,
// selector-driven link extraction, and capped detail-page hydration.
package traverse

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/miner"
)

// discoveredLink is a candidate detail page plus the listing it came from.
// Links are deduplicated by exact URL equality within one traversal.
type discoveredLink struct {
	URL     string
	Listing string
}

// Engine implements miner.Traverser by composing a fetcher and an
// extractor.
type Engine struct {
	fetcher   miner.Fetcher
	extractor miner.Extractor
	logger    *zap.Logger
}

var _ miner.Traverser = (*Engine)(nil)

// New builds an Engine.
func New(fetcher miner.Fetcher, extractor miner.Extractor, logger *zap.Logger) *Engine {
	return &Engine{
		fetcher:   fetcher,
		extractor: extractor,
		logger:    logger,
	}
}

// Traverse walks one source and returns its artifacts in listing-then-detail
// discovery order. Every fetch or parse failure is a soft skip; the
// traversal itself never fails.
func (e *Engine) Traverse(ctx context.Context, src miner.Source) []miner.Artifact {
	if src.Collection == nil {
		return e.singlePage(ctx, src)
	}

	links := e.collectLinks(ctx, src, *src.Collection)
	if len(links) == 0 {
		e.logger.Warn("traversal found no candidate links",
			zap.String("source", src.ID),
		)
		return nil
	}

	artifacts := make([]miner.Artifact, 0, len(links))
	for _, link := range links {
		html, err := e.fetcher.Fetch(ctx, link.URL)
		if err != nil {
			e.logger.Warn("detail fetch failed",
				zap.String("source", src.ID),
				zap.String("url", link.URL),
				zap.Error(err),
			)
			continue
		}
		artifact := e.extractor.Extract(src, link.URL, html)
		if artifact == nil {
			e.logger.Warn("detail page had no extractable content",
				zap.String("source", src.ID),
				zap.String("url", link.URL),
			)
			continue
		}
		if artifact.Metadata == nil {
			artifact.Metadata = map[string]string{}
		}
		artifact.Metadata["listing_url"] = link.Listing
		artifacts = append(artifacts, *artifact)
	}
	return artifacts
}

// singlePage treats the source's base URL as the only detail page.
func (e *Engine) singlePage(ctx context.Context, src miner.Source) []miner.Artifact {
	html, err := e.fetcher.Fetch(ctx, src.BaseURL)
	if err != nil {
		e.logger.Warn("base page fetch failed",
			zap.String("source", src.ID),
			zap.String("url", src.BaseURL),
			zap.Error(err),
		)
		return nil
	}
	artifact := e.extractor.Extract(src, src.BaseURL, html)
	if artifact == nil {
		return nil
	}
	return []miner.Artifact{*artifact}
}

// collectLinks walks listing pages in order, extracting candidate links
// until the cap is reached. A failed listing fetch skips that listing only.
func (e *Engine) collectLinks(ctx context.Context, src miner.Source, spec miner.CollectionSpec) []discoveredLink {
	listings := listingURLs(spec)
	limit := spec.Cap()

	var links []discoveredLink
	seen := make(map[string]struct{})

	for _, listing := range listings {
		if len(links) >= limit {
			break
		}

		html, err := e.fetcher.Fetch(ctx, listing)
		if err != nil {
			e.logger.Warn("listing fetch failed",
				zap.String("source", src.ID),
				zap.String("url", listing),
				zap.Error(err),
			)
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			e.logger.Warn("listing parse failed",
				zap.String("source", src.ID),
				zap.String("url", listing),
				zap.Error(err),
			)
			continue
		}

		doc.Find(spec.LinkSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if len(links) >= limit {
				return false
			}
			raw, ok := sel.Attr(spec.Attr())
			if !ok || strings.TrimSpace(raw) == "" {
				return true
			}
			absolute, err := resolveLink(listing, raw)
			if err != nil {
				return true
			}
			if _, dup := seen[absolute]; dup {
				return true
			}
			seen[absolute] = struct{}{}
			links = append(links, discoveredLink{URL: absolute, Listing: listing})
			return true
		})
	}

	e.logger.Info("link collection finished",
		zap.String("source", src.ID),
		zap.Int("candidates", len(links)),
		zap.Int("cap", limit),
	)
	return links
}

// listingURLs expands the static list plus one templated URL per search
// term.
func listingURLs(spec miner.CollectionSpec) []string {
	urls := make([]string, 0, len(spec.ListURLs)+len(spec.SearchTerms))
	urls = append(urls, spec.ListURLs...)
	if spec.SearchTemplate != "" {
		for _, term := range spec.SearchTerms {
			urls = append(urls, strings.ReplaceAll(spec.SearchTemplate, "{query}", url.QueryEscape(term)))
		}
	}
	return urls
}

// resolveLink makes a candidate absolute against the listing page URL.
func resolveLink(listing, raw string) (string, error) {
	base, err := url.Parse(listing)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
