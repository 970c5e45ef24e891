// Package extract turns raw page HTML into normalized artifact metadata
// using goquery.
package extract

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/miner"
)

// Bounds on derived text fields.
const (
	summaryMaxChars = 360
	snippetMaxChars = 2000
)

// Noise nodes removed before text extraction.
var noiseSelectors = "script, style, nav, footer"

// Extractor implements miner.Extractor.
type Extractor struct {
	assessor miner.Assessor
	logger   *zap.Logger
}

var _ miner.Extractor = (*Extractor)(nil)

// New builds an Extractor. The assessor scores the page text so every
// artifact carries a licensing verdict from the moment it exists.
func New(assessor miner.Assessor, logger *zap.Logger) *Extractor {
	return &Extractor{assessor: assessor, logger: logger}
}

// Extract parses one page into an artifact. It returns nil only when the
// page holds nothing extractable; partial fields are acceptable as long as
// title and snippet can be derived.
func (e *Extractor) Extract(src miner.Source, pageURL, html string) *miner.Artifact {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("unparsable page", zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	doc.Find(noiseSelectors).Remove()

	bodyText := collapseWhitespace(doc.Find("body").Text())
	if bodyText == "" {
		bodyText = collapseWhitespace(doc.Text())
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = metaProperty(doc, "og:title")
	}
	if title == "" {
		title = src.Name
	}

	summary := metaProperty(doc, "og:description")
	if summary == "" {
		summary = metaName(doc, "description")
	}
	if summary == "" {
		summary = truncate(bodyText, summaryMaxChars)
	}

	if title == "" && bodyText == "" {
		return nil
	}

	snippet := truncate(bodyText, snippetMaxChars)
	verdict := e.assessor.Assess(bodyText, nil)

	metadata := map[string]string{
		"title_candidate": title,
	}
	if summary != "" {
		metadata["description_candidate"] = summary
	}
	if src.Notes != "" {
		metadata["source_notes"] = src.Notes
	}

	return &miner.Artifact{
		SourceID:   src.ID,
		SourceName: src.Name,
		URL:        pageURL,
		Title:      title,
		Summary:    summary,
		ImageURL:   e.findImage(doc, pageURL),
		License:    verdict,
		Metadata:   metadata,
		Snippet:    snippet,
		CapturedAt: time.Now().UTC(),
	}
}

// findImage prefers og:image, then the first non-icon <img>. Relative
// sources are resolved against the page URL and left untouched when
// resolution fails.
func (e *Extractor) findImage(doc *goquery.Document, pageURL string) string {
	if img := metaProperty(doc, "og:image"); img != "" {
		return resolveAgainst(pageURL, img)
	}

	var found string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		if !ok || src == "" || strings.Contains(strings.ToLower(src), "icon") {
			return true
		}
		found = resolveAgainst(pageURL, src)
		return false
	})
	return found
}

func resolveAgainst(pageURL, ref string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	resolved, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return resolved.String()
}

func metaProperty(doc *goquery.Document, property string) string {
	content, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func metaName(doc *goquery.Document, name string) string {
	content, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate bounds s to limit characters, never splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
