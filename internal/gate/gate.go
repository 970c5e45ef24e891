// Package gate integrates the optional external text classifier. The gate
// fails open: any transport or parse problem yields no assessment and the
// pipeline proceeds without one.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/miner"
)

// Snippet text is clipped before being embedded in the prompt.
const snippetPromptMax = 1200

// Config controls the classifier call.
type Config struct {
	Endpoint    string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Gate implements miner.Gate against an Ollama-style generate endpoint.
type Gate struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ miner.Gate = (*Gate)(nil)

// New builds a Gate.
func New(cfg Config, logger *zap.Logger) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Gate{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Classify asks the external model whether the artifact belongs in the
// index. It returns nil on any failure; the caller must not treat nil as a
// veto.
func (g *Gate) Classify(ctx context.Context, a *miner.Artifact) *miner.Assessment {
	prompt := buildPrompt(a)

	payload, err := json.Marshal(generateRequest{
		Model:       g.cfg.Model,
		Prompt:      prompt,
		Stream:      false,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		g.logger.Warn("gate payload encode failed", zap.Error(err))
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		g.logger.Warn("gate request build failed", zap.Error(err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("gate unreachable", zap.String("endpoint", g.cfg.Endpoint), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Warn("gate returned non-2xx",
			zap.String("endpoint", g.cfg.Endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		g.logger.Warn("gate response read failed", zap.Error(err))
		return nil
	}

	var gen generateResponse
	text := string(body)
	if err := json.Unmarshal(body, &gen); err == nil && gen.Response != "" {
		text = gen.Response
	}

	return g.parseAssessment(text)
}

// parseAssessment pulls the first balanced JSON object out of free text.
// The model's output is not guaranteed to be pure JSON, so surrounding
// prose is tolerated.
func (g *Gate) parseAssessment(text string) *miner.Assessment {
	raw := extractJSONObject(text)
	if raw == "" {
		g.logger.Warn("gate output held no JSON object", zap.String("raw", clip(text, 500)))
		return nil
	}

	var as miner.Assessment
	if err := json.Unmarshal([]byte(raw), &as); err != nil {
		g.logger.Warn("gate output unparsable",
			zap.String("raw", clip(text, 500)),
			zap.Error(err),
		)
		return nil
	}
	if as.Confidence < 0 {
		as.Confidence = 0
	}
	if as.Confidence > 1 {
		as.Confidence = 1
	}
	return &as
}

func buildPrompt(a *miner.Artifact) string {
	return fmt.Sprintf(`You are classifying web pages for a historical artifact index.
Decide whether the page below describes a historical or cultural artifact.
Return strictly one JSON object with fields:
{"verdict": "accept" or "reject", "confidence": number between 0 and 1, "tags": list of strings, "reason": string}

TITLE: %s
SUMMARY: %s
TEXT: %s`, a.Title, a.Summary, clip(a.Snippet, snippetPromptMax))
}

// extractJSONObject returns the first balanced {...} substring, tracking
// brace depth and ignoring braces inside quoted strings. Returns "" when no
// balanced object exists.
func extractJSONObject(text string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// clip bounds s to limit characters, never splitting a rune.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
