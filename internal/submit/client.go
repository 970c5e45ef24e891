// Package submit talks to the master ingest service and the optional
// mirror store.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/miner"
)

// Client submits artifacts to the master and reads its source list.
type Client struct {
	baseURL    string
	token      string
	nodeID     string
	mirrorURL  string
	mirrorTok  string
	httpClient *http.Client
	logger     *zap.Logger
}

// Options configures a Client.
type Options struct {
	MasterBaseURL string
	MasterToken   string
	NodeID        string
	MirrorBaseURL string
	MirrorToken   string
	Timeout       time.Duration
}

// New builds a Client. An empty mirror base URL disables mirroring.
func New(opts Options, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.MasterBaseURL, "/"),
		token:      opts.MasterToken,
		nodeID:     opts.NodeID,
		mirrorURL:  strings.TrimRight(opts.MirrorBaseURL, "/"),
		mirrorTok:  opts.MirrorToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ingestRequest is the master's submission envelope. The artifact travels
// as a JSON string in the content field.
type ingestRequest struct {
	URL     string `json:"url"`
	NodeID  string `json:"node_id"`
	Content string `json:"content"`
}

// Submit delivers one artifact to the master. Any non-2xx response is a
// hard failure carrying the response body.
func (c *Client) Submit(ctx context.Context, artifact miner.Artifact) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	req := ingestRequest{
		URL:     artifact.URL,
		NodeID:  c.nodeID,
		Content: string(payload),
	}
	return c.post(ctx, c.baseURL+"/master/ingest", c.token, req)
}

// remoteSource tolerates the field shapes the master has been seen to
// emit: numeric or string ids, snake or camel base URL keys.
type remoteSource struct {
	ID      json.RawMessage `json:"id"`
	Name    string          `json:"name"`
	SnakeB  string          `json:"base_url"`
	CamelB  string          `json:"baseUrl"`
	URLOnly string          `json:"url"`
	Kind    string          `json:"kind"`
	Notes   string          `json:"notes"`
}

func (r remoteSource) id() string {
	if len(r.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(r.ID, &n); err == nil {
		return n.String()
	}
	return ""
}

func (r remoteSource) baseURL() string {
	for _, candidate := range []string{r.SnakeB, r.CamelB, r.URLOnly} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// ListSources fetches the master's source list, normalizing each entry.
// Entries without a resolvable base URL are dropped; missing ids are
// synthesized so downstream code can rely on one being present.
func (c *Client) ListSources(ctx context.Context) ([]miner.Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sources", nil)
	if err != nil {
		return nil, fmt.Errorf("build sources request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sources: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch sources: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw []remoteSource
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}

	sources := make([]miner.Source, 0, len(raw))
	for _, r := range raw {
		base := r.baseURL()
		u, err := url.Parse(base)
		if base == "" || err != nil || u.Scheme == "" || u.Host == "" {
			c.logger.Warn("dropping remote source without usable base url",
				zap.String("name", r.Name),
			)
			continue
		}
		src := miner.Source{
			ID:      r.id(),
			Name:    r.Name,
			BaseURL: base,
			Kind:    miner.SourceKind(r.Kind),
			Notes:   r.Notes,
		}
		if src.ID == "" {
			src.ID = uuid.NewString()
		}
		if src.Name == "" {
			src.Name = u.Host
		}
		if src.Kind == "" {
			src.Kind = miner.SourceKindGeneric
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// MirrorSource copies a source record to the mirror store. Best effort;
// failures are logged and swallowed.
func (c *Client) MirrorSource(ctx context.Context, source miner.Source) {
	if c.mirrorURL == "" {
		return
	}
	if err := c.post(ctx, c.mirrorURL+"/api/sources", c.mirrorTok, source); err != nil {
		c.logger.Warn("mirror source failed",
			zap.String("source_id", source.ID),
			zap.Error(err),
		)
	}
}

// MirrorArtifact copies an artifact to the mirror store. Best effort.
func (c *Client) MirrorArtifact(ctx context.Context, artifact miner.Artifact) {
	if c.mirrorURL == "" {
		return
	}
	if err := c.post(ctx, c.mirrorURL+"/api/artifacts", c.mirrorTok, artifact); err != nil {
		c.logger.Warn("mirror artifact failed",
			zap.String("url", artifact.URL),
			zap.Error(err),
		)
	}
}

func (c *Client) post(ctx context.Context, endpoint, token string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("post %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
