package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/histocoin/artifact-miner/internal/miner"
)

// Registry layers dedup and append semantics over a Store. Every operation
// re-reads the backing store so edits from other processes are not lost;
// truly concurrent writers still race (last writer wins).
type Registry struct {
	store Store
}

// New builds a Registry over the given store.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// NormalizeURL canonicalizes a raw URL for dedup: default https scheme,
// lowercase scheme and host, no fragment, no trailing slash.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), nil
}

// dedupKey is the case-insensitive lookup form of a normalized URL,
// restricted to scheme, host, and path.
func dedupKey(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil {
		return strings.ToLower(normalized)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host + u.Path)
}

// AddIfAbsent registers a source keyed by its normalized URL. When an entry
// with the same key already exists it is returned unchanged with
// added=false; existing entries are never overwritten.
func (r *Registry) AddIfAbsent(src miner.Source) (bool, miner.Source, error) {
	normalized, err := NormalizeURL(src.BaseURL)
	if err != nil {
		return false, miner.Source{}, err
	}

	sources, err := r.store.Load()
	if err != nil {
		return false, miner.Source{}, err
	}

	key := dedupKey(normalized)
	for _, existing := range sources {
		existingNorm, nerr := NormalizeURL(existing.BaseURL)
		if nerr != nil {
			continue
		}
		if dedupKey(existingNorm) == key {
			return false, existing, nil
		}
	}

	entry := src
	entry.BaseURL = normalized
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Name == "" {
		if u, perr := url.Parse(normalized); perr == nil {
			entry.Name = u.Host
		} else {
			entry.Name = normalized
		}
	}
	if entry.Kind == "" {
		entry.Kind = miner.SourceKindGeneric
	}

	sources = append(sources, entry)
	if err := r.store.Save(sources); err != nil {
		return false, miner.Source{}, err
	}
	return true, entry, nil
}

// List returns every registered source.
func (r *Registry) List() ([]miner.Source, error) {
	return r.store.Load()
}
