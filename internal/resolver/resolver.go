// Package resolver decides which sources the pipeline processes in a pass.
// The precedence chain is an ordered list of fallible strategies: explicit
// target, random registry sample, remote list, local file (falling back to
// the remote list on any load or validation error).
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/miner"
)

// Options captures the per-run resolution knobs.
type Options struct {
	// TargetURL processes a single ad-hoc source, registering it first.
	TargetURL string
	// RandomFromRegistry samples one known source uniformly.
	RandomFromRegistry bool
	// RemoteList forces fetching the master's source list.
	RemoteList bool
	// LocalFile is a path to a source-list JSON document.
	LocalFile string
}

// Resolver implements the precedence chain.
type Resolver struct {
	registry miner.Registry
	remote   RemoteLister
	logger   *zap.Logger
	pick     func(n int) int
}

// RemoteLister fetches the master's source list.
type RemoteLister interface {
	ListSources(ctx context.Context) ([]miner.Source, error)
}

// New builds a Resolver.
func New(registry miner.Registry, remote RemoteLister, logger *zap.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		remote:   remote,
		logger:   logger,
		pick:     rand.Intn,
	}
}

// Resolve returns the ordered list of sources for this pass. An empty
// result is never an error; the driver retries at the next interval.
func (r *Resolver) Resolve(ctx context.Context, opts Options) []miner.Source {
	if opts.TargetURL != "" {
		return r.explicitTarget(opts.TargetURL)
	}
	if opts.RandomFromRegistry {
		return r.randomFromRegistry()
	}
	if opts.RemoteList {
		return r.remoteList(ctx)
	}
	if opts.LocalFile != "" {
		sources, err := loadSourceFile(opts.LocalFile)
		if err != nil {
			r.logger.Warn("local source list rejected, falling back to remote",
				zap.String("path", opts.LocalFile),
				zap.Error(err),
			)
			return r.remoteList(ctx)
		}
		return sources
	}
	r.logger.Warn("no source input configured; nothing to process this pass")
	return nil
}

// explicitTarget registers the URL if it is new and processes it alone.
func (r *Resolver) explicitTarget(rawURL string) []miner.Source {
	added, entry, err := r.registry.AddIfAbsent(miner.Source{BaseURL: rawURL})
	if err != nil {
		r.logger.Warn("target registration failed",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return nil
	}
	if added {
		r.logger.Info("registered new target source",
			zap.String("id", entry.ID),
			zap.String("url", entry.BaseURL),
		)
	}
	return []miner.Source{entry}
}

// randomFromRegistry samples one entry uniformly. An empty registry is a
// soft miss.
func (r *Resolver) randomFromRegistry() []miner.Source {
	entries, err := r.registry.List()
	if err != nil {
		r.logger.Warn("registry read failed", zap.Error(err))
		return nil
	}
	if len(entries) == 0 {
		r.logger.Warn("registry is empty; nothing to sample")
		return nil
	}
	return []miner.Source{entries[r.pick(len(entries))]}
}

func (r *Resolver) remoteList(ctx context.Context) []miner.Source {
	sources, err := r.remote.ListSources(ctx)
	if err != nil {
		r.logger.Warn("remote source list unavailable", zap.Error(err))
		return nil
	}
	if len(sources) == 0 {
		r.logger.Warn("remote source list was empty after filtering")
	}
	return sources
}

// sourceFile is the on-disk shape of a local source list.
type sourceFile struct {
	Sources []miner.Source `json:"sources"`
}

// loadSourceFile parses and schema-validates a local source list.
func loadSourceFile(path string) ([]miner.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source list: %w", err)
	}

	var doc sourceFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse source list: %w", err)
	}
	if len(doc.Sources) == 0 {
		return nil, fmt.Errorf("source list %q holds no sources", path)
	}
	for _, src := range doc.Sources {
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("source list %q: %w", path, err)
		}
	}
	return doc.Sources, nil
}
