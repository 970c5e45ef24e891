// Package pipeline runs the discovery loop: resolve sources, traverse
// each one, gate and register results, submit everything that survives.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/metrics"
	"github.com/histocoin/artifact-miner/internal/miner"
	"github.com/histocoin/artifact-miner/internal/resolver"
)

// Driver state values exposed on the status endpoint.
const (
	StateIdle    = "idle"
	StateMining  = "mining"
	StateStopped = "stopped"
)

// SourceResolver yields the sources for one pass.
type SourceResolver interface {
	Resolve(ctx context.Context, opts resolver.Options) []miner.Source
}

// Options tunes a Driver.
type Options struct {
	// Resolution is passed through to the resolver each pass.
	Resolution resolver.Options
	// PassInterval is the sleep between passes.
	PassInterval time.Duration
	// ArtifactCooldown is the sleep between artifacts within a source.
	ArtifactCooldown time.Duration
	// Once runs a single pass and returns instead of looping.
	Once bool
}

// Driver owns the pass loop.
type Driver struct {
	resolver  SourceResolver
	traverser miner.Traverser
	gate      miner.Gate
	registry  miner.Registry
	submitter miner.Submitter
	logger    *zap.Logger
	opts      Options

	mu      sync.Mutex
	state   string
	current string
}

// New builds a Driver. Gate may be nil when classification is disabled.
func New(
	res SourceResolver,
	traverser miner.Traverser,
	gate miner.Gate,
	registry miner.Registry,
	submitter miner.Submitter,
	opts Options,
	logger *zap.Logger,
) *Driver {
	return &Driver{
		resolver:  res,
		traverser: traverser,
		gate:      gate,
		registry:  registry,
		submitter: submitter,
		logger:    logger,
		opts:      opts,
		state:     StateIdle,
	}
}

// State reports the driver's current phase and the source being worked.
func (d *Driver) State() (string, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.current
}

func (d *Driver) setState(state, current string) {
	d.mu.Lock()
	d.state = state
	d.current = current
	d.mu.Unlock()
}

// Run executes passes until the context is canceled. Cancellation is
// checked between sources and between artifacts, never mid-fetch.
func (d *Driver) Run(ctx context.Context) error {
	defer d.setState(StateStopped, "")
	for {
		start := time.Now()
		d.runPass(ctx)
		metrics.ObservePassDuration(time.Since(start))

		if d.opts.Once {
			return ctx.Err()
		}
		d.setState(StateIdle, "")
		if err := sleepCtx(ctx, d.opts.PassInterval); err != nil {
			return err
		}
	}
}

func (d *Driver) runPass(ctx context.Context) {
	sources := d.resolver.Resolve(ctx, d.opts.Resolution)
	if len(sources) == 0 {
		d.logger.Info("pass resolved no sources")
		return
	}
	d.updateRegistryGauge()

	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		d.processSource(ctx, src)
	}
}

func (d *Driver) processSource(ctx context.Context, src miner.Source) {
	d.setState(StateMining, src.BaseURL)
	defer d.setState(StateMining, "")

	d.logger.Info("processing source",
		zap.String("source_id", src.ID),
		zap.String("source", src.BaseURL),
	)

	// The registry call is dedup and registration only. Traversal always
	// uses the resolved source; a pre-existing registry entry for the same
	// URL may lack the collection spec and must not replace it.
	added, entry, err := d.registry.AddIfAbsent(src)
	if err != nil {
		d.logger.Warn("registry update failed",
			zap.String("source", src.BaseURL),
			zap.Error(err),
		)
	}
	if added {
		d.submitter.MirrorSource(ctx, entry)
		d.updateRegistryGauge()
	}

	artifacts := d.traverser.Traverse(ctx, src)
	for i, artifact := range artifacts {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			if err := sleepCtx(ctx, d.opts.ArtifactCooldown); err != nil {
				return
			}
		}
		d.processArtifact(ctx, artifact)
	}
}

func (d *Driver) processArtifact(ctx context.Context, artifact miner.Artifact) {
	metrics.ObserveArtifact(artifact.URL)

	if d.gate != nil {
		assessment := d.gate.Classify(ctx, &artifact)
		if assessment != nil {
			metrics.ObserveGateDecision(assessment.Verdict)
		}
		if assessment.Rejected() {
			metrics.ObserveSubmission("rejected")
			d.logger.Info("artifact rejected by gate",
				zap.String("url", artifact.URL),
				zap.String("reason", assessment.Reason),
			)
			return
		}
		artifact.AttachAssessment(assessment)
	}

	if err := d.submitter.Submit(ctx, artifact); err != nil {
		metrics.ObserveSubmission("failed")
		d.logger.Warn("submission failed",
			zap.String("url", artifact.URL),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveSubmission("ok")
	d.submitter.MirrorArtifact(ctx, artifact)
	d.logger.Info("artifact submitted",
		zap.String("url", artifact.URL),
		zap.String("title", artifact.Title),
	)
}

func (d *Driver) updateRegistryGauge() {
	entries, err := d.registry.List()
	if err != nil {
		return
	}
	metrics.SetRegistrySize(len(entries))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
