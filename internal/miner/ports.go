package miner

import "context"

// Fetcher retrieves the text of a single page. Non-2xx status, network
// failure, and timeout are all reported as an error with no content.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Extractor turns raw HTML into an artifact. A nil result means the page
// held nothing extractable.
type Extractor interface {
	Extract(src Source, pageURL, html string) *Artifact
}

// Assessor scores text against the permissive-licensing heuristic. Extra
// evidence strings contribute a bounded bonus.
type Assessor interface {
	Assess(text string, extraEvidence []string) LicenseVerdict
}

// Gate optionally classifies an artifact via an external text model. A nil
// assessment means the gate was disabled, unreachable, or returned
// something unparsable; callers must treat that as "proceed".
type Gate interface {
	Classify(ctx context.Context, a *Artifact) *Assessment
}

// Registry is the shared, append-only, URL-deduplicated source index.
type Registry interface {
	AddIfAbsent(src Source) (added bool, entry Source, err error)
	List() ([]Source, error)
}

// Traverser walks one source's collection and returns its artifacts in
// listing-then-detail discovery order.
type Traverser interface {
	Traverse(ctx context.Context, src Source) []Artifact
}

// Submitter posts artifacts to the primary ingest endpoint. Mirror calls
// are best-effort and never surface errors.
type Submitter interface {
	Submit(ctx context.Context, a Artifact) error
	MirrorSource(ctx context.Context, src Source)
	MirrorArtifact(ctx context.Context, a Artifact)
}
