package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/histocoin/artifact-miner/internal/metrics"
	"github.com/histocoin/artifact-miner/internal/miner"
	"github.com/histocoin/artifact-miner/internal/registry"
	"github.com/histocoin/artifact-miner/internal/resolver"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeResolver struct {
	sources []miner.Source
	calls   int
}

func (f *fakeResolver) Resolve(ctx context.Context, opts resolver.Options) []miner.Source {
	f.calls++
	return f.sources
}

type fakeTraverser struct {
	artifacts map[string][]miner.Artifact
}

func (f *fakeTraverser) Traverse(ctx context.Context, src miner.Source) []miner.Artifact {
	return f.artifacts[src.ID]
}

type recordingTraverser struct {
	mu   sync.Mutex
	seen []miner.Source
}

func (r *recordingTraverser) Traverse(ctx context.Context, src miner.Source) []miner.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, src)
	return nil
}

type fakeGate struct {
	assessments map[string]*miner.Assessment
}

func (f *fakeGate) Classify(ctx context.Context, a *miner.Artifact) *miner.Assessment {
	return f.assessments[a.URL]
}

type fakeRegistry struct {
	mu      sync.Mutex
	entries map[string]miner.Source
	err     error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{entries: map[string]miner.Source{}}
}

func (f *fakeRegistry) AddIfAbsent(src miner.Source) (bool, miner.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, miner.Source{}, f.err
	}
	if existing, ok := f.entries[src.BaseURL]; ok {
		return false, existing, nil
	}
	f.entries[src.BaseURL] = src
	return true, src, nil
}

func (f *fakeRegistry) List() ([]miner.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]miner.Source, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

type fakeSubmitter struct {
	mu               sync.Mutex
	submitted        []miner.Artifact
	submitErr        error
	mirroredSources  []miner.Source
	mirroredArtifact []miner.Artifact
}

func (f *fakeSubmitter) Submit(ctx context.Context, a miner.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, a)
	return nil
}

func (f *fakeSubmitter) MirrorSource(ctx context.Context, src miner.Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirroredSources = append(f.mirroredSources, src)
}

func (f *fakeSubmitter) MirrorArtifact(ctx context.Context, a miner.Artifact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirroredArtifact = append(f.mirroredArtifact, a)
}

func testSource(id string) miner.Source {
	return miner.Source{ID: id, Name: "Museum " + id, BaseURL: "https://" + id + ".example"}
}

func testArtifact(url string) miner.Artifact {
	return miner.Artifact{SourceID: "s1", URL: url, Title: "Object at " + url}
}

func newDriver(res SourceResolver, tr miner.Traverser, gate miner.Gate, reg miner.Registry, sub miner.Submitter, opts Options) *Driver {
	return New(res, tr, gate, reg, sub, opts, zap.NewNop())
}

func TestRunOnceSubmitsAllArtifacts(t *testing.T) {
	src := testSource("s1")
	tr := &fakeTraverser{artifacts: map[string][]miner.Artifact{
		"s1": {testArtifact("https://s1.example/1"), testArtifact("https://s1.example/2")},
	}}
	reg := newFakeRegistry()
	sub := &fakeSubmitter{}

	d := newDriver(&fakeResolver{sources: []miner.Source{src}}, tr, nil, reg, sub, Options{Once: true})
	require.NoError(t, d.Run(context.Background()))

	require.Len(t, sub.submitted, 2)
	assert.Len(t, sub.mirroredArtifact, 2, "each successful submission is mirrored")
	assert.Len(t, sub.mirroredSources, 1, "newly registered source is mirrored")

	state, current := d.State()
	assert.Equal(t, StateStopped, state)
	assert.Empty(t, current)
}

func TestGateRejectionVetoesSubmission(t *testing.T) {
	src := testSource("s1")
	tr := &fakeTraverser{artifacts: map[string][]miner.Artifact{
		"s1": {testArtifact("https://s1.example/keep"), testArtifact("https://s1.example/drop")},
	}}
	gate := &fakeGate{assessments: map[string]*miner.Assessment{
		"https://s1.example/keep": {Verdict: miner.VerdictAccept, Confidence: 0.9, Tags: []string{"pottery"}},
		"https://s1.example/drop": {Verdict: miner.VerdictReject, Reason: "modern replica"},
	}}
	sub := &fakeSubmitter{}

	d := newDriver(&fakeResolver{sources: []miner.Source{src}}, tr, gate, newFakeRegistry(), sub, Options{Once: true})
	require.NoError(t, d.Run(context.Background()))

	require.Len(t, sub.submitted, 1)
	got := sub.submitted[0]
	assert.Equal(t, "https://s1.example/keep", got.URL)
	assert.Equal(t, miner.VerdictAccept, got.Metadata["gate_verdict"])
	assert.Equal(t, "pottery", got.Metadata["gate_tags"])
}

func TestNilAssessmentProceeds(t *testing.T) {
	src := testSource("s1")
	tr := &fakeTraverser{artifacts: map[string][]miner.Artifact{
		"s1": {testArtifact("https://s1.example/1")},
	}}
	sub := &fakeSubmitter{}

	d := newDriver(&fakeResolver{sources: []miner.Source{src}}, tr, &fakeGate{}, newFakeRegistry(), sub, Options{Once: true})
	require.NoError(t, d.Run(context.Background()))

	require.Len(t, sub.submitted, 1)
	assert.Empty(t, sub.submitted[0].Metadata, "unavailable gate leaves no audit trail")
}

func TestSubmissionFailureSkipsMirror(t *testing.T) {
	src := testSource("s1")
	tr := &fakeTraverser{artifacts: map[string][]miner.Artifact{
		"s1": {testArtifact("https://s1.example/1")},
	}}
	sub := &fakeSubmitter{submitErr: errors.New("ingest rejected")}

	d := newDriver(&fakeResolver{sources: []miner.Source{src}}, tr, nil, newFakeRegistry(), sub, Options{Once: true})
	require.NoError(t, d.Run(context.Background()))

	assert.Empty(t, sub.mirroredArtifact)
}

func TestRegistryFailureDoesNotAbortSource(t *testing.T) {
	src := testSource("s1")
	tr := &fakeTraverser{artifacts: map[string][]miner.Artifact{
		"s1": {testArtifact("https://s1.example/1")},
	}}
	reg := newFakeRegistry()
	reg.err = errors.New("disk full")
	sub := &fakeSubmitter{}

	d := newDriver(&fakeResolver{sources: []miner.Source{src}}, tr, nil, reg, sub, Options{Once: true})
	require.NoError(t, d.Run(context.Background()))

	assert.Len(t, sub.submitted, 1, "registry trouble must not block submission")
	assert.Empty(t, sub.mirroredSources)
}

func TestResolvedCollectionSpecSurvivesRegistryEntry(t *testing.T) {
	store, err := registry.NewFileStore(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	reg := registry.New(store)

	// Another node (or sources add) registered the bare URL earlier.
	_, _, err = reg.AddIfAbsent(miner.Source{BaseURL: "https://museum.example/collection"})
	require.NoError(t, err)

	src := miner.Source{
		ID:      "s1",
		Name:    "Museum",
		BaseURL: "https://museum.example/collection",
		Notes:   "open access catalog",
		Collection: &miner.CollectionSpec{
			ListURLs:     []string{"https://museum.example/collection/list"},
			LinkSelector: "a.object",
		},
	}
	tr := &recordingTraverser{}

	d := newDriver(&fakeResolver{sources: []miner.Source{src}}, tr, nil, reg, &fakeSubmitter{}, Options{Once: true})
	require.NoError(t, d.Run(context.Background()))

	require.Len(t, tr.seen, 1)
	got := tr.seen[0]
	require.NotNil(t, got.Collection, "traversal must use the resolved source, not the bare registry entry")
	assert.Equal(t, "a.object", got.Collection.LinkSelector)
	assert.Equal(t, "Museum", got.Name)
	assert.Equal(t, "open access catalog", got.Notes)
}

func TestKnownSourceNotMirroredAgain(t *testing.T) {
	src := testSource("s1")
	reg := newFakeRegistry()
	_, _, err := reg.AddIfAbsent(src)
	require.NoError(t, err)
	sub := &fakeSubmitter{}

	d := newDriver(&fakeResolver{sources: []miner.Source{src}}, &fakeTraverser{}, nil, reg, sub, Options{Once: true})
	require.NoError(t, d.Run(context.Background()))

	assert.Empty(t, sub.mirroredSources)
}

func TestCancellationStopsBetweenArtifacts(t *testing.T) {
	src := testSource("s1")
	var artifacts []miner.Artifact
	for i := 0; i < 50; i++ {
		artifacts = append(artifacts, testArtifact("https://s1.example/"+string(rune('a'+i%26))))
	}
	tr := &fakeTraverser{artifacts: map[string][]miner.Artifact{"s1": artifacts}}
	sub := &fakeSubmitter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newDriver(&fakeResolver{sources: []miner.Source{src}}, tr, nil, newFakeRegistry(), sub, Options{Once: true})
	err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, sub.submitted, "canceled context stops before the first artifact")
}

func TestLoopRespectsPassInterval(t *testing.T) {
	res := &fakeResolver{}
	d := newDriver(res, &fakeTraverser{}, nil, newFakeRegistry(), &fakeSubmitter{}, Options{
		PassInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, res.calls, 2, "loop must keep passing until canceled")
}
