package miner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSource() Source {
	return Source{ID: "s1", Name: "Museum", BaseURL: "https://museum.example"}
}

func TestSourceValidate(t *testing.T) {
	require.NoError(t, validSource().Validate())

	cases := map[string]func(*Source){
		"missing id":       func(s *Source) { s.ID = "" },
		"missing name":     func(s *Source) { s.Name = "" },
		"relative url":     func(s *Source) { s.BaseURL = "/objects" },
		"no scheme":        func(s *Source) { s.BaseURL = "museum.example" },
		"empty collection": func(s *Source) { s.Collection = &CollectionSpec{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			src := validSource()
			mutate(&src)
			assert.Error(t, src.Validate())
		})
	}
}

func TestCollectionSpecValidate(t *testing.T) {
	valid := CollectionSpec{
		ListURLs:     []string{"https://museum.example/list"},
		LinkSelector: "a.object",
	}
	require.NoError(t, valid.Validate())

	search := CollectionSpec{
		SearchTemplate: "https://museum.example/search?q={query}",
		SearchTerms:    []string{"vase"},
		LinkSelector:   "a.object",
	}
	require.NoError(t, search.Validate())

	t.Run("template without placeholder", func(t *testing.T) {
		bad := search
		bad.SearchTemplate = "https://museum.example/search"
		assert.Error(t, bad.Validate())
	})

	t.Run("template without terms", func(t *testing.T) {
		bad := search
		bad.SearchTerms = nil
		assert.Error(t, bad.Validate())
	})

	t.Run("no listing inputs", func(t *testing.T) {
		assert.Error(t, CollectionSpec{LinkSelector: "a"}.Validate())
	})
}

func TestCollectionSpecDefaults(t *testing.T) {
	var spec CollectionSpec
	assert.Equal(t, DefaultLinkAttr, spec.Attr())
	assert.Equal(t, DefaultMaxItems, spec.Cap())

	spec.LinkAttr = "data-url"
	spec.MaxItems = 3
	assert.Equal(t, "data-url", spec.Attr())
	assert.Equal(t, 3, spec.Cap())
}

func TestAttachAssessment(t *testing.T) {
	a := Artifact{URL: "https://museum.example/objects/1"}

	a.AttachAssessment(nil)
	assert.Nil(t, a.Assessment)
	assert.Nil(t, a.Metadata)

	a.AttachAssessment(&Assessment{
		Verdict:    VerdictAccept,
		Confidence: 0.875,
		Tags:       []string{"pottery", "bronze age"},
		Reason:     "catalog entry for an excavated vessel",
	})

	require.NotNil(t, a.Assessment)
	assert.Equal(t, VerdictAccept, a.Metadata["gate_verdict"])
	assert.Equal(t, "0.88", a.Metadata["gate_confidence"])
	assert.Equal(t, "pottery,bronze age", a.Metadata["gate_tags"])
	assert.Equal(t, "catalog entry for an excavated vessel", a.Metadata["gate_reason"])
}

func TestRejected(t *testing.T) {
	var none *Assessment
	assert.False(t, none.Rejected())
	assert.False(t, (&Assessment{Verdict: VerdictAccept}).Rejected())
	assert.True(t, (&Assessment{Verdict: VerdictReject}).Rejected())
}
