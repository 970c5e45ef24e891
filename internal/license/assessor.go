// Package license implements the keyword-weighted permissive-licensing
// heuristic. The verdict is a best-effort filter, not a legal determination.
package license

import (
	"math"
	"strings"

	"github.com/histocoin/artifact-miner/internal/miner"
)

// phraseWeight pairs a marker phrase with its score contribution. Phrases
// are matched case-insensitively as substrings, in table order, so the
// evidence list is reproducible for a given input.
type phraseWeight struct {
	phrase string
	weight float64
}

// Explicit zero-rights markers outweigh the looser open-access vocabulary.
var phraseTable = []phraseWeight{
	{"cc0", 0.45},
	{"creative commons zero", 0.45},
	{"public domain", 0.4},
	{"no known copyright", 0.4},
	{"no copyright restrictions", 0.4},
	{"copyright-free", 0.35},
	{"free of known restrictions", 0.35},
	{"open access", 0.2},
	{"free to use", 0.15},
	{"free to reuse", 0.15},
	{"unrestricted use", 0.15},
}

const (
	// Verdict threshold on the clamped score.
	likelyThreshold = 0.4
	// Per-item and total bonus for externally supplied evidence.
	evidenceBonusEach = 0.1
	evidenceBonusMax  = 0.2
)

// Assessor scores page text against the phrase table.
type Assessor struct{}

// New returns a ready Assessor.
func New() *Assessor {
	return &Assessor{}
}

// Assess derives a LicenseVerdict from text. extraEvidence strings are
// corroborating signals from outside the page text; they add a small,
// bounded bonus and are appended to the evidence list after the matched
// phrases.
func (a *Assessor) Assess(text string, extraEvidence []string) miner.LicenseVerdict {
	lower := strings.ToLower(text)

	score := 0.0
	var evidence []string
	for _, pw := range phraseTable {
		if strings.Contains(lower, pw.phrase) {
			score += pw.weight
			evidence = append(evidence, pw.phrase)
		}
	}
	if score > 1.0 {
		score = 1.0
	}

	bonus := 0.0
	for _, ev := range extraEvidence {
		ev = strings.TrimSpace(ev)
		if ev == "" {
			continue
		}
		bonus += evidenceBonusEach
		evidence = append(evidence, ev)
	}
	if bonus > evidenceBonusMax {
		bonus = evidenceBonusMax
	}

	confidence := score + bonus
	if confidence > 1.0 {
		confidence = 1.0
	}
	confidence = math.Round(confidence*100) / 100

	return miner.LicenseVerdict{
		IsLikelyCC0: confidence >= likelyThreshold,
		Confidence:  confidence,
		Evidence:    evidence,
	}
}
