// Package objection implements the two-tier objection cascade: a fast lexical
// tier over a compiled pattern table, and a fuzzier semantic tier that only
// runs on a tier-one miss. Tier one is cheap and precise for canonical
// phrasings; tier two covers the long tail of misspellings and paraphrase
// while keeping the average-case cost bounded.
package objection

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nmoralez/rudder/internal/flow"
)

// Tier identifiers reported in results.
const (
	TierPattern  = 1
	TierSemantic = 2
)

// DefaultSimilarityThreshold is the minimum tier-two similarity accepted as a
// match. Below it the message is classified as not an objection.
const DefaultSimilarityThreshold = 0.62

// Result is the per-message verdict consumed by the objection guard source.
type Result struct {
	IsObjection bool    `json:"is_objection"`
	PrimaryType string  `json:"primary_type,omitempty"`
	TierUsed    int     `json:"tier_used"`
	Confidence  float64 `json:"confidence"`
}

type compiledType struct {
	objType  string
	patterns []*regexp.Regexp
	phrases  []string // normalized canonical phrasings for tier two
}

// Detector classifies messages against a fixed objection taxonomy. It is
// immutable after construction and safe for concurrent use across sessions.
type Detector struct {
	types     []compiledType
	threshold float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithSimilarityThreshold overrides the tier-two acceptance threshold.
func WithSimilarityThreshold(t float64) Option {
	return func(d *Detector) {
		if t > 0 && t <= 1 {
			d.threshold = t
		}
	}
}

// NewDetector compiles the lexicon once. Pattern compilation failures are
// configuration errors; the flow validator catches them first, but the
// detector refuses them too rather than limping along with a partial table.
func NewDetector(lexicon []flow.ObjectionPattern, opts ...Option) (*Detector, error) {
	d := &Detector{threshold: DefaultSimilarityThreshold}
	for _, entry := range lexicon {
		ct := compiledType{objType: entry.Type}
		for _, p := range entry.Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("compile objection pattern %q: %w", p, err)
			}
			ct.patterns = append(ct.patterns, re)
		}
		for _, phrase := range entry.Phrases {
			ct.phrases = append(ct.phrases, normalize(phrase))
		}
		d.types = append(d.types, ct)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Detect runs the cascade: tier one returns immediately on a confident
// lexical match; tier two runs only when tier one finds nothing.
func (d *Detector) Detect(message string) Result {
	if res, ok := d.detectPattern(message); ok {
		return res
	}
	return d.detectSemantic(message)
}

// detectPattern is the fast lexical tier. The type with the most pattern hits
// wins; confidence grows with the hit count.
func (d *Detector) detectPattern(message string) (Result, bool) {
	bestType := ""
	bestHits := 0
	for _, ct := range d.types {
		hits := 0
		for _, re := range ct.patterns {
			if re.MatchString(message) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			bestType = ct.objType
		}
	}
	if bestHits == 0 {
		return Result{}, false
	}
	confidence := 0.9
	if bestHits > 1 {
		confidence = 1.0
	}
	return Result{
		IsObjection: true,
		PrimaryType: bestType,
		TierUsed:    TierPattern,
		Confidence:  confidence,
	}, true
}

// detectSemantic compares the normalized message against every canonical
// phrase and keeps the best similarity. Similarity blends token overlap with
// edit distance so that misspellings and mild paraphrase still land.
func (d *Detector) detectSemantic(message string) Result {
	norm := normalize(message)
	if norm == "" {
		return Result{TierUsed: TierSemantic}
	}

	bestType := ""
	bestScore := 0.0
	for _, ct := range d.types {
		for _, phrase := range ct.phrases {
			score := similarity(norm, phrase)
			if score > bestScore {
				bestScore = score
				bestType = ct.objType
			}
		}
	}

	if bestScore < d.threshold {
		return Result{TierUsed: TierSemantic, Confidence: bestScore}
	}
	return Result{
		IsObjection: true,
		PrimaryType: bestType,
		TierUsed:    TierSemantic,
		Confidence:  bestScore,
	}
}

// normalize lowercases and collapses a message to space-separated word runs.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// similarity blends token overlap (Jaccard) with normalized edit distance,
// weighting the stronger of the two. Both operate on normalized text.
func similarity(a, b string) float64 {
	jac := jaccard(strings.Fields(a), strings.Fields(b))
	lev := 1.0 - float64(levenshtein(a, b))/float64(maxInt(len(a), len(b)))
	if lev < 0 {
		lev = 0
	}
	if jac > lev {
		return 0.7*jac + 0.3*lev
	}
	return 0.3*jac + 0.7*lev
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, w := range b {
		if seen[w] {
			continue
		}
		seen[w] = true
		if set[w] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// levenshtein computes edit distance with a two-row rolling buffer.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, minInt(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
