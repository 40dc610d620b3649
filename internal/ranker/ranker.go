// Package ranker scores candidate search results against quality, size
// and seeder constraints. It is pure and stateless: no I/O, fully
// deterministic, ties broken by original result order.
package ranker

import (
	"strings"

	"github.com/amaumene/fetcharr/internal/relname"
)

// Candidate is a transient search result under consideration
type Candidate struct {
	Title   string
	Size    int64
	Seeders int

	// Raw indexer attributes kept for scoring extensions
	Attributes map[string]string
}

// Options controls filtering and scoring
type Options struct {
	MinSeeders int
	MinSize    int64
	MaxSize    int64 // 0 = unbounded

	// Qualities are matched position-weighted: the first entry carries
	// the highest weight
	Qualities     []string
	PreferredTags []string
	BlockedTags   []string
}

// Selection is the ranking outcome for the winning candidate
type Selection struct {
	Candidate Candidate
	Index     int // position in the original input slice
	Score     float64
	Breakdown map[string]float64
}

// Rank filters candidates against the hard constraints, scores the
// survivors and returns the best one. Returns nil when no candidate
// survives filtering. Ties are broken by original result order.
func Rank(candidates []Candidate, opts Options) *Selection {
	var best *Selection

	for i, c := range candidates {
		if c.Seeders < opts.MinSeeders {
			continue
		}
		if c.Size < opts.MinSize {
			continue
		}
		if opts.MaxSize > 0 && c.Size > opts.MaxSize {
			continue
		}
		score, breakdown, blocked := score(c.Title, opts)
		if blocked {
			continue
		}
		if best == nil || score > best.Score {
			best = &Selection{
				Candidate: c,
				Index:     i,
				Score:     score,
				Breakdown: breakdown,
			}
		}
	}

	return best
}

// score computes the position-weighted match score for a title.
// A candidate matches at most one quality tier (the best one listed);
// every preferred tag it carries adds its own weight.
func score(title string, opts Options) (float64, map[string]float64, bool) {
	lower := strings.ToLower(title)

	for _, tag := range opts.BlockedTags {
		if tag != "" && strings.Contains(lower, strings.ToLower(tag)) {
			return 0, nil, true
		}
	}

	breakdown := map[string]float64{}
	total := 0.0

	for i, q := range opts.Qualities {
		if q != "" && strings.Contains(lower, strings.ToLower(q)) {
			weight := float64(len(opts.Qualities) - i)
			breakdown["quality"] = weight
			total += weight
			break
		}
	}

	tagScore := 0.0
	for i, tag := range opts.PreferredTags {
		if tag != "" && strings.Contains(lower, strings.ToLower(tag)) {
			tagScore += float64(len(opts.PreferredTags) - i)
		}
	}
	if tagScore > 0 {
		breakdown["tags"] = tagScore
		total += tagScore
	}

	return total, breakdown, false
}

// FilterSeasonPacks keeps only candidates whose title is shaped like a
// season pack: a season marker (S03) with no per-episode marker (E07).
func FilterSeasonPacks(candidates []Candidate) []Candidate {
	var packs []Candidate
	for _, c := range candidates {
		if relname.IsSeasonPackShaped(c.Title) {
			packs = append(packs, c)
		}
	}
	return packs
}
