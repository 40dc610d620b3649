package engine

import (
	"fmt"

	"github.com/amaumene/fetcharr/internal/models"
)

// seasonPackThreshold is the missing/total ratio at which a season pack
// search is preferred over individual episode searches. Tunable constant,
// not derived.
const seasonPackThreshold = 0.70

// DecisionKind tags a season search decision
type DecisionKind string

const (
	// DecisionSeasonPack means one pack search covering the whole season
	DecisionSeasonPack DecisionKind = "season_pack"
	// DecisionIndividual means one search per missing episode
	DecisionIndividual DecisionKind = "individual"
)

// Decision is the engine's verdict for one season of missing episodes.
// A single dispatcher consumes it downstream, so the pack-vs-episode
// branch lives in exactly one place.
type Decision struct {
	Kind       DecisionKind
	Season     int
	EpisodeIDs []uint64
}

// Decide picks season-pack or individual-episode search for a season.
// The episode total comes from catalog season metadata when available;
// without it every episode is treated as missing, which always prefers
// the pack.
func Decide(item *models.MediaItem, season int, missing []*models.Episode) Decision {
	total := item.SeasonEpisodeCount(season)
	if total == 0 {
		total = len(missing)
	}

	ids := make([]uint64, 0, len(missing))
	for _, ep := range missing {
		ids = append(ids, ep.ID)
	}

	d := Decision{Kind: DecisionIndividual, Season: season, EpisodeIDs: ids}
	if total > 0 && float64(len(missing))/float64(total) >= seasonPackThreshold {
		d.Kind = DecisionSeasonPack
	}
	return d
}

// BuildMovieQuery constructs the search query for a movie
func BuildMovieQuery(title string, year int) string {
	if year > 0 {
		return fmt.Sprintf("%s %d", title, year)
	}
	return title
}

// BuildEpisodeQuery constructs the search query for one episode
func BuildEpisodeQuery(title string, season, episode int) string {
	return fmt.Sprintf("%s S%02dE%02d", title, season, episode)
}

// BuildSeasonQuery constructs the search query for a season pack
func BuildSeasonQuery(title string, season int) string {
	return fmt.Sprintf("%s S%02d", title, season)
}
