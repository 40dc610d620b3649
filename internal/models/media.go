package models

import "time"

// MediaItem represents a catalog entity (movie or TV show). Items are
// created by external catalog collaborators; this core only reads them,
// except for episode backfill triggered from the import pipeline.
type MediaItem struct {
	ID         uint64 `boltholdKey:"ID"`
	ProviderID string `boltholdIndex:"ProviderID"` // metadata provider id (e.g. IMDB/Trakt slug)

	MediaType MediaType
	Title     string
	Year      int

	// Season metadata from the provider; EpisodeCount 0 means unknown
	Seasons []SeasonInfo

	// Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SeasonInfo holds per-season metadata used by the season-pack heuristic
type SeasonInfo struct {
	Number       int
	EpisodeCount int
}

// SeasonEpisodeCount returns the provider-reported episode total for a
// season, or 0 when the catalog has no metadata for it.
func (m *MediaItem) SeasonEpisodeCount(season int) int {
	for _, s := range m.Seasons {
		if s.Number == season {
			return s.EpisodeCount
		}
	}
	return 0
}

// Episode represents a single episode of a TV show
type Episode struct {
	ID          uint64 `boltholdKey:"ID"`
	MediaItemID uint64 `boltholdIndex:"MediaItemID"`

	SeasonNumber  int
	EpisodeNumber int
	Title         string
	AirDate       *time.Time

	// HasFile is maintained by the import pipeline
	HasFile bool

	// Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}
