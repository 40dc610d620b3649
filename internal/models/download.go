package models

import "time"

// Download is an ephemeral ledger row tracking one external client job.
// The table holds only in-flight work: a row is deleted once it reaches
// any terminal outcome (imported, failed, or vanished from its client).
type Download struct {
	ID          uint64 `boltholdKey:"ID"`
	MediaItemID uint64 `boltholdIndex:"MediaItemID"`
	EpisodeID   uint64 // 0 for movies and season packs

	// Which external client holds the job
	Client string `boltholdIndex:"Client"` // adapter type tag
	JobID  string `boltholdIndex:"JobID"`

	Title    string // release title as sent to the client
	SavePath string // last known save path reported by the client

	Status DownloadStatus

	// Season pack metadata, attached at acquisition time so the import
	// pipeline can map files without re-deriving them
	IsSeasonPack     bool
	PackSeason       int
	PackEpisodeCount int
	PackEpisodeIDs   []uint64

	// CompletedAt is stamped by the import pipeline when it accepts the
	// task. DBCompletedAt is stamped by the monitor the moment it
	// classifies the row as completed, before import runs; it is the
	// de-duplication guard for repeated passes.
	CompletedAt   *time.Time
	DBCompletedAt *time.Time

	// ErrorMessage is set once a failure is recorded
	ErrorMessage string

	// Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}
