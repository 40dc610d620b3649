package models

import "time"

// MediaFile is a catalog record created by the import pipeline.
// Invariant: exactly one of EpisodeID / MediaItemID is set, never both,
// never neither.
type MediaFile struct {
	ID          uint64 `boltholdKey:"ID"`
	EpisodeID   uint64 `boltholdIndex:"EpisodeID"`
	MediaItemID uint64 `boltholdIndex:"MediaItemID"`

	// Path is relative to the library root
	Path string `boltholdIndex:"Path"`
	Size int64

	// Technical attributes: probed from the file when possible, parsed
	// from the release name otherwise
	Resolution string
	VideoCodec string
	AudioCodec string
	Bitrate    int64
	HDRFormat  string

	// Provenance
	ReleaseGroup     string
	SourceDownloadID uint64
	SourceClient     string
	ImportedAt       time.Time

	// Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}
