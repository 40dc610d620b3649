package models

// MediaType represents the type of media (movie or tv show)
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// DownloadStatus represents the lifecycle state of a ledger row.
// Transitions are performed only by the reconciliation monitor; the
// nullable guard fields (DBCompletedAt, ErrorMessage) keep re-runs of a
// pass idempotent.
type DownloadStatus string

const (
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
	DownloadStatusMissing     DownloadStatus = "missing"
	DownloadStatusDeleted     DownloadStatus = "deleted"
)

// ImportMode controls how finished files enter the library
type ImportMode string

const (
	ImportModeCopy ImportMode = "copy"
	ImportModeMove ImportMode = "move"
)
