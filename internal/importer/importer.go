// Package importer moves finished downloads into the organized library:
// it discovers video files, resolves destination and association,
// resolves conflicts, extracts technical metadata and persists catalog
// records. Triggered by the reconciliation monitor.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/config"
	"github.com/amaumene/fetcharr/internal/events"
	"github.com/amaumene/fetcharr/internal/metrics"
	"github.com/amaumene/fetcharr/internal/models"
	"github.com/amaumene/fetcharr/internal/probe"
	"github.com/amaumene/fetcharr/internal/services/downloadclient"
)

// ErrPartialFailure means some files of a multi-file import failed while
// others succeeded. Succeeded files keep their records; a retry skips
// them through conflict resolution.
var ErrPartialFailure = errors.New("import finished with per-file failures")

// videoExtensions are the container suffixes accepted for import
var videoExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".m4v":  true,
	".mov":  true,
	".wmv":  true,
	".ts":   true,
	".webm": true,
}

// EpisodeMeta is one episode as reported by the metadata provider
type EpisodeMeta struct {
	Number  int
	Title   string
	AirDate *time.Time
}

// SeasonFetcher backfills a season's episode list on demand. May be nil
// when no metadata provider is configured.
type SeasonFetcher interface {
	FetchSeason(ctx context.Context, providerID string, season int) ([]EpisodeMeta, error)
}

// Importer is the import pipeline
type Importer struct {
	cfg       *config.Config
	db        *models.Database
	registry  *downloadclient.Registry
	clientCfg downloadclient.Config
	prober    probe.Prober
	seasons   SeasonFetcher
	sink      events.Sink
	logger    *logrus.Logger
}

// New creates the import pipeline
func New(cfg *config.Config, db *models.Database, registry *downloadclient.Registry, clientCfg downloadclient.Config, prober probe.Prober, seasons SeasonFetcher, sink events.Sink, logger *logrus.Logger) *Importer {
	return &Importer{
		cfg:       cfg,
		db:        db,
		registry:  registry,
		clientCfg: clientCfg,
		prober:    prober,
		seasons:   seasons,
		sink:      sink,
		logger:    logger,
	}
}

// Result summarizes one import run
type Result struct {
	Skipped  bool // precondition not met, task was a no-op
	Imported int  // files copied/moved and recorded
	Reused   int  // files already present, record only
	Failed   int  // files that could not be imported
}

// Run imports one completed download. Re-entrant: destination existence
// checks make a retried run skip files it already imported.
func (im *Importer) Run(ctx context.Context, downloadID uint64) (*Result, error) {
	d, err := im.db.GetDownloadByID(downloadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load download %d: %w", downloadID, err)
	}

	// The monitor stamps the completion guard before enqueueing; if the
	// task raced ahead of that, skip without error and let the next
	// monitor pass re-enqueue.
	if d.DBCompletedAt == nil {
		im.logger.WithField("download_id", d.ID).Debug("Download not marked completed yet, skipping import")
		return &Result{Skipped: true}, nil
	}

	now := time.Now()
	d.CompletedAt = &now
	if err := im.db.UpdateDownload(d); err != nil {
		return nil, fmt.Errorf("failed to accept download %d: %w", d.ID, err)
	}

	savePath, err := im.resolveSavePath(ctx, d)
	if err != nil {
		return nil, err
	}

	files, err := discoverVideoFiles(savePath)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate files under %s: %w", savePath, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no video files found under %s", savePath)
	}

	result := &Result{}
	for _, path := range files {
		if err := im.importFile(ctx, d, path, result); err != nil {
			result.Failed++
			metrics.FilesImported.WithLabelValues("failed").Inc()
			im.logger.WithError(err).WithFields(logrus.Fields{
				"download_id": d.ID,
				"path":        path,
			}).Error("Failed to import file")
		}
	}

	if result.Failed > 0 {
		return result, fmt.Errorf("%w: %d of %d files failed", ErrPartialFailure, result.Failed, len(files))
	}

	im.finish(ctx, d, result)
	return result, nil
}

// resolveSavePath asks the owning client for the live save path, falling
// back to the last one the monitor recorded.
func (im *Importer) resolveSavePath(ctx context.Context, d *models.Download) (string, error) {
	client, err := im.registry.Get(d.Client)
	if err != nil {
		return "", err
	}

	status, err := client.GetStatus(ctx, im.clientCfg, d.JobID)
	if err == nil && status.SavePath != "" {
		return status.SavePath, nil
	}
	if d.SavePath != "" {
		im.logger.WithFields(logrus.Fields{
			"download_id": d.ID,
			"save_path":   d.SavePath,
		}).Debug("Using last known save path")
		return d.SavePath, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch save path for download %d: %w", d.ID, err)
	}
	return "", fmt.Errorf("download %d has no save path", d.ID)
}

// importFile handles one file at its own boundary
func (im *Importer) importFile(ctx context.Context, d *models.Download, path string, result *Result) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	dest, err := im.resolveDestination(ctx, d, path)
	if err != nil {
		return err
	}

	outcome, relPath, err := im.placeFile(path, info.Size(), dest)
	if err != nil {
		return err
	}

	if outcome == placeReusedKnown {
		// Already a catalog file, nothing more to do
		result.Reused++
		metrics.FilesImported.WithLabelValues("reused").Inc()
		return nil
	}

	file := &models.MediaFile{
		Path:             relPath,
		Size:             info.Size(),
		ReleaseGroup:     dest.releaseGroup,
		SourceDownloadID: d.ID,
		SourceClient:     d.Client,
		ImportedAt:       time.Now(),
	}
	im.applyTechnicalMetadata(ctx, file, filepath.Join(im.cfg.LibraryDir, relPath), path)

	// Association priority: resolved episode, then the download's own
	// episode, then the download's media item.
	switch {
	case dest.episode != nil:
		file.EpisodeID = dest.episode.ID
	case d.EpisodeID != 0:
		file.EpisodeID = d.EpisodeID
	default:
		file.MediaItemID = d.MediaItemID
	}

	if err := im.db.CreateMediaFile(file); err != nil {
		return fmt.Errorf("failed to persist catalog record: %w", err)
	}

	if file.EpisodeID != 0 {
		im.markEpisodeHasFile(file.EpisodeID)
	}

	if outcome == placeReusedUntracked {
		result.Reused++
		metrics.FilesImported.WithLabelValues("reused").Inc()
	} else {
		result.Imported++
		metrics.FilesImported.WithLabelValues("imported").Inc()
	}

	im.logger.WithFields(logrus.Fields{
		"download_id": d.ID,
		"path":        relPath,
		"size":        humanize.Bytes(uint64(info.Size())),
		"resolution":  file.Resolution,
	}).Info("Imported file")
	return nil
}

// finish runs the post-import side effects: optional client cleanup,
// ledger deletion and the completion event.
func (im *Importer) finish(ctx context.Context, d *models.Download, result *Result) {
	if im.cfg.RemoveAfterImport {
		if client, err := im.registry.Get(d.Client); err == nil {
			if err := client.RemoveDownload(ctx, im.clientCfg, d.JobID); err != nil {
				im.logger.WithError(err).WithField("job_id", d.JobID).Warn("Failed to remove finished job from client")
			}
		}
	}

	if err := im.db.DeleteDownload(d.ID); err != nil {
		im.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to delete imported download from ledger")
	}

	im.sink.Publish(events.New(events.TypeImportCompleted, map[string]interface{}{
		"download_id": d.ID,
		"title":       d.Title,
		"imported":    result.Imported,
		"reused":      result.Reused,
	}))
}

// applyTechnicalMetadata probes the imported file and merges with values
// parsed from the source filename, preferring probed values field by
// field.
func (im *Importer) applyTechnicalMetadata(ctx context.Context, file *models.MediaFile, probePath, sourceName string) {
	parsed := parsedTechnical(sourceName)

	probed, err := im.prober.Probe(ctx, probePath)
	if err != nil {
		im.logger.WithError(err).WithField("path", probePath).Debug("Probe failed, using filename metadata")
		probed = &probe.Info{}
	}

	file.Resolution = firstNonEmpty(probed.Resolution, parsed.Resolution)
	file.VideoCodec = firstNonEmpty(probed.VideoCodec, parsed.VideoCodec)
	file.AudioCodec = firstNonEmpty(probed.AudioCodec, parsed.AudioCodec)
	file.HDRFormat = firstNonEmpty(probed.HDRFormat, parsed.HDRFormat)
	file.Bitrate = probed.Bitrate
	if file.Bitrate == 0 {
		file.Bitrate = parsed.Bitrate
	}
}

func (im *Importer) markEpisodeHasFile(episodeID uint64) {
	ep, err := im.db.GetEpisodeByID(episodeID)
	if err != nil {
		im.logger.WithError(err).WithField("episode_id", episodeID).Warn("Failed to load episode for file flag")
		return
	}
	if ep.HasFile {
		return
	}
	ep.HasFile = true
	if err := im.db.UpdateEpisode(ep); err != nil {
		im.logger.WithError(err).WithField("episode_id", episodeID).Warn("Failed to flag episode as having a file")
	}
}

// discoverVideoFiles enumerates regular files with a video container
// extension under the save path (single file or recursive directory).
func discoverVideoFiles(savePath string) ([]string, error) {
	info, err := os.Stat(savePath)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if isVideoFile(savePath) {
			return []string{savePath}, nil
		}
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(savePath, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() && isVideoFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func isVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
