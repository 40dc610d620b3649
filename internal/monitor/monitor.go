// Package monitor implements the download reconciliation pass: it
// compares live client state against the ledger, classifies each row
// exactly once using the nullable guard fields, and triggers imports,
// failure events and ledger cleanup.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/events"
	"github.com/amaumene/fetcharr/internal/jobs"
	"github.com/amaumene/fetcharr/internal/metrics"
	"github.com/amaumene/fetcharr/internal/models"
	"github.com/amaumene/fetcharr/internal/services/downloadclient"
)

// defaultFailureMessage is used when the client reports no error detail
const defaultFailureMessage = "Download failed in client"

// ImportEnqueuer schedules an import task for a completed download.
// It must be safe to retry: enqueueing the same download id twice may
// not start two imports.
type ImportEnqueuer func(downloadID uint64) error

// Monitor reconciles the ledger against live client state
type Monitor struct {
	db            *models.Database
	registry      *downloadclient.Registry
	clientCfg     downloadclient.Config
	sink          events.Sink
	enqueueImport ImportEnqueuer
	matcher       *Matcher
	logger        *logrus.Logger
}

// New creates a monitor. matcher may be nil to disable untracked job
// matching.
func New(db *models.Database, registry *downloadclient.Registry, clientCfg downloadclient.Config, sink events.Sink, enqueueImport ImportEnqueuer, matcher *Matcher, logger *logrus.Logger) *Monitor {
	return &Monitor{
		db:            db,
		registry:      registry,
		clientCfg:     clientCfg,
		sink:          sink,
		enqueueImport: enqueueImport,
		matcher:       matcher,
		logger:        logger,
	}
}

// Summary is the per-pass telemetry record
type Summary struct {
	Completed        int
	Failed           int
	Missing          int
	Errors           int
	UntrackedMatched int
	Duration         time.Duration
}

// RunPass classifies every ledger row against its live client status.
// Each row is handled at its own boundary: one unreachable client or bad
// row cannot abort the rest of the pass.
func (m *Monitor) RunPass(ctx context.Context) (*Summary, error) {
	start := time.Now()

	downloads, err := m.db.GetAllDownloads()
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, d := range downloads {
		m.reconcile(ctx, d, summary)
	}

	if m.matcher != nil {
		matched, err := m.matcher.Match(ctx)
		if err != nil {
			m.logger.WithError(err).Warn("Untracked job matching failed")
		}
		summary.UntrackedMatched = matched
	}

	summary.Duration = time.Since(start)
	metrics.MonitorPassDuration.Observe(summary.Duration.Seconds())

	m.sink.Publish(events.New(events.TypeMonitorSummary, map[string]interface{}{
		"completed":         summary.Completed,
		"failed":            summary.Failed,
		"missing":           summary.Missing,
		"errors":            summary.Errors,
		"untracked_matched": summary.UntrackedMatched,
		"duration_ms":       summary.Duration.Milliseconds(),
	}))

	m.logger.WithFields(logrus.Fields{
		"completed":         summary.Completed,
		"failed":            summary.Failed,
		"missing":           summary.Missing,
		"errors":            summary.Errors,
		"untracked_matched": summary.UntrackedMatched,
		"duration_ms":       summary.Duration.Milliseconds(),
	}).Info("Reconciliation pass finished")

	return summary, nil
}

// reconcile classifies one ledger row. The guard fields keep repeated
// observations of the same client state idempotent.
func (m *Monitor) reconcile(ctx context.Context, d *models.Download, summary *Summary) {
	client, err := m.registry.Get(d.Client)
	if err != nil {
		m.logger.WithError(err).WithField("download_id", d.ID).Error("No adapter for ledger row")
		summary.Errors++
		return
	}

	status, err := client.GetStatus(ctx, m.clientCfg, d.JobID)
	switch {
	case errors.Is(err, downloadclient.ErrJobNotFound):
		m.handleMissing(d, summary)
		return
	case err != nil:
		m.logger.WithError(err).WithFields(logrus.Fields{
			"download_id": d.ID,
			"job_id":      d.JobID,
		}).Warn("Failed to fetch live status")
		summary.Errors++
		return
	}

	switch {
	case status.State.Terminal() && d.DBCompletedAt == nil:
		m.handleCompleted(d, status, summary)
	case status.State.Terminal():
		// Guard already stamped but the row is still in the ledger: the
		// import task was lost or has not finished yet. Re-attempt the
		// retry-safe enqueue without re-emitting the completion event.
		m.retryImportEnqueue(d)
	case status.State == downloadclient.StateFailed && d.ErrorMessage == "":
		m.handleFailed(d, status, summary)
	case status.State == downloadclient.StateFailed:
		m.finishFailed(d, summary)
	}
}

// handleCompleted stamps the de-duplication guard before enqueueing the
// import, so a crashed or re-observed pass cannot import twice.
func (m *Monitor) handleCompleted(d *models.Download, status *downloadclient.Status, summary *Summary) {
	now := time.Now()
	d.DBCompletedAt = &now
	d.Status = models.DownloadStatusCompleted
	if status.SavePath != "" {
		d.SavePath = status.SavePath
	}
	if err := m.db.UpdateDownload(d); err != nil {
		m.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to mark download completed")
		summary.Errors++
		return
	}

	summary.Completed++
	metrics.MonitorClassified.WithLabelValues("completed").Inc()
	m.sink.Publish(events.New(events.TypeDownloadCompleted, map[string]interface{}{
		"download_id": d.ID,
		"title":       d.Title,
		"save_path":   d.SavePath,
	}))

	// Enqueue failure is logged and swallowed: the guard is already set,
	// so the next pass re-attempts the retry-safe enqueue.
	m.retryImportEnqueue(d)
}

// retryImportEnqueue schedules the import for a row whose completion
// guard is set but which is still in the ledger. The import queue's
// dedup window keeps a pending task from being scheduled twice.
func (m *Monitor) retryImportEnqueue(d *models.Download) {
	if err := m.enqueueImport(d.ID); err != nil && !errors.Is(err, jobs.ErrDuplicate) {
		m.logger.WithError(err).WithField("download_id", d.ID).Warn("Failed to enqueue import task")
	}
}

// handleFailed stamps the failure guard before any side effect, so a
// failed ledger delete cannot re-emit the failure event. Durable
// failure history is the event log's job, not the ledger's.
func (m *Monitor) handleFailed(d *models.Download, status *downloadclient.Status, summary *Summary) {
	message := status.Message
	if message == "" {
		message = defaultFailureMessage
	}

	d.ErrorMessage = message
	d.Status = models.DownloadStatusFailed
	if err := m.db.UpdateDownload(d); err != nil {
		m.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to mark download failed")
		summary.Errors++
		return
	}

	summary.Failed++
	metrics.MonitorClassified.WithLabelValues("failed").Inc()
	m.sink.Publish(events.New(events.TypeDownloadFailed, map[string]interface{}{
		"download_id": d.ID,
		"title":       d.Title,
		"error":       message,
	}))
	m.logger.WithFields(logrus.Fields{
		"download_id": d.ID,
		"title":       d.Title,
		"error":       message,
	}).Warn("Download failed")

	m.finishFailed(d, summary)
}

// finishFailed retries ledger cleanup for a row already guarded as
// failed, without re-emitting the failure event.
func (m *Monitor) finishFailed(d *models.Download, summary *Summary) {
	if err := m.db.DeleteDownload(d.ID); err != nil {
		m.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to delete failed download")
		summary.Errors++
	}
}

// handleMissing deletes rows that vanished from the client. Guarded rows
// resume their own flow: completed rows are re-scheduled for import (the
// pipeline falls back to the recorded save path), failed rows retry
// cleanup.
func (m *Monitor) handleMissing(d *models.Download, summary *Summary) {
	if d.DBCompletedAt != nil {
		m.retryImportEnqueue(d)
		return
	}
	if d.ErrorMessage != "" {
		m.finishFailed(d, summary)
		return
	}

	m.sink.Publish(events.New(events.TypeDownloadMissing, map[string]interface{}{
		"download_id": d.ID,
		"title":       d.Title,
	}))

	if err := m.db.DeleteDownload(d.ID); err != nil {
		m.logger.WithError(err).WithField("download_id", d.ID).Error("Failed to delete missing download")
		summary.Errors++
		return
	}

	summary.Missing++
	metrics.MonitorClassified.WithLabelValues("missing").Inc()
	m.logger.WithFields(logrus.Fields{
		"download_id": d.ID,
		"title":       d.Title,
	}).Info("Download vanished from client, removed from ledger")
}
