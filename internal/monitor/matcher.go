package monitor

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/models"
	"github.com/amaumene/fetcharr/internal/relname"
	"github.com/amaumene/fetcharr/internal/services/downloadclient"
)

// maxTitleDistanceRatio is the levenshtein distance, relative to the
// longer title, above which an untracked job is not associated.
const maxTitleDistanceRatio = 0.25

// Matcher associates client jobs that have no ledger row with catalog
// items, so downloads started outside the engine still get imported.
type Matcher struct {
	db        *models.Database
	registry  *downloadclient.Registry
	clientCfg downloadclient.Config
	logger    *logrus.Logger
}

// NewMatcher creates an untracked job matcher
func NewMatcher(db *models.Database, registry *downloadclient.Registry, clientCfg downloadclient.Config, logger *logrus.Logger) *Matcher {
	return &Matcher{
		db:        db,
		registry:  registry,
		clientCfg: clientCfg,
		logger:    logger,
	}
}

// Match scans the client's job list for jobs without a ledger row and
// records the ones whose parsed title matches a catalog item. Returns
// the number of jobs matched.
func (m *Matcher) Match(ctx context.Context) (int, error) {
	client, err := m.registry.Get(m.clientCfg.Type)
	if err != nil {
		return 0, err
	}

	clientJobs, err := client.List(ctx, m.clientCfg)
	if err != nil {
		return 0, err
	}

	items, err := m.db.GetAllMediaItems()
	if err != nil {
		return 0, err
	}

	matched := 0
	for _, job := range clientJobs {
		if _, err := m.db.GetDownloadByJobID(m.clientCfg.Type, job.ID); err == nil {
			continue
		} else if !models.IsNotFound(err) {
			m.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to look up ledger row")
			continue
		}

		item := m.bestMatch(job.Name, items)
		if item == nil {
			continue
		}

		parsed := relname.Parse(job.Name)
		d := &models.Download{
			MediaItemID: item.ID,
			Client:      m.clientCfg.Type,
			JobID:       job.ID,
			Title:       job.Name,
			Status:      models.DownloadStatusDownloading,
		}
		if item.MediaType == models.MediaTypeTV && parsed.Season > 0 && parsed.Episode > 0 {
			if ep, err := m.db.GetEpisodeByNumber(item.ID, parsed.Season, parsed.Episode); err == nil {
				d.EpisodeID = ep.ID
			}
		}

		if err := m.db.CreateDownload(d); err != nil {
			m.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to record untracked job")
			continue
		}

		matched++
		m.logger.WithFields(logrus.Fields{
			"job_id":     job.ID,
			"name":       job.Name,
			"media_item": item.Title,
		}).Info("Associated untracked client job")
	}

	return matched, nil
}

// bestMatch picks the catalog item whose title is closest to the parsed
// release title, within the distance ratio bound.
func (m *Matcher) bestMatch(jobName string, items []*models.MediaItem) *models.MediaItem {
	parsed := relname.Parse(jobName)
	title := strings.ToLower(strings.TrimSpace(parsed.Title))
	if title == "" {
		return nil
	}

	var best *models.MediaItem
	bestRatio := maxTitleDistanceRatio
	for _, item := range items {
		candidate := strings.ToLower(item.Title)
		longer := len(candidate)
		if len(title) > longer {
			longer = len(title)
		}
		if longer == 0 {
			continue
		}
		ratio := float64(levenshtein.ComputeDistance(title, candidate)) / float64(longer)
		if ratio <= bestRatio {
			bestRatio = ratio
			best = item
		}
	}
	return best
}
