package importer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/models"
	"github.com/amaumene/fetcharr/internal/relname"
	"github.com/amaumene/fetcharr/internal/utils"
)

// destination is the resolved placement for one file
type destination struct {
	dir          string          // library-relative directory
	filename     string          // sanitized file name
	episode      *models.Episode // resolved episode, nil when unresolved
	releaseGroup string
}

// resolveDestination picks the destination directory and association for
// one file, by case priority: season pack, parseable TV file, TV with a
// pre-assigned episode, movie, unknown.
func (im *Importer) resolveDestination(ctx context.Context, d *models.Download, path string) (*destination, error) {
	base := filepath.Base(path)
	parsed := relname.Parse(base)

	dest := &destination{
		filename:     utils.SanitizeName(base),
		releaseGroup: relname.ReleaseGroup(base),
	}

	item, err := im.db.GetMediaItemByID(d.MediaItemID)
	if err != nil {
		if !models.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load media item %d: %w", d.MediaItemID, err)
		}
		item = nil
	}

	switch {
	case item == nil:
		dest.dir = utils.SanitizeName(d.Title)

	case item.MediaType == models.MediaTypeMovie:
		if item.Year > 0 {
			dest.dir = utils.SanitizeName(fmt.Sprintf("%s (%d)", item.Title, item.Year))
		} else {
			dest.dir = utils.SanitizeName(item.Title)
		}

	case d.IsSeasonPack && parsed.Episode > 0:
		// The pack's season number is authoritative over the parsed one.
		season := d.PackSeason
		dest.episode = im.lookupEpisodeWithBackfill(ctx, item, season, parsed.Episode)
		dest.dir = seasonDir(item.Title, season)

	case parsed.Season > 0 && parsed.Episode > 0:
		ep, err := im.db.GetEpisodeByNumber(item.ID, parsed.Season, parsed.Episode)
		if err == nil {
			dest.episode = ep
		} else {
			dest.episode = im.assignedEpisode(d)
		}
		dest.dir = seasonDir(item.Title, parsed.Season)

	default:
		if ep := im.assignedEpisode(d); ep != nil {
			dest.episode = ep
			dest.dir = seasonDir(item.Title, ep.SeasonNumber)
		} else {
			dest.dir = utils.SanitizeName(item.Title)
		}
	}

	return dest, nil
}

func seasonDir(title string, season int) string {
	return filepath.Join(utils.SanitizeName(title), fmt.Sprintf("Season %02d", season))
}

// assignedEpisode loads the episode the download was created for, if any
func (im *Importer) assignedEpisode(d *models.Download) *models.Episode {
	if d.EpisodeID == 0 {
		return nil
	}
	ep, err := im.db.GetEpisodeByID(d.EpisodeID)
	if err != nil {
		im.logger.WithError(err).WithField("episode_id", d.EpisodeID).Warn("Failed to load assigned episode")
		return nil
	}
	return ep
}

// lookupEpisodeWithBackfill looks up an episode by number; on a miss it
// refreshes the season's episode list from the metadata provider once
// and retries. Returns nil when the episode stays unknown; the file is
// still placed in the season directory.
func (im *Importer) lookupEpisodeWithBackfill(ctx context.Context, item *models.MediaItem, season, episode int) *models.Episode {
	ep, err := im.db.GetEpisodeByNumber(item.ID, season, episode)
	if err == nil {
		return ep
	}
	if !models.IsNotFound(err) {
		im.logger.WithError(err).Warn("Episode lookup failed")
		return nil
	}

	if !im.backfillSeason(ctx, item, season) {
		return nil
	}

	ep, err = im.db.GetEpisodeByNumber(item.ID, season, episode)
	if err != nil {
		im.logger.WithFields(logrus.Fields{
			"media_item": item.Title,
			"season":     season,
			"episode":    episode,
		}).Warn("Episode still unknown after season refresh")
		return nil
	}
	return ep
}

// backfillSeason pulls the season's episode list from the metadata
// provider and creates the episodes the catalog is missing.
func (im *Importer) backfillSeason(ctx context.Context, item *models.MediaItem, season int) bool {
	if im.seasons == nil || item.ProviderID == "" {
		return false
	}

	metas, err := im.seasons.FetchSeason(ctx, item.ProviderID, season)
	if err != nil {
		im.logger.WithError(err).WithFields(logrus.Fields{
			"media_item": item.Title,
			"season":     season,
		}).Warn("Season metadata refresh failed")
		return false
	}

	created := 0
	for _, meta := range metas {
		if _, err := im.db.GetEpisodeByNumber(item.ID, season, meta.Number); err == nil {
			continue
		} else if !models.IsNotFound(err) {
			continue
		}
		ep := &models.Episode{
			MediaItemID:   item.ID,
			SeasonNumber:  season,
			EpisodeNumber: meta.Number,
			Title:         meta.Title,
			AirDate:       meta.AirDate,
		}
		if err := im.db.CreateEpisode(ep); err != nil {
			im.logger.WithError(err).Warn("Failed to create backfilled episode")
			continue
		}
		created++
	}

	// Keep the season total used by the pack heuristic current
	if len(metas) > 0 && item.SeasonEpisodeCount(season) != len(metas) {
		found := false
		for i := range item.Seasons {
			if item.Seasons[i].Number == season {
				item.Seasons[i].EpisodeCount = len(metas)
				found = true
				break
			}
		}
		if !found {
			item.Seasons = append(item.Seasons, models.SeasonInfo{Number: season, EpisodeCount: len(metas)})
		}
		if err := im.db.UpdateMediaItem(item); err != nil {
			im.logger.WithError(err).Warn("Failed to update season metadata")
		}
	}

	im.logger.WithFields(logrus.Fields{
		"media_item": item.Title,
		"season":     season,
		"created":    created,
	}).Info("Backfilled season episodes")
	return true
}
