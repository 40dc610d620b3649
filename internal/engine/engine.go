// Package engine is the acquisition decision engine: it turns "what is
// missing" into search requests, applies the season-pack heuristic and
// the per-run/per-show/per-season search budgets, ranks the results and
// initiates downloads for the winners.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/amaumene/fetcharr/internal/config"
	"github.com/amaumene/fetcharr/internal/metrics"
	"github.com/amaumene/fetcharr/internal/models"
	"github.com/amaumene/fetcharr/internal/ranker"
	"github.com/amaumene/fetcharr/internal/services/downloadclient"
	"github.com/amaumene/fetcharr/internal/services/indexer"
)

// Searcher issues free-text searches against the aggregator
type Searcher interface {
	SearchAll(ctx context.Context, query string, minSeeders int) ([]ranker.Candidate, error)
}

// Engine decides what to search for and how many searches to spend
type Engine struct {
	cfg       *config.Config
	db        *models.Database
	searcher  Searcher
	registry  *downloadclient.Registry
	clientCfg downloadclient.Config
	limiter   *rate.Limiter
	logger    *logrus.Logger
}

// New creates the decision engine. The pacing delay is enforced through
// a shared rate limiter so raising worker concurrency later cannot burst
// the aggregator.
func New(cfg *config.Config, db *models.Database, searcher Searcher, registry *downloadclient.Registry, logger *logrus.Logger) *Engine {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.SearchDelaySeconds > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Duration(cfg.SearchDelaySeconds)*time.Second), 1)
	}

	return &Engine{
		cfg:      cfg,
		db:       db,
		searcher: searcher,
		registry: registry,
		clientCfg: downloadclient.Config{
			Type:   cfg.DownloadClientType,
			URL:    cfg.DownloadClientURL,
			APIKey: cfg.DownloadClientKey,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// PassResult summarizes one search pass
type PassResult struct {
	Searches  int // searches actually issued
	Initiated int // downloads started
	Skipped   int // work deferred by budget exhaustion
}

// budget carries the per-run counter explicitly through the call chain;
// per-show and per-season counters are scoped locally.
type budget struct {
	maxRun    int
	maxShow   int
	maxSeason int
	runUsed   int
}

func (b *budget) runExhausted() bool {
	return b.maxRun > 0 && b.runUsed >= b.maxRun
}

// RunPass walks the catalog and spends the search budgets on missing
// movies and episodes. Items left untouched by budget exhaustion are
// retried on the next scheduled pass.
func (e *Engine) RunPass(ctx context.Context) (*PassResult, error) {
	movies, err := e.db.GetMediaItemsByType(models.MediaTypeMovie)
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	shows, err := e.db.GetMediaItemsByType(models.MediaTypeTV)
	if err != nil {
		return nil, fmt.Errorf("failed to list shows: %w", err)
	}
	items := append(movies, shows...)

	b := &budget{
		maxRun:    e.cfg.MaxSearchesPerRun,
		maxShow:   e.cfg.MaxSearchesPerShow,
		maxSeason: e.cfg.MaxSearchesPerSeason,
	}
	result := &PassResult{}

	for i, item := range items {
		if b.runExhausted() {
			e.logger.WithField("remaining_items", len(items)-i).
				Info("Per-run search budget exhausted, deferring remaining items")
			metrics.SearchesSkipped.WithLabelValues("run").Inc()
			result.Skipped += len(items) - i
			break
		}

		switch item.MediaType {
		case models.MediaTypeMovie:
			e.searchMovie(ctx, item, b, result)
		case models.MediaTypeTV:
			e.searchShow(ctx, item, b, result)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"searches":  result.Searches,
		"initiated": result.Initiated,
		"skipped":   result.Skipped,
	}).Info("Search pass finished")
	return result, nil
}

// searchMovie issues one search for a movie without a library file
func (e *Engine) searchMovie(ctx context.Context, item *models.MediaItem, b *budget, result *PassResult) {
	files, err := e.db.GetMediaFilesByMediaItem(item.ID)
	if err != nil {
		e.logger.WithError(err).WithField("media_item", item.Title).Error("Failed to list media files")
		return
	}
	if len(files) > 0 {
		return
	}
	if covered, err := e.hasActiveDownload(item.ID, 0); err != nil || covered {
		return
	}

	b.runUsed++
	result.Searches++
	metrics.SearchesExecuted.WithLabelValues("movie").Inc()

	sel, err := e.search(ctx, BuildMovieQuery(item.Title, item.Year), nil)
	if err != nil {
		e.logger.WithError(err).WithField("media_item", item.Title).Error("Movie search failed")
		return
	}
	if sel == nil {
		return
	}

	if err := e.initiate(ctx, item, 0, sel, nil); err != nil {
		e.logger.WithError(err).WithField("media_item", item.Title).Error("Failed to initiate movie download")
		return
	}
	result.Initiated++
}

// searchShow groups a show's missing episodes by season and spends the
// show budget season by season, most recent season first.
func (e *Engine) searchShow(ctx context.Context, item *models.MediaItem, b *budget, result *PassResult) {
	missing, err := e.db.GetMissingEpisodes(item.ID)
	if err != nil {
		e.logger.WithError(err).WithField("media_item", item.Title).Error("Failed to list missing episodes")
		return
	}

	covered, err := e.coveredEpisodes()
	if err != nil {
		e.logger.WithError(err).Error("Failed to read download ledger")
		return
	}

	bySeason := map[int][]*models.Episode{}
	for _, ep := range missing {
		if covered[ep.ID] {
			continue
		}
		bySeason[ep.SeasonNumber] = append(bySeason[ep.SeasonNumber], ep)
	}

	seasons := make([]int, 0, len(bySeason))
	for s := range bySeason {
		seasons = append(seasons, s)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(seasons)))

	showUsed := 0
	for i, season := range seasons {
		if b.runExhausted() {
			e.logger.WithFields(logrus.Fields{
				"media_item":        item.Title,
				"remaining_seasons": len(seasons) - i,
			}).Info("Per-run search budget exhausted, deferring remaining seasons")
			metrics.SearchesSkipped.WithLabelValues("run").Inc()
			result.Skipped += len(seasons) - i
			return
		}
		if b.maxShow > 0 && showUsed >= b.maxShow {
			e.logger.WithFields(logrus.Fields{
				"media_item":        item.Title,
				"remaining_seasons": len(seasons) - i,
			}).Info("Per-show search budget exhausted, deferring remaining seasons")
			metrics.SearchesSkipped.WithLabelValues("show").Inc()
			result.Skipped += len(seasons) - i
			return
		}

		eps := bySeason[season]
		decision := Decide(item, season, eps)
		e.logger.WithFields(logrus.Fields{
			"media_item": item.Title,
			"season":     season,
			"missing":    len(eps),
			"decision":   decision.Kind,
		}).Debug("Season search decision")

		switch decision.Kind {
		case DecisionSeasonPack:
			if !e.searchSeasonPack(ctx, item, season, eps, b, &showUsed, result) {
				// Pack attempt consumed one search; fall back to the
				// same missing-episode set individually.
				e.searchEpisodes(ctx, item, eps, b, &showUsed, result)
			}
		case DecisionIndividual:
			e.searchEpisodes(ctx, item, eps, b, &showUsed, result)
		}
	}
}

// searchSeasonPack issues the season query, keeps only pack-shaped
// candidates and ranks them. Returns false when nothing rankable was
// found so the caller can fall back to individual episodes.
func (e *Engine) searchSeasonPack(ctx context.Context, item *models.MediaItem, season int, eps []*models.Episode, b *budget, showUsed *int, result *PassResult) bool {
	b.runUsed++
	*showUsed++
	result.Searches++
	metrics.SearchesExecuted.WithLabelValues("season_pack").Inc()

	sel, err := e.search(ctx, BuildSeasonQuery(item.Title, season), ranker.FilterSeasonPacks)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"media_item": item.Title,
			"season":     season,
		}).Error("Season pack search failed")
		return false
	}
	if sel == nil {
		e.logger.WithFields(logrus.Fields{
			"media_item": item.Title,
			"season":     season,
		}).Debug("No rankable season pack, falling back to individual episodes")
		return false
	}

	pack := &packMeta{season: season, episodes: eps}
	if err := e.initiate(ctx, item, 0, sel, pack); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"media_item": item.Title,
			"season":     season,
		}).Error("Failed to initiate season pack download")
		return true // search spent, do not double it with episode searches
	}
	result.Initiated++
	return true
}

// searchEpisodes spends searches on individual episodes, most recently
// aired first. Episodes with a file or a future air date are skipped
// without consuming a search.
func (e *Engine) searchEpisodes(ctx context.Context, item *models.MediaItem, eps []*models.Episode, b *budget, showUsed *int, result *PassResult) {
	sorted := make([]*models.Episode, len(eps))
	copy(sorted, eps)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := sorted[i].AirDate, sorted[j].AirDate
		switch {
		case ai == nil:
			return false
		case aj == nil:
			return true
		default:
			return ai.After(*aj)
		}
	})

	now := time.Now()
	seasonUsed := 0
	for i, ep := range sorted {
		if ep.HasFile {
			continue
		}
		if ep.AirDate != nil && ep.AirDate.After(now) {
			continue
		}

		if b.runExhausted() {
			e.logSkip(item, "run", len(sorted)-i)
			result.Skipped += len(sorted) - i
			return
		}
		if b.maxShow > 0 && *showUsed >= b.maxShow {
			e.logSkip(item, "show", len(sorted)-i)
			result.Skipped += len(sorted) - i
			return
		}
		if b.maxSeason > 0 && seasonUsed >= b.maxSeason {
			e.logSkip(item, "season", len(sorted)-i)
			result.Skipped += len(sorted) - i
			return
		}

		b.runUsed++
		*showUsed++
		seasonUsed++
		result.Searches++
		metrics.SearchesExecuted.WithLabelValues("episode").Inc()

		sel, err := e.search(ctx, BuildEpisodeQuery(item.Title, ep.SeasonNumber, ep.EpisodeNumber), nil)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"media_item": item.Title,
				"season":     ep.SeasonNumber,
				"episode":    ep.EpisodeNumber,
			}).Error("Episode search failed")
			continue
		}
		if sel == nil {
			continue
		}

		if err := e.initiate(ctx, item, ep.ID, sel, nil); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"media_item": item.Title,
				"season":     ep.SeasonNumber,
				"episode":    ep.EpisodeNumber,
			}).Error("Failed to initiate episode download")
			continue
		}
		result.Initiated++
	}
}

func (e *Engine) logSkip(item *models.MediaItem, scope string, remaining int) {
	e.logger.WithFields(logrus.Fields{
		"media_item":         item.Title,
		"scope":              scope,
		"remaining_episodes": remaining,
	}).Info("Search budget exhausted, deferring remaining episodes")
	metrics.SearchesSkipped.WithLabelValues(scope).Inc()
}

// search waits for the pacing limiter, queries the aggregator, applies
// an optional candidate filter and ranks.
func (e *Engine) search(ctx context.Context, query string, filter func([]ranker.Candidate) []ranker.Candidate) (*ranker.Selection, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	candidates, err := e.searcher.SearchAll(ctx, query, e.cfg.MinSeeders)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		candidates = filter(candidates)
	}

	return ranker.Rank(candidates, e.rankOptions()), nil
}

func (e *Engine) rankOptions() ranker.Options {
	return ranker.Options{
		MinSeeders:    e.cfg.MinSeeders,
		MinSize:       e.cfg.MinSizeBytes,
		MaxSize:       e.cfg.MaxSizeBytes,
		Qualities:     e.cfg.Qualities,
		PreferredTags: e.cfg.PreferredTags,
		BlockedTags:   e.cfg.BlockedTags,
	}
}

type packMeta struct {
	season   int
	episodes []*models.Episode
}

// initiate hands the winning release to the download client and records
// the ledger row, attaching pack metadata for season packs so the import
// pipeline can map files without re-deriving them.
func (e *Engine) initiate(ctx context.Context, item *models.MediaItem, episodeID uint64, sel *ranker.Selection, pack *packMeta) error {
	client, err := e.registry.Get(e.clientCfg.Type)
	if err != nil {
		return err
	}

	jobID, err := client.Add(ctx, e.clientCfg, downloadclient.Release{
		Title:       sel.Candidate.Title,
		DownloadURL: indexer.DownloadURL(sel.Candidate),
	})
	if err != nil {
		return fmt.Errorf("failed to add download: %w", err)
	}

	d := &models.Download{
		MediaItemID: item.ID,
		EpisodeID:   episodeID,
		Client:      e.clientCfg.Type,
		JobID:       jobID,
		Title:       sel.Candidate.Title,
		Status:      models.DownloadStatusDownloading,
	}
	if pack != nil {
		d.IsSeasonPack = true
		d.PackSeason = pack.season
		d.PackEpisodeCount = len(pack.episodes)
		for _, ep := range pack.episodes {
			d.PackEpisodeIDs = append(d.PackEpisodeIDs, ep.ID)
		}
	}

	if err := e.db.CreateDownload(d); err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"media_item": item.Title,
		"title":      sel.Candidate.Title,
		"job_id":     jobID,
		"score":      sel.Score,
	}).Info("Initiated download")
	return nil
}

// hasActiveDownload reports whether the ledger already tracks this
// movie or episode, keeping repeated passes from re-downloading.
func (e *Engine) hasActiveDownload(mediaItemID, episodeID uint64) (bool, error) {
	downloads, err := e.db.GetAllDownloads()
	if err != nil {
		return false, err
	}
	for _, d := range downloads {
		if d.MediaItemID == mediaItemID && d.EpisodeID == episodeID {
			return true, nil
		}
	}
	return false, nil
}

// coveredEpisodes collects every episode id already covered by an
// in-flight download, directly or through a season pack.
func (e *Engine) coveredEpisodes() (map[uint64]bool, error) {
	downloads, err := e.db.GetAllDownloads()
	if err != nil {
		return nil, err
	}

	covered := make(map[uint64]bool)
	for _, d := range downloads {
		if d.EpisodeID != 0 {
			covered[d.EpisodeID] = true
		}
		for _, id := range d.PackEpisodeIDs {
			covered[id] = true
		}
	}
	return covered, nil
}
