package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/config"
	"github.com/amaumene/fetcharr/internal/models"
	"github.com/amaumene/fetcharr/internal/ranker"
	"github.com/amaumene/fetcharr/internal/services/downloadclient"
)

func TestDecide(t *testing.T) {
	item := &models.MediaItem{
		Title:   "Test Show",
		Seasons: []models.SeasonInfo{{Number: 1, EpisodeCount: 10}},
	}

	missing := makeEpisodes(7)
	d := Decide(item, 1, missing)
	if d.Kind != DecisionSeasonPack {
		t.Errorf("7 of 10 missing should prefer a season pack, got %s", d.Kind)
	}
	if len(d.EpisodeIDs) != 7 {
		t.Errorf("Expected 7 episode IDs, got %d", len(d.EpisodeIDs))
	}

	missing = makeEpisodes(6)
	d = Decide(item, 1, missing)
	if d.Kind != DecisionIndividual {
		t.Errorf("6 of 10 missing should search individually, got %s", d.Kind)
	}

	// No season metadata: every episode counts as missing, prefer the pack
	bare := &models.MediaItem{Title: "Test Show"}
	d = Decide(bare, 2, makeEpisodes(3))
	if d.Kind != DecisionSeasonPack {
		t.Errorf("unknown episode total should prefer a season pack, got %s", d.Kind)
	}
}

func TestBuildQueries(t *testing.T) {
	if q := BuildMovieQuery("Test Movie", 2024); q != "Test Movie 2024" {
		t.Errorf("movie query mismatch: %q", q)
	}
	if q := BuildMovieQuery("Test Movie", 0); q != "Test Movie" {
		t.Errorf("yearless movie query mismatch: %q", q)
	}
	if q := BuildEpisodeQuery("Test Show", 3, 7); q != "Test Show S03E07" {
		t.Errorf("episode query mismatch: %q", q)
	}
	if q := BuildSeasonQuery("Test Show", 3); q != "Test Show S03" {
		t.Errorf("season query mismatch: %q", q)
	}
}

func TestBudgetPerShow(t *testing.T) {
	db := testDB(t)
	item := seedShow(t, db, "Budget Show", 3, 2)

	searcher := &fakeSearcher{packWinners: true}
	registry, client := testRegistry()

	e := testEngine(t, db, searcher, registry, func(cfg *config.Config) {
		cfg.MaxSearchesPerShow = 2
	})

	result, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	if result.Searches != 2 {
		t.Errorf("Expected exactly 2 searches, got %d (queries: %v)", result.Searches, searcher.queries)
	}
	if result.Skipped == 0 {
		t.Errorf("Expected the third season to be reported as skipped")
	}
	if len(client.added) != 2 {
		t.Fatalf("Expected 2 downloads initiated, got %d", len(client.added))
	}

	downloads, err := db.GetAllDownloads()
	if err != nil {
		t.Fatalf("Failed to list downloads: %v", err)
	}
	if len(downloads) != 2 {
		t.Fatalf("Expected 2 ledger rows, got %d", len(downloads))
	}
	seasons := map[int]bool{}
	for _, d := range downloads {
		if !d.IsSeasonPack {
			t.Errorf("Expected a season pack download, got %+v", d)
		}
		if d.MediaItemID != item.ID {
			t.Errorf("Download not associated to show")
		}
		if d.PackEpisodeCount != 2 || len(d.PackEpisodeIDs) != 2 {
			t.Errorf("Pack metadata missing: %+v", d)
		}
		seasons[d.PackSeason] = true
	}
	// Seasons are spent most recent first
	if !seasons[3] || !seasons[2] {
		t.Errorf("Expected packs for seasons 3 and 2, got %v", seasons)
	}
}

func TestPackFallbackToEpisodes(t *testing.T) {
	db := testDB(t)
	seedShow(t, db, "Fallback Show", 1, 3)

	// Season searches find nothing; episode searches find a winner
	searcher := &fakeSearcher{episodeWinners: true}
	registry, client := testRegistry()

	e := testEngine(t, db, searcher, registry, nil)

	result, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	// One pack attempt plus three episode searches
	if result.Searches != 4 {
		t.Errorf("Expected 4 searches, got %d (queries: %v)", result.Searches, searcher.queries)
	}
	if len(client.added) != 3 {
		t.Errorf("Expected 3 episode downloads, got %d", len(client.added))
	}

	downloads, _ := db.GetAllDownloads()
	for _, d := range downloads {
		if d.IsSeasonPack {
			t.Errorf("Fallback should not record pack downloads: %+v", d)
		}
		if d.EpisodeID == 0 {
			t.Errorf("Episode download missing episode association: %+v", d)
		}
	}
}

func TestFutureEpisodesSkippedWithoutSearch(t *testing.T) {
	db := testDB(t)
	item := &models.MediaItem{
		Title:     "Airing Show",
		MediaType: models.MediaTypeTV,
		Seasons:   []models.SeasonInfo{{Number: 1, EpisodeCount: 10}},
	}
	if err := db.CreateMediaItem(item); err != nil {
		t.Fatalf("Failed to create media item: %v", err)
	}

	past := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)
	for i, air := range []*time.Time{&past, &future} {
		ep := &models.Episode{
			MediaItemID:   item.ID,
			SeasonNumber:  1,
			EpisodeNumber: i + 1,
			AirDate:       air,
		}
		if err := db.CreateEpisode(ep); err != nil {
			t.Fatalf("Failed to create episode: %v", err)
		}
	}

	searcher := &fakeSearcher{}
	registry, _ := testRegistry()
	e := testEngine(t, db, searcher, registry, nil)

	result, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	// 2 of 10 missing: individual search, and only the aired episode
	if result.Searches != 1 {
		t.Errorf("Expected 1 search for the aired episode, got %d (queries: %v)", result.Searches, searcher.queries)
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "Airing Show S01E01" {
		t.Errorf("Unexpected queries: %v", searcher.queries)
	}
}

func TestActiveDownloadsNotResearched(t *testing.T) {
	db := testDB(t)
	item := seedShow(t, db, "Tracked Show", 1, 2)

	eps, err := db.GetEpisodesByMediaItem(item.ID)
	if err != nil {
		t.Fatalf("Failed to list episodes: %v", err)
	}

	// A pack download already covers every episode of the season
	d := &models.Download{
		MediaItemID:      item.ID,
		Client:           "fake",
		JobID:            "1",
		Status:           models.DownloadStatusDownloading,
		IsSeasonPack:     true,
		PackSeason:       1,
		PackEpisodeCount: len(eps),
	}
	for _, ep := range eps {
		d.PackEpisodeIDs = append(d.PackEpisodeIDs, ep.ID)
	}
	if err := db.CreateDownload(d); err != nil {
		t.Fatalf("Failed to create download: %v", err)
	}

	searcher := &fakeSearcher{packWinners: true}
	registry, _ := testRegistry()
	e := testEngine(t, db, searcher, registry, nil)

	result, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if result.Searches != 0 {
		t.Errorf("Covered episodes must not be re-searched, got %d searches", result.Searches)
	}
}

// helpers

func testDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngine(t *testing.T, db *models.Database, searcher Searcher, registry *downloadclient.Registry, mutate func(*config.Config)) *Engine {
	t.Helper()
	cfg := &config.Config{
		DownloadClientType: "fake",
		Qualities:          []string{"1080p", "720p"},
	}
	if mutate != nil {
		mutate(cfg)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(cfg, db, searcher, registry, logger)
}

// seedShow creates a show with the given number of seasons, each with
// episodeCount aired episodes, all missing files.
func seedShow(t *testing.T, db *models.Database, title string, seasons, episodeCount int) *models.MediaItem {
	t.Helper()

	item := &models.MediaItem{
		Title:     title,
		MediaType: models.MediaTypeTV,
	}
	for s := 1; s <= seasons; s++ {
		item.Seasons = append(item.Seasons, models.SeasonInfo{Number: s, EpisodeCount: episodeCount})
	}
	if err := db.CreateMediaItem(item); err != nil {
		t.Fatalf("Failed to create media item: %v", err)
	}

	aired := time.Now().Add(-30 * 24 * time.Hour)
	for s := 1; s <= seasons; s++ {
		for e := 1; e <= episodeCount; e++ {
			ep := &models.Episode{
				MediaItemID:   item.ID,
				SeasonNumber:  s,
				EpisodeNumber: e,
				AirDate:       &aired,
			}
			if err := db.CreateEpisode(ep); err != nil {
				t.Fatalf("Failed to create episode: %v", err)
			}
		}
	}
	return item
}

func makeEpisodes(n int) []*models.Episode {
	eps := make([]*models.Episode, n)
	for i := range eps {
		eps[i] = &models.Episode{ID: uint64(i + 1), SeasonNumber: 1, EpisodeNumber: i + 1}
	}
	return eps
}

// fakeSearcher echoes the query back as a candidate title so season
// queries produce pack-shaped titles and episode queries episode-shaped
// ones.
type fakeSearcher struct {
	queries        []string
	packWinners    bool // season queries return a rankable candidate
	episodeWinners bool // episode queries return a rankable candidate
}

func (f *fakeSearcher) SearchAll(ctx context.Context, query string, minSeeders int) ([]ranker.Candidate, error) {
	f.queries = append(f.queries, query)

	isEpisode := len(query) >= 3 && query[len(query)-3] == 'E'
	if isEpisode && !f.episodeWinners {
		return nil, nil
	}
	if !isEpisode && !f.packWinners {
		return nil, nil
	}

	return []ranker.Candidate{{
		Title:   query + " 1080p WEB-DL x265-GRP",
		Size:    5 << 30,
		Seeders: 50,
	}}, nil
}

// fakeClient records Add calls and hands out sequential job ids
type fakeClient struct {
	added []string
}

func (f *fakeClient) Type() string { return "fake" }

func (f *fakeClient) Add(ctx context.Context, cfg downloadclient.Config, release downloadclient.Release) (string, error) {
	f.added = append(f.added, release.Title)
	return "job-" + string(rune('a'+len(f.added))), nil
}

func (f *fakeClient) GetStatus(ctx context.Context, cfg downloadclient.Config, jobID string) (*downloadclient.Status, error) {
	return nil, downloadclient.ErrJobNotFound
}

func (f *fakeClient) RemoveDownload(ctx context.Context, cfg downloadclient.Config, jobID string) error {
	return nil
}

func (f *fakeClient) TestConnection(ctx context.Context, cfg downloadclient.Config) (string, error) {
	return "fake", nil
}

func (f *fakeClient) List(ctx context.Context, cfg downloadclient.Config) ([]downloadclient.Job, error) {
	return nil, nil
}

func testRegistry() (*downloadclient.Registry, *fakeClient) {
	registry := downloadclient.NewRegistry()
	client := &fakeClient{}
	registry.Register(client)
	return registry, client
}
