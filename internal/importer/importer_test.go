package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/config"
	"github.com/amaumene/fetcharr/internal/events"
	"github.com/amaumene/fetcharr/internal/models"
	"github.com/amaumene/fetcharr/internal/probe"
	"github.com/amaumene/fetcharr/internal/services/downloadclient"
)

func TestPreconditionSkips(t *testing.T) {
	env := newTestEnv(t)
	d := env.seedDownload(t, 0, false, 0)
	// Guard not set: the import task raced ahead of the monitor

	result, err := env.importer.Run(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Skipped {
		t.Errorf("Expected a no-op skip, got %+v", result)
	}

	files, _ := env.db.GetAllMediaFiles()
	if len(files) != 0 {
		t.Errorf("Skip must not create catalog records, got %d", len(files))
	}
}

func TestMovieImport(t *testing.T) {
	env := newTestEnv(t)
	item := env.seedMovie(t, "Test Movie", 2024)
	env.writeSource(t, "Test.Movie.2024.1080p.BluRay.x264-GRP.mkv", 4096)
	d := env.seedDownload(t, item.ID, false, 0)
	env.markCompleted(t, d)

	result, err := env.importer.Run(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("Expected 1 imported file, got %+v", result)
	}

	files, _ := env.db.GetAllMediaFiles()
	if len(files) != 1 {
		t.Fatalf("Expected 1 catalog record, got %d", len(files))
	}
	f := files[0]
	if f.Path != filepath.Join("Test Movie (2024)", "Test.Movie.2024.1080p.BluRay.x264-GRP.mkv") {
		t.Errorf("Unexpected destination: %q", f.Path)
	}
	if f.MediaItemID != item.ID || f.EpisodeID != 0 {
		t.Errorf("Movie file should reference the media item only: %+v", f)
	}
	if f.ReleaseGroup != "GRP" {
		t.Errorf("Release group not detected: %q", f.ReleaseGroup)
	}
	// Probe failed in this env, filename metadata is the fallback
	if f.Resolution != "1080p" {
		t.Errorf("Filename resolution fallback missing: %q", f.Resolution)
	}

	if _, err := os.Stat(filepath.Join(env.cfg.LibraryDir, f.Path)); err != nil {
		t.Errorf("Imported file missing on disk: %v", err)
	}

	// Successful import deletes the ledger row
	if _, err := env.db.GetDownloadByID(d.ID); !models.IsNotFound(err) {
		t.Errorf("Ledger row should be deleted, got %v", err)
	}
	if got := len(env.sink.ByType(events.TypeImportCompleted)); got != 1 {
		t.Errorf("Expected one import event, got %d", got)
	}
}

func TestReuseIdenticalFile(t *testing.T) {
	env := newTestEnv(t)
	item := env.seedMovie(t, "Test Movie", 2024)
	src := env.writeSource(t, "Test.Movie.2024.1080p.x264-GRP.mkv", 4096)

	// The destination already holds an identical-sized untracked file
	destDir := filepath.Join(env.cfg.LibraryDir, "Test Movie (2024)")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		t.Fatal(err)
	}
	destPath := filepath.Join(destDir, filepath.Base(src))
	other := make([]byte, 4096)
	for i := range other {
		other[i] = 'x'
	}
	if err := os.WriteFile(destPath, other, 0644); err != nil {
		t.Fatal(err)
	}
	pre, err := os.Stat(destPath)
	if err != nil {
		t.Fatal(err)
	}

	d := env.seedDownload(t, item.ID, false, 0)
	env.markCompleted(t, d)

	result, err := env.importer.Run(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Reused != 1 || result.Imported != 0 {
		t.Errorf("Expected one reuse and zero copies, got %+v", result)
	}

	files, _ := env.db.GetAllMediaFiles()
	if len(files) != 1 {
		t.Fatalf("Expected exactly one catalog record, got %d", len(files))
	}

	post, err := os.Stat(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if post.ModTime() != pre.ModTime() || post.Size() != pre.Size() {
		t.Errorf("Existing file must not be rewritten")
	}
}

func TestConflictUniquifiesPath(t *testing.T) {
	env := newTestEnv(t)
	item := env.seedMovie(t, "Test Movie", 2024)
	src := env.writeSource(t, "Test.Movie.2024.1080p.x264-GRP.mkv", 4096)

	// A different-sized file with its own catalog record sits at the
	// destination already
	destDir := filepath.Join(env.cfg.LibraryDir, "Test Movie (2024)")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		t.Fatal(err)
	}
	destPath := filepath.Join(destDir, filepath.Base(src))
	if err := os.WriteFile(destPath, []byte("older smaller release"), 0644); err != nil {
		t.Fatal(err)
	}
	existing := &models.MediaFile{
		MediaItemID: item.ID,
		Path:        filepath.Join("Test Movie (2024)", filepath.Base(src)),
		Size:        21,
	}
	if err := env.db.CreateMediaFile(existing); err != nil {
		t.Fatal(err)
	}

	d := env.seedDownload(t, item.ID, false, 0)
	env.markCompleted(t, d)

	result, err := env.importer.Run(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("Expected one import, got %+v", result)
	}

	files, _ := env.db.GetAllMediaFiles()
	if len(files) != 2 {
		t.Fatalf("Expected two catalog records, got %d", len(files))
	}

	suffixed := filepath.Join("Test Movie (2024)", "Test.Movie.2024.1080p.x264-GRP (1).mkv")
	if _, err := env.db.GetMediaFileByPath(suffixed); err != nil {
		t.Errorf("Suffixed record missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.LibraryDir, suffixed)); err != nil {
		t.Errorf("Suffixed file missing on disk: %v", err)
	}

	// Original untouched
	data, err := os.ReadFile(destPath)
	if err != nil || string(data) != "older smaller release" {
		t.Errorf("Original file was modified")
	}
}

func TestStaleRecordReplacedWhenFileGone(t *testing.T) {
	env := newTestEnv(t)
	item := env.seedMovie(t, "Test Movie", 2024)
	env.writeSource(t, "Test.Movie.2024.1080p.x264-GRP.mkv", 4096)

	// A record from an earlier import whose file was deleted on disk
	stale := &models.MediaFile{
		MediaItemID: item.ID,
		Path:        filepath.Join("Test Movie (2024)", "Test.Movie.2024.1080p.x264-GRP.mkv"),
		Size:        4096,
	}
	if err := env.db.CreateMediaFile(stale); err != nil {
		t.Fatal(err)
	}

	d := env.seedDownload(t, item.ID, false, 0)
	env.markCompleted(t, d)

	result, err := env.importer.Run(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("Expected the file to be imported fresh, got %+v", result)
	}

	files, _ := env.db.GetAllMediaFiles()
	if len(files) != 1 {
		t.Fatalf("Stale record should be replaced, not duplicated: %d records", len(files))
	}
	if files[0].ID == stale.ID {
		t.Errorf("Stale record should have been dropped")
	}
	if files[0].SourceDownloadID != d.ID {
		t.Errorf("Replacement record should carry the new provenance: %+v", files[0])
	}
	if _, err := os.Stat(filepath.Join(env.cfg.LibraryDir, files[0].Path)); err != nil {
		t.Errorf("Imported file missing on disk: %v", err)
	}
}

func TestSeasonPackSeasonIsAuthoritative(t *testing.T) {
	env := newTestEnv(t)
	item := env.seedShow(t, "Pack Show")
	ep := &models.Episode{MediaItemID: item.ID, SeasonNumber: 3, EpisodeNumber: 2}
	if err := env.db.CreateEpisode(ep); err != nil {
		t.Fatal(err)
	}

	// The file name claims season 1; the pack metadata says season 3
	env.writeSource(t, "Pack.Show.S01E02.1080p.WEB-DL.x264-GRP.mkv", 2048)
	d := env.seedDownload(t, item.ID, true, 3)
	env.markCompleted(t, d)

	if _, err := env.importer.Run(context.Background(), d.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	files, _ := env.db.GetAllMediaFiles()
	if len(files) != 1 {
		t.Fatalf("Expected 1 catalog record, got %d", len(files))
	}
	f := files[0]
	if f.EpisodeID != ep.ID {
		t.Errorf("File should associate to S03E02, got %+v", f)
	}
	if filepath.Dir(f.Path) != filepath.Join("Pack Show", "Season 03") {
		t.Errorf("Pack season should drive the destination, got %q", f.Path)
	}

	updated, _ := env.db.GetEpisodeByID(ep.ID)
	if !updated.HasFile {
		t.Errorf("Episode not flagged as having a file")
	}
}

func TestSeasonBackfillOnUnknownEpisode(t *testing.T) {
	env := newTestEnv(t)
	item := env.seedShow(t, "Backfill Show")
	item.ProviderID = "tt1234567"
	if err := env.db.UpdateMediaItem(item); err != nil {
		t.Fatal(err)
	}

	env.fetcher.seasons = map[int][]EpisodeMeta{
		2: {{Number: 1, Title: "One"}, {Number: 2, Title: "Two"}},
	}

	env.writeSource(t, "Backfill.Show.S02E02.1080p.x264-GRP.mkv", 2048)
	d := env.seedDownload(t, item.ID, true, 2)
	env.markCompleted(t, d)

	if _, err := env.importer.Run(context.Background(), d.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ep, err := env.db.GetEpisodeByNumber(item.ID, 2, 2)
	if err != nil {
		t.Fatalf("Backfilled episode missing: %v", err)
	}

	files, _ := env.db.GetAllMediaFiles()
	if len(files) != 1 || files[0].EpisodeID != ep.ID {
		t.Errorf("File not associated to the backfilled episode: %+v", files)
	}
}

func TestRetrySkipsImportedFiles(t *testing.T) {
	env := newTestEnv(t)
	item := env.seedMovie(t, "Retry Movie", 2023)
	env.writeSource(t, "Retry.Movie.2023.1080p.x264-GRP.mkv", 4096)
	d := env.seedDownload(t, item.ID, false, 0)
	env.markCompleted(t, d)

	if _, err := env.importer.Run(context.Background(), d.ID); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	// A crash between file placement and ledger cleanup retries the
	// whole task; conflict resolution must absorb the rerun.
	d2 := env.seedDownload(t, item.ID, false, 0)
	env.markCompleted(t, d2)

	result, err := env.importer.Run(context.Background(), d2.ID)
	if err != nil {
		t.Fatalf("Retry run failed: %v", err)
	}
	if result.Imported != 0 || result.Reused != 1 {
		t.Errorf("Retry should reuse the placed file, got %+v", result)
	}

	files, _ := env.db.GetAllMediaFiles()
	if len(files) != 1 {
		t.Errorf("Retry must not duplicate catalog records, got %d", len(files))
	}
}

func TestSingleReferenceInvariant(t *testing.T) {
	env := newTestEnv(t)
	item := env.seedShow(t, "Invariant Show")
	ep := &models.Episode{MediaItemID: item.ID, SeasonNumber: 1, EpisodeNumber: 1}
	if err := env.db.CreateEpisode(ep); err != nil {
		t.Fatal(err)
	}

	env.writeSource(t, "Invariant.Show.S01E01.720p.x264-GRP.mkv", 2048)
	d := env.seedDownload(t, item.ID, false, 0)
	d.EpisodeID = ep.ID
	if err := env.db.UpdateDownload(d); err != nil {
		t.Fatal(err)
	}
	env.markCompleted(t, d)

	if _, err := env.importer.Run(context.Background(), d.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	files, _ := env.db.GetAllMediaFiles()
	for _, f := range files {
		hasEpisode := f.EpisodeID != 0
		hasItem := f.MediaItemID != 0
		if hasEpisode == hasItem {
			t.Errorf("Record must reference exactly one of episode/media item: %+v", f)
		}
	}
}

// test environment

type testEnv struct {
	cfg       *config.Config
	db        *models.Database
	client    *fakeClient
	fetcher   *fakeFetcher
	sink      *events.MemorySink
	importer  *Importer
	sourceDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		cfg: &config.Config{
			LibraryDir:        t.TempDir(),
			ImportMode:        "copy",
			RemoveAfterImport: true,
		},
		db:        db,
		client:    &fakeClient{},
		fetcher:   &fakeFetcher{},
		sink:      events.NewMemorySink(),
		sourceDir: t.TempDir(),
	}
	env.client.savePath = env.sourceDir

	registry := downloadclient.NewRegistry()
	registry.Register(env.client)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	env.importer = New(env.cfg, db, registry, downloadclient.Config{Type: "fake"},
		&failingProber{}, env.fetcher, env.sink, logger)
	return env
}

func (env *testEnv) seedMovie(t *testing.T, title string, year int) *models.MediaItem {
	t.Helper()
	item := &models.MediaItem{Title: title, Year: year, MediaType: models.MediaTypeMovie}
	if err := env.db.CreateMediaItem(item); err != nil {
		t.Fatal(err)
	}
	return item
}

func (env *testEnv) seedShow(t *testing.T, title string) *models.MediaItem {
	t.Helper()
	item := &models.MediaItem{Title: title, MediaType: models.MediaTypeTV}
	if err := env.db.CreateMediaItem(item); err != nil {
		t.Fatal(err)
	}
	return item
}

func (env *testEnv) seedDownload(t *testing.T, mediaItemID uint64, pack bool, packSeason int) *models.Download {
	t.Helper()
	d := &models.Download{
		MediaItemID:  mediaItemID,
		Client:       "fake",
		JobID:        "job-1",
		Title:        "Test Release",
		Status:       models.DownloadStatusDownloading,
		IsSeasonPack: pack,
		PackSeason:   packSeason,
	}
	if err := env.db.CreateDownload(d); err != nil {
		t.Fatal(err)
	}
	return d
}

func (env *testEnv) markCompleted(t *testing.T, d *models.Download) {
	t.Helper()
	now := time.Now()
	d.DBCompletedAt = &now
	d.Status = models.DownloadStatusCompleted
	d.SavePath = env.sourceDir
	if err := env.db.UpdateDownload(d); err != nil {
		t.Fatal(err)
	}
}

func (env *testEnv) writeSource(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(env.sourceDir, name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// failingProber forces the filename metadata fallback
type failingProber struct{}

func (failingProber) Probe(ctx context.Context, path string) (*probe.Info, error) {
	return nil, errors.New("probe unavailable")
}

type fakeFetcher struct {
	seasons map[int][]EpisodeMeta
}

func (f *fakeFetcher) FetchSeason(ctx context.Context, providerID string, season int) ([]EpisodeMeta, error) {
	if metas, ok := f.seasons[season]; ok {
		return metas, nil
	}
	return nil, errors.New("season not found")
}

type fakeClient struct {
	savePath string
	removed  []string
}

func (f *fakeClient) Type() string { return "fake" }

func (f *fakeClient) Add(ctx context.Context, cfg downloadclient.Config, release downloadclient.Release) (string, error) {
	return "", nil
}

func (f *fakeClient) GetStatus(ctx context.Context, cfg downloadclient.Config, jobID string) (*downloadclient.Status, error) {
	return &downloadclient.Status{State: downloadclient.StateCompleted, Progress: 100, SavePath: f.savePath}, nil
}

func (f *fakeClient) RemoveDownload(ctx context.Context, cfg downloadclient.Config, jobID string) error {
	f.removed = append(f.removed, jobID)
	return nil
}

func (f *fakeClient) TestConnection(ctx context.Context, cfg downloadclient.Config) (string, error) {
	return "fake", nil
}

func (f *fakeClient) List(ctx context.Context, cfg downloadclient.Config) ([]downloadclient.Job, error) {
	return nil, nil
}
