package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// IsNotFound reports whether err is, or wraps, the store's not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, bolthold.ErrNotFound)
}

// MediaItem operations

// CreateMediaItem creates a new media item
func (db *Database) CreateMediaItem(item *MediaItem) error {
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), item)
}

// UpdateMediaItem updates an existing media item
func (db *Database) UpdateMediaItem(item *MediaItem) error {
	item.UpdatedAt = time.Now()
	return db.store.Update(item.ID, item)
}

// GetMediaItemByID retrieves a media item by ID
func (db *Database) GetMediaItemByID(id uint64) (*MediaItem, error) {
	var item MediaItem
	if err := db.store.Get(id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetAllMediaItems retrieves all media items
func (db *Database) GetAllMediaItems() ([]*MediaItem, error) {
	var items []*MediaItem
	err := db.store.Find(&items, nil)
	return items, err
}

// GetMediaItemsByType retrieves all media items of a type
func (db *Database) GetMediaItemsByType(mediaType MediaType) ([]*MediaItem, error) {
	var items []*MediaItem
	err := db.store.Find(&items, bolthold.Where("MediaType").Eq(mediaType))
	return items, err
}

// Episode operations

// CreateEpisode creates a new episode
func (db *Database) CreateEpisode(ep *Episode) error {
	ep.CreatedAt = time.Now()
	ep.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), ep)
}

// UpdateEpisode updates an existing episode
func (db *Database) UpdateEpisode(ep *Episode) error {
	ep.UpdatedAt = time.Now()
	return db.store.Update(ep.ID, ep)
}

// GetEpisodeByID retrieves an episode by ID
func (db *Database) GetEpisodeByID(id uint64) (*Episode, error) {
	var ep Episode
	if err := db.store.Get(id, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// GetEpisodesByMediaItem retrieves all episodes of a show
func (db *Database) GetEpisodesByMediaItem(mediaItemID uint64) ([]*Episode, error) {
	var eps []*Episode
	err := db.store.Find(&eps, bolthold.Where("MediaItemID").Eq(mediaItemID))
	return eps, err
}

// GetEpisodeByNumber retrieves an episode by (show, season, episode)
func (db *Database) GetEpisodeByNumber(mediaItemID uint64, season, episode int) (*Episode, error) {
	var eps []*Episode
	err := db.store.Find(&eps, bolthold.Where("MediaItemID").Eq(mediaItemID).
		And("SeasonNumber").Eq(season).
		And("EpisodeNumber").Eq(episode))
	if err != nil {
		return nil, err
	}
	if len(eps) == 0 {
		return nil, bolthold.ErrNotFound
	}
	return eps[0], nil
}

// GetMissingEpisodes retrieves all episodes of a show without a file
func (db *Database) GetMissingEpisodes(mediaItemID uint64) ([]*Episode, error) {
	var eps []*Episode
	err := db.store.Find(&eps, bolthold.Where("MediaItemID").Eq(mediaItemID).
		And("HasFile").Eq(false))
	return eps, err
}

// Download operations (the ledger)

// CreateDownload creates a new ledger row
func (db *Database) CreateDownload(d *Download) error {
	d.CreatedAt = time.Now()
	d.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), d)
}

// UpdateDownload updates an existing ledger row
func (db *Database) UpdateDownload(d *Download) error {
	d.UpdatedAt = time.Now()
	return db.store.Update(d.ID, d)
}

// GetDownloadByID retrieves a ledger row by ID
func (db *Database) GetDownloadByID(id uint64) (*Download, error) {
	var d Download
	if err := db.store.Get(id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDownloadByJobID retrieves a ledger row by its client job id
func (db *Database) GetDownloadByJobID(client, jobID string) (*Download, error) {
	var d Download
	err := db.store.FindOne(&d, bolthold.Where("Client").Eq(client).And("JobID").Eq(jobID))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetAllDownloads retrieves the full in-flight ledger
func (db *Database) GetAllDownloads() ([]*Download, error) {
	var ds []*Download
	err := db.store.Find(&ds, nil)
	return ds, err
}

// DeleteDownload deletes a ledger row by ID
func (db *Database) DeleteDownload(id uint64) error {
	return db.store.Delete(id, &Download{})
}

// MediaFile operations

// CreateMediaFile creates a new catalog file record
func (db *Database) CreateMediaFile(f *MediaFile) error {
	f.CreatedAt = time.Now()
	f.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), f)
}

// GetMediaFileByPath retrieves a catalog file record by library-relative path
func (db *Database) GetMediaFileByPath(path string) (*MediaFile, error) {
	var f MediaFile
	err := db.store.FindOne(&f, bolthold.Where("Path").Eq(path))
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetMediaFilesByMediaItem retrieves catalog file records attached directly to a media item
func (db *Database) GetMediaFilesByMediaItem(mediaItemID uint64) ([]*MediaFile, error) {
	var fs []*MediaFile
	err := db.store.Find(&fs, bolthold.Where("MediaItemID").Eq(mediaItemID))
	return fs, err
}

// GetAllMediaFiles retrieves all catalog file records
func (db *Database) GetAllMediaFiles() ([]*MediaFile, error) {
	var fs []*MediaFile
	err := db.store.Find(&fs, nil)
	return fs, err
}

// DeleteMediaFile deletes a catalog file record by ID
func (db *Database) DeleteMediaFile(id uint64) error {
	return db.store.Delete(id, &MediaFile{})
}
