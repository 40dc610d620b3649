package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Indexer aggregator (newznab/torznab compatible)
	IndexerURL string
	IndexerKey string

	// Download client
	DownloadClientType string // "torbox" or "sabnzbd"
	DownloadClientURL  string
	DownloadClientKey  string

	// Trakt (optional; enables episode metadata backfill)
	TraktClientID string

	// Library
	LibraryDir        string
	ImportMode        string // "copy" or "move"
	RemoveAfterImport bool

	// Release selection
	MinSeeders    int
	MinSizeBytes  int64
	MaxSizeBytes  int64
	Qualities     []string // highest priority first
	PreferredTags []string
	BlockedTags   []string

	// Search budgets (0 = unbounded)
	MaxSearchesPerRun    int
	MaxSearchesPerShow   int
	MaxSearchesPerSeason int
	SearchDelaySeconds   int
	DedupWindowMinutes   int

	// Background work
	QueueWorkers           int
	MonitorIntervalMinutes int
	SearchIntervalMinutes  int

	// Server
	ServerPort string

	// Paths
	DatabaseFile  string // $CONFIG_DIR/fetcharr.db
	FFProbeBinary string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	viper.SetDefault("DOWNLOAD_CLIENT_TYPE", "torbox")
	viper.SetDefault("IMPORT_MODE", "copy")
	viper.SetDefault("REMOVE_AFTER_IMPORT", true)
	viper.SetDefault("MIN_SEEDERS", 0)
	viper.SetDefault("MIN_SIZE_BYTES", 0)
	viper.SetDefault("MAX_SIZE_BYTES", 0)
	viper.SetDefault("QUALITIES", "2160p,1080p,720p")
	viper.SetDefault("MAX_SEARCHES_PER_RUN", 0)
	viper.SetDefault("MAX_SEARCHES_PER_SHOW", 0)
	viper.SetDefault("MAX_SEARCHES_PER_SEASON", 0)
	viper.SetDefault("SEARCH_DELAY_SECONDS", 2)
	viper.SetDefault("DEDUP_WINDOW_MINUTES", 30)
	viper.SetDefault("QUEUE_WORKERS", 2)
	viper.SetDefault("MONITOR_INTERVAL_MINUTES", 5)
	viper.SetDefault("SEARCH_INTERVAL_MINUTES", 60)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("FFPROBE_BINARY", "ffprobe")
	viper.SetDefault("LOG_LEVEL", "info")

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "fetcharr")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		IndexerURL: viper.GetString("INDEXER_URL"),
		IndexerKey: viper.GetString("INDEXER_KEY"),

		DownloadClientType: viper.GetString("DOWNLOAD_CLIENT_TYPE"),
		DownloadClientURL:  viper.GetString("DOWNLOAD_CLIENT_URL"),
		DownloadClientKey:  viper.GetString("DOWNLOAD_CLIENT_KEY"),

		TraktClientID: viper.GetString("TRAKT_CLIENT_ID"),

		LibraryDir:        viper.GetString("LIBRARY_DIR"),
		ImportMode:        viper.GetString("IMPORT_MODE"),
		RemoveAfterImport: viper.GetBool("REMOVE_AFTER_IMPORT"),

		MinSeeders:    viper.GetInt("MIN_SEEDERS"),
		MinSizeBytes:  viper.GetInt64("MIN_SIZE_BYTES"),
		MaxSizeBytes:  viper.GetInt64("MAX_SIZE_BYTES"),
		Qualities:     splitList(viper.GetString("QUALITIES")),
		PreferredTags: splitList(viper.GetString("PREFERRED_TAGS")),
		BlockedTags:   splitList(viper.GetString("BLOCKED_TAGS")),

		MaxSearchesPerRun:    viper.GetInt("MAX_SEARCHES_PER_RUN"),
		MaxSearchesPerShow:   viper.GetInt("MAX_SEARCHES_PER_SHOW"),
		MaxSearchesPerSeason: viper.GetInt("MAX_SEARCHES_PER_SEASON"),
		SearchDelaySeconds:   viper.GetInt("SEARCH_DELAY_SECONDS"),
		DedupWindowMinutes:   viper.GetInt("DEDUP_WINDOW_MINUTES"),

		QueueWorkers:           viper.GetInt("QUEUE_WORKERS"),
		MonitorIntervalMinutes: viper.GetInt("MONITOR_INTERVAL_MINUTES"),
		SearchIntervalMinutes:  viper.GetInt("SEARCH_INTERVAL_MINUTES"),

		ServerPort: viper.GetString("SERVER_PORT"),

		DatabaseFile:  filepath.Join(configDir, "fetcharr.db"),
		FFProbeBinary: viper.GetString("FFPROBE_BINARY"),

		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if config.IndexerURL == "" {
		return nil, fmt.Errorf("INDEXER_URL is required")
	}
	if config.IndexerKey == "" {
		return nil, fmt.Errorf("INDEXER_KEY is required")
	}
	if config.DownloadClientURL == "" {
		return nil, fmt.Errorf("DOWNLOAD_CLIENT_URL is required")
	}
	if config.DownloadClientKey == "" {
		return nil, fmt.Errorf("DOWNLOAD_CLIENT_KEY is required")
	}
	if config.LibraryDir == "" {
		return nil, fmt.Errorf("LIBRARY_DIR is required")
	}
	if config.ImportMode != "copy" && config.ImportMode != "move" {
		return nil, fmt.Errorf("IMPORT_MODE must be copy or move, got %q", config.ImportMode)
	}

	return config, nil
}

// splitList parses a comma-separated value into trimmed entries
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
