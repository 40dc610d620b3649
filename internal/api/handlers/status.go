package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/jobs"
	"github.com/amaumene/fetcharr/internal/models"
)

// StatusHandler reports the state of the ledger and the job queues
type StatusHandler struct {
	db         *models.Database
	dispatcher *jobs.Dispatcher
	logger     *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, dispatcher *jobs.Dispatcher, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:         db,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	MediaItems  int            `json:"media_items"`
	MediaFiles  int            `json:"media_files"`
	Downloads   int            `json:"downloads"`
	Downloading int            `json:"downloading"`
	Completed   int            `json:"completed"`
	SeasonPacks int            `json:"season_packs"`
	QueueDepths map[string]int `json:"queue_depths"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	downloads, err := h.db.GetAllDownloads()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get downloads")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	items, err := h.db.GetAllMediaItems()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get media items")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	files, err := h.db.GetAllMediaFiles()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get media files")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		MediaItems:  len(items),
		MediaFiles:  len(files),
		Downloads:   len(downloads),
		QueueDepths: h.dispatcher.Depth(),
	}

	for _, d := range downloads {
		switch d.Status {
		case models.DownloadStatusDownloading:
			response.Downloading++
		case models.DownloadStatusCompleted:
			response.Completed++
		}
		if d.IsSeasonPack {
			response.SeasonPacks++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
