package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/jobs"
)

// ScanHandler triggers an immediate reconciliation and search pass
type ScanHandler struct {
	dispatcher *jobs.Dispatcher
	logger     *logrus.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(dispatcher *jobs.Dispatcher, logger *logrus.Logger) *ScanHandler {
	return &ScanHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ServeHTTP handles the scan endpoint
func (h *ScanHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	queued := []string{}
	for _, queue := range []string{"monitor", "search"} {
		err := h.dispatcher.Enqueue(queue, jobs.Payload{})
		if err != nil && !errors.Is(err, jobs.ErrDuplicate) {
			h.logger.WithError(err).WithField("queue", queue).Error("Failed to enqueue pass")
			http.Error(w, "Failed to enqueue pass", http.StatusInternalServerError)
			return
		}
		queued = append(queued, queue)
	}

	h.logger.Info("Manual scan triggered")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "queued",
		"queues": queued,
	})
}
