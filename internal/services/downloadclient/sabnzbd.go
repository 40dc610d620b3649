package downloadclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// SABnzbd is the adapter for a SABnzbd instance
type SABnzbd struct {
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewSABnzbd creates the SABnzbd adapter
func NewSABnzbd(logger *logrus.Logger) *SABnzbd {
	return &SABnzbd{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Type returns the adapter type tag
func (s *SABnzbd) Type() string {
	return "sabnzbd"
}

type sabAddResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
	Error  string   `json:"error"`
}

type sabQueueSlot struct {
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Percentage string `json:"percentage"`
}

type sabQueueResponse struct {
	Queue struct {
		Slots []sabQueueSlot `json:"slots"`
	} `json:"queue"`
}

type sabHistorySlot struct {
	NzoID       string `json:"nzo_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	FailMessage string `json:"fail_message"`
	Storage     string `json:"storage"`
}

type sabHistoryResponse struct {
	History struct {
		Slots []sabHistorySlot `json:"slots"`
	} `json:"history"`
}

// Add submits a download URL to SABnzbd
func (s *SABnzbd) Add(ctx context.Context, cfg Config, release Release) (string, error) {
	params := url.Values{}
	params.Set("mode", "addurl")
	params.Set("name", release.DownloadURL)
	params.Set("nzbname", release.Title)

	var result sabAddResponse
	if err := s.call(ctx, cfg, params, &result); err != nil {
		return "", err
	}
	if !result.Status || len(result.NzoIDs) == 0 {
		return "", fmt.Errorf("sabnzbd rejected download: %s", result.Error)
	}

	jobID := result.NzoIDs[0]
	s.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"title":  release.Title,
	}).Info("Created SABnzbd download job")
	return jobID, nil
}

// GetStatus checks the queue first, then history, for the job
func (s *SABnzbd) GetStatus(ctx context.Context, cfg Config, jobID string) (*Status, error) {
	queue, err := s.queue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, slot := range queue {
		if slot.NzoID == jobID {
			return &Status{State: StateDownloading}, nil
		}
	}

	history, err := s.history(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, slot := range history {
		if slot.NzoID != jobID {
			continue
		}
		if slot.Status == "Failed" {
			return &Status{State: StateFailed, Message: slot.FailMessage}, nil
		}
		return &Status{State: StateCompleted, Progress: 100, SavePath: slot.Storage}, nil
	}

	return nil, ErrJobNotFound
}

// RemoveDownload deletes the job from both queue and history
func (s *SABnzbd) RemoveDownload(ctx context.Context, cfg Config, jobID string) error {
	for _, mode := range []string{"queue", "history"} {
		params := url.Values{}
		params.Set("mode", mode)
		params.Set("name", "delete")
		params.Set("value", jobID)
		if err := s.call(ctx, cfg, params, nil); err != nil {
			return err
		}
	}

	s.logger.WithField("job_id", jobID).Info("Deleted SABnzbd download job")
	return nil
}

// TestConnection queries the version endpoint
func (s *SABnzbd) TestConnection(ctx context.Context, cfg Config) (string, error) {
	params := url.Values{}
	params.Set("mode", "version")

	var result struct {
		Version string `json:"version"`
	}
	if err := s.call(ctx, cfg, params, &result); err != nil {
		return "", err
	}
	return "sabnzbd " + result.Version, nil
}

// List enumerates queue and history entries
func (s *SABnzbd) List(ctx context.Context, cfg Config) ([]Job, error) {
	queue, err := s.queue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	history, err := s.history(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(queue)+len(history))
	for _, slot := range queue {
		jobs = append(jobs, Job{ID: slot.NzoID, Name: slot.Filename})
	}
	for _, slot := range history {
		jobs = append(jobs, Job{ID: slot.NzoID, Name: slot.Name})
	}
	return jobs, nil
}

func (s *SABnzbd) queue(ctx context.Context, cfg Config) ([]sabQueueSlot, error) {
	params := url.Values{}
	params.Set("mode", "queue")

	var result sabQueueResponse
	if err := s.call(ctx, cfg, params, &result); err != nil {
		return nil, err
	}
	return result.Queue.Slots, nil
}

func (s *SABnzbd) history(ctx context.Context, cfg Config) ([]sabHistorySlot, error) {
	params := url.Values{}
	params.Set("mode", "history")

	var result sabHistoryResponse
	if err := s.call(ctx, cfg, params, &result); err != nil {
		return nil, err
	}
	return result.History.Slots, nil
}

func (s *SABnzbd) call(ctx context.Context, cfg Config, params url.Values, result interface{}) error {
	params.Set("output", "json")
	params.Set("apikey", cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, "GET", cfg.URL+"/api?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
