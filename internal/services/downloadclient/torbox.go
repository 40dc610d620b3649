package downloadclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// TorBox is the adapter for the TorBox debrid service
type TorBox struct {
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewTorBox creates the TorBox adapter
func NewTorBox(logger *logrus.Logger) *TorBox {
	return &TorBox{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Type returns the adapter type tag
func (t *TorBox) Type() string {
	return "torbox"
}

type torboxCreateResponse struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
	Detail  string  `json:"detail"`
	Data    struct {
		Hash             string `json:"hash"`
		UsenetDownloadID int    `json:"usenetdownload_id"`
	} `json:"data"`
}

type torboxFile struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	AbsolutePath string `json:"absolute_path"`
}

type torboxDownload struct {
	ID               int          `json:"id"`
	Name             string       `json:"name"`
	Hash             string       `json:"hash"`
	DownloadState    string       `json:"download_state"`
	Progress         float64      `json:"progress"`
	Size             int64        `json:"size"`
	Files            []torboxFile `json:"files"`
	Active           bool         `json:"active"`
	Cached           bool         `json:"cached"`
	DownloadPresent  bool         `json:"download_present"`
	DownloadFinished bool         `json:"download_finished"`
}

type torboxListResponse struct {
	Success bool             `json:"success"`
	Error   *string          `json:"error"`
	Detail  string           `json:"detail"`
	Data    []torboxDownload `json:"data"`
}

// Add submits a download link to TorBox
func (t *TorBox) Add(ctx context.Context, cfg Config, release Release) (string, error) {
	body := map[string]string{
		"link": release.DownloadURL,
		"name": release.Title,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.URL+"/usenet/createusenetdownload", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	var result torboxCreateResponse
	if err := t.do(req, &result); err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("job creation failed: %s", result.Detail)
	}

	jobID := strconv.Itoa(result.Data.UsenetDownloadID)
	t.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"title":  release.Title,
	}).Info("Created TorBox download job")
	return jobID, nil
}

// GetStatus fetches and normalizes the live status of one job
func (t *TorBox) GetStatus(ctx context.Context, cfg Config, jobID string) (*Status, error) {
	download, err := t.find(ctx, cfg, jobID)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Progress: download.Progress * 100,
		SavePath: torboxSavePath(download),
	}

	switch {
	case download.DownloadState == "failed" || download.DownloadState == "error":
		status.State = StateFailed
		status.Message = fmt.Sprintf("TorBox reported state %q", download.DownloadState)
	case download.DownloadFinished && download.DownloadPresent:
		status.State = StateCompleted
		status.Progress = 100
	default:
		status.State = StateDownloading
	}

	return status, nil
}

// RemoveDownload deletes a job from TorBox
func (t *TorBox) RemoveDownload(ctx context.Context, cfg Config, jobID string) error {
	usenetID, err := strconv.Atoi(jobID)
	if err != nil {
		return fmt.Errorf("invalid job ID: %w", err)
	}

	body := map[string]interface{}{
		"usenet_id": usenetID,
		"operation": "delete",
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.URL+"/usenet/controlusenetdownload", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	if err := t.do(req, nil); err != nil {
		return err
	}

	t.logger.WithField("job_id", jobID).Info("Deleted TorBox download job")
	return nil
}

// TestConnection lists the job inventory to verify credentials
func (t *TorBox) TestConnection(ctx context.Context, cfg Config) (string, error) {
	downloads, err := t.list(ctx, cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("torbox: %d jobs", len(downloads)), nil
}

// List enumerates all jobs known to TorBox
func (t *TorBox) List(ctx context.Context, cfg Config) ([]Job, error) {
	downloads, err := t.list(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(downloads))
	for _, d := range downloads {
		jobs = append(jobs, Job{ID: strconv.Itoa(d.ID), Name: d.Name})
	}
	return jobs, nil
}

func (t *TorBox) list(ctx context.Context, cfg Config) ([]torboxDownload, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", cfg.URL+"/usenet/mylist", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	var result torboxListResponse
	if err := t.do(req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("failed to list downloads: %s", result.Detail)
	}
	return result.Data, nil
}

func (t *TorBox) find(ctx context.Context, cfg Config, jobID string) (*torboxDownload, error) {
	downloadID, err := strconv.Atoi(jobID)
	if err != nil {
		return nil, fmt.Errorf("invalid job ID: %w", err)
	}

	downloads, err := t.list(ctx, cfg)
	if err != nil {
		return nil, err
	}

	for i := range downloads {
		if downloads[i].ID == downloadID {
			return &downloads[i], nil
		}
	}
	return nil, ErrJobNotFound
}

func (t *TorBox) do(req *http.Request, result interface{}) error {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// torboxSavePath derives the on-disk location of a finished download:
// the single file itself, or the directory shared by a multi-file job.
func torboxSavePath(d *torboxDownload) string {
	switch len(d.Files) {
	case 0:
		return ""
	case 1:
		return d.Files[0].AbsolutePath
	default:
		return filepath.Dir(d.Files[0].AbsolutePath)
	}
}
