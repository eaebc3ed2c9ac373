// Package curationmanager provides a client for the external curation
// decision service.
package curationmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/models"
)

// DefaultTimeout is the maximum time to wait for curation manager responses.
const DefaultTimeout = 30 * time.Second

// Client provides access to the curation manager API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new curation manager client.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger.Named("curationmanager"),
	}
}

// CreateJob submits a curation request and returns the manager's job id.
func (c *Client) CreateJob(ctx context.Context, message *models.CurationMessage) (string, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("failed to encode curation message: %w", err)
	}

	endpoint := c.baseURL + "/job"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Info("submitting curation job",
		zap.String("url", endpoint),
		zap.Int("records", len(message.Records)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call curation manager: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error("curation manager rejected job",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return "", fmt.Errorf("curation manager returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		JobID models.JobID `json:"job_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if response.JobID.String() == "" {
		return "", fmt.Errorf("curation manager response has no job_id: %s", string(body))
	}

	c.logger.Info("curation job accepted", zap.String("external_job_id", response.JobID.String()))
	return response.JobID.String(), nil
}

// JobStatus fetches the current state of a job. The raw response body is
// returned alongside the parsed form so callers can keep a verbatim snapshot.
func (c *Client) JobStatus(ctx context.Context, externalJobID string) (*models.JobStatusResponse, []byte, error) {
	endpoint := c.baseURL + "/job/" + url.PathEscape(externalJobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to call curation manager: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("curation manager status check failed",
			zap.String("external_job_id", externalJobID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, nil, fmt.Errorf("curation manager returned status %d: %s", resp.StatusCode, string(body))
	}

	var status models.JobStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &status, body, nil
}
