// Package remote provides a client for companion registry systems that hold
// related records outside local storage.
package remote

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

	"github.com/ekaya-inc/curation-engine/pkg/apperrors"
	"github.com/ekaya-inc/curation-engine/pkg/config"
	"github.com/ekaya-inc/curation-engine/pkg/models"
)

// DefaultTimeout is the maximum time to wait for remote system responses.
const DefaultTimeout = 30 * time.Second

// Client talks to the configured remote systems.
type Client struct {
	systems    map[string]config.RemoteSystem
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new remote system client.
func NewClient(systems map[string]config.RemoteSystem, logger *zap.Logger) *Client {
	return &Client{
		systems: systems,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger.Named("remote"),
	}
}

func (c *Client) system(name string) (config.RemoteSystem, error) {
	sys, ok := c.systems[name]
	if !ok {
		return config.RemoteSystem{}, fmt.Errorf("remote system %q: %w", name, apperrors.ErrUnmappedSystem)
	}
	return sys, nil
}

// RelationsByIdentifier fetches the relationship entries a remote system
// holds for an external identifier.
func (c *Client) RelationsByIdentifier(ctx context.Context, system, identifier string) ([]models.RelationshipEntry, error) {
	sys, err := c.system(system)
	if err != nil {
		return nil, err
	}

	endpoint := sys.RelationshipsURL + "&identifier=" + url.QueryEscape(identifier)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var response struct {
		Records []models.RelationshipEntry `json:"records"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Debug("fetched remote relations",
		zap.String("system", system),
		zap.String("identifier", identifier),
		zap.Int("records", len(response.Records)))
	return response.Records, nil
}

// RelationsByOID fetches the relationship entries a remote system holds for
// one of its own object ids. The response is a map keyed by relation id.
func (c *Client) RelationsByOID(ctx context.Context, system, oid string) ([]models.RelationshipEntry, error) {
	sys, err := c.system(system)
	if err != nil {
		return nil, err
	}
	if sys.RelationshipsByOIDURL == "" {
		return nil, fmt.Errorf("remote system %q has no oid lookup: %w", system, apperrors.ErrUnmappedSystem)
	}

	endpoint := sys.RelationshipsByOIDURL + "&oid=" + url.QueryEscape(oid)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var response map[string]models.RelationshipEntry
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	entries := make([]models.RelationshipEntry, 0, len(response))
	for _, entry := range response {
		entries = append(entries, entry)
	}
	return entries, nil
}

// Publish sends curated records to a remote system in a single batch.
func (c *Client) Publish(ctx context.Context, system string, items []models.PublishItem) error {
	sys, err := c.system(system)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{"records": items})
	if err != nil {
		return fmt.Errorf("failed to encode publish batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sys.PublishURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("publishing records to remote system",
		zap.String("system", system),
		zap.Int("records", len(items)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call remote system: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("remote publish failed",
			zap.String("system", system),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return fmt.Errorf("remote system %q returned status %d: %s", system, resp.StatusCode, string(body))
	}

	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call remote system: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("remote system returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, fmt.Errorf("remote system returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
