// Package index provides a client for the record search index.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/apperrors"
)

// DefaultTimeout is the maximum time to wait for index responses.
const DefaultTimeout = 30 * time.Second

// Client provides access to the search index.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new index client.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger.Named("index"),
	}
}

// ResolveIdentifier looks up the storage OID for an external identifier.
// Returns apperrors.ErrNotFound when no record carries the identifier and
// apperrors.ErrAmbiguousIdentifier when more than one does.
func (c *Client) ResolveIdentifier(ctx context.Context, identifier string) (string, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("known_ids:%q", identifier))
	query.Set("wt", "json")
	endpoint := c.baseURL + "/select?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call index: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("index returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return "", fmt.Errorf("index returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Response struct {
			NumFound int `json:"numFound"`
			Docs     []struct {
				StorageID string `json:"storage_id"`
			} `json:"docs"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	// Ambiguity is judged on numFound, not on the returned page: the index
	// may cap docs at one row even when more records match.
	switch response.Response.NumFound {
	case 0:
		return "", fmt.Errorf("identifier %q: %w", identifier, apperrors.ErrNotFound)
	case 1:
		if len(response.Response.Docs) == 0 {
			return "", fmt.Errorf("index reported a match for %q but returned no docs", identifier)
		}
		return response.Response.Docs[0].StorageID, nil
	default:
		c.logger.Warn("identifier matched multiple records",
			zap.String("identifier", identifier),
			zap.Int("matches", response.Response.NumFound))
		return "", fmt.Errorf("identifier %q: %w", identifier, apperrors.ErrAmbiguousIdentifier)
	}
}

// Reindex asks the index to refresh a single record.
func (c *Client) Reindex(ctx context.Context, oid string) error {
	endpoint := c.baseURL + "/index/" + url.PathEscape(oid)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("reindex failed",
			zap.String("oid", oid),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return fmt.Errorf("index returned status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("record reindexed", zap.String("oid", oid))
	return nil
}
