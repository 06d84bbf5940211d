package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const defaultAirtableBaseURL = "https://api.airtable.com/v0"

// Record is one row fetched from an Airtable table.
type Record struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// AirtableClient fetches records from the Airtable REST API, following the
// offset-based pagination until a page comes back without an offset.
type AirtableClient struct {
	baseURL string
	baseID  string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewAirtableClient builds a client for one Airtable base.
func NewAirtableClient(baseID, apiKey string, logger *zap.Logger) *AirtableClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AirtableClient{
		baseURL: defaultAirtableBaseURL,
		baseID:  baseID,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// ListRecords fetches every record of the given table.
func (c *AirtableClient) ListRecords(ctx context.Context, table string) ([]Record, error) {
	var all []Record
	offset := ""
	for {
		page, next, err := c.fetchPage(ctx, table, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		offset = next
	}
	c.logger.Sugar().Infow("fetched airtable table", "table", table, "records", len(all))
	return all, nil
}

func (c *AirtableClient) fetchPage(ctx context.Context, table, offset string) ([]Record, string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.baseID, url.PathEscape(table))
	if offset != "" {
		endpoint += "?offset=" + url.QueryEscape(offset)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build airtable request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch airtable table %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("airtable table %s returned status %d", table, resp.StatusCode)
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("decode airtable response for %s: %w", table, err)
	}
	return payload.Records, payload.Offset, nil
}
