package wordsplit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
)

// Client calls the external word-split service. Comment text goes out as-is
// and comes back segmented with stop words already filtered, so the word
// frequency analyzer only has to count.
type Client struct {
	endpoint string
	client   *http.Client
	logger   arbor.ILogger
}

// NewClient creates a word split client from configuration.
func NewClient(cfg *common.WordSplitConfig, logger arbor.ILogger) *Client {
	return &Client{
		endpoint: fmt.Sprintf("http://%s:%d/v1/split", cfg.Host, cfg.Port),
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type splitRequest struct {
	Text string `json:"text"`
}

type splitResponse struct {
	Words []string `json:"words"`
}

// Split segments one text into words.
func (c *Client) Split(ctx context.Context, text string) ([]string, error) {
	body, err := json.Marshal(splitRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encoding split request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building split request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("word split request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("word split service returned status %d", resp.StatusCode)
	}

	var parsed splitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding split response: %w", err)
	}
	return parsed.Words, nil
}
