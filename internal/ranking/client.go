package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/models"
)

const dateFormat = "2006-01-02"

// Client queries the external ranking feed for historical daily ranking
// rows matching a set of article URLs.
type Client struct {
	baseURL string
	client  *http.Client
	logger  arbor.ILogger
}

// NewClient creates a ranking feed client from configuration.
func NewClient(cfg *common.RankingConfig, logger arbor.ILogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type appearancesRequest struct {
	ArticleURLs []string `json:"article_urls"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
}

type appearanceRow struct {
	Date         string `json:"date"`
	Rank         int    `json:"rank"`
	ArticleTitle string `json:"article_title"`
	ArticleURL   string `json:"article_url"`
}

type appearancesResponse struct {
	Appearances []appearanceRow `json:"appearances"`
}

// Appearances returns ranking rows for the given article URLs between start
// and end inclusive.
func (c *Client) Appearances(ctx context.Context, articleURLs []string, start, end time.Time) ([]models.RankAppearance, error) {
	body, err := json.Marshal(appearancesRequest{
		ArticleURLs: articleURLs,
		StartDate:   start.Format(dateFormat),
		EndDate:     end.Format(dateFormat),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding appearances request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/appearances", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building appearances request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ranking feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ranking feed returned status %d", resp.StatusCode)
	}

	var parsed appearancesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding appearances response: %w", err)
	}

	out := make([]models.RankAppearance, 0, len(parsed.Appearances))
	for _, row := range parsed.Appearances {
		date, err := time.Parse(dateFormat, row.Date)
		if err != nil {
			c.logger.Warn().Str("date", row.Date).Msg("Ranking row has malformed date, skipping")
			continue
		}
		out = append(out, models.RankAppearance{
			Date:         date,
			Rank:         row.Rank,
			ArticleTitle: row.ArticleTitle,
			ArticleURL:   row.ArticleURL,
		})
	}
	return out, nil
}
