package ranking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
)

func TestAppearances(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/appearances" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req struct {
			ArticleURLs []string `json:"article_urls"`
			StartDate   string   `json:"start_date"`
			EndDate     string   `json:"end_date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.ArticleURLs) != 1 || req.StartDate != "2025-01-01" {
			t.Errorf("Unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"appearances": []map[string]interface{}{
				{"date": "2025-03-15", "rank": 4, "article_title": "Post", "article_url": req.ArticleURLs[0]},
				{"date": "not-a-date", "rank": 9, "article_title": "Bad", "article_url": req.ArticleURLs[0]},
			},
		})
	}))
	defer server.Close()

	client := NewClient(&common.RankingConfig{BaseURL: server.URL}, arbor.NewLogger())

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	rows, err := client.Appearances(context.Background(), []string{"https://platform.local/p/one"}, start, end)
	if err != nil {
		t.Fatalf("Appearances failed: %v", err)
	}

	// The malformed row is dropped, not fatal
	if len(rows) != 1 {
		t.Fatalf("Expected 1 appearance, got %d", len(rows))
	}
	if rows[0].Rank != 4 || rows[0].Date.Format("2006-01-02") != "2025-03-15" {
		t.Errorf("Unexpected appearance: %+v", rows[0])
	}
}
