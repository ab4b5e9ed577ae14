package timeline

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/common"
	"github.com/ternarybob/recap/internal/models"
)

// HTMLAdapter reads a platform user's interaction timeline by scraping the
// public timeline pages. Pages are requested with a max_id bound and walk
// backwards in time; each entry renders as an li with id "feed-<operation id>"
// and a data-type attribute naming the raw operation tag.
type HTMLAdapter struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    arbor.ILogger
}

// NewHTMLAdapter creates a timeline adapter for the configured platform.
func NewHTMLAdapter(cfg *common.PlatformConfig, timeout time.Duration, logger arbor.ILogger) *HTMLAdapter {
	return &HTMLAdapter{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// HTTPStatusError reports a non-200 response from the platform. The fetch
// retry policy inspects the code to decide whether the request is retryable.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// FetchPage returns one timeline page for the user, newest entry first.
// Every returned operation id is at or below maxID. The page tracks the
// oldest raw operation id it carried so callers can keep walking past pages
// whose entries were all skipped.
func (a *HTMLAdapter) FetchPage(ctx context.Context, slug string, maxID int64) (*models.TimelinePage, error) {
	pageURL := fmt.Sprintf("%s/users/%s/timeline?max_id=%d", a.baseURL, slug, maxID)

	doc, err := a.getDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	page := &models.TimelinePage{}
	doc.Find("li[id^=feed-]").Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("id")
		opID, err := strconv.ParseInt(strings.TrimPrefix(id, "feed-"), 10, 64)
		if err != nil {
			a.logger.Warn().Str("entry_id", id).Msg("Timeline entry has malformed operation id, skipping")
			return
		}
		if page.OldestOperationID == 0 || opID < page.OldestOperationID {
			page.OldestOperationID = opID
		}

		ev, ok := a.parseEntry(opID, sel)
		if !ok {
			return
		}
		page.Events = append(page.Events, ev)
	})

	return page, nil
}

// VerifyUser confirms the user page exists and returns the display name.
func (a *HTMLAdapter) VerifyUser(ctx context.Context, slug string) (string, error) {
	pageURL := fmt.Sprintf("%s/u/%s", a.baseURL, slug)

	doc, err := a.getDocument(ctx, pageURL)
	if err != nil {
		return "", err
	}

	name := strings.TrimSpace(doc.Find(".main-top .title .name").First().Text())
	if name == "" {
		return "", fmt.Errorf("user page for %s has no display name", slug)
	}
	return name, nil
}

func (a *HTMLAdapter) getDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: pageURL}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

// parseEntry converts one timeline li into a canonical event. Entries with
// an unknown tag or unparseable structure are skipped with a warning so one
// bad row never fails a whole page.
func (a *HTMLAdapter) parseEntry(opID int64, sel *goquery.Selection) (models.TimelineEvent, bool) {
	tag, _ := sel.Find("span[data-type]").First().Attr("data-type")
	eventType, known := MapTag(tag)
	if !known {
		a.logger.Warn().
			Str("tag", tag).
			Int64("operation_id", opID).
			Msg("Unknown timeline tag, skipping entry")
		return models.TimelineEvent{}, false
	}

	datetime, _ := sel.Find("span[data-datetime]").First().Attr("data-datetime")
	occurredAt, err := time.Parse(time.RFC3339, datetime)
	if err != nil {
		a.logger.Warn().
			Int64("operation_id", opID).
			Str("datetime", datetime).
			Msg("Timeline entry has malformed timestamp, skipping")
		return models.TimelineEvent{}, false
	}

	ev := models.TimelineEvent{
		OperationID: opID,
		Type:        eventType,
		OccurredAt:  occurredAt.UTC(),
		FetchedAt:   time.Now().UTC(),
		Actor:       a.parseUserRef(sel.Find(".info a.nickname").First()),
	}

	switch eventType {
	case models.EventTypePublishArticle:
		ev.TargetArticle = a.parseArticleRef(sel.Find("a.title").First())
	case models.EventTypeLikeArticle, models.EventTypeRewardArticle:
		ev.TargetArticle = a.parseArticleRef(sel.Find("a.title").First())
		ev.TargetUser = a.parseTargetUser(sel)
	case models.EventTypeCommentArticle:
		ev.TargetArticle = a.parseArticleRef(sel.Find("a.title").First())
		ev.TargetUser = a.parseTargetUser(sel)
		ev.CommentContent = strings.TrimSpace(sel.Find("p.comment").First().Text())
	case models.EventTypeLikeComment:
		ev.TargetArticle = a.parseArticleRef(sel.Find("a.title").First())
		ev.TargetUser = a.parseTargetUser(sel)
		ev.CommentContent = strings.TrimSpace(sel.Find("p.comment").First().Text())
	case models.EventTypeFollowUser:
		target := a.parseUserRef(sel.Find(".info a.title").First())
		if target.Name != "" {
			ev.TargetUser = &target
		}
	case models.EventTypeFollowCollection, models.EventTypeFollowNotebook:
		ev.TargetArticle = a.parseArticleRef(sel.Find("a.title").First())
	}

	return ev, true
}

// parseTargetUser reads the owner of the entry's target content, rendered
// as the origin-author link.
func (a *HTMLAdapter) parseTargetUser(sel *goquery.Selection) *models.UserRef {
	target := a.parseUserRef(sel.Find(".origin-author a").First())
	if target.Name == "" {
		return nil
	}
	return &target
}

func (a *HTMLAdapter) parseUserRef(sel *goquery.Selection) models.UserRef {
	href, _ := sel.Attr("href")
	return models.UserRef{
		Name: strings.TrimSpace(sel.Text()),
		URL:  a.absoluteURL(href),
	}
}

func (a *HTMLAdapter) parseArticleRef(sel *goquery.Selection) *models.ArticleRef {
	title := strings.TrimSpace(sel.Text())
	if title == "" {
		return nil
	}
	href, _ := sel.Attr("href")
	return &models.ArticleRef{
		Title: title,
		URL:   a.absoluteURL(href),
	}
}

func (a *HTMLAdapter) absoluteURL(href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return a.baseURL + href
}
