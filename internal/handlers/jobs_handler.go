package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/recap/internal/models"
	"github.com/ternarybob/recap/internal/service"
	storage "github.com/ternarybob/recap/internal/storage/badger"
)

// JobsHandler exposes job creation, status, and report assembly over HTTP.
type JobsHandler struct {
	service *service.JobsService
	logger  arbor.ILogger
}

func NewJobsHandler(svc *service.JobsService, logger arbor.ILogger) *JobsHandler {
	return &JobsHandler{
		service: svc,
		logger:  logger,
	}
}

type createJobRequest struct {
	UserURL string `json:"user_url"`
}

type jobResponse struct {
	Slug          string     `json:"slug"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	QueuePosition *int       `json:"queue_position,omitempty"`
	JoinedQueueAt time.Time  `json:"joined_queue_at"`
	FetchEndedAt  *time.Time `json:"fetch_ended_at,omitempty"`
	ViewCount     int        `json:"view_count"`
}

type reportResponse struct {
	Job       jobResponse                  `json:"job"`
	Calendar  *models.ActivityCalendar     `json:"calendar"`
	Words     *models.WordFrequency        `json:"words"`
	Breakdown *models.InteractionBreakdown `json:"breakdown"`
	Hourly    *models.HourlyProfile        `json:"hourly"`
	Summary   *models.InteractionSummary   `json:"summary"`
	Ranking   *models.RankingHistory       `json:"ranking"`
}

func jobToResponse(job *models.Job) jobResponse {
	return jobResponse{
		Slug:          job.Slug,
		Name:          job.Name,
		Status:        string(job.Status),
		ErrorMessage:  job.ErrorMessage,
		JoinedQueueAt: job.JoinedQueueAt,
		FetchEndedAt:  job.FetchEndedAt,
		ViewCount:     job.ViewCount,
	}
}

// CreateHandler accepts a profile URL and enqueues a new job.
// POST /api/jobs
func (h *JobsHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.service.Create(r.Context(), req.UserURL)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidUserURL):
			WriteError(w, http.StatusBadRequest, err.Error())
		case service.IsDuplicate(err):
			WriteError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Warn().Str("user_url", req.UserURL).Err(err).Msg("Job creation failed")
			WriteError(w, http.StatusBadGateway, "Could not verify the platform account")
		}
		return
	}

	WriteJSON(w, http.StatusCreated, jobToResponse(job))
}

// JobHandler routes GET /api/jobs/{slug} and GET /api/jobs/{slug}/report.
func (h *JobsHandler) JobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		h.status(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "report":
		h.report(w, r, parts[0])
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

func (h *JobsHandler) status(w http.ResponseWriter, r *http.Request, slug string) {
	job, position, err := h.service.Status(r.Context(), slug)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "No job for this user")
			return
		}
		h.logger.Error().Str("slug", slug).Err(err).Msg("Status lookup failed")
		WriteError(w, http.StatusInternalServerError, "Status lookup failed")
		return
	}

	resp := jobToResponse(job)
	if job.Status == models.JobStatusWaitingFetch {
		resp.QueuePosition = &position
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *JobsHandler) report(w http.ResponseWriter, r *http.Request, slug string) {
	report, err := h.service.Report(r.Context(), slug)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrJobNotFound):
			WriteError(w, http.StatusNotFound, "No job for this user")
		case errors.Is(err, service.ErrJobNotReady):
			WriteError(w, http.StatusConflict, "Job has not finished processing")
		default:
			h.logger.Error().Str("slug", slug).Err(err).Msg("Report assembly failed")
			WriteError(w, http.StatusInternalServerError, "Report assembly failed")
		}
		return
	}

	WriteJSON(w, http.StatusOK, reportResponse{
		Job:       jobToResponse(report.Job),
		Calendar:  report.Calendar,
		Words:     report.Words,
		Breakdown: report.Breakdown,
		Hourly:    report.Hourly,
		Summary:   report.Summary,
		Ranking:   report.Ranking,
	})
}

// RollupHandler returns the latest global rollup.
// GET /api/rollup
func (h *JobsHandler) RollupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	rollup, err := h.service.Rollup(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNoRollup) {
			WriteError(w, http.StatusNotFound, "No rollup generated yet")
			return
		}
		h.logger.Error().Err(err).Msg("Rollup lookup failed")
		WriteError(w, http.StatusInternalServerError, "Rollup lookup failed")
		return
	}

	WriteJSON(w, http.StatusOK, rollup)
}
