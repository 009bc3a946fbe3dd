package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/logging"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// IngestAcceptedResponse is returned once an ingestion job is queued
type IngestAcceptedResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// IngestNoteRequest is the JSON body for structured note ingestion
type IngestNoteRequest struct {
	ClassID string              `json:"class_id"`
	Subject string              `json:"subject"`
	Title   string              `json:"title"`
	Note    *domain.NoteContent `json:"note"`
}

// SearchRequest is the body of POST /api/v1/search
type SearchRequest struct {
	Query        string               `json:"query"`
	ClassID      string               `json:"class_id,omitempty"`
	Subject      string               `json:"subject,omitempty"`
	ContentTypes []domain.ContentType `json:"content_types,omitempty"`
	Grade        int                  `json:"grade,omitempty"`
	TopK         int                  `json:"top_k,omitempty"`
	MaxDistance  *float64             `json:"max_distance,omitempty"`
}

func (r SearchRequest) filter() domain.SearchFilter {
	return domain.SearchFilter{
		ClassID:      r.ClassID,
		Subject:      r.Subject,
		ContentTypes: r.ContentTypes,
		Grade:        r.Grade,
	}
}

func (r SearchRequest) options() domain.SearchOptions {
	return domain.SearchOptions{TopK: r.TopK, MaxDistance: r.MaxDistance}
}

// AskRequest is the body of POST /api/v1/ask
type AskRequest struct {
	Question string                    `json:"question"`
	Level    int                       `json:"level,omitempty"`
	History  []domain.ConversationTurn `json:"history,omitempty"`
	SearchRequest
}

// CatalogIngestRequest is the body of POST /api/v1/admin/catalog/ingest
type CatalogIngestRequest struct {
	Grades []int `json:"grades"`
	Force  bool  `json:"force"`
	DryRun bool  `json:"dry_run"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports 503 when the database or queue backend is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true
	ping := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}
	ping("database", s.db)
	ping("redis", s.redisClient)
	if s.taskQueue != nil {
		ping("queue", s.taskQueue)
	}
	ping("worker", s.worker)

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Ingestion endpoints

// handleIngestSource godoc
// @Summary      Ingest a source document
// @Description  Accepts a multipart file upload, or JSON structured notes for kind "note".
// @Description  Stores the source, queues an ingestion job and returns immediately.
// @Tags         Ingestion
// @Accept       multipart/form-data,json
// @Produce      json
// @Security     BearerAuth
// @Param        kind   path   string  true   "transcript, note, post or book"
// @Param        id     path   string  true   "Source id"
// @Param        force  query  bool    false  "Replace existing chunks"
// @Success      202    {object}  IngestAcceptedResponse
// @Failure      400    {object}  ErrorResponse
// @Router       /sources/{kind}/{id}/ingest [post]
func (s *Server) handleIngestSource(w http.ResponseWriter, r *http.Request) {
	key, ok := sourceKeyFromPath(w, r)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	doc := &domain.SourceDocument{SourceDescriptor: domain.SourceDescriptor{Key: key}}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := readUpload(r, doc); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		var req IngestNoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		doc.ClassID = req.ClassID
		doc.Subject = req.Subject
		doc.Title = req.Title
		doc.Note = req.Note
	}

	job, err := s.ingestionService.Submit(r.Context(), doc, force)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, IngestAcceptedResponse{JobID: job.ID, Status: job.Status})
}

func readUpload(r *http.Request, doc *domain.SourceDocument) error {
	file, header, err := r.FormFile("file")
	if err != nil {
		return fmt.Errorf("multipart field \"file\" is required")
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	content, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read upload: %v", err)
	}
	doc.Content = content
	doc.Filename = header.Filename
	doc.MimeType = header.Header.Get("Content-Type")
	doc.ClassID = r.FormValue("class_id")
	doc.Subject = r.FormValue("subject")
	doc.Title = r.FormValue("title")
	return nil
}

func (s *Server) handleLatestJob(w http.ResponseWriter, r *http.Request) {
	key, ok := sourceKeyFromPath(w, r)
	if !ok {
		return
	}
	job, err := s.ingestionService.LatestJob(r.Context(), key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleGetJob godoc
// @Summary      Get ingestion job status
// @Tags         Ingestion
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Job id"
// @Success      200  {object}  domain.IngestionJob
// @Failure      404  {object}  ErrorResponse
// @Router       /jobs/{id} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.ingestionService.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	key, ok := sourceKeyFromPath(w, r)
	if !ok {
		return
	}
	n, err := s.ingestionService.Delete(r.Context(), key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// Retrieval endpoints

// handleSearch godoc
// @Summary      Semantic search
// @Tags         Retrieval
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      SearchRequest  true  "Query and filters"
// @Success      200      {object}  domain.SearchResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /search [post]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.retrievalService.Search(r.Context(), req.Query, req.filter(), req.options())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAsk godoc
// @Summary      Answer a question from class materials
// @Tags         Retrieval
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      AskRequest  true  "Question, level and filters"
// @Success      200      {object}  domain.Answer
// @Failure      503      {object}  ErrorResponse  "All provider keys are cooling down"
// @Router       /ask [post]
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ans, err := s.retrievalService.Answer(r.Context(), domain.AskRequest{
		Question: req.Question,
		Filter:   req.filter(),
		Options:  req.options(),
		Level:    req.Level,
		History:  req.History,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleEmbeddingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.retrievalService.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"class_id":          r.PathValue("id"),
		"total":             stats.Total,
		"with_embedding":    stats.WithEmbedding,
		"without_embedding": stats.WithoutEmbedding,
		"by_content_type":   stats.ByContentType,
		"coverage_pct":      stats.CoveragePct(),
		"is_ready":          stats.IsReady(),
	})
}

// Admin endpoints

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.retrievalService.CredentialStatus(r.Context()))
}

func (s *Server) handleBuildIndex(w http.ResponseWriter, r *http.Request) {
	replace, _ := strconv.ParseBool(r.URL.Query().Get("replace"))
	job, err := s.adminService.BuildIndex(r.Context(), replace)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, IngestAcceptedResponse{JobID: job.ID, Status: job.Status})
}

// handleCatalogIngest godoc
// @Summary      Queue bulk reference-textbook ingestion
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CatalogIngestRequest  true  "Grades (all when empty), force, dry_run"
// @Success      202      {object}  IngestAcceptedResponse
// @Failure      404      {object}  ErrorResponse  "Unknown grade"
// @Router       /admin/catalog/ingest [post]
func (s *Server) handleCatalogIngest(w http.ResponseWriter, r *http.Request) {
	var req CatalogIngestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	job, err := s.catalogService.Submit(r.Context(), req.Grades, req.Force, req.DryRun)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, IngestAcceptedResponse{JobID: job.ID, Status: job.Status})
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalogService.Catalog())
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.adminService.QueueStats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReembed(w http.ResponseWriter, r *http.Request) {
	taskID, err := s.adminService.ReembedMissing(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// ScheduleUpdateRequest toggles a schedule
type ScheduleUpdateRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	if s.scheduleService == nil {
		s.writeServiceError(w, r, domain.ErrServiceUnavailable)
		return
	}
	schedules, err := s.scheduleService.ListScheduledTasks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduleService == nil {
		s.writeServiceError(w, r, domain.ErrServiceUnavailable)
		return
	}
	var req ScheduleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	id := r.PathValue("id")
	if err := s.scheduleService.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": *req.Enabled})
}

func (s *Server) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduleService == nil {
		s.writeServiceError(w, r, domain.ErrServiceUnavailable)
		return
	}
	task, err := s.scheduleService.TriggerNow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID})
}

// Helper functions

func sourceKeyFromPath(w http.ResponseWriter, r *http.Request) (domain.SourceKey, bool) {
	kind, err := domain.ParseSourceKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.SourceKey{}, false
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "source id is required")
		return domain.SourceKey{}, false
	}
	return domain.SourceKey{Kind: kind, ID: id}, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrIngestionInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAllCredentialsExhausted),
		errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := logging.FromContext(r.Context())

	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
		msg = "internal server error"
	case errors.Is(err, domain.ErrAllCredentialsExhausted):
		logger.Warn("all provider credentials cooling down")
		msg = "can't answer right now, please try again shortly"
	default:
		logger.Debug("request rejected", "status", status, "error", err)
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
