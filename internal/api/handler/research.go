package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/deepresearch/internal/domain"
	"github.com/timmy/deepresearch/internal/logger"
	"github.com/timmy/deepresearch/internal/service"
	"github.com/timmy/deepresearch/internal/source"
	"github.com/timmy/deepresearch/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	keepAliveEvery   = 15 * time.Second
)

// Researcher is the job lifecycle the handler exposes (implemented by service.Orchestrator).
type Researcher interface {
	Submit(ctx context.Context, req service.SubmitRequest, onEvent service.EventHandler) (domain.Job, error)
	GetStatus(jobID string) (domain.Job, error)
	List(limit int) []domain.Job
	Cancel(ctx context.Context, jobID string) (bool, error)
	Delete(ctx context.Context, jobID string) error
	Subscribe(jobID string) (<-chan domain.Event, func())
}

// Exporter publishes finished reports (implemented by service.ExportService).
type Exporter interface {
	Export(ctx context.Context, job domain.Job) (string, error)
	Open(ctx context.Context, jobID string) (io.ReadCloser, error)
	Remove(ctx context.Context, jobID string) error
}

// History reads archived jobs (implemented by repository.ResearchRepository).
type History interface {
	GetByID(ctx context.Context, id string) (*domain.ResearchRecord, error)
	List(ctx context.Context, limit int, status domain.JobStatus) ([]domain.ResearchRecord, error)
}

// ResearchHandler serves the research job API.
type ResearchHandler struct {
	research Researcher
	loader   *source.Loader
	exporter Exporter // nil when object storage is disabled
	history  History  // nil when the archive is disabled
}

// NewResearchHandler creates a new research handler.
// Parameters:
//   - research: job orchestrator.
//   - loader: document loader for multipart uploads.
//   - exporter: optional report exporter.
//   - history: optional job archive.
//
// Returns:
//   - *ResearchHandler: initialized handler.
func NewResearchHandler(research Researcher, loader *source.Loader, exporter Exporter, history History) *ResearchHandler {
	if loader == nil {
		loader = source.NewLoader(0)
	}
	return &ResearchHandler{
		research: research,
		loader:   loader,
		exporter: exporter,
		history:  history,
	}
}

// DocumentInput is an inline text document in a JSON submission.
type DocumentInput struct {
	Name     string `json:"name" binding:"required"`
	MIMEType string `json:"mime_type"`
	Content  string `json:"content"`
}

// SubmitResearchRequest is the JSON body of POST /api/v1/research.
// Multipart submissions use the same names as form fields plus "files".
type SubmitResearchRequest struct {
	Query            string          `json:"query" form:"query"`
	Depth            string          `json:"depth" form:"depth"`
	OutputFormat     string          `json:"output_format" form:"output_format"`
	SourceScope      string          `json:"source_scope" form:"source_scope"`
	IncludeCitations *bool           `json:"include_citations" form:"include_citations"`
	Refine           bool            `json:"refine" form:"refine"`
	Documents        []DocumentInput `json:"documents" form:"-"`
}

// JobResponse is a job as returned by the API. Document bodies are omitted.
type JobResponse struct {
	ID          string           `json:"id"`
	Query       string           `json:"query"`
	Documents   []string         `json:"documents,omitempty"`
	Options     domain.Options   `json:"options"`
	RemoteJobID string           `json:"remote_job_id,omitempty"`
	Status      domain.JobStatus `json:"status"`
	Stage       domain.JobStage  `json:"stage,omitempty"`
	Progress    int              `json:"progress"`
	Content     string           `json:"content,omitempty"`
	Sources     []domain.Source  `json:"sources,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// NewJobResponse converts a job snapshot for the API.
func NewJobResponse(job domain.Job) JobResponse {
	resp := JobResponse{
		ID:          job.ID,
		Query:       job.Query,
		Options:     job.Options,
		RemoteJobID: job.RemoteJobID,
		Status:      job.Status,
		Stage:       job.Stage,
		Progress:    job.Progress,
		Content:     job.Content,
		Sources:     job.Sources,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	for _, d := range job.Documents {
		resp.Documents = append(resp.Documents, d.Name)
	}
	return resp
}

func jobResponses(jobs []domain.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, NewJobResponse(j))
	}
	return out
}

// Submit handles POST /api/v1/research.
func (h *ResearchHandler) Submit(c *gin.Context) {
	var req SubmitResearchRequest
	var docs []domain.Document

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		uploaded, status, err := h.readUploads(c)
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		docs = uploaded
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		for _, d := range req.Documents {
			mimeType := d.MIMEType
			if mimeType == "" {
				mimeType = "text/plain"
			}
			docs = append(docs, domain.Document{Name: d.Name, MIMEType: mimeType, Content: d.Content})
		}
	}

	opts := domain.Options{
		Depth:            domain.Depth(strings.ToLower(req.Depth)),
		OutputFormat:     domain.OutputFormat(strings.ToLower(req.OutputFormat)),
		SourceScope:      domain.SourceScope(strings.ToLower(req.SourceScope)),
		IncludeCitations: true,
		Refine:           req.Refine,
	}
	if req.IncludeCitations != nil {
		opts.IncludeCitations = *req.IncludeCitations
	}

	job, err := h.research.Submit(c.Request.Context(), service.SubmitRequest{
		Query:     req.Query,
		Documents: docs,
		Options:   opts,
	}, nil)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.CtxError(c.Request.Context(), "Failed to submit research job: %v", err)
		serverError(c, http.StatusInternalServerError, "Failed to submit research job")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": NewJobResponse(job)})
}

func (h *ResearchHandler) readUploads(c *gin.Context) ([]domain.Document, int, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	var docs []domain.Document
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		doc, err := h.loader.FromReader(fh.Filename, f)
		f.Close()
		if err != nil {
			if errors.Is(err, source.ErrTooLarge) {
				return nil, http.StatusRequestEntityTooLarge, err
			}
			return nil, http.StatusBadRequest, err
		}
		docs = append(docs, doc)
	}
	return docs, http.StatusOK, nil
}

// List handles GET /api/v1/research.
func (h *ResearchHandler) List(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	jobs := h.research.List(limit)
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobResponses(jobs),
		"total": len(jobs),
	})
}

// Get handles GET /api/v1/research/:id. Jobs no longer in memory are
// looked up in the archive.
func (h *ResearchHandler) Get(c *gin.Context) {
	job, err := h.lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewJobResponse(job))
}

// Events handles GET /api/v1/research/:id/events as a server-sent event stream.
// The stream ends with an "end" event carrying the final job snapshot.
func (h *ResearchHandler) Events(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.research.GetStatus(id); err != nil {
		h.writeLookupError(c, err)
		return
	}

	ch, unsub := h.research.Subscribe(id)
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// A job that finished before we subscribed never closes ch.
	if job, err := h.research.GetStatus(id); err != nil || job.Status.IsTerminal() {
		h.writeEnd(c, id)
		return
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	ticker := time.NewTicker(keepAliveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			c.Writer.Flush()
		case evt, ok := <-ch:
			if !ok {
				h.writeEnd(c, id)
				return
			}
			c.SSEvent(string(evt.Type), evt)
			c.Writer.Flush()
		}
	}
}

func (h *ResearchHandler) writeEnd(c *gin.Context, id string) {
	if job, err := h.research.GetStatus(id); err == nil {
		c.SSEvent("end", NewJobResponse(job))
	} else {
		c.SSEvent("end", gin.H{"id": id, "error": err.Error()})
	}
	c.Writer.Flush()
}

// Cancel handles POST /api/v1/research/:id/cancel.
func (h *ResearchHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	remoteOK, err := h.research.Cancel(c.Request.Context(), id)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	job, err := h.research.GetStatus(id)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cancelled":        job.Status == domain.JobStatusCancelled,
		"remote_cancelled": remoteOK,
		"job":              NewJobResponse(job),
	})
}

// Delete handles DELETE /api/v1/research/:id. It succeeds for unknown ids.
func (h *ResearchHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := h.research.Delete(ctx, id); err != nil {
		logger.CtxError(ctx, "Failed to delete research job %s: %v", id, err)
		serverError(c, http.StatusInternalServerError, "Failed to delete research job")
		return
	}
	if h.exporter != nil {
		if err := h.exporter.Remove(ctx, id); err != nil {
			logger.CtxWarn(ctx, "Failed to remove exported report for %s: %v", id, err)
		}
	}
	c.Status(http.StatusNoContent)
}

// Export handles POST /api/v1/research/:id/export.
func (h *ResearchHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Report export is not configured"})
		return
	}

	ctx := c.Request.Context()
	job, err := h.lookup(ctx, c.Param("id"))
	if err != nil {
		h.writeLookupError(c, err)
		return
	}

	url, err := h.exporter.Export(ctx, job)
	if err != nil {
		if errors.Is(err, service.ErrNotExportable) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": job.Status})
			return
		}
		logger.CtxError(ctx, "Failed to export report for %s: %v", job.ID, err)
		serverError(c, http.StatusBadGateway, "Failed to export report")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "key": service.ReportKey(job.ID)})
}

// Report handles GET /api/v1/research/:id/report, streaming a previously exported report.
func (h *ResearchHandler) Report(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Report export is not configured"})
		return
	}

	id := c.Param("id")
	rc, err := h.exporter.Open(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Report has not been exported"})
			return
		}
		logger.CtxError(c.Request.Context(), "Failed to open report for %s: %v", id, err)
		serverError(c, http.StatusBadGateway, "Failed to read report")
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `inline; filename="`+id+`.md"`)
	c.DataFromReader(http.StatusOK, -1, "text/markdown; charset=utf-8", rc, nil)
}

// History handles GET /api/v1/history.
func (h *ResearchHandler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job archive is not configured"})
		return
	}

	status := domain.JobStatus(strings.ToLower(c.Query("status")))
	recs, err := h.history.List(c.Request.Context(), parseLimit(c.Query("limit")), status)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list history: %v", err)
		serverError(c, http.StatusInternalServerError, "Failed to list history")
		return
	}

	jobs := make([]JobResponse, 0, len(recs))
	for i := range recs {
		jobs = append(jobs, NewJobResponse(recs[i].Job()))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// lookup prefers the live registry and falls back to the archive.
func (h *ResearchHandler) lookup(ctx context.Context, id string) (domain.Job, error) {
	job, err := h.research.GetStatus(id)
	if err == nil || !errors.Is(err, domain.ErrJobNotFound) || h.history == nil {
		return job, err
	}
	rec, err := h.history.GetByID(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	return rec.Job(), nil
}

func (h *ResearchHandler) writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Research job not found"})
		return
	}
	logger.CtxError(c.Request.Context(), "Failed to look up research job: %v", err)
	serverError(c, http.StatusInternalServerError, "Failed to look up research job")
}

func parseLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// serverError reports a 5xx with the request id so the log line can be found.
func serverError(c *gin.Context, status int, msg string) {
	body := gin.H{"error": msg}
	if id := logger.GetRequestID(c.Request.Context()); id != "" {
		body["request_id"] = id
	}
	c.JSON(status, body)
}
