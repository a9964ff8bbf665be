package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/timmy/deepresearch/internal/domain"
	"github.com/timmy/deepresearch/internal/logger"
	"github.com/timmy/deepresearch/internal/storage"
)

const reportContentType = "text/markdown; charset=utf-8"

// ErrNotExportable is returned when a job has no finished report yet.
var ErrNotExportable = errors.New("only completed jobs can be exported")

// ExportService renders finished reports and publishes them to object storage.
type ExportService struct {
	store storage.ObjectStorage
}

// NewExportService creates a new export service.
func NewExportService(store storage.ObjectStorage) *ExportService {
	return &ExportService{store: store}
}

// ReportKey is the object key of a job's exported report.
func ReportKey(jobID string) string {
	return "reports/" + jobID + ".md"
}

// Export uploads the job's report and returns its public URL.
// Parameters:
//   - ctx: context for the upload and its retries.
//   - job: a completed job snapshot.
//
// Returns:
//   - string: public URL of the uploaded report.
//   - error: ErrNotExportable for unfinished jobs, or the last upload error.
func (s *ExportService) Export(ctx context.Context, job domain.Job) (string, error) {
	if job.Status != domain.JobStatusCompleted {
		return "", ErrNotExportable
	}

	body := []byte(RenderMarkdown(job))
	key := ReportKey(job.ID)
	start := time.Now()

	err := withRetry(ctx, func(ctx context.Context) error {
		return s.store.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), reportContentType)
	})
	if err != nil {
		return "", fmt.Errorf("failed to export report: %w", err)
	}

	url := s.store.GetURL(key)
	logger.With(logger.Fields{
		logger.FieldJobID:      job.ID,
		logger.FieldSize:       len(body),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Report exported: %s", url)
	return url, nil
}

// Open streams a previously exported report.
func (s *ExportService) Open(ctx context.Context, jobID string) (io.ReadCloser, error) {
	return s.store.Download(ctx, ReportKey(jobID))
}

// Remove deletes a job's exported report, if any.
func (s *ExportService) Remove(ctx context.Context, jobID string) error {
	return s.store.Delete(ctx, ReportKey(jobID))
}

// RenderMarkdown formats a job as a standalone markdown document.
func RenderMarkdown(job domain.Job) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", strings.TrimSpace(job.Query))

	generated := job.CreatedAt
	if job.CompletedAt != nil {
		generated = *job.CompletedAt
	}
	fmt.Fprintf(&b, "_Generated %s | depth: %s | format: %s | scope: %s_\n\n",
		generated.UTC().Format(time.RFC3339), job.Options.Depth, job.Options.OutputFormat, job.Options.SourceScope)

	if job.Options.OutputFormat == domain.FormatJSON {
		b.WriteString("```json\n")
		b.WriteString(strings.TrimSpace(job.Content))
		b.WriteString("\n```\n")
	} else {
		b.WriteString(strings.TrimSpace(job.Content))
		b.WriteString("\n")
	}

	if len(job.Sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for i, src := range job.Sources {
			title := src.Title
			if title == "" {
				title = src.URL
			}
			fmt.Fprintf(&b, "%d. [%s](%s)", i+1, title, src.URL)
			if src.Snippet != "" {
				fmt.Fprintf(&b, ": %s", src.Snippet)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
