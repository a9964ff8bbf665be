package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/deepresearch/internal/domain"
	"github.com/timmy/deepresearch/internal/service"
	"github.com/timmy/deepresearch/internal/source"
	"github.com/timmy/deepresearch/internal/storage"
)

type fakeResearcher struct {
	mu        sync.Mutex
	jobs      map[string]domain.Job
	submitted []service.SubmitRequest
	submitErr error
	remoteOK  bool
	deleted   []string
	events    []domain.Event
}

func newFakeResearcher() *fakeResearcher {
	return &fakeResearcher{jobs: make(map[string]domain.Job)}
}

func (f *fakeResearcher) Submit(_ context.Context, req service.SubmitRequest, _ service.EventHandler) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return domain.Job{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	opts, _ := req.Options.Normalize()
	job := domain.Job{
		ID:        "job-1",
		Query:     req.Query,
		Documents: req.Documents,
		Options:   opts,
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeResearcher) GetStatus(id string) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeResearcher) List(limit int) []domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Job
	for _, j := range f.jobs {
		out = append(out, j)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeResearcher) Cancel(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	if !job.Status.IsTerminal() {
		job.Status = domain.JobStatusCancelled
		f.jobs[id] = job
	}
	return f.remoteOK, nil
}

func (f *fakeResearcher) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	delete(f.jobs, id)
	return nil
}

func (f *fakeResearcher) Subscribe(string) (<-chan domain.Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan domain.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, func() {}
}

func (f *fakeResearcher) put(job domain.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
}

type fakeHistory struct {
	recs []domain.ResearchRecord
}

func (h *fakeHistory) GetByID(_ context.Context, id string) (*domain.ResearchRecord, error) {
	for i := range h.recs {
		if h.recs[i].ID == id {
			return &h.recs[i], nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (h *fakeHistory) List(_ context.Context, limit int, status domain.JobStatus) ([]domain.ResearchRecord, error) {
	var out []domain.ResearchRecord
	for _, r := range h.recs {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStore) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) GetURL(key string) string { return "https://cdn.example.com/" + key }

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func newTestRouter(r Researcher, exporter Exporter, history History) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewResearchHandler(r, source.NewLoader(16), exporter, history)

	engine := gin.New()
	engine.POST("/research", h.Submit)
	engine.GET("/research", h.List)
	engine.GET("/research/:id", h.Get)
	engine.GET("/research/:id/events", h.Events)
	engine.POST("/research/:id/cancel", h.Cancel)
	engine.DELETE("/research/:id", h.Delete)
	engine.POST("/research/:id/export", h.Export)
	engine.GET("/research/:id/report", h.Report)
	engine.GET("/history", h.History)
	return engine
}

func doJSON(t *testing.T, engine http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestResearchHandler_SubmitJSON(t *testing.T) {
	fr := newFakeResearcher()
	engine := newTestRouter(fr, nil, nil)

	w := doJSON(t, engine, http.MethodPost, "/research", map[string]interface{}{
		"query":     "What is Go?",
		"depth":     "Deep",
		"refine":    true,
		"documents": []map[string]string{{"name": "notes.txt", "content": "context"}},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp struct {
		Job JobResponse `json:"job"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.Job.ID)
	assert.Equal(t, domain.JobStatusPending, resp.Job.Status)
	assert.Equal(t, []string{"notes.txt"}, resp.Job.Documents)

	require.Len(t, fr.submitted, 1)
	got := fr.submitted[0]
	assert.Equal(t, domain.DepthDeep, got.Options.Depth)
	assert.True(t, got.Options.IncludeCitations)
	assert.True(t, got.Options.Refine)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, "text/plain", got.Documents[0].MIMEType)
}

func TestResearchHandler_SubmitCitationsOff(t *testing.T) {
	fr := newFakeResearcher()
	engine := newTestRouter(fr, nil, nil)

	w := doJSON(t, engine, http.MethodPost, "/research", map[string]interface{}{
		"query":             "q",
		"include_citations": false,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, fr.submitted, 1)
	assert.False(t, fr.submitted[0].Options.IncludeCitations)
}

func TestResearchHandler_SubmitInvalid(t *testing.T) {
	fr := newFakeResearcher()
	fr.submitErr = service.ErrInvalidRequest
	engine := newTestRouter(fr, nil, nil)

	w := doJSON(t, engine, http.MethodPost, "/research", map[string]string{"query": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/research", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResearchHandler_SubmitMultipart(t *testing.T) {
	fr := newFakeResearcher()
	engine := newTestRouter(fr, nil, nil)

	newRequest := func(fileBody string) *http.Request {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("query", "summarise my notes"))
		require.NoError(t, mw.WriteField("output_format", "summary"))
		require.NoError(t, mw.WriteField("include_citations", "false"))
		fw, err := mw.CreateFormFile("files", "notes.md")
		require.NoError(t, err)
		_, err = fw.Write([]byte(fileBody))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/research", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, newRequest("# my notes"))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Len(t, fr.submitted, 1)
	got := fr.submitted[0]
	assert.Equal(t, "summarise my notes", got.Query)
	assert.Equal(t, domain.FormatSummary, got.Options.OutputFormat)
	assert.False(t, got.Options.IncludeCitations)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, "notes.md", got.Documents[0].Name)
	assert.Equal(t, "# my notes", got.Documents[0].Content)

	// The test loader caps documents at 16 bytes.
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, newRequest(strings.Repeat("x", 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestResearchHandler_Get(t *testing.T) {
	fr := newFakeResearcher()
	fr.put(domain.Job{ID: "live", Query: "q", Status: domain.JobStatusFailed, Error: "boom"})
	done := time.Now()
	history := &fakeHistory{recs: []domain.ResearchRecord{{
		ID: "archived", Query: "old", Status: domain.JobStatusCompleted, Content: "report", CompletedAt: &done,
	}}}
	engine := newTestRouter(fr, nil, history)

	w := doJSON(t, engine, http.MethodGet, "/research/live", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var job JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.Error)

	w = doJSON(t, engine, http.MethodGet, "/research/archived", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, "report", job.Content)
	assert.Equal(t, 100, job.Progress)

	w = doJSON(t, engine, http.MethodGet, "/research/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResearchHandler_List(t *testing.T) {
	fr := newFakeResearcher()
	fr.put(domain.Job{ID: "a", Status: domain.JobStatusProcessing})
	fr.put(domain.Job{ID: "b", Status: domain.JobStatusCompleted})
	engine := newTestRouter(fr, nil, nil)

	w := doJSON(t, engine, http.MethodGet, "/research?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Jobs  []JobResponse `json:"jobs"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 1)
	assert.Equal(t, 1, resp.Total)
}

func TestResearchHandler_Cancel(t *testing.T) {
	fr := newFakeResearcher()
	fr.remoteOK = true
	fr.put(domain.Job{ID: "a", Status: domain.JobStatusProcessing, RemoteJobID: "r-1"})
	engine := newTestRouter(fr, nil, nil)

	w := doJSON(t, engine, http.MethodPost, "/research/a/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Cancelled       bool        `json:"cancelled"`
		RemoteCancelled bool        `json:"remote_cancelled"`
		Job             JobResponse `json:"job"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Cancelled)
	assert.True(t, resp.RemoteCancelled)
	assert.Equal(t, domain.JobStatusCancelled, resp.Job.Status)

	w = doJSON(t, engine, http.MethodPost, "/research/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResearchHandler_DeleteIsIdempotent(t *testing.T) {
	fr := newFakeResearcher()
	fr.put(domain.Job{ID: "a", Status: domain.JobStatusCompleted})
	store := &memStore{objects: map[string][]byte{"reports/a.md": []byte("# a")}}
	engine := newTestRouter(fr, service.NewExportService(store), nil)

	for i := 0; i < 2; i++ {
		w := doJSON(t, engine, http.MethodDelete, "/research/a", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	assert.Equal(t, []string{"a", "a"}, fr.deleted)
	assert.Empty(t, store.objects)

	w := doJSON(t, engine, http.MethodGet, "/research/a", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResearchHandler_Export(t *testing.T) {
	fr := newFakeResearcher()
	done := time.Now()
	fr.put(domain.Job{ID: "done", Query: "q", Status: domain.JobStatusCompleted, Content: "report", CompletedAt: &done})
	fr.put(domain.Job{ID: "running", Query: "q", Status: domain.JobStatusProcessing})
	store := &memStore{objects: map[string][]byte{}}
	engine := newTestRouter(fr, service.NewExportService(store), nil)

	w := doJSON(t, engine, http.MethodPost, "/research/done/export", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://cdn.example.com/reports/done.md", resp["url"])
	assert.Contains(t, string(store.objects["reports/done.md"]), "report")

	w = doJSON(t, engine, http.MethodGet, "/research/done/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "report")
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")

	w = doJSON(t, engine, http.MethodGet, "/research/running/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/research/running/export", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/research/missing/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResearchHandler_OptionalBackendsDisabled(t *testing.T) {
	engine := newTestRouter(newFakeResearcher(), nil, nil)

	w := doJSON(t, engine, http.MethodPost, "/research/a/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestResearchHandler_History(t *testing.T) {
	history := &fakeHistory{recs: []domain.ResearchRecord{
		{ID: "a", Status: domain.JobStatusCompleted},
		{ID: "b", Status: domain.JobStatusFailed},
	}}
	engine := newTestRouter(newFakeResearcher(), nil, history)

	w := doJSON(t, engine, http.MethodGet, "/history?status=failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Jobs []JobResponse `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "b", resp.Jobs[0].ID)
}

func TestResearchHandler_Events(t *testing.T) {
	fr := newFakeResearcher()
	fr.put(domain.Job{ID: "a", Status: domain.JobStatusProcessing, Progress: 15})
	p := 15
	fr.events = []domain.Event{
		{JobID: "a", Type: domain.EventStart, Timestamp: time.Now()},
		{JobID: "a", Type: domain.EventProgress, Timestamp: time.Now(), Data: &domain.EventData{Progress: &p}},
	}
	engine := newTestRouter(fr, nil, nil)

	w := doJSON(t, engine, http.MethodGet, "/research/a/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream"))

	body := w.Body.String()
	assert.Contains(t, body, "event:start")
	assert.Contains(t, body, "event:progress")
	assert.Contains(t, body, "event:end")
	assert.Less(t, strings.Index(body, "event:start"), strings.Index(body, "event:progress"))
	assert.Less(t, strings.Index(body, "event:progress"), strings.Index(body, "event:end"))

	w = doJSON(t, engine, http.MethodGet, "/research/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResearchHandler_EventsForFinishedJob(t *testing.T) {
	fr := newFakeResearcher()
	fr.put(domain.Job{ID: "a", Status: domain.JobStatusCompleted, Content: "done"})
	engine := newTestRouter(fr, nil, nil)

	w := doJSON(t, engine, http.MethodGet, "/research/a/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event:end")
	assert.Contains(t, w.Body.String(), `"status":"completed"`)
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, parseLimit(""))
	assert.Equal(t, defaultListLimit, parseLimit("-3"))
	assert.Equal(t, defaultListLimit, parseLimit("abc"))
	assert.Equal(t, 7, parseLimit("7"))
	assert.Equal(t, maxListLimit, parseLimit("100000"))
}

func TestNewJobResponse_OmitsDocumentBodies(t *testing.T) {
	resp := NewJobResponse(domain.Job{
		ID:        "a",
		Documents: []domain.Document{{Name: "secret.txt", Content: "do not echo"}},
	})
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "do not echo")
	assert.Contains(t, string(data), "secret.txt")
}
