package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/deepresearch/internal/domain"
	"github.com/timmy/deepresearch/internal/logger"
)

const (
	defaultResearchBaseURL = "https://generativelanguage.googleapis.com"
	defaultAPIVersion      = "v1beta"
	defaultRequestTimeout  = 30 * time.Second
	defaultGenerateTimeout = 120 * time.Second
)

// RemoteState is the remote service's view of a research job.
type RemoteState string

const (
	RemoteInProgress RemoteState = "in_progress"
	RemoteCompleted  RemoteState = "completed"
	RemoteFailed     RemoteState = "failed"
	RemoteCancelled  RemoteState = "cancelled"
)

// IsTerminal reports whether polling can stop.
func (s RemoteState) IsTerminal() bool {
	return s == RemoteCompleted || s == RemoteFailed || s == RemoteCancelled
}

// RemoteStatus is one poll result.
type RemoteStatus struct {
	State   RemoteState
	Outputs []string // text fragments in order
	Sources []domain.Source
	Error   string
}

// JobConfig carries per-job settings for CreateJob.
type JobConfig struct {
	Agent             string // empty uses the client default
	ThinkingSummaries bool
}

// GenerateOptions configures a single GenerateOnce call.
type GenerateOptions struct {
	Model       string
	Temperature *float64
}

// Generation separates the model's thinking output from its answer.
type Generation struct {
	Answer   string
	Thoughts string
}

// ResearchClientConfig holds configuration for the research service client.
type ResearchClientConfig struct {
	APIKey          string
	BaseURL         string
	APIVersion      string // v1alpha, v1beta, ...
	Agent           string
	RequestTimeout  time.Duration
	GenerateTimeout time.Duration
}

// ResearchClient issues authenticated calls against the remote research service.
// It holds no job state and never retries.
type ResearchClient struct {
	client          *resty.Client
	agent           string
	requestTimeout  time.Duration
	generateTimeout time.Duration
}

// NewResearchClient creates a new research service client.
// Parameters:
//   - cfg: endpoint, credentials and per-call timeouts.
//
// Returns:
//   - *ResearchClient: initialized client.
//   - error: wraps ErrConfiguration when the API key is missing.
func NewResearchClient(cfg *ResearchClientConfig) (*ResearchClient, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: research API key is required", ErrConfiguration)
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultResearchBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}

	client := resty.New()
	client.SetBaseURL(baseURL + "/" + version)
	client.SetHeader("x-goog-api-key", cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	c := &ResearchClient{
		client:          client,
		agent:           cfg.Agent,
		requestTimeout:  cfg.RequestTimeout,
		generateTimeout: cfg.GenerateTimeout,
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultRequestTimeout
	}
	if c.generateTimeout <= 0 {
		c.generateTimeout = defaultGenerateTimeout
	}
	return c, nil
}

// Wire structures

type createInteractionRequest struct {
	Agent       string            `json:"agent"`
	Input       string            `json:"input"`
	Background  bool              `json:"background"`
	AgentConfig *agentConfigShape `json:"agent_config,omitempty"`
}

type agentConfigShape struct {
	Type              string `json:"type"`
	ThinkingSummaries string `json:"thinking_summaries,omitempty"`
}

type interactionResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Outputs []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"outputs"`
	Sources []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"sources"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type apiErrorEnvelope struct {
	Error *apiErrorBody `json:"error"`
}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig generationConfig  `json:"generationConfig"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type generationConfig struct {
	Temperature    *float64       `json:"temperature,omitempty"`
	ThinkingConfig thinkingConfig `json:"thinkingConfig"`
}

type thinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
}

// CreateJob starts a background research job.
// Parameters:
//   - ctx: context for cancellation.
//   - input: full research input (instructions, query and documents).
//   - cfg: per-job agent settings.
//
// Returns:
//   - string: remote job id.
//   - error: *TransportError on failure.
func (c *ResearchClient) CreateJob(ctx context.Context, input string, cfg JobConfig) (string, error) {
	agent := cfg.Agent
	if agent == "" {
		agent = c.agent
	}
	req := createInteractionRequest{
		Agent:      agent,
		Input:      input,
		Background: true,
	}
	if cfg.ThinkingSummaries {
		req.AgentConfig = &agentConfigShape{Type: "deep-research", ThinkingSummaries: "auto"}
	}

	var resp interactionResponse
	if err := c.do(ctx, c.requestTimeout, "create", "/interactions", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", httpError("create", 200, "response did not contain a job id")
	}
	return resp.ID, nil
}

// GetJobStatus fetches the current state of a remote job.
func (c *ResearchClient) GetJobStatus(ctx context.Context, remoteID string) (*RemoteStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var resp interactionResponse
	var apiErr apiErrorEnvelope
	httpResp, err := c.client.R().
		SetContext(callCtx).
		SetPathParam("id", remoteID).
		SetResult(&resp).
		SetError(&apiErr).
		Get("/interactions/{id}")
	if err != nil {
		return nil, classifyCallError("status", callCtx, err)
	}
	if httpResp.IsError() {
		return nil, httpError("status", httpResp.StatusCode(), errorMessage(httpResp, apiErr.Error))
	}

	status := &RemoteStatus{State: parseRemoteState(resp.Status)}
	for _, out := range resp.Outputs {
		if (out.Type == "" || out.Type == "text") && out.Text != "" {
			status.Outputs = append(status.Outputs, out.Text)
		}
	}
	for _, src := range resp.Sources {
		status.Sources = append(status.Sources, domain.Source{Title: src.Title, URL: src.URL, Snippet: src.Snippet})
	}
	if resp.Error != nil {
		status.Error = resp.Error.Message
	}
	return status, nil
}

// CancelJob asks the remote service to stop a job.
// Failures are logged and reported as false, never returned as errors.
func (c *ResearchClient) CancelJob(ctx context.Context, remoteID string) bool {
	if remoteID == "" {
		return false
	}
	path := "/interactions/" + url.PathEscape(remoteID) + ":cancel"
	if err := c.do(ctx, c.requestTimeout, "cancel", path, struct{}{}, nil); err != nil {
		logger.CtxWarn(ctx, "Remote cancel failed: remote_job_id=%s, error=%v", remoteID, err)
		return false
	}
	return true
}

// GenerateOnce issues a single synchronous model call with thinking output enabled.
// It uses its own timeout, independent of job polling.
func (c *ResearchClient) GenerateOnce(ctx context.Context, prompt string, opts GenerateOptions) (*Generation, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: generate model is required", ErrConfiguration)
	}

	req := generateRequest{
		Contents: []generateContent{{Role: "user", Parts: []generatePart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:    opts.Temperature,
			ThinkingConfig: thinkingConfig{IncludeThoughts: true},
		},
	}

	var resp generateResponse
	path := "/models/" + url.PathEscape(opts.Model) + ":generateContent"
	if err := c.do(ctx, c.generateTimeout, "generate", path, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, httpError("generate", 200, "no candidates in response")
	}

	var answer, thoughts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text == "" {
			continue
		}
		if part.Thought {
			thoughts = append(thoughts, part.Text)
		} else {
			answer = append(answer, part.Text)
		}
	}
	return &Generation{
		Answer:   strings.Join(answer, ""),
		Thoughts: strings.Join(thoughts, ""),
	}, nil
}

// do POSTs body to path under a per-call timeout and decodes the result.
func (c *ResearchClient) do(ctx context.Context, timeout time.Duration, op, path string, body, result interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var apiErr apiErrorEnvelope
	req := c.client.R().
		SetContext(callCtx).
		SetBody(body).
		SetError(&apiErr)
	if result != nil {
		req.SetResult(result)
	}

	httpResp, err := req.Post(path)
	if err != nil {
		return classifyCallError(op, callCtx, err)
	}
	if httpResp.IsError() {
		return httpError(op, httpResp.StatusCode(), errorMessage(httpResp, apiErr.Error))
	}
	return nil
}

func errorMessage(resp *resty.Response, body *apiErrorBody) string {
	if body != nil && body.Message != "" {
		return body.Message
	}
	if text := strings.TrimSpace(resp.String()); text != "" {
		return text
	}
	return resp.Status()
}

func parseRemoteState(status string) RemoteState {
	switch strings.ToLower(status) {
	case "completed", "succeeded", "done":
		return RemoteCompleted
	case "failed", "error":
		return RemoteFailed
	case "cancelled", "canceled":
		return RemoteCancelled
	default:
		return RemoteInProgress
	}
}
