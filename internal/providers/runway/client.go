package runway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"dreamframe/internal/domain"
	"dreamframe/internal/infra"
	"dreamframe/internal/providers/video"
)

const (
	Name = "runway"

	DefaultModel   = "gen3a_turbo"
	DefaultBaseURL = "https://api.dev.runwayml.com/v1"
	APIVersion     = "2024-11-06"

	// MaxDurationSeconds is the longest clip gen3a_turbo renders.
	MaxDurationSeconds = 10

	opSubmit = "submit"
	opPoll   = "poll"
	opFetch  = "fetch"

	maxVideoBytes = 256 << 20
)

// ErrMissingAPIKey indicates that neither a static key nor a key source yielded credentials.
var ErrMissingAPIKey = errors.New("runway: api key is required")

// KeySource loads the API key from durable storage, such as the credentials table.
type KeySource interface {
	RunwayAPIKey(ctx context.Context) (string, error)
}

// Options configures the RunwayML client.
type Options struct {
	APIKey         string
	Keys           KeySource
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client talks to the RunwayML image_to_video and tasks endpoints.
type Client struct {
	staticKey      string
	keys           KeySource
	baseURL        string
	model          string
	httpClient     *http.Client
	logger         *infra.Logger
	requestTimeout time.Duration

	mu        sync.Mutex
	cachedKey string
}

type imageToVideoRequest struct {
	Model       string `json:"model"`
	PromptImage string `json:"promptImage"`
	PromptText  string `json:"promptText,omitempty"`
	Duration    int    `json:"duration"`
	Ratio       string `json:"ratio"`
}

type taskResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Output  []string `json:"output"`
	Failure string   `json:"failure"`
	Code    string   `json:"failureCode"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" && opts.Keys == nil {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{
		staticKey:      strings.TrimSpace(opts.APIKey),
		keys:           opts.Keys,
		baseURL:        baseURL,
		model:          model,
		httpClient:     httpClient,
		logger:         logger,
		requestTimeout: timeout,
	}, nil
}

func (c *Client) Name() string     { return Name }
func (c *Client) MaxDuration() int { return MaxDurationSeconds }

// InvalidateCredentials forgets the stored key so the next call re-reads it.
func (c *Client) InvalidateCredentials() {
	c.mu.Lock()
	c.cachedKey = ""
	c.mu.Unlock()
}

// Submit creates an image_to_video task. RunwayML cannot work from text alone, so a
// request without an image fails for this provider only.
func (c *Client) Submit(ctx context.Context, req domain.GenerationRequest) (domain.ProviderJob, error) {
	if !req.HasImage() {
		return domain.ProviderJob{}, domain.NewProviderError(domain.KindTerminal, Name, opSubmit, errors.New("image_to_video requires a source image"))
	}
	mime := strings.TrimSpace(req.SourceImage.MIME)
	if mime == "" {
		mime = http.DetectContentType(req.SourceImage.Data)
	}
	payload := imageToVideoRequest{
		Model:       c.model,
		PromptImage: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.SourceImage.Data),
		PromptText:  truncatePrompt(req.Prompt),
		Duration:    SnapDuration(req.Duration),
		Ratio:       RatioFor(req.AspectRatio),
	}

	var task taskResponse
	if err := c.do(ctx, opSubmit, http.MethodPost, c.baseURL+"/image_to_video", payload, &task); err != nil {
		return domain.ProviderJob{}, err
	}
	if strings.TrimSpace(task.ID) == "" {
		return domain.ProviderJob{}, domain.NewProviderError(domain.KindTerminal, Name, opSubmit, errors.New("response carried no task id"))
	}
	c.logger.Info().
		Str("provider", Name).
		Str("request_id", req.ID).
		Str("task", task.ID).
		Int("duration", payload.Duration).
		Str("ratio", payload.Ratio).
		Msg("runway: task submitted")
	return domain.ProviderJob{
		Provider:    Name,
		Handle:      task.ID,
		SubmittedAt: time.Now().UTC(),
		Status:      domain.JobStatusPending,
	}, nil
}

// Poll reads the task status. The returned job differs from the input only in Status and Detail.
func (c *Client) Poll(ctx context.Context, job domain.ProviderJob) (domain.ProviderJob, error) {
	task, err := c.task(ctx, opPoll, job.Handle)
	if err != nil {
		return job, err
	}
	job.Status = MapStatus(task.Status)
	if job.Status == domain.JobStatusFailed {
		job.Detail = strings.TrimSpace(strings.Join([]string{task.Code, task.Failure}, " "))
	}
	return job, nil
}

// FetchResult downloads the first output URL of a succeeded task.
func (c *Client) FetchResult(ctx context.Context, job domain.ProviderJob) (*domain.VideoPayload, error) {
	if job.Status != domain.JobStatusSucceeded {
		return nil, domain.NewProviderError(domain.KindTerminal, Name, opFetch, fmt.Errorf("job is %s, not SUCCEEDED", job.Status))
	}
	task, err := c.task(ctx, opFetch, job.Handle)
	if err != nil {
		return nil, err
	}
	videoURL := firstOutput(task.Output)
	if videoURL == "" {
		return nil, domain.NewProviderError(domain.KindTerminal, Name, opFetch, errors.New("task succeeded without output"))
	}
	return c.download(ctx, videoURL)
}

func (c *Client) task(ctx context.Context, op, id string) (*taskResponse, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewProviderError(domain.KindTerminal, Name, op, errors.New("empty task id"))
	}
	var task taskResponse
	if err := c.do(ctx, op, http.MethodGet, c.baseURL+"/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, video.ScopeToJob(err)
	}
	return &task, nil
}

func (c *Client) download(ctx context.Context, videoURL string) (*domain.VideoPayload, error) {
	parsed, err := url.Parse(videoURL)
	if err != nil || parsed.Scheme == "" {
		return nil, domain.NewProviderError(domain.KindTerminal, Name, opFetch, fmt.Errorf("invalid output url %q", videoURL))
	}
	ctx, cancel := context.WithTimeout(ctx, 4*c.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, domain.NewProviderError(domain.KindTerminal, Name, opFetch, fmt.Errorf("build download request: %w", err))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, video.TransportError(Name, opFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		pe := video.StatusError(Name, opFetch, resp)
		// Output URLs are presigned; a 403/404 means the link expired, not that our key is bad.
		if pe.Kind == domain.KindAuth || pe.Kind == domain.KindNotSupported {
			pe.Kind = domain.KindTerminal
		}
		return nil, pe
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVideoBytes+1))
	if err != nil {
		return nil, video.TransportError(Name, opFetch, err)
	}
	if len(data) == 0 || len(data) > maxVideoBytes {
		return nil, domain.NewProviderError(domain.KindTerminal, Name, opFetch, fmt.Errorf("output has unusable size %d", len(data)))
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = "video/mp4"
	}
	c.logger.Debug().Str("provider", Name).Str("url", parsed.Redacted()).Int("bytes", len(data)).Msg("runway: downloaded output")
	return &domain.VideoPayload{Data: data, URL: videoURL, MIME: mime}, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	key, err := c.apiKey(ctx)
	if err != nil {
		return domain.NewProviderError(domain.KindAuth, Name, op, err)
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return domain.NewProviderError(domain.KindTerminal, Name, op, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return domain.NewProviderError(domain.KindTerminal, Name, op, fmt.Errorf("build request: %w", err))
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("X-Runway-Version", APIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return video.TransportError(Name, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return video.StatusError(Name, op, resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return video.TransportError(Name, op, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewProviderError(domain.KindTerminal, Name, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// apiKey prefers the configured key and otherwise reads, then caches, the stored one.
func (c *Client) apiKey(ctx context.Context) (string, error) {
	if c.staticKey != "" {
		return c.staticKey, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachedKey != "" {
		return c.cachedKey, nil
	}
	key, err := c.keys.RunwayAPIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("load api key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingAPIKey
	}
	c.cachedKey = key
	return key, nil
}

// MapStatus folds RunwayML task states onto job statuses. Unknown states count as pending.
func MapStatus(status string) domain.JobStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "RUNNING":
		return domain.JobStatusRunning
	case "SUCCEEDED":
		return domain.JobStatusSucceeded
	case "FAILED", "CANCELLED", "CANCELED":
		return domain.JobStatusFailed
	default:
		return domain.JobStatusPending
	}
}

// SnapDuration clamps to the provider maximum and rounds to the 5 or 10 second clips the model accepts.
func SnapDuration(requested int) int {
	if video.ClampDuration(requested, MaxDurationSeconds) > 5 {
		return 10
	}
	return 5
}

// RatioFor maps an aspect ratio onto RunwayML's pixel ratios.
func RatioFor(aspect domain.AspectRatio) string {
	switch aspect {
	case domain.AspectPortrait:
		return "768:1280"
	case domain.AspectSquare:
		return "960:960"
	default:
		return "1280:768"
	}
}

func truncatePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	runes := []rune(prompt)
	if len(runes) > 1000 {
		return string(runes[:1000])
	}
	return prompt
}

func firstOutput(urls []string) string {
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

var (
	_ video.Provider            = (*Client)(nil)
	_ video.CredentialRefresher = (*Client)(nil)
)
