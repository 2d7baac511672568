package vertex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dreamframe/internal/domain"
	"dreamframe/internal/infra"
	"dreamframe/internal/providers/video"
)

const (
	NameVEO3 = "vertex-veo3"
	NameVEO2 = "vertex-veo2"

	DefaultVEO3Model = "veo-3.0-generate-001"
	DefaultVEO2Model = "veo-2.0-generate-001"

	// MaxDurationSeconds is the longest clip either VEO model renders per request.
	MaxDurationSeconds = 8

	opSubmit = "submit"
	opPoll   = "poll"
	opFetch  = "fetch"
)

// ErrMissingProject indicates that the client was configured without a GCP project.
var ErrMissingProject = errors.New("vertex: project id is required")

// TokenSource yields bearer tokens for Vertex AI and can be told a token was rejected.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

// Options configures a Vertex AI VEO client.
type Options struct {
	Name           string
	ProjectID      string
	Location       string
	Model          string
	BaseURL        string
	StorageURI     string
	GenerateAudio  bool
	MaxDuration    int
	Tokens         TokenSource
	Objects        ObjectReader
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client drives VEO long-running predictions on Vertex AI.
type Client struct {
	name           string
	projectID      string
	location       string
	model          string
	baseURL        string
	storageURI     string
	generateAudio  bool
	maxDuration    int
	tokens         TokenSource
	objects        ObjectReader
	httpClient     *http.Client
	logger         *infra.Logger
	requestTimeout time.Duration
}

// NewVEO3 returns the primary provider: VEO 3 with audio.
func NewVEO3(opts Options) (*Client, error) {
	if opts.Name == "" {
		opts.Name = NameVEO3
	}
	if opts.Model == "" {
		opts.Model = DefaultVEO3Model
	}
	opts.GenerateAudio = true
	return NewClient(opts)
}

// NewVEO2 returns the secondary Vertex provider.
func NewVEO2(opts Options) (*Client, error) {
	if opts.Name == "" {
		opts.Name = NameVEO2
	}
	if opts.Model == "" {
		opts.Model = DefaultVEO2Model
	}
	opts.GenerateAudio = false
	return NewClient(opts)
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	project := strings.TrimSpace(opts.ProjectID)
	if project == "" {
		return nil, ErrMissingProject
	}
	if opts.Tokens == nil {
		return nil, errors.New("vertex: token source is required")
	}
	location := strings.TrimSpace(opts.Location)
	if location == "" {
		location = "us-central1"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", location)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	maxDuration := opts.MaxDuration
	if maxDuration <= 0 {
		maxDuration = MaxDurationSeconds
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = NameVEO3
	}
	return &Client{
		name:           name,
		projectID:      project,
		location:       location,
		model:          strings.TrimSpace(opts.Model),
		baseURL:        baseURL,
		storageURI:     strings.TrimSpace(opts.StorageURI),
		generateAudio:  opts.GenerateAudio,
		maxDuration:    maxDuration,
		tokens:         opts.Tokens,
		objects:        opts.Objects,
		httpClient:     httpClient,
		logger:         logger,
		requestTimeout: timeout,
	}, nil
}

func (c *Client) Name() string     { return c.name }
func (c *Client) MaxDuration() int { return c.maxDuration }

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// InvalidateCredentials drops the cached bearer token after an auth failure.
func (c *Client) InvalidateCredentials() {
	c.tokens.Invalidate()
}

// Submit starts a predictLongRunning operation and returns its operation name as the job handle.
func (c *Client) Submit(ctx context.Context, req domain.GenerationRequest) (domain.ProviderJob, error) {
	payload := predictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: predictParameters{
			AspectRatio:     string(req.AspectRatio),
			DurationSeconds: video.ClampDuration(req.Duration, c.maxDuration),
			SampleCount:     1,
			StorageURI:      c.storageURI,
		},
	}
	if payload.Parameters.AspectRatio == "" {
		payload.Parameters.AspectRatio = string(domain.AspectLandscape)
	}
	if c.generateAudio {
		audio := true
		payload.Parameters.GenerateAudio = &audio
	}
	if req.HasImage() {
		mime := req.SourceImage.MIME
		if mime == "" {
			mime = http.DetectContentType(req.SourceImage.Data)
		}
		payload.Instances[0].Image = &inlineImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(req.SourceImage.Data),
			MIMEType:           mime,
		}
	}

	var decoded operationHandle
	if err := c.call(ctx, opSubmit, c.modelURL("predictLongRunning"), payload, &decoded); err != nil {
		return domain.ProviderJob{}, err
	}
	if strings.TrimSpace(decoded.Name) == "" {
		return domain.ProviderJob{}, domain.NewProviderError(domain.KindTerminal, c.name, opSubmit, errors.New("response carried no operation name"))
	}
	c.logger.Info().
		Str("provider", c.name).
		Str("request_id", req.ID).
		Str("operation", decoded.Name).
		Int("duration", payload.Parameters.DurationSeconds).
		Msg("vertex: operation submitted")
	return domain.ProviderJob{
		Provider:    c.name,
		Handle:      decoded.Name,
		SubmittedAt: time.Now().UTC(),
		Status:      domain.JobStatusPending,
	}, nil
}

// Poll reports the operation's status. The returned job differs from the input only in Status and Detail.
func (c *Client) Poll(ctx context.Context, job domain.ProviderJob) (domain.ProviderJob, error) {
	op, err := c.fetchOperation(ctx, opPoll, job.Handle)
	if err != nil {
		return job, err
	}
	status, detail := op.status()
	job.Status = status
	job.Detail = detail
	return job, nil
}

// FetchResult returns the first generated video of a finished operation.
func (c *Client) FetchResult(ctx context.Context, job domain.ProviderJob) (*domain.VideoPayload, error) {
	if job.Status != domain.JobStatusSucceeded {
		return nil, domain.NewProviderError(domain.KindTerminal, c.name, opFetch, fmt.Errorf("job is %s, not SUCCEEDED", job.Status))
	}
	op, err := c.fetchOperation(ctx, opFetch, job.Handle)
	if err != nil {
		return nil, err
	}
	vid, err := op.firstVideo()
	if err != nil {
		return nil, domain.NewProviderError(domain.KindTerminal, c.name, opFetch, err)
	}
	mime := strings.TrimSpace(vid.MIMEType)
	if mime == "" {
		mime = "video/mp4"
	}
	if vid.BytesBase64Encoded != "" {
		data, err := base64.StdEncoding.DecodeString(vid.BytesBase64Encoded)
		if err != nil || len(data) == 0 {
			return nil, domain.NewProviderError(domain.KindTerminal, c.name, opFetch, errors.New("inline video is not valid base64"))
		}
		return &domain.VideoPayload{Data: data, MIME: mime}, nil
	}
	return c.download(ctx, vid.GCSURI, mime)
}

func (c *Client) download(ctx context.Context, uri, mime string) (*domain.VideoPayload, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, domain.NewProviderError(domain.KindTerminal, c.name, opFetch, err)
	}
	if c.objects == nil {
		return nil, domain.NewProviderError(domain.KindTerminal, c.name, opFetch, errors.New("no object reader configured for gs:// outputs"))
	}
	ctx, cancel := context.WithTimeout(ctx, 4*c.requestTimeout)
	defer cancel()
	data, contentType, err := c.objects.ReadObject(ctx, bucket, object)
	if err != nil {
		return nil, c.classifyObjectError(err)
	}
	if len(data) == 0 {
		return nil, domain.NewProviderError(domain.KindTerminal, c.name, opFetch, fmt.Errorf("object %s is empty", uri))
	}
	if contentType != "" {
		mime = contentType
	}
	c.logger.Debug().Str("provider", c.name).Str("uri", uri).Int("bytes", len(data)).Msg("vertex: downloaded output")
	return &domain.VideoPayload{Data: data, URL: uri, MIME: mime}, nil
}

func (c *Client) classifyObjectError(err error) error {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return domain.NewProviderError(domain.KindTransport, c.name, opFetch, fmt.Errorf("download output: %w", err))
}

func (c *Client) fetchOperation(ctx context.Context, op, handle string) (*operation, error) {
	if strings.TrimSpace(handle) == "" {
		return nil, domain.NewProviderError(domain.KindTerminal, c.name, op, errors.New("empty operation name"))
	}
	var decoded operation
	if err := c.call(ctx, op, c.modelURL("fetchPredictOperation"), fetchRequest{OperationName: handle}, &decoded); err != nil {
		return nil, video.ScopeToJob(err)
	}
	return &decoded, nil
}

func (c *Client) modelURL(method string) string {
	return fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:%s",
		c.baseURL, c.projectID, c.location, c.model, method)
}

// call performs one authenticated JSON POST bounded by the request timeout.
func (c *Client) call(ctx context.Context, op, endpoint string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return domain.NewProviderError(domain.KindAuth, c.name, op, fmt.Errorf("obtain access token: %w", err))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.NewProviderError(domain.KindTerminal, c.name, op, fmt.Errorf("encode request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.NewProviderError(domain.KindTerminal, c.name, op, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-Goog-User-Project", c.projectID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return video.TransportError(c.name, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return video.StatusError(c.name, op, resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return video.TransportError(c.name, op, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewProviderError(domain.KindTerminal, c.name, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

var (
	_ video.Provider            = (*Client)(nil)
	_ video.CredentialRefresher = (*Client)(nil)
)
