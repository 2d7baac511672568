package vertex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"

	"dreamframe/internal/domain"
)

type stubTokens struct {
	mu          sync.Mutex
	token       string
	err         error
	invalidated int
}

func (s *stubTokens) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.err
}

func (s *stubTokens) Invalidate() {
	s.mu.Lock()
	s.invalidated++
	s.mu.Unlock()
}

type captureTransport struct {
	mu        sync.Mutex
	responses map[string]responseStub
	requests  []*http.Request
	bodies    [][]byte
}

type responseStub struct {
	status int
	body   []byte
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{responses: map[string]responseStub{}}
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	c.requests = append(c.requests, req)
	c.bodies = append(c.bodies, body)
	for suffix, stub := range c.responses {
		if strings.HasSuffix(req.URL.Path, suffix) {
			return &http.Response{
				StatusCode: stub.status,
				Header:     http.Header{"Content-Type": []string{"application/json"}},
				Body:       io.NopCloser(bytes.NewReader(stub.body)),
			}, nil
		}
	}
	return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader("not found"))}, nil
}

func (c *captureTransport) setJSON(suffix string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[suffix] = responseStub{status: status, body: body}
}

func (c *captureTransport) lastPayload(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		t.Fatal("no request captured")
	}
	var payload map[string]any
	if err := json.Unmarshal(c.bodies[len(c.bodies)-1], &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return payload
}

type stubObjects struct {
	data   []byte
	mime   string
	err    error
	bucket string
	object string
}

func (s *stubObjects) ReadObject(ctx context.Context, bucket, object string) ([]byte, string, error) {
	s.bucket, s.object = bucket, object
	return s.data, s.mime, s.err
}

func newTestClient(t *testing.T, transport http.RoundTripper, veo3 bool, objects ObjectReader) (*Client, *stubTokens) {
	t.Helper()
	tokens := &stubTokens{token: "ya29.test"}
	opts := Options{
		ProjectID:  "dreamframe-prod",
		Location:   "us-central1",
		BaseURL:    "https://vertex.test/v1",
		Tokens:     tokens,
		Objects:    objects,
		HTTPClient: &http.Client{Transport: transport},
	}
	var (
		client *Client
		err    error
	)
	if veo3 {
		client, err = NewVEO3(opts)
	} else {
		client, err = NewVEO2(opts)
	}
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, tokens
}

func TestSubmitClampsDurationAndBuildsPayload(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(":predictLongRunning", http.StatusOK, map[string]any{"name": "projects/p/operations/op-1"})
	client, _ := newTestClient(t, transport, true, nil)

	req := domain.NewGenerationRequest("req-1", "", "sunset over ocean", 20, "9:16", &domain.SourceImage{
		Data: []byte{0x89, 'P', 'N', 'G'},
		MIME: "image/png",
	})
	job, err := client.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Handle != "projects/p/operations/op-1" {
		t.Fatalf("handle = %q", job.Handle)
	}
	if job.Status != domain.JobStatusPending || job.Provider != NameVEO3 {
		t.Fatalf("unexpected job %+v", job)
	}

	payload := transport.lastPayload(t)
	params := payload["parameters"].(map[string]any)
	if got := params["durationSeconds"]; got != float64(8) {
		t.Fatalf("durationSeconds = %v, want 8", got)
	}
	if got := params["aspectRatio"]; got != "9:16" {
		t.Fatalf("aspectRatio = %v", got)
	}
	if got := params["sampleCount"]; got != float64(1) {
		t.Fatalf("sampleCount = %v", got)
	}
	if got := params["generateAudio"]; got != true {
		t.Fatalf("generateAudio = %v, want true for veo3", got)
	}
	instance := payload["instances"].([]any)[0].(map[string]any)
	if instance["prompt"] != "sunset over ocean" {
		t.Fatalf("prompt = %v", instance["prompt"])
	}
	img := instance["image"].(map[string]any)
	if img["mimeType"] != "image/png" {
		t.Fatalf("mimeType = %v", img["mimeType"])
	}
	decoded, _ := base64.StdEncoding.DecodeString(img["bytesBase64Encoded"].(string))
	if !bytes.Equal(decoded, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("image bytes mismatch")
	}

	sent := transport.requests[0]
	if sent.Header.Get("Authorization") != "Bearer ya29.test" {
		t.Fatalf("authorization header = %q", sent.Header.Get("Authorization"))
	}
	if sent.Header.Get("X-Goog-User-Project") != "dreamframe-prod" {
		t.Fatalf("user project header = %q", sent.Header.Get("X-Goog-User-Project"))
	}
	if !strings.Contains(sent.URL.Path, "/models/veo-3.0-generate-001:predictLongRunning") {
		t.Fatalf("unexpected path %q", sent.URL.Path)
	}
}

func TestSubmitVEO2OmitsAudioAndImage(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(":predictLongRunning", http.StatusOK, map[string]any{"name": "op-2"})
	client, _ := newTestClient(t, transport, false, nil)

	if _, err := client.Submit(context.Background(), domain.NewGenerationRequest("r", "", "a cat", 5, "", nil)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	payload := transport.lastPayload(t)
	params := payload["parameters"].(map[string]any)
	if _, ok := params["generateAudio"]; ok {
		t.Fatal("generateAudio should be omitted for veo2")
	}
	if params["aspectRatio"] != "16:9" {
		t.Fatalf("aspectRatio = %v", params["aspectRatio"])
	}
	instance := payload["instances"].([]any)[0].(map[string]any)
	if _, ok := instance["image"]; ok {
		t.Fatal("image should be omitted without a source image")
	}
	if client.Name() != NameVEO2 || client.MaxDuration() != 8 {
		t.Fatalf("unexpected identity %s/%d", client.Name(), client.MaxDuration())
	}
}

func TestSubmitClassifiesHTTPErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrAuth},
		{http.StatusForbidden, domain.ErrAuth},
		{http.StatusNotFound, domain.ErrNotSupported},
		{http.StatusServiceUnavailable, domain.ErrTransport},
		{http.StatusBadRequest, domain.ErrTerminal},
	}
	for _, tc := range cases {
		transport := newCaptureTransport()
		transport.setJSON(":predictLongRunning", tc.status, map[string]any{"error": map[string]any{"message": "nope"}})
		client, _ := newTestClient(t, transport, true, nil)
		_, err := client.Submit(context.Background(), domain.NewGenerationRequest("r", "", "p", 5, "", nil))
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestSubmitTokenFailureIsAuthError(t *testing.T) {
	transport := newCaptureTransport()
	client, tokens := newTestClient(t, transport, true, nil)
	tokens.err = errors.New("invalid_grant")

	_, err := client.Submit(context.Background(), domain.NewGenerationRequest("r", "", "p", 5, "", nil))
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if len(transport.requests) != 0 {
		t.Fatalf("no request should be sent without a token")
	}
	client.InvalidateCredentials()
	if tokens.invalidated != 1 {
		t.Fatalf("expected invalidate to reach the token source")
	}
}

func TestPollMapsOperationState(t *testing.T) {
	cases := []struct {
		name   string
		body   map[string]any
		status domain.JobStatus
	}{
		{"running", map[string]any{"name": "op", "done": false}, domain.JobStatusRunning},
		{"failed", map[string]any{"name": "op", "done": true, "error": map[string]any{"code": 3, "message": "prompt rejected"}}, domain.JobStatusFailed},
		{"succeeded", map[string]any{"name": "op", "done": true, "response": map[string]any{"videos": []any{}}}, domain.JobStatusSucceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := newCaptureTransport()
			transport.setJSON(":fetchPredictOperation", http.StatusOK, tc.body)
			client, _ := newTestClient(t, transport, true, nil)

			job := domain.ProviderJob{Provider: NameVEO3, Handle: "op", Status: domain.JobStatusPending}
			polled, err := client.Poll(context.Background(), job)
			if err != nil {
				t.Fatalf("poll: %v", err)
			}
			if polled.Status != tc.status {
				t.Fatalf("status = %s, want %s", polled.Status, tc.status)
			}
			if polled.Handle != job.Handle || polled.Provider != job.Provider {
				t.Fatalf("poll must only change status: %+v", polled)
			}
			if tc.status == domain.JobStatusFailed && !strings.Contains(polled.Detail, "prompt rejected") {
				t.Fatalf("detail = %q", polled.Detail)
			}
			if got := transport.lastPayload(t)["operationName"]; got != "op" {
				t.Fatalf("operationName = %v", got)
			}
		})
	}
}

func TestFetchResultInlineBytes(t *testing.T) {
	transport := newCaptureTransport()
	clip := []byte("fake-mp4-bytes")
	transport.setJSON(":fetchPredictOperation", http.StatusOK, map[string]any{
		"done": true,
		"response": map[string]any{"videos": []any{
			map[string]any{"bytesBase64Encoded": base64.StdEncoding.EncodeToString(clip), "mimeType": "video/mp4"},
		}},
	})
	client, _ := newTestClient(t, transport, true, nil)

	payload, err := client.FetchResult(context.Background(), domain.ProviderJob{Handle: "op", Status: domain.JobStatusSucceeded})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(payload.Data, clip) || payload.MIME != "video/mp4" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestFetchResultDownloadsGCSObject(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(":fetchPredictOperation", http.StatusOK, map[string]any{
		"done": true,
		"response": map[string]any{"videos": []any{
			map[string]any{"gcsUri": "gs://dreamframe-out/veo/op/sample_0.mp4", "mimeType": "video/mp4"},
		}},
	})
	objects := &stubObjects{data: []byte("gcs-video"), mime: "video/mp4"}
	client, _ := newTestClient(t, transport, true, objects)

	payload, err := client.FetchResult(context.Background(), domain.ProviderJob{Handle: "op", Status: domain.JobStatusSucceeded})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if objects.bucket != "dreamframe-out" || objects.object != "veo/op/sample_0.mp4" {
		t.Fatalf("unexpected object %s/%s", objects.bucket, objects.object)
	}
	if string(payload.Data) != "gcs-video" || payload.URL != "gs://dreamframe-out/veo/op/sample_0.mp4" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestFetchResultEmptyVideosIsTerminal(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(":fetchPredictOperation", http.StatusOK, map[string]any{
		"done":     true,
		"response": map[string]any{"videos": []any{}, "raiMediaFilteredCount": 1},
	})
	client, _ := newTestClient(t, transport, true, nil)

	_, err := client.FetchResult(context.Background(), domain.ProviderJob{Handle: "op", Status: domain.JobStatusSucceeded})
	if !errors.Is(err, domain.ErrTerminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if !strings.Contains(err.Error(), "filtered") {
		t.Fatalf("expected filter detail in %q", err.Error())
	}
}

func TestFetchResultRequiresSucceededJob(t *testing.T) {
	client, _ := newTestClient(t, newCaptureTransport(), true, nil)
	_, err := client.FetchResult(context.Background(), domain.ProviderJob{Handle: "op", Status: domain.JobStatusRunning})
	if !errors.Is(err, domain.ErrTerminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(Options{Tokens: &stubTokens{}}); !errors.Is(err, ErrMissingProject) {
		t.Fatalf("expected ErrMissingProject, got %v", err)
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://bucket/a/b/c.mp4")
	if err != nil || bucket != "bucket" || object != "a/b/c.mp4" {
		t.Fatalf("unexpected parse %q %q %v", bucket, object, err)
	}
	for _, bad := range []string{"https://x/y", "gs://bucket", "gs:///obj", ""} {
		if _, _, err := ParseGCSURI(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestGCSReaderDownloadsMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/b/dreamframe-out/o/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("object-bytes"))
	}))
	defer srv.Close()

	reader, err := NewGCSReader(context.Background(), nil,
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	data, mime, err := reader.ReadObject(context.Background(), "dreamframe-out", "veo/sample_0.mp4")
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	if string(data) != "object-bytes" || mime != "video/mp4" {
		t.Fatalf("unexpected object %q %q", data, mime)
	}

	_, _, err = reader.ReadObject(context.Background(), "other-bucket", "missing.mp4")
	if !errors.Is(err, domain.ErrTerminal) {
		t.Fatalf("missing object should be terminal, got %v", err)
	}
}

func TestUnknownOperationFailsOnlyTheJob(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(":fetchPredictOperation", http.StatusNotFound, map[string]any{"error": map[string]any{"message": "operation not found"}})
	client, _ := newTestClient(t, transport, false, nil)
	job := domain.ProviderJob{Provider: NameVEO2, Handle: "projects/p/operations/gone", Status: domain.JobStatusRunning}

	_, err := client.Poll(context.Background(), job)
	if !errors.Is(err, domain.ErrTerminal) || errors.Is(err, domain.ErrNotSupported) {
		t.Fatalf("poll of an unknown operation should be terminal, got %v", err)
	}

	job.Status = domain.JobStatusSucceeded
	_, err = client.FetchResult(context.Background(), job)
	if !errors.Is(err, domain.ErrTerminal) || errors.Is(err, domain.ErrNotSupported) {
		t.Fatalf("fetch of an unknown operation should be terminal, got %v", err)
	}
}
