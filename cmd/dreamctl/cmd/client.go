package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dreamframe/internal/domain"
)

// Client handles calls to the DreamFrame API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// SubmitRequest is one generation to queue.
type SubmitRequest struct {
	Prompt      string
	ImagePath   string
	Duration    int
	AspectRatio string
	OrderID     string
}

// Accepted is the 202 body of POST /v1/generations.
type Accepted struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

// Generation is the body of GET /v1/generations/{id}.
type Generation struct {
	ID            string           `json:"id"`
	OrderID       string           `json:"order_id,omitempty"`
	Status        string           `json:"status"`
	Prompt        string           `json:"prompt"`
	Duration      int              `json:"duration"`
	AspectRatio   string           `json:"aspect_ratio"`
	ProviderUsed  string           `json:"provider_used,omitempty"`
	VideoLocation string           `json:"video_location,omitempty"`
	ErrorDetail   string           `json:"error_detail,omitempty"`
	ElapsedMS     int64            `json:"elapsed_ms,omitempty"`
	Attempts      []domain.Attempt `json:"attempts"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Submit sends POST /v1/generations as a multipart form.
func (c *Client) Submit(req SubmitRequest) (*Accepted, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"prompt":       req.Prompt,
		"aspect_ratio": req.AspectRatio,
		"order_id":     req.OrderID,
	}
	if req.Duration > 0 {
		fields["duration"] = strconv.Itoa(req.Duration)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if req.ImagePath != "" {
		data, err := os.ReadFile(req.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		part, err := mw.CreateFormFile("image", filepath.Base(req.ImagePath))
		if err != nil {
			return nil, fmt.Errorf("failed to create image part: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write image part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.BaseURL+"/v1/generations", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var out Accepted
	if err := c.do(httpReq, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get sends GET /v1/generations/{id}.
func (c *Client) Get(id string) (*Generation, error) {
	httpReq, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/v1/generations/%s", c.BaseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var out Generation
	if err := c.do(httpReq, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, want int, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
