package domain

import (
	"strings"
	"time"
)

// AspectRatio enumerates the frame shapes a customer may request.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectSquare    AspectRatio = "1:1"
)

// DefaultDurationSeconds is used when a request carries no usable duration.
const DefaultDurationSeconds = 5

// ProviderLocalSynthesis names the offline renderer in results.
const ProviderLocalSynthesis = "local-synthesis"

// ParseAspectRatio normalizes free-form input, defaulting to landscape.
func ParseAspectRatio(v string) AspectRatio {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "9:16", "portrait", "vertical":
		return AspectPortrait
	case "1:1", "square":
		return AspectSquare
	default:
		return AspectLandscape
	}
}

// SourceImage is the optional customer upload used to condition generation.
type SourceImage struct {
	Data     []byte
	MIME     string
	Filename string
}

// GenerationRequest is one customer ask for a video. Treat it as immutable:
// it is passed by value and NewGenerationRequest copies the image bytes.
type GenerationRequest struct {
	ID          string
	OrderID     string
	Prompt      string
	Duration    int
	AspectRatio AspectRatio
	SourceImage *SourceImage
	CreatedAt   time.Time
}

// NewGenerationRequest builds a request with normalized aspect ratio and duration.
func NewGenerationRequest(id, orderID, prompt string, duration int, aspect string, image *SourceImage) GenerationRequest {
	if duration <= 0 {
		duration = DefaultDurationSeconds
	}
	req := GenerationRequest{
		ID:          strings.TrimSpace(id),
		OrderID:     strings.TrimSpace(orderID),
		Prompt:      strings.TrimSpace(prompt),
		Duration:    duration,
		AspectRatio: ParseAspectRatio(aspect),
		CreatedAt:   time.Now().UTC(),
	}
	if image != nil && len(image.Data) > 0 {
		req.SourceImage = &SourceImage{
			Data:     append([]byte(nil), image.Data...),
			MIME:     strings.TrimSpace(image.MIME),
			Filename: strings.TrimSpace(image.Filename),
		}
	}
	return req
}

// HasImage reports whether the request carries image bytes.
func (r GenerationRequest) HasImage() bool {
	return r.SourceImage != nil && len(r.SourceImage.Data) > 0
}

// VideoPayload is the normalized output of any provider.
type VideoPayload struct {
	Data []byte
	URL  string
	MIME string
}

// Usable reports whether the payload carries video bytes.
func (p *VideoPayload) Usable() bool {
	return p != nil && len(p.Data) > 0
}

// AttemptOutcome records how one provider attempt ended.
type AttemptOutcome string

const (
	OutcomeSucceeded    AttemptOutcome = "succeeded"
	OutcomeAuth         AttemptOutcome = "auth_error"
	OutcomeNotSupported AttemptOutcome = "not_supported"
	OutcomeTransport    AttemptOutcome = "transport_error"
	OutcomeFailed       AttemptOutcome = "failed"
	OutcomeTimedOut     AttemptOutcome = "timed_out"
	OutcomeSkipped      AttemptOutcome = "skipped"
)

// Attempt is one entry of the orchestrator's per-request log.
type Attempt struct {
	Provider string         `json:"provider"`
	Outcome  AttemptOutcome `json:"outcome"`
	Error    string         `json:"error,omitempty"`
	Elapsed  time.Duration  `json:"elapsed_ns"`
}

// GenerationResult is the single terminal answer to a GenerationRequest.
type GenerationResult struct {
	RequestID     string
	Success       bool
	VideoLocation string
	StorageKey    string
	MIME          string
	ProviderUsed  string
	Elapsed       time.Duration
	ErrorDetail   string
	Attempts      []Attempt
}
