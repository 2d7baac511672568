package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dreamframe/internal/domain"
	"dreamframe/internal/middleware"
	"dreamframe/internal/storage"
	"dreamframe/internal/synthesis"
)

const (
	maxPromptRunes     = 2000
	maxDurationSeconds = 30
	formMemory         = 1 << 20
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

type generationCreateRequest struct {
	Prompt      string `json:"prompt"`
	Duration    int    `json:"duration"`
	AspectRatio string `json:"aspect_ratio"`
	OrderID     string `json:"order_id"`
}

type generationAccepted struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

type generationResponse struct {
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

// badRequest carries a client-facing validation message.
type badRequest struct {
	status int
	code   string
	msg    string
}

func (e *badRequest) Error() string { return e.msg }

func invalid(msg string) *badRequest {
	return &badRequest{status: http.StatusBadRequest, code: "bad_request", msg: msg}
}

// GenerationsCreate accepts a multipart upload or a JSON body and queues the request.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	in, image, err := a.decodeCreate(w, r)
	if err != nil {
		var br *badRequest
		if errors.As(err, &br) {
			a.error(w, br.status, br.code, br.msg)
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := validateCreate(&in); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	ctx := r.Context()
	logger := a.Logger.With().Str("request_id", middleware.RequestIDFromContext(ctx)).Logger()
	rec := &domain.GenerationRecord{
		ID:          uuid.NewString(),
		OrderID:     strings.TrimSpace(in.OrderID),
		Prompt:      in.Prompt,
		Duration:    in.Duration,
		AspectRatio: domain.ParseAspectRatio(in.AspectRatio),
	}
	if image != nil {
		key, err := a.Store.Write(ctx, storage.SourceImageKey(rec.ID, image.MIME), image.Data)
		if err != nil {
			logger.Error().Err(err).Str("generation_id", rec.ID).Msg("intake: store source image failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to store image")
			return
		}
		rec.ImageKey = key
		rec.ImageMIME = image.MIME
	}
	if err := a.Repo.Create(ctx, rec); err != nil {
		logger.Error().Err(err).Str("generation_id", rec.ID).Msg("intake: create record failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record request")
		return
	}
	if err := a.Queue.Push(ctx, rec.ID); err != nil {
		logger.Error().Err(err).Str("generation_id", rec.ID).Msg("intake: enqueue failed")
		if ferr := a.Repo.Fail(ctx, rec.ID, "request could not be queued", nil); ferr != nil {
			logger.Error().Err(ferr).Str("generation_id", rec.ID).Msg("intake: mark unqueued record failed")
		}
		a.error(w, http.StatusServiceUnavailable, "unavailable", "queue unavailable, retry later")
		return
	}

	logger.Info().
		Str("generation_id", rec.ID).
		Bool("has_image", image != nil).
		Int("duration", rec.Duration).
		Str("aspect_ratio", string(rec.AspectRatio)).
		Msg("intake: request queued")
	w.Header().Set("Location", "/v1/generations/"+rec.ID)
	a.json(w, http.StatusAccepted, generationAccepted{
		ID:        rec.ID,
		Status:    string(domain.RecordQueued),
		StatusURL: "/v1/generations/" + rec.ID,
	})
}

// GenerationsGet returns the record for {id}.
func (a *App) GenerationsGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "id must be a UUID")
		return
	}
	rec, err := a.Repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "generation not found")
			return
		}
		a.Logger.Error().Err(err).Str("generation_id", id).Msg("intake: load record failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load generation")
		return
	}
	attempts := rec.Attempts
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	a.json(w, http.StatusOK, generationResponse{
		ID:            rec.ID,
		OrderID:       rec.OrderID,
		Status:        string(rec.Status),
		Prompt:        rec.Prompt,
		Duration:      rec.Duration,
		AspectRatio:   string(rec.AspectRatio),
		ProviderUsed:  rec.ProviderUsed,
		VideoLocation: rec.VideoLocation,
		ErrorDetail:   rec.ErrorDetail,
		ElapsedMS:     rec.ElapsedMS,
		Attempts:      attempts,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	})
}

func (a *App) decodeCreate(w http.ResponseWriter, r *http.Request) (generationCreateRequest, *domain.SourceImage, error) {
	var in generationCreateRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, formMemory)
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, nil, invalid("invalid JSON payload")
		}
		return in, nil, nil
	}

	limit := a.maxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit+formMemory)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, nil, &badRequest{status: http.StatusRequestEntityTooLarge, code: "too_large", msg: "upload exceeds size limit"}
		}
		return in, nil, invalid("invalid multipart payload")
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	in.Prompt = r.FormValue("prompt")
	in.AspectRatio = r.FormValue("aspect_ratio")
	in.OrderID = r.FormValue("order_id")
	if raw := strings.TrimSpace(r.FormValue("duration")); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			return in, nil, invalid("duration must be an integer")
		}
		in.Duration = d
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, nil
	}
	if err != nil {
		return in, nil, invalid("invalid image part")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return in, nil, invalid("failed to read image")
	}
	if int64(len(data)) > limit {
		return in, nil, &badRequest{status: http.StatusRequestEntityTooLarge, code: "too_large", msg: "image exceeds size limit"}
	}
	if len(data) == 0 {
		return in, nil, nil
	}
	contentType := http.DetectContentType(data)
	if _, ok := allowedImageTypes[contentType]; !ok {
		return in, nil, &badRequest{status: http.StatusUnsupportedMediaType, code: "unsupported_media_type", msg: "image must be JPEG, PNG, WebP or GIF"}
	}
	if _, err := synthesis.CheckImage(data); err != nil {
		if errors.Is(err, synthesis.ErrImageTooLarge) {
			return in, nil, invalid(fmt.Sprintf("image dimensions exceed %d pixels", synthesis.MaxSourcePixels))
		}
		return in, nil, invalid("image could not be decoded")
	}
	return in, &domain.SourceImage{Data: data, MIME: contentType, Filename: header.Filename}, nil
}

func validateCreate(in *generationCreateRequest) error {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if in.Prompt == "" {
		return errors.New("prompt is required")
	}
	if utf8.RuneCountInString(in.Prompt) > maxPromptRunes {
		return errors.New("prompt is too long")
	}
	if in.Duration < 0 || in.Duration > maxDurationSeconds {
		return errors.New("duration must be between 0 and 30 seconds (0 uses the default)")
	}
	if in.Duration == 0 {
		in.Duration = domain.DefaultDurationSeconds
	}
	return nil
}
