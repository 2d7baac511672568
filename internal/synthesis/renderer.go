// Package synthesis renders the offline placeholder video used when every remote
// provider has failed. Output depends only on the inputs: the same prompt, image,
// duration and resolution always produce the same bytes.
package synthesis

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"dreamframe/internal/domain"
	"dreamframe/internal/infra"
)

const (
	MinSeconds       = 5
	MaxSeconds       = 10
	DefaultFPS       = 24
	DefaultShortSide = 720
	DefaultBrand     = "DreamFrame"
	JPEGQuality      = 85

	MIMEAVI = "video/x-msvideo"
	MIMEMP4 = "video/mp4"
)

// MaxSourcePixels bounds the decoded size of a source image. Compressed formats can
// encode huge canvases in a few hundred kilobytes, so the header is checked first.
const MaxSourcePixels = 40_000_000

var (
	// ErrEmptyVideo is returned when a render would produce no frames.
	ErrEmptyVideo = errors.New("synthesis: no frames to encode")
	// ErrImageTooLarge is returned by CheckImage for images above MaxSourcePixels.
	ErrImageTooLarge = errors.New("synthesis: source image dimensions too large")
)

// CheckImage reads only the image header and rejects undecodable or oversized images.
func CheckImage(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return cfg, fmt.Errorf("synthesis: read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return cfg, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return cfg, nil
}

// Options configures a Renderer.
type Options struct {
	FPS       int
	ShortSide int
	Brand     string
	// Transcoder, when set, converts the AVI into MP4. Failures fall back to the AVI.
	Transcoder *Transcoder
	Logger     *infra.Logger
}

// Renderer produces placeholder videos.
type Renderer struct {
	fps        int
	shortSide  int
	brand      string
	transcoder *Transcoder
	logger     *infra.Logger
}

// Input describes one placeholder video.
type Input struct {
	Prompt  string
	Image   []byte
	Seconds int
	Aspect  domain.AspectRatio
}

// Video is a rendered, encoded placeholder.
type Video struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
	FPS    int
	Frames int
}

// NewRenderer applies defaults to opts.
func NewRenderer(opts Options) *Renderer {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.ShortSide <= 0 {
		opts.ShortSide = DefaultShortSide
	}
	if opts.Brand == "" {
		opts.Brand = DefaultBrand
	}
	if opts.Logger == nil {
		opts.Logger = infra.DiscardLogger()
	}
	return &Renderer{
		fps:        opts.FPS,
		shortSide:  opts.ShortSide,
		brand:      opts.Brand,
		transcoder: opts.Transcoder,
		logger:     opts.Logger,
	}
}

// Synthesize renders the placeholder for a generation request.
func (r *Renderer) Synthesize(ctx context.Context, req domain.GenerationRequest) (*domain.VideoPayload, error) {
	in := Input{Prompt: req.Prompt, Seconds: req.Duration, Aspect: req.AspectRatio}
	if req.HasImage() {
		in.Image = req.SourceImage.Data
	}
	vid, err := r.Render(ctx, in)
	if err != nil {
		return nil, err
	}
	return &domain.VideoPayload{Data: vid.Data, MIME: vid.MIME}, nil
}

// Render draws every frame, encodes them as Motion-JPEG AVI and optionally transcodes.
func (r *Renderer) Render(ctx context.Context, in Input) (*Video, error) {
	scene := r.NewScene(in)
	total := scene.TotalFrames(r.fps)
	frames := make([][]byte, 0, total)
	var buf bytes.Buffer
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, scene.Frame(i, total), &jpeg.Options{Quality: JPEGQuality}); err != nil {
			return nil, fmt.Errorf("synthesis: encode frame %d: %w", i, err)
		}
		frames = append(frames, append([]byte(nil), buf.Bytes()...))
	}
	data, err := EncodeAVI(frames, scene.Width, scene.Height, r.fps)
	if err != nil {
		return nil, err
	}
	vid := &Video{Data: data, MIME: MIMEAVI, Width: scene.Width, Height: scene.Height, FPS: r.fps, Frames: total}

	if r.transcoder != nil {
		mp4, err := r.transcoder.Transcode(ctx, data)
		if err != nil {
			r.logger.Warn().Err(err).Msg("synthesis: transcode failed, keeping avi")
		} else {
			vid.Data = mp4
			vid.MIME = MIMEMP4
		}
	}
	r.logger.Debug().
		Int("frames", total).
		Int("width", scene.Width).
		Int("height", scene.Height).
		Str("mime", vid.MIME).
		Int("bytes", len(vid.Data)).
		Msg("synthesis: rendered placeholder")
	return vid, nil
}

// ClampSeconds fits a requested duration into the placeholder range.
func ClampSeconds(seconds int) int {
	switch {
	case seconds < MinSeconds:
		return MinSeconds
	case seconds > MaxSeconds:
		return MaxSeconds
	default:
		return seconds
	}
}

// Resolution derives frame dimensions from the aspect ratio and short side.
// Dimensions are even, as video codecs require.
func Resolution(aspect domain.AspectRatio, shortSide int) (int, int) {
	long := shortSide * 16 / 9
	long -= long % 2
	short := shortSide - shortSide%2
	switch aspect {
	case domain.AspectPortrait:
		return short, long
	case domain.AspectSquare:
		return short, short
	default:
		return long, short
	}
}

// Scene holds everything derived from the inputs once, so each frame is a pure
// function of its index.
type Scene struct {
	Width   int
	Height  int
	Seconds int

	top, bottom color.RGBA
	scale       int
	title       textSprite
	titleShadow textSprite
	lines       []textSprite
	lineShadows []textSprite
	photo       *image.RGBA
}

// NewScene prepares a scene for in at the renderer's resolution.
func (r *Renderer) NewScene(in Input) *Scene {
	w, h := Resolution(in.Aspect, r.shortSide)
	s := &Scene{Width: w, Height: h, Seconds: ClampSeconds(in.Seconds)}

	seed := sha256.Sum256([]byte(in.Prompt))
	s.top = muted(seed[0], seed[1], seed[2], 40)
	s.bottom = muted(seed[3], seed[4], seed[5], 90)

	short := min(w, h)
	s.scale = max(1, short/240)
	white := color.RGBA{255, 255, 255, 255}
	black := color.RGBA{0, 0, 0, 160}

	s.title = newTextSprite(r.brand, white)
	s.titleShadow = newTextSprite(r.brand, black)

	text := TitleCase(FoldPrompt(in.Prompt))
	perLine := (w - w/8) / (glyphWidth * s.scale)
	for _, line := range WrapText(text, perLine) {
		s.lines = append(s.lines, newTextSprite(line, white))
		s.lineShadows = append(s.lineShadows, newTextSprite(line, black))
	}

	if len(in.Image) > 0 {
		if _, err := CheckImage(in.Image); err != nil {
			r.logger.Warn().Err(err).Msg("synthesis: skipping source image")
		} else if src, _, err := image.Decode(bytes.NewReader(in.Image)); err == nil {
			s.photo = fitInto(src, w/2, h/2)
		}
	}
	return s
}

// TotalFrames is fps × seconds.
func (s *Scene) TotalFrames(fps int) int {
	return fps * s.Seconds
}

// Frame renders frame i of n.
func (s *Scene) Frame(i, n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	s.paintGradient(img, i)

	if s.photo != nil {
		x := s.Width/4 + int(math.Round(50*math.Sin(0.1*float64(i))))
		y := s.Height/4 + int(math.Round(30*math.Cos(0.1*float64(i))))
		pb := s.photo.Bounds()
		// Centre the fitted image inside its half-frame slot.
		x += (s.Width/2 - pb.Dx()) / 2
		y += (s.Height/2 - pb.Dy()) / 2
		draw.Draw(img, image.Rect(x, y, x+pb.Dx(), y+pb.Dy()), s.photo, pb.Min, draw.Over)
	}

	titleScale := s.scale * 2
	titleY := s.Height / 12
	tx := (s.Width - s.title.width(titleScale)) / 2
	drawShadowed(img, s.title, s.titleShadow, tx, titleY, titleScale)

	s.drawPrompt(img, i, n)

	footer := newTextSprite(fmt.Sprintf("Frame %d/%d", i+1, n), color.RGBA{230, 230, 230, 255})
	footer.drawCentered(img, s.Width, s.Height-s.Height/12-glyphHeight*s.scale, s.scale)
	return img
}

// drawPrompt reveals the prompt character by character over the first 60% of the
// clip while the block bobs gently.
func (s *Scene) drawPrompt(img *image.RGBA, i, n int) {
	total := 0
	for _, l := range s.lines {
		total += l.img.Bounds().Dx() / glyphWidth
	}
	revealFrames := max(1, n*6/10)
	visible := total
	if i < revealFrames {
		visible = total * (i + 1) / revealFrames
	}

	lineHeight := (glyphHeight + 4) * s.scale
	blockHeight := lineHeight * len(s.lines)
	bob := int(math.Round(float64(6*s.scale) * math.Sin(0.2*float64(i))))
	y := s.Height*3/5 - blockHeight/2 + bob

	for idx, line := range s.lines {
		chars := line.img.Bounds().Dx() / glyphWidth
		show := min(chars, visible)
		visible -= show
		if show <= 0 {
			break
		}
		x := (s.Width - line.width(s.scale)) / 2
		drawShadowed(img, line.prefix(show), s.lineShadows[idx].prefix(show), x, y+idx*lineHeight, s.scale)
	}
}

// paintGradient fills img with a vertical gradient that drifts with the frame index.
func (s *Scene) paintGradient(img *image.RGBA, i int) {
	drift := 0.15 * math.Sin(0.05*float64(i))
	for y := 0; y < s.Height; y++ {
		t := float64(y)/float64(max(1, s.Height-1)) + drift
		t = math.Max(0, math.Min(1, t))
		c := lerp(s.top, s.bottom, t)
		row := img.Pix[y*img.Stride : y*img.Stride+s.Width*4]
		for x := 0; x < len(row); x += 4 {
			row[x] = c.R
			row[x+1] = c.G
			row[x+2] = c.B
			row[x+3] = 255
		}
	}
}

// fitInto scales src to fit inside w×h preserving its aspect ratio.
func fitInto(src image.Image, w, h int) *image.RGBA {
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 || w <= 0 || h <= 0 {
		return nil
	}
	ratio := math.Min(float64(w)/float64(sb.Dx()), float64(h)/float64(sb.Dy()))
	dw := max(1, int(float64(sb.Dx())*ratio))
	dh := max(1, int(float64(sb.Dy())*ratio))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, xdraw.Src, nil)
	return dst
}

// muted maps seed bytes into a darker band so white text stays readable.
func muted(r, g, b byte, floor int) color.RGBA {
	scale := func(v byte) uint8 {
		return uint8(floor + int(v)*(150-floor/2)/255)
	}
	return color.RGBA{scale(r), scale(g), scale(b), 255}
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}
