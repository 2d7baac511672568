package synthesis

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os/exec"
	"strings"
	"testing"

	"dreamframe/internal/domain"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 120, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestFramesAreDeterministic(t *testing.T) {
	r := NewRenderer(Options{ShortSide: 144, FPS: 6})
	in := Input{Prompt: "Crème brûlée on a café table", Image: testPNG(t), Seconds: 5, Aspect: domain.AspectLandscape}

	a := r.NewScene(in)
	b := r.NewScene(in)
	n := a.TotalFrames(6)
	if n != 30 {
		t.Fatalf("frames = %d, want 30", n)
	}
	for i := 0; i < n; i++ {
		fa, fb := a.Frame(i, n), b.Frame(i, n)
		if !bytes.Equal(fa.Pix, fb.Pix) {
			t.Fatalf("frame %d differs between renders", i)
		}
	}
	if bytes.Equal(a.Frame(0, n).Pix, a.Frame(n-1, n).Pix) {
		t.Fatal("first and last frame should differ")
	}
}

func TestRenderIsByteIdentical(t *testing.T) {
	r := NewRenderer(Options{ShortSide: 96, FPS: 4})
	in := Input{Prompt: "neon city at night", Image: testPNG(t), Seconds: 5, Aspect: domain.AspectSquare}

	first, err := r.Render(context.Background(), in)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := r.Render(context.Background(), in)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatal("renders of identical input must be byte-identical")
	}

	other, err := r.Render(context.Background(), Input{Prompt: "neon city at dawn", Seconds: 5, Aspect: domain.AspectSquare})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if bytes.Equal(first.Data, other.Data) {
		t.Fatal("different prompts should produce different videos")
	}
}

func TestSunsetOverOceanPlaceholder(t *testing.T) {
	r := NewRenderer(Options{ShortSide: 180})
	req := domain.NewGenerationRequest("req-sunset", "", "sunset over ocean", 5, "16:9", nil)

	payload, err := r.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if payload.MIME != MIMEAVI {
		t.Fatalf("mime = %q", payload.MIME)
	}
	info, err := ReadAVIInfo(payload.Data)
	if err != nil {
		t.Fatalf("read avi: %v", err)
	}
	if info.Width != 320 || info.Height != 180 {
		t.Fatalf("resolution = %dx%d, want 320x180", info.Width, info.Height)
	}
	if math.Abs(info.Seconds()-5) > 0.05 {
		t.Fatalf("duration = %.3fs, want ~5s", info.Seconds())
	}
	if info.TotalFrames != 120 || info.Handler != "MJPG" || info.Streams != 1 {
		t.Fatalf("unexpected header %+v", info)
	}
}

func TestAVIFramesDecodeAsJPEG(t *testing.T) {
	r := NewRenderer(Options{ShortSide: 64, FPS: 2})
	vid, err := r.Render(context.Background(), Input{Prompt: "a red bicycle", Seconds: 5})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	moviAt := bytes.Index(vid.Data, []byte("movi"))
	idxAt := bytes.LastIndex(vid.Data, []byte("idx1"))
	if moviAt < 0 || idxAt < 0 {
		t.Fatal("missing movi or idx1")
	}
	entries := int(binary.LittleEndian.Uint32(vid.Data[idxAt+4:])) / idxEntrySize
	if entries != vid.Frames {
		t.Fatalf("index entries = %d, frames = %d", entries, vid.Frames)
	}
	for e := 0; e < entries; e++ {
		entry := vid.Data[idxAt+8+e*idxEntrySize:]
		offset := int(binary.LittleEndian.Uint32(entry[8:]))
		size := int(binary.LittleEndian.Uint32(entry[12:]))
		chunk := vid.Data[moviAt+offset:]
		if string(chunk[:4]) != "00dc" {
			t.Fatalf("entry %d points at %q", e, chunk[:4])
		}
		img, err := jpeg.Decode(bytes.NewReader(chunk[8 : 8+size]))
		if err != nil {
			t.Fatalf("frame %d: %v", e, err)
		}
		if img.Bounds().Dx() != vid.Width || img.Bounds().Dy() != vid.Height {
			t.Fatalf("frame %d has size %v", e, img.Bounds())
		}
	}
}

func TestUndecodableImageIsIgnored(t *testing.T) {
	r := NewRenderer(Options{ShortSide: 64, FPS: 1})
	with := r.NewScene(Input{Prompt: "p", Image: []byte("not an image"), Seconds: 5})
	without := r.NewScene(Input{Prompt: "p", Seconds: 5})
	if !bytes.Equal(with.Frame(0, 5).Pix, without.Frame(0, 5).Pix) {
		t.Fatal("garbage image should render like no image")
	}
}

func TestRenderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRenderer(Options{ShortSide: 64}).Render(ctx, Input{Prompt: "x", Seconds: 5}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestClampSecondsAndResolution(t *testing.T) {
	for in, want := range map[int]int{0: 5, 3: 5, 5: 5, 8: 8, 10: 10, 30: 10} {
		if got := ClampSeconds(in); got != want {
			t.Fatalf("ClampSeconds(%d) = %d, want %d", in, got, want)
		}
	}
	cases := []struct {
		aspect domain.AspectRatio
		w, h   int
	}{
		{domain.AspectLandscape, 1280, 720},
		{domain.AspectPortrait, 720, 1280},
		{domain.AspectSquare, 720, 720},
	}
	for _, tc := range cases {
		if w, h := Resolution(tc.aspect, 720); w != tc.w || h != tc.h {
			t.Fatalf("Resolution(%s) = %dx%d, want %dx%d", tc.aspect, w, h, tc.w, tc.h)
		}
	}
}

func TestFoldPrompt(t *testing.T) {
	if got := FoldPrompt("  Crème   brûlée\tnaïve  "); got != "Creme brulee naive" {
		t.Fatalf("FoldPrompt = %q", got)
	}
	long := strings.Repeat("a", 80)
	if got := FoldPrompt(long); got != strings.Repeat("a", 50)+"..." {
		t.Fatalf("FoldPrompt long = %q", got)
	}
	if got := FoldPrompt("日本の夏 summer"); got != "summer" {
		t.Fatalf("FoldPrompt non-latin = %q", got)
	}
	if got := TitleCase("sunset over ocean"); got != "Sunset Over Ocean" {
		t.Fatalf("TitleCase = %q", got)
	}
}

func TestWrapText(t *testing.T) {
	lines := WrapText("sunset over the quiet ocean", 11)
	want := []string{"sunset over", "the quiet", "ocean"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("WrapText = %q", lines)
	}
	if got := WrapText("abcdefghij", 4); strings.Join(got, "|") != "abcd|efgh|ij" {
		t.Fatalf("WrapText long word = %q", got)
	}
}

func TestEncodeAVIRejectsEmpty(t *testing.T) {
	if _, err := EncodeAVI(nil, 10, 10, 24); err != ErrEmptyVideo {
		t.Fatalf("expected ErrEmptyVideo, got %v", err)
	}
	if _, err := ReadAVIInfo([]byte("garbage")); err == nil {
		t.Fatal("expected error for garbage")
	}
}

func TestTranscoderFailureKeepsAVI(t *testing.T) {
	r := NewRenderer(Options{ShortSide: 64, FPS: 1, Transcoder: NewTranscoder("/nonexistent/ffmpeg")})
	vid, err := r.Render(context.Background(), Input{Prompt: "x", Seconds: 5})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if vid.MIME != MIMEAVI {
		t.Fatalf("mime = %q, want avi fallback", vid.MIME)
	}
	if NewTranscoder("  ") != nil {
		t.Fatal("empty path should disable transcoding")
	}
}

func TestTranscoderWithFFmpeg(t *testing.T) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	if out, err := exec.Command(path, "-hide_banner", "-encoders").Output(); err != nil || !strings.Contains(string(out), "libx264") {
		t.Skip("ffmpeg lacks libx264")
	}
	r := NewRenderer(Options{ShortSide: 64, FPS: 4, Transcoder: NewTranscoder(path)})
	vid, err := r.Render(context.Background(), Input{Prompt: "x", Seconds: 5})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if vid.MIME != MIMEMP4 || len(vid.Data) < 8 || string(vid.Data[4:8]) != "ftyp" {
		t.Fatalf("expected mp4 output, got %q", vid.MIME)
	}
}

// pngHeaderOnly returns a PNG signature and IHDR chunk declaring a w×h grayscale
// canvas. No pixel data follows, so only DecodeConfig can read it.
func pngHeaderOnly(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth; color type 0, deflate, no filter, no interlace
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestCheckImage(t *testing.T) {
	cfg, err := CheckImage(testPNG(t))
	if err != nil || cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("CheckImage(small) = %+v, %v", cfg, err)
	}

	if _, err := CheckImage(pngHeaderOnly(12000, 12000)); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	if _, err := CheckImage(pngHeaderOnly(6000, 6000)); err != nil {
		t.Fatalf("36 megapixels should pass, got %v", err)
	}
	if _, err := CheckImage([]byte("not an image")); err == nil || errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected a header error, got %v", err)
	}
}

func TestNewSceneSkipsOversizedImage(t *testing.T) {
	r := NewRenderer(Options{ShortSide: 72, FPS: 4})

	if s := r.NewScene(Input{Prompt: "p", Image: testPNG(t)}); s.photo == nil {
		t.Fatal("small image should be composited")
	}
	s := r.NewScene(Input{Prompt: "p", Image: pngHeaderOnly(12000, 12000)})
	if s.photo != nil {
		t.Fatal("oversized image must not be decoded")
	}
	if frame := s.Frame(0, s.TotalFrames(4)); frame.Bounds().Dx() != s.Width {
		t.Fatalf("frame width = %d, want %d", frame.Bounds().Dx(), s.Width)
	}
}
