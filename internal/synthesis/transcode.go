package synthesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Transcoder converts AVI placeholders to H.264 MP4 with an ffmpeg binary.
type Transcoder struct {
	Path string
}

// NewTranscoder returns nil when path is empty so callers can pass it straight to Options.
func NewTranscoder(path string) *Transcoder {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &Transcoder{Path: path}
}

// Transcode runs ffmpeg on a scratch directory and returns the MP4 bytes.
func (t *Transcoder) Transcode(ctx context.Context, avi []byte) ([]byte, error) {
	if t == nil || t.Path == "" {
		return nil, errors.New("synthesis: ffmpeg path not configured")
	}
	dir, err := os.MkdirTemp("", "dreamframe-transcode-*")
	if err != nil {
		return nil, fmt.Errorf("synthesis: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.avi")
	out := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(in, avi, 0o600); err != nil {
		return nil, fmt.Errorf("synthesis: write scratch input: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Path,
		"-y", "-loglevel", "error",
		"-i", in,
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		out,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("synthesis: ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("synthesis: read ffmpeg output: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("synthesis: ffmpeg produced an empty file")
	}
	return data, nil
}
