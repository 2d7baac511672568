package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dreamframe/internal/domain"
	"dreamframe/internal/synthesis"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the offline placeholder video locally",
	Long: `Render the same placeholder the worker falls back to when every provider fails.
Output is a Motion-JPEG AVI, or an MP4 when --ffmpeg points at an ffmpeg binary.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, _ := cmd.Flags().GetString("prompt")
		imagePath, _ := cmd.Flags().GetString("image")
		duration, _ := cmd.Flags().GetInt("duration")
		aspect, _ := cmd.Flags().GetString("aspect")
		fps, _ := cmd.Flags().GetInt("fps")
		shortSide, _ := cmd.Flags().GetInt("short-side")
		out, _ := cmd.Flags().GetString("out")
		ffmpeg, _ := cmd.Flags().GetString("ffmpeg")

		if strings.TrimSpace(out) == "" {
			return errors.New("--out is required")
		}

		in := synthesis.Input{
			Prompt:  prompt,
			Seconds: duration,
			Aspect:  domain.ParseAspectRatio(aspect),
		}
		if imagePath != "" {
			data, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			in.Image = data
		}

		renderer := synthesis.NewRenderer(synthesis.Options{
			FPS:        fps,
			ShortSide:  shortSide,
			Transcoder: synthesis.NewTranscoder(ffmpeg),
		})
		vid, err := renderer.Render(cmd.Context(), in)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		if err := os.WriteFile(out, vid.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}

		cmd.Printf("%s Rendered %s%s%s\n", statusIcon("SUCCEEDED"), colorBold, out, colorReset)
		cmd.Printf("%sFormat:%s      %s\n", colorDim, colorReset, vid.MIME)
		cmd.Printf("%sResolution:%s  %dx%d\n", colorDim, colorReset, vid.Width, vid.Height)
		cmd.Printf("%sFrames:%s      %d @ %d fps\n", colorDim, colorReset, vid.Frames, vid.FPS)
		cmd.Printf("%sSize:%s        %d bytes\n", colorDim, colorReset, len(vid.Data))
		return nil
	},
}

func init() {
	renderCmd.Flags().StringP("prompt", "p", "", "text prompt drawn on the placeholder")
	renderCmd.Flags().StringP("image", "i", "", "path to a source image used as the backdrop")
	renderCmd.Flags().IntP("duration", "d", synthesis.MinSeconds, "duration in seconds (clamped to 5..10)")
	renderCmd.Flags().StringP("aspect", "a", string(domain.AspectLandscape), "aspect ratio (16:9, 9:16 or 1:1)")
	renderCmd.Flags().Int("fps", synthesis.DefaultFPS, "frames per second")
	renderCmd.Flags().Int("short-side", synthesis.DefaultShortSide, "pixels on the short edge")
	renderCmd.Flags().StringP("out", "o", "", "output file (required)")
	renderCmd.Flags().String("ffmpeg", "", "ffmpeg binary used to transcode to MP4")

	rootCmd.AddCommand(renderCmd)
}
