package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Queue a video generation",
	Long: `Upload a prompt and an optional still image to DreamFrame. The request is queued and
its id is printed; follow it with "dreamctl status <id>" or pass --wait.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, _ := cmd.Flags().GetString("prompt")
		image, _ := cmd.Flags().GetString("image")
		duration, _ := cmd.Flags().GetInt("duration")
		aspect, _ := cmd.Flags().GetString("aspect")
		orderID, _ := cmd.Flags().GetString("order-id")
		wait, _ := cmd.Flags().GetBool("wait")
		interval, _ := cmd.Flags().GetDuration("interval")

		if prompt == "" {
			return errors.New("--prompt is required")
		}

		client := NewClient(viper.GetString("url"))
		accepted, err := client.Submit(SubmitRequest{
			Prompt:      prompt,
			ImagePath:   image,
			Duration:    duration,
			AspectRatio: aspect,
			OrderID:     orderID,
		})
		if err != nil {
			cmd.PrintErrf("Failed to submit: %v\n", err)
			return err
		}

		cmd.Printf("%s Queued generation %s%s%s\n", statusIcon(accepted.Status), colorBold, accepted.ID, colorReset)
		if !wait {
			cmd.Printf("%sTrack it with:%s dreamctl status %s\n", colorDim, colorReset, accepted.ID)
			return nil
		}

		gen, err := waitForGeneration(cmd, client, accepted.ID, interval)
		if err != nil {
			return err
		}
		printGeneration(cmd, gen)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringP("prompt", "p", "", "text prompt (required)")
	submitCmd.Flags().StringP("image", "i", "", "path to a source image")
	submitCmd.Flags().IntP("duration", "d", 0, "requested duration in seconds")
	submitCmd.Flags().StringP("aspect", "a", "", "aspect ratio (16:9, 9:16 or 1:1)")
	submitCmd.Flags().String("order-id", "", "caller reference stored with the request")
	submitCmd.Flags().Bool("wait", false, "poll until the generation finishes")
	submitCmd.Flags().Duration("interval", 0, "poll interval with --wait (default 5s)")

	rootCmd.AddCommand(submitCmd)
}
