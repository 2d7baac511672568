package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultWaitInterval = 5 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status [request_id]",
	Short: "Get the status of a generation",
	Long: `Show a generation's lifecycle state (QUEUED, RUNNING, SUCCEEDED, FAILED), the provider
that produced the video, its location and the per-provider attempt log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")
		interval, _ := cmd.Flags().GetDuration("interval")

		client := NewClient(viper.GetString("url"))
		var (
			gen *Generation
			err error
		)
		if wait {
			gen, err = waitForGeneration(cmd, client, args[0], interval)
		} else {
			gen, err = client.Get(args[0])
		}
		if err != nil {
			cmd.PrintErrf("Failed to get generation: %v\n", err)
			return err
		}
		printGeneration(cmd, gen)
		return nil
	},
}

func waitForGeneration(cmd *cobra.Command, client *Client, id string, interval time.Duration) (*Generation, error) {
	if interval <= 0 {
		interval = defaultWaitInterval
	}
	ctx := cmd.Context()
	for {
		gen, err := client.Get(id)
		if err != nil {
			return nil, err
		}
		if finished(gen.Status) {
			return gen, nil
		}
		if ctx == nil {
			time.Sleep(interval)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func finished(status string) bool {
	return status == "SUCCEEDED" || status == "FAILED"
}

func printGeneration(cmd *cobra.Command, g *Generation) {
	cmd.Printf("%s %sGeneration Details%s\n", statusIcon(g.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, g.ID)
	if g.OrderID != "" {
		cmd.Printf("%sOrder:%s       %s\n", colorDim, colorReset, g.OrderID)
	}
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(g.Status))
	cmd.Printf("%sPrompt:%s      %s\n", colorDim, colorReset, g.Prompt)
	cmd.Printf("%sShape:%s       %ds %s\n", colorDim, colorReset, g.Duration, g.AspectRatio)
	if g.ProviderUsed != "" {
		cmd.Printf("%sProvider:%s    %s\n", colorDim, colorReset, g.ProviderUsed)
	}
	if g.VideoLocation != "" {
		cmd.Printf("%sVideo:%s       %s%s%s\n", colorDim, colorReset, colorCyan, g.VideoLocation, colorReset)
	}
	if g.ErrorDetail != "" {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, g.ErrorDetail, colorReset)
	}
	if g.ElapsedMS > 0 {
		cmd.Printf("%sElapsed:%s     %s\n", colorDim, colorReset, formatDuration(time.Duration(g.ElapsedMS)*time.Millisecond))
	}
	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, g.CreatedAt.Format(time.RFC1123))

	if len(g.Attempts) == 0 {
		return
	}
	cmd.Printf("%sAttempts:%s\n", colorDim, colorReset)
	for i, a := range g.Attempts {
		line := fmt.Sprintf("  %d. %-12s %-14s %s", i+1, a.Provider, a.Outcome, formatDuration(a.Elapsed))
		if a.Error != "" {
			line += " " + colorDim + a.Error + colorReset
		}
		cmd.Println(line)
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "SUCCEEDED":
		return colorGreen + "✓" + colorReset
	case "FAILED":
		return colorRed + "✗" + colorReset
	case "RUNNING":
		return colorYellow + "⏳" + colorReset
	case "QUEUED":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	switch status {
	case "SUCCEEDED":
		return statusIcon(status) + " " + colorGreen + status + colorReset
	case "FAILED":
		return statusIcon(status) + " " + colorRed + status + colorReset
	case "RUNNING":
		return statusIcon(status) + " " + colorYellow + status + colorReset
	case "QUEUED":
		return statusIcon(status) + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	statusCmd.Flags().Bool("wait", false, "poll until the generation finishes")
	statusCmd.Flags().Duration("interval", 0, "poll interval with --wait (default 5s)")

	rootCmd.AddCommand(statusCmd)
}
