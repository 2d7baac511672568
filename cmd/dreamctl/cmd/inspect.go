package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dreamframe/internal/synthesis"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Print the headers of a placeholder AVI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		info, err := synthesis.ReadAVIInfo(data)
		if err != nil {
			return err
		}
		cmd.Printf("%s%s%s\n", colorBold, args[0], colorReset)
		cmd.Printf("%sCodec:%s       %s\n", colorDim, colorReset, info.Handler)
		cmd.Printf("%sResolution:%s  %dx%d\n", colorDim, colorReset, info.Width, info.Height)
		cmd.Printf("%sFrames:%s      %d @ %.2f fps\n", colorDim, colorReset, info.TotalFrames, info.FPS())
		cmd.Printf("%sDuration:%s    %.2fs\n", colorDim, colorReset, info.Seconds())
		cmd.Printf("%sStreams:%s     %d\n", colorDim, colorReset, info.Streams)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
