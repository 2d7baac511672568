package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dreamctl",
	Short: "dreamctl talks to the DreamFrame video generation service",
	Long: `dreamctl is the command-line interface for DreamFrame.

DreamFrame turns a prompt and an optional still image into a short video. Requests
are tried against the configured remote providers in priority order and fall back
to a locally rendered placeholder when every provider fails.

Common workflows:

  Queue a generation:
    dreamctl submit --prompt "sunset over the ocean" --image photo.jpg

  Check a request:
    dreamctl status <request-id>

  Render the offline placeholder without the service:
    dreamctl render --prompt "sunset over the ocean" --out sunset.avi

  Inspect a rendered AVI:
    dreamctl inspect sunset.avi

Configuration:
  DREAMFRAME_URL    API endpoint (default: http://localhost:8080)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".dreamctl")
		viper.SetConfigType("yaml")
	}

	// DREAMFRAME_URL and friends
	viper.SetEnvPrefix("DREAMFRAME")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dreamctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "DreamFrame API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
