package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("DREAMFRAME")
	viper.AutomaticEnv()
}

// execute runs rootCmd with args after restoring every flag to its default.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_DefaultURL(t *testing.T) {
	resetViper()

	cmd := &cobra.Command{}
	cmd.PersistentFlags().String("url", "http://localhost:8080", "DreamFrame API URL")
	viper.BindPFlag("url", cmd.PersistentFlags().Lookup("url"))

	if url := viper.GetString("url"); url != "http://localhost:8080" {
		t.Errorf("expected default url http://localhost:8080, got: %s", url)
	}
}

func TestRootCommand_EnvVarBinding(t *testing.T) {
	resetViper()
	t.Setenv("DREAMFRAME_URL", "http://dreamframe:9000")

	if url := viper.GetString("url"); url != "http://dreamframe:9000" {
		t.Errorf("expected url from env var, got: %s", url)
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := map[string]bool{"submit": false, "status": false, "render": false, "inspect": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q subcommand to be registered", name)
		}
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	resetViper()
	rootCmd.SetArgs([]string{"unknown-command-xyz"})

	if err := Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRootCommand_CustomConfigFile(t *testing.T) {
	resetViper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "dreamctl-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.WriteString("url: http://from-config:7000\n")
	tmpFile.Close()

	cfgFile = tmpFile.Name()
	defer func() { cfgFile = "" }()
	initConfig()

	if url := viper.GetString("url"); url != "http://from-config:7000" {
		t.Errorf("expected url from config file, got: %s", url)
	}
}
