package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tingly-dev/anthropic-proxy/internal/config"
	"github.com/tingly-dev/anthropic-proxy/internal/server"
	"github.com/tingly-dev/anthropic-proxy/internal/upstream"
)

// Build information variables, set by the compiler via -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "anthropic-proxy",
	Short: "Anthropic Messages API proxy for OpenAI-compatible backends",
	Long: `anthropic-proxy accepts Anthropic Messages API requests and forwards
them to an OpenAI Chat Completions-compatible upstream, translating
requests, responses and streaming events in both directions.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			logrus.SetLevel(logrus.TraceLevel)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("verbose") {
			logrus.SetLevel(cfg.LogLevel)
		}
		applyFlagOverrides(cmd.Flags(), cfg)

		server.Version = version
		srv := server.New(cfg, upstream.NewClient(cfg))
		return srv.Run()
	},
}

func applyFlagOverrides(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.Flags().String("host", "", "bind address (overrides SERVER_HOST)")
	rootCmd.Flags().Int("port", 0, "bind port (overrides SERVER_PORT)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("anthropic-proxy\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Git Commit: %s\n", gitCommit)
			fmt.Printf("Build Time: %s\n", buildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
