package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/headlight-network/headlight/headlight-app/config"
	"github.com/headlight-network/headlight/log"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "headlight",
		Short: "Headlight",
		Long:  "A light client anchoring an externally-proven consensus chain.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config",
		"headlight-app/configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// API flags
	rootCmd.PersistentFlags().String("api-listen-addr", "", "HTTP API listen address")

	// Gateway flags
	rootCmd.PersistentFlags().String("gateway-endpoint", "", "proof gateway endpoint URL")

	// Metrics flags
	rootCmd.PersistentFlags().Bool("metrics", false, "enable metrics")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "headlight-app/configs/config.yaml"
	}
}

func runApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)

	logger := log.New(cfg.Log.Level, cfg.Log.Pretty)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	logger.Info().
		Str("config_file", cfgFile).
		Str("api_listen_addr", cfg.API.ListenAddr).
		Str("gateway_endpoint", cfg.Gateway.Endpoint).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Printf("Headlight\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}
	if cmd.Flag("api-listen-addr").Changed {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("api-listen-addr")
	}
	if cmd.Flag("gateway-endpoint").Changed {
		cfg.Gateway.Endpoint, _ = cmd.Flags().GetString("gateway-endpoint")
	}
	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}
}
