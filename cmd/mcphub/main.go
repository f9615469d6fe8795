package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vlazic/mcphub/internal/config"
	"github.com/vlazic/mcphub/internal/models"
	"github.com/vlazic/mcphub/internal/services"
)

type rootOptions struct {
	settingsPath string
	verbose      bool
}

// app holds the services built once per process from the loaded settings.
type app struct {
	settings     *models.Settings
	settingsPath string
	logger       *zap.Logger
	metrics      *prometheus.Registry
	clients      *services.ClientConfigService
	manager      *services.MCPManagerService
	registry     *services.RegistryClient
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	root := &cobra.Command{
		Use:           "mcphub",
		Short:         "Install, register and run local MCP servers for Claude Desktop",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.settingsPath, "config", "c", "", "path to settings file (default: ~/.mcphub/settings.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(a),
		newInstallCmd(a),
		newUninstallCmd(a),
		newListCmd(a),
		newStatusCmd(a),
		newEnableCmd(a, true),
		newEnableCmd(a, false),
		newConfigureCmd(a),
		newStartCmd(a),
		newStopCmd(a),
		newSyncCmd(a),
		newRegistryCmd(a),
	)

	return root
}

func (a *app) init(opts *rootOptions) error {
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	settings, settingsPath, err := config.LoadSettings(opts.settingsPath)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	a.logger = logger
	a.settings = settings
	a.settingsPath = settingsPath
	a.metrics = prometheus.NewRegistry()
	a.clients = services.NewClientConfigService(settings.ClientConfigPath, logger)
	a.manager = services.NewMCPManagerService(
		services.NewStateStore(settings.StateFile),
		a.clients,
		services.NewInstaller(settings, logger),
		services.NewProcessService(settings, logger),
		settings.ServersDir,
		services.NewMetrics(a.metrics),
		logger,
	)
	a.registry = services.NewRegistryClient(
		settings.RegistryURL,
		filepath.Join(settings.DataDir, "registry_cache.yaml"),
		settings.RegistryCacheTTL,
		nil,
		logger,
	)

	logger.Debug("settings loaded",
		zap.String("path", settingsPath),
		zap.String("state_file", settings.StateFile),
		zap.String("client_config", settings.ClientConfigPath))
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	return cfg.Build()
}
