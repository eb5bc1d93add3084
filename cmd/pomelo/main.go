// Command pomelo is a CLI for a remote cloud drive: it mirrors folder
// metadata in a local cache and performs create, rename, delete, copy,
// move, download and chunked upload operations against the drive API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pomelodrive/pomelo/internal/auth"
	"github.com/pomelodrive/pomelo/internal/config"
	"github.com/pomelodrive/pomelo/internal/drive"
	"github.com/pomelodrive/pomelo/internal/logging"
	"github.com/pomelodrive/pomelo/internal/metrics"
	"github.com/pomelodrive/pomelo/internal/rest"
)

var (
	cfgPath   string
	flagToken string

	cfg      *config.Config
	provider *auth.Provider
	service  *drive.Service
)

func main() {
	root := &cobra.Command{
		Use:           "pomelo",
		Short:         "Cloud drive client with a coherent local metadata cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "config file path")
	root.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token (overrides the token file)")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newLsCmd(),
		newStatCmd(),
		newMkdirCmd(),
		newUploadCmd(),
		newDownloadCmd(),
		newRenameCmd(),
		newRmCmd(),
		newCpCmd(),
		newMvCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.pomelo/config.yaml"
}

// setup loads configuration and wires the auth source, transport and drive
// service together.
func setup() error {
	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logging.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	provider = auth.NewProvider(auth.Config{
		TokenFile:    cfg.TokenFile,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})

	var source auth.Source = provider
	if flagToken != "" {
		source = auth.StaticSource(flagToken)
	}

	client := rest.New(rest.Config{
		Timeout: cfg.HTTPTimeout.Std(),
		Source:  source,
	})

	service = drive.NewService(client, drive.Options{
		BaseURL:      cfg.BaseURL,
		ChunkSize:    cfg.ChunkSize,
		PollInterval: cfg.PollInterval.Std(),
	})
	return nil
}
