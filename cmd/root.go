package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andnich05/CodeEntropyMeter/cmd/about"
	"github.com/andnich05/CodeEntropyMeter/cmd/config"
	"github.com/andnich05/CodeEntropyMeter/cmd/devices"
	"github.com/andnich05/CodeEntropyMeter/cmd/meter"
	"github.com/andnich05/CodeEntropyMeter/internal/buildinfo"
	"github.com/andnich05/CodeEntropyMeter/internal/conf"
	"github.com/andnich05/CodeEntropyMeter/internal/errors"
	"github.com/andnich05/CodeEntropyMeter/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(build *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "code-entropy-meter",
		Short:        "Audio level, bit usage and entropy meter",
		Version:      build.GetVersion(),
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	aboutCmd := about.Command(build)
	rootCmd.AddCommand(
		meter.Command(settings, build),
		devices.Command(settings),
		config.Command(settings),
		aboutCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// about prints static information only
		if cmd.Name() == aboutCmd.Name() {
			return nil
		}
		return initialize(settings, configFile, build)
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		errors.FlushSentry(sentryFlushTimeout)
		_ = logger.Global().Flush()
	}

	return rootCmd
}

// initialize loads the settings, then sets up logging and error telemetry.
// It runs before any subcommand except about.
func initialize(settings *conf.Settings, configFile string, build *buildinfo.Context) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, build.GetVersion()); err != nil {
			central.Module("main").Warn("error telemetry disabled", logger.Error(err))
		}
	}

	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/"+conf.AppName+", /etc/"+conf.AppName+")")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
