// Package config implements the command that prints the configuration.
package config

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andnich05/CodeEntropyMeter/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	var showDefault bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: "Prints the configuration after applying the config file, environment " +
			"variables and flags. Secrets are redacted. With --default the built-in " +
			"config.yaml is printed instead, as a starting point for a config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showDefault {
				return WriteDefault(cmd.OutOrStdout())
			}
			return WriteEffective(cmd.OutOrStdout(), settings)
		},
	}

	cmd.Flags().BoolVar(&showDefault, "default", false, "Print the default config.yaml")

	return cmd
}

// WriteDefault writes the embedded default config file.
func WriteDefault(w io.Writer) error {
	data, err := conf.DefaultConfig()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, data)
	return err
}

// WriteEffective writes settings as YAML with secrets redacted.
func WriteEffective(w io.Writer, settings *conf.Settings) error {
	redacted := settings.Redacted()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return fmt.Errorf("error encoding settings: %w", err)
	}
	return enc.Close()
}
