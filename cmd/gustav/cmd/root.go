// Package cmd holds the gustav command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gustavlms/gustav/app"
	"github.com/gustavlms/gustav/config"
	"github.com/gustavlms/gustav/version"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "gustav",
	Short:         "Gustav LMS identity service",
	Version:       version.Get().Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default: ./config.yml when present)")
	flags.StringVar(&envFile, "env-file", "", "dotenv file (default: ./.env when present)")
}

func loadConfig() (*app.Config, error) {
	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	if envFile != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}
	cfg, err := app.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
