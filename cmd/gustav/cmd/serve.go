package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gustavlms/gustav/app"
)

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Server.Port = port
		}
		g, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return g.Run(cmd.Context())
	},
}
