package main

import (
	"github.com/spf13/cobra"

	"github.com/taoyao-code/nova-gateway/internal/app/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway (HTTP API, event stream, device session)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return bootstrap.Run(cfg, logger)
	},
}
