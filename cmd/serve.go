package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mediavault"
	"mediavault/internal/config"
)

func init() {
	command := &cobra.Command{
		Use:   "serve",
		Short: "serve mediavault server",
		Long:  `serve mediavault server`,
		Run:   mediavault.Service.ServeCommand,
	}

	configs := []config.Config{
		mediavault.Service.ServerConfig,
		mediavault.Service.MediaConfig,
	}

	cobra.OnInitialize(func() {
		for _, cfg := range configs {
			cfg.Set()
		}
		mediavault.Service.Preflight()
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run serve command")
		}
	}

	rootCmd.AddCommand(command)
}
