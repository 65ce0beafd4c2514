package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wfunc/tugofwar/config"
	"github.com/wfunc/tugofwar/logger"
	"github.com/wfunc/tugofwar/persistence"
	"github.com/wfunc/tugofwar/server"
)

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tugofwar",
		Short:         "Realtime tug-of-war rooms over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       server.Version,
		RunE:          run,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	if env := os.Getenv("TUGOFWAR_CONFIG"); env != "" && !cmd.Flags().Changed("config") {
		path = env
	}

	cfg, err := config.LoadConfig(path, cmd.Flags())
	if err != nil {
		return err
	}

	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	var store persistence.MatchStore
	if cfg.Database.Enabled {
		store, err = persistence.Open(cfg.Database)
		if err != nil {
			return err
		}
		logger.Log.Infof("Archiving matches with the %s driver", cfg.Database.Driver)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gameServer := server.NewGameServer(cfg, store)
	logger.Log.Infof("Starting tugofwar %s", server.Version)
	return gameServer.Start(ctx)
}
