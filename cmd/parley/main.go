package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"parley/api"
	"parley/backend"
	"parley/chat"
	"parley/common"
	"parley/config"
	"parley/logger"
	"parley/secrets"
	"parley/store"
	"parley/workspace"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func main() {
	log.Logger = logger.Get()

	cmd := &cli.Command{
		Name:  "parley",
		Usage: "Conversational workspace server",
		Commands: []*cli.Command{
			newServeCommand(),
			newVersionCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func newVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println(common.Version)
			return nil
		},
	}
}

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "store",
				Usage: "Config document store backend (file, sqlite or redis); overrides settings.json",
			},
		},
		Action: handleServeCommand,
	}
}

func handleServeCommand(ctx context.Context, cmd *cli.Command) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if storeOverride := cmd.String("store"); storeOverride != "" {
		settings.StoreBackend = storeOverride
		if err := settings.Validate(); err != nil {
			return err
		}
	}

	docStore, err := newDocumentStore(settings)
	if err != nil {
		return err
	}
	defer docStore.Close()

	configManager := config.NewManager(docStore)
	if err := configManager.Load(ctx); err != nil {
		return err
	}

	workspaces := workspace.NewManager(configManager)
	registry := backend.NewRegistry(secrets.DefaultSecretStore())
	orch := chat.NewAskOrchestrator(configManager, workspaces, registry,
		time.Duration(settings.AskTimeoutSeconds)*time.Second)

	ctrl := api.NewController(configManager, workspaces, registry, orch)
	srv := api.RunServer(ctrl)
	log.Info().Str("addr", srv.Addr).Str("store", settings.StoreBackend).Msg("Server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newDocumentStore(settings config.Settings) (store.DocumentStore, error) {
	dataHome, err := common.GetParleyDataHome()
	if err != nil {
		return nil, err
	}

	switch settings.StoreBackend {
	case "file":
		return store.NewFileStore(filepath.Join(dataHome, "config.json")), nil
	case "sqlite":
		return store.NewSqliteStore(filepath.Join(dataHome, "parley.db"))
	case "redis":
		redisStore := store.NewRedisStore(settings.RedisAddr)
		if err := redisStore.CheckConnection(context.Background()); err != nil {
			return nil, fmt.Errorf("cannot connect to redis at %s: %w", settings.RedisAddr, err)
		}
		return redisStore, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", settings.StoreBackend)
	}
}
