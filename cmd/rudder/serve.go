package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nmoralez/rudder/internal/config"
	"github.com/nmoralez/rudder/internal/flow"
	"github.com/nmoralez/rudder/internal/knowledge"
	"github.com/nmoralez/rudder/internal/server"
	"github.com/nmoralez/rudder/internal/session"
	"github.com/nmoralez/rudder/internal/transcript"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the WebSocket turn endpoint",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := fileLogger(cfg)
	if err != nil {
		return err
	}

	spec, err := loadFlow(cfg)
	if err != nil {
		return fmt.Errorf("load flow: %w", err)
	}

	deps := session.Deps{Logger: logger}

	if cfg.Knowledge.FactsPath != "" {
		retriever, err := knowledge.LoadStaticRetriever(cfg.Knowledge.FactsPath)
		if err != nil {
			return fmt.Errorf("load facts: %w", err)
		}
		deps.Retriever = retriever
	}

	if cfg.Storage.Enabled {
		store, err := transcript.NewStore(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("open transcript store: %w", err)
		}
		defer store.Close()
		deps.Recorder = store
	}

	manager := session.NewManager(spec, deps)
	srv := server.New(manager, cfg.Addr(), logger)
	if err := srv.Start(); err != nil {
		return err
	}

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("tenant", spec.Tenant).
		Msg("rudder serving")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	return srv.Stop()
}

// loadFlow returns the configured flow specification, or the built-in one
// when no path is set. Load already validates.
func loadFlow(cfg *config.Config) (*flow.Specification, error) {
	if cfg.Flow.Path == "" {
		spec := flow.Default()
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		return spec, nil
	}
	return flow.Load(cfg.Flow.Path)
}
