package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fastdl/internal/config"
	"github.com/NamanBalaji/fastdl/internal/engine"
	"github.com/NamanBalaji/fastdl/internal/logger"
	"github.com/NamanBalaji/fastdl/internal/repository"
)

// app is what one command invocation runs against.
type app struct {
	cfg    *config.Config
	repo   *repository.BboltRepository
	engine *engine.Engine
	quiet  bool
}

// open loads the configuration, applies flag overrides, starts logging and opens the
// progress database. tf may be nil for commands that start no transfers.
func open(cmd *cobra.Command, g *globalFlags, tf *transferFlags) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	g.apply(cmd, cfg)

	if tf != nil {
		if err := tf.apply(cmd, cfg.Transfer); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.InitLogging(g.debug, cfg.LogPath); err != nil {
		return nil, err
	}

	if g.verbose {
		logger.SetVerbose(cmd.ErrOrStderr())
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0o755); err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	repo, err := repository.NewBboltRepository(cfg.StatePath)
	if err != nil {
		logger.Close()
		return nil, err
	}

	eng, err := engine.New(cfg.Transfer, repo, engine.WithDownloadDir(cfg.DownloadDir))
	if err != nil {
		_ = repo.Close()
		logger.Close()

		return nil, err
	}

	logger.Debugf("Loaded configuration from %s, state at %s", g.configPath, cfg.StatePath)

	return &app{cfg: cfg, repo: repo, engine: eng, quiet: g.quiet}, nil
}

func (a *app) close() {
	if err := a.repo.Close(); err != nil {
		logger.Errorf("Failed to close progress database: %v", err)
	}

	logger.SetVerbose(nil)
	logger.Close()
}
