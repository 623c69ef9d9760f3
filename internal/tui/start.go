package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tatianab/dicetale/internal/chronicle"
	"github.com/tatianab/dicetale/internal/config"
	"github.com/tatianab/dicetale/internal/llm"
	"github.com/tatianab/dicetale/internal/models"
)

// Setup builds the UI dependencies from the environment and the settings
// file. The returned cleanup func is never nil and must be called once the
// program exits.
func Setup(ctx context.Context) (Deps, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return Deps{}, cleanup, err
	}
	models.SaveDir = cfg.SaveDir

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return Deps{}, cleanup, err
	}

	f, err := tea.LogToFile(cfg.LogFile, "dicetale")
	if err != nil {
		return Deps{}, cleanup, fmt.Errorf("open log file: %w", err)
	}
	closers = append(closers, f.Close)
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	gen, closer, err := llm.NewFromSettings(ctx, cfg, settings)
	if err != nil {
		if errors.Is(err, llm.ErrNoAPIKey) {
			err = fmt.Errorf("%w: set GEMINI_API_KEY or OPENAI_API_KEY, or add api_key to %s", err, cfg.SettingsPath)
		}
		return Deps{}, cleanup, err
	}
	closers = append(closers, closer.Close)

	deps := Deps{
		Settings:  settings,
		Generator: gen,
		Logger:    logger,
		ExportDir: cfg.SaveDir,
	}
	if cfg.ChronicleDB != "" {
		store, err := chronicle.Open(cfg.ChronicleDB)
		if err != nil {
			logger.Warn("chronicle disabled", "path", cfg.ChronicleDB, "err", err)
		} else {
			deps.Chronicle = store
			closers = append(closers, store.Close)
		}
	}

	logger.Info("starting", "provider", settings.Provider().Name, "model", settings.Provider().Model, "saves", cfg.SaveDir)
	return deps, cleanup, nil
}

// Start sets up from the environment and runs the game.
func Start() error {
	deps, cleanup, err := Setup(context.Background())
	defer cleanup()
	if err != nil {
		return err
	}
	return Run(deps)
}
