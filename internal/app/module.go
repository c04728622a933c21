package app

import (
	"context"

	"github.com/mrodrigues/memegram/internal/backend"
	"github.com/mrodrigues/memegram/internal/bus"
	"github.com/mrodrigues/memegram/internal/config"
	"github.com/mrodrigues/memegram/internal/directory"
	"github.com/mrodrigues/memegram/internal/giphy"
	"github.com/mrodrigues/memegram/internal/logging"
	"github.com/mrodrigues/memegram/internal/picker"
	"github.com/mrodrigues/memegram/internal/session"
	"github.com/mrodrigues/memegram/internal/thread"
	"github.com/mrodrigues/memegram/internal/tui"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved startup options passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for the client, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("memegram",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideBackend,
			provideFeed,
			provideCatalog,
			provideHolder,
			provideDirectory,
			provideSynchronizer,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if err := session.EnsureDirs(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger() (*zap.Logger, error) {
	return logging.New(session.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideBackend(cfg *config.Config, logger *zap.Logger) (*backend.Client, error) {
	return backend.NewClient(cfg.BackendURL, cfg.AnonKey, logger)
}

func provideFeed(c *backend.Client, logger *zap.Logger) *backend.Feed {
	return backend.NewFeed(c, logger)
}

func provideCatalog(cfg *config.Config) picker.Catalog {
	return giphy.NewClient(cfg.GiphyKey, "")
}

func provideHolder(c *backend.Client, b *bus.Bus, logger *zap.Logger) *session.Holder {
	return session.NewHolder(c, b, logger, session.TokenPath())
}

func provideDirectory(c *backend.Client, logger *zap.Logger) *directory.Directory {
	return directory.New(c, logger)
}

func provideSynchronizer(c *backend.Client, feed *backend.Feed, b *bus.Bus, logger *zap.Logger) *thread.Synchronizer {
	return thread.NewSynchronizer(c, feed, b, logger)
}

func provideApp(holder *session.Holder, dir *directory.Directory, synchronizer *thread.Synchronizer, catalog picker.Catalog, b *bus.Bus, logger *zap.Logger) *tui.App {
	return tui.NewApp(holder, dir, synchronizer, catalog, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, ui *tui.App, holder *session.Holder, synchronizer *thread.Synchronizer, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Try to restore the previous session before the UI comes up
			// so a returning user lands directly in the chat view.
			if holder.Recover(ctx) {
				logger.Info("session recovered")
			}

			go func() {
				if err := ui.Run(); err != nil {
					logger.Error("terminal UI error", zap.Error(err))
				}
				_ = shutdowner.Shutdown()
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			synchronizer.Reset()
			ui.Stop()
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
