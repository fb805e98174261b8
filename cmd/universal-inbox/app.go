package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/nhle/universal-inbox/internal/cache"
	"github.com/nhle/universal-inbox/internal/credential"
	"github.com/nhle/universal-inbox/internal/inbox"
	"github.com/nhle/universal-inbox/internal/integration"
	"github.com/nhle/universal-inbox/internal/logging"
	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/github"
	"github.com/nhle/universal-inbox/internal/source/googlecalendar"
	"github.com/nhle/universal-inbox/internal/source/googledrive"
	"github.com/nhle/universal-inbox/internal/source/googlemail"
	"github.com/nhle/universal-inbox/internal/source/linear"
	"github.com/nhle/universal-inbox/internal/source/slack"
	"github.com/nhle/universal-inbox/internal/source/ticktick"
	"github.com/nhle/universal-inbox/internal/source/todoist"
	"github.com/nhle/universal-inbox/internal/store"
	inboxsync "github.com/nhle/universal-inbox/internal/sync"
)

// application holds the services every command works with.
type application struct {
	cfg      *model.AppConfig
	db       *store.SQLiteStore
	conns    *integration.Service
	registry *source.Registry
	services *inbox.Services
	orch     *inboxsync.Orchestrator
}

// newApplication loads the configuration, sets up logging and opens the
// database.
func newApplication(c *cli.Context) (*application, error) {
	cfg, err := model.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if override := c.String("log-level"); override != "" {
		level = override
	}
	logging.Setup(level, cfg.Log.Pretty)

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	tokens, err := credential.Open()
	if err != nil {
		db.Close()
		return nil, err
	}
	conns, err := integration.NewService(tokens, cfg.Sync)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := newRegistry(cfg, conns)
	services := inbox.New(registry, conns, inbox.Options{SinkProvider: cfg.Tasks.SinkProvider})

	return &application{
		cfg:      cfg,
		db:       db,
		conns:    conns,
		registry: registry,
		services: services,
		orch:     inboxsync.New(db, conns, registry, services, cfg.Sync),
	}, nil
}

// newRegistry registers an adapter for every supported provider.
func newRegistry(cfg *model.AppConfig, conns source.Connections) *source.Registry {
	c := cache.NewMemory()
	return source.NewRegistry(
		github.NewAdapter(conns, cfg.Provider(model.ProviderGithub)),
		slack.NewAdapter(conns, cfg.Provider(model.ProviderSlack), c, cfg.Cache),
		googlemail.NewAdapter(conns, cfg.Provider(model.ProviderGoogleMail)),
		googlecalendar.NewAdapter(conns, cfg.Provider(model.ProviderGoogleCalendar)),
		googledrive.NewAdapter(conns, cfg.Provider(model.ProviderGoogleDrive)),
		linear.NewAdapter(conns, cfg.Provider(model.ProviderLinear)),
		todoist.NewAdapter(conns, cfg.Provider(model.ProviderTodoist), c, cfg.Cache),
		ticktick.NewAdapter(conns, cfg.Provider(model.ProviderTickTick), c, cfg.Cache),
	)
}

func (a *application) Close() error {
	return a.db.Close()
}

// withApplication runs fn with an application closed afterwards.
func withApplication(fn func(c *cli.Context, app *application) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		app, err := newApplication(c)
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(c, app)
	}
}

// parseProvider returns nil for an empty name.
func parseProvider(name string) (*model.IntegrationProviderKind, error) {
	if name == "" {
		return nil, nil
	}
	kind, err := model.ParseProviderKind(name)
	if err != nil {
		return nil, err
	}
	return &kind, nil
}

// parseSyncTypes maps the --type flag to the sync types to run.
func parseSyncTypes(name string) ([]model.SyncType, error) {
	switch name {
	case "", "all":
		return []model.SyncType{model.SyncNotifications, model.SyncTasks}, nil
	case string(model.SyncNotifications):
		return []model.SyncType{model.SyncNotifications}, nil
	case string(model.SyncTasks):
		return []model.SyncType{model.SyncTasks}, nil
	}
	return nil, fmt.Errorf("unknown sync type %q, expected notifications, tasks or all", name)
}
