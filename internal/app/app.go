// Package app builds the conversion stack from configuration. Both the CLI
// and the API server start from here.
package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"ranobepub/internal/convert"
	"ranobepub/internal/epub"
	"ranobepub/internal/fetcher"
	"ranobepub/internal/library"
	"ranobepub/internal/notify"
	"ranobepub/internal/scraper"
	"ranobepub/pkg/database"
	"ranobepub/pkg/utils"
)

type App struct {
	Config    *utils.Config
	Logger    *slog.Logger
	Client    *fetcher.Client
	API       *scraper.API
	Converter *convert.Converter
	DB        *sql.DB       // nil when history is disabled
	History   *library.Repo // nil when history is disabled
}

// New wires the fetcher, API client and converter. The database is opened
// only when cfg.Database.Enabled is set.
func New(cfg *utils.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := fetcher.DefaultOptions()
	opts.UserAgent = cfg.API.UserAgent
	opts.Timeout = cfg.FetchTimeout()
	opts.Headers = cfg.API.Headers
	opts.Retry = fetcher.PolicyFor(cfg.Fetch.MaxAttempts, cfg.RetryInterval())
	opts.Logger = logger

	client, err := fetcher.New(opts)
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}

	api := scraper.NewAPI(cfg.API.BaseURL, client)
	api.Logger = logger
	api.MaxConcurrency = cfg.Fetch.MaxConcurrency
	api.Notifier = notify.Log{Logger: logger}

	eopts := epub.DefaultOptions()
	if cfg.Output.Lang != "" {
		eopts.Lang = cfg.Output.Lang
	}
	eopts.Author = cfg.Output.Author

	a := &App{
		Config: cfg,
		Logger: logger,
		Client: client,
		API:    api,
		Converter: &convert.Converter{
			API:     api,
			Sink:    convert.DirSink{Dir: cfg.Output.Dir},
			Options: eopts,
			Logger:  logger,
		},
	}

	if cfg.Database.Enabled {
		db, err := database.Open(database.Config{Path: cfg.Database.Path})
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.History = library.NewRepo(db)
		a.Converter.History = a.History
	}
	return a, nil
}

// DisableHistory stops recording runs without closing the database.
func (a *App) DisableHistory() {
	a.Converter.History = nil
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
