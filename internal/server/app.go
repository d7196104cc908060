package server

import (
	"database/sql"
	"time"

	"assetbank/internal/config"
	"assetbank/internal/database"
	"assetbank/internal/events"
	"assetbank/internal/logger"
	"assetbank/internal/scanner"
	"assetbank/internal/services"
)

// App holds shared application state: the database handle, configuration,
// configured roots and the scanner supervisor. It implements
// services.AppState.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *sql.DB
	Scanner   *scanner.Supervisor
	Services  *services.Services
	StartedAt time.Time
}

// NewApp opens the database, applies schema and migrations, and wires the
// scanner and service container.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.InitDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Roots.EnsureRootDirs(); err != nil {
		db.Close()
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		StartedAt: time.Now(),
	}
	app.Scanner = scanner.NewSupervisor(db, &cfg.Roots, log, &events.LogSink{Log: log})
	app.Services = services.NewServices(app, log)
	return app, nil
}

// Close shuts down the scanner and releases the database.
func (a *App) Close() {
	if a.Scanner != nil {
		a.Scanner.Shutdown(5 * time.Second)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func (a *App) GetDB() *sql.DB                  { return a.DB }
func (a *App) GetConfig() *config.Config       { return a.Config }
func (a *App) GetRoots() *config.Roots         { return &a.Config.Roots }
func (a *App) GetLogger() *logger.Logger       { return a.Logger }
func (a *App) GetScanner() *scanner.Supervisor { return a.Scanner }
