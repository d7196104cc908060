// Package services provides the business logic layer for assetbank.
// Services orchestrate operations across database, config, and scanner
// packages. HTTP handlers should delegate to services for all business logic.
package services

import (
	"database/sql"

	"assetbank/internal/config"
	"assetbank/internal/logger"
	"assetbank/internal/scanner"
)

// AppState provides access to shared application state.
// This interface decouples services from the concrete App type.
type AppState interface {
	GetDB() *sql.DB
	GetConfig() *config.Config
	GetRoots() *config.Roots
	GetLogger() *logger.Logger
	GetScanner() *scanner.Supervisor
}

// Services holds all service instances for the application.
// It acts as a service container that is initialized once at startup.
type Services struct {
	app    AppState
	logger *logger.Logger

	Asset *AssetService
	Tag   *TagService
}

// NewServices creates a new service container with all services initialized.
func NewServices(app AppState, log *logger.Logger) *Services {
	s := &Services{
		app:    app,
		logger: log,
	}
	s.Asset = NewAssetService(app, log)
	s.Tag = NewTagService(app, log)
	return s
}

// App returns the underlying app state for handlers that need direct access.
func (s *Services) App() AppState {
	return s.app
}

// Logger returns the application logger.
func (s *Services) Logger() *logger.Logger {
	return s.logger
}
