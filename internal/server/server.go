package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"assetbank/internal/constants"
	"assetbank/internal/logger"
)

// Server wraps the HTTP server with graceful shutdown
type Server struct {
	httpServer *http.Server
	app        *App
	logger     *logger.Logger
}

// NewServer creates a new HTTP server
func NewServer(app *App, addr string) *Server {
	s := &Server{
		app:    app,
		logger: app.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	s.registerRoutes(r)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  0, // No timeout for streaming uploads
		WriteTimeout: 0, // No timeout for streaming downloads
		IdleTimeout:  constants.HTTPIdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Head("/assets/hash/{hash}", s.handleHeadAssetByHash)
		r.Get("/assets", s.handleListAssets)
		r.Post("/assets", s.handleUploadAsset)
		r.Post("/assets/from-hash", s.handleCreateFromHash)

		r.Post("/assets/seed", s.handleSeed)
		r.Get("/assets/seed/status", s.handleSeedStatus)
		r.Post("/assets/seed/cancel", s.handleSeedCancel)
		r.Post("/assets/prune", s.handlePrune)

		r.Route("/assets/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAsset)
			r.Put("/", s.handleUpdateAsset)
			r.Delete("/", s.handleDeleteAsset)
			r.Get("/content", s.handleDownloadAsset)
			r.Put("/preview", s.handleSetPreview)
			r.Post("/tags", s.handleAddTags)
			r.Delete("/tags", s.handleRemoveTags)
		})

		r.Get("/tags", s.handleListTags)
	})
}

// Handler returns the HTTP handler for testing purposes
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		s.logger.Info("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.app.Close()
	return nil
}
