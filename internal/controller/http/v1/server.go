package v1

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avoronkov/lab_ingest/internal/config"
)

type Server struct {
	httpServer *http.Server
}

func NewServer(cfg config.HTTP, manager UploadManager, store UploadStore) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := NewUploadsHandler(manager, store)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/uploads/sessions", h.CreateSession)
		r.Post("/uploads", h.RegisterUpload)
		r.Get("/uploads", h.ListUploads)
		r.Get("/uploads/{upload_id}", h.GetUpload)
		r.Patch("/uploads/{upload_id}/tags", h.UpdateTags)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
			Handler:      r,
		},
	}
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
