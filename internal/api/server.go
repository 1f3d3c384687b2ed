// Package api provides the HTTP service surface described by the project's
// client/server split: a loader service that opens SQLite stores behind
// opaque handles, and a data service that mirrors the Store's read API plus
// its mutating operations, every call scoped to one such handle.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/frozenspider/chat-history-manager-go/internal/config"
)

// Server is the HTTP API server.
type Server struct {
	cfg         *config.Config
	registry    *Registry
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new API server backed by reg. reg is owned by the
// caller; Shutdown does not close it.
func NewServer(cfg *config.Config, reg *Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, registry: reg, logger: logger}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	corsConfig := CORSConfig{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: s.cfg.Server.CORSCredentials,
		MaxAge:           s.cfg.Server.CORSMaxAge,
	}
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	s.rateLimiter = NewRateLimiter(10, 20)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Loader service: open/list/close stores by path.
		r.Post("/stores", s.handleLoad)
		r.Get("/stores", s.handleGetLoaded)
		r.Delete("/stores/{key}", s.handleCloseStore)

		// Data service: every route below is scoped to one open handle.
		r.Route("/stores/{key}", func(r chi.Router) {
			r.Get("/datasets", s.handleDatasets)
			r.Patch("/datasets/{dsUUID}", s.handleRenameDataset)
			r.Delete("/datasets/{dsUUID}", s.handleDeleteDataset)
			r.Post("/datasets/{dsUUID}/shift-time", s.handleShiftTime)

			r.Get("/datasets/{dsUUID}/users", s.handleUsers)
			r.Patch("/datasets/{dsUUID}/users/{userID}", s.handleUpdateUser)
			r.Post("/datasets/{dsUUID}/users/merge", s.handleMergeUsers)

			r.Get("/datasets/{dsUUID}/chats", s.handleChats)
			r.Delete("/datasets/{dsUUID}/chats/{chatID}", s.handleDeleteChat)

			r.Get("/datasets/{dsUUID}/chats/{chatID}/messages/scroll", s.handleScrollMessages)
			r.Get("/datasets/{dsUUID}/chats/{chatID}/messages/first", s.handleFirstMessages)
			r.Get("/datasets/{dsUUID}/chats/{chatID}/messages/last", s.handleLastMessages)
			r.Get("/datasets/{dsUUID}/chats/{chatID}/messages/before", s.handleMessagesBefore)
			r.Get("/datasets/{dsUUID}/chats/{chatID}/messages/after", s.handleMessagesAfter)
			r.Get("/datasets/{dsUUID}/chats/{chatID}/messages/slice", s.handleMessagesSlice)
			r.Get("/datasets/{dsUUID}/chats/{chatID}/messages/around", s.handleMessagesAroundDate)
			r.Get("/datasets/{dsUUID}/chats/{chatID}/messages/by-source/{sourceID}", s.handleMessageBySourceID)
			r.Get("/datasets/{dsUUID}/chats/{chatID}/messages/by-internal/{internalID}", s.handleMessageByInternalID)

			r.Get("/datasets/{dsUUID}/search", s.handleSearch)

			r.Post("/backup", s.handleBackup)
		})
	})

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication — set [server] api_key in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server. It does not close the
// registry's open stores.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router, for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			authHeader = r.Header.Get("X-API-Key")
		}
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			authHeader = authHeader[7:]
		}

		if subtle.ConstantTimeCompare([]byte(authHeader), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
