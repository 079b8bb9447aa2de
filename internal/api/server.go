package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/stocksync/internal/cache"
	"github.com/stocksync/internal/database"
	"github.com/stocksync/internal/gaps"
	"github.com/stocksync/internal/messaging"
	syncengine "github.com/stocksync/internal/sync"
	"github.com/stocksync/pkg/config"
	"github.com/stocksync/pkg/models"
)

// SnapshotReader serves cached progress entries. The Redis client satisfies
// it; symbols without a cached entry are absent from the result.
type SnapshotReader interface {
	GetProgress(ctx context.Context, seriesType string, symbols []string) ([]models.ProgressEntry, error)
}

// Server exposes the operator status API: health, per-symbol progress,
// session details and coverage gaps. It is read-only; runs are started from
// the CLI.
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server

	mysqlDB    *database.MySQLClient
	redisCache *cache.RedisClient
	natsClient *messaging.NATSClient
	engine     *syncengine.Engine
	analyzer   *gaps.Analyzer
	snapshots  SnapshotReader
}

// NewServer creates a new status API server.
func NewServer(
	cfg *config.Config,
	logger *logrus.Logger,
	mysqlDB *database.MySQLClient,
	redisCache *cache.RedisClient,
	natsClient *messaging.NATSClient,
	engine *syncengine.Engine,
	analyzer *gaps.Analyzer,
) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mysqlDB:    mysqlDB,
		redisCache: redisCache,
		natsClient: natsClient,
		engine:     engine,
		analyzer:   analyzer,
	}
	if redisCache != nil {
		s.snapshots = redisCache
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/progress", s.handleProgress).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/gaps/{symbol}", s.handleGaps).Methods("GET")
}

// Start runs the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	addr := s.cfg.GetServerAddr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.WithField("address", addr).Info("Starting HTTP server")

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		if strings.Contains(err.Error(), "address already in use") {
			return fmt.Errorf("port %d is already in use", s.cfg.Server.Port)
		}
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error": err,
					"path":  r.URL.Path,
				}).Error("Panic recovered")

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(next)
}

// handleHealth reports the health of the backing services.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	services := map[string]bool{
		"mysql": s.mysqlDB != nil && s.mysqlDB.Health(ctx) == nil,
		"redis": s.redisCache != nil && s.redisCache.Health(ctx) == nil,
		"nats":  s.natsClient != nil && s.natsClient.IsConnected(),
	}

	status := "healthy"
	if !services["mysql"] {
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"services":  services,
		"timestamp": time.Now().Unix(),
	})
}

// handleProgress returns the operator-facing watermark view. An optional
// symbols query parameter (comma-separated) narrows the response; without
// it every tracked symbol of the series is returned.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	seriesType := r.URL.Query().Get("series")
	if seriesType == "" {
		seriesType = models.SeriesDailyOHLC
	}

	var symbols []string
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		for _, sym := range strings.Split(raw, ",") {
			if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
				symbols = append(symbols, sym)
			}
		}
	}

	entries, err := s.loadProgress(r.Context(), seriesType, symbols)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load progress")
		s.writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	if entries == nil {
		entries = []models.ProgressEntry{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"series":  seriesType,
		"count":   len(entries),
		"entries": entries,
	})
}

// loadProgress answers from the Redis snapshot when the request names
// symbols, falling back to the watermark store for symbols the snapshot
// does not cover. Unfiltered requests always go to the store, since the
// snapshot only holds symbols from recent runs.
func (s *Server) loadProgress(ctx context.Context, seriesType string, symbols []string) ([]models.ProgressEntry, error) {
	if s.snapshots == nil || len(symbols) == 0 {
		return s.engine.Progress(ctx, seriesType, symbols)
	}

	cached, err := s.snapshots.GetProgress(ctx, seriesType, symbols)
	if err != nil {
		s.logger.WithError(err).Warn("Snapshot read failed, falling back to store")
		return s.engine.Progress(ctx, seriesType, symbols)
	}

	hit := make(map[string]bool, len(cached))
	for _, e := range cached {
		hit[e.Symbol] = true
	}
	var missing []string
	for _, sym := range symbols {
		if !hit[sym] {
			missing = append(missing, sym)
		}
	}
	if len(missing) == 0 {
		return cached, nil
	}

	fresh, err := s.engine.Progress(ctx, seriesType, missing)
	if err != nil {
		return nil, err
	}
	return append(cached, fresh...), nil
}

// handleGetSession returns one session row by id.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	session, err := s.mysqlDB.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.WithError(err).Error("Failed to load session")
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	s.writeJSON(w, http.StatusOK, session)
}

// handleGaps returns the coverage analysis for one symbol over a window
// given by from/to query parameters (defaulting to the configured lookback
// through today).
func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	today := models.DateOnly(time.Now())

	start := today.AddDate(0, 0, -s.cfg.Sync.LookbackDays)
	end := today

	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		start = d
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		end = d
	}

	analysis, err := s.analyzer.Analyze(r.Context(), symbol, start, end)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", symbol).Error("Gap analysis failed")
		s.writeError(w, http.StatusInternalServerError, "gap analysis failed")
		return
	}

	s.writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
