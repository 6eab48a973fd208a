package web

import (
	"embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/elys-network/allocator/internal/codec"
	"github.com/elys-network/allocator/internal/engine"
	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/metrics"
	"github.com/elys-network/allocator/internal/state"
	"github.com/elys-network/allocator/internal/types"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

//go:embed static/*
var staticFiles embed.FS

//go:embed static/index.html
var dashboardHTML []byte

const maxSimulateBody = 1 << 20

// WebServer serves the run history, a dry-run endpoint and Prometheus metrics.
type WebServer struct {
	router      *mux.Router
	port        string
	logger      zerolog.Logger
	engine      *engine.Engine
	metrics     *metrics.Metrics
	persistence bool
	started     time.Time
}

// Config holds the dependencies of a WebServer.
type Config struct {
	Port    string
	Engine  *engine.Engine
	Metrics *metrics.Metrics
	// Persistence enables the run history endpoints; without it they answer 503.
	Persistence bool
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:      mux.NewRouter(),
		port:        port,
		logger:      logger.GetForComponent("web_server"),
		engine:      cfg.Engine,
		metrics:     cfg.Metrics,
		persistence: cfg.Persistence,
		started:     time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Static files
	staticHandler := http.FileServer(http.FS(staticFiles))
	ws.router.PathPrefix("/static/").Handler(http.StripPrefix("/", staticHandler))

	// Dashboard routes
	ws.router.HandleFunc("/", ws.handleDashboard).Methods("GET")
	ws.router.HandleFunc("/dashboard", ws.handleDashboard).Methods("GET")

	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.metrics != nil {
		ws.router.Handle("/metrics", ws.metrics.Handler()).Methods("GET")
	}

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/runs", ws.handleGetRuns).Methods("GET")
	api.HandleFunc("/runs/latest", ws.handleGetLatestRun).Methods("GET")
	api.HandleFunc("/runs/{id}", ws.handleGetRun).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")
	api.HandleFunc("/simulate", ws.handleSimulate).Methods("POST", "OPTIONS")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Bool("persistence", ws.persistence).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth reports process stats and, when persistence is on, database reachability.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbStatus := "disabled"
	healthy := true
	if ws.persistence {
		dbStatus = "ok"
		if err := state.TestDBConnection(); err != nil {
			ws.logger.Warn().Err(err).Msg("Database health check failed")
			dbStatus = "unreachable"
			healthy = false
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !healthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "capital-allocator",
			"version": "1.0.0",
		},
		"database": dbStatus,
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleDashboard serves the main dashboard HTML
func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(dashboardHTML)
}

// requirePersistence answers 503 when the run history is not available.
func (ws *WebServer) requirePersistence(w http.ResponseWriter) bool {
	if !ws.persistence {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Run history requires a database (set DB_HOST)")
		return false
	}
	return true
}

// handleGetRuns returns the most recent runs
func (ws *WebServer) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	if !ws.requirePersistence(w) {
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	runs, err := state.LoadRecentRuns(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent runs")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
		"limit": limit,
	})
}

// handleGetLatestRun returns the newest stored run
func (ws *WebServer) handleGetLatestRun(w http.ResponseWriter, r *http.Request) {
	if !ws.requirePersistence(w) {
		return
	}

	runs, err := state.LoadRecentRuns(r.Context(), 1)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get latest run")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve latest run")
		return
	}
	if len(runs) == 0 {
		ws.writeErrorResponse(w, http.StatusNotFound, "No runs found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, &runs[0])
}

// handleGetRun returns one run by id
func (ws *WebServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !ws.requirePersistence(w) {
		return
	}

	runID := mux.Vars(r)["id"]
	record, err := state.LoadRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, state.ErrRunNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Run not found")
			return
		}
		ws.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to get run")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve run")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, record)
}

// handleGetSummary returns run counts
func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if !ws.requirePersistence(w) {
		return
	}

	summary, err := state.GetRunSummary(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get run summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve run summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// simulateResponse is the body of a successful dry run.
type simulateResponse struct {
	Result  *types.Result `json:"result"`
	Journal string        `json:"journal"`
}

// handleSimulate runs the allocator on a posted snapshot. The body is a YAML fixture unless
// ?format=abi, in which case it is the raw ABI-encoded input.
func (ws *WebServer) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if ws.engine == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Allocation engine not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSimulateBody))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	var snapshot *types.Snapshot
	switch format := r.URL.Query().Get("format"); format {
	case "", "yaml":
		snapshot, err = codec.ParseSnapshotYAML(body)
	case "abi":
		snapshot, err = codec.DecodeInput(body)
	default:
		ws.writeErrorResponse(w, http.StatusBadRequest, "Unknown format "+strconv.Quote(format))
		return
	}
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := ws.engine.Run(r.Context(), snapshot)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	journal, err := codec.EncodeJournal(result)
	if err != nil {
		ws.logger.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to encode journal")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to encode journal")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, &simulateResponse{Result: result, Journal: hexutil.Encode(journal)})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
