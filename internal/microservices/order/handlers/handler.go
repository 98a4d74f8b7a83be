package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/order/service"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	OrderHandler *OrderHandler
	StockHandler *StockHandler
	log          *logger.Logger
	checks       map[string]HealthCheck
}

func New(s *service.Service, log *logger.Logger, checks map[string]HealthCheck) *Handler {
	return &Handler{
		OrderHandler: NewOrderHandler(s.OrderService, log),
		StockHandler: NewStockHandler(s.StockService, log),
		log:          log,
		checks:       checks,
	}
}

type RouterOptions struct {
	MaxConcurrency int
	AllowedOrigins []string
}

// Router wires every route behind request logging, the concurrency limit and
// CORS for the web front end.
func (h *Handler) Router(opts RouterOptions) http.Handler {
	router := mux.NewRouter()
	router.Use(h.requestLogging)
	if opts.MaxConcurrency > 0 {
		router.Use(limitConcurrency(opts.MaxConcurrency))
	}

	h.OrderHandler.RegisterRoutes(router)
	h.StockHandler.RegisterRoutes(router)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}).Handler(router)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := map[string]string{"status": "healthy"}, http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			status["status"], code = "unhealthy", http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	respondWithJSON(w, code, status)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		log := h.log.WithRequestID(reqID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logger.IntoContext(r.Context(), log)))

		log.Debug("http_request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

// limitConcurrency caps in-flight requests; excess requests wait until a slot
// frees up or their context ends.
func limitConcurrency(n int) mux.MiddlewareFunc {
	slots := make(chan struct{}, n)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case slots <- struct{}{}:
				defer func() { <-slots }()
				next.ServeHTTP(w, r)
			case <-r.Context().Done():
				respondWithProblem(w, Problem{Status: http.StatusServiceUnavailable, Detail: "server is busy"})
			}
		})
	}
}
