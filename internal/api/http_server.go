package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"reservo/internal/availability"
	"reservo/internal/checkout"
	"reservo/internal/config"
	"reservo/internal/domain"
	"reservo/internal/holds"
	"reservo/internal/logging"
	"reservo/internal/metrics"
	"reservo/internal/service"
	"reservo/internal/slotclock"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const userIDHeader = "X-User-ID"

// Services bundles what the HTTP handlers call into.
type Services struct {
	Items         *service.ItemService
	Reservations  *service.ReservationService
	Availability  *availability.Calculator
	Holds         *holds.Service
	Pruner        *holds.Pruner
	Checkout      *checkout.Engine
	Notifications domain.NotificationRepository
	Carts         domain.CartStorage
	// Ready is consulted by /healthz when set.
	Ready func(ctx context.Context) error
}

// HTTPServer exposes the cart, checkout and availability endpoints.
type HTTPServer struct {
	svc         Services
	loc         *time.Location
	horizonDays int
	clock       slotclock.Clock
	router      *mux.Router
	server      *http.Server
	log         zerolog.Logger
}

// NewHTTPServer routes requests into svc. Timestamps without an offset are
// read in loc and availability is limited to horizonDays ahead.
func NewHTTPServer(cfg config.APIConfig, svc Services, loc *time.Location, horizonDays int, clock slotclock.Clock, logger *zerolog.Logger) *HTTPServer {
	if clock == nil {
		clock = slotclock.System()
	}
	srv := &HTTPServer{
		svc:         svc,
		loc:         loc,
		horizonDays: horizonDays,
		clock:       clock,
		router:      mux.NewRouter(),
		log:         logging.Component(logger, "http"),
	}
	srv.routes()

	auth := NewHTTPAuth(cfg)
	srv.router.Use(srv.loggingMiddleware, auth.Middleware)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

// Handler returns the routed handler with all middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := requestID(r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", id)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeName(r)
		metrics.IncHTTP(route, statusClass(recorder.status))
		s.log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// writeDomainError maps domain errors to status codes. Anything unrecognised
// is logged and reported as a 500 without details.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)

	var checkoutErr *domain.CheckoutError
	if errors.As(err, &checkoutErr) && code != http.StatusInternalServerError {
		writeJSON(w, code, map[string]any{
			"error":   "checkout failed",
			"reasons": checkoutErr.Messages(),
		})
		return
	}

	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrBlockedUser):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidIndex),
		errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
