package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	core "github.com/DomeLiquid/paycore"
	"github.com/DomeLiquid/paycore/outcome"
	"github.com/facebookgo/clock"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type (
	Verifier interface {
		VerifyHash(ctx context.Context, request *core.PaymentRequest, rawHash string, source core.AttemptSource) (core.Verdict, error)
	}

	Applier interface {
		Apply(ctx context.Context, request *core.PaymentRequest, verdict core.Verdict) (outcome.Result, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

type Config struct {
	Requests    core.PaymentRequestStore
	Attempts    core.VerificationAttemptStore
	Verifier    Verifier
	Applier     Applier
	Health      Pinger
	Settings    core.SettingsProvider
	Wallet      string
	SubmitLimit RateLimit
	// MetricsHandler defaults to promhttp.Handler().
	MetricsHandler http.Handler
	Clock          clock.Clock
	Log            core.Log
}

// Server exposes payment requests and hash submission over HTTP.
type Server struct {
	requests core.PaymentRequestStore
	attempts core.VerificationAttemptStore
	verifier Verifier
	applier  Applier
	health   Pinger
	settings core.SettingsProvider
	wallet   string
	validate *validator.Validate
	clk      clock.Clock
	log      core.Log

	router http.Handler
}

func New(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = core.NopLog()
	}
	if cfg.Settings == nil {
		cfg.Settings = core.StaticSettings(core.DefaultSettings())
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}
	s := &Server{
		requests: cfg.Requests,
		attempts: cfg.Attempts,
		verifier: cfg.Verifier,
		applier:  cfg.Applier,
		health:   cfg.Health,
		settings: cfg.Settings,
		wallet:   cfg.Wallet,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clk:      cfg.Clock,
		log:      cfg.Log,
	}
	s.router = s.buildRouter(cfg.SubmitLimit, cfg.MetricsHandler)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(limit RateLimit, metricsHandler http.Handler) http.Handler {
	limiter := NewRateLimiter(limit)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/healthz", s.Healthz)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/v1/payment-requests", func(api chi.Router) {
		api.Post("/", s.CreatePaymentRequest)
		api.Get("/{id}", s.GetPaymentRequest)
		api.Get("/{id}/attempts", s.ListAttempts)
		api.With(limiter.Middleware).Post("/{id}/transactions", s.SubmitTransaction)
	})
	return r
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("health check failed")
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
