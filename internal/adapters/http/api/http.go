// Package api exposes the rating service over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/tally/internal/adapters/http/swagger"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// RatingService is the API-facing slice of the application.
type RatingService interface {
	CreateScore(ctx context.Context, playerID, teamID int64, score int) (model.Score, error)
	CreatePlayer(ctx context.Context, playerID, teamID int64) error
	RatePlayers(ctx context.Context, teamID int64, players []types.PlayerScore) error
	GetPlayerRating(ctx context.Context, playerID, teamID int64) (model.Rating, bool, error)
	TeamRatings(ctx context.Context, teamID int64) ([]model.Rating, error)
}

// ConsumerControl starts and stops inbound consumption.
type ConsumerControl interface {
	StartConsumer(ctx context.Context) error
	StopConsumer(ctx context.Context) error
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Health(ctx context.Context) types.Health
}

// Dependencies bundles everything the handlers need.
type Dependencies interface {
	RatingService
	ConsumerControl
	HealthChecker
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	prefix          string
	logger          logger.Logger
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	ratingHandler   *RatingHandler
	teamHandler     *TeamHandler
	consumerHandler *ConsumerHandler
}

// Option configures a Server.
type Option func(*Server)

// WithPrefix mounts the business routes under prefix, e.g. "/api".
func WithPrefix(prefix string) Option {
	return func(s *Server) {
		s.prefix = strings.TrimRight(prefix, "/")
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(deps),
		eventsHandler:   NewEventsHandler(deps),
		ratingHandler:   NewRatingHandler(deps),
		teamHandler:     NewTeamHandler(deps),
		consumerHandler: NewConsumerHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	return s
}

// Routes returns the complete HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	swagger.Register(r)

	register := func(r chi.Router) {
		r.Get("/stats", s.statsHandler.HandleStats)
		r.Post("/scores", s.eventsHandler.HandlePostScore)
		r.Post("/players", s.eventsHandler.HandlePostPlayer)
		r.Route("/teams/{team_id}", func(r chi.Router) {
			r.Get("/ratings", s.teamHandler.HandleGetTeamRatings)
			r.Post("/ratings", s.teamHandler.HandlePostTeamRatings)
			r.Get("/players/{player_id}/rating", s.ratingHandler.HandleGetRating)
		})
		r.Post("/consumer/start", s.consumerHandler.HandleStart)
		r.Post("/consumer/stop", s.consumerHandler.HandleStop)
	}
	if s.prefix == "" {
		register(r)
	} else {
		r.Route(s.prefix, register)
	}
	return r
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// pathID reads a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, NewKind("path "+name+"="+raw, ErrBadRequest)
	}
	return id, nil
}
