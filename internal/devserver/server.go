package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/homenavi/petfeeder/internal/auth"
	"github.com/homenavi/petfeeder/internal/models"
	"github.com/homenavi/petfeeder/internal/observability"
	"github.com/homenavi/petfeeder/internal/schedule"
)

const historyLimit = 100

type Options struct {
	Link      *Link
	Dispenser *Dispenser
	Metrics   *observability.Metrics
	Tracer    trace.Tracer
}

// Server implements the feeder backend API under /api.
type Server struct {
	repo      *Repo
	tokens    *Tokens
	link      *Link
	dispenser *Dispenser
	metrics   *observability.Metrics
	tracer    trace.Tracer
}

func NewServer(repo *Repo, tokens *Tokens, opts Options) *Server {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("feeder-devserver")
	}
	return &Server{
		repo:      repo,
		tokens:    tokens,
		link:      opts.Link,
		dispenser: opts.Dispenser,
		metrics:   opts.Metrics,
		tracer:    tracer,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(observability.Middleware(s.metrics, s.tracer, routePattern))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.tokens.Middleware)
			r.Get("/device/{deviceID}/config", s.handleGetConfig)
			r.Put("/device/{deviceID}/config", s.handlePutConfig)
			r.Get("/device/{deviceID}/history", s.handleHistory)
		})
	})
	return r
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in models.Credentials
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, BadRequest("invalid request body"))
		return
	}
	if err := auth.ValidateUsername(in.Username); err != nil {
		WriteError(w, BadRequest(err.Error()))
		return
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		WriteError(w, BadRequest(err.Error()))
		return
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		WriteError(w, InternalServerError("failed to hash password", err))
		return
	}
	u, err := s.repo.CreateUser(r.Context(), in.Username, hash)
	if errors.Is(err, ErrUserExists) {
		WriteError(w, Conflict("Username already exists"))
		return
	}
	if err != nil {
		slog.Error("create user failed", "username", in.Username, "error", err)
		WriteError(w, InternalServerError("failed to create user", err))
		return
	}
	slog.Info("user registered", "username", u.Username, "user_id", u.ID)
	writeJSON(w, http.StatusCreated, models.RegisterResponse{Message: "User registered successfully", UserID: u.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in models.Credentials
	if err := decodeJSON(r, &in); err != nil || in.Username == "" || in.Password == "" {
		WriteError(w, BadRequest("username and password are required"))
		return
	}
	u, err := s.repo.UserByUsername(r.Context(), in.Username)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		WriteError(w, InternalServerError("failed to look up user", err))
		return
	}
	if err != nil || !checkPassword(u.PasswordHash, in.Password) {
		WriteError(w, Unauthorized("Invalid username or password"))
		return
	}
	token, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		WriteError(w, InternalServerError("failed to issue token", err))
		return
	}

	resp := models.LoginResponse{Token: token}
	if u.DeviceID != "" {
		dc, err := s.repo.DeviceControl(r.Context(), u.DeviceID)
		switch {
		case err == nil:
			resp.DeviceControl = &dc
		case errors.Is(err, ErrDeviceNotFound):
		default:
			slog.Warn("login device lookup failed", "device_id", u.DeviceID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetConfig also pairs the device with the caller, so the next login
// returns it.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	dc, err := s.repo.DeviceControl(r.Context(), deviceID)
	if errors.Is(err, ErrDeviceNotFound) {
		WriteError(w, NotFound("Device not found"))
		return
	}
	if err != nil {
		WriteError(w, InternalServerError("failed to load device", err))
		return
	}
	if claims := ClaimsFrom(r.Context()); claims != nil {
		if err := s.repo.LinkDevice(r.Context(), claims.Subject, deviceID); err != nil {
			slog.Warn("device link failed", "device_id", deviceID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, dc)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	var in models.DeviceControl
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, BadRequest("invalid device configuration"))
		return
	}
	if in.DeviceID != "" && in.DeviceID != deviceID {
		WriteError(w, BadRequest("deviceID does not match the path"))
		return
	}
	if err := validateControl(in); err != nil {
		WriteError(w, BadRequest(err.Error()))
		return
	}

	canonical, err := s.repo.SaveDeviceControl(r.Context(), deviceID, in)
	if errors.Is(err, ErrDeviceNotFound) {
		WriteError(w, NotFound("Device not found"))
		return
	}
	if err != nil {
		WriteError(w, InternalServerError("failed to save device configuration", err))
		return
	}
	slog.Info("device configuration updated", "device_id", deviceID, "entries", len(canonical.Schedule), "auto", canonical.AutoStatus.String())

	s.link.PublishConfig(canonical)
	if s.dispenser != nil {
		if err := s.dispenser.Sync(context.WithoutCancel(r.Context())); err != nil {
			slog.Warn("dispenser sync failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, canonical)
}

func validateControl(dc models.DeviceControl) error {
	if dc.AutoStatus != models.Manual && dc.AutoStatus != models.Auto {
		return fmt.Errorf("%w: autoStatus must be 0 or 1", ErrInvalidSchedule)
	}
	for _, e := range dc.Schedule {
		if !schedule.ValidTime(e.Time) {
			return fmt.Errorf("%w: bad time %q", ErrInvalidSchedule, strings.TrimSpace(e.Time))
		}
	}
	return nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	dev, err := s.repo.Device(r.Context(), deviceID)
	if errors.Is(err, ErrDeviceNotFound) {
		WriteError(w, NotFound("Device not found"))
		return
	}
	if err != nil {
		WriteError(w, InternalServerError("failed to load device", err))
		return
	}
	rows, err := s.repo.FeedEvents(r.Context(), deviceID, historyLimit)
	if err != nil {
		WriteError(w, InternalServerError("failed to load history", err))
		return
	}
	out := models.HistoryResponse{
		History: make([]models.FeedEvent, 0, len(rows)),
		Stats:   models.HistoryStats{LatestFoodLevel: dev.FoodLevel},
	}
	for _, row := range rows {
		out.History = append(out.History, row.Model())
	}
	writeJSON(w, http.StatusOK, out)
}
