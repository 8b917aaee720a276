package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/homenavi/petfeeder/internal/cache"
	"github.com/homenavi/petfeeder/internal/models"
)

var ErrNoToken = errors.New("login succeeded without a token")

// API is the account part of the backend.
type API interface {
	Register(ctx context.Context, username, password string) (models.RegisterResponse, error)
	Login(ctx context.Context, username, password string) (models.LoginResponse, error)
}

// Service validates credentials locally and keeps the session in the store.
type Service struct {
	api    API
	store  cache.Store
	logger *slog.Logger
}

func NewService(api API, store cache.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, store: store, logger: logger}
}

// Register creates an account. Invalid input is rejected before any request
// is made.
func (s *Service) Register(ctx context.Context, username, password string) (models.RegisterResponse, error) {
	if err := ValidateUsername(username); err != nil {
		return models.RegisterResponse{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return models.RegisterResponse{}, err
	}
	resp, err := s.api.Register(ctx, username, password)
	if err != nil {
		return models.RegisterResponse{}, fmt.Errorf("register: %w", err)
	}
	s.logger.Info("account registered", "username", username)
	return resp, nil
}

// Login authenticates and stores the token and, when the account already has
// a device, its configuration.
func (s *Service) Login(ctx context.Context, username, password string) (models.LoginResponse, error) {
	if username == "" {
		return models.LoginResponse{}, &ValidationError{Field: "username", Message: "Username is required"}
	}
	if password == "" {
		return models.LoginResponse{}, &ValidationError{Field: "password", Message: "Password is required"}
	}
	resp, err := s.api.Login(ctx, username, password)
	if err != nil {
		return models.LoginResponse{}, fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return models.LoginResponse{}, ErrNoToken
	}
	if err := s.store.Set(ctx, cache.KeyToken, resp.Token); err != nil {
		return models.LoginResponse{}, err
	}
	if resp.DeviceControl != nil && resp.DeviceControl.DeviceID != "" {
		if err := cache.SaveDeviceControl(ctx, s.store, *resp.DeviceControl); err != nil {
			return models.LoginResponse{}, err
		}
	}
	s.logger.Info("logged in", "username", username, "paired", resp.DeviceControl != nil)
	return resp, nil
}

// Logout forgets the whole session: token and cached device configuration.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("logged out")
	return nil
}
