package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/homenavi/petfeeder/internal/cache"
	"github.com/homenavi/petfeeder/internal/models"
)

type fakeAPI struct {
	calls int
	login models.LoginResponse
	err   error
}

func (f *fakeAPI) Register(context.Context, string, string) (models.RegisterResponse, error) {
	f.calls++
	return models.RegisterResponse{Message: "ok"}, f.err
}

func (f *fakeAPI) Login(context.Context, string, string) (models.LoginResponse, error) {
	f.calls++
	return f.login, f.err
}

func newService(api API, store cache.Store) *Service {
	return NewService(api, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		pw   string
		want string
	}{
		{"Ab1!", "Password must be at least 8 characters long"},
		{"abcdefg1!", "Password must contain at least one uppercase letter"},
		{"ABCDEFG1!", "Password must contain at least one lowercase letter"},
		{"Abcdefgh!", "Password must contain at least one number"},
		{"Abcdefgh1", "Password must contain at least one special character"},
		{"Abcdefg1!", ""},
		{`Feeder2024"`, ""},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.pw)
		if tc.want == "" {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", tc.pw, err)
			}
			continue
		}
		if err == nil || err.Error() != tc.want {
			t.Fatalf("%q: expected %q, got %v", tc.pw, tc.want, err)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"tom", "cat_lover-01", "abcdefghijklmnopqrstuvwxyz1234"} {
		if err := ValidateUsername(ok); err != nil {
			t.Fatalf("%q: unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"", "ab", "abcdefghijklmnopqrstuvwxyz12345", "tom cat", "tom@home"} {
		var ve *ValidationError
		if err := ValidateUsername(bad); !errors.As(err, &ve) || ve.Field != "username" {
			t.Fatalf("%q: expected username validation error, got %v", bad, err)
		}
	}
}

func TestRegisterValidatesBeforeNetwork(t *testing.T) {
	api := &fakeAPI{}
	s := newService(api, cache.NewMemory())
	if _, err := s.Register(context.Background(), "tom", "weak"); err == nil {
		t.Fatalf("expected validation error")
	}
	if api.calls != 0 {
		t.Fatalf("invalid input must not reach the backend")
	}
	if _, err := s.Register(context.Background(), "tom", "Str0ng!pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if api.calls != 1 {
		t.Fatalf("expected one backend call, got %d", api.calls)
	}
}

func TestLoginStoresSession(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	api := &fakeAPI{login: models.LoginResponse{
		Token: "tok",
		DeviceControl: &models.DeviceControl{
			DeviceID: "feeder-1",
			Schedule: []models.ScheduleEntry{{ID: "a", Time: "07:00", Enabled: true}},
		},
	}}
	if _, err := newService(api, store).Login(ctx, "tom", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok, _, _ := store.Get(ctx, cache.KeyToken); tok != "tok" {
		t.Fatalf("token not stored, got %q", tok)
	}
	if id, ok, _ := cache.PairedDeviceID(ctx, store); !ok || id != "feeder-1" {
		t.Fatalf("device not stored, got %q", id)
	}
}

func TestLoginWithoutDeviceLeavesUnpaired(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	api := &fakeAPI{login: models.LoginResponse{Token: "tok"}}
	if _, err := newService(api, store).Login(ctx, "tom", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, ok, _ := store.Get(ctx, cache.KeyDeviceControl); ok {
		t.Fatalf("expected no device control")
	}
}

func TestLoginRequiresBothFields(t *testing.T) {
	api := &fakeAPI{}
	s := newService(api, cache.NewMemory())
	if _, err := s.Login(context.Background(), "", "pw"); err == nil {
		t.Fatalf("expected missing username error")
	}
	if _, err := s.Login(context.Background(), "tom", ""); err == nil {
		t.Fatalf("expected missing password error")
	}
	if api.calls != 0 {
		t.Fatalf("backend must not be called")
	}
}

func TestLoginFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	api := &fakeAPI{err: errors.New("invalid credentials")}
	if _, err := newService(api, store).Login(ctx, "tom", "pw"); err == nil {
		t.Fatalf("expected error")
	}
	if _, ok, _ := store.Get(ctx, cache.KeyToken); ok {
		t.Fatalf("token must not be stored on failure")
	}

	api = &fakeAPI{}
	if _, err := newService(api, store).Login(ctx, "tom", "pw"); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestLogoutClearsStore(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	_ = store.Set(ctx, cache.KeyToken, "tok")
	_ = store.Set(ctx, cache.KeyDeviceControl, `{"deviceID":"d","autoStatus":0,"schedule":[]}`)
	if err := newService(&fakeAPI{}, store).Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, ok, _ := store.Get(ctx, cache.KeyToken); ok {
		t.Fatalf("token survived logout")
	}
}
