package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/homenavi/petfeeder/internal/models"
)

const (
	KeyToken         = "token"
	KeyDeviceControl = "deviceControl"
)

// Store is the durable key-value session state of the client.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}

// Error wraps a failure of the underlying persistence layer.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsCacheError reports whether err originated in a Store.
func IsCacheError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// LoadDeviceControl reads and validates the cached device configuration.
// ok is false when nothing is stored. A payload that does not match the
// persisted layout is reported as a cache error.
func LoadDeviceControl(ctx context.Context, s Store) (models.DeviceControl, bool, error) {
	raw, ok, err := s.Get(ctx, KeyDeviceControl)
	if err != nil || !ok {
		return models.DeviceControl{}, false, err
	}
	dc, err := DecodeDeviceControl([]byte(raw))
	if err != nil {
		return models.DeviceControl{}, false, &Error{Op: "decode", Key: KeyDeviceControl, Err: err}
	}
	return dc, true, nil
}

func DecodeDeviceControl(raw []byte) (models.DeviceControl, error) {
	if err := validateDeviceControl(raw); err != nil {
		return models.DeviceControl{}, err
	}
	var dc models.DeviceControl
	if err := json.Unmarshal(raw, &dc); err != nil {
		return models.DeviceControl{}, err
	}
	if dc.Schedule == nil {
		dc.Schedule = []models.ScheduleEntry{}
	}
	return dc, nil
}

// CheckDeviceControl runs dc through the persisted layout and returns the form
// LoadDeviceControl would read back. Configurations that fail here must not be
// saved: they would unpair the session on the next load.
func CheckDeviceControl(dc models.DeviceControl) (models.DeviceControl, error) {
	b, err := json.Marshal(dc)
	if err != nil {
		return models.DeviceControl{}, err
	}
	return DecodeDeviceControl(b)
}

func SaveDeviceControl(ctx context.Context, s Store, dc models.DeviceControl) error {
	b, err := json.Marshal(dc.Clone())
	if err != nil {
		return &Error{Op: "encode", Key: KeyDeviceControl, Err: err}
	}
	return s.Set(ctx, KeyDeviceControl, string(b))
}

// PairedDeviceID returns the id of the device the session is paired with.
func PairedDeviceID(ctx context.Context, s Store) (string, bool, error) {
	dc, ok, err := LoadDeviceControl(ctx, s)
	if err != nil || !ok || dc.DeviceID == "" {
		return "", false, err
	}
	return dc.DeviceID, true, nil
}

// TokenSource exposes the stored bearer token to the remote client.
type TokenSource struct {
	Store Store
}

func (t TokenSource) Token(ctx context.Context) (string, error) {
	tok, _, err := t.Store.Get(ctx, KeyToken)
	return tok, err
}
