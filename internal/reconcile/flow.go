package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/homenavi/petfeeder/internal/cache"
	"github.com/homenavi/petfeeder/internal/feederapi"
	"github.com/homenavi/petfeeder/internal/models"
	"github.com/homenavi/petfeeder/internal/observability"
	"github.com/homenavi/petfeeder/internal/schedule"
)

var (
	ErrNotReady        = errors.New("no device configuration loaded")
	ErrSaveInProgress  = errors.New("a save is already in progress")
	ErrSuperseded      = errors.New("save superseded by a newer pairing")
	ErrEmptyDeviceID   = errors.New("device id is required")
	ErrInvalidResponse = errors.New("invalid device configuration from backend")
)

type State int

const (
	Idle State = iota
	Loading
	Unpaired
	Ready
	Saving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Unpaired:
		return "unpaired"
	case Ready:
		return "ready"
	case Saving:
		return "saving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time view of the flow. In Ready, a nil Err after a
// commit means the configuration is synced; a non-nil Err is the last
// failure, kept for display until the next attempt.
type Status struct {
	State    State
	DeviceID string
	Dirty    bool
	Err      error
	SyncedAt time.Time
}

// Remote is the part of the backend the flow talks to.
type Remote interface {
	FetchConfig(ctx context.Context, deviceID string) (models.DeviceControl, error)
	UpdateConfig(ctx context.Context, deviceID string, dc models.DeviceControl) (models.DeviceControl, error)
}

type Options struct {
	// Timeout bounds each remote call. Defaults to 10s.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Flow loads the cached device configuration, exposes it for editing and
// synchronizes it with the backend. It is safe for concurrent use; the
// internal lock is not held across network calls, and a generation counter
// drops results of operations that were superseded meanwhile.
type Flow struct {
	store   cache.Store
	remote  Remote
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu       sync.Mutex
	state    State
	editor   *schedule.Editor
	err      error
	syncedAt time.Time
	gen      uint64
}

func New(store cache.Store, remote Remote, opts Options) *Flow {
	f := &Flow{
		store:   store,
		remote:  remote,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		state:   Idle,
	}
	if f.timeout <= 0 {
		f.timeout = 10 * time.Second
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := Status{State: f.state, Err: f.err, SyncedAt: f.syncedAt}
	if f.editor != nil {
		st.DeviceID = f.editor.Baseline().DeviceID
		st.Dirty = f.editor.IsDirty()
	}
	return st
}

// Start (re)loads the configuration from the cache. A missing, unreadable or
// invalid entry leaves the flow Unpaired; Start itself only fails when the
// flow is busy.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	switch f.state {
	case Saving:
		f.mu.Unlock()
		return ErrSaveInProgress
	case Loading:
		f.mu.Unlock()
		return ErrNotReady
	}
	f.gen++
	gen := f.gen
	f.state = Loading
	f.mu.Unlock()

	return f.load(ctx, gen)
}

func (f *Flow) load(ctx context.Context, gen uint64) error {
	dc, ok, err := cache.LoadDeviceControl(ctx, f.store)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return ErrSuperseded
	}
	switch {
	case err != nil:
		f.logger.Warn("cached device configuration unreadable, treating as unpaired", "error", err)
		f.toUnpaired(err)
	case !ok || dc.DeviceID == "":
		f.logger.Debug("no paired device in cache")
		f.toUnpaired(nil)
	default:
		f.editor = schedule.NewEditor(dc)
		f.state = Ready
		f.err = nil
		f.logger.Debug("device configuration loaded", "device_id", dc.DeviceID, "entries", len(dc.Schedule))
	}
	return nil
}

func (f *Flow) toUnpaired(err error) {
	f.editor = nil
	f.state = Unpaired
	f.err = err
}

// Close abandons the session. Unsaved edits are dropped and nothing is
// written; in-flight results are discarded.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.editor = nil
	f.err = nil
	f.state = Idle
}

// Current returns the working copy. ok is false unless a configuration is
// loaded.
func (f *Flow) Current() (models.DeviceControl, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editor == nil {
		return models.DeviceControl{}, false
	}
	return f.editor.Current(), true
}

func (f *Flow) Baseline() (models.DeviceControl, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editor == nil {
		return models.DeviceControl{}, false
	}
	return f.editor.Baseline(), true
}

func (f *Flow) IsDirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.editor != nil && f.editor.IsDirty()
}

func (f *Flow) ToggleAutoStatus() error {
	return f.edit(func(e *schedule.Editor) error {
		e.ToggleAutoStatus()
		return nil
	})
}

func (f *Flow) ToggleSchedule(index int) error {
	return f.edit(func(e *schedule.Editor) error { return e.ToggleSchedule(index) })
}

func (f *Flow) AddSchedule(timeText string) error {
	return f.edit(func(e *schedule.Editor) error { return e.AddSchedule(timeText) })
}

func (f *Flow) EditSchedule(index int, timeText string) error {
	return f.edit(func(e *schedule.Editor) error { return e.EditSchedule(index, timeText) })
}

func (f *Flow) DeleteSchedule(index int) error {
	return f.edit(func(e *schedule.Editor) error { return e.DeleteSchedule(index) })
}

func (f *Flow) DiscardEdits() error {
	return f.edit(func(e *schedule.Editor) error {
		e.DiscardEdits()
		return nil
	})
}

func (f *Flow) edit(fn func(*schedule.Editor) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case Saving:
		return ErrSaveInProgress
	case Ready:
		return fn(f.editor)
	default:
		return ErrNotReady
	}
}

// Commit submits the full working copy to the backend. A clean working copy
// is a no-op. On success the backend's canonical form replaces the cache
// entry and both editor copies; on any failure the working copy and the
// cache are left as they were.
func (f *Flow) Commit(ctx context.Context) error {
	f.mu.Lock()
	switch f.state {
	case Saving:
		f.mu.Unlock()
		return ErrSaveInProgress
	case Ready:
	default:
		f.mu.Unlock()
		return ErrNotReady
	}
	if !f.editor.IsDirty() {
		f.mu.Unlock()
		f.metrics.ObserveCommit("noop")
		return nil
	}
	snapshot := f.editor.Current().StripIdentifiers()
	deviceID := f.editor.Baseline().DeviceID
	if snapshot.DeviceID == "" {
		snapshot.DeviceID = deviceID
	}
	gen := f.gen
	f.state = Saving
	f.mu.Unlock()

	log := f.logger.With("device_id", deviceID)
	log.Debug("submitting schedule", "entries", len(snapshot.Schedule), "auto", snapshot.AutoStatus.String())

	rctx, cancel := context.WithTimeout(ctx, f.timeout)
	canonical, err := f.remote.UpdateConfig(rctx, deviceID, snapshot)
	cancel()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		log.Info("dropping result of superseded save", "error", err)
		f.metrics.ObserveCommit("superseded")
		return ErrSuperseded
	}
	if err != nil {
		log.Warn("schedule save failed", "error", err)
		return f.failCommit("remote_error", fmt.Errorf("save schedule: %w", err))
	}

	canonical, err = checkReply(deviceID, canonical)
	if err != nil {
		log.Warn("schedule save returned an unusable configuration", "error", err)
		return f.failCommit("remote_error", fmt.Errorf("save schedule: %w", err))
	}
	if err := cache.SaveDeviceControl(ctx, f.store, canonical); err != nil {
		log.Error("schedule saved remotely but cache write failed", "error", err)
		return f.failCommit("cache_error", err)
	}

	f.editor.Rebase(canonical)
	f.state = Ready
	f.err = nil
	f.syncedAt = f.now()
	f.metrics.ObserveCommit("success")
	log.Info("schedule saved", "entries", len(canonical.Schedule))
	return nil
}

func (f *Flow) failCommit(outcome string, err error) error {
	f.state = Ready
	f.err = err
	f.metrics.ObserveCommit(outcome)
	return err
}

// Pair fetches the configuration of deviceID and, on success, makes it the
// cached configuration and reloads. Failures, including a reply that does not
// pass the cache layout, leave all state untouched. A successful pairing
// supersedes a save still in flight. Once the cache write succeeded Pair
// returns nil even if a later Pair, Start or Close takes over the session
// before the reload.
func (f *Flow) Pair(ctx context.Context, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return ErrEmptyDeviceID
	}
	log := f.logger.With("device_id", deviceID)

	rctx, cancel := context.WithTimeout(ctx, f.timeout)
	dc, err := f.remote.FetchConfig(rctx, deviceID)
	cancel()
	if err != nil {
		log.Warn("pairing failed", "error", err)
		return fmt.Errorf("pair device %s: %w", deviceID, err)
	}
	if dc.DeviceID == "" {
		return fmt.Errorf("pair device %s: %w", deviceID, feederapi.ErrNotFound)
	}
	dc, err = checkReply(deviceID, dc)
	if err != nil {
		log.Warn("pairing returned an unusable configuration", "error", err)
		return fmt.Errorf("pair device %s: %w", deviceID, err)
	}

	f.mu.Lock()
	if err := cache.SaveDeviceControl(ctx, f.store, dc); err != nil {
		f.mu.Unlock()
		log.Error("pairing fetched but cache write failed", "error", err)
		return err
	}
	f.gen++
	gen := f.gen
	f.state = Loading
	f.err = nil
	f.mu.Unlock()

	log.Info("device paired", "entries", len(dc.Schedule))
	if err := f.load(ctx, gen); err != nil && !errors.Is(err, ErrSuperseded) {
		return err
	}
	return nil
}

// checkReply accepts a backend configuration only if it belongs to deviceID
// and fits the cached layout.
func checkReply(deviceID string, dc models.DeviceControl) (models.DeviceControl, error) {
	if dc.DeviceID != deviceID {
		return models.DeviceControl{}, fmt.Errorf("%w: device id %q, want %q", ErrInvalidResponse, dc.DeviceID, deviceID)
	}
	out, err := cache.CheckDeviceControl(dc)
	if err != nil {
		return models.DeviceControl{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return out, nil
}
