package history

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/homenavi/petfeeder/internal/cache"
	"github.com/homenavi/petfeeder/internal/models"
)

type fakeAPI struct {
	gotID string
	resp  models.HistoryResponse
	err   error
}

func (f *fakeAPI) FetchHistory(_ context.Context, id string) (models.HistoryResponse, error) {
	f.gotID = id
	return f.resp, f.err
}

func sampleReport() Report {
	return Report{
		DeviceID:        "feeder-1",
		LatestFoodLevel: 0.75,
		Events: []models.FeedEvent{
			{ID: "e1", FeedingTime: time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC), TriggerType: models.TriggerSchedule},
			{ID: "e2", FeedingTime: time.Date(2024, 5, 1, 9, 42, 0, 0, time.UTC), TriggerType: models.TriggerMotion},
		},
	}
}

func TestLoadUnpaired(t *testing.T) {
	api := &fakeAPI{}
	_, err := NewViewer(api, cache.NewMemory()).Load(context.Background())
	if !errors.Is(err, ErrUnpaired) {
		t.Fatalf("expected ErrUnpaired, got %v", err)
	}
	if api.gotID != "" {
		t.Fatalf("backend must not be called without a device")
	}
}

func TestLoadUsesPairedDevice(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	_ = cache.SaveDeviceControl(ctx, store, models.DeviceControl{DeviceID: "feeder-1"})
	api := &fakeAPI{resp: models.HistoryResponse{
		History: sampleReport().Events,
		Stats:   models.HistoryStats{LatestFoodLevel: 0.75},
	}}

	r, err := NewViewer(api, store).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if api.gotID != "feeder-1" || r.DeviceID != "feeder-1" || len(r.Events) != 2 || r.LatestFoodLevel != 0.75 {
		t.Fatalf("unexpected report %+v", r)
	}
	if Label(r.Events[0]) != "scheduled" || Label(r.Events[1]) != "automatic" {
		t.Fatalf("unexpected labels")
	}
}

func TestLoadRemoteError(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	_ = cache.SaveDeviceControl(ctx, store, models.DeviceControl{DeviceID: "feeder-1"})
	boom := errors.New("boom")
	if _, err := NewViewer(&fakeAPI{err: boom}, store).Load(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped remote error, got %v", err)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleReport(), time.UTC); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "time,trigger,id\n07:00 01/05/2024,scheduled,e1\n09:42 01/05/2024,automatic,e2\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleReport(), time.UTC); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue("summary", "B3"); v != "feeder-1" {
		t.Fatalf("unexpected device cell %q", v)
	}
	if v, _ := f.GetCellValue("events", "B3"); v != "automatic" {
		t.Fatalf("unexpected trigger cell %q", v)
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, sampleReport(), time.UTC); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "%PDF-") {
		t.Fatalf("expected a PDF document")
	}
}

func TestExportRejectsUnknownExtension(t *testing.T) {
	if err := Export(&bytes.Buffer{}, "history.docx", sampleReport(), time.UTC); err == nil {
		t.Fatalf("expected error")
	}
}
