package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/homenavi/petfeeder/internal/history"
	"github.com/homenavi/petfeeder/internal/models"
	"github.com/homenavi/petfeeder/internal/reconcile"
)

func (a *App) render(v any, text func(io.Writer)) error {
	if strings.EqualFold(a.Output, "yaml") {
		enc := yaml.NewEncoder(a.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	text(a.Stdout)
	return nil
}

func writeSchedule(w io.Writer, dc models.DeviceControl, dirty bool) {
	fmt.Fprintf(w, "device: %s\n", dc.DeviceID)
	fmt.Fprintf(w, "mode:   %s\n", dc.AutoStatus)
	if dc.AutoStatus == models.Auto {
		fmt.Fprintln(w, "(auto mode: the feeder ignores the schedule below)")
	}
	if len(dc.Schedule) == 0 {
		fmt.Fprintln(w, "no feeding times")
	}
	for i, e := range dc.Schedule {
		state := "on"
		if !e.Enabled {
			state = "off"
		}
		fmt.Fprintf(w, "%3d. %-5s  %s\n", i+1, e.Time, state)
	}
	if dirty {
		fmt.Fprintln(w, "* unsaved changes")
	}
}

func writeReport(w io.Writer, r history.Report, loc *time.Location) {
	fmt.Fprintf(w, "device:    %s\n", r.DeviceID)
	fmt.Fprintf(w, "food left: %.2f kg\n", r.LatestFoodLevel)
	if len(r.Events) == 0 {
		fmt.Fprintln(w, "no feeds recorded")
		return
	}
	for _, e := range r.Events {
		fmt.Fprintf(w, "  %s  %s\n", e.FeedingTime.In(loc).Format(history.TimeLayout), history.Label(e))
	}
}

func writeStatus(w io.Writer, st reconcile.Status, loc *time.Location) {
	fmt.Fprintf(w, "state: %s\n", st.State)
	if st.DeviceID != "" {
		fmt.Fprintf(w, "device: %s\n", st.DeviceID)
	}
	fmt.Fprintf(w, "unsaved changes: %t\n", st.Dirty)
	if !st.SyncedAt.IsZero() {
		fmt.Fprintf(w, "last saved: %s\n", st.SyncedAt.In(loc).Format(history.TimeLayout))
	}
	if st.Err != nil {
		fmt.Fprintf(w, "last error: %v\n", st.Err)
	}
}
