package schedule

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/homenavi/petfeeder/internal/models"
)

// WriteICS renders the enabled entries of a manual-mode schedule as daily
// recurring events. Auto mode produces an empty calendar since the device
// ignores its schedule then. Events start on the day of now in loc.
func WriteICS(w io.Writer, dc models.DeviceControl, loc *time.Location, now time.Time) error {
	if loc == nil {
		loc = time.Local
	}
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//homenavi//petfeeder//EN")
	cal.SetName("Feeding schedule " + dc.DeviceID)

	if dc.AutoStatus == models.Manual {
		day := now.In(loc)
		for i, entry := range dc.Schedule {
			if !entry.Enabled {
				continue
			}
			h, m, err := splitTime(entry.Time)
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			start := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
			ev := cal.AddEvent(fmt.Sprintf("%s-%d-%02d%02d@petfeeder", dc.DeviceID, i, h, m))
			ev.SetDtStampTime(now.UTC())
			ev.SetStartAt(start)
			ev.SetEndAt(start.Add(5 * time.Minute))
			ev.SetSummary("Feed " + dc.DeviceID)
			ev.AddRrule("FREQ=DAILY")
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

func splitTime(text string) (int, int, error) {
	if !ValidTime(text) {
		return 0, 0, ErrInvalidTimeFormat
	}
	hh, mm, _ := strings.Cut(text, ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return h, m, nil
}
