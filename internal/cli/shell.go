package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/homenavi/petfeeder/internal/feederapi"
	"github.com/homenavi/petfeeder/internal/reconcile"
	"github.com/homenavi/petfeeder/internal/schedule"
)

const shellHelp = `commands:
  show              print the working copy
  auto              switch between auto and manual mode
  toggle <n>        enable/disable feeding time n
  add <HH:mm>       add a feeding time
  edit <n> <HH:mm>  change feeding time n
  delete <n>        remove feeding time n
  save              send the schedule to the feeder
  discard           drop unsaved changes
  pair <device-id>  switch to another feeder
  status            show sync state
  quit              leave (unsaved changes are dropped)
`

// shell runs an editing session over stdin. Entry numbers are 1-based.
func (a *App) shell(ctx context.Context) error {
	f := a.flow()
	defer f.Close()
	if err := f.Start(ctx); err != nil {
		return err
	}
	if f.Status().State == reconcile.Unpaired {
		fmt.Fprintln(a.Stdout, "no feeder paired; use: pair <device-id>")
	} else {
		a.show(f)
	}

	for {
		fmt.Fprint(a.Stdout, "> ")
		line, err := a.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)
		fields := strings.Fields(line)
		if len(fields) > 0 {
			if done := a.exec(ctx, f, fields); done {
				return nil
			}
		}
		if eof {
			a.leave(f)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// exec runs one shell command and reports whether the session should end.
func (a *App) exec(ctx context.Context, f *reconcile.Flow, fields []string) bool {
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	var err error
	switch cmd {
	case "show", "ls":
		a.show(f)
		return false
	case "auto":
		err = f.ToggleAutoStatus()
	case "toggle":
		err = withIndex(args, 1, func(i int) error { return f.ToggleSchedule(i) })
	case "add":
		if len(args) != 1 {
			err = errors.New("usage: add <HH:mm>")
			break
		}
		err = f.AddSchedule(args[0])
	case "edit":
		err = withIndex(args, 2, func(i int) error { return f.EditSchedule(i, args[1]) })
	case "delete", "rm":
		err = withIndex(args, 1, func(i int) error { return f.DeleteSchedule(i) })
	case "discard":
		err = f.DiscardEdits()
	case "save":
		err = f.Commit(ctx)
		if err == nil {
			fmt.Fprintln(a.Stdout, "saved")
		}
	case "pair":
		if len(args) != 1 {
			err = errors.New("usage: pair <device-id>")
			break
		}
		if f.IsDirty() {
			fmt.Fprintln(a.Stdout, "unsaved changes of the current feeder are dropped")
		}
		err = f.Pair(ctx, args[0])
		if err == nil {
			a.show(f)
		}
	case "status":
		writeStatus(a.Stdout, f.Status(), a.Location)
		return false
	case "help", "?":
		fmt.Fprint(a.Stdout, shellHelp)
		return false
	case "quit", "exit", "q":
		a.leave(f)
		return true
	default:
		err = fmt.Errorf("unknown command %q (try help)", cmd)
	}
	if err != nil {
		fmt.Fprintf(a.Stdout, "error: %s\n", Describe(err))
		return false
	}
	if cmd != "save" && cmd != "pair" {
		a.show(f)
	}
	return false
}

func (a *App) show(f *reconcile.Flow) {
	dc, ok := f.Current()
	if !ok {
		fmt.Fprintln(a.Stdout, "no feeder paired")
		return
	}
	writeSchedule(a.Stdout, dc, f.IsDirty())
}

func (a *App) leave(f *reconcile.Flow) {
	if f.IsDirty() {
		fmt.Fprintln(a.Stdout, "unsaved changes dropped")
	}
}

func withIndex(args []string, want int, fn func(int) error) error {
	if len(args) != want {
		return errors.New("wrong number of arguments (try help)")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%q is not an entry number", args[0])
	}
	return fn(n - 1)
}

// Describe turns library errors into user-facing messages.
func Describe(err error) string {
	var se *feederapi.StatusError
	switch {
	case errors.Is(err, schedule.ErrModeLocked):
		return "the schedule can't be changed in auto mode (use: auto)"
	case errors.Is(err, schedule.ErrInvalidTimeFormat):
		return "time must look like 07:30 (24-hour)"
	case errors.Is(err, schedule.ErrInvalidIndex):
		return "no such entry"
	case errors.Is(err, reconcile.ErrNotReady):
		return "no feeder paired; use: pair <device-id>"
	case errors.Is(err, feederapi.ErrNotFound):
		return "device not found"
	case errors.As(err, &se) && se.Message != "":
		return se.Message
	default:
		return err.Error()
	}
}
