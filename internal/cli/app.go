package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/homenavi/petfeeder/internal/auth"
	"github.com/homenavi/petfeeder/internal/cache"
	"github.com/homenavi/petfeeder/internal/feederapi"
	"github.com/homenavi/petfeeder/internal/history"
	"github.com/homenavi/petfeeder/internal/observability"
	"github.com/homenavi/petfeeder/internal/reconcile"
	"github.com/homenavi/petfeeder/internal/schedule"
)

var ErrUsage = errors.New("usage error")

// App wires the client packages behind the petfeeder subcommands.
type App struct {
	Store    cache.Store
	API      *feederapi.Client
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Timeout  time.Duration
	Location *time.Location
	Output   string // "text" or "yaml"

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	in *bufio.Reader
}

const usage = `usage: petfeeder [flags] <command> [args]

commands:
  register <username> [password]   create an account
  login <username> [password]      log in and remember the session
  logout                           forget token and paired device
  pair <device-id>                 pair with a feeder
  schedule                         print the paired feeder's schedule
  schedule ics                     print the schedule as iCalendar
  history [-export file]           show feed history (.xlsx, .pdf or .csv export)
  shell                            edit the schedule interactively
`

func (a *App) Usage() string { return usage }

func (a *App) Run(ctx context.Context, args []string) error {
	a.defaults()
	if len(args) == 0 {
		fmt.Fprint(a.Stderr, usage)
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "register":
		return a.register(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.accounts().Logout(ctx)
	case "pair":
		return a.pair(ctx, rest)
	case "schedule":
		return a.schedule(ctx, rest)
	case "history":
		return a.history(ctx, rest)
	case "shell":
		return a.shell(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.Stdout, usage)
		return nil
	default:
		fmt.Fprintf(a.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return ErrUsage
	}
}

func (a *App) defaults() {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.Location == nil {
		a.Location = time.Local
	}
	if a.Stdin == nil {
		a.Stdin = os.Stdin
	}
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}
	if a.in == nil {
		a.in = bufio.NewReader(a.Stdin)
	}
}

func (a *App) accounts() *auth.Service {
	return auth.NewService(a.API, a.Store, a.Logger)
}

func (a *App) flow() *reconcile.Flow {
	return reconcile.New(a.Store, a.API, reconcile.Options{Timeout: a.Timeout, Logger: a.Logger, Metrics: a.Metrics})
}

// credentials takes the username from args and the password from args or,
// failing that, from the next input line.
func (a *App) credentials(cmd string, args []string) (string, string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", "", fmt.Errorf("%w: petfeeder %s <username> [password]", ErrUsage, cmd)
	}
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	fmt.Fprint(a.Stderr, "password: ")
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", err
	}
	return args[0], strings.TrimRight(line, "\r\n"), nil
}

func (a *App) register(ctx context.Context, args []string) error {
	username, password, err := a.credentials("register", args)
	if err != nil {
		return err
	}
	if _, err := a.accounts().Register(ctx, username, password); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "account %s created, you can log in now\n", username)
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	username, password, err := a.credentials("login", args)
	if err != nil {
		return err
	}
	resp, err := a.accounts().Login(ctx, username, password)
	if err != nil {
		return err
	}
	if resp.DeviceControl != nil && resp.DeviceControl.DeviceID != "" {
		fmt.Fprintf(a.Stdout, "logged in as %s, paired with %s\n", username, resp.DeviceControl.DeviceID)
	} else {
		fmt.Fprintf(a.Stdout, "logged in as %s, no feeder paired yet (petfeeder pair <device-id>)\n", username)
	}
	return nil
}

func (a *App) pair(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: petfeeder pair <device-id>", ErrUsage)
	}
	f := a.flow()
	if err := f.Pair(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "paired with %s\n", args[0])
	return nil
}

func (a *App) schedule(ctx context.Context, args []string) error {
	f := a.flow()
	if err := f.Start(ctx); err != nil {
		return err
	}
	dc, ok := f.Current()
	if !ok {
		return history.ErrUnpaired
	}
	if len(args) > 0 {
		if args[0] != "ics" {
			return fmt.Errorf("%w: petfeeder schedule [ics]", ErrUsage)
		}
		return schedule.WriteICS(a.Stdout, dc, a.Location, time.Now())
	}
	return a.render(dc, func(w io.Writer) { writeSchedule(w, dc, false) })
}

func (a *App) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	export := fs.String("export", "", "write the history to a .xlsx, .pdf or .csv file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	report, err := history.NewViewer(a.API, a.Store).Load(ctx)
	if err != nil {
		return err
	}
	if *export != "" {
		f, err := os.Create(*export)
		if err != nil {
			return err
		}
		if err := history.Export(f, *export, report, a.Location); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "wrote %d feeds to %s\n", len(report.Events), *export)
		return nil
	}
	return a.render(report, func(w io.Writer) { writeReport(w, report, a.Location) })
}
