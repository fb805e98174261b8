package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/nhle/universal-inbox/internal/model"
	inboxsync "github.com/nhle/universal-inbox/internal/sync"
)

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync a user's notifications and tasks once",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User to sync",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Only sync this provider",
			},
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "What to sync: notifications, tasks or all",
				Value:   "all",
			},
		},
		Action: withApplication(runSync),
	}
}

func runSync(c *cli.Context, app *application) error {
	kind, err := parseProvider(c.String("provider"))
	if err != nil {
		return err
	}
	syncTypes, err := parseSyncTypes(c.String("type"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var all []inboxsync.SyncResult
	var errs []error
	for _, syncType := range syncTypes {
		// With both types requested, a provider lacking one is synced for
		// the other only.
		if kind != nil && len(syncTypes) > 1 && !slices.Contains(app.registry.Kinds(syncType), *kind) {
			continue
		}
		results, err := app.orch.Sync(ctx, syncType, kind, c.String("user"))
		all = append(all, results...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	printResults(c.App.Writer, all)
	return errors.Join(errs...)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Sync every connected user periodically until interrupted",
		Action: withApplication(runScheduler),
	}
}

func runScheduler(c *cli.Context, app *application) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := inboxsync.NewScheduler(app.orch, app.cfg.Sync)
	if err := scheduler.Start(); err != nil {
		return err
	}
	log.Info().Int("count", scheduler.JobCount()).Msg("scheduler started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	scheduler.Stop()

	printStatuses(c.App.Writer, app.orch.Statuses())
	return nil
}

func printResults(w io.Writer, results []inboxsync.SyncResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "Nothing to sync.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tTYPE\tFETCHED\tMODIFIED\tSTALE\tRESULT")
	for _, r := range results {
		outcome := "ok"
		switch {
		case r.Error != nil:
			outcome = "failed: " + r.Error.Error()
		case r.Skipped != "":
			outcome = "skipped: " + r.Skipped
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", r.Provider, r.SyncType, r.Fetched, r.Modified, r.Stale, outcome)
	}
	tw.Flush()
}

func printStatuses(w io.Writer, statuses []inboxsync.SyncStatus) {
	if len(statuses) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tPROVIDER\tTYPE\tSTATE\tLAST SYNC")
	for _, s := range statuses {
		state := s.State.String()
		if s.Error != nil {
			state += ": " + s.Error.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.UserID, s.Provider, s.SyncType, state, formatTime(s.LastSync))
	}
	tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

// formatSync summarizes the bookkeeping of one sync type.
func formatSync(b model.SyncBookkeeping) string {
	switch {
	case b.CompletedAt == nil && b.FailedAt == nil:
		return "never"
	case b.FailedAt != nil && (b.CompletedAt == nil || b.FailedAt.After(*b.CompletedAt)):
		return fmt.Sprintf("failed %s (%d in a row)", formatTime(*b.FailedAt), b.Failures)
	}
	return formatTime(*b.CompletedAt)
}
