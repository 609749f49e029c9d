package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/resolve"
	"github.com/klauern/padsync/internal/scheduler"
	"github.com/klauern/padsync/internal/sync"
	"github.com/klauern/padsync/internal/ui"
	"github.com/klauern/padsync/internal/util"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Keep profiles in sync until interrupted",
		ArgsUsage: "[profile...]",
		Description: `Sync on startup, every sync.interval, and whenever connectivity returns.
   With no profile arguments every local profile is watched.

   Conflicts are left for 'padsync sync' unless --prefer is given.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "prefer",
				Aliases: []string{"p"},
				Usage:   "Resolve conflicts towards one side (local, remote)",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Override sync.interval",
			},
			&cli.BoolFlag{
				Name:  "log-file",
				Usage: "Write logs to the padsync log file instead of stderr",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var prefer resolve.Choice
			if p := cmd.String("prefer"); p != "" {
				c, err := resolve.ParseChoice(p)
				if err != nil {
					return err
				}
				prefer = c
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Bool("log-file") && a.cfg.Logging.File == "" {
				a.cfg.Logging.File = util.PadsyncLogPath()
				if err := configureLogging(cmd.Root(), a.cfg); err != nil {
					return err
				}
			}

			var ids []string
			for _, ref := range cmd.Args().Slice() {
				id, err := a.profileID(ctx, ref)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			if len(ids) == 0 {
				profiles, err := a.store.ListProfiles(ctx)
				if err != nil {
					return err
				}
				for _, p := range profiles {
					ids = append(ids, p.ID)
				}
			}
			if len(ids) == 0 {
				fmt.Println("No profiles to watch")
				return nil
			}

			schedCfg := scheduler.Config{
				Interval:      a.cfg.Sync.Interval,
				ProbeInterval: a.cfg.Sync.ProbeInterval,
				OnStartup:     a.cfg.Sync.SyncOnStartup,
			}
			if cmd.IsSet("interval") {
				schedCfg.Interval = cmd.Duration("interval")
			}

			var prober scheduler.Prober
			if a.cfg.Sync.ProbeURL != "" {
				prober = scheduler.HTTPProber{URL: a.cfg.Sync.ProbeURL, Timeout: 5 * time.Second}
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := scheduler.New(a.orch, ids, prober, schedCfg)
			sched.OnOutcome = func(out *sync.Outcome, err error) {
				handleWatchOutcome(ctx, a, out, err, prefer)
			}

			fmt.Printf("Watching %d profile(s) every %s, press Ctrl+C to stop\n", len(ids), schedCfg.Interval)
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			fmt.Println(ui.Dim("stopped"))
			return nil
		},
	}
}

// handleWatchOutcome reports a background attempt and resolves conflicts
// when a preferred side is configured.
func handleWatchOutcome(ctx context.Context, a *app, out *sync.Outcome, err error, prefer resolve.Choice) {
	if out == nil || out.Skipped {
		return
	}
	logger := logging.With(logging.Profile(out.ProfileID), logging.Trigger(string(out.Trigger)))

	if err == nil && out.State == sync.StateConflict {
		if prefer == "" {
			logger.Warn("sync needs resolution, run 'padsync sync' for this profile",
				logging.Count(len(out.Conflicts())))
			a.orch.Dismiss(out.ProfileID)
			return
		}
		out, err = resolveAndCommit(ctx, a, out, resolve.Prefer(prefer))
	}
	if err != nil {
		return
	}
	if out.State == sync.StateSuccess && len(out.Changes) > 0 {
		fmt.Print(ui.StatusSuccess(out.Summary()))
	}
}
