package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/model"
	"github.com/klauern/padsync/internal/progress"
	"github.com/klauern/padsync/internal/resolve"
	"github.com/klauern/padsync/internal/sync"
	"github.com/klauern/padsync/internal/ui"
	"github.com/klauern/padsync/internal/ui/tui"
)

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Synchronize profiles with the remote",
		UsageText: "padsync sync [options] <profile>",
		Description: `Merge the local profile with its remote copy and write the result to both.

   Fields changed on only one side merge automatically. When both sides
   changed the same field, or one side deleted an item the other still has,
   you decide: interactively (default), in a terminal UI (--tui), or for
   every conflict at once (--prefer local|remote).

   Examples:
     padsync sync "Friday Show"
     padsync sync --tui "Friday Show"
     padsync sync --all --prefer local`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "Sync every local profile",
			},
			&cli.StringFlag{
				Name:    "prefer",
				Aliases: []string{"p"},
				Usage:   "Resolve every conflict towards one side (local, remote)",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Resolve conflicts in the interactive terminal UI",
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
			if cmd.Bool("all") && cmd.Args().Len() > 0 {
				return errors.New("--all does not take a profile argument")
			}
			if !cmd.Bool("all") && cmd.Args().Len() != 1 {
				return errors.New("sync requires a profile (or --all)")
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Bool("all") {
				return syncAll(ctx, a, prefer)
			}

			id, err := a.profileID(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			return syncOne(ctx, a, id, pickResolver(prefer, cmd.Bool("tui")))
		},
	}
}

// pickResolver returns the resolver for the sync flags.
func pickResolver(prefer resolve.Choice, useTUI bool) resolve.Resolver {
	switch {
	case prefer != "":
		return resolve.Prefer(prefer)
	case useTUI:
		return tui.Resolver{}
	default:
		return NewConflictPrompt()
	}
}

func syncOne(ctx context.Context, a *app, id string, r resolve.Resolver) error {
	bar := progress.Spinner("Syncing " + id)
	out, err := a.orch.Sync(ctx, id, sync.TriggerManual)
	_ = bar.Clear()
	if err != nil {
		if hint := errorHint(err); hint != "" {
			fmt.Println(ui.Dim(hint))
		}
		return err
	}

	if out.State == sync.StateConflict {
		out, err = resolveAndCommit(ctx, a, out, r)
		if errors.Is(err, errAborted) || errors.Is(err, tui.ErrCancelled) {
			fmt.Println(ui.StatusWarning("Left unresolved, no changes were written"))
			return nil
		}
		if err != nil {
			return err
		}
	}
	printOutcome(out)
	return nil
}

// resolveAndCommit collects decisions for a conflict outcome and commits the
// resolved dataset. The conflict gate is dismissed when no commit happens.
func resolveAndCommit(ctx context.Context, a *app, out *sync.Outcome, r resolve.Resolver) (*sync.Outcome, error) {
	resolved, err := resolve.Run(ctx, out.Detection, r, time.Now())
	if err != nil {
		a.orch.Dismiss(out.ProfileID)
		return out, err
	}
	logging.Info("conflicts resolved", logging.Profile(out.ProfileID), logging.Count(len(out.Conflicts())))
	return a.orch.Commit(ctx, resolved, out.Handle, out.ProfileID)
}

func syncAll(ctx context.Context, a *app, prefer resolve.Choice) error {
	profiles, err := a.store.ListProfiles(ctx)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles found")
		return nil
	}

	bar := progress.Simple(int64(len(profiles)), "Syncing")
	var outcomes []*sync.Outcome
	var failed, unresolved int
	for _, p := range profiles {
		bar.Describe("Syncing " + p.Name)
		out, err := a.orch.Sync(ctx, p.ID, sync.TriggerManual)
		if err == nil && out.State == sync.StateConflict {
			if prefer != "" {
				out, err = resolveAndCommit(ctx, a, out, resolve.Prefer(prefer))
			} else {
				unresolved++
				a.orch.Dismiss(p.ID)
			}
		}
		if err != nil {
			failed++
		}
		outcomes = append(outcomes, out)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	for _, out := range outcomes {
		printOutcome(out)
	}
	if unresolved > 0 {
		fmt.Println(ui.StatusWarning(fmt.Sprintf("%d profile(s) need resolution, run 'padsync sync <profile>' or pass --prefer", unresolved)))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d profile(s) failed to sync", failed, len(profiles))
	}
	return nil
}

func printOutcome(out *sync.Outcome) {
	if out == nil {
		return
	}
	switch {
	case out.Skipped:
		fmt.Print(ui.StatusSkipped(out.Summary()))
	case out.State == sync.StateSuccess:
		fmt.Print(ui.StatusSuccess(out.Summary()))
	case out.State == sync.StateError:
		fmt.Print(ui.StatusError(out.Summary()))
		if hint := errorHint(out.Err); hint != "" {
			fmt.Println(ui.Dim("  " + hint))
		}
	default:
		fmt.Print(ui.StatusWarning(out.Summary()))
	}
}

// errorHint suggests a next step for a classified sync error.
func errorHint(err error) string {
	switch sync.KindOf(err) {
	case sync.KindNotAuthenticated, sync.KindAuthExpired:
		return "run 'padsync auth login' to sign in again"
	case sync.KindNetwork:
		return "the remote is unreachable, the next sync will retry"
	case sync.KindRateLimited:
		return "the remote asked to back off, syncing resumes automatically"
	case sync.KindInvalidDataset:
		return "a dataset has duplicate keys, check 'padsync profile show'"
	case sync.KindRemoteTaken:
		return "another local profile already syncs to this name, rename one with 'padsync profile set --name'"
	default:
		return ""
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the sync status of a profile",
		ArgsUsage: "<profile>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.profileID(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			ds, err := a.store.ReadDataset(ctx, id)
			if err != nil {
				return err
			}
			link, err := a.store.RemoteLink(ctx, id)
			if err != nil {
				return err
			}

			state := string(sync.StateIdle)
			if ds.ResumeAfter != nil && time.Now().Before(*ds.ResumeAfter) {
				state = string(sync.StatePaused)
			}

			fmt.Printf("%s %s\n", ui.Bold(ds.Profile.Name), ui.Dim("("+id+")"))
			fmt.Printf("  state:       %s\n", ui.StateLabel(state))
			fmt.Printf("  last sync:   %s\n", ui.FormatTime(ds.LastSync()))
			if ds.ResumeAfter != nil {
				fmt.Printf("  paused until %s\n", ui.FormatTime(*ds.ResumeAfter))
			}
			fmt.Printf("  remote file: %s\n", model.RemoteFileName(ds.Profile.Name))
			if link == "" {
				link = ui.Dim("not linked")
			}
			fmt.Printf("  remote id:   %s\n", link)
			fmt.Printf("  backend:     %s\n", a.cfg.Remote.Backend)
			if b := lastBackup(a.backups, id); b != nil {
				fmt.Printf("  last backup: %s %s\n", b.ID, ui.Dim(ui.FormatTime(b.CreatedAt)))
			}

			pending := countPending(ds)
			if ds.LastSync().IsZero() {
				fmt.Printf("  %s\n", ui.StatusPending("never synced"))
			} else if pending > 0 {
				fmt.Printf("  %s\n", ui.StatusPending(fmt.Sprintf("%d item(s) changed since last sync", pending)))
			} else {
				fmt.Printf("  %s\n", ui.StatusSuccess("up to date"))
			}
			return nil
		},
	}
}

// countPending counts items with a field changed after the last sync.
func countPending(ds *model.Dataset) int {
	last := ds.LastSync()
	n := 0
	if ds.Profile.Latest().After(last) {
		n++
	}
	for _, p := range ds.PadConfigurations {
		if p.Latest().After(last) {
			n++
		}
	}
	for _, p := range ds.PageMetadata {
		if p.Latest().After(last) {
			n++
		}
	}
	return n
}
