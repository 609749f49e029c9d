package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/klauern/padsync/internal/backup"
	"github.com/klauern/padsync/internal/store"
	"github.com/klauern/padsync/internal/ui"
)

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Manage local profile snapshots",
		Description: `Snapshots are taken automatically before a sync or restore replaces a
   local profile (sync.auto_backup), and on demand with 'backup create'.`,
		Commands: []*cli.Command{
			backupListCommand(),
			backupCreateCommand(),
			backupRestoreCommand(),
			backupVerifyCommand(),
			backupDeleteCommand(),
			backupCleanupCommand(),
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return listBackups(ctx, "", "table", 0)
		},
	}
}

func backupListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List snapshots, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "profile",
				Usage: "Only list snapshots of this profile (name or id)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Show at most this many snapshots (0 = all)",
			},
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return listBackups(ctx, cmd.String("profile"), cmd.String("format"), cmd.Int("limit"))
		},
	}
}

func listBackups(ctx context.Context, profile, format string, limit int) error {
	switch format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid format %q (valid: table, json, yaml)", format)
	}

	a, err := openLocal(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var profileID string
	if profile != "" {
		if profileID, err = a.profileID(ctx, profile); err != nil {
			return err
		}
	}
	backups, err := a.backups.List(profileID)
	if err != nil {
		return err
	}
	if limit > 0 && len(backups) > limit {
		backups = backups[:limit]
	}

	if format != "table" {
		return writeStructured(backups, format)
	}
	return outputBackupsTable(backups)
}

func outputBackupsTable(backups []backup.Metadata) error {
	if len(backups) == 0 {
		fmt.Println("No backups found")
		return nil
	}

	fmt.Println(ui.Header(fmt.Sprintf("%-25s  %-20s  %-19s  %9s  %s", "ID", "PROFILE", "CREATED", "SIZE", "DESCRIPTION")))
	for _, b := range backups {
		fmt.Printf("%-25s  %-20s  %-19s  %9s  %s\n",
			b.ID,
			truncate(b.ProfileName, 20),
			ui.FormatTime(b.CreatedAt),
			formatSize(b.Size),
			b.Description,
		)
	}
	return nil
}

func backupCreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Snapshot a profile now",
		ArgsUsage: "<profile>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "description",
				Aliases: []string{"m"},
				Value:   "manual",
				Usage:   "Description stored with the snapshot",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Create a snapshot even if nothing changed since the last one",
			},
		},
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
			meta, err := a.backups.Create(ds, backup.Options{
				Description: cmd.String("description"),
				Force:       cmd.Bool("force"),
			})
			if err != nil {
				return err
			}
			if meta == nil {
				fmt.Println(ui.StatusSkipped("Unchanged since the last snapshot"))
				return nil
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Created backup %s (%s)", meta.ID, formatSize(meta.Size))))
			return nil
		},
	}
}

func backupRestoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore a profile from a snapshot",
		ArgsUsage: "<backup-id>",
		Description: `Replace the profile's local contents with the snapshot. The current
   contents are snapshotted first. Restored values are restamped, so the
   next sync pushes them to the remote.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("restore requires a backup id")
			}

			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			snapshot, meta, err := a.backups.Load(cmd.Args().First())
			if err != nil {
				return err
			}

			current, err := a.store.ReadDataset(ctx, meta.ProfileID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				current = nil
			case err != nil:
				return err
			default:
				if _, err := a.backups.Create(current, backup.Options{Description: "before restore"}); err != nil {
					return err
				}
			}

			restored := backup.Rebase(current, snapshot, time.Now())
			if err := a.store.ApplyDataset(ctx, meta.ProfileID, restored); err != nil {
				return err
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Restored %s from %s", meta.ProfileName, meta.ID)))
			fmt.Printf("  %d pads, %d pages, %d audio file(s)\n",
				len(restored.PadConfigurations), len(restored.PageMetadata), len(restored.AudioFiles))
			return nil
		},
	}
}

func backupVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check snapshot files against their recorded hashes",
		ArgsUsage: "[backup-id...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ids := cmd.Args().Slice()
			if len(ids) == 0 {
				all, err := a.backups.List("")
				if err != nil {
					return err
				}
				for _, b := range all {
					ids = append(ids, b.ID)
				}
			}
			if len(ids) == 0 {
				fmt.Println("No backups found")
				return nil
			}

			failed := 0
			for _, id := range ids {
				if err := a.backups.Verify(id); err != nil {
					failed++
					fmt.Println(ui.StatusError(fmt.Sprintf("%s: %v", id, err)))
					continue
				}
				fmt.Println(ui.StatusSuccess(id))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d backup(s) failed verification", failed, len(ids))
			}
			return nil
		},
	}
}

func backupDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete snapshots by id",
		ArgsUsage: "<backup-id...>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Delete without confirmation",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ids := cmd.Args().Slice()
			if len(ids) == 0 {
				return errors.New("delete requires at least one backup id")
			}
			if !cmd.Bool("force") {
				return errors.New("refusing to delete backups without --force")
			}

			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, ref := range ids {
				meta, err := a.backups.Get(ref)
				if err != nil {
					return err
				}
				if err := a.backups.Delete(meta.ID); err != nil {
					return err
				}
				fmt.Println(ui.StatusSuccess("Deleted " + meta.ID))
			}
			return nil
		},
	}
}

func backupCleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Apply the retention policy",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "keep",
				Usage: "Snapshots to keep per profile (default: backup.max_backups)",
			},
			&cli.StringFlag{
				Name:  "older-than",
				Usage: "Delete snapshots older than this, e.g. 30d, 2w, 72h (default: backup.max_age)",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "Only clean up this profile (name or id)",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Show what would be deleted",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := backup.DefaultCleanupOptions()
			opts.MaxBackups = a.cfg.Backup.MaxBackups
			opts.MaxAge = a.cfg.Backup.MaxAge
			opts.DryRun = cmd.Bool("dry-run")
			if cmd.IsSet("keep") {
				opts.MaxBackups = cmd.Int("keep")
			}
			if s := cmd.String("older-than"); s != "" {
				if opts.MaxAge, err = parseDuration(s); err != nil {
					return err
				}
			}
			if p := cmd.String("profile"); p != "" {
				if opts.ProfileID, err = a.profileID(ctx, p); err != nil {
					return err
				}
			}

			deleted, err := a.backups.Cleanup(opts)
			if err != nil {
				return err
			}
			switch {
			case len(deleted) == 0:
				fmt.Println("No backups to clean up")
			case opts.DryRun:
				fmt.Printf("Would delete %d backup(s):\n", len(deleted))
				for _, id := range deleted {
					fmt.Printf("  %s\n", id)
				}
			default:
				fmt.Println(ui.StatusSuccess(fmt.Sprintf("Deleted %d backup(s)", len(deleted))))
			}
			return nil
		},
	}
}

// lastBackup returns the newest snapshot of a profile, or nil.
func lastBackup(m *backup.Manager, profileID string) *backup.Metadata {
	backups, err := m.List(profileID)
	if err != nil || len(backups) == 0 {
		return nil
	}
	return &backups[0]
}
