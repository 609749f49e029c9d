package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/padsync/internal/model"
	"github.com/klauern/padsync/internal/progress"
	"github.com/klauern/padsync/internal/store"
	"github.com/klauern/padsync/internal/ui"
)

func profileCommand() *cli.Command {
	return &cli.Command{
		Name:    "profile",
		Aliases: []string{"profiles"},
		Usage:   "Create, inspect and edit local profiles",
		Commands: []*cli.Command{
			profileListCommand(),
			profileCreateCommand(),
			profileShowCommand(),
			profileSetCommand(),
			profilePadCommand(),
			profilePageCommand(),
			profileAudioCommand(),
			profileDeleteCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return listProfiles(ctx, "table")
		},
	}
}

func profileListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List local profiles",
		Flags: []cli.Flag{
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return listProfiles(ctx, cmd.String("format"))
		},
	}
}

func listProfiles(ctx context.Context, format string) error {
	a, err := openLocal(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	profiles, err := a.store.ListProfiles(ctx)
	if err != nil {
		return err
	}
	return outputProfiles(profiles, format)
}

func outputProfiles(profiles []store.ProfileSummary, format string) error {
	switch format {
	case "json", "yaml":
		type row struct {
			ID       string `json:"id" yaml:"id"`
			Name     string `json:"name" yaml:"name"`
			Pads     int    `json:"pads" yaml:"pads"`
			Pages    int    `json:"pages" yaml:"pages"`
			Modified string `json:"modified_at" yaml:"modified_at"`
			LastSync string `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
		}
		rows := make([]row, 0, len(profiles))
		for _, p := range profiles {
			rows = append(rows, row{p.ID, p.Name, p.Pads, p.Pages, p.ModifiedAt, p.LastSync})
		}
		return writeStructured(rows, format)
	case "table", "":
	default:
		return fmt.Errorf("invalid format %q (valid: table, json, yaml)", format)
	}

	if len(profiles) == 0 {
		fmt.Println("No profiles found. Create one with 'padsync profile create <name>'.")
		return nil
	}

	fmt.Printf("%s\n", ui.Header(fmt.Sprintf("%-36s  %-24s  %5s  %5s  %s", "ID", "NAME", "PADS", "PAGES", "LAST SYNC")))
	for _, p := range profiles {
		lastSync := p.LastSync
		if lastSync == "" {
			lastSync = ui.Dim("never")
		}
		fmt.Printf("%-36s  %-24s  %5d  %5d  %s\n", p.ID, truncate(p.Name, 24), p.Pads, p.Pages, lastSync)
	}
	return nil
}

func profileCreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Aliases:   []string{"new"},
		Usage:     "Create an empty profile",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(name) == "" {
				return errors.New("create requires a profile name")
			}

			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.store.CreateProfile(ctx, name)
			if err != nil {
				return err
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Created profile %s (%s)", ui.Bold(p.Name), p.ID)))
			fmt.Printf("  remote file: %s\n", model.RemoteFileName(p.Name))
			return nil
		},
	}
}

func profileShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a profile with its pages and pads",
		ArgsUsage: "<profile>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "text",
				Usage:   "Output format: text, json",
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

			switch cmd.String("format") {
			case "json":
				return model.Encode(os.Stdout, ds)
			case "text", "":
				printDataset(ds)
				return nil
			default:
				return fmt.Errorf("invalid format %q (valid: text, json)", cmd.String("format"))
			}
		},
	}
}

func printDataset(ds *model.Dataset) {
	p := ds.Profile
	fmt.Printf("%s %s\n", ui.Bold(p.Name), ui.Dim("("+p.ID+")"))
	if p.Description != "" {
		fmt.Printf("  %s\n", p.Description)
	}
	fmt.Printf("  grid: %dx%d  volume: %.2f  tags: %s\n", p.GridRows, p.GridColumns, p.MasterVolume, ui.FormatValue(p.Tags))
	fmt.Printf("  last sync: %s\n", ui.FormatTime(ds.LastSync()))

	fmt.Printf("\n%s\n", ui.Header(fmt.Sprintf("Pages (%d)", len(ds.PageMetadata))))
	for _, pg := range ds.PageMetadata {
		hidden := ""
		if pg.Hidden {
			hidden = ui.Dim(" hidden")
		}
		fmt.Printf("  %3d  %-24s %s%s\n", pg.PageIndex, pg.Name, pg.Color, hidden)
	}

	fmt.Printf("\n%s\n", ui.Header(fmt.Sprintf("Pads (%d)", len(ds.PadConfigurations))))
	for _, pad := range ds.PadConfigurations {
		fmt.Printf("  %-6s %-24s vol %.2f  audio %s\n",
			model.PadKey(pad.PageIndex, pad.PadIndex), pad.Name, pad.Volume, ui.FormatValue(pad.AudioFileIDs))
	}

	if len(ds.AudioFiles) > 0 {
		fmt.Printf("\n%s\n", ui.Header(fmt.Sprintf("Audio (%d)", len(ds.AudioFiles))))
		for _, f := range ds.AudioFiles {
			fmt.Printf("  %3d  %-32s %s\n", f.ID, f.Name, formatSize(int64(len(f.Data))))
		}
	}
}

func profileSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Edit profile fields",
		ArgsUsage: "<profile>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Profile name"},
			&cli.StringFlag{Name: "description", Usage: "Profile description"},
			&cli.IntFlag{Name: "rows", Usage: "Grid rows"},
			&cli.IntFlag{Name: "columns", Usage: "Grid columns"},
			&cli.Float64Flag{Name: "volume", Usage: "Master volume (0.0-1.0)"},
			&cli.StringSliceFlag{Name: "tag", Usage: "Replace tags (repeatable)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.IsSet("volume") {
				if err := checkVolume(cmd.Float64("volume")); err != nil {
					return err
				}
			}

			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.profileID(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			changed, err := a.store.UpdateProfile(ctx, id, func(p *model.Profile) {
				if cmd.IsSet("name") {
					p.Name = cmd.String("name")
				}
				if cmd.IsSet("description") {
					p.Description = cmd.String("description")
				}
				if cmd.IsSet("rows") {
					p.GridRows = cmd.Int("rows")
				}
				if cmd.IsSet("columns") {
					p.GridColumns = cmd.Int("columns")
				}
				if cmd.IsSet("volume") {
					p.MasterVolume = cmd.Float64("volume")
				}
				if cmd.IsSet("tag") {
					p.Tags = cmd.StringSlice("tag")
				}
			})
			if err != nil {
				return err
			}
			printChanged("profile", changed)
			return nil
		},
	}
}

func profilePadCommand() *cli.Command {
	return &cli.Command{
		Name:      "pad",
		Usage:     "Create, edit or delete a pad",
		ArgsUsage: "<profile> <page:pad>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Pad label"},
			&cli.StringFlag{Name: "color", Usage: "Pad color"},
			&cli.Float64Flag{Name: "volume", Usage: "Pad volume (0.0-1.0)"},
			&cli.IntFlag{Name: "fade-in", Usage: "Fade in (ms)"},
			&cli.IntFlag{Name: "fade-out", Usage: "Fade out (ms)"},
			&cli.StringFlag{Name: "mode", Usage: "Playback mode (oneshot, loop, hold)"},
			&cli.StringFlag{Name: "shortcut", Usage: "Keyboard shortcut"},
			&cli.Int64SliceFlag{Name: "audio", Usage: "Audio file ids (repeatable, replaces the list)"},
			&cli.BoolFlag{Name: "delete", Usage: "Delete the pad"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return errors.New("pad requires 2 arguments: <profile> <page:pad>")
			}
			page, pad, err := model.ParsePadKey(cmd.Args().Get(1))
			if err != nil {
				return err
			}
			if cmd.IsSet("volume") {
				if err := checkVolume(cmd.Float64("volume")); err != nil {
					return err
				}
			}

			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.profileID(ctx, cmd.Args().First())
			if err != nil {
				return err
			}

			key := model.PadKey(page, pad)
			if cmd.Bool("delete") {
				if err := a.store.DeletePad(ctx, id, page, pad); err != nil {
					return err
				}
				fmt.Println(ui.StatusSuccess("Deleted pad " + key))
				return nil
			}

			changed, err := a.store.UpdatePad(ctx, id, page, pad, func(p *model.PadConfiguration) {
				if cmd.IsSet("name") {
					p.Name = cmd.String("name")
				}
				if cmd.IsSet("color") {
					p.Color = cmd.String("color")
				}
				if cmd.IsSet("volume") {
					p.Volume = cmd.Float64("volume")
				}
				if cmd.IsSet("fade-in") {
					p.FadeInMs = cmd.Int("fade-in")
				}
				if cmd.IsSet("fade-out") {
					p.FadeOutMs = cmd.Int("fade-out")
				}
				if cmd.IsSet("mode") {
					p.PlaybackMode = cmd.String("mode")
				}
				if cmd.IsSet("shortcut") {
					p.Shortcut = cmd.String("shortcut")
				}
				if cmd.IsSet("audio") {
					p.AudioFileIDs = cmd.Int64Slice("audio")
				}
			})
			if err != nil {
				return err
			}
			printChanged("pad "+key, changed)
			return nil
		},
	}
}

func profilePageCommand() *cli.Command {
	return &cli.Command{
		Name:      "page",
		Usage:     "Create, edit or delete a page",
		ArgsUsage: "<profile> <index>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Page name"},
			&cli.StringFlag{Name: "color", Usage: "Page color"},
			&cli.BoolFlag{Name: "hidden", Usage: "Hide or show the page (--hidden=false)"},
			&cli.BoolFlag{Name: "delete", Usage: "Delete the page metadata"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return errors.New("page requires 2 arguments: <profile> <index>")
			}
			index, err := strconv.Atoi(cmd.Args().Get(1))
			if err != nil || index < 0 {
				return fmt.Errorf("invalid page index %q", cmd.Args().Get(1))
			}

			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.profileID(ctx, cmd.Args().First())
			if err != nil {
				return err
			}

			if cmd.Bool("delete") {
				if err := a.store.DeletePage(ctx, id, index); err != nil {
					return err
				}
				fmt.Println(ui.StatusSuccess(fmt.Sprintf("Deleted page %d", index)))
				return nil
			}

			changed, err := a.store.UpdatePage(ctx, id, index, func(p *model.PageMetadata) {
				if cmd.IsSet("name") {
					p.Name = cmd.String("name")
				}
				if cmd.IsSet("color") {
					p.Color = cmd.String("color")
				}
				if cmd.IsSet("hidden") {
					p.Hidden = cmd.Bool("hidden")
				}
			})
			if err != nil {
				return err
			}
			printChanged(fmt.Sprintf("page %d", index), changed)
			return nil
		},
	}
}

func profileAudioCommand() *cli.Command {
	return &cli.Command{
		Name:      "audio",
		Usage:     "Import an audio file, optionally assigning it to a pad",
		ArgsUsage: "<profile> <file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "pad",
				Usage: "Append the audio to this pad (page:pad)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return errors.New("audio requires 2 arguments: <profile> <file>")
			}
			path := cmd.Args().Get(1)

			var page, pad int
			assign := cmd.String("pad") != ""
			if assign {
				var err error
				if page, pad, err = model.ParsePadKey(cmd.String("pad")); err != nil {
					return err
				}
			}

			data, err := readAudioFile(path)
			if err != nil {
				return fmt.Errorf("failed to read audio file: %w", err)
			}

			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.profileID(ctx, cmd.Args().First())
			if err != nil {
				return err
			}

			name := filepath.Base(path)
			mimeType := mime.TypeByExtension(filepath.Ext(name))
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			audioID, err := a.store.ImportAudio(ctx, id, name, mimeType, data)
			if err != nil {
				return err
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Imported %s as audio %d (%s)", name, audioID, formatSize(int64(len(data))))))

			if !assign {
				return nil
			}
			if _, err := a.store.UpdatePad(ctx, id, page, pad, func(p *model.PadConfiguration) {
				for _, existing := range p.AudioFileIDs {
					if existing == audioID {
						return
					}
				}
				p.AudioFileIDs = append(append([]int64{}, p.AudioFileIDs...), audioID)
			}); err != nil {
				return err
			}
			fmt.Printf("  assigned to pad %s\n", model.PadKey(page, pad))
			return nil
		},
	}
}

func profileDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a local profile",
		ArgsUsage: "<profile>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Delete without confirmation",
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
			if !cmd.Bool("force") {
				return fmt.Errorf("refusing to delete profile %s without --force", id)
			}
			if err := a.store.DeleteProfile(ctx, id); err != nil {
				return err
			}
			fmt.Println(ui.StatusSuccess("Deleted profile " + id))
			fmt.Println(ui.Dim("  The remote copy is left untouched."))
			return nil
		},
	}
}

func pruneAudioCommand() *cli.Command {
	return &cli.Command{
		Name:      "prune-audio",
		Usage:     "Delete audio files no pad references",
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
			removed, err := a.store.PruneAudio(ctx, id)
			if err != nil {
				return err
			}
			if removed == 0 {
				fmt.Println("No unreferenced audio files found")
				return nil
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Removed %d unreferenced audio file(s)", removed)))
			return nil
		},
	}
}

func checkVolume(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("volume %.2f out of range (0.0-1.0)", v)
	}
	return nil
}

func printChanged(what string, changed int) {
	if changed == 0 {
		fmt.Println(ui.StatusSkipped("No changes to " + what))
		return
	}
	fmt.Println(ui.StatusSuccess(fmt.Sprintf("Updated %s (%d field(s))", what, changed)))
}

// readAudioFile reads path with a byte progress bar, since audio clips can be large.
func readAudioFile(path string) ([]byte, error) {
	// #nosec G304 - path is provided by the user
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	r, bar := progress.Reader(f, info.Size(), "Reading "+filepath.Base(path))
	data, err := io.ReadAll(r)
	if err != nil {
		_ = bar.Clear()
		return nil, err
	}
	_ = bar.Finish()
	return data, nil
}
