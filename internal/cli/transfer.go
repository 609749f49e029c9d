package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/klauern/padsync/internal/backup"
	"github.com/klauern/padsync/internal/model"
	"github.com/klauern/padsync/internal/ui"
)

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a profile dataset to a JSON file",
		ArgsUsage: "<profile> <file|->",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return errors.New("export requires 2 arguments: <profile> <file|->")
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
			ds, err := a.store.ReadDataset(ctx, id)
			if err != nil {
				return err
			}

			path := cmd.Args().Get(1)
			if path == "-" {
				return model.Encode(os.Stdout, ds)
			}
			if err := writeDatasetFile(path, ds); err != nil {
				return err
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Exported %s to %s", ds.Profile.Name, path)))
			return nil
		},
	}
}

func writeDatasetFile(path string, ds *model.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	// #nosec G304 - path is provided by the user
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := model.Encode(f, ds); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Load a profile dataset from a JSON file",
		ArgsUsage: "<file|->",
		Description: `Import a dataset written by 'padsync export'.

   Without --into a new profile is created. With --into the dataset replaces
   the contents of an existing profile; changed values are restamped so the
   next sync pushes them.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Name for the new profile (default: the dataset's name)",
			},
			&cli.StringFlag{
				Name:  "into",
				Usage: "Replace an existing profile instead of creating one",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("import requires a file argument")
			}
			ds, err := readDatasetFile(cmd.Args().First())
			if err != nil {
				return err
			}
			if err := ds.Validate(); err != nil {
				return fmt.Errorf("invalid dataset: %w", err)
			}

			a, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var id string
			if into := cmd.String("into"); into != "" {
				if id, err = a.profileID(ctx, into); err != nil {
					return err
				}
			} else {
				name := cmd.String("name")
				if name == "" {
					name = ds.Profile.Name
				}
				p, err := a.store.CreateProfile(ctx, name)
				if err != nil {
					return err
				}
				id = p.ID
				ds.Profile.Name = p.Name
			}

			current, err := a.store.ReadDataset(ctx, id)
			if err != nil {
				return err
			}
			if cmd.String("into") != "" {
				if _, err := a.backups.Create(current, backup.Options{Description: "before import"}); err != nil {
					return err
				}
			}

			rebased := backup.Rebase(current, ds, time.Now())
			if err := a.store.ApplyDataset(ctx, id, rebased); err != nil {
				return err
			}
			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Imported %s into %s (%d pads, %d pages)",
				rebased.Profile.Name, id, len(rebased.PadConfigurations), len(rebased.PageMetadata))))
			return nil
		},
	}
}

func readDatasetFile(path string) (*model.Dataset, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		// #nosec G304 - path is provided by the user
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return model.Decode(r)
}
