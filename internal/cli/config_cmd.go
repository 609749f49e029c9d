package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/padsync/internal/config"
	"github.com/klauern/padsync/internal/ui"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or initialize the configuration",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "toml",
						Usage: "Print as TOML instead of YAML",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := configFrom(ctx)
					if err != nil {
						return err
					}
					data, err := cfg.Marshal(cmd.Bool("toml"))
					if err != nil {
						return fmt.Errorf("failed to render config: %w", err)
					}
					fmt.Print(string(data))
					return nil
				},
			},
			{
				Name:  "path",
				Usage: "Print the default config file path",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Println(config.FilePath())
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write the default configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Overwrite an existing config file",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					if config.Exists() && !cmd.Bool("force") {
						return errors.New("config file already exists, use --force to overwrite")
					}
					if err := config.Default().Save(); err != nil {
						return fmt.Errorf("failed to write config: %w", err)
					}
					fmt.Println(ui.StatusSuccess("Wrote " + config.FilePath()))
					return nil
				},
			},
		},
	}
}
