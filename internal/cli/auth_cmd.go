package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/klauern/padsync/internal/config"
	"github.com/klauern/padsync/internal/ui"
)

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Google Drive credentials",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize padsync to use its Drive app folder",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "code",
						Usage: "Authorization code (skips the prompt)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := driveApp(ctx)
					if err != nil {
						return err
					}
					session, err := a.openSession()
					if err != nil {
						return err
					}

					code := cmd.String("code")
					if code == "" {
						fmt.Println("Open this URL in a browser and approve access:")
						fmt.Printf("\n  %s\n\n", session.AuthCodeURL(uuid.NewString()))
						fmt.Print("Paste the authorization code: ")
						line, err := bufio.NewReader(os.Stdin).ReadString('\n')
						if err != nil && line == "" {
							return fmt.Errorf("failed to read code: %w", err)
						}
						code = strings.TrimSpace(line)
					}
					if code == "" {
						return errors.New("no authorization code given")
					}

					if err := session.Exchange(ctx, code); err != nil {
						return err
					}
					fmt.Println(ui.StatusSuccess("Logged in, token saved to " + a.cfg.TokenFile()))
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "Show whether a token is stored",
				Action: func(ctx context.Context, _ *cli.Command) error {
					a, err := driveApp(ctx)
					if err != nil {
						return err
					}
					session, err := a.openSession()
					if err != nil {
						return err
					}

					tok := session.Current()
					if tok == nil {
						fmt.Println(ui.StatusWarning("Not logged in, run 'padsync auth login'"))
						return nil
					}
					fmt.Println(ui.StatusSuccess("Logged in"))
					fmt.Printf("  token file: %s\n", a.cfg.TokenFile())
					if !tok.Expiry.IsZero() {
						fmt.Printf("  expires:    %s\n", ui.FormatTime(tok.Expiry))
					}
					if tok.RefreshToken == "" {
						fmt.Println(ui.Dim("  no refresh token, you will need to log in again when it expires"))
					}
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Delete the stored token",
				Action: func(ctx context.Context, _ *cli.Command) error {
					a, err := driveApp(ctx)
					if err != nil {
						return err
					}
					session, err := a.openSession()
					if err != nil {
						return err
					}
					if err := session.Logout(); err != nil {
						return err
					}
					fmt.Println(ui.StatusSuccess("Logged out"))
					return nil
				},
			},
		},
	}
}

// driveApp returns an app without opening any store; auth only needs config.
func driveApp(ctx context.Context) (*app, error) {
	cfg, err := configFrom(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Remote.Backend != config.BackendDrive {
		return nil, fmt.Errorf("remote backend is %q, auth only applies to %q", cfg.Remote.Backend, config.BackendDrive)
	}
	return &app{cfg: cfg}, nil
}
