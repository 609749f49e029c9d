package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/klauern/padsync/internal/auth"
	"github.com/klauern/padsync/internal/backup"
	"github.com/klauern/padsync/internal/config"
	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/remote/dirstore"
	"github.com/klauern/padsync/internal/remote/drive"
	"github.com/klauern/padsync/internal/store"
	"github.com/klauern/padsync/internal/sync"
)

// app bundles the stores a command works with. Close releases them.
type app struct {
	cfg     *config.Config
	store   *store.Store
	backups *backup.Manager
	session *auth.Session
	remote  sync.RemoteStore
	orch    *sync.Orchestrator
}

// openLocal opens the local database and backup directory.
func openLocal(ctx context.Context) (*app, error) {
	cfg, err := configFrom(ctx)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	mgr, err := backup.NewManager(cfg.BackupPath())
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &app{cfg: cfg, store: st, backups: mgr}, nil
}

// openApp opens the local stores plus the configured remote and wires the
// orchestrator over them.
func openApp(ctx context.Context) (*app, error) {
	a, err := openLocal(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	opts := sync.DefaultOptions()
	opts.Timeout = a.cfg.Sync.Timeout
	if a.session != nil {
		opts.Refresher = a.session
	}
	if a.cfg.Sync.AutoBackup {
		opts.BeforeApply = a.backups.Snapshot
	}
	a.orch = sync.NewOrchestrator(a.store, a.remote, opts)
	return a, nil
}

// connect builds the remote store selected by the config.
func (a *app) connect(ctx context.Context) error {
	switch a.cfg.Remote.Backend {
	case config.BackendDir:
		rs, err := dirstore.New(a.cfg.RemoteDirectory())
		if err != nil {
			return err
		}
		a.remote = rs
	case config.BackendDrive:
		session, err := a.openSession()
		if err != nil {
			return err
		}
		if !session.Authenticated() {
			return sync.NewError(sync.KindNotAuthenticated, "connect", auth.ErrNoToken)
		}
		client, err := drive.New(ctx, session.Client())
		if err != nil {
			return err
		}
		a.session = session
		a.remote = client
	default:
		return fmt.Errorf("unknown remote backend %q", a.cfg.Remote.Backend)
	}
	logging.Debug("remote connected", slog.String("backend", a.cfg.Remote.Backend))
	return nil
}

// openSession loads the OAuth client config and any stored token.
func (a *app) openSession() (*auth.Session, error) {
	oauthCfg, err := auth.LoadConfig(a.cfg.CredentialsFile())
	if err != nil {
		return nil, err
	}
	return auth.NewSession(oauthCfg, a.cfg.TokenFile())
}

// profileID resolves a profile reference given on the command line.
func (a *app) profileID(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", errors.New("profile name or id is required")
	}
	return a.store.FindProfile(ctx, ref)
}

// Close releases the local database.
func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		logging.Warn("failed to close store", logging.Err(err))
	}
}
