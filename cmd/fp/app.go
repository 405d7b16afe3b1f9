package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/formpal/formpal/internal/broadcast"
	"github.com/formpal/formpal/internal/config"
	"github.com/formpal/formpal/internal/logging"
	"github.com/formpal/formpal/internal/page"
	"github.com/formpal/formpal/internal/schema"
	"github.com/formpal/formpal/internal/session"
	"github.com/formpal/formpal/internal/store"
	"github.com/formpal/formpal/internal/ui"
)

// App holds what one fp invocation opens: the store, log destination and
// broadcast hub shared by its sessions.
type App struct {
	cfg  *config.Config
	logs *logging.Logging
	hub  *broadcast.LocalHub

	store store.Store
}

// NewApp prepares an App. Resources are opened lazily.
func NewApp(cfg *config.Config) *App {
	logs := logging.New(logging.Config{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Verbose:    cfg.Log.Verbose,
	})
	return &App{
		cfg:  cfg,
		logs: logs,
		hub:  broadcast.NewLocalHub(logs.For("broadcast")),
	}
}

// SessionOptions tunes OpenSession.
type SessionOptions struct {
	// Source is the page to fill and observe
	Source page.Source

	// Watch enables detection of writes from other processes
	Watch bool

	// OnRender receives each adopted snapshot
	OnRender func(schema.Collection)
}

// OpenStore opens the configured store once per invocation.
func (a *App) OpenStore(watch bool) (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	opts := &store.Options{
		WatchExternal: watch,
		Debounce:      a.cfg.Store.Debounce,
		Logger:        a.logs.For("store"),
	}

	var (
		s   store.Store
		err error
	)
	switch a.cfg.Store.Backend {
	case config.BackendSQLite:
		s, err = store.OpenSQLite(a.cfg.Store.Path, opts)
	case config.BackendFile:
		s, err = store.OpenFile(a.cfg.Store.Path, opts)
	case config.BackendMemory:
		fmt.Fprintf(os.Stderr, "%s memory backend: nothing outlives this command\n", ui.RenderWarn("⚠"))
		s = store.NewMemory(opts.Logger)
	default:
		err = fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
	if err != nil {
		return nil, err
	}

	a.store = s
	return s, nil
}

// openBus returns this context's broadcast endpoint, or nil when
// broadcasting is off or the relay cannot be reached.
func (a *App) openBus(ctx context.Context, origin string) broadcast.Bus {
	switch a.cfg.Broadcast.Mode {
	case config.BroadcastLocal:
		return a.hub.Endpoint(origin)
	case config.BroadcastWebSocket:
		client, err := broadcast.Dial(ctx, a.cfg.Broadcast.URL, origin, a.logs.For("broadcast"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s relay unavailable, other contexts will not be notified: %v\n", ui.RenderWarn("⚠"), err)
			return nil
		}
		return client
	default:
		return nil
	}
}

// OpenSession opens the store and starts a session over it.
func (a *App) OpenSession(ctx context.Context, opts SessionOptions) (*session.Session, error) {
	s, err := a.OpenStore(opts.Watch)
	if err != nil {
		return nil, err
	}

	origin := newOrigin()
	sess, err := session.New(&session.Config{
		ID:       origin,
		Store:    s,
		Bus:      a.openBus(ctx, origin),
		Source:   opts.Source,
		Groups:   a.cfg.Autofill.Groups,
		Timeout:  a.cfg.Store.Timeout,
		Logger:   a.logs.For("session"),
		OnRender: opts.OnRender,
		OnNotice: printNotice,
	})
	if err != nil {
		return nil, err
	}

	startCtx, cancel := context.WithTimeout(ctx, a.cfg.Store.Timeout)
	defer cancel()
	if err := sess.Start(startCtx); err != nil {
		_ = sess.Stop()
		return nil, err
	}
	return sess, nil
}

// Close releases the store and log file.
func (a *App) Close() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
		a.store = nil
	}
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// printNotice shows a session notice. Silent notices print nothing.
func printNotice(n session.Notice) {
	switch n.Kind {
	case session.NoticeSuccess:
		fmt.Printf("%s %s\n", ui.RenderPass("✓"), n.Message)
	case session.NoticeWarning:
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), n.Message)
	case session.NoticeError:
		fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("✗"), n.Message)
	}
}

// noticeErr converts an error notice into a command error so fp exits 1.
func noticeErr(n session.Notice) error {
	if n.Kind == session.NoticeError {
		return fmt.Errorf("%s", n.Message)
	}
	printNotice(n)
	return nil
}

func newOrigin() string {
	return uuid.NewString()
}
