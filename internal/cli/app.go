package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"skyprefs/internal/events"
	"skyprefs/internal/labelers"
	"skyprefs/internal/metrics"
	"skyprefs/internal/notifications"
	"skyprefs/internal/preferences"
	"skyprefs/internal/session"
	"skyprefs/internal/toast"
	"skyprefs/pkg/cache"
	"skyprefs/pkg/clients/bsky"
	"skyprefs/pkg/config"
	"skyprefs/pkg/logging"
)

const (
	ProxyAppview = "appview"
	ProxyDefault = "default"
)

// AppOptions selects the account and routing for one CLI invocation.
type AppOptions struct {
	AccountsPath string
	Account      string
	Proxy        string
	Logger       logging.Logger
	Stderr       io.Writer
}

// App is everything a command needs, wired once per invocation.
type App struct {
	Config        config.Appview
	Logger        logging.Logger
	Bus           *events.Bus
	Metrics       *metrics.Metrics
	ErrorLog      *session.ErrorLog
	Agents        session.Agents
	Agent         *session.Agent
	Labelers      labelers.Store
	Preferences   *preferences.Service
	Notifications *notifications.Service
	Toasts        toast.Notifier

	accountsPath string
	accountsMu   sync.Mutex
	closers      []func() error
}

func NewApp(ctx context.Context, opts AppOptions) (*App, error) {
	cfg := config.LoadAppview()
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLoggerWithService("skyprefs")
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	app := &App{
		Config:       cfg,
		Logger:       logger,
		Bus:          events.NewBus(),
		Metrics:      metrics.New(),
		Toasts:       toast.NewTerminal(stderr),
		accountsPath: opts.AccountsPath,
	}
	unsubscribe := app.Metrics.ObserveBus(app.Bus)
	app.closers = append(app.closers, func() error { unsubscribe(); return nil })
	app.ErrorLog = session.NewErrorLog(logger, app.Metrics, nil)
	app.Agents = session.NewAgents(cfg, session.Options{
		Logger:   logger,
		Bus:      app.Bus,
		ErrorLog: app.ErrorLog,
		Persist:  app.persistSession,
	})

	store, closeStore, err := labelers.Open(ctx, cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Labelers = store
	app.closers = append(app.closers, closeStore)

	switch opts.Proxy {
	case "", ProxyAppview:
		app.Agent = app.Agents.AppviewProxy
	case ProxyDefault:
		app.Agent = app.Agents.DefaultProxy
	default:
		_ = app.Close()
		return nil, fmt.Errorf("unknown proxy %q (want %s or %s)", opts.Proxy, ProxyAppview, ProxyDefault)
	}

	if opts.AccountsPath != "" {
		accounts, err := LoadAccounts(opts.AccountsPath)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		if acc, ok := accounts.Select(opts.Account); ok {
			if acc.PdsURL == "" {
				acc.PdsURL = acc.Service
			}
			// Both agents carry the session so either can be selected.
			if !app.Agents.AppviewProxy.InitializeWithAccount(acc) || !app.Agents.DefaultProxy.InitializeWithAccount(acc) {
				_ = app.Close()
				return nil, fmt.Errorf("account %s could not be used", acc.Handle)
			}
			app.seedLabelers(ctx, acc.DID)
		} else if opts.Account != "" {
			_ = app.Close()
			return nil, fmt.Errorf("no account %q in %s", opts.Account, opts.AccountsPath)
		}
	}

	app.Preferences = preferences.New(preferences.Config{
		Agent:           app.Agent,
		Cache:           app.newCache(cfg.PreferencesStaleTime),
		Labelers:        store,
		Events:          app.Metrics,
		Observer:        app.Metrics,
		DiscoverFeedURI: cfg.DiscoverFeedURI,
		Logger:          logger,
	})
	app.Notifications = notifications.New(notifications.Config{
		Agent:    app.Agent,
		Cache:    app.newCache(0),
		Toasts:   app.Toasts,
		Observer: app.Metrics,
		Logger:   logger,
	})
	return app, nil
}

// seedLabelers sends the labelers saved for did with the first calls, before
// preferences have been fetched.
func (a *App) seedLabelers(ctx context.Context, did string) {
	saved, err := a.Labelers.Load(ctx, did)
	if err != nil {
		a.Logger.WithFields(logging.Fields{"did": did, "error": err}).Warn("Failed to load saved labelers")
		return
	}
	if saved == nil {
		return
	}
	a.Agents.AppviewProxy.SetLabelers(saved)
	a.Agents.DefaultProxy.SetLabelers(saved)
}

// newCache builds a query cache whose entries stay fresh for ttl and are
// kept, stale, for the configured GC time.
func (a *App) newCache(ttl time.Duration) *cache.Cache {
	return cache.New(cache.Options{
		TTL:                  ttl,
		StaleWhileRevalidate: a.Config.CacheGCTime,
		MaxEntries:           a.Config.CacheMaxEntries,
	}, cache.MetricsHooks{
		OnHit:        a.Metrics.CacheHook("hit"),
		OnMiss:       a.Metrics.CacheHook("miss"),
		OnStale:      a.Metrics.CacheHook("stale"),
		OnStore:      a.Metrics.CacheHook("store"),
		OnError:      a.Metrics.CacheHook("error"),
		OnInvalidate: a.Metrics.CacheHook("invalidate"),
	})
}

// persistSession writes refreshed tokens back to the accounts file.
func (a *App) persistSession(evt bsky.SessionEvent, s *bsky.Session) {
	if evt != bsky.SessionUpdate || s == nil || a.accountsPath == "" {
		return
	}
	a.accountsMu.Lock()
	defer a.accountsMu.Unlock()

	accounts, err := LoadAccounts(a.accountsPath)
	if err == nil && accounts.ApplySession(*s) {
		err = SaveAccounts(a.accountsPath, accounts)
	}
	if err != nil {
		a.Logger.WithFields(logging.Fields{"did": s.DID, "error": err}).Warn("Failed to persist session")
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
