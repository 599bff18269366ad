// Package session builds the agents the app talks to the network with and
// binds signed-in accounts to them.
package session

import (
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"

	"skyprefs/internal/events"
	"skyprefs/pkg/clients"
	"skyprefs/pkg/clients/bsky"
	"skyprefs/pkg/config"
	"skyprefs/pkg/logging"
)

// Agent is a bsky agent whose proxy target never changes.
type Agent struct {
	*bsky.Agent

	name     string
	logger   logging.Logger
	errorLog *ErrorLog
	clock    clockwork.Clock
	persist  bsky.PersistHandler
}

type Options struct {
	Logger   logging.Logger
	Bus      *events.Bus
	ErrorLog *ErrorLog
	Clock    clockwork.Clock
	// Transport is wrapped so that every round trip reports reachability.
	Transport http.RoundTripper
	// Persist, when set, receives every session event after it is logged.
	Persist bsky.PersistHandler
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.NewDiscardLogger()
	}
	if o.Bus == nil {
		o.Bus = events.NewBus()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.ErrorLog == nil {
		o.ErrorLog = NewErrorLog(o.Logger, nil, o.Clock)
	}
	if o.Transport == nil {
		o.Transport = clients.DefaultTransport()
	}
	return o
}

// NewAgent builds an agent for cfg.Service that always sends proxy as its
// atproto-proxy header.
func NewAgent(name string, cfg config.Appview, proxy string, opts Options) *Agent {
	opts = opts.withDefaults()
	bus := opts.Bus
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &clients.ObservedTransport{
			Next:      opts.Transport,
			OnSuccess: bus.EmitNetworkConfirmed,
			OnError:   func(error) { bus.EmitNetworkLost() },
		},
	}
	breaker := clients.NoRetryHTTPExecutorConfig("xrpc-"+name, opts.Logger)
	agentCfg := bsky.AgentConfig{
		Service:    cfg.Service,
		Proxy:      proxy,
		HTTPClient: httpClient,
		Executor:   &breaker,
		Logger:     opts.Logger,
	}
	if cfg.QueryRetries > 0 {
		queries := clients.QueryHTTPExecutorConfig("xrpc-"+name+"-query", cfg.QueryRetries, opts.Logger)
		agentCfg.QueryExecutor = &queries
	}
	return &Agent{
		Agent:    bsky.NewAgent(agentCfg),
		name:     name,
		logger:   opts.Logger,
		errorLog: opts.ErrorLog,
		clock:    opts.Clock,
		persist:  opts.Persist,
	}
}

// Agents pairs the main appview agent with the dedicated one.
type Agents struct {
	// DefaultProxy reaches the main appview.
	DefaultProxy *Agent
	// AppviewProxy always reaches the dedicated appview backend.
	AppviewProxy *Agent
}

func NewAgents(cfg config.Appview, opts Options) Agents {
	opts = opts.withDefaults()
	return Agents{
		DefaultProxy: NewAgent("default", cfg, cfg.BskyProxyHeader(), opts),
		AppviewProxy: NewAgent("appview", cfg, cfg.AppviewProxyHeader(), opts),
	}
}

// InitializeWithAccount binds account's session to the agent. It reports
// false, after logging, when the account cannot be used.
func (a *Agent) InitializeWithAccount(account Account) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithFields(logging.Fields{
				"agent": a.name,
				"error": fmt.Sprint(r),
			}).Error("Failed to initialize appview agent")
			ok = false
		}
	}()

	sess, err := account.ToSession()
	if err != nil {
		a.logger.WithFields(logging.Fields{
			"agent": a.name,
			"error": err,
		}).Error("Failed to initialize appview agent")
		return false
	}

	if exp, _ := tokenExpiry(sess.AccessJwt); !exp.IsZero() && !exp.After(a.clock.Now()) {
		a.logger.WithFields(logging.Fields{"agent": a.name, "did": sess.DID}).Debug("Access token expired, will refresh on first call")
	}

	a.Sessions().Resume(sess, account.PdsURL)
	did := account.DID
	a.Sessions().SetPersistHandler(func(evt bsky.SessionEvent, s *bsky.Session) {
		if evt != bsky.SessionCreate && evt != bsky.SessionUpdate {
			a.errorLog.Add(did, evt)
		}
		if a.persist != nil {
			a.persist(evt, s)
		}
	})
	return true
}

// ClearSession drops the session and its persist handler.
func (a *Agent) ClearSession() {
	a.Sessions().Clear()
}
