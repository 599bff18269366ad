// Package bsky is a typed atproto client for the app.bsky preference and
// notification-preference lexicons.
package bsky

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"skyprefs/pkg/clients"
	"skyprefs/pkg/clients/xrpc"
	"skyprefs/pkg/logging"
)

// ProxyHeader is the header that asks the PDS to forward a call to a
// service identified by "<did>#<service id>".
const ProxyHeader = "atproto-proxy"

// AcceptLabelersHeader lists the labelers whose labels the appview should
// apply. App labelers carry the ";redact" flag.
const AcceptLabelersHeader = "atproto-accept-labelers"

var (
	ErrNotAuthenticated     = errors.New("bsky: not authenticated")
	ErrInvalidSavedFeed     = errors.New("bsky: invalid saved feed")
	ErrInvalidProgressGuide = errors.New("bsky: invalid progress guide")
)

const (
	nsidGetPreferences             = "app.bsky.actor.getPreferences"
	nsidPutPreferences             = "app.bsky.actor.putPreferences"
	nsidGetNotificationPreferences = "app.bsky.notification.getPreferences"
	nsidPutNotificationPreferences = "app.bsky.notification.putPreferencesV2"
	nsidRefreshSession             = "com.atproto.server.refreshSession"

	errExpiredToken = "ExpiredToken"
	errInvalidToken = "InvalidToken"
)

// AgentConfig configures an Agent. Proxy is the full atproto-proxy value;
// it is fixed for the lifetime of the agent.
type AgentConfig struct {
	Service    string
	Proxy      string
	HTTPClient *http.Client
	Executor   *clients.HTTPExecutorConfig
	// QueryExecutor, when set, replaces Executor for GET calls.
	QueryExecutor *clients.HTTPExecutorConfig
	AppLabelers   []string
	NewID         func() string
	Logger        logging.Logger
}

// Agent issues XRPC calls on behalf of one session.
type Agent struct {
	api         *xrpc.Client
	pds         *xrpc.Client
	proxy       string
	appLabelers []string
	newID       func() string
	logger      logging.Logger

	sessions *SessionManager

	labelersMu sync.RWMutex
	labelers   []string

	// prefsMu serialises read-modify-write of the preference list.
	prefsMu sync.Mutex
}

func NewAgent(cfg AgentConfig) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	appLabelers := cfg.AppLabelers
	if appLabelers == nil {
		appLabelers = []string{DefaultLabelerDID}
	}

	opts := []xrpc.Option{xrpc.WithHTTPClient(cfg.HTTPClient)}
	if cfg.Executor != nil {
		opts = append(opts, xrpc.WithHTTPExecutorConfig(*cfg.Executor))
	}
	apiOpts := append([]xrpc.Option{xrpc.WithHeader(ProxyHeader, cfg.Proxy)}, opts...)
	if cfg.QueryExecutor != nil {
		apiOpts = append(apiOpts, xrpc.WithQueryExecutorConfig(*cfg.QueryExecutor))
	}
	api := xrpc.NewClient(cfg.Service, apiOpts...)
	// Session calls go to the PDS itself and are never proxied.
	pds := xrpc.NewClient(cfg.Service, opts...)

	return &Agent{
		api:         api,
		pds:         pds,
		proxy:       cfg.Proxy,
		appLabelers: appLabelers,
		newID:       newID,
		logger:      logger,
		sessions:    &SessionManager{},
	}
}

// Proxy returns the atproto-proxy value this agent sends.
func (a *Agent) Proxy() string {
	return a.proxy
}

func (a *Agent) Sessions() *SessionManager {
	return a.sessions
}

// DID of the bound session, or "" when unauthenticated.
func (a *Agent) DID() string {
	return a.sessions.DID()
}

// SetLabelers replaces the subscribed labelers sent with every call.
func (a *Agent) SetLabelers(dids []string) {
	a.labelersMu.Lock()
	a.labelers = append([]string{}, dids...)
	a.labelersMu.Unlock()
}

func (a *Agent) acceptLabelers() string {
	a.labelersMu.RLock()
	defer a.labelersMu.RUnlock()

	seen := make(map[string]bool, len(a.appLabelers)+len(a.labelers))
	parts := make([]string, 0, len(a.appLabelers)+len(a.labelers))
	for _, did := range a.appLabelers {
		seen[did] = true
		parts = append(parts, did+";redact")
	}
	for _, did := range a.labelers {
		if did == "" || seen[did] {
			continue
		}
		seen[did] = true
		parts = append(parts, did)
	}
	return strings.Join(parts, ", ")
}

func (a *Agent) query(ctx context.Context, nsid string, params url.Values, out any) error {
	return a.withSession(ctx, nsid, params, func(call xrpc.Call) error {
		return a.api.Query(ctx, call, out)
	})
}

func (a *Agent) procedure(ctx context.Context, nsid string, in, out any) error {
	return a.withSession(ctx, nsid, nil, func(call xrpc.Call) error {
		return a.api.Procedure(ctx, call, in, out)
	})
}

// withSession runs fn with the session's credentials, refreshing once and
// replaying when the access token has expired.
func (a *Agent) withSession(ctx context.Context, nsid string, params url.Values, fn func(xrpc.Call) error) error {
	sess, binding := a.sessions.current()
	if sess == nil {
		return ErrNotAuthenticated
	}
	call := xrpc.Call{NSID: nsid, Params: params, Host: a.sessions.PDSURL(), Token: sess.AccessJwt, Header: http.Header{}}
	call.Header.Set(AcceptLabelersHeader, a.acceptLabelers())
	err := fn(call)
	if !xrpc.IsErrorName(err, errExpiredToken) || sess.RefreshJwt == "" {
		return err
	}

	refreshed, rerr := a.refresh(ctx, sess, binding)
	if errors.Is(rerr, ErrNotAuthenticated) {
		return rerr
	}
	if rerr != nil {
		a.logger.WithFields(logging.Fields{
			"nsid":  nsid,
			"did":   sess.DID,
			"error": rerr,
		}).Warn("Session refresh failed")
		return err
	}
	call.Token = refreshed.AccessJwt
	return fn(call)
}

// refresh rotates the tokens of stale. It returns ErrNotAuthenticated when
// the slot was cleared or rebound since binding was read.
func (a *Agent) refresh(ctx context.Context, stale *Session, binding uint64) (*Session, error) {
	a.sessions.refreshMu.Lock()
	defer a.sessions.refreshMu.Unlock()

	cur, curBinding := a.sessions.current()
	if curBinding != binding || cur == nil {
		return nil, ErrNotAuthenticated
	}
	// Another caller may have refreshed while we waited.
	if cur.AccessJwt != stale.AccessJwt {
		return cur, nil
	}

	// refreshSession may omit fields it did not change.
	out := *stale
	call := xrpc.Call{NSID: nsidRefreshSession, Host: a.sessions.PDSURL(), Token: stale.RefreshJwt}
	err := a.pds.Procedure(ctx, call, nil, &out)
	if err != nil {
		var applied bool
		if xrpc.IsErrorName(err, errExpiredToken) || xrpc.IsErrorName(err, errInvalidToken) {
			applied = a.sessions.emit(binding, SessionExpired, nil)
		} else {
			applied = a.sessions.emit(binding, SessionNetworkError, stale)
		}
		if !applied {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}

	if !a.sessions.emit(binding, SessionUpdate, &out) {
		a.logger.WithFields(logging.Fields{"did": out.DID}).Debug("Dropping refresh for a cleared session")
		return nil, ErrNotAuthenticated
	}
	a.logger.WithFields(logging.Fields{"did": out.DID}).Debug("Session refreshed")
	return &out, nil
}
