// Package appviewstub is an in-memory stand-in for a PDS that proxies the
// actor and notification preference endpoints to an appview. It is used for
// local development and end-to-end tests.
package appviewstub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"skyprefs/pkg/clients/bsky"
	"skyprefs/pkg/logging"
	"skyprefs/pkg/middleware"
	"skyprefs/pkg/monitoring"
	"skyprefs/pkg/server"
	"skyprefs/pkg/version"
)

const ServiceName = "appview-stub"

const (
	NSIDGetPreferences             = "app.bsky.actor.getPreferences"
	NSIDPutPreferences             = "app.bsky.actor.putPreferences"
	NSIDGetNotificationPreferences = "app.bsky.notification.getPreferences"
	NSIDPutNotificationPreferences = "app.bsky.notification.putPreferencesV2"
	NSIDRefreshSession             = "com.atproto.server.refreshSession"
	// NSIDHealth is the unauthenticated liveness method PDSes serve.
	NSIDHealth = "_health"
)

var ErrAccountExists = errors.New("appviewstub: account already exists")

type Config struct {
	// SigningKey signs session tokens. Required.
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// AcceptedProxies restricts the atproto-proxy values accepted on
	// proxied routes. Empty accepts any value, including none.
	AcceptedProxies []string
	// RequestTimeout bounds each XRPC call; 0 leaves calls unbounded.
	RequestTimeout time.Duration
	Clock          clockwork.Clock
	Logger         logging.Logger
	Metrics        *monitoring.MetricsCollector
}

type account struct {
	handle string
	prefs  []json.RawMessage
	notif  bsky.NotificationPreferences
}

type Server struct {
	key             []byte
	accessTTL       time.Duration
	refreshTTL      time.Duration
	acceptedProxies []string
	requestTimeout  time.Duration
	clock           clockwork.Clock
	logger          logging.Logger
	metrics         *monitoring.MetricsCollector
	health          *monitoring.HealthChecker

	tokensIssued  *prometheus.CounterVec
	faultsServed  *prometheus.CounterVec
	accountsTotal *prometheus.GaugeVec
	storedItems   *prometheus.HistogramVec

	mu       sync.Mutex
	accounts map[string]*account
	revoked  map[string]struct{}
	faults   map[string]*Fault
	calls    map[string]int
	proxies  map[string]string
	labelers map[string]string
}

func New(cfg Config) (*Server, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("appviewstub: signing key is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 2 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 90 * 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = monitoring.NewMetricsCollector(ServiceName, version.Version, version.GitCommit)
	}

	s := &Server{
		key:             cfg.SigningKey,
		accessTTL:       cfg.AccessTTL,
		refreshTTL:      cfg.RefreshTTL,
		acceptedProxies: cfg.AcceptedProxies,
		requestTimeout:  cfg.RequestTimeout,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		health:          monitoring.NewHealthChecker(ServiceName, version.Version),
		accounts:        make(map[string]*account),
		revoked:         make(map[string]struct{}),
		faults:          make(map[string]*Fault),
		calls:           make(map[string]int),
		proxies:         make(map[string]string),
		labelers:        make(map[string]string),
	}
	s.tokensIssued = s.metrics.NewCounter("tokens_issued_total", "Session tokens minted", []string{"scope"})
	s.faultsServed = s.metrics.NewCounter("faults_served_total", "Injected faults served", []string{"nsid"})
	s.accountsTotal = s.metrics.NewGauge("accounts", "Registered accounts", nil)
	s.storedItems = s.metrics.NewHistogram("stored_preference_items", "Preference items per putPreferences call", nil, []float64{0, 1, 5, 10, 25, 50, 100})
	s.health.AddCheck("accounts", func() monitoring.CheckResult {
		s.mu.Lock()
		n := len(s.accounts)
		s.mu.Unlock()
		return monitoring.CheckResult{Status: monitoring.StatusHealthy, Message: fmt.Sprintf("%d accounts", n)}
	})
	return s, nil
}

// Handler returns the router serving the XRPC endpoints plus /health and
// /metrics.
func (s *Server) Handler() http.Handler {
	router := server.SetupServiceRouter(s.logger, ServiceName, s.health, s.metrics)

	router.GET("/xrpc/"+NSIDHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version.Version})
	})

	timeout := middleware.TimeoutMiddleware(s.requestTimeout)
	router.POST("/xrpc/"+NSIDRefreshSession,
		timeout,
		s.observe(NSIDRefreshSession),
		middleware.BearerAuthMiddleware(s.validator(scopeRefresh)),
		s.refreshSession)

	authed := func(nsid string, h gin.HandlerFunc) []gin.HandlerFunc {
		return []gin.HandlerFunc{
			timeout,
			s.observe(nsid),
			s.requireProxy,
			middleware.BearerAuthMiddleware(s.validator(scopeAccess)),
			h,
		}
	}
	router.GET("/xrpc/"+NSIDGetPreferences, authed(NSIDGetPreferences, s.getPreferences)...)
	router.POST("/xrpc/"+NSIDPutPreferences, authed(NSIDPutPreferences, s.putPreferences)...)
	router.GET("/xrpc/"+NSIDGetNotificationPreferences, authed(NSIDGetNotificationPreferences, s.getNotificationPreferences)...)
	router.POST("/xrpc/"+NSIDPutNotificationPreferences, authed(NSIDPutNotificationPreferences, s.putNotificationPreferences)...)

	router.NoRoute(func(c *gin.Context) {
		middleware.XRPCError(c, http.StatusNotImplemented, "MethodNotImplemented", "Method Not Implemented")
	})
	return router
}

// CreateAccount registers did and returns a signed-in session for it.
func (s *Server) CreateAccount(did, handle string) (bsky.Session, error) {
	s.mu.Lock()
	if _, ok := s.accounts[did]; ok {
		s.mu.Unlock()
		return bsky.Session{}, fmt.Errorf("%w: %s", ErrAccountExists, did)
	}
	s.accounts[did] = &account{handle: handle, notif: DefaultNotificationPreferences()}
	s.accountsTotal.WithLabelValues().Set(float64(len(s.accounts)))
	s.mu.Unlock()

	access, refresh, err := s.issue(did)
	if err != nil {
		return bsky.Session{}, err
	}
	s.logger.WithFields(logging.Fields{"did": did, "handle": handle}).Info("Created stub account")
	return bsky.Session{
		AccessJwt:  access,
		RefreshJwt: refresh,
		DID:        did,
		Handle:     handle,
		Active:     true,
	}, nil
}

// SetPreferences replaces the stored preference items of did.
func (s *Server) SetPreferences(did string, items ...json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[did]; ok {
		acc.prefs = slices.Clone(items)
	}
}

// Preferences returns the stored preference items of did.
func (s *Server) Preferences(did string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[did]; ok {
		return slices.Clone(acc.prefs)
	}
	return nil
}

func (s *Server) NotificationPreferences(did string) bsky.NotificationPreferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[did]; ok {
		return acc.notif.Clone()
	}
	return bsky.NotificationPreferences{}
}

// Calls reports how many requests reached nsid, faults included.
func (s *Server) Calls(nsid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[nsid]
}

// LastProxy returns the atproto-proxy header of the last call to nsid.
func (s *Server) LastProxy(nsid string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proxies[nsid]
}

// LastAcceptLabelers returns the atproto-accept-labelers header of the
// last call to nsid.
func (s *Server) LastAcceptLabelers(nsid string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.labelers[nsid]
}

// DefaultNotificationPreferences are the settings of a new account.
func DefaultNotificationPreferences() bsky.NotificationPreferences {
	filterable := func() *bsky.FilterablePreference {
		return &bsky.FilterablePreference{Include: bsky.IncludeAll, List: true, Push: true}
	}
	plain := func() *bsky.NotificationPreference {
		return &bsky.NotificationPreference{List: true, Push: true}
	}
	return bsky.NotificationPreferences{
		Chat:              &bsky.ChatPreference{Include: bsky.IncludeAll, Push: true},
		Follow:            filterable(),
		Like:              filterable(),
		LikeViaRepost:     filterable(),
		Mention:           filterable(),
		Quote:             filterable(),
		Reply:             filterable(),
		Repost:            filterable(),
		RepostViaRepost:   filterable(),
		StarterpackJoined: plain(),
		SubscribedPost:    plain(),
		Unverified:        plain(),
		Verified:          plain(),
	}
}

// observe counts the call, records its routing headers and serves any
// fault injected for nsid.
func (s *Server) observe(nsid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.calls[nsid]++
		s.proxies[nsid] = c.GetHeader(bsky.ProxyHeader)
		s.labelers[nsid] = c.GetHeader(bsky.AcceptLabelersHeader)
		fault := s.takeFault(nsid)
		s.mu.Unlock()

		if fault == nil {
			c.Next()
			return
		}
		s.faultsServed.WithLabelValues(nsid).Inc()
		if s.serveFault(c, fault) {
			c.Next()
		}
	}
}

func (s *Server) requireProxy(c *gin.Context) {
	if len(s.acceptedProxies) == 0 {
		c.Next()
		return
	}
	if !slices.Contains(s.acceptedProxies, c.GetHeader(bsky.ProxyHeader)) {
		middleware.XRPCError(c, http.StatusBadRequest, "InvalidRequest", "could not resolve proxy did service url")
		return
	}
	c.Next()
}

func (s *Server) refreshSession(c *gin.Context) {
	did := c.GetString("did")
	s.mu.Lock()
	acc, ok := s.accounts[did]
	var handle string
	if ok {
		handle = acc.handle
	}
	s.mu.Unlock()
	if !ok {
		middleware.XRPCError(c, http.StatusBadRequest, "AccountNotFound", "Account not found")
		return
	}

	access, refresh, err := s.issue(did)
	if err != nil {
		middleware.XRPCError(c, http.StatusInternalServerError, "InternalServerError", "could not mint tokens")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessJwt":  access,
		"refreshJwt": refresh,
		"handle":     handle,
		"did":        did,
		"active":     true,
	})
}

func (s *Server) getPreferences(c *gin.Context) {
	prefs := s.Preferences(c.GetString("did"))
	if prefs == nil {
		prefs = []json.RawMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

func (s *Server) putPreferences(c *gin.Context) {
	var in struct {
		Preferences []json.RawMessage `json:"preferences"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Preferences == nil {
		middleware.XRPCError(c, http.StatusBadRequest, "InvalidRequest", "Input must have the property \"preferences\"")
		return
	}
	for i, raw := range in.Preferences {
		var head struct {
			Type string `json:"$type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil || head.Type == "" {
			middleware.XRPCError(c, http.StatusBadRequest, "InvalidRequest", fmt.Sprintf("Input/preferences/%d must be an object which includes the \"$type\" property", i))
			return
		}
	}

	s.SetPreferences(c.GetString("did"), in.Preferences...)
	s.storedItems.WithLabelValues().Observe(float64(len(in.Preferences)))
	middleware.GetContextLogger(c, s.logger).WithField("items", len(in.Preferences)).Debug("Stored preferences")
	c.Status(http.StatusOK)
}

func (s *Server) getNotificationPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"preferences": s.NotificationPreferences(c.GetString("did"))})
}

func (s *Server) putNotificationPreferences(c *gin.Context) {
	var update bsky.NotificationPreferences
	if err := c.ShouldBindJSON(&update); err != nil {
		middleware.XRPCError(c, http.StatusBadRequest, "InvalidRequest", "Input must be an object")
		return
	}

	did := c.GetString("did")
	s.mu.Lock()
	acc, ok := s.accounts[did]
	var stored bsky.NotificationPreferences
	if ok {
		acc.notif = acc.notif.Merge(update)
		stored = acc.notif.Clone()
	}
	s.mu.Unlock()
	if !ok {
		middleware.XRPCError(c, http.StatusBadRequest, "AccountNotFound", "Account not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"preferences": stored})
}
