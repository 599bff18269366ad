package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyprefs/internal/appviewstub"
	"skyprefs/internal/events"
	"skyprefs/pkg/clients/bsky"
	"skyprefs/pkg/config"
)

func mintJWT(t *testing.T, did string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": did,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func testConfig(service string) config.Appview {
	return config.Appview{
		Service:         service,
		BskyProxyDID:    "did:web:api.bsky.test",
		AppviewProxyDID: "did:web:appview.test",
		HTTPTimeout:     5 * time.Second,
	}
}

type recordingServer struct {
	mu      sync.Mutex
	proxies []string
	status  int
	body    string
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.proxies = append(s.proxies, r.Header.Get(bsky.ProxyHeader))
	status, body := s.status, s.body
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	if body == "" {
		body = `{"preferences":[]}`
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func validAccount(t *testing.T, pds string) Account {
	return Account{
		Service:    pds,
		DID:        "did:plc:alice",
		Handle:     "alice.test",
		AccessJwt:  mintJWT(t, "did:plc:alice", time.Now().Add(time.Hour)),
		RefreshJwt: mintJWT(t, "did:plc:alice", time.Now().Add(24*time.Hour)),
		PdsURL:     pds,
	}
}

func TestInitializeWithAccount(t *testing.T) {
	srv := &recordingServer{}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	agents := NewAgents(testConfig(ts.URL), Options{})
	agent := agents.AppviewProxy

	require.True(t, agent.InitializeWithAccount(validAccount(t, ts.URL)))
	assert.Equal(t, "did:plc:alice", agent.DID())
	assert.True(t, agent.Sessions().Session().Active)

	_, err := agent.GetPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"did:web:appview.test#bsky_appview"}, srv.proxies)
}

func TestAgentsHaveFixedDistinctProxies(t *testing.T) {
	agents := NewAgents(testConfig("https://pds.test"), Options{})
	assert.Equal(t, "did:web:api.bsky.test#bsky_appview", agents.DefaultProxy.Proxy())
	assert.Equal(t, "did:web:appview.test#bsky_appview", agents.AppviewProxy.Proxy())

	agents.AppviewProxy.ClearSession()
	assert.Equal(t, "did:web:appview.test#bsky_appview", agents.AppviewProxy.Proxy())
}

func TestInitializeWithAccountRejectsBadInput(t *testing.T) {
	cases := map[string]func(a *Account){
		"did":     func(a *Account) { a.DID = "alice" },
		"pds url": func(a *Account) { a.PdsURL = "ftp://pds" },
		"jwt":     func(a *Account) { a.AccessJwt = "not-a-jwt" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			agent := NewAgent("appview", testConfig("https://pds.test"), "did:web:appview.test#bsky_appview", Options{Logger: logger})

			acc := validAccount(t, "https://pds.test")
			mutate(&acc)

			assert.False(t, agent.InitializeWithAccount(acc))
			assert.Empty(t, agent.DID())
			require.NotNil(t, hook.LastEntry())
			assert.Equal(t, "Failed to initialize appview agent", hook.LastEntry().Message)
		})
	}
}

func TestAccountToSessionDefaults(t *testing.T) {
	sess, err := Account{DID: "did:plc:x"}.ToSession()
	require.NoError(t, err)
	assert.True(t, sess.Active)

	inactive := false
	sess, err = Account{DID: "did:plc:x", Active: &inactive, Status: "deactivated"}.ToSession()
	require.NoError(t, err)
	assert.False(t, sess.Active)
	assert.Equal(t, "deactivated", sess.Status)

	_, err = Account{DID: "x"}.ToSession()
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

type anomalyCounter struct{ events []string }

func (c *anomalyCounter) SessionAnomaly(event string) { c.events = append(c.events, event) }

func TestExpiredSessionIsLogged(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "ExpiredToken"})
	}))
	t.Cleanup(ts.Close)

	logger, hook := test.NewNullLogger()
	counter := &anomalyCounter{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	errLog := NewErrorLog(logger, counter, clock)
	agent := NewAgent("appview", testConfig(ts.URL), "did:web:appview.test#bsky_appview", Options{Logger: logger, ErrorLog: errLog, Clock: clock})

	require.True(t, agent.InitializeWithAccount(validAccount(t, ts.URL)))
	_, err := agent.GetPreferences(context.Background())
	require.Error(t, err)

	entries := errLog.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ErrorLogEntry{DID: "did:plc:alice", Event: bsky.SessionExpired, At: clock.Now()}, entries[0])
	assert.Equal(t, []string{"expired"}, counter.events)
	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Session error")
	assert.Empty(t, agent.DID(), "expired session is dropped")
}

func TestErrorLogIsBounded(t *testing.T) {
	logger, _ := test.NewNullLogger()
	l := NewErrorLog(logger, nil, nil)
	for i := 0; i < maxErrorLogEntries+5; i++ {
		l.Add("did:plc:x", bsky.SessionNetworkError)
	}
	assert.Len(t, l.Entries(), maxErrorLogEntries)
}

func TestClearSession(t *testing.T) {
	agent := NewAgent("appview", testConfig("https://pds.test"), "did:web:appview.test#bsky_appview", Options{})
	require.True(t, agent.InitializeWithAccount(validAccount(t, "https://pds.test")))

	agent.ClearSession()
	assert.Empty(t, agent.DID())
	_, err := agent.GetPreferences(context.Background())
	assert.ErrorIs(t, err, bsky.ErrNotAuthenticated)
}

func TestNetworkSignals(t *testing.T) {
	srv := &recordingServer{status: http.StatusInternalServerError, body: `{"error":"InternalServerError"}`}
	ts := httptest.NewServer(srv)

	bus := events.NewBus()
	var mu sync.Mutex
	var got []events.Signal
	bus.Subscribe(func(s events.Signal) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	agent := NewAgent("appview", testConfig(ts.URL), "did:web:appview.test#bsky_appview", Options{Bus: bus})
	require.True(t, agent.InitializeWithAccount(validAccount(t, ts.URL)))

	_, err := agent.GetPreferences(context.Background())
	require.Error(t, err, "server errors still surface")

	ts.Close()
	_, err = agent.GetPreferences(context.Background())
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "ExpiredToken"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.Signal{events.NetworkConfirmed, events.NetworkLost}, got)
}

func TestPersistReceivesRefreshedSession(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	stub, err := appviewstub.New(appviewstub.Config{SigningKey: []byte("k"), AccessTTL: time.Minute, Clock: clock})
	require.NoError(t, err)
	ts := httptest.NewServer(stub.Handler())
	t.Cleanup(ts.Close)

	sess, err := stub.CreateAccount("did:plc:alice", "alice.test")
	require.NoError(t, err)

	var persisted []bsky.Session
	agent := NewAgent("appview", testConfig(ts.URL), "did:web:appview.test#bsky_appview", Options{
		Clock: clock,
		Persist: func(evt bsky.SessionEvent, s *bsky.Session) {
			if evt == bsky.SessionUpdate && s != nil {
				persisted = append(persisted, *s)
			}
		},
	})
	require.True(t, agent.InitializeWithAccount(Account{
		Service:    ts.URL,
		DID:        sess.DID,
		Handle:     sess.Handle,
		AccessJwt:  sess.AccessJwt,
		RefreshJwt: sess.RefreshJwt,
		PdsURL:     ts.URL,
	}))

	clock.Advance(time.Hour)
	_, err = agent.GetPreferences(context.Background())
	require.NoError(t, err)

	require.Len(t, persisted, 1)
	assert.NotEqual(t, sess.RefreshJwt, persisted[0].RefreshJwt)
	assert.Equal(t, "alice.test", persisted[0].Handle)
}

func TestReadsAreRetriedWritesAreNot(t *testing.T) {
	stub, err := appviewstub.New(appviewstub.Config{SigningKey: []byte("k")})
	require.NoError(t, err)
	ts := httptest.NewServer(stub.Handler())
	t.Cleanup(ts.Close)
	sess, err := stub.CreateAccount("did:plc:alice", "alice.test")
	require.NoError(t, err)

	cfg := testConfig(ts.URL)
	cfg.QueryRetries = 2
	agent := NewAgent("retry", cfg, "did:web:appview.test#bsky_appview", Options{})
	require.True(t, agent.InitializeWithAccount(Account{
		Service:    ts.URL,
		DID:        sess.DID,
		Handle:     sess.Handle,
		AccessJwt:  sess.AccessJwt,
		RefreshJwt: sess.RefreshJwt,
		PdsURL:     ts.URL,
	}))
	ctx := context.Background()

	stub.InjectFault(appviewstub.NSIDGetPreferences, appviewstub.Fault{Status: http.StatusServiceUnavailable, Times: 2})
	_, err = agent.GetPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stub.Calls(appviewstub.NSIDGetPreferences))

	stub.InjectFault(appviewstub.NSIDPutPreferences, appviewstub.Fault{Status: http.StatusServiceUnavailable, Times: 1})
	require.Error(t, agent.PutPreferences(ctx, []bsky.Item{}))
	assert.Equal(t, 1, stub.Calls(appviewstub.NSIDPutPreferences))
}
