package appviewstub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyprefs/pkg/clients/bsky"
	"skyprefs/pkg/clients/xrpc"
)

const (
	testDID   = "did:plc:alice"
	testProxy = "did:web:api.bsky.app#bsky_appview"
)

type fixture struct {
	stub  *Server
	srv   *httptest.Server
	clock *clockwork.FakeClock
	sess  bsky.Session
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clock := clockwork.NewFakeClock()
	cfg.SigningKey = []byte("test-signing-key")
	cfg.Clock = clock
	stub, err := New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)

	sess, err := stub.CreateAccount(testDID, "alice.test")
	require.NoError(t, err)
	return &fixture{stub: stub, srv: srv, clock: clock, sess: sess}
}

func (f *fixture) agent(proxy string) *bsky.Agent {
	agent := bsky.NewAgent(bsky.AgentConfig{Service: f.srv.URL, Proxy: proxy})
	agent.Sessions().Resume(f.sess, f.srv.URL)
	return agent
}

func (f *fixture) post(t *testing.T, nsid, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, f.srv.URL+"/xrpc/"+nsid, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestNewRequiresSigningKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestCreateAccountRejectsDuplicate(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.stub.CreateAccount(testDID, "again.test")
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestPreferencesRoundTripKeepsUnknownItems(t *testing.T) {
	f := newFixture(t, Config{})
	f.stub.SetPreferences(testDID,
		json.RawMessage(`{"$type":"app.bsky.actor.defs#adultContentPref","enabled":false}`),
		json.RawMessage(`{"$type":"app.bsky.actor.defs#somethingNew","flavor":"mint"}`),
	)
	agent := f.agent(testProxy)

	require.NoError(t, agent.SetAdultContentEnabled(context.Background(), true))

	prefs, err := agent.GetPreferences(context.Background())
	require.NoError(t, err)
	assert.True(t, prefs.ModerationPrefs.AdultContentEnabled)

	var kept bool
	for _, raw := range f.stub.Preferences(testDID) {
		if strings.Contains(string(raw), `"flavor":"mint"`) {
			kept = true
		}
	}
	assert.True(t, kept, "unknown item should survive read-modify-write")
	assert.Equal(t, testProxy, f.stub.LastProxy(NSIDPutPreferences))
}

func TestExpiredAccessTokenIsRefreshed(t *testing.T) {
	f := newFixture(t, Config{AccessTTL: time.Hour})
	agent := f.agent(testProxy)

	var events []bsky.SessionEvent
	agent.Sessions().SetPersistHandler(func(evt bsky.SessionEvent, _ *bsky.Session) {
		events = append(events, evt)
	})

	f.clock.Advance(2 * time.Hour)
	_, err := agent.GetRawPreferences(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.stub.Calls(NSIDRefreshSession))
	assert.Equal(t, 2, f.stub.Calls(NSIDGetPreferences))
	assert.Equal(t, []bsky.SessionEvent{bsky.SessionUpdate}, events)
	assert.NotEqual(t, f.sess.AccessJwt, agent.Sessions().Session().AccessJwt)
	assert.Empty(t, f.stub.LastProxy(NSIDRefreshSession), "refresh must not be proxied")
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	f := newFixture(t, Config{})

	first := f.post(t, NSIDRefreshSession, f.sess.RefreshJwt, "")
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := f.post(t, NSIDRefreshSession, f.sess.RefreshJwt, "")
	assert.Equal(t, http.StatusBadRequest, second.StatusCode)
	body, _ := io.ReadAll(second.Body)
	assert.Contains(t, string(body), errExpiredToken)
}

func TestAccessTokenCannotRefresh(t *testing.T) {
	f := newFixture(t, Config{})
	resp := f.post(t, NSIDRefreshSession, f.sess.AccessJwt, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), errInvalidToken)
}

func TestFaultInjection(t *testing.T) {
	f := newFixture(t, Config{})
	agent := f.agent(testProxy)
	f.stub.InjectFault(NSIDGetPreferences, Fault{Status: http.StatusBadGateway, Error: "UpstreamFailure", Times: 1})

	_, err := agent.GetRawPreferences(context.Background())
	var xe *xrpc.Error
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, http.StatusBadGateway, xe.StatusCode)
	assert.Equal(t, "UpstreamFailure", xe.Name)

	_, err = agent.GetRawPreferences(context.Background())
	assert.NoError(t, err)
}

func TestDroppedConnectionIsTransportError(t *testing.T) {
	f := newFixture(t, Config{})
	agent := f.agent(testProxy)
	f.stub.InjectFault(NSIDGetNotificationPreferences, Fault{Drop: true})

	_, err := agent.GetNotificationPreferences(context.Background())
	require.Error(t, err)
	var xe *xrpc.Error
	assert.False(t, errors.As(err, &xe), "dropped connection should not decode as an XRPC error")

	f.stub.ClearFaults()
	_, err = agent.GetNotificationPreferences(context.Background())
	assert.NoError(t, err)
}

func TestAcceptedProxies(t *testing.T) {
	f := newFixture(t, Config{AcceptedProxies: []string{testProxy}})

	_, err := f.agent("did:web:elsewhere.test#bsky_appview").GetRawPreferences(context.Background())
	assert.True(t, xrpc.IsErrorName(err, "InvalidRequest"))

	_, err = f.agent(testProxy).GetRawPreferences(context.Background())
	assert.NoError(t, err)
}

func TestPutPreferencesRejectsUntypedItems(t *testing.T) {
	f := newFixture(t, Config{})
	resp := f.post(t, NSIDPutPreferences, f.sess.AccessJwt, `{"preferences":[{"enabled":true}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, NSIDPutPreferences, f.sess.AccessJwt, `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotificationPreferencesMerge(t *testing.T) {
	f := newFixture(t, Config{})
	agent := f.agent(testProxy)

	stored, err := agent.PutNotificationPreferences(context.Background(), bsky.NotificationPreferences{
		Like: &bsky.FilterablePreference{Include: bsky.IncludeFollows, List: true, Push: false},
	})
	require.NoError(t, err)

	require.NotNil(t, stored.Like)
	assert.Equal(t, bsky.IncludeFollows, stored.Like.Include)
	assert.False(t, stored.Like.Push)
	require.NotNil(t, stored.Reply)
	assert.True(t, stored.Reply.Push, "untouched reasons keep their defaults")

	got, err := agent.GetNotificationPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

func TestUnknownMethod(t *testing.T) {
	f := newFixture(t, Config{})
	resp := f.post(t, "app.bsky.feed.getTimeline", f.sess.AccessJwt, "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Config{})
	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `appview_stub_tokens_issued_total{scope="com.atproto.access"} 1`)
}

func TestHandlersAnswerAccountNotFoundForUnknownDID(t *testing.T) {
	f := newFixture(t, Config{})

	for name, handler := range map[string]gin.HandlerFunc{
		NSIDRefreshSession:             f.stub.refreshSession,
		NSIDPutNotificationPreferences: f.stub.putNotificationPreferences,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/xrpc/"+name, strings.NewReader(`{"like":{"include":"all","list":true,"push":true}}`))
			c.Request.Header.Set("Content-Type", "application/json")
			c.Set("did", "did:plc:gone")

			handler(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var body xrpc.Error
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "AccountNotFound", body.Name)
		})
	}
}

func TestNotificationPreferencesAreCopies(t *testing.T) {
	f := newFixture(t, Config{})

	got := f.stub.NotificationPreferences(testDID)
	require.NotNil(t, got.Like)
	got.Like.Push = false
	got.Chat.Include = bsky.IncludeFollows

	again := f.stub.NotificationPreferences(testDID)
	assert.True(t, again.Like.Push)
	assert.Equal(t, bsky.IncludeAll, again.Chat.Include)
}

func TestRecordsAcceptLabelersHeader(t *testing.T) {
	f := newFixture(t, Config{})
	agent := f.agent(testProxy)
	agent.SetLabelers([]string{"did:plc:mod"})

	_, err := agent.GetPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bsky.DefaultLabelerDID+";redact, did:plc:mod", f.stub.LastAcceptLabelers(NSIDGetPreferences))
}

func TestSlowCallIsCutOffByRequestTimeout(t *testing.T) {
	f := newFixture(t, Config{RequestTimeout: 20 * time.Millisecond})
	agent := f.agent(testProxy)

	f.stub.InjectFault(NSIDGetPreferences, Fault{Delay: 5 * time.Second, Times: 1})
	_, err := agent.GetPreferences(context.Background())
	require.Error(t, err)
	assert.True(t, xrpc.IsErrorName(err, "UpstreamTimeout"), "got %v", err)

	_, err = agent.GetPreferences(context.Background())
	require.NoError(t, err, "the fault was used up")
}

func TestLatencyFaultStillAnswers(t *testing.T) {
	f := newFixture(t, Config{RequestTimeout: time.Second})
	agent := f.agent(testProxy)

	f.stub.InjectFault(NSIDGetNotificationPreferences, Fault{Delay: 10 * time.Millisecond, Times: 1})
	got, err := agent.GetNotificationPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultNotificationPreferences(), got)
}

func TestHealthMethod(t *testing.T) {
	f := newFixture(t, Config{})
	resp, err := http.Get(f.srv.URL + "/xrpc/" + NSIDHealth)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Version string `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Version)
}

func TestAccountAndPreferenceMetrics(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.stub.CreateAccount("did:plc:bob", "bob.test")
	require.NoError(t, err)

	resp := f.post(t, NSIDPutPreferences, f.sess.AccessJwt, `{"preferences":[{"$type":"app.bsky.actor.defs#adultContentPref","enabled":true}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	metrics, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = metrics.Body.Close() }()
	body, _ := io.ReadAll(metrics.Body)
	assert.Contains(t, string(body), "appview_stub_accounts 2")
	assert.Contains(t, string(body), "appview_stub_stored_preference_items_count 1")
}
