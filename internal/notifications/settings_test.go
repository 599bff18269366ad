package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyprefs/internal/appviewstub"
	"skyprefs/internal/mutation"
	"skyprefs/internal/toast"
	"skyprefs/pkg/cache"
	"skyprefs/pkg/clients/bsky"
)

const testDID = "did:plc:alice"

type fixture struct {
	stub   *appviewstub.Server
	agent  *bsky.Agent
	url    string
	cache  *cache.Cache
	toasts *toast.Recorder
	record *mutation.Record
	hook   *test.Hook
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	stub, err := appviewstub.New(appviewstub.Config{SigningKey: []byte("k")})
	require.NoError(t, err)
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)

	sess, err := stub.CreateAccount(testDID, "alice.test")
	require.NoError(t, err)
	agent := bsky.NewAgent(bsky.AgentConfig{Service: srv.URL, Proxy: "did:web:api.bsky.app#bsky_appview"})
	agent.Sessions().Resume(sess, srv.URL)

	logger, hook := test.NewNullLogger()
	f := &fixture{
		stub:   stub,
		agent:  agent,
		url:    srv.URL,
		cache:  cache.New(cache.Options{TTL: 0, StaleWhileRevalidate: 5 * time.Minute, Clock: clockwork.NewFakeClock()}, cache.MetricsHooks{}),
		toasts: &toast.Recorder{},
		record: &mutation.Record{},
		hook:   hook,
	}
	f.svc = New(Config{Agent: agent, Cache: f.cache, Toasts: f.toasts, Observer: f.record, Logger: logger})
	return f
}

func likeFromFollows() bsky.NotificationPreferences {
	return bsky.NotificationPreferences{
		Like: &bsky.FilterablePreference{Include: bsky.IncludeFollows, List: true, Push: false},
	}
}

func TestSettingsLoadsFromServer(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, appviewstub.DefaultNotificationPreferences(), got)
}

func TestUpdateAppliesOptimisticallyThenStoresServerValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Settings(ctx)
	require.NoError(t, err)

	stored, err := f.svc.Update(ctx, likeFromFollows())
	require.NoError(t, err)
	assert.Equal(t, bsky.IncludeFollows, stored.Like.Include)

	assert.Equal(t, []mutation.Phase{mutation.AppliedOptimistically, mutation.Confirmed}, f.record.Phases("updateNotificationSettings"))
	assert.Zero(t, f.cache.Invalidations(Key(testDID)), "success stores the response instead of refetching")

	cached, ok := f.cache.Peek(Key(testDID))
	require.True(t, ok)
	assert.Equal(t, stored, cached)
	assert.Empty(t, f.toasts.Notices())
}

func TestUpdateWithoutCachedValueSkipsOptimisticPhase(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(context.Background(), likeFromFollows())
	require.NoError(t, err)
	assert.Equal(t, []mutation.Phase{mutation.Confirmed}, f.record.Phases("updateNotificationSettings"))
}

func TestUpdateFailureReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before, err := f.svc.Settings(ctx)
	require.NoError(t, err)

	f.stub.InjectFault(appviewstub.NSIDPutNotificationPreferences, appviewstub.Fault{Status: http.StatusBadGateway, Times: 1})
	_, err = f.svc.Update(ctx, likeFromFollows())
	require.Error(t, err)

	assert.Equal(t, []mutation.Phase{mutation.AppliedOptimistically, mutation.ReconciledAfterError}, f.record.Phases("updateNotificationSettings"))
	assert.Equal(t, 1, f.cache.Invalidations(Key(testDID)))

	cached, ok := f.cache.Peek(Key(testDID))
	require.True(t, ok)
	assert.Equal(t, before, cached, "optimistic value is replaced by the server's")

	assert.Equal(t, []toast.Notice{{Message: "Could not update notification settings", Kind: toast.KindError}}, f.toasts.Notices())

	var logged bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "Could not update notification settings" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestSettingsAreScopedToTheSignedInAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, likeFromFollows())
	require.NoError(t, err)

	bob, err := f.stub.CreateAccount("did:plc:bob", "bob.test")
	require.NoError(t, err)
	f.agent.Sessions().Resume(bob, f.url)

	got, err := f.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, appviewstub.DefaultNotificationPreferences(), got, "alice's settings are not served to bob")

	f.svc.Forget(testDID)
	_, ok := f.cache.Peek(Key(testDID))
	assert.False(t, ok)
}
