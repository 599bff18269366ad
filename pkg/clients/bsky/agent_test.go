package bsky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyprefs/pkg/clients/xrpc"
)

const testProxy = "did:web:appview.test#bsky_appview"

type fakePDS struct {
	mu         sync.Mutex
	prefs      []json.RawMessage
	notif      NotificationPreferences
	access     string
	refresh    string
	refreshErr string
	proxies    map[string]string
	puts       int
	refreshes  int

	// When set, refreshSession signals refreshHit and waits on refreshGate.
	refreshHit  chan struct{}
	refreshGate chan struct{}
}

func newFakePDS(prefs ...string) *fakePDS {
	f := &fakePDS{access: "access-1", refresh: "refresh-1", proxies: map[string]string{}}
	for _, p := range prefs {
		f.prefs = append(f.prefs, json.RawMessage(p))
	}
	return f
}

func (f *fakePDS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.refreshGate != nil && strings.HasSuffix(r.URL.Path, nsidRefreshSession) {
		f.refreshHit <- struct{}{}
		<-f.refreshGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	nsid := strings.TrimPrefix(r.URL.Path, "/xrpc/")
	f.proxies[nsid] = r.Header.Get(ProxyHeader)
	writeErr := func(status int, name string) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": name, "message": name})
	}

	if nsid == nsidRefreshSession {
		f.refreshes++
		if f.refreshErr != "" {
			writeErr(http.StatusBadRequest, f.refreshErr)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+f.refresh {
			writeErr(http.StatusBadRequest, errInvalidToken)
			return
		}
		f.access = fmt.Sprintf("access-%d", f.refreshes+1)
		f.refresh = fmt.Sprintf("refresh-%d", f.refreshes+1)
		_ = json.NewEncoder(w).Encode(map[string]any{"accessJwt": f.access, "refreshJwt": f.refresh, "did": "did:plc:alice", "handle": "alice.test"})
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+f.access {
		writeErr(http.StatusBadRequest, errExpiredToken)
		return
	}

	switch nsid {
	case nsidGetPreferences:
		_ = json.NewEncoder(w).Encode(map[string]any{"preferences": f.prefs})
	case nsidPutPreferences:
		var in struct {
			Preferences []json.RawMessage `json:"preferences"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeErr(http.StatusBadRequest, "InvalidRequest")
			return
		}
		f.puts++
		f.prefs = in.Preferences
	case nsidGetNotificationPreferences:
		_ = json.NewEncoder(w).Encode(notificationPreferencesEnvelope{Preferences: f.notif})
	case nsidPutNotificationPreferences:
		var in NotificationPreferences
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.notif = f.notif.Merge(in)
		_ = json.NewEncoder(w).Encode(notificationPreferencesEnvelope{Preferences: f.notif})
	default:
		writeErr(http.StatusNotImplemented, "MethodNotImplemented")
	}
}

func (f *fakePDS) stored(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.prefs))
	for _, raw := range f.prefs {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func newTestAgent(t *testing.T, pds *fakePDS) *Agent {
	t.Helper()
	srv := httptest.NewServer(pds)
	t.Cleanup(srv.Close)

	n := 0
	agent := NewAgent(AgentConfig{
		Service: srv.URL,
		Proxy:   testProxy,
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
	agent.Sessions().Resume(Session{AccessJwt: "access-1", RefreshJwt: "refresh-1", DID: "did:plc:alice", Handle: "alice.test", Active: true}, srv.URL)
	return agent
}

func findType(items []map[string]any, lexType string) []map[string]any {
	var out []map[string]any
	for _, it := range items {
		if it["$type"] == lexType {
			out = append(out, it)
		}
	}
	return out
}

func TestAgentRequiresSession(t *testing.T) {
	agent := NewAgent(AgentConfig{Service: "http://127.0.0.1:0", Proxy: testProxy})
	_, err := agent.GetPreferences(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, agent.DID())
}

func TestAgentSendsProxyHeader(t *testing.T) {
	pds := newFakePDS()
	agent := newTestAgent(t, pds)

	_, err := agent.GetPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testProxy, pds.proxies[nsidGetPreferences])
	assert.Equal(t, testProxy, agent.Proxy())
}

func TestUnknownItemsSurviveReadModifyWrite(t *testing.T) {
	unknown := `{"$type":"app.bsky.actor.defs#futurePref","nested":{"a":[1,2,3]}}`
	pds := newFakePDS(unknown, `{"$type":"app.bsky.actor.defs#adultContentPref","enabled":false}`)
	agent := newTestAgent(t, pds)

	require.NoError(t, agent.SetAdultContentEnabled(context.Background(), true))

	pds.mu.Lock()
	assert.JSONEq(t, unknown, string(pds.prefs[0]))
	pds.mu.Unlock()

	adult := findType(pds.stored(t), TypeAdultContentPref)
	require.Len(t, adult, 1)
	assert.Equal(t, true, adult[0]["enabled"])
}

func TestParsePreferences(t *testing.T) {
	raw := []string{
		`{"$type":"app.bsky.actor.defs#contentLabelPref","label":"nsfw","visibility":"show"}`,
		`{"$type":"app.bsky.actor.defs#contentLabelPref","label":"gore","visibility":"hide"}`,
		`{"$type":"app.bsky.actor.defs#contentLabelPref","label":"spam","visibility":"warn","labelerDid":"did:plc:labeler"}`,
		`{"$type":"app.bsky.actor.defs#contentLabelPref","label":"ghost","visibility":"hide","labelerDid":"did:plc:unsubscribed"}`,
		`{"$type":"app.bsky.actor.defs#labelersPref","labelers":[{"did":"did:plc:labeler"}]}`,
		`{"$type":"app.bsky.actor.defs#savedFeedsPrefV2","items":[{"id":"a","type":"timeline","value":"following","pinned":true},{"id":"b","type":"search","value":"x","pinned":false}]}`,
		`{"$type":"app.bsky.actor.defs#personalDetailsPref","birthDate":"2000-01-02T00:00:00Z"}`,
		`{"$type":"app.bsky.actor.defs#feedViewPref","feed":"home","hideReplies":true}`,
		`{"$type":"app.bsky.actor.defs#threadViewPref","sort":"oldest"}`,
		`{"$type":"app.bsky.actor.defs#bskyAppStatePref","queuedNudges":["one"],"activeProgressGuide":{"guide":"like-10-and-follow-7"}}`,
		`{"$type":"app.bsky.actor.defs#verificationPrefs","hideBadges":true}`,
		`{"$type":"app.bsky.actor.defs#mutedWordsPref","items":[{"id":"m1","value":"spoiler","targets":["content"]}]}`,
		`{"$type":"app.bsky.actor.defs#adultContentPref","enabled":"not-a-bool"}`,
	}
	items := make([]Item, len(raw))
	for i, r := range raw {
		require.NoError(t, json.Unmarshal([]byte(r), &items[i]))
	}

	prefs := ParsePreferences(items, []string{DefaultLabelerDID}, func() string { return "gen" })

	mod := prefs.ModerationPrefs
	assert.False(t, mod.AdultContentEnabled)
	assert.Equal(t, LabelIgnore, mod.Labels["porn"], "legacy show reads as ignore under the current name")
	assert.Equal(t, LabelHide, mod.Labels["graphic-media"])
	assert.Equal(t, LabelWarn, mod.Labels["sexual"], "defaults kept")
	require.Len(t, mod.Labelers, 2)
	assert.Equal(t, DefaultLabelerDID, mod.Labelers[0].DID)
	assert.Equal(t, LabelWarn, mod.Labelers[1].Labels["spam"])
	require.Len(t, mod.MutedWords, 1)

	require.Len(t, prefs.SavedFeeds, 2)
	assert.Equal(t, SavedFeedUnknown, prefs.SavedFeeds[1].Type)

	require.NotNil(t, prefs.BirthDate)
	assert.Equal(t, 2000, prefs.BirthDate.Year())
	require.NotNil(t, prefs.FeedViewPrefs[HomeFeed].HideReplies)
	assert.True(t, *prefs.FeedViewPrefs[HomeFeed].HideReplies)
	assert.Equal(t, "oldest", *prefs.ThreadViewPrefs.Sort)
	assert.Equal(t, []string{"one"}, prefs.BskyAppState.QueuedNudges)
	assert.Equal(t, "like-10-and-follow-7", prefs.BskyAppState.ActiveProgressGuide.Guide)
	assert.True(t, prefs.VerificationPrefs.HideBadges)
}

func TestParsePreferencesMigratesSavedFeedsV1(t *testing.T) {
	var item Item
	require.NoError(t, json.Unmarshal([]byte(`{"$type":"app.bsky.actor.defs#savedFeedsPref","pinned":["at://did:plc:x/app.bsky.feed.generator/f"],"saved":["at://did:plc:x/app.bsky.feed.generator/f","at://did:plc:x/app.bsky.graph.list/l"]}`), &item))

	prefs := ParsePreferences([]Item{item}, nil, func() string { return "gen" })

	require.Len(t, prefs.SavedFeeds, 2)
	assert.Equal(t, SavedFeed{ID: "gen", Type: SavedFeedFeed, Value: "at://did:plc:x/app.bsky.feed.generator/f", Pinned: true}, prefs.SavedFeeds[0])
	assert.Equal(t, SavedFeedList, prefs.SavedFeeds[1].Type)
	assert.False(t, prefs.SavedFeeds[1].Pinned)
}

func TestSetContentLabelPrefWritesLegacyIdentifier(t *testing.T) {
	pds := newFakePDS(`{"$type":"app.bsky.actor.defs#contentLabelPref","label":"porn","visibility":"hide"}`)
	agent := newTestAgent(t, pds)
	ctx := context.Background()

	require.NoError(t, agent.SetContentLabelPref(ctx, "porn", LabelWarn, ""))
	require.NoError(t, agent.SetContentLabelPref(ctx, "porn", LabelHide, "did:plc:labeler"))

	labels := findType(pds.stored(t), TypeContentLabelPref)
	require.Len(t, labels, 3)
	got := map[string]any{}
	for _, l := range labels {
		key := fmt.Sprint(l["label"], "@", l["labelerDid"])
		got[key] = l["visibility"]
	}
	assert.Equal(t, "warn", got["porn@<nil>"])
	assert.Equal(t, "warn", got["nsfw@<nil>"])
	assert.Equal(t, "hide", got["porn@did:plc:labeler"])

	assert.Error(t, agent.SetContentLabelPref(ctx, "porn", "blur", ""))
}

func TestSavedFeedHelpers(t *testing.T) {
	pds := newFakePDS()
	agent := newTestAgent(t, pds)
	ctx := context.Background()

	added, err := agent.AddSavedFeeds(ctx, []SavedFeedInput{
		{Type: SavedFeedFeed, Value: "at://did:plc:x/app.bsky.feed.generator/a", Pinned: false},
		{Type: SavedFeedTimeline, Value: "following", Pinned: true},
	})
	require.NoError(t, err)
	require.Len(t, added, 2)

	prefs, err := agent.GetPreferences(ctx)
	require.NoError(t, err)
	require.Len(t, prefs.SavedFeeds, 2)
	assert.Equal(t, "following", prefs.SavedFeeds[0].Value, "pinned entries come first")

	// Only pinned is applied from an update.
	update := added[0]
	update.Pinned = true
	update.Value = "at://did:plc:x/app.bsky.feed.generator/changed"
	require.NoError(t, agent.UpdateSavedFeeds(ctx, []SavedFeed{update}))
	prefs, err = agent.GetPreferences(ctx)
	require.NoError(t, err)
	got := savedFeedByID(prefs.SavedFeeds, added[0].ID)
	require.NotNil(t, got)
	assert.True(t, got.Pinned)
	assert.Equal(t, "at://did:plc:x/app.bsky.feed.generator/a", got.Value)

	require.NoError(t, agent.RemoveSavedFeeds(ctx, []string{added[1].ID}))
	prefs, err = agent.GetPreferences(ctx)
	require.NoError(t, err)
	require.Len(t, prefs.SavedFeeds, 1)

	require.NoError(t, agent.OverwriteSavedFeeds(ctx, []SavedFeed{
		{ID: "x", Type: SavedFeedTimeline, Value: "following", Pinned: true},
		{ID: "x", Type: SavedFeedTimeline, Value: "following", Pinned: false},
	}))
	prefs, err = agent.GetPreferences(ctx)
	require.NoError(t, err)
	require.Len(t, prefs.SavedFeeds, 1)
	assert.False(t, prefs.SavedFeeds[0].Pinned, "last duplicate wins")
}

func savedFeedByID(feeds []SavedFeed, id string) *SavedFeed {
	for i := range feeds {
		if feeds[i].ID == id {
			return &feeds[i]
		}
	}
	return nil
}

func TestValidateSavedFeed(t *testing.T) {
	assert.ErrorIs(t, ValidateSavedFeed(SavedFeed{Type: SavedFeedTimeline, Value: "following"}), ErrInvalidSavedFeed)
	assert.ErrorIs(t, ValidateSavedFeed(SavedFeed{ID: "a", Type: SavedFeedFeed, Value: "at://did:plc:x/app.bsky.graph.list/l"}), ErrInvalidSavedFeed)
	assert.ErrorIs(t, ValidateSavedFeed(SavedFeed{ID: "a", Type: SavedFeedList, Value: "https://example.com"}), ErrInvalidSavedFeed)
	assert.NoError(t, ValidateSavedFeed(SavedFeed{ID: "a", Type: SavedFeedList, Value: "at://did:plc:x/app.bsky.graph.list/l"}))
	assert.NoError(t, ValidateSavedFeed(SavedFeed{ID: "a", Type: SavedFeedTimeline, Value: "following"}))
}

func TestMutedWordHelpers(t *testing.T) {
	pds := newFakePDS()
	agent := newTestAgent(t, pds)
	ctx := context.Background()

	require.NoError(t, agent.UpsertMutedWords(ctx, []MutedWord{
		{Value: "  #spoiler\n", Targets: []string{MutedTargetTag}},
		{Value: "   ", Targets: []string{MutedTargetContent}},
	}))
	require.NoError(t, agent.UpsertMutedWords(ctx, []MutedWord{
		{Value: "spoiler", Targets: []string{MutedTargetContent, MutedTargetTag}},
	}))

	prefs, err := agent.GetPreferences(ctx)
	require.NoError(t, err)
	words := prefs.ModerationPrefs.MutedWords
	require.Len(t, words, 1)
	assert.Equal(t, "spoiler", words[0].Value)
	assert.Equal(t, []string{MutedTargetTag, MutedTargetContent}, words[0].Targets)
	id := words[0].ID
	require.NotEmpty(t, id)

	require.NoError(t, agent.UpdateMutedWord(ctx, MutedWord{ID: id, Value: "spoilers", Targets: []string{MutedTargetContent}}))
	prefs, err = agent.GetPreferences(ctx)
	require.NoError(t, err)
	require.Len(t, prefs.ModerationPrefs.MutedWords, 1)
	assert.Equal(t, "spoilers", prefs.ModerationPrefs.MutedWords[0].Value)
	assert.Equal(t, ActorTargetAll, prefs.ModerationPrefs.MutedWords[0].ActorTarget)

	require.NoError(t, agent.UpsertMutedWords(ctx, []MutedWord{{Value: "other", Targets: []string{MutedTargetContent}}}))
	require.NoError(t, agent.RemoveMutedWords(ctx, []MutedWord{{Value: "spoilers"}, {Value: "other"}}))
	prefs, err = agent.GetPreferences(ctx)
	require.NoError(t, err)
	assert.Empty(t, prefs.ModerationPrefs.MutedWords)
}

func TestSanitizeMutedWord(t *testing.T) {
	assert.Equal(t, "tag", SanitizeMutedWord(" #tag "))
	assert.Equal(t, "#\ufe0f", SanitizeMutedWord("#\ufe0f"))
	assert.Equal(t, "ab", SanitizeMutedWord("a\u200bb"))
	assert.Equal(t, "", SanitizeMutedWord("#"))
}

func TestAppStateHelpers(t *testing.T) {
	pds := newFakePDS(`{"$type":"app.bsky.actor.defs#bskyAppStatePref","nuxs":[{"id":"intro","completed":true}]}`)
	agent := newTestAgent(t, pds)
	ctx := context.Background()

	require.NoError(t, agent.QueueNudges(ctx, "a", "b"))
	require.NoError(t, agent.DismissNudges(ctx, "a"))
	require.NoError(t, agent.SetActiveProgressGuide(ctx, &ProgressGuide{Guide: "follow-10"}))
	assert.ErrorIs(t, agent.SetActiveProgressGuide(ctx, &ProgressGuide{Guide: strings.Repeat("x", 101)}), ErrInvalidProgressGuide)

	prefs, err := agent.GetPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, prefs.BskyAppState.QueuedNudges)
	assert.Equal(t, "follow-10", prefs.BskyAppState.ActiveProgressGuide.Guide)
	require.Len(t, prefs.BskyAppState.Nuxs, 1, "unrelated app state is kept")

	require.NoError(t, agent.SetActiveProgressGuide(ctx, nil))
	prefs, err = agent.GetPreferences(ctx)
	require.NoError(t, err)
	assert.Nil(t, prefs.BskyAppState.ActiveProgressGuide)
}

func TestViewPrefsMerge(t *testing.T) {
	pds := newFakePDS(`{"$type":"app.bsky.actor.defs#feedViewPref","feed":"home","hideReplies":true,"hideReposts":true}`)
	agent := newTestAgent(t, pds)
	ctx := context.Background()

	off := false
	require.NoError(t, agent.SetFeedViewPrefs(ctx, HomeFeed, FeedViewPref{HideReposts: &off}))
	sort := "newest"
	require.NoError(t, agent.SetThreadViewPrefs(ctx, ThreadViewPref{Sort: &sort}))

	prefs, err := agent.GetPreferences(ctx)
	require.NoError(t, err)
	home := prefs.FeedViewPrefs[HomeFeed]
	assert.True(t, *home.HideReplies)
	assert.False(t, *home.HideReposts)
	assert.Equal(t, "newest", *prefs.ThreadViewPrefs.Sort)
	assert.Len(t, findType(pds.stored(t), TypeFeedViewPref), 1)
}

func TestExpiredTokenRefreshesAndReplays(t *testing.T) {
	pds := newFakePDS()
	agent := newTestAgent(t, pds)

	var events []SessionEvent
	agent.Sessions().SetPersistHandler(func(evt SessionEvent, _ *Session) { events = append(events, evt) })

	// The server only accepts the token minted by the next refresh.
	pds.mu.Lock()
	pds.access = "access-rotated"
	pds.refreshes = 1
	pds.mu.Unlock()

	_, err := agent.GetPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []SessionEvent{SessionUpdate}, events)
	assert.Equal(t, "access-3", agent.Sessions().Session().AccessJwt)
	assert.Empty(t, pds.proxies[nsidRefreshSession], "refresh is never proxied")
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	pds := newFakePDS()
	pds.access = "unreachable"
	pds.refreshErr = errExpiredToken
	agent := newTestAgent(t, pds)

	var events []SessionEvent
	agent.Sessions().SetPersistHandler(func(evt SessionEvent, _ *Session) { events = append(events, evt) })

	_, err := agent.GetPreferences(context.Background())
	require.Error(t, err)
	assert.True(t, xrpc.IsErrorName(err, errExpiredToken))
	assert.Equal(t, []SessionEvent{SessionExpired}, events)
	assert.Nil(t, agent.Sessions().Session())

	_, err = agent.GetPreferences(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func gatedRefresh(t *testing.T) (*fakePDS, *Agent) {
	t.Helper()
	pds := newFakePDS()
	pds.refreshHit = make(chan struct{}, 1)
	pds.refreshGate = make(chan struct{})
	agent := newTestAgent(t, pds)
	pds.mu.Lock()
	pds.access = "access-rotated"
	pds.mu.Unlock()
	return pds, agent
}

func TestClearSessionDuringRefreshStaysSignedOut(t *testing.T) {
	pds, agent := gatedRefresh(t)

	var events []SessionEvent
	agent.Sessions().SetPersistHandler(func(evt SessionEvent, _ *Session) { events = append(events, evt) })

	done := make(chan error, 1)
	go func() {
		_, err := agent.GetPreferences(context.Background())
		done <- err
	}()

	<-pds.refreshHit
	agent.Sessions().Clear()
	close(pds.refreshGate)

	err := <-done
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, agent.DID())
	assert.Nil(t, agent.Sessions().Session())
	assert.Empty(t, events)

	_, err = agent.GetPreferences(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRefreshForReboundSessionIsDropped(t *testing.T) {
	pds, agent := gatedRefresh(t)
	bob := Session{AccessJwt: "bob-access", RefreshJwt: "bob-refresh", DID: "did:plc:bob", Handle: "bob.test", Active: true}

	done := make(chan error, 1)
	go func() {
		_, err := agent.GetPreferences(context.Background())
		done <- err
	}()

	pdsURL := agent.Sessions().PDSURL()
	<-pds.refreshHit
	agent.Sessions().Clear()
	agent.Sessions().Resume(bob, pdsURL)
	close(pds.refreshGate)

	err := <-done
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, bob, *agent.Sessions().Session())
	pds.mu.Lock()
	defer pds.mu.Unlock()
	assert.Equal(t, 1, pds.refreshes)
}

func TestNotificationPreferences(t *testing.T) {
	pds := newFakePDS()
	pds.notif = NotificationPreferences{
		Like:   &FilterablePreference{Include: IncludeAll, List: true, Push: true},
		Follow: &FilterablePreference{Include: IncludeAll, List: true, Push: true},
	}
	agent := newTestAgent(t, pds)
	ctx := context.Background()

	got, err := agent.PutNotificationPreferences(ctx, NotificationPreferences{
		Like: &FilterablePreference{Include: IncludeFollows, List: true, Push: false},
	})
	require.NoError(t, err)
	assert.Equal(t, IncludeFollows, got.Like.Include)
	assert.Equal(t, IncludeAll, got.Follow.Include)

	fetched, err := agent.GetNotificationPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, fetched)
	assert.Equal(t, testProxy, pds.proxies[nsidPutNotificationPreferences])
}

func TestNotificationPreferencesMergeCopies(t *testing.T) {
	update := NotificationPreferences{Verified: &NotificationPreference{Push: true}}
	merged := NotificationPreferences{}.Merge(update)
	update.Verified.Push = false
	assert.True(t, merged.Verified.Push)
}

func TestAgentSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"InvalidRequest","message":"bad"}`))
	}))
	t.Cleanup(srv.Close)
	agent := NewAgent(AgentConfig{Service: srv.URL, Proxy: testProxy})
	agent.Sessions().Resume(Session{AccessJwt: "a", DID: "did:plc:alice"}, "")

	err := agent.SetAdultContentEnabled(context.Background(), true)
	var xe *xrpc.Error
	require.True(t, errors.As(err, &xe))
	assert.Equal(t, "InvalidRequest", xe.Name)
}
