// Package preferences serves the signed-in user's preferences from a query
// cache and applies changes to them.
package preferences

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"skyprefs/internal/labelers"
	"skyprefs/internal/metrics"
	"skyprefs/internal/moderation"
	"skyprefs/internal/mutation"
	"skyprefs/pkg/cache"
	"skyprefs/pkg/clients/bsky"
	"skyprefs/pkg/logging"
)

// QueryKey prefixes the cache key of each account's snapshot.
const QueryKey = "getPreferences"

// ErrSessionChanged is returned by a load whose account was signed out or
// switched while it ran.
var ErrSessionChanged = errors.New("preferences: session changed during load")

// Key is the cache key for did's snapshot. The logged-out key is Key("").
func Key(did string) string {
	return QueryKey + ":" + did
}

// Preferences is the snapshot the app reads.
type Preferences struct {
	SavedFeeds        []bsky.SavedFeed       `json:"savedFeeds"`
	FeedViewPrefs     FeedViewPrefs          `json:"feedViewPrefs"`
	ThreadViewPrefs   ThreadViewPrefs        `json:"threadViewPrefs"`
	ModerationPrefs   bsky.ModerationPrefs   `json:"moderationPrefs"`
	BirthDate         *time.Time             `json:"birthDate,omitempty"`
	Interests         bsky.Interests         `json:"interests"`
	BskyAppState      bsky.BskyAppState      `json:"bskyAppState"`
	VerificationPrefs bsky.VerificationPrefs `json:"verificationPrefs"`
	// UserAge is derived from BirthDate; nil when no birth date is stored.
	UserAge *int `json:"userAge,omitempty"`
}

// Clone returns a copy that shares no mutable state with p.
func (p Preferences) Clone() Preferences {
	out := p
	out.SavedFeeds = append([]bsky.SavedFeed{}, p.SavedFeeds...)
	out.ModerationPrefs = p.ModerationPrefs.Clone()
	out.Interests.Tags = append([]string{}, p.Interests.Tags...)
	out.BskyAppState.QueuedNudges = append([]string{}, p.BskyAppState.QueuedNudges...)
	out.BskyAppState.Nuxs = append([]bsky.Nux{}, p.BskyAppState.Nuxs...)
	if p.BskyAppState.ActiveProgressGuide != nil {
		g := *p.BskyAppState.ActiveProgressGuide
		out.BskyAppState.ActiveProgressGuide = &g
	}
	if p.BirthDate != nil {
		b := *p.BirthDate
		out.BirthDate = &b
	}
	if p.UserAge != nil {
		a := *p.UserAge
		out.UserAge = &a
	}
	return out
}

// Agent is the subset of the bsky agent the preferences layer calls.
type Agent interface {
	DID() string
	SetLabelers(dids []string)
	GetPreferences(ctx context.Context) (bsky.Preferences, error)
	PutPreferences(ctx context.Context, items []bsky.Item) error
	SetContentLabelPref(ctx context.Context, label string, visibility bsky.LabelPreference, labelerDID string) error
	SetAdultContentEnabled(ctx context.Context, enabled bool) error
	SetPersonalDetails(ctx context.Context, birthDate time.Time) error
	SetFeedViewPrefs(ctx context.Context, feed string, update bsky.FeedViewPref) error
	SetThreadViewPrefs(ctx context.Context, update bsky.ThreadViewPref) error
	OverwriteSavedFeeds(ctx context.Context, feeds []bsky.SavedFeed) error
	AddSavedFeeds(ctx context.Context, feeds []bsky.SavedFeedInput) ([]bsky.SavedFeed, error)
	RemoveSavedFeeds(ctx context.Context, ids []string) error
	UpdateSavedFeeds(ctx context.Context, feeds []bsky.SavedFeed) error
	UpsertMutedWords(ctx context.Context, words []bsky.MutedWord) error
	UpdateMutedWord(ctx context.Context, word bsky.MutedWord) error
	RemoveMutedWord(ctx context.Context, word bsky.MutedWord) error
	RemoveMutedWords(ctx context.Context, words []bsky.MutedWord) error
	QueueNudges(ctx context.Context, nudges ...string) error
	DismissNudges(ctx context.Context, nudges ...string) error
	SetActiveProgressGuide(ctx context.Context, guide *bsky.ProgressGuide) error
	SetVerificationPrefs(ctx context.Context, prefs bsky.VerificationPrefs) error
}

// AgeAssurance reports whether the account must be treated as a minor
// regardless of its stored birth date.
type AgeAssurance interface {
	IsAgeRestricted() bool
}

type AgeAssuranceFunc func() bool

func (f AgeAssuranceFunc) IsAgeRestricted() bool { return f() }

type Config struct {
	Agent           Agent
	Cache           *cache.Cache
	Labelers        labelers.Store
	AgeAssurance    AgeAssurance
	Events          metrics.Recorder
	Observer        mutation.Observer
	DiscoverFeedURI string
	Clock           clockwork.Clock
	Logger          logging.Logger
}

type Service struct {
	agent           Agent
	cache           *cache.Cache
	labelers        labelers.Store
	ageAssurance    AgeAssurance
	events          metrics.Recorder
	runner          mutation.Runner
	discoverFeedURI string
	clock           clockwork.Clock
	logger          logging.Logger
}

func New(cfg Config) *Service {
	s := &Service{
		agent:           cfg.Agent,
		cache:           cfg.Cache,
		labelers:        cfg.Labelers,
		ageAssurance:    cfg.AgeAssurance,
		events:          cfg.Events,
		discoverFeedURI: cfg.DiscoverFeedURI,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
	}
	if s.labelers == nil {
		s.labelers = labelers.NewMemory()
	}
	if s.ageAssurance == nil {
		s.ageAssurance = AgeAssuranceFunc(func() bool { return false })
	}
	if s.events == nil {
		s.events = metrics.Discard{}
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = logging.NewDiscardLogger()
	}
	s.runner = mutation.Runner{Cache: s.cache, KeyFunc: s.key, Observer: cfg.Observer, Logger: s.logger}
	return s
}

// Fetch loads preferences from the network, bypassing the cache.
func (s *Service) Fetch(ctx context.Context) (Preferences, error) {
	did := s.agent.DID()
	if did == "" {
		return DefaultLoggedOutPreferences(), nil
	}

	res, err := s.agent.GetPreferences(ctx)
	if err != nil {
		return Preferences{}, err
	}

	// Keep labelers locally so moderation is configured before the next
	// fetch completes.
	dids := make([]string, 0, len(res.ModerationPrefs.Labelers))
	for _, l := range res.ModerationPrefs.Labelers {
		dids = append(dids, l.DID)
	}
	if err := s.labelers.Save(ctx, did, dids); err != nil {
		s.logger.WithFields(logging.Fields{"did": did, "error": err}).Warn("Failed to save labelers")
	}
	s.agent.SetLabelers(dids)

	savedFeeds := make([]bsky.SavedFeed, 0, len(res.SavedFeeds))
	for _, f := range res.SavedFeeds {
		if f.Type != bsky.SavedFeedUnknown {
			savedFeeds = append(savedFeeds, f)
		}
	}

	prefs := Preferences{
		SavedFeeds:        savedFeeds,
		FeedViewPrefs:     DefaultHomeFeedPrefs().apply(res.FeedViewPrefs[bsky.HomeFeed]),
		ThreadViewPrefs:   DefaultThreadViewPrefs().apply(res.ThreadViewPrefs),
		ModerationPrefs:   res.ModerationPrefs,
		BirthDate:         res.BirthDate,
		Interests:         res.Interests,
		BskyAppState:      res.BskyAppState,
		VerificationPrefs: res.VerificationPrefs,
	}
	if res.BirthDate != nil {
		age := moderation.Age(*res.BirthDate, s.clock.Now())
		prefs.UserAge = &age
	}
	return prefs, nil
}

func (s *Service) key() string {
	return Key(s.agent.DID())
}

func (s *Service) load(ctx context.Context, key string) (interface{}, bool, error) {
	prefs, err := s.Fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	// Never file one account's snapshot under another's key.
	if s.key() != key {
		return nil, false, ErrSessionChanged
	}
	return prefs, true, nil
}

// Forget drops the cached snapshot of did.
func (s *Service) Forget(did string) {
	s.cache.Delete(Key(did))
}

// Raw returns the cached snapshot of the current account without the age
// restriction applied.
func (s *Service) Raw(ctx context.Context) (Preferences, error) {
	v, _, err := s.cache.Get(ctx, s.key(), s.load)
	if err != nil {
		return Preferences{}, err
	}
	return v.(Preferences).Clone(), nil
}

// Preferences returns the snapshot as the app should see it: moderation is
// age-restricted for minors, for accounts without a birth date and when age
// assurance says so.
func (s *Service) Preferences(ctx context.Context) (Preferences, error) {
	raw, err := s.Raw(ctx)
	if err != nil {
		return Preferences{}, err
	}
	return s.selectView(raw), nil
}

func (s *Service) selectView(p Preferences) Preferences {
	age := 0
	if p.UserAge != nil {
		age = *p.UserAge
	}
	if age < moderation.AdultAge || s.ageAssurance.IsAgeRestricted() {
		p.ModerationPrefs = moderation.AgeRestricted(p.ModerationPrefs)
	}
	return p
}

// Labelers returns the labeler DIDs last saved for did.
func (s *Service) Labelers(ctx context.Context, did string) ([]string, error) {
	return s.labelers.Load(ctx, did)
}
