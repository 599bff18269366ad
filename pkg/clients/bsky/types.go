package bsky

import (
	"encoding/json"
	"time"
)

// Lexicon $type values for app.bsky.actor preference items.
const (
	TypeAdultContentPref   = "app.bsky.actor.defs#adultContentPref"
	TypeContentLabelPref   = "app.bsky.actor.defs#contentLabelPref"
	TypeSavedFeedsPref     = "app.bsky.actor.defs#savedFeedsPref"
	TypeSavedFeedsPrefV2   = "app.bsky.actor.defs#savedFeedsPrefV2"
	TypePersonalDetails    = "app.bsky.actor.defs#personalDetailsPref"
	TypeFeedViewPref       = "app.bsky.actor.defs#feedViewPref"
	TypeThreadViewPref     = "app.bsky.actor.defs#threadViewPref"
	TypeInterestsPref      = "app.bsky.actor.defs#interestsPref"
	TypeMutedWordsPref     = "app.bsky.actor.defs#mutedWordsPref"
	TypeHiddenPostsPref    = "app.bsky.actor.defs#hiddenPostsPref"
	TypeLabelersPref       = "app.bsky.actor.defs#labelersPref"
	TypeBskyAppStatePref   = "app.bsky.actor.defs#bskyAppStatePref"
	TypeVerificationPrefs  = "app.bsky.actor.defs#verificationPrefs"
	TypePostInteractionSet = "app.bsky.actor.defs#postInteractionSettingsPref"
)

// DefaultLabelerDID is the moderation service every client subscribes to.
const DefaultLabelerDID = "did:plc:ar7c4by46qjdydhdevvrndac"

// HomeFeed is the feed key under which following-feed view prefs are stored.
const HomeFeed = "home"

// LabelPreference is the visibility a user picked for a label value.
type LabelPreference string

const (
	LabelIgnore LabelPreference = "ignore"
	LabelWarn   LabelPreference = "warn"
	LabelHide   LabelPreference = "hide"

	// labelShowLegacy is read as LabelIgnore.
	labelShowLegacy LabelPreference = "show"
)

// Valid reports whether p is a visibility the server accepts on write.
func (p LabelPreference) Valid() bool {
	switch p {
	case LabelIgnore, LabelWarn, LabelHide:
		return true
	}
	return false
}

// Saved feed types.
const (
	SavedFeedFeed     = "feed"
	SavedFeedList     = "list"
	SavedFeedTimeline = "timeline"
	SavedFeedUnknown  = "unknown"
)

type SavedFeed struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Value  string `json:"value"`
	Pinned bool   `json:"pinned"`
}

// Muted word targets and actor targets.
const (
	MutedTargetContent = "content"
	MutedTargetTag     = "tag"

	ActorTargetAll              = "all"
	ActorTargetExcludeFollowing = "exclude-following"
)

type MutedWord struct {
	ID          string     `json:"id,omitempty"`
	Value       string     `json:"value"`
	Targets     []string   `json:"targets"`
	ActorTarget string     `json:"actorTarget,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// FeedViewPref is a partial feed view preference: nil fields are unset.
type FeedViewPref struct {
	HideReplies             *bool  `json:"hideReplies,omitempty"`
	HideRepliesByUnfollowed *bool  `json:"hideRepliesByUnfollowed,omitempty"`
	HideRepliesByLikeCount  *int64 `json:"hideRepliesByLikeCount,omitempty"`
	HideReposts             *bool  `json:"hideReposts,omitempty"`
	HideQuotePosts          *bool  `json:"hideQuotePosts,omitempty"`
}

// Merge returns p with every non-nil field of update applied.
func (p FeedViewPref) Merge(update FeedViewPref) FeedViewPref {
	if update.HideReplies != nil {
		p.HideReplies = update.HideReplies
	}
	if update.HideRepliesByUnfollowed != nil {
		p.HideRepliesByUnfollowed = update.HideRepliesByUnfollowed
	}
	if update.HideRepliesByLikeCount != nil {
		p.HideRepliesByLikeCount = update.HideRepliesByLikeCount
	}
	if update.HideReposts != nil {
		p.HideReposts = update.HideReposts
	}
	if update.HideQuotePosts != nil {
		p.HideQuotePosts = update.HideQuotePosts
	}
	return p
}

// ThreadViewPref is a partial thread view preference.
type ThreadViewPref struct {
	Sort                    *string `json:"sort,omitempty"`
	PrioritizeFollowedUsers *bool   `json:"prioritizeFollowedUsers,omitempty"`
	LabTreeViewEnabled      *bool   `json:"lab_treeViewEnabled,omitempty"`
}

func (p ThreadViewPref) Merge(update ThreadViewPref) ThreadViewPref {
	if update.Sort != nil {
		p.Sort = update.Sort
	}
	if update.PrioritizeFollowedUsers != nil {
		p.PrioritizeFollowedUsers = update.PrioritizeFollowedUsers
	}
	if update.LabTreeViewEnabled != nil {
		p.LabTreeViewEnabled = update.LabTreeViewEnabled
	}
	return p
}

type LabelerPrefs struct {
	DID    string                     `json:"did"`
	Labels map[string]LabelPreference `json:"labels"`
}

type ModerationPrefs struct {
	AdultContentEnabled bool                       `json:"adultContentEnabled"`
	Labels              map[string]LabelPreference `json:"labels"`
	Labelers            []LabelerPrefs             `json:"labelers"`
	MutedWords          []MutedWord                `json:"mutedWords"`
	HiddenPosts         []string                   `json:"hiddenPosts"`
}

// Clone deep-copies the maps and slices so callers can transform freely.
func (m ModerationPrefs) Clone() ModerationPrefs {
	out := m
	out.Labels = make(map[string]LabelPreference, len(m.Labels))
	for k, v := range m.Labels {
		out.Labels[k] = v
	}
	out.Labelers = make([]LabelerPrefs, len(m.Labelers))
	for i, l := range m.Labelers {
		labels := make(map[string]LabelPreference, len(l.Labels))
		for k, v := range l.Labels {
			labels[k] = v
		}
		out.Labelers[i] = LabelerPrefs{DID: l.DID, Labels: labels}
	}
	out.MutedWords = append([]MutedWord{}, m.MutedWords...)
	out.HiddenPosts = append([]string{}, m.HiddenPosts...)
	return out
}

type Interests struct {
	Tags []string `json:"tags"`
}

type ProgressGuide struct {
	Guide string `json:"guide"`
}

type Nux struct {
	ID        string     `json:"id"`
	Completed bool       `json:"completed"`
	Data      string     `json:"data,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type BskyAppState struct {
	QueuedNudges        []string       `json:"queuedNudges"`
	ActiveProgressGuide *ProgressGuide `json:"activeProgressGuide,omitempty"`
	Nuxs                []Nux          `json:"nuxs"`
}

type VerificationPrefs struct {
	HideBadges bool `json:"hideBadges"`
}

// Preferences is the aggregate view of a user's preference list.
type Preferences struct {
	SavedFeeds        []SavedFeed             `json:"savedFeeds"`
	FeedViewPrefs     map[string]FeedViewPref `json:"feedViewPrefs"`
	ThreadViewPrefs   ThreadViewPref          `json:"threadViewPrefs"`
	ModerationPrefs   ModerationPrefs         `json:"moderationPrefs"`
	BirthDate         *time.Time              `json:"birthDate,omitempty"`
	Interests         Interests               `json:"interests"`
	BskyAppState      BskyAppState            `json:"bskyAppState"`
	VerificationPrefs VerificationPrefs       `json:"verificationPrefs"`
}

// DefaultLabelSettings are the global visibilities used until the user
// overrides them.
func DefaultLabelSettings() map[string]LabelPreference {
	return map[string]LabelPreference{
		"porn":          LabelHide,
		"sexual":        LabelWarn,
		"nudity":        LabelIgnore,
		"graphic-media": LabelWarn,
	}
}

// legacyLabelValues maps current label values to the identifiers older
// clients wrote.
var legacyLabelValues = map[string]string{
	"graphic-media": "gore",
	"porn":          "nsfw",
	"sexual":        "suggestive",
}

// Wire items. Each carries its own $type so a re-marshalled item keeps it.

type adultContentPref struct {
	LexType string `json:"$type"`
	Enabled bool   `json:"enabled"`
}

type contentLabelPref struct {
	LexType    string          `json:"$type"`
	LabelerDID string          `json:"labelerDid,omitempty"`
	Label      string          `json:"label"`
	Visibility LabelPreference `json:"visibility"`
}

type savedFeedsPrefV2 struct {
	LexType string      `json:"$type"`
	Items   []SavedFeed `json:"items"`
}

type savedFeedsPrefV1 struct {
	LexType string   `json:"$type"`
	Pinned  []string `json:"pinned"`
	Saved   []string `json:"saved"`
}

type personalDetailsPref struct {
	LexType   string `json:"$type"`
	BirthDate string `json:"birthDate,omitempty"`
}

type feedViewPrefItem struct {
	LexType string `json:"$type"`
	Feed    string `json:"feed"`
	FeedViewPref
}

type threadViewPrefItem struct {
	LexType string `json:"$type"`
	ThreadViewPref
}

type interestsPref struct {
	LexType string   `json:"$type"`
	Tags    []string `json:"tags"`
}

type mutedWordsPref struct {
	LexType string      `json:"$type"`
	Items   []MutedWord `json:"items"`
}

type hiddenPostsPref struct {
	LexType string   `json:"$type"`
	Items   []string `json:"items"`
}

type labelersPref struct {
	LexType  string `json:"$type"`
	Labelers []struct {
		DID string `json:"did"`
	} `json:"labelers"`
}

type bskyAppStatePref struct {
	LexType             string         `json:"$type"`
	ActiveProgressGuide *ProgressGuide `json:"activeProgressGuide,omitempty"`
	QueuedNudges        []string       `json:"queuedNudges,omitempty"`
	Nuxs                []Nux          `json:"nuxs,omitempty"`
}

type verificationPrefsItem struct {
	LexType    string `json:"$type"`
	HideBadges bool   `json:"hideBadges"`
}

// Item is one element of the raw preference list. Raw is kept verbatim so
// unrecognised items round-trip untouched.
type Item struct {
	Type string
	Raw  json.RawMessage
}

func (i Item) MarshalJSON() ([]byte, error) {
	return i.Raw, nil
}

func (i *Item) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	i.Type = head.Type
	i.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (i Item) decode(v any) error {
	return json.Unmarshal(i.Raw, v)
}

func newItem(lexType string, v any) (Item, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Item{}, err
	}
	return Item{Type: lexType, Raw: raw}, nil
}
