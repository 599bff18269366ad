package preferences

import (
	"time"

	"skyprefs/internal/moderation"
	"skyprefs/pkg/clients/bsky"
)

// FeedViewPrefs are the resolved following-feed settings.
type FeedViewPrefs struct {
	HideReplies             bool  `json:"hideReplies"`
	HideRepliesByUnfollowed bool  `json:"hideRepliesByUnfollowed"`
	HideRepliesByLikeCount  int64 `json:"hideRepliesByLikeCount"`
	HideReposts             bool  `json:"hideReposts"`
	HideQuotePosts          bool  `json:"hideQuotePosts"`
}

func (p FeedViewPrefs) apply(in bsky.FeedViewPref) FeedViewPrefs {
	if in.HideReplies != nil {
		p.HideReplies = *in.HideReplies
	}
	if in.HideRepliesByUnfollowed != nil {
		p.HideRepliesByUnfollowed = *in.HideRepliesByUnfollowed
	}
	if in.HideRepliesByLikeCount != nil {
		p.HideRepliesByLikeCount = *in.HideRepliesByLikeCount
	}
	if in.HideReposts != nil {
		p.HideReposts = *in.HideReposts
	}
	if in.HideQuotePosts != nil {
		p.HideQuotePosts = *in.HideQuotePosts
	}
	return p
}

// ThreadViewPrefs are the resolved thread settings.
type ThreadViewPrefs struct {
	Sort                    string `json:"sort"`
	PrioritizeFollowedUsers bool   `json:"prioritizeFollowedUsers"`
	LabTreeViewEnabled      bool   `json:"lab_treeViewEnabled"`
}

func (p ThreadViewPrefs) apply(in bsky.ThreadViewPref) ThreadViewPrefs {
	if in.Sort != nil {
		p.Sort = *in.Sort
	}
	if in.PrioritizeFollowedUsers != nil {
		p.PrioritizeFollowedUsers = *in.PrioritizeFollowedUsers
	}
	if in.LabTreeViewEnabled != nil {
		p.LabTreeViewEnabled = *in.LabTreeViewEnabled
	}
	return p
}

// DefaultHomeFeedPrefs apply to the following feed until the user changes
// them. The reply-by-unfollowed and like-count settings are legacy and
// no longer read by feeds.
func DefaultHomeFeedPrefs() FeedViewPrefs {
	return FeedViewPrefs{
		HideReplies:             false,
		HideRepliesByUnfollowed: true,
		HideRepliesByLikeCount:  0,
		HideReposts:             false,
		HideQuotePosts:          false,
	}
}

func DefaultThreadViewPrefs() ThreadViewPrefs {
	return ThreadViewPrefs{
		Sort:                    "hotness",
		PrioritizeFollowedUsers: true,
		LabTreeViewEnabled:      false,
	}
}

// loggedOutBirthDate and loggedOutUserAge describe the anonymous viewer.
var loggedOutBirthDate = time.Date(2022, time.November, 17, 0, 0, 0, 0, time.UTC)

const loggedOutUserAge = 13

// DefaultLoggedOutPreferences is the snapshot served when nobody is signed in.
func DefaultLoggedOutPreferences() Preferences {
	birth := loggedOutBirthDate
	age := loggedOutUserAge
	return Preferences{
		BirthDate: &birth,
		UserAge:   &age,
		ModerationPrefs: bsky.ModerationPrefs{
			AdultContentEnabled: false,
			Labels:              moderation.LoggedOutLabelSettings(),
			Labelers:            []bsky.LabelerPrefs{},
			MutedWords:          []bsky.MutedWord{},
			HiddenPosts:         []string{},
		},
		FeedViewPrefs:   DefaultHomeFeedPrefs(),
		ThreadViewPrefs: DefaultThreadViewPrefs(),
		Interests:       bsky.Interests{Tags: []string{}},
		SavedFeeds:      []bsky.SavedFeed{},
		BskyAppState: bsky.BskyAppState{
			QueuedNudges: []string{},
			Nuxs:         []bsky.Nux{},
		},
		VerificationPrefs: bsky.VerificationPrefs{HideBadges: false},
	}
}
