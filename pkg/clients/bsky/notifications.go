package bsky

import "context"

// Notification include filters.
const (
	IncludeAll      = "all"
	IncludeFollows  = "follows"
	IncludeAccepted = "accepted"
)

type ChatPreference struct {
	Include string `json:"include"`
	Push    bool   `json:"push"`
}

type FilterablePreference struct {
	Include string `json:"include"`
	List    bool   `json:"list"`
	Push    bool   `json:"push"`
}

type NotificationPreference struct {
	List bool `json:"list"`
	Push bool `json:"push"`
}

// NotificationPreferences holds per-reason settings. In an update a nil
// field leaves that reason untouched.
type NotificationPreferences struct {
	Chat              *ChatPreference         `json:"chat,omitempty"`
	Follow            *FilterablePreference   `json:"follow,omitempty"`
	Like              *FilterablePreference   `json:"like,omitempty"`
	LikeViaRepost     *FilterablePreference   `json:"likeViaRepost,omitempty"`
	Mention           *FilterablePreference   `json:"mention,omitempty"`
	Quote             *FilterablePreference   `json:"quote,omitempty"`
	Reply             *FilterablePreference   `json:"reply,omitempty"`
	Repost            *FilterablePreference   `json:"repost,omitempty"`
	RepostViaRepost   *FilterablePreference   `json:"repostViaRepost,omitempty"`
	StarterpackJoined *NotificationPreference `json:"starterpackJoined,omitempty"`
	SubscribedPost    *NotificationPreference `json:"subscribedPost,omitempty"`
	Unverified        *NotificationPreference `json:"unverified,omitempty"`
	Verified          *NotificationPreference `json:"verified,omitempty"`
}

// Merge returns p with every non-nil reason in update replacing p's.
func (p NotificationPreferences) Merge(update NotificationPreferences) NotificationPreferences {
	pick := func(dst **FilterablePreference, src *FilterablePreference) {
		if src != nil {
			v := *src
			*dst = &v
		}
	}
	pickPlain := func(dst **NotificationPreference, src *NotificationPreference) {
		if src != nil {
			v := *src
			*dst = &v
		}
	}
	if update.Chat != nil {
		v := *update.Chat
		p.Chat = &v
	}
	pick(&p.Follow, update.Follow)
	pick(&p.Like, update.Like)
	pick(&p.LikeViaRepost, update.LikeViaRepost)
	pick(&p.Mention, update.Mention)
	pick(&p.Quote, update.Quote)
	pick(&p.Reply, update.Reply)
	pick(&p.Repost, update.Repost)
	pick(&p.RepostViaRepost, update.RepostViaRepost)
	pickPlain(&p.StarterpackJoined, update.StarterpackJoined)
	pickPlain(&p.SubscribedPost, update.SubscribedPost)
	pickPlain(&p.Unverified, update.Unverified)
	pickPlain(&p.Verified, update.Verified)
	return p
}

// Clone returns a copy that shares no pointers with p.
func (p NotificationPreferences) Clone() NotificationPreferences {
	return NotificationPreferences{}.Merge(p)
}

type notificationPreferencesEnvelope struct {
	Preferences NotificationPreferences `json:"preferences"`
}

func (a *Agent) GetNotificationPreferences(ctx context.Context) (NotificationPreferences, error) {
	var out notificationPreferencesEnvelope
	if err := a.query(ctx, nsidGetNotificationPreferences, nil, &out); err != nil {
		return NotificationPreferences{}, err
	}
	return out.Preferences, nil
}

// PutNotificationPreferences sends a partial update and returns the stored
// preferences.
func (a *Agent) PutNotificationPreferences(ctx context.Context, update NotificationPreferences) (NotificationPreferences, error) {
	var out notificationPreferencesEnvelope
	if err := a.procedure(ctx, nsidPutNotificationPreferences, update, &out); err != nil {
		return NotificationPreferences{}, err
	}
	return out.Preferences, nil
}
