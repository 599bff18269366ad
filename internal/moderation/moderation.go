// Package moderation holds label defaults and the restricted view applied to
// accounts that are logged out or not verified as adults.
package moderation

import (
	"time"

	"skyprefs/pkg/clients/bsky"
)

// AdultAge is the age at which unrestricted moderation applies.
const AdultAge = 18

// DefaultLabelSettings are the global label visibilities for a new account.
func DefaultLabelSettings() map[string]bsky.LabelPreference {
	return bsky.DefaultLabelSettings()
}

// LoggedOutLabelSettings hides every adult label.
func LoggedOutLabelSettings() map[string]bsky.LabelPreference {
	return map[string]bsky.LabelPreference{
		"porn":          bsky.LabelHide,
		"sexual":        bsky.LabelHide,
		"nudity":        bsky.LabelHide,
		"graphic-media": bsky.LabelHide,
	}
}

// AgeRestricted returns a copy of prefs with adult content disabled and the
// logged-out label settings in force. Labelers, muted words and hidden posts
// are kept.
func AgeRestricted(prefs bsky.ModerationPrefs) bsky.ModerationPrefs {
	out := prefs.Clone()
	out.AdultContentEnabled = false
	out.Labels = LoggedOutLabelSettings()
	return out
}

// Age is the number of whole years between birth and now.
func Age(birth, now time.Time) int {
	birth = birth.UTC()
	now = now.UTC()
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
