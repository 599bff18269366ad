package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"skyprefs/internal/preferences"
	"skyprefs/pkg/clients/bsky"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

var (
	headingColor = color.New(color.Bold, color.FgCyan)
	keyColor     = color.New(color.FgHiBlack)
	onColor      = color.New(color.FgGreen)
	offColor     = color.New(color.FgRed)
	okColor      = color.New(color.FgGreen)
)

type printer struct {
	w      io.Writer
	format string
}

func (p printer) json() bool { return p.format == OutputJSON }

func (p printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) heading(s string) {
	headingColor.Fprintln(p.w, s)
}

func (p printer) field(key string, value any) {
	fmt.Fprintf(p.w, "  %s %v\n", keyColor.Sprintf("%-28s", key+":"), value)
}

func (p printer) flag(key string, on bool) {
	if on {
		p.field(key, onColor.Sprint("on"))
		return
	}
	p.field(key, offColor.Sprint("off"))
}

// done reports a completed mutation. JSON output stays machine-readable.
func (p printer) done(format string, args ...any) error {
	if p.json() {
		return p.writeJSON(map[string]any{"ok": true, "message": fmt.Sprintf(format, args...)})
	}
	okColor.Fprintf(p.w, "✓ ")
	fmt.Fprintf(p.w, format+"\n", args...)
	return nil
}

func (p printer) preferences(prefs preferences.Preferences) error {
	if p.json() {
		return p.writeJSON(prefs)
	}

	p.heading("Account")
	if prefs.BirthDate != nil {
		p.field("birth date", prefs.BirthDate.Format("2006-01-02"))
	} else {
		p.field("birth date", "unset")
	}
	if prefs.UserAge != nil {
		p.field("age", *prefs.UserAge)
	}

	p.heading("Moderation")
	p.flag("adult content", prefs.ModerationPrefs.AdultContentEnabled)
	for _, label := range sortedKeys(prefs.ModerationPrefs.Labels) {
		p.field("label "+label, prefs.ModerationPrefs.Labels[label])
	}
	for _, l := range prefs.ModerationPrefs.Labelers {
		p.field("labeler", l.DID)
		for _, label := range sortedKeys(l.Labels) {
			p.field("  "+label, l.Labels[label])
		}
	}
	p.field("muted words", len(prefs.ModerationPrefs.MutedWords))
	p.field("hidden posts", len(prefs.ModerationPrefs.HiddenPosts))

	p.heading("Following feed")
	fv := prefs.FeedViewPrefs
	p.flag("hide replies", fv.HideReplies)
	p.flag("hide replies by unfollowed", fv.HideRepliesByUnfollowed)
	p.field("hide replies by like count", fv.HideRepliesByLikeCount)
	p.flag("hide reposts", fv.HideReposts)
	p.flag("hide quote posts", fv.HideQuotePosts)

	p.heading("Threads")
	p.field("sort", prefs.ThreadViewPrefs.Sort)
	p.flag("prioritize followed users", prefs.ThreadViewPrefs.PrioritizeFollowedUsers)
	p.flag("tree view", prefs.ThreadViewPrefs.LabTreeViewEnabled)

	p.heading("App")
	p.field("saved feeds", len(prefs.SavedFeeds))
	p.field("interests", strings.Join(prefs.Interests.Tags, ", "))
	p.field("queued nudges", strings.Join(prefs.BskyAppState.QueuedNudges, ", "))
	if g := prefs.BskyAppState.ActiveProgressGuide; g != nil {
		p.field("progress guide", g.Guide)
	}
	p.flag("hide verification badges", prefs.VerificationPrefs.HideBadges)
	return nil
}

func (p printer) savedFeeds(feeds []bsky.SavedFeed) error {
	if p.json() {
		return p.writeJSON(feeds)
	}
	if len(feeds) == 0 {
		fmt.Fprintln(p.w, "No saved feeds.")
		return nil
	}
	for _, f := range feeds {
		pin := " "
		if f.Pinned {
			pin = onColor.Sprint("*")
		}
		fmt.Fprintf(p.w, "%s %s  %-8s %s\n", pin, keyColor.Sprint(f.ID), f.Type, f.Value)
	}
	return nil
}

func (p printer) mutedWords(words []bsky.MutedWord) error {
	if p.json() {
		return p.writeJSON(words)
	}
	if len(words) == 0 {
		fmt.Fprintln(p.w, "No muted words.")
		return nil
	}
	for _, w := range words {
		line := fmt.Sprintf("%s  %s  [%s] actors=%s", keyColor.Sprint(w.ID), w.Value, strings.Join(w.Targets, ","), w.ActorTarget)
		if w.ExpiresAt != nil {
			line += " expires=" + w.ExpiresAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintln(p.w, line)
	}
	return nil
}

func (p printer) notificationSettings(s bsky.NotificationPreferences) error {
	if p.json() {
		return p.writeJSON(s)
	}
	p.heading("Notifications")
	if s.Chat != nil {
		p.field("chat", fmt.Sprintf("include=%s push=%t", s.Chat.Include, s.Chat.Push))
	}
	for _, r := range notificationReasons {
		if r.filterable != nil {
			if v := *r.filterable(&s); v != nil {
				p.field(r.name, fmt.Sprintf("include=%s list=%t push=%t", v.Include, v.List, v.Push))
			}
			continue
		}
		if v := *r.plain(&s); v != nil {
			p.field(r.name, fmt.Sprintf("list=%t push=%t", v.List, v.Push))
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
