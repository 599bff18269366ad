package bsky

import (
	"context"
	"fmt"
	"time"
)

// lastOf returns the last item of lexType accepted by match (nil matches all).
func lastOf(items []Item, lexType string, match func(Item) bool) (Item, bool) {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Type == lexType && (match == nil || match(items[i])) {
			return items[i], true
		}
	}
	return Item{}, false
}

func without(items []Item, drop func(Item) bool) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if !drop(it) {
			out = append(out, it)
		}
	}
	return out
}

// replaceAll drops every item of lexType and appends v as the sole one.
func replaceAll(items []Item, lexType string, v any) ([]Item, error) {
	item, err := newItem(lexType, v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", lexType, err)
	}
	return append(without(items, func(it Item) bool { return it.Type == lexType }), item), nil
}

func (a *Agent) SetAdultContentEnabled(ctx context.Context, enabled bool) error {
	return a.updatePreferences(ctx, func(items []Item) ([]Item, error) {
		return replaceAll(items, TypeAdultContentPref, adultContentPref{LexType: TypeAdultContentPref, Enabled: enabled})
	})
}

// SetContentLabelPref stores the visibility for label, scoped to labelerDID
// when non-empty. Global prefs for labels that older clients knew under
// another identifier are written under both.
func (a *Agent) SetContentLabelPref(ctx context.Context, label string, visibility LabelPreference, labelerDID string) error {
	if !visibility.Valid() {
		return fmt.Errorf("bsky: invalid label visibility %q", visibility)
	}
	return a.updatePreferences(ctx, func(items []Item) ([]Item, error) {
		keys := []string{label}
		if legacy, ok := legacyLabelValues[label]; ok && labelerDID == "" {
			keys = append(keys, legacy)
		}
		out := items
		for _, key := range keys {
			matches := func(it Item) bool {
				if it.Type != TypeContentLabelPref {
					return false
				}
				var p contentLabelPref
				return it.decode(&p) == nil && p.Label == key && p.LabelerDID == labelerDID
			}
			item, err := newItem(TypeContentLabelPref, contentLabelPref{
				LexType:    TypeContentLabelPref,
				LabelerDID: labelerDID,
				Label:      key,
				Visibility: visibility,
			})
			if err != nil {
				return nil, err
			}
			out = append(without(out, matches), item)
		}
		return out, nil
	})
}

func (a *Agent) SetPersonalDetails(ctx context.Context, birthDate time.Time) error {
	return a.updatePreferences(ctx, func(items []Item) ([]Item, error) {
		return replaceAll(items, TypePersonalDetails, personalDetailsPref{
			LexType:   TypePersonalDetails,
			BirthDate: birthDate.UTC().Format(time.RFC3339),
		})
	})
}

// SetFeedViewPrefs merges update into the stored prefs for feed.
func (a *Agent) SetFeedViewPrefs(ctx context.Context, feed string, update FeedViewPref) error {
	return a.updatePreferences(ctx, func(items []Item) ([]Item, error) {
		forFeed := func(it Item) bool {
			if it.Type != TypeFeedViewPref {
				return false
			}
			var p feedViewPrefItem
			return it.decode(&p) == nil && p.Feed == feed
		}
		var current FeedViewPref
		if it, ok := lastOf(items, TypeFeedViewPref, forFeed); ok {
			var p feedViewPrefItem
			_ = it.decode(&p)
			current = p.FeedViewPref
		}
		item, err := newItem(TypeFeedViewPref, feedViewPrefItem{
			LexType:      TypeFeedViewPref,
			Feed:         feed,
			FeedViewPref: current.Merge(update),
		})
		if err != nil {
			return nil, err
		}
		return append(without(items, forFeed), item), nil
	})
}

func (a *Agent) SetThreadViewPrefs(ctx context.Context, update ThreadViewPref) error {
	return a.updatePreferences(ctx, func(items []Item) ([]Item, error) {
		var current ThreadViewPref
		if it, ok := lastOf(items, TypeThreadViewPref, nil); ok {
			var p threadViewPrefItem
			_ = it.decode(&p)
			current = p.ThreadViewPref
		}
		return replaceAll(items, TypeThreadViewPref, threadViewPrefItem{
			LexType:        TypeThreadViewPref,
			ThreadViewPref: current.Merge(update),
		})
	})
}

func (a *Agent) SetVerificationPrefs(ctx context.Context, prefs VerificationPrefs) error {
	return a.updatePreferences(ctx, func(items []Item) ([]Item, error) {
		return replaceAll(items, TypeVerificationPrefs, verificationPrefsItem{
			LexType:    TypeVerificationPrefs,
			HideBadges: prefs.HideBadges,
		})
	})
}

func (a *Agent) updateAppState(ctx context.Context, fn func(*bskyAppStatePref) error) error {
	return a.updatePreferences(ctx, func(items []Item) ([]Item, error) {
		state := bskyAppStatePref{}
		if it, ok := lastOf(items, TypeBskyAppStatePref, nil); ok {
			_ = it.decode(&state)
		}
		state.LexType = TypeBskyAppStatePref
		if err := fn(&state); err != nil {
			return nil, err
		}
		return replaceAll(items, TypeBskyAppStatePref, state)
	})
}

// QueueNudges appends nudge ids to the app state queue.
func (a *Agent) QueueNudges(ctx context.Context, nudges ...string) error {
	return a.updateAppState(ctx, func(s *bskyAppStatePref) error {
		s.QueuedNudges = append(s.QueuedNudges, nudges...)
		return nil
	})
}

func (a *Agent) DismissNudges(ctx context.Context, nudges ...string) error {
	drop := make(map[string]bool, len(nudges))
	for _, n := range nudges {
		drop[n] = true
	}
	return a.updateAppState(ctx, func(s *bskyAppStatePref) error {
		kept := s.QueuedNudges[:0]
		for _, n := range s.QueuedNudges {
			if !drop[n] {
				kept = append(kept, n)
			}
		}
		s.QueuedNudges = kept
		return nil
	})
}

const maxGuideLength = 100

// SetActiveProgressGuide sets the guide, or clears it when guide is nil.
func (a *Agent) SetActiveProgressGuide(ctx context.Context, guide *ProgressGuide) error {
	if guide != nil && (guide.Guide == "" || len(guide.Guide) > maxGuideLength) {
		return fmt.Errorf("%w: %q", ErrInvalidProgressGuide, guide.Guide)
	}
	return a.updateAppState(ctx, func(s *bskyAppStatePref) error {
		s.ActiveProgressGuide = guide
		return nil
	})
}
