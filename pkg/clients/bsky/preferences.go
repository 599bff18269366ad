package bsky

import (
	"context"
	"time"
)

type getPreferencesOutput struct {
	Preferences []Item `json:"preferences"`
}

type putPreferencesInput struct {
	Preferences []Item `json:"preferences"`
}

// GetRawPreferences returns the preference list exactly as stored.
func (a *Agent) GetRawPreferences(ctx context.Context) ([]Item, error) {
	var out getPreferencesOutput
	if err := a.query(ctx, nsidGetPreferences, nil, &out); err != nil {
		return nil, err
	}
	return out.Preferences, nil
}

// PutPreferences replaces the full preference list.
func (a *Agent) PutPreferences(ctx context.Context, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	return a.procedure(ctx, nsidPutPreferences, putPreferencesInput{Preferences: items}, nil)
}

// GetPreferences fetches and aggregates the preference list.
func (a *Agent) GetPreferences(ctx context.Context) (Preferences, error) {
	items, err := a.GetRawPreferences(ctx)
	if err != nil {
		return Preferences{}, err
	}
	return ParsePreferences(items, a.appLabelers, a.newID), nil
}

// updatePreferences reads the list, rewrites it with fn and stores the
// result. Calls on one agent never interleave.
func (a *Agent) updatePreferences(ctx context.Context, fn func([]Item) ([]Item, error)) error {
	a.prefsMu.Lock()
	defer a.prefsMu.Unlock()

	items, err := a.GetRawPreferences(ctx)
	if err != nil {
		return err
	}
	next, err := fn(items)
	if err != nil {
		return err
	}
	return a.PutPreferences(ctx, next)
}

// ParsePreferences folds a raw preference list into the aggregate view.
// Items that fail to decode are skipped; later items of a singleton type
// win over earlier ones. newID supplies ids for saved feeds migrated from
// the v1 format.
func ParsePreferences(items []Item, appLabelers []string, newID func() string) Preferences {
	prefs := Preferences{
		SavedFeeds:    []SavedFeed{},
		FeedViewPrefs: map[string]FeedViewPref{},
		ModerationPrefs: ModerationPrefs{
			Labels:      DefaultLabelSettings(),
			Labelers:    make([]LabelerPrefs, 0, len(appLabelers)),
			MutedWords:  []MutedWord{},
			HiddenPosts: []string{},
		},
		Interests:    Interests{Tags: []string{}},
		BskyAppState: BskyAppState{QueuedNudges: []string{}, Nuxs: []Nux{}},
	}
	for _, did := range appLabelers {
		prefs.ModerationPrefs.Labelers = append(prefs.ModerationPrefs.Labelers, LabelerPrefs{DID: did, Labels: map[string]LabelPreference{}})
	}

	var (
		labelPrefs []contentLabelPref
		v1         *savedFeedsPrefV1
		v2         *savedFeedsPrefV2
	)
	for _, item := range items {
		switch item.Type {
		case TypeAdultContentPref:
			var p adultContentPref
			if item.decode(&p) == nil {
				prefs.ModerationPrefs.AdultContentEnabled = p.Enabled
			}
		case TypeContentLabelPref:
			var p contentLabelPref
			if item.decode(&p) == nil && p.Label != "" {
				labelPrefs = append(labelPrefs, p)
			}
		case TypeSavedFeedsPref:
			var p savedFeedsPrefV1
			if item.decode(&p) == nil {
				v1 = &p
			}
		case TypeSavedFeedsPrefV2:
			var p savedFeedsPrefV2
			if item.decode(&p) == nil {
				v2 = &p
			}
		case TypePersonalDetails:
			var p personalDetailsPref
			if item.decode(&p) == nil && p.BirthDate != "" {
				if t, err := time.Parse(time.RFC3339, p.BirthDate); err == nil {
					prefs.BirthDate = &t
				}
			}
		case TypeFeedViewPref:
			var p feedViewPrefItem
			if item.decode(&p) == nil && p.Feed != "" {
				prefs.FeedViewPrefs[p.Feed] = p.FeedViewPref
			}
		case TypeThreadViewPref:
			var p threadViewPrefItem
			if item.decode(&p) == nil {
				prefs.ThreadViewPrefs = p.ThreadViewPref
			}
		case TypeInterestsPref:
			var p interestsPref
			if item.decode(&p) == nil {
				prefs.Interests.Tags = nonNil(p.Tags)
			}
		case TypeMutedWordsPref:
			var p mutedWordsPref
			if item.decode(&p) == nil {
				prefs.ModerationPrefs.MutedWords = append([]MutedWord{}, p.Items...)
			}
		case TypeHiddenPostsPref:
			var p hiddenPostsPref
			if item.decode(&p) == nil {
				prefs.ModerationPrefs.HiddenPosts = nonNil(p.Items)
			}
		case TypeLabelersPref:
			var p labelersPref
			if item.decode(&p) == nil {
				for _, l := range p.Labelers {
					if l.DID != "" && !hasLabeler(prefs.ModerationPrefs.Labelers, l.DID) {
						prefs.ModerationPrefs.Labelers = append(prefs.ModerationPrefs.Labelers, LabelerPrefs{DID: l.DID, Labels: map[string]LabelPreference{}})
					}
				}
			}
		case TypeBskyAppStatePref:
			var p bskyAppStatePref
			if item.decode(&p) == nil {
				prefs.BskyAppState = BskyAppState{
					QueuedNudges:        nonNil(p.QueuedNudges),
					ActiveProgressGuide: p.ActiveProgressGuide,
					Nuxs:                append([]Nux{}, p.Nuxs...),
				}
			}
		case TypeVerificationPrefs:
			var p verificationPrefsItem
			if item.decode(&p) == nil {
				prefs.VerificationPrefs.HideBadges = p.HideBadges
			}
		}
	}

	applyLabelPrefs(&prefs.ModerationPrefs, labelPrefs)

	switch {
	case v2 != nil:
		for _, f := range v2.Items {
			f.Type = normalizeSavedFeedType(f.Type)
			prefs.SavedFeeds = append(prefs.SavedFeeds, f)
		}
	case v1 != nil:
		prefs.SavedFeeds = migrateSavedFeedsV1(*v1, newID)
	}

	return prefs
}

func applyLabelPrefs(mod *ModerationPrefs, labelPrefs []contentLabelPref) {
	for _, p := range labelPrefs {
		vis := adjustLegacyVisibility(p.Visibility)
		if p.LabelerDID == "" {
			mod.Labels[p.Label] = vis
			continue
		}
		for i := range mod.Labelers {
			if mod.Labelers[i].DID == p.LabelerDID {
				mod.Labelers[i].Labels[p.Label] = vis
			}
		}
	}
	// Writes always carry both identifiers, so the legacy one is
	// authoritative when present.
	for current, legacy := range legacyLabelValues {
		if v, ok := mod.Labels[legacy]; ok {
			mod.Labels[current] = v
		}
	}
}

func adjustLegacyVisibility(v LabelPreference) LabelPreference {
	if v == labelShowLegacy {
		return LabelIgnore
	}
	return v
}

func normalizeSavedFeedType(t string) string {
	switch t {
	case SavedFeedFeed, SavedFeedList, SavedFeedTimeline:
		return t
	}
	return SavedFeedUnknown
}

func migrateSavedFeedsV1(v1 savedFeedsPrefV1, newID func() string) []SavedFeed {
	out := []SavedFeed{}
	seen := map[string]bool{}
	add := func(uri string, pinned bool) {
		if seen[uri] {
			return
		}
		seen[uri] = true
		typ := SavedFeedUnknown
		if collection, ok := atURICollection(uri); ok {
			switch collection {
			case collectionFeedGenerator:
				typ = SavedFeedFeed
			case collectionList:
				typ = SavedFeedList
			}
		}
		out = append(out, SavedFeed{ID: newID(), Type: typ, Value: uri, Pinned: pinned})
	}
	for _, uri := range v1.Pinned {
		add(uri, true)
	}
	for _, uri := range v1.Saved {
		add(uri, false)
	}
	return out
}

func hasLabeler(labelers []LabelerPrefs, did string) bool {
	for _, l := range labelers {
		if l.DID == did {
			return true
		}
	}
	return false
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
