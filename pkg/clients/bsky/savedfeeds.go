package bsky

import (
	"context"
	"fmt"
	"strings"
)

const (
	collectionFeedGenerator = "app.bsky.feed.generator"
	collectionList          = "app.bsky.graph.list"
)

// atURICollection extracts the collection segment of at://<authority>/<collection>/<rkey>.
func atURICollection(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ValidateSavedFeed checks the id is set and that feed and list entries
// point at the right record collection.
func ValidateSavedFeed(f SavedFeed) error {
	if f.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSavedFeed)
	}
	switch f.Type {
	case SavedFeedFeed, SavedFeedList:
		collection, ok := atURICollection(f.Value)
		if !ok {
			return fmt.Errorf("%w: %q is not an at:// uri", ErrInvalidSavedFeed, f.Value)
		}
		if f.Type == SavedFeedFeed && collection != collectionFeedGenerator {
			return fmt.Errorf("%w: saved feed of type 'feed' must be a feed, got %s", ErrInvalidSavedFeed, collection)
		}
		if f.Type == SavedFeedList && collection != collectionList {
			return fmt.Errorf("%w: saved feed of type 'list' must be a list, got %s", ErrInvalidSavedFeed, collection)
		}
	}
	return nil
}

// updateSavedFeeds rewrites the v2 saved-feed list. Pinned entries are
// always stored ahead of unpinned ones.
func (a *Agent) updateSavedFeeds(ctx context.Context, fn func([]SavedFeed) []SavedFeed) error {
	return a.updatePreferences(ctx, func(items []Item) ([]Item, error) {
		var current []SavedFeed
		if item, ok := lastOf(items, TypeSavedFeedsPrefV2, nil); ok {
			var p savedFeedsPrefV2
			if err := item.decode(&p); err == nil {
				current = p.Items
			}
		}
		next := fn(append([]SavedFeed{}, current...))

		ordered := make([]SavedFeed, 0, len(next))
		for _, f := range next {
			if f.Pinned {
				ordered = append(ordered, f)
			}
		}
		for _, f := range next {
			if !f.Pinned {
				ordered = append(ordered, f)
			}
		}
		return replaceAll(items, TypeSavedFeedsPrefV2, savedFeedsPrefV2{LexType: TypeSavedFeedsPrefV2, Items: ordered})
	})
}

// OverwriteSavedFeeds replaces the list. Duplicate ids keep the last entry.
func (a *Agent) OverwriteSavedFeeds(ctx context.Context, feeds []SavedFeed) error {
	for _, f := range feeds {
		if err := ValidateSavedFeed(f); err != nil {
			return err
		}
	}
	byID := map[string]int{}
	deduped := make([]SavedFeed, 0, len(feeds))
	for _, f := range feeds {
		if i, ok := byID[f.ID]; ok {
			deduped[i] = f
			continue
		}
		byID[f.ID] = len(deduped)
		deduped = append(deduped, f)
	}
	return a.updateSavedFeeds(ctx, func([]SavedFeed) []SavedFeed { return deduped })
}

// SavedFeedInput is a saved feed without an id.
type SavedFeedInput struct {
	Type   string
	Value  string
	Pinned bool
}

// AddSavedFeeds appends feeds with freshly generated ids and returns them.
func (a *Agent) AddSavedFeeds(ctx context.Context, feeds []SavedFeedInput) ([]SavedFeed, error) {
	added := make([]SavedFeed, 0, len(feeds))
	for _, in := range feeds {
		f := SavedFeed{ID: a.newID(), Type: in.Type, Value: in.Value, Pinned: in.Pinned}
		if err := ValidateSavedFeed(f); err != nil {
			return nil, err
		}
		added = append(added, f)
	}
	err := a.updateSavedFeeds(ctx, func(current []SavedFeed) []SavedFeed {
		return append(current, added...)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (a *Agent) RemoveSavedFeeds(ctx context.Context, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	return a.updateSavedFeeds(ctx, func(current []SavedFeed) []SavedFeed {
		out := current[:0]
		for _, f := range current {
			if !drop[f.ID] {
				out = append(out, f)
			}
		}
		return out
	})
}

// UpdateSavedFeeds changes the pinned flag of entries matched by id. Other
// fields of the update are ignored.
func (a *Agent) UpdateSavedFeeds(ctx context.Context, feeds []SavedFeed) error {
	for _, f := range feeds {
		if err := ValidateSavedFeed(f); err != nil {
			return err
		}
	}
	return a.updateSavedFeeds(ctx, func(current []SavedFeed) []SavedFeed {
		for i, f := range current {
			for _, u := range feeds {
				if u.ID == f.ID {
					current[i].Pinned = u.Pinned
				}
			}
		}
		return current
	})
}
