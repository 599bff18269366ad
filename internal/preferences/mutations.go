package preferences

import (
	"context"
	"time"

	"skyprefs/internal/metrics"
	"skyprefs/pkg/clients/bsky"
)

// Each mutation writes through the agent, then invalidates and refetches
// the snapshot before returning, whether or not the write succeeded.

func (s *Service) ClearPreferences(ctx context.Context) error {
	return s.runner.Run(ctx, "clearPreferences", func(ctx context.Context) error {
		return s.agent.PutPreferences(ctx, []bsky.Item{})
	})
}

type ContentLabel struct {
	Label      string
	Visibility bsky.LabelPreference
	// LabelerDID scopes the preference to one labeler; empty means global.
	LabelerDID string
}

// SetContentLabel stores a label preference and records the change.
func (s *Service) SetContentLabel(ctx context.Context, in ContentLabel) error {
	return s.runner.Run(ctx, "setContentLabel", func(ctx context.Context) error {
		if err := s.agent.SetContentLabelPref(ctx, in.Label, in.Visibility, in.LabelerDID); err != nil {
			return err
		}
		s.events.Event(metrics.EventChangeLabelPreference, map[string]string{"preference": string(in.Visibility)})
		return nil
	})
}

// SetContentLabelPref is SetContentLabel without the analytics event.
func (s *Service) SetContentLabelPref(ctx context.Context, in ContentLabel) error {
	return s.runner.Run(ctx, "setContentLabelPref", func(ctx context.Context) error {
		return s.agent.SetContentLabelPref(ctx, in.Label, in.Visibility, in.LabelerDID)
	})
}

func (s *Service) SetAdultContentEnabled(ctx context.Context, enabled bool) error {
	return s.runner.Run(ctx, "setAdultContentEnabled", func(ctx context.Context) error {
		return s.agent.SetAdultContentEnabled(ctx, enabled)
	})
}

func (s *Service) SetBirthDate(ctx context.Context, birthDate time.Time) error {
	return s.runner.Run(ctx, "setBirthDate", func(ctx context.Context) error {
		return s.agent.SetPersonalDetails(ctx, birthDate)
	})
}

// SetFeedViewPrefs updates the following feed, stored under "home".
func (s *Service) SetFeedViewPrefs(ctx context.Context, update bsky.FeedViewPref) error {
	return s.runner.Run(ctx, "setFeedViewPrefs", func(ctx context.Context) error {
		return s.agent.SetFeedViewPrefs(ctx, bsky.HomeFeed, update)
	})
}

func (s *Service) SetThreadViewPrefs(ctx context.Context, update bsky.ThreadViewPref) error {
	return s.runner.Run(ctx, "setThreadViewPrefs", func(ctx context.Context) error {
		return s.agent.SetThreadViewPrefs(ctx, update)
	})
}

func (s *Service) OverwriteSavedFeeds(ctx context.Context, feeds []bsky.SavedFeed) error {
	return s.runner.Run(ctx, "overwriteSavedFeeds", func(ctx context.Context) error {
		return s.agent.OverwriteSavedFeeds(ctx, feeds)
	})
}

func (s *Service) AddSavedFeeds(ctx context.Context, feeds []bsky.SavedFeedInput) error {
	return s.runner.Run(ctx, "addSavedFeeds", func(ctx context.Context) error {
		_, err := s.agent.AddSavedFeeds(ctx, feeds)
		return err
	})
}

func (s *Service) RemoveFeed(ctx context.Context, id string) error {
	return s.runner.Run(ctx, "removeFeed", func(ctx context.Context) error {
		return s.agent.RemoveSavedFeeds(ctx, []string{id})
	})
}

// ReplaceForYouWithDiscoverFeed drops forYou (when given) and pins the
// discover feed, keeping the id of an existing discover entry.
func (s *Service) ReplaceForYouWithDiscoverFeed(ctx context.Context, forYou, discover *bsky.SavedFeed) error {
	return s.runner.Run(ctx, "replaceForYouWithDiscoverFeed", func(ctx context.Context) error {
		if forYou != nil {
			if err := s.agent.RemoveSavedFeeds(ctx, []string{forYou.ID}); err != nil {
				return err
			}
		}
		if discover == nil {
			_, err := s.agent.AddSavedFeeds(ctx, []bsky.SavedFeedInput{{
				Type:   bsky.SavedFeedFeed,
				Value:  s.discoverFeedURI,
				Pinned: true,
			}})
			return err
		}
		pinned := *discover
		pinned.Pinned = true
		return s.agent.UpdateSavedFeeds(ctx, []bsky.SavedFeed{pinned})
	})
}

func (s *Service) UpdateSavedFeeds(ctx context.Context, feeds []bsky.SavedFeed) error {
	return s.runner.Run(ctx, "updateSavedFeeds", func(ctx context.Context) error {
		return s.agent.UpdateSavedFeeds(ctx, feeds)
	})
}

func (s *Service) UpsertMutedWords(ctx context.Context, words []bsky.MutedWord) error {
	return s.runner.Run(ctx, "upsertMutedWords", func(ctx context.Context) error {
		return s.agent.UpsertMutedWords(ctx, words)
	})
}

func (s *Service) UpdateMutedWord(ctx context.Context, word bsky.MutedWord) error {
	return s.runner.Run(ctx, "updateMutedWord", func(ctx context.Context) error {
		return s.agent.UpdateMutedWord(ctx, word)
	})
}

func (s *Service) RemoveMutedWord(ctx context.Context, word bsky.MutedWord) error {
	return s.runner.Run(ctx, "removeMutedWord", func(ctx context.Context) error {
		return s.agent.RemoveMutedWord(ctx, word)
	})
}

func (s *Service) RemoveMutedWords(ctx context.Context, words []bsky.MutedWord) error {
	return s.runner.Run(ctx, "removeMutedWords", func(ctx context.Context) error {
		return s.agent.RemoveMutedWords(ctx, words)
	})
}

func (s *Service) QueueNudges(ctx context.Context, nudges ...string) error {
	return s.runner.Run(ctx, "queueNudges", func(ctx context.Context) error {
		return s.agent.QueueNudges(ctx, nudges...)
	})
}

func (s *Service) DismissNudges(ctx context.Context, nudges ...string) error {
	return s.runner.Run(ctx, "dismissNudges", func(ctx context.Context) error {
		return s.agent.DismissNudges(ctx, nudges...)
	})
}

// SetActiveProgressGuide sets or, with nil, clears the active guide.
func (s *Service) SetActiveProgressGuide(ctx context.Context, guide *bsky.ProgressGuide) error {
	return s.runner.Run(ctx, "setActiveProgressGuide", func(ctx context.Context) error {
		return s.agent.SetActiveProgressGuide(ctx, guide)
	})
}

func (s *Service) SetVerificationPrefs(ctx context.Context, prefs bsky.VerificationPrefs) error {
	return s.runner.Run(ctx, "setVerificationPrefs", func(ctx context.Context) error {
		if err := s.agent.SetVerificationPrefs(ctx, prefs); err != nil {
			return err
		}
		if prefs.HideBadges {
			s.events.Event(metrics.EventHideBadges, map[string]string{})
		} else {
			s.events.Event(metrics.EventUnhideBadges, map[string]string{})
		}
		return nil
	})
}
