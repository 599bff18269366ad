package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"skyprefs/pkg/clients/bsky"
)

func newFeedsCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "feeds", Short: "Manage saved feeds"}
	cmd.AddCommand(newFeedsListCmd(state))
	cmd.AddCommand(newFeedsAddCmd(state))
	cmd.AddCommand(newFeedsRemoveCmd(state))
	cmd.AddCommand(newFeedsPinCmd(state, true))
	cmd.AddCommand(newFeedsPinCmd(state, false))
	cmd.AddCommand(newFeedsOrderCmd(state))
	cmd.AddCommand(newFeedsReplaceForYouCmd(state))
	return cmd
}

func (s *rootState) savedFeeds(ctx context.Context) ([]bsky.SavedFeed, error) {
	prefs, err := s.app.Preferences.Preferences(ctx)
	if err != nil {
		return nil, err
	}
	return prefs.SavedFeeds, nil
}

func findFeed(feeds []bsky.SavedFeed, id string) (bsky.SavedFeed, bool) {
	for _, f := range feeds {
		if f.ID == id {
			return f, true
		}
	}
	return bsky.SavedFeed{}, false
}

func newFeedsListCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved feeds in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			feeds, err := state.savedFeeds(cmd.Context())
			if err != nil {
				return err
			}
			return state.printer(cmd).savedFeeds(feeds)
		},
	}
}

func newFeedsAddCmd(state *rootState) *cobra.Command {
	var (
		feedType string
		pinned   bool
	)
	cmd := &cobra.Command{
		Use:   "add <uri>",
		Short: "Save a feed or list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			in := []bsky.SavedFeedInput{{Type: feedType, Value: args[0], Pinned: pinned}}
			if err := state.app.Preferences.AddSavedFeeds(cmd.Context(), in); err != nil {
				return err
			}
			return state.printer(cmd).done("Saved %s", args[0])
		},
	}
	cmd.Flags().StringVar(&feedType, "type", bsky.SavedFeedFeed, "feed|list|timeline")
	cmd.Flags().BoolVar(&pinned, "pinned", false, "pin the feed")
	return cmd
}

func newFeedsRemoveCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a saved feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			if err := state.app.Preferences.RemoveFeed(cmd.Context(), args[0]); err != nil {
				return err
			}
			return state.printer(cmd).done("Removed %s", args[0])
		},
	}
}

func newFeedsPinCmd(state *rootState, pin bool) *cobra.Command {
	use, verb := "pin <id>", "Pinned"
	if !pin {
		use, verb = "unpin <id>", "Unpinned"
	}
	return &cobra.Command{
		Use:   use,
		Short: verb + " a saved feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			feeds, err := state.savedFeeds(cmd.Context())
			if err != nil {
				return err
			}
			f, ok := findFeed(feeds, args[0])
			if !ok {
				return fmt.Errorf("no saved feed with id %s", args[0])
			}
			f.Pinned = pin
			if err := state.app.Preferences.UpdateSavedFeeds(cmd.Context(), []bsky.SavedFeed{f}); err != nil {
				return err
			}
			return state.printer(cmd).done("%s %s", verb, f.Value)
		},
	}
}

func newFeedsOrderCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "order <id>...",
		Short: "Reorder saved feeds; ids not named keep their relative order at the end",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			feeds, err := state.savedFeeds(cmd.Context())
			if err != nil {
				return err
			}
			ordered := make([]bsky.SavedFeed, 0, len(feeds))
			named := make(map[string]bool, len(args))
			for _, id := range args {
				f, ok := findFeed(feeds, id)
				if !ok {
					return fmt.Errorf("no saved feed with id %s", id)
				}
				if named[id] {
					continue
				}
				named[id] = true
				ordered = append(ordered, f)
			}
			for _, f := range feeds {
				if !named[f.ID] {
					ordered = append(ordered, f)
				}
			}
			if err := state.app.Preferences.OverwriteSavedFeeds(cmd.Context(), ordered); err != nil {
				return err
			}
			return state.printer(cmd).done("Reordered %d feeds", len(ordered))
		},
	}
}

func newFeedsReplaceForYouCmd(state *rootState) *cobra.Command {
	var forYouID string
	cmd := &cobra.Command{
		Use:   "replace-for-you",
		Short: "Swap the For You feed for a pinned Discover feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			feeds, err := state.savedFeeds(cmd.Context())
			if err != nil {
				return err
			}
			var forYou, discover *bsky.SavedFeed
			if forYouID != "" {
				f, ok := findFeed(feeds, forYouID)
				if !ok {
					return fmt.Errorf("no saved feed with id %s", forYouID)
				}
				forYou = &f
			}
			for i := range feeds {
				if feeds[i].Value == state.app.Config.DiscoverFeedURI {
					discover = &feeds[i]
					break
				}
			}
			if err := state.app.Preferences.ReplaceForYouWithDiscoverFeed(cmd.Context(), forYou, discover); err != nil {
				return err
			}
			return state.printer(cmd).done("Discover feed pinned")
		},
	}
	cmd.Flags().StringVar(&forYouID, "for-you-id", "", "saved feed id of the For You feed to remove")
	return cmd
}
