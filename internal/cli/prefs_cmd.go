package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"skyprefs/internal/preferences"
	"skyprefs/pkg/clients/bsky"
)

func newPrefsCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "prefs", Short: "Show and change preferences"}
	cmd.AddCommand(newPrefsShowCmd(state))
	cmd.AddCommand(newPrefsClearCmd(state))
	cmd.AddCommand(newPrefsAdultContentCmd(state))
	cmd.AddCommand(newPrefsLabelCmd(state))
	cmd.AddCommand(newPrefsBirthDateCmd(state))
	cmd.AddCommand(newPrefsFeedViewCmd(state))
	cmd.AddCommand(newPrefsThreadViewCmd(state))
	cmd.AddCommand(newPrefsVerificationCmd(state))
	return cmd
}

func newPrefsShowCmd(state *rootState) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show preferences as the app sees them",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := state.app.Preferences
			var (
				prefs preferences.Preferences
				err   error
			)
			if raw {
				prefs, err = svc.Raw(cmd.Context())
			} else {
				prefs, err = svc.Preferences(cmd.Context())
			}
			if err != nil {
				return err
			}
			return state.printer(cmd).preferences(prefs)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "skip the age-based moderation restriction")
	return cmd
}

func newPrefsClearCmd(state *rootState) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored preference",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to clear preferences without --yes")
			}
			if err := state.app.Preferences.ClearPreferences(cmd.Context()); err != nil {
				return err
			}
			return state.printer(cmd).done("Preferences cleared")
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func newPrefsAdultContentCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:       "adult-content <on|off>",
		Short:     "Enable or disable adult content",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			enabled, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			if err := state.app.Preferences.SetAdultContentEnabled(cmd.Context(), enabled); err != nil {
				return err
			}
			return state.printer(cmd).done("Adult content %s", args[0])
		},
	}
}

func newPrefsLabelCmd(state *rootState) *cobra.Command {
	var (
		labeler string
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "label <label> <ignore|warn|hide>",
		Short: "Set how content with a label is shown",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			in := preferences.ContentLabel{
				Label:      args[0],
				Visibility: bsky.LabelPreference(args[1]),
				LabelerDID: labeler,
			}
			if !in.Visibility.Valid() {
				return fmt.Errorf("visibility must be ignore, warn or hide")
			}
			var err error
			if quiet {
				err = state.app.Preferences.SetContentLabelPref(cmd.Context(), in)
			} else {
				err = state.app.Preferences.SetContentLabel(cmd.Context(), in)
			}
			if err != nil {
				return err
			}
			return state.printer(cmd).done("%s set to %s", in.Label, in.Visibility)
		},
	}
	cmd.Flags().StringVar(&labeler, "labeler", "", "scope the preference to one labeler DID")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "do not record an analytics event")
	return cmd
}

func newPrefsBirthDateCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "birth-date <YYYY-MM-DD>",
		Short: "Set the account birth date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			birth, err := time.Parse(time.DateOnly, args[0])
			if err != nil {
				return fmt.Errorf("invalid birth date: %w", err)
			}
			if err := state.app.Preferences.SetBirthDate(cmd.Context(), birth); err != nil {
				return err
			}
			return state.printer(cmd).done("Birth date set to %s", args[0])
		},
	}
}

func newPrefsFeedViewCmd(state *rootState) *cobra.Command {
	var (
		hideReplies, hideByUnfollowed, hideReposts, hideQuotes bool
		likeCount                                              int64
	)
	cmd := &cobra.Command{
		Use:   "feed-view",
		Short: "Change following-feed settings; only the flags given are changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			f := cmd.Flags()
			var update bsky.FeedViewPref
			if f.Changed("hide-replies") {
				update.HideReplies = &hideReplies
			}
			if f.Changed("hide-replies-by-unfollowed") {
				update.HideRepliesByUnfollowed = &hideByUnfollowed
			}
			if f.Changed("hide-replies-by-like-count") {
				update.HideRepliesByLikeCount = &likeCount
			}
			if f.Changed("hide-reposts") {
				update.HideReposts = &hideReposts
			}
			if f.Changed("hide-quote-posts") {
				update.HideQuotePosts = &hideQuotes
			}
			if err := state.app.Preferences.SetFeedViewPrefs(cmd.Context(), update); err != nil {
				return err
			}
			return state.printer(cmd).done("Following feed settings updated")
		},
	}
	f := cmd.Flags()
	f.BoolVar(&hideReplies, "hide-replies", false, "hide replies")
	f.BoolVar(&hideByUnfollowed, "hide-replies-by-unfollowed", false, "hide replies from accounts you do not follow")
	f.Int64Var(&likeCount, "hide-replies-by-like-count", 0, "hide replies with fewer likes")
	f.BoolVar(&hideReposts, "hide-reposts", false, "hide reposts")
	f.BoolVar(&hideQuotes, "hide-quote-posts", false, "hide quote posts")
	return cmd
}

func newPrefsThreadViewCmd(state *rootState) *cobra.Command {
	var (
		sort                 string
		prioritize, treeView bool
	)
	cmd := &cobra.Command{
		Use:   "thread-view",
		Short: "Change thread settings; only the flags given are changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			f := cmd.Flags()
			var update bsky.ThreadViewPref
			if f.Changed("sort") {
				update.Sort = &sort
			}
			if f.Changed("prioritize-followed-users") {
				update.PrioritizeFollowedUsers = &prioritize
			}
			if f.Changed("tree-view") {
				update.LabTreeViewEnabled = &treeView
			}
			if err := state.app.Preferences.SetThreadViewPrefs(cmd.Context(), update); err != nil {
				return err
			}
			return state.printer(cmd).done("Thread settings updated")
		},
	}
	f := cmd.Flags()
	f.StringVar(&sort, "sort", "", "reply sort: hotness|oldest|newest|most-likes|random")
	f.BoolVar(&prioritize, "prioritize-followed-users", false, "show replies from followed accounts first")
	f.BoolVar(&treeView, "tree-view", false, "show threads as a tree")
	return cmd
}

func newPrefsVerificationCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "hide-badges <on|off>",
		Short: "Hide or show verification badges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			hide, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			if err := state.app.Preferences.SetVerificationPrefs(cmd.Context(), bsky.VerificationPrefs{HideBadges: hide}); err != nil {
				return err
			}
			return state.printer(cmd).done("Verification badges hidden: %s", strconv.FormatBool(hide))
		},
	}
}
