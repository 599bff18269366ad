package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"skyprefs/pkg/clients/bsky"
)

func newNudgesCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "nudges", Short: "Queue or dismiss app nudges"}
	cmd.AddCommand(&cobra.Command{
		Use:   "queue <nudge>...",
		Short: "Queue nudges",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			if err := state.app.Preferences.QueueNudges(cmd.Context(), args...); err != nil {
				return err
			}
			return state.printer(cmd).done("Queued %s", strings.Join(args, ", "))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "dismiss <nudge>...",
		Short: "Dismiss queued nudges",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			if err := state.app.Preferences.DismissNudges(cmd.Context(), args...); err != nil {
				return err
			}
			return state.printer(cmd).done("Dismissed %s", strings.Join(args, ", "))
		},
	})
	return cmd
}

func newProgressGuideCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "progress-guide", Short: "Set or clear the active progress guide"}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <guide>",
		Short: "Start a progress guide",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			if err := state.app.Preferences.SetActiveProgressGuide(cmd.Context(), &bsky.ProgressGuide{Guide: args[0]}); err != nil {
				return err
			}
			return state.printer(cmd).done("Active guide: %s", args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the active progress guide",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			if err := state.app.Preferences.SetActiveProgressGuide(cmd.Context(), nil); err != nil {
				return err
			}
			return state.printer(cmd).done("Progress guide cleared")
		},
	})
	return cmd
}

func newLabelersCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "labelers",
		Short: "Show labelers saved for the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			// Loading preferences refreshes the saved list.
			if _, err := state.app.Preferences.Preferences(cmd.Context()); err != nil {
				return err
			}
			dids, err := state.app.Preferences.Labelers(cmd.Context(), state.app.Agent.DID())
			if err != nil {
				return err
			}
			p := state.printer(cmd)
			if p.json() {
				return p.writeJSON(dids)
			}
			for _, did := range dids {
				p.field("labeler", did)
			}
			return nil
		},
	}
}
