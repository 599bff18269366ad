package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"skyprefs/pkg/clients/bsky"
)

func newMutedWordsCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "muted-words", Aliases: []string{"mw"}, Short: "Manage muted words and tags"}
	cmd.AddCommand(newMutedWordsListCmd(state))
	cmd.AddCommand(newMutedWordsAddCmd(state))
	cmd.AddCommand(newMutedWordsUpdateCmd(state))
	cmd.AddCommand(newMutedWordsRemoveCmd(state))
	cmd.AddCommand(newMutedWordsClearCmd(state))
	return cmd
}

type mutedWordFlags struct {
	targets     []string
	actorTarget string
	expiresIn   time.Duration
}

func (f *mutedWordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.targets, "targets", []string{bsky.MutedTargetContent, bsky.MutedTargetTag}, "content,tag")
	cmd.Flags().StringVar(&f.actorTarget, "actors", bsky.ActorTargetAll, "all|exclude-following")
	cmd.Flags().DurationVar(&f.expiresIn, "expires-in", 0, "mute duration, 0 for forever")
}

func (f *mutedWordFlags) word(value string, now time.Time) bsky.MutedWord {
	w := bsky.MutedWord{Value: value, Targets: f.targets, ActorTarget: f.actorTarget}
	if f.expiresIn > 0 {
		at := now.Add(f.expiresIn).UTC()
		w.ExpiresAt = &at
	}
	return w
}

func (s *rootState) mutedWords(cmd *cobra.Command) ([]bsky.MutedWord, error) {
	prefs, err := s.app.Preferences.Preferences(cmd.Context())
	if err != nil {
		return nil, err
	}
	return prefs.ModerationPrefs.MutedWords, nil
}

func newMutedWordsListCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List muted words",
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := state.mutedWords(cmd)
			if err != nil {
				return err
			}
			return state.printer(cmd).mutedWords(words)
		},
	}
}

func newMutedWordsAddCmd(state *rootState) *cobra.Command {
	var flags mutedWordFlags
	cmd := &cobra.Command{
		Use:   "add <word>...",
		Short: "Mute words or tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			now := time.Now()
			words := make([]bsky.MutedWord, 0, len(args))
			for _, a := range args {
				words = append(words, flags.word(a, now))
			}
			if err := state.app.Preferences.UpsertMutedWords(cmd.Context(), words); err != nil {
				return err
			}
			return state.printer(cmd).done("Muted %d word(s)", len(words))
		},
	}
	flags.register(cmd)
	return cmd
}

func newMutedWordsUpdateCmd(state *rootState) *cobra.Command {
	var flags mutedWordFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the targets or expiry of a muted word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			words, err := state.mutedWords(cmd)
			if err != nil {
				return err
			}
			for _, w := range words {
				if w.ID != args[0] {
					continue
				}
				updated := flags.word(w.Value, time.Now())
				updated.ID = w.ID
				if !cmd.Flags().Changed("targets") {
					updated.Targets = w.Targets
				}
				if !cmd.Flags().Changed("actors") {
					updated.ActorTarget = w.ActorTarget
				}
				if !cmd.Flags().Changed("expires-in") {
					updated.ExpiresAt = w.ExpiresAt
				}
				if err := state.app.Preferences.UpdateMutedWord(cmd.Context(), updated); err != nil {
					return err
				}
				return state.printer(cmd).done("Updated %s", w.Value)
			}
			return fmt.Errorf("no muted word with id %s", args[0])
		},
	}
	flags.register(cmd)
	return cmd
}

func newMutedWordsRemoveCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id|word>",
		Short: "Unmute a word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			words, err := state.mutedWords(cmd)
			if err != nil {
				return err
			}
			for _, w := range words {
				if w.ID == args[0] || w.Value == bsky.SanitizeMutedWord(args[0]) {
					if err := state.app.Preferences.RemoveMutedWord(cmd.Context(), w); err != nil {
						return err
					}
					return state.printer(cmd).done("Unmuted %s", w.Value)
				}
			}
			return fmt.Errorf("no muted word matching %s", args[0])
		},
	}
}

func newMutedWordsClearCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Unmute every word",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.signedIn(); err != nil {
				return err
			}
			words, err := state.mutedWords(cmd)
			if err != nil {
				return err
			}
			if len(words) == 0 {
				return state.printer(cmd).done("Nothing to clear")
			}
			if err := state.app.Preferences.RemoveMutedWords(cmd.Context(), words); err != nil {
				return err
			}
			return state.printer(cmd).done("Unmuted %d word(s)", len(words))
		},
	}
}
