package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"skyprefs/internal/session"
	"skyprefs/pkg/config"
)

func newAccountsCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "accounts",
		Short:       "Manage stored accounts",
		Annotations: map[string]string{skipApp: "true"},
	}
	cmd.AddCommand(newAccountsAddCmd(state))
	cmd.AddCommand(newAccountsListCmd(state))
	cmd.AddCommand(newAccountsUseCmd(state))
	cmd.AddCommand(newAccountsRemoveCmd(state))
	return cmd
}

func newAccountsAddCmd(state *rootState) *cobra.Command {
	var acc session.Account
	cmd := &cobra.Command{
		Use:         "add",
		Short:       "Store an account session",
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if acc.Service == "" {
				acc.Service = config.GetEnv("BSKY_SERVICE", config.DefaultService)
			}
			if acc.PdsURL == "" {
				acc.PdsURL = acc.Service
			}
			// Validate before writing anything.
			if _, err := acc.ToSession(); err != nil {
				return err
			}

			path := state.accountsPath()
			accounts, err := LoadAccounts(path)
			if err != nil {
				return err
			}
			accounts.Upsert(acc)
			if accounts.Current == "" {
				accounts.Current = acc.DID
			}
			if err := SaveAccounts(path, accounts); err != nil {
				return fmt.Errorf("failed to save accounts: %w", err)
			}
			return state.printer(cmd).done("Stored %s (%s)", acc.Handle, acc.DID)
		},
	}
	f := cmd.Flags()
	f.StringVar(&acc.DID, "did", "", "account DID")
	f.StringVar(&acc.Handle, "handle", "", "account handle")
	f.StringVar(&acc.AccessJwt, "access-jwt", "", "access token")
	f.StringVar(&acc.RefreshJwt, "refresh-jwt", "", "refresh token")
	f.StringVar(&acc.Service, "service", "", "entryway service URL (default $BSKY_SERVICE)")
	f.StringVar(&acc.PdsURL, "pds", "", "PDS URL (default: service)")
	_ = cmd.MarkFlagRequired("did")
	_ = cmd.MarkFlagRequired("handle")
	return cmd
}

func newAccountsListCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:         "list",
		Short:       "List stored accounts",
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := LoadAccounts(state.accountsPath())
			if err != nil {
				return err
			}
			p := state.printer(cmd)
			if p.json() {
				type entry struct {
					DID     string `json:"did"`
					Handle  string `json:"handle"`
					PdsURL  string `json:"pdsUrl"`
					Current bool   `json:"current"`
				}
				out := make([]entry, 0, len(accounts.Accounts))
				for _, a := range accounts.Accounts {
					out = append(out, entry{a.DID, a.Handle, a.PdsURL, a.DID == accounts.Current})
				}
				return p.writeJSON(out)
			}
			current, _ := accounts.Select("")
			for _, a := range accounts.Accounts {
				cur := " "
				if a.DID == current.DID {
					cur = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s\n", cur, a.Handle, keyColor.Sprint(a.DID))
			}
			return nil
		},
	}
}

func newAccountsUseCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:         "use <handle|did>",
		Short:       "Switch the current account",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := state.accountsPath()
			accounts, err := LoadAccounts(path)
			if err != nil {
				return err
			}
			acc, ok := accounts.Select(args[0])
			if !ok {
				return fmt.Errorf("unknown account: %s", args[0])
			}
			accounts.Current = acc.DID
			if err := SaveAccounts(path, accounts); err != nil {
				return err
			}
			return state.printer(cmd).done("Now using %s", acc.Handle)
		},
	}
}

func newAccountsRemoveCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:         "remove <handle|did>",
		Short:       "Forget a stored account",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := state.accountsPath()
			accounts, err := LoadAccounts(path)
			if err != nil {
				return err
			}
			if !accounts.Remove(args[0]) {
				return fmt.Errorf("unknown account: %s", args[0])
			}
			if err := SaveAccounts(path, accounts); err != nil {
				return err
			}
			return state.printer(cmd).done("Removed %s", args[0])
		},
	}
}
