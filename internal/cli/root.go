// Package cli is the skyprefs command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"skyprefs/pkg/config"
	"skyprefs/pkg/logging"
)

// skipApp marks commands that run without a wired App.
const skipApp = "skip-app"

type rootState struct {
	v   *viper.Viper
	app *App
}

// flag values, resolved through viper (flag > SKYPREFS_* env > config file).
func (s *rootState) accountsPath() string { return s.v.GetString("accounts") }
func (s *rootState) output() string       { return s.v.GetString("output") }

func (s *rootState) printer(cmd *cobra.Command) printer {
	return printer{w: cmd.OutOrStdout(), format: s.output()}
}

// NewRootCmd returns the root command for the skyprefs CLI
func NewRootCmd() *cobra.Command {
	state := &rootState{v: viper.New()}
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "skyprefs",
		Short:         "skyprefs: read and change Bluesky preferences from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := state.initConfig(cmd, cfgFile); err != nil {
				return err
			}
			if cmd.Annotations[skipApp] == "true" {
				return nil
			}
			return state.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if state.app == nil {
				return nil
			}
			defer func() { _ = state.app.Close() }()
			if state.v.GetBool("metrics") {
				return dumpMetrics(cmd.ErrOrStderr(), state.app)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.skyprefs/config.yaml)")
	flags.String("accounts", "", "accounts file (default is $HOME/.skyprefs/accounts.yaml)")
	flags.String("account", "", "handle or DID of the account to use (default: current)")
	flags.String("proxy", ProxyAppview, "appview to route through: appview|default")
	flags.StringP("output", "o", OutputText, "output format: text|json")
	flags.BoolP("verbose", "v", false, "enable verbose logging")
	flags.Bool("metrics", false, "print collected metrics to stderr after the command")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newHealthCmd(state))
	rootCmd.AddCommand(newAccountsCmd(state))
	rootCmd.AddCommand(newPrefsCmd(state))
	rootCmd.AddCommand(newFeedsCmd(state))
	rootCmd.AddCommand(newMutedWordsCmd(state))
	rootCmd.AddCommand(newNudgesCmd(state))
	rootCmd.AddCommand(newProgressGuideCmd(state))
	rootCmd.AddCommand(newNotificationsCmd(state))
	rootCmd.AddCommand(newLabelersCmd(state))

	return rootCmd
}

func (s *rootState) initConfig(cmd *cobra.Command, cfgFile string) error {
	config.LoadEnv(nil)

	if cfgFile != "" {
		s.v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		s.v.AddConfigPath(filepath.Join(home, ".skyprefs"))
		s.v.SetConfigName("config")
		s.v.SetConfigType("yaml")
	}
	s.v.SetEnvPrefix("SKYPREFS")
	s.v.AutomaticEnv()
	if err := s.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Ignore missing config
	_ = s.v.ReadInConfig()

	if s.v.GetString("accounts") == "" {
		path, err := DefaultAccountsPath()
		if err != nil {
			return err
		}
		s.v.Set("accounts", path)
	}
	switch s.output() {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("unknown output format %q", s.output())
	}
	return nil
}

func (s *rootState) open(cmd *cobra.Command) error {
	logger := logging.NewLoggerWithService("skyprefs")
	logger.SetOutput(cmd.ErrOrStderr())
	if s.v.GetBool("verbose") {
		logger.SetLevel(logrus.DebugLevel)
	} else if logger.GetLevel() > logrus.WarnLevel {
		logger.SetLevel(logrus.WarnLevel)
	}

	app, err := NewApp(cmd.Context(), AppOptions{
		AccountsPath: s.accountsPath(),
		Account:      s.v.GetString("account"),
		Proxy:        s.v.GetString("proxy"),
		Logger:       logger,
		Stderr:       cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	s.app = app
	return nil
}

// signedIn fails fast when no account is bound.
func (s *rootState) signedIn() error {
	if s.app.Agent.DID() == "" {
		return fmt.Errorf("not signed in: add an account with `skyprefs accounts add`")
	}
	return nil
}

func dumpMetrics(w io.Writer, app *App) error {
	families, err := app.Metrics.Gatherer().Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the command tree with a context cancelled by the caller.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	return cmd.ExecuteContext(ctx)
}
