package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"skyprefs/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version info",
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "skyprefs %s\n", version.GetInfo())
			return nil
		},
	}
}
