package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := NewVersionChecker().Info()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "zwfm-scope %s (commit %s, built %s)\n",
				info.Current, info.Commit, info.BuildTime)
			return err
		},
	}
}
