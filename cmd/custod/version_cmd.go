package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodhq/custod/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the custod version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "custod %s\n", version.String())
			return err
		},
	}
}
