package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatmap/internal/modules/geo"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema the extraction call must satisfy",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), string(geo.Schema()))
		},
	}
}
