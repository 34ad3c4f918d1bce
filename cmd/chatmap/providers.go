package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chatmap/internal/ai"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported model providers and their defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tBASE URL\tMODEL")
			for _, p := range ai.Presets() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, orDash(p.DefaultBaseURL, p.RequiresBaseURL), orDash(p.DefaultModel, true))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			color.New(color.Faint).Fprintln(cmd.OutOrStdout(), "pick one with --provider, or set CHATMAP_PROVIDER")
			return nil
		},
	}
}

// orDash renders an empty default as "(required)" or "-".
func orDash(v string, required bool) string {
	switch {
	case v != "":
		return v
	case required:
		return "(required)"
	default:
		return "-"
	}
}
