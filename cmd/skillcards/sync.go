package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conorfennell/skillcards/internal/importer"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import cards from every registered source",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tenant, _ := identity(cmd)
			if all, _ := cmd.Flags().GetBool("all"); all {
				tenant = ""
			}
			results, err := a.importer.Sync(cmd.Context(), tenant)
			printResults(cmd, results)
			return err
		},
	}
	cmd.Flags().Bool("all", false, "Sync the sources of every tenant")
	return cmd
}

func printResults(cmd *cobra.Command, results []importer.Result) {
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sources")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tPATH\tPARSED\tADDED\tREMOVED\tERRORS\t")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%s\n", r.SourceID, r.Path, r.Parsed, r.Added, r.Removed, r.Errors, r.Err)
	}
	_ = w.Flush()
}
