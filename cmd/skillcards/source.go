package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/importer"
)

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage card sources",
	}
	cmd.AddCommand(newSourceAddCmd(), newSourceListCmd(), newSourceRemoveCmd())
	return cmd
}

func newSourceAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <path-or-git-url>",
		Short: "Register a local directory or git repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tenant, user := identity(cmd)
			src := domain.Source{TenantID: tenant, OwnerID: user, Path: args[0]}
			if name, _ := cmd.Flags().GetString("category"); name != "" {
				cat, err := a.library.EnsureCategory(cmd.Context(), tenant, name)
				if err != nil {
					return err
				}
				src.CategoryID = cat.ID
			}
			src, err = a.importer.AddSource(cmd.Context(), src)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s source %d: %s\n", src.Type, src.ID, src.Path)
			return nil
		},
	}
	cmd.Flags().String("category", "", "Category for cards without a C: line")
	return cmd
}

func newSourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tenant, _ := identity(cmd)
			sources, err := a.importer.ListSources(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tOWNER\tPATH\tLAST SCANNED")
			for _, s := range sources {
				scanned := "never"
				if s.LastScanned != nil {
					scanned = s.LastScanned.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Type, s.OwnerID, s.Path, scanned)
			}
			return w.Flush()
		},
	}
}

func newSourceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a source and the cards imported from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source ID %q", args[0])
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tenant, user := identity(cmd)
			by := importer.Caller{TenantID: tenant, UserID: user}
			if err := a.importer.RemoveSource(cmd.Context(), by, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed source %d\n", id)
			return nil
		},
	}
}
