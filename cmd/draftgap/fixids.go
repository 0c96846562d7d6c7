package main

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"draftgap/internal/catalog"
	"draftgap/internal/logger"
	"draftgap/internal/store"
)

func newFixIDsCmd(a *app) *cobra.Command {
	var (
		from   []string
		to     []string
		auto   bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "fix-ids",
		Short: "Merge champion ids stored under a wrong name",
		Long: `Folds every matchup row stored under a wrong champion id into the correct
id, both as champion and as opponent. Each fix runs in one transaction.

Without flags the built-in fix list is applied. --auto derives the fixes by
comparing stored ids with the Data Dragon catalog.

Example:
  draftgap fix-ids
  draftgap fix-ids --from KaiSa --to Kaisa
  draftgap fix-ids --auto --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(from) != len(to) {
				return fmt.Errorf("--from and --to must be given the same number of times")
			}
			ctx := cmd.Context()

			st, err := a.openStore(ctx, dryRun)
			if err != nil {
				return err
			}
			defer st.Close()

			fixes, err := a.identityFixes(ctx, st, from, to, auto)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(fixes) == 0 {
				fmt.Fprintln(out, "No identity fixes to apply.")
				return nil
			}
			if dryRun {
				printFixes(out, fixes)
				return nil
			}
			return a.applyFixes(ctx, out, st, fixes)
		},
	}

	fl := cmd.Flags()
	fl.StringArrayVar(&from, "from", nil, "wrong champion id (repeatable, paired with --to)")
	fl.StringArrayVar(&to, "to", nil, "correct champion id (repeatable, paired with --from)")
	fl.BoolVar(&auto, "auto", false, "derive fixes from the champion catalog")
	fl.BoolVar(&dryRun, "dry-run", false, "list the fixes without applying them")
	return cmd
}

func (a *app) identityFixes(ctx context.Context, st store.Store, from, to []string, auto bool) ([]store.IdentityFix, error) {
	if len(from) > 0 {
		fixes := make([]store.IdentityFix, len(from))
		for i := range from {
			fixes[i] = store.IdentityFix{From: from[i], To: to[i]}
		}
		return fixes, nil
	}
	if !auto {
		return store.DefaultIdentityFixes, nil
	}

	champions, err := a.catalog().Champions(ctx, a.cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("load champion catalog: %w", err)
	}
	ids, err := st.ChampionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list champion ids: %w", err)
	}

	var fixes []store.IdentityFix
	for _, c := range catalog.FromChampions(champions).Corrections(ids) {
		fixes = append(fixes, store.IdentityFix{From: c.From, To: c.To})
	}
	return fixes, nil
}

func (a *app) applyFixes(ctx context.Context, w io.Writer, st store.Store, fixes []store.IdentityFix) error {
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
	table.Header("From", "To", "Wrong games", "Before", "After", "Rows")

	for _, fix := range fixes {
		res, err := st.MergeIdentity(ctx, fix.From, fix.To)
		if err != nil {
			return fmt.Errorf("merge %s into %s: %w", fix.From, fix.To, err)
		}
		a.log.Info(ctx, "identity merged",
			logger.String("from", res.From),
			logger.String("to", res.To),
			logger.Int64("rows", res.RowsMerged))
		table.Append(res.From, res.To, res.WrongGames, res.CorrectBefore, res.CorrectAfter, res.RowsMerged)
	}
	table.Render()
	return nil
}

func printFixes(w io.Writer, fixes []store.IdentityFix) {
	table := tablewriter.NewTable(w)
	table.Header("From", "To")
	for _, f := range fixes {
		table.Append(f.From, f.To)
	}
	table.Render()
}
