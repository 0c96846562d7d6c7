package main

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"draftgap/internal/matchup"
	"draftgap/internal/store"
)

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMatchupsCmd(a *app) *cobra.Command {
	var (
		champion string
		role     string
		rank     string
		patch    string
		pool     []string
		minGames int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "matchups",
		Short: "Show a champion's record against each lane opponent",
		Long: `Lists opponents of a champion in one role, best win rate first. Opponents
with fewer than --min-games games are left out.

--rank accepts a tier ("gold"), a tier and everything above ("diamond+") or "all".

Example:
  draftgap matchups --champion Ahri --role mid --rank emerald+ --patch 15.3
  draftgap matchups --champion Jinx --role bot --pool Caitlyn,Ezreal,Kaisa`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := matchup.ParseRole(role)
			if err != nil {
				return err
			}
			tiers, err := matchup.ExpandRankTier(rank)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := a.openStore(ctx, true)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.OpponentStats(ctx, store.OpponentQuery{
				Champion: champion,
				Role:     r,
				Tiers:    tiers,
				Patch:    patch,
				Pool:     pool,
				MinGames: minGamesArg(minGames),
			})
			if err != nil {
				return fmt.Errorf("query matchups: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, stats)
			}
			if len(stats) == 0 {
				fmt.Fprintf(out, "No matchups for %s %s with at least %d games.\n", champion, r, minGames)
				return nil
			}
			table := newTable(out)
			table.Header("Opponent", "Wins", "Games", "Win rate")
			for _, s := range stats {
				table.Append(s.Opponent, s.Wins, s.Games, fmt.Sprintf("%.2f%%", s.WinRate*100))
			}
			table.Render()
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&champion, "champion", "", "champion id, e.g. Ahri")
	fl.StringVar(&role, "role", "", "top, jungle, mid, bottom or support")
	fl.StringVar(&rank, "rank", matchup.AllTiers, "rank tier filter")
	fl.StringVar(&patch, "patch", "", "patch filter, e.g. 15.3")
	fl.StringSliceVar(&pool, "pool", nil, "only these opponents (comma separated)")
	fl.IntVar(&minGames, "min-games", store.DefaultMinGames, "minimum games against an opponent (0 shows all)")
	fl.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	_ = cmd.MarkFlagRequired("champion")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newRolesCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Show each champion's most played role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx, true)
			if err != nil {
				return err
			}
			defer st.Close()

			roles, err := st.PrimaryRoles(ctx)
			if err != nil {
				return fmt.Errorf("query roles: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, roles)
			}
			table := newTable(out)
			table.Header("Champion", "Role", "Games")
			for _, r := range roles {
				table.Append(r.Champion, string(r.Role), r.Games)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newPatchesCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "patches",
		Short: "List stored patches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx, true)
			if err != nil {
				return err
			}
			defer st.Close()

			patches, err := st.Patches(ctx)
			if err != nil {
				return fmt.Errorf("query patches: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, patches)
			}
			table := newTable(out)
			table.Header("Patch", "Games")
			for _, p := range patches {
				table.Append(p.Patch, p.Games)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// minGamesArg maps a --min-games value onto OpponentQuery.MinGames, where
// zero would mean the default threshold.
func minGamesArg(n int) int {
	if n <= 0 {
		return store.NoMinGames
	}
	return n
}
