package collector

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"draftgap/internal/store"
)

// Summary counts what one run did.
type Summary struct {
	RunID       string        `json:"runId"`
	Mode        string        `json:"mode"`
	StartedAt   time.Time     `json:"startedAt"`
	FinishedAt  time.Time     `json:"finishedAt"`
	Elapsed     time.Duration `json:"elapsed"`
	Interrupted bool          `json:"interrupted"`

	Players      int `json:"players"`
	MissingPUUID int `json:"missingPuuid"`
	Matches      int `json:"matches"`
	Duplicates   int `json:"duplicates"`
	OtherQueue   int `json:"otherQueue"`
	NotFound     int `json:"notFound"`
	Failed       int `json:"failed"`
	MatchupRows  int `json:"matchupRows"`

	Store store.Counts `json:"store"`
}

// Record converts the summary into the store bookkeeping row.
func (s *Summary) Record() store.RunRecord {
	return store.RunRecord{
		ID:           s.RunID,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
		Mode:         s.Mode,
		Players:      s.Players,
		MissingPUUID: s.MissingPUUID,
		Matches:      s.Matches,
		Duplicates:   s.Duplicates,
		OtherQueue:   s.OtherQueue,
		Failed:       s.Failed,
		MatchupRows:  s.MatchupRows,
	}
}

// Print renders the summary as a two-column table followed by the store footer.
func (s *Summary) Print(w io.Writer) {
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
	table.Header("Collection summary", s.Mode)

	rows := [][]any{
		{"Players", s.Players},
		{"Missing PUUID", s.MissingPUUID},
		{"Matches processed", s.Matches},
		{"Duplicates skipped", s.Duplicates},
		{"Other queues", s.OtherQueue},
		{"Not found", s.NotFound},
		{"Failed", s.Failed},
		{"Matchups recorded", s.MatchupRows},
		{"Elapsed", formatDuration(s.Elapsed)},
	}
	for _, r := range rows {
		table.Append(r...)
	}
	table.Render()

	fmt.Fprintf(w, "Database: %d matchup rows, %d processed matches\n", s.Store.Matchups, s.Store.Processed)
	if s.Interrupted {
		fmt.Fprintln(w, "Run interrupted; progress up to the last match is saved.")
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%02ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%02dm%02ds", hours, mins, secs)
}
