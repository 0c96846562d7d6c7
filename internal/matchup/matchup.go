// Package matchup turns match participants into directed lane observations and
// owns the role, rank tier and patch vocabulary shared by the store and the CLI.
package matchup

import "draftgap/internal/riot"

// Matchup is one directed lane observation: Champion played Role against Opponent.
type Matchup struct {
	Champion string
	Opponent string
	Role     Role
	Won      bool
}

const (
	blueTeam = 100
	redTeam  = 200
)

// Extract pairs blue and red participants sharing a recognized lane and
// returns both directions of every pair. Unpaired lanes and unknown positions
// are dropped, so a match yields at most ten records.
func Extract(participants []riot.Participant) []Matchup {
	var blue, red []riot.Participant
	for _, p := range participants {
		switch p.TeamID {
		case blueTeam:
			blue = append(blue, p)
		case redTeam:
			red = append(red, p)
		}
	}

	out := make([]Matchup, 0, 2*len(Roles))
	for _, b := range blue {
		role, ok := RoleFromPosition(b.TeamPosition)
		if !ok {
			continue
		}
		r, ok := findPosition(red, b.TeamPosition)
		if !ok {
			continue
		}
		out = append(out,
			Matchup{Champion: b.ChampionName, Opponent: r.ChampionName, Role: role, Won: b.Win},
			Matchup{Champion: r.ChampionName, Opponent: b.ChampionName, Role: role, Won: r.Win},
		)
	}
	return out
}

func findPosition(team []riot.Participant, position string) (riot.Participant, bool) {
	for _, p := range team {
		if p.TeamPosition == position {
			return p, true
		}
	}
	return riot.Participant{}, false
}
