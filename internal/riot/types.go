package riot

// LeagueEntry is one ranked player from /lol/league/v4/entries or an apex listing.
type LeagueEntry struct {
	LeagueID     string `json:"leagueId"`
	SummonerID   string `json:"summonerId"`
	PUUID        string `json:"puuid"`
	QueueType    string `json:"queueType"` // RANKED_SOLO_5x5, RANKED_FLEX_SR
	Tier         string `json:"tier"`      // IRON ... CHALLENGER
	Rank         string `json:"rank"`      // I, II, III, IV
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// LeagueList is the response of the challenger/grandmaster/master endpoints.
// Its entries do not carry a tier; ApexLeague copies it onto them.
type LeagueList struct {
	LeagueID string        `json:"leagueId"`
	Tier     string        `json:"tier"`
	Name     string        `json:"name"`
	Queue    string        `json:"queue"`
	Entries  []LeagueEntry `json:"entries"`
}

// Match represents the response from /lol/match/v5/matches/{matchId}
type Match struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"` // PUUIDs
}

type MatchInfo struct {
	GameID       int64         `json:"gameId"`
	GameCreation int64         `json:"gameCreation"`
	GameDuration int           `json:"gameDuration"`
	GameVersion  string        `json:"gameVersion"`
	QueueID      int           `json:"queueId"`
	Participants []Participant `json:"participants"`
}

type Participant struct {
	ParticipantID int    `json:"participantId"`
	PUUID         string `json:"puuid"`
	ChampionID    int    `json:"championId"`
	ChampionName  string `json:"championName"`
	TeamID        int    `json:"teamId"`       // 100 = blue, 200 = red
	TeamPosition  string `json:"teamPosition"` // TOP, JUNGLE, MIDDLE, BOTTOM, UTILITY
	Win           bool   `json:"win"`
}

// RankedSoloQueue is the queue id of ranked solo/duo games.
const RankedSoloQueue = 420

const rankedSoloQueueType = "RANKED_SOLO_5x5"

// ApexTiers lists the tiers served by the league list endpoints, highest first.
var ApexTiers = []string{"CHALLENGER", "GRANDMASTER", "MASTER"}

// Divisions lists the divisions of non-apex tiers, lowest first.
var Divisions = []string{"IV", "III", "II", "I"}

// IsApexTier reports whether tier has no divisions.
func IsApexTier(tier string) bool {
	for _, t := range ApexTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// IsDivision reports whether d is a valid division.
func IsDivision(d string) bool {
	for _, v := range Divisions {
		if v == d {
			return true
		}
	}
	return false
}
