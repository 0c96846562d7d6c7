package storage

// RawParticipant is one line of the raw match archive.
// Each archived match contributes one line per participant.
type RawParticipant struct {
	MatchID      string `json:"matchId"`
	GameVersion  string `json:"gameVersion"`
	QueueID      int    `json:"queueId"`
	GameDuration int    `json:"gameDuration"`
	GameCreation int64  `json:"gameCreation"`
	RankTier     string `json:"rankTier"`

	PUUID        string `json:"puuid"`
	ChampionID   int    `json:"championId"`
	ChampionName string `json:"championName"`
	TeamID       int    `json:"teamId"`
	TeamPosition string `json:"teamPosition"`
	Win          bool   `json:"win"`
}
