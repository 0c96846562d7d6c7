package store

// IdentityFix renames champion ids stored under a wrong capitalization.
type IdentityFix struct {
	From string
	To   string
}

// DefaultIdentityFixes are the names the match API has been seen to return
// with a capitalization that differs from the Data Dragon id.
var DefaultIdentityFixes = []IdentityFix{
	{From: "BelVeth", To: "Belveth"},
	{From: "FiddleSticks", To: "Fiddlesticks"},
	{From: "KaiSa", To: "Kaisa"},
	{From: "KindrED", To: "Kindred"},
	{From: "LeBlanc", To: "Leblanc"},
	{From: "TaliyaH", To: "Taliyah"},
	{From: "VelKoz", To: "Velkoz"},
}
