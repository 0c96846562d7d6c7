package matchup

import (
	"fmt"
	"strings"
)

// Role is a lane.
type Role string

const (
	Top     Role = "top"
	Jungle  Role = "jungle"
	Mid     Role = "mid"
	Bottom  Role = "bottom"
	Support Role = "support"
)

// Roles in canonical order.
var Roles = []Role{Top, Jungle, Mid, Bottom, Support}

var positionToRole = map[string]Role{
	"TOP":     Top,
	"JUNGLE":  Jungle,
	"MIDDLE":  Mid,
	"BOTTOM":  Bottom,
	"UTILITY": Support,
}

// RoleFromPosition maps a match teamPosition to a Role.
func RoleFromPosition(position string) (Role, bool) {
	r, ok := positionToRole[position]
	return r, ok
}

// ParseRole accepts role names and their common aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "top":
		return Top, nil
	case "jungle", "jg":
		return Jungle, nil
	case "mid", "middle":
		return Mid, nil
	case "bottom", "bot", "adc":
		return Bottom, nil
	case "support", "utility", "sup":
		return Support, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Index returns the canonical position of r, or len(Roles) when unknown.
func (r Role) Index() int {
	for i, v := range Roles {
		if v == r {
			return i
		}
	}
	return len(Roles)
}
