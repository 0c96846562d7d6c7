package matchup

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTier is returned for a rank filter that names no tier.
var ErrUnknownTier = errors.New("unknown rank tier")

// AllTiers is the filter matching every tier.
const AllTiers = "all"

// Tiers is the rank hierarchy, lowest first.
var Tiers = []string{
	"iron",
	"bronze",
	"silver",
	"gold",
	"platinum",
	"emerald",
	"diamond",
	"master",
	"grandmaster",
	"challenger",
}

// TierIndex returns the position of tier in Tiers, or -1.
func TierIndex(tier string) int {
	tier = strings.ToLower(tier)
	for i, t := range Tiers {
		if t == tier {
			return i
		}
	}
	return -1
}

// ExpandRankTier turns a rank filter into the concrete tiers it covers.
// "all" yields nil (no filter), "x" yields [x] and "x+" yields x through challenger.
func ExpandRankTier(filter string) ([]string, error) {
	f := strings.ToLower(strings.TrimSpace(filter))
	if f == "" || f == AllTiers {
		return nil, nil
	}

	plus := strings.HasSuffix(f, "+")
	base := strings.TrimSuffix(f, "+")
	idx := TierIndex(base)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, filter)
	}
	if !plus {
		return []string{base}, nil
	}
	return append([]string(nil), Tiers[idx:]...), nil
}
