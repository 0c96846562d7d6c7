package matchup

import (
	"cmp"
	"strconv"
	"strings"
)

// PatchFromVersion reduces a game version like "15.3.123.456" to "15.3".
func PatchFromVersion(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

// ComparePatches orders patches numerically by major then minor.
// Non-numeric components compare as zero.
func ComparePatches(a, b string) int {
	amaj, amin := splitPatch(a)
	bmaj, bmin := splitPatch(b)
	if c := cmp.Compare(amaj, bmaj); c != 0 {
		return c
	}
	if c := cmp.Compare(amin, bmin); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func splitPatch(p string) (int, int) {
	major, minor, _ := strings.Cut(p, ".")
	maj, _ := strconv.Atoi(major)
	mnr, _ := strconv.Atoi(minor)
	return maj, mnr
}
