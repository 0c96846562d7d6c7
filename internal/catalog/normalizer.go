package catalog

import (
	"sort"

	"golang.org/x/text/cases"
)

// Normalizer maps champion names from match data onto catalog ids,
// ignoring case. Unknown names pass through unchanged.
type Normalizer struct {
	canonical map[string]string
}

// NewNormalizer indexes the given canonical ids.
func NewNormalizer(ids []string) *Normalizer {
	n := &Normalizer{canonical: make(map[string]string, len(ids))}
	for _, id := range ids {
		n.canonical[fold(id)] = id
	}
	return n
}

// FromChampions builds a normalizer over catalog champion ids.
func FromChampions(champions []Champion) *Normalizer {
	ids := make([]string, len(champions))
	for i, ch := range champions {
		ids[i] = ch.ID
	}
	return NewNormalizer(ids)
}

// Normalize returns the canonical id for id. A nil Normalizer is the identity.
func (n *Normalizer) Normalize(id string) string {
	if n == nil {
		return id
	}
	if c, ok := n.canonical[fold(id)]; ok {
		return c
	}
	return id
}

// Len returns the number of indexed ids.
func (n *Normalizer) Len() int {
	if n == nil {
		return 0
	}
	return len(n.canonical)
}

// Correction renames a stored champion id to its canonical form.
type Correction struct {
	From string
	To   string
}

// Corrections lists the ids whose canonical form differs, sorted by From.
func (n *Normalizer) Corrections(ids []string) []Correction {
	var out []Correction
	for _, id := range ids {
		if c := n.Normalize(id); c != id {
			out = append(out, Correction{From: id, To: c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

func fold(s string) string {
	return cases.Fold().String(s)
}
