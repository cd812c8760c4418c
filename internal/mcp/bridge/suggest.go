package bridge

import (
	"fmt"

	"github.com/antzucaro/matchr"
)

// hint returns a " (did you mean ...?)" suffix when name is not in the
// catalogue but a listed tool is within a small edit distance of it.
func (b *Bridge) hint(name string) string {
	best, bestDist := "", -1
	for _, d := range b.catalog {
		if d.Name == name {
			return ""
		}
		dist := matchr.Levenshtein(name, d.Name)
		if bestDist < 0 || dist < bestDist {
			best, bestDist = d.Name, dist
		}
	}
	if best == "" || bestDist > maxSuggestDistance(name) {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

// maxSuggestDistance scales the tolerated edit distance with the name length.
func maxSuggestDistance(name string) int {
	if n := len(name) / 3; n > 2 {
		return n
	}
	return 2
}
