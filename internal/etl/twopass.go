package etl

import (
	"github.com/JR-coderli/EFsafari/internal/upstream/clickflare"
)

// MergeKey identifies a report row across the two fetch passes.
type MergeKey struct {
	Date            string
	TrafficSourceID string
	OfferID         string
	TrackingFields  [6]string
}

func keyOf(it clickflare.Item) MergeKey {
	return MergeKey{
		Date:            string(it.Date),
		TrafficSourceID: string(it.TrafficSourceID),
		OfferID:         string(it.OfferID),
		TrackingFields:  it.TrackingFields(),
	}
}

// MergePasses copies lander identity from pass2 onto the matching pass1
// rows. The first pass2 row for a key wins; unmatched pass1 rows get empty
// lander fields. An empty pass2 returns pass1 unchanged.
func MergePasses(pass1, pass2 []clickflare.Item) []clickflare.Item {
	if len(pass2) == 0 {
		return pass1
	}
	lookup := make(map[MergeKey]clickflare.Item, len(pass2))
	for _, it := range pass2 {
		k := keyOf(it)
		if _, ok := lookup[k]; !ok {
			lookup[k] = it
		}
	}

	out := make([]clickflare.Item, len(pass1))
	for i, it := range pass1 {
		if m, ok := lookup[keyOf(it)]; ok {
			it.LandingID = m.LandingID
			it.LandingName = m.LandingName
		} else {
			it.LandingID = ""
			it.LandingName = ""
		}
		out[i] = it
	}
	return out
}
