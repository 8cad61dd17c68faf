// Package ranking orders the visible broadcast set by proximity to the viewer.
//
// With a known viewer location, entries are sorted by great-circle distance
// ascending, entries without a location last, newest first among equal
// distances. Without a viewer location, entries are sorted newest first and
// carry no distance. Remaining ties are broken by broadcast id so the order is
// deterministic.
package ranking

import (
	"sort"

	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
	"github.com/TimBasler1996/Melora-sub001/internal/geo"
)

// Rank returns a new slice holding items in visible order with distances
// recomputed from current. items is not modified.
func Rank(current *geo.Point, items []broadcast.Enriched) []broadcast.Enriched {
	out := make([]broadcast.Enriched, len(items))
	copy(out, items)

	for i := range out {
		out[i].DistanceMeters = Distance(current, out[i].Location)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Distance returns the rounded distance in meters between current and loc,
// or nil when either is unknown.
func Distance(current, loc *geo.Point) *int {
	if current == nil || loc == nil {
		return nil
	}
	d := geo.RoundedDistance(*current, *loc)
	return &d
}

// Less reports whether a sorts before b.
// A nil distance sorts after every known distance.
func Less(a, b broadcast.Enriched) bool {
	switch {
	case a.DistanceMeters != nil && b.DistanceMeters == nil:
		return true
	case a.DistanceMeters == nil && b.DistanceMeters != nil:
		return false
	case a.DistanceMeters != nil && *a.DistanceMeters != *b.DistanceMeters:
		return *a.DistanceMeters < *b.DistanceMeters
	}

	if !a.BroadcastedAt.Equal(b.BroadcastedAt) {
		return a.BroadcastedAt.After(b.BroadcastedAt)
	}
	return a.ID < b.ID
}

// Ordered reports whether items is in visible order.
func Ordered(items []broadcast.Enriched) bool {
	for i := 1; i < len(items); i++ {
		if Less(items[i], items[i-1]) {
			return false
		}
	}
	return true
}
