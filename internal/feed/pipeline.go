package feed

import (
	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
	"github.com/TimBasler1996/Melora-sub001/internal/docstore"
	"github.com/TimBasler1996/Melora-sub001/internal/prefs"
)

// exclusions counts records left out of a join, by reason.
type exclusions map[string]int

// decodeRecords decodes broadcast documents, skipping undecodable ones.
func decodeRecords(docs []docstore.Document) ([]broadcast.Record, int) {
	records := make([]broadcast.Record, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		r, err := broadcast.RecordFromFields(doc.ID, doc.Fields)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped
}

// filterRecords drops the viewer's own broadcasts and muted users and tracks.
func filterRecords(records []broadcast.Record, viewerID string, mutes prefs.Mutes, excl exclusions) []broadcast.Record {
	out := make([]broadcast.Record, 0, len(records))
	for _, r := range records {
		switch {
		case r.UserID == viewerID:
			excl[ReasonOwn]++
		case mutes.Users.Contains(r.UserID):
			excl[ReasonMutedUser]++
		case mutes.Tracks.Contains(r.Track.ID):
			excl[ReasonMutedTrack]++
		default:
			out = append(out, r)
		}
	}
	return out
}

// authorIDs returns the distinct author ids of records in first-seen order.
func authorIDs(records []broadcast.Record) []string {
	seen := make(map[string]struct{}, len(records))
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		ids = append(ids, r.UserID)
	}
	return ids
}

// joinProfiles enriches records whose author profile is known and drops the rest.
func joinProfiles(records []broadcast.Record, lookup func(id string) (broadcast.Profile, bool), excl exclusions) []broadcast.Enriched {
	out := make([]broadcast.Enriched, 0, len(records))
	for _, r := range records {
		p, ok := lookup(r.UserID)
		if !ok {
			excl[ReasonNoProfile]++
			continue
		}
		out = append(out, broadcast.Enrich(r, p))
	}
	return out
}
