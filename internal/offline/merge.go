package offline

import (
	"sort"
	"time"

	"workroom/internal/models"
)

// Merge combines locally cached messages with a freshly fetched server slice.
// Duplicates are collapsed by server ID, with the incoming copy winning since
// it carries the newer delivery status. The result is ordered by creation time
// with ID as the tiebreaker, matching the server's history ordering.
func Merge(local, incoming []models.Message) []models.Message {
	byID := make(map[uint]models.Message, len(local)+len(incoming))
	for _, m := range local {
		byID[m.ID] = m
	}
	for _, m := range incoming {
		byID[m.ID] = m
	}

	merged := make([]models.Message, 0, len(byID))
	for _, m := range byID {
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}

// LatestTimestamp returns the newest CreatedAt in the slice, used as the
// cursor for incremental history fetches after a reconnect. The zero time is
// returned for an empty slice, which fetches everything.
func LatestTimestamp(msgs []models.Message) time.Time {
	var latest time.Time
	for _, m := range msgs {
		if m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}
	return latest
}
