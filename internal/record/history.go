package record

import (
	"time"

	"github.com/speedrun-record/internal/domain"
)

// FilterRecordHistory is experimental and unused by the serving path.
//
// It walks the snapshot in rank order, keeping the last rank-1 entry seen,
// and collects every rank-1 entry plus any later entry dated before the one
// currently held. The leaderboard only lists each runner's best run, so the
// result is not a reliable record history.
func FilterRecordHistory(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	var (
		held    *domain.LeaderboardEntry
		records []domain.LeaderboardEntry
	)

	for i := range entries {
		entry := &entries[i]
		if entry.Place == 1 {
			held = entry
			records = append(records, *entry)
		}

		if held != nil && runDateAfter(held, entry) {
			records = append(records, *entry)
			held = entry
		}
	}

	return records
}

// runDateAfter reports whether a's run date is strictly after b's. Entries
// with unparseable dates never compare as after.
func runDateAfter(a, b *domain.LeaderboardEntry) bool {
	ta, err := time.Parse(runDateLayout, a.Run.Date)
	if err != nil {
		return false
	}
	tb, err := time.Parse(runDateLayout, b.Run.Date)
	if err != nil {
		return false
	}
	return ta.After(tb)
}
