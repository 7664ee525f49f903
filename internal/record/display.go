// Package record derives the displayed world record from a leaderboard
// snapshot and owns the write-once view state the snapshot is published to.
package record

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/domain"
)

const (
	hoursPerDay = 24

	runDateLayout = "2006-01-02"
)

// FormatRecordTime renders elapsed seconds as HH:MM:SS. Fractional seconds
// are truncated and hours keep counting past 24.
func FormatRecordTime(seconds float64) string {
	total := int64(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

// RunSeconds returns the real-time duration of a run, or the primary time
// for categories timed without real time.
func RunSeconds(run *domain.Run) float64 {
	if run.Times.RealtimeT > 0 {
		return run.Times.RealtimeT
	}
	return run.Times.PrimaryT
}

// HolderName returns the display name of the first player on the entry
func HolderName(entry *domain.LeaderboardEntry) (string, bool) {
	if entry == nil || len(entry.Run.Players) == 0 {
		return "", false
	}
	p := entry.Run.Players[0]
	if p.Name != "" {
		return p.Name, true
	}
	return p.ID, p.ID != ""
}

// RecordSince returns when the run became the record: its verification
// date, or its run date when it was never stamped by a moderator.
func RecordSince(run *domain.Run) (time.Time, error) {
	if run.Status.VerifyDate != "" {
		t, err := time.Parse(time.RFC3339, run.Status.VerifyDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing verify date %q: %w", run.Status.VerifyDate, err)
		}
		return t, nil
	}
	if run.Date != "" {
		t, err := time.Parse(runDateLayout, run.Date)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing run date %q: %w", run.Date, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("run %s has no date", run.ID)
}

// RecordAge splits the time between since and now into whole days and the
// remaining whole hours.
func RecordAge(since, now time.Time) (days, hours int) {
	d := now.Sub(since)
	if d < 0 {
		return 0, 0
	}
	totalHours := int(d / time.Hour)
	return totalHours / hoursPerDay, totalHours % hoursPerDay
}

// FormatAge renders a record age for display
func FormatAge(days, hours int) string {
	return fmt.Sprintf("%d days and %d hours", days, hours)
}

// VideoID extracts the video identifier from a video link. For Twitch VOD
// links (https://www.twitch.tv/videos/<id>) this is the fifth "/" separated
// segment; longer paths yield their final segment.
func VideoID(uri string) (string, error) {
	if len(strings.Split(uri, "/")) < 5 {
		return "", fmt.Errorf("%w: %q", domain.ErrNoVideo, uri)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrNoVideo, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	id := segments[len(segments)-1]
	if id == "" {
		return "", fmt.Errorf("%w: %q", domain.ErrNoVideo, uri)
	}
	return id, nil
}

// BuildRecord derives the displayed record from the leader entry. The embed
// is omitted when the run has no usable video link.
func BuildRecord(entry *domain.LeaderboardEntry, cfg *config.RecordConfig, now time.Time) (*domain.Record, error) {
	if entry == nil {
		return nil, domain.ErrNoRecord
	}

	holder, _ := HolderName(entry)
	rec := &domain.Record{
		Title:   cfg.Title,
		RunID:   entry.Run.ID,
		Time:    FormatRecordTime(RunSeconds(&entry.Run)),
		Holder:  holder,
		Weblink: entry.Run.Weblink,
	}

	if since, err := RecordSince(&entry.Run); err == nil {
		rec.Age = FormatAge(RecordAge(since, now))
	}

	if uri, ok := entry.Run.FirstVideoURI(); ok {
		if id, err := VideoID(uri); err == nil {
			rec.Embed = &domain.Embed{
				TargetID: cfg.EmbedTargetID,
				Width:    cfg.Width,
				Height:   cfg.Height,
				Video:    id,
			}
		}
	}

	return rec, nil
}
