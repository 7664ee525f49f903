package domain

import (
	"time"
)

// PlayerRel distinguishes registered users from guest entries
type PlayerRel string

const (
	PlayerRelUser  PlayerRel = "user"
	PlayerRelGuest PlayerRel = "guest"
)

// LeaderboardSnapshot is the ordered result of one leaderboard query.
// Runs are in rank order; the first element is the current record.
type LeaderboardSnapshot struct {
	Weblink   string             `json:"weblink,omitempty"`
	Game      string             `json:"game"`
	Category  string             `json:"category"`
	Runs      []LeaderboardEntry `json:"runs"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Leader returns the first ranked entry
func (s *LeaderboardSnapshot) Leader() (*LeaderboardEntry, bool) {
	if s == nil || len(s.Runs) == 0 {
		return nil, false
	}
	return &s.Runs[0], true
}

// LeaderboardEntry represents one ranked run
type LeaderboardEntry struct {
	Place int `json:"place"`
	Run   Run `json:"run"`
}

// Run is one completed, timed attempt
type Run struct {
	ID      string     `json:"id"`
	Weblink string     `json:"weblink,omitempty"`
	Date    string     `json:"date"`
	Players []Player   `json:"players"`
	Status  RunStatus  `json:"status"`
	Times   RunTimes   `json:"times"`
	Videos  *RunVideos `json:"videos,omitempty"`
}

// Player references a runner. Name is filled in after the profile lookup.
type Player struct {
	Rel  PlayerRel `json:"rel"`
	ID   string    `json:"id,omitempty"`
	URI  string    `json:"uri"`
	Name string    `json:"name,omitempty"`
}

// RunStatus holds the moderation state of a run
type RunStatus struct {
	Status     string `json:"status"`
	Examiner   string `json:"examiner,omitempty"`
	VerifyDate string `json:"verify-date,omitempty"`
}

// RunTimes holds elapsed times in seconds
type RunTimes struct {
	PrimaryT  float64 `json:"primary_t"`
	RealtimeT float64 `json:"realtime_t"`
}

// RunVideos lists the video evidence for a run
type RunVideos struct {
	Links []VideoLink `json:"links"`
}

// VideoLink is a link to an externally hosted video
type VideoLink struct {
	URI string `json:"uri"`
}

// FirstVideoURI returns the URI of the first video link
func (r *Run) FirstVideoURI() (string, bool) {
	if r.Videos == nil || len(r.Videos.Links) == 0 {
		return "", false
	}
	return r.Videos.Links[0].URI, true
}

// UserProfile is the subset of a player profile needed for display
type UserProfile struct {
	ID                string `json:"id,omitempty"`
	InternationalName string `json:"international_name"`
}

// Record is the view model derived from the leader entry
type Record struct {
	Title   string `json:"title"`
	RunID   string `json:"run_id,omitempty"`
	Time    string `json:"time"`
	Holder  string `json:"holder"`
	Age     string `json:"age"`
	Weblink string `json:"weblink,omitempty"`
	Embed   *Embed `json:"embed,omitempty"`
}

// Embed carries the parameters handed to the video player on the page
type Embed struct {
	TargetID string `json:"target_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Video    string `json:"video"`
}

// RecordEvent is emitted once the view has been populated
type RecordEvent struct {
	Type       string    `json:"type"`
	Board      string    `json:"board"`
	RunID      string    `json:"run_id,omitempty"`
	Holder     string    `json:"holder,omitempty"`
	Time       string    `json:"time,omitempty"`
	VerifyDate string    `json:"verify_date,omitempty"`
	Video      string    `json:"video,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Event types
const (
	EventTypeRecordLoaded = "record_loaded"
	EventTypeNoRecord     = "no_record"
)

// ArchivedSnapshot is a snapshot persisted by the archive
type ArchivedSnapshot struct {
	ID         string              `json:"id"`
	Board      string              `json:"board"`
	RunID      string              `json:"run_id,omitempty"`
	Holder     string              `json:"holder,omitempty"`
	RealtimeT  float64             `json:"realtime_t"`
	VerifyDate string              `json:"verify_date,omitempty"`
	VideoURI   string              `json:"video_uri,omitempty"`
	RunCount   int                 `json:"run_count"`
	FetchedAt  time.Time           `json:"fetched_at"`
	Snapshot   LeaderboardSnapshot `json:"snapshot"`
}
