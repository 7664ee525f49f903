package domain

import "errors"

// Domain errors
var (
	ErrRecordLoading     = errors.New("record is still loading")
	ErrNoRecord          = errors.New("no record available")
	ErrNoPlayer          = errors.New("run has no players")
	ErrNoVideo           = errors.New("run has no embeddable video")
	ErrUpstream          = errors.New("leaderboard api request failed")
	ErrMalformedResponse = errors.New("malformed leaderboard api response")
	ErrViewClosed        = errors.New("view is closed")
	ErrArchiveDisabled   = errors.New("snapshot archive is disabled")
	ErrSnapshotNotFound  = errors.New("archived snapshot not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInternalError     = errors.New("internal server error")
)

// IsPendingError reports whether err means the view has nothing to show yet
func IsPendingError(err error) bool {
	return errors.Is(err, ErrRecordLoading) || errors.Is(err, ErrNoRecord)
}
