package service

import "time"

// SetClock replaces the service clock
func SetClock(s *RecordService, now func() time.Time) {
	s.now = now
}
