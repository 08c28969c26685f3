package google

import "time"

// SetClock overrides the clock used for default list windows.
func (s *CalendarService) SetClock(now func() time.Time) { s.now = now }
