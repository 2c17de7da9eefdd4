package model

import "time"

// Interval is a single power-cut window on the scraped day. Both ends
// carry the schedule's local timezone; Start is always before End (an
// interval crossing midnight has End stamped on the following day).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Schedule is the output of one extraction pass: the day the widget
// displayed and the intervals announced for the configured group, in the
// order the widget listed them.
type Schedule struct {
	// Date is midnight of the scraped day in the schedule timezone.
	Date time.Time

	Intervals []Interval
}

// Event is a calendar event as seen through the gateway. Only the fields
// the reconciler needs are carried; the remote store owns everything else.
type Event struct {
	ID      string
	Summary string
	Start   time.Time
	End     time.Time
}

// SyncResult aggregates the outcome of one reconciliation pass.
// Failed counts are per-event; a nonzero count means the run was partial,
// not that nothing was applied.
type SyncResult struct {
	Deleted      int
	DeleteFailed int
	Inserted     int
	InsertFailed int
}

// Partial reports whether any per-event operation failed.
func (r SyncResult) Partial() bool {
	return r.DeleteFailed > 0 || r.InsertFailed > 0
}
