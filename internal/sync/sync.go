// Package sync reconciles an extracted schedule against the remote
// calendar: the day's previously published events for the group are
// deleted and the fresh intervals inserted, so the calendar always
// mirrors the latest scrape.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"powercal/internal/model"
)

// ErrEmptySchedule is returned when there are no intervals to sync. The
// caller decides whether an empty day is a no-op or a problem; the
// reconciler never silently publishes nothing.
var ErrEmptySchedule = errors.New("sync: empty schedule, no day window to reconcile")

// Tag is the event summary that marks calendar events as owned by this
// sync process for the given group. Ownership is by summary equality;
// nothing else on the remote events is inspected.
func Tag(group string) string {
	return fmt.Sprintf("Power cut: Group %s", group)
}

// Gateway is the slice of the calendar capability the reconciler uses.
// Satisfied by *gcal.Client.
type Gateway interface {
	ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.Event, error)
	InsertEvent(ctx context.Context, calendarID, summary string, start, end time.Time) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// Reconciler synchronizes one group's schedule onto one calendar.
type Reconciler struct {
	Gateway Gateway
	Log     zerolog.Logger
}

// Sync replaces the day's tagged events with the given intervals.
//
// The day window is derived from the first interval: [midnight, next
// midnight) in the interval's own timezone. The initial listing is fatal
// on failure; the per-event delete and insert loops are best-effort, so a
// single bad event never blocks the rest. Failure counts come back in the
// result for the caller to alert on.
//
// Delete-then-insert rather than diff-and-patch: scraped intervals have no
// stable identity across runs, only the summary tag marks ownership. The
// churn is acceptable for a once-a-day job and makes repeat runs converge
// on the same event set.
func (r *Reconciler) Sync(ctx context.Context, group, calendarID string, intervals []model.Interval) (model.SyncResult, error) {
	var res model.SyncResult

	if len(intervals) == 0 {
		return res, ErrEmptySchedule
	}

	first := intervals[0].Start
	windowStart := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, first.Location())
	windowEnd := windowStart.AddDate(0, 0, 1)
	tag := Tag(group)

	existing, err := r.Gateway.ListEvents(ctx, calendarID, windowStart, windowEnd)
	if err != nil {
		return res, fmt.Errorf("sync: list existing events: %w", err)
	}

	for _, ev := range existing {
		if ev.Summary != tag {
			continue
		}
		if err := r.Gateway.DeleteEvent(ctx, calendarID, ev.ID); err != nil {
			res.DeleteFailed++
			r.Log.Error().Err(err).
				Str("event_id", ev.ID).
				Str("calendar_id", calendarID).
				Msg("delete failed, continuing")
			continue
		}
		res.Deleted++
	}

	for _, iv := range intervals {
		if _, err := r.Gateway.InsertEvent(ctx, calendarID, tag, iv.Start, iv.End); err != nil {
			res.InsertFailed++
			r.Log.Error().Err(err).
				Time("start", iv.Start).
				Time("end", iv.End).
				Str("calendar_id", calendarID).
				Msg("insert failed, continuing")
			continue
		}
		res.Inserted++
	}

	r.Log.Info().
		Str("group", group).
		Str("window_start", windowStart.Format(time.RFC3339)).
		Int("deleted", res.Deleted).
		Int("delete_failed", res.DeleteFailed).
		Int("inserted", res.Inserted).
		Int("insert_failed", res.InsertFailed).
		Msg("reconciliation finished")

	return res, nil
}
