// Package icsexport writes an extracted schedule to a local iCalendar
// file, so the day's intervals stay usable by anything that subscribes to
// .ics feeds, independent of the Google sync.
package icsexport

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	ical "github.com/arran4/golang-ical"

	"powercal/internal/model"
)

// Write serializes the schedule's intervals as VEVENTs carrying the given
// summary and overwrites path with the result. One file per run; consumers
// re-read it after each sync.
func Write(path, summary string, sched model.Schedule) error {
	if path == "" {
		return fmt.Errorf("icsexport: path is empty")
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//powercal//EN")

	day := sched.Date.Format(time.DateOnly)
	for i, iv := range sched.Intervals {
		ev := cal.AddEvent(fmt.Sprintf("%s-%d@powercal", day, i))
		ev.SetDtStampTime(time.Now().UTC())
		ev.SetStartAt(iv.Start)
		ev.SetEndAt(iv.End)
		ev.SetSummary(summary)
	}

	if err := writeAtomic(path, []byte(cal.Serialize())); err != nil {
		return fmt.Errorf("icsexport: write %s: %w", path, err)
	}
	return nil
}

// writeAtomic replaces path via a temp file + rename, so a subscriber
// reading the feed mid-run never sees a torn file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".powercal-ics-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// The feed is world-readable, unlike the config and token files.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
