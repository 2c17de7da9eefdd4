// Package extract scrapes the utility's outage-schedule widget and turns
// the displayed lines for one consumer group into typed intervals.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"powercal/internal/model"
)

// DOM markers of the schedule widget. The calendar is a FullCalendar
// instance: the toolbar exposes the day-navigation buttons through
// accessibility labels, the heading carries the displayed date, and one
// .fc-content element holds each schedule line.
const (
	nextDaySelector = `button[aria-label="next"]`
	dateSelector    = `.fc-center h2`
	entrySelector   = `.fc-content`
)

const (
	// waitBound is the per-element wait, matching the widget's observed
	// render latency with headroom.
	waitBound = 10 * time.Second

	// dateLayout parses the widget heading, e.g. "March 1, 2024".
	dateLayout = "January 2, 2006"

	// clockLayout parses the 12-hour tokens, e.g. "11:30pm".
	clockLayout = "3:04pm"
)

// NavigationError reports that an expected page element never appeared or
// never became usable. Fatal to the extraction pass.
type NavigationError struct {
	Step string
	Err  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("extract: %s: %v", e.Step, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ParseError reports schedule text that did not match the expected
// format. It carries the offending input so a failed run can be diagnosed
// without re-scraping.
type ParseError struct {
	Kind  string // "date" or "time"
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("extract: bad %s text %q: %v", e.Kind, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Renderer is the browser capability the extractor drives. Satisfied by
// *browser.Renderer.
type Renderer interface {
	Open(url string) error
	ClickWhenReady(selector string, timeout time.Duration) error
	Texts(selector string, timeout time.Duration) ([]string, error)
	Text(selector string, timeout time.Duration) (string, error)
	Close() error
}

// RendererFactory opens a fresh browser session for one extraction pass.
// The extractor releases the session before returning, on every path.
type RendererFactory func(ctx context.Context) (Renderer, error)

// Extractor scrapes tomorrow's schedule for one group. Construct with the
// fields set; the zero value is not usable.
type Extractor struct {
	URL      string
	Group    string
	Location *time.Location

	NewRenderer RendererFactory
	Log         zerolog.Logger
}

// TomorrowSchedule navigates the widget to the next day and returns the
// date it displays together with the intervals announced for the
// configured group, in the order the widget listed them (not necessarily
// sorted). Repeated calls re-scrape; nothing is cached.
//
// Any failure aborts the whole pass: a half-parsed schedule risks
// publishing wrong times.
func (e *Extractor) TomorrowSchedule(ctx context.Context) (model.Schedule, error) {
	r, err := e.NewRenderer(ctx)
	if err != nil {
		return model.Schedule{}, fmt.Errorf("extract: open browser: %w", err)
	}
	defer r.Close()

	if err := r.Open(e.URL); err != nil {
		return model.Schedule{}, &NavigationError{Step: "open schedule page", Err: err}
	}

	if err := r.ClickWhenReady(nextDaySelector, waitBound); err != nil {
		return model.Schedule{}, &NavigationError{Step: "click next-day control", Err: err}
	}

	dateText, err := r.Text(dateSelector, waitBound)
	if err != nil {
		return model.Schedule{}, &NavigationError{Step: "read date heading", Err: err}
	}
	date, err := time.ParseInLocation(dateLayout, dateText, e.Location)
	if err != nil {
		return model.Schedule{}, &ParseError{Kind: "date", Input: dateText, Err: err}
	}

	entries, err := r.Texts(entrySelector, waitBound)
	if err != nil {
		return model.Schedule{}, &NavigationError{Step: "read schedule entries", Err: err}
	}

	intervals, err := e.parseEntries(entries, date)
	if err != nil {
		return model.Schedule{}, err
	}

	e.Log.Info().
		Str("date", date.Format(time.DateOnly)).
		Int("entries", len(entries)).
		Int("matched", len(intervals)).
		Msg("schedule extracted")

	return model.Schedule{Date: date, Intervals: intervals}, nil
}

// parseEntries filters the raw widget lines down to the configured group
// and parses each into an interval. Group matching is a case-sensitive
// substring test against the full entry text, preserving the widget's own
// labeling; a group name that is a prefix of another will over-match.
func (e *Extractor) parseEntries(entries []string, date time.Time) ([]model.Interval, error) {
	var intervals []model.Interval
	for _, entry := range entries {
		if !strings.Contains(entry, e.Group) {
			continue
		}
		iv, err := parseEntry(entry, date)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

// parseEntry reads the leading "start end" 12-hour clock tokens of one
// schedule line and stamps them onto the scraped date. An end time at or
// before the start rolls over to the following day (e.g. 11:30pm-5:30am).
func parseEntry(entry string, date time.Time) (model.Interval, error) {
	fields := strings.Fields(entry)
	if len(fields) < 2 {
		return model.Interval{}, &ParseError{
			Kind:  "time",
			Input: entry,
			Err:   fmt.Errorf("want at least 2 tokens, got %d", len(fields)),
		}
	}

	start, err := stampClock(fields[0], date)
	if err != nil {
		return model.Interval{}, err
	}
	end, err := stampClock(fields[1], date)
	if err != nil {
		return model.Interval{}, err
	}

	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}

	return model.Interval{Start: start, End: end}, nil
}

// stampClock parses a "3:04pm"-style token and places it on the given
// calendar day in the day's timezone.
func stampClock(token string, date time.Time) (time.Time, error) {
	t, err := time.Parse(clockLayout, token)
	if err != nil {
		return time.Time{}, &ParseError{Kind: "time", Input: token, Err: err}
	}
	return time.Date(
		date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), 0, 0,
		date.Location(),
	), nil
}
