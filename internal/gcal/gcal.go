// Package gcal wraps the Google Calendar API behind the three operations
// the reconciler needs: list a day window, insert an event, delete an
// event by id.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"powercal/internal/model"
)

// RemoteError carries the provider's status and message for a failed
// calendar API call. Callers decide whether to retry; the gateway never
// retries on its own.
type RemoteError struct {
	Op      string
	Code    int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gcal: %s: %d %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("gcal: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// remoteErr wraps a googleapi failure, pulling out the HTTP status when
// one is present.
func remoteErr(op string, err error) *RemoteError {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &RemoteError{Op: op, Code: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return &RemoteError{Op: op, Err: err}
}

// Options configures the gateway.
type Options struct {
	// CredentialsFile is the OAuth client secret JSON.
	CredentialsFile string

	// TokenFile caches the authorized user token between runs. It is
	// rewritten after every refresh or consent. Single-process use is
	// assumed; there is no file locking.
	TokenFile string

	// Timezone is the IANA zone stamped on inserted events.
	Timezone string

	// ConsentIn / ConsentOut carry the interactive consent dialog.
	// Defaulted to stdin/stdout when nil.
	ConsentIn  io.Reader
	ConsentOut io.Writer

	Logger zerolog.Logger
}

// Client is an authenticated Google Calendar gateway.
type Client struct {
	svc      *calendar.Service
	timezone string
	log      zerolog.Logger
}

// New authenticates against Google Calendar and returns a ready gateway.
// Authentication failures are fatal; there is no degraded mode.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.ConsentIn == nil {
		opts.ConsentIn = os.Stdin
	}
	if opts.ConsentOut == nil {
		opts.ConsentOut = os.Stdout
	}
	if opts.Timezone == "" {
		opts.Timezone = "Asia/Colombo"
	}

	secret, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("gcal: read credentials file: %w", err)
	}
	conf, err := google.ConfigFromJSON(secret, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("gcal: parse credentials file: %w", err)
	}

	tok, err := resolveToken(ctx, conf, opts.TokenFile, opts.ConsentIn, opts.ConsentOut)
	if err != nil {
		return nil, err
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("gcal: build calendar service: %w", err)
	}

	opts.Logger.Debug().Str("token_file", opts.TokenFile).Msg("calendar gateway authenticated")

	return &Client{svc: svc, timezone: opts.Timezone, log: opts.Logger}, nil
}

// InsertEvent creates an event and returns the id the remote store
// assigned to it.
func (c *Client) InsertEvent(ctx context.Context, calendarID, summary string, start, end time.Time) (string, error) {
	ev := &calendar.Event{
		Summary: summary,
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: c.timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: c.timezone,
		},
	}

	created, err := c.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", remoteErr("events.insert", err)
	}

	c.log.Debug().Str("event_id", created.Id).Str("summary", summary).Msg("event inserted")
	return created.Id, nil
}

// ListEvents returns the events whose start falls in [start, end),
// recurring events expanded to single instances, ordered by start time.
func (c *Client) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.Event, error) {
	var out []model.Event

	call := c.svc.Events.List(calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")

	err := call.Pages(ctx, func(page *calendar.Events) error {
		out = collectWindow(out, page.Items, start, end)
		return nil
	})
	if err != nil {
		return nil, remoteErr("events.list", err)
	}

	return out, nil
}

// DeleteEvent removes an event by id. Deleting an id the store no longer
// has surfaces as a RemoteError; the caller decides whether that matters.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return remoteErr("events.delete", err)
	}
	c.log.Debug().Str("event_id", eventID).Msg("event deleted")
	return nil
}

// collectWindow appends the items whose start falls in [start, end).
// The API's timeMin bounds the event's *end*, so pages also carry events
// that merely overlap the window, such as the previous day's cut running
// past midnight; the gateway's contract is start-based, so those are
// dropped here.
func collectWindow(out []model.Event, items []*calendar.Event, start, end time.Time) []model.Event {
	for _, item := range items {
		s := eventTime(item.Start)
		if s.Before(start) || !s.Before(end) {
			continue
		}
		out = append(out, model.Event{
			ID:      item.Id,
			Summary: item.Summary,
			Start:   s,
			End:     eventTime(item.End),
		})
	}
	return out
}

// eventTime reads the timestamp out of an EventDateTime, which carries
// either a DateTime (timed event) or a Date (all-day).
func eventTime(edt *calendar.EventDateTime) time.Time {
	if edt == nil {
		return time.Time{}
	}
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return t
		}
	}
	if edt.Date != "" {
		if t, err := time.Parse(time.DateOnly, edt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
