package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var colombo = time.FixedZone("Asia/Colombo", 5*3600+1800)

func testDate(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2024, time.March, 1, 0, 0, 0, 0, colombo)
}

func TestClockRoundTrip(t *testing.T) {
	inputs := []string{
		"12:00am", "12:30am", "1:00am", "5:30am", "11:59am",
		"12:00pm", "2:00pm", "6:15pm", "11:30pm",
	}
	for _, in := range inputs {
		parsed, err := time.Parse(clockLayout, in)
		require.NoError(t, err, in)
		assert.Equal(t, in, parsed.Format(clockLayout), "round trip for %s", in)
	}
}

func TestParseEntry(t *testing.T) {
	date := testDate(t)

	tests := []struct {
		name  string
		entry string
		start time.Time
		end   time.Time
	}{
		{
			name:  "afternoon window",
			entry: "2:00pm 6:00pm Demand Management GROUP L",
			start: time.Date(2024, time.March, 1, 14, 0, 0, 0, colombo),
			end:   time.Date(2024, time.March, 1, 18, 0, 0, 0, colombo),
		},
		{
			name:  "cross midnight rolls end to next day",
			entry: "11:30pm 5:30am Demand Management GROUP K",
			start: time.Date(2024, time.March, 1, 23, 30, 0, 0, colombo),
			end:   time.Date(2024, time.March, 2, 5, 30, 0, 0, colombo),
		},
		{
			name:  "end exactly at midnight",
			entry: "10:00pm 12:00am GROUP K",
			start: time.Date(2024, time.March, 1, 22, 0, 0, 0, colombo),
			end:   time.Date(2024, time.March, 2, 0, 0, 0, 0, colombo),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv, err := parseEntry(tt.entry, date)
			require.NoError(t, err)
			assert.True(t, iv.Start.Equal(tt.start), "start: got %v", iv.Start)
			assert.True(t, iv.End.Equal(tt.end), "end: got %v", iv.End)
			assert.True(t, iv.Start.Before(iv.End), "start must precede end")
		})
	}
}

func TestParseEntryMalformed(t *testing.T) {
	date := testDate(t)

	for _, entry := range []string{
		"",
		"11:30pm",
		"25:00pm 5:30am GROUP K",
		"11:30 5:30am GROUP K",
	} {
		_, err := parseEntry(entry, date)
		var perr *ParseError
		require.ErrorAs(t, err, &perr, "entry %q", entry)
		assert.Equal(t, "time", perr.Kind)
	}
}

// fakeRenderer scripts the widget interactions for one extraction pass.
type fakeRenderer struct {
	dateText string
	entries  []string

	clickErr error
	textErr  error
	textsErr error

	closed bool
}

func (f *fakeRenderer) Open(string) error { return nil }

func (f *fakeRenderer) ClickWhenReady(string, time.Duration) error { return f.clickErr }

func (f *fakeRenderer) Texts(string, time.Duration) ([]string, error) {
	return f.entries, f.textsErr
}

func (f *fakeRenderer) Text(string, time.Duration) (string, error) {
	return f.dateText, f.textErr
}

func (f *fakeRenderer) Close() error {
	f.closed = true
	return nil
}

func newExtractor(r Renderer) *Extractor {
	return &Extractor{
		URL:         "https://utility.example/schedule",
		Group:       "K",
		Location:    colombo,
		NewRenderer: func(context.Context) (Renderer, error) { return r, nil },
		Log:         zerolog.Nop(),
	}
}

func TestTomorrowScheduleFiltersGroupInOrder(t *testing.T) {
	fake := &fakeRenderer{
		dateText: "March 1, 2024",
		entries: []string{
			"6:00pm 8:00pm Demand Management GROUP K",
			"2:00pm 6:00pm Demand Management GROUP L",
			"8:30am 10:00am Demand Management GROUP K",
		},
	}

	sched, err := newExtractor(fake).TomorrowSchedule(context.Background())
	require.NoError(t, err)
	assert.True(t, fake.closed, "renderer must be released")

	require.Len(t, sched.Intervals, 2)
	// Original widget order preserved, not sorted.
	assert.Equal(t, 18, sched.Intervals[0].Start.Hour())
	assert.Equal(t, 8, sched.Intervals[1].Start.Hour())
	assert.Equal(t, 2024, sched.Date.Year())
	assert.Equal(t, time.March, sched.Date.Month())
	assert.Equal(t, 1, sched.Date.Day())
}

func TestTomorrowScheduleCrossMidnightScenario(t *testing.T) {
	fake := &fakeRenderer{
		dateText: "March 1, 2024",
		entries: []string{
			"11:30pm 5:30am Demand Management GROUP K",
			"2:00pm 6:00pm Demand Management GROUP L",
		},
	}

	sched, err := newExtractor(fake).TomorrowSchedule(context.Background())
	require.NoError(t, err)

	require.Len(t, sched.Intervals, 1)
	iv := sched.Intervals[0]
	assert.Equal(t, time.Date(2024, time.March, 1, 23, 30, 0, 0, colombo).Unix(), iv.Start.Unix())
	assert.Equal(t, time.Date(2024, time.March, 2, 5, 30, 0, 0, colombo).Unix(), iv.End.Unix())
}

func TestTomorrowScheduleNavigationFailure(t *testing.T) {
	fake := &fakeRenderer{clickErr: errors.New("not clickable")}

	_, err := newExtractor(fake).TomorrowSchedule(context.Background())
	var nerr *NavigationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "click next-day control", nerr.Step)
	assert.True(t, fake.closed, "renderer must be released on failure")
}

func TestTomorrowScheduleBadDate(t *testing.T) {
	fake := &fakeRenderer{dateText: "01/03/2024"}

	_, err := newExtractor(fake).TomorrowSchedule(context.Background())
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "date", perr.Kind)
	assert.Equal(t, "01/03/2024", perr.Input)
	assert.True(t, fake.closed)
}

func TestTomorrowScheduleBadEntryAborts(t *testing.T) {
	fake := &fakeRenderer{
		dateText: "March 1, 2024",
		entries: []string{
			"8:30am 10:00am GROUP K",
			"garbage GROUP K",
		},
	}

	_, err := newExtractor(fake).TomorrowSchedule(context.Background())
	var perr *ParseError
	require.ErrorAs(t, err, &perr, "a half-parsed schedule must abort the run")
	assert.True(t, fake.closed)
}

func TestTomorrowScheduleNoMatches(t *testing.T) {
	fake := &fakeRenderer{
		dateText: "March 1, 2024",
		entries:  []string{"2:00pm 6:00pm Demand Management GROUP L"},
	}

	sched, err := newExtractor(fake).TomorrowSchedule(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sched.Intervals)
}
