package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// DefaultNavigateTimeout bounds the initial page load.
const DefaultNavigateTimeout = 30 * time.Second

// WaitTimeoutError reports that a bounded wait for a page element expired
// before the element reached the required state.
type WaitTimeoutError struct {
	Selector string
	Timeout  time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("browser: wait for %q exceeded %s", e.Selector, e.Timeout)
}

func (e *WaitTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Options defines parameters for a headless browser session.
type Options struct {
	// Headless disables the visible browser window. Defaults to true;
	// set HeadlessOff for local debugging.
	HeadlessOff bool

	// NavigateTimeout bounds Open. If zero, DefaultNavigateTimeout is used.
	NavigateTimeout time.Duration

	Logger zerolog.Logger
}

// Renderer drives a single headless Chromium session. All wait-style
// methods block until their condition holds or the given bound expires,
// in which case they fail with *WaitTimeoutError.
//
// A Renderer is not safe for concurrent use. Close must be called on
// every exit path; it is safe to call more than once.
type Renderer struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
	log         zerolog.Logger
	navTimeout  time.Duration
}

// New launches a Chromium instance under parentCtx. Cancelling parentCtx
// tears the browser down along with everything else.
func New(parentCtx context.Context, opts Options) *Renderer {
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = DefaultNavigateTimeout
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if opts.HeadlessOff {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	return &Renderer{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		log:         opts.Logger,
		navTimeout:  opts.NavigateTimeout,
	}
}

// Open navigates the session to url and waits for the document to load.
func (r *Renderer) Open(url string) error {
	ctx, cancel := context.WithTimeout(r.ctx, r.navTimeout)
	defer cancel()

	r.log.Debug().Str("url", url).Msg("navigating")
	if err := chromedp.Run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

// ClickWhenReady waits until the element matching selector is visible and
// enabled, then clicks it.
func (r *Renderer) ClickWhenReady(selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()

	tasks := chromedp.Tasks{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.WaitEnabled(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return wrapWait(err, selector, timeout)
	}
	return nil
}

// Texts waits until at least one element matches selector, then returns the
// text content of every match in document order.
func (r *Renderer) Texts(selector string, timeout time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()

	expr := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(n => n.textContent)`,
		selector,
	)

	var texts []string
	tasks := chromedp.Tasks{
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Evaluate(expr, &texts),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, wrapWait(err, selector, timeout)
	}

	for i, t := range texts {
		texts[i] = strings.TrimSpace(t)
	}
	return texts, nil
}

// Text waits for the element matching selector to become visible and
// returns its text content.
func (r *Renderer) Text(selector string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()

	var text string
	tasks := chromedp.Tasks{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Text(selector, &text, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", wrapWait(err, selector, timeout)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the browser process. Safe to call multiple times and on
// any exit path.
func (r *Renderer) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		r.allocCancel()
	})
	return nil
}

// wrapWait converts a deadline expiry into WaitTimeoutError so callers can
// distinguish "element never showed up" from protocol failures.
func wrapWait(err error, selector string, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &WaitTimeoutError{Selector: selector, Timeout: timeout}
	}
	return fmt.Errorf("browser: %q: %w", selector, err)
}
