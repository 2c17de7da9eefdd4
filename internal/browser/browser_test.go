package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapWaitDeadline(t *testing.T) {
	err := wrapWait(
		fmt.Errorf("run: %w", context.DeadlineExceeded),
		`button[aria-label="next"]`,
		10*time.Second,
	)

	var werr *WaitTimeoutError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, `button[aria-label="next"]`, werr.Selector)
	assert.Equal(t, 10*time.Second, werr.Timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, werr.Error(), "10s")
}

func TestWrapWaitOtherFailure(t *testing.T) {
	cause := errors.New("target crashed")
	err := wrapWait(cause, ".fc-content", time.Second)

	var werr *WaitTimeoutError
	assert.False(t, errors.As(err, &werr), "non-deadline failures are not timeouts")
	assert.ErrorIs(t, err, cause)
}
