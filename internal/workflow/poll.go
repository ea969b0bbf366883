package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// ErrTerminalState stops a poll early. A check returns it (wrapped) when the
// resource reached a state it will not leave on its own.
var ErrTerminalState = errors.New("resource reached a terminal state")

// PollTimeoutMessage is reported when the attempts are exhausted.
const PollTimeoutMessage = "Operation did not complete in the allotted time"

// CheckFunc reports whether the awaited condition holds.
type CheckFunc func(ctx context.Context) (bool, error)

// PollOutcome describes how a poll ended.
type PollOutcome struct {
	Completed bool
	Attempts  int
	// Err is the terminal-state error or the context error that ended the
	// poll early. It is nil when the attempts were simply exhausted.
	Err error
}

// Message summarises the outcome for a workflow result.
func (o PollOutcome) Message() string {
	switch {
	case o.Completed:
		return fmt.Sprintf("Operation completed after %d attempts", o.Attempts)
	case o.Err != nil:
		return o.Err.Error()
	default:
		return PollTimeoutMessage
	}
}

// PollUntil runs check immediately and then once per interval until it
// reports true, returns ErrTerminalState, the context ends or maxAttempts
// checks have been made. Other check errors are logged and retried. A
// non-positive interval falls back to the default poll interval.
func PollUntil(ctx context.Context, check CheckFunc, maxAttempts int, interval time.Duration, logger oic.Logger) PollOutcome {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if interval <= 0 {
		interval = constants.DefaultPollInterval
	}

	if logger == nil {
		logger = oic.NoopLogger{}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var outcome PollOutcome

	for {
		outcome.Attempts++

		done, err := check(ctx)

		switch {
		case errors.Is(err, ErrTerminalState):
			outcome.Err = err

			return outcome
		case err != nil:
			logger.Warn("status check failed", map[string]interface{}{
				"attempt": outcome.Attempts,
				"error":   err.Error(),
			})
		case done:
			outcome.Completed = true

			return outcome
		}

		if outcome.Attempts >= maxAttempts {
			return outcome
		}

		select {
		case <-ctx.Done():
			outcome.Err = fmt.Errorf("polling cancelled: %w", ctx.Err())

			return outcome
		case <-ticker.C:
		}
	}
}

// statusCheck waits for an integration to report want. ERROR is terminal
// unless it is the awaited status.
func statusCheck(gateway oic.IntegrationsGateway, id, want string, last *string) CheckFunc {
	return func(ctx context.Context) (bool, error) {
		obj, err := gateway.Get(ctx, id)
		if err != nil {
			return false, err
		}

		status := obj.StringOr("status", constants.StatusUnknown)
		if last != nil {
			*last = status
		}

		if status == want {
			return true, nil
		}

		if status == constants.StatusError {
			return false, fmt.Errorf("%w: integration %s is in status %s", ErrTerminalState, id, status)
		}

		return false, nil
	}
}

// waitForStatus polls id until it reaches want with the engine's budget and
// returns the outcome with the last observed status.
func (e *engine) waitForStatus(ctx context.Context, id, want string) (PollOutcome, string) {
	last := constants.StatusUnknown

	outcome := PollUntil(ctx, statusCheck(e.api().Integrations(), id, want, &last),
		e.deps.PollAttempts, e.deps.PollInterval, e.logger)

	return outcome, last
}

// pause waits d or until ctx ends.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
