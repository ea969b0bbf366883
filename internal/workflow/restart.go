package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
)

// Static errors for err113 compliance.
var (
	ErrDeactivationUnverified = errors.New("deactivation verification failed")
	ErrActivationUnverified   = errors.New("activation verification failed")
)

const scheduledIntegrationType = "SCHEDULED"

// restartPolicy controls the wait between a state change and its check.
type restartPolicy struct {
	// Sequential waits after each state change before moving on.
	Sequential bool
	// Verify polls for the expected status after each wait.
	Verify bool
	Wait   time.Duration
}

// restartTarget is an integration about to be restarted.
type restartTarget struct {
	ID              string
	Name            string
	Status          string
	IntegrationType string
}

// restartIntegration walks one integration through ACTIVATED, CONFIGURED,
// ACTIVATED. An integration that is not active is only activated. Scheduled
// integrations get their schedule resumed after activation.
func (e *engine) restartIntegration(ctx context.Context, target restartTarget, policy restartPolicy) error {
	gateway := e.api().Integrations()
	fields := map[string]interface{}{"integration": target.ID, "name": target.Name}

	if target.Status == constants.StatusActivated {
		e.logger.Info("deactivating integration", fields)

		_, err := gateway.Deactivate(ctx, target.ID, false)
		if err != nil {
			return fmt.Errorf("deactivation failed: %w", err)
		}

		err = e.settle(ctx, target.ID, constants.StatusConfigured, policy, ErrDeactivationUnverified)
		if err != nil {
			return err
		}
	}

	e.logger.Info("activating integration", fields)

	_, err := gateway.Activate(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("activation failed: %w", err)
	}

	err = e.settle(ctx, target.ID, constants.StatusActivated, policy, ErrActivationUnverified)
	if err != nil {
		return err
	}

	if target.IntegrationType == scheduledIntegrationType {
		_, err = gateway.ResumeSchedule(ctx, target.ID)
		if err != nil {
			e.logger.Warn("failed to resume schedule after restart", map[string]interface{}{
				"integration": target.ID,
				"error":       err.Error(),
			})
		}
	}

	return nil
}

// settle applies the policy after a state change.
func (e *engine) settle(ctx context.Context, id, want string, policy restartPolicy, unverified error) error {
	if !policy.Sequential {
		return nil
	}

	err := pause(ctx, policy.Wait)
	if err != nil {
		return err
	}

	if !policy.Verify {
		return nil
	}

	outcome, last := e.waitForStatus(ctx, id, want)
	if outcome.Completed {
		return nil
	}

	if outcome.Err != nil {
		return fmt.Errorf("%w, status: %s: %w", unverified, last, outcome.Err)
	}

	return fmt.Errorf("%w, status: %s", unverified, last)
}
