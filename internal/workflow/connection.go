package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Connection operations.
const (
	OpUpdateCredentials           Operation = "update_credentials"
	OpTestConnections             Operation = "test_connections"
	OpFindDependents              Operation = "find_dependents"
	OpUpdateCredentialsAndRestart Operation = "update_credentials_and_restart"
)

// ErrConnectionTestFailed reports a connection test that did not succeed.
var ErrConnectionTestFailed = errors.New("connection test failed")

// Restart scopes of UpdateCredentialsAndRestart.
const (
	RestartAll    = "all"
	RestartActive = "active"
	RestartNone   = "none"
)

// kindRestarted groups the per-integration restart outcomes in a result.
const kindRestarted oic.ResourceKind = "restarted_integration"

// credentialSections are searched in order for the keys being updated.
var credentialSections = []string{"securityProperties", "connectionProperties", "properties"}

// UpdateCredentials replaces credential values of one connection.
type UpdateCredentials struct {
	ConnectionID string
	Credentials  map[string]interface{}
	// Test runs the connection test after the update.
	Test bool
}

// Operation implements Command.
func (UpdateCredentials) Operation() Operation { return OpUpdateCredentials }

// TestConnections tests every connection matching Query.
type TestConnections struct {
	Query           string
	ContinueOnError bool
}

// Operation implements Command.
func (TestConnections) Operation() Operation { return OpTestConnections }

// FindDependents lists the integrations using a connection.
type FindDependents struct {
	ConnectionID string
	ActiveOnly   bool
}

// Operation implements Command.
func (FindDependents) Operation() Operation { return OpFindDependents }

// UpdateCredentialsAndRestart rotates credentials and restarts the
// integrations that use the connection.
type UpdateCredentialsAndRestart struct {
	ConnectionID  string
	Credentials   map[string]interface{}
	RestartScope  string
	Sequential    bool
	VerifyRestart bool
	Wait          time.Duration
}

// Operation implements Command.
func (UpdateCredentialsAndRestart) Operation() Operation { return OpUpdateCredentialsAndRestart }

// ConnectionEngine manages connection credentials and health.
type ConnectionEngine struct {
	engine
}

// NewConnectionEngine creates a connection engine.
func NewConnectionEngine(deps Deps) *ConnectionEngine {
	return &ConnectionEngine{engine: newEngine(FamilyConnection, deps)}
}

// Execute implements Engine.
func (e *ConnectionEngine) Execute(ctx context.Context, cmd Command) *oic.WorkflowResult {
	switch c := cmd.(type) {
	case UpdateCredentials:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.updateCredentials(ctx, c) })
	case TestConnections:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.testConnections(ctx, c) })
	case FindDependents:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.findDependents(ctx, c) })
	case UpdateCredentialsAndRestart:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.updateAndRestart(ctx, c) })
	default:
		return e.unknown(cmd)
	}
}

// applyCredentials writes every credential whose key already exists in one
// of the property sections or at the top level. It reports whether anything
// changed.
func applyCredentials(connection oic.Object, credentials map[string]interface{}) bool {
	updated := false

	for _, section := range credentialSections {
		props := connection.Map(section)
		if props == nil {
			continue
		}

		for key, value := range credentials {
			if props.Has(key) {
				props[key] = value
				updated = true
			}
		}
	}

	for key, value := range credentials {
		if connection.Has(key) {
			connection[key] = value
			updated = true
		}
	}

	return updated
}

// testPassed reads the outcome of a connection test.
func testPassed(test oic.Object) bool {
	return test.String("status") == constants.StatusSuccess || test.String("state") == constants.StatusSuccess
}

func (e *ConnectionEngine) updateCredentials(ctx context.Context, cmd UpdateCredentials) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Updating credentials for connection " + cmd.ConnectionID)
	gateway := e.api().Connections()

	current, err := gateway.Get(ctx, cmd.ConnectionID)
	if err != nil {
		result.AddError("Failed to get connection "+cmd.ConnectionID, err, cmd.ConnectionID)

		return result
	}

	result.AddResource(oic.KindConnection, cmd.ConnectionID, oic.Object{"name": nameOf(current)})

	connection := current.Clone()
	if !applyCredentials(connection, cmd.Credentials) {
		result.AddError("No credential fields were updated. Available fields didn't match provided credentials", nil, cmd.ConnectionID)

		return result
	}

	_, err = gateway.Update(ctx, cmd.ConnectionID, connection)
	if err != nil {
		result.AddError("Failed to update connection "+cmd.ConnectionID, err, cmd.ConnectionID)

		return result
	}

	result.SetDetail("update_result", map[string]interface{}{"status": "success"})

	if cmd.Test {
		test, err := gateway.Test(ctx, cmd.ConnectionID)

		switch {
		case err != nil:
			result.Fail("Credentials updated but test failed")
			result.AddError("Failed to test connection", err, cmd.ConnectionID)
			result.SetDetail("test_result", map[string]interface{}{"status": "error", "message": err.Error()})
		case testPassed(test):
			result.SetDetail("test_result", map[string]interface{}{"status": "success"})
		default:
			message := test.StringOr("message", "Unknown test failure")
			result.Fail("Credentials updated but test failed: " + message)
			result.AddError("Connection test failed", nil, cmd.ConnectionID)
			result.SetDetail("test_result", map[string]interface{}{"status": "failure", "message": message})
		}
	}

	if result.Success {
		result.Message = "Successfully updated credentials for connection " + cmd.ConnectionID
		if cmd.Test {
			result.Message += " and verified connection is working"
		}
	}

	return result
}

func (e *ConnectionEngine) testConnections(ctx context.Context, cmd TestConnections) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Testing connections")
	gateway := e.api().Connections()

	connections, err := gateway.ListAll(ctx, listParams(cmd.Query))
	if err != nil {
		result.AddError("Failed to get connections list", err, "")

		return result
	}

	if len(connections) == 0 {
		result.Message = "No connections found to test"

		return result
	}

	result.SetDetail("connection_count", len(connections))

	var (
		passed int
		failed []map[string]interface{}
	)

	shared := oic.NewSafeResult(result)
	tasks := make([]oic.BatchTask, 0, len(connections))

	for _, connection := range connections {
		id, name := connection.ID(), nameOf(connection)
		if id == "" {
			e.logger.Warn("skipping connection without id", map[string]interface{}{"name": name})

			continue
		}

		tasks = append(tasks, oic.BatchTask{
			ID: id,
			Run: func(ctx context.Context, shared *oic.SafeResult) error {
				test, err := gateway.Test(ctx, id)

				outcome, message := "success", ""

				switch {
				case err != nil:
					outcome, message = "error", err.Error()
				case !testPassed(test):
					outcome, message = "failure", test.StringOr("message", "Unknown test failure")
				}

				e.resourceDone(oic.KindConnection, outcome == "success")

				shared.Update(func(r *oic.WorkflowResult) {
					if outcome == "success" {
						passed++
						r.AddResource(oic.KindConnection, id, oic.Object{"name": name, "test_result": outcome})

						return
					}

					failed = append(failed, map[string]interface{}{"id": id, "name": name, "error": message})
					r.AddResource(oic.KindConnection, id, oic.Object{"name": name, "test_result": outcome, "error": message})
					r.AddError(fmt.Sprintf("Connection test failed for %s: %s", name, message), err, id)

					if !cmd.ContinueOnError {
						r.Fail("Connection test failed for " + name)
					}
				})

				if outcome == "success" {
					return nil
				}

				return fmt.Errorf("%w: %s: %s", ErrConnectionTestFailed, id, message)
			},
		})
	}

	e.executor(cmd.ContinueOnError).Execute(ctx, tasks, shared)

	result = shared.Result()

	if cmd.ContinueOnError || len(failed) == 0 {
		if len(failed) == 0 {
			result.Message = fmt.Sprintf("All %d connections tested successfully", passed)
		} else {
			result.Fail(fmt.Sprintf("%d connections tested successfully, %d failed", passed, len(failed)))
		}
	}

	result.SetDetail("success_count", passed)
	result.SetDetail("failed_count", len(failed))
	result.SetDetail("failed_connections", failed)

	return result
}

func (e *ConnectionEngine) findDependents(ctx context.Context, cmd FindDependents) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Finding integrations dependent on connection " + cmd.ConnectionID)

	connection, err := e.api().Connections().Get(ctx, cmd.ConnectionID)
	if err != nil {
		result.AddError("Failed to get connection "+cmd.ConnectionID, err, cmd.ConnectionID)

		return result
	}

	name := nameOf(connection)
	result.AddResource(oic.KindConnection, cmd.ConnectionID, oic.Object{"name": name})
	result.SetDetail("connection_name", name)

	var params url.Values
	if cmd.ActiveOnly {
		params = url.Values{constants.QueryStatus: {constants.StatusActivated}}
	}

	dependents, failures, err := NewResolver(e.api().Integrations(), e.logger).Dependents(ctx, cmd.ConnectionID, params)
	if err != nil {
		result.AddError("Failed to get integrations list", err, "")

		return result
	}

	for _, dep := range dependents {
		result.AddResource(oic.KindIntegration, dep.ID, oic.Object{
			"name":    dep.Name,
			"status":  dep.Status,
			"pattern": dep.Pattern,
			"type":    dep.IntegrationType,
		})
	}

	if len(failures) > 0 {
		skipped := make([]string, 0, len(failures))
		for id := range failures {
			skipped = append(skipped, id)
		}

		result.SetDetail("skipped_integrations", skipped)
	}

	if len(dependents) == 0 {
		result.Message = "No integrations found that depend on connection " + name
	} else {
		result.Message = fmt.Sprintf("Found %d integrations that depend on connection %s", len(dependents), name)
	}

	if dependents == nil {
		dependents = []Dependent{}
	}

	result.SetDetail("dependent_count", len(dependents))
	result.SetDetail("dependent_integrations", dependents)

	return result
}

func (e *ConnectionEngine) updateAndRestart(ctx context.Context, cmd UpdateCredentialsAndRestart) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Updating credentials and restarting integrations for connection " + cmd.ConnectionID)

	scope := cmd.RestartScope
	if scope == "" {
		scope = RestartAll
	}

	update := e.updateCredentials(ctx, UpdateCredentials{
		ConnectionID: cmd.ConnectionID,
		Credentials:  cmd.Credentials,
		Test:         true,
	})
	result.Merge(update)

	if !update.Success {
		result.Message = "Failed to update credentials, integrations not restarted"

		return result
	}

	name := "Unknown"
	if attrs, ok := update.Resources[oic.KindConnection][cmd.ConnectionID]; ok {
		name = attrs.StringOr("name", name)
	}

	if scope == RestartNone {
		result.Message = fmt.Sprintf("Successfully updated credentials for connection %s, no integrations restarted", name)

		return result
	}

	dependents := e.findDependents(ctx, FindDependents{ConnectionID: cmd.ConnectionID, ActiveOnly: scope == RestartActive})
	result.Merge(dependents)

	if !dependents.Success {
		e.logger.Warn("error finding dependent integrations, continuing", map[string]interface{}{
			"connection": cmd.ConnectionID,
		})
	}

	found, _ := dependents.Details["dependent_integrations"].([]Dependent)

	targets := make([]restartTarget, 0, len(found))

	for _, dep := range found {
		if scope == RestartActive && dep.Status != constants.StatusActivated {
			continue
		}

		targets = append(targets, restartTarget{
			ID:              dep.ID,
			Name:            dep.Name,
			Status:          dep.Status,
			IntegrationType: dep.IntegrationType,
		})
	}

	if len(targets) == 0 {
		result.Message = fmt.Sprintf("Successfully updated credentials for connection %s, no integrations to restart", name)

		return result
	}

	restarts := e.restartAll(ctx, result, targets, restartPolicy{
		Sequential: cmd.Sequential,
		Verify:     cmd.VerifyRestart,
		Wait:       cmd.Wait,
	})
	result.SetDetail("restart_results", restarts)

	if restarts.FailedCount > 0 {
		result.Fail(fmt.Sprintf("Updated credentials for connection %s, but %d of %d integration restarts failed",
			name, restarts.FailedCount, len(targets)))
	} else {
		result.Message = fmt.Sprintf("Successfully updated credentials for connection %s and restarted %d integrations",
			name, restarts.SuccessfulCount)
	}

	return result
}

// restartSummary is the restart_results detail.
type restartSummary struct {
	SuccessfulCount int                      `json:"successful_count"    yaml:"successful_count"`
	FailedCount     int                      `json:"failed_count"        yaml:"failed_count"`
	Successful      []map[string]interface{} `json:"successful_restarts" yaml:"successful_restarts"`
	Failed          []map[string]interface{} `json:"failed_restarts"     yaml:"failed_restarts"`
}

// restartAll restarts every target. Sequential restarts run one at a time;
// otherwise they share the engine's worker pool. Every failure is recorded
// and the remaining targets are still attempted.
func (e *engine) restartAll(ctx context.Context, result *oic.WorkflowResult, targets []restartTarget, policy restartPolicy) restartSummary {
	summary := restartSummary{
		Successful: []map[string]interface{}{},
		Failed:     []map[string]interface{}{},
	}

	shared := oic.NewSafeResult(result)
	tasks := make([]oic.BatchTask, 0, len(targets))

	for _, target := range targets {
		tasks = append(tasks, oic.BatchTask{
			ID: target.ID,
			Run: func(ctx context.Context, shared *oic.SafeResult) error {
				err := e.restartIntegration(ctx, target, policy)
				e.resourceDone(oic.KindIntegration, err == nil)

				shared.Update(func(r *oic.WorkflowResult) {
					if err == nil {
						summary.SuccessfulCount++
						summary.Successful = append(summary.Successful, map[string]interface{}{"id": target.ID, "name": target.Name})
						r.AddResource(kindRestarted, target.ID, oic.Object{"name": target.Name, "result": "success"})

						return
					}

					summary.FailedCount++
					summary.Failed = append(summary.Failed, map[string]interface{}{"id": target.ID, "name": target.Name, "error": err.Error()})
					r.AddResource(kindRestarted, target.ID, oic.Object{"name": target.Name, "result": "failure", "error": err.Error()})
					r.AddError("Failed to restart integration "+target.Name, err, target.ID)
				})

				return err
			},
		})
	}

	executor := e.executor(true)
	if policy.Sequential {
		executor = oic.NewBatchExecutor(1)
	}

	executor.Execute(ctx, tasks, shared)

	return summary
}
