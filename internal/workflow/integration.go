package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Integration operations.
const (
	OpBulkActivate       Operation = "bulk_activate"
	OpBulkDeactivate     Operation = "bulk_deactivate"
	OpManageSchedules    Operation = "manage_schedules"
	OpFindDependencies   Operation = "find_dependencies"
	OpRestartIntegration Operation = "restart_integration"
	OpTraceInstances     Operation = "trace_instances"
)

// Schedule actions of ManageSchedules.
const (
	ScheduleEnable  = "enable"
	ScheduleDisable = "disable"
	ScheduleUpdate  = "update"
)

// ErrNoSchedule marks an integration without a schedule section.
var ErrNoSchedule = errors.New("no schedule field in integration")

// BulkActivate activates the integrations named by IDs, or every configured
// integration matching Query when IDs is empty.
type BulkActivate struct {
	IDs             []string
	Query           string
	ContinueOnError bool
	Verify          bool
	Sequential      bool
	Wait            time.Duration
}

// Operation implements Command.
func (BulkActivate) Operation() Operation { return OpBulkActivate }

// BulkDeactivate deactivates the integrations named by IDs, or every active
// integration matching Query when IDs is empty.
type BulkDeactivate struct {
	IDs             []string
	Query           string
	ContinueOnError bool
	Verify          bool
	Sequential      bool
	Wait            time.Duration
}

// Operation implements Command.
func (BulkDeactivate) Operation() Operation { return OpBulkDeactivate }

// ManageSchedules enables, disables or updates the schedule of scheduled
// integrations.
type ManageSchedules struct {
	Action          string
	IDs             []string
	Query           string
	ScheduleData    oic.Object
	ContinueOnError bool
}

// Operation implements Command.
func (ManageSchedules) Operation() Operation { return OpManageSchedules }

// FindDependencies lists what one integration references.
type FindDependencies struct {
	ID string
}

// Operation implements Command.
func (FindDependencies) Operation() Operation { return OpFindDependencies }

// RestartIntegration deactivates and reactivates one integration.
type RestartIntegration struct {
	ID     string
	Verify bool
	Wait   time.Duration
}

// Operation implements Command.
func (RestartIntegration) Operation() Operation { return OpRestartIntegration }

// TraceInstances collects run instances, optionally with their activities
// and payloads. InstanceID takes precedence over every filter.
type TraceInstances struct {
	IntegrationID     string
	InstanceID        string
	Status            string
	Start             time.Time
	End               time.Time
	IncludeActivities bool
	IncludePayloads   bool
	MaxInstances      int
}

// Operation implements Command.
func (TraceInstances) Operation() Operation { return OpTraceInstances }

// IntegrationEngine runs lifecycle operations on integrations.
type IntegrationEngine struct {
	engine
}

// NewIntegrationEngine creates an integration engine.
func NewIntegrationEngine(deps Deps) *IntegrationEngine {
	return &IntegrationEngine{engine: newEngine(FamilyIntegration, deps)}
}

// Execute implements Engine.
func (e *IntegrationEngine) Execute(ctx context.Context, cmd Command) *oic.WorkflowResult {
	switch c := cmd.(type) {
	case BulkActivate:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult {
			return e.bulk(ctx, activation, bulkRequest{c.IDs, c.Query, c.ContinueOnError, restartPolicy{c.Sequential, c.Verify, c.Wait}})
		})
	case BulkDeactivate:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult {
			return e.bulk(ctx, deactivation, bulkRequest{c.IDs, c.Query, c.ContinueOnError, restartPolicy{c.Sequential, c.Verify, c.Wait}})
		})
	case ManageSchedules:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.manageSchedules(ctx, c) })
	case FindDependencies:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.findDependencies(ctx, c) })
	case RestartIntegration:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.restart(ctx, c) })
	case TraceInstances:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.trace(ctx, c) })
	default:
		return e.unknown(cmd)
	}
}

// lifecycle describes one direction of the ACTIVATED/CONFIGURED transition.
type lifecycle struct {
	verb     string // activate
	past     string // activated
	noun     string // activation
	from     string
	to       string
	unverify error
}

var (
	activation = lifecycle{
		verb: "activate", past: "activated", noun: "activation",
		from: constants.StatusConfigured, to: constants.StatusActivated,
		unverify: ErrActivationUnverified,
	}
	deactivation = lifecycle{
		verb: "deactivate", past: "deactivated", noun: "deactivation",
		from: constants.StatusActivated, to: constants.StatusConfigured,
		unverify: ErrDeactivationUnverified,
	}
)

type bulkRequest struct {
	IDs             []string
	Query           string
	ContinueOnError bool
	Policy          restartPolicy
}

// resolveTargets returns the integrations named by ids, or those listed with
// query and status when ids is empty. It returns false when the workflow
// must stop.
func (e *IntegrationEngine) resolveTargets(ctx context.Context, result *oic.WorkflowResult, ids []string, query, status string, continueOnError bool) ([]oic.Object, bool) {
	gateway := e.api().Integrations()

	if len(ids) == 0 {
		params := listParams(query)
		if status != "" {
			params.Set(constants.QueryStatus, status)
		}

		targets, err := gateway.ListAll(ctx, params)
		if err != nil {
			result.AddError("Failed to get integrations list", err, "")

			return nil, false
		}

		return targets, true
	}

	targets, failures := targetsFromIDs(ctx, gateway, ids)

	for _, id := range ids {
		err, failed := failures[id]
		if !failed {
			continue
		}

		result.AddError("Failed to get integration "+id, err, id)

		if !continueOnError {
			return nil, false
		}
	}

	return targets, true
}

func (e *IntegrationEngine) bulk(ctx context.Context, lc lifecycle, req bulkRequest) *oic.WorkflowResult {
	result := oic.NewWorkflowResult(fmt.Sprintf("%sing integrations", strings.TrimSuffix(cases.Title(language.English).String(lc.verb), "e")))

	targets, ok := e.resolveTargets(ctx, result, req.IDs, req.Query, lc.from, req.ContinueOnError)
	if !ok {
		return result
	}

	if len(targets) == 0 {
		result.Message = fmt.Sprintf("No integrations found to %s", lc.verb)

		return result
	}

	result.SetDetail("total_count", len(targets))

	var (
		succeeded = []map[string]interface{}{}
		failed    = []map[string]interface{}{}
		skipped   int
		aborted   bool
	)

	gateway := e.api().Integrations()
	shared := oic.NewSafeResult(result)
	tasks := make([]oic.BatchTask, 0, len(targets))

	for _, target := range targets {
		id, name, status := idOf(target), nameOf(target), target.StringOr("status", constants.StatusUnknown)

		if status == lc.to {
			skipped++

			result.AddResource(oic.KindIntegration, id, oic.Object{
				"name":            name,
				"status":          status,
				lc.noun + "_result": "already_" + lc.past,
			})

			continue
		}

		tasks = append(tasks, oic.BatchTask{
			ID: id,
			Run: func(ctx context.Context, shared *oic.SafeResult) error {
				var err error
				if lc.to == constants.StatusActivated {
					_, err = gateway.Activate(ctx, id)
				} else {
					_, err = gateway.Deactivate(ctx, id, false)
				}

				acted := err == nil
				if err == nil {
					err = e.settle(ctx, id, lc.to, req.Policy, lc.unverify)
				}

				e.resourceDone(oic.KindIntegration, err == nil)

				shared.Update(func(r *oic.WorkflowResult) {
					if err == nil {
						succeeded = append(succeeded, map[string]interface{}{"id": id, "name": name, "status": lc.to})
						r.AddResource(oic.KindIntegration, id, oic.Object{"name": name, "status": lc.to, lc.noun + "_result": "success"})

						return
					}

					failed = append(failed, map[string]interface{}{"id": id, "name": name, "error": err.Error()})
					r.AddResource(oic.KindIntegration, id, oic.Object{"name": name, "status": status, lc.noun + "_result": "failure", "error": err.Error()})

					message := fmt.Sprintf("Failed to %s integration %s", lc.verb, name)
					if acted {
						message = fmt.Sprintf("%s verification failed for %s", cases.Title(language.English).String(lc.noun), name)
					}

					r.AddError(message, err, id)

					if !req.ContinueOnError && !aborted {
						aborted = true
						r.Fail(message)
					}
				})

				return err
			},
		})
	}

	executor := e.executor(req.ContinueOnError)
	if req.Policy.Sequential {
		executor = oic.NewBatchExecutor(1).SetStopOnFailure(!req.ContinueOnError)
	}

	executor.Execute(ctx, tasks, shared)

	result = shared.Result()
	result.SetDetail("successful_count", len(succeeded))
	result.SetDetail("failed_count", len(failed))
	result.SetDetail("skipped_count", skipped)
	result.SetDetail("successful_"+lc.noun+"s", succeeded)
	result.SetDetail("failed_"+lc.noun+"s", failed)

	switch {
	case aborted:
	case len(failed) > 0:
		result.Fail(fmt.Sprintf("%s %d integrations, %d failed", cases.Title(language.English).String(lc.past), len(succeeded), len(failed)))
	default:
		result.Message = fmt.Sprintf("Successfully %s %d integrations", lc.past, len(succeeded))
	}

	return result
}

func (e *IntegrationEngine) manageSchedules(ctx context.Context, cmd ManageSchedules) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Managing integration schedules: " + cmd.Action)

	switch cmd.Action {
	case ScheduleEnable, ScheduleDisable:
	case ScheduleUpdate:
		if len(cmd.ScheduleData) == 0 {
			result.Fail("Schedule data is required for update action")
			result.AddError("Missing schedule data for update action", nil, "")

			return result
		}
	default:
		result.Fail(fmt.Sprintf("Invalid action: %s. Must be one of: enable, disable, update", cmd.Action))
		result.AddError("Invalid schedule action: "+cmd.Action, nil, "")

		return result
	}

	gateway := e.api().Integrations()

	var candidates []oic.Object

	if len(cmd.IDs) > 0 {
		targets, ok := e.resolveTargets(ctx, result, cmd.IDs, "", "", cmd.ContinueOnError)
		if !ok {
			return result
		}

		candidates = targets
	} else {
		params := listParams(cmd.Query)
		params.Set("integrationType", scheduledIntegrationType)

		listed, err := gateway.ListAll(ctx, params)
		if err != nil {
			result.AddError("Failed to get integrations list", err, "")

			return result
		}

		for _, summary := range listed {
			detail, err := gateway.Get(ctx, idOf(summary))
			if err != nil {
				e.logger.Warn("skipping integration without details", map[string]interface{}{
					"integration": idOf(summary),
					"error":       err.Error(),
				})

				continue
			}

			candidates = append(candidates, detail)
		}
	}

	var scheduled []oic.Object

	for _, candidate := range candidates {
		if candidate.String("integrationType") != scheduledIntegrationType {
			e.logger.Warn("integration is not scheduled, skipping", map[string]interface{}{
				"integration": idOf(candidate),
				"type":        candidate.String("integrationType"),
			})

			continue
		}

		scheduled = append(scheduled, candidate)
	}

	if len(scheduled) == 0 {
		result.Message = "No scheduled integrations found to manage"

		return result
	}

	var succeeded, failed []map[string]interface{}

	for _, integration := range scheduled {
		id, name := idOf(integration), nameOf(integration)

		updated, err := e.applySchedule(ctx, gateway, integration, cmd)
		e.resourceDone(oic.KindIntegration, err == nil)

		if err != nil {
			failed = append(failed, map[string]interface{}{"id": id, "name": name, "error": err.Error()})
			result.AddResource(oic.KindIntegration, id, oic.Object{"name": name, "schedule_action": cmd.Action, "result": "failure", "error": err.Error()})
			result.AddError(fmt.Sprintf("Failed to %s schedule", cmd.Action), err, id)

			if !cmd.ContinueOnError {
				result.Fail(fmt.Sprintf("Failed to %s schedule for integration %s", cmd.Action, name))

				break
			}

			continue
		}

		succeeded = append(succeeded, map[string]interface{}{"id": id, "name": name})
		result.AddResource(oic.KindIntegration, id, oic.Object{
			"name":            name,
			"schedule_action": cmd.Action,
			"result":          "success",
			"schedule":        updated.Map("schedule"),
		})
	}

	result.SetDetail("successful_count", len(succeeded))
	result.SetDetail("failed_count", len(failed))
	result.SetDetail("successful_operations", succeeded)
	result.SetDetail("failed_operations", failed)

	past := strings.TrimSuffix(cmd.Action, "e") + "ed"

	switch {
	case len(failed) > 0 && !cmd.ContinueOnError:
	case len(failed) > 0:
		result.Fail(fmt.Sprintf("%s schedules for %d integrations, %d failed", cases.Title(language.English).String(past), len(succeeded), len(failed)))
	default:
		result.Message = fmt.Sprintf("Successfully %s schedules for %d integrations", past, len(succeeded))
	}

	return result
}

// applySchedule rewrites the schedule section of integration and saves it.
func (e *IntegrationEngine) applySchedule(ctx context.Context, gateway oic.IntegrationsGateway, integration oic.Object, cmd ManageSchedules) (oic.Object, error) {
	detail := integration.Clone()

	schedule := detail.Map("schedule")
	if schedule == nil {
		return nil, fmt.Errorf("%w %s", ErrNoSchedule, nameOf(integration))
	}

	switch cmd.Action {
	case ScheduleEnable:
		schedule["enabled"] = true
	case ScheduleDisable:
		schedule["enabled"] = false
	case ScheduleUpdate:
		for key, value := range cmd.ScheduleData {
			schedule[key] = value
		}
	}

	updated, err := gateway.Update(ctx, idOf(integration), detail)
	if err != nil {
		return nil, fmt.Errorf("updating schedule: %w", err)
	}

	if updated.Map("schedule") == nil {
		updated = detail
	}

	return updated, nil
}

func (e *IntegrationEngine) findDependencies(ctx context.Context, cmd FindDependencies) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Finding dependencies for integration " + cmd.ID)

	integration, deps, err := NewResolver(e.api().Integrations(), e.logger).Find(ctx, cmd.ID)
	if err != nil {
		result.AddError("Failed to get integration "+cmd.ID, err, cmd.ID)

		return result
	}

	name := nameOf(integration)
	result.AddResource(oic.KindIntegration, cmd.ID, oic.Object{"name": name})
	result.SetDetail("integration_name", name)

	for _, refs := range [][]oic.ResourceRef{deps.Connections, deps.Lookups, deps.Libraries} {
		for _, ref := range refs {
			result.AddResource(ref.Kind, ref.ID, oic.Object{"name": ref.Name, "type": strings.ToUpper(string(ref.Kind))})
		}
	}

	counts := deps.Counts()
	result.SetDetail("dependencies", deps)
	result.SetDetail("dependency_counts", counts)

	if deps.Total() == 0 {
		result.Message = "No dependencies found for integration " + name

		return result
	}

	var parts []string

	for _, kind := range []oic.ResourceKind{oic.KindConnection, oic.KindLookup, oic.KindLibrary} {
		if n := counts[kind.Plural()]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, kind.Plural()))
		}
	}

	result.Message = fmt.Sprintf("Found %d dependencies for integration %s: %s", deps.Total(), name, strings.Join(parts, ", "))

	return result
}

func (e *IntegrationEngine) restart(ctx context.Context, cmd RestartIntegration) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Restarting integration " + cmd.ID)
	gateway := e.api().Integrations()

	integration, err := gateway.Get(ctx, cmd.ID)
	if err != nil {
		result.AddError("Failed to get integration "+cmd.ID, err, cmd.ID)

		return result
	}

	name, status := nameOf(integration), integration.StringOr("status", constants.StatusUnknown)
	result.SetDetail("integration_name", name)
	result.SetDetail("initial_status", status)

	err = e.restartIntegration(ctx, restartTarget{
		ID:              cmd.ID,
		Name:            name,
		Status:          status,
		IntegrationType: integration.String("integrationType"),
	}, restartPolicy{Sequential: true, Verify: cmd.Verify, Wait: cmd.Wait})
	e.resourceDone(oic.KindIntegration, err == nil)

	if err != nil {
		result.Fail("Failed to restart integration " + name)
		result.AddError("Failed to restart integration", err, cmd.ID)
		result.AddResource(oic.KindIntegration, cmd.ID, oic.Object{"name": name, "result": "failure", "error": err.Error()})

		return result
	}

	final := constants.StatusActivated
	if latest, err := gateway.Get(ctx, cmd.ID); err == nil {
		final = latest.StringOr("status", final)
	}

	result.SetDetail("final_status", final)
	result.AddResource(oic.KindIntegration, cmd.ID, oic.Object{"name": name, "status": final, "result": "success"})
	result.Message = "Successfully restarted integration " + name

	return result
}

func (e *IntegrationEngine) trace(ctx context.Context, cmd TraceInstances) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("")
	monitoring := e.api().Monitoring()

	var description []string

	if cmd.IntegrationID != "" {
		description = append(description, "integration "+cmd.IntegrationID)

		if integration, err := e.api().Integrations().Get(ctx, cmd.IntegrationID); err == nil {
			result.AddResource(oic.KindIntegration, cmd.IntegrationID, oic.Object{"name": nameOf(integration)})
		}
	}

	if cmd.InstanceID != "" {
		description = []string{"instance " + cmd.InstanceID}
	}

	if cmd.Status != "" {
		description = append(description, "status "+cmd.Status)
	}

	if !cmd.Start.IsZero() {
		description = append(description, "from "+cmd.Start.Format(time.RFC3339))
	}

	if !cmd.End.IsZero() {
		description = append(description, "to "+cmd.End.Format(time.RFC3339))
	}

	result.Message = "Tracing instances for " + strings.Join(description, ", ")

	var (
		instances []oic.Object
		err       error
	)

	if cmd.InstanceID != "" {
		var instance oic.Object

		instance, err = monitoring.Instance(ctx, cmd.InstanceID)
		if err == nil {
			instances = []oic.Object{instance}
		}
	} else {
		instances, err = monitoring.ListInstances(ctx, oic.InstanceFilter{
			IntegrationID: cmd.IntegrationID,
			Status:        cmd.Status,
			StartTime:     cmd.Start,
			EndTime:       cmd.End,
			Limit:         cmd.MaxInstances,
		})
		if cmd.MaxInstances > 0 && len(instances) > cmd.MaxInstances {
			instances = instances[:cmd.MaxInstances]
		}
	}

	if err != nil {
		result.AddError("Failed to get instances", err, "")

		return result
	}

	if len(instances) == 0 {
		result.Message = "No instances found matching the criteria"

		return result
	}

	result.SetDetail("instance_count", len(instances))

	for _, instance := range instances {
		id := instance.ID()
		if id == "" {
			continue
		}

		attrs := oic.Object{
			"integrationId": instance.String("integrationId"),
			"status":        instance.String("status"),
			"startTime":     instance.String("startTime"),
			"endTime":       instance.String("endTime"),
			"message":       instance.String("message"),
		}

		if cmd.IncludeActivities {
			attrs["activities"] = e.traceActivities(ctx, monitoring, id, cmd.IncludePayloads)
		}

		result.AddResource(oic.KindInstance, id, attrs)
	}

	if len(instances) == 1 {
		only := instances[0]
		result.Message = fmt.Sprintf("Successfully traced instance %s for integration %s (status: %s)",
			only.StringOr("id", "Unknown"), only.StringOr("integrationId", "Unknown"), only.StringOr("status", "Unknown"))
	} else {
		result.Message = fmt.Sprintf("Successfully traced %d instances for %s", len(instances), strings.Join(description, ", "))
	}

	return result
}

// traceActivities reads the activities of one instance. Failures are logged
// and leave the trace without the missing parts.
func (e *IntegrationEngine) traceActivities(ctx context.Context, monitoring oic.MonitoringGateway, instanceID string, payloads bool) []oic.Object {
	activities, err := monitoring.Activities(ctx, instanceID)
	if err != nil {
		e.logger.Warn("failed to get instance activities", map[string]interface{}{
			"instance": instanceID,
			"error":    err.Error(),
		})

		return nil
	}

	traced := make([]oic.Object, 0, len(activities))

	for _, activity := range activities {
		activityID := activity.ID()
		if activityID == "" {
			continue
		}

		info := oic.Object{
			"id":           activityID,
			"activityName": activity.String("activityName"),
			"status":       activity.String("status"),
			"startTime":    activity.String("startTime"),
			"endTime":      activity.String("endTime"),
			"message":      activity.String("message"),
		}

		if payloads {
			collected := oic.Object{}

			for _, direction := range []string{"request", "response"} {
				payload, err := monitoring.Payload(ctx, instanceID, activityID, direction)
				if err != nil {
					e.logger.Warn("failed to get activity payload", map[string]interface{}{
						"activity":  activityID,
						"direction": direction,
						"error":     err.Error(),
					})

					continue
				}

				collected[direction] = payload
			}

			info["payloads"] = collected
		}

		traced = append(traced, info)
	}

	return traced
}
