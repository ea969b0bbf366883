package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/telemetry"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Static errors for err113 compliance.
var (
	ErrUnknownFamily    = errors.New("unknown workflow family")
	ErrUnknownOperation = errors.New("unknown workflow operation")
	ErrAPIRequired      = errors.New("workflow engine requires an API")
)

// Family names one group of workflow operations.
type Family string

const (
	FamilyBackup      Family = "backup"
	FamilyDeployment  Family = "deployment"
	FamilyConnection  Family = "connection"
	FamilyIntegration Family = "integration"
	FamilyMonitoring  Family = "monitoring"
	FamilySchedule    Family = "schedule"
	FamilyValidation  Family = "validation"
)

// Operation names one workflow within a family.
type Operation string

// Command is the typed request of one operation. Each engine accepts a closed
// set of command structs and reports any other command as unknown.
type Command interface {
	Operation() Operation
}

// Engine executes the commands of one family.
type Engine interface {
	Family() Family
	Execute(ctx context.Context, cmd Command) *oic.WorkflowResult
}

var operations = map[Family][]Operation{
	FamilyBackup: {
		OpFullBackup, OpSelectiveBackup, OpKindBackup, OpRestoreBackup, OpPruneBackups,
	},
	FamilyDeployment: {
		OpExportIntegration, OpImportIntegration, OpPromoteIntegration,
		OpExportPackage, OpImportPackage, OpCloneEnvironment,
	},
	FamilyConnection: {
		OpUpdateCredentials, OpTestConnections, OpFindDependents, OpUpdateCredentialsAndRestart,
	},
	FamilyIntegration: {
		OpBulkActivate, OpBulkDeactivate, OpManageSchedules, OpFindDependencies,
		OpRestartIntegration, OpTraceInstances,
	},
	FamilyMonitoring: {
		OpHealthCheck, OpAnalyzeErrors, OpPerformanceMetrics, OpPurgeInstances, OpGenerateReport,
	},
	FamilySchedule: {
		OpUpdateSchedules, OpExportSchedules, OpImportSchedules, OpValidateSchedules, OpListSchedules,
	},
	FamilyValidation: {
		OpValidateConnections, OpValidateIntegrations, OpBestPractices, OpNamingConventions,
	},
}

// Operations returns the operation names of family.
func Operations(family Family) []Operation {
	return append([]Operation(nil), operations[family]...)
}

// ParseOperation maps a CLI name such as "full-backup" or "full_backup" onto
// an operation of family.
func ParseOperation(family Family, name string) (Operation, error) {
	ops, ok := operations[family]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}

	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")

	for _, op := range ops {
		if string(op) == normalized {
			return op, nil
		}
	}

	return "", fmt.Errorf("%w: %s %s", ErrUnknownOperation, family, name)
}

// New creates the engine of family.
func New(family Family, deps Deps) (Engine, error) {
	switch family {
	case FamilyBackup:
		return NewBackupEngine(deps), nil
	case FamilyDeployment:
		return NewDeploymentEngine(deps), nil
	case FamilyConnection:
		return NewConnectionEngine(deps), nil
	case FamilyIntegration:
		return NewIntegrationEngine(deps), nil
	case FamilyMonitoring:
		return NewMonitoringEngine(deps), nil
	case FamilySchedule:
		return NewScheduleEngine(deps), nil
	case FamilyValidation:
		return NewValidationEngine(deps), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}
}

// Deps holds the collaborators shared by every engine.
type Deps struct {
	API     oic.API
	Logger  oic.Logger
	Metrics *telemetry.Metrics
	// Now is the clock used for timestamps and retention cut-offs.
	Now func() time.Time
	// Concurrency bounds per-resource work inside one workflow. One or less
	// processes resources sequentially.
	Concurrency  int
	PollInterval time.Duration
	PollAttempts int
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = oic.NoopLogger{}
	}

	if d.Now == nil {
		d.Now = time.Now
	}

	if d.Concurrency <= 0 {
		d.Concurrency = 1
	}

	if d.PollInterval <= 0 {
		d.PollInterval = constants.DefaultPollInterval
	}

	if d.PollAttempts <= 0 {
		d.PollAttempts = constants.DefaultPollAttempts
	}

	return d
}

// engine carries what every family shares: the dependencies, the run
// wrapper and the unknown-command result.
type engine struct {
	family Family
	deps   Deps
	logger oic.Logger
}

func newEngine(family Family, deps Deps) engine {
	deps = deps.withDefaults()

	return engine{family: family, deps: deps, logger: deps.Logger}
}

// Family implements Engine.
func (e *engine) Family() Family {
	return e.family
}

func (e *engine) api() oic.API {
	return e.deps.API
}

// run wraps one handler with logging and metrics. A nil result from the
// handler is reported as a failure.
func (e *engine) run(ctx context.Context, op Operation, handler func(ctx context.Context) *oic.WorkflowResult) *oic.WorkflowResult {
	if e.deps.API == nil {
		return oic.NewErrorResult(fmt.Sprintf("Cannot run %s workflow operation %s", e.family, op), ErrAPIRequired)
	}

	start := e.deps.Now()

	e.deps.Metrics.WorkflowStarted(string(e.family), string(op))
	e.logger.Info("workflow started", map[string]interface{}{
		"family":    e.family,
		"operation": op,
	})

	result := handler(ctx)
	if result == nil {
		result = oic.NewErrorResult(fmt.Sprintf("%s workflow operation %s returned no result", e.family, op), nil)
	}

	result.SetDetail("operation", string(op))

	duration := e.deps.Now().Sub(start)
	e.deps.Metrics.WorkflowCompleted(string(e.family), string(op), result.Success, duration)

	fields := map[string]interface{}{
		"family":    e.family,
		"operation": op,
		"success":   result.Success,
		"errors":    len(result.Errors),
		"duration":  duration.String(),
	}

	if result.Success {
		e.logger.Info("workflow finished", fields)
	} else {
		e.logger.Warn("workflow finished with failures", fields)
	}

	return result
}

func (e *engine) unknown(cmd Command) *oic.WorkflowResult {
	op := Operation("<nil>")
	if cmd != nil {
		op = cmd.Operation()
	}

	result := oic.NewWorkflowResult(fmt.Sprintf("Unknown %s workflow operation: %s", e.family, op))
	result.AddError(fmt.Sprintf("Unknown operation: %s", op), nil, "")

	return result
}

func (e *engine) resourceDone(kind oic.ResourceKind, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}

	e.deps.Metrics.ResourceProcessed(string(kind), outcome)
}

func (e *engine) executor(continueOnError bool) *oic.BatchExecutor {
	return oic.NewBatchExecutor(e.deps.Concurrency).SetStopOnFailure(!continueOnError)
}

// targetsFromIDs fetches each id for its display attributes. Fetch failures
// are returned separately so callers can apply their error policy.
func targetsFromIDs(ctx context.Context, gateway oic.Gateway, ids []string) ([]oic.Object, map[string]error) {
	targets := make([]oic.Object, 0, len(ids))
	failures := map[string]error{}

	for _, id := range ids {
		obj, err := gateway.Get(ctx, id)
		if err != nil {
			failures[id] = err

			continue
		}

		if obj.ID() == "" {
			obj = obj.Clone()
			if obj == nil {
				obj = oic.Object{}
			}

			obj["id"] = id
		}

		targets = append(targets, obj)
	}

	return targets, failures
}

func nameOf(obj oic.Object) string {
	return obj.StringOr("name", "Unknown")
}

// idOf returns the id of obj. Lookups are addressed by name and may carry no id.
func idOf(obj oic.Object) string {
	if id := obj.ID(); id != "" {
		return id
	}

	return obj.Name()
}

func listParams(query string) url.Values {
	params := url.Values{}
	if query != "" {
		params.Set(constants.QueryFilter, query)
	}

	return params
}
