package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Validation operations.
const (
	OpValidateConnections  Operation = "validate_connections"
	OpValidateIntegrations Operation = "validate_integrations"
	OpBestPractices        Operation = "best_practices"
	OpNamingConventions    Operation = "naming_conventions"
)

// Best practice scopes.
const (
	ScopeAll          = "all"
	ScopeIntegrations = "integrations"
	ScopeConnections  = "connections"
	ScopeLookups      = "lookups"
	ScopeInstance     = "instance"
)

// DefaultNamingPattern is ENV_TYPE_NAME, e.g. DEV_REST_SALESFORCE.
const DefaultNamingPattern = `^([A-Z]+)_([A-Z]+)_([A-Z0-9_]+)$`

const (
	semverPattern            = `^\d+\.\d+\.\d+$`
	consistentNamingPattern  = `^[A-Z]+_[A-Z]+_\w+$`
	environmentPrefixPattern = `^(DEV_|TEST_|PROD_|QA_)`
	maxLookupRows            = 1000
	maxLookupColumns         = 20
	instanceMessageLimit     = 10000
	messageLimitShare        = 0.8
	minDescriptiveNameLength = 10
	hoursPerDay              = 24

	kindOICInstance oic.ResourceKind = "instance"
)

var (
	semverRe            = regexp.MustCompile(semverPattern)
	consistentNamingRe  = regexp.MustCompile(consistentNamingPattern)
	environmentPrefixRe = regexp.MustCompile(environmentPrefixPattern)
	unsafeNameRe        = regexp.MustCompile(`[^A-Z0-9_]`)
)

// Static errors for err113 compliance.
var ErrInvalidPattern = errors.New("invalid naming pattern")

var commandValidator = validator.New()

// validateStruct checks the validate tags of a rule set and reports the
// first offending field.
func validateStruct(rules interface{}, sentinel error) error {
	err := commandValidator.Struct(rules)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		return fmt.Errorf("%w: %s failed %s", sentinel, validationErrs[0].Field(), validationErrs[0].Tag())
	}

	return fmt.Errorf("%w: %w", sentinel, err)
}

// compilePattern anchors pattern at the start of the name.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, pattern, err)
	}

	return re, nil
}

// ValidateConnections tests connections and checks their names.
type ValidateConnections struct {
	IDs             []string
	Query           string
	Test            bool
	ValidateNaming  bool
	NamingPattern   string
	ContinueOnError bool
}

// Operation implements Command.
func (ValidateConnections) Operation() Operation { return OpValidateConnections }

// IntegrationRules are the checks of ValidateIntegrations.
type IntegrationRules struct {
	NamingPattern        string `json:"naming_pattern,omitempty"         yaml:"naming_pattern,omitempty"`
	RequireDescription   bool   `json:"require_description,omitempty"    yaml:"require_description,omitempty"`
	RequireVersion       bool   `json:"require_version,omitempty"        yaml:"require_version,omitempty"`
	VersionPattern       string `json:"version_pattern,omitempty"        yaml:"version_pattern,omitempty"`
	MaxVersionAgeDays    int    `json:"max_version_age_days,omitempty"   yaml:"max_version_age_days,omitempty"   validate:"gte=0"`
	RequireErrorHandling bool   `json:"require_error_handling,omitempty" yaml:"require_error_handling,omitempty"`
	RequireLogging       bool   `json:"require_logging,omitempty"        yaml:"require_logging,omitempty"`
	CheckInactive        bool   `json:"check_inactive,omitempty"         yaml:"check_inactive,omitempty"`
	MaxInactiveDays      int    `json:"max_inactive_days,omitempty"      yaml:"max_inactive_days,omitempty"      validate:"gte=0"`
}

// DefaultIntegrationRules enables every integration check.
func DefaultIntegrationRules() IntegrationRules {
	return IntegrationRules{
		NamingPattern:        DefaultNamingPattern,
		RequireDescription:   true,
		RequireVersion:       true,
		VersionPattern:       semverPattern,
		MaxVersionAgeDays:    90,
		RequireErrorHandling: true,
		RequireLogging:       true,
		CheckInactive:        true,
		MaxInactiveDays:      30,
	}
}

// ValidateIntegrations checks integrations against Rules; nil uses the
// defaults.
type ValidateIntegrations struct {
	IDs             []string
	Query           string
	Rules           *IntegrationRules
	ContinueOnError bool
}

// Operation implements Command.
func (ValidateIntegrations) Operation() Operation { return OpValidateIntegrations }

// IntegrationPractices toggles the integration best practice checks.
type IntegrationPractices struct {
	ErrorHandlers       bool `json:"enabled_error_handler"     yaml:"enabled_error_handler"`
	TimeoutSettings     bool `json:"proper_timeout_settings"   yaml:"proper_timeout_settings"`
	TrackingFields      bool `json:"unique_tracking_fields"    yaml:"unique_tracking_fields"`
	ConsistentNaming    bool `json:"consistent_naming"         yaml:"consistent_naming"`
	DescriptiveLogs     bool `json:"descriptive_logs"          yaml:"descriptive_logs"`
	VersionControl      bool `json:"version_control"           yaml:"version_control"`
	MaxMapperSize       int  `json:"maximum_mapper_size"       yaml:"maximum_mapper_size"       validate:"gte=0"`
	MaxIntegrationNodes int  `json:"maximum_integration_nodes" yaml:"maximum_integration_nodes" validate:"gte=0"`
}

// ConnectionPractices toggles the connection best practice checks.
type ConnectionPractices struct {
	SecureCredentials   bool `json:"secure_credentials"   yaml:"secure_credentials"`
	EnvironmentSpecific bool `json:"environment_specific" yaml:"environment_specific"`
	DescriptiveNames    bool `json:"descriptive_names"    yaml:"descriptive_names"`
	PeriodicTesting     bool `json:"periodic_testing"     yaml:"periodic_testing"`
}

// LookupPractices toggles the lookup best practice checks.
type LookupPractices struct {
	ManageableSize     bool `json:"manageable_size"     yaml:"manageable_size"`
	EnvironmentTagging bool `json:"environment_tagging" yaml:"environment_tagging"`
	RegularUpdates     bool `json:"regular_updates"     yaml:"regular_updates"`
}

// InstancePractices toggles the instance best practice checks.
type InstancePractices struct {
	MonitoringConfigured  bool `json:"monitoring_configured"   yaml:"monitoring_configured"`
	PurgePolicyConfigured bool `json:"purge_policy_configured" yaml:"purge_policy_configured"`
	BackupStrategy        bool `json:"backup_strategy"         yaml:"backup_strategy"`
	ResourceLimitsManaged bool `json:"resource_limits_managed" yaml:"resource_limits_managed"`
}

// PracticeRules groups best practice checks by scope. A nil group skips the
// scope.
type PracticeRules struct {
	Integrations *IntegrationPractices `json:"integrations,omitempty" yaml:"integrations,omitempty"`
	Connections  *ConnectionPractices  `json:"connections,omitempty"  yaml:"connections,omitempty"`
	Lookups      *LookupPractices      `json:"lookups,omitempty"      yaml:"lookups,omitempty"`
	Instance     *InstancePractices    `json:"instance,omitempty"     yaml:"instance,omitempty"`
}

// DefaultPracticeRules enables every best practice check.
func DefaultPracticeRules() PracticeRules {
	return PracticeRules{
		Integrations: &IntegrationPractices{
			ErrorHandlers:       true,
			TimeoutSettings:     true,
			TrackingFields:      true,
			ConsistentNaming:    true,
			DescriptiveLogs:     true,
			VersionControl:      true,
			MaxMapperSize:       1000,
			MaxIntegrationNodes: 50,
		},
		Connections: &ConnectionPractices{SecureCredentials: true, EnvironmentSpecific: true, DescriptiveNames: true, PeriodicTesting: true},
		Lookups:     &LookupPractices{ManageableSize: true, EnvironmentTagging: true, RegularUpdates: true},
		Instance:    &InstancePractices{MonitoringConfigured: true, PurgePolicyConfigured: true, BackupStrategy: true, ResourceLimitsManaged: true},
	}
}

// BestPractices checks resources of Scope against Rules; nil uses the
// defaults.
type BestPractices struct {
	Scope string
	Rules *PracticeRules
}

// Operation implements Command.
func (BestPractices) Operation() Operation { return OpBestPractices }

// NamingConventions checks names per kind and can rename offenders to a
// suggested name.
type NamingConventions struct {
	Kinds []oic.ResourceKind
	// Patterns overrides DefaultNamingPattern per kind.
	Patterns        map[oic.ResourceKind]string
	AutoRename      bool
	ContinueOnError bool
}

// Operation implements Command.
func (NamingConventions) Operation() Operation { return OpNamingConventions }

// ValidationEngine checks resources against rules.
type ValidationEngine struct {
	engine
}

// NewValidationEngine creates a validation engine.
func NewValidationEngine(deps Deps) *ValidationEngine {
	return &ValidationEngine{engine: newEngine(FamilyValidation, deps)}
}

// Execute implements Engine.
func (e *ValidationEngine) Execute(ctx context.Context, cmd Command) *oic.WorkflowResult {
	switch c := cmd.(type) {
	case ValidateConnections:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.connections(ctx, c) })
	case ValidateIntegrations:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.integrations(ctx, c) })
	case BestPractices:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.bestPractices(ctx, c) })
	case NamingConventions:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.naming(ctx, c) })
	default:
		return e.unknown(cmd)
	}
}

// Finding is the validation outcome of one resource.
type Finding struct {
	ID     string   `json:"id"               yaml:"id"`
	Name   string   `json:"name"             yaml:"name"`
	Type   string   `json:"type,omitempty"   yaml:"type,omitempty"`
	Status string   `json:"status,omitempty" yaml:"status,omitempty"`
	Valid  bool     `json:"valid"            yaml:"valid"`
	Issues []string `json:"issues"           yaml:"issues"`
}

func (f *Finding) fail(issue string) {
	f.Valid = false
	f.Issues = append(f.Issues, issue)
}

// fetch resolves ids or lists by query. With ContinueOnError unset a failed
// id aborts the whole validation.
func (e *ValidationEngine) fetch(ctx context.Context, result *oic.WorkflowResult, gateway oic.Gateway, ids []string, query string, continueOnError bool) ([]oic.Object, bool) {
	if len(ids) == 0 {
		objects, err := gateway.ListAll(ctx, listParams(query))
		if err != nil {
			result.AddError(fmt.Sprintf("Failed to list %ss", gateway.Kind()), err, "")

			return nil, false
		}

		return objects, true
	}

	targets, failures := targetsFromIDs(ctx, gateway, ids)

	for _, id := range ids {
		err, failed := failures[id]
		if !failed {
			continue
		}

		e.logger.Warn("failed to get resource", map[string]interface{}{"kind": gateway.Kind(), "id": id, "error": err.Error()})

		if !continueOnError {
			result.AddError(fmt.Sprintf("Failed to get %s %s", gateway.Kind(), id), err, id)

			return nil, false
		}
	}

	return targets, true
}

func splitFindings(findings []Finding) ([]Finding, []Finding) {
	valid, invalid := []Finding{}, []Finding{}

	for _, finding := range findings {
		if finding.Valid {
			valid = append(valid, finding)
		} else {
			invalid = append(invalid, finding)
		}
	}

	return valid, invalid
}

func (e *ValidationEngine) connections(ctx context.Context, cmd ValidateConnections) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Validating connections")

	var pattern *regexp.Regexp

	if cmd.ValidateNaming {
		raw := cmd.NamingPattern
		if raw == "" {
			raw = DefaultNamingPattern
		}

		var err error

		pattern, err = compilePattern(raw)
		if err != nil {
			result.Fail("Failed to validate connections: " + err.Error())
			result.AddError("Invalid naming pattern", err, "")

			return result
		}
	}

	gateway := e.api().Connections()

	connections, ok := e.fetch(ctx, result, gateway, cmd.IDs, cmd.Query, cmd.ContinueOnError)
	if !ok {
		result.Fail("Failed to validate connections")

		return result
	}

	if len(connections) == 0 {
		result.Message = "No connections found to validate"

		return result
	}

	findings := make([]Finding, 0, len(connections))

	for _, connection := range connections {
		id := connection.ID()
		if id == "" {
			continue
		}

		finding := Finding{ID: id, Name: nameOf(connection), Type: connection.StringOr("connectionType", "Unknown"), Valid: true, Issues: []string{}}

		if cmd.Test {
			e.logger.Info("testing connection", map[string]interface{}{"connection": id, "name": finding.Name})

			outcome, err := gateway.Test(ctx, id)

			switch {
			case err != nil:
				finding.fail("Connection test error: " + err.Error())

				if !cmd.ContinueOnError {
					result.AddError("Connection test failed for "+finding.Name, err, id)
					result.Fail("Connection validation failed for " + finding.Name)

					return result
				}
			case outcome.StringOr("status", constants.StatusUnknown) != constants.StatusSuccess:
				finding.fail("Connection test failed: " + outcome.StringOr("message", "Unknown error"))
			}
		}

		if pattern != nil && !pattern.MatchString(finding.Name) {
			finding.fail(fmt.Sprintf("Connection name '%s' does not match required pattern: %s", finding.Name, pattern))
		}

		e.resourceDone(oic.KindConnection, finding.Valid)
		findings = append(findings, finding)
		result.AddResource(oic.KindConnection, id, oic.Object{
			"name":   finding.Name,
			"type":   finding.Type,
			"valid":  finding.Valid,
			"issues": finding.Issues,
		})
	}

	valid, invalid := splitFindings(findings)
	result.SetDetail("valid_connections", valid)
	result.SetDetail("invalid_connections", invalid)
	result.SetDetail("valid_count", len(valid))
	result.SetDetail("invalid_count", len(invalid))
	result.SetDetail("total_count", len(connections))

	if len(invalid) > 0 {
		result.Fail(fmt.Sprintf("Validated %d connections, found %d invalid connections", len(connections), len(invalid)))
	} else {
		result.Message = fmt.Sprintf("All %d connections passed validation", len(connections))
	}

	return result
}

// daysSince parses an RFC3339 timestamp field and returns whole days until now.
func daysSince(obj oic.Object, key string, now time.Time) (int, bool) {
	raw := obj.String(key)
	if raw == "" {
		return 0, false
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 0, false
	}

	return int(now.Sub(at).Hours() / hoursPerDay), true
}

// hasErrorHandling looks for fault handlers in metadata or error, fault or
// catch keys on flow elements.
func hasErrorHandling(detail oic.Object) bool {
	if len(detail.Map("metadata").Slice("faultHandlers")) > 0 {
		return true
	}

	for _, section := range []string{"triggers", "actions", "invokes"} {
		for _, element := range detail.Objects(section) {
			for key := range element {
				lower := strings.ToLower(key)
				if strings.Contains(lower, "error") || strings.Contains(lower, "fault") || strings.Contains(lower, "catch") {
					return true
				}
			}
		}
	}

	return false
}

// hasLogging looks for actions or invokes whose name or type mentions logging.
func hasLogging(detail oic.Object, strict bool) bool {
	for _, section := range []string{"actions", "invokes"} {
		for _, element := range detail.Objects(section) {
			elementType := strings.ToLower(element.String("type"))

			if strict {
				if elementType == "logging" {
					return true
				}

				continue
			}

			if strings.Contains(strings.ToLower(element.String("name")), "log") || strings.Contains(elementType, "log") {
				return true
			}
		}
	}

	return false
}

func (e *ValidationEngine) integrations(ctx context.Context, cmd ValidateIntegrations) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Validating integrations")

	rules := DefaultIntegrationRules()
	if cmd.Rules != nil {
		rules = *cmd.Rules
	}

	err := validateStruct(rules, ErrInvalidRules)
	if err != nil {
		result.Fail("Failed to validate integrations: " + err.Error())
		result.AddError("Invalid validation rules", err, "")

		return result
	}

	var naming, version *regexp.Regexp

	if rules.NamingPattern != "" {
		naming, err = compilePattern(rules.NamingPattern)
	}

	if err == nil && rules.VersionPattern != "" {
		version, err = compilePattern(rules.VersionPattern)
	}

	if err != nil {
		result.Fail("Failed to validate integrations: " + err.Error())
		result.AddError("Invalid validation rules", err, "")

		return result
	}

	gateway := e.api().Integrations()

	integrations, ok := e.fetch(ctx, result, gateway, cmd.IDs, cmd.Query, cmd.ContinueOnError)
	if !ok {
		result.Fail("Failed to validate integrations")

		return result
	}

	if len(integrations) == 0 {
		result.Message = "No integrations found to validate"

		return result
	}

	now := e.deps.Now()
	findings := make([]Finding, 0, len(integrations))

	for _, integration := range integrations {
		id := integration.ID()
		if id == "" {
			continue
		}

		finding := Finding{
			ID:     id,
			Name:   nameOf(integration),
			Type:   integration.StringOr("integrationType", "Unknown"),
			Status: integration.StringOr("status", "Unknown"),
			Valid:  true,
			Issues: []string{},
		}

		detail, err := gateway.Get(ctx, id)
		if err != nil {
			if !cmd.ContinueOnError {
				result.AddError("Failed to get integration details", err, id)
				result.Fail("Integration validation failed for " + finding.Name)

				return result
			}

			e.logger.Warn("using listed integration for validation", map[string]interface{}{"integration": id, "error": err.Error()})
			detail = integration
		}

		if naming != nil && !naming.MatchString(finding.Name) {
			finding.fail(fmt.Sprintf("Integration name '%s' does not match required pattern: %s", finding.Name, rules.NamingPattern))
		}

		if rules.RequireDescription && detail.String("description") == "" {
			finding.fail("Integration is missing a description")
		}

		if rules.RequireVersion {
			v := detail.String("version")

			switch {
			case v == "":
				finding.fail("Integration is missing a version")
			case version != nil && !version.MatchString(v):
				finding.fail(fmt.Sprintf("Integration version '%s' does not match required pattern: %s", v, rules.VersionPattern))
			}
		}

		if rules.MaxVersionAgeDays > 0 {
			if age, ok := daysSince(detail, "updatedTime", now); ok && age > rules.MaxVersionAgeDays {
				finding.fail(fmt.Sprintf("Integration version is %d days old, exceeding maximum age of %d days", age, rules.MaxVersionAgeDays))
			}
		}

		if rules.RequireErrorHandling && !hasErrorHandling(detail) {
			finding.fail("Integration appears to lack error handling")
		}

		if rules.RequireLogging && !hasLogging(detail, false) {
			finding.fail("Integration appears to lack logging")
		}

		if rules.CheckInactive && rules.MaxInactiveDays > 0 && finding.Status != constants.StatusActivated {
			if idle, ok := daysSince(detail, "updatedTime", now); ok && idle > rules.MaxInactiveDays {
				finding.fail(fmt.Sprintf("Integration has been inactive for %d days, exceeding maximum of %d days", idle, rules.MaxInactiveDays))
			}
		}

		e.resourceDone(oic.KindIntegration, finding.Valid)
		findings = append(findings, finding)
		result.AddResource(oic.KindIntegration, id, oic.Object{
			"name":   finding.Name,
			"type":   finding.Type,
			"status": finding.Status,
			"valid":  finding.Valid,
			"issues": finding.Issues,
		})
	}

	valid, invalid := splitFindings(findings)
	result.SetDetail("valid_integrations", valid)
	result.SetDetail("invalid_integrations", invalid)
	result.SetDetail("valid_count", len(valid))
	result.SetDetail("invalid_count", len(invalid))
	result.SetDetail("total_count", len(integrations))
	result.SetDetail("validation_rules", rules)

	if len(invalid) > 0 {
		result.Fail(fmt.Sprintf("Validated %d integrations, found %d invalid integrations", len(integrations), len(invalid)))
	} else {
		result.Message = fmt.Sprintf("All %d integrations passed validation", len(integrations))
	}

	return result
}

// Compliance counts the resources of one scope.
type Compliance struct {
	Compliant    int `json:"compliant"     yaml:"compliant"`
	NonCompliant int `json:"non_compliant" yaml:"non_compliant"`
	RulesChecked int `json:"rules_checked" yaml:"rules_checked"`
}

func (c *Compliance) count(ok bool) {
	if ok {
		c.Compliant++
	} else {
		c.NonCompliant++
	}
}

func enabledRules(flags ...bool) int {
	n := 0

	for _, flag := range flags {
		if flag {
			n++
		}
	}

	return n
}

type practiceRun struct {
	result   *oic.WorkflowResult
	findings map[string]map[string]Finding
	summary  map[string]*Compliance
}

func (p *practiceRun) record(scope string, kind oic.ResourceKind, finding Finding) {
	if p.findings[scope] == nil {
		p.findings[scope] = map[string]Finding{}
	}

	p.findings[scope][finding.ID] = finding
	p.summary[scope].count(finding.Valid)
	p.result.AddResource(kind, finding.ID, oic.Object{
		"name":                    finding.Name,
		"best_practice_compliant": finding.Valid,
		"issues":                  finding.Issues,
	})
}

func (e *ValidationEngine) bestPractices(ctx context.Context, cmd BestPractices) *oic.WorkflowResult {
	scope := cmd.Scope
	if scope == "" {
		scope = ScopeAll
	}

	result := oic.NewWorkflowResult("Validating OIC best practices for " + scope)

	rules := DefaultPracticeRules()
	if cmd.Rules != nil {
		rules = *cmd.Rules
	}

	if rules.Integrations != nil {
		err := validateStruct(rules.Integrations, ErrInvalidRules)
		if err != nil {
			result.Fail("Failed to validate best practices: " + err.Error())
			result.AddError("Invalid best practice rules", err, "")

			return result
		}
	}

	run := &practiceRun{
		result:   result,
		findings: map[string]map[string]Finding{},
		summary: map[string]*Compliance{
			ScopeIntegrations: {},
			ScopeConnections:  {},
			ScopeLookups:      {},
			ScopeInstance:     {},
		},
	}

	in := func(s string) bool { return scope == ScopeAll || scope == s }

	if in(ScopeIntegrations) && rules.Integrations != nil {
		err := e.integrationPractices(ctx, run, *rules.Integrations)
		if err != nil {
			result.AddError("Failed to validate integration best practices", err, "")
		}
	}

	if in(ScopeConnections) && rules.Connections != nil {
		err := e.connectionPractices(ctx, run, *rules.Connections)
		if err != nil {
			result.AddError("Failed to validate connection best practices", err, "")
		}
	}

	if in(ScopeLookups) && rules.Lookups != nil {
		err := e.lookupPractices(ctx, run, *rules.Lookups)
		if err != nil {
			result.AddError("Failed to validate lookup best practices", err, "")
		}
	}

	if in(ScopeInstance) && rules.Instance != nil {
		err := e.instancePractices(ctx, run, *rules.Instance)
		if err != nil {
			result.AddError("Failed to validate instance best practices", err, "")
		}
	}

	compliant, nonCompliant := 0, 0
	for _, summary := range run.summary {
		compliant += summary.Compliant
		nonCompliant += summary.NonCompliant
	}

	total := compliant + nonCompliant

	result.SetDetail("best_practice_results", run.findings)
	result.SetDetail("compliance_summary", run.summary)
	result.SetDetail("total_resources", total)
	result.SetDetail("total_compliant", compliant)
	result.SetDetail("total_non_compliant", nonCompliant)

	switch {
	case nonCompliant > 0:
		result.Fail(fmt.Sprintf("Best practice validation found %d of %d resources non-compliant", nonCompliant, total))
	case result.Success:
		result.Message = fmt.Sprintf("All %d resources are compliant with best practices", total)
	default:
		result.Message = fmt.Sprintf("Best practice validation checked %d resources with errors", total)
	}

	return result
}

func (e *ValidationEngine) integrationPractices(ctx context.Context, run *practiceRun, rules IntegrationPractices) error {
	gateway := e.api().Integrations()

	integrations, err := gateway.ListAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("listing integrations: %w", err)
	}

	run.summary[ScopeIntegrations].RulesChecked = enabledRules(
		rules.ErrorHandlers, rules.TimeoutSettings, rules.TrackingFields, rules.ConsistentNaming,
		rules.DescriptiveLogs, rules.VersionControl, rules.MaxMapperSize > 0, rules.MaxIntegrationNodes > 0,
	)

	for _, integration := range integrations {
		id := integration.ID()
		if id == "" {
			continue
		}

		detail, err := gateway.GetCached(ctx, id)
		if err != nil {
			run.result.AddError("Failed to get integration details", err, id)

			continue
		}

		finding := Finding{ID: id, Name: nameOf(integration), Valid: true, Issues: []string{}}
		metadata := detail.Map("metadata")

		if rules.ErrorHandlers && len(metadata.Slice("faultHandlers")) == 0 {
			finding.fail("Missing error handlers")
		}

		if rules.TimeoutSettings && metadata.Has("timeouts") {
			timeouts := metadata.Map("timeouts")
			if fallback, _ := timeouts.Int("default"); len(timeouts) == 0 || fallback <= 0 {
				finding.fail("Improper timeout settings")
			}
		}

		if rules.TrackingFields && len(metadata.Slice("trackingFields")) == 0 {
			finding.fail("Missing unique tracking fields")
		}

		if rules.ConsistentNaming && !consistentNamingRe.MatchString(finding.Name) {
			finding.fail("Inconsistent naming convention")
		}

		if rules.DescriptiveLogs && !hasLogging(detail, true) {
			finding.fail("Missing descriptive logs")
		}

		if rules.VersionControl && !semverRe.MatchString(detail.String("version")) {
			finding.fail("Missing proper version control")
		}

		if rules.MaxMapperSize > 0 {
			for _, mapper := range detail.Objects("mappers") {
				if len(mapper.Slice("elements")) > rules.MaxMapperSize {
					finding.fail(fmt.Sprintf("Mapper exceeds maximum size of %d elements", rules.MaxMapperSize))

					break
				}
			}
		}

		if rules.MaxIntegrationNodes > 0 {
			nodes := 0
			for _, section := range []string{"triggers", "actions", "invokes", "scopes"} {
				nodes += len(detail.Slice(section))
			}

			if nodes > rules.MaxIntegrationNodes {
				finding.fail(fmt.Sprintf("Integration exceeds maximum complexity of %d nodes", rules.MaxIntegrationNodes))
			}
		}

		run.record(ScopeIntegrations, oic.KindIntegration, finding)
	}

	return nil
}

func (e *ValidationEngine) connectionPractices(ctx context.Context, run *practiceRun, rules ConnectionPractices) error {
	connections, err := e.api().Connections().ListAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("listing connections: %w", err)
	}

	run.summary[ScopeConnections].RulesChecked = enabledRules(
		rules.SecureCredentials, rules.EnvironmentSpecific, rules.DescriptiveNames, rules.PeriodicTesting,
	)

	for _, connection := range connections {
		id := connection.ID()
		if id == "" {
			continue
		}

		finding := Finding{ID: id, Name: nameOf(connection), Type: connection.StringOr("connectionType", "Unknown"), Valid: true, Issues: []string{}}

		if rules.SecureCredentials && !connection.Has("securityProperties") {
			finding.fail("Insecure credential storage")
		}

		if rules.EnvironmentSpecific && !environmentPrefixRe.MatchString(finding.Name) {
			finding.fail("Missing environment-specific naming")
		}

		if rules.DescriptiveNames && (len(finding.Name) < minDescriptiveNameLength || !strings.Contains(finding.Name, "_")) {
			finding.fail("Non-descriptive connection name")
		}

		if rules.PeriodicTesting {
			finding.Issues = append(finding.Issues, "No evidence of periodic testing (needs manual verification)")
		}

		run.record(ScopeConnections, oic.KindConnection, finding)
	}

	return nil
}

func (e *ValidationEngine) lookupPractices(ctx context.Context, run *practiceRun, rules LookupPractices) error {
	gateway := e.api().Lookups()

	lookups, err := gateway.ListAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("listing lookups: %w", err)
	}

	run.summary[ScopeLookups].RulesChecked = enabledRules(rules.ManageableSize, rules.EnvironmentTagging, rules.RegularUpdates)

	for _, lookup := range lookups {
		id := idOf(lookup)
		if id == "" {
			continue
		}

		finding := Finding{ID: id, Name: nameOf(lookup), Valid: true, Issues: []string{}}

		data, err := gateway.Data(ctx, id)

		switch {
		case err != nil:
			finding.fail("Could not validate lookup data: " + err.Error())
		default:
			if rules.ManageableSize {
				if rows := len(data.Slice("rows")); rows > maxLookupRows {
					finding.fail(fmt.Sprintf("Lookup exceeds recommended size (%d rows > %d max)", rows, maxLookupRows))
				}

				if columns := len(data.Slice("columns")); columns > maxLookupColumns {
					finding.fail(fmt.Sprintf("Lookup exceeds recommended columns (%d columns > %d max)", columns, maxLookupColumns))
				}
			}

			if rules.EnvironmentTagging && !environmentPrefixRe.MatchString(finding.Name) {
				finding.fail("Missing environment tagging")
			}

			if rules.RegularUpdates {
				finding.Issues = append(finding.Issues, "No evidence of regular updates (needs manual verification)")
			}
		}

		run.record(ScopeLookups, oic.KindLookup, finding)
	}

	return nil
}

func (e *ValidationEngine) instancePractices(ctx context.Context, run *practiceRun, rules InstancePractices) error {
	stats, err := e.api().Monitoring().IntegrationStats(ctx, nil)
	if err != nil {
		return fmt.Errorf("reading instance statistics: %w", err)
	}

	run.summary[ScopeInstance].RulesChecked = enabledRules(
		rules.MonitoringConfigured, rules.PurgePolicyConfigured, rules.BackupStrategy, rules.ResourceLimitsManaged,
	)

	finding := Finding{ID: string(kindOICInstance), Name: string(kindOICInstance), Valid: true, Issues: []string{}}

	if rules.MonitoringConfigured && !stats.Has("stats") {
		finding.fail("Instance monitoring not properly configured")
	}

	if rules.PurgePolicyConfigured {
		finding.Issues = append(finding.Issues, "Purge policy validation requires manual verification")
	}

	if rules.BackupStrategy {
		finding.Issues = append(finding.Issues, "Backup strategy validation requires manual verification")
	}

	if rules.ResourceLimitsManaged {
		if messages, ok := stats.Map("stats").Int("messages"); ok && float64(messages) > instanceMessageLimit*messageLimitShare {
			finding.fail(fmt.Sprintf("Message count (%d) approaching limit (%d)", messages, instanceMessageLimit))
		}
	}

	run.record(ScopeInstance, kindOICInstance, finding)

	return nil
}

// NameCheck is the naming outcome of one resource.
type NameCheck struct {
	Name          string `json:"name"                     yaml:"name"`
	Compliant     bool   `json:"compliant"                yaml:"compliant"`
	SuggestedName string `json:"suggested_name,omitempty" yaml:"suggested_name,omitempty"`
	Renamed       bool   `json:"renamed"                  yaml:"renamed"`
}

// KindNaming counts the naming outcomes of one kind.
type KindNaming struct {
	Compliant    int                  `json:"compliant"     yaml:"compliant"`
	NonCompliant int                  `json:"non_compliant" yaml:"non_compliant"`
	Resources    map[string]NameCheck `json:"resources"     yaml:"resources"`
}

var kindAbbreviations = map[oic.ResourceKind]string{
	oic.KindConnection:  "CONN",
	oic.KindIntegration: "INT",
	oic.KindLookup:      "LKP",
}

// SuggestName builds an ENV_TYPE_NAME name from an arbitrary one.
func SuggestName(kind oic.ResourceKind, name string) string {
	abbreviation, ok := kindAbbreviations[kind]
	if !ok {
		abbreviation = "RES"
	}

	return "ENV_" + abbreviation + "_" + unsafeNameRe.ReplaceAllString(strings.ToUpper(name), "")
}

func (e *ValidationEngine) naming(ctx context.Context, cmd NamingConventions) *oic.WorkflowResult {
	kinds := cmd.Kinds
	if len(kinds) == 0 {
		kinds = []oic.ResourceKind{oic.KindConnection, oic.KindIntegration, oic.KindLookup}
	}

	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, kind.Plural())
	}

	rename := ""
	if cmd.AutoRename {
		rename = " with auto-rename"
	}

	result := oic.NewWorkflowResult("Validating naming conventions for " + strings.Join(names, ", "))
	outcomes := map[oic.ResourceKind]*KindNaming{}
	patterns := map[oic.ResourceKind]string{}

	for _, kind := range kinds {
		raw, ok := cmd.Patterns[kind]
		if !ok {
			raw = DefaultNamingPattern
		}

		patterns[kind] = raw

		abort, err := e.checkNames(ctx, result, kind, raw, cmd, outcomes)
		if err != nil {
			result.AddError(fmt.Sprintf("Failed to validate %s", kind.Plural()), err, "")

			if !cmd.ContinueOnError {
				result.Fail("Naming convention validation failed for " + kind.Plural())

				return result
			}
		}

		if abort {
			return result
		}
	}

	total, nonCompliant := 0, 0
	for _, outcome := range outcomes {
		total += outcome.Compliant + outcome.NonCompliant
		nonCompliant += outcome.NonCompliant
	}

	result.SetDetail("naming_validation", outcomes)
	result.SetDetail("naming_patterns", patterns)
	result.SetDetail("auto_rename", cmd.AutoRename)

	if nonCompliant > 0 {
		result.Fail(fmt.Sprintf("Found %d of %d resources with non-compliant names%s", nonCompliant, total, rename))
	} else if result.Success {
		result.Message = fmt.Sprintf("All %d resources have compliant names%s", total, rename)
	}

	return result
}

// checkNames validates one kind. abort reports a rename failure that stopped
// the run.
func (e *ValidationEngine) checkNames(
	ctx context.Context,
	result *oic.WorkflowResult,
	kind oic.ResourceKind,
	raw string,
	cmd NamingConventions,
	outcomes map[oic.ResourceKind]*KindNaming,
) (bool, error) {
	pattern, err := compilePattern(raw)
	if err != nil {
		return false, err
	}

	gateway, err := oic.GatewayFor(e.api(), kind)
	if err != nil {
		return false, fmt.Errorf("resolving gateway: %w", err)
	}

	resources, err := gateway.ListAll(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("listing %s: %w", kind.Plural(), err)
	}

	outcome := &KindNaming{Resources: map[string]NameCheck{}}
	outcomes[kind] = outcome

	for _, resource := range resources {
		id := idOf(resource)
		if id == "" {
			continue
		}

		check := NameCheck{Name: nameOf(resource), Compliant: pattern.MatchString(nameOf(resource))}

		if !check.Compliant {
			check.SuggestedName = SuggestName(kind, check.Name)

			if cmd.AutoRename {
				renamed := resource.Clone()
				renamed["name"] = check.SuggestedName

				_, err = gateway.Update(ctx, id, renamed)
				e.resourceDone(kind, err == nil)

				switch {
				case err == nil:
					check.Renamed = true
					check.Compliant = true
				case !cmd.ContinueOnError:
					result.AddError("Failed to rename "+string(kind), err, id)
					result.Fail(fmt.Sprintf("Naming convention validation failed for %s %s", kind, check.Name))

					return true, nil
				default:
					result.AddError("Failed to rename "+string(kind), err, id)
				}
			}
		}

		outcome.Resources[id] = check

		if check.Compliant {
			outcome.Compliant++
		} else {
			outcome.NonCompliant++
		}

		result.AddResource(kind, id, oic.Object{
			"name":           check.Name,
			"compliant":      check.Compliant,
			"suggested_name": check.SuggestedName,
			"renamed":        check.Renamed,
		})
	}

	return false, nil
}
