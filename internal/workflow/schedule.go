package workflow

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Schedule operations.
const (
	OpUpdateSchedules   Operation = "update_schedules"
	OpExportSchedules   Operation = "export_schedules"
	OpImportSchedules   Operation = "import_schedules"
	OpValidateSchedules Operation = "validate_schedules"
	OpListSchedules     Operation = "list_schedules"
)

// Schedule file formats and import match modes.
const (
	FormatYAML = "yaml"

	MatchByID         = "id"
	MatchByIdentifier = "identifier"
	MatchByName       = "name"
)

// Schedule list groupings.
const (
	ScheduleGroupNone      = "none"
	ScheduleGroupTime      = "time"
	ScheduleGroupDay       = "day"
	ScheduleGroupFrequency = "frequency"
)

// Static errors for err113 compliance.
var (
	ErrNotScheduled       = errors.New("integration is not a scheduled integration")
	ErrScheduleFormat     = errors.New("unsupported schedule file format")
	ErrScheduleFileRoot   = errors.New("schedule file root must be a mapping")
	ErrIntegrationMissing = errors.New("integration not found")
	ErrUnknownMatchBy     = errors.New("unknown match mode")
	ErrInvalidRules       = errors.New("invalid validation rules")
)

var scheduleCSVHeader = []string{
	"Integration ID", "Name", "Identifier", "Enabled",
	"Frequency", "Start Date", "Time", "End Date",
	"Days", "Hours", "Minutes",
}

// UpdateSchedules merges Updates into the schedule of each integration. Keys
// are ids, or identifiers when ByIdentifier is set.
type UpdateSchedules struct {
	Updates         map[string]oic.Object
	ByIdentifier    bool
	ContinueOnError bool
}

// Operation implements Command.
func (UpdateSchedules) Operation() Operation { return OpUpdateSchedules }

// ExportSchedules writes the schedules of scheduled integrations to File.
type ExportSchedules struct {
	IDs    []string
	Query  string
	File   string
	Format string
}

// Operation implements Command.
func (ExportSchedules) Operation() Operation { return OpExportSchedules }

// ImportSchedules applies the schedules of a file written by ExportSchedules.
type ImportSchedules struct {
	File            string
	MatchBy         string
	ContinueOnError bool
	DryRun          bool
}

// Operation implements Command.
func (ImportSchedules) Operation() Operation { return OpImportSchedules }

// ScheduleRules are the checks of ValidateSchedules. Zero values disable a
// check, except the time range which defaults to the whole day.
type ScheduleRules struct {
	Enabled            *bool    `json:"enabled,omitempty"              yaml:"enabled,omitempty"`
	Frequency          string   `json:"frequency,omitempty"            yaml:"frequency,omitempty"`
	Earliest           string   `json:"earliest,omitempty"             yaml:"earliest,omitempty"             validate:"omitempty,datetime=15:04:05"`
	Latest             string   `json:"latest,omitempty"               yaml:"latest,omitempty"               validate:"omitempty,datetime=15:04:05"`
	AllowedDays        []string `json:"allowed_days,omitempty"         yaml:"allowed_days,omitempty"`
	ForbiddenDays      []string `json:"forbidden_days,omitempty"       yaml:"forbidden_days,omitempty"`
	MinIntervalMinutes int      `json:"min_interval_minutes,omitempty" yaml:"min_interval_minutes,omitempty" validate:"gte=0"`
	MaxConcurrent      int      `json:"max_concurrent,omitempty"       yaml:"max_concurrent,omitempty"       validate:"gte=0"`
	RequireEndDate     bool     `json:"require_end_date,omitempty"     yaml:"require_end_date,omitempty"`
}

// DefaultScheduleRules allows any time of day on five minute boundaries.
func DefaultScheduleRules() ScheduleRules {
	return ScheduleRules{Earliest: "00:00:00", Latest: "23:59:59", MinIntervalMinutes: 5}
}

// Validate checks the rule values themselves.
func (r ScheduleRules) Validate() error {
	return validateStruct(r, ErrInvalidRules)
}

// ValidateSchedules checks schedules against Rules; nil uses the defaults.
type ValidateSchedules struct {
	IDs   []string
	Query string
	Rules *ScheduleRules
}

// Operation implements Command.
func (ValidateSchedules) Operation() Operation { return OpValidateSchedules }

// ListSchedules reports schedules, optionally grouped by time, day or
// frequency.
type ListSchedules struct {
	IDs             []string
	Query           string
	IncludeDisabled bool
	GroupBy         string
}

// Operation implements Command.
func (ListSchedules) Operation() Operation { return OpListSchedules }

// ScheduleEngine manages the schedules of scheduled integrations.
type ScheduleEngine struct {
	engine
}

// NewScheduleEngine creates a schedule engine.
func NewScheduleEngine(deps Deps) *ScheduleEngine {
	return &ScheduleEngine{engine: newEngine(FamilySchedule, deps)}
}

// Execute implements Engine.
func (e *ScheduleEngine) Execute(ctx context.Context, cmd Command) *oic.WorkflowResult {
	switch c := cmd.(type) {
	case UpdateSchedules:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.update(ctx, c) })
	case ExportSchedules:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.export(ctx, c) })
	case ImportSchedules:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.importFile(ctx, c) })
	case ValidateSchedules:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.validate(ctx, c) })
	case ListSchedules:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.list(ctx, c) })
	default:
		return e.unknown(cmd)
	}
}

// ScheduleEntry is one integration in a schedule file.
type ScheduleEntry struct {
	Name       string     `json:"name"       yaml:"name"`
	Identifier string     `json:"identifier" yaml:"identifier"`
	Schedule   oic.Object `json:"schedule"   yaml:"schedule"`
}

func isScheduled(integration oic.Object) bool {
	return integration.String("integrationType") == scheduledIntegrationType
}

func scheduledParams(query string) url.Values {
	params := listParams(query)
	params.Set("integrationType", scheduledIntegrationType)

	return params
}

// scheduledIntegrations resolves ids, or lists by query, keeping only
// scheduled integrations. Fetch failures of single ids are logged and skipped.
func (e *ScheduleEngine) scheduledIntegrations(ctx context.Context, ids []string, query string) ([]oic.Object, error) {
	gateway := e.api().Integrations()

	if len(ids) == 0 {
		integrations, err := gateway.ListAll(ctx, scheduledParams(query))
		if err != nil {
			return nil, fmt.Errorf("listing scheduled integrations: %w", err)
		}

		return integrations, nil
	}

	targets, failures := targetsFromIDs(ctx, gateway, ids)
	for id, err := range failures {
		e.logger.Warn("failed to get integration", map[string]interface{}{"integration": id, "error": err.Error()})
	}

	scheduled := make([]oic.Object, 0, len(targets))

	for _, integration := range targets {
		if !isScheduled(integration) {
			e.logger.Info("skipping integration without schedule type", map[string]interface{}{"integration": integration.ID(), "name": nameOf(integration)})

			continue
		}

		scheduled = append(scheduled, integration)
	}

	return scheduled, nil
}

// findScheduled returns the first scheduled integration whose field matches value.
func (e *ScheduleEngine) findScheduled(ctx context.Context, field, value string) (oic.Object, error) {
	matches, err := e.api().Integrations().List(ctx, scheduledParams(field+":"+value))
	if err != nil {
		return nil, fmt.Errorf("finding integration by %s: %w", field, err)
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w with %s %s", ErrIntegrationMissing, field, value)
	}

	return matches[0], nil
}

type scheduleFailure struct {
	Key   string `json:"key"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

func (e *ScheduleEngine) update(ctx context.Context, cmd UpdateSchedules) *oic.WorkflowResult {
	result := oic.NewWorkflowResult(fmt.Sprintf("Updating schedules for %d integrations", len(cmd.Updates)))
	if len(cmd.Updates) == 0 {
		result.Message = "No schedule updates provided"

		return result
	}

	gateway := e.api().Integrations()
	successful := []oic.Object{}
	failed := []scheduleFailure{}

	for _, key := range sortedKeys(cmd.Updates) {
		id, name, err := key, "", error(nil)

		if cmd.ByIdentifier {
			var match oic.Object

			match, err = e.findScheduled(ctx, "identifier", key)
			if err == nil {
				id, name = match.ID(), nameOf(match)
			}
		}

		var previous, current oic.Object
		if err == nil {
			previous, current, name, err = e.mergeSchedule(ctx, gateway, id, name, cmd.Updates[key])
		}

		e.resourceDone(oic.KindIntegration, err == nil)

		if err != nil {
			msg := "Failed to update schedule: " + err.Error()
			failed = append(failed, scheduleFailure{Key: key, ID: id, Name: name, Error: msg})
			result.AddError(msg, err, id)

			if !cmd.ContinueOnError {
				result.Message = msg

				break
			}

			continue
		}

		successful = append(successful, oic.Object{"id": id, "name": name, "previous_schedule": previous, "updated_schedule": current})
		result.AddResource(oic.KindIntegration, id, oic.Object{"name": name, "schedule_updated": true, "schedule": current})
	}

	result.SetDetail("successful_updates", successful)
	result.SetDetail("failed_updates", failed)
	result.SetDetail("successful_count", len(successful))
	result.SetDetail("failed_count", len(failed))

	switch {
	case len(failed) == 0:
		result.Message = fmt.Sprintf("Successfully updated schedules for %d integrations", len(successful))
	case cmd.ContinueOnError:
		result.Message = fmt.Sprintf("Updated schedules for %d integrations, %d failed", len(successful), len(failed))
	}

	return result
}

// mergeSchedule overlays changes on the current schedule of id and reads the
// stored schedule back.
func (e *ScheduleEngine) mergeSchedule(ctx context.Context, gateway oic.IntegrationsGateway, id, name string, changes oic.Object) (oic.Object, oic.Object, string, error) {
	integration, err := gateway.Get(ctx, id)
	if err != nil {
		return nil, nil, name, fmt.Errorf("getting integration: %w", err)
	}

	if name == "" {
		name = nameOf(integration)
	}

	if !isScheduled(integration) {
		return nil, nil, name, fmt.Errorf("%w: %s", ErrNotScheduled, name)
	}

	if !integration.Has("schedule") {
		return nil, nil, name, fmt.Errorf("%w: %s", ErrNoSchedule, name)
	}

	previous := integration.Map("schedule").Clone()
	updated := integration.Clone()
	merged := previous.Clone()

	for key, value := range changes {
		merged[key] = value
	}

	updated["schedule"] = merged

	e.logger.Info("updating schedule", map[string]interface{}{"integration": id, "name": name})

	_, err = gateway.Update(ctx, id, updated)
	if err != nil {
		return nil, nil, name, fmt.Errorf("updating integration: %w", err)
	}

	stored, err := gateway.Get(ctx, id)
	if err != nil {
		return nil, nil, name, fmt.Errorf("verifying schedule: %w", err)
	}

	return previous, stored.Map("schedule"), name, nil
}

func (e *ScheduleEngine) export(ctx context.Context, cmd ExportSchedules) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Exporting integration schedules")

	format := cmd.Format
	if format == "" {
		format = FormatJSON
	}

	file := cmd.File
	if file == "" {
		file = "integration_schedules." + format
	}

	if format != FormatJSON && format != FormatCSV && format != FormatYAML {
		err := fmt.Errorf("%w: %s", ErrScheduleFormat, format)
		result.Fail("Unsupported export format: " + format)
		result.AddError("Unsupported export format", err, "")

		return result
	}

	integrations, err := e.scheduledIntegrations(ctx, cmd.IDs, cmd.Query)
	if err != nil {
		result.Fail("Failed to export schedules: " + err.Error())
		result.AddError("Failed to export schedules", err, "")

		return result
	}

	entries := map[string]ScheduleEntry{}

	for _, integration := range integrations {
		id := integration.ID()
		if id == "" {
			continue
		}

		if !integration.Has("schedule") {
			e.logger.Warn("integration has no schedule, skipping", map[string]interface{}{"integration": id})

			continue
		}

		entries[id] = ScheduleEntry{
			Name:       nameOf(integration),
			Identifier: integration.StringOr("identifier", "Unknown"),
			Schedule:   integration.Map("schedule"),
		}
		result.AddResource(oic.KindIntegration, id, oic.Object{
			"name":         nameOf(integration),
			"identifier":   entries[id].Identifier,
			"has_schedule": true,
		})
	}

	if len(entries) == 0 {
		result.Message = "No scheduled integrations found to export"

		return result
	}

	err = writeScheduleFile(file, format, entries)
	if err != nil {
		result.Fail(fmt.Sprintf("Failed to write schedules to %s file: %s", strings.ToUpper(format), err))
		result.AddError("Failed to write schedule file", err, "")

		return result
	}

	result.SetDetail("export_file", file)
	result.SetDetail("exported_count", len(entries))
	result.Message = fmt.Sprintf("Successfully exported schedules for %d integrations to %s", len(entries), file)

	return result
}

func writeScheduleFile(path, format string, entries map[string]ScheduleEntry) error {
	if dir := filepath.Dir(path); dir != "." {
		err := os.MkdirAll(dir, constants.ConfigDirPerm)
		if err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}

	var (
		encoded []byte
		err     error
	)

	switch format {
	case FormatCSV:
		return writeCSV(path, scheduleRows(entries))
	case FormatYAML:
		encoded, err = yaml.Marshal(entries)
	default:
		encoded, err = json.MarshalIndent(entries, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("encoding schedules: %w", err)
	}

	err = os.WriteFile(path, encoded, constants.ArtifactFilePerm)
	if err != nil {
		return fmt.Errorf("writing schedules: %w", err)
	}

	return nil
}

func scalar(value interface{}) string {
	if value == nil {
		return ""
	}

	if f, ok := value.(float64); ok && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}

	return fmt.Sprint(value)
}

func scheduleDays(schedule oic.Object) []string {
	raw := schedule.Map("recurringSchedule").Slice("dayOfWeek")
	days := make([]string, 0, len(raw))

	for _, day := range raw {
		days = append(days, scalar(day))
	}

	return days
}

func scheduleRows(entries map[string]ScheduleEntry) [][]string {
	rows := [][]string{scheduleCSVHeader}

	for _, id := range sortedKeys(entries) {
		entry := entries[id]
		schedule := entry.Schedule
		enabled, _ := schedule.Bool("enabled")
		recurring := schedule.Map("recurringSchedule")

		rows = append(rows, []string{
			id,
			entry.Name,
			entry.Identifier,
			strconv.FormatBool(enabled),
			schedule.String("frequency"),
			schedule.String("startDate"),
			schedule.String("time"),
			schedule.String("endDate"),
			strings.Join(scheduleDays(schedule), ","),
			scalar(recurring["hour"]),
			scalar(recurring["minute"]),
		})
	}

	return rows
}

// readScheduleFile loads a schedule file by its extension.
func readScheduleFile(path string) (map[string]ScheduleEntry, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".csv" {
		return readScheduleCSV(path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schedule file: %w", err)
	}

	var root interface{}

	switch ext {
	case ".json":
		err = json.Unmarshal(raw, &root)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &root)
	default:
		return nil, fmt.Errorf("%w: %s", ErrScheduleFormat, ext)
	}

	if err != nil {
		return nil, fmt.Errorf("decoding schedule file: %w", err)
	}

	mapping, ok := root.(map[string]interface{})
	if !ok {
		return nil, ErrScheduleFileRoot
	}

	entries := make(map[string]ScheduleEntry, len(mapping))

	for key, value := range mapping {
		data := oic.AsObject(value)

		entry := ScheduleEntry{Name: data.StringOr("name", "Unknown"), Identifier: data.StringOr("identifier", "Unknown")}
		if data.Has("schedule") {
			entry.Schedule = oic.AsObject(data["schedule"])
		}

		entries[key] = entry
	}

	return entries, nil
}

func readScheduleCSV(path string) (map[string]ScheduleEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading schedule file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decoding schedule file: %w", err)
	}

	entries := map[string]ScheduleEntry{}
	if len(records) == 0 {
		return entries, nil
	}

	column := map[string]int{}
	for i, name := range records[0] {
		column[name] = i
	}

	field := func(row []string, name string) string {
		i, ok := column[name]
		if !ok || i >= len(row) {
			return ""
		}

		return row[i]
	}

	for _, row := range records[1:] {
		id := field(row, "Integration ID")
		if id == "" {
			continue
		}

		schedule := oic.Object{
			"enabled":   strings.EqualFold(field(row, "Enabled"), "true"),
			"frequency": field(row, "Frequency"),
			"startDate": field(row, "Start Date"),
			"time":      field(row, "Time"),
		}

		if end := field(row, "End Date"); end != "" {
			schedule["endDate"] = end
		}

		days, hours, minutes := field(row, "Days"), field(row, "Hours"), field(row, "Minutes")
		if days != "" || hours != "" || minutes != "" {
			recurring := oic.Object{}

			if days != "" {
				list := []interface{}{}
				for _, day := range strings.Split(days, ",") {
					list = append(list, day)
				}

				recurring["dayOfWeek"] = list
			}

			if hours != "" {
				recurring["hour"] = hours
			}

			if minutes != "" {
				recurring["minute"] = minutes
			}

			schedule["recurringSchedule"] = recurring
		}

		entries[id] = ScheduleEntry{Name: field(row, "Name"), Identifier: field(row, "Identifier"), Schedule: schedule}
	}

	return entries, nil
}

func (e *ScheduleEngine) matchEntry(ctx context.Context, key string, entry ScheduleEntry, matchBy string) (oic.Object, error) {
	switch matchBy {
	case MatchByID, "":
		integration, err := e.api().Integrations().Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w using id: %s", ErrIntegrationMissing, key)
		}

		if integration.ID() == "" {
			integration = integration.Clone()
			integration["id"] = key
		}

		return integration, nil
	case MatchByIdentifier:
		return e.findScheduled(ctx, "identifier", entry.Identifier)
	case MatchByName:
		return e.findScheduled(ctx, "name", entry.Name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMatchBy, matchBy)
	}
}

func (e *ScheduleEngine) importFile(ctx context.Context, cmd ImportSchedules) *oic.WorkflowResult {
	dry := ""
	if cmd.DryRun {
		dry = " (DRY RUN)"
	}

	result := oic.NewWorkflowResult("Importing integration schedules" + dry)

	_, err := os.Stat(cmd.File)
	if err != nil {
		result.Fail(fmt.Sprintf("Import file %s does not exist", cmd.File))
		result.AddError("Import file does not exist", err, "")

		return result
	}

	entries, err := readScheduleFile(cmd.File)
	if err != nil {
		result.Fail("Failed to import schedules: " + err.Error())
		result.AddError("Failed to import schedules", err, "")

		return result
	}

	if len(entries) == 0 {
		result.Message = "No schedule data found in import file"

		return result
	}

	gateway := e.api().Integrations()
	successful := []oic.Object{}
	failed := []scheduleFailure{}

	fail := func(key, id string, err error) bool {
		msg := "Failed to import schedule: " + err.Error()
		failed = append(failed, scheduleFailure{Key: key, ID: id, Error: msg})
		result.AddError(msg, err, id)

		if !cmd.ContinueOnError {
			result.Message = msg

			return true
		}

		return false
	}

	for _, key := range sortedKeys(entries) {
		entry := entries[key]

		if entry.Schedule == nil {
			if fail(key, "", fmt.Errorf("%w: %s", ErrNoSchedule, key)) {
				break
			}

			continue
		}

		target, err := e.matchEntry(ctx, key, entry, cmd.MatchBy)
		if err == nil && !isScheduled(target) {
			err = fmt.Errorf("%w: %s", ErrNotScheduled, entry.Name)
		}

		if err != nil {
			if fail(key, "", err) {
				break
			}

			continue
		}

		id := target.ID()

		if !cmd.DryRun {
			updated := target.Clone()
			updated["schedule"] = entry.Schedule

			_, err = gateway.Update(ctx, id, updated)
			e.resourceDone(oic.KindIntegration, err == nil)

			if err != nil {
				if fail(key, id, err) {
					break
				}

				continue
			}
		}

		successful = append(successful, oic.Object{"id": id, "name": entry.Name, "schedule": entry.Schedule})
		attrs := oic.Object{"name": entry.Name, "schedule": entry.Schedule}

		if cmd.DryRun {
			attrs["dry_run"] = true
		} else {
			attrs["schedule_updated"] = true
		}

		result.AddResource(oic.KindIntegration, id, attrs)
	}

	result.SetDetail("successful_imports", successful)
	result.SetDetail("failed_imports", failed)
	result.SetDetail("successful_count", len(successful))
	result.SetDetail("failed_count", len(failed))
	result.SetDetail("dry_run", cmd.DryRun)

	switch {
	case len(failed) == 0:
		result.Message = fmt.Sprintf("Successfully imported schedules for %d integrations%s", len(successful), dry)
	case cmd.ContinueOnError:
		result.Message = fmt.Sprintf("Imported schedules for %d integrations, %d failed%s", len(successful), len(failed), dry)
	}

	return result
}

// ScheduleCheck is the validation outcome of one schedule.
type ScheduleCheck struct {
	Valid  bool     `json:"valid"  yaml:"valid"`
	Issues []string `json:"issues" yaml:"issues"`
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}

// check applies the rules to one schedule. concurrent counts enabled
// schedules per start time.
func (r ScheduleRules) check(schedule oic.Object, concurrent map[string]int) ScheduleCheck {
	issues := []string{}

	if r.Enabled != nil {
		enabled, _ := schedule.Bool("enabled")
		if enabled != *r.Enabled {
			issues = append(issues, fmt.Sprintf("Schedule enabled status %t does not match required status %t", enabled, *r.Enabled))
		}
	}

	if r.Frequency != "" {
		if frequency := schedule.String("frequency"); frequency != r.Frequency {
			issues = append(issues, fmt.Sprintf("Schedule frequency %s does not match required frequency %s", frequency, r.Frequency))
		}
	}

	at := schedule.StringOr("time", "00:00:00")

	if r.Earliest != "" && at < r.Earliest {
		issues = append(issues, fmt.Sprintf("Schedule time %s is earlier than allowed time %s", at, r.Earliest))
	}

	if r.Latest != "" && at > r.Latest {
		issues = append(issues, fmt.Sprintf("Schedule time %s is later than allowed time %s", at, r.Latest))
	}

	days := scheduleDays(schedule)

	if r.AllowedDays != nil {
		for _, day := range days {
			if !contains(r.AllowedDays, day) {
				issues = append(issues, fmt.Sprintf("Schedule includes day %s which is not in allowed days %v", day, r.AllowedDays))
			}
		}
	}

	for _, day := range days {
		if contains(r.ForbiddenDays, day) {
			issues = append(issues, "Schedule includes forbidden day "+day)
		}
	}

	if r.MinIntervalMinutes > 0 {
		if raw, ok := schedule.Map("recurringSchedule")["minute"]; ok {
			minute, err := strconv.Atoi(scalar(raw))
			if err == nil && minute%r.MinIntervalMinutes != 0 {
				issues = append(issues, fmt.Sprintf("Schedule minute %d does not meet minimum interval %d minutes", minute, r.MinIntervalMinutes))
			}
		}
	}

	if r.MaxConcurrent > 0 {
		if count := concurrent[at]; count > r.MaxConcurrent {
			issues = append(issues, fmt.Sprintf("Schedule time %s has %d concurrent schedules, exceeding maximum of %d", at, count, r.MaxConcurrent))
		}
	}

	if r.RequireEndDate && schedule.String("endDate") == "" {
		issues = append(issues, "Schedule is missing required end date")
	}

	return ScheduleCheck{Valid: len(issues) == 0, Issues: issues}
}

func (e *ScheduleEngine) validate(ctx context.Context, cmd ValidateSchedules) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Validating integration schedules")

	rules := DefaultScheduleRules()
	if cmd.Rules != nil {
		rules = *cmd.Rules
	}

	err := rules.Validate()
	if err != nil {
		result.Fail("Failed to validate schedules: " + err.Error())
		result.AddError("Invalid validation rules", err, "")

		return result
	}

	integrations, err := e.scheduledIntegrations(ctx, cmd.IDs, cmd.Query)
	if err != nil {
		result.Fail("Failed to validate schedules: " + err.Error())
		result.AddError("Failed to validate schedules", err, "")

		return result
	}

	if len(integrations) == 0 {
		result.Message = "No scheduled integrations found to validate"

		return result
	}

	concurrent := map[string]int{}

	for _, integration := range integrations {
		schedule := integration.Map("schedule")
		if integration.ID() == "" || schedule == nil {
			continue
		}

		if enabled, _ := schedule.Bool("enabled"); enabled {
			concurrent[schedule.StringOr("time", "00:00:00")]++
		}
	}

	checks := map[string]ScheduleCheck{}
	valid, invalid := 0, 0

	for _, integration := range integrations {
		id := integration.ID()
		schedule := integration.Map("schedule")

		if id == "" || schedule == nil {
			continue
		}

		check := rules.check(schedule, concurrent)
		checks[id] = check

		if check.Valid {
			valid++
		} else {
			invalid++
		}

		result.AddResource(oic.KindIntegration, id, oic.Object{
			"name":            nameOf(integration),
			"schedule_valid":  check.Valid,
			"schedule_issues": check.Issues,
			"schedule":        schedule,
		})
	}

	result.SetDetail("validation_results", checks)
	result.SetDetail("all_valid", invalid == 0)
	result.SetDetail("validated_count", len(checks))
	result.SetDetail("validation_rules", rules)
	result.SetDetail("valid_count", valid)
	result.SetDetail("invalid_count", invalid)

	if invalid == 0 {
		result.Message = fmt.Sprintf("All %d integration schedules are valid", valid)
	} else {
		result.Fail(fmt.Sprintf("Found %d invalid integration schedules out of %d total", invalid, len(checks)))
	}

	return result
}

// ScheduleSummary is one row of ListSchedules.
type ScheduleSummary struct {
	ID                string     `json:"id"                yaml:"id"`
	Name              string     `json:"name"              yaml:"name"`
	Enabled           bool       `json:"enabled"           yaml:"enabled"`
	Frequency         string     `json:"frequency"         yaml:"frequency"`
	StartDate         string     `json:"startDate"         yaml:"startDate"`
	Time              string     `json:"time"              yaml:"time"`
	EndDate           string     `json:"endDate"           yaml:"endDate"`
	RecurringSchedule oic.Object `json:"recurringSchedule" yaml:"recurringSchedule"`
	Days              []string   `json:"days"              yaml:"days"`
}

func (e *ScheduleEngine) list(ctx context.Context, cmd ListSchedules) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Listing integration schedules")

	integrations, err := e.scheduledIntegrations(ctx, cmd.IDs, cmd.Query)
	if err != nil {
		result.Fail("Failed to list schedules: " + err.Error())
		result.AddError("Failed to list schedules", err, "")

		return result
	}

	if len(integrations) == 0 {
		result.Message = "No scheduled integrations found"

		return result
	}

	schedules := map[string]ScheduleSummary{}
	active, inactive := []ScheduleSummary{}, []ScheduleSummary{}

	for _, integration := range integrations {
		id := integration.ID()
		schedule := integration.Map("schedule")

		if id == "" || schedule == nil {
			continue
		}

		enabled, _ := schedule.Bool("enabled")
		if !enabled && !cmd.IncludeDisabled {
			continue
		}

		recurring := schedule.Map("recurringSchedule")
		if recurring == nil {
			recurring = oic.Object{}
		}

		summary := ScheduleSummary{
			ID:                id,
			Name:              nameOf(integration),
			Enabled:           enabled,
			Frequency:         schedule.StringOr("frequency", "UNKNOWN"),
			StartDate:         schedule.String("startDate"),
			Time:              schedule.String("time"),
			EndDate:           schedule.String("endDate"),
			RecurringSchedule: recurring,
			Days:              scheduleDays(schedule),
		}

		schedules[id] = summary

		if enabled {
			active = append(active, summary)
		} else {
			inactive = append(inactive, summary)
		}

		result.AddResource(oic.KindIntegration, id, oic.Object{"name": summary.Name, "schedule": schedule})
	}

	result.SetDetail("schedules", schedules)
	result.SetDetail("active_schedules", active)
	result.SetDetail("inactive_schedules", inactive)
	result.SetDetail("total_count", len(schedules))
	result.SetDetail("active_count", len(active))
	result.SetDetail("inactive_count", len(inactive))

	if cmd.GroupBy != "" && cmd.GroupBy != ScheduleGroupNone {
		result.SetDetail("grouped_schedules", groupSchedules(schedules, cmd.GroupBy))
		result.SetDetail("group_by", cmd.GroupBy)
	}

	result.Message = fmt.Sprintf("Found %d active and %d inactive integration schedules", len(active), len(inactive))

	return result
}

func groupSchedules(schedules map[string]ScheduleSummary, groupBy string) map[string][]ScheduleSummary {
	grouped := map[string][]ScheduleSummary{}

	for _, id := range sortedKeys(schedules) {
		summary := schedules[id]

		switch groupBy {
		case ScheduleGroupTime:
			key := summary.Time
			if key == "" {
				key = "UNKNOWN"
			}

			grouped[key] = append(grouped[key], summary)
		case ScheduleGroupDay:
			if len(summary.Days) == 0 {
				grouped["NONE"] = append(grouped["NONE"], summary)
			}

			for _, day := range summary.Days {
				grouped[day] = append(grouped[day], summary)
			}
		case ScheduleGroupFrequency:
			grouped[summary.Frequency] = append(grouped[summary.Frequency], summary)
		}
	}

	return grouped
}
