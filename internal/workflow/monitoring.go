package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Monitoring operations.
const (
	OpHealthCheck        Operation = "health_check"
	OpAnalyzeErrors      Operation = "analyze_errors"
	OpPerformanceMetrics Operation = "performance_metrics"
	OpPurgeInstances     Operation = "purge_instances"
	OpGenerateReport     Operation = "generate_report"
)

// Error groupings of AnalyzeErrors.
const (
	GroupByIntegration = "integration"
	GroupByErrorType   = "error_type"
	GroupByTime        = "time"
)

// Report types and formats of GenerateReport.
const (
	ReportFull        = "full"
	ReportErrors      = "errors"
	ReportPerformance = "performance"
	ReportUsage       = "usage"

	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Health states.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthUnknown  = "unknown"
)

const (
	degradedErrorRate  = 0.2
	recentErrorSamples = 5
	topGroups          = 5
	topPerGroup        = 3
	defaultPurgeBatch  = 100
	instanceCompleted  = "COMPLETED"
	dateLayout         = "2006-01-02"
)

// Static errors for err113 compliance.
var (
	ErrUnknownReportType   = errors.New("unknown report type")
	ErrUnknownReportFormat = errors.New("unknown report format")
)

// HealthCheck summarises instance, integration and connection health.
type HealthCheck struct {
	CheckIntegrations bool
	CheckConnections  bool
	// TestConnections runs a live test per connection instead of reading its
	// status.
	TestConnections  bool
	IntegrationQuery string
	ConnectionQuery  string
}

// Operation implements Command.
func (HealthCheck) Operation() Operation { return OpHealthCheck }

// AnalyzeErrors groups recent errors and failed instances. A non-empty
// ReportFile receives the analysis as JSON.
type AnalyzeErrors struct {
	Start         time.Time
	End           time.Time
	IntegrationID string
	ErrorType     string
	GroupBy       string
	ReportFile    string
}

// Operation implements Command.
func (AnalyzeErrors) Operation() Operation { return OpAnalyzeErrors }

// PerformanceMetrics collects counts, errors and run durations. Metrics
// selects among "counts", "durations" and "errors"; empty selects all.
type PerformanceMetrics struct {
	Start         time.Time
	End           time.Time
	IntegrationID string
	// Interval buckets durations by hour, day, week or month.
	Interval   string
	Metrics    []string
	ReportFile string
}

// Operation implements Command.
func (PerformanceMetrics) Operation() Operation { return OpPerformanceMetrics }

// PurgeInstances deletes run instances matching the filters.
type PurgeInstances struct {
	IntegrationID string
	Status        string
	Start         time.Time
	End           time.Time
	DryRun        bool
	BatchSize     int
}

// Operation implements Command.
func (PurgeInstances) Operation() Operation { return OpPurgeInstances }

// GenerateReport writes a monitoring report of Type in Format.
type GenerateReport struct {
	Type       string
	Format     string
	Start      time.Time
	End        time.Time
	ReportFile string
}

// Operation implements Command.
func (GenerateReport) Operation() Operation { return OpGenerateReport }

// MonitoringEngine reads run instances and statistics.
type MonitoringEngine struct {
	engine
}

// NewMonitoringEngine creates a monitoring engine.
func NewMonitoringEngine(deps Deps) *MonitoringEngine {
	return &MonitoringEngine{engine: newEngine(FamilyMonitoring, deps)}
}

// Execute implements Engine.
func (e *MonitoringEngine) Execute(ctx context.Context, cmd Command) *oic.WorkflowResult {
	switch c := cmd.(type) {
	case HealthCheck:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.healthCheck(ctx, c) })
	case AnalyzeErrors:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.analyzeErrors(ctx, c) })
	case PerformanceMetrics:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.performance(ctx, c) })
	case PurgeInstances:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.purge(ctx, c) })
	case GenerateReport:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.report(ctx, c) })
	default:
		return e.unknown(cmd)
	}
}

// timeRange describes a window for messages.
func timeRange(start, end time.Time) string {
	switch {
	case !start.IsZero() && !end.IsZero():
		return fmt.Sprintf("from %s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	case !start.IsZero():
		return "from " + start.Format(time.RFC3339)
	case !end.IsZero():
		return "until " + end.Format(time.RFC3339)
	default:
		return "for the retention period"
	}
}

func windowParams(start, end time.Time, integrationID string) url.Values {
	params := url.Values{}

	if !start.IsZero() {
		params.Set("startTime", start.UTC().Format(time.RFC3339))
	}

	if !end.IsZero() {
		params.Set("endTime", end.UTC().Format(time.RFC3339))
	}

	if integrationID != "" {
		params.Set("integrationId", integrationID)
	}

	return params
}

// ComponentHealth is the health of one part of the instance.
type ComponentHealth struct {
	Status      string           `json:"status"                yaml:"status"`
	Issues      []string         `json:"issues,omitempty"      yaml:"issues,omitempty"`
	Error       string           `json:"error,omitempty"       yaml:"error,omitempty"`
	Total       int              `json:"total,omitempty"       yaml:"total,omitempty"`
	Counts      map[string]int   `json:"counts,omitempty"      yaml:"counts,omitempty"`
	Problematic []map[string]any `json:"problematic,omitempty" yaml:"problematic,omitempty"`
	Tested      bool             `json:"tested,omitempty"      yaml:"tested,omitempty"`
	Stats       oic.Object       `json:"stats,omitempty"       yaml:"stats,omitempty"`
}

func (e *MonitoringEngine) healthCheck(ctx context.Context, cmd HealthCheck) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Performing OIC health check")
	summary := map[string]*ComponentHealth{}

	summary["instance"] = e.instanceHealth(ctx, result)
	result.SetDetail("instance_health", summary["instance"])

	if cmd.CheckIntegrations {
		summary["integrations"] = e.integrationHealth(ctx, result, cmd.IntegrationQuery)
		result.SetDetail("integration_health", summary["integrations"])
	}

	if cmd.CheckConnections {
		summary["connections"] = e.connectionHealth(ctx, result, cmd.ConnectionQuery, cmd.TestConnections)
		result.SetDetail("connection_health", summary["connections"])
	}

	var issues []string

	for _, part := range []string{"instance", "integrations", "connections"} {
		if health, ok := summary[part]; ok && health.Status != HealthHealthy {
			issues = append(issues, part)
		}
	}

	overall := HealthHealthy
	if len(issues) > 0 {
		overall = HealthDegraded
	}

	result.SetDetail("overall_health", overall)
	result.SetDetail("health_summary", summary)

	if overall == HealthHealthy {
		result.Message = "OIC instance is healthy"
	} else {
		result.Fail("OIC health check found issues with: " + strings.Join(issues, ", "))
	}

	return result
}

func (e *MonitoringEngine) instanceHealth(ctx context.Context, result *oic.WorkflowResult) *ComponentHealth {
	stats, err := e.api().Monitoring().IntegrationStats(ctx, nil)
	if err != nil {
		result.AddError("Failed to check instance health", err, "")

		return &ComponentHealth{Status: HealthUnknown, Error: err.Error()}
	}

	health := &ComponentHealth{Status: HealthHealthy, Stats: stats}

	inner := stats.Map("stats")
	if inner == nil {
		return health
	}

	total, hasTotal := inner.Int("total")
	failed, hasErrors := inner.Int("errors")

	if hasTotal && hasErrors && total > 0 && float64(failed)/float64(total) > degradedErrorRate {
		health.Status = HealthDegraded
		health.Issues = []string{"High error rate"}
	}

	return health
}

func (e *MonitoringEngine) integrationHealth(ctx context.Context, result *oic.WorkflowResult, query string) *ComponentHealth {
	integrations, err := e.api().Integrations().ListAll(ctx, listParams(query))
	if err != nil {
		result.AddError("Failed to check integration health", err, "")

		return &ComponentHealth{Status: HealthUnknown, Error: err.Error()}
	}

	health := &ComponentHealth{
		Status: HealthHealthy,
		Total:  len(integrations),
		Counts: map[string]int{constants.StatusActivated: 0, constants.StatusConfigured: 0, constants.StatusError: 0, "other": 0},
	}

	for _, integration := range integrations {
		status := integration.StringOr("status", constants.StatusUnknown)

		if _, known := health.Counts[status]; known && status != "other" {
			health.Counts[status]++
		} else {
			health.Counts["other"]++
		}

		if status != constants.StatusError {
			continue
		}

		health.Status = HealthDegraded
		health.Problematic = append(health.Problematic, map[string]any{"id": integration.ID(), "name": nameOf(integration), "status": status})
		result.AddResource(oic.KindIntegration, integration.ID(), oic.Object{"name": nameOf(integration), "status": status, "health": "error"})
	}

	return health
}

func (e *MonitoringEngine) connectionHealth(ctx context.Context, result *oic.WorkflowResult, query string, test bool) *ComponentHealth {
	gateway := e.api().Connections()

	connections, err := gateway.ListAll(ctx, listParams(query))
	if err != nil {
		result.AddError("Failed to check connection health", err, "")

		return &ComponentHealth{Status: HealthUnknown, Error: err.Error()}
	}

	health := &ComponentHealth{Status: HealthHealthy, Total: len(connections), Tested: test}

	for _, connection := range connections {
		id, name := connection.ID(), nameOf(connection)
		status := connection.StringOr("status", constants.StatusUnknown)
		attrs := oic.Object{"name": name, "status": status, "health": HealthHealthy}
		problem := map[string]any{"id": id, "name": name, "status": status}
		healthy := true

		switch {
		case test && id != "":
			outcome, err := gateway.Test(ctx, id)

			switch {
			case err != nil:
				healthy = false
				attrs["error"] = err.Error()
				problem["error"] = err.Error()
			default:
				testStatus := outcome.StringOr("status", constants.StatusUnknown)
				attrs["test_status"] = testStatus
				healthy = testStatus == constants.StatusSuccess

				if !healthy {
					problem["test_result"] = outcome
				}
			}
		case status != constants.StatusConfigured && status != constants.StatusActivated:
			healthy = false
		}

		if !healthy {
			health.Status = HealthDegraded
			health.Problematic = append(health.Problematic, problem)
			attrs["health"] = "error"
		}

		if test || !healthy {
			result.AddResource(oic.KindConnection, id, attrs)
		}
	}

	return health
}

// KeyCount is one entry of a ranked count.
type KeyCount struct {
	Key   string `json:"key"   yaml:"key"`
	Count int    `json:"count" yaml:"count"`
}

func topCounts(counts map[string]int, n int) []KeyCount {
	ranked := make([]KeyCount, 0, len(counts))
	for key, count := range counts {
		ranked = append(ranked, KeyCount{Key: key, Count: count})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}

		return ranked[i].Key < ranked[j].Key
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}

	return ranked
}

// ErrorSample is one recent error kept for context.
type ErrorSample struct {
	Time        string `json:"time"                  yaml:"time"`
	Message     string `json:"message"               yaml:"message"`
	Type        string `json:"type,omitempty"        yaml:"type,omitempty"`
	Integration string `json:"integration,omitempty" yaml:"integration,omitempty"`
}

// ErrorGroup aggregates the errors of one integration, type or day.
type ErrorGroup struct {
	Name         string         `json:"name,omitempty"          yaml:"name,omitempty"`
	Count        int            `json:"count"                   yaml:"count"`
	ErrorTypes   map[string]int `json:"error_types,omitempty"   yaml:"error_types,omitempty"`
	Integrations map[string]int `json:"integrations,omitempty"  yaml:"integrations,omitempty"`
	RecentErrors []ErrorSample  `json:"recent_errors,omitempty" yaml:"recent_errors,omitempty"`
}

func (g *ErrorGroup) add(errorType, integration string, sample *ErrorSample) {
	g.Count++

	if errorType != "" {
		if g.ErrorTypes == nil {
			g.ErrorTypes = map[string]int{}
		}

		g.ErrorTypes[errorType]++
	}

	if integration != "" {
		if g.Integrations == nil {
			g.Integrations = map[string]int{}
		}

		g.Integrations[integration]++
	}

	if sample != nil && len(g.RecentErrors) < recentErrorSamples {
		g.RecentErrors = append(g.RecentErrors, *sample)
	}
}

// ErrorAnalysis is the error_analysis detail.
type ErrorAnalysis struct {
	ByIntegration        map[string]*ErrorGroup `json:"by_integration"         yaml:"by_integration"`
	ByErrorType          map[string]*ErrorGroup `json:"by_error_type"          yaml:"by_error_type"`
	ByTime               map[string]*ErrorGroup `json:"by_time"                yaml:"by_time"`
	TotalErrors          int                    `json:"total_errors"           yaml:"total_errors"`
	TotalFailedInstances int                    `json:"total_failed_instances" yaml:"total_failed_instances"`
}

// ErrorSummaryEntry is one ranked group of the error summary.
type ErrorSummaryEntry struct {
	Key   string     `json:"key"            yaml:"key"`
	Name  string     `json:"name,omitempty" yaml:"name,omitempty"`
	Count int        `json:"count"          yaml:"count"`
	Top   []KeyCount `json:"top"            yaml:"top"`
}

func group(groups map[string]*ErrorGroup, key, name string) *ErrorGroup {
	existing, ok := groups[key]
	if !ok {
		existing = &ErrorGroup{Name: name}
		groups[key] = existing
	}

	return existing
}

// classifyFailure guesses the error type of a failed instance from its message.
func classifyFailure(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "connection"):
		return "CONNECTION_ERROR"
	case strings.Contains(lower, "timeout"):
		return "TIMEOUT_ERROR"
	case strings.Contains(lower, "validation"):
		return "VALIDATION_ERROR"
	default:
		return "RUNTIME_ERROR"
	}
}

// summarize ranks the groups selected by groupBy.
func (a *ErrorAnalysis) summarize(groupBy string) []ErrorSummaryEntry {
	entries := []ErrorSummaryEntry{}

	switch groupBy {
	case GroupByTime:
		dates := make([]string, 0, len(a.ByTime))
		for date := range a.ByTime {
			dates = append(dates, date)
		}

		sort.Strings(dates)

		for _, date := range dates {
			g := a.ByTime[date]
			entries = append(entries, ErrorSummaryEntry{Key: date, Count: g.Count, Top: topCounts(g.ErrorTypes, topPerGroup)})
		}
	case GroupByErrorType:
		counts := map[string]int{}
		for key, g := range a.ByErrorType {
			counts[key] = g.Count
		}

		for _, top := range topCounts(counts, topGroups) {
			g := a.ByErrorType[top.Key]
			entries = append(entries, ErrorSummaryEntry{Key: top.Key, Count: g.Count, Top: topCounts(g.Integrations, topPerGroup)})
		}
	default:
		counts := map[string]int{}
		for key, g := range a.ByIntegration {
			counts[key] = g.Count
		}

		for _, top := range topCounts(counts, topGroups) {
			g := a.ByIntegration[top.Key]
			entries = append(entries, ErrorSummaryEntry{Key: top.Key, Name: g.Name, Count: g.Count, Top: topCounts(g.ErrorTypes, topPerGroup)})
		}
	}

	return entries
}

func (e *MonitoringEngine) collectErrors(ctx context.Context, result *oic.WorkflowResult, cmd AnalyzeErrors) (*ErrorAnalysis, error) {
	monitoring := e.api().Monitoring()

	reported, err := monitoring.Errors(ctx, windowParams(cmd.Start, cmd.End, ""))
	if err != nil {
		return nil, fmt.Errorf("reading errors: %w", err)
	}

	failed, err := monitoring.ListInstances(ctx, oic.InstanceFilter{
		IntegrationID: cmd.IntegrationID,
		Status:        constants.StatusFailed,
		StartTime:     cmd.Start,
		EndTime:       cmd.End,
	})
	if err != nil {
		return nil, fmt.Errorf("reading failed instances: %w", err)
	}

	analysis := &ErrorAnalysis{
		ByIntegration:        map[string]*ErrorGroup{},
		ByErrorType:          map[string]*ErrorGroup{},
		ByTime:               map[string]*ErrorGroup{},
		TotalFailedInstances: len(failed),
	}

	for _, record := range reported {
		errorType := record.StringOr("type", "Unknown")
		integration := record.StringOr("integrationId", "Unknown")
		integrationName := record.StringOr("integrationName", "Unknown")
		when := record.StringOr("timestamp", "Unknown")
		message := record.StringOr("message", "Unknown")

		if cmd.ErrorType != "" && errorType != cmd.ErrorType {
			continue
		}

		if cmd.IntegrationID != "" && integration != cmd.IntegrationID {
			continue
		}

		analysis.TotalErrors++

		group(analysis.ByIntegration, integration, integrationName).
			add(errorType, "", &ErrorSample{Time: when, Message: message, Type: errorType})
		group(analysis.ByErrorType, errorType, "").
			add("", integration, &ErrorSample{Time: when, Message: message, Integration: integrationName})

		if when != "Unknown" {
			date, _, _ := strings.Cut(when, "T")
			group(analysis.ByTime, date, "").add(errorType, integration, nil)
		}
	}

	for _, instance := range failed {
		message := instance.StringOr("message", "Unknown")
		errorType := classifyFailure(message)

		if cmd.ErrorType != "" && errorType != cmd.ErrorType {
			continue
		}

		result.AddResource(oic.KindInstance, instance.ID(), oic.Object{
			"integrationId":   instance.StringOr("integrationId", "Unknown"),
			"integrationName": instance.StringOr("integrationName", "Unknown"),
			"status":          instance.String("status"),
			"startTime":       instance.String("startTime"),
			"endTime":         instance.String("endTime"),
			"message":         message,
			"error_type":      errorType,
		})
	}

	return analysis, nil
}

func (e *MonitoringEngine) analyzeErrors(ctx context.Context, cmd AnalyzeErrors) *oic.WorkflowResult {
	window := timeRange(cmd.Start, cmd.End)
	result := oic.NewWorkflowResult("Analyzing errors " + window)

	groupBy := cmd.GroupBy
	if groupBy == "" {
		groupBy = GroupByIntegration
	}

	analysis, err := e.collectErrors(ctx, result, cmd)
	if err != nil {
		result.Fail("Failed to analyze errors: " + err.Error())
		result.AddError("Failed to analyze errors", err, "")

		return result
	}

	if analysis.TotalErrors == 0 && analysis.TotalFailedInstances == 0 {
		result.Message = "No errors found " + window

		return result
	}

	summary := analysis.summarize(groupBy)
	result.SetDetail("error_analysis", analysis)
	result.SetDetail("error_summary", summary)
	result.SetDetail("grouping", groupBy)

	scope := ""
	if cmd.IntegrationID != "" {
		scope = " for integration " + cmd.IntegrationID
	}

	result.Message = fmt.Sprintf("Found %d errors and %d failed instances%s %s",
		analysis.TotalErrors, analysis.TotalFailedInstances, scope, window)

	byIntegration := analysis.summarize(GroupByIntegration)
	byType := analysis.summarize(GroupByErrorType)

	if len(byIntegration) > 0 && len(byType) > 0 {
		result.Message += fmt.Sprintf(". Most errors: %d in %s integration, %d of type %s.",
			byIntegration[0].Count, byIntegration[0].Name, byType[0].Count, byType[0].Key)
	}

	if cmd.ReportFile != "" {
		err = writeJSONReport(cmd.ReportFile, map[string]interface{}{
			"error_analysis": analysis,
			"error_summary":  summary,
			"metadata": map[string]interface{}{
				"timestamp":      e.deps.Now().Format(time.RFC3339),
				"time_range":     window,
				"integration_id": cmd.IntegrationID,
				"error_type":     cmd.ErrorType,
				"group_by":       groupBy,
			},
		})
		if err != nil {
			result.AddError("Failed to generate error report", err, "")
		} else {
			result.SetDetail("report_file", cmd.ReportFile)
			result.Message += " Report generated: " + cmd.ReportFile
		}
	}

	return result
}

// DurationStats aggregates run durations in seconds.
type DurationStats struct {
	Name           string  `json:"name,omitempty"  yaml:"name,omitempty"`
	Count          int     `json:"count"           yaml:"count"`
	TotalSeconds   float64 `json:"total_seconds"   yaml:"total_seconds"`
	AverageSeconds float64 `json:"average_seconds" yaml:"average_seconds"`
	MinSeconds     float64 `json:"min_seconds"     yaml:"min_seconds"`
	MaxSeconds     float64 `json:"max_seconds"     yaml:"max_seconds"`
}

func (d *DurationStats) add(seconds float64) {
	if d.Count == 0 || seconds < d.MinSeconds {
		d.MinSeconds = seconds
	}

	if d.Count == 0 || seconds > d.MaxSeconds {
		d.MaxSeconds = seconds
	}

	d.Count++
	d.TotalSeconds += seconds
	d.AverageSeconds = d.TotalSeconds / float64(d.Count)
}

// Performance is the performance_metrics detail.
type Performance struct {
	Counts          map[string]int            `json:"counts,omitempty"            yaml:"counts,omitempty"`
	Errors          map[string]int            `json:"errors,omitempty"            yaml:"errors,omitempty"`
	TotalInstances  int                       `json:"total_instances"             yaml:"total_instances"`
	TotalErrors     int                       `json:"total_errors"                yaml:"total_errors"`
	Durations       *DurationStats            `json:"durations,omitempty"         yaml:"durations,omitempty"`
	ByIntegration   map[string]*DurationStats `json:"by_integration,omitempty"    yaml:"by_integration,omitempty"`
	ByPeriod        map[string]*DurationStats `json:"by_period,omitempty"         yaml:"by_period,omitempty"`
	SkippedMetrics  []string                  `json:"skipped_metrics,omitempty"   yaml:"skipped_metrics,omitempty"`
	collectedCounts bool
	collectedErrors bool
}

// periodKey buckets t by interval.
func periodKey(t time.Time, interval string) string {
	switch interval {
	case "hour":
		return t.Format("2006-01-02 15:00")
	case "week":
		offset := (int(t.Weekday()) + 6) % 7

		return t.AddDate(0, 0, -offset).Format(dateLayout)
	case "month":
		return t.Format("2006-01")
	default:
		return t.Format(dateLayout)
	}
}

// sumStatCounts adds the numeric entries of a per-period statistics section
// into totals.
func sumStatCounts(section oic.Object, totals map[string]int) int {
	sum := 0

	for _, raw := range section {
		period := oic.AsObject(raw)

		for _, key := range period.Keys() {
			switch key {
			case "timestamp", "integrationId", "integrationName":
				continue
			}

			if n, ok := period.Int(key); ok {
				totals[key] += n
				sum += n
			}
		}
	}

	return sum
}

func wants(metrics []string, name string) bool {
	if len(metrics) == 0 {
		return true
	}

	for _, metric := range metrics {
		if metric == name {
			return true
		}
	}

	return false
}

func (e *MonitoringEngine) collectPerformance(ctx context.Context, cmd PerformanceMetrics) (*Performance, error) {
	monitoring := e.api().Monitoring()
	perf := &Performance{}

	if wants(cmd.Metrics, "counts") || wants(cmd.Metrics, "errors") {
		params := windowParams(cmd.Start, cmd.End, cmd.IntegrationID)
		if cmd.Interval != "" {
			params.Set("interval", cmd.Interval)
		}

		stats, err := monitoring.IntegrationStats(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("reading integration statistics: %w", err)
		}

		data := stats.Map("stats")

		if wants(cmd.Metrics, "counts") && data.Map("counts") != nil {
			perf.Counts = map[string]int{}
			perf.TotalInstances = sumStatCounts(data.Map("counts"), perf.Counts)
			perf.collectedCounts = true
		}

		if wants(cmd.Metrics, "errors") && data.Map("errors") != nil {
			perf.Errors = map[string]int{}
			perf.TotalErrors = sumStatCounts(data.Map("errors"), perf.Errors)
			perf.collectedErrors = true
		}
	}

	if !wants(cmd.Metrics, "durations") {
		return perf, nil
	}

	instances, err := monitoring.ListInstances(ctx, oic.InstanceFilter{
		IntegrationID: cmd.IntegrationID,
		StartTime:     cmd.Start,
		EndTime:       cmd.End,
	})
	if err != nil {
		return nil, fmt.Errorf("reading instances: %w", err)
	}

	perf.Durations = &DurationStats{}
	perf.ByIntegration = map[string]*DurationStats{}
	perf.ByPeriod = map[string]*DurationStats{}

	for _, instance := range instances {
		if instance.String("status") != instanceCompleted {
			continue
		}

		start, errStart := time.Parse(time.RFC3339Nano, instance.String("startTime"))
		end, errEnd := time.Parse(time.RFC3339Nano, instance.String("endTime"))

		if errStart != nil || errEnd != nil {
			continue
		}

		seconds := end.Sub(start).Seconds()
		integration := instance.StringOr("integrationId", "Unknown")

		byIntegration, ok := perf.ByIntegration[integration]
		if !ok {
			byIntegration = &DurationStats{Name: instance.StringOr("integrationName", "Unknown")}
			perf.ByIntegration[integration] = byIntegration
		}

		key := periodKey(start, cmd.Interval)

		byPeriod, ok := perf.ByPeriod[key]
		if !ok {
			byPeriod = &DurationStats{Name: key}
			perf.ByPeriod[key] = byPeriod
		}

		perf.Durations.add(seconds)
		byIntegration.add(seconds)
		byPeriod.add(seconds)
	}

	return perf, nil
}

func (e *MonitoringEngine) performance(ctx context.Context, cmd PerformanceMetrics) *oic.WorkflowResult {
	window := timeRange(cmd.Start, cmd.End)
	result := oic.NewWorkflowResult("Collecting performance metrics " + window)

	perf, err := e.collectPerformance(ctx, cmd)
	if err != nil {
		result.Fail("Failed to collect performance metrics: " + err.Error())
		result.AddError("Failed to collect performance metrics", err, "")

		return result
	}

	result.SetDetail("performance_metrics", perf)

	var parts []string

	if perf.collectedCounts {
		parts = append(parts, fmt.Sprintf("%d total instances", perf.TotalInstances))
	}

	if perf.Durations != nil && perf.Durations.Count > 0 {
		parts = append(parts, fmt.Sprintf("%.2fs average duration", perf.Durations.AverageSeconds))
	}

	if perf.collectedErrors {
		parts = append(parts, fmt.Sprintf("%d errors", perf.TotalErrors))
	}

	if len(parts) == 0 {
		result.Message = "No metrics data available " + window

		return result
	}

	scope := ""
	if cmd.IntegrationID != "" {
		scope = " for integration " + cmd.IntegrationID
	}

	result.Message = fmt.Sprintf("Collected metrics%s %s: %s", scope, window, strings.Join(parts, ", "))

	if cmd.ReportFile != "" {
		err = writeJSONReport(cmd.ReportFile, map[string]interface{}{
			"performance_metrics": perf,
			"metadata": map[string]interface{}{
				"timestamp":      e.deps.Now().Format(time.RFC3339),
				"time_range":     window,
				"integration_id": cmd.IntegrationID,
				"interval":       cmd.Interval,
				"metrics":        cmd.Metrics,
			},
		})
		if err != nil {
			result.AddError("Failed to generate performance report", err, "")

			return result
		}

		result.SetDetail("report_file", cmd.ReportFile)

		if len(perf.ByPeriod) > 0 {
			csvFile := strings.TrimSuffix(cmd.ReportFile, filepath.Ext(cmd.ReportFile)) + "_durations.csv"

			err = writeCSV(csvFile, durationRows(perf))
			if err != nil {
				result.AddError("Failed to write durations report", err, "")
			} else {
				result.SetDetail("csv_durations_file", csvFile)
			}
		}

		result.Message += ". Report generated: " + cmd.ReportFile
	}

	return result
}

func (e *MonitoringEngine) purge(ctx context.Context, cmd PurgeInstances) *oic.WorkflowResult {
	window := timeRange(cmd.Start, cmd.End)

	scope := ""
	if cmd.IntegrationID != "" {
		scope += " for integration " + cmd.IntegrationID
	}

	if cmd.Status != "" {
		scope += " with status " + cmd.Status
	}

	dry := ""
	if cmd.DryRun {
		dry = " (DRY RUN)"
	}

	result := oic.NewWorkflowResult(fmt.Sprintf("Purging integration instances%s %s%s", scope, window, dry))

	instances, err := e.api().Monitoring().ListInstances(ctx, oic.InstanceFilter{
		IntegrationID: cmd.IntegrationID,
		Status:        cmd.Status,
		StartTime:     cmd.Start,
		EndTime:       cmd.End,
	})
	if err != nil {
		result.Fail("Failed to purge instances: " + err.Error())
		result.AddError("Failed to purge instances", err, "")

		return result
	}

	if len(instances) == 0 {
		result.Message = fmt.Sprintf("No instances found to purge%s %s", scope, window)

		return result
	}

	type integrationInstances struct {
		Name      string       `json:"name"`
		Instances []oic.Object `json:"instances"`
	}

	byIntegration := map[string]*integrationInstances{}

	for _, instance := range instances {
		integration := instance.StringOr("integrationId", "Unknown")

		entry, ok := byIntegration[integration]
		if !ok {
			entry = &integrationInstances{Name: instance.StringOr("integrationName", "Unknown")}
			byIntegration[integration] = entry
		}

		entry.Instances = append(entry.Instances, oic.Object{
			"id":        instance.ID(),
			"status":    instance.StringOr("status", "Unknown"),
			"startTime": instance.String("startTime"),
			"endTime":   instance.String("endTime"),
		})
	}

	result.SetDetail("total_instances", len(instances))
	result.SetDetail("instances_by_integration", byIntegration)

	if cmd.DryRun {
		result.Message = fmt.Sprintf("Found %d instances that would be purged%s %s (DRY RUN)", len(instances), scope, window)

		return result
	}

	batchSize := cmd.BatchSize
	if batchSize <= 0 {
		batchSize = defaultPurgeBatch
	}

	ids := make([]string, 0, len(byIntegration))
	for id := range byIntegration {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	purged := map[string]int{}
	total := 0

	for _, integration := range ids {
		entry := byIntegration[integration]

		for start := 0; start < len(entry.Instances); start += batchSize {
			batch := entry.Instances[start:min(start+batchSize, len(entry.Instances))]

			count, err := e.purgeBatch(ctx, integration, batch, cmd)
			if err != nil {
				result.AddError("Failed to purge instances for integration "+entry.Name, err, integration)

				break
			}

			purged[integration] += count
			total += count
			result.AddResource(oic.KindIntegration, integration, oic.Object{"name": entry.Name, "purged_count": purged[integration]})
		}
	}

	result.SetDetail("purged_counts", purged)
	result.SetDetail("total_purged", total)

	if result.Success {
		result.Message = fmt.Sprintf("Successfully purged %d of %d instances%s %s", total, len(instances), scope, window)
	} else {
		result.Message = fmt.Sprintf("Partially purged %d of %d instances%s %s, but encountered errors", total, len(instances), scope, window)
	}

	return result
}

func (e *MonitoringEngine) purgeBatch(ctx context.Context, integration string, batch []oic.Object, cmd PurgeInstances) (int, error) {
	ids := make([]interface{}, 0, len(batch))
	for _, instance := range batch {
		ids = append(ids, instance.ID())
	}

	request := oic.Object{"integrationId": integration, "instanceIds": ids}

	if !cmd.Start.IsZero() {
		request["startTime"] = cmd.Start.UTC().Format(time.RFC3339)
	}

	if !cmd.End.IsZero() {
		request["endTime"] = cmd.End.UTC().Format(time.RFC3339)
	}

	if cmd.Status != "" {
		request["status"] = cmd.Status
	}

	response, err := e.api().Monitoring().Purge(ctx, request)
	if err != nil {
		return 0, err
	}

	if count, ok := response.Int("count"); ok {
		return count, nil
	}

	return len(batch), nil
}

// Usage is the usage section of a monitoring report.
type Usage struct {
	InstanceStats      oic.Object       `json:"instance_stats"      yaml:"instance_stats"`
	Total              int              `json:"total"               yaml:"total"`
	Active             int              `json:"active"              yaml:"active"`
	Inactive           int              `json:"inactive"            yaml:"inactive"`
	ActiveIntegrations []map[string]any `json:"active_integrations" yaml:"active_integrations"`
}

func (e *MonitoringEngine) collectUsage(ctx context.Context) (*Usage, error) {
	stats, err := e.api().Monitoring().IntegrationStats(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("reading instance statistics: %w", err)
	}

	integrations, err := e.api().Integrations().ListAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing integrations: %w", err)
	}

	usage := &Usage{InstanceStats: stats, Total: len(integrations), ActiveIntegrations: []map[string]any{}}

	for _, integration := range integrations {
		if integration.String("status") != constants.StatusActivated {
			continue
		}

		usage.Active++
		usage.ActiveIntegrations = append(usage.ActiveIntegrations, map[string]any{
			"id":   integration.ID(),
			"name": nameOf(integration),
			"type": integration.StringOr("integrationType", "Unknown"),
		})
	}

	usage.Inactive = usage.Total - usage.Active

	return usage, nil
}

type reportData struct {
	Metadata     map[string]interface{} `json:"metadata"`
	Errors       *ErrorAnalysis         `json:"errors,omitempty"`
	ErrorSummary []ErrorSummaryEntry    `json:"error_summary,omitempty"`
	Performance  *Performance           `json:"performance,omitempty"`
	Usage        *Usage                 `json:"usage,omitempty"`
	Missing      map[string]string      `json:"missing,omitempty"`
}

func (e *MonitoringEngine) report(ctx context.Context, cmd GenerateReport) *oic.WorkflowResult {
	reportType, format := cmd.Type, cmd.Format
	if reportType == "" {
		reportType = ReportFull
	}

	if format == "" {
		format = FormatJSON
	}

	window := timeRange(cmd.Start, cmd.End)
	result := oic.NewWorkflowResult(fmt.Sprintf("Generating %s monitoring report %s", reportType, window))

	switch reportType {
	case ReportFull, ReportErrors, ReportPerformance, ReportUsage:
	default:
		err := fmt.Errorf("%w: %s", ErrUnknownReportType, reportType)
		result.Fail("Failed to generate report: " + err.Error())
		result.AddError("Invalid report type", err, "")

		return result
	}

	if format != FormatJSON && format != FormatCSV {
		err := fmt.Errorf("%w: %s", ErrUnknownReportFormat, format)
		result.Fail("Failed to generate report: " + err.Error())
		result.AddError("Invalid report format", err, "")

		return result
	}

	file := cmd.ReportFile
	if file == "" {
		file = fmt.Sprintf("oic_%s_report_%s.%s", reportType, e.deps.Now().Format(constants.BackupTimestampFormat), format)
	}

	data := reportData{
		Metadata: map[string]interface{}{
			"timestamp":   e.deps.Now().Format(time.RFC3339),
			"report_type": reportType,
			"time_range":  window,
		},
		Missing: map[string]string{},
	}

	if reportType == ReportFull || reportType == ReportErrors {
		errorsResult := oic.NewWorkflowResult("")

		analysis, err := e.collectErrors(ctx, errorsResult, AnalyzeErrors{Start: cmd.Start, End: cmd.End})
		if err != nil {
			e.logger.Warn("failed to collect error data for report", map[string]interface{}{"error": err.Error()})
			data.Missing["errors"] = "Failed to collect error data"
		} else {
			data.Errors = analysis
			data.ErrorSummary = analysis.summarize(GroupByIntegration)
		}
	}

	if reportType == ReportFull || reportType == ReportPerformance {
		perf, err := e.collectPerformance(ctx, PerformanceMetrics{Start: cmd.Start, End: cmd.End, Interval: "day"})
		if err != nil {
			e.logger.Warn("failed to collect performance data for report", map[string]interface{}{"error": err.Error()})
			data.Missing["performance"] = "Failed to collect performance data"
		} else {
			data.Performance = perf
		}
	}

	if reportType == ReportFull || reportType == ReportUsage {
		usage, err := e.collectUsage(ctx)
		if err != nil {
			e.logger.Warn("failed to collect usage data for report", map[string]interface{}{"error": err.Error()})
			data.Missing["usage"] = "Failed to collect usage data"
		} else {
			data.Usage = usage
		}
	}

	if len(data.Missing) > 0 {
		result.SetDetail("missing_sections", data.Missing)
	}

	if format == FormatJSON {
		err := writeJSONReport(file, data)
		if err != nil {
			result.Fail(fmt.Sprintf("Failed to generate %s report: %s", reportType, err))
			result.AddError("Failed to write report", err, "")

			return result
		}

		result.SetDetail("report_file", file)
		result.Message = fmt.Sprintf("Successfully generated %s report: %s", reportType, file)

		return result
	}

	files, err := writeCSVReport(file, data)
	result.SetDetail("report_files", files)

	if err != nil {
		result.Fail(fmt.Sprintf("Failed to generate complete %s report", reportType))
		result.AddError("Failed to write report", err, "")

		return result
	}

	result.Message = fmt.Sprintf("Successfully generated %s report in %d CSV files", reportType, len(files))

	return result
}

func writeJSONReport(path string, data interface{}) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		err = os.MkdirAll(dir, constants.ConfigDirPerm)
		if err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}

	err = os.WriteFile(path, encoded, constants.ArtifactFilePerm)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}
