package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Common string constants used throughout the commands package.
const (
	Masked = "***"

	// Output formats.
	OutputFormatTable = "table"
	OutputFormatJSON  = "json"
	OutputFormatYAML  = "yaml"

	dateLayout        = "2006-01-02"
	maxAttributeWidth = 80
)

// Static errors for err113 compliance.
var (
	ErrUnsupportedLogFormat = errors.New("unsupported log format")
	ErrInvalidMapping       = errors.New("mapping must be given as source=target")
	ErrInvalidTime          = errors.New("time must be RFC3339 or YYYY-MM-DD")
)

func parseKind(name string) (oic.ResourceKind, error) {
	kind, err := oic.ParseResourceKind(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || kind == oic.KindInstance {
		return "", fmt.Errorf("%w: %s", constants.ErrUnsupportedKind, name)
	}

	return kind, nil
}

func parseKinds(names []string) ([]oic.ResourceKind, error) {
	kinds := make([]oic.ResourceKind, 0, len(names))

	for _, name := range names {
		kind, err := parseKind(name)
		if err != nil {
			return nil, err
		}

		kinds = append(kinds, kind)
	}

	return kinds, nil
}

// parseKindPatterns turns kind=value pairs into a per-kind map.
func parseKindPatterns(pairs []string) (map[oic.ResourceKind]string, error) {
	raw, err := parseMapping(pairs)
	if err != nil {
		return nil, err
	}

	out := make(map[oic.ResourceKind]string, len(raw))

	for name, value := range raw {
		kind, err := parseKind(name)
		if err != nil {
			return nil, err
		}

		out[kind] = value
	}

	return out, nil
}

// parseMapping parses source=target pairs.
func parseMapping(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMapping, pair)
		}

		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return out, nil
}

// parseCredentials parses key=value pairs; values that read as JSON keep
// their JSON type.
func parseCredentials(pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", constants.ErrInvalidCredential, pair)
		}

		var decoded interface{}
		if json.Unmarshal([]byte(value), &decoded) == nil && reflect.TypeOf(decoded) != reflect.TypeOf("") {
			out[key] = decoded

			continue
		}

		out[key] = value
	}

	return out, nil
}

// parseTime accepts RFC3339 or a plain date. Empty input is the zero time.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	for _, layout := range []string{time.RFC3339, dateLayout} {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, value)
}

func parseTimeRange(start, end string) (time.Time, time.Time, error) {
	from, err := parseTime(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	to, err := parseTime(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	return from, to, nil
}

// loadDocument decodes a YAML or JSON file into target.
func loadDocument(path string, target interface{}) error {
	// #nosec G304 -- the path is an explicit command argument
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	err = yaml.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return nil
}

func formatValue(value string) string {
	if value == "" {
		return "-"
	}

	return value
}

func outputFormat() (string, error) {
	format := strings.ToLower(viper.GetString("output"))

	switch format {
	case "", OutputFormatTable:
		return OutputFormatTable, nil
	case OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("%w: %s", constants.ErrUnsupportedOutput, format)
	}
}

// renderObjects writes plain API objects in the selected format.
func renderObjects(out io.Writer, objects []oic.Object, columns ...string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")

		return encoder.Encode(objects)
	case OutputFormatYAML:
		return yaml.NewEncoder(out).Encode(objects)
	}

	if len(objects) == 0 {
		_, _ = io.WriteString(out, "No resources found\n")

		return nil
	}

	table := tablewriter.NewWriter(out)

	headers := make([]any, 0, len(columns))
	for _, column := range columns {
		headers = append(headers, column)
	}

	table.Header(headers...)

	for _, obj := range objects {
		row := make([]string, 0, len(columns))
		for _, column := range columns {
			row = append(row, formatValue(obj.String(column)))
		}

		_ = table.Append(row)
	}

	err = table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

// renderResult writes a workflow result in the selected format.
func renderResult(out io.Writer, result *oic.WorkflowResult) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")

		return encoder.Encode(result)
	case OutputFormatYAML:
		return yaml.NewEncoder(out).Encode(result)
	}

	if result.Success {
		_, _ = color.New(color.FgGreen).Fprintf(out, "✓ %s\n", result.Message)
	} else {
		_, _ = color.New(color.FgRed).Fprintf(out, "✗ %s\n", result.Message)
	}

	err = renderResourceTable(out, result)
	if err != nil {
		return err
	}

	err = renderErrorTable(out, result)
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") && len(result.Details) > 0 {
		_, _ = io.WriteString(out, "\nDetails:\n")

		return yaml.NewEncoder(out).Encode(result.Details)
	}

	return nil
}

func renderResourceTable(out io.Writer, result *oic.WorkflowResult) error {
	if len(result.Resources) == 0 {
		return nil
	}

	kinds := make([]string, 0, len(result.Resources))
	for kind := range result.Resources {
		kinds = append(kinds, string(kind))
	}

	sort.Strings(kinds)

	table := tablewriter.NewWriter(out)
	table.Header("Kind", "ID", "Name", "Attributes")

	for _, kind := range kinds {
		entries := result.Resources[oic.ResourceKind(kind)]

		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}

		sort.Strings(ids)

		for _, id := range ids {
			attrs := entries[id]
			_ = table.Append([]string{kind, id, formatValue(attrs.String("name")), summarizeAttributes(attrs)})
		}
	}

	_, _ = io.WriteString(out, "\n")

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func renderErrorTable(out io.Writer, result *oic.WorkflowResult) error {
	if len(result.Errors) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Resource", "Message", "Cause")

	for _, record := range result.Errors {
		_ = table.Append([]string{formatValue(record.ResourceID), record.Message, formatValue(record.Cause)})
	}

	_, _ = color.New(color.FgYellow).Fprintf(out, "\nErrors (%d):\n", len(result.Errors))

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

// summarizeAttributes renders scalar attributes as key=value and collections
// by their length.
func summarizeAttributes(attrs oic.Object) string {
	parts := []string{}

	for _, key := range attrs.Keys() {
		if key == "name" {
			continue
		}

		value := attrs[key]

		switch reflect.ValueOf(value).Kind() {
		case reflect.Map, reflect.Slice, reflect.Array:
			parts = append(parts, fmt.Sprintf("%s=[%d]", key, reflect.ValueOf(value).Len()))
		case reflect.Invalid:
			continue
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", key, value))
		}
	}

	summary := strings.Join(parts, " ")
	if len(summary) > maxAttributeWidth {
		summary = summary[:maxAttributeWidth-3] + "..."
	}

	return summary
}
