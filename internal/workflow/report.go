package workflow

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/WolVesz/oic-devops/internal/constants"
)

func writeCSV(path string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "." {
		err := os.MkdirAll(dir, constants.ConfigDirPerm)
		if err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.ArtifactFilePerm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	writer := csv.NewWriter(file)

	err = writer.WriteAll(rows)
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("writing %s: %w", path, err)
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	return nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func durationRows(perf *Performance) [][]string {
	rows := [][]string{{"period", "count", "average_seconds", "min_seconds", "max_seconds", "total_seconds"}}

	for _, period := range sortedKeys(perf.ByPeriod) {
		stats := perf.ByPeriod[period]
		rows = append(rows, []string{
			period,
			strconv.Itoa(stats.Count),
			formatSeconds(stats.AverageSeconds),
			formatSeconds(stats.MinSeconds),
			formatSeconds(stats.MaxSeconds),
			formatSeconds(stats.TotalSeconds),
		})
	}

	return rows
}

func integrationDurationRows(perf *Performance) [][]string {
	rows := [][]string{{"integration_id", "integration_name", "count", "average_seconds", "min_seconds", "max_seconds"}}

	for _, id := range sortedKeys(perf.ByIntegration) {
		stats := perf.ByIntegration[id]
		rows = append(rows, []string{
			id,
			stats.Name,
			strconv.Itoa(stats.Count),
			formatSeconds(stats.AverageSeconds),
			formatSeconds(stats.MinSeconds),
			formatSeconds(stats.MaxSeconds),
		})
	}

	return rows
}

func errorRows(analysis *ErrorAnalysis) [][]string {
	rows := [][]string{{"integration_id", "integration_name", "error_count", "top_error_type"}}

	for _, id := range sortedKeys(analysis.ByIntegration) {
		g := analysis.ByIntegration[id]

		top := ""
		if ranked := topCounts(g.ErrorTypes, 1); len(ranked) > 0 {
			top = ranked[0].Key
		}

		rows = append(rows, []string{id, g.Name, strconv.Itoa(g.Count), top})
	}

	return rows
}

func usageRows(usage *Usage) [][]string {
	rows := [][]string{{"integration_id", "integration_name", "integration_type"}}

	for _, integration := range usage.ActiveIntegrations {
		rows = append(rows, []string{
			fmt.Sprint(integration["id"]),
			fmt.Sprint(integration["name"]),
			fmt.Sprint(integration["type"]),
		})
	}

	return rows
}

// writeCSVReport splits a report into one CSV file per section next to
// base. It returns the files written so far even on error.
func writeCSVReport(base string, data reportData) ([]string, error) {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	files := []string{}

	sections := []struct {
		suffix string
		rows   func() [][]string
		skip   bool
	}{
		{suffix: "_errors.csv", skip: data.Errors == nil, rows: func() [][]string { return errorRows(data.Errors) }},
		{suffix: "_performance.csv", skip: data.Performance == nil, rows: func() [][]string { return durationRows(data.Performance) }},
		{suffix: "_integration_performance.csv", skip: data.Performance == nil, rows: func() [][]string { return integrationDurationRows(data.Performance) }},
		{suffix: "_usage.csv", skip: data.Usage == nil, rows: func() [][]string { return usageRows(data.Usage) }},
	}

	for _, section := range sections {
		if section.skip {
			continue
		}

		path := stem + section.suffix

		err := writeCSV(path, section.rows())
		if err != nil {
			return files, err
		}

		files = append(files, path)
	}

	return files, nil
}
