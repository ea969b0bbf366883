package workflow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
)

var (
	backupNamePattern      = regexp.MustCompile(`^oic_(?:[A-Za-z0-9]+_)?backup_`)
	backupTimestampPattern = regexp.MustCompile(`_(\d{8}_\d{6})`)
)

// Artifact is one dated backup on disk: a directory or a zip archive.
type Artifact struct {
	Path        string    `json:"path"         yaml:"path"`
	Timestamp   time.Time `json:"timestamp"    yaml:"timestamp"`
	SizeBytes   int64     `json:"size_bytes"   yaml:"size_bytes"`
	IsDirectory bool      `json:"is_directory" yaml:"is_directory"`
}

// RetentionPolicy keeps the Count newest artifacts and any other artifact
// younger than Days.
type RetentionPolicy struct {
	Days  int
	Count int
}

// RetentionDecision partitions artifacts. Keep and Delete are newest first.
type RetentionDecision struct {
	Keep   []Artifact
	Delete []Artifact
}

// KeepBytes is the total size of the kept artifacts.
func (d RetentionDecision) KeepBytes() int64 { return totalSize(d.Keep) }

// DeleteBytes is the total size of the artifacts marked for deletion.
func (d RetentionDecision) DeleteBytes() int64 { return totalSize(d.Delete) }

func totalSize(artifacts []Artifact) int64 {
	var total int64
	for _, artifact := range artifacts {
		total += artifact.SizeBytes
	}

	return total
}

// IsBackupName reports whether a file or directory name looks like a backup:
// oic_backup_* or oic_<label>_backup_*.
func IsBackupName(name string) bool {
	return backupNamePattern.MatchString(name)
}

// ScanArtifacts lists the backups directly under dir. The timestamp comes from
// the _YYYYmmdd_HHMMSS part of the name, or the modification time when the
// name has none.
func ScanArtifacts(dir string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var artifacts []Artifact

	for _, entry := range entries {
		name := entry.Name()
		if !IsBackupName(name) {
			continue
		}

		if !entry.IsDir() && !strings.EqualFold(filepath.Ext(name), ".zip") {
			continue
		}

		path := filepath.Join(dir, name)

		artifact, err := describeArtifact(path, entry)
		if err != nil {
			return nil, err
		}

		artifacts = append(artifacts, artifact)
	}

	return artifacts, nil
}

func describeArtifact(path string, entry fs.DirEntry) (Artifact, error) {
	info, err := entry.Info()
	if err != nil {
		return Artifact{}, fmt.Errorf("reading %s: %w", path, err)
	}

	artifact := Artifact{
		Path:        path,
		Timestamp:   info.ModTime(),
		SizeBytes:   info.Size(),
		IsDirectory: entry.IsDir(),
	}

	if match := backupTimestampPattern.FindStringSubmatch(entry.Name()); match != nil {
		parsed, parseErr := time.ParseInLocation(constants.BackupTimestampFormat, match[1], time.Local)
		if parseErr == nil {
			artifact.Timestamp = parsed
		}
	}

	if entry.IsDir() {
		artifact.SizeBytes, err = dirSize(path)
		if err != nil {
			return Artifact{}, err
		}
	}

	return artifact, nil
}

func dirSize(root string) (int64, error) {
	var total int64

	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		total += info.Size()

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measuring %s: %w", root, err)
	}

	return total, nil
}

// DecideRetention sorts artifacts newest first, keeps the policy.Count newest
// unconditionally and keeps the rest only while their timestamp is not older
// than policy.Days before now.
func DecideRetention(artifacts []Artifact, policy RetentionPolicy, now time.Time) RetentionDecision {
	sorted := append([]Artifact(nil), artifacts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	count := policy.Count
	if count < 0 {
		count = 0
	}

	if len(sorted) <= count {
		return RetentionDecision{Keep: sorted}
	}

	decision := RetentionDecision{Keep: append([]Artifact(nil), sorted[:count]...)}
	cutoff := now.AddDate(0, 0, -policy.Days)

	for _, artifact := range sorted[count:] {
		if !artifact.Timestamp.Before(cutoff) {
			decision.Keep = append(decision.Keep, artifact)
		} else {
			decision.Delete = append(decision.Delete, artifact)
		}
	}

	return decision
}

// ApplyRetention removes the artifacts marked for deletion and returns the
// ones actually removed. A dry run removes nothing and reports every
// candidate as removed.
func ApplyRetention(decision RetentionDecision, dryRun bool) ([]Artifact, error) {
	if dryRun {
		return decision.Delete, nil
	}

	var (
		deleted []Artifact
		errs    []error
	)

	for _, artifact := range decision.Delete {
		err := os.RemoveAll(artifact.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", artifact.Path, err))

			continue
		}

		deleted = append(deleted, artifact)
	}

	return deleted, errors.Join(errs...)
}
