package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Backup operations.
const (
	OpFullBackup      Operation = "full_backup"
	OpSelectiveBackup Operation = "selective_backup"
	OpKindBackup      Operation = "kind_backup"
	OpRestoreBackup   Operation = "restore_backup"
	OpPruneBackups    Operation = "prune_backups"
)

const bytesPerMB = 1024 * 1024

// restoreOrder imports referenced kinds before the kinds that reference them.
var restoreOrder = []oic.ResourceKind{
	oic.KindConnection, oic.KindLookup, oic.KindLibrary, oic.KindIntegration, oic.KindPackage,
}

// FullBackup exports every integration, connection, lookup and library, and
// packages when IncludePackages is set.
type FullBackup struct {
	DestDir         string
	IncludePackages bool
	Compress        bool
	ContinueOnError bool
}

// Operation implements Command.
func (FullBackup) Operation() Operation { return OpFullBackup }

// SelectiveBackup exports the listed ids of each kind.
type SelectiveBackup struct {
	DestDir         string
	IDs             map[oic.ResourceKind][]string
	Compress        bool
	ContinueOnError bool
}

// Operation implements Command.
func (SelectiveBackup) Operation() Operation { return OpSelectiveBackup }

// KindBackup exports every resource of one kind matching Query.
type KindBackup struct {
	DestDir         string
	Kind            oic.ResourceKind
	Query           string
	Compress        bool
	ContinueOnError bool
}

// Operation implements Command.
func (KindBackup) Operation() Operation { return OpKindBackup }

// RestoreBackup imports a backup directory or zip archive. A nil Target
// restores into the engine's own instance.
type RestoreBackup struct {
	BackupPath      string
	Target          oic.API
	Kinds           []oic.ResourceKind
	FilterPattern   string
	Overwrite       bool
	ContinueOnError bool
}

// Operation implements Command.
func (RestoreBackup) Operation() Operation { return OpRestoreBackup }

// PruneBackups applies a retention policy to the backups in Dir.
type PruneBackups struct {
	Dir            string
	RetentionDays  int
	RetentionCount int
	DryRun         bool
}

// Operation implements Command.
func (PruneBackups) Operation() Operation { return OpPruneBackups }

// KindStats counts the outcome of one kind in a backup or restore.
type KindStats struct {
	Total      int `json:"total"      yaml:"total"`
	Successful int `json:"successful" yaml:"successful"`
	Failed     int `json:"failed"     yaml:"failed"`
}

// ArtifactRef identifies the resource behind one exported file.
type ArtifactRef struct {
	ID   string `json:"id"   yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// BackupManifest is written as backup_metadata.json at the backup root.
// Artifacts is keyed by the slash-separated path relative to the root.
type BackupManifest struct {
	BackupTimestamp string                 `json:"backup_timestamp"        yaml:"backup_timestamp"`
	BackupStats     map[string]*KindStats  `json:"backup_stats"            yaml:"backup_stats"`
	InstanceInfo    oic.Object             `json:"instance_info,omitempty" yaml:"instance_info,omitempty"`
	Artifacts       map[string]ArtifactRef `json:"artifacts,omitempty"     yaml:"artifacts,omitempty"`
	Path            string                 `json:"-"                       yaml:"-"`
}

// ReadManifest loads the manifest of the backup in dir. The error wraps
// fs.ErrNotExist when the backup has none.
func ReadManifest(dir string) (*BackupManifest, error) {
	path := filepath.Join(dir, constants.BackupMetadataFile)

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading backup metadata: %w", err)
	}

	manifest := &BackupManifest{}

	err = json.Unmarshal(data, manifest)
	if err != nil {
		return nil, fmt.Errorf("parsing backup metadata: %w", err)
	}

	manifest.Path = path

	return manifest, nil
}

// BackupEngine runs backup, restore and prune workflows.
type BackupEngine struct {
	engine
}

// NewBackupEngine creates a backup engine.
func NewBackupEngine(deps Deps) *BackupEngine {
	return &BackupEngine{engine: newEngine(FamilyBackup, deps)}
}

// Execute implements Engine.
func (e *BackupEngine) Execute(ctx context.Context, cmd Command) *oic.WorkflowResult {
	switch c := cmd.(type) {
	case FullBackup:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.fullBackup(ctx, c) })
	case SelectiveBackup:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.selectiveBackup(ctx, c) })
	case KindBackup:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.kindBackup(ctx, c) })
	case RestoreBackup:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.restore(ctx, c) })
	case PruneBackups:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.prune(c) })
	default:
		return e.unknown(cmd)
	}
}

// backupRun is the state of one backup in progress. stats, artifacts and
// aborted are only touched through shared.Update once workers start.
type backupRun struct {
	root      string
	timestamp string
	kinds     []oic.ResourceKind
	stats     map[oic.ResourceKind]*KindStats
	artifacts map[string]ArtifactRef
	shared    *oic.SafeResult
	aborted   bool
}

func (r *backupRun) totals() (total, successful, failed int) {
	for _, stats := range r.stats {
		total += stats.Total
		successful += stats.Successful
		failed += stats.Failed
	}

	return total, successful, failed
}

func (r *backupRun) statsByPlural() map[string]*KindStats {
	out := make(map[string]*KindStats, len(r.stats))
	for kind, stats := range r.stats {
		out[kind.Plural()] = stats
	}

	return out
}

// startBackup creates {destDir}/oic_[label_]backup_{timestamp} with one
// directory per kind.
func (e *BackupEngine) startBackup(destDir, label string, kinds []oic.ResourceKind, result *oic.WorkflowResult) (*backupRun, error) {
	timestamp := e.deps.Now().Format(constants.BackupTimestampFormat)

	name := constants.BackupPrefix + timestamp
	if label != "" {
		name = "oic_" + label + "_backup_" + timestamp
	}

	run := &backupRun{
		root:      filepath.Join(destDir, name),
		timestamp: timestamp,
		kinds:     kinds,
		stats:     map[oic.ResourceKind]*KindStats{},
		artifacts: map[string]ArtifactRef{},
		shared:    oic.NewSafeResult(result),
	}

	for _, kind := range kinds {
		run.stats[kind] = &KindStats{}

		err := os.MkdirAll(filepath.Join(run.root, kind.Plural()), constants.ConfigDirPerm)
		if err != nil {
			return nil, fmt.Errorf("creating backup directories: %w", err)
		}
	}

	return run, nil
}

func (e *BackupEngine) failStart(result *oic.WorkflowResult, err error) *oic.WorkflowResult {
	result.Fail(fmt.Sprintf("Failed to create backup directories: %v", err))
	result.AddError("Failed to create backup directories", err, "")

	return result
}

// exportTargets exports each target of kind into the backup. It returns
// false when a failure aborted the backup.
func (e *BackupEngine) exportTargets(ctx context.Context, run *backupRun, kind oic.ResourceKind, targets []oic.Object, continueOnError bool) bool {
	gateway, err := oic.GatewayFor(e.api(), kind)
	if err != nil {
		run.shared.Update(func(r *oic.WorkflowResult) {
			r.AddError("Cannot back up "+kind.Plural(), err, "")
		})

		return continueOnError
	}

	stats := run.stats[kind]
	stats.Total += len(targets)
	tasks := make([]oic.BatchTask, 0, len(targets))

	for _, target := range targets {
		id, name := idOf(target), nameOf(target)
		dest := filepath.Join(run.root, kind.Plural(), artifactBase(id, name)+artifactExtension(kind))

		tasks = append(tasks, oic.BatchTask{
			ID: id,
			Run: func(ctx context.Context, shared *oic.SafeResult) error {
				written, err := gateway.ExportBinary(ctx, id, dest)

				shared.Update(func(r *oic.WorkflowResult) {
					if err != nil {
						stats.Failed++
						r.AddResource(kind, id, oic.Object{"name": name, "backup_successful": false, "error": err.Error()})
						r.AddError(fmt.Sprintf("Failed to export %s %s", kind, name), err, id)

						if !continueOnError && !run.aborted {
							run.aborted = true
							r.Fail(fmt.Sprintf("Backup failed when exporting %s %s", kind, name))
						}

						return
					}

					stats.Successful++
					r.AddResource(kind, id, oic.Object{"name": name, "backup_file": written, "backup_successful": true})

					if rel, relErr := filepath.Rel(run.root, written); relErr == nil {
						run.artifacts[filepath.ToSlash(rel)] = ArtifactRef{ID: id, Name: name}
					}
				})

				e.resourceDone(kind, err == nil)

				return err
			},
		})
	}

	e.executor(continueOnError).Execute(ctx, tasks, run.shared)

	aborted := false

	run.shared.Update(func(*oic.WorkflowResult) { aborted = run.aborted })

	return !aborted
}

func artifactExtension(kind oic.ResourceKind) string {
	switch kind {
	case oic.KindIntegration:
		return ".zip"
	case oic.KindLookup:
		return ".csv"
	case oic.KindLibrary:
		return ".jar"
	case oic.KindPackage:
		return ".par"
	default:
		return ".json"
	}
}

func (e *BackupEngine) fullBackup(ctx context.Context, cmd FullBackup) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Performing full backup")

	kinds := []oic.ResourceKind{oic.KindIntegration, oic.KindConnection, oic.KindLookup, oic.KindLibrary}
	if cmd.IncludePackages {
		kinds = append(kinds, oic.KindPackage)
	}

	run, err := e.startBackup(cmd.DestDir, "", kinds, result)
	if err != nil {
		return e.failStart(result, err)
	}

	for _, kind := range kinds {
		if !e.backupListed(ctx, run, kind, "", cmd.ContinueOnError) {
			return e.abortBackup(run)
		}
	}

	return e.finishBackup(ctx, run, cmd.Compress, "Backup", "resources")
}

func (e *BackupEngine) kindBackup(ctx context.Context, cmd KindBackup) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Backing up " + cmd.Kind.Plural())

	if _, err := oic.GatewayFor(e.api(), cmd.Kind); err != nil {
		result.Fail(fmt.Sprintf("Cannot back up %s", cmd.Kind))
		result.AddError("Unsupported resource kind", err, "")

		return result
	}

	run, err := e.startBackup(cmd.DestDir, cmd.Kind.Plural(), []oic.ResourceKind{cmd.Kind}, result)
	if err != nil {
		return e.failStart(result, err)
	}

	if !e.backupListed(ctx, run, cmd.Kind, cmd.Query, cmd.ContinueOnError) {
		return e.abortBackup(run)
	}

	return e.finishBackup(ctx, run, cmd.Compress, "Backup", cmd.Kind.Plural())
}

// backupListed lists kind and exports every item. It returns false when the
// backup must stop.
func (e *BackupEngine) backupListed(ctx context.Context, run *backupRun, kind oic.ResourceKind, query string, continueOnError bool) bool {
	gateway, err := oic.GatewayFor(e.api(), kind)
	if err == nil {
		var items []oic.Object

		items, err = gateway.ListAll(ctx, listParams(query))
		if err == nil {
			e.logger.Info("backing up resources", map[string]interface{}{
				"kind":  kind,
				"count": len(items),
			})

			return e.exportTargets(ctx, run, kind, items, continueOnError)
		}
	}

	run.shared.Update(func(r *oic.WorkflowResult) {
		r.AddError("Failed to back up "+kind.Plural(), err, "")

		if !continueOnError {
			r.Fail("Backup failed when retrieving " + kind.Plural())
		}
	})

	return continueOnError
}

func (e *BackupEngine) selectiveBackup(ctx context.Context, cmd SelectiveBackup) *oic.WorkflowResult {
	var kinds []oic.ResourceKind

	for _, kind := range oic.BackupKinds {
		if len(cmd.IDs[kind]) > 0 {
			kinds = append(kinds, kind)
		}
	}

	if len(kinds) == 0 {
		return oic.NewWorkflowResult("No resources specified for backup")
	}

	result := oic.NewWorkflowResult("Performing selective backup")

	run, err := e.startBackup(cmd.DestDir, "selective", kinds, result)
	if err != nil {
		return e.failStart(result, err)
	}

	for _, kind := range kinds {
		gateway, _ := oic.GatewayFor(e.api(), kind)
		stats := run.stats[kind]
		targets := make([]oic.Object, 0, len(cmd.IDs[kind]))

		for _, id := range cmd.IDs[kind] {
			obj, err := gateway.Get(ctx, id)
			if err != nil {
				stats.Total++
				stats.Failed++
				result.AddResource(kind, id, oic.Object{"backup_successful": false, "error": err.Error()})
				result.AddError(fmt.Sprintf("Failed to export %s %s", kind, id), err, id)
				e.resourceDone(kind, false)

				if !cmd.ContinueOnError {
					result.Fail(fmt.Sprintf("Backup failed when exporting %s %s", kind, id))

					return e.abortBackup(run)
				}

				continue
			}

			target := obj.Clone()
			target["id"] = id
			targets = append(targets, target)
		}

		if !e.exportTargets(ctx, run, kind, targets, cmd.ContinueOnError) {
			return e.abortBackup(run)
		}
	}

	return e.finishBackup(ctx, run, cmd.Compress, "Selective backup", "selected resources")
}

func (e *BackupEngine) abortBackup(run *backupRun) *oic.WorkflowResult {
	result := run.shared.Result()
	e.setBackupDetails(result, run, run.root)

	return result
}

func (e *BackupEngine) setBackupDetails(result *oic.WorkflowResult, run *backupRun, path string) {
	total, successful, failed := run.totals()

	result.SetDetail("backup_stats", run.statsByPlural())
	result.SetDetail("backup_path", path)
	result.SetDetail("total_resources", total)
	result.SetDetail("successful_resources", successful)
	result.SetDetail("failed_resources", failed)
}

// finishBackup writes the manifest, optionally compresses the tree and sets
// the summary. Metadata and compression problems never fail the backup.
func (e *BackupEngine) finishBackup(ctx context.Context, run *backupRun, compress bool, label, noun string) *oic.WorkflowResult {
	result := run.shared.Result()

	manifest := &BackupManifest{
		BackupTimestamp: run.timestamp,
		BackupStats:     run.statsByPlural(),
		InstanceInfo:    e.instanceInfo(ctx),
		Artifacts:       run.artifacts,
	}

	err := writeManifest(run.root, manifest)
	if err != nil {
		e.logger.Warn("failed to write backup metadata", map[string]interface{}{"error": err.Error()})
	}

	path := run.root

	if compress {
		archive := run.root + ".zip"

		err = zipDirectory(run.root, archive)
		if err != nil {
			e.logger.Warn("failed to compress backup", map[string]interface{}{"error": err.Error()})
			_ = os.Remove(archive)
		} else {
			if removeErr := os.RemoveAll(run.root); removeErr != nil {
				e.logger.Warn("failed to remove uncompressed backup", map[string]interface{}{"error": removeErr.Error()})
			}

			path = archive
		}
	}

	e.setBackupDetails(result, run, path)

	total, _, failed := run.totals()
	if failed > 0 {
		result.Fail(fmt.Sprintf("%s completed with %d of %d resources failed", label, failed, total))
	} else {
		result.Message = fmt.Sprintf("Successfully backed up all %d %s to %s", total, noun, path)
	}

	return result
}

// instanceInfo fetches instance statistics for the manifest. Failures are
// logged and leave the section empty.
func (e *BackupEngine) instanceInfo(ctx context.Context) oic.Object {
	stats, err := e.api().Monitoring().IntegrationStats(ctx, nil)
	if err != nil {
		e.logger.Debug("instance statistics unavailable for backup metadata", map[string]interface{}{"error": err.Error()})

		return nil
	}

	return oic.Object{"stats": stats}
}

func writeManifest(root string, manifest *BackupManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding backup metadata: %w", err)
	}

	err = os.WriteFile(filepath.Join(root, constants.BackupMetadataFile), data, constants.ArtifactFilePerm)
	if err != nil {
		return fmt.Errorf("writing backup metadata: %w", err)
	}

	return nil
}

// artifactRef resolves the resource behind file from the manifest. Files the
// manifest does not list are keyed by their name minus extension, since ids
// and names may both contain "_".
func artifactRef(manifest *BackupManifest, kind oic.ResourceKind, base string) ArtifactRef {
	if manifest != nil {
		if ref, ok := manifest.Artifacts[kind.Plural()+"/"+base]; ok && ref.ID != "" {
			return ref
		}
	}

	trimmed := strings.TrimSuffix(base, filepath.Ext(base))

	return ArtifactRef{ID: trimmed, Name: trimmed}
}

func (e *BackupEngine) restore(ctx context.Context, cmd RestoreBackup) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Restoring backup from " + cmd.BackupPath)

	target := cmd.Target
	if target == nil {
		target = e.api()
	}

	var filter *regexp.Regexp

	if cmd.FilterPattern != "" {
		compiled, err := regexp.Compile(cmd.FilterPattern)
		if err != nil {
			result.Fail("Invalid filter pattern: " + cmd.FilterPattern)
			result.AddError("Invalid filter pattern", err, "")

			return result
		}

		filter = compiled
	}

	dir := cmd.BackupPath

	if strings.EqualFold(filepath.Ext(dir), ".zip") {
		tmp, err := os.MkdirTemp("", "oic_restore_")
		if err == nil {
			defer os.RemoveAll(tmp)

			err = extractZip(dir, tmp)
		}

		if err != nil {
			result.Fail(fmt.Sprintf("Failed to extract backup: %v", err))
			result.AddError("Failed to extract backup", err, "")

			return result
		}

		dir = tmp
	} else if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		result.Fail(fmt.Sprintf("Backup path %s does not exist", cmd.BackupPath))
		result.AddError("Backup path does not exist", err, "")

		return result
	}

	var manifestInfo interface{}

	manifest, err := ReadManifest(dir)

	switch {
	case err == nil:
		manifestInfo = manifest
	case !errors.Is(err, fs.ErrNotExist):
		e.logger.Warn("ignoring unreadable backup metadata", map[string]interface{}{"error": err.Error()})
	}

	kinds := cmd.Kinds
	if len(kinds) == 0 {
		kinds = restoreOrder
	}

	stats := map[oic.ResourceKind]*KindStats{}

	details := func() {
		var total, successful, failed int

		byPlural := map[string]*KindStats{}
		for kind, s := range stats {
			byPlural[kind.Plural()] = s
			total += s.Total
			successful += s.Successful
			failed += s.Failed
		}

		result.SetDetail("restore_stats", byPlural)
		result.SetDetail("backup_path", cmd.BackupPath)
		result.SetDetail("backup_metadata", manifestInfo)
		result.SetDetail("total_resources", total)
		result.SetDetail("successful_resources", successful)
		result.SetDetail("failed_resources", failed)
	}

	for _, kind := range kinds {
		stats[kind] = &KindStats{}

		files, err := filepath.Glob(filepath.Join(dir, kind.Plural(), "*.*"))
		if err != nil {
			result.AddError("Failed to list "+kind.Plural(), err, "")

			continue
		}

		sort.Strings(files)

		for _, file := range files {
			base := filepath.Base(file)
			if filter != nil && !filter.MatchString(base) {
				continue
			}

			ref := artifactRef(manifest, kind, base)
			id, name := ref.ID, ref.Name
			stats[kind].Total++

			attrs, err := e.restoreFile(ctx, target, kind, file, cmd.Overwrite)
			attrs["name"] = name
			attrs["source_file"] = file
			attrs["restore_successful"] = err == nil

			e.resourceDone(kind, err == nil)

			if err != nil {
				stats[kind].Failed++
				attrs["error"] = err.Error()
				result.AddResource(kind, id, attrs)
				result.AddError(fmt.Sprintf("Failed to restore %s %s", kind, name), err, id)

				if !cmd.ContinueOnError {
					result.Fail(fmt.Sprintf("Restore failed when importing %s %s", kind, name))
					details()

					return result
				}

				continue
			}

			stats[kind].Successful++
			result.AddResource(kind, id, attrs)
		}
	}

	details()

	total, _ := result.Details["total_resources"].(int)
	failed, _ := result.Details["failed_resources"].(int)

	if failed > 0 {
		result.Fail(fmt.Sprintf("Restore completed with %d of %d resources failed", failed, total))
	} else {
		result.Message = fmt.Sprintf("Successfully restored all %d resources from %s", total, cmd.BackupPath)
	}

	return result
}

// restoreFile imports one artifact. Connections are matched by identifier:
// an existing one is updated only when overwrite is set, otherwise created.
func (e *BackupEngine) restoreFile(ctx context.Context, target oic.API, kind oic.ResourceKind, file string, overwrite bool) (oic.Object, error) {
	attrs := oic.Object{}

	if kind != oic.KindConnection {
		gateway, err := oic.GatewayFor(target, kind)
		if err != nil {
			return attrs, err
		}

		_, err = gateway.ImportBinary(ctx, file, map[string]string{"overwrite": strconv.FormatBool(overwrite)})

		return attrs, err
	}

	action, err := upsertConnection(ctx, target.Connections(), file, overwrite)
	attrs["action"] = action

	return attrs, err
}

// upsertConnection creates or updates a connection from its exported JSON
// document and reports what it did.
func upsertConnection(ctx context.Context, gateway oic.ConnectionsGateway, file string, overwrite bool) (string, error) {
	data, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file, err)
	}

	var doc oic.Object

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", file, err)
	}

	identifier := doc.StringOr("identifier", doc.ID())

	existing, err := gateway.FindByIdentifier(ctx, identifier)

	switch {
	case err == nil:
		if !overwrite {
			return "skipped", nil
		}

		_, err = gateway.Update(ctx, idOf(existing), doc)
		if err != nil {
			return "", err
		}

		return "updated", nil
	case oic.IsNotFound(err):
		_, err = gateway.Create(ctx, doc)
		if err != nil {
			return "", err
		}

		return "created", nil
	default:
		return "", err
	}
}

func (e *BackupEngine) prune(cmd PruneBackups) *oic.WorkflowResult {
	dryRunSuffix := ""
	if cmd.DryRun {
		dryRunSuffix = " (DRY RUN)"
	}

	result := oic.NewWorkflowResult("Pruning old backups" + dryRunSuffix)

	info, err := os.Stat(cmd.Dir)
	if err != nil || !info.IsDir() {
		result.Fail(fmt.Sprintf("Backup directory %s does not exist", cmd.Dir))
		result.AddError("Backup directory does not exist", err, "")

		return result
	}

	artifacts, err := ScanArtifacts(cmd.Dir)
	if err != nil {
		result.Fail("Failed to scan backup directory " + cmd.Dir)
		result.AddError("Failed to scan backup directory", err, "")

		return result
	}

	if len(artifacts) == 0 {
		result.Message = "No backups found in " + cmd.Dir

		return result
	}

	decision := DecideRetention(artifacts, RetentionPolicy{Days: cmd.RetentionDays, Count: cmd.RetentionCount}, e.deps.Now())

	deleted, err := ApplyRetention(decision, cmd.DryRun)
	if err != nil {
		result.AddError("Failed to delete backup", err, "")
	}

	keepBytes, deleteBytes := decision.KeepBytes(), decision.DeleteBytes()

	result.SetDetail("retention_days", cmd.RetentionDays)
	result.SetDetail("retention_count", cmd.RetentionCount)
	result.SetDetail("total_backups", len(artifacts))
	result.SetDetail("backups_to_keep", len(decision.Keep))
	result.SetDetail("backups_to_delete", len(decision.Delete))
	result.SetDetail("keep_size_bytes", keepBytes)
	result.SetDetail("keep_size_mb", megabytes(keepBytes))
	result.SetDetail("delete_size_bytes", deleteBytes)
	result.SetDetail("delete_size_mb", megabytes(deleteBytes))
	result.SetDetail("dry_run", cmd.DryRun)
	result.SetDetail("kept_backups", artifactPaths(decision.Keep))
	result.SetDetail("deleted_backups", artifactPaths(deleted))

	if cmd.DryRun {
		result.Message = fmt.Sprintf("Dry run: Would keep %d backups (%.2f MB) and delete %d old backups (%.2f MB)",
			len(decision.Keep), megabytes(keepBytes), len(decision.Delete), megabytes(deleteBytes))
	} else {
		result.Message = fmt.Sprintf("Kept %d backups (%.2f MB) and deleted %d old backups (%.2f MB)",
			len(decision.Keep), megabytes(keepBytes), len(deleted), megabytes(totalSize(deleted)))
	}

	return result
}

func megabytes(n int64) float64 {
	return float64(n) / bytesPerMB
}

func artifactPaths(artifacts []Artifact) []string {
	paths := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		paths = append(paths, artifact.Path)
	}

	return paths
}
