package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Deployment operations.
const (
	OpExportIntegration  Operation = "export_integration"
	OpImportIntegration  Operation = "import_integration"
	OpPromoteIntegration Operation = "promote_integration"
	OpExportPackage      Operation = "export_package"
	OpImportPackage      Operation = "import_package"
	OpCloneEnvironment   Operation = "clone_environment"
)

// ExportIntegration writes the archive of one integration to DestPath.
type ExportIntegration struct {
	ID                  string
	DestPath            string
	Overwrite           bool
	IncludeDependencies bool
}

// Operation implements Command.
func (ExportIntegration) Operation() Operation { return OpExportIntegration }

// ImportIntegration uploads an integration archive. ConnectionMap rewires
// source connection ids to target ids through the import plan.
type ImportIntegration struct {
	FilePath      string
	Overwrite     bool
	ConnectionMap map[string]string
}

// Operation implements Command.
func (ImportIntegration) Operation() Operation { return OpImportIntegration }

// PromoteIntegration exports an integration from this instance and imports it
// into Target.
type PromoteIntegration struct {
	ID            string
	Target        oic.API
	ConnectionMap map[string]string
	Activate      bool
	Overwrite     bool
}

// Operation implements Command.
func (PromoteIntegration) Operation() Operation { return OpPromoteIntegration }

// ExportPackage writes the archive of one package to DestPath.
type ExportPackage struct {
	ID        string
	DestPath  string
	Overwrite bool
}

// Operation implements Command.
func (ExportPackage) Operation() Operation { return OpExportPackage }

// ImportPackage uploads a package archive.
type ImportPackage struct {
	FilePath  string
	Overwrite bool
}

// Operation implements Command.
func (ImportPackage) Operation() Operation { return OpImportPackage }

// CloneEnvironment copies resources of Kinds from this instance to Target.
// Include and Exclude hold per-kind substrings matched against name and id.
type CloneEnvironment struct {
	Target              oic.API
	Kinds               []oic.ResourceKind
	Include             map[oic.ResourceKind]string
	Exclude             map[oic.ResourceKind]string
	ActivateIntegration bool
}

// Operation implements Command.
func (CloneEnvironment) Operation() Operation { return OpCloneEnvironment }

// DeploymentEngine moves integrations and packages between files and instances.
type DeploymentEngine struct {
	engine
}

// NewDeploymentEngine creates a deployment engine.
func NewDeploymentEngine(deps Deps) *DeploymentEngine {
	return &DeploymentEngine{engine: newEngine(FamilyDeployment, deps)}
}

// Execute implements Engine.
func (e *DeploymentEngine) Execute(ctx context.Context, cmd Command) *oic.WorkflowResult {
	switch c := cmd.(type) {
	case ExportIntegration:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.exportIntegration(ctx, c) })
	case ImportIntegration:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult {
			return importArchive(ctx, e.api().Integrations(), oic.KindIntegration, c.FilePath, importMeta(c.Overwrite, c.ConnectionMap))
		})
	case PromoteIntegration:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.promote(ctx, c) })
	case ExportPackage:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.exportPackage(ctx, c) })
	case ImportPackage:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult {
			return importArchive(ctx, e.api().Packages(), oic.KindPackage, c.FilePath, importMeta(c.Overwrite, nil))
		})
	case CloneEnvironment:
		return e.run(ctx, c.Operation(), func(ctx context.Context) *oic.WorkflowResult { return e.clone(ctx, c) })
	default:
		return e.unknown(cmd)
	}
}

func importMeta(overwrite bool, connectionMap map[string]string) map[string]string {
	meta := map[string]string{"overwrite": strconv.FormatBool(overwrite)}

	if len(connectionMap) > 0 {
		plan, err := json.Marshal(map[string]interface{}{"connectionMap": connectionMap})
		if err == nil {
			meta["importPlan"] = string(plan)
		}
	}

	return meta
}

// prepareExport refuses to replace an existing file unless overwrite is set
// and creates the destination directory.
func prepareExport(result *oic.WorkflowResult, path string, overwrite bool) bool {
	if _, err := os.Stat(path); err == nil && !overwrite {
		result.Fail(fmt.Sprintf("Export file %s already exists and overwrite is not set", path))
		result.AddError("Export file already exists", nil, "")

		return false
	}

	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, constants.ConfigDirPerm)
	if err != nil {
		result.Fail("Failed to create export directory " + dir)
		result.AddError("Failed to create export directory", err, "")

		return false
	}

	return true
}

func (e *DeploymentEngine) exportIntegration(ctx context.Context, cmd ExportIntegration) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Exporting integration " + cmd.ID)

	if !prepareExport(result, cmd.DestPath, cmd.Overwrite) {
		return result
	}

	gateway := e.api().Integrations()

	integration, err := gateway.Get(ctx, cmd.ID)
	if err != nil {
		result.Fail("Failed to export integration " + cmd.ID)
		result.AddError("Failed to get integration", err, cmd.ID)

		return result
	}

	name := nameOf(integration)
	result.SetDetail("integration_name", name)

	written, err := gateway.ExportBinary(ctx, cmd.ID, cmd.DestPath)
	if err != nil {
		result.Fail("Failed to export integration " + name)
		result.AddError("Failed to export integration", err, cmd.ID)

		return result
	}

	result.SetDetail("export_file_path", written)
	result.AddResource(oic.KindIntegration, cmd.ID, oic.Object{"name": name, "export_file": written})
	result.Message = fmt.Sprintf("Successfully exported integration %s to %s", name, written)

	if !cmd.IncludeDependencies {
		return result
	}

	deps := ExtractDependencies(integration)
	depDir := filepath.Join(filepath.Dir(written), "dependencies")
	exported, failed := 0, 0

	for _, ref := range append(append(deps.Connections, deps.Lookups...), deps.Libraries...) {
		depGateway, err := oic.GatewayFor(e.api(), ref.Kind)
		if err != nil {
			continue
		}

		dest := filepath.Join(depDir, ref.Kind.Plural(), artifactBase(ref.ID, ref.Name)+artifactExtension(ref.Kind))

		path, err := depGateway.ExportBinary(ctx, ref.ID, dest)
		if err != nil {
			failed++

			result.AddError(fmt.Sprintf("Failed to export dependency %s", ref), err, ref.ID)

			continue
		}

		exported++

		result.AddResource(ref.Kind, ref.ID, oic.Object{"name": ref.Name, "export_file": path})
	}

	result.SetDetail("dependency_export", map[string]interface{}{
		"total":      deps.Total(),
		"successful": exported,
		"failed":     failed,
		"directory":  depDir,
	})

	if failed == 0 {
		result.Message = fmt.Sprintf("Exported integration %s and %d dependencies", name, exported)
	}

	return result
}

// importArchive uploads file through gateway and checks that the service
// answered with the new resource.
func importArchive(ctx context.Context, gateway oic.Gateway, kind oic.ResourceKind, file string, meta map[string]string) *oic.WorkflowResult {
	result := oic.NewWorkflowResult(fmt.Sprintf("Importing %s from %s", kind, file))

	if _, err := os.Stat(file); err != nil {
		result.Fail(fmt.Sprintf("Import file %s does not exist", file))
		result.AddError("Import file does not exist", err, "")

		return result
	}

	imported, err := gateway.ImportBinary(ctx, file, meta)
	if err != nil {
		result.Fail(fmt.Sprintf("Failed to import %s from %s", kind, file))
		result.AddError("Failed to import "+string(kind), err, "")

		return result
	}

	if len(imported) == 0 {
		result.Fail("Import returned empty result")
		result.AddError("Import returned empty result", nil, "")

		return result
	}

	id := imported.ID()
	if id == "" {
		result.Fail(fmt.Sprintf("Import result missing %s ID", kind))
		result.AddError("Import result missing ID", nil, "")

		return result
	}

	name := nameOf(imported)

	result.AddResource(kind, id, oic.Object{"name": name, "status": imported.String("status")})
	result.SetDetail("import_result", map[string]interface{}{
		"id":     id,
		"name":   name,
		"status": imported.String("status"),
	})
	result.Message = fmt.Sprintf("Successfully imported %s %s", kind, name)

	return result
}

func (e *DeploymentEngine) promote(ctx context.Context, cmd PromoteIntegration) *oic.WorkflowResult {
	result := oic.NewWorkflowResult(fmt.Sprintf("Promoting integration %s to target environment", cmd.ID))

	if cmd.Target == nil {
		result.Fail("No target environment given")
		result.AddError("Promotion requires a target environment", nil, cmd.ID)

		return result
	}

	tmp, err := os.MkdirTemp("", "oic_promote_")
	if err != nil {
		result.Fail("Failed to create temporary directory")
		result.AddError("Failed to create temporary directory", err, "")

		return result
	}
	defer os.RemoveAll(tmp)

	exportResult := e.exportIntegration(ctx, ExportIntegration{
		ID:       cmd.ID,
		DestPath: filepath.Join(tmp, uuid.NewString()+".zip"),
	})
	if !exportResult.Success {
		result.Merge(exportResult)
		result.Message = "Failed to export integration from source environment"

		return result
	}

	name, _ := exportResult.Details["integration_name"].(string)
	file, _ := exportResult.Details["export_file_path"].(string)
	result.SetDetail("integration_name", name)

	importResult := importArchive(ctx, cmd.Target.Integrations(), oic.KindIntegration, file, importMeta(cmd.Overwrite, cmd.ConnectionMap))
	if !importResult.Success {
		result.Merge(importResult)
		result.Message = "Failed to import integration to target environment"

		return result
	}

	targetID := cmd.ID
	if ids := importResult.ResourceIDs(oic.KindIntegration); len(ids) > 0 {
		targetID = ids[0]
	}

	result.SetDetail("target_integration_id", targetID)
	result.AddResource(oic.KindIntegration, targetID, oic.Object{"name": name, "promoted": true})

	if !cmd.Activate {
		result.Message = "Successfully promoted integration " + name

		return result
	}

	_, err = cmd.Target.Integrations().Activate(ctx, targetID)
	if err != nil {
		result.SetDetail("activation_status", "error")
		result.Fail("Integration promoted but activation failed in target environment")
		result.AddError("Failed to activate integration", err, targetID)

		return result
	}

	result.SetDetail("activation_status", "success")
	result.Message = "Successfully promoted and activated integration " + name

	return result
}

func (e *DeploymentEngine) exportPackage(ctx context.Context, cmd ExportPackage) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Exporting package " + cmd.ID)

	if !prepareExport(result, cmd.DestPath, cmd.Overwrite) {
		return result
	}

	gateway := e.api().Packages()
	name := cmd.ID

	if pkg, err := gateway.Get(ctx, cmd.ID); err == nil {
		name = pkg.StringOr("name", cmd.ID)
	}

	result.SetDetail("package_name", name)

	written, err := gateway.ExportBinary(ctx, cmd.ID, cmd.DestPath)
	if err != nil {
		result.Fail("Failed to export package " + name)
		result.AddError("Failed to export package", err, cmd.ID)

		return result
	}

	result.SetDetail("export_file_path", written)
	result.AddResource(oic.KindPackage, cmd.ID, oic.Object{"name": name, "export_file": written})
	result.Message = fmt.Sprintf("Successfully exported package %s to %s", name, written)

	return result
}

// cloneCounters tracks one kind during a clone.
type cloneCounters struct {
	Exported int `json:"exported" yaml:"exported"`
	Imported int `json:"imported" yaml:"imported"`
	Failed   int `json:"failed"   yaml:"failed"`
}

func matchesCloneFilters(obj oic.Object, include, exclude string) bool {
	name, id := obj.Name(), idOf(obj)

	if exclude != "" && (strings.Contains(name, exclude) || strings.Contains(id, exclude)) {
		return false
	}

	if include != "" && !strings.Contains(name, include) && !strings.Contains(id, include) {
		return false
	}

	return true
}

func (e *DeploymentEngine) clone(ctx context.Context, cmd CloneEnvironment) *oic.WorkflowResult {
	result := oic.NewWorkflowResult("Cloning environment resources")

	if cmd.Target == nil {
		result.Fail("No target environment given")
		result.AddError("Cloning requires a target environment", nil, "")

		return result
	}

	kinds := cmd.Kinds
	if len(kinds) == 0 {
		kinds = []oic.ResourceKind{oic.KindConnection, oic.KindLookup, oic.KindLibrary, oic.KindIntegration}
	}

	tmp, err := os.MkdirTemp("", "oic_cloning_")
	if err != nil {
		result.Fail("Failed to create temporary directory")
		result.AddError("Failed to create temporary directory", err, "")

		return result
	}
	defer os.RemoveAll(tmp)

	counters := map[string]*cloneCounters{}
	activated := 0

	for _, kind := range kinds {
		counter := &cloneCounters{}
		counters[kind.Plural()] = counter

		source, err := oic.GatewayFor(e.api(), kind)
		if err != nil {
			result.AddError("Cannot clone "+kind.Plural(), err, "")

			continue
		}

		items, err := source.ListAll(ctx, nil)
		if err != nil {
			result.AddError(fmt.Sprintf("Failed to get %s list", kind.Plural()), err, "")

			continue
		}

		for _, item := range items {
			id := idOf(item)
			if id == "" || !matchesCloneFilters(item, cmd.Include[kind], cmd.Exclude[kind]) {
				continue
			}

			imported, err := e.cloneOne(ctx, cmd.Target, source, kind, id, filepath.Join(tmp, kind.Plural(), artifactBase(id, nameOf(item))+artifactExtension(kind)), counter)
			e.resourceDone(kind, err == nil)

			if err != nil {
				counter.Failed++

				result.AddError(fmt.Sprintf("Failed to clone %s %s", kind, nameOf(item)), err, id)

				continue
			}

			counter.Imported++
			result.AddResource(kind, id, oic.Object{"name": nameOf(item), "cloned": true})

			if kind == oic.KindIntegration && cmd.ActivateIntegration && imported.ID() != "" {
				_, err = cmd.Target.Integrations().Activate(ctx, imported.ID())
				if err != nil {
					e.logger.Warn("failed to activate cloned integration", map[string]interface{}{
						"integration": imported.ID(),
						"error":       err.Error(),
					})
				} else {
					activated++
				}
			}
		}
	}

	result.SetDetail("resource_counters", counters)
	result.SetDetail("activated", activated)

	var (
		parts       []string
		totalFailed int
	)

	for _, kind := range kinds {
		counter := counters[kind.Plural()]
		totalFailed += counter.Failed

		if counter.Exported > 0 {
			parts = append(parts, fmt.Sprintf("%d/%d %s", counter.Imported, counter.Exported, kind.Plural()))
		}
	}

	switch {
	case len(parts) == 0 && totalFailed == 0:
		result.Message = "No resources were cloned"
	case totalFailed == 0:
		result.Message = "Successfully cloned " + strings.Join(parts, ", ")
	default:
		result.Fail(fmt.Sprintf("Cloned %s, but %d resources failed", strings.Join(parts, ", "), totalFailed))
	}

	if activated > 0 {
		result.Message += fmt.Sprintf(" and activated %d integrations", activated)
	}

	return result
}

// cloneOne exports id from source into path and imports it into target.
func (e *DeploymentEngine) cloneOne(ctx context.Context, target oic.API, source oic.Gateway, kind oic.ResourceKind, id, path string, counter *cloneCounters) (oic.Object, error) {
	written, err := source.ExportBinary(ctx, id, path)
	if err != nil {
		return nil, err
	}

	counter.Exported++

	if kind == oic.KindConnection {
		_, err = upsertConnection(ctx, target.Connections(), written, true)

		return oic.Object{}, err
	}

	gateway, err := oic.GatewayFor(target, kind)
	if err != nil {
		return nil, err
	}

	return gateway.ImportBinary(ctx, written, map[string]string{"overwrite": "true"})
}
