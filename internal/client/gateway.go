package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/http"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// resourceSpec describes how one resource kind maps onto the API.
type resourceSpec struct {
	kind     oic.ResourceKind
	basePath string
	required []string
	// exportAction is the sub-resource serving the binary archive. Kinds
	// without one are exported and imported as their JSON representation.
	exportAction string
	// extensions lists accepted export extensions; the first is appended
	// when the destination has none of them.
	extensions []string
}

// Gateway implements oic.Gateway for one resource kind.
type Gateway struct {
	spec       resourceSpec
	httpClient *http.Client
	logger     oic.Logger
	pageOpts   []oic.PageOption
}

func newGateway(httpClient *http.Client, spec resourceSpec, logger oic.Logger, pageOpts ...oic.PageOption) *Gateway {
	if logger == nil {
		logger = oic.NoopLogger{}
	}

	return &Gateway{
		spec:       spec,
		httpClient: httpClient,
		logger:     logger,
		pageOpts:   pageOpts,
	}
}

// Kind returns the resource kind served by the gateway.
func (g *Gateway) Kind() oic.ResourceKind {
	return g.spec.kind
}

// path joins the base path with escaped segments. Integration ids contain
// "|", which must survive as a single segment.
func (g *Gateway) path(segments ...string) string {
	var builder strings.Builder

	builder.WriteString(g.spec.basePath)

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		builder.WriteString("/")
		builder.WriteString(url.PathEscape(segment))
	}

	return builder.String()
}

// ListPage fetches one raw page. It is the oic.ListFunc behind ListAll.
func (g *Gateway) ListPage(ctx context.Context, params url.Values) (oic.Object, error) {
	resp, err := g.httpClient.Get(ctx, g.spec.basePath, params)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", g.spec.kind.Plural(), err)
	}

	return resp.Object(), nil
}

// List returns the items of a single page.
func (g *Gateway) List(ctx context.Context, params url.Values) ([]oic.Object, error) {
	body, err := g.ListPage(ctx, params)
	if err != nil {
		return nil, err
	}

	if !body.Has("items") && !body.Has("elements") {
		g.logger.Warn("unexpected list response envelope", map[string]interface{}{
			"kind": g.spec.kind,
			"keys": body.Keys(),
		})
	}

	return oic.ParsePage(body).Items, nil
}

// ListAll follows pagination until the listing is exhausted or bounded.
func (g *Gateway) ListAll(ctx context.Context, params url.Values) ([]oic.Object, error) {
	opts := append([]oic.PageOption{oic.WithPageLogger(g.logger)}, g.pageOpts...)

	return oic.CollectAll(ctx, g.ListPage, params, opts...)
}

// Get retrieves one resource.
func (g *Gateway) Get(ctx context.Context, id string) (oic.Object, error) {
	resp, err := g.httpClient.Get(ctx, g.path(id), nil)
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", g.spec.kind, id, err)
	}

	return resp.Object(), nil
}

// Create validates the required fields and creates the resource.
func (g *Gateway) Create(ctx context.Context, data oic.Object) (oic.Object, error) {
	err := requireFields(g.spec.kind, data, g.spec.required)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Post(ctx, g.spec.basePath, data)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", g.spec.kind, err)
	}

	return resp.Object(), nil
}

// Update replaces the resource.
func (g *Gateway) Update(ctx context.Context, id string, data oic.Object) (oic.Object, error) {
	resp, err := g.httpClient.Put(ctx, g.path(id), data)
	if err != nil {
		return nil, fmt.Errorf("updating %s %s: %w", g.spec.kind, id, err)
	}

	return resp.Object(), nil
}

// Delete removes the resource.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	_, err := g.httpClient.Delete(ctx, g.path(id))
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", g.spec.kind, id, err)
	}

	return nil
}

// ExecuteAction calls {base}/{id}/{action}, or {base}/{action} without an id.
// An empty method means POST.
func (g *Gateway) ExecuteAction(ctx context.Context, action, id string, data oic.Object, method string) (oic.Object, error) {
	path := g.path(id, action)

	var body interface{}
	if data != nil {
		body = data
	}

	var (
		resp *http.Response
		err  error
	)

	switch strings.ToUpper(method) {
	case "", "POST":
		resp, err = g.httpClient.Post(ctx, path, body)
	case "GET":
		resp, err = g.httpClient.Get(ctx, path, nil)
	case "PUT":
		resp, err = g.httpClient.Put(ctx, path, body)
	case "PATCH":
		resp, err = g.httpClient.Patch(ctx, path, body)
	case "DELETE":
		resp, err = g.httpClient.Delete(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s", oic.ErrUnsupportedMethod, method)
	}

	if err != nil {
		return nil, fmt.Errorf("executing %s on %s %s: %w", action, g.spec.kind, id, err)
	}

	return resp.Object(), nil
}

// ExportBinary writes the archive of id to destPath and returns the path
// actually written after extension normalisation.
func (g *Gateway) ExportBinary(ctx context.Context, id, destPath string) (string, error) {
	if g.spec.exportAction == "" {
		return g.exportJSON(ctx, id, destPath)
	}

	resp, err := g.httpClient.Download(ctx, g.path(id, g.spec.exportAction), nil)
	if err != nil {
		return "", fmt.Errorf("exporting %s %s: %w", g.spec.kind, id, err)
	}

	if len(resp.Body) == 0 {
		return "", fmt.Errorf("exporting %s %s: %w", g.spec.kind, id, oic.ErrEmptyExport)
	}

	target := NormalizeExportPath(destPath, g.spec.extensions...)

	err = writeArtifact(target, resp.Body)
	if err != nil {
		return "", err
	}

	g.logger.Debug("exported resource", map[string]interface{}{
		"kind": g.spec.kind,
		"id":   id,
		"path": target,
		"size": len(resp.Body),
	})

	return target, nil
}

func (g *Gateway) exportJSON(ctx context.Context, id, destPath string) (string, error) {
	obj, err := g.Get(ctx, id)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding %s %s: %w", g.spec.kind, id, err)
	}

	target := NormalizeExportPath(destPath, ".json")

	err = writeArtifact(target, data)
	if err != nil {
		return "", err
	}

	return target, nil
}

// ImportBinary uploads filePath as the multipart "file" part of {base}/import
// with meta as form fields. Kinds without an archive format create the
// resource from the JSON document instead, with meta overriding its fields.
func (g *Gateway) ImportBinary(ctx context.Context, filePath string, meta map[string]string) (oic.Object, error) {
	content, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &oic.ValidationError{Kind: g.spec.kind, Message: "file not found: " + filePath}
		}

		return nil, fmt.Errorf("reading %s: %w", filePath, err)
	}

	if g.spec.exportAction == "" {
		return g.importJSON(ctx, content, meta)
	}

	resp, err := g.httpClient.PostMultipart(ctx, g.path("import"), http.FilePart{
		FieldName: "file",
		FileName:  filepath.Base(filePath),
		Content:   content,
	}, meta)
	if err != nil {
		return nil, fmt.Errorf("importing %s from %s: %w", g.spec.kind, filePath, err)
	}

	return resp.Object(), nil
}

func (g *Gateway) importJSON(ctx context.Context, content []byte, meta map[string]string) (oic.Object, error) {
	var data oic.Object

	err := json.Unmarshal(content, &data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s document: %w", g.spec.kind, err)
	}

	for key, value := range meta {
		data[key] = value
	}

	return g.Create(ctx, data)
}

// requireFields fails with the names of every absent or empty field.
func requireFields(kind oic.ResourceKind, data oic.Object, fields []string) error {
	var missing []string

	for _, field := range fields {
		value, ok := data[field]
		if !ok || value == nil || value == "" {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return &oic.ValidationError{Kind: kind, Missing: missing}
	}

	return nil
}

// NormalizeExportPath makes the file name safe for "|" in composite ids and
// appends the first extension unless the name already ends in one of them.
func NormalizeExportPath(path string, extensions ...string) string {
	dir, name := filepath.Split(path)
	name = strings.ReplaceAll(name, "|", "-")

	if len(extensions) == 0 {
		return filepath.Join(dir, name)
	}

	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return filepath.Join(dir, name)
		}
	}

	return filepath.Join(dir, name+extensions[0])
}

func writeArtifact(path string, data []byte) error {
	err := os.MkdirAll(filepath.Dir(path), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	err = os.WriteFile(path, data, constants.ArtifactFilePerm)
	if err != nil {
		return fmt.Errorf("writing export %s: %w", path, err)
	}

	return nil
}
