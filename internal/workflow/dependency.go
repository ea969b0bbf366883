package workflow

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Dependencies are the resources one integration references.
type Dependencies struct {
	Connections []oic.ResourceRef `json:"connections" yaml:"connections"`
	Lookups     []oic.ResourceRef `json:"lookups"     yaml:"lookups"`
	Libraries   []oic.ResourceRef `json:"libraries"   yaml:"libraries"`
}

// Total is the number of referenced resources.
func (d Dependencies) Total() int {
	return len(d.Connections) + len(d.Lookups) + len(d.Libraries)
}

// Counts returns the per-kind totals keyed by plural kind name.
func (d Dependencies) Counts() map[string]int {
	return map[string]int{
		oic.KindConnection.Plural(): len(d.Connections),
		oic.KindLookup.Plural():     len(d.Lookups),
		oic.KindLibrary.Plural():    len(d.Libraries),
		"total":                     d.Total(),
	}
}

// References reports whether the dependencies include connection id.
func (d Dependencies) References(connectionID string) bool {
	for _, ref := range d.Connections {
		if ref.ID == connectionID {
			return true
		}
	}

	return false
}

// DependencyGraph maps integration ids to their dependencies.
type DependencyGraph map[string]Dependencies

type depCollector struct {
	deps Dependencies
	seen map[oic.ResourceKind]map[string]bool
}

func (c *depCollector) add(kind oic.ResourceKind, id, name string) {
	if id == "" {
		return
	}

	if c.seen[kind] == nil {
		c.seen[kind] = map[string]bool{}
	}

	if c.seen[kind][id] {
		return
	}

	c.seen[kind][id] = true

	if name == "" {
		name = "Unknown"
	}

	ref := oic.ResourceRef{Kind: kind, ID: id, Name: name}

	switch kind {
	case oic.KindConnection:
		c.deps.Connections = append(c.deps.Connections, ref)
	case oic.KindLookup:
		c.deps.Lookups = append(c.deps.Lookups, ref)
	case oic.KindLibrary:
		c.deps.Libraries = append(c.deps.Libraries, ref)
	}
}

// addList reads a list of plain ids or of objects with id and name.
func (c *depCollector) addList(kind oic.ResourceKind, raw []interface{}) {
	for _, item := range raw {
		switch typed := item.(type) {
		case string:
			c.add(kind, typed, typed)
		default:
			if obj := oic.AsObject(item); obj != nil {
				c.add(kind, idOf(obj), obj.Name())
			}
		}
	}
}

var referenceKinds = map[string]oic.ResourceKind{
	"CONNECTION": oic.KindConnection,
	"LOOKUP":     oic.KindLookup,
	"LIBRARY":    oic.KindLibrary,
}

// ExtractDependencies reads the references of an integration document. Every
// section is optional; a document without any yields empty dependencies.
// Each referenced id is reported once per kind, in order of first appearance.
func ExtractDependencies(integration oic.Object) Dependencies {
	collector := &depCollector{
		deps: Dependencies{
			Connections: []oic.ResourceRef{},
			Lookups:     []oic.ResourceRef{},
			Libraries:   []oic.ResourceRef{},
		},
		seen: map[oic.ResourceKind]map[string]bool{},
	}

	for _, ref := range integration.Objects("references") {
		if kind, ok := referenceKinds[ref.String("type")]; ok {
			collector.add(kind, ref.ID(), ref.Name())
		}
	}

	collector.addList(oic.KindConnection, integration.Slice("connections"))
	collector.addList(oic.KindLookup, integration.Slice("lookups"))
	collector.addList(oic.KindLibrary, integration.Slice("libraries"))

	for _, section := range []string{"triggers", "invokes"} {
		for _, item := range integration.Objects(section) {
			collector.add(oic.KindConnection, item.String("connectionId"), item.String("connectionName"))
		}
	}

	for _, endpoint := range integration.Objects("endPoints") {
		connection := endpoint.Map("connection")
		if connection != nil {
			collector.add(oic.KindConnection, connection.ID(), connection.Name())
		}
	}

	return collector.deps
}

// Resolver discovers dependencies through the integration gateway. Reads go
// through GetCached so repeated scans hit the configured cache.
type Resolver struct {
	integrations oic.IntegrationsGateway
	logger       oic.Logger
}

// NewResolver creates a resolver over gateway.
func NewResolver(gateway oic.IntegrationsGateway, logger oic.Logger) *Resolver {
	if logger == nil {
		logger = oic.NoopLogger{}
	}

	return &Resolver{integrations: gateway, logger: logger}
}

// Find returns the dependencies of integration id along with its document.
func (r *Resolver) Find(ctx context.Context, id string) (oic.Object, Dependencies, error) {
	integration, err := r.integrations.GetCached(ctx, id)
	if err != nil {
		return nil, Dependencies{}, fmt.Errorf("resolving dependencies of %s: %w", id, err)
	}

	return integration, ExtractDependencies(integration), nil
}

// Dependent is an integration that references a connection.
type Dependent struct {
	ID              string `json:"id"                yaml:"id"`
	Name            string `json:"name"              yaml:"name"`
	Status          string `json:"status"            yaml:"status"`
	Pattern         string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	IntegrationType string `json:"type,omitempty"    yaml:"type,omitempty"`
}

// Dependents scans the integrations matching params and returns those that
// reference connectionID. References come from cached details; the status of
// each dependent is read live. Integrations whose details cannot be read are
// skipped and returned as failures keyed by id.
func (r *Resolver) Dependents(ctx context.Context, connectionID string, params url.Values) ([]Dependent, map[string]error, error) {
	integrations, err := r.integrations.ListAll(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("listing integrations: %w", err)
	}

	var dependents []Dependent

	failures := map[string]error{}

	for _, summary := range integrations {
		id := summary.ID()
		if id == "" {
			continue
		}

		detail, deps, err := r.Find(ctx, id)
		if err != nil {
			r.logger.Warn("skipping integration while scanning dependents", map[string]interface{}{
				"integration": id,
				"error":       err.Error(),
			})

			failures[id] = err

			continue
		}

		if !deps.References(connectionID) {
			continue
		}

		live, err := r.integrations.Get(ctx, id)
		if err != nil {
			r.logger.Warn("using cached status of dependent integration", map[string]interface{}{
				"integration": id,
				"error":       err.Error(),
			})
		} else {
			detail = live
		}

		dependents = append(dependents, Dependent{
			ID:              id,
			Name:            detail.StringOr("name", summary.StringOr("name", "Unknown")),
			Status:          detail.StringOr("status", "UNKNOWN"),
			Pattern:         detail.String("pattern"),
			IntegrationType: detail.String("integrationType"),
		})
	}

	return dependents, failures, nil
}

// Graph resolves the dependencies of every id. Ids that cannot be read are
// returned as failures.
func (r *Resolver) Graph(ctx context.Context, ids []string) (DependencyGraph, map[string]error) {
	graph := DependencyGraph{}
	failures := map[string]error{}

	for _, id := range ids {
		_, deps, err := r.Find(ctx, id)
		if err != nil {
			failures[id] = err

			continue
		}

		graph[id] = deps
	}

	return graph, failures
}

// Connections returns the distinct connections referenced across the graph,
// ordered by id.
func (g DependencyGraph) Connections() []oic.ResourceRef {
	seen := map[string]oic.ResourceRef{}

	for _, deps := range g {
		for _, ref := range deps.Connections {
			seen[ref.ID] = ref
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	refs := make([]oic.ResourceRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, seen[id])
	}

	return refs
}
