package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/workflow"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

var errBoom = errors.New("boom")

// fakeGateway keeps one kind in memory. Failures are injected per id.
type fakeGateway struct {
	mu sync.Mutex

	kind       oic.ResourceKind
	order      []string
	items      map[string]oic.Object
	listErr    error
	getErr     map[string]error
	updateErr  map[string]error
	exportErr  map[string]error
	importErr  error
	testResult map[string]oic.Object
	testErr    map[string]error
	lookupData map[string]oic.Object
	resources  map[string][]oic.Object

	// stuck pins the status an integration reports after any state change.
	stuck map[string]string
	// cached holds snapshots GetCached serves instead of the live item.
	cached map[string]oic.Object

	calls    []string
	updates  map[string][]oic.Object
	imported []map[string]string
	nextID   int
}

func newFakeGateway(kind oic.ResourceKind) *fakeGateway {
	return &fakeGateway{
		kind:       kind,
		items:      map[string]oic.Object{},
		getErr:     map[string]error{},
		updateErr:  map[string]error{},
		exportErr:  map[string]error{},
		testResult: map[string]oic.Object{},
		testErr:    map[string]error{},
		lookupData: map[string]oic.Object{},
		resources:  map[string][]oic.Object{},
		stuck:      map[string]string{},
		cached:     map[string]oic.Object{},
		updates:    map[string][]oic.Object{},
	}
}

func (g *fakeGateway) add(objects ...oic.Object) *fakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, obj := range objects {
		id := obj.ID()
		if id == "" {
			id = obj.Name()
		}

		if _, ok := g.items[id]; !ok {
			g.order = append(g.order, id)
		}

		g.items[id] = obj
	}

	return g
}

func (g *fakeGateway) record(call string) {
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) called(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0

	for _, c := range g.calls {
		if c == call {
			n++
		}
	}

	return n
}

func (g *fakeGateway) item(id string) oic.Object {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.items[id].Clone()
}

func matches(obj oic.Object, params url.Values) bool {
	for key, values := range params {
		want := values[0]

		switch key {
		case constants.QueryFilter:
			field, value, ok := strings.Cut(want, ":")
			if !ok {
				if !strings.Contains(obj.Name(), want) {
					return false
				}

				continue
			}

			if obj.String(field) != strings.Trim(value, "'") {
				return false
			}
		default:
			allowed := strings.Split(want, ",")
			if !contains(allowed, obj.String(key)) {
				return false
			}
		}
	}

	return true
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}

func (g *fakeGateway) Kind() oic.ResourceKind { return g.kind }

func (g *fakeGateway) List(ctx context.Context, params url.Values) ([]oic.Object, error) {
	return g.ListAll(ctx, params)
}

func (g *fakeGateway) ListAll(_ context.Context, params url.Values) ([]oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.record("list")

	if g.listErr != nil {
		return nil, g.listErr
	}

	out := []oic.Object{}

	for _, id := range g.order {
		obj, ok := g.items[id]
		if ok && matches(obj, params) {
			out = append(out, obj.Clone())
		}
	}

	return out, nil
}

func (g *fakeGateway) Get(_ context.Context, id string) (oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.record("get:" + id)

	if err := g.getErr[id]; err != nil {
		return nil, err
	}

	obj, ok := g.items[id]
	if !ok {
		return nil, &oic.ResourceNotFoundError{URL: string(g.kind) + "/" + id}
	}

	return obj.Clone(), nil
}

func (g *fakeGateway) Create(_ context.Context, data oic.Object) (oic.Object, error) {
	g.mu.Lock()
	g.nextID++
	created := data.Clone()

	if created.ID() == "" {
		created["id"] = fmt.Sprintf("%s-%d", g.kind, g.nextID)
	}

	g.record("create")
	g.mu.Unlock()

	g.add(created)

	return created.Clone(), nil
}

func (g *fakeGateway) Update(_ context.Context, id string, data oic.Object) (oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.record("update:" + id)

	if err := g.updateErr[id]; err != nil {
		return nil, err
	}

	g.updates[id] = append(g.updates[id], data.Clone())
	g.items[id] = data.Clone()

	return data.Clone(), nil
}

func (g *fakeGateway) Delete(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.record("delete:" + id)
	delete(g.items, id)

	return nil
}

func (g *fakeGateway) ExecuteAction(_ context.Context, action, id string, _ oic.Object, _ string) (oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.record(action + ":" + id)

	return oic.Object{"status": constants.StatusSuccess}, nil
}

func (g *fakeGateway) ExportBinary(_ context.Context, id, destPath string) (string, error) {
	g.mu.Lock()
	g.record("export:" + id)
	err := g.exportErr[id]
	g.mu.Unlock()

	if err != nil {
		return "", err
	}

	err = os.MkdirAll(filepath.Dir(destPath), 0o750)
	if err != nil {
		return "", err
	}

	content := []byte("archive:" + id)
	if g.kind == oic.KindConnection {
		content = []byte(fmt.Sprintf(`{"id":%q,"identifier":%q,"name":%q}`, id, id, g.item(id).Name()))
	}

	return destPath, os.WriteFile(destPath, content, 0o600)
}

func (g *fakeGateway) ImportBinary(_ context.Context, filePath string, meta map[string]string) (oic.Object, error) {
	g.mu.Lock()
	g.record("import")
	g.imported = append(g.imported, meta)
	importErr := g.importErr
	g.mu.Unlock()

	if importErr != nil {
		return nil, importErr
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	id := strings.TrimPrefix(string(data), "archive:")
	if id == string(data) {
		id = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	imported := oic.Object{"id": id, "name": id, "status": constants.StatusConfigured}
	g.add(imported)

	return imported.Clone(), nil
}

// Connection actions.

func (g *fakeGateway) Test(_ context.Context, id string) (oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.record("test:" + id)

	if err := g.testErr[id]; err != nil {
		return nil, err
	}

	if res, ok := g.testResult[id]; ok {
		return res, nil
	}

	return oic.Object{"status": constants.StatusSuccess}, nil
}

func (g *fakeGateway) Clone(ctx context.Context, id string, data oic.Object) (oic.Object, error) {
	src, err := g.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for key, value := range data {
		src[key] = value
	}

	delete(src, "id")

	return g.Create(ctx, src)
}

func (g *fakeGateway) FindByIdentifier(ctx context.Context, identifier string) (oic.Object, error) {
	items, _ := g.ListAll(ctx, nil)

	for _, item := range items {
		if item.Identifier() == identifier || item.ID() == identifier {
			return item, nil
		}
	}

	return nil, &oic.ResourceNotFoundError{URL: "connections?identifier=" + identifier}
}

// Integration actions.

func (g *fakeGateway) setStatus(id, status, call string) (oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.record(call + ":" + id)

	if err := g.updateErr[id]; err != nil {
		return nil, err
	}

	obj, ok := g.items[id]
	if !ok {
		return nil, &oic.ResourceNotFoundError{URL: "integrations/" + id}
	}

	if pinned, ok := g.stuck[id]; ok {
		status = pinned
	}

	obj["status"] = status

	return obj.Clone(), nil
}

func (g *fakeGateway) Activate(_ context.Context, id string) (oic.Object, error) {
	return g.setStatus(id, constants.StatusActivated, "activate")
}

func (g *fakeGateway) Deactivate(_ context.Context, id string, _ bool) (oic.Object, error) {
	return g.setStatus(id, constants.StatusConfigured, "deactivate")
}

func (g *fakeGateway) ResumeSchedule(_ context.Context, id string) (oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.record("resume:" + id)

	return oic.Object{}, nil
}

func (g *fakeGateway) GetCached(ctx context.Context, id string) (oic.Object, error) {
	g.mu.Lock()
	snapshot, ok := g.cached[id]
	g.mu.Unlock()

	if ok {
		return snapshot.Clone(), nil
	}

	return g.Get(ctx, id)
}

// Lookup rows.

func (g *fakeGateway) Data(_ context.Context, id string) (oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if data, ok := g.lookupData[id]; ok {
		return data, nil
	}

	return oic.Object{"rows": []interface{}{}, "columns": []interface{}{"a", "b"}}, nil
}

func (g *fakeGateway) UpdateData(_ context.Context, id string, data oic.Object) (oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lookupData[id] = data

	return data, nil
}

// Package composition.

func (g *fakeGateway) Resources(_ context.Context, id string) ([]oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.resources[id], nil
}

func (g *fakeGateway) AddResource(_ context.Context, id string, data oic.Object) (oic.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resources[id] = append(g.resources[id], data)

	return data, nil
}

func (g *fakeGateway) RemoveResource(_ context.Context, id, resourceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.resources[id][:0]
	for _, res := range g.resources[id] {
		if res.ID() != resourceID {
			kept = append(kept, res)
		}
	}

	g.resources[id] = kept

	return nil
}

// fakeMonitoring serves canned instances and statistics.
type fakeMonitoring struct {
	mu sync.Mutex

	instances  []oic.Object
	listErr    error
	stats      oic.Object
	statsErr   error
	errors     []oic.Object
	activities map[string][]oic.Object
	purged     []oic.Object
	purgeErr   error
	filters    []oic.InstanceFilter
}

func (m *fakeMonitoring) ListInstances(_ context.Context, filter oic.InstanceFilter) ([]oic.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.filters = append(m.filters, filter)

	if m.listErr != nil {
		return nil, m.listErr
	}

	out := []oic.Object{}

	for _, inst := range m.instances {
		if filter.IntegrationID != "" && inst.String("integrationId") != filter.IntegrationID {
			continue
		}

		if filter.Status != "" && inst.String("status") != filter.Status {
			continue
		}

		out = append(out, inst.Clone())
	}

	return out, nil
}

func (m *fakeMonitoring) Instance(_ context.Context, id string) (oic.Object, error) {
	for _, inst := range m.instances {
		if inst.ID() == id {
			return inst.Clone(), nil
		}
	}

	return nil, &oic.ResourceNotFoundError{URL: "monitoring/instances/" + id}
}

func (m *fakeMonitoring) Activities(_ context.Context, id string) ([]oic.Object, error) {
	return m.activities[id], nil
}

func (m *fakeMonitoring) Payload(_ context.Context, instanceID, activityID, direction string) (oic.Object, error) {
	return oic.Object{"payload": instanceID + "/" + activityID + "/" + direction}, nil
}

func (m *fakeMonitoring) Purge(_ context.Context, data oic.Object) (oic.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.purgeErr != nil {
		return nil, m.purgeErr
	}

	m.purged = append(m.purged, data)

	return oic.Object{"count": len(data.Slice("instanceIds"))}, nil
}

func (m *fakeMonitoring) Resubmit(_ context.Context, id string) (oic.Object, error) {
	return oic.Object{"id": id}, nil
}

func (m *fakeMonitoring) IntegrationStats(_ context.Context, _ url.Values) (oic.Object, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}

	if m.stats == nil {
		return oic.Object{"stats": oic.Object{"total": 10, "errors": 0}}, nil
	}

	return m.stats, nil
}

func (m *fakeMonitoring) Errors(_ context.Context, _ url.Values) ([]oic.Object, error) {
	return m.errors, nil
}

// fakeAPI wires one fake gateway per kind.
type fakeAPI struct {
	connections  *fakeGateway
	integrations *fakeGateway
	lookups      *fakeGateway
	libraries    *fakeGateway
	packages     *fakeGateway
	monitoring   *fakeMonitoring
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		connections:  newFakeGateway(oic.KindConnection),
		integrations: newFakeGateway(oic.KindIntegration),
		lookups:      newFakeGateway(oic.KindLookup),
		libraries:    newFakeGateway(oic.KindLibrary),
		packages:     newFakeGateway(oic.KindPackage),
		monitoring:   &fakeMonitoring{activities: map[string][]oic.Object{}},
	}
}

func (a *fakeAPI) Connections() oic.ConnectionsGateway   { return a.connections }
func (a *fakeAPI) Integrations() oic.IntegrationsGateway { return a.integrations }
func (a *fakeAPI) Lookups() oic.LookupsGateway           { return a.lookups }
func (a *fakeAPI) Libraries() oic.Gateway                { return a.libraries }
func (a *fakeAPI) Packages() oic.PackagesGateway         { return a.packages }
func (a *fakeAPI) Monitoring() oic.MonitoringGateway     { return a.monitoring }

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func testDeps(api oic.API) workflow.Deps {
	return workflow.Deps{
		API:          api,
		Now:          func() time.Time { return fixedNow },
		PollInterval: time.Millisecond,
		PollAttempts: 3,
	}
}

func integration(id, name, status string) oic.Object {
	return oic.Object{"id": id, "name": name, "status": status}
}
