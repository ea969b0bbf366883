package oic

import (
	"fmt"
	"sort"
	"strconv"
)

// ResourceKind names one family of OIC resources.
type ResourceKind string

const (
	KindConnection  ResourceKind = "connection"
	KindIntegration ResourceKind = "integration"
	KindLookup      ResourceKind = "lookup"
	KindLibrary     ResourceKind = "library"
	KindPackage     ResourceKind = "package"
	KindInstance    ResourceKind = "monitoring-instance"
)

// BackupKinds lists the kinds a full backup covers, in backup order.
var BackupKinds = []ResourceKind{KindIntegration, KindConnection, KindLookup, KindLibrary, KindPackage}

// Plural returns the directory and CLI name of the kind.
func (k ResourceKind) Plural() string {
	switch k {
	case KindLibrary:
		return "libraries"
	case KindInstance:
		return "instances"
	default:
		return string(k) + "s"
	}
}

// ParseResourceKind accepts the singular or plural name of a kind.
func ParseResourceKind(name string) (ResourceKind, error) {
	for _, kind := range append(BackupKinds, KindInstance) {
		if name == string(kind) || name == kind.Plural() {
			return kind, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrUnknownResourceKind, name)
}

// ResourceRef is the minimal identity of a resource used for reporting.
type ResourceRef struct {
	Kind ResourceKind `json:"kind"           yaml:"kind"`
	ID   string       `json:"id"             yaml:"id"`
	Name string       `json:"name,omitempty" yaml:"name,omitempty"`
}

// String implements fmt.Stringer.
func (r ResourceRef) String() string {
	if r.Name == "" {
		return fmt.Sprintf("%s/%s", r.Kind, r.ID)
	}

	return fmt.Sprintf("%s/%s (%s)", r.Kind, r.ID, r.Name)
}

// Object is a schema-less resource payload as returned by the API.
type Object map[string]interface{}

// String returns the value at key formatted as a string, or "" when absent.
func (o Object) String(key string) string {
	value, ok := o[key]
	if !ok || value == nil {
		return ""
	}

	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprintf("%v", typed)
	}
}

// StringOr returns the string at key, or fallback when it is empty.
func (o Object) StringOr(key, fallback string) string {
	if value := o.String(key); value != "" {
		return value
	}

	return fallback
}

// ID returns the "id" field.
func (o Object) ID() string { return o.String("id") }

// Name returns the "name" field.
func (o Object) Name() string { return o.String("name") }

// Identifier returns the "identifier" field.
func (o Object) Identifier() string { return o.String("identifier") }

// Status returns the "status" field.
func (o Object) Status() string { return o.String("status") }

// Int returns the numeric value at key and whether it was present.
func (o Object) Int(key string) (int, bool) {
	switch typed := o[key].(type) {
	case float64:
		return int(typed), true
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case string:
		parsed, err := strconv.Atoi(typed)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}

// Bool returns the boolean at key and whether it was present.
func (o Object) Bool(key string) (bool, bool) {
	switch typed := o[key].(type) {
	case bool:
		return typed, true
	case string:
		parsed, err := strconv.ParseBool(typed)
		if err != nil {
			return false, false
		}

		return parsed, true
	default:
		return false, false
	}
}

// Map returns the nested object at key, or nil.
func (o Object) Map(key string) Object {
	return AsObject(o[key])
}

// Slice returns the list at key, or nil.
func (o Object) Slice(key string) []interface{} {
	list, _ := o[key].([]interface{})

	return list
}

// Objects returns the list at key keeping only nested objects.
func (o Object) Objects(key string) []Object {
	raw := o.Slice(key)
	if raw == nil {
		if typed, ok := o[key].([]Object); ok {
			return typed
		}

		return nil
	}

	out := make([]Object, 0, len(raw))

	for _, item := range raw {
		if obj := AsObject(item); obj != nil {
			out = append(out, obj)
		}
	}

	return out
}

// Has reports whether key is present.
func (o Object) Has(key string) bool {
	_, ok := o[key]

	return ok
}

// Clone returns a deep copy of nested maps and slices.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}

	out := make(Object, len(o))
	for key, value := range o {
		out[key] = cloneValue(value)
	}

	return out
}

// Keys returns the sorted keys of the object.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for key := range o {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// AsObject converts a decoded JSON value to an Object when it is one.
func AsObject(value interface{}) Object {
	switch typed := value.(type) {
	case Object:
		return typed
	case map[string]interface{}:
		return Object(typed)
	default:
		return nil
	}
}

func cloneValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		return map[string]interface{}(Object(typed).Clone())
	case Object:
		return typed.Clone()
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return typed
	}
}
