package oic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const messageSeparator = "; "

// ErrorRecord is one failure recorded by a workflow.
type ErrorRecord struct {
	Message    string    `json:"message"                  yaml:"message"`
	Cause      string    `json:"exception,omitempty"      yaml:"exception,omitempty"`
	CauseType  string    `json:"exception_type,omitempty" yaml:"exception_type,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"    yaml:"resource_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"                yaml:"timestamp"`
}

// WorkflowResult is the additive outcome of one workflow invocation.
type WorkflowResult struct {
	RunID     string                             `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Success   bool                               `json:"success"          yaml:"success"`
	Message   string                             `json:"message"          yaml:"message"`
	Details   map[string]interface{}             `json:"details"          yaml:"details"`
	Resources map[ResourceKind]map[string]Object `json:"resources"        yaml:"resources"`
	Errors    []ErrorRecord                      `json:"errors"           yaml:"errors"`
	Timestamp time.Time                          `json:"timestamp"        yaml:"timestamp"`
}

// NewWorkflowResult returns a successful, empty result with a fresh run id.
func NewWorkflowResult(message string) *WorkflowResult {
	return &WorkflowResult{
		RunID:     uuid.NewString(),
		Success:   true,
		Message:   message,
		Details:   map[string]interface{}{},
		Resources: map[ResourceKind]map[string]Object{},
		Errors:    []ErrorRecord{},
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorResult returns a failed result carrying a single error record.
func NewErrorResult(message string, err error) *WorkflowResult {
	result := NewWorkflowResult(message)
	result.AddError(message, err, "")

	return result
}

// AddError records a failure and marks the result unsuccessful.
func (r *WorkflowResult) AddError(message string, cause error, resourceID string) {
	record := ErrorRecord{
		Message:    message,
		ResourceID: resourceID,
		Timestamp:  time.Now().UTC(),
	}

	if cause != nil {
		record.Cause = cause.Error()
		record.CauseType = ErrorType(cause)
	}

	r.Errors = append(r.Errors, record)
	r.Success = false
}

// AddResource records the outcome attributes of one resource.
func (r *WorkflowResult) AddResource(kind ResourceKind, id string, attrs Object) {
	if r.Resources == nil {
		r.Resources = map[ResourceKind]map[string]Object{}
	}

	if r.Resources[kind] == nil {
		r.Resources[kind] = map[string]Object{}
	}

	if attrs == nil {
		attrs = Object{}
	}

	r.Resources[kind][id] = attrs
}

// SetDetail stores one detail value.
func (r *WorkflowResult) SetDetail(key string, value interface{}) {
	if r.Details == nil {
		r.Details = map[string]interface{}{}
	}

	r.Details[key] = value
}

// Fail marks the result unsuccessful and replaces the message.
func (r *WorkflowResult) Fail(message string) {
	r.Success = false
	r.Message = message
}

// Merge folds other into r and returns r. Errors are concatenated, resources
// and details are unioned with other winning on conflicts, messages are joined,
// and success holds only if both sides succeeded.
func (r *WorkflowResult) Merge(other *WorkflowResult) *WorkflowResult {
	if other == nil {
		return r
	}

	r.Success = r.Success && other.Success

	switch {
	case r.Message == "":
		r.Message = other.Message
	case other.Message != "":
		r.Message = r.Message + messageSeparator + other.Message
	}

	for key, value := range other.Details {
		r.SetDetail(key, value)
	}

	for kind, byID := range other.Resources {
		for id, attrs := range byID {
			r.AddResource(kind, id, attrs)
		}
	}

	r.Errors = append(r.Errors, other.Errors...)

	return r
}

// ResourceCount returns the number of recorded resources of kind.
func (r *WorkflowResult) ResourceCount(kind ResourceKind) int {
	return len(r.Resources[kind])
}

// ResourceIDs returns the sorted ids recorded for kind.
func (r *WorkflowResult) ResourceIDs(kind ResourceKind) []string {
	ids := make([]string, 0, len(r.Resources[kind]))
	for id := range r.Resources[kind] {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// ToJSON renders the result as indented JSON.
func (r *WorkflowResult) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling workflow result: %w", err)
	}

	return data, nil
}

// SaveToFile writes the result as JSON, creating parent directories.
func (r *WorkflowResult) SaveToFile(path string) error {
	data, err := r.ToJSON()
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return fmt.Errorf("creating result directory: %w", err)
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("writing workflow result: %w", err)
	}

	return nil
}

// LoadWorkflowResult reads a result previously written by SaveToFile.
func LoadWorkflowResult(path string) (*WorkflowResult, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading workflow result: %w", err)
	}

	result := NewWorkflowResult("")

	err = json.Unmarshal(data, result)
	if err != nil {
		return nil, fmt.Errorf("parsing workflow result: %w", err)
	}

	return result, nil
}

// SafeResult guards a WorkflowResult shared by concurrent workers.
type SafeResult struct {
	mu     sync.Mutex
	result *WorkflowResult
}

// NewSafeResult wraps result.
func NewSafeResult(result *WorkflowResult) *SafeResult {
	return &SafeResult{result: result}
}

// Merge folds other into the wrapped result.
func (s *SafeResult) Merge(other *WorkflowResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.result.Merge(other)
}

// Update runs fn with exclusive access to the wrapped result.
func (s *SafeResult) Update(fn func(result *WorkflowResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.result)
}

// Result returns the wrapped result. Callers must stop sharing it first.
func (s *SafeResult) Result() *WorkflowResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.result
}
