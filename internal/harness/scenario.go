package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in a scenario.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Scenario defines a data-access test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend selects the entity map implementation: "memory" (default)
	// or "sqlite".
	Backend string `yaml:"backend,omitempty"`

	// Schema is inline CUE declaring the scenario's tables.
	Schema string `yaml:"schema,omitempty"`

	// Specs lists CUE files declaring further tables.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs,omitempty"`

	// Steps are the operations to apply, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step operation names.
const (
	OpInsert      = "insert"
	OpUpdate      = "update"
	OpGet         = "get"
	OpDelete      = "delete"
	OpDeleteWhere = "delete_where"
	OpQuery       = "query"
	OpCount       = "count"
	OpBegin       = "begin"
	OpCommit      = "commit"
	OpRollback    = "rollback"
)

// Step is one table operation.
type Step struct {
	// Op is the operation name.
	Op string `yaml:"op"`

	// Table names the target table. Transaction steps take none.
	Table string `yaml:"table,omitempty"`

	// ID is the target identity. For insert it pre-assigns the identity.
	ID any `yaml:"id,omitempty"`

	// Values are field values for insert and update.
	Values map[string]any `yaml:"values,omitempty"`

	// Streams are stream field payloads for insert and update.
	Streams map[string]string `yaml:"streams,omitempty"`

	// Where filters query, count and delete_where. Absent matches all.
	Where *Filter `yaml:"where,omitempty"`

	// Order sorts query results by a field; a leading "-" sorts
	// descending. Absent sorts by identity.
	Order string `yaml:"order,omitempty"`

	// Individually runs delete_where one entity at a time, with triggers
	// and entity observers.
	Individually bool `yaml:"individually,omitempty"`

	// Expect validates the step outcome. If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected error code (e.g. "DUPLICATE_KEY").
	Error string `yaml:"error,omitempty"`

	// ID is the expected identity assigned by an insert.
	ID any `yaml:"id,omitempty"`

	// IDs are the expected query result identities, in order.
	IDs []any `yaml:"ids,omitempty"`

	// Count is the expected count, or number of deleted entities.
	Count *int `yaml:"count,omitempty"`

	// Found is the expected presence for get and delete.
	Found *bool `yaml:"found,omitempty"`

	// Values is a subset match on the entity returned by get.
	Values map[string]any `yaml:"values,omitempty"`

	// Streams is a match on stream payloads of the entity returned by get.
	Streams map[string]string `yaml:"streams,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event with Op (and Table, ID) exists
	// - "trace_order": step ops appear in the order of Ops
	// - "trace_count": Op appears exactly Count times
	// - "row_count": Where matches exactly Count rows of Table
	// - "final_state": every row of Table matching Where carries Expect
	Type string `yaml:"type"`

	// Op is a step op or change kind (used by trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected op order (used by trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Table is the table name.
	Table string `yaml:"table,omitempty"`

	// ID restricts trace_contains to one identity.
	ID any `yaml:"id,omitempty"`

	// Where filters rows (used by row_count, final_state).
	Where *Filter `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number (used by trace_count, row_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertRowCount      = "row_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file, resolving spec paths
// relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) {
			scenario.Specs[i] = filepath.Join(base, specPath)
		}
	}
	for _, specPath := range scenario.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: spec file not found: %s", specPath)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Spec paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Backend {
	case "", BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", s.Backend, BackendMemory, BackendSQLite)
	}
	if s.Schema == "" && len(s.Specs) == 0 {
		return fmt.Errorf("schema or specs is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Op {
	case OpBegin, OpCommit, OpRollback:
		return nil
	case OpInsert, OpQuery, OpCount, OpDeleteWhere:
	case OpUpdate, OpGet, OpDelete:
		if st.ID == nil {
			return fmt.Errorf("steps[%d]: id is required for %s", index, st.Op)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	if st.Table == "" {
		return fmt.Errorf("steps[%d]: table is required for %s", index, st.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
