package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/offcache/internal/objectstore"
	"github.com/roach88/offcache/internal/store"
)

// Scenario is one scripted session against a fresh cache.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Signaling selects the schema version signaling variant.
	Signaling string `yaml:"signaling,omitempty"`

	// Remote scripts the in-memory remote's failures.
	Remote RemoteSetup `yaml:"remote,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RemoteSetup scripts the in-memory remote.
type RemoteSetup struct {
	FailSave   []string `yaml:"fail_save,omitempty"`
	FailDelete []string `yaml:"fail_delete,omitempty"`

	// Stamp, when set, makes the remote write prefix-N into the
	// last-modified metadata of every record it accepts.
	Stamp string `yaml:"stamp,omitempty"`
}

// Step is one operation against the local cache.
type Step struct {
	Op         string         `yaml:"op"`
	Collection string         `yaml:"collection,omitempty"`
	ID         string         `yaml:"id,omitempty"`
	Doc        map[string]any `yaml:"doc,omitempty"`

	// Query is a query object: filter, sort, fields, limit, skip.
	Query map[string]any `yaml:"query,omitempty"`

	// Aggregation is an aggregation object: key, initial, reduce, condition.
	Aggregation map[string]any `yaml:"aggregation,omitempty"`

	// Kind, Key, and Data are the arguments of a put. Key is an id for
	// kind query and an object for the other kinds. Missing data evicts.
	Kind string `yaml:"kind,omitempty"`
	Key  any    `yaml:"key,omitempty"`
	Data any    `yaml:"data,omitempty"`

	// Expect validates the step's outcome. If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a step. Unset fields are not checked.
type Expect struct {
	// Error is the expected error code. Empty means the step succeeds.
	Error string `yaml:"error,omitempty"`

	// Payload is matched as a subset of the response payload.
	Payload any `yaml:"payload,omitempty"`

	// IDs are the ids a find or pending returns, in order.
	IDs []string `yaml:"ids,omitempty"`

	// Commit and Cancel are the partition of a sync pass.
	Commit []string `yaml:"commit,omitempty"`
	Cancel []string `yaml:"cancel,omitempty"`
}

// Assertion checks final local or remote state.
type Assertion struct {
	Type       string         `yaml:"type"`
	Collection string         `yaml:"collection"`
	ID         string         `yaml:"id,omitempty"`
	IDs        []string       `yaml:"ids,omitempty"`
	Expect     map[string]any `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpSave        = "save"
	OpRemove      = "remove"
	OpRemoveQuery = "remove_query"
	OpGet         = "get"
	OpFind        = "find"
	OpPut         = "put"
	OpAggregate   = "aggregate"
	OpPending     = "pending"
	OpPurge       = "purge"
	OpSync        = "sync"
	OpSyncAll     = "sync_all"
)

// Assertion type constants.
const (
	AssertPending      = "pending"
	AssertRecord       = "record"
	AssertAbsent       = "absent"
	AssertRemoteRecord = "remote_record"
	AssertRemoteAbsent = "remote_absent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" for "assertions:".
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
	if _, err := store.ParseSignaling(s.Signaling); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	needsCollection := true
	switch step.Op {
	case OpSave:
		if step.Doc == nil {
			return fmt.Errorf("save requires doc")
		}
	case OpRemove, OpGet:
		if step.ID == "" {
			return fmt.Errorf("%s requires id", step.Op)
		}
	case OpFind, OpRemoveQuery:
		if step.Query == nil {
			return fmt.Errorf("%s requires query", step.Op)
		}
	case OpAggregate:
		if step.Aggregation == nil {
			return fmt.Errorf("aggregate requires aggregation")
		}
	case OpPut:
		if _, err := objectstore.ParsePutKind(step.Kind); err != nil {
			return err
		}
		if step.Key == nil {
			return fmt.Errorf("put requires key")
		}
	case OpPending, OpSync:
	case OpPurge, OpSyncAll:
		needsCollection = false
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if needsCollection && step.Collection == "" {
		return fmt.Errorf("%s requires collection", step.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	if a.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	switch a.Type {
	case AssertPending:
	case AssertRecord, AssertAbsent, AssertRemoteRecord, AssertRemoteAbsent:
		if a.ID == "" {
			return fmt.Errorf("%s requires id", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
