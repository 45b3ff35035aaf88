package perception

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"shadebot/internal/logging"
	"shadebot/internal/types"
)

//go:embed definitions.yaml
var defaultDefinitions []byte

type definitionsFile struct {
	Intents []types.IntentDefinition `yaml:"intents"`
}

// Definitions is the live, read-mostly set of intent definitions. It is safe
// for concurrent use; Replace swaps the whole set atomically.
type Definitions struct {
	mu      sync.RWMutex
	intents []types.IntentDefinition
	byKey   map[string]int
	source  string
}

// DefaultDefinitions returns the embedded definition set.
func DefaultDefinitions() *Definitions {
	list, err := ParseDefinitions(defaultDefinitions)
	if err != nil {
		// embedded data is covered by tests
		panic(fmt.Sprintf("embedded definitions: %v", err))
	}
	d := &Definitions{source: "embedded"}
	d.Replace(list)
	return d
}

// LoadDefinitions reads definitions from path. An empty path returns the
// embedded defaults.
func LoadDefinitions(path string) (*Definitions, error) {
	if path == "" {
		return DefaultDefinitions(), nil
	}
	d := &Definitions{source: path}
	if err := d.Reload(path); err != nil {
		return nil, err
	}
	return d, nil
}

// NewDefinitions wraps an explicit list.
func NewDefinitions(list []types.IntentDefinition) (*Definitions, error) {
	if err := validateDefinitions(list); err != nil {
		return nil, err
	}
	d := &Definitions{source: "inline"}
	d.Replace(list)
	return d, nil
}

// ParseDefinitions decodes and validates a YAML definitions document.
func ParseDefinitions(data []byte) ([]types.IntentDefinition, error) {
	var f definitionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}
	if err := validateDefinitions(f.Intents); err != nil {
		return nil, err
	}
	return f.Intents, nil
}

func validateDefinitions(list []types.IntentDefinition) error {
	seen := make(map[string]bool, len(list))
	for i, def := range list {
		if def.Key == "" {
			return fmt.Errorf("intent %d: key is required", i)
		}
		if seen[def.Key] {
			return fmt.Errorf("intent %q: duplicate key", def.Key)
		}
		seen[def.Key] = true
		switch def.HandlerType {
		case types.HandlerPattern:
			if def.Response == "" {
				return fmt.Errorf("intent %q: pattern handler needs a response", def.Key)
			}
		case types.HandlerFlow:
			if def.FlowRef == "" {
				return fmt.Errorf("intent %q: flow handler needs flow_ref", def.Key)
			}
		case types.HandlerHumanHandoff, types.HandlerAIGenerate:
		default:
			return fmt.Errorf("intent %q: unknown handler_type %q", def.Key, def.HandlerType)
		}
	}
	return nil
}

// Reload re-reads path and swaps the set. On error the current set is kept.
func (d *Definitions) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read definitions: %w", err)
	}
	list, err := ParseDefinitions(data)
	if err != nil {
		return err
	}
	d.Replace(list)
	logging.Perception("loaded %d intent definitions from %s", len(list), path)
	return nil
}

// Replace swaps the definition set.
func (d *Definitions) Replace(list []types.IntentDefinition) {
	sorted := append([]types.IntentDefinition(nil), list...)
	sortByPriority(sorted)
	byKey := make(map[string]int, len(sorted))
	for i, def := range sorted {
		byKey[def.Key] = i
	}
	d.mu.Lock()
	d.intents = sorted
	d.byKey = byKey
	d.mu.Unlock()
}

// List returns a copy of the definitions, highest priority first.
func (d *Definitions) List() []types.IntentDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]types.IntentDefinition(nil), d.intents...)
}

// Lookup returns the definition for key.
func (d *Definitions) Lookup(key string) (types.IntentDefinition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.byKey[key]
	if !ok {
		return types.IntentDefinition{}, false
	}
	return d.intents[i], true
}

// Keys returns the intent keys in priority order.
func (d *Definitions) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.intents))
	for i, def := range d.intents {
		out[i] = def.Key
	}
	return out
}

// Source names where the set was loaded from.
func (d *Definitions) Source() string {
	return d.source
}
