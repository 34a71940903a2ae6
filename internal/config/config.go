// Package config parses the Trident configuration document. It mirrors
// OPA's config.Config: a handful of typed top-level fields plus a map of
// typed per-plugin descriptors, whose notification blocks alone are kept
// raw and decoded by the daemon when it builds each plugin's
// dispatcher. The file itself is a JSON (or YAML) object
// keyed by section name, each value a full Document — the runtime picks
// one section by name, the same way OPA's own config loader treats a
// single config file as one document rather than a registry of them.
package config

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Daemon holds the orchestrator-level settings: how many runners may be
// in flight at once and whether a plugin error should still be recorded
// to the store.
type Daemon struct {
	Workers          int  `json:"workers" yaml:"workers"`
	DontStoreOnError bool `json:"dont_store_on_error" yaml:"dont_store_on_error"`
}

// Store holds the data-store placement settings shared by every runner
// unless a plugin descriptor overrides them. GlobalStore, when non-empty,
// names a single store file (resolved under PathStore) that every
// runner's results are recorded into, each under its own runner ID —
// as opposed to the default of one store file per runner.
type Store struct {
	PathStore   string `json:"path_store" yaml:"path_store"`
	GlobalStore string `json:"global_store,omitempty" yaml:"global_store,omitempty"`
	NoStore     bool   `json:"no_store" yaml:"no_store"`
}

// Instruction is a single step's entry point reference: what to call
// (Ref), whether it resolves to a plugin or a registered method, the
// static arguments to pass, and the variable-map slot its result is
// written to.
type Instruction struct {
	Ref  string                 `json:"ref" yaml:"ref"`
	Type string                 `json:"type" yaml:"type"`
	Args map[string]interface{} `json:"args,omitempty" yaml:"args,omitempty"`
	Out  string                 `json:"out,omitempty" yaml:"out,omitempty"`
}

// Instruction kinds recognized in a step descriptor.
const (
	InstructionPlugin = "plugin"
	InstructionMethod = "method"
)

// StepDescriptor is one entry in a pipeline plugin's "steps" list.
type StepDescriptor struct {
	Name        string      `json:"name" yaml:"name"`
	Instruction Instruction `json:"instruction" yaml:"instruction"`
}

// PluginDescriptor is one entry under "plugins" in the configuration
// document: a symbolic reference to the plugin (or an ordered list of
// step descriptors for a pipeline), its arguments, and any per-plugin
// overrides of the store/notification settings.
type PluginDescriptor struct {
	Path         string                     `json:"path" yaml:"path"`
	Steps        []StepDescriptor           `json:"steps,omitempty" yaml:"steps,omitempty"`
	Disabled     bool                       `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Args         map[string]interface{}     `json:"args,omitempty" yaml:"args,omitempty"`
	FilterResult string                     `json:"filter_results,omitempty" yaml:"filter_results,omitempty"`
	Store        *Store                     `json:"store,omitempty" yaml:"store,omitempty"`
	Notification map[string]json.RawMessage `json:"notification,omitempty" yaml:"notification,omitempty"`
}

// Document is one named section of the Trident configuration file.
type Document struct {
	LoggingLevel string                      `json:"logging_level" yaml:"logging_level"`
	Verbose      bool                        `json:"verbose" yaml:"verbose"`
	Quiet        bool                        `json:"quiet" yaml:"quiet"`
	Daemon       Daemon                      `json:"daemon" yaml:"daemon"`
	Store        Store                       `json:"store" yaml:"store"`
	Plugins      map[string]PluginDescriptor `json:"plugins" yaml:"plugins"`
}

// File is the top-level configuration file: a map from section name to
// a full Document, matching spec §6's "JSON document with a named
// section".
type File map[string]Document

// ParseFile decodes raw into a File. JSON is tried first; if raw does
// not parse as JSON it is decoded as YAML, matching the superset
// relationship YAML has with JSON that OPA's own config loader relies
// on for its own config documents. Every section is validated.
func ParseFile(raw []byte) (File, error) {
	var file File

	jsonErr := json.Unmarshal(raw, &file)
	if jsonErr != nil {
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, errors.Wrap(jsonErr, "config is neither valid JSON nor valid YAML")
		}
	}

	for name, doc := range file {
		if err := validate(&doc); err != nil {
			return nil, errors.Wrapf(err, "section %q", name)
		}
		file[name] = doc
	}
	return file, nil
}

// Section selects the section named by name. An empty name is only
// accepted when the file defines exactly one section.
func (f File) Section(name string) (*Document, error) {
	if name == "" {
		if len(f) != 1 {
			return nil, errors.New("config: --section is required when the configuration file defines more than one section")
		}
		for _, doc := range f {
			d := doc
			return &d, nil
		}
	}

	doc, ok := f[name]
	if !ok {
		return nil, errors.Errorf("config: no section named %q", name)
	}
	return &doc, nil
}

func validate(doc *Document) error {
	if doc.Verbose && doc.Quiet {
		return errors.New("config: can't set both verbose and quiet")
	}
	if doc.Daemon.Workers < 0 {
		return errors.Errorf("config: workers must be a positive integer, got %d", doc.Daemon.Workers)
	}
	if doc.Daemon.Workers == 0 {
		doc.Daemon.Workers = 1
	}
	if doc.Store.NoStore && doc.Store.GlobalStore != "" {
		return errors.New("config: can't set both no_store and global_store")
	}
	for id, desc := range doc.Plugins {
		for i, step := range desc.Steps {
			switch step.Instruction.Type {
			case "", InstructionPlugin, InstructionMethod:
			default:
				return errors.Errorf("config: plugin %q step %d: unknown instruction type %q", id, i, step.Instruction.Type)
			}
			if step.Instruction.Ref == "" {
				return errors.Errorf("config: plugin %q step %d: instruction.ref is required", id, i)
			}
		}
	}
	return nil
}

// Enabled returns the subset of Plugins whose Disabled flag is unset.
func (d *Document) Enabled() map[string]PluginDescriptor {
	out := make(map[string]PluginDescriptor, len(d.Plugins))
	for id, desc := range d.Plugins {
		if !desc.Disabled {
			out[id] = desc
		}
	}
	return out
}
