package config

import "testing"

func TestParseJSONSingleSection(t *testing.T) {
	raw := []byte(`{
		"default": {
			"daemon": {"workers": 4},
			"plugins": {
				"scanner": {"path": "plugins.scanner.Scanner", "args": {"target": "10.0.0.1"}}
			}
		}
	}`)

	file, err := ParseFile(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, err := file.Section("")
	if err != nil {
		t.Fatalf("unexpected error selecting the sole section: %v", err)
	}
	if doc.Daemon.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", doc.Daemon.Workers)
	}
	desc, ok := doc.Plugins["scanner"]
	if !ok {
		t.Fatalf("expected plugin 'scanner' to be present")
	}
	if desc.Path != "plugins.scanner.Scanner" {
		t.Fatalf("unexpected path: %q", desc.Path)
	}
}

func TestParseYAML(t *testing.T) {
	raw := []byte("default:\n  daemon:\n    workers: 2\n  plugins:\n    scanner:\n      path: plugins.scanner.Scanner\n")

	file, err := ParseFile(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc, err := file.Section("default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Daemon.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", doc.Daemon.Workers)
	}
}

func TestSectionSelectsByName(t *testing.T) {
	raw := []byte(`{
		"staging": {"plugins": {}},
		"production": {"daemon": {"workers": 8}, "plugins": {}}
	}`)

	file, err := ParseFile(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, err := file.Section("production")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Daemon.Workers != 8 {
		t.Fatalf("expected 8 workers, got %d", doc.Daemon.Workers)
	}
}

func TestSectionWithoutNameRequiresExactlyOne(t *testing.T) {
	raw := []byte(`{"staging": {"plugins": {}}, "production": {"plugins": {}}}`)

	file, err := ParseFile(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := file.Section(""); err == nil {
		t.Fatalf("expected an error when multiple sections exist and no name is given")
	}
}

func TestSectionUnknownNameErrors(t *testing.T) {
	raw := []byte(`{"default": {"plugins": {}}}`)

	file, err := ParseFile(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := file.Section("missing"); err == nil {
		t.Fatalf("expected an error for an unknown section name")
	}
}

func TestParseRejectsVerboseAndQuiet(t *testing.T) {
	raw := []byte(`{"default": {"verbose": true, "quiet": true, "plugins": {}}}`)
	if _, err := ParseFile(raw); err == nil {
		t.Fatalf("expected error when both verbose and quiet are set")
	}
}

func TestParseRejectsNoStoreAndGlobalStore(t *testing.T) {
	raw := []byte(`{"default": {"store": {"no_store": true, "global_store": "global.json"}, "plugins": {}}}`)
	if _, err := ParseFile(raw); err == nil {
		t.Fatalf("expected error when both no_store and global_store are set")
	}
}

func TestParseDefaultsWorkersToOne(t *testing.T) {
	file, err := ParseFile([]byte(`{"default": {"plugins": {}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc, err := file.Section("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Daemon.Workers != 1 {
		t.Fatalf("expected default of 1 worker, got %d", doc.Daemon.Workers)
	}
}

func TestParseRejectsUnknownInstructionType(t *testing.T) {
	raw := []byte(`{"default": {"plugins": {
		"pipe": {"steps": [{"name": "a", "instruction": {"ref": "x", "type": "bogus"}}]}
	}}}`)
	if _, err := ParseFile(raw); err == nil {
		t.Fatalf("expected error for an unknown instruction type")
	}
}

func TestEnabledFiltersDisabledPlugins(t *testing.T) {
	doc := &Document{
		Plugins: map[string]PluginDescriptor{
			"a": {Path: "x"},
			"b": {Path: "y", Disabled: true},
		},
	}
	enabled := doc.Enabled()
	if len(enabled) != 1 {
		t.Fatalf("expected 1 enabled plugin, got %d", len(enabled))
	}
	if _, ok := enabled["a"]; !ok {
		t.Fatalf("expected plugin 'a' to remain enabled")
	}
}
