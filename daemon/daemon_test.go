package daemon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/wahl-sec/trident/internal/config"
	"github.com/wahl-sec/trident/plugin"
)

type echoArgs struct {
	Target string `json:"target"`
}

type echoPlugin struct{}

func (echoPlugin) Run(args echoArgs) (interface{}, error) {
	return "echo:" + args.Target, nil
}

func registerEcho(t *testing.T, ref string) {
	t.Helper()
	plugin.Register(ref, func() (interface{}, error) {
		return echoPlugin{}, nil
	})
}

func TestNewRejectsUnregisteredPlugin(t *testing.T) {
	doc := &config.Document{
		Daemon:  config.Daemon{Workers: 1},
		Store:   config.Store{NoStore: true},
		Plugins: map[string]config.PluginDescriptor{"missing": {Path: "daemon.test.DoesNotExist"}},
	}

	if _, err := New(doc, nil); err == nil {
		t.Fatalf("expected an error for an unregistered plugin reference")
	}
}

func TestStartAndJoinDrivesAllRunnersAndFinalizesStores(t *testing.T) {
	registerEcho(t, "daemon.test.EchoA")
	registerEcho(t, "daemon.test.EchoB")

	dir := t.TempDir()
	doc := &config.Document{
		Daemon: config.Daemon{Workers: 2},
		Store:  config.Store{PathStore: dir},
		Plugins: map[string]config.PluginDescriptor{
			"a": {Path: "daemon.test.EchoA", Args: map[string]interface{}{"target": "x"}},
			"b": {Path: "daemon.test.EchoB", Args: map[string]interface{}{"target": "y"}},
		},
	}

	d, err := New(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Start(context.Background())
	errs := d.Join()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	select {
	case <-d.Done():
	default:
		t.Fatalf("expected Done() to be closed after Join returns")
	}

	for _, id := range []string{"a", "b"} {
		if _, err := os.Stat(filepath.Join(dir, id+".json")); err != nil {
			t.Fatalf("expected store file for %q to be flushed: %v", id, err)
		}
	}
}

func TestRunOneDrivesASinglePlugin(t *testing.T) {
	registerEcho(t, "daemon.test.EchoSolo")

	dir := t.TempDir()
	doc := &config.Document{
		Daemon: config.Daemon{Workers: 1},
		Store:  config.Store{PathStore: dir},
		Plugins: map[string]config.PluginDescriptor{
			"solo": {Path: "daemon.test.EchoSolo", Args: map[string]interface{}{"target": "z"}},
		},
	}

	d, err := New(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.RunOne("solo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGlobalStoreSharesOneFileAcrossRunners(t *testing.T) {
	for _, ref := range []string{"daemon.test.Global1", "daemon.test.Global2", "daemon.test.Global3"} {
		registerEcho(t, ref)
	}

	dir := t.TempDir()
	doc := &config.Document{
		Daemon: config.Daemon{Workers: 3},
		Store:  config.Store{PathStore: dir, GlobalStore: "global.json"},
		Plugins: map[string]config.PluginDescriptor{
			"a": {Path: "daemon.test.Global1", Args: map[string]interface{}{"target": "1"}},
			"b": {Path: "daemon.test.Global2", Args: map[string]interface{}{"target": "2"}},
			"c": {Path: "daemon.test.Global3", Args: map[string]interface{}{"target": "3"}},
		},
	}

	d, err := New(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		h := d.stores[id]
		if h == nil {
			t.Fatalf("expected %q to have a store handle", id)
		}
		if h.Path() != filepath.Join(dir, "global.json") {
			t.Fatalf("expected %q to share the global store file, got %q", id, h.Path())
		}
	}

	d.Start(context.Background())
	errs := d.Join()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "global.json"))
	if err != nil {
		t.Fatalf("unexpected error reading shared store: %v", err)
	}

	var doc2 struct {
		Runners map[string]interface{} `json:"runners"`
	}
	if err := json.Unmarshal(raw, &doc2); err != nil {
		t.Fatalf("unexpected error decoding shared store: %v", err)
	}
	if len(doc2.Runners) != 3 {
		t.Fatalf("expected 3 top-level runner entries in the shared store, got %d", len(doc2.Runners))
	}
}

func TestRunOneSucceedsAfterAPriorStop(t *testing.T) {
	registerEcho(t, "daemon.test.EchoAfterStop")

	dir := t.TempDir()
	doc := &config.Document{
		Daemon: config.Daemon{Workers: 1},
		Store:  config.Store{PathStore: dir},
		Plugins: map[string]config.PluginDescriptor{
			"solo": {Path: "daemon.test.EchoAfterStop", Args: map[string]interface{}{"target": "z"}},
		},
	}

	d, err := New(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Start(context.Background())
	d.Stop()
	if errs := d.Join(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if err := d.RunOne("solo"); err != nil {
		t.Fatalf("expected RunOne to succeed after a prior Stop, got: %v", err)
	}
}

func TestRunOneUnknownIDErrors(t *testing.T) {
	doc := &config.Document{
		Daemon:  config.Daemon{Workers: 1},
		Store:   config.Store{NoStore: true},
		Plugins: map[string]config.PluginDescriptor{},
	}

	d, err := New(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.RunOne("nope"); err == nil {
		t.Fatalf("expected an error for an unknown plugin ID")
	}
}
