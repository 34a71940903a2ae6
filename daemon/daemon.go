// Package daemon is the orchestrator: it builds one runner or pipeline
// per enabled plugin descriptor, drives them concurrently under a
// bounded worker pool, and finalizes each one's store exactly once,
// serialized through a single completion-draining goroutine so two
// runners sharing a store path never merge-and-flush concurrently.
package daemon

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/wahl-sec/trident/finalize"
	"github.com/wahl-sec/trident/internal/config"
	"github.com/wahl-sec/trident/logging"
	"github.com/wahl-sec/trident/notify"
	"github.com/wahl-sec/trident/pipeline"
	"github.com/wahl-sec/trident/plugin"
	"github.com/wahl-sec/trident/runner"
	"github.com/wahl-sec/trident/store"
)

// Runnable is satisfied by both runner.Runner and pipeline.Pipeline, the
// two shapes of work a plugin descriptor can resolve to.
type Runnable interface {
	ID() string
	Drive() error
	Cancel()
	Reset()
}

type completion struct {
	id  string
	err error
}

// Daemon orchestrates every enabled plugin descriptor from a parsed
// configuration document.
type Daemon struct {
	doc       *config.Document
	log       logging.Logger
	runnables map[string]Runnable
	stores    map[string]*store.Handle
	queue     *finalize.Queue
	sem       *semaphore.Weighted

	completions chan completion
	done        chan struct{}
}

// New resolves every enabled descriptor in doc against the plugin
// registry and builds the runners/pipelines that will drive them. A
// descriptor whose path (or any of its steps) is not registered is a
// configuration error returned immediately, before any runner starts.
func New(doc *config.Document, log logging.Logger) (*Daemon, error) {
	if log == nil {
		log = logging.NoOp{}
	}

	d := &Daemon{
		doc:       doc,
		log:       log,
		runnables: map[string]Runnable{},
		stores:    map[string]*store.Handle{},
		queue:     finalize.NewQueue(),
		sem:       semaphore.NewWeighted(int64(doc.Daemon.Workers)),
	}

	for id, desc := range doc.Enabled() {
		if err := d.build(id, desc); err != nil {
			return nil, errors.Wrapf(err, "initializing plugin %q", id)
		}
	}

	d.log.Info("initialized (%d) out of (%d) plugins", len(d.runnables), len(doc.Plugins))
	return d, nil
}

func (d *Daemon) build(id string, desc config.PluginDescriptor) error {
	storeCfg := d.doc.Store
	if desc.Store != nil {
		storeCfg = *desc.Store
	}

	var handle *store.Handle
	if !storeCfg.NoStore {
		storePath := storeCfg.PathStore
		if storePath == "" {
			storePath = "."
		}
		// A set global_store names a single shared file every runner's
		// results are recorded into, each under its own runner ID, so a
		// store file may host multiple runners (spec §3) without losing
		// the one-writer-per-store-path invariant: finalization is still
		// serialized through the shared finalize.Queue keyed by path.
		if storeCfg.GlobalStore != "" {
			storePath = filepath.Join(storePath, storeCfg.GlobalStore)
		}
		h, err := store.Open(storePath, id, id)
		if err != nil {
			return errors.Wrap(err, "opening store")
		}
		handle = h
		d.stores[id] = handle
	}

	dispatcher, err := buildDispatcher(id, desc, d.log)
	if err != nil {
		return err
	}

	var filter *regexp.Regexp
	if desc.FilterResult != "" {
		filter, err = regexp.Compile(desc.FilterResult)
		if err != nil {
			return errors.Wrap(err, "compiling filter_results pattern")
		}
	}

	dontStoreOnError := d.doc.Daemon.DontStoreOnError

	if len(desc.Steps) > 0 {
		steps := make([]pipeline.Step, 0, len(desc.Steps))
		for i, step := range desc.Steps {
			contract, err := plugin.Resolve(step.Instruction.Ref)
			if err != nil {
				return errors.Wrapf(err, "step %d (%q)", i, step.Name)
			}
			steps = append(steps, pipeline.Step{
				Name:     step.Name,
				Contract: contract,
				Args:     step.Instruction.Args,
				Out:      step.Instruction.Out,
			})
		}

		d.runnables[id] = pipeline.New(pipeline.Config{
			ID:               id,
			Args:             desc.Args,
			Steps:            steps,
			Store:            handle,
			Dispatcher:       dispatcher,
			Queue:            d.queue,
			DontStoreOnError: dontStoreOnError,
			Log:              d.log,
		})
		return nil
	}

	contract, err := plugin.Resolve(desc.Path)
	if err != nil {
		return err
	}

	d.runnables[id] = runner.New(runner.Config{
		ID:               id,
		Contract:         contract,
		Args:             desc.Args,
		Store:            handle,
		Dispatcher:       dispatcher,
		Queue:            d.queue,
		DontStoreOnError: dontStoreOnError,
		FilterResult:     filter,
		Log:              d.log,
	})
	return nil
}

func buildDispatcher(id string, desc config.PluginDescriptor, log logging.Logger) (*notify.Dispatcher, error) {
	var registrations []notify.Registration
	for name, raw := range desc.Notification {
		var cfg struct {
			Type          string `json:"type"`
			URL           string `json:"url"`
			IncludeResult *bool  `json:"include_result"`
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrapf(err, "notification %q for plugin %q", name, id)
		}

		includeResult := cfg.IncludeResult == nil || *cfg.IncludeResult

		var handler notify.Handler
		switch cfg.Type {
		case "console", "":
			handler = notify.NewConsoleHandler(name, log)
		case "http", "webhook":
			handler = notify.NewWebhookHandler(name, cfg.URL)
		default:
			log.Warn("unsupported notification type %q for notification %q in plugin %q", cfg.Type, name, id)
			continue
		}
		registrations = append(registrations, notify.Registration{Handler: handler, IncludeResult: includeResult})
	}
	return notify.NewDispatcher(log, registrations...), nil
}

// Start launches every runnable under the bounded worker pool and
// returns immediately; call Join to wait for completion and drain
// finalization.
func (d *Daemon) Start(ctx context.Context) {
	d.completions = make(chan completion, len(d.runnables))
	d.done = make(chan struct{})

	go func() {
		defer close(d.completions)

		results := make(chan completion, len(d.runnables))
		remaining := len(d.runnables)

		for id, r := range d.runnables {
			id, r := id, r
			go func() {
				if err := d.sem.Acquire(ctx, 1); err != nil {
					results <- completion{id: id, err: err}
					return
				}
				defer d.sem.Release(1)

				d.log.Debug("starting runner %q", id)
				err := r.Drive()
				results <- completion{id: id, err: err}
			}()
		}

		for remaining > 0 {
			c := <-results
			d.completions <- c
			remaining--
		}
	}()
}

// Join drains completions one at a time, merging and flushing each
// runnable's store handle as it finishes. Processing the channel on a
// single goroutine is what serializes finalization per store path
// without any additional per-path locking: two runners sharing a path
// can never have their merge-and-flush interleaved.
func (d *Daemon) Join() []error {
	var errs []error

	for c := range d.completions {
		if c.err != nil {
			d.log.Error("runner %q finished with error: %v", c.id, c.err)
			errs = append(errs, c.err)
		}

		handle, ok := d.stores[c.id]
		if !ok || handle == nil {
			continue
		}
		if !d.queue.Contains(handle.Path(), c.id) {
			continue
		}

		if err := handle.Merge(); err != nil {
			d.log.Error("failed to merge store for %q: %v", c.id, err)
		}
		if err := handle.Flush(); err != nil {
			d.log.Error("failed to flush store for %q: %v", c.id, err)
		}
		d.queue.Remove(handle.Path(), c.id)
	}

	close(d.done)
	return errs
}

// Done returns a channel that closes once Join has finished draining
// every completion and finalizing every store.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Stop requests cooperative cancellation of every in-flight runnable.
// It does not wait for them to finish; call Join (already in progress)
// to observe completion.
func (d *Daemon) Stop() {
	for id, r := range d.runnables {
		d.log.Debug("sending stop signal to runner %q", id)
		r.Cancel()
	}
}

// RunOne drives exactly one enabled descriptor by ID outside of the
// pooled Start/Join flow, used for on-demand single-plugin re-runs.
func (d *Daemon) RunOne(id string) error {
	r, ok := d.runnables[id]
	if !ok {
		return errors.Errorf("no such plugin %q", id)
	}

	r.Reset()
	err := r.Drive()

	if handle, ok := d.stores[id]; ok && handle != nil && d.queue.Contains(handle.Path(), id) {
		if mergeErr := handle.Merge(); mergeErr != nil {
			d.log.Error("failed to merge store for %q: %v", id, mergeErr)
		}
		if flushErr := handle.Flush(); flushErr != nil {
			d.log.Error("failed to flush store for %q: %v", id, flushErr)
		}
		d.queue.Remove(handle.Path(), id)
	}

	return err
}
