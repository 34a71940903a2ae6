// Package pipeline runs an ordered list of steps that share a single
// variable map, each step's result becoming visible to every step after
// it. A step — whether it resolves to a plugin class or a registered
// method — is driven by the exact same runner.Runner machinery a plain
// plugin is, so cancellation and streaming/scalar classification behave
// identically for a pipeline step and a standalone plugin. Result
// filtering is not applied to pipeline steps: each step's runner is
// built without a FilterResult pattern.
package pipeline

import (
	"github.com/wahl-sec/trident/finalize"
	"github.com/wahl-sec/trident/logging"
	"github.com/wahl-sec/trident/notify"
	"github.com/wahl-sec/trident/plugin"
	"github.com/wahl-sec/trident/runner"
	"github.com/wahl-sec/trident/store"
)

// VariableMap is the shared state threaded through a pipeline's steps.
// It is seeded from the pipeline's plugin-level arguments and grows as
// each step writes its "out" slot.
type VariableMap map[string]interface{}

// Step is one stage of a pipeline: a resolved entry point (plugin or
// method, already inspected into a Contract by the caller), its own
// static arguments, and the variable-map slot its result is written to.
// Args are merged with VariableMap (the variable map taking precedence
// on key collisions, since it carries the live results of everything
// that ran before this step). An empty Out means the step's result is
// still recorded to the store but no variable is written.
type Step struct {
	Name     string
	Contract *plugin.Contract
	Args     map[string]interface{}
	Out      string
}

// Config assembles a Pipeline's dependencies, mirroring runner.Config
// for the steps it will drive internally. Args seeds the shared
// variable map before the first step runs.
type Config struct {
	ID               string
	Args             map[string]interface{}
	Steps            []Step
	Store            *store.Handle
	Dispatcher       *notify.Dispatcher
	Queue            *finalize.Queue
	DontStoreOnError bool
	Log              logging.Logger
}

// Pipeline drives Config.Steps in order over a shared VariableMap.
type Pipeline struct {
	cfg    Config
	token  *plugin.CancelToken
	vars   VariableMap
	active *runner.Runner
}

// ID returns the pipeline's identifier.
func (p *Pipeline) ID() string { return p.cfg.ID }

// New returns a Pipeline ready to Drive, its variable map seeded with a
// copy of cfg.Args.
func New(cfg Config) *Pipeline {
	if cfg.Log == nil {
		cfg.Log = logging.NoOp{}
	}
	vars := make(VariableMap, len(cfg.Args))
	for k, v := range cfg.Args {
		vars[k] = v
	}
	return &Pipeline{cfg: cfg, token: plugin.NewCancelToken(), vars: vars}
}

// Cancel requests cooperative cancellation of whichever step is
// currently running; steps not yet started will not be driven at all.
func (p *Pipeline) Cancel() {
	p.token.Set()
	if p.active != nil {
		p.active.Cancel()
	}
}

// Variables returns the pipeline's shared variable map after Drive has
// run, for inspection or storage by the caller.
func (p *Pipeline) Variables() VariableMap {
	return p.vars
}

// Reset returns the pipeline to a freshly-constructed state: a new
// cancellation token and the variable map reseeded from Config.Args,
// discarding whatever steps wrote into it on the previous Drive. Same
// rationale as runner.Runner.Reset — required before an on-demand
// re-run issued after a prior Stop() call set the token permanently.
func (p *Pipeline) Reset() {
	p.token = plugin.NewCancelToken()
	vars := make(VariableMap, len(p.cfg.Args))
	for k, v := range p.cfg.Args {
		vars[k] = v
	}
	p.vars = vars
	p.active = nil
}

// Drive runs every step in order, stopping early (without error) if
// cancellation is requested between steps, and stopping on the first
// step that fails when DontStoreOnError is set.
func (p *Pipeline) Drive() error {
	for i, step := range p.cfg.Steps {
		if p.token.IsSet() {
			p.cfg.Log.Debug("pipeline %q cancelled before step %q", p.cfg.ID, step.Name)
			break
		}

		args := mergeArgs(step.Args, p.vars)

		stepRunner := runner.New(runner.Config{
			ID:               p.cfg.ID + "/" + step.Name,
			Contract:         step.Contract,
			Args:             args,
			Dispatcher:       p.cfg.Dispatcher,
			DontStoreOnError: p.cfg.DontStoreOnError,
			Log:              p.cfg.Log,
		})
		p.active = stepRunner

		// stepRunner.Drive only returns a non-nil error when
		// DontStoreOnError escalates it; otherwise the runner has
		// already logged the failure internally and kept whatever
		// partial results it accumulated before finalizing.
		if err := stepRunner.Drive(); err != nil {
			return err
		}

		switch {
		case stepRunner.Streamed():
			if step.Out != "" {
				values := append([]interface{}{}, stepRunner.Values()...)
				p.vars[step.Out] = values
			}
		case len(stepRunner.Values()) > 0:
			if step.Out != "" {
				p.vars[step.Out] = stepRunner.LastValue()
			}
		}

		if p.cfg.Store != nil {
			p.cfg.Store.Record(i, map[string]interface{}{step.Name: stepRunner.Values()})
		}

		if stepRunner.State() == runner.Cancelled {
			break
		}
	}

	if p.cfg.Store != nil && p.cfg.Queue != nil {
		p.cfg.Queue.Enqueue(p.cfg.Store.Path(), p.cfg.ID)
	}

	return nil
}

func mergeArgs(stepArgs map[string]interface{}, vars VariableMap) map[string]interface{} {
	merged := make(map[string]interface{}, len(stepArgs)+len(vars))
	for k, v := range stepArgs {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	return merged
}
