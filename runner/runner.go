// Package runner drives a single plugin instance through its full
// lifecycle: invoking it, classifying and pulling its result, filtering
// and recording each value, and handing the runner off to the
// finalization queue once it has nothing left to produce.
package runner

import (
	"fmt"
	"regexp"

	"github.com/pkg/errors"

	"github.com/wahl-sec/trident/finalize"
	"github.com/wahl-sec/trident/logging"
	"github.com/wahl-sec/trident/notify"
	"github.com/wahl-sec/trident/plugin"
	"github.com/wahl-sec/trident/store"
)

// State is one point in a Runner's lifecycle.
type State int

const (
	Created State = iota
	Started
	Streaming
	ScalarResolved
	NoResult
	Finalizing
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Streaming:
		return "streaming"
	case ScalarResolved:
		return "scalar_resolved"
	case NoResult:
		return "no_result"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Config assembles everything a Runner needs to drive one plugin
// instance to completion.
type Config struct {
	ID               string
	Contract         *plugin.Contract
	Args             map[string]interface{}
	Store            *store.Handle // nil when the descriptor opts out of storage
	Dispatcher       *notify.Dispatcher
	Queue            *finalize.Queue
	DontStoreOnError bool
	FilterResult     *regexp.Regexp
	Log              logging.Logger
}

// Runner drives one plugin instance through Started -> {Streaming |
// ScalarResolved | NoResult} -> Finalizing -> Done, or into Cancelled if
// its token is set mid-stream.
type Runner struct {
	cfg       Config
	token     *plugin.CancelToken
	state     State
	cancelled bool
	streamed  bool
	lastValue interface{}
	values    []interface{}
}

// New returns a Runner in the Created state.
func New(cfg Config) *Runner {
	if cfg.Log == nil {
		cfg.Log = logging.NoOp{}
	}
	return &Runner{cfg: cfg, token: plugin.NewCancelToken(), state: Created}
}

// ID returns the runner's identifier, the same ID its descriptor key
// carried in the configuration document.
func (r *Runner) ID() string { return r.cfg.ID }

// State returns the runner's current lifecycle state.
func (r *Runner) State() State { return r.state }

// Cancel requests cooperative cancellation. It has no effect once the
// runner has already reached a terminal state.
func (r *Runner) Cancel() {
	r.token.Set()
}

// Reset returns the runner to its Created state with a fresh cancel
// token, discarding any previously accumulated values and cancellation.
// Required before driving the same Runner again — a Cancel() call
// permanently sets its token, so an on-demand re-run (Daemon.RunOne)
// issued after a prior Stop() would otherwise be cancelled before it
// ever invokes the plugin.
func (r *Runner) Reset() {
	r.token = plugin.NewCancelToken()
	r.state = Created
	r.cancelled = false
	r.streamed = false
	r.lastValue = nil
	r.values = nil
}

// LastValue returns the scalar result, or the last value pulled from a
// streaming result, once Drive has returned. Used by callers (such as a
// pipeline step) that need the resolved value itself rather than just
// its side effects on the store and notification dispatcher.
func (r *Runner) LastValue() interface{} {
	return r.lastValue
}

// Values returns every value pulled from the plugin, in pull order: one
// entry for a scalar result, or the full sequence for a streaming one.
// Used by a pipeline step to accumulate a streaming result into its
// "out" variable-map slot as a list.
func (r *Runner) Values() []interface{} {
	return r.values
}

// Streamed reports whether the plugin's result was a stream rather than
// a scalar, which a pipeline step needs to decide whether its "out"
// slot receives a list or a single value.
func (r *Runner) Streamed() bool {
	return r.streamed
}

// Drive runs the plugin to completion (or cancellation) and returns the
// terminal error, if the plugin raised one that DontStoreOnError escalates.
func (r *Runner) Drive() error {
	r.state = Started
	r.cfg.Log.Debug("runner %q started", r.cfg.ID)

	if !r.cfg.Contract.AcceptsCancelToken() {
		r.cfg.Log.Warn("plugin for runner %q does not accept a cancellation token; it cannot be interrupted once started", r.cfg.ID)
	}

	result, err := r.cfg.Contract.Invoke(r.cfg.Args, r.token)
	if err != nil {
		return r.handleTerminalError(err)
	}

	if result == nil {
		r.state = NoResult
		return r.finalize()
	}

	if stream, ok := result.(plugin.Stream); ok {
		r.streamed = true
		return r.driveStream(stream)
	}

	if r.token.IsSet() {
		r.cancelled = true
		r.cfg.Log.Debug("runner %q cancelled before recording scalar result", r.cfg.ID)
		return r.finalize()
	}

	r.state = ScalarResolved
	r.lastValue = result
	r.values = append(r.values, result)
	r.recordAndNotify(0, result)
	return r.finalize()
}

func (r *Runner) driveStream(stream plugin.Stream) error {
	r.state = Streaming
	index := 0

	for {
		if r.token.IsSet() {
			r.cancelled = true
			r.cfg.Log.Debug("runner %q cancelled after %d results", r.cfg.ID, index)
			break
		}

		value, ok, err := stream.Next()
		if err != nil {
			return r.handleTerminalError(err)
		}
		if !ok {
			break
		}

		r.lastValue = value
		r.values = append(r.values, value)
		r.recordAndNotify(index, value)
		index++
	}

	return r.finalize()
}

func (r *Runner) handleTerminalError(err error) error {
	if r.cfg.DontStoreOnError {
		r.cfg.Log.Error("runner %q failed, not queued for finalization: %v", r.cfg.ID, err)
		return errors.Wrapf(err, "runner %q", r.cfg.ID)
	}

	r.cfg.Log.Error("runner %q failed, queuing partial results for finalization: %v", r.cfg.ID, err)
	return r.finalize()
}

func (r *Runner) recordAndNotify(index int, value interface{}) {
	if r.cfg.FilterResult != nil {
		serialized := toFilterableString(value)
		if !r.cfg.FilterResult.MatchString(serialized) {
			return
		}
	}

	if r.cfg.Store != nil {
		r.cfg.Store.Record(index, value)
	}
	if r.cfg.Dispatcher != nil {
		r.cfg.Dispatcher.Send(value)
	}
}

func toFilterableString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func (r *Runner) finalize() error {
	r.state = Finalizing
	if r.cfg.Store != nil && r.cfg.Queue != nil {
		r.cfg.Queue.Enqueue(r.cfg.Store.Path(), r.cfg.ID)
	}
	if r.cancelled {
		r.state = Cancelled
	} else {
		r.state = Done
	}
	return nil
}
