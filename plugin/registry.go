package plugin

import (
	"sync"

	"github.com/pkg/errors"
)

// Factory constructs a fresh plugin instance. Plugin packages register
// one under a symbolic reference from an init() function, the same way
// OPA's runtime.RegisterPlugin lets an external plugin .so register
// itself by name before the manager resolves descriptors against it.
type Factory func() (interface{}, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register associates ref with factory. Re-registering the same ref
// overwrites the previous factory, matching the idempotent semantics
// RegisterPluginsFromDir relies on.
func Register(ref string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[ref] = factory
}

// Resolve looks up ref and constructs its Contract. An unregistered ref
// is a daemon-fatal configuration error.
func Resolve(ref string) (*Contract, error) {
	registryMu.RLock()
	factory, ok := registry[ref]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("no plugin registered for reference %q", ref)
	}

	instance, err := factory()
	if err != nil {
		return nil, errors.Wrapf(err, "constructing plugin %q", ref)
	}

	return Inspect(instance)
}

// Registered reports whether ref has a registered factory, without
// constructing a plugin instance.
func Registered(ref string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[ref]
	return ok
}

// MethodFunc is the signature a registered step-method adapts. A
// method-step has no class to instantiate, just a callable resolved at
// load time, so it is wrapped into the same one-method shape a plugin
// satisfies and driven by the same runner.
type MethodFunc func(args map[string]interface{}) (interface{}, error)

type methodAdapter struct {
	fn MethodFunc
}

func (m methodAdapter) Run(args map[string]interface{}) (interface{}, error) {
	return m.fn(args)
}

// RegisterMethod registers fn under ref so a step descriptor of type
// "method" can resolve it through the same Resolve path a plugin
// reference uses.
func RegisterMethod(ref string, fn MethodFunc) {
	Register(ref, func() (interface{}, error) {
		return methodAdapter{fn: fn}, nil
	})
}
