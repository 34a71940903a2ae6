// Package plugin defines the contract a Trident plugin must satisfy and
// the reflection-based introspection the runner uses to drive any value
// implementing it, without requiring plugins to implement a shared
// interface beyond exposing a method named Run.
package plugin

import (
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
)

// StateGetter is implemented by a plugin instance that can report
// internal state to be persisted in a checkpoint.
type StateGetter interface {
	GetState() (interface{}, error)
}

// StateSetter is implemented by a plugin instance that can restore
// internal state loaded from a checkpoint.
type StateSetter interface {
	SetState(interface{}) error
}

// Contract wraps a resolved plugin instance with the capability set
// discovered about it: whether its Run method accepts a CancelToken, and
// the concrete type it expects its arguments unmarshaled into.
type Contract struct {
	instance     interface{}
	run          reflect.Value
	argType      reflect.Type
	acceptsToken bool
}

// Inspect resolves the plugin contract for instance by locating its Run
// method and inspecting its signature. instance must expose:
//
//	Run(args T) (interface{}, error)
//	Run(args T, cancel *plugin.CancelToken) (interface{}, error)
//
// where T is any type encoding/json can unmarshal into.
func Inspect(instance interface{}) (*Contract, error) {
	v := reflect.ValueOf(instance)
	method := v.MethodByName("Run")
	if !method.IsValid() {
		return nil, errors.Errorf("plugin %T does not expose a Run method", instance)
	}

	t := method.Type()
	if t.NumOut() != 2 {
		return nil, errors.Errorf("plugin %T Run must return (result, error)", instance)
	}
	if !t.Out(1).Implements(reflect.TypeOf((*error)(nil)).Elem()) {
		return nil, errors.Errorf("plugin %T Run's second return value must be error", instance)
	}

	switch t.NumIn() {
	case 1:
		return &Contract{instance: instance, run: method, argType: t.In(0), acceptsToken: false}, nil
	case 2:
		if t.In(1) != reflect.TypeOf(&CancelToken{}) {
			return nil, errors.Errorf("plugin %T Run's second parameter must be *plugin.CancelToken", instance)
		}
		return &Contract{instance: instance, run: method, argType: t.In(0), acceptsToken: true}, nil
	default:
		return nil, errors.Errorf("plugin %T Run must take 1 or 2 parameters", instance)
	}
}

// AcceptsCancelToken reports whether the plugin's Run method can be
// interrupted cooperatively via a CancelToken.
func (c *Contract) AcceptsCancelToken() bool {
	return c.acceptsToken
}

// Instance returns the underlying plugin value, for optional capability
// type-assertions (StateGetter/StateSetter).
func (c *Contract) Instance() interface{} {
	return c.instance
}

// Invoke filters args down to the fields the plugin's Run method
// declares (by round-tripping through JSON into a fresh value of the
// declared argument type, letting encoding/json silently drop unknown
// keys) and calls Run, passing token only if the plugin accepts one.
func (c *Contract) Invoke(args map[string]interface{}, token *CancelToken) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("plugin panicked: %v", r)
		}
	}()

	argVal, err := c.filterArgs(args)
	if err != nil {
		return nil, errors.Wrap(err, "filtering plugin arguments")
	}

	in := []reflect.Value{argVal}
	if c.acceptsToken {
		in = append(in, reflect.ValueOf(token))
	}

	out := c.run.Call(in)
	if errVal := out[1].Interface(); errVal != nil {
		return nil, errVal.(error)
	}
	return out[0].Interface(), nil
}

func (c *Contract) filterArgs(args map[string]interface{}) (reflect.Value, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return reflect.Value{}, err
	}

	isPtr := c.argType.Kind() == reflect.Ptr
	target := c.argType
	if isPtr {
		target = c.argType.Elem()
	}

	dest := reflect.New(target)
	if err := json.Unmarshal(raw, dest.Interface()); err != nil {
		return reflect.Value{}, err
	}

	if isPtr {
		return dest, nil
	}
	return dest.Elem(), nil
}
