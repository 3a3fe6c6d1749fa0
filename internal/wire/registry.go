// Package wire encodes transactions for transport and hashing.
//
// Every state and command payload travels as a [descriptor, body] pair. The
// descriptor is derived from a registered type name, so a receiving node can
// reject a payload whose shape it does not recognise before any contract code
// sees it.
package wire

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"Covenant/internal/ledger"
)

// descriptorPrefix namespaces descriptors produced by this package.
const descriptorPrefix = "covenant:"

// payloadKind separates state types from command types in the registry.
type payloadKind uint8

const (
	kindState payloadKind = iota + 1
	kindCommand
)

// registered describes one payload type.
type registered struct {
	name string
	typ  reflect.Type
	kind payloadKind
}

// Registry maps descriptors to payload types. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byDesc map[string]registered
	byType map[reflect.Type]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byDesc: make(map[string]registered),
		byType: make(map[reflect.Type]string),
	}
}

// TypeName derives the full name of a type, "base<p1,p2>" for generic types.
func TypeName(base string, params ...string) string {
	if len(params) == 0 {
		return base
	}

	return base + "<" + strings.Join(params, ",") + ">"
}

// Descriptor derives the stable descriptor for a full type name.
func Descriptor(name string) string {
	h := ledger.HashOf([]byte(name))
	return descriptorPrefix + hex.EncodeToString(h[:12])
}

// RegisterState registers T as a state payload under base<params...>.
func RegisterState[T ledger.ContractState](r *Registry, base string, params ...string) (string, error) {
	return r.register(reflect.TypeFor[T](), kindState, TypeName(base, params...))
}

// RegisterCommand registers T as a command payload under base<params...>.
func RegisterCommand[T any](r *Registry, base string, params ...string) (string, error) {
	return r.register(reflect.TypeFor[T](), kindCommand, TypeName(base, params...))
}

func (r *Registry) register(typ reflect.Type, kind payloadKind, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty type name")
	}

	if typ.Kind() == reflect.Interface || typ.Kind() == reflect.Pointer {
		return "", fmt.Errorf("register %s: payload must be a concrete value type, got %s", name, typ)
	}

	desc := Descriptor(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byDesc[desc]; ok {
		if existing.typ == typ && existing.kind == kind {
			return desc, nil
		}

		return "", fmt.Errorf("register %s: descriptor already bound to %s", name, existing.typ)
	}

	if prev, ok := r.byType[typ]; ok {
		return "", fmt.Errorf("register %s: type %s already registered as %s", name, typ, r.byDesc[prev].name)
	}

	r.byDesc[desc] = registered{name: name, typ: typ, kind: kind}
	r.byType[typ] = desc

	return desc, nil
}

// Describe returns the descriptor of v's dynamic type.
func (r *Registry) Describe(v any) (string, error) {
	switch o := v.(type) {
	case OpaqueState:
		return o.Descriptor, nil
	case OpaqueCommand:
		return o.Descriptor, nil
	}

	r.mu.RLock()
	desc, ok := r.byType[reflect.TypeOf(v)]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("type %T is not registered", v)
	}

	return desc, nil
}

// Name returns the full type name behind a descriptor.
func (r *Registry) Name(desc string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byDesc[desc]
	return e.name, ok
}

func (r *Registry) lookup(desc string) (registered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byDesc[desc]
	return e, ok
}
