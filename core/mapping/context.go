package mapping

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Context is a registry of entity descriptors.
// Descriptors are derived once per struct type and cached.
type Context struct {
	mu          sync.RWMutex
	descriptors map[reflect.Type]*EntityDescriptor
	kinds       map[reflect.Type]string
	scalars     map[reflect.Type]struct{}
}

// ContextOption configures a Context
type ContextOption func(*Context)

// WithScalarTypes marks types that are stored as single values even though
// they are structs, arrays or slices. Use it for types with a custom converter.
func WithScalarTypes(types ...reflect.Type) ContextOption {
	return func(c *Context) {
		for _, t := range types {
			c.scalars[t] = struct{}{}
		}
	}
}

// NewContext creates a new mapping context
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		descriptors: make(map[reflect.Type]*EntityDescriptor),
		kinds:       make(map[reflect.Type]string),
		scalars: map[reflect.Type]struct{}{
			reflect.TypeOf(time.Time{}):       {},
			reflect.TypeOf(uuid.UUID{}):       {},
			reflect.TypeOf(pgvector.Vector{}): {},
			reflect.TypeOf([]byte{}):          {},
			reflect.TypeOf(json.Number("")):   {},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone returns a copy of the context sharing no state with the original
func (c *Context) Clone() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := NewContext()
	maps.Copy(clone.descriptors, c.descriptors)
	maps.Copy(clone.kinds, c.kinds)
	maps.Copy(clone.scalars, c.scalars)
	return clone
}

// Register sets the kind name of a struct type.
// Unregistered types use their type name as kind.
func (c *Context) Register(prototype any, kind string) error {
	t, err := structType(reflect.TypeOf(prototype))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for other, k := range c.kinds {
		if k == kind && other != t {
			return fmt.Errorf("kind %q is already registered for %s", kind, other)
		}
	}
	c.kinds[t] = kind
	// The cached descriptor carries the old kind
	delete(c.descriptors, t)

	return nil
}

// MustRegister is like Register but panics on error
func (c *Context) MustRegister(prototype any, kind string) {
	if err := c.Register(prototype, kind); err != nil {
		panic(err)
	}
}

// IsScalar reports whether values of t are stored as a single value
func (c *Context) IsScalar(t reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.scalars[t]
	return ok
}

// IsEntityType reports whether values of t are stored as nested entities
func (c *Context) IsEntityType(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && !c.IsScalar(t)
}

// DescriptorFor returns the descriptor of the struct type of v
func (c *Context) DescriptorFor(v any) (*EntityDescriptor, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot describe nil value")
	}
	return c.DescriptorForType(reflect.TypeOf(v))
}

// DescriptorForType returns the descriptor of t, building it on first use.
// Pointer types are described by their element type.
func (c *Context) DescriptorForType(t reflect.Type) (*EntityDescriptor, error) {
	t, err := structType(t)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	descriptor, ok := c.descriptors[t]
	kind, hasKind := c.kinds[t]
	c.mu.RUnlock()
	if ok {
		return descriptor, nil
	}

	if !hasKind {
		kind = t.Name()
	}
	descriptor, err = c.describe(t, kind)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", t, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.descriptors[t]; ok {
		return existing, nil
	}
	c.descriptors[t] = descriptor

	return descriptor, nil
}

func structType(t reflect.Type) (reflect.Type, error) {
	if t == nil {
		return nil, fmt.Errorf("expected struct, got nil")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct, got %s", t.Kind())
	}
	return t, nil
}
