package mapping

import (
	"fmt"
	"maps"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// TypeRegistry maps type names used in schema files to Go types
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewTypeRegistry creates a registry with the built-in property types
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: map[string]reflect.Type{
			"any":       reflect.TypeOf((*interface{})(nil)).Elem(),
			"string":    reflect.TypeOf(""),
			"bool":      reflect.TypeOf(false),
			"int":       reflect.TypeOf(int(0)),
			"int32":     reflect.TypeOf(int32(0)),
			"int64":     reflect.TypeOf(int64(0)),
			"float32":   reflect.TypeOf(float32(0)),
			"float64":   reflect.TypeOf(float64(0)),
			"bytes":     reflect.TypeOf([]byte{}),
			"timestamp": reflect.TypeOf(time.Time{}),
			"uuid":      reflect.TypeOf(uuid.UUID{}),
			"vector":    reflect.TypeOf(pgvector.Vector{}),
		},
	}
}

// Register adds a named type, usually a struct read as an embedded entity
func (r *TypeRegistry) Register(name string, prototype any) error {
	if name == "" || name == mapTypeName {
		return fmt.Errorf("invalid type name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[name]; exists {
		return fmt.Errorf("type %q is already registered", name)
	}
	t := reflect.TypeOf(prototype)
	if t == nil {
		return fmt.Errorf("type %q: prototype must not be nil", name)
	}
	r.types[name] = t

	return nil
}

// MustRegister is like Register but panics on error
func (r *TypeRegistry) MustRegister(name string, prototype any) {
	if err := r.Register(name, prototype); err != nil {
		panic(err)
	}
}

// Lookup returns the Go type registered under name
func (r *TypeRegistry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered type names in sorted order
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	types := maps.Clone(r.types)
	r.mu.RUnlock()

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
