package vm

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// ---------------------------------------------------------------------------
// DataType: native types wrapped in RData slots (mrb_data_type)
// ---------------------------------------------------------------------------

// DataType describes a native type stored in RData slots. Free releases
// the native value when its slot is collected; Mark reports any Values the
// native value holds so they stay reachable.
type DataType struct {
	Name  string
	Class *Class
	Free  func(mrb *Interpreter, ptr any)
	Mark  func(mrb *Interpreter, ptr any, mark func(Value))
}

// DataTypeRegistry maps type names to their descriptors. Lookups may come
// from any goroutine (the telemetry and snapshot paths read it).
type DataTypeRegistry struct {
	types *xsync.MapOf[string, *DataType]
}

// NewDataTypeRegistry creates an empty registry.
func NewDataTypeRegistry() *DataTypeRegistry {
	return &DataTypeRegistry{types: xsync.NewMapOf[string, *DataType]()}
}

// Register adds dt. Registering the same descriptor twice is a no-op;
// registering a different descriptor under a taken name is an error.
func (r *DataTypeRegistry) Register(dt *DataType) (*DataType, error) {
	actual, loaded := r.types.LoadOrStore(dt.Name, dt)
	if loaded && actual != dt {
		return nil, fmt.Errorf("vm: data type %q already registered", dt.Name)
	}
	return actual, nil
}

// Lookup returns the descriptor registered under name.
func (r *DataTypeRegistry) Lookup(name string) (*DataType, bool) {
	return r.types.Load(name)
}

// Len returns the number of registered types.
func (r *DataTypeRegistry) Len() int {
	return r.types.Size()
}

// Names returns the registered type names in no particular order.
func (r *DataTypeRegistry) Names() []string {
	names := make([]string, 0, r.types.Size())
	r.types.Range(func(name string, _ *DataType) bool {
		names = append(names, name)
		return true
	})
	return names
}
