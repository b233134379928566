package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Class: dynamic class of a heap slot
// ---------------------------------------------------------------------------

// Class is the dynamic class stored in every heap slot. Behavior lives on
// the native side; a Class only carries identity, ancestry and the type
// tag its instances are allocated with (MRB_SET_INSTANCE_TT).
type Class struct {
	Name       string
	Superclass *Class
	InstanceTT TType
}

// NewClass creates a class whose instances inherit the superclass's
// instance type tag. A root class defaults to TTObject.
func NewClass(name string, superclass *Class) *Class {
	tt := TTObject
	if superclass != nil {
		tt = superclass.InstanceTT
	}
	return &Class{Name: name, Superclass: superclass, InstanceTT: tt}
}

// IsSubclassOf reports whether other is c or one of its ancestors.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.Superclass {
		if k == other {
			return true
		}
	}
	return false
}

func (c *Class) String() string { return c.Name }

// ClassTable holds the interpreter's classes by name.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

func NewClassTable() *ClassTable {
	return &ClassTable{classes: make(map[string]*Class)}
}

// Define registers c, or returns the class already registered under its
// name. Reopening a name with a different superclass is a TypeError.
func (ct *ClassTable) Define(c *Class) (*Class, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if old, ok := ct.classes[c.Name]; ok {
		if old.Superclass != c.Superclass {
			return nil, &TypeError{Msg: fmt.Sprintf("superclass mismatch for class %s", c.Name)}
		}
		return old, nil
	}
	ct.classes[c.Name] = c
	return c, nil
}

// Lookup returns the class named name, or nil.
func (ct *ClassTable) Lookup(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.classes[name]
}
