package vm

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// SymbolTable maps names to the dense IDs carried by symbol immediates
// (mrb_sym). Entries are never collected.
type SymbolTable struct {
	ids *xsync.MapOf[string, uint32]

	mu    sync.RWMutex
	names []string
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{ids: xsync.NewMapOf[string, uint32]()}
}

// Intern returns name's ID, assigning the next one on first use.
func (st *SymbolTable) Intern(name string) uint32 {
	if id, ok := st.ids.Load(name); ok {
		return id
	}
	id, _ := st.ids.LoadOrCompute(name, func() uint32 {
		st.mu.Lock()
		defer st.mu.Unlock()
		st.names = append(st.names, name)
		return uint32(len(st.names) - 1)
	})
	return id
}

// Name returns the name for id, or "".
func (st *SymbolTable) Name(id uint32) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if int(id) >= len(st.names) {
		return ""
	}
	return st.names[id]
}

func (st *SymbolTable) Len() int { return st.ids.Size() }

// SymbolValue interns name and returns it as an immediate.
func (st *SymbolTable) SymbolValue(name string) Value {
	return FromSymbolID(st.Intern(name))
}
