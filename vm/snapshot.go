package vm

import (
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Snapshot: CBOR dump of the heap for offline inspection
// ---------------------------------------------------------------------------

// cborEncMode uses canonical mode so equal heaps encode identically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// SlotRecord describes one live slot.
type SlotRecord struct {
	Handle   uint64 `cbor:"1,keyasint"`
	Type     string `cbor:"2,keyasint"`
	Class    string `cbor:"3,keyasint"`
	Flags    uint32 `cbor:"4,keyasint,omitempty"`
	Bytes    []byte `cbor:"5,keyasint,omitempty"`
	Capacity int64  `cbor:"6,keyasint,omitempty"`
	Message  string `cbor:"7,keyasint,omitempty"`
	DataType string `cbor:"8,keyasint,omitempty"`
}

// Snapshot is a point-in-time copy of the heap.
type Snapshot struct {
	Taken     time.Time         `cbor:"1,keyasint"`
	Slots     []SlotRecord      `cbor:"2,keyasint"`
	Globals   map[string]uint64 `cbor:"3,keyasint,omitempty"`
	GCRuns    uint64            `cbor:"4,keyasint"`
	FreedSum  uint64            `cbor:"5,keyasint"`
	Allocated uint64            `cbor:"6,keyasint"`
}

// Snapshot copies every live slot. String contents are copied, so the
// snapshot stays valid after the heap changes.
func (mrb *Interpreter) Snapshot() *Snapshot {
	s := &Snapshot{
		Taken:     time.Now().UTC(),
		GCRuns:    mrb.gc.Runs(),
		FreedSum:  mrb.gc.FreedTotal(),
		Allocated: mrb.heap.Stats().Allocated,
	}
	mrb.heap.Each(func(obj RObject) {
		b := obj.Basic()
		rec := SlotRecord{
			Handle: uint64(b.handle),
			Type:   b.TT.String(),
			Flags:  b.Flags,
		}
		if b.C != nil {
			rec.Class = b.C.Name
		}
		switch o := obj.(type) {
		case *RString:
			rec.Bytes = append([]byte(nil), o.Bytes()...)
			rec.Capacity = o.Capa
		case *RException:
			rec.Message = o.Message
		case *RData:
			if o.Type != nil {
				rec.DataType = o.Type.Name
			}
		}
		s.Slots = append(s.Slots, rec)
	})
	if len(mrb.Globals) > 0 {
		s.Globals = make(map[string]uint64, len(mrb.Globals))
		for name, v := range mrb.Globals {
			s.Globals[name] = uint64(v)
		}
	}
	return s
}

// Find returns the record for handle h.
func (s *Snapshot) Find(h Handle) (SlotRecord, bool) {
	i := sort.Search(len(s.Slots), func(i int) bool { return s.Slots[i].Handle >= uint64(h) })
	if i < len(s.Slots) && s.Slots[i].Handle == uint64(h) {
		return s.Slots[i], true
	}
	return SlotRecord{}, false
}

// MarshalSnapshot serializes a Snapshot to CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
