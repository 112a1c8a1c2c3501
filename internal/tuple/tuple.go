// Package tuple provides the minimal byte-tuple representation the log
// manager and recovery engine need to serialize INSERT/UPDATE/DELETE
// payloads. Schema-aware tuple construction (column types, inlined vs.
// varchar layout) belongs to the table-heap/catalog external collaborator
// named in spec.md §1 and is out of scope here.
package tuple

import (
	"encoding/binary"

	"github.com/ryogrid/sharkfin/internal/types"
)

// Tuple is a self-describing byte blob plus the RID it is (or will be)
// stored at. Size-prefixed serialization lets the log manager and recovery
// splice it in and out of a log record without knowing its contents.
type Tuple struct {
	rid  types.RID
	data []byte
}

// New wraps data as a tuple, without yet assigning it an RID.
func New(data []byte) *Tuple {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Tuple{data: cp}
}

func (t *Tuple) RID() types.RID     { return t.rid }
func (t *Tuple) SetRID(r types.RID) { t.rid = r }
func (t *Tuple) Data() []byte       { return t.data }

// Size is the serialized footprint: a 4-byte length prefix plus the
// payload.
func (t *Tuple) Size() uint32 { return 4 + uint32(len(t.data)) }

// SerializeTo writes the 4-byte length prefix followed by the payload.
func (t *Tuple) SerializeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf, uint32(len(t.data)))
	copy(buf[4:], t.data)
}

// DeserializeFrom reads a tuple previously written by SerializeTo.
func (t *Tuple) DeserializeFrom(buf []byte) {
	n := binary.LittleEndian.Uint32(buf)
	t.data = make([]byte, n)
	copy(t.data, buf[4:4+n])
}
