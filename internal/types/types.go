// Package types defines the small identifier types shared across every
// layer of the storage engine: page, log and transaction identifiers, plus
// the record identifier used by the B+tree's leaves.
package types

import (
	"bytes"
	"encoding/binary"
)

// PageID identifies a page within the database file. -1 is invalid. Page 0
// is reserved for the header page.
type PageID int32

// InvalidPageID is the sentinel for "no page".
const InvalidPageID PageID = -1

// LSN is a log sequence number: a strictly increasing identifier assigned
// to a log record when it is appended.
type LSN int32

// InvalidLSN is the sentinel for "no LSN assigned yet".
const InvalidLSN LSN = -1

// SizeOfLSN is the serialized width of an LSN, in bytes.
const SizeOfLSN = 4

// Serialize encodes the LSN in little-endian byte order.
func (lsn LSN) Serialize() []byte {
	buf := make([]byte, SizeOfLSN)
	binary.LittleEndian.PutUint32(buf, uint32(lsn))
	return buf
}

// NewLSNFromBytes decodes an LSN previously written by Serialize.
func NewLSNFromBytes(data []byte) LSN {
	return LSN(binary.LittleEndian.Uint32(data))
}

// TxnID is a monotonically increasing transaction identifier.
type TxnID int32

// InvalidTxnID is the sentinel for "no transaction".
const InvalidTxnID TxnID = -1

// RID (record identifier) names a tuple's slot within a page: the B+tree
// stores RIDs as its leaf values, and the lock manager locks at RID
// granularity.
type RID struct {
	PageID PageID
	Slot   uint32
}

// NewRID builds a record identifier.
func NewRID(pageID PageID, slot uint32) RID {
	return RID{PageID: pageID, Slot: slot}
}

// Serialize encodes the RID as 8 bytes, little-endian.
func (r RID) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, r.PageID)
	binary.Write(buf, binary.LittleEndian, r.Slot)
	return buf.Bytes()
}

// NewRIDFromBytes decodes an RID previously written by Serialize.
func NewRIDFromBytes(data []byte) RID {
	var r RID
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &r.PageID)
	binary.Read(bytes.NewReader(data[4:]), binary.LittleEndian, &r.Slot)
	return r
}

// SizeOfRID is the serialized width of an RID, in bytes.
const SizeOfRID = 8
