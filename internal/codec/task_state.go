// Package codec implements the wire encoding for the task payloads
// published at coordination-store keys.
//
// Encoding format:
//
//	[Tag (1 byte)] + [OwnerLen (2 bytes, big-endian)] + [Owner bytes]
//
// The tag byte makes the encoding self-describing: a reader can
// recover the TaskState variant without any side channel, which is
// what lets the coordinator's getData handler dispatch on variant
// immediately after a successful read.
package codec

import (
	"encoding/binary"
	"fmt"
)

// Variant identifies which TaskState case a payload encodes.
type Variant uint8

const (
	VariantUnassigned Variant = 1
	VariantOwned      Variant = 2
	VariantResigned   Variant = 3
	VariantDone       Variant = 4
	VariantErr        Variant = 5
)

func (v Variant) String() string {
	switch v {
	case VariantUnassigned:
		return "Unassigned"
	case VariantOwned:
		return "Owned"
	case VariantResigned:
		return "Resigned"
	case VariantDone:
		return "Done"
	case VariantErr:
		return "Err"
	default:
		return "Unknown"
	}
}

// TaskState is the published payload at a task key: exactly one
// variant tagged with the worker that owns it (or, for Unassigned,
// the coordinator identity that last published it).
type TaskState struct {
	Variant Variant
	Owner   string
}

const headerSize = 1 + 2

// Encode serializes a TaskState to its wire form.
func Encode(s TaskState) []byte {
	owner := []byte(s.Owner)
	buf := make([]byte, headerSize+len(owner))
	buf[0] = byte(s.Variant)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(owner)))
	copy(buf[3:], owner)
	return buf
}

// ErrMalformed is returned by Decode when the payload cannot be parsed.
// Per the coordinator's deserialization-failure policy, callers must
// log and drop the event rather than mutate task state on this error.
var ErrMalformed = fmt.Errorf("codec: malformed task state payload")

// Decode parses a TaskState from its wire form.
func Decode(data []byte) (TaskState, error) {
	if len(data) < headerSize {
		return TaskState{}, ErrMalformed
	}
	tag := Variant(data[0])
	switch tag {
	case VariantUnassigned, VariantOwned, VariantResigned, VariantDone, VariantErr:
	default:
		return TaskState{}, ErrMalformed
	}
	ownerLen := int(binary.BigEndian.Uint16(data[1:3]))
	if len(data) != headerSize+ownerLen {
		return TaskState{}, ErrMalformed
	}
	return TaskState{Variant: tag, Owner: string(data[3:])}, nil
}

// Unassigned builds an Unassigned{owner} payload.
func Unassigned(owner string) TaskState { return TaskState{Variant: VariantUnassigned, Owner: owner} }

// Owned builds an Owned{owner} payload.
func Owned(owner string) TaskState { return TaskState{Variant: VariantOwned, Owner: owner} }

// Resigned builds a Resigned{owner} payload.
func Resigned(owner string) TaskState { return TaskState{Variant: VariantResigned, Owner: owner} }

// Done builds a Done{owner} payload.
func Done(owner string) TaskState { return TaskState{Variant: VariantDone, Owner: owner} }

// Err builds an Err{owner} payload.
func Err(owner string) TaskState { return TaskState{Variant: VariantErr, Owner: owner} }
