package delta

import (
	"bytes"

	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// EncodePart serialises a part's instruction stream and payload
// buffer to bytes, in the given byte order.
func EncodePart(part *Part, bigEndian bool) []byte {
	order := byteOrder(bigEndian)
	var buf bytes.Buffer

	writeU32(&buf, order, uint32(len(part.Instructions)))
	for _, inst := range part.Instructions {
		buf.WriteByte(byte(inst.Op))
		switch inst.Op {
		case OpOpen:
			writeStringField(&buf, order, inst.SourceChecksum)
		case OpCopy:
			writeU64(&buf, order, uint64(inst.SrcOffset))
			writeU64(&buf, order, uint64(inst.Len))
		case OpWrite:
			writeU64(&buf, order, uint64(inst.PayloadOffset))
			writeU64(&buf, order, uint64(inst.Len))
		case OpSetMode:
			writeU32(&buf, order, inst.Mode)
			writeU32(&buf, order, inst.UID)
			writeU32(&buf, order, inst.GID)
		case OpClose:
			writeStringField(&buf, order, inst.ObjectChecksum)
			writeStringField(&buf, order, string(inst.ObjectKind))
			if inst.IsSymlink {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case OpBsdiff:
			writeU64(&buf, order, uint64(inst.PayloadOffset))
			writeU64(&buf, order, uint64(inst.Len))
			writeU64(&buf, order, uint64(inst.BsdiffSrcOffset))
			writeU64(&buf, order, uint64(inst.BsdiffSrcLen))
		}
	}

	writeBytesField(&buf, order, part.Payload)
	return buf.Bytes()
}

// DecodePart parses a part previously produced by EncodePart.
func DecodePart(b []byte, bigEndian bool) (*Part, error) {
	order := byteOrder(bigEndian)
	r := bytes.NewReader(b)

	count, err := readU32(r, order)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeDeltaError, "reading part instruction count").WithCause(err)
	}
	part := &Part{Instructions: make([]Instruction, 0, count)}
	for i := uint32(0); i < count; i++ {
		opByte, err := r.ReadByte()
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeDeltaError, "reading part opcode").WithCause(err)
		}
		inst := Instruction{Op: Op(opByte)}
		switch inst.Op {
		case OpOpen:
			inst.SourceChecksum, err = readStringField(r, order)
		case OpCopy:
			var srcOffset, length uint64
			srcOffset, err = readU64(r, order)
			if err == nil {
				length, err = readU64(r, order)
			}
			inst.SrcOffset, inst.Len = int64(srcOffset), int64(length)
		case OpWrite:
			var payloadOffset, length uint64
			payloadOffset, err = readU64(r, order)
			if err == nil {
				length, err = readU64(r, order)
			}
			inst.PayloadOffset, inst.Len = int64(payloadOffset), int64(length)
		case OpSetMode:
			inst.Mode, err = readU32(r, order)
			if err == nil {
				inst.UID, err = readU32(r, order)
			}
			if err == nil {
				inst.GID, err = readU32(r, order)
			}
		case OpClose:
			inst.ObjectChecksum, err = readStringField(r, order)
			if err == nil {
				var kind string
				kind, err = readStringField(r, order)
				inst.ObjectKind = types.ObjectKind(kind)
			}
			if err == nil {
				var symlinkByte byte
				symlinkByte, err = r.ReadByte()
				inst.IsSymlink = symlinkByte == 1
			}
		case OpBsdiff:
			var payloadOffset, length, srcOffset, srcLen uint64
			payloadOffset, err = readU64(r, order)
			if err == nil {
				length, err = readU64(r, order)
			}
			if err == nil {
				srcOffset, err = readU64(r, order)
			}
			if err == nil {
				srcLen, err = readU64(r, order)
			}
			inst.PayloadOffset, inst.Len = int64(payloadOffset), int64(length)
			inst.BsdiffSrcOffset, inst.BsdiffSrcLen = int64(srcOffset), int64(srcLen)
		default:
			return nil, errors.NewError(errors.ErrCodeDeltaError, "unknown part opcode").WithDetail("op", opByte)
		}
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeDeltaError, "reading part instruction operands").WithCause(err)
		}
		part.Instructions = append(part.Instructions, inst)
	}

	payload, err := readBytesField(r, order)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeDeltaError, "reading part payload").WithCause(err)
	}
	part.Payload = payload
	return part, nil
}
