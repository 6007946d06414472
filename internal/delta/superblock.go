package delta

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// magic identifies a static-delta superblock on disk so MalformedSuperblock
// can be distinguished from an unrelated file early.
var magic = [8]byte{'O', 'S', 'T', 'R', 'E', 'D', 'L', 'T'}

const superblockVersion = 1

// FallbackEntry names an object that the delta's parts do not
// reconstruct; the pull engine fetches it by its normal object URL
// instead of through delta application.
type FallbackEntry struct {
	Kind     types.ObjectKind
	Checksum string
	Size     int64
}

// PartRef describes one part of the delta, either embedded directly
// ("inline") or expected as a sibling part-<k> file ("external").
type PartRef struct {
	Size       uint64
	Checksum   string
	Inline     bool
	InlineData []byte
}

// Superblock is the top-level metadata of a static delta.
type Superblock struct {
	FromChecksum string
	ToChecksum   string
	Timestamp    time.Time
	BigEndian    bool
	Parts        []PartRef
	Fallback     []FallbackEntry
}

func (sb *Superblock) order() binary.ByteOrder {
	return byteOrder(sb.BigEndian)
}

// EncodeSuperblock serialises sb to its on-disk representation, in
// the byte order sb declares.
func EncodeSuperblock(sb *Superblock) ([]byte, error) {
	order := sb.order()
	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(superblockVersion)
	if sb.BigEndian {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	fromCsum, err := checksumBytes(sb.FromChecksum, true)
	if err != nil {
		return nil, err
	}
	toCsum, err := checksumBytes(sb.ToChecksum, false)
	if err != nil {
		return nil, err
	}
	buf.Write(fromCsum)
	buf.Write(toCsum)

	var tsBuf [8]byte
	order.PutUint64(tsBuf[:], uint64(sb.Timestamp.UTC().Unix()))
	buf.Write(tsBuf[:])

	writeU32(&buf, order, uint32(len(sb.Parts)))
	for _, p := range sb.Parts {
		writeU64(&buf, order, p.Size)
		writeStringField(&buf, order, p.Checksum)
		if p.Inline {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeBytesField(&buf, order, p.InlineData)
	}

	writeU32(&buf, order, uint32(len(sb.Fallback)))
	for _, f := range sb.Fallback {
		writeStringField(&buf, order, string(f.Kind))
		writeStringField(&buf, order, f.Checksum)
		writeU64(&buf, order, uint64(f.Size))
	}

	return buf.Bytes(), nil
}

// checksumBytes parses a hex checksum into 32 raw bytes; an empty
// string is permitted only for FromChecksum, representing a
// from-empty delta generated against no parent commit.
func checksumBytes(hexChecksum string, allowEmpty bool) ([]byte, error) {
	if hexChecksum == "" {
		if allowEmpty {
			return make([]byte, 32), nil
		}
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "to-checksum must not be empty")
	}
	if len(hexChecksum) != 64 {
		return nil, errors.NewError(errors.ErrCodeInvalidChecksum, "checksum must be 64 hex characters").WithDetail("checksum", hexChecksum)
	}
	raw := make([]byte, 32)
	if _, err := decodeHexInto(raw, hexChecksum); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidChecksum, "decoding checksum hex").WithCause(err)
	}
	return raw, nil
}

// DecodeSuperblock parses a superblock previously produced by
// EncodeSuperblock, byteswapping transparently when the declared
// endianness doesn't match -- the caller never needs to special-case
// a foreign-endian delta since every multi-byte field is re-read
// using the flag embedded in the blob itself.
func DecodeSuperblock(b []byte) (*Superblock, error) {
	if len(b) < len(magic)+2 {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "superblock too short")
	}
	if !bytes.Equal(b[:len(magic)], magic[:]) {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "bad superblock magic")
	}
	r := bytes.NewReader(b[len(magic):])

	version, err := r.ReadByte()
	if err != nil || version != superblockVersion {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "unsupported superblock version")
	}
	endianByte, err := r.ReadByte()
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "missing endianness flag")
	}
	if endianByte != 0 && endianByte != 1 {
		return nil, errors.NewError(errors.ErrCodeUnsupportedEndianness, "endianness flag must be 0 or 1").WithDetail("value", endianByte)
	}
	sb := &Superblock{BigEndian: endianByte == 1}
	order := sb.order()

	fromRaw := make([]byte, 32)
	if _, err := io.ReadFull(r, fromRaw); err != nil {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading from-checksum").WithCause(err)
	}
	toRaw := make([]byte, 32)
	if _, err := io.ReadFull(r, toRaw); err != nil {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading to-checksum").WithCause(err)
	}
	if !isZero(fromRaw) {
		sb.FromChecksum = encodeHex(fromRaw)
	}
	sb.ToChecksum = encodeHex(toRaw)

	var tsBuf [8]byte
	if _, err := io.ReadFull(r, tsBuf[:]); err != nil {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading timestamp").WithCause(err)
	}
	sb.Timestamp = time.Unix(int64(order.Uint64(tsBuf[:])), 0).UTC()

	partCount, err := readU32(r, order)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading part count").WithCause(err)
	}
	for i := uint32(0); i < partCount; i++ {
		size, err := readU64(r, order)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading part size").WithCause(err)
		}
		checksum, err := readStringField(r, order)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading part checksum").WithCause(err)
		}
		inlineByte, err := r.ReadByte()
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading part inline flag").WithCause(err)
		}
		inlineData, err := readBytesField(r, order)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading part inline data").WithCause(err)
		}
		sb.Parts = append(sb.Parts, PartRef{
			Size: size, Checksum: checksum, Inline: inlineByte == 1, InlineData: inlineData,
		})
	}

	fallbackCount, err := readU32(r, order)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading fallback count").WithCause(err)
	}
	for i := uint32(0); i < fallbackCount; i++ {
		kind, err := readStringField(r, order)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading fallback kind").WithCause(err)
		}
		checksum, err := readStringField(r, order)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading fallback checksum").WithCause(err)
		}
		size, err := readU64(r, order)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeMalformedSuperblock, "reading fallback size").WithCause(err)
		}
		sb.Fallback = append(sb.Fallback, FallbackEntry{Kind: types.ObjectKind(kind), Checksum: checksum, Size: int64(size)})
	}

	return sb, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
