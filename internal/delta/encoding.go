package delta

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/ostreego/ostree/pkg/errors"
)

func writeU32(buf *bytes.Buffer, order binary.ByteOrder, v uint32) {
	var tmp [4]byte
	order.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU64(buf *bytes.Buffer, order binary.ByteOrder, v uint64) {
	var tmp [8]byte
	order.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeBytesField(buf *bytes.Buffer, order binary.ByteOrder, b []byte) {
	writeU32(buf, order, uint32(len(b)))
	buf.Write(b)
}

func writeStringField(buf *bytes.Buffer, order binary.ByteOrder, s string) {
	writeBytesField(buf, order, []byte(s))
}

func readU32(r *bytes.Reader, order binary.ByteOrder) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return order.Uint32(tmp[:]), nil
}

func readU64(r *bytes.Reader, order binary.ByteOrder) (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return order.Uint64(tmp[:]), nil
}

func readBytesField(r *bytes.Reader, order binary.ByteOrder) ([]byte, error) {
	n, err := readU32(r, order)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readStringField(r *bytes.Reader, order binary.ByteOrder) (string, error) {
	b, err := readBytesField(r, order)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeHexInto(dst []byte, s string) (int, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return 0, errors.NewError(errors.ErrCodeInvalidChecksum, "invalid checksum hex").WithCause(err)
	}
	if len(raw) != len(dst) {
		return 0, errors.NewError(errors.ErrCodeInvalidChecksum, "checksum has wrong length")
	}
	copy(dst, raw)
	return len(raw), nil
}

func encodeHex(b []byte) string {
	return hex.EncodeToString(b)
}
