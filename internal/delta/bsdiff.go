package delta

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/ostreego/ostree/pkg/errors"
)

func errShortBlob() error {
	return errors.NewError(errors.ErrCodeDeltaError, "bsdiff blob truncated")
}

// ControlEntry is one (copy-len, extra-len, seek) triple of a bsdiff
// control stream, matching Colin Percival's original three-stream
// format: for each entry, diffLen bytes of the diff stream are added
// onto the current old-file window and emitted, then extraLen bytes
// of the extra stream are emitted literally, then the old-file cursor
// seeks forward by seek (which may be negative).
type ControlEntry struct {
	DiffLen  uint64
	ExtraLen uint64
	Seek     int64
}

const blockSize = 16

// buildBlockIndex hashes every blockSize-byte block of old into a map
// from hash to starting offsets, used to seed candidate match points
// in new without an old-style suffix array. This trades match
// optimality for a straightforward, auditable implementation; no
// third-party bsdiff or suffix-array library exists in the pack to
// reach for instead.
func buildBlockIndex(old []byte) map[uint64][]int {
	index := make(map[uint64][]int)
	if len(old) < blockSize {
		return index
	}
	for i := 0; i+blockSize <= len(old); i++ {
		h := xxhash.Sum64(old[i : i+blockSize])
		index[h] = append(index[h], i)
	}
	return index
}

// extendMatch grows a candidate match at (oldPos, newPos) as far
// forward and backward as the bytes agree.
func extendMatch(old, new []byte, oldPos, newPos int) (start, oldStart, length int) {
	forward := 0
	for oldPos+forward < len(old) && newPos+forward < len(new) && old[oldPos+forward] == new[newPos+forward] {
		forward++
	}
	backward := 0
	for oldPos-backward-1 >= 0 && newPos-backward-1 >= 0 && old[oldPos-backward-1] == new[newPos-backward-1] {
		backward++
	}
	return newPos - backward, oldPos - backward, backward + forward
}

// GenerateBsdiff produces the classic bsdiff three-stream
// representation of the diff from old to new: a control stream of
// (diff-len, extra-len, seek) entries, a diff stream of byte-wise
// differences over matched regions, and an extra stream of literal
// bytes for unmatched regions.
func GenerateBsdiff(old, new []byte) (control []ControlEntry, diffStream, extraStream []byte) {
	index := buildBlockIndex(old)

	// oldCursor mirrors exactly the running cursor ApplyBsdiff maintains:
	// it only moves when a diff entry is consumed or a Seek is applied,
	// never while literal (extra) bytes are emitted. Seek values below
	// are always attached to the entry immediately PRECEDING a diff
	// entry, since ApplyBsdiff applies an entry's Seek only after that
	// same entry's diff bytes are read — a seek meant to position the
	// cursor for an upcoming diff must therefore live one entry early.
	oldCursor := 0
	appendSeek := func(delta int64) {
		if delta == 0 {
			return
		}
		if len(control) == 0 {
			control = append(control, ControlEntry{})
		}
		control[len(control)-1].Seek += delta
	}

	newCursor := 0
	for newCursor < len(new) {
		bestOldStart, bestNewStart, bestLen := -1, -1, 0
		if newCursor+blockSize <= len(new) {
			h := xxhash.Sum64(new[newCursor : newCursor+blockSize])
			for _, oldPos := range index[h] {
				ns, os, l := extendMatch(old, new, oldPos, newCursor)
				if l > bestLen {
					bestOldStart, bestNewStart, bestLen = os, ns, l
				}
			}
		}

		if bestLen < blockSize || bestOldStart < 0 {
			// No usable match at this position; consume one literal
			// byte into the extra stream and advance.
			extraStream = append(extraStream, new[newCursor])
			newCursor++
			if len(control) == 0 || control[len(control)-1].DiffLen != 0 {
				control = append(control, ControlEntry{})
			}
			control[len(control)-1].ExtraLen++
			continue
		}

		// Literal gap before the match, if any, becomes an extra-only
		// entry preceding the diff entry for the match itself.
		if bestNewStart > newCursor {
			gap := new[newCursor:bestNewStart]
			extraStream = append(extraStream, gap...)
			control = append(control, ControlEntry{ExtraLen: uint64(len(gap))})
		}

		appendSeek(int64(bestOldStart) - int64(oldCursor))

		diff := make([]byte, bestLen)
		for i := 0; i < bestLen; i++ {
			diff[i] = new[bestNewStart+i] - old[bestOldStart+i]
		}
		diffStream = append(diffStream, diff...)
		control = append(control, ControlEntry{DiffLen: uint64(bestLen)})

		oldCursor = bestOldStart + bestLen
		newCursor = bestNewStart + bestLen
	}

	return control, diffStream, extraStream
}

// ApplyBsdiff reconstructs new from old plus the three bsdiff streams.
func ApplyBsdiff(old []byte, control []ControlEntry, diffStream, extraStream []byte) []byte {
	var out []byte
	oldCursor := 0
	diffPos, extraPos := 0, 0

	for _, c := range control {
		if c.DiffLen > 0 {
			chunk := make([]byte, c.DiffLen)
			for i := uint64(0); i < c.DiffLen; i++ {
				var oldByte byte
				if oldCursor+int(i) < len(old) {
					oldByte = old[oldCursor+int(i)]
				}
				chunk[i] = diffStream[diffPos+int(i)] + oldByte
			}
			out = append(out, chunk...)
			diffPos += int(c.DiffLen)
			oldCursor += int(c.DiffLen)
		}
		if c.ExtraLen > 0 {
			out = append(out, extraStream[extraPos:extraPos+int(c.ExtraLen)]...)
			extraPos += int(c.ExtraLen)
		}
		oldCursor += int(c.Seek)
	}
	return out
}

// EncodeControl serialises a control stream to bytes, honouring the
// requested byte order.
func EncodeControl(control []ControlEntry, bigEndian bool) []byte {
	order := byteOrder(bigEndian)
	buf := make([]byte, 0, len(control)*24)
	for _, c := range control {
		var tmp [24]byte
		order.PutUint64(tmp[0:8], c.DiffLen)
		order.PutUint64(tmp[8:16], c.ExtraLen)
		order.PutUint64(tmp[16:24], uint64(c.Seek))
		buf = append(buf, tmp[:]...)
	}
	return buf
}

// DecodeControl parses a control stream previously produced by
// EncodeControl.
func DecodeControl(b []byte, bigEndian bool) []ControlEntry {
	order := byteOrder(bigEndian)
	control := make([]ControlEntry, 0, len(b)/24)
	for i := 0; i+24 <= len(b); i += 24 {
		control = append(control, ControlEntry{
			DiffLen:  order.Uint64(b[i : i+8]),
			ExtraLen: order.Uint64(b[i+8 : i+16]),
			Seek:     int64(order.Uint64(b[i+16 : i+24])),
		})
	}
	return control
}

// EncodeBsdiffBlob packs a control/diff/extra triple into the single
// byte range a part's bsdiff opcode addresses via (payload-offset,
// len): a length-prefixed control stream and diff stream, followed by
// the extra stream running to the end of the blob.
func EncodeBsdiffBlob(control []ControlEntry, diffStream, extraStream []byte, bigEndian bool) []byte {
	order := byteOrder(bigEndian)
	controlBytes := EncodeControl(control, bigEndian)

	blob := make([]byte, 0, 8+len(controlBytes)+len(diffStream)+len(extraStream))
	var lenBuf [4]byte
	order.PutUint32(lenBuf[:], uint32(len(controlBytes)))
	blob = append(blob, lenBuf[:]...)
	blob = append(blob, controlBytes...)
	order.PutUint32(lenBuf[:], uint32(len(diffStream)))
	blob = append(blob, lenBuf[:]...)
	blob = append(blob, diffStream...)
	blob = append(blob, extraStream...)
	return blob
}

// DecodeBsdiffBlob reverses EncodeBsdiffBlob.
func DecodeBsdiffBlob(blob []byte, bigEndian bool) (control []ControlEntry, diffStream, extraStream []byte, err error) {
	order := byteOrder(bigEndian)
	if len(blob) < 4 {
		return nil, nil, nil, errShortBlob()
	}
	controlLen := order.Uint32(blob[0:4])
	pos := uint32(4)
	if uint64(pos)+uint64(controlLen) > uint64(len(blob)) {
		return nil, nil, nil, errShortBlob()
	}
	control = DecodeControl(blob[pos:pos+controlLen], bigEndian)
	pos += controlLen

	if uint64(pos)+4 > uint64(len(blob)) {
		return nil, nil, nil, errShortBlob()
	}
	diffLen := order.Uint32(blob[pos : pos+4])
	pos += 4
	if uint64(pos)+uint64(diffLen) > uint64(len(blob)) {
		return nil, nil, nil, errShortBlob()
	}
	diffStream = blob[pos : pos+diffLen]
	pos += diffLen

	extraStream = blob[pos:]
	return control, diffStream, extraStream, nil
}

func byteOrder(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
