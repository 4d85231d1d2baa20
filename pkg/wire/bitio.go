package wire

import (
	"encoding/binary"
	"fmt"
)

// Writer accumulates a little-endian byte stream, the on-wire byte order
// spec.md mandates throughout. It generalizes the teacher's BitStream
// writer (source/protocol/raknet.go), fixed to little-endian only and
// extended with varint support.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with cap pre-reserved.
func NewWriter(capHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capHint)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) PutByte(b byte) { w.buf = append(w.buf, b) }

func (w *Writer) PutBytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) PutUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) PutUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) PutUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) PutVarint(v uint64) { w.buf = AppendVarint(w.buf, v) }

// PutOptionalUint16 writes a presence byte followed by the value if present.
func (w *Writer) PutOptionalUint16(v *uint16) {
	if v == nil {
		w.PutByte(0)
		return
	}
	w.PutByte(1)
	w.PutUint16(*v)
}

// Reader consumes a little-endian byte stream, generalizing the teacher's
// BitStream reader to little-endian and adding bounds-checked varint reads.
type Reader struct {
	buf    []byte
	offset int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Remaining() int { return len(r.buf) - r.offset }

func (r *Reader) GetByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("wire: reader: buffer overflow reading byte")
	}
	b := r.buf[r.offset]
	r.offset++
	return b, nil
}

func (r *Reader) GetBytes(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("wire: reader: buffer overflow reading %d bytes", n)
	}
	b := r.buf[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *Reader) GetUint16() (uint16, error) {
	b, err := r.GetBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) GetUint32() (uint32, error) {
	b, err := r.GetBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) GetUint64() (uint64, error) {
	b, err := r.GetBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) GetVarint() (uint64, error) {
	v, n, err := ReadVarint(r.buf[r.offset:])
	if err != nil {
		return 0, err
	}
	r.offset += n
	return v, nil
}

func (r *Reader) GetOptionalUint16() (*uint16, error) {
	present, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := r.GetUint16()
	if err != nil {
		return nil, err
	}
	return &v, nil
}
