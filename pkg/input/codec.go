package input

import (
	"fmt"

	"github.com/tickforge/netsync/pkg/tick"
	"github.com/tickforge/netsync/pkg/wire"
)

// Encode serializes a Message to its wire form: end_tick, the target
// count, then per target the target id, the sequence length, and each
// snapshot as a varint length followed by its bytes. There is no presence
// bitmap: an empty entry marks an absent snapshot (same-as-precedent slots
// are already resolved to concrete bytes by the caller via
// Buffer.Snapshot + serialize).
func Encode(m Message) []byte {
	w := wire.NewWriter(64)
	w.PutUint16(uint16(m.EndTick))
	w.PutVarint(uint64(len(m.Inputs)))
	for _, ti := range m.Inputs {
		w.PutUint64(ti.Target)
		w.PutVarint(uint64(len(ti.Sequence)))
		for _, b := range ti.Sequence {
			w.PutVarint(uint64(len(b)))
			w.PutBytes(b)
		}
	}
	return w.Bytes()
}

// Decode parses a wire-encoded Message. An empty byte slice for a sequence
// entry denotes an absent snapshot at that tick.
func Decode(data []byte) (Message, error) {
	r := wire.NewReader(data)
	end, err := r.GetUint16()
	if err != nil {
		return Message{}, fmt.Errorf("input: decode: end tick: %w", err)
	}
	numTargets, err := r.GetVarint()
	if err != nil {
		return Message{}, fmt.Errorf("input: decode: target count: %w", err)
	}
	m := Message{EndTick: tick.Tick(end)}
	for i := uint64(0); i < numTargets; i++ {
		target, err := r.GetUint64()
		if err != nil {
			return Message{}, fmt.Errorf("input: decode: target id: %w", err)
		}
		seqLen, err := r.GetVarint()
		if err != nil {
			return Message{}, fmt.Errorf("input: decode: seq len: %w", err)
		}
		seq := make([][]byte, 0, seqLen)
		for j := uint64(0); j < seqLen; j++ {
			n, err := r.GetVarint()
			if err != nil {
				return Message{}, fmt.Errorf("input: decode: snapshot len: %w", err)
			}
			b, err := r.GetBytes(int(n))
			if err != nil {
				return Message{}, fmt.Errorf("input: decode: snapshot bytes: %w", err)
			}
			cp := append([]byte(nil), b...)
			seq = append(seq, cp)
		}
		m.Inputs = append(m.Inputs, TargetInputs{Target: target, Sequence: seq})
	}
	return m, nil
}
