package delta

import (
	"fmt"

	"github.com/tickforge/netsync/pkg/tick"
	"github.com/tickforge/netsync/pkg/wire"
)

// Encode serializes msg for transport as a replication Mutation payload
// (spec.md §4.8 "Send"). PreviousTick is only written when Kind == Normal.
func Encode(msg Message) []byte {
	w := wire.NewWriter(16 + len(msg.Delta))
	w.PutByte(byte(msg.Kind))
	if msg.Kind == Normal {
		w.PutUint16(uint16(msg.PreviousTick))
	}
	w.PutVarint(uint64(len(msg.Delta)))
	w.PutBytes(msg.Delta)
	return w.Bytes()
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (Message, error) {
	r := wire.NewReader(data)
	kindByte, err := r.GetByte()
	if err != nil {
		return Message{}, fmt.Errorf("delta: decode: kind: %w", err)
	}
	m := Message{Kind: MessageKind(kindByte)}
	switch m.Kind {
	case FromBase:
	case Normal:
		t, err := r.GetUint16()
		if err != nil {
			return Message{}, fmt.Errorf("delta: decode: previous tick: %w", err)
		}
		m.PreviousTick = tick.Tick(t)
	default:
		return Message{}, fmt.Errorf("delta: decode: unknown message kind %d", kindByte)
	}
	n, err := r.GetVarint()
	if err != nil {
		return Message{}, fmt.Errorf("delta: decode: delta len: %w", err)
	}
	b, err := r.GetBytes(int(n))
	if err != nil {
		return Message{}, fmt.Errorf("delta: decode: delta: %w", err)
	}
	m.Delta = append([]byte(nil), b...)
	return m, nil
}
