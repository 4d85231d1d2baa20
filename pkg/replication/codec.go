package replication

import (
	"fmt"

	"github.com/tickforge/netsync/pkg/tick"
	"github.com/tickforge/netsync/pkg/wire"
)

func EncodeActions(m ActionsMessage) []byte {
	w := wire.NewWriter(128)
	w.PutUint64(uint64(m.Group))
	w.PutUint16(uint16(m.Tick))
	w.PutVarint(uint64(len(m.Ops)))
	for _, op := range m.Ops {
		w.PutByte(byte(op.Kind))
		w.PutUint64(uint64(op.Entity))
		switch op.Kind {
		case OpSpawn:
			w.PutVarint(uint64(len(op.Kinds)))
			for _, k := range op.Kinds {
				w.PutUint32(uint32(k))
			}
		case OpDespawn:
		case OpInsert:
			w.PutUint32(uint32(op.Comp))
			w.PutVarint(uint64(len(op.Payload)))
			w.PutBytes(op.Payload)
		case OpRemove:
			w.PutUint32(uint32(op.Comp))
		}
	}
	return w.Bytes()
}

func DecodeActions(data []byte) (ActionsMessage, error) {
	r := wire.NewReader(data)
	group, err := r.GetUint64()
	if err != nil {
		return ActionsMessage{}, fmt.Errorf("replication: decode actions: group: %w", err)
	}
	t, err := r.GetUint16()
	if err != nil {
		return ActionsMessage{}, fmt.Errorf("replication: decode actions: tick: %w", err)
	}
	n, err := r.GetVarint()
	if err != nil {
		return ActionsMessage{}, fmt.Errorf("replication: decode actions: op count: %w", err)
	}
	m := ActionsMessage{Group: GroupID(group), Tick: tick.Tick(t)}
	for i := uint64(0); i < n; i++ {
		kindByte, err := r.GetByte()
		if err != nil {
			return ActionsMessage{}, fmt.Errorf("replication: decode actions: op kind: %w", err)
		}
		entity, err := r.GetUint64()
		if err != nil {
			return ActionsMessage{}, fmt.Errorf("replication: decode actions: entity: %w", err)
		}
		op := Action{Kind: OpKind(kindByte), Entity: EntityID(entity)}
		switch op.Kind {
		case OpSpawn:
			kindCount, err := r.GetVarint()
			if err != nil {
				return ActionsMessage{}, fmt.Errorf("replication: decode actions: kind count: %w", err)
			}
			for j := uint64(0); j < kindCount; j++ {
				k, err := r.GetUint32()
				if err != nil {
					return ActionsMessage{}, fmt.Errorf("replication: decode actions: kind: %w", err)
				}
				op.Kinds = append(op.Kinds, ComponentKind(k))
			}
		case OpDespawn:
		case OpInsert:
			k, err := r.GetUint32()
			if err != nil {
				return ActionsMessage{}, fmt.Errorf("replication: decode actions: insert kind: %w", err)
			}
			op.Comp = ComponentKind(k)
			ln, err := r.GetVarint()
			if err != nil {
				return ActionsMessage{}, fmt.Errorf("replication: decode actions: payload len: %w", err)
			}
			b, err := r.GetBytes(int(ln))
			if err != nil {
				return ActionsMessage{}, fmt.Errorf("replication: decode actions: payload: %w", err)
			}
			op.Payload = append([]byte(nil), b...)
		case OpRemove:
			k, err := r.GetUint32()
			if err != nil {
				return ActionsMessage{}, fmt.Errorf("replication: decode actions: remove kind: %w", err)
			}
			op.Comp = ComponentKind(k)
		default:
			return ActionsMessage{}, fmt.Errorf("replication: decode actions: unknown op kind %d", kindByte)
		}
		m.Ops = append(m.Ops, op)
	}
	return m, nil
}

func EncodeMutations(m MutationsMessage) []byte {
	w := wire.NewWriter(128)
	w.PutUint64(uint64(m.Group))
	w.PutUint16(uint16(m.Tick))
	w.PutVarint(uint64(len(m.Muts)))
	for _, mut := range m.Muts {
		w.PutUint64(uint64(mut.Entity))
		w.PutUint32(uint32(mut.Kind))
		var bt *uint16
		if mut.BaselineTick != nil {
			v := uint16(*mut.BaselineTick)
			bt = &v
		}
		w.PutOptionalUint16(bt)
		w.PutVarint(uint64(len(mut.Payload)))
		w.PutBytes(mut.Payload)
	}
	return w.Bytes()
}

func DecodeMutations(data []byte) (MutationsMessage, error) {
	r := wire.NewReader(data)
	group, err := r.GetUint64()
	if err != nil {
		return MutationsMessage{}, fmt.Errorf("replication: decode mutations: group: %w", err)
	}
	t, err := r.GetUint16()
	if err != nil {
		return MutationsMessage{}, fmt.Errorf("replication: decode mutations: tick: %w", err)
	}
	n, err := r.GetVarint()
	if err != nil {
		return MutationsMessage{}, fmt.Errorf("replication: decode mutations: count: %w", err)
	}
	m := MutationsMessage{Group: GroupID(group), Tick: tick.Tick(t)}
	for i := uint64(0); i < n; i++ {
		entity, err := r.GetUint64()
		if err != nil {
			return MutationsMessage{}, fmt.Errorf("replication: decode mutations: entity: %w", err)
		}
		kind, err := r.GetUint32()
		if err != nil {
			return MutationsMessage{}, fmt.Errorf("replication: decode mutations: kind: %w", err)
		}
		btRaw, err := r.GetOptionalUint16()
		if err != nil {
			return MutationsMessage{}, fmt.Errorf("replication: decode mutations: baseline: %w", err)
		}
		ln, err := r.GetVarint()
		if err != nil {
			return MutationsMessage{}, fmt.Errorf("replication: decode mutations: payload len: %w", err)
		}
		b, err := r.GetBytes(int(ln))
		if err != nil {
			return MutationsMessage{}, fmt.Errorf("replication: decode mutations: payload: %w", err)
		}
		mut := Mutation{Entity: EntityID(entity), Kind: ComponentKind(kind), Payload: append([]byte(nil), b...)}
		if btRaw != nil {
			bt := tick.Tick(*btRaw)
			mut.BaselineTick = &bt
		}
		m.Muts = append(m.Muts, mut)
	}
	return m, nil
}
