package replication

import (
	"errors"
	"fmt"

	"github.com/tickforge/netsync/pkg/delta"
	"github.com/tickforge/netsync/pkg/netsyncerr"
	"github.com/tickforge/netsync/pkg/tick"
)

func deltaKey(entity EntityID, kind ComponentKind) delta.Key {
	return delta.Key{Kind: uint32(kind), Entity: uint64(entity)}
}

// CompressMutations rewrites every Mutation whose kind is registered as
// delta-compressed (VTable.Diff/ApplyDiff/BaseValue all set) into a
// delta.Message-encoded payload: a Normal diff against the value stored
// in store at the mutation's BaselineTick when one is known and still
// retained, otherwise a FromBase diff. Non-delta-compressed mutations
// pass through untouched. now and numRecipients are forwarded to
// store.Insert so the new value becomes the next pass's baseline once
// numRecipients clients have acknowledged it (spec.md §4.8 "Send").
func CompressMutations(muts []Mutation, registry *Registry, store *delta.Store, now tick.Tick, numRecipients int) ([]Mutation, error) {
	out := make([]Mutation, len(muts))
	for i, m := range muts {
		vt, ok := registry.Lookup(m.Kind)
		if !ok {
			return nil, unknownComponentErr(m.Kind)
		}
		if vt.Diff == nil || vt.ApplyDiff == nil || vt.BaseValue == nil {
			out[i] = m
			continue
		}
		next, err := vt.Deserialize(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("replication: compress mutation entity %d kind %d: %w", m.Entity, m.Kind, err)
		}
		key := deltaKey(m.Entity, m.Kind)

		var msg delta.Message
		haveMsg := false
		if m.BaselineTick != nil {
			if base, ok := store.Get(key, *m.BaselineTick); ok {
				diffBytes, derr := vt.Diff(base, next)
				if derr != nil {
					return nil, fmt.Errorf("replication: compress mutation entity %d kind %d: diff: %w", m.Entity, m.Kind, derr)
				}
				msg = delta.Message{Kind: delta.Normal, PreviousTick: *m.BaselineTick, Delta: diffBytes}
				haveMsg = true
			}
		}
		if !haveMsg {
			diffBytes, derr := vt.Diff(vt.BaseValue(), next)
			if derr != nil {
				return nil, fmt.Errorf("replication: compress mutation entity %d kind %d: base diff: %w", m.Entity, m.Kind, derr)
			}
			msg = delta.Message{Kind: delta.FromBase, Delta: diffBytes}
		}

		m.Payload = delta.Encode(msg)
		m.BaselineTick = nil // the delta message framing now carries PreviousTick itself
		out[i] = m
		store.Insert(key, now, next, numRecipients)
	}
	return out, nil
}

// DecompressMutations reverses CompressMutations on the receiving side:
// every mutation whose kind is delta-compressed is decoded as a
// delta.Message and reconstructed via the caller-owned histories map (one
// *delta.History per (entity, kind) pair, since a History's tick-indexed
// value map holds a single component instance's lineage, spec.md §4.8),
// then re-serialized through the same vtable so Receiver.ApplyMutations
// can deserialize it exactly as it would a non-delta mutation.
func DecompressMutations(msg MutationsMessage, registry *Registry, histories map[delta.Key]*delta.History) (MutationsMessage, error) {
	out := msg
	out.Muts = make([]Mutation, len(msg.Muts))
	for i, m := range msg.Muts {
		vt, ok := registry.Lookup(m.Kind)
		if !ok {
			return MutationsMessage{}, unknownComponentErr(m.Kind)
		}
		if vt.Diff == nil || vt.ApplyDiff == nil || vt.BaseValue == nil {
			out.Muts[i] = m
			continue
		}
		key := deltaKey(m.Entity, m.Kind)
		h, ok := histories[key]
		if !ok {
			h = delta.NewHistory(delta.Codec{BaseValue: vt.BaseValue, Diff: vt.Diff, ApplyDiff: vt.ApplyDiff})
			histories[key] = h
		}
		deltaMsg, derr := delta.Decode(m.Payload)
		if derr != nil {
			return MutationsMessage{}, fmt.Errorf("replication: decompress mutation entity %d kind %d: %w", m.Entity, m.Kind, derr)
		}
		value, aerr := h.Apply(key, msg.Tick, deltaMsg)
		if aerr != nil {
			var missing *delta.ErrBaselineMissing
			if errors.As(aerr, &missing) {
				return MutationsMessage{}, netsyncerr.New(netsyncerr.DeltaBaselineMissing, "replication.DecompressMutations", aerr)
			}
			return MutationsMessage{}, fmt.Errorf("replication: decompress mutation entity %d kind %d: %w", m.Entity, m.Kind, aerr)
		}
		reencoded, serr := vt.Serialize(value)
		if serr != nil {
			return MutationsMessage{}, fmt.Errorf("replication: decompress mutation entity %d kind %d: re-encode: %w", m.Entity, m.Kind, serr)
		}
		m.Payload = reencoded
		out.Muts[i] = m
	}
	return out, nil
}
