package session

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tickforge/netsync/pkg/channel"
	"github.com/tickforge/netsync/pkg/checksum"
	"github.com/tickforge/netsync/pkg/delta"
	"github.com/tickforge/netsync/pkg/input"
	"github.com/tickforge/netsync/pkg/netconfig"
	"github.com/tickforge/netsync/pkg/prediction"
	"github.com/tickforge/netsync/pkg/replication"
	"github.com/tickforge/netsync/pkg/tick"
	"github.com/tickforge/netsync/pkg/transport"
	"github.com/tickforge/netsync/pkg/wire"
	"github.com/tickforge/netsync/pkg/world"
)

// This file exercises pkg/input, pkg/replication, pkg/world, pkg/delta,
// pkg/prediction, and pkg/checksum together against one real Host pair,
// the way an embedding game loop would: a server-owned, delta-compressed
// Position is driven by client input, replicated down, and cross-checked
// by a determinism checksum, while the client runs its own (deliberately
// imperfect) local prediction of the same entity to exercise rollback.

const (
	repInputChannel     uint16 = 20
	repActionsChannel   uint16 = 21
	repMutationsChannel uint16 = 22
	repChecksumChannel  uint16 = 23
)

func repChannelRegistry() *channel.Registry {
	reg := channel.NewRegistry()
	reg.Register(repInputChannel, channel.Settings{Mode: channel.ModeUnreliableUnordered, Priority: 1})
	reg.Register(repActionsChannel, channel.Settings{Mode: channel.ModeReliableOrdered, Priority: 1})
	reg.Register(repMutationsChannel, channel.Settings{Mode: channel.ModeUnreliableWithAck, Priority: 1})
	reg.Register(repChecksumChannel, channel.Settings{Mode: channel.ModeUnreliableUnordered, Priority: 1})
	return reg
}

func newRepHostPair() (client, server *Host, clientTp, serverTp *transport.Loopback, cfg netconfig.Config) {
	clientTp, serverTp = transport.NewLoopbackPair()
	cfg = netconfig.Default()
	cfg.TickDuration = time.Millisecond
	client = NewHost(clientTp, repChannelRegistry(), cfg, testLogger(), nil)
	server = NewHost(serverTp, repChannelRegistry(), cfg, testLogger(), nil)
	return
}

type repPosition struct{ X, Y float64 }

func encodeRepPosition(p repPosition) []byte {
	w := wire.NewWriter(16)
	w.PutUint64(math.Float64bits(p.X))
	w.PutUint64(math.Float64bits(p.Y))
	return w.Bytes()
}

func decodeRepPosition(b []byte) repPosition {
	r := wire.NewReader(b)
	x, _ := r.GetUint64()
	y, _ := r.GetUint64()
	return repPosition{X: math.Float64frombits(x), Y: math.Float64frombits(y)}
}

const repPosKind replication.ComponentKind = 42

// newRepRegistry builds a fresh replication.Registry with repPosition
// registered as a delta-compressed component, the way an embedding
// application sets up one registry per host (spec.md §4.8).
func newRepRegistry() *replication.Registry {
	r := replication.NewRegistry()
	r.Register(repPosKind, replication.VTable{
		Serialize:   func(v any) ([]byte, error) { return encodeRepPosition(v.(repPosition)), nil },
		Deserialize: func(b []byte) (any, error) { return decodeRepPosition(b), nil },
		BaseValue:   func() any { return repPosition{} },
		Diff: func(base, next any) ([]byte, error) {
			b, n := base.(repPosition), next.(repPosition)
			return encodeRepPosition(repPosition{X: n.X - b.X, Y: n.Y - b.Y}), nil
		},
		ApplyDiff: func(base any, d []byte) (any, error) {
			b, diff := base.(repPosition), decodeRepPosition(d)
			return repPosition{X: b.X + diff.X, Y: b.Y + diff.Y}, nil
		},
	})
	return r
}

func encodeChecksumMsg(cs checksum.TickChecksum) []byte {
	w := wire.NewWriter(14)
	w.PutUint16(uint16(cs.Tick))
	w.PutUint64(cs.Digest)
	w.PutUint32(uint32(cs.Count))
	return w.Bytes()
}

func decodeChecksumMsg(b []byte) (checksum.TickChecksum, error) {
	r := wire.NewReader(b)
	t, err := r.GetUint16()
	if err != nil {
		return checksum.TickChecksum{}, err
	}
	digest, err := r.GetUint64()
	if err != nil {
		return checksum.TickChecksum{}, err
	}
	count, err := r.GetUint32()
	if err != nil {
		return checksum.TickChecksum{}, err
	}
	return checksum.TickChecksum{Tick: tick.Tick(t), Digest: digest, Count: int(count)}, nil
}

func TestReplicationPredictionChecksumEndToEnd(t *testing.T) {
	client, server, clientTp, serverTp, cfg := newRepHostPair()
	now := time.Now()

	serverPeer := clientTp.ConnectedPeers()[0]
	clientPeer := serverTp.ConnectedPeers()[0]

	clientConn, ok := client.getOrCreateConnection(serverPeer, now)
	require.True(t, ok, "expected client to create a connection to the server")

	serverRegistry := newRepRegistry()
	clientRegistry := newRepRegistry()

	const serverEntity replication.EntityID = 7

	serverWorld := world.NewMemoryWorld()
	deltaStore := delta.NewStore()
	serverWorld.SetDeltaStore(deltaStore)
	serverWorld.Insert(serverEntity, repPosKind, repPosition{})

	sender := replication.NewSender(serverRegistry, replication.NewGroupAssignment(), replication.NewVisibilityTracker())
	const peerKey replication.PeerKey = 1
	visible := map[replication.EntityID]struct{}{serverEntity: {}}

	clientWorld := world.NewMemoryWorld()
	clientSink := world.ReplicationSink{MemoryWorld: clientWorld}
	receiver := replication.NewReceiver(clientRegistry)
	histories := make(map[delta.Key]*delta.History)

	const redundancy = 4
	eqInt8 := func(a, b int8) bool { return a == b }
	serverInputBuf := input.NewBuffer[int8](0, 256)
	clientInputBuf := input.NewBuffer[int8](0, 256)

	serverChecksums := checksum.NewHistory()

	posHistory := prediction.NewHistory[repPosition]()
	var tracker prediction.MismatchTracker
	eqRepPosition := func(a, b repPosition) bool { return a == b }

	// guessStep is the client's own dead-reckoning model: it always
	// assumes a velocity of 2, deliberately out of step with the
	// authoritative velocity of 1 the server actually applies from real
	// input, so every confirmation forces a rollback/resimulate pass.
	guessStep := func(prev repPosition, prevOK bool, at tick.Tick) (repPosition, bool) {
		x := 0.0
		if prevOK {
			x = prev.X
		}
		return repPosition{X: x + 2}, true
	}

	var serverPos repPosition
	var mismatches, rollbacks, checksumMatches int

	serverSimulate := func(currentTick tick.Tick) {
		serverConn, ok := server.Connection(clientPeer)
		if !ok {
			return
		}
		for {
			payload, _, ok := serverConn.ReadNext(repInputChannel)
			if !ok {
				break
			}
			msg, err := input.Decode(payload)
			require.NoError(t, err)
			for _, ti := range msg.Inputs {
				if ti.Target != uint64(serverEntity) {
					continue
				}
				decoded := make([]int8, len(ti.Sequence))
				present := make([]bool, len(ti.Sequence))
				for i, b := range ti.Sequence {
					if len(b) == 0 {
						continue
					}
					present[i] = true
					decoded[i] = int8(b[0])
				}
				input.ConsumeTargetInputs(serverInputBuf, msg.EndTick, decoded, present, eqInt8)
			}
		}

		dir, ok := serverInputBuf.Get(currentTick)
		if !ok {
			dir = 0
		}
		serverPos.X += float64(dir)
		serverWorld.Insert(serverEntity, repPosKind, serverPos)

		vt, ok := serverRegistry.Lookup(repPosKind)
		require.True(t, ok)
		posBytes, err := vt.Serialize(serverPos)
		require.NoError(t, err)
		acc := checksum.New()
		acc.Add(uint32(repPosKind), uint64(serverEntity), posBytes)
		cs := checksum.TickChecksum{Tick: currentTick, Digest: acc.Digest(), Count: acc.Count()}
		serverChecksums.Record(cs)
		require.NoError(t, serverConn.Enqueue(repChecksumChannel, encodeChecksumMsg(cs), 1, nil))

		actions, muts, err := sender.Pass(peerKey, currentTick, visible, serverWorld)
		require.NoError(t, err)
		for _, am := range actions {
			opTick := am.Tick
			require.NoError(t, serverConn.Enqueue(repActionsChannel, replication.EncodeActions(am), 1, &opTick))
		}
		for _, mm := range muts {
			compressed, cerr := replication.CompressMutations(mm.Muts, serverRegistry, deltaStore, currentTick, 1)
			require.NoError(t, cerr)
			mm.Muts = compressed
			opTick := mm.Tick
			require.NoError(t, serverConn.Enqueue(repMutationsChannel, replication.EncodeMutations(mm), 1, &opTick))
		}
		serverWorld.MarkSent(serverEntity, repPosKind)
	}

	clientSimulate := func(currentTick tick.Tick) {
		clientInputBuf.Set(currentTick, int8(1), eqInt8)
		snaps := clientInputBuf.Snapshot(currentTick, redundancy)
		seq := make([][]byte, len(snaps))
		for i, s := range snaps {
			if s.Kind == input.SlotValue {
				seq[i] = []byte{byte(s.Value)}
			} else {
				seq[i] = []byte{}
			}
		}
		msg := input.Message{EndTick: currentTick, Inputs: []input.TargetInputs{{Target: uint64(serverEntity), Sequence: seq}}}
		require.NoError(t, clientConn.Enqueue(repInputChannel, input.Encode(msg), 1, nil))

		for {
			payload, _, ok := clientConn.ReadNext(repActionsChannel)
			if !ok {
				break
			}
			am, err := replication.DecodeActions(payload)
			require.NoError(t, err)
			require.NoError(t, receiver.ApplyActions(am, clientSink))
		}

		for {
			payload, _, ok := clientConn.ReadNext(repMutationsChannel)
			if !ok {
				break
			}
			mm, err := replication.DecodeMutations(payload)
			require.NoError(t, err)
			decompressed, derr := replication.DecompressMutations(mm, clientRegistry, histories)
			require.NoError(t, derr)
			applied, aerr := receiver.ApplyMutations(decompressed, clientSink)
			require.NoError(t, aerr)
			if applied == 0 {
				continue
			}
			confirmed := clientWorld.Components(serverEntity)[repPosKind].(repPosition)
			res := posHistory.InsertConfirmed(mm.Tick, confirmed, currentTick, eqRepPosition)
			if res.Mismatch {
				mismatches++
				tracker.Report(mm.Tick)
			}
		}

		for {
			payload, _, ok := clientConn.ReadNext(repChecksumChannel)
			if !ok {
				break
			}
			cs, err := decodeChecksumMsg(payload)
			require.NoError(t, err)
			comps := clientWorld.Components(serverEntity)
			if comps == nil {
				continue
			}
			pos, ok := comps[repPosKind].(repPosition)
			if !ok {
				continue
			}
			vt, ok := clientRegistry.Lookup(repPosKind)
			require.True(t, ok)
			posBytes, serr := vt.Serialize(pos)
			require.NoError(t, serr)
			acc := checksum.New()
			acc.Add(uint32(repPosKind), uint64(serverEntity), posBytes)
			local := checksum.TickChecksum{Tick: cs.Tick, Digest: acc.Digest(), Count: acc.Count()}
			if checksum.Compare(local, cs) {
				checksumMatches++
			} else {
				client.RaiseChecksumMismatch(serverPeer, cs.Tick)
			}
		}

		plan := tracker.Resolve(currentTick, cfg.MaxRollbackTicks)
		LogRollbackOverflow(testLogger(), plan, currentTick)
		if plan.ShouldRollback {
			rollbacks++
			prediction.Resimulate(posHistory, plan, currentTick, guessStep)
		}
		tracker.Reset()

		prevTick := currentTick.Add(-1)
		prev, prevOK := posHistory.RestoreValue(prevTick)
		if confirmed, ok := posHistory.ConfirmedAt(prevTick); ok {
			prev, prevOK = confirmed, true
		}
		next, _ := guessStep(prev, prevOK, currentTick)
		posHistory.PushPredicted(currentTick, next)
	}

	for i := 0; i < 150; i++ {
		now = now.Add(time.Millisecond)
		client.Step(now, clientSimulate)
		server.Step(now, serverSimulate)
	}

	require.Greater(t, mismatches, 0, "expected the client's deliberately wrong dead-reckoning guess to mismatch confirmations")
	require.Greater(t, rollbacks, 0, "expected at least one rollback/resimulate pass")
	require.Greater(t, checksumMatches, 0, "expected at least one determinism checksum to match the replicated state")
	require.Greater(t, serverChecksums.Len(), 0)

	finalComps := clientWorld.Components(serverEntity)
	require.NotNil(t, finalComps)
	finalPos, ok := finalComps[repPosKind].(repPosition)
	require.True(t, ok)
	require.Equal(t, serverPos, finalPos, "expected client's replicated position to match the server's authoritative position")
	require.Greater(t, serverPos.X, 0.0, "expected the server to have actually applied client input")
}
