// Package wire implements the packet framer: the fixed layout of
// spec.md §4.1 (PacketHeader, SingleData, FragmentData groups), MTU-bounded
// packing on send, and fragment reassembly on receive.
package wire

import "fmt"

// PacketType distinguishes a packet carrying whole channel-grouped messages
// from one carrying a single fragment of a larger message.
type PacketType uint8

const (
	PacketTypeData         PacketType = 0
	PacketTypeDataFragment PacketType = 1
)

// DefaultMTU is the safe default payload size (spec.md §3).
const DefaultMTU = 1200

// MaxFragments bounds a single message's fragment count (spec.md §7
// MessageTooLarge).
const MaxFragments = 256

// PacketHeader is bit-exact per spec.md §4.1.
type PacketHeader struct {
	PacketID          uint16
	Tick              uint16
	LastAckedPacketID uint16
	AckBitfield       uint32
	PacketType        PacketType
}

func (h PacketHeader) Encode(w *Writer) {
	w.PutUint16(h.PacketID)
	w.PutUint16(h.Tick)
	w.PutUint16(h.LastAckedPacketID)
	w.PutUint32(h.AckBitfield)
	w.PutByte(byte(h.PacketType))
}

func DecodeHeader(r *Reader) (PacketHeader, error) {
	var h PacketHeader
	var err error
	if h.PacketID, err = r.GetUint16(); err != nil {
		return h, fmt.Errorf("wire: header: %w", err)
	}
	if h.Tick, err = r.GetUint16(); err != nil {
		return h, fmt.Errorf("wire: header: %w", err)
	}
	if h.LastAckedPacketID, err = r.GetUint16(); err != nil {
		return h, fmt.Errorf("wire: header: %w", err)
	}
	if h.AckBitfield, err = r.GetUint32(); err != nil {
		return h, fmt.Errorf("wire: header: %w", err)
	}
	pt, err := r.GetByte()
	if err != nil {
		return h, fmt.Errorf("wire: header: %w", err)
	}
	h.PacketType = PacketType(pt)
	return h, nil
}

// HeaderSize is the fixed on-wire size of PacketHeader.
const HeaderSize = 2 + 2 + 2 + 4 + 1

// SingleData is one message within a Data packet's channel group.
// MessageID and OriginTick presence is channel-kind-determined on the wire
// (the channel layer decides whether to populate them); here both are
// simply optional fields.
type SingleData struct {
	MessageID  *uint16
	OriginTick *uint16
	Payload    []byte
}

func (s SingleData) EncodedLen() int {
	n := 1 // message id presence byte
	if s.MessageID != nil {
		n += 2
	}
	n++ // tick presence byte
	if s.OriginTick != nil {
		n += 2
	}
	n += VarintLen(uint64(len(s.Payload))) + len(s.Payload)
	return n
}

func (s SingleData) Encode(w *Writer) {
	w.PutOptionalUint16(s.MessageID)
	w.PutOptionalUint16(s.OriginTick)
	w.PutVarint(uint64(len(s.Payload)))
	w.PutBytes(s.Payload)
}

func DecodeSingleData(r *Reader) (SingleData, error) {
	var s SingleData
	var err error
	if s.MessageID, err = r.GetOptionalUint16(); err != nil {
		return s, fmt.Errorf("wire: single: message id: %w", err)
	}
	if s.OriginTick, err = r.GetOptionalUint16(); err != nil {
		return s, fmt.Errorf("wire: single: tick: %w", err)
	}
	n, err := r.GetVarint()
	if err != nil {
		return s, fmt.Errorf("wire: single: len: %w", err)
	}
	s.Payload, err = r.GetBytes(int(n))
	if err != nil {
		return s, fmt.Errorf("wire: single: payload: %w", err)
	}
	return s, nil
}

// FragmentData is the single group carried by a DataFragment packet.
// MessageID is always present: reassembly is keyed by it regardless of the
// channel's own id-presence policy, since a message that must be split is
// always individually addressable.
type FragmentData struct {
	MessageID     uint16
	FragmentID    uint8
	NumFragments  uint8
	MessageLen    uint32
	FragmentBytes []byte
}

func (f FragmentData) Encode(w *Writer) {
	w.PutUint16(f.MessageID)
	w.PutByte(f.FragmentID)
	w.PutByte(f.NumFragments)
	w.PutUint32(f.MessageLen)
	w.PutVarint(uint64(len(f.FragmentBytes)))
	w.PutBytes(f.FragmentBytes)
}

func DecodeFragmentData(r *Reader) (FragmentData, error) {
	var f FragmentData
	var err error
	if f.MessageID, err = r.GetUint16(); err != nil {
		return f, fmt.Errorf("wire: fragment: id: %w", err)
	}
	if f.FragmentID, err = r.GetByte(); err != nil {
		return f, fmt.Errorf("wire: fragment: fragment id: %w", err)
	}
	if f.NumFragments, err = r.GetByte(); err != nil {
		return f, fmt.Errorf("wire: fragment: count: %w", err)
	}
	if f.MessageLen, err = r.GetUint32(); err != nil {
		return f, fmt.Errorf("wire: fragment: msg len: %w", err)
	}
	n, err := r.GetVarint()
	if err != nil {
		return f, fmt.Errorf("wire: fragment: len: %w", err)
	}
	f.FragmentBytes, err = r.GetBytes(int(n))
	if err != nil {
		return f, fmt.Errorf("wire: fragment: bytes: %w", err)
	}
	return f, nil
}

// ChannelGroup is one (channel_id, [SingleData...]) group within a Data
// packet.
type ChannelGroup struct {
	ChannelID uint16
	Messages  []SingleData
}

func (g ChannelGroup) EncodedLen() int {
	n := VarintLen(uint64(g.ChannelID)) + 1
	for _, m := range g.Messages {
		n += m.EncodedLen()
	}
	return n
}

func (g ChannelGroup) Encode(w *Writer) {
	w.PutVarint(uint64(g.ChannelID))
	w.PutByte(byte(len(g.Messages)))
	for _, m := range g.Messages {
		m.Encode(w)
	}
}

// Packet is the fully decoded form of one datagram.
type Packet struct {
	Header   PacketHeader
	Groups   []ChannelGroup    // populated when Header.PacketType == PacketTypeData
	Fragment *FragmentChannel  // populated when Header.PacketType == PacketTypeDataFragment
}

// FragmentChannel pairs a channel id with its single FragmentData group.
type FragmentChannel struct {
	ChannelID uint16
	Fragment  FragmentData
}

// EncodeDataPacket serializes a Data packet from pre-grouped channel
// messages. Callers (pkg/channel + pkg/priority) are responsible for
// ensuring the total encoded size does not exceed mtu; BuildDataPackets
// below enforces that for the common case.
func EncodeDataPacket(h PacketHeader, groups []ChannelGroup) []byte {
	h.PacketType = PacketTypeData
	w := NewWriter(HeaderSize + 64)
	h.Encode(w)
	for _, g := range groups {
		g.Encode(w)
	}
	return w.Bytes()
}

// EncodeFragmentPacket serializes a single-fragment DataFragment packet.
func EncodeFragmentPacket(h PacketHeader, channelID uint16, frag FragmentData) []byte {
	h.PacketType = PacketTypeDataFragment
	w := NewWriter(HeaderSize + 32 + len(frag.FragmentBytes))
	h.Encode(w)
	w.PutVarint(uint64(channelID))
	frag.Encode(w)
	return w.Bytes()
}

// Decode parses a raw datagram into a Packet. Malformed input yields an
// error; callers must discard the packet and record a metric rather than
// tearing down the connection (spec.md §4.1 Failure / §7 MalformedPacket).
func Decode(data []byte) (Packet, error) {
	r := NewReader(data)
	h, err := DecodeHeader(r)
	if err != nil {
		return Packet{}, err
	}
	var p Packet
	p.Header = h
	switch h.PacketType {
	case PacketTypeData:
		for r.Remaining() > 0 {
			chID, err := r.GetVarint()
			if err != nil {
				return Packet{}, fmt.Errorf("wire: decode: channel id: %w", err)
			}
			count, err := r.GetByte()
			if err != nil {
				return Packet{}, fmt.Errorf("wire: decode: message count: %w", err)
			}
			msgs := make([]SingleData, 0, count)
			for i := 0; i < int(count); i++ {
				m, err := DecodeSingleData(r)
				if err != nil {
					return Packet{}, fmt.Errorf("wire: decode: message %d: %w", i, err)
				}
				msgs = append(msgs, m)
			}
			p.Groups = append(p.Groups, ChannelGroup{ChannelID: uint16(chID), Messages: msgs})
		}
	case PacketTypeDataFragment:
		chID, err := r.GetVarint()
		if err != nil {
			return Packet{}, fmt.Errorf("wire: decode: fragment channel id: %w", err)
		}
		frag, err := DecodeFragmentData(r)
		if err != nil {
			return Packet{}, fmt.Errorf("wire: decode: fragment: %w", err)
		}
		if frag.NumFragments == 0 || frag.FragmentID >= frag.NumFragments {
			return Packet{}, fmt.Errorf("wire: decode: fragment count mismatch (id=%d count=%d)", frag.FragmentID, frag.NumFragments)
		}
		p.Fragment = &FragmentChannel{ChannelID: uint16(chID), Fragment: frag}
	default:
		return Packet{}, fmt.Errorf("wire: decode: unknown packet type %d", h.PacketType)
	}
	return p, nil
}

// PendingMessage is an outgoing message queued for a channel, as handed to
// the framer by the priority manager in already-approved send order.
type PendingMessage struct {
	ChannelID  uint16
	MessageID  *uint16
	OriginTick *uint16
	Payload    []byte
}

// BuildDataPackets packs pending messages into one or more Data packets,
// each bounded by mtu, filling in priority order until the next message
// would overflow, then flushing and continuing (spec.md §4.1 Algorithm).
// Messages whose single-packet encoding (including fragmentation framing)
// would still overflow mtu are instead fragmented via BuildFragmentPackets
// by the caller; BuildDataPackets assumes all inputs already fit unsplit
// and returns the remainder (messages that must be fragmented) unpacked.
func BuildDataPackets(h PacketHeader, mtu int, msgs []PendingMessage) (packets [][]byte, oversized []PendingMessage) {
	type chanBucket struct {
		id   uint16
		msgs []SingleData
	}
	var buckets []*chanBucket
	bucketFor := func(id uint16) *chanBucket {
		for _, b := range buckets {
			if b.id == id {
				return b
			}
		}
		b := &chanBucket{id: id}
		buckets = append(buckets, b)
		return b
	}

	flush := func() {
		if len(buckets) == 0 {
			return
		}
		var groups []ChannelGroup
		for _, b := range buckets {
			if len(b.msgs) > 0 {
				groups = append(groups, ChannelGroup{ChannelID: b.id, Messages: b.msgs})
			}
		}
		if len(groups) > 0 {
			packets = append(packets, EncodeDataPacket(h, groups))
		}
		buckets = nil
	}

	curSize := HeaderSize
	fragmentLimit := mtu - HeaderSize - VarintLen(0) - 1

	for _, m := range msgs {
		sd := SingleData{MessageID: m.MessageID, OriginTick: m.OriginTick, Payload: m.Payload}
		singleCost := sd.EncodedLen()
		if singleCost > fragmentLimit {
			oversized = append(oversized, m)
			continue
		}
		b := bucketFor(m.ChannelID)
		groupOverheadIfNew := 0
		if len(b.msgs) == 0 {
			groupOverheadIfNew = VarintLen(uint64(m.ChannelID)) + 1
		}
		addCost := singleCost + groupOverheadIfNew
		if curSize+addCost > mtu {
			flush()
			curSize = HeaderSize
			b = bucketFor(m.ChannelID)
			groupOverheadIfNew = VarintLen(uint64(m.ChannelID)) + 1
			addCost = singleCost + groupOverheadIfNew
		}
		b.msgs = append(b.msgs, sd)
		curSize += addCost
	}
	flush()
	return packets, oversized
}

// BuildFragmentPackets splits payload into ceil(len/fragmentPayloadSize)
// fragments, each emitted as its own DataFragment packet. Fragment packets
// never carry other messages (spec.md §4.1).
func BuildFragmentPackets(h PacketHeader, channelID uint16, messageID uint16, payload []byte, mtu int) ([][]byte, error) {
	fragmentHeaderOverhead := 2 + 1 + 1 + 4 + VarintLen(uint64(mtu)) // message id, frag id, count, msg len, length varint
	fragmentPayloadSize := mtu - HeaderSize - VarintLen(uint64(channelID)) - fragmentHeaderOverhead
	if fragmentPayloadSize <= 0 {
		return nil, fmt.Errorf("wire: mtu %d too small to fragment", mtu)
	}
	numFragments := (len(payload) + fragmentPayloadSize - 1) / fragmentPayloadSize
	if numFragments == 0 {
		numFragments = 1
	}
	if numFragments > MaxFragments {
		return nil, fmt.Errorf("wire: message too large: %d fragments exceeds limit %d", numFragments, MaxFragments)
	}
	packets := make([][]byte, 0, numFragments)
	for i := 0; i < numFragments; i++ {
		start := i * fragmentPayloadSize
		end := start + fragmentPayloadSize
		if end > len(payload) {
			end = len(payload)
		}
		frag := FragmentData{
			MessageID:     messageID,
			FragmentID:    uint8(i),
			NumFragments:  uint8(numFragments),
			MessageLen:    uint32(len(payload)),
			FragmentBytes: payload[start:end],
		}
		packets = append(packets, EncodeFragmentPacket(h, channelID, frag))
	}
	return packets, nil
}
