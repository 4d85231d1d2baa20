package wire

// AckState tracks the receive-side bookkeeping a Framer needs to populate
// outgoing headers: the last packet id received and a 32-bit bitfield of
// the 32 packet ids before it (spec.md §4.1).
type AckState struct {
	lastReceivedPacketID uint16
	haveReceived         bool
	recentBitfield       uint32
}

// OnReceive records a newly-received packet id for future ack headers.
func (a *AckState) OnReceive(packetID uint16) {
	if !a.haveReceived {
		a.lastReceivedPacketID = packetID
		a.haveReceived = true
		a.recentBitfield = 0
		return
	}
	diff := int16(packetID - a.lastReceivedPacketID)
	switch {
	case diff > 0:
		// New packet is newer: shift the bitfield, marking the old
		// "last" as bit shift-1, and advance.
		shift := uint32(diff)
		if shift >= 32 {
			a.recentBitfield = 0
		} else {
			a.recentBitfield = (a.recentBitfield << shift) | (1 << (shift - 1))
		}
		a.lastReceivedPacketID = packetID
	case diff < 0:
		// Older packet arriving late: set its bit if within window.
		age := uint32(-diff)
		if age >= 1 && age <= 32 {
			a.recentBitfield |= 1 << (age - 1)
		}
	default:
		// duplicate packet id, ignore
	}
}

// Header builds the ack portion of an outgoing PacketHeader.
func (a *AckState) Header(packetID, tick uint16) PacketHeader {
	return PacketHeader{
		PacketID:          packetID,
		Tick:              tick,
		LastAckedPacketID: a.lastReceivedPacketID,
		AckBitfield:       a.recentBitfield,
	}
}

// Received reports whether bit i of an incoming header's ack bitfield
// indicates that (header.LastAckedPacketID - i - 1) was received by the
// sender of that header, per spec.md §4.1's bit-exact definition.
func Received(h PacketHeader, i uint) (packetID uint16, wasReceived bool) {
	packetID = h.LastAckedPacketID - uint16(i) - 1
	wasReceived = h.AckBitfield&(1<<i) != 0
	return packetID, wasReceived
}
