package channel

import "fmt"

// NewSender constructs the Sender implementation for a channel's mode.
func NewSender(s Settings) (Sender, error) {
	switch s.Mode {
	case ModeUnreliableUnordered:
		return NewUnreliableUnorderedSender(s), nil
	case ModeUnreliableSequenced:
		return NewUnreliableSequencedSender(s), nil
	case ModeUnreliableWithAck:
		return NewUnreliableWithAckSender(s), nil
	case ModeReliableUnordered, ModeReliableOrdered:
		return NewReliableSender(s), nil
	default:
		return nil, fmt.Errorf("channel: unknown mode %d", s.Mode)
	}
}

// NewReceiver constructs the Receiver implementation for a channel's mode.
func NewReceiver(s Settings) (Receiver, error) {
	switch s.Mode {
	case ModeUnreliableUnordered:
		return NewUnreliableUnorderedReceiver(), nil
	case ModeUnreliableSequenced:
		return NewUnreliableSequencedReceiver(), nil
	case ModeUnreliableWithAck:
		return NewUnreliableWithAckReceiver(), nil
	case ModeReliableUnordered:
		return NewReliableUnorderedReceiver(), nil
	case ModeReliableOrdered:
		return NewReliableOrderedReceiver(), nil
	default:
		return nil, fmt.Errorf("channel: unknown mode %d", s.Mode)
	}
}

// Set is the paired sender/receiver for one channel instance, owned by a
// single connection.
type Set struct {
	ChannelID uint16
	Settings  Settings
	Sender    Sender
	Receiver  Receiver
}

// BuildConnectionChannels instantiates one Set per registered channel, for
// use by a newly-established connection.
func BuildConnectionChannels(reg *Registry) (map[uint16]*Set, error) {
	out := make(map[uint16]*Set)
	for id, s := range reg.byID {
		sender, err := NewSender(s)
		if err != nil {
			return nil, err
		}
		receiver, err := NewReceiver(s)
		if err != nil {
			return nil, err
		}
		out[id] = &Set{ChannelID: id, Settings: s, Sender: sender, Receiver: receiver}
	}
	return out, nil
}
