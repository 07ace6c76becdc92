package bus

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame kinds carried inside websocket binary messages. Subscription frames
// keep the XSUB wire convention: 0x01 adds a filter, 0x00 removes one.
const (
	frameUnsubscribe byte = 0x00
	frameSubscribe   byte = 0x01
	frameData        byte = 0x02
)

var (
	ErrShortFrame   = errors.New("bus: frame too short")
	ErrUnknownFrame = errors.New("bus: unknown frame kind")
)

// Envelope is the unit of exchange on the bus: a topic byte-string used for
// prefix routing and an opaque UTF-8 JSON payload.
type Envelope struct {
	Topic   string
	Payload []byte
}

// encodeData lays out a data frame as kind | uint16 topic length | topic | payload.
func encodeData(topic string, payload []byte) []byte {
	frame := make([]byte, 3+len(topic)+len(payload))
	frame[0] = frameData
	binary.BigEndian.PutUint16(frame[1:3], uint16(len(topic)))
	copy(frame[3:], topic)
	copy(frame[3+len(topic):], payload)
	return frame
}

// decodeData parses a data frame back into an Envelope.
func decodeData(frame []byte) (Envelope, error) {
	if len(frame) < 3 {
		return Envelope{}, ErrShortFrame
	}
	if frame[0] != frameData {
		return Envelope{}, fmt.Errorf("%w: 0x%02x", ErrUnknownFrame, frame[0])
	}
	topicLen := int(binary.BigEndian.Uint16(frame[1:3]))
	if len(frame) < 3+topicLen {
		return Envelope{}, ErrShortFrame
	}
	return Envelope{
		Topic:   string(frame[3 : 3+topicLen]),
		Payload: frame[3+topicLen:],
	}, nil
}

// encodeSubscription builds a filter add/remove frame.
func encodeSubscription(add bool, filter string) []byte {
	kind := frameUnsubscribe
	if add {
		kind = frameSubscribe
	}
	frame := make([]byte, 1+len(filter))
	frame[0] = kind
	copy(frame[1:], filter)
	return frame
}
