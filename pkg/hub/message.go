// Package hub fans out dashboard messages to WebSocket viewers using the
// channel-based broadcast pattern.
package hub

import "encoding/json"

// Message is one encoded JSON payload queued for viewers. Seq orders
// payloads taken from the same source; zero means unordered.
type Message struct {
	Seq  uint64
	Data []byte
}

// Encode marshals v into a Message stamped with seq
func Encode(seq uint64, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Seq: seq, Data: data}, nil
}

// olderThan reports whether m was superseded by last
func (m Message) olderThan(last *Message) bool {
	return last != nil && m.Seq != 0 && m.Seq <= last.Seq
}
