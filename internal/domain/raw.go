package domain

import "time"

// RawMessage is one blob delivered by a transport for a topic. Timestamp is the
// recording timestamp in microseconds; Data is borrowed by the decoder for the
// duration of one Decode call.
type RawMessage struct {
	Topic     string
	Data      []byte
	Timestamp uint64
	Source    string
}

// Time converts the microsecond timestamp, falling back to now when the transport
// delivered none.
func (m *RawMessage) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Now().UTC()
	}
	return time.UnixMicro(int64(m.Timestamp)).UTC()
}
