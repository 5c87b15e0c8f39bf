package ports

import "github.com/ghalamif/SignalBridge/internal/domain"

// Decoder turns a raw blob into a Sample of extracted signal values.
type Decoder interface {
	Decode(msg *domain.RawMessage) (*domain.Sample, error)
}
