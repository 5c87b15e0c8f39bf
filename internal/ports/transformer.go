package ports

import "github.com/ghalamif/SignalBridge/internal/domain"

type Transformer interface {
	Transform(*domain.Sample) (*domain.Sample, error)
	Version() uint16
}
