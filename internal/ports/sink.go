package ports

import "github.com/ghalamif/SignalBridge/internal/domain"

type Sink interface {
	WriteBatch(samples []*domain.Sample) error
	Name() string
}
