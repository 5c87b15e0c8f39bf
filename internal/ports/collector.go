package ports

import "github.com/ghalamif/SignalBridge/internal/domain"

// Collector delivers raw topic blobs from a transport (NATS, OPC UA, in-process).
type Collector interface {
	Start(out chan<- *domain.RawMessage) error
	Stop() error
}
