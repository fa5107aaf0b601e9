package domain

// Item is a fetched or mutated mail message as delivered to the per-item
// sink. Payload is the raw RFC 2822 message for fetch operations and empty
// for mutations; Metadata carries upstream attributes (thread ID, labels,
// internal date) the storage layer may want.
type Item struct {
	ID       string
	Payload  []byte
	Metadata map[string]any
}
