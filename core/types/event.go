package types

// Event represents a typed event emitted during state transitions. Attributes
// carry string-encoded fields so downstream consumers need no schema knowledge.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
