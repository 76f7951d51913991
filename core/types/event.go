package types

// Event represents a typed event emitted by an escrow state transition.
// Attributes carry hex-encoded identifiers and decimal amounts so that sinks
// never need to know the engine's Go types.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the named attribute or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
