package types

// Event is the payload of an escrow state change. Addresses are hex,
// amounts decimal strings and timestamps unix seconds.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the named attribute, or "" when absent.
func (e *Event) Attribute(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
