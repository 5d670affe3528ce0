package types

// Event is the wire-friendly representation of a fabric event: a kind string
// plus flat string attributes. Structured payloads live in core/events; this
// form is what journals, archives and external subscribers consume.
type Event struct {
	Type       string
	Attributes map[string]string
}
