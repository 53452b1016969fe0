package platforms

import "context"

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is the rendered form of one event. Chat adapters use the text
// fields; the generic webhook posts Payload as-is.
type Message struct {
	Title       string
	Content     string
	Description string
	Color       int
	Timestamp   string
	Footer      string
	Fields      []Field
	Payload     any
}

type Adapter interface {
	Name() string
	Send(ctx context.Context, endpoint, secret string, msg Message) error
}
